package dataload

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"dataload-service/internal/models"
)

// ProductRefs are the resolved foreign keys of a product row.
type ProductRefs struct {
	BrandID            uuid.UUID
	CategoryID         uuid.UUID
	ShoppingCategoryID *uuid.UUID
	ReturnPolicyID     uuid.UUID
}

// ReferenceResolver maps natural keys to ids of entities that already exist.
// It never creates anything. Successful lookups are cached for the job.
type ReferenceResolver struct {
	tenantID   string
	brands     map[string]uuid.UUID
	categories map[uuid.UUID]bool
	shopping   map[string]uuid.UUID
	policies   map[string]uuid.UUID
	products   map[string]uuid.UUID
	attributes map[string]*resolvedAttribute
}

// resolvedAttribute is an attribute id plus its value ids by value name.
type resolvedAttribute struct {
	ID     uuid.UUID
	Values map[string]uuid.UUID
}

func NewReferenceResolver(tenantID string) *ReferenceResolver {
	return &ReferenceResolver{
		tenantID:   tenantID,
		brands:     make(map[string]uuid.UUID),
		categories: make(map[uuid.UUID]bool),
		shopping:   make(map[string]uuid.UUID),
		policies:   make(map[string]uuid.UUID),
		products:   make(map[string]uuid.UUID),
		attributes: make(map[string]*resolvedAttribute),
	}
}

// SignatureOf is the return policy a product row points at.
func SignatureOf(returnType string, terms ReturnTerms) models.ReturnPolicySignature {
	sig := models.ReturnPolicySignature{ReturnType: returnType}
	if returnType == models.ReturnTypeAllowed {
		sig.ReturnFeeType = terms.ReturnFeeType
		sig.ReturnFee = terms.ReturnFee
	}
	return sig
}

func signatureKey(sig models.ReturnPolicySignature) string {
	feeType, fee := "", ""
	if sig.ReturnFeeType != nil {
		feeType = *sig.ReturnFeeType
	}
	if sig.ReturnFee.Valid {
		fee = sig.ReturnFee.Decimal.String()
	}
	return sig.ReturnType + "|" + feeType + "|" + fee
}

// ResolveProduct resolves every reference of a product row. Unresolved references
// come back together as one *RowFailure of REFERENCE errors.
func (r *ReferenceResolver) ResolveProduct(ctx context.Context, store CatalogStore, row int, rec *ProductRecord) (*ProductRefs, error) {
	refs := &ProductRefs{CategoryID: rec.CategoryID}
	var missing []models.RowError
	miss := func(field, message, value string) {
		missing = append(missing, models.NewRowError(row, field, models.ErrorKindReference, message, value))
	}

	id, err := r.brand(ctx, store, rec.BrandName)
	switch {
	case errors.Is(err, ErrNotFound):
		miss("brand_name", fmt.Sprintf("brand %q not found", rec.BrandName), rec.BrandName)
	case err != nil:
		return nil, lookupFailure(row, "brand_name", err)
	default:
		refs.BrandID = id
	}

	err = r.category(ctx, store, rec.CategoryID)
	switch {
	case errors.Is(err, ErrNotFound):
		miss("category_id", fmt.Sprintf("category %s not found", rec.CategoryID), rec.CategoryID.String())
	case err != nil:
		return nil, lookupFailure(row, "category_id", err)
	}

	if rec.ShoppingCategoryName != nil {
		name := *rec.ShoppingCategoryName
		id, err := r.shoppingCategory(ctx, store, name)
		switch {
		case errors.Is(err, ErrNotFound):
			miss("shopping_category_name", fmt.Sprintf("shopping category %q not found", name), name)
		case err != nil:
			return nil, lookupFailure(row, "shopping_category_name", err)
		default:
			refs.ShoppingCategoryID = &id
		}
	}

	sig := SignatureOf(rec.ReturnType, rec.ReturnTerms)
	id, err = r.returnPolicy(ctx, store, sig)
	switch {
	case errors.Is(err, ErrNotFound):
		miss("return_type", "no return policy matches "+describeSignature(sig), rec.ReturnType)
	case err != nil:
		return nil, lookupFailure(row, "return_type", err)
	default:
		refs.ReturnPolicyID = id
	}

	if len(missing) > 0 {
		return nil, rowFailure(missing...)
	}
	return refs, nil
}

func (r *ReferenceResolver) brand(ctx context.Context, store CatalogStore, name string) (uuid.UUID, error) {
	if id, ok := r.brands[name]; ok {
		return id, nil
	}
	b, err := store.FindBrandByName(ctx, r.tenantID, name)
	if err != nil {
		return uuid.Nil, err
	}
	r.brands[name] = b.ID
	return b.ID, nil
}

func (r *ReferenceResolver) category(ctx context.Context, store CatalogStore, id uuid.UUID) error {
	if r.categories[id] {
		return nil
	}
	if _, err := store.FindCategoryByID(ctx, r.tenantID, id); err != nil {
		return err
	}
	r.categories[id] = true
	return nil
}

func (r *ReferenceResolver) shoppingCategory(ctx context.Context, store CatalogStore, name string) (uuid.UUID, error) {
	if id, ok := r.shopping[name]; ok {
		return id, nil
	}
	sc, err := store.FindShoppingCategoryByName(ctx, name)
	if err != nil {
		return uuid.Nil, err
	}
	r.shopping[name] = sc.ID
	return sc.ID, nil
}

func (r *ReferenceResolver) returnPolicy(ctx context.Context, store CatalogStore, sig models.ReturnPolicySignature) (uuid.UUID, error) {
	key := signatureKey(sig)
	if id, ok := r.policies[key]; ok {
		return id, nil
	}
	p, err := store.FindReturnPolicyBySignature(ctx, r.tenantID, sig)
	if err != nil {
		return uuid.Nil, err
	}
	r.policies[key] = p.ID
	return p.ID, nil
}

// ItemRefs are the resolved ids of an item row: its product and, per attribute,
// the attribute id and the value id of every value the row lists.
type ItemRefs struct {
	ProductID  uuid.UUID
	Attributes []uuid.UUID
	ValueIDs   [][]uuid.UUID
}

// ResolveItem resolves the product and every attribute value an item row names.
func (r *ReferenceResolver) ResolveItem(ctx context.Context, store CatalogStore, row int, rec *ItemRecord) (*ItemRefs, error) {
	refs := &ItemRefs{
		Attributes: make([]uuid.UUID, len(rec.Attributes)),
		ValueIDs:   make([][]uuid.UUID, len(rec.Attributes)),
	}
	var missing []models.RowError
	miss := func(field, message, value string) {
		missing = append(missing, models.NewRowError(row, field, models.ErrorKindReference, message, value))
	}

	id, err := r.product(ctx, store, rec.SelfGenProductID)
	switch {
	case errors.Is(err, ErrNotFound):
		miss("self_gen_product_id", fmt.Sprintf("product %q not found", rec.SelfGenProductID), rec.SelfGenProductID)
	case err != nil:
		return nil, lookupFailure(row, "self_gen_product_id", err)
	default:
		refs.ProductID = id
	}

	for i, a := range rec.Attributes {
		attr, err := r.attribute(ctx, store, a.Name)
		switch {
		case errors.Is(err, ErrNotFound):
			miss("attributes", fmt.Sprintf("attribute %q not found", a.Name), a.Name)
			continue
		case err != nil:
			return nil, lookupFailure(row, "attributes", err)
		}
		refs.Attributes[i] = attr.ID
		refs.ValueIDs[i] = make([]uuid.UUID, len(a.Values))
		for j, v := range a.Values {
			valueID, ok := attr.Values[v.Value]
			if !ok {
				miss("attribute_combination", fmt.Sprintf("attribute %q has no value %q", a.Name, v.Value), v.Value)
				continue
			}
			refs.ValueIDs[i][j] = valueID
		}
	}

	if len(missing) > 0 {
		return nil, rowFailure(missing...)
	}
	return refs, nil
}

// ResolveProductID returns the id of an existing product, reporting a REFERENCE error on field when it is missing.
func (r *ReferenceResolver) ResolveProductID(ctx context.Context, store CatalogStore, row int, field, selfGenID string) (uuid.UUID, error) {
	id, err := r.product(ctx, store, selfGenID)
	switch {
	case errors.Is(err, ErrNotFound):
		return uuid.Nil, rowFailure(models.NewRowError(row, field, models.ErrorKindReference,
			fmt.Sprintf("product %q not found", selfGenID), selfGenID))
	case err != nil:
		return uuid.Nil, lookupFailure(row, field, err)
	}
	return id, nil
}

// ResolveSKUID returns the id of the SKU with the given part number.
func (r *ReferenceResolver) ResolveSKUID(ctx context.Context, store CatalogStore, row int, field, partNumber string) (uuid.UUID, error) {
	sku, err := store.FindSKUByPartNumber(ctx, r.tenantID, partNumber)
	switch {
	case errors.Is(err, ErrNotFound):
		return uuid.Nil, rowFailure(models.NewRowError(row, field, models.ErrorKindReference,
			fmt.Sprintf("SKU %q not found", partNumber), partNumber))
	case err != nil:
		return uuid.Nil, lookupFailure(row, field, err)
	}
	return sku.ID, nil
}

func (r *ReferenceResolver) product(ctx context.Context, store CatalogStore, selfGenID string) (uuid.UUID, error) {
	if id, ok := r.products[selfGenID]; ok {
		return id, nil
	}
	p, err := store.FindProductBySelfGenID(ctx, r.tenantID, selfGenID)
	if err != nil {
		return uuid.Nil, err
	}
	r.products[selfGenID] = p.ID
	return p.ID, nil
}

func (r *ReferenceResolver) attribute(ctx context.Context, store CatalogStore, name string) (*resolvedAttribute, error) {
	if a, ok := r.attributes[name]; ok {
		return a, nil
	}
	attr, err := store.FindAttributeByName(ctx, r.tenantID, name)
	if err != nil {
		return nil, err
	}
	values, err := store.FindAttributeValues(ctx, r.tenantID, attr.ID)
	if err != nil {
		return nil, err
	}
	resolved := &resolvedAttribute{ID: attr.ID, Values: make(map[string]uuid.UUID, len(values))}
	for _, v := range values {
		resolved.Values[v.Name] = v.ID
	}
	r.attributes[name] = resolved
	return resolved, nil
}

func describeSignature(sig models.ReturnPolicySignature) string {
	if sig.ReturnType != models.ReturnTypeAllowed {
		return sig.ReturnType
	}
	fee := "none"
	if sig.ReturnFee.Valid {
		fee = sig.ReturnFee.Decimal.String()
	}
	feeType := ""
	if sig.ReturnFeeType != nil {
		feeType = *sig.ReturnFeeType
	}
	return fmt.Sprintf("%s/%s/%s", sig.ReturnType, feeType, fee)
}

// lookupFailure turns a lookup timeout into a row error; other failures stay infrastructure errors.
func lookupFailure(row int, field string, err error) error {
	if isTimeout(err) {
		return rowFailure(models.NewRowError(row, field, models.ErrorKindReference, "reference lookup timed out", ""))
	}
	return fmt.Errorf("resolve %s: %w", field, err)
}
