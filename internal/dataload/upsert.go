package dataload

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"dataload-service/internal/models"
)

const (
	specWarehouseLocation = "Warehouse_Location"
	specStoreLocation     = "Store_Location"
)

// Engine inserts or updates one decoded record per call by its natural key.
type Engine struct {
	tenantID  string
	actor     string
	now       func() time.Time
	hierarchy *HierarchyResolver
	refs      *ReferenceResolver
}

// NewEngine builds the per-job upsert engine. actor is stamped into audit columns the row leaves empty.
func NewEngine(tenantID, actor string, now func() time.Time) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{
		tenantID:  tenantID,
		actor:     actor,
		now:       now,
		hierarchy: NewHierarchyResolver(tenantID),
		refs:      NewReferenceResolver(tenantID),
	}
}

// Commit is called after the row's unit of work succeeded.
func (e *Engine) Commit() { e.hierarchy.Commit() }

// Discard is called after the row's unit of work was rolled back.
func (e *Engine) Discard() { e.hierarchy.Discard() }

// Apply writes one record. A *RowFailure means the row is rejected; any other
// error comes from the store.
func (e *Engine) Apply(ctx context.Context, store CatalogStore, row int, rec Record) error {
	switch r := rec.(type) {
	case *CategoryRecord:
		_, err := e.hierarchy.Apply(ctx, store, r)
		return err
	case *BrandRecord:
		return e.upsertBrand(ctx, store, r)
	case *AttributeRecord:
		return e.upsertAttribute(ctx, store, r)
	case *ReturnPolicyRecord:
		return e.upsertReturnPolicy(ctx, store, r)
	case *ProductRecord:
		return e.upsertProduct(ctx, store, row, r)
	case *ItemRecord:
		return e.upsertItem(ctx, store, row, r)
	case *PriceRecord:
		return e.upsertPrice(ctx, store, row, r)
	case *MetaTagRecord:
		return e.applyMetaTag(ctx, store, row, r)
	}
	return fmt.Errorf("%w: record %T", ErrUnknownLoadType, rec)
}

func (e *Engine) stampInsert(a *models.Audit, in AuditFields) {
	now := e.now().UTC()
	a.CreatedBy = in.CreatedBy
	if a.CreatedBy == nil && e.actor != "" {
		actor := e.actor
		a.CreatedBy = &actor
	}
	a.CreatedDate = in.CreatedDate
	if a.CreatedDate == nil {
		a.CreatedDate = &now
	}
	a.UpdatedBy = in.UpdatedBy
	if a.UpdatedBy == nil {
		a.UpdatedBy = a.CreatedBy
	}
	a.UpdatedDate = in.UpdatedDate
	if a.UpdatedDate == nil {
		a.UpdatedDate = a.CreatedDate
	}
}

// stampUpdate keeps created_* unless the row supplies them.
func (e *Engine) stampUpdate(a *models.Audit, in AuditFields) {
	now := e.now().UTC()
	if in.CreatedBy != nil {
		a.CreatedBy = in.CreatedBy
	}
	if in.CreatedDate != nil {
		a.CreatedDate = in.CreatedDate
	}
	a.UpdatedBy = in.UpdatedBy
	if a.UpdatedBy == nil && e.actor != "" {
		actor := e.actor
		a.UpdatedBy = &actor
	}
	a.UpdatedDate = in.UpdatedDate
	if a.UpdatedDate == nil {
		a.UpdatedDate = &now
	}
}

func (e *Engine) upsertBrand(ctx context.Context, store CatalogStore, r *BrandRecord) error {
	brand, err := store.FindBrandByName(ctx, e.tenantID, r.Name)
	switch {
	case errors.Is(err, ErrNotFound):
		brand = &models.Brand{TenantID: e.tenantID, Name: r.Name}
		e.stampInsert(&brand.Audit, r.AuditFields)
	case err != nil:
		return fmt.Errorf("lookup brand %q: %w", r.Name, err)
	default:
		e.stampUpdate(&brand.Audit, r.AuditFields)
	}

	brand.Logo = r.Logo
	if r.SupplierID != nil {
		brand.SupplierID = r.SupplierID
	}
	if r.Active != nil {
		brand.Active = r.Active
	}
	return store.SaveBrand(ctx, brand)
}

func (e *Engine) upsertAttribute(ctx context.Context, store CatalogStore, r *AttributeRecord) error {
	attr, err := store.FindAttributeByName(ctx, e.tenantID, r.Name)
	switch {
	case errors.Is(err, ErrNotFound):
		attr = &models.Attribute{TenantID: e.tenantID, Name: r.Name}
		e.stampInsert(&attr.Audit, r.AuditFields)
	case err != nil:
		return fmt.Errorf("lookup attribute %q: %w", r.Name, err)
	default:
		e.stampUpdate(&attr.Audit, r.AuditFields)
	}

	attr.IsColor = r.IsColor
	if r.Active != nil {
		attr.Active = r.Active
	}
	attr.Values = nil
	if err := store.SaveAttribute(ctx, attr); err != nil {
		return err
	}

	values := make([]models.AttributeValue, len(r.Values))
	for i, v := range r.Values {
		values[i] = models.AttributeValue{
			TenantID:    e.tenantID,
			AttributeID: attr.ID,
			Name:        v.Name,
			Value:       v.Value,
			ImageURL:    v.ImageURL,
			Active:      v.Active,
			Position:    i,
		}
	}
	return store.ReplaceAttributeValues(ctx, e.tenantID, attr.ID, values)
}

func (e *Engine) upsertReturnPolicy(ctx context.Context, store CatalogStore, r *ReturnPolicyRecord) error {
	var policy *models.ReturnPolicy
	if r.ID != nil {
		found, err := store.FindReturnPolicyByID(ctx, e.tenantID, *r.ID)
		switch {
		case errors.Is(err, ErrNotFound):
		case err != nil:
			return fmt.Errorf("lookup return policy %s: %w", *r.ID, err)
		default:
			policy = found
		}
	}

	if policy == nil {
		policy = &models.ReturnPolicy{TenantID: e.tenantID}
		if r.ID != nil {
			policy.ID = *r.ID
		}
		e.stampInsert(&policy.Audit, r.AuditFields)
	} else {
		e.stampUpdate(&policy.Audit, r.AuditFields)
	}

	policy.ReturnType = r.ReturnType
	policy.PolicyName = r.PolicyName
	policy.ReturnDays = r.ReturnDays
	policy.ReturnFeeType = r.ReturnFeeType
	policy.ReturnFee = r.ReturnFee
	return store.SaveReturnPolicy(ctx, policy)
}

func (e *Engine) upsertProduct(ctx context.Context, store CatalogStore, row int, r *ProductRecord) error {
	refs, err := e.refs.ResolveProduct(ctx, store, row, r)
	if err != nil {
		return err
	}

	product, err := store.FindProductBySelfGenID(ctx, e.tenantID, r.SelfGenProductID)
	switch {
	case errors.Is(err, ErrNotFound):
		product = &models.Product{TenantID: e.tenantID, SelfGenProductID: r.SelfGenProductID}
		e.stampInsert(&product.Audit, AuditFields{})
	case err != nil:
		return fmt.Errorf("lookup product %q: %w", r.SelfGenProductID, err)
	default:
		e.stampUpdate(&product.Audit, AuditFields{})
	}
	if product.Barcode == "" {
		product.Barcode = Slugify(r.SelfGenProductID)
	}

	product.BusinessDetailsID = r.BusinessDetailsID
	product.Name = r.Name
	product.Description = r.Description
	product.URL = r.URL
	product.BrandID = refs.BrandID
	product.CategoryID = refs.CategoryID
	product.ShoppingCategoryID = refs.ShoppingCategoryID
	product.ReturnPolicyID = refs.ReturnPolicyID
	product.ReturnType = r.ReturnType
	product.ReturnFeeType = r.ReturnFeeType
	product.ReturnFee = r.ReturnFee
	product.Price = r.Price
	product.SalePrice = r.SalePrice
	product.CostPrice = r.CostPrice
	product.Quantity = r.Quantity
	product.PackageLength = r.PackageLength
	product.PackageWidth = r.PackageWidth
	product.PackageHeight = r.PackageHeight
	product.PackageWeight = r.PackageWeight
	product.SizeUnit = r.SizeUnit
	product.WeightUnit = r.WeightUnit
	product.Active = r.Active
	product.IsChildItem = r.IsChildItem
	product.MainImageURL = r.MainImageURL()
	product.SizeChartImg = r.SizeChartImg
	product.VideoURL = r.VideoURL
	product.VideoThumbnailURL = r.VideoThumbnailURL
	product.Ean = r.Ean
	product.Isbn = r.Isbn
	product.Upc = r.Upc
	product.Mpn = r.Mpn
	product.Keywords = r.Keywords
	product.SeoTitle = r.SeoTitle
	product.SeoDescription = r.SeoDescription
	product.Specifications = nil
	product.Images = nil

	if err := store.SaveProduct(ctx, product); err != nil {
		return err
	}
	specs, images := e.productChildren(product.ID, r)
	return store.ReplaceProductChildren(ctx, e.tenantID, product.ID, specs, images)
}

func (e *Engine) productChildren(productID uuid.UUID, r *ProductRecord) ([]models.ProductSpecification, []models.ProductImage) {
	var specs []models.ProductSpecification
	addSpec := func(name, value string) {
		specs = append(specs, models.ProductSpecification{
			TenantID:  e.tenantID,
			ProductID: productID,
			Name:      name,
			Value:     value,
			Active:    models.StatusActive,
			Position:  len(specs),
		})
	}
	if r.WarehouseLocation != nil {
		addSpec(specWarehouseLocation, *r.WarehouseLocation)
	}
	if r.StoreLocation != nil {
		addSpec(specStoreLocation, *r.StoreLocation)
	}
	for _, s := range r.Specifications {
		addSpec(s.Name, s.Value)
	}

	images := make([]models.ProductImage, len(r.Images))
	for i, img := range r.Images {
		images[i] = models.ProductImage{
			TenantID:  e.tenantID,
			ProductID: productID,
			URL:       img.URL,
			IsMain:    img.IsMain,
			Active:    models.StatusActive,
			Position:  i,
		}
	}
	return specs, images
}

// upsertItem writes one SKU per variant, matched by the product and the variant's attribute values.
// SKUs of the product that the row does not list are left alone.
func (e *Engine) upsertItem(ctx context.Context, store CatalogStore, row int, r *ItemRecord) error {
	refs, err := e.refs.ResolveItem(ctx, store, row, r)
	if err != nil {
		return err
	}

	for _, in := range r.SKUs {
		sku, err := store.FindSKUByVariantKey(ctx, e.tenantID, refs.ProductID, in.VariantKey)
		switch {
		case errors.Is(err, ErrNotFound):
			sku = &models.SKU{TenantID: e.tenantID, ProductID: refs.ProductID, VariantKey: in.VariantKey}
			e.stampInsert(&sku.Audit, r.AuditFields)
		case err != nil:
			return fmt.Errorf("lookup SKU %q: %w", in.PartNumber, err)
		default:
			e.stampUpdate(&sku.Audit, r.AuditFields)
		}

		sku.PartNumber = in.PartNumber
		sku.Price = in.Price
		sku.Quantity = in.Quantity
		sku.Active = in.Active
		sku.IsDefault = in.IsDefault
		sku.OrderLimit = in.OrderLimit
		sku.PackageLength = in.PackageLength
		sku.PackageWidth = in.PackageWidth
		sku.PackageHeight = in.PackageHeight
		sku.PackageWeight = in.PackageWeight
		sku.Variants = nil
		if err := store.SaveSKU(ctx, sku); err != nil {
			return err
		}

		variants := make([]models.SKUVariant, len(r.Attributes))
		for i := range r.Attributes {
			variants[i] = models.SKUVariant{
				TenantID:         e.tenantID,
				SKUID:            sku.ID,
				AttributeID:      refs.Attributes[i],
				AttributeValueID: refs.ValueIDs[i][in.Variant.Index[i]],
				Position:         i,
			}
		}
		if err := store.ReplaceSKUVariants(ctx, e.tenantID, sku.ID, variants); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) upsertPrice(ctx context.Context, store CatalogStore, row int, r *PriceRecord) error {
	var (
		targetID uuid.UUID
		err      error
	)
	if r.PriceType == models.PriceTargetSKU {
		targetID, err = e.refs.ResolveSKUID(ctx, store, row, "sku_id", r.Target())
	} else {
		targetID, err = e.refs.ResolveProductID(ctx, store, row, "product_id", r.Target())
	}
	if err != nil {
		return err
	}

	price, err := store.FindPrice(ctx, e.tenantID, r.PriceType, targetID)
	switch {
	case errors.Is(err, ErrNotFound):
		price = &models.Price{TenantID: e.tenantID, TargetType: r.PriceType, TargetID: targetID}
		e.stampInsert(&price.Audit, r.AuditFields)
	case err != nil:
		return fmt.Errorf("lookup price of %s %q: %w", r.PriceType, r.Target(), err)
	default:
		e.stampUpdate(&price.Audit, r.AuditFields)
	}

	price.Price = r.Price
	price.DiscountPrice = r.DiscountPrice
	price.CostPrice = r.CostPrice
	price.Currency = r.Currency
	return store.SavePrice(ctx, price)
}

// applyMetaTag overwrites the SEO fields the row supplies; empty cells keep the stored value.
func (e *Engine) applyMetaTag(ctx context.Context, store CatalogStore, row int, r *MetaTagRecord) error {
	if r.MetaType == MetaTypeCategory {
		category, err := store.FindCategoryByPath(ctx, e.tenantID, r.TargetIdentifier)
		switch {
		case errors.Is(err, ErrNotFound):
			return rowFailure(models.NewRowError(row, "target_identifier", models.ErrorKindReference,
				fmt.Sprintf("category %q not found", r.TargetIdentifier), r.TargetIdentifier))
		case err != nil:
			return lookupFailure(row, "target_identifier", err)
		}
		if r.MetaTitle != nil {
			category.SeoTitle = r.MetaTitle
		}
		if r.MetaDescription != nil {
			category.SeoDescription = r.MetaDescription
		}
		if r.MetaKeywords != nil {
			category.SeoKeywords = r.MetaKeywords
		}
		return store.SaveCategory(ctx, category)
	}

	product, err := store.FindProductBySelfGenID(ctx, e.tenantID, r.TargetIdentifier)
	switch {
	case errors.Is(err, ErrNotFound):
		return rowFailure(models.NewRowError(row, "target_identifier", models.ErrorKindReference,
			fmt.Sprintf("product %q not found", r.TargetIdentifier), r.TargetIdentifier))
	case err != nil:
		return lookupFailure(row, "target_identifier", err)
	}
	if r.BusinessDetailsID != nil && *r.BusinessDetailsID != product.BusinessDetailsID {
		return rowFailure(models.NewRowError(row, "business_details_id", models.ErrorKindReference,
			fmt.Sprintf("product %q belongs to another business", r.TargetIdentifier), *r.BusinessDetailsID))
	}
	e.stampUpdate(&product.Audit, AuditFields{})
	if r.MetaTitle != nil {
		product.SeoTitle = r.MetaTitle
	}
	if r.MetaDescription != nil {
		product.SeoDescription = r.MetaDescription
	}
	if r.MetaKeywords != nil {
		product.Keywords = r.Keywords
	}
	product.Specifications = nil
	product.Images = nil
	return store.SaveProduct(ctx, product)
}
