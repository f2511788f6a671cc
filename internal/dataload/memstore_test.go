package dataload

import (
	"context"
	"maps"
	"slices"

	"github.com/google/uuid"

	"dataload-service/internal/models"
)

// memStore is an in-memory CatalogStore. Transactions snapshot the maps and
// restore them when fn fails, which mirrors savepoint semantics closely enough.
type memStore struct {
	categories map[uuid.UUID]models.Category
	brands     map[uuid.UUID]models.Brand
	attributes map[uuid.UUID]models.Attribute
	attrValues map[uuid.UUID][]models.AttributeValue
	policies   map[uuid.UUID]models.ReturnPolicy
	shopping   map[string]models.ShoppingCategory
	products   map[uuid.UUID]models.Product
	specs      map[uuid.UUID][]models.ProductSpecification
	images     map[uuid.UUID][]models.ProductImage
	skus       map[uuid.UUID]models.SKU
	variants   map[uuid.UUID][]models.SKUVariant
	prices     map[uuid.UUID]models.Price

	// failOn, when set, can reject a write. op is e.g. "SaveBrand"; key is the natural key.
	failOn func(op, key string) error
	// onWrite, when set, runs before every write with the caller's context.
	onWrite func(ctx context.Context, op, key string) error

	transactions int
	lookups      int
}

func newMemStore() *memStore {
	return &memStore{
		categories: make(map[uuid.UUID]models.Category),
		brands:     make(map[uuid.UUID]models.Brand),
		attributes: make(map[uuid.UUID]models.Attribute),
		attrValues: make(map[uuid.UUID][]models.AttributeValue),
		policies:   make(map[uuid.UUID]models.ReturnPolicy),
		shopping:   make(map[string]models.ShoppingCategory),
		products:   make(map[uuid.UUID]models.Product),
		specs:      make(map[uuid.UUID][]models.ProductSpecification),
		images:     make(map[uuid.UUID][]models.ProductImage),
		skus:       make(map[uuid.UUID]models.SKU),
		variants:   make(map[uuid.UUID][]models.SKUVariant),
		prices:     make(map[uuid.UUID]models.Price),
	}
}

type memSnapshot struct {
	categories map[uuid.UUID]models.Category
	brands     map[uuid.UUID]models.Brand
	attributes map[uuid.UUID]models.Attribute
	attrValues map[uuid.UUID][]models.AttributeValue
	policies   map[uuid.UUID]models.ReturnPolicy
	products   map[uuid.UUID]models.Product
	specs      map[uuid.UUID][]models.ProductSpecification
	images     map[uuid.UUID][]models.ProductImage
	skus       map[uuid.UUID]models.SKU
	variants   map[uuid.UUID][]models.SKUVariant
	prices     map[uuid.UUID]models.Price
}

func (s *memStore) snapshot() memSnapshot {
	return memSnapshot{
		categories: maps.Clone(s.categories),
		brands:     maps.Clone(s.brands),
		attributes: maps.Clone(s.attributes),
		attrValues: maps.Clone(s.attrValues),
		policies:   maps.Clone(s.policies),
		products:   maps.Clone(s.products),
		specs:      maps.Clone(s.specs),
		images:     maps.Clone(s.images),
		skus:       maps.Clone(s.skus),
		variants:   maps.Clone(s.variants),
		prices:     maps.Clone(s.prices),
	}
}

func (s *memStore) restore(snap memSnapshot) {
	s.categories = snap.categories
	s.brands = snap.brands
	s.attributes = snap.attributes
	s.attrValues = snap.attrValues
	s.policies = snap.policies
	s.products = snap.products
	s.specs = snap.specs
	s.images = snap.images
	s.skus = snap.skus
	s.variants = snap.variants
	s.prices = snap.prices
}

func (s *memStore) fail(ctx context.Context, op, key string) error {
	if s.onWrite != nil {
		if err := s.onWrite(ctx, op, key); err != nil {
			return err
		}
	}
	if s.failOn == nil {
		return nil
	}
	return s.failOn(op, key)
}

func (s *memStore) Transaction(ctx context.Context, fn func(CatalogStore) error) error {
	s.transactions++
	snap := s.snapshot()
	if err := fn(s); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

func (s *memStore) FindCategoryByPath(ctx context.Context, tenantID, path string) (*models.Category, error) {
	s.lookups++
	for _, c := range s.categories {
		if c.TenantID == tenantID && c.Path == path {
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

func (s *memStore) FindCategoryByID(ctx context.Context, tenantID string, id uuid.UUID) (*models.Category, error) {
	s.lookups++
	c, ok := s.categories[id]
	if !ok || c.TenantID != tenantID {
		return nil, ErrNotFound
	}
	return &c, nil
}

func (s *memStore) SaveCategory(ctx context.Context, category *models.Category) error {
	if err := s.fail(ctx, "SaveCategory", category.Path); err != nil {
		return err
	}
	if category.ID == uuid.Nil {
		category.ID = uuid.New()
	}
	s.categories[category.ID] = *category
	return nil
}

func (s *memStore) FindBrandByName(ctx context.Context, tenantID, name string) (*models.Brand, error) {
	s.lookups++
	for _, b := range s.brands {
		if b.TenantID == tenantID && b.Name == name {
			return &b, nil
		}
	}
	return nil, ErrNotFound
}

func (s *memStore) SaveBrand(ctx context.Context, brand *models.Brand) error {
	if err := s.fail(ctx, "SaveBrand", brand.Name); err != nil {
		return err
	}
	if brand.ID == uuid.Nil {
		brand.ID = uuid.New()
	}
	s.brands[brand.ID] = *brand
	return nil
}

func (s *memStore) FindAttributeByName(ctx context.Context, tenantID, name string) (*models.Attribute, error) {
	s.lookups++
	for _, a := range s.attributes {
		if a.TenantID == tenantID && a.Name == name {
			return &a, nil
		}
	}
	return nil, ErrNotFound
}

func (s *memStore) SaveAttribute(ctx context.Context, attribute *models.Attribute) error {
	if err := s.fail(ctx, "SaveAttribute", attribute.Name); err != nil {
		return err
	}
	if attribute.ID == uuid.Nil {
		attribute.ID = uuid.New()
	}
	s.attributes[attribute.ID] = *attribute
	return nil
}

func (s *memStore) ReplaceAttributeValues(ctx context.Context, tenantID string, attributeID uuid.UUID, values []models.AttributeValue) error {
	if err := s.fail(ctx, "ReplaceAttributeValues", s.attributes[attributeID].Name); err != nil {
		return err
	}
	values = slices.Clone(values)
	for i := range values {
		if values[i].ID == uuid.Nil {
			values[i].ID = uuid.New()
		}
	}
	s.attrValues[attributeID] = values
	return nil
}

func (s *memStore) FindAttributeValues(ctx context.Context, tenantID string, attributeID uuid.UUID) ([]models.AttributeValue, error) {
	s.lookups++
	var out []models.AttributeValue
	for _, v := range s.attrValues[attributeID] {
		if v.TenantID == tenantID {
			out = append(out, v)
		}
	}
	return out, nil
}

func (s *memStore) FindReturnPolicyByID(ctx context.Context, tenantID string, id uuid.UUID) (*models.ReturnPolicy, error) {
	s.lookups++
	p, ok := s.policies[id]
	if !ok || p.TenantID != tenantID {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (s *memStore) FindReturnPolicyBySignature(ctx context.Context, tenantID string, sig models.ReturnPolicySignature) (*models.ReturnPolicy, error) {
	s.lookups++
	for _, p := range s.policies {
		if p.TenantID == tenantID && p.Signature().Matches(sig) {
			return &p, nil
		}
	}
	return nil, ErrNotFound
}

func (s *memStore) SaveReturnPolicy(ctx context.Context, policy *models.ReturnPolicy) error {
	if err := s.fail(ctx, "SaveReturnPolicy", policy.ID.String()); err != nil {
		return err
	}
	if policy.ID == uuid.Nil {
		policy.ID = uuid.New()
	}
	s.policies[policy.ID] = *policy
	return nil
}

func (s *memStore) FindShoppingCategoryByName(ctx context.Context, name string) (*models.ShoppingCategory, error) {
	s.lookups++
	sc, ok := s.shopping[name]
	if !ok {
		return nil, ErrNotFound
	}
	return &sc, nil
}

func (s *memStore) FindProductBySelfGenID(ctx context.Context, tenantID, selfGenID string) (*models.Product, error) {
	s.lookups++
	for _, p := range s.products {
		if p.TenantID == tenantID && p.SelfGenProductID == selfGenID {
			return &p, nil
		}
	}
	return nil, ErrNotFound
}

func (s *memStore) SaveProduct(ctx context.Context, product *models.Product) error {
	if err := s.fail(ctx, "SaveProduct", product.SelfGenProductID); err != nil {
		return err
	}
	if product.ID == uuid.Nil {
		product.ID = uuid.New()
	}
	s.products[product.ID] = *product
	return nil
}

func (s *memStore) ReplaceProductChildren(ctx context.Context, tenantID string, productID uuid.UUID, specs []models.ProductSpecification, images []models.ProductImage) error {
	if err := s.fail(ctx, "ReplaceProductChildren", s.products[productID].SelfGenProductID); err != nil {
		return err
	}
	s.specs[productID] = slices.Clone(specs)
	s.images[productID] = slices.Clone(images)
	return nil
}

func (s *memStore) FindSKUByVariantKey(ctx context.Context, tenantID string, productID uuid.UUID, variantKey string) (*models.SKU, error) {
	s.lookups++
	for _, k := range s.skus {
		if k.TenantID == tenantID && k.ProductID == productID && k.VariantKey == variantKey {
			return &k, nil
		}
	}
	return nil, ErrNotFound
}

func (s *memStore) FindSKUByPartNumber(ctx context.Context, tenantID, partNumber string) (*models.SKU, error) {
	s.lookups++
	for _, k := range s.skus {
		if k.TenantID == tenantID && k.PartNumber == partNumber {
			return &k, nil
		}
	}
	return nil, ErrNotFound
}

func (s *memStore) SaveSKU(ctx context.Context, sku *models.SKU) error {
	if err := s.fail(ctx, "SaveSKU", sku.PartNumber); err != nil {
		return err
	}
	if sku.ID == uuid.Nil {
		sku.ID = uuid.New()
	}
	s.skus[sku.ID] = *sku
	return nil
}

func (s *memStore) ReplaceSKUVariants(ctx context.Context, tenantID string, skuID uuid.UUID, variants []models.SKUVariant) error {
	if err := s.fail(ctx, "ReplaceSKUVariants", s.skus[skuID].PartNumber); err != nil {
		return err
	}
	s.variants[skuID] = slices.Clone(variants)
	return nil
}

func (s *memStore) FindPrice(ctx context.Context, tenantID, targetType string, targetID uuid.UUID) (*models.Price, error) {
	s.lookups++
	for _, p := range s.prices {
		if p.TenantID == tenantID && p.TargetType == targetType && p.TargetID == targetID {
			return &p, nil
		}
	}
	return nil, ErrNotFound
}

func (s *memStore) SavePrice(ctx context.Context, price *models.Price) error {
	if err := s.fail(ctx, "SavePrice", price.TargetType+":"+price.TargetID.String()); err != nil {
		return err
	}
	if price.ID == uuid.Nil {
		price.ID = uuid.New()
	}
	s.prices[price.ID] = *price
	return nil
}

// helpers for assertions

func (s *memStore) categoryByPath(path string) (models.Category, bool) {
	for _, c := range s.categories {
		if c.Path == path {
			return c, true
		}
	}
	return models.Category{}, false
}

func (s *memStore) productBySelfGenID(id string) (models.Product, bool) {
	for _, p := range s.products {
		if p.SelfGenProductID == id {
			return p, true
		}
	}
	return models.Product{}, false
}

func (s *memStore) attributeByName(name string) (models.Attribute, bool) {
	for _, a := range s.attributes {
		if a.Name == name {
			return a, true
		}
	}
	return models.Attribute{}, false
}

func (s *memStore) skuByPartNumber(pn string) (models.SKU, bool) {
	for _, k := range s.skus {
		if k.PartNumber == pn {
			return k, true
		}
	}
	return models.SKU{}, false
}

func (s *memStore) skusOf(productID uuid.UUID) []models.SKU {
	var out []models.SKU
	for _, k := range s.skus {
		if k.ProductID == productID {
			out = append(out, k)
		}
	}
	return out
}

var _ CatalogStore = (*memStore)(nil)
