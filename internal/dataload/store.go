package dataload

import (
	"context"

	"github.com/google/uuid"

	"dataload-service/internal/models"
)

// CatalogStore is the tenant catalog persistence the pipeline writes through.
// Lookups return ErrNotFound when nothing matches. Every method scopes by tenant
// except FindShoppingCategoryByName, which reads the shared table.
type CatalogStore interface {
	// Transaction runs fn in a unit of work. Called on a store that is already
	// inside one, it opens a savepoint; an error from fn discards only fn's writes.
	Transaction(ctx context.Context, fn func(CatalogStore) error) error

	FindCategoryByPath(ctx context.Context, tenantID, path string) (*models.Category, error)
	FindCategoryByID(ctx context.Context, tenantID string, id uuid.UUID) (*models.Category, error)
	SaveCategory(ctx context.Context, category *models.Category) error

	FindBrandByName(ctx context.Context, tenantID, name string) (*models.Brand, error)
	SaveBrand(ctx context.Context, brand *models.Brand) error

	FindAttributeByName(ctx context.Context, tenantID, name string) (*models.Attribute, error)
	SaveAttribute(ctx context.Context, attribute *models.Attribute) error
	ReplaceAttributeValues(ctx context.Context, tenantID string, attributeID uuid.UUID, values []models.AttributeValue) error
	FindAttributeValues(ctx context.Context, tenantID string, attributeID uuid.UUID) ([]models.AttributeValue, error)

	FindReturnPolicyByID(ctx context.Context, tenantID string, id uuid.UUID) (*models.ReturnPolicy, error)
	FindReturnPolicyBySignature(ctx context.Context, tenantID string, sig models.ReturnPolicySignature) (*models.ReturnPolicy, error)
	SaveReturnPolicy(ctx context.Context, policy *models.ReturnPolicy) error

	FindShoppingCategoryByName(ctx context.Context, name string) (*models.ShoppingCategory, error)

	FindProductBySelfGenID(ctx context.Context, tenantID, selfGenID string) (*models.Product, error)
	SaveProduct(ctx context.Context, product *models.Product) error
	ReplaceProductChildren(ctx context.Context, tenantID string, productID uuid.UUID, specs []models.ProductSpecification, images []models.ProductImage) error

	FindSKUByVariantKey(ctx context.Context, tenantID string, productID uuid.UUID, variantKey string) (*models.SKU, error)
	FindSKUByPartNumber(ctx context.Context, tenantID, partNumber string) (*models.SKU, error)
	SaveSKU(ctx context.Context, sku *models.SKU) error
	ReplaceSKUVariants(ctx context.Context, tenantID string, skuID uuid.UUID, variants []models.SKUVariant) error

	FindPrice(ctx context.Context, tenantID, targetType string, targetID uuid.UUID) (*models.Price, error)
	SavePrice(ctx context.Context, price *models.Price) error
}
