package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Tesseract-Nexus/go-shared/cache"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"dataload-service/internal/dataload"
	"dataload-service/internal/models"
)

// ShoppingCategoryCacheTTL bounds how stale a cached global shopping category can be.
const ShoppingCategoryCacheTTL = 30 * time.Minute

// CatalogRepository is the gorm backed dataload.CatalogStore. Every query is
// scoped by tenant_id except shopping categories, which are global.
type CatalogRepository struct {
	db               *gorm.DB
	cache            *cache.CacheLayer
	statementTimeout time.Duration
	inTx             bool
	depth            int
}

// NewCatalogRepository builds the store. redisClient may be nil, in which case
// shopping categories are read from the database every time.
func NewCatalogRepository(db *gorm.DB, redisClient *redis.Client, statementTimeout time.Duration) *CatalogRepository {
	repo := &CatalogRepository{db: db, statementTimeout: statementTimeout}
	if redisClient != nil {
		repo.cache = cache.NewCacheLayerFromClient(redisClient, cache.CacheConfig{
			L1Enabled:  true,
			L1MaxItems: 1000,
			L1TTL:      time.Minute,
			DefaultTTL: ShoppingCategoryCacheTTL,
			KeyPrefix:  "tesseract:dataload:",
		})
	}
	return repo
}

var _ dataload.CatalogStore = (*CatalogRepository)(nil)

func (r *CatalogRepository) withTx(tx *gorm.DB, depth int) *CatalogRepository {
	return &CatalogRepository{
		db:               tx,
		cache:            r.cache,
		statementTimeout: r.statementTimeout,
		inTx:             true,
		depth:            depth,
	}
}

// Transaction opens a database transaction, or a savepoint when already inside one.
// Statement and lock waits are bounded server-side so a slow row fails on its
// own statement instead of cancelling the connection.
func (r *CatalogRepository) Transaction(ctx context.Context, fn func(dataload.CatalogStore) error) error {
	if !r.inTx {
		return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if r.statementTimeout > 0 {
				ms := r.statementTimeout.Milliseconds()
				for _, setting := range []string{"statement_timeout", "lock_timeout"} {
					if err := tx.Exec(fmt.Sprintf("SET LOCAL %s = %d", setting, ms)).Error; err != nil {
						return err
					}
				}
			}
			return fn(r.withTx(tx, 0))
		})
	}

	// Raw statements: the dialector's SavePoint/RollbackTo discard the Exec error.
	name := fmt.Sprintf("dataload_sp_%d", r.depth+1)
	if err := r.db.WithContext(ctx).Exec("SAVEPOINT " + name).Error; err != nil {
		return err
	}
	// Release and rollback must reach the server even when ctx is done.
	cleanup := r.db.WithContext(context.WithoutCancel(ctx))
	err := fn(r.withTx(r.db, r.depth+1))
	if err == nil {
		if err = cleanup.Exec("RELEASE SAVEPOINT " + name).Error; err == nil {
			return nil
		}
	}
	if rbErr := cleanup.Exec("ROLLBACK TO SAVEPOINT " + name).Error; rbErr != nil {
		return dataload.Fatal("failed to roll back row", rbErr)
	}
	return err
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return dataload.ErrNotFound
	}
	return err
}

// --- Categories ---

func (r *CatalogRepository) FindCategoryByPath(ctx context.Context, tenantID, path string) (*models.Category, error) {
	var category models.Category
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND path = ?", tenantID, path).
		First(&category).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &category, nil
}

func (r *CatalogRepository) FindCategoryByID(ctx context.Context, tenantID string, id uuid.UUID) (*models.Category, error) {
	var category models.Category
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&category).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &category, nil
}

func (r *CatalogRepository) SaveCategory(ctx context.Context, category *models.Category) error {
	return r.save(ctx, category.TenantID, &category.ID, category)
}

// --- Brands ---

func (r *CatalogRepository) FindBrandByName(ctx context.Context, tenantID, name string) (*models.Brand, error) {
	var brand models.Brand
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND name = ?", tenantID, name).
		First(&brand).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &brand, nil
}

func (r *CatalogRepository) SaveBrand(ctx context.Context, brand *models.Brand) error {
	return r.save(ctx, brand.TenantID, &brand.ID, brand)
}

// --- Attributes ---

func (r *CatalogRepository) FindAttributeByName(ctx context.Context, tenantID, name string) (*models.Attribute, error) {
	var attribute models.Attribute
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND name = ?", tenantID, name).
		First(&attribute).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &attribute, nil
}

func (r *CatalogRepository) SaveAttribute(ctx context.Context, attribute *models.Attribute) error {
	return r.save(ctx, attribute.TenantID, &attribute.ID, attribute)
}

// ReplaceAttributeValues deletes the attribute's values and inserts the given set.
func (r *CatalogRepository) ReplaceAttributeValues(ctx context.Context, tenantID string, attributeID uuid.UUID, values []models.AttributeValue) error {
	db := r.db.WithContext(ctx)
	if err := db.Where("tenant_id = ? AND attribute_id = ?", tenantID, attributeID).
		Delete(&models.AttributeValue{}).Error; err != nil {
		return err
	}
	if len(values) == 0 {
		return nil
	}
	for i := range values {
		values[i].ID = uuid.New()
	}
	return db.Create(&values).Error
}

func (r *CatalogRepository) FindAttributeValues(ctx context.Context, tenantID string, attributeID uuid.UUID) ([]models.AttributeValue, error) {
	var values []models.AttributeValue
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND attribute_id = ?", tenantID, attributeID).
		Order("position ASC").
		Find(&values).Error
	return values, err
}

// --- Return policies ---

func (r *CatalogRepository) FindReturnPolicyByID(ctx context.Context, tenantID string, id uuid.UUID) (*models.ReturnPolicy, error) {
	var policy models.ReturnPolicy
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&policy).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &policy, nil
}

// FindReturnPolicyBySignature returns the oldest policy matching type, fee type and fee amount exactly.
func (r *CatalogRepository) FindReturnPolicyBySignature(ctx context.Context, tenantID string, sig models.ReturnPolicySignature) (*models.ReturnPolicy, error) {
	query := r.db.WithContext(ctx).
		Where("tenant_id = ? AND return_type = ?", tenantID, sig.ReturnType)
	if sig.ReturnFeeType != nil {
		query = query.Where("return_fee_type = ?", *sig.ReturnFeeType)
	} else {
		query = query.Where("return_fee_type IS NULL")
	}
	if sig.ReturnFee.Valid {
		query = query.Where("return_fee = ?", sig.ReturnFee.Decimal)
	} else {
		query = query.Where("return_fee IS NULL")
	}

	var policy models.ReturnPolicy
	if err := query.Order("created_at ASC").First(&policy).Error; err != nil {
		return nil, notFound(err)
	}
	return &policy, nil
}

func (r *CatalogRepository) SaveReturnPolicy(ctx context.Context, policy *models.ReturnPolicy) error {
	return r.save(ctx, policy.TenantID, &policy.ID, policy)
}

// --- Shopping categories ---

// FindShoppingCategoryByName reads the global shopping category table.
func (r *CatalogRepository) FindShoppingCategoryByName(ctx context.Context, name string) (*models.ShoppingCategory, error) {
	load := func() (*models.ShoppingCategory, error) {
		var sc models.ShoppingCategory
		if err := r.db.WithContext(ctx).Where("name = ?", name).First(&sc).Error; err != nil {
			return nil, err
		}
		return &sc, nil
	}

	if r.cache == nil {
		sc, err := load()
		if err != nil {
			return nil, notFound(err)
		}
		return sc, nil
	}

	var sc models.ShoppingCategory
	missing := false
	err := r.cache.GetOrSetJSON(ctx, "shopping_category:"+name, &sc, ShoppingCategoryCacheTTL, func() (any, error) {
		found, err := load()
		if errors.Is(err, gorm.ErrRecordNotFound) {
			missing = true
		}
		return found, err
	})
	if missing {
		return nil, dataload.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sc, nil
}

// --- Products ---

func (r *CatalogRepository) FindProductBySelfGenID(ctx context.Context, tenantID, selfGenID string) (*models.Product, error) {
	var product models.Product
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND self_gen_product_id = ?", tenantID, selfGenID).
		First(&product).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &product, nil
}

func (r *CatalogRepository) SaveProduct(ctx context.Context, product *models.Product) error {
	return r.save(ctx, product.TenantID, &product.ID, product)
}

// ReplaceProductChildren swaps the product's specifications and images for the given sets.
func (r *CatalogRepository) ReplaceProductChildren(ctx context.Context, tenantID string, productID uuid.UUID, specs []models.ProductSpecification, images []models.ProductImage) error {
	db := r.db.WithContext(ctx)
	if err := db.Where("tenant_id = ? AND product_id = ?", tenantID, productID).
		Delete(&models.ProductSpecification{}).Error; err != nil {
		return err
	}
	if err := db.Where("tenant_id = ? AND product_id = ?", tenantID, productID).
		Delete(&models.ProductImage{}).Error; err != nil {
		return err
	}
	if len(specs) > 0 {
		for i := range specs {
			specs[i].ID = uuid.New()
		}
		if err := db.Create(&specs).Error; err != nil {
			return err
		}
	}
	if len(images) > 0 {
		for i := range images {
			images[i].ID = uuid.New()
		}
		if err := db.Create(&images).Error; err != nil {
			return err
		}
	}
	return nil
}

// --- SKUs ---

func (r *CatalogRepository) FindSKUByVariantKey(ctx context.Context, tenantID string, productID uuid.UUID, variantKey string) (*models.SKU, error) {
	var sku models.SKU
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND product_id = ? AND variant_key = ?", tenantID, productID, variantKey).
		First(&sku).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &sku, nil
}

func (r *CatalogRepository) FindSKUByPartNumber(ctx context.Context, tenantID, partNumber string) (*models.SKU, error) {
	var sku models.SKU
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND part_number = ?", tenantID, partNumber).
		First(&sku).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &sku, nil
}

func (r *CatalogRepository) SaveSKU(ctx context.Context, sku *models.SKU) error {
	return r.save(ctx, sku.TenantID, &sku.ID, sku)
}

// ReplaceSKUVariants swaps the SKU's attribute value links for the given set.
func (r *CatalogRepository) ReplaceSKUVariants(ctx context.Context, tenantID string, skuID uuid.UUID, variants []models.SKUVariant) error {
	db := r.db.WithContext(ctx)
	if err := db.Where("tenant_id = ? AND sku_id = ?", tenantID, skuID).
		Delete(&models.SKUVariant{}).Error; err != nil {
		return err
	}
	if len(variants) == 0 {
		return nil
	}
	for i := range variants {
		variants[i].ID = uuid.New()
	}
	return db.Create(&variants).Error
}

// --- Prices ---

func (r *CatalogRepository) FindPrice(ctx context.Context, tenantID, targetType string, targetID uuid.UUID) (*models.Price, error) {
	var price models.Price
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND target_type = ? AND target_id = ?", tenantID, targetType, targetID).
		First(&price).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &price, nil
}

func (r *CatalogRepository) SavePrice(ctx context.Context, price *models.Price) error {
	return r.save(ctx, price.TenantID, &price.ID, price)
}

// save inserts when the id is unset, otherwise updates the tenant's row. An
// explicit id that matches no row of the tenant is inserted; if another tenant
// owns it the insert fails on the primary key.
func (r *CatalogRepository) save(ctx context.Context, tenantID string, id *uuid.UUID, value interface{}) error {
	if *id == uuid.Nil {
		*id = uuid.New()
		return r.db.WithContext(ctx).Omit(clause.Associations).Create(value).Error
	}
	result := r.db.WithContext(ctx).Model(value).
		Where("tenant_id = ?", tenantID).
		Select("*").
		Omit(clause.Associations).
		Updates(value)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return r.db.WithContext(ctx).Omit(clause.Associations).Create(value).Error
	}
	return nil
}
