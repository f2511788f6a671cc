package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

const (
	StatusActive   = "ACTIVE"
	StatusInactive = "INACTIVE"
)

// Return policy vocabulary shared by products and return policies.
const (
	ReturnTypeAllowed = "SALES_RETURN_ALLOWED"
	ReturnTypeFinal   = "SALES_ARE_FINAL"

	ReturnFeeFixed      = "FIXED"
	ReturnFeePercentage = "PERCENTAGE"
	ReturnFeeFree       = "FREE"
)

// Audit carries the business audit columns supplied by (or stamped for) a file row.
type Audit struct {
	CreatedBy   *string    `gorm:"type:varchar(255)" json:"createdBy,omitempty"`
	CreatedDate *time.Time `json:"createdDate,omitempty"`
	UpdatedBy   *string    `gorm:"type:varchar(255)" json:"updatedBy,omitempty"`
	UpdatedDate *time.Time `json:"updatedDate,omitempty"`
}

// Category is a node of the tenant's category tree, keyed by its full path.
type Category struct {
	ID              uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	TenantID        string     `gorm:"type:varchar(255);not null;uniqueIndex:idx_categories_tenant_path" json:"tenantId"`
	Path            string     `gorm:"type:varchar(1024);not null;uniqueIndex:idx_categories_tenant_path" json:"path"`
	Name            string     `gorm:"type:varchar(255);not null" json:"name"`
	ParentID        *uuid.UUID `gorm:"type:uuid;index" json:"parentId,omitempty"`
	Level           int        `gorm:"not null;default:0" json:"level"`
	Description     *string    `gorm:"type:text" json:"description,omitempty"`
	LongDescription *string    `gorm:"type:text" json:"longDescription,omitempty"`
	Enabled         *bool      `json:"enabled,omitempty"`
	Active          *string    `gorm:"type:varchar(10)" json:"active,omitempty"`
	ImageName       *string    `gorm:"type:varchar(512)" json:"imageName,omitempty"`
	OrderType       *string    `gorm:"type:varchar(100)" json:"orderType,omitempty"`
	ShippingType    *string    `gorm:"type:varchar(100)" json:"shippingType,omitempty"`
	SeoTitle        *string    `gorm:"type:varchar(255)" json:"seoTitle,omitempty"`
	SeoKeywords     *string    `gorm:"type:text" json:"seoKeywords,omitempty"`
	SeoDescription  *string    `gorm:"type:text" json:"seoDescription,omitempty"`
	URL             *string    `gorm:"column:url;type:varchar(512)" json:"url,omitempty"`
	PositionOnSite  *int       `json:"positionOnSite,omitempty"`
	CreatedAt       time.Time  `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (Category) TableName() string { return "categories" }

type Brand struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	TenantID   string    `gorm:"type:varchar(255);not null;uniqueIndex:idx_brands_tenant_name" json:"tenantId"`
	Name       string    `gorm:"type:varchar(255);not null;uniqueIndex:idx_brands_tenant_name" json:"name"`
	Logo       string    `gorm:"type:varchar(512)" json:"logo"`
	SupplierID *string   `gorm:"type:varchar(255)" json:"supplierId,omitempty"`
	Active     *string   `gorm:"type:varchar(10)" json:"active,omitempty"`
	Audit
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (Brand) TableName() string { return "brands" }

type Attribute struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	TenantID string    `gorm:"type:varchar(255);not null;uniqueIndex:idx_attributes_tenant_name" json:"tenantId"`
	Name     string    `gorm:"type:varchar(255);not null;uniqueIndex:idx_attributes_tenant_name" json:"name"`
	IsColor  bool      `gorm:"not null;default:false" json:"isColor"`
	Active   *string   `gorm:"type:varchar(10)" json:"active,omitempty"`
	Audit
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updatedAt"`

	Values []AttributeValue `gorm:"foreignKey:AttributeID;constraint:OnDelete:CASCADE" json:"values,omitempty"`
}

func (Attribute) TableName() string { return "attributes" }

type AttributeValue struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	TenantID    string    `gorm:"type:varchar(255);not null;index" json:"tenantId"`
	AttributeID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_attribute_values_attr_name" json:"attributeId"`
	Name        string    `gorm:"type:varchar(255);not null;uniqueIndex:idx_attribute_values_attr_name" json:"name"`
	Value       string    `gorm:"type:varchar(255);not null" json:"value"`
	ImageURL    *string   `gorm:"type:varchar(1024)" json:"imageUrl,omitempty"`
	Active      string    `gorm:"type:varchar(10);not null;default:'INACTIVE'" json:"active"`
	Position    int       `gorm:"not null;default:0" json:"position"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (AttributeValue) TableName() string { return "attribute_values" }

type ReturnPolicy struct {
	ID            uuid.UUID           `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	TenantID      string              `gorm:"type:varchar(255);not null;index:idx_return_policies_signature" json:"tenantId"`
	PolicyName    *string             `gorm:"type:varchar(255)" json:"policyName,omitempty"`
	ReturnType    string              `gorm:"type:varchar(30);not null;index:idx_return_policies_signature" json:"returnType"`
	ReturnDays    *int                `json:"returnDays,omitempty"`
	ReturnFeeType *string             `gorm:"type:varchar(20);index:idx_return_policies_signature" json:"returnFeeType,omitempty"`
	ReturnFee     decimal.NullDecimal `gorm:"type:numeric(12,2)" json:"returnFee"`
	Audit
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (ReturnPolicy) TableName() string { return "return_policies" }

// ReturnPolicySignature identifies the policy a product row refers to.
type ReturnPolicySignature struct {
	ReturnType    string
	ReturnFeeType *string
	ReturnFee     decimal.NullDecimal
}

// Signature returns the matching key of a stored policy.
func (p *ReturnPolicy) Signature() ReturnPolicySignature {
	return ReturnPolicySignature{ReturnType: p.ReturnType, ReturnFeeType: p.ReturnFeeType, ReturnFee: p.ReturnFee}
}

// Matches compares signatures; fee amounts compare numerically.
func (s ReturnPolicySignature) Matches(o ReturnPolicySignature) bool {
	if s.ReturnType != o.ReturnType {
		return false
	}
	if (s.ReturnFeeType == nil) != (o.ReturnFeeType == nil) {
		return false
	}
	if s.ReturnFeeType != nil && *s.ReturnFeeType != *o.ReturnFeeType {
		return false
	}
	if s.ReturnFee.Valid != o.ReturnFee.Valid {
		return false
	}
	return !s.ReturnFee.Valid || s.ReturnFee.Decimal.Equal(o.ReturnFee.Decimal)
}

// ShoppingCategory is a platform-wide classification shared by every tenant.
type ShoppingCategory struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	Name      string    `gorm:"type:varchar(255);not null;uniqueIndex" json:"name"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

func (ShoppingCategory) TableName() string { return "shopping_categories" }

type Product struct {
	ID                 uuid.UUID           `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	TenantID           string              `gorm:"type:varchar(255);not null;uniqueIndex:idx_products_tenant_self_gen_id" json:"tenantId"`
	SelfGenProductID   string              `gorm:"type:varchar(255);not null;uniqueIndex:idx_products_tenant_self_gen_id" json:"selfGenProductId"`
	BusinessDetailsID  string              `gorm:"type:varchar(255);not null;index" json:"businessDetailsId"`
	Name               string              `gorm:"type:varchar(255);not null" json:"name"`
	Description        string              `gorm:"type:text" json:"description"`
	URL                string              `gorm:"column:url;type:varchar(512)" json:"url"`
	Barcode            string              `gorm:"type:varchar(255)" json:"barcode"`
	BrandID            uuid.UUID           `gorm:"type:uuid;not null;index" json:"brandId"`
	CategoryID         uuid.UUID           `gorm:"type:uuid;not null;index" json:"categoryId"`
	ShoppingCategoryID *uuid.UUID          `gorm:"type:uuid" json:"shoppingCategoryId,omitempty"`
	ReturnPolicyID     uuid.UUID           `gorm:"type:uuid;not null" json:"returnPolicyId"`
	ReturnType         string              `gorm:"type:varchar(30);not null" json:"returnType"`
	ReturnFeeType      *string             `gorm:"type:varchar(20)" json:"returnFeeType,omitempty"`
	ReturnFee          decimal.NullDecimal `gorm:"type:numeric(12,2)" json:"returnFee"`
	Price              decimal.Decimal     `gorm:"type:numeric(12,2);not null" json:"price"`
	SalePrice          decimal.NullDecimal `gorm:"type:numeric(12,2)" json:"salePrice"`
	CostPrice          decimal.NullDecimal `gorm:"type:numeric(12,2)" json:"costPrice"`
	Quantity           int                 `gorm:"not null;default:0" json:"quantity"`
	PackageLength      decimal.Decimal     `gorm:"type:numeric(10,3);not null" json:"packageLength"`
	PackageWidth       decimal.Decimal     `gorm:"type:numeric(10,3);not null" json:"packageWidth"`
	PackageHeight      decimal.Decimal     `gorm:"type:numeric(10,3);not null" json:"packageHeight"`
	PackageWeight      decimal.Decimal     `gorm:"type:numeric(10,3);not null" json:"packageWeight"`
	SizeUnit           string              `gorm:"type:varchar(20)" json:"sizeUnit"`
	WeightUnit         string              `gorm:"type:varchar(20)" json:"weightUnit"`
	Active             string              `gorm:"type:varchar(10);not null" json:"active"`
	IsChildItem        int                 `gorm:"not null;default:0" json:"isChildItem"`
	MainImageURL       *string             `gorm:"type:varchar(1024)" json:"mainImageUrl,omitempty"`
	SizeChartImg       *string             `gorm:"type:varchar(1024)" json:"sizeChartImg,omitempty"`
	VideoURL           *string             `gorm:"type:varchar(1024)" json:"videoUrl,omitempty"`
	VideoThumbnailURL  *string             `gorm:"type:varchar(1024)" json:"videoThumbnailUrl,omitempty"`
	Ean                *string             `gorm:"type:varchar(50)" json:"ean,omitempty"`
	Isbn               *string             `gorm:"type:varchar(50)" json:"isbn,omitempty"`
	Upc                *string             `gorm:"type:varchar(50)" json:"upc,omitempty"`
	Mpn                *string             `gorm:"type:varchar(100)" json:"mpn,omitempty"`
	Keywords           pq.StringArray      `gorm:"type:text[]" json:"keywords,omitempty"`
	SeoTitle           *string             `gorm:"type:varchar(255)" json:"seoTitle,omitempty"`
	SeoDescription     *string             `gorm:"type:text" json:"seoDescription,omitempty"`
	Audit
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updatedAt"`

	Specifications []ProductSpecification `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE" json:"specifications,omitempty"`
	Images         []ProductImage         `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE" json:"images,omitempty"`
}

func (Product) TableName() string { return "products" }

type ProductSpecification struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	TenantID  string    `gorm:"type:varchar(255);not null;index" json:"tenantId"`
	ProductID uuid.UUID `gorm:"type:uuid;not null;index" json:"productId"`
	Name      string    `gorm:"type:varchar(255);not null" json:"name"`
	Value     string    `gorm:"type:text;not null" json:"value"`
	Active    string    `gorm:"type:varchar(10);not null;default:'ACTIVE'" json:"active"`
	Position  int       `gorm:"not null;default:0" json:"position"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

func (ProductSpecification) TableName() string { return "product_specifications" }

type ProductImage struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	TenantID  string    `gorm:"type:varchar(255);not null;index" json:"tenantId"`
	ProductID uuid.UUID `gorm:"type:uuid;not null;index" json:"productId"`
	URL       string    `gorm:"column:url;type:varchar(1024);not null" json:"url"`
	IsMain    bool      `gorm:"not null;default:false" json:"isMain"`
	Active    string    `gorm:"type:varchar(10);not null;default:'ACTIVE'" json:"active"`
	Position  int       `gorm:"not null;default:0" json:"position"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

func (ProductImage) TableName() string { return "product_images" }

// Price targets.
const (
	PriceTargetProduct = "PRODUCT"
	PriceTargetSKU     = "SKU"
)

// SKU is one sellable variant of a product, identified by its attribute values.
type SKU struct {
	ID            uuid.UUID           `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	TenantID      string              `gorm:"type:varchar(255);not null;uniqueIndex:idx_skus_tenant_part_number;index" json:"tenantId"`
	ProductID     uuid.UUID           `gorm:"type:uuid;not null;uniqueIndex:idx_skus_product_variant" json:"productId"`
	VariantKey    string              `gorm:"type:varchar(512);not null;uniqueIndex:idx_skus_product_variant" json:"variantKey"`
	PartNumber    string              `gorm:"type:varchar(255);not null;uniqueIndex:idx_skus_tenant_part_number" json:"partNumber"`
	Price         decimal.Decimal     `gorm:"type:numeric(12,2);not null" json:"price"`
	Quantity      int                 `gorm:"not null;default:0" json:"quantity"`
	Active        string              `gorm:"type:varchar(10);not null" json:"active"`
	IsDefault     bool                `gorm:"not null;default:false" json:"isDefault"`
	OrderLimit    *int                `json:"orderLimit,omitempty"`
	PackageLength decimal.NullDecimal `gorm:"type:numeric(10,3)" json:"packageLength"`
	PackageWidth  decimal.NullDecimal `gorm:"type:numeric(10,3)" json:"packageWidth"`
	PackageHeight decimal.NullDecimal `gorm:"type:numeric(10,3)" json:"packageHeight"`
	PackageWeight decimal.NullDecimal `gorm:"type:numeric(10,3)" json:"packageWeight"`
	Audit
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updatedAt"`

	Variants []SKUVariant `gorm:"foreignKey:SKUID;constraint:OnDelete:CASCADE" json:"variants,omitempty"`
}

func (SKU) TableName() string { return "skus" }

// SKUVariant links a SKU to one attribute value.
type SKUVariant struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	TenantID         string    `gorm:"type:varchar(255);not null;index" json:"tenantId"`
	SKUID            uuid.UUID `gorm:"column:sku_id;type:uuid;not null;index" json:"skuId"`
	AttributeID      uuid.UUID `gorm:"type:uuid;not null" json:"attributeId"`
	AttributeValueID uuid.UUID `gorm:"type:uuid;not null" json:"attributeValueId"`
	Position         int       `gorm:"not null;default:0" json:"position"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

func (SKUVariant) TableName() string { return "sku_variants" }

// Price is the price list entry of a product or a SKU.
type Price struct {
	ID            uuid.UUID           `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	TenantID      string              `gorm:"type:varchar(255);not null;uniqueIndex:idx_prices_target" json:"tenantId"`
	TargetType    string              `gorm:"type:varchar(10);not null;uniqueIndex:idx_prices_target" json:"targetType"`
	TargetID      uuid.UUID           `gorm:"type:uuid;not null;uniqueIndex:idx_prices_target" json:"targetId"`
	Price         decimal.Decimal     `gorm:"type:numeric(12,2);not null" json:"price"`
	DiscountPrice decimal.NullDecimal `gorm:"type:numeric(12,2)" json:"discountPrice"`
	CostPrice     decimal.NullDecimal `gorm:"type:numeric(12,2)" json:"costPrice"`
	Currency      string              `gorm:"type:varchar(3);not null;default:'USD'" json:"currency"`
	Audit
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (Price) TableName() string { return "prices" }
