package dataload

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"dataload-service/internal/models"
)

// Record is a decoded, validated row of some load type.
type Record interface {
	// NaturalKey is the in-file identity used to detect duplicate rows; "" disables the check.
	NaturalKey() string
}

// AuditFields are the optional audit columns a row may supply.
type AuditFields struct {
	CreatedBy   *string    `csv:"created_by"`
	CreatedDate *time.Time `csv:"created_date"`
	UpdatedBy   *string    `csv:"updated_by"`
	UpdatedDate *time.Time `csv:"updated_date"`
}

type CategoryRecord struct {
	Path            string   `csv:"category_path" validate:"required"`
	Segments        []string `csv:"-"`
	Name            *string  `csv:"name"`
	Description     *string  `csv:"description"`
	LongDescription *string  `csv:"long_description"`
	Enabled         *bool    `csv:"enabled"`
	Active          *string  `csv:"active" validate:"omitempty,oneof=ACTIVE INACTIVE"`
	ImageName       *string  `csv:"image_name"`
	OrderType       *string  `csv:"order_type"`
	ShippingType    *string  `csv:"shipping_type"`
	SeoTitle        *string  `csv:"seo_title"`
	SeoKeywords     *string  `csv:"seo_keywords"`
	SeoDescription  *string  `csv:"seo_description"`
	URL             *string  `csv:"url" validate:"omitempty,slug"`
	PositionOnSite  *int     `csv:"position_on_site" validate:"omitempty,gte=0"`
}

func (r *CategoryRecord) NaturalKey() string { return r.Path }

type BrandRecord struct {
	Name       string  `csv:"name" validate:"required,max=255"`
	Logo       string  `csv:"logo" validate:"required"`
	SupplierID *string `csv:"supplier_id"`
	Active     *string `csv:"active" validate:"omitempty,oneof=ACTIVE INACTIVE"`
	AuditFields
}

func (r *BrandRecord) NaturalKey() string { return r.Name }

// AttributeValueRecord is one aligned element of an attribute row.
type AttributeValueRecord struct {
	Name     string
	Value    string
	ImageURL *string
	Active   string
}

type AttributeRecord struct {
	Name    string                 `csv:"attribute_name" validate:"required,max=255"`
	IsColor bool                   `csv:"is_color"`
	Active  *string                `csv:"attribute_active" validate:"omitempty,oneof=ACTIVE INACTIVE"`
	Values  []AttributeValueRecord `csv:"-"`
	AuditFields
}

func (r *AttributeRecord) NaturalKey() string { return r.Name }

// ReturnTerms are the columns products and return policies share.
type ReturnTerms struct {
	ReturnFeeType *string             `csv:"return_fee_type" validate:"omitempty,oneof=FIXED PERCENTAGE FREE"`
	ReturnFee     decimal.NullDecimal `csv:"return_fee" validate:"omitempty,gte=0"`
}

type ReturnPolicyRecord struct {
	ID         *uuid.UUID `csv:"id"`
	ReturnType string     `csv:"return_policy_type" validate:"required,oneof=SALES_RETURN_ALLOWED SALES_ARE_FINAL"`
	PolicyName *string    `csv:"policy_name"`
	ReturnDays *int       `csv:"time_period_return" validate:"omitempty,gte=0"`
	ReturnTerms
	AuditFields
}

func (r *ReturnPolicyRecord) NaturalKey() string {
	if r.ID == nil {
		return ""
	}
	return r.ID.String()
}

type ProductRecord struct {
	Name                 string              `csv:"product_name" validate:"required,max=255"`
	SelfGenProductID     string              `csv:"self_gen_product_id" validate:"required,max=255"`
	BusinessDetailsID    string              `csv:"business_details_id" validate:"required"`
	Description          string              `csv:"description" validate:"required"`
	BrandName            string              `csv:"brand_name" validate:"required"`
	CategoryID           uuid.UUID           `csv:"category_id"`
	ShoppingCategoryName *string             `csv:"shopping_category_name"`
	Price                decimal.Decimal     `csv:"price" validate:"gt=0"`
	SalePrice            decimal.NullDecimal `csv:"sale_price" validate:"omitempty,gte=0"`
	CostPrice            decimal.NullDecimal `csv:"cost_price" validate:"omitempty,gte=0"`
	Quantity             int                 `csv:"quantity" validate:"gte=0"`
	PackageLength        decimal.Decimal     `csv:"package_size_length" validate:"gt=0"`
	PackageWidth         decimal.Decimal     `csv:"package_size_width" validate:"gt=0"`
	PackageHeight        decimal.Decimal     `csv:"package_size_height" validate:"gt=0"`
	PackageWeight        decimal.Decimal     `csv:"product_weights" validate:"gt=0"`
	SizeUnit             string              `csv:"size_unit" validate:"required"`
	WeightUnit           string              `csv:"weight_unit" validate:"required"`
	Active               string              `csv:"active" validate:"required,oneof=ACTIVE INACTIVE"`
	ReturnType           string              `csv:"return_type" validate:"required,oneof=SALES_RETURN_ALLOWED SALES_ARE_FINAL"`
	ReturnTerms
	WarehouseLocation *string      `csv:"warehouse_location"`
	StoreLocation     *string      `csv:"store_location"`
	SizeChartImg      *string      `csv:"size_chart_img"`
	URL               string       `csv:"url" validate:"omitempty,slug"`
	VideoURL          *string      `csv:"video_url"`
	VideoThumbnailURL *string      `csv:"video_thumbnail_url" validate:"required_with=VideoURL"`
	Images            []ImageEntry `csv:"-"`
	Specifications    []Spec       `csv:"-"`
	IsChildItem       int          `csv:"is_child_item" validate:"oneof=0 1"`
	Ean               *string      `csv:"ean"`
	Isbn              *string      `csv:"isbn"`
	Keywords          []string     `csv:"-"`
	Mpn               *string      `csv:"mpn"`
	SeoTitle          *string      `csv:"seo_title"`
	SeoDescription    *string      `csv:"seo_description"`
	Upc               *string      `csv:"upc"`
}

func (r *ProductRecord) NaturalKey() string { return r.SelfGenProductID }

// MainImageURL returns the flagged image, if any.
func (r *ProductRecord) MainImageURL() *string {
	for _, img := range r.Images {
		if img.IsMain {
			url := img.URL
			return &url
		}
	}
	return nil
}

func splitKeywords(cell string) []string {
	var out []string
	for _, k := range strings.Split(cell, ",") {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, k)
		}
	}
	return out
}

// SKURecord is one decoded variant of an item row.
type SKURecord struct {
	Variant       Variant
	VariantKey    string
	PartNumber    string
	Price         decimal.Decimal
	Quantity      int
	Active        string
	IsDefault     bool
	OrderLimit    *int
	PackageLength decimal.NullDecimal
	PackageWidth  decimal.NullDecimal
	PackageHeight decimal.NullDecimal
	PackageWeight decimal.NullDecimal
}

// ItemRecord expands one product into its SKUs.
type ItemRecord struct {
	SelfGenProductID string          `csv:"self_gen_product_id" validate:"required,max=255"`
	Attributes       []ItemAttribute `csv:"-"`
	SKUs             []SKURecord     `csv:"-"`
	AuditFields
}

func (r *ItemRecord) NaturalKey() string { return r.SelfGenProductID }

// ValueOf returns the value a SKU takes on attribute i.
func (r *ItemRecord) ValueOf(sku SKURecord, i int) string {
	return r.Attributes[i].Values[sku.Variant.Index[i]].Value
}

type PriceRecord struct {
	PriceType     string              `csv:"price_type" validate:"required,oneof=PRODUCT SKU"`
	ProductID     *string             `csv:"product_id"`
	SKUID         *string             `csv:"sku_id"`
	Price         decimal.Decimal     `csv:"price" validate:"gt=0"`
	DiscountPrice decimal.NullDecimal `csv:"discount_price" validate:"omitempty,gte=0"`
	CostPrice     decimal.NullDecimal `csv:"cost_price" validate:"omitempty,gte=0"`
	Currency      string              `csv:"currency" validate:"iso4217"`
	AuditFields
}

// Target is the product self_gen_product_id or the SKU part number the price applies to.
func (r *PriceRecord) Target() string {
	if r.PriceType == models.PriceTargetSKU {
		if r.SKUID != nil {
			return *r.SKUID
		}
		return ""
	}
	if r.ProductID != nil {
		return *r.ProductID
	}
	return ""
}

func (r *PriceRecord) NaturalKey() string { return r.PriceType + ":" + r.Target() }

// Meta tag targets.
const (
	MetaTypeProduct  = "PRODUCT"
	MetaTypeCategory = "CATEGORY"
)

type MetaTagRecord struct {
	MetaType          string   `csv:"meta_type" validate:"required,oneof=PRODUCT CATEGORY"`
	TargetIdentifier  string   `csv:"target_identifier" validate:"required"`
	BusinessDetailsID *string  `csv:"business_details_id"`
	MetaTitle         *string  `csv:"meta_title" validate:"omitempty,max=255"`
	MetaDescription   *string  `csv:"meta_description"`
	MetaKeywords      *string  `csv:"meta_keywords"`
	Keywords          []string `csv:"-"`
}

func (r *MetaTagRecord) NaturalKey() string { return r.MetaType + ":" + r.TargetIdentifier }
