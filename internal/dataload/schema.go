package dataload

import (
	"fmt"
	"strings"

	"dataload-service/internal/models"
)

// Column describes one file column of a load type.
type Column struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Required    bool   `json:"required"`
	Type        string `json:"type"`
	Example     string `json:"example"`
}

// Schema is the column contract of one load type.
type Schema struct {
	LoadType models.LoadType `json:"loadType"`
	KeyField string          `json:"keyField"`
	Columns  []Column        `json:"columns"`
}

// RequiredColumns lists the columns a header row must contain.
func (s *Schema) RequiredColumns() []string {
	var out []string
	for _, c := range s.Columns {
		if c.Required {
			out = append(out, c.Name)
		}
	}
	return out
}

// CheckHeader fails when a mandatory column is missing from the file header.
func (s *Schema) CheckHeader(headers []string) error {
	seen := make(map[string]bool, len(headers))
	for _, h := range headers {
		seen[h] = true
	}
	var missing []string
	for _, name := range s.RequiredColumns() {
		if !seen[name] {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return InvalidFile(fmt.Sprintf("missing required column(s): %s", strings.Join(missing, ", ")), nil)
	}
	return nil
}

var auditColumns = []Column{
	{Name: "created_by", Description: "Creator id; defaults to the uploading user on insert", Type: "string", Example: "user-42"},
	{Name: "created_date", Description: "Creation date (RFC3339 or YYYY-MM-DD)", Type: "date", Example: "2024-01-31"},
	{Name: "updated_by", Description: "Last editor id", Type: "string", Example: "user-42"},
	{Name: "updated_date", Description: "Last update date (RFC3339 or YYYY-MM-DD)", Type: "date", Example: "2024-02-15"},
}

var schemas = map[models.LoadType]*Schema{
	models.LoadTypeCategory: {
		LoadType: models.LoadTypeCategory,
		KeyField: "category_path",
		Columns: []Column{
			{Name: "category_path", Required: true, Type: "path", Description: "Slash separated path from the root category", Example: "Electronics/Computers/Laptops"},
			{Name: "name", Type: "string", Description: "Display name of the last path segment", Example: "Laptops"},
			{Name: "description", Type: "string", Description: "Short description", Example: "Portable computers"},
			{Name: "long_description", Type: "string", Description: "Long description", Example: ""},
			{Name: "enabled", Type: "boolean", Description: "TRUE or FALSE", Example: "TRUE"},
			{Name: "active", Type: "enum", Description: "ACTIVE or INACTIVE", Example: "ACTIVE"},
			{Name: "image_name", Type: "string", Description: "Image file name", Example: "laptops.png"},
			{Name: "order_type", Type: "string", Description: "Order type", Example: ""},
			{Name: "shipping_type", Type: "string", Description: "Shipping type", Example: ""},
			{Name: "seo_title", Type: "string", Description: "SEO title", Example: "Laptops"},
			{Name: "seo_keywords", Type: "string", Description: "SEO keywords", Example: "laptop,notebook"},
			{Name: "seo_description", Type: "string", Description: "SEO description", Example: ""},
			{Name: "url", Type: "slug", Description: "URL slug", Example: "laptops"},
			{Name: "position_on_site", Type: "integer", Description: "Ordering position (>= 0)", Example: "1"},
		},
	},
	models.LoadTypeBrand: {
		LoadType: models.LoadTypeBrand,
		KeyField: "name",
		Columns: append([]Column{
			{Name: "name", Required: true, Type: "string", Description: "Brand name, unique per tenant", Example: "Acme"},
			{Name: "logo", Required: true, Type: "string", Description: "Logo URL or file name", Example: "https://cdn.example.com/acme.png"},
			{Name: "supplier_id", Type: "string", Description: "Supplier reference", Example: "SUP-1"},
			{Name: "active", Type: "enum", Description: "ACTIVE or INACTIVE", Example: "ACTIVE"},
		}, auditColumns...),
	},
	models.LoadTypeAttribute: {
		LoadType: models.LoadTypeAttribute,
		KeyField: "attribute_name",
		Columns: append([]Column{
			{Name: "attribute_name", Required: true, Type: "string", Description: "Attribute name, unique per tenant", Example: "Color"},
			{Name: "is_color", Type: "boolean", Description: "TRUE for color attributes", Example: "TRUE"},
			{Name: "attribute_active", Type: "enum", Description: "ACTIVE or INACTIVE", Example: "ACTIVE"},
			{Name: "values_name", Type: "list", Description: "Pipe separated value display names", Example: JoinList([]string{"Red", "Blue"})},
			{Name: "value_value", Type: "list", Description: "Pipe separated values aligned with values_name", Example: JoinList([]string{"#FF0000", "#0000FF"})},
			{Name: "img_url", Type: "list", Description: "Pipe separated image URLs aligned with values_name", Example: JoinList([]string{"", ""})},
			{Name: "values_active", Type: "list", Description: "Pipe separated ACTIVE/INACTIVE aligned with values_name", Example: JoinList([]string{models.StatusActive, models.StatusInactive})},
		}, auditColumns...),
	},
	models.LoadTypeReturnPolicy: {
		LoadType: models.LoadTypeReturnPolicy,
		KeyField: "id",
		Columns: append([]Column{
			{Name: "id", Type: "uuid", Description: "Existing policy id to update; empty creates a policy", Example: ""},
			{Name: "return_policy_type", Required: true, Type: "enum", Description: "SALES_RETURN_ALLOWED or SALES_ARE_FINAL", Example: models.ReturnTypeAllowed},
			{Name: "policy_name", Type: "string", Description: "Policy name", Example: "30 day returns"},
			{Name: "time_period_return", Type: "integer", Description: "Return window in days", Example: "30"},
			{Name: "return_fee_type", Type: "enum", Description: "FIXED, PERCENTAGE or FREE", Example: models.ReturnFeeFixed},
			{Name: "return_fee", Type: "decimal", Description: "Return fee amount (>= 0)", Example: "4.99"},
		}, auditColumns...),
	},
	models.LoadTypeProduct: {
		LoadType: models.LoadTypeProduct,
		KeyField: "self_gen_product_id",
		Columns: []Column{
			{Name: "product_name", Required: true, Type: "string", Description: "Product name", Example: "Acme Laptop 14"},
			{Name: "self_gen_product_id", Required: true, Type: "string", Description: "Seller product id, unique per tenant", Example: "ACME-LT-14"},
			{Name: "business_details_id", Required: true, Type: "string", Description: "Business the product belongs to", Example: "biz-1"},
			{Name: "description", Required: true, Type: "string", Description: "Product description", Example: "14 inch laptop"},
			{Name: "brand_name", Required: true, Type: "string", Description: "Existing brand name", Example: "Acme"},
			{Name: "category_id", Required: true, Type: "uuid", Description: "Existing category id", Example: "7d0c1c9e-0000-4000-8000-000000000000"},
			{Name: "shopping_category_name", Type: "string", Description: "Platform shopping category", Example: "Computers"},
			{Name: "price", Required: true, Type: "decimal", Description: "Price (> 0)", Example: "999.00"},
			{Name: "sale_price", Type: "decimal", Description: "Sale price (>= 0)", Example: ""},
			{Name: "cost_price", Type: "decimal", Description: "Cost price (>= 0)", Example: ""},
			{Name: "quantity", Required: true, Type: "integer", Description: "Stock quantity (>= 0)", Example: "10"},
			{Name: "package_size_length", Required: true, Type: "decimal", Description: "Package length (> 0)", Example: "40"},
			{Name: "package_size_width", Required: true, Type: "decimal", Description: "Package width (> 0)", Example: "30"},
			{Name: "package_size_height", Required: true, Type: "decimal", Description: "Package height (> 0)", Example: "5"},
			{Name: "product_weights", Required: true, Type: "decimal", Description: "Package weight (> 0)", Example: "2.1"},
			{Name: "size_unit", Required: true, Type: "string", Description: "Unit of the package dimensions", Example: "cm"},
			{Name: "weight_unit", Required: true, Type: "string", Description: "Unit of the package weight", Example: "kg"},
			{Name: "active", Required: true, Type: "enum", Description: "ACTIVE or INACTIVE", Example: models.StatusActive},
			{Name: "return_type", Required: true, Type: "enum", Description: "SALES_RETURN_ALLOWED or SALES_ARE_FINAL", Example: models.ReturnTypeAllowed},
			{Name: "return_fee_type", Type: "enum", Description: "FIXED, PERCENTAGE or FREE; required when returns are allowed", Example: models.ReturnFeeFree},
			{Name: "return_fee", Type: "decimal", Description: "Return fee; must be empty when sales are final", Example: ""},
			{Name: "warehouse_location", Type: "string", Description: "Stored as a Warehouse_Location specification", Example: ""},
			{Name: "store_location", Type: "string", Description: "Stored as a Store_Location specification", Example: ""},
			{Name: "size_chart_img", Type: "string", Description: "Size chart image URL", Example: ""},
			{Name: "url", Type: "slug", Description: "URL slug; generated from product_name when empty", Example: ""},
			{Name: "video_url", Type: "string", Description: "Video URL", Example: ""},
			{Name: "video_thumbnail_url", Type: "string", Description: "Required when video_url is set", Example: ""},
			{Name: "images", Type: "list", Description: "Pairs of url|main_image:true|false", Example: EncodeImages([]ImageEntry{{URL: "https://cdn.example.com/lt14.jpg", IsMain: true}, {URL: "https://cdn.example.com/lt14-side.jpg"}})},
			{Name: "specifications", Type: "list", Description: "Name:Value pairs separated by |", Example: EncodeSpecs([]Spec{{Name: "RAM", Value: "16GB"}, {Name: "Storage", Value: "512GB"}})},
			{Name: "is_child_item", Required: true, Type: "integer", Description: "0 or 1", Example: "0"},
			{Name: "ean", Type: "string", Description: "EAN", Example: ""},
			{Name: "isbn", Type: "string", Description: "ISBN", Example: ""},
			{Name: "keywords", Type: "string", Description: "Comma separated keywords", Example: "laptop,acme"},
			{Name: "mpn", Type: "string", Description: "Manufacturer part number", Example: ""},
			{Name: "seo_title", Type: "string", Description: "SEO title", Example: ""},
			{Name: "seo_description", Type: "string", Description: "SEO description", Example: ""},
			{Name: "upc", Type: "string", Description: "UPC", Example: ""},
		},
	},
	models.LoadTypeItem: {
		LoadType: models.LoadTypeItem,
		KeyField: "self_gen_product_id",
		Columns: append([]Column{
			{Name: "self_gen_product_id", Required: true, Type: "string", Description: "Existing product the SKUs belong to", Example: "ACME-LT-14"},
			{Name: "attributes", Required: true, Type: "list", Description: "One or two name|main_attribute:true|false pairs; exactly one is main", Example: "Color|main_attribute:true|Size|main_attribute:false"},
			{Name: "attribute_combination", Required: true, Type: "matrix", Description: "One {v1:v2} group per attribute; flag the default SKU value with |main_sku:true", Example: "{Black|main_sku:true:White}|{S:M}"},
			{Name: "price", Required: true, Type: "matrix", Description: "Price per variant (> 0); a single value applies to all", Example: "19.99:21.99|19.99:21.99"},
			{Name: "quantity", Required: true, Type: "matrix", Description: "Stock per variant (>= 0)", Example: "15:18|4:0"},
			{Name: "status", Type: "list", Description: "ACTIVE or INACTIVE per main attribute value; empty means ACTIVE", Example: JoinList([]string{models.StatusActive, models.StatusInactive})},
			{Name: "order_limit", Type: "matrix", Description: "Maximum units per order (>= 1)", Example: "10"},
			{Name: "package_size_length", Type: "matrix", Description: "Package length per variant (> 0)", Example: ""},
			{Name: "package_size_width", Type: "matrix", Description: "Package width per variant (> 0)", Example: ""},
			{Name: "package_size_height", Type: "matrix", Description: "Package height per variant (> 0)", Example: ""},
			{Name: "package_weight", Type: "matrix", Description: "Package weight per variant (> 0)", Example: "0.4"},
		}, auditColumns...),
	},
	models.LoadTypePrice: {
		LoadType: models.LoadTypePrice,
		KeyField: "price_type",
		Columns: append([]Column{
			{Name: "price_type", Required: true, Type: "enum", Description: "PRODUCT or SKU", Example: models.PriceTargetProduct},
			{Name: "product_id", Type: "string", Description: "self_gen_product_id; required for PRODUCT, empty for SKU", Example: "ACME-LT-14"},
			{Name: "sku_id", Type: "string", Description: "SKU part number; required for SKU, empty for PRODUCT", Example: ""},
			{Name: "price", Required: true, Type: "decimal", Description: "List price (> 0)", Example: "999.00"},
			{Name: "discount_price", Type: "decimal", Description: "Discounted price, below price", Example: "899.00"},
			{Name: "cost_price", Type: "decimal", Description: "Cost price (>= 0)", Example: ""},
			{Name: "currency", Type: "string", Description: "ISO 4217 code; defaults to USD", Example: "USD"},
		}, auditColumns...),
	},
	models.LoadTypeMetaTag: {
		LoadType: models.LoadTypeMetaTag,
		KeyField: "target_identifier",
		Columns: []Column{
			{Name: "meta_type", Required: true, Type: "enum", Description: "PRODUCT or CATEGORY", Example: MetaTypeProduct},
			{Name: "target_identifier", Required: true, Type: "string", Description: "self_gen_product_id for PRODUCT, category path for CATEGORY", Example: "ACME-LT-14"},
			{Name: "business_details_id", Type: "string", Description: "Owning business; required for PRODUCT and must match the product", Example: "biz-1"},
			{Name: "meta_title", Type: "string", Description: "SEO title (at most 255 characters)", Example: "Acme Laptop 14"},
			{Name: "meta_description", Type: "string", Description: "SEO description (512 characters for PRODUCT, 255 for CATEGORY)", Example: ""},
			{Name: "meta_keywords", Type: "string", Description: "Comma separated keywords (512 characters for PRODUCT, 255 for CATEGORY)", Example: "laptop,acme"},
		},
	},
}

// SchemaFor returns the schema of a load type.
func SchemaFor(lt models.LoadType) (*Schema, error) {
	s, ok := schemas[lt]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownLoadType, lt)
	}
	return s, nil
}
