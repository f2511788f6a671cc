package dataload

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"dataload-service/internal/models"
)

var dateLayouts = []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"}

const (
	defaultCurrency = "USD"

	productMetaLimit  = 512
	categoryMetaLimit = 255
)

// Decoder turns raw rows into typed records for a load type.
type Decoder struct {
	validate *validator.Validate
}

func NewDecoder() *Decoder {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("csv"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		switch d := field.Interface().(type) {
		case decimal.Decimal:
			f, _ := d.Float64()
			return f
		case decimal.NullDecimal:
			if !d.Valid {
				return nil
			}
			f, _ := d.Decimal.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{}, decimal.NullDecimal{})
	_ = v.RegisterValidation("slug", func(fl validator.FieldLevel) bool {
		return IsSlug(fl.Field().String())
	})
	return &Decoder{validate: v}
}

// Decode decodes one row. A non-empty error slice means the row must be skipped.
func (d *Decoder) Decode(lt models.LoadType, row Row) (Record, []models.RowError) {
	f := &fieldReader{row: row, failed: make(map[string]bool)}

	var rec Record
	switch lt {
	case models.LoadTypeCategory:
		rec = f.category()
	case models.LoadTypeBrand:
		rec = f.brand()
	case models.LoadTypeAttribute:
		rec = f.attribute()
	case models.LoadTypeReturnPolicy:
		rec = f.returnPolicy()
	case models.LoadTypeProduct:
		rec = f.product()
	case models.LoadTypeItem:
		rec = f.item()
	case models.LoadTypePrice:
		rec = f.price()
	case models.LoadTypeMetaTag:
		rec = f.metaTag()
	default:
		f.fail("", fmt.Sprintf("unsupported load type %q", lt))
		return nil, f.errs
	}

	d.checkConstraints(f, rec)

	switch r := rec.(type) {
	case *ReturnPolicyRecord:
		f.returnRules("return_policy_type", r.ReturnType, &r.ReturnTerms)
		if r.ReturnType == models.ReturnTypeFinal {
			r.PolicyName = nil
			r.ReturnDays = nil
		}
	case *ProductRecord:
		f.returnRules("return_type", r.ReturnType, &r.ReturnTerms)
	case *PriceRecord:
		f.priceRules(r)
	case *MetaTagRecord:
		f.metaTagRules(r)
	}

	if len(f.errs) > 0 {
		return nil, f.errs
	}
	return rec, nil
}

// checkConstraints runs the struct tag rules, skipping fields that already failed coercion.
func (d *Decoder) checkConstraints(f *fieldReader, rec Record) {
	err := d.validate.Struct(rec)
	if err == nil {
		return
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		f.fail("", err.Error())
		return
	}
	for _, fe := range verrs {
		field := fe.Field()
		if f.failed[field] {
			continue
		}
		f.fail(field, constraintMessage(fe))
	}
}

func constraintMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "required_with":
		return fmt.Sprintf("is required when %s is provided", toColumn(fe.Param()))
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be greater than or equal to %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", strings.ReplaceAll(fe.Param(), " ", ", "))
	case "slug":
		return "must be a valid slug (lowercase letters, digits and hyphens)"
	case "iso4217":
		return "must be an ISO 4217 currency code"
	}
	return fmt.Sprintf("failed %s validation", fe.Tag())
}

// toColumn maps a Go field name used in a cross-field tag back to its column.
func toColumn(goField string) string {
	switch goField {
	case "VideoURL":
		return "video_url"
	}
	return goField
}

// fieldReader coerces cells and accumulates VALIDATION errors for one row.
type fieldReader struct {
	row    Row
	errs   []models.RowError
	failed map[string]bool
}

func (f *fieldReader) fail(field, message string) {
	f.errs = append(f.errs, models.NewRowError(f.row.Number, field, models.ErrorKindValidation, message, f.row.Get(field)))
	if field != "" {
		f.failed[field] = true
	}
}

func (f *fieldReader) str(field string) string {
	return f.row.Get(field)
}

func (f *fieldReader) optional(field string) *string {
	v := f.row.Get(field)
	if v == "" {
		return nil
	}
	return &v
}

func (f *fieldReader) upper(field string) string {
	return strings.ToUpper(f.row.Get(field))
}

func (f *fieldReader) optionalUpper(field string) *string {
	v := f.upper(field)
	if v == "" {
		return nil
	}
	return &v
}

func (f *fieldReader) required(field string) bool {
	if f.row.Has(field) {
		return true
	}
	f.fail(field, "is required")
	return false
}

func (f *fieldReader) parseBool(field string) (bool, bool) {
	switch strings.ToUpper(f.row.Get(field)) {
	case "TRUE":
		return true, true
	case "FALSE":
		return false, true
	}
	f.fail(field, "must be TRUE or FALSE")
	return false, false
}

func (f *fieldReader) optionalBool(field string) *bool {
	if !f.row.Has(field) {
		return nil
	}
	b, ok := f.parseBool(field)
	if !ok {
		return nil
	}
	return &b
}

func (f *fieldReader) parseInt(field string) (int, bool) {
	n, err := strconv.Atoi(f.row.Get(field))
	if err != nil {
		f.fail(field, "must be a valid integer")
		return 0, false
	}
	return n, true
}

func (f *fieldReader) requiredInt(field string) int {
	if !f.required(field) {
		return 0
	}
	n, _ := f.parseInt(field)
	return n
}

func (f *fieldReader) optionalInt(field string) *int {
	if !f.row.Has(field) {
		return nil
	}
	n, ok := f.parseInt(field)
	if !ok {
		return nil
	}
	return &n
}

func (f *fieldReader) parseDecimal(field string) (decimal.Decimal, bool) {
	d, err := decimal.NewFromString(f.row.Get(field))
	if err != nil {
		f.fail(field, "must be a valid number")
		return decimal.Zero, false
	}
	return d, true
}

func (f *fieldReader) requiredDecimal(field string) decimal.Decimal {
	if !f.required(field) {
		return decimal.Zero
	}
	d, _ := f.parseDecimal(field)
	return d
}

func (f *fieldReader) optionalDecimal(field string) decimal.NullDecimal {
	if !f.row.Has(field) {
		return decimal.NullDecimal{}
	}
	d, ok := f.parseDecimal(field)
	if !ok {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}

func (f *fieldReader) parseUUID(field string) (uuid.UUID, bool) {
	id, err := uuid.Parse(f.row.Get(field))
	if err != nil {
		f.fail(field, "must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func (f *fieldReader) requiredUUID(field string) uuid.UUID {
	if !f.required(field) {
		return uuid.Nil
	}
	id, _ := f.parseUUID(field)
	return id
}

func (f *fieldReader) optionalUUID(field string) *uuid.UUID {
	if !f.row.Has(field) {
		return nil
	}
	id, ok := f.parseUUID(field)
	if !ok {
		return nil
	}
	return &id
}

func (f *fieldReader) optionalTime(field string) *time.Time {
	v := f.row.Get(field)
	if v == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return &t
		}
	}
	f.fail(field, "must be a date (RFC3339 or YYYY-MM-DD)")
	return nil
}

func (f *fieldReader) audit() AuditFields {
	return AuditFields{
		CreatedBy:   f.optional("created_by"),
		CreatedDate: f.optionalTime("created_date"),
		UpdatedBy:   f.optional("updated_by"),
		UpdatedDate: f.optionalTime("updated_date"),
	}
}

func (f *fieldReader) category() *CategoryRecord {
	rec := &CategoryRecord{
		Name:            f.optional("name"),
		Description:     f.optional("description"),
		LongDescription: f.optional("long_description"),
		Enabled:         f.optionalBool("enabled"),
		Active:          f.optionalUpper("active"),
		ImageName:       f.optional("image_name"),
		OrderType:       f.optional("order_type"),
		ShippingType:    f.optional("shipping_type"),
		SeoTitle:        f.optional("seo_title"),
		SeoKeywords:     f.optional("seo_keywords"),
		SeoDescription:  f.optional("seo_description"),
		URL:             f.optional("url"),
		PositionOnSite:  f.optionalInt("position_on_site"),
	}
	if f.required("category_path") {
		segments, err := SplitPath(f.str("category_path"))
		if err != nil {
			f.fail("category_path", err.Error())
		} else {
			rec.Segments = segments
			rec.Path = JoinPath(segments)
		}
	}
	return rec
}

func (f *fieldReader) brand() *BrandRecord {
	return &BrandRecord{
		Name:        f.str("name"),
		Logo:        f.str("logo"),
		SupplierID:  f.optional("supplier_id"),
		Active:      f.optionalUpper("active"),
		AuditFields: f.audit(),
	}
}

func (f *fieldReader) attribute() *AttributeRecord {
	rec := &AttributeRecord{
		Name:        f.str("attribute_name"),
		Active:      f.optionalUpper("attribute_active"),
		AuditFields: f.audit(),
	}
	if f.row.Has("is_color") {
		rec.IsColor, _ = f.parseBool("is_color")
	}

	lists, rowErr := DecodeAligned(f.row, "values_name", "value_value", "img_url", "values_active")
	if rowErr != nil {
		f.errs = append(f.errs, *rowErr)
		return rec
	}
	if lists.Len > 0 && !f.row.Has("values_name") {
		f.fail("values_name", "is required when value_value, img_url or values_active are provided")
		return rec
	}

	for i := 0; i < lists.Len; i++ {
		pos := i + 1
		v := AttributeValueRecord{
			Name:   lists.At("values_name", i),
			Value:  lists.At("value_value", i),
			Active: strings.ToUpper(lists.At("values_active", i)),
		}
		if url := lists.At("img_url", i); url != "" {
			v.ImageURL = &url
		}
		if v.Name == "" {
			f.fail("values_name", fmt.Sprintf("element %d is empty", pos))
			continue
		}
		switch v.Active {
		case "":
			v.Active = models.StatusInactive
		case models.StatusActive, models.StatusInactive:
		default:
			f.fail("values_active", fmt.Sprintf("element %d must be ACTIVE or INACTIVE", pos))
			continue
		}
		if v.Value == "" {
			if rec.IsColor {
				f.fail("value_value", fmt.Sprintf("element %d is required for color attributes", pos))
				continue
			}
			v.Value = v.Name
		}
		rec.Values = append(rec.Values, v)
	}

	seen := make(map[string]int, len(rec.Values))
	for i, v := range rec.Values {
		if first, dup := seen[v.Name]; dup {
			f.fail("values_name", fmt.Sprintf("value %q repeats element %d", v.Name, first))
			continue
		}
		seen[v.Name] = i + 1
	}
	return rec
}

func (f *fieldReader) returnTerms() ReturnTerms {
	return ReturnTerms{
		ReturnFeeType: f.optionalUpper("return_fee_type"),
		ReturnFee:     f.optionalDecimal("return_fee"),
	}
}

func (f *fieldReader) returnPolicy() *ReturnPolicyRecord {
	return &ReturnPolicyRecord{
		ID:          f.optionalUUID("id"),
		ReturnType:  f.upper("return_policy_type"),
		PolicyName:  f.optional("policy_name"),
		ReturnDays:  f.optionalInt("time_period_return"),
		ReturnTerms: f.returnTerms(),
		AuditFields: f.audit(),
	}
}

// returnRules applies the conditional return fee requirements once the base fields are valid.
func (f *fieldReader) returnRules(typeField, returnType string, terms *ReturnTerms) {
	if f.failed[typeField] {
		return
	}
	switch returnType {
	case models.ReturnTypeFinal:
		if f.row.Has("return_fee_type") && !f.failed["return_fee_type"] {
			f.fail("return_fee_type", "must be empty when "+typeField+" is SALES_ARE_FINAL")
		}
		if f.row.Has("return_fee") && !f.failed["return_fee"] {
			f.fail("return_fee", "must be empty when "+typeField+" is SALES_ARE_FINAL")
		}
	case models.ReturnTypeAllowed:
		if f.failed["return_fee_type"] {
			return
		}
		if terms.ReturnFeeType == nil {
			f.fail("return_fee_type", "is required when "+typeField+" is SALES_RETURN_ALLOWED")
			return
		}
		if f.failed["return_fee"] {
			return
		}
		switch *terms.ReturnFeeType {
		case models.ReturnFeeFree:
			if terms.ReturnFee.Valid && !terms.ReturnFee.Decimal.IsZero() {
				f.fail("return_fee", "must be 0 or empty when return_fee_type is FREE")
				return
			}
			terms.ReturnFee = decimal.NewNullDecimal(decimal.Zero)
		case models.ReturnFeeFixed, models.ReturnFeePercentage:
			if !terms.ReturnFee.Valid {
				f.fail("return_fee", "is required when return_fee_type is "+*terms.ReturnFeeType)
			}
		}
	}
}

func (f *fieldReader) product() *ProductRecord {
	rec := &ProductRecord{
		Name:                 f.str("product_name"),
		SelfGenProductID:     f.str("self_gen_product_id"),
		BusinessDetailsID:    f.str("business_details_id"),
		Description:          f.str("description"),
		BrandName:            f.str("brand_name"),
		CategoryID:           f.requiredUUID("category_id"),
		ShoppingCategoryName: f.optional("shopping_category_name"),
		Price:                f.requiredDecimal("price"),
		SalePrice:            f.optionalDecimal("sale_price"),
		CostPrice:            f.optionalDecimal("cost_price"),
		Quantity:             f.requiredInt("quantity"),
		PackageLength:        f.requiredDecimal("package_size_length"),
		PackageWidth:         f.requiredDecimal("package_size_width"),
		PackageHeight:        f.requiredDecimal("package_size_height"),
		PackageWeight:        f.requiredDecimal("product_weights"),
		SizeUnit:             f.str("size_unit"),
		WeightUnit:           f.str("weight_unit"),
		Active:               f.upper("active"),
		ReturnType:           f.upper("return_type"),
		ReturnTerms:          f.returnTerms(),
		WarehouseLocation:    f.optional("warehouse_location"),
		StoreLocation:        f.optional("store_location"),
		SizeChartImg:         f.optional("size_chart_img"),
		URL:                  f.str("url"),
		VideoURL:             f.optional("video_url"),
		VideoThumbnailURL:    f.optional("video_thumbnail_url"),
		IsChildItem:          f.requiredInt("is_child_item"),
		Ean:                  f.optional("ean"),
		Isbn:                 f.optional("isbn"),
		Keywords:             splitKeywords(f.str("keywords")),
		Mpn:                  f.optional("mpn"),
		SeoTitle:             f.optional("seo_title"),
		SeoDescription:       f.optional("seo_description"),
		Upc:                  f.optional("upc"),
	}
	if rec.URL == "" {
		rec.URL = Slugify(rec.Name)
	}

	images, err := DecodeImages(f.str("images"))
	if err != nil {
		f.fail("images", err.Error())
	}
	rec.Images = images

	specs, err := DecodeSpecs(f.str("specifications"))
	if err != nil {
		f.fail("specifications", err.Error())
	}
	rec.Specifications = specs
	return rec
}

func (f *fieldReader) item() *ItemRecord {
	rec := &ItemRecord{
		SelfGenProductID: f.str("self_gen_product_id"),
		AuditFields:      f.audit(),
	}
	hasAttrs := f.required("attributes")
	hasCombination := f.required("attribute_combination")
	f.required("price")
	f.required("quantity")
	if !hasAttrs {
		return rec
	}
	attrs, err := DecodeItemAttributes(f.str("attributes"))
	if err != nil {
		f.fail("attributes", err.Error())
		return rec
	}
	if !hasCombination {
		return rec
	}
	if err := DecodeCombination(f.str("attribute_combination"), attrs); err != nil {
		f.fail("attribute_combination", err.Error())
		return rec
	}
	rec.Attributes = attrs

	matrices := make(map[string]Matrix)
	for _, field := range []string{"price", "quantity", "order_limit", "package_size_length", "package_size_width", "package_size_height", "package_weight"} {
		if !f.row.Has(field) {
			continue
		}
		m, err := DecodeMatrix(f.str(field), attrs)
		if err != nil {
			f.fail(field, err.Error())
			continue
		}
		matrices[field] = m
	}
	main := 0
	for i, a := range attrs {
		if a.IsMain {
			main = i
		}
	}
	statuses := f.itemStatuses(attrs[main])
	if len(f.errs) > 0 {
		return rec
	}

	def := DefaultVariant(attrs)
	parts := make(map[string]string)
	for _, v := range Variants(attrs) {
		values := make([]string, len(attrs))
		keys := make([]string, len(attrs))
		for i, a := range attrs {
			values[i] = a.Values[v.Index[i]].Value
			keys[i] = strings.ToLower(a.Name) + "=" + strings.ToLower(values[i])
		}
		label := strings.Join(values, "/")
		sku := SKURecord{
			Variant:       v,
			VariantKey:    strings.Join(keys, ";"),
			PartNumber:    Slugify(rec.SelfGenProductID + " " + strings.Join(values, " ")),
			Active:        statuses[v.Index[main]],
			IsDefault:     slices.Equal(v.Index, def.Index),
			PackageLength: f.variantDecimal(matrices, "package_size_length", v, label, false),
			PackageWidth:  f.variantDecimal(matrices, "package_size_width", v, label, false),
			PackageHeight: f.variantDecimal(matrices, "package_size_height", v, label, false),
			PackageWeight: f.variantDecimal(matrices, "package_weight", v, label, false),
			OrderLimit:    f.variantInt(matrices, "order_limit", v, label, false, 1),
		}
		sku.Price = f.variantDecimal(matrices, "price", v, label, true).Decimal
		if q := f.variantInt(matrices, "quantity", v, label, true, 0); q != nil {
			sku.Quantity = *q
		}
		if other, dup := parts[sku.PartNumber]; dup && !f.failed["attribute_combination"] {
			f.fail("attribute_combination", fmt.Sprintf("variants %s and %s produce the same part number %q", other, label, sku.PartNumber))
		}
		parts[sku.PartNumber] = label
		rec.SKUs = append(rec.SKUs, sku)
	}
	return rec
}

// itemStatuses reads one status per main attribute value; a single element applies to all.
func (f *fieldReader) itemStatuses(main ItemAttribute) []string {
	n := len(main.Values)
	out := make([]string, n)
	parts := SplitList(f.upper("status"))
	switch len(parts) {
	case 0:
	case 1:
		for i := range out {
			out[i] = parts[0]
		}
	case n:
		copy(out, parts)
	default:
		f.fail("status", fmt.Sprintf("has %d elements for %d %s values", len(parts), n, main.Name))
		return nil
	}
	for i, s := range out {
		switch s {
		case "":
			out[i] = models.StatusActive
		case models.StatusActive, models.StatusInactive:
		default:
			f.fail("status", fmt.Sprintf("element %d must be ACTIVE or INACTIVE", i+1))
			return nil
		}
	}
	return out
}

// variantDecimal reads a positive decimal for one variant. A field reports its first failure only.
func (f *fieldReader) variantDecimal(matrices map[string]Matrix, field string, v Variant, label string, required bool) decimal.NullDecimal {
	m, ok := matrices[field]
	if !ok || f.failed[field] {
		return decimal.NullDecimal{}
	}
	raw := m.At(v)
	if raw == "" {
		if required {
			f.fail(field, "is required for variant "+label)
		}
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		f.fail(field, fmt.Sprintf("%q for variant %s must be a valid number", raw, label))
		return decimal.NullDecimal{}
	}
	if !d.IsPositive() {
		f.fail(field, "must be greater than 0 for variant "+label)
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}

func (f *fieldReader) variantInt(matrices map[string]Matrix, field string, v Variant, label string, required bool, least int) *int {
	m, ok := matrices[field]
	if !ok || f.failed[field] {
		return nil
	}
	raw := m.At(v)
	if raw == "" {
		if required {
			f.fail(field, "is required for variant "+label)
		}
		return nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		f.fail(field, fmt.Sprintf("%q for variant %s must be a valid integer", raw, label))
		return nil
	}
	if n < least {
		f.fail(field, fmt.Sprintf("must be greater than or equal to %d for variant %s", least, label))
		return nil
	}
	return &n
}

func (f *fieldReader) price() *PriceRecord {
	rec := &PriceRecord{
		PriceType:     f.upper("price_type"),
		ProductID:     f.optional("product_id"),
		SKUID:         f.optional("sku_id"),
		Price:         f.requiredDecimal("price"),
		DiscountPrice: f.optionalDecimal("discount_price"),
		CostPrice:     f.optionalDecimal("cost_price"),
		Currency:      f.upper("currency"),
		AuditFields:   f.audit(),
	}
	if rec.Currency == "" {
		rec.Currency = defaultCurrency
	}
	return rec
}

// priceRules requires exactly the target column of the price type and a discount below the price.
func (f *fieldReader) priceRules(r *PriceRecord) {
	if !f.failed["price_type"] {
		want, other := "product_id", "sku_id"
		if r.PriceType == models.PriceTargetSKU {
			want, other = other, want
		}
		if !f.row.Has(want) {
			f.fail(want, "is required when price_type is "+r.PriceType)
		}
		if f.row.Has(other) {
			f.fail(other, "must be empty when price_type is "+r.PriceType)
		}
	}
	if r.DiscountPrice.Valid && !f.failed["discount_price"] && !f.failed["price"] &&
		r.DiscountPrice.Decimal.GreaterThanOrEqual(r.Price) {
		f.fail("discount_price", "must be less than price")
	}
}

func (f *fieldReader) metaTag() *MetaTagRecord {
	rec := &MetaTagRecord{
		MetaType:          f.upper("meta_type"),
		TargetIdentifier:  f.str("target_identifier"),
		BusinessDetailsID: f.optional("business_details_id"),
		MetaTitle:         f.optional("meta_title"),
		MetaDescription:   f.optional("meta_description"),
		MetaKeywords:      f.optional("meta_keywords"),
	}
	if rec.MetaKeywords != nil {
		rec.Keywords = splitKeywords(*rec.MetaKeywords)
	}
	return rec
}

// metaTagRules applies the per-target limits and normalizes category paths.
func (f *fieldReader) metaTagRules(r *MetaTagRecord) {
	if f.failed["meta_type"] {
		return
	}
	limit := categoryMetaLimit
	switch r.MetaType {
	case MetaTypeProduct:
		limit = productMetaLimit
		if r.BusinessDetailsID == nil {
			f.fail("business_details_id", "is required when meta_type is PRODUCT")
		}
	case MetaTypeCategory:
		if r.TargetIdentifier != "" && !f.failed["target_identifier"] {
			segments, err := SplitPath(r.TargetIdentifier)
			if err != nil {
				f.fail("target_identifier", err.Error())
			} else {
				r.TargetIdentifier = JoinPath(segments)
			}
		}
	}
	for _, c := range []struct {
		field string
		value *string
	}{{"meta_description", r.MetaDescription}, {"meta_keywords", r.MetaKeywords}} {
		if c.value != nil && utf8.RuneCountInString(*c.value) > limit {
			f.fail(c.field, fmt.Sprintf("must be at most %d characters when meta_type is %s", limit, r.MetaType))
		}
	}
}
