package dataload

import (
	"bytes"
	"encoding/csv"
	"maps"
	"strconv"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"dataload-service/internal/models"
)

const testTenant = "tenant-1"

// csvFile renders rows under the full column set of a load type.
func csvFile(t *testing.T, lt models.LoadType, rows ...map[string]string) []byte {
	t.Helper()
	schema, err := SchemaFor(lt)
	require.NoError(t, err)

	headers := make([]string, len(schema.Columns))
	for i, c := range schema.Columns {
		headers[i] = c.Name
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	require.NoError(t, w.Write(headers))
	for _, row := range rows {
		record := make([]string, len(headers))
		for i, h := range headers {
			record[i] = row[h]
		}
		require.NoError(t, w.Write(record))
	}
	w.Flush()
	require.NoError(t, w.Error())
	return buf.Bytes()
}

// rowOf builds a Row the way ReadTable would for line n.
func rowOf(n int, fields map[string]string) Row {
	return Row{Number: n, Fields: fields}
}

// with returns a copy of base with overrides applied.
func with(base map[string]string, overrides map[string]string) map[string]string {
	out := maps.Clone(base)
	maps.Copy(out, overrides)
	return out
}

type productFixture struct {
	store      *memStore
	categoryID uuid.UUID
	brandID    uuid.UUID
	policyID   uuid.UUID
}

// seedProductRefs stores the brand, category and return policy a valid product row points at.
func seedProductRefs(t *testing.T, store *memStore) productFixture {
	t.Helper()
	f := productFixture{store: store}

	cat := &models.Category{TenantID: testTenant, Path: "Electronics", Name: "Electronics"}
	require.NoError(t, store.SaveCategory(t.Context(), cat))
	f.categoryID = cat.ID

	brand := &models.Brand{TenantID: testTenant, Name: "Acme", Logo: "acme.png"}
	require.NoError(t, store.SaveBrand(t.Context(), brand))
	f.brandID = brand.ID

	feeType := models.ReturnFeeFree
	policy := &models.ReturnPolicy{
		TenantID:      testTenant,
		ReturnType:    models.ReturnTypeAllowed,
		ReturnFeeType: &feeType,
		ReturnFee:     decimal.NewNullDecimal(decimal.Zero),
	}
	require.NoError(t, store.SaveReturnPolicy(t.Context(), policy))
	f.policyID = policy.ID
	return f
}

func (f productFixture) row(selfGenID string) map[string]string {
	return map[string]string{
		"product_name":        "Widget " + selfGenID,
		"self_gen_product_id": selfGenID,
		"business_details_id": "biz-1",
		"description":         "A widget",
		"brand_name":          "Acme",
		"category_id":         f.categoryID.String(),
		"price":               "10.00",
		"quantity":            "5",
		"package_size_length": "10",
		"package_size_width":  "5",
		"package_size_height": "2",
		"product_weights":     "0.5",
		"size_unit":           "cm",
		"weight_unit":         "kg",
		"active":              "ACTIVE",
		"return_type":         models.ReturnTypeAllowed,
		"return_fee_type":     models.ReturnFeeFree,
		"is_child_item":       "0",
		"warehouse_location":  "WH-1",
		"images":              "https://cdn.example.com/w.jpg|main_image:true|https://cdn.example.com/w2.jpg|main_image:false",
		"specifications":      "Color:Red|Size:M",
		"keywords":            "widget, gadget",
	}
}

func (f productFixture) rows(n int) []map[string]string {
	out := make([]map[string]string, n)
	for i := range out {
		out[i] = f.row("SKU-" + strconv.Itoa(i+1))
	}
	return out
}
