package dataload

import (
	"fmt"
	"strings"
)

const (
	mainAttributePrefix = "main_attribute:"
	mainSKUSuffix       = "|main_sku"
	matrixValueSep      = ":"

	// maxItemAttributes bounds the variant matrix to rows and columns.
	maxItemAttributes = 2
)

// ItemAttribute is one axis of an item row's variant matrix.
type ItemAttribute struct {
	Name   string
	IsMain bool
	Values []ItemValue
}

// ItemValue is one value of an axis; Default marks the value of the default SKU.
type ItemValue struct {
	Value   string
	Default bool
}

// DecodeItemAttributes reads `name|main_attribute:true|name|main_attribute:false`.
// Exactly one attribute must be main.
func DecodeItemAttributes(cell string) ([]ItemAttribute, error) {
	parts := SplitList(cell)
	if parts == nil {
		return nil, fmt.Errorf("at least one attribute is required")
	}
	if len(parts)%2 != 0 {
		return nil, fmt.Errorf("attributes must be pairs of name and %s flag, got %d elements", mainAttributePrefix, len(parts))
	}
	attrs := make([]ItemAttribute, 0, len(parts)/2)
	mains := 0
	seen := make(map[string]bool)
	for i := 0; i < len(parts); i += 2 {
		name, flag := parts[i], strings.ToLower(parts[i+1])
		if name == "" {
			return nil, fmt.Errorf("attribute %d has no name", i/2+1)
		}
		if seen[strings.ToLower(name)] {
			return nil, fmt.Errorf("attribute %q is listed twice", name)
		}
		seen[strings.ToLower(name)] = true
		switch flag {
		case mainAttributePrefix + "true":
			mains++
			attrs = append(attrs, ItemAttribute{Name: name, IsMain: true})
		case mainAttributePrefix + "false":
			attrs = append(attrs, ItemAttribute{Name: name})
		default:
			return nil, fmt.Errorf("attribute flag %q must be %strue or %sfalse", parts[i+1], mainAttributePrefix, mainAttributePrefix)
		}
	}
	if len(attrs) > maxItemAttributes {
		return nil, fmt.Errorf("at most %d attributes are supported, got %d", maxItemAttributes, len(attrs))
	}
	if mains != 1 {
		return nil, fmt.Errorf("exactly one attribute must be flagged %strue, got %d", mainAttributePrefix, mains)
	}
	return attrs, nil
}

// DecodeCombination fills the attributes' values from `{Black|main_sku:true:White}|{S:M}`.
// Groups follow the attribute order; values within a group are colon separated.
func DecodeCombination(cell string, attrs []ItemAttribute) error {
	cell = strings.TrimSpace(cell)
	if !strings.HasPrefix(cell, "{") || !strings.HasSuffix(cell, "}") {
		return fmt.Errorf("attribute_combination must be brace delimited groups like {a:b}|{c:d}")
	}
	groups := strings.Split(cell[1:len(cell)-1], "}"+ListSeparator+"{")
	if len(groups) != len(attrs) {
		return fmt.Errorf("attribute_combination has %d groups for %d attributes", len(groups), len(attrs))
	}
	for g, group := range groups {
		values, err := decodeCombinationGroup(group)
		if err != nil {
			return fmt.Errorf("group %d (%s): %w", g+1, attrs[g].Name, err)
		}
		attrs[g].Values = values
	}
	return nil
}

func decodeCombinationGroup(group string) ([]ItemValue, error) {
	tokens := strings.Split(group, matrixValueSep)
	var values []ItemValue
	defaults := 0
	seen := make(map[string]bool)
	for i := 0; i < len(tokens); i++ {
		v := ItemValue{Value: strings.TrimSpace(tokens[i])}
		if base, ok := strings.CutSuffix(v.Value, mainSKUSuffix); ok {
			if i+1 >= len(tokens) {
				return nil, fmt.Errorf("value %q has no main_sku flag", base)
			}
			i++
			switch strings.ToLower(strings.TrimSpace(tokens[i])) {
			case "true":
				v.Default = true
				defaults++
			case "false":
			default:
				return nil, fmt.Errorf("main_sku flag of %q must be true or false", base)
			}
			v.Value = strings.TrimSpace(base)
		}
		if v.Value == "" {
			return nil, fmt.Errorf("value %d is empty", len(values)+1)
		}
		if seen[v.Value] {
			return nil, fmt.Errorf("value %q is listed twice", v.Value)
		}
		seen[v.Value] = true
		values = append(values, v)
	}
	if defaults > 1 {
		return nil, fmt.Errorf("at most one value can be flagged main_sku:true, got %d", defaults)
	}
	return values, nil
}

// Variant is one cell of the matrix: Index[i] is the value position on attribute i.
type Variant struct {
	Index []int
}

// Variants enumerates the cartesian product of the attributes' values, first attribute outermost.
func Variants(attrs []ItemAttribute) []Variant {
	out := []Variant{{}}
	for _, a := range attrs {
		next := make([]Variant, 0, len(out)*len(a.Values))
		for _, v := range out {
			for j := range a.Values {
				idx := append(append([]int(nil), v.Index...), j)
				next = append(next, Variant{Index: idx})
			}
		}
		out = next
	}
	return out
}

// DefaultVariant picks each attribute's flagged value, or its first value when none is flagged.
func DefaultVariant(attrs []ItemAttribute) Variant {
	idx := make([]int, len(attrs))
	for i, a := range attrs {
		for j, v := range a.Values {
			if v.Default {
				idx[i] = j
				break
			}
		}
	}
	return Variant{Index: idx}
}

// Matrix is a per-variant cell: a scalar applies to every variant, otherwise
// `a1:a2` for one attribute or `a1:a2|b1:b2` for two, rows following the first attribute.
type Matrix struct {
	scalar string
	cells  [][]string
}

// DecodeMatrix checks the cell's shape against the attributes.
func DecodeMatrix(cell string, attrs []ItemAttribute) (Matrix, error) {
	cell = strings.TrimSpace(cell)
	if !strings.Contains(cell, ListSeparator) && !strings.Contains(cell, matrixValueSep) {
		return Matrix{scalar: cell}, nil
	}

	var rows []string
	if len(attrs) == 1 {
		rows = []string{cell}
	} else {
		rows = strings.Split(cell, ListSeparator)
		if len(rows) != len(attrs[0].Values) {
			return Matrix{}, fmt.Errorf("has %d groups for %d %s values", len(rows), len(attrs[0].Values), attrs[0].Name)
		}
	}
	last := attrs[len(attrs)-1]
	m := Matrix{cells: make([][]string, len(rows))}
	for i, r := range rows {
		cols := strings.Split(r, matrixValueSep)
		for j := range cols {
			cols[j] = strings.TrimSpace(cols[j])
		}
		if len(cols) != len(last.Values) {
			return Matrix{}, fmt.Errorf("group %d has %d values for %d %s values", i+1, len(cols), len(last.Values), last.Name)
		}
		m.cells[i] = cols
	}
	return m, nil
}

// At returns the raw cell of a variant.
func (m Matrix) At(v Variant) string {
	if m.cells == nil {
		return m.scalar
	}
	if len(v.Index) == 1 {
		return m.cells[0][v.Index[0]]
	}
	return m.cells[v.Index[0]][v.Index[1]]
}
