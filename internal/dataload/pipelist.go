package dataload

import (
	"fmt"
	"strings"

	"dataload-service/internal/models"
)

// ListSeparator delimits the elements of a multi-valued cell.
const ListSeparator = "|"

const (
	mainImageTrue  = "main_image:true"
	mainImageFalse = "main_image:false"
)

// SplitList decodes a pipe list. An empty cell is an empty list; empty elements keep their position.
func SplitList(cell string) []string {
	if strings.TrimSpace(cell) == "" {
		return nil
	}
	parts := strings.Split(cell, ListSeparator)
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// JoinList encodes elements as a pipe list.
func JoinList(items []string) string {
	return strings.Join(items, ListSeparator)
}

// AlignedLists is a set of pipe lists decoded to the same length.
type AlignedLists struct {
	Len    int
	values map[string][]string
}

// At returns element i of field, "" when the field was absent from the row.
func (a AlignedLists) At(field string, i int) string {
	list := a.values[field]
	if i < 0 || i >= len(list) {
		return ""
	}
	return list[i]
}

// DecodeAligned decodes fields that describe the same elements position by position.
// Every non-empty field must have the same element count; empty fields read as "" at every position.
func DecodeAligned(row Row, fields ...string) (AlignedLists, *models.RowError) {
	out := AlignedLists{values: make(map[string][]string, len(fields))}
	var present []string
	for _, f := range fields {
		list := SplitList(row.Get(f))
		if list == nil {
			continue
		}
		out.values[f] = list
		present = append(present, f)
	}
	if len(present) == 0 {
		return out, nil
	}

	out.Len = len(out.values[present[0]])
	for _, f := range present[1:] {
		if len(out.values[f]) == out.Len {
			continue
		}
		counts := make([]string, 0, len(present))
		for _, p := range present {
			counts = append(counts, fmt.Sprintf("%s=%d", p, len(out.values[p])))
		}
		e := models.NewRowError(row.Number, strings.Join(fields, ","), models.ErrorKindValidation,
			"aligned lists have mismatched element counts: "+strings.Join(counts, ", "), row.Get(f))
		return AlignedLists{}, &e
	}
	return out, nil
}

// ImageEntry is one decoded element of an images cell.
type ImageEntry struct {
	URL    string
	IsMain bool
}

// DecodeImages reads `url|main_image:true|url|main_image:false` pairs.
func DecodeImages(cell string) ([]ImageEntry, error) {
	parts := SplitList(cell)
	if parts == nil {
		return nil, nil
	}
	if len(parts)%2 != 0 {
		return nil, fmt.Errorf("images must be pairs of url and main_image flag, got %d elements", len(parts))
	}
	images := make([]ImageEntry, 0, len(parts)/2)
	mains := 0
	for i := 0; i < len(parts); i += 2 {
		url, flag := parts[i], strings.ToLower(parts[i+1])
		if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
			return nil, fmt.Errorf("image URL %q must be an http(s) URL", url)
		}
		switch flag {
		case mainImageTrue:
			mains++
			images = append(images, ImageEntry{URL: url, IsMain: true})
		case mainImageFalse:
			images = append(images, ImageEntry{URL: url})
		default:
			return nil, fmt.Errorf("image flag %q must be %s or %s", parts[i+1], mainImageTrue, mainImageFalse)
		}
	}
	if mains > 1 {
		return nil, fmt.Errorf("at most one image can be flagged %s, got %d", mainImageTrue, mains)
	}
	return images, nil
}

// EncodeImages is the inverse of DecodeImages.
func EncodeImages(images []ImageEntry) string {
	parts := make([]string, 0, len(images)*2)
	for _, img := range images {
		flag := mainImageFalse
		if img.IsMain {
			flag = mainImageTrue
		}
		parts = append(parts, img.URL, flag)
	}
	return JoinList(parts)
}

// Spec is one Name:Value element of a specifications cell.
type Spec struct {
	Name  string
	Value string
}

// DecodeSpecs reads `Name:Value|Name:Value`. Values may contain colons.
func DecodeSpecs(cell string) ([]Spec, error) {
	parts := SplitList(cell)
	if parts == nil {
		return nil, nil
	}
	specs := make([]Spec, 0, len(parts))
	for _, pair := range parts {
		name, value, ok := strings.Cut(pair, ":")
		name, value = strings.TrimSpace(name), strings.TrimSpace(value)
		if !ok || name == "" || value == "" {
			return nil, fmt.Errorf("specification %q must be in Name:Value format with both parts non-empty", pair)
		}
		specs = append(specs, Spec{Name: name, Value: value})
	}
	return specs, nil
}

// EncodeSpecs is the inverse of DecodeSpecs.
func EncodeSpecs(specs []Spec) string {
	parts := make([]string, len(specs))
	for i, s := range specs {
		parts[i] = s.Name + ":" + s.Value
	}
	return JoinList(parts)
}
