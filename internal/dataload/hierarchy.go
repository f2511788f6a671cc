package dataload

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"dataload-service/internal/models"
)

// PathSeparator delimits category path segments.
const PathSeparator = "/"

// SplitPath trims each segment and rejects empty ones. Leading and trailing separators are ignored.
func SplitPath(path string) ([]string, error) {
	trimmed := strings.Trim(strings.TrimSpace(path), PathSeparator)
	if trimmed == "" {
		return nil, errors.New("must contain at least one segment")
	}
	segments := strings.Split(trimmed, PathSeparator)
	for i, s := range segments {
		segments[i] = strings.TrimSpace(s)
		if segments[i] == "" {
			return nil, fmt.Errorf("segment %d is empty", i+1)
		}
	}
	return segments, nil
}

// JoinPath is the canonical form of a path, used as the category natural key.
func JoinPath(segments []string) string {
	return strings.Join(segments, PathSeparator)
}

// HierarchyResolver creates missing ancestors and writes the terminal category of a path.
// It caches path -> id for the job; ids learned inside a row are staged until the row commits.
type HierarchyResolver struct {
	tenantID  string
	committed map[string]uuid.UUID
	staged    map[string]uuid.UUID
}

func NewHierarchyResolver(tenantID string) *HierarchyResolver {
	return &HierarchyResolver{
		tenantID:  tenantID,
		committed: make(map[string]uuid.UUID),
		staged:    make(map[string]uuid.UUID),
	}
}

// Commit keeps the ids learned by the current row.
func (h *HierarchyResolver) Commit() {
	for path, id := range h.staged {
		h.committed[path] = id
	}
	clear(h.staged)
}

// Discard forgets ids learned by a row whose writes were rolled back.
func (h *HierarchyResolver) Discard() {
	clear(h.staged)
}

func (h *HierarchyResolver) cached(path string) (uuid.UUID, bool) {
	if id, ok := h.staged[path]; ok {
		return id, true
	}
	id, ok := h.committed[path]
	return id, ok
}

// Apply walks the path left to right, creating placeholder ancestors, then
// writes the row's attributes onto the terminal category.
func (h *HierarchyResolver) Apply(ctx context.Context, store CatalogStore, rec *CategoryRecord) (*models.Category, error) {
	var parentID *uuid.UUID
	last := len(rec.Segments) - 1

	for i, segment := range rec.Segments[:last] {
		path := JoinPath(rec.Segments[:i+1])
		id, err := h.ensureAncestor(ctx, store, path, segment, i, parentID)
		if err != nil {
			return nil, err
		}
		parentID = &id
	}

	terminal, err := store.FindCategoryByPath(ctx, h.tenantID, rec.Path)
	switch {
	case errors.Is(err, ErrNotFound):
		terminal = &models.Category{
			TenantID: h.tenantID,
			Path:     rec.Path,
			Name:     rec.Segments[last],
			Level:    last,
		}
	case err != nil:
		return nil, fmt.Errorf("lookup category %q: %w", rec.Path, err)
	}
	terminal.ParentID = parentID
	applyCategoryFields(terminal, rec)

	if err := store.SaveCategory(ctx, terminal); err != nil {
		return nil, fmt.Errorf("save category %q: %w", rec.Path, err)
	}
	h.staged[rec.Path] = terminal.ID
	return terminal, nil
}

func (h *HierarchyResolver) ensureAncestor(ctx context.Context, store CatalogStore, path, segment string, level int, parentID *uuid.UUID) (uuid.UUID, error) {
	if id, ok := h.cached(path); ok {
		return id, nil
	}

	existing, err := store.FindCategoryByPath(ctx, h.tenantID, path)
	if err == nil {
		// Persisted before this row started, so a row rollback cannot remove it.
		h.committed[path] = existing.ID
		return existing.ID, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return uuid.Nil, fmt.Errorf("lookup category %q: %w", path, err)
	}

	placeholder := &models.Category{
		TenantID: h.tenantID,
		Path:     path,
		Name:     segment,
		ParentID: parentID,
		Level:    level,
	}
	if err := store.SaveCategory(ctx, placeholder); err != nil {
		return uuid.Nil, fmt.Errorf("create category %q: %w", path, err)
	}
	h.staged[path] = placeholder.ID
	return placeholder.ID, nil
}

func applyCategoryFields(c *models.Category, rec *CategoryRecord) {
	set := func(dst **string, v *string) {
		if v != nil {
			*dst = v
		}
	}
	if rec.Name != nil {
		c.Name = *rec.Name
	}
	set(&c.Description, rec.Description)
	set(&c.LongDescription, rec.LongDescription)
	set(&c.Active, rec.Active)
	set(&c.ImageName, rec.ImageName)
	set(&c.OrderType, rec.OrderType)
	set(&c.ShippingType, rec.ShippingType)
	set(&c.SeoTitle, rec.SeoTitle)
	set(&c.SeoKeywords, rec.SeoKeywords)
	set(&c.SeoDescription, rec.SeoDescription)
	set(&c.URL, rec.URL)
	if rec.Enabled != nil {
		c.Enabled = rec.Enabled
	}
	if rec.PositionOnSite != nil {
		c.PositionOnSite = rec.PositionOnSite
	}
}
