package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrObjectNotFound is returned when a locator points at nothing.
var ErrObjectNotFound = errors.New("object not found")

// ObjectStore keeps uploaded files until their job has run.
// A locator is the opaque string stored on the upload session.
type ObjectStore interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error)
	Open(ctx context.Context, locator string) (io.ReadCloser, error)
	Delete(ctx context.Context, locator string) error
}

// ObjectKey is where an uploaded file is kept.
func ObjectKey(tenantID, loadType, sessionID, filename string) string {
	return fmt.Sprintf("tenants/%s/%s/%s/%s", tenantID, loadType, sessionID, sanitizeFilename(filename))
}

func sanitizeFilename(name string) string {
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == ".." {
		return "upload"
	}
	return name
}

// splitLocator parses "<scheme>://<rest>".
func splitLocator(locator, scheme string) (string, error) {
	prefix := scheme + "://"
	if !strings.HasPrefix(locator, prefix) {
		return "", fmt.Errorf("locator %q is not a %s locator", locator, scheme)
	}
	return strings.TrimPrefix(locator, prefix), nil
}
