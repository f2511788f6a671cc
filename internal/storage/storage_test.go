package storage

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectKey(t *testing.T) {
	assert.Equal(t, "tenants/t1/brand/s1/brands.csv", ObjectKey("t1", "brand", "s1", "brands.csv"))
	assert.Equal(t, "tenants/t1/brand/s1/evil.csv", ObjectKey("t1", "brand", "s1", "../../evil.csv"))
	assert.Equal(t, "tenants/t1/brand/s1/x.xlsx", ObjectKey("t1", "brand", "s1", `C:\Users\me\x.xlsx`))
	assert.Equal(t, "tenants/t1/brand/s1/upload", ObjectKey("t1", "brand", "s1", " .. "))
}

func TestLocalStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	locator, err := store.Put(ctx, "tenants/t1/brand/s1/brands.csv", strings.NewReader("name,logo\n"), 10, "text/csv")
	require.NoError(t, err)
	assert.Equal(t, "local://tenants/t1/brand/s1/brands.csv", locator)

	rc, err := store.Open(ctx, locator)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, "name,logo\n", string(data))

	require.NoError(t, store.Delete(ctx, locator))
	require.NoError(t, store.Delete(ctx, locator), "deleting twice is not an error")

	_, err = store.Open(ctx, locator)
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestLocalStore_StaysInsideRoot(t *testing.T) {
	root := t.TempDir()
	store, err := NewLocalStore(root)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(store.path("../../etc/passwd"), root))
}

func TestLocalStore_RejectsForeignLocator(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Open(context.Background(), "s3://bucket/key")
	assert.Error(t, err)
}

func TestParseS3Locator(t *testing.T) {
	bucket, key, err := parseS3Locator("s3://uploads/tenants/t1/brand/s1/brands.csv")
	require.NoError(t, err)
	assert.Equal(t, "uploads", bucket)
	assert.Equal(t, "tenants/t1/brand/s1/brands.csv", key)

	for _, bad := range []string{"local://x", "s3://bucket", "s3:///key", "s3://bucket/"} {
		_, _, err := parseS3Locator(bad)
		assert.Error(t, err, bad)
	}
}
