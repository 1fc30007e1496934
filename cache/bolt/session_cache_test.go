package bolt

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.pilab.hu/recovery/domain"
)

func TestSessionCache_SetGetDelete(t *testing.T) {
	c, err := Open(filepath.Join(t.TempDir(), "nested", "cache.db"), "")
	require.NoError(t, err)
	defer c.Close()
	ctx := context.Background()

	_, err = c.Get(ctx, "session")
	assert.ErrorIs(t, err, domain.ErrCacheMiss)

	require.NoError(t, c.Set(ctx, "session", []byte(`{"identity":"u1"}`)))
	got, err := c.Get(ctx, "session")
	require.NoError(t, err)
	assert.Equal(t, `{"identity":"u1"}`, string(got))

	require.NoError(t, c.Delete(ctx, "session"))
	_, err = c.Get(ctx, "session")
	assert.ErrorIs(t, err, domain.ErrCacheMiss)
	assert.NoError(t, c.Delete(ctx, "session"))
}

func TestSessionCache_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	ctx := context.Background()

	c, err := Open(path, "mirror")
	require.NoError(t, err)
	require.NoError(t, c.Set(ctx, "session", []byte("v1")))
	require.NoError(t, c.Close())

	c, err = Open(path, "mirror")
	require.NoError(t, err)
	defer c.Close()

	got, err := c.Get(ctx, "session")
	require.NoError(t, err)
	assert.Equal(t, "v1", string(got))
}
