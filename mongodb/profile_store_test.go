package mongodb

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"

	"go.pilab.hu/recovery/domain"
	"go.pilab.hu/recovery/mongodb/testutil"
)

func TestProfileStore_MergeUpsert(t *testing.T) {
	db, cleanup := testutil.SetupTestMongoDB(t, "profiles_merge")
	defer cleanup()
	store := NewProfileStore(db)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, UsersCollection, "u1", map[string]any{"a": 1, "b": 2}, true))
	require.NoError(t, store.Upsert(ctx, UsersCollection, "u1", map[string]any{"b": 3, "c": 4}, true))

	doc, err := store.Get(ctx, UsersCollection, "u1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, doc["a"])
	assert.EqualValues(t, 3, doc["b"])
	assert.EqualValues(t, 4, doc["c"])
	assert.Len(t, doc, 3)
}

func TestProfileStore_ReplaceUpsert(t *testing.T) {
	db, cleanup := testutil.SetupTestMongoDB(t, "profiles_replace")
	defer cleanup()
	store := NewProfileStore(db)
	ctx := context.Background()

	created := time.Date(2026, 10, 17, 9, 30, 0, 0, time.UTC)
	require.NoError(t, store.Upsert(ctx, UsersCollection, "u1", map[string]any{"stale": true}, false))
	require.NoError(t, store.Upsert(ctx, UsersCollection, "u1", map[string]any{"email": "x@y.com", "createdAt": created}, false))

	doc, err := store.Get(ctx, UsersCollection, "u1")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"email": "x@y.com", "createdAt": created}, doc)
}

func TestProfileStore_GetMissing(t *testing.T) {
	db, cleanup := testutil.SetupTestMongoDB(t, "profiles_missing")
	defer cleanup()

	_, err := NewProfileStore(db).Get(context.Background(), UsersCollection, "nope")
	assert.ErrorIs(t, err, domain.ErrProfileNotFound)
}

func TestNormalizeDocument(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	doc := normalizeDocument(bson.M{
		"when":   bson.NewDateTimeFromTime(ts),
		"nested": bson.D{{Key: "k", Value: "v"}},
		"list":   bson.A{"x", bson.M{"y": int32(1)}},
	})

	assert.Equal(t, ts, doc["when"])
	assert.Equal(t, map[string]any{"k": "v"}, doc["nested"])
	assert.Equal(t, []any{"x", map[string]any{"y": int32(1)}}, doc["list"])
}
