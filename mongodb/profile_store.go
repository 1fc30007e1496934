package mongodb

import (
	"context"
	"errors"
	"fmt"
	"maps"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"go.pilab.hu/recovery/domain"
)

// ProfileStore implements domain.ProfileStore. Documents use the identity as _id.
type ProfileStore struct {
	db *mongo.Database
}

// NewProfileStore creates a ProfileStore on db.
func NewProfileStore(db *mongo.Database) *ProfileStore {
	return &ProfileStore{db: db}
}

// Upsert writes fields to collection/id, creating the document when missing.
// A merge write uses $set so fields absent from the write are preserved;
// otherwise the whole document is replaced.
func (s *ProfileStore) Upsert(ctx context.Context, collection, id string, fields map[string]any, merge bool) error {
	if id == "" {
		return errors.New("profile id is required")
	}
	coll := s.db.Collection(collection)
	filter := bson.M{"_id": id}

	if merge {
		update := bson.M{"$setOnInsert": bson.M{"_id": id}}
		if len(fields) > 0 {
			update = bson.M{"$set": bson.M(maps.Clone(fields))}
		}
		if _, err := coll.UpdateOne(ctx, filter, update, options.UpdateOne().SetUpsert(true)); err != nil {
			log.Error().Err(err).Str("collection", collection).Str("id", id).Msg("Error merging profile in MongoDB")
			return fmt.Errorf("merge profile %s: %w", id, err)
		}
		return nil
	}

	replacement := bson.M(maps.Clone(fields))
	delete(replacement, "_id")
	if _, err := coll.ReplaceOne(ctx, filter, replacement, options.Replace().SetUpsert(true)); err != nil {
		log.Error().Err(err).Str("collection", collection).Str("id", id).Msg("Error replacing profile in MongoDB")
		return fmt.Errorf("replace profile %s: %w", id, err)
	}
	return nil
}

// Get returns the document without its _id, or domain.ErrProfileNotFound.
func (s *ProfileStore) Get(ctx context.Context, collection, id string) (map[string]any, error) {
	var raw bson.M
	err := s.db.Collection(collection).FindOne(ctx, bson.M{"_id": id}).Decode(&raw)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrProfileNotFound
		}
		log.Error().Err(err).Str("collection", collection).Str("id", id).Msg("Error getting profile from MongoDB")
		return nil, fmt.Errorf("get profile %s: %w", id, err)
	}
	delete(raw, "_id")
	return normalizeDocument(raw), nil
}

// normalizeDocument turns driver-specific values into plain Go values so
// callers never see bson types.
func normalizeDocument(doc bson.M) map[string]any {
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v any) any {
	switch val := v.(type) {
	case bson.DateTime:
		return val.Time().UTC()
	case bson.M:
		return normalizeDocument(val)
	case bson.D:
		m := make(map[string]any, len(val))
		for _, e := range val {
			m[e.Key] = normalizeValue(e.Value)
		}
		return m
	case bson.A:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = normalizeValue(e)
		}
		return out
	default:
		return v
	}
}

var _ domain.ProfileStore = (*ProfileStore)(nil)
