package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/docq-io/docq/internal/storage"
)

// Store implements storage.Store over one MongoDB collection.
type Store struct {
	coll *mongo.Collection
}

// NewStore wraps an already-connected collection.
func NewStore(coll *mongo.Collection) *Store {
	return &Store{coll: coll}
}

func (s *Store) Insert(ctx context.Context, doc storage.Doc) (storage.ID, error) {
	res, err := s.coll.InsertOne(ctx, toValue(doc))
	if err != nil {
		return "", fmt.Errorf("mongo insert: %w", err)
	}
	oid, ok := res.InsertedID.(primitive.ObjectID)
	if !ok {
		return "", fmt.Errorf("mongo insert: unexpected id type %T", res.InsertedID)
	}
	return storage.ID(oid.Hex()), nil
}

func (s *Store) FindOneAndUpdate(ctx context.Context, filter storage.Doc, sort []storage.SortField, update storage.Doc) (storage.Doc, error) {
	f, err := toFilter(filter)
	if err != nil {
		return nil, err
	}
	opts := options.FindOneAndUpdate().
		SetSort(toSort(sort)).
		SetReturnDocument(options.After)

	var out bson.M
	err = s.coll.FindOneAndUpdate(ctx, f, toValue(update), opts).Decode(&out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, storage.ErrNoDocument
	}
	if err != nil {
		return nil, fmt.Errorf("mongo findOneAndUpdate: %w", err)
	}
	return fromDoc(out), nil
}

func (s *Store) UpdateMany(ctx context.Context, filter storage.Doc, update storage.Doc) (int64, error) {
	f, err := toFilter(filter)
	if err != nil {
		return 0, err
	}
	res, err := s.coll.UpdateMany(ctx, f, toValue(update))
	if err != nil {
		return 0, fmt.Errorf("mongo updateMany: %w", err)
	}
	return res.ModifiedCount, nil
}

func (s *Store) UpsertByID(ctx context.Context, id storage.ID, doc storage.Doc) error {
	oid, err := parseObjectID(string(id))
	if err != nil {
		return err
	}
	// $set, not a replace: fields absent from doc must survive the write.
	_, err = s.coll.UpdateOne(ctx, bson.M{"_id": oid}, upsertUpdate(doc),
		options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("mongo upsert: %w", err)
	}
	return nil
}

func (s *Store) RemoveMany(ctx context.Context, filter storage.Doc) (int64, error) {
	f, err := toFilter(filter)
	if err != nil {
		return 0, err
	}
	res, err := s.coll.DeleteMany(ctx, f)
	if err != nil {
		return 0, fmt.Errorf("mongo deleteMany: %w", err)
	}
	return res.DeletedCount, nil
}

func (s *Store) Count(ctx context.Context, filter storage.Doc) (int64, error) {
	f, err := toFilter(filter)
	if err != nil {
		return 0, err
	}
	n, err := s.coll.CountDocuments(ctx, f)
	if err != nil {
		return 0, fmt.Errorf("mongo count: %w", err)
	}
	return n, nil
}

func (s *Store) ListIndexes(ctx context.Context) ([]storage.Index, error) {
	cur, err := s.coll.Indexes().List(ctx)
	if err != nil {
		return nil, fmt.Errorf("mongo list indexes: %w", err)
	}
	defer cur.Close(ctx)

	var out []storage.Index
	for cur.Next(ctx) {
		// Key order matters for prefix checks, so decode into bson.D.
		var spec struct {
			Name string `bson:"name"`
			Key  bson.D `bson:"key"`
		}
		if err := cur.Decode(&spec); err != nil {
			return nil, fmt.Errorf("mongo decode index: %w", err)
		}
		idx := storage.Index{Name: spec.Name}
		for _, e := range spec.Key {
			dir := 0
			switch n := e.Value.(type) {
			case int32:
				dir = int(n)
			case int64:
				dir = int(n)
			case float64:
				dir = int(n)
			}
			idx.Keys = append(idx.Keys, storage.IndexKey{Field: e.Key, Direction: dir})
		}
		out = append(out, idx)
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("mongo list indexes: %w", err)
	}
	return out, nil
}

func (s *Store) CreateIndex(ctx context.Context, keys []storage.IndexKey, name string) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    toIndexKeys(keys),
		Options: options.Index().SetName(name),
	})
	if err != nil {
		return fmt.Errorf("mongo create index: %w", err)
	}
	return nil
}
