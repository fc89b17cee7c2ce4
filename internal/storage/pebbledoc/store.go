package pebbledoc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"

	"github.com/docq-io/docq/internal/storage"
	pebblestore "github.com/docq-io/docq/internal/storage/pebble"
	"github.com/docq-io/docq/pkg/id"
)

// maxIndexNameLen mirrors the backend convention the index manager's
// shorten-and-retry path is written against.
const maxIndexNameLen = 127

const (
	prefixDoc = "doc/"
	prefixIdx = "idx/"
)

// Store is an embedded document store satisfying storage.Store.
type Store struct {
	db  *pebblestore.DB
	gen *id.Generator

	// mu serializes every select-and-update; see the package doc.
	mu sync.Mutex
}

var _ storage.Store = (*Store)(nil)

// NewStore creates a document store on an open Pebble database. The same
// database can also carry a BlobStore; keyspaces do not overlap.
func NewStore(db *pebblestore.DB) *Store {
	return &Store{db: db, gen: id.NewGenerator()}
}

func docKey(docID string) []byte { return []byte(prefixDoc + docID) }
func idxKey(name string) []byte  { return []byte(prefixIdx + name) }

// Insert implements storage.Store.
func (s *Store) Insert(_ context.Context, doc storage.Doc) (storage.ID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	docID := s.gen.Next().String()
	cp := make(map[string]any, len(doc)+1)
	for k, v := range doc {
		cp[k] = v
	}
	cp["_id"] = docID
	data, err := json.Marshal(cp)
	if err != nil {
		return "", fmt.Errorf("pebbledoc: marshal document: %w", err)
	}
	if err := s.db.Set(docKey(docID), data); err != nil {
		return "", err
	}
	return storage.ID(docID), nil
}

// FindOneAndUpdate implements storage.Store. The whole select-and-update is
// one critical section, so concurrent callers cannot claim the same
// document.
func (s *Store) FindOneAndUpdate(_ context.Context, filter storage.Doc, sortFields []storage.SortField, update storage.Doc) (storage.Doc, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	docs, err := s.scan(filter)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, storage.ErrNoDocument
	}
	sortDocs(docs, sortFields)
	doc := docs[0]
	if err := applySet(doc, update); err != nil {
		return nil, err
	}
	if err := s.write(doc); err != nil {
		return nil, err
	}
	return storage.Doc(doc), nil
}

// UpdateMany implements storage.Store.
func (s *Store) UpdateMany(_ context.Context, filter storage.Doc, update storage.Doc) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	docs, err := s.scan(filter)
	if err != nil {
		return 0, err
	}
	var n int64
	for _, doc := range docs {
		if err := applySet(doc, update); err != nil {
			return n, err
		}
		if err := s.write(doc); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// UpsertByID implements storage.Store. doc holds the fields to set; the
// document is created under the given id when absent.
func (s *Store) UpsertByID(_ context.Context, docID storage.ID, doc storage.Doc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := map[string]any{"_id": string(docID)}
	if data, err := s.db.Get(docKey(string(docID))); err == nil {
		if err := json.Unmarshal(data, &existing); err != nil {
			return fmt.Errorf("pebbledoc: unmarshal document %s: %w", docID, err)
		}
	} else if !errors.Is(err, pebblestore.ErrNotFound) {
		return err
	}
	for k, v := range doc {
		existing[k] = v
	}
	return s.write(existing)
}

// RemoveMany implements storage.Store.
func (s *Store) RemoveMany(_ context.Context, filter storage.Doc) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	docs, err := s.scan(filter)
	if err != nil {
		return 0, err
	}
	b := s.db.NewBatch()
	defer b.Close()
	for _, doc := range docs {
		docID, _ := doc["_id"].(storage.ID)
		if err := b.Delete(docKey(string(docID)), nil); err != nil {
			return 0, err
		}
	}
	if err := s.db.CommitBatch(b); err != nil {
		return 0, err
	}
	return int64(len(docs)), nil
}

// Count implements storage.Store.
func (s *Store) Count(_ context.Context, filter storage.Doc) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	docs, err := s.scan(filter)
	if err != nil {
		return 0, err
	}
	return int64(len(docs)), nil
}

// ListIndexes implements storage.Store.
func (s *Store) ListIndexes(_ context.Context) ([]storage.Index, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lo := []byte(prefixIdx)
	hi := append(append([]byte{}, lo...), 0xFF)
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: lo, UpperBound: hi})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []storage.Index
	for ok := iter.First(); ok; ok = iter.Next() {
		var keys []storage.IndexKey
		if err := json.Unmarshal(iter.Value(), &keys); err != nil {
			return nil, fmt.Errorf("pebbledoc: unmarshal index: %w", err)
		}
		out = append(out, storage.Index{
			Name: string(iter.Key()[len(prefixIdx):]),
			Keys: keys,
		})
	}
	return out, nil
}

// CreateIndex implements storage.Store. Re-creating an existing key
// signature under a different name is a no-op, matching the backend
// convention the index manager relies on.
func (s *Store) CreateIndex(ctx context.Context, keys []storage.IndexKey, name string) error {
	if len(name) > maxIndexNameLen {
		return fmt.Errorf("pebbledoc: index name exceeds %d bytes", maxIndexNameLen)
	}
	if len(keys) == 0 {
		return errors.New("pebbledoc: empty index key sequence")
	}

	existing, err := s.ListIndexes(ctx)
	if err != nil {
		return err
	}
	for _, idx := range existing {
		if sameKeys(idx.Keys, keys) {
			return nil
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := json.Marshal(keys)
	if err != nil {
		return err
	}
	return s.db.Set(idxKey(name), data)
}

func sameKeys(a, b []storage.IndexKey) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// scan returns every document matching filter. Caller holds s.mu.
func (s *Store) scan(filter storage.Doc) ([]map[string]any, error) {
	lo := []byte(prefixDoc)
	hi := append(append([]byte{}, lo...), 0xFF)
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: lo, UpperBound: hi})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []map[string]any
	for ok := iter.First(); ok; ok = iter.Next() {
		docID := string(iter.Key()[len(prefixDoc):])
		var doc map[string]any
		if err := json.Unmarshal(iter.Value(), &doc); err != nil {
			return nil, fmt.Errorf("pebbledoc: unmarshal document %s: %w", docID, err)
		}
		doc["_id"] = storage.ID(docID)
		if matches(doc, filter) {
			out = append(out, doc)
		}
	}
	return out, nil
}

// write persists a document carrying its "_id". Caller holds s.mu.
func (s *Store) write(doc map[string]any) error {
	var docID string
	switch v := doc["_id"].(type) {
	case storage.ID:
		docID = string(v)
	case string:
		docID = v
	default:
		return errors.New("pebbledoc: document without _id")
	}
	doc["_id"] = docID
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("pebbledoc: marshal document: %w", err)
	}
	doc["_id"] = storage.ID(docID)
	return s.db.Set(docKey(docID), data)
}

// applySet applies a {$set: {...}} update document in place.
func applySet(doc map[string]any, update storage.Doc) error {
	if len(update) != 1 {
		return fmt.Errorf("pebbledoc: unsupported update shape (%d operators)", len(update))
	}
	set, ok := toMap(update["$set"])
	if !ok {
		return errors.New("pebbledoc: only $set updates are supported")
	}
	for k, v := range set {
		doc[k] = v
	}
	return nil
}
