package storage

import (
	"context"
	"errors"
	"io"
)

// ID is an opaque document identifier. Adapters choose the representation
// (ObjectID hex for Mongo, sortable hex for the embedded store); the queue
// only ever passes it back verbatim.
type ID string

// BlobID identifies a stored blob within a BlobStore.
type BlobID string

// Doc is a document or a filter document. Filters may nest operator
// documents ({"$lte": n}) under dotted field paths.
type Doc map[string]any

// SortField is one component of a sort order.
type SortField struct {
	Field string
	// Ascending sorts smallest-first when true.
	Ascending bool
}

// IndexKey is one component of a compound index key sequence.
type IndexKey struct {
	Field string
	// Direction is 1 (ascending) or -1 (descending).
	Direction int
}

// Index describes an existing index on the collection.
type Index struct {
	Name string
	Keys []IndexKey
}

// ErrNoDocument is returned by FindOneAndUpdate when nothing matches the
// filter. It is the "no entry available" signal, not a failure.
var ErrNoDocument = errors.New("storage: no matching document")

// Store is the document-store contract the queue runs on. The correctness of
// the claim protocol rests on FindOneAndUpdate being atomic: across all
// processes, only one caller observes a given document transition under a
// conditional update.
type Store interface {
	// Insert writes a new document and returns its store-assigned id.
	Insert(ctx context.Context, doc Doc) (ID, error)

	// FindOneAndUpdate atomically selects the first document matching
	// filter under sort, applies update, and returns the post-update
	// document. Returns ErrNoDocument when nothing matches.
	FindOneAndUpdate(ctx context.Context, filter Doc, sort []SortField, update Doc) (Doc, error)

	// UpdateMany applies update to every document matching filter and
	// reports how many were modified.
	UpdateMany(ctx context.Context, filter Doc, update Doc) (int64, error)

	// UpsertByID merges doc's fields into the document with the given id,
	// creating it under that id if it no longer exists. Fields absent from
	// doc keep their stored values.
	UpsertByID(ctx context.Context, id ID, doc Doc) error

	// RemoveMany deletes every document matching filter.
	RemoveMany(ctx context.Context, filter Doc) (int64, error)

	// Count returns the number of documents matching filter.
	Count(ctx context.Context, filter Doc) (int64, error)

	// ListIndexes returns the collection's indexes with their key
	// sequences in definition order.
	ListIndexes(ctx context.Context) ([]Index, error)

	// CreateIndex builds an index over keys under the given name.
	// Creating an index whose key sequence already exists under another
	// name is a backend-level no-op.
	CreateIndex(ctx context.Context, keys []IndexKey, name string) error
}

// Blob is an opened blob: its original name and a stream of its bytes.
// Callers own the stream and must close it on every path.
type Blob struct {
	ID   BlobID
	Name string
	io.ReadCloser
}

// BlobStore stores large payloads out of band, referenced from queue entries
// by id. Uploads and deletes are not transactional with document writes; the
// queue accepts the orphan window this opens.
type BlobStore interface {
	// Upload stores the bytes of r under the given name and returns the
	// blob's id.
	Upload(ctx context.Context, name string, r io.Reader) (BlobID, error)

	// Open returns the named stream for a stored blob.
	Open(ctx context.Context, id BlobID) (*Blob, error)

	// Delete removes a stored blob. Deleting an absent blob is an error.
	Delete(ctx context.Context, id BlobID) error
}
