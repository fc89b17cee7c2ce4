package pebbledoc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/docq-io/docq/internal/storage"
	pebblestore "github.com/docq-io/docq/internal/storage/pebble"
	"github.com/docq-io/docq/pkg/id"
)

const (
	prefixBlobMeta = "blobmeta/"
	prefixBlobData = "blobdata/"
)

// BlobStore is an embedded blob store satisfying storage.BlobStore. Blobs
// are held whole; this is for embedded-mode and test payloads, not
// multi-gigabyte attachments.
type BlobStore struct {
	db  *pebblestore.DB
	gen *id.Generator
}

var _ storage.BlobStore = (*BlobStore)(nil)

// NewBlobStore creates a blob store on an open Pebble database.
func NewBlobStore(db *pebblestore.DB) *BlobStore {
	return &BlobStore{db: db, gen: id.NewGenerator()}
}

func blobMetaKey(blobID string) []byte { return []byte(prefixBlobMeta + blobID) }
func blobDataKey(blobID string) []byte { return []byte(prefixBlobData + blobID) }

// Upload implements storage.BlobStore.
func (b *BlobStore) Upload(_ context.Context, name string, r io.Reader) (storage.BlobID, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("pebbledoc: read blob %q: %w", name, err)
	}
	blobID := b.gen.Next().String()

	batch := b.db.NewBatch()
	defer batch.Close()
	if err := batch.Set(blobMetaKey(blobID), []byte(name), nil); err != nil {
		return "", err
	}
	if err := batch.Set(blobDataKey(blobID), data, nil); err != nil {
		return "", err
	}
	if err := b.db.CommitBatch(batch); err != nil {
		return "", err
	}
	return storage.BlobID(blobID), nil
}

// Open implements storage.BlobStore.
func (b *BlobStore) Open(_ context.Context, blobID storage.BlobID) (*storage.Blob, error) {
	name, err := b.db.Get(blobMetaKey(string(blobID)))
	if err != nil {
		if errors.Is(err, pebblestore.ErrNotFound) {
			return nil, fmt.Errorf("pebbledoc: blob %s not found", blobID)
		}
		return nil, err
	}
	data, err := b.db.Get(blobDataKey(string(blobID)))
	if err != nil {
		return nil, err
	}
	return &storage.Blob{
		ID:         blobID,
		Name:       string(name),
		ReadCloser: io.NopCloser(bytes.NewReader(data)),
	}, nil
}

// Delete implements storage.BlobStore. Deleting an absent blob is an error.
func (b *BlobStore) Delete(_ context.Context, blobID storage.BlobID) error {
	if _, err := b.db.Get(blobMetaKey(string(blobID))); err != nil {
		if errors.Is(err, pebblestore.ErrNotFound) {
			return fmt.Errorf("pebbledoc: blob %s not found", blobID)
		}
		return err
	}
	batch := b.db.NewBatch()
	defer batch.Close()
	if err := batch.Delete(blobMetaKey(string(blobID)), nil); err != nil {
		return err
	}
	if err := batch.Delete(blobDataKey(string(blobID)), nil); err != nil {
		return err
	}
	return b.db.CommitBatch(batch)
}
