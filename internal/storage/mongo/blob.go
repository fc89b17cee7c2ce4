package mongo

import (
	"context"
	"fmt"
	"io"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/docq-io/docq/internal/storage"
)

// BlobStore implements storage.BlobStore over a GridFS bucket. The gridfs
// stream API carries no context; a context deadline is forwarded as the
// bucket's read/write deadline instead.
type BlobStore struct {
	bucket *gridfs.Bucket
}

// NewBlobStore opens (or creates) the named GridFS bucket on db.
func NewBlobStore(db *mongo.Database, name string) (*BlobStore, error) {
	bucket, err := gridfs.NewBucket(db, options.GridFSBucket().SetName(name))
	if err != nil {
		return nil, fmt.Errorf("gridfs bucket: %w", err)
	}
	return &BlobStore{bucket: bucket}, nil
}

func (b *BlobStore) Upload(ctx context.Context, name string, r io.Reader) (storage.BlobID, error) {
	if dl, ok := ctx.Deadline(); ok {
		if err := b.bucket.SetWriteDeadline(dl); err != nil {
			return "", fmt.Errorf("gridfs deadline: %w", err)
		}
	}
	oid, err := b.bucket.UploadFromStream(name, r)
	if err != nil {
		return "", fmt.Errorf("gridfs upload: %w", err)
	}
	return storage.BlobID(oid.Hex()), nil
}

func (b *BlobStore) Open(ctx context.Context, id storage.BlobID) (*storage.Blob, error) {
	oid, err := parseObjectID(string(id))
	if err != nil {
		return nil, err
	}
	if dl, ok := ctx.Deadline(); ok {
		if err := b.bucket.SetReadDeadline(dl); err != nil {
			return nil, fmt.Errorf("gridfs deadline: %w", err)
		}
	}
	ds, err := b.bucket.OpenDownloadStream(oid)
	if err != nil {
		return nil, fmt.Errorf("gridfs open %s: %w", id, err)
	}
	return &storage.Blob{ID: id, Name: ds.GetFile().Name, ReadCloser: ds}, nil
}

func (b *BlobStore) Delete(ctx context.Context, id storage.BlobID) error {
	oid, err := parseObjectID(string(id))
	if err != nil {
		return err
	}
	if dl, ok := ctx.Deadline(); ok {
		if err := b.bucket.SetWriteDeadline(dl); err != nil {
			return fmt.Errorf("gridfs deadline: %w", err)
		}
	}
	if err := b.bucket.Delete(oid); err != nil {
		return fmt.Errorf("gridfs delete %s: %w", id, err)
	}
	return nil
}
