package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Client bundles one driver connection with the database the queue lives in.
type Client struct {
	mc *mongo.Client
	db *mongo.Database
}

// Dial connects to uri, pings the primary, and selects dbName.
func Dial(ctx context.Context, uri, dbName string) (*Client, error) {
	mc, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := mc.Ping(ctx, readpref.Primary()); err != nil {
		_ = mc.Disconnect(ctx)
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	return &Client{mc: mc, db: mc.Database(dbName)}, nil
}

// Store returns a document store over the named collection.
func (c *Client) Store(collection string) *Store {
	return NewStore(c.db.Collection(collection))
}

// Blobs returns a blob store over the named GridFS bucket.
func (c *Client) Blobs(bucket string) (*BlobStore, error) {
	return NewBlobStore(c.db, bucket)
}

func (c *Client) Close(ctx context.Context) error {
	return c.mc.Disconnect(ctx)
}
