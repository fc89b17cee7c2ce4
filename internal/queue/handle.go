package queue

import (
	"io"
	"sync"

	"github.com/docq-io/docq/internal/storage"
)

// Stream names a blob to attach to an entry on Send or AckSend.
type Stream struct {
	Name   string
	Reader io.Reader
}

// Handle is the ownership token for a claimed entry. It is single-use: the
// first of Ack, AckSend, or Requeue consumes it, and any later use fails
// with ErrHandleConsumed.
type Handle struct {
	id      storage.ID
	payload storage.Doc
	blobs   map[storage.BlobID]*storage.Blob

	mu       sync.Mutex
	consumed bool
}

// ID returns the claimed entry's document id.
func (h *Handle) ID() storage.ID { return h.id }

// Close releases the blob streams opened at claim time without consuming
// the handle or acknowledging the entry; the entry becomes claimable again
// when its lease lapses. For abandoning a claim, not part of the ack paths.
func (h *Handle) Close() {
	h.closeBlobs()
}

// consume marks the handle used, exactly once.
func (h *Handle) consume() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.consumed {
		return ErrHandleConsumed
	}
	h.consumed = true
	return nil
}

// closeBlobs closes every stream opened at claim time.
func (h *Handle) closeBlobs() {
	for _, blob := range h.blobs {
		_ = blob.Close()
	}
}

// Result is a successful claim: the entry's payload, its opened blob streams
// keyed by original filename, and the Handle required to release it.
type Result struct {
	Handle  *Handle
	Payload storage.Doc
	Streams map[string]io.Reader
}
