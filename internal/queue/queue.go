package queue

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/docq-io/docq/internal/metrics"
	"github.com/docq-io/docq/internal/storage"
	"github.com/docq-io/docq/pkg/log"
)

// Caller-contract violations, rejected before any store access.
var (
	ErrNilQuery         = errors.New("queue: query must not be nil")
	ErrNilPayload       = errors.New("queue: payload must not be nil")
	ErrNilHandle        = errors.New("queue: handle must not be nil")
	ErrNaNPriority      = errors.New("queue: priority must not be NaN")
	ErrOperatorFilter   = errors.New("queue: top-level filter fields must not be operators")
	ErrBadSortDirection = errors.New("queue: index direction must be 1 or -1")
	ErrNoIndexKeys      = errors.New("queue: index key sequence must not be empty")
	ErrHandleConsumed   = errors.New("queue: handle already consumed")
	ErrNoBlobStore      = errors.New("queue: no blob store configured")
)

// ErrIndexCreate reports that index creation did not converge within the
// bounded retry budget.
var ErrIndexCreate = errors.New("queue: could not create index")

// Entry document fields.
const (
	fieldID             = "_id"
	fieldPayload        = "payload"
	fieldRunning        = "running"
	fieldResetTimestamp = "resetTimestamp"
	fieldEarliestGet    = "earliestGet"
	fieldPriority       = "priority"
	fieldCreated        = "created"
	fieldStreams        = "streams"
)

// ackBatchSize bounds the id-list length of one AckMulti removal filter.
const ackBatchSize = 100

// Options configures a Queue.
type Options struct {
	// Store is the backing document store. Required.
	Store storage.Store
	// Blobs is the blob store for entry stream attachments. Optional;
	// stream operations fail with ErrNoBlobStore without it.
	Blobs storage.BlobStore
	// Logger defaults to a discard logger.
	Logger log.Logger
}

// Queue is a priority message queue over one document collection.
type Queue struct {
	store storage.Store
	blobs storage.BlobStore
	log   log.Logger

	// nowMs is swapped in tests.
	nowMs func() int64
}

// New creates a Queue.
func New(opts Options) (*Queue, error) {
	if opts.Store == nil {
		return nil, errors.New("queue: Options.Store is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Nop()
	}
	return &Queue{
		store: opts.Store,
		blobs: opts.Blobs,
		log:   logger.WithComponent("queue"),
		nowMs: func() int64 { return time.Now().UnixMilli() },
	}, nil
}

// Send inserts a new entry. A zero earliestGet means immediately eligible.
// Streams are uploaded to the blob store before the entry is inserted.
func (q *Queue) Send(ctx context.Context, payload storage.Doc, earliestGet time.Time, priority float64, streams []Stream) (storage.ID, error) {
	if payload == nil {
		return "", ErrNilPayload
	}
	if math.IsNaN(priority) {
		return "", ErrNaNPriority
	}

	blobIDs, err := q.uploadStreams(ctx, streams)
	if err != nil {
		return "", err
	}

	now := q.nowMs()
	eg := now
	if !earliestGet.IsZero() {
		eg = earliestGet.UnixMilli()
	}
	entryID, err := q.store.Insert(ctx, storage.Doc{
		fieldPayload:        payload,
		fieldRunning:        false,
		fieldResetTimestamp: maxInstantMs,
		fieldEarliestGet:    eg,
		fieldPriority:       priority,
		fieldCreated:        now,
		fieldStreams:        blobIDs,
	})
	if err != nil {
		return "", err
	}
	metrics.EntriesSent.Inc()
	q.log.Debug("entry sent",
		log.Str("id", string(entryID)),
		log.Float64("priority", priority),
		log.Int("streams", len(blobIDs)))
	return entryID, nil
}

// Ack removes a claimed entry and discards its blobs. The handle is
// consumed even if the store removal fails; release is not retryable.
func (q *Queue) Ack(ctx context.Context, h *Handle) error {
	if h == nil {
		return ErrNilHandle
	}
	if err := h.consume(); err != nil {
		return err
	}
	if _, err := q.store.RemoveMany(ctx, storage.Doc{fieldID: h.id}); err != nil {
		h.closeBlobs()
		return err
	}
	metrics.EntriesAcked.Inc()
	q.releaseBlobs(ctx, h, true)
	return nil
}

// AckMulti removes a batch of claimed entries, ackBatchSize ids per removal
// filter, then discards all their blobs. An empty handle set is a no-op.
func (q *Queue) AckMulti(ctx context.Context, handles []*Handle) error {
	if len(handles) == 0 {
		return nil
	}
	ids := make([]storage.ID, 0, len(handles))
	for _, h := range handles {
		if h == nil {
			return ErrNilHandle
		}
		if err := h.consume(); err != nil {
			return err
		}
		ids = append(ids, h.id)
	}
	for start := 0; start < len(ids); start += ackBatchSize {
		end := start + ackBatchSize
		if end > len(ids) {
			end = len(ids)
		}
		filter := storage.Doc{fieldID: storage.Doc{"$in": ids[start:end]}}
		if _, err := q.store.RemoveMany(ctx, filter); err != nil {
			return err
		}
	}
	metrics.EntriesAcked.Add(float64(len(handles)))
	for _, h := range handles {
		q.releaseBlobs(ctx, h, true)
	}
	return nil
}

// AckSend atomically acknowledges a claimed entry and replaces it in place.
// A nil streams slice keeps the entry's existing blob references; a non-nil
// slice (even empty) replaces them and discards the old blobs. With
// newTimestamp=false the entry keeps its original created instant, and with
// it its position within its priority.
//
// If the entry was removed externally between claim and this call, the write
// degrades to an insert under the same id. That is deliberate recovery, not
// an error.
func (q *Queue) AckSend(ctx context.Context, h *Handle, payload storage.Doc, earliestGet time.Time, priority float64, newTimestamp bool, streams []Stream) error {
	if h == nil {
		return ErrNilHandle
	}
	if payload == nil {
		return ErrNilPayload
	}
	if math.IsNaN(priority) {
		return ErrNaNPriority
	}
	if err := h.consume(); err != nil {
		return err
	}

	replaceBlobs := streams != nil
	var blobIDs []string
	if replaceBlobs {
		var err error
		if blobIDs, err = q.uploadStreams(ctx, streams); err != nil {
			h.closeBlobs()
			return err
		}
	}

	now := q.nowMs()
	eg := now
	if !earliestGet.IsZero() {
		eg = earliestGet.UnixMilli()
	}
	set := storage.Doc{
		fieldPayload:        payload,
		fieldRunning:        false,
		fieldResetTimestamp: maxInstantMs,
		fieldEarliestGet:    eg,
		fieldPriority:       priority,
	}
	if newTimestamp {
		set[fieldCreated] = now
	}
	if replaceBlobs {
		set[fieldStreams] = blobIDs
	}
	if err := q.store.UpsertByID(ctx, h.id, set); err != nil {
		h.closeBlobs()
		return err
	}
	metrics.EntriesReplaced.Inc()
	q.releaseBlobs(ctx, h, replaceBlobs)
	return nil
}

// Requeue puts a claimed entry back in line under a new earliestGet and
// priority, keeping its payload and blob references.
func (q *Queue) Requeue(ctx context.Context, h *Handle, earliestGet time.Time, priority float64) error {
	if h == nil {
		return ErrNilHandle
	}
	return q.AckSend(ctx, h, h.payload, earliestGet, priority, true, nil)
}

// RunningFilter narrows Count to leased or unleased entries.
type RunningFilter int

const (
	// RunningAny counts entries regardless of lease state.
	RunningAny RunningFilter = iota
	// RunningOnly counts currently leased entries.
	RunningOnly
	// NotRunning counts currently unleased entries.
	NotRunning
)

// Count returns the number of entries whose payload matches query,
// optionally narrowed by lease state.
func (q *Queue) Count(ctx context.Context, query storage.Doc, running RunningFilter) (int64, error) {
	filter, err := payloadFilter(query)
	if err != nil {
		return 0, err
	}
	switch running {
	case RunningOnly:
		filter[fieldRunning] = true
	case NotRunning:
		filter[fieldRunning] = false
	}
	return q.store.Count(ctx, filter)
}

// payloadFilter maps a caller query onto payload-prefixed fields, rejecting
// top-level operator expressions. Nested operator documents are fine: they
// address a single field.
func payloadFilter(query storage.Doc) (storage.Doc, error) {
	if query == nil {
		return nil, ErrNilQuery
	}
	filter := make(storage.Doc, len(query)+2)
	for field, value := range query {
		if strings.HasPrefix(field, "$") {
			return nil, fmt.Errorf("%w: %q", ErrOperatorFilter, field)
		}
		filter[fieldPayload+"."+field] = value
	}
	return filter, nil
}

// uploadStreams stores each named stream, collecting blob ids. On failure
// the already-uploaded blobs are deleted best-effort before returning.
func (q *Queue) uploadStreams(ctx context.Context, streams []Stream) ([]string, error) {
	blobIDs := make([]string, 0, len(streams))
	if len(streams) == 0 {
		return blobIDs, nil
	}
	if q.blobs == nil {
		return nil, ErrNoBlobStore
	}
	for _, s := range streams {
		blobID, err := q.blobs.Upload(ctx, s.Name, s.Reader)
		if err != nil {
			for _, uploaded := range blobIDs {
				if delErr := q.blobs.Delete(ctx, storage.BlobID(uploaded)); delErr != nil {
					metrics.BlobDeleteFailures.Inc()
					q.log.Warn("orphaned blob after failed upload",
						log.Str("blob", uploaded), log.Err(delErr))
				}
			}
			return nil, fmt.Errorf("queue: upload stream %q: %w", s.Name, err)
		}
		blobIDs = append(blobIDs, string(blobID))
	}
	return blobIDs, nil
}

// releaseBlobs closes every stream opened at claim time and, when discard is
// set, deletes the blobs from the blob store. Deletion failures after the
// entry write has succeeded leave orphans: logged and counted, never
// surfaced, never retried.
func (q *Queue) releaseBlobs(ctx context.Context, h *Handle, discard bool) {
	for blobID, blob := range h.blobs {
		_ = blob.Close()
		if !discard {
			continue
		}
		if q.blobs == nil {
			continue
		}
		if err := q.blobs.Delete(ctx, blobID); err != nil {
			metrics.BlobDeleteFailures.Inc()
			q.log.Warn("orphaned blob after release",
				log.Str("blob", string(blobID)), log.Err(err))
		}
	}
}
