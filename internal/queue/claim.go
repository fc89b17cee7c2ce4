package queue

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/docq-io/docq/internal/metrics"
	"github.com/docq-io/docq/internal/storage"
	"github.com/docq-io/docq/pkg/log"
)

// Get defaults.
const (
	defaultWait = 3 * time.Second
	defaultPoll = 200 * time.Millisecond
)

// GetOptions tunes the Get wait loop. The zero value means the defaults:
// wait 3s, poll every 200ms, exact deadline.
type GetOptions struct {
	// Wait bounds how long Get blocks before reporting no entry. A
	// negative Wait makes exactly one claim attempt.
	Wait time.Duration
	// Poll is the sleep between claim attempts.
	Poll time.Duration
	// ApproximateWait perturbs Wait by a uniform random fraction in
	// [-10%, +10%] so consumers started in lockstep spread their final
	// attempts instead of thundering on the same instant.
	ApproximateWait bool
}

// Get leases and returns at most one entry whose payload matches query and
// whose earliestGet has passed, best priority first. It blocks up to the
// configured wait, polling the store; a nil Result (with nil error) means
// nothing became available. Every attempt first returns stuck leases to the
// queue, so no separate sweeper is needed.
//
// The claim itself is one atomic store call: across all processes, exactly
// one Get can win a given entry. Store errors propagate without retry; only
// "no match yet" is retried. Cancelling ctx abandons the wait between
// attempts with no partial claim left behind.
func (q *Queue) Get(ctx context.Context, query storage.Doc, lease time.Duration, opts GetOptions) (*Result, error) {
	baseFilter, err := payloadFilter(query)
	if err != nil {
		return nil, err
	}

	wait := opts.Wait
	if wait == 0 {
		wait = defaultWait
	}
	poll := opts.Poll
	if poll == 0 {
		poll = defaultPoll
	}
	if poll < 0 {
		poll = 0
	}
	if opts.ApproximateWait {
		frac, err := randFloat(-0.1, 0.1)
		if err != nil {
			return nil, err
		}
		wait = time.Duration(float64(wait) * (1 + frac))
	}
	deadline := satAddMs(q.nowMs(), wait)

	for {
		start := time.Now()
		res, err := q.claimOne(ctx, baseFilter, lease)
		metrics.ClaimAttemptDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			return nil, err
		}
		if res != nil {
			metrics.EntriesClaimed.Inc()
			q.log.Debug("entry claimed",
				log.Str("id", string(res.Handle.id)),
				log.Duration("lease", lease))
			return res, nil
		}
		if q.nowMs() >= deadline {
			metrics.ClaimMisses.Inc()
			return nil, nil
		}
		timer := time.NewTimer(poll)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// claimOne runs one reap-and-claim attempt. A nil Result with nil error
// means no eligible entry matched.
func (q *Queue) claimOne(ctx context.Context, baseFilter storage.Doc, lease time.Duration) (*Result, error) {
	if err := q.reap(ctx); err != nil {
		return nil, err
	}

	now := q.nowMs()
	filter := make(storage.Doc, len(baseFilter)+2)
	for k, v := range baseFilter {
		filter[k] = v
	}
	filter[fieldRunning] = false
	filter[fieldEarliestGet] = storage.Doc{"$lte": now}

	doc, err := q.store.FindOneAndUpdate(ctx, filter,
		[]storage.SortField{
			{Field: fieldPriority, Ascending: true},
			{Field: fieldCreated, Ascending: true},
		},
		storage.Doc{"$set": storage.Doc{
			fieldRunning:        true,
			fieldResetTimestamp: satAddMs(now, lease),
		}},
	)
	if errors.Is(err, storage.ErrNoDocument) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return q.buildResult(ctx, doc)
}

// reap returns every entry with an expired lease to the queue. It runs
// before each claim attempt, from every consumer.
func (q *Queue) reap(ctx context.Context) error {
	n, err := q.store.UpdateMany(ctx,
		storage.Doc{
			fieldRunning:        true,
			fieldResetTimestamp: storage.Doc{"$lte": q.nowMs()},
		},
		storage.Doc{"$set": storage.Doc{
			fieldRunning:        false,
			fieldResetTimestamp: maxInstantMs,
		}},
	)
	if err != nil {
		return err
	}
	if n > 0 {
		metrics.LeasesReaped.Add(float64(n))
		q.log.Debug("reaped stuck leases", log.Int64("count", n))
	}
	return nil
}

// buildResult opens the claimed entry's blobs and assembles the Handle. A
// blob open failure closes whatever was opened and propagates; the entry
// stays leased until its reset instant passes.
func (q *Queue) buildResult(ctx context.Context, doc storage.Doc) (*Result, error) {
	entryID, _ := doc[fieldID].(storage.ID)
	payload := asDoc(doc[fieldPayload])

	h := &Handle{
		id:      entryID,
		payload: payload,
		blobs:   make(map[storage.BlobID]*storage.Blob),
	}
	streams := make(map[string]io.Reader)
	for _, blobID := range blobIDList(doc[fieldStreams]) {
		if q.blobs == nil {
			return nil, ErrNoBlobStore
		}
		blob, err := q.blobs.Open(ctx, blobID)
		if err != nil {
			h.closeBlobs()
			return nil, err
		}
		h.blobs[blobID] = blob
		streams[blob.Name] = blob
	}
	return &Result{Handle: h, Payload: payload, Streams: streams}, nil
}

// asDoc normalizes the adapter-specific map type of a loaded subdocument.
func asDoc(v any) storage.Doc {
	switch d := v.(type) {
	case storage.Doc:
		return d
	case map[string]any:
		return storage.Doc(d)
	}
	return storage.Doc{}
}

// blobIDList normalizes the adapter-specific element type of a loaded
// streams field.
func blobIDList(v any) []storage.BlobID {
	var out []storage.BlobID
	switch list := v.(type) {
	case []storage.BlobID:
		return list
	case []string:
		for _, s := range list {
			out = append(out, storage.BlobID(s))
		}
	case []any:
		for _, e := range list {
			if s, ok := e.(string); ok {
				out = append(out, storage.BlobID(s))
			}
		}
	}
	return out
}
