package queue

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/docq-io/docq/internal/storage"
	"github.com/docq-io/docq/pkg/log"
)

// indexCreateAttempts bounds the generate-name/create/verify loop.
const indexCreateAttempts = 5

// EnsureGetIndex builds the compound index Get's claim query needs:
// running, payload.<before fields>, priority, created, payload.<after
// fields>, earliestGet, plus the (running, resetTimestamp) index for the
// stuck-lease reap. Sort fields address payload fields; directions must be
// 1 or -1.
func (q *Queue) EnsureGetIndex(ctx context.Context, beforeSort, afterSort []storage.IndexKey) error {
	keys := make([]storage.IndexKey, 0, len(beforeSort)+len(afterSort)+4)
	keys = append(keys, storage.IndexKey{Field: fieldRunning, Direction: 1})
	prefixed, err := payloadIndexKeys(beforeSort)
	if err != nil {
		return err
	}
	keys = append(keys, prefixed...)
	keys = append(keys,
		storage.IndexKey{Field: fieldPriority, Direction: 1},
		storage.IndexKey{Field: fieldCreated, Direction: 1},
	)
	if prefixed, err = payloadIndexKeys(afterSort); err != nil {
		return err
	}
	keys = append(keys, prefixed...)
	keys = append(keys, storage.IndexKey{Field: fieldEarliestGet, Direction: 1})

	if err := q.ensureIndex(ctx, keys); err != nil {
		return err
	}
	return q.ensureIndex(ctx, []storage.IndexKey{
		{Field: fieldRunning, Direction: 1},
		{Field: fieldResetTimestamp, Direction: 1},
	})
}

// EnsureCountIndex builds the index Count's filter needs: running (when
// counts are narrowed by lease state) followed by the payload fields.
func (q *Queue) EnsureCountIndex(ctx context.Context, fields []storage.IndexKey, includeRunning bool) error {
	keys := make([]storage.IndexKey, 0, len(fields)+1)
	if includeRunning {
		keys = append(keys, storage.IndexKey{Field: fieldRunning, Direction: 1})
	}
	prefixed, err := payloadIndexKeys(fields)
	if err != nil {
		return err
	}
	keys = append(keys, prefixed...)
	return q.ensureIndex(ctx, keys)
}

func payloadIndexKeys(fields []storage.IndexKey) ([]storage.IndexKey, error) {
	out := make([]storage.IndexKey, 0, len(fields))
	for _, f := range fields {
		if f.Direction != 1 && f.Direction != -1 {
			return nil, fmt.Errorf("%w: field %q has direction %d", ErrBadSortDirection, f.Field, f.Direction)
		}
		if f.Field == "" {
			return nil, fmt.Errorf("queue: index field name must not be empty")
		}
		out = append(out, storage.IndexKey{Field: fieldPayload + "." + f.Field, Direction: f.Direction})
	}
	return out, nil
}

// ensureIndex makes the requested key sequence available, idempotently: an
// existing index whose key sequence extends (or equals) the requested one
// already accelerates the query, so creation is skipped. Names are
// generated, not meaningful (the key signature is what is checked), and a
// rejected name is shortened and retried. Because creating a colliding
// signature under a new name is a backend no-op, each attempt re-scans and
// succeeds as soon as the signature exists. An empty key sequence indexes
// nothing and is rejected as a caller error.
func (q *Queue) ensureIndex(ctx context.Context, keys []storage.IndexKey) error {
	if len(keys) == 0 {
		return ErrNoIndexKeys
	}
	name := newIndexName()
	for attempt := 0; attempt < indexCreateAttempts; attempt++ {
		existing, err := q.store.ListIndexes(ctx)
		if err != nil {
			return err
		}
		if anyCovers(existing, keys) {
			return nil
		}
		if err := q.store.CreateIndex(ctx, keys, name); err != nil {
			q.log.Debug("index create attempt failed",
				log.Str("name", name), log.Int("attempt", attempt), log.Err(err))
			if len(name) > 1 {
				name = name[:len(name)/2]
			} else {
				name = newIndexName()
			}
			continue
		}
		existing, err = q.store.ListIndexes(ctx)
		if err != nil {
			return err
		}
		if anyCovers(existing, keys) {
			return nil
		}
		name = newIndexName()
	}
	return fmt.Errorf("%w after %d attempts", ErrIndexCreate, indexCreateAttempts)
}

// anyCovers reports whether some existing index's key sequence has the
// requested sequence as a prefix.
func anyCovers(existing []storage.Index, keys []storage.IndexKey) bool {
	for _, idx := range existing {
		if len(idx.Keys) < len(keys) {
			continue
		}
		match := true
		for i := range keys {
			if idx.Keys[i] != keys[i] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

func newIndexName() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
