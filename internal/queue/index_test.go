package queue

import (
	"context"
	"errors"
	"testing"

	"github.com/docq-io/docq/internal/storage"
)

func TestEnsureCountIndexPrefixIsNoop(t *testing.T) {
	q, store, _ := newTestQueue(t)
	ctx := context.Background()

	err := q.EnsureCountIndex(ctx, []storage.IndexKey{
		{Field: "a", Direction: 1},
		{Field: "b", Direction: -1},
	}, false)
	if err != nil {
		t.Fatalf("first ensure: %v", err)
	}
	// {a} is a prefix of {a, b desc}: the second call must create nothing.
	err = q.EnsureCountIndex(ctx, []storage.IndexKey{{Field: "a", Direction: 1}}, false)
	if err != nil {
		t.Fatalf("second ensure: %v", err)
	}

	idxs, err := store.ListIndexes(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(idxs) != 1 {
		t.Fatalf("want exactly one index, got %d: %v", len(idxs), idxs)
	}
	want := []storage.IndexKey{
		{Field: "payload.a", Direction: 1},
		{Field: "payload.b", Direction: -1},
	}
	for i, k := range want {
		if idxs[0].Keys[i] != k {
			t.Fatalf("index keys %v, want %v", idxs[0].Keys, want)
		}
	}
}

func TestEnsureGetIndexShapes(t *testing.T) {
	q, store, _ := newTestQueue(t)
	ctx := context.Background()

	err := q.EnsureGetIndex(ctx,
		[]storage.IndexKey{{Field: "type", Direction: 1}},
		[]storage.IndexKey{{Field: "boosted", Direction: -1}},
	)
	if err != nil {
		t.Fatalf("ensure get index: %v", err)
	}

	idxs, err := store.ListIndexes(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(idxs) != 2 {
		t.Fatalf("want claim + reap indexes, got %d", len(idxs))
	}

	claim := []storage.IndexKey{
		{Field: "running", Direction: 1},
		{Field: "payload.type", Direction: 1},
		{Field: "priority", Direction: 1},
		{Field: "created", Direction: 1},
		{Field: "payload.boosted", Direction: -1},
		{Field: "earliestGet", Direction: 1},
	}
	reap := []storage.IndexKey{
		{Field: "running", Direction: 1},
		{Field: "resetTimestamp", Direction: 1},
	}
	if !anyCovers(idxs, claim) {
		t.Fatalf("claim index missing from %v", idxs)
	}
	if !anyCovers(idxs, reap) {
		t.Fatalf("reap index missing from %v", idxs)
	}

	// Idempotent: a second call adds nothing.
	if err := q.EnsureGetIndex(ctx, []storage.IndexKey{{Field: "type", Direction: 1}}, nil); err != nil {
		t.Fatalf("re-ensure: %v", err)
	}
	idxs, _ = store.ListIndexes(ctx)
	if len(idxs) != 3 {
		// The shorter before-only claim index is not a prefix of the
		// first one (payload.boosted sits before earliestGet), so one
		// new index is expected.
		t.Fatalf("want 3 indexes after differing ensure, got %d", len(idxs))
	}
}

func TestEnsureIndexRejectsBadDirection(t *testing.T) {
	q, _, _ := newTestQueue(t)
	err := q.EnsureCountIndex(context.Background(), []storage.IndexKey{{Field: "a", Direction: 2}}, false)
	if !errors.Is(err, ErrBadSortDirection) {
		t.Fatalf("want ErrBadSortDirection, got %v", err)
	}
}

func TestEnsureIndexRejectsEmptyKeys(t *testing.T) {
	stub := &indexStoreStub{}
	q, err := New(Options{Store: stub})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	// No fields and no running prefix leaves nothing to index.
	err = q.EnsureCountIndex(context.Background(), nil, false)
	if !errors.Is(err, ErrNoIndexKeys) {
		t.Fatalf("want ErrNoIndexKeys, got %v", err)
	}
	if len(stub.createNames) != 0 {
		t.Fatalf("create attempted for empty key sequence: %v", stub.createNames)
	}
}

// indexStoreStub scripts ListIndexes/CreateIndex for the retry loop tests.
type indexStoreStub struct {
	storage.Store
	indexes     []storage.Index
	failCreates int
	createNames []string
}

func (s *indexStoreStub) ListIndexes(context.Context) ([]storage.Index, error) {
	return s.indexes, nil
}

func (s *indexStoreStub) CreateIndex(_ context.Context, keys []storage.IndexKey, name string) error {
	s.createNames = append(s.createNames, name)
	if s.failCreates > 0 {
		s.failCreates--
		return errors.New("index name rejected")
	}
	s.indexes = append(s.indexes, storage.Index{Name: name, Keys: keys})
	return nil
}

func TestEnsureIndexRecoversFromNameRejections(t *testing.T) {
	stub := &indexStoreStub{failCreates: 2}
	q, err := New(Options{Store: stub})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	keys := []storage.IndexKey{{Field: "a", Direction: 1}}
	if err := q.EnsureCountIndex(context.Background(), keys, false); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if len(stub.createNames) != 3 {
		t.Fatalf("want 3 create attempts, got %d", len(stub.createNames))
	}
	// Each rejection shortens the generated name before retrying.
	if len(stub.createNames[1]) >= len(stub.createNames[0]) ||
		len(stub.createNames[2]) >= len(stub.createNames[1]) {
		t.Fatalf("names not shortened across retries: %v", stub.createNames)
	}
}

func TestEnsureIndexGivesUpAfterBoundedRetries(t *testing.T) {
	stub := &indexStoreStub{failCreates: 1 << 30}
	q, err := New(Options{Store: stub})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	err = q.EnsureCountIndex(context.Background(), []storage.IndexKey{{Field: "a", Direction: 1}}, false)
	if !errors.Is(err, ErrIndexCreate) {
		t.Fatalf("want ErrIndexCreate, got %v", err)
	}
	if len(stub.createNames) != indexCreateAttempts {
		t.Fatalf("want %d attempts, got %d", indexCreateAttempts, len(stub.createNames))
	}
}
