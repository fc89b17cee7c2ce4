package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/docq-io/docq/internal/storage"
)

func TestGetReturnsAscendingPriority(t *testing.T) {
	q, _, _ := newTestQueue(t)
	mustSend(t, q, storage.Doc{"tag": "mid"}, 2)
	mustSend(t, q, storage.Doc{"tag": "low"}, 3)
	mustSend(t, q, storage.Doc{"tag": "high"}, 1)

	want := []string{"high", "mid", "low"}
	for _, tag := range want {
		res := tryGet(t, q, storage.Doc{}, time.Minute)
		if res == nil {
			t.Fatalf("no claim for expected %q", tag)
		}
		if res.Payload["tag"] != tag {
			t.Fatalf("got %v, want %q", res.Payload["tag"], tag)
		}
	}
	if res := tryGet(t, q, storage.Doc{}, time.Minute); res != nil {
		t.Fatalf("fourth claim should find nothing")
	}
}

func TestGetBreaksTiesByCreated(t *testing.T) {
	q, _, _ := newTestQueue(t)
	now := freezeClock(q)

	mustSend(t, q, storage.Doc{"tag": "first"}, 5)
	*now++
	mustSend(t, q, storage.Doc{"tag": "second"}, 5)

	res := tryGet(t, q, storage.Doc{}, time.Minute)
	if res == nil || res.Payload["tag"] != "first" {
		t.Fatalf("want insertion order within a priority, got %v", res)
	}
}

func TestAckSendTimestampControlsOrdering(t *testing.T) {
	q, _, _ := newTestQueue(t)
	now := freezeClock(q)
	ctx := context.Background()

	mustSend(t, q, storage.Doc{"tag": "a"}, 5)
	*now++
	mustSend(t, q, storage.Doc{"tag": "b"}, 5)
	*now++

	// Replace "a" preserving its created instant: it stays ahead of "b".
	res := tryGet(t, q, storage.Doc{}, time.Minute)
	if res.Payload["tag"] != "a" {
		t.Fatalf("setup claim got %v", res.Payload)
	}
	if err := q.AckSend(ctx, res.Handle, storage.Doc{"tag": "a"}, time.Time{}, 5, false, nil); err != nil {
		t.Fatalf("ack send: %v", err)
	}
	res = tryGet(t, q, storage.Doc{}, time.Minute)
	if res.Payload["tag"] != "a" {
		t.Fatalf("preserved created should keep entry first, got %v", res.Payload)
	}

	// Replace "a" with a fresh created instant: "b" now goes first.
	*now++
	if err := q.AckSend(ctx, res.Handle, storage.Doc{"tag": "a"}, time.Time{}, 5, true, nil); err != nil {
		t.Fatalf("ack send: %v", err)
	}
	res = tryGet(t, q, storage.Doc{}, time.Minute)
	if res.Payload["tag"] != "b" {
		t.Fatalf("refreshed created should demote entry, got %v", res.Payload)
	}
}

func TestClaimedEntryInvisibleUntilLeaseExpires(t *testing.T) {
	q, _, _ := newTestQueue(t)
	now := freezeClock(q)

	mustSend(t, q, storage.Doc{"tag": "solo"}, 1.5)

	res := tryGet(t, q, storage.Doc{}, time.Second)
	if res == nil {
		t.Fatalf("first claim failed")
	}
	if res2 := tryGet(t, q, storage.Doc{}, time.Second); res2 != nil {
		t.Fatalf("leased entry visible to second claim")
	}

	// Past the lease, the reap step recovers the entry with its original
	// priority and created untouched.
	*now += 1001
	res3 := tryGet(t, q, storage.Doc{}, time.Second)
	if res3 == nil {
		t.Fatalf("expired lease not reclaimed")
	}
	if res3.Payload["tag"] != "solo" {
		t.Fatalf("payload changed across reclaim: %v", res3.Payload)
	}
	if res3.Handle.ID() != res.Handle.ID() {
		t.Fatalf("reclaim produced a different entry")
	}
}

func TestEarliestGetHidesEntryUntilDue(t *testing.T) {
	q, _, _ := newTestQueue(t)
	now := freezeClock(q)
	ctx := context.Background()

	eg := time.UnixMilli(*now + 200)
	if _, err := q.Send(ctx, storage.Doc{"tag": "later"}, eg, 0, nil); err != nil {
		t.Fatalf("send: %v", err)
	}

	if res := tryGet(t, q, storage.Doc{}, time.Minute); res != nil {
		t.Fatalf("future earliestGet entry claimable too early")
	}
	*now += 201
	if res := tryGet(t, q, storage.Doc{}, time.Minute); res == nil {
		t.Fatalf("due entry not claimable")
	}
}

func TestGetPayloadFilters(t *testing.T) {
	q, _, _ := newTestQueue(t)
	mustSend(t, q, storage.Doc{"kind": "resize", "px": 100}, 0)
	mustSend(t, q, storage.Doc{"kind": "encode", "px": 900}, 0)

	res := tryGet(t, q, storage.Doc{"kind": "encode"}, time.Minute)
	if res == nil || res.Payload["kind"] != "encode" {
		t.Fatalf("equality filter failed: %v", res)
	}

	// Nested operator documents address one field and are allowed.
	res = tryGet(t, q, storage.Doc{"px": storage.Doc{"$lt": 500}}, time.Minute)
	if res == nil || res.Payload["kind"] != "resize" {
		t.Fatalf("operator filter failed: %v", res)
	}
}

func TestGetRejectsContractViolations(t *testing.T) {
	q, _, _ := newTestQueue(t)
	ctx := context.Background()

	if _, err := q.Get(ctx, nil, time.Minute, GetOptions{}); err != ErrNilQuery {
		t.Fatalf("nil query: want ErrNilQuery, got %v", err)
	}
	_, err := q.Get(ctx, storage.Doc{"$and": []any{}}, time.Minute, GetOptions{})
	if !errors.Is(err, ErrOperatorFilter) {
		t.Fatalf("top-level operator: want ErrOperatorFilter, got %v", err)
	}
}

func TestGetWaitsForLateArrival(t *testing.T) {
	q, _, _ := newTestQueue(t)
	ctx := context.Background()

	go func() {
		time.Sleep(50 * time.Millisecond)
		_, _ = q.Send(ctx, storage.Doc{"tag": "late"}, time.Time{}, 0, nil)
	}()

	res, err := q.Get(ctx, storage.Doc{}, time.Minute, GetOptions{Wait: 2 * time.Second, Poll: 10 * time.Millisecond})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if res == nil || res.Payload["tag"] != "late" {
		t.Fatalf("late entry not claimed: %v", res)
	}
}

func TestGetApproximateWaitStillTerminates(t *testing.T) {
	q, _, _ := newTestQueue(t)
	start := time.Now()
	res, err := q.Get(context.Background(), storage.Doc{}, time.Minute, GetOptions{
		Wait:            50 * time.Millisecond,
		Poll:            5 * time.Millisecond,
		ApproximateWait: true,
	})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if res != nil {
		t.Fatalf("claim from empty queue")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("jittered wait ran away: %v", elapsed)
	}
}

func TestGetHonorsContextCancellation(t *testing.T) {
	q, _, _ := newTestQueue(t)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()
	_, err := q.Get(ctx, storage.Doc{}, time.Minute, GetOptions{Wait: 30 * time.Second, Poll: 10 * time.Millisecond})
	if err != context.Canceled {
		t.Fatalf("want context.Canceled, got %v", err)
	}
}
