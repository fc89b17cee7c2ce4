package httpserver

import (
	"io"
	"strings"
	"testing"
	"time"

	"github.com/docq-io/docq/internal/queue"
)

func TestClaimTableParkAndTake(t *testing.T) {
	tab := newClaimTable()
	now := int64(1000)
	tab.nowMs = func() int64 { return now }

	res := &queue.Result{Handle: &queue.Handle{}}
	token := tab.park(res, 50*time.Millisecond)
	got, ok := tab.take(token)
	if !ok || got != res {
		t.Fatalf("fresh claim not retrievable")
	}
	if _, ok := tab.take(token); ok {
		t.Fatalf("claim retrievable twice")
	}
}

func TestClaimTableDropsLapsedClaims(t *testing.T) {
	tab := newClaimTable()
	now := int64(1000)
	tab.nowMs = func() int64 { return now }

	token := tab.park(&queue.Result{Handle: &queue.Handle{}}, 50*time.Millisecond)
	now += 51
	if _, ok := tab.take(token); ok {
		t.Fatalf("lapsed claim still parked")
	}
}

func TestClaimTableParkPrunesLapsed(t *testing.T) {
	tab := newClaimTable()
	now := int64(1000)
	tab.nowMs = func() int64 { return now }

	res := &queue.Result{
		Handle:  &queue.Handle{},
		Streams: map[string]io.Reader{"report": strings.NewReader("data")},
	}
	tab.park(res, 50*time.Millisecond)
	now += 51

	// Parking another claim triggers the prune of the lapsed one.
	tab.park(&queue.Result{Handle: &queue.Handle{}}, 50*time.Millisecond)
	tab.mu.Lock()
	n := len(tab.claims)
	tab.mu.Unlock()
	if n != 1 {
		t.Fatalf("lapsed claim not pruned, %d parked", n)
	}
}
