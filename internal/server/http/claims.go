package httpserver

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/docq-io/docq/internal/queue"
)

// claimTable parks claimed entries between the claim response and the
// follow-up ack or requeue. Entries whose lease has lapsed are pruned
// lazily; their handles are dead anyway once the reap returns the entry to
// the queue.
type claimTable struct {
	mu     sync.Mutex
	claims map[string]parkedClaim
	nowMs  func() int64
}

type parkedClaim struct {
	res       *queue.Result
	expiresMs int64
}

func newClaimTable() *claimTable {
	return &claimTable{
		claims: make(map[string]parkedClaim),
		nowMs:  func() int64 { return time.Now().UnixMilli() },
	}
}

// park stores res and returns its token.
func (t *claimTable) park(res *queue.Result, lease time.Duration) string {
	token := uuid.NewString()
	t.mu.Lock()
	defer t.mu.Unlock()
	t.prune()
	t.claims[token] = parkedClaim{res: res, expiresMs: t.nowMs() + lease.Milliseconds()}
	return token
}

// take removes and returns the claim for token, if it is still parked.
func (t *claimTable) take(token string) (*queue.Result, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.prune()
	c, ok := t.claims[token]
	if !ok {
		return nil, false
	}
	delete(t.claims, token)
	return c.res, true
}

// prune drops lapsed claims and releases their open blob streams; the reap
// makes the entries themselves claimable again. Callers hold mu.
func (t *claimTable) prune() {
	now := t.nowMs()
	for token, c := range t.claims {
		if c.expiresMs <= now {
			c.res.Handle.Close()
			delete(t.claims, token)
		}
	}
}
