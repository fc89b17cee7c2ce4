package httpserver

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/docq-io/docq/internal/queue"
	pebblestore "github.com/docq-io/docq/internal/storage/pebble"
	"github.com/docq-io/docq/internal/storage/pebbledoc"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	db, err := pebblestore.Open(pebblestore.Options{DataDir: t.TempDir(), Fsync: pebblestore.FsyncModeNever})
	if err != nil {
		t.Fatalf("open pebble: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	q, err := queue.New(queue.Options{
		Store: pebbledoc.NewStore(db),
		Blobs: pebbledoc.NewBlobStore(db),
	})
	if err != nil {
		t.Fatalf("new queue: %v", err)
	}
	ts := httptest.NewServer(New(q, nil).Handler())
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, ts *httptest.Server, path string, body any) *http.Response {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(ts.URL+path, "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatalf("post %s: %v", path, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return v
}

func TestSendClaimAckRoundTrip(t *testing.T) {
	ts := newTestServer(t)

	resp := postJSON(t, ts, "/v1/send", map[string]any{
		"payload":  map[string]any{"job": "resize"},
		"priority": 1,
		"streams":  []map[string]any{{"name": "input.png", "data": []byte("pixels")}},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("send status %d", resp.StatusCode)
	}

	resp = postJSON(t, ts, "/v1/claim", map[string]any{
		"leaseMs": 60000,
		"waitMs":  -1,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("claim status %d", resp.StatusCode)
	}
	claim := decode[struct {
		Token   string            `json:"token"`
		Payload map[string]any    `json:"payload"`
		Streams map[string][]byte `json:"streams"`
	}](t, resp)
	if claim.Payload["job"] != "resize" {
		t.Fatalf("claim payload %v", claim.Payload)
	}
	if string(claim.Streams["input.png"]) != "pixels" {
		t.Fatalf("claim streams %v", claim.Streams)
	}

	resp = postJSON(t, ts, "/v1/ack", map[string]any{"token": claim.Token})
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("ack status %d", resp.StatusCode)
	}

	// Spent tokens are rejected.
	resp = postJSON(t, ts, "/v1/ack", map[string]any{"token": claim.Token})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("double ack status %d", resp.StatusCode)
	}

	resp = postJSON(t, ts, "/v1/count", map[string]any{})
	count := decode[struct {
		Count int64 `json:"count"`
	}](t, resp)
	if count.Count != 0 {
		t.Fatalf("count after ack = %d", count.Count)
	}
}

func TestClaimEmptyQueueReturnsNoContent(t *testing.T) {
	ts := newTestServer(t)
	resp := postJSON(t, ts, "/v1/claim", map[string]any{"leaseMs": 1000, "waitMs": -1})
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("claim status %d", resp.StatusCode)
	}
}

func TestRequeueMakesEntryClaimableAgain(t *testing.T) {
	ts := newTestServer(t)

	postJSON(t, ts, "/v1/send", map[string]any{"payload": map[string]any{"n": 1}})
	resp := postJSON(t, ts, "/v1/claim", map[string]any{"leaseMs": 60000, "waitMs": -1})
	claim := decode[struct {
		Token string `json:"token"`
	}](t, resp)

	resp = postJSON(t, ts, "/v1/requeue", map[string]any{"token": claim.Token})
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("requeue status %d", resp.StatusCode)
	}

	resp = postJSON(t, ts, "/v1/claim", map[string]any{"leaseMs": 60000, "waitMs": -1})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reclaim status %d", resp.StatusCode)
	}
}

func TestSendValidationMapsToBadRequest(t *testing.T) {
	ts := newTestServer(t)

	resp := postJSON(t, ts, "/v1/send", map[string]any{})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("nil payload status %d", resp.StatusCode)
	}

	resp = postJSON(t, ts, "/v1/claim", map[string]any{
		"query":   map[string]any{"$or": []any{}},
		"leaseMs": 1000,
		"waitMs":  -1,
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("operator query status %d", resp.StatusCode)
	}
}

func TestStatsSplitsByLeaseState(t *testing.T) {
	ts := newTestServer(t)

	postJSON(t, ts, "/v1/send", map[string]any{"payload": map[string]any{"n": 1}})
	postJSON(t, ts, "/v1/send", map[string]any{"payload": map[string]any{"n": 2}})
	postJSON(t, ts, "/v1/claim", map[string]any{"leaseMs": 60000, "waitMs": -1})

	resp, err := http.Get(ts.URL + "/v1/stats")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	defer resp.Body.Close()
	stats := decode[struct {
		Total   int64 `json:"total"`
		Running int64 `json:"running"`
		Waiting int64 `json:"waiting"`
	}](t, resp)
	if stats.Total != 2 || stats.Running != 1 || stats.Waiting != 1 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestEnsureIndexEndpoints(t *testing.T) {
	ts := newTestServer(t)

	resp := postJSON(t, ts, "/v1/index/ensure-get", map[string]any{
		"beforeSort": []map[string]any{{"field": "type", "direction": 1}},
	})
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("ensure-get status %d", resp.StatusCode)
	}

	resp = postJSON(t, ts, "/v1/index/ensure-count", map[string]any{
		"fields": []map[string]any{{"field": "type", "direction": 2}},
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad direction status %d", resp.StatusCode)
	}
}

func TestCountRunningFilter(t *testing.T) {
	ts := newTestServer(t)

	postJSON(t, ts, "/v1/send", map[string]any{"payload": map[string]any{"n": 1}})
	postJSON(t, ts, "/v1/send", map[string]any{"payload": map[string]any{"n": 2}})
	postJSON(t, ts, "/v1/claim", map[string]any{"leaseMs": 60000, "waitMs": -1})

	resp := postJSON(t, ts, "/v1/count", map[string]any{"running": "only"})
	if n := decode[struct {
		Count int64 `json:"count"`
	}](t, resp); n.Count != 1 {
		t.Fatalf("running count = %d", n.Count)
	}
	resp = postJSON(t, ts, "/v1/count", map[string]any{"running": "not"})
	if n := decode[struct {
		Count int64 `json:"count"`
	}](t, resp); n.Count != 1 {
		t.Fatalf("waiting count = %d", n.Count)
	}
	resp = postJSON(t, ts, "/v1/count", map[string]any{"running": "bogus"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bogus filter status %d", resp.StatusCode)
	}
}
