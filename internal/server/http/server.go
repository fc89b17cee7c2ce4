package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/docq-io/docq/internal/queue"
	"github.com/docq-io/docq/internal/storage"
	"github.com/docq-io/docq/pkg/log"
)

type Server struct {
	q      *queue.Queue
	log    log.Logger
	srv    *http.Server
	lis    net.Listener
	claims *claimTable
}

func New(q *queue.Queue, logger log.Logger) *Server {
	if logger == nil {
		logger = log.Nop()
	}
	s := &Server{q: q, log: logger.WithComponent("http"), claims: newClaimTable()}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Route("/v1", func(r chi.Router) {
		r.Post("/send", s.handleSend)
		r.Post("/claim", s.handleClaim)
		r.Post("/ack", s.handleAck)
		r.Post("/requeue", s.handleRequeue)
		r.Post("/count", s.handleCount)
		r.Get("/stats", s.handleStats)
		r.Post("/index/ensure-get", s.handleEnsureGetIndex)
		r.Post("/index/ensure-count", s.handleEnsureCountIndex)
	})
	s.srv = &http.Server{Handler: r}
	return s
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.lis = l
	s.log.Info("http listening", log.Str("addr", l.Addr().String()))
	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.Serve(l) }()
	select {
	case <-ctx.Done():
		cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(cctx)
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) Close() {
	if s.lis != nil {
		_ = s.lis.Close()
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// streamBody carries one named stream; Data is base64 on the wire.
type streamBody struct {
	Name string `json:"name"`
	Data []byte `json:"data"`
}

type sendReq struct {
	Payload       storage.Doc  `json:"payload"`
	EarliestGetMs int64        `json:"earliestGetMs"`
	Priority      float64      `json:"priority"`
	Streams       []streamBody `json:"streams"`
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var req sendReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	id, err := s.q.Send(r.Context(), req.Payload, msToTime(req.EarliestGetMs), req.Priority, toStreams(req.Streams))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": string(id)})
}

type claimReq struct {
	Query           storage.Doc `json:"query"`
	LeaseMs         int64       `json:"leaseMs"`
	WaitMs          int64       `json:"waitMs"`
	PollMs          int64       `json:"pollMs"`
	ApproximateWait bool        `json:"approximateWait"`
}

type claimResp struct {
	Token   string            `json:"token"`
	ID      string            `json:"id"`
	Payload storage.Doc       `json:"payload"`
	Streams map[string][]byte `json:"streams,omitempty"`
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	var req claimReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Query == nil {
		req.Query = storage.Doc{}
	}
	lease := time.Duration(req.LeaseMs) * time.Millisecond
	res, err := s.q.Get(r.Context(), req.Query, lease, queue.GetOptions{
		Wait:            time.Duration(req.WaitMs) * time.Millisecond,
		Poll:            time.Duration(req.PollMs) * time.Millisecond,
		ApproximateWait: req.ApproximateWait,
	})
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	if res == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := claimResp{ID: string(res.Handle.ID()), Payload: res.Payload}
	if len(res.Streams) > 0 {
		resp.Streams = make(map[string][]byte, len(res.Streams))
		for name, rd := range res.Streams {
			b, err := io.ReadAll(rd)
			if err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			resp.Streams[name] = b
		}
	}
	resp.Token = s.claims.park(res, lease)
	writeJSON(w, http.StatusOK, resp)
}

type ackReq struct {
	Token string `json:"token"`
}

func (s *Server) handleAck(w http.ResponseWriter, r *http.Request) {
	var req ackReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	res, ok := s.claims.take(req.Token)
	if !ok {
		writeError(w, http.StatusNotFound, errors.New("unknown or expired claim token"))
		return
	}
	if err := s.q.Ack(r.Context(), res.Handle); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type requeueReq struct {
	Token         string  `json:"token"`
	EarliestGetMs int64   `json:"earliestGetMs"`
	Priority      float64 `json:"priority"`
}

func (s *Server) handleRequeue(w http.ResponseWriter, r *http.Request) {
	var req requeueReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	res, ok := s.claims.take(req.Token)
	if !ok {
		writeError(w, http.StatusNotFound, errors.New("unknown or expired claim token"))
		return
	}
	if err := s.q.Requeue(r.Context(), res.Handle, msToTime(req.EarliestGetMs), req.Priority); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type countReq struct {
	Query   storage.Doc `json:"query"`
	Running string      `json:"running"`
}

func (s *Server) handleCount(w http.ResponseWriter, r *http.Request) {
	var req countReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Query == nil {
		req.Query = storage.Doc{}
	}
	var running queue.RunningFilter
	switch req.Running {
	case "", "any":
		running = queue.RunningAny
	case "only":
		running = queue.RunningOnly
	case "not":
		running = queue.NotRunning
	default:
		writeError(w, http.StatusBadRequest, errors.New(`running must be "any", "only" or "not"`))
		return
	}
	n, err := s.q.Count(r.Context(), req.Query, running)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"count": n})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	total, err := s.q.Count(r.Context(), storage.Doc{}, queue.RunningAny)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	running, err := s.q.Count(r.Context(), storage.Doc{}, queue.RunningOnly)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{
		"total":   total,
		"running": running,
		"waiting": total - running,
	})
}

// indexKeyBody is one index key on the wire.
type indexKeyBody struct {
	Field     string `json:"field"`
	Direction int    `json:"direction"`
}

type ensureGetIndexReq struct {
	BeforeSort []indexKeyBody `json:"beforeSort"`
	AfterSort  []indexKeyBody `json:"afterSort"`
}

func (s *Server) handleEnsureGetIndex(w http.ResponseWriter, r *http.Request) {
	var req ensureGetIndexReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	err := s.q.EnsureGetIndex(r.Context(), toIndexKeys(req.BeforeSort), toIndexKeys(req.AfterSort))
	if err != nil {
		writeError(w, indexStatusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type ensureCountIndexReq struct {
	Fields         []indexKeyBody `json:"fields"`
	IncludeRunning bool           `json:"includeRunning"`
}

func (s *Server) handleEnsureCountIndex(w http.ResponseWriter, r *http.Request) {
	var req ensureCountIndexReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	err := s.q.EnsureCountIndex(r.Context(), toIndexKeys(req.Fields), req.IncludeRunning)
	if err != nil {
		writeError(w, indexStatusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func toIndexKeys(bodies []indexKeyBody) []storage.IndexKey {
	out := make([]storage.IndexKey, 0, len(bodies))
	for _, b := range bodies {
		out = append(out, storage.IndexKey{Field: b.Field, Direction: b.Direction})
	}
	return out
}

func indexStatusFor(err error) int {
	if errors.Is(err, queue.ErrBadSortDirection) || errors.Is(err, queue.ErrNoIndexKeys) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func toStreams(bodies []streamBody) []queue.Stream {
	if bodies == nil {
		return nil
	}
	out := make([]queue.Stream, 0, len(bodies))
	for _, b := range bodies {
		out = append(out, queue.Stream{Name: b.Name, Reader: bytes.NewReader(b.Data)})
	}
	return out
}

func msToTime(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// statusFor maps queue contract violations to 400 and everything else
// to 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, queue.ErrNilPayload),
		errors.Is(err, queue.ErrNilQuery),
		errors.Is(err, queue.ErrNaNPriority),
		errors.Is(err, queue.ErrOperatorFilter):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
