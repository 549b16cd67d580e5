package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"lunchmind/browser"
	"lunchmind/engine"
	"lunchmind/pkg/logctx"
	"lunchmind/place"
)

const requestIDHeader = "X-Request-ID"

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

type healthResponse struct {
	Status string         `json:"status"`
	Pool   *browser.Stats `json:"pool,omitempty"`
}

// DiscoverHandler serves GET /discover?keyword=&location=&limit=&text=.
// text, when given, is interpreted into keywords and a location first.
func (s *Server) DiscoverHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	id := r.Header.Get(requestIDHeader)
	if id == "" {
		id = logctx.NewRequestID()
	}
	ctx = logctx.WithRequestID(ctx, id)
	w.Header().Set(requestIDHeader, id)

	q := r.URL.Query()
	limit := 0
	if v := strings.TrimSpace(q.Get("limit")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid limit parameter", RequestID: id})
			return
		}
		limit = n
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	var (
		res engine.Result
		err error
	)
	if text := strings.TrimSpace(q.Get("text")); text != "" {
		res, err = s.discoverer.DiscoverText(ctx, text, q.Get("location"), limit)
	} else {
		res, err = s.discoverer.Discover(ctx, q.Get("keyword"), q.Get("location"), limit)
	}
	if err != nil {
		status := statusOf(err)
		logctx.Logger(ctx, s.logger).Warn("discover failed", zap.Int("status", status), zap.Error(err))
		writeJSON(w, status, errorResponse{Error: err.Error(), RequestID: id})
		return
	}
	if res.Candidates == nil {
		res.Candidates = []place.ResolvedCandidate{}
	}
	writeJSON(w, http.StatusOK, res)
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, engine.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		// client went away
		return 499
	default:
		return http.StatusInternalServerError
	}
}

// HealthHandler reports liveness and, when there is one, the session pool.
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok"}
	if stats, ok := s.discoverer.PoolStats(); ok {
		resp.Pool = &stats
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
