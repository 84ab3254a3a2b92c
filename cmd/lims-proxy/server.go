package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/lims-resolver/pkg/entity"
	"github.com/Sternrassler/lims-resolver/pkg/metrics"
	"github.com/Sternrassler/lims-resolver/pkg/refs"
	"github.com/Sternrassler/lims-resolver/pkg/resolver"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// maxBatchIDs bounds the ids accepted by one batch request.
const maxBatchIDs = 10000

// recordResponse is the JSON form of one resolved record.
type recordResponse struct {
	Type     entity.Type `json:"type"`
	ID       int64       `json:"id"`
	Status   string      `json:"status"`
	Value    any         `json:"value,omitempty"`
	Error    string      `json:"error,omitempty"`
	Attempts int         `json:"attempts,omitempty"`
}

type server struct {
	refs   *refs.Refs
	redis  *redis.Client
	logger zerolog.Logger
}

// newRouter creates the chi router.
//
// Routes:
//   - GET /health - Liveness probe
//   - GET /ready - Readiness probe (pings Redis when enabled)
//   - GET /metrics - Prometheus metrics
//   - GET /api/resolve - Pending ids per entity type
//   - GET /api/resolve/{type}?ids=1,2,3 - Batch lookup
//   - GET /api/resolve/{type}/{id} - Single lookup (202 while pending)
func newRouter(lims *refs.Refs, redisClient *redis.Client, logger zerolog.Logger) http.Handler {
	s := &server{refs: lims, redis: redisClient, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", healthHandler)
	r.Get("/ready", s.readyHandler)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/resolve", func(r chi.Router) {
		r.Get("/", s.pendingHandler)
		r.Get("/{type}", s.batchHandler)
		r.Get("/{type}/{id}", s.resolveHandler)
	})

	return r
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

func (s *server) readyHandler(w http.ResponseWriter, r *http.Request) {
	if s.redis != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.redis.Ping(ctx).Err(); err != nil {
			http.Error(w, "Redis unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

func (s *server) pendingHandler(w http.ResponseWriter, r *http.Request) {
	pending := s.refs.Pending()
	out := make(map[string]int, len(pending))
	for typ, n := range pending {
		out[string(typ)] = n
	}
	writeJSON(w, http.StatusOK, map[string]any{"pending": out})
}

func (s *server) resolveHandler(w http.ResponseWriter, r *http.Request) {
	typ, ok := s.parseType(w, r)
	if !ok {
		return
	}

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid id %q", chi.URLParam(r, "id")))
		return
	}

	rec, err := s.refs.Lookup(typ, id)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	resp := toResponse(typ, id, rec)
	switch rec.Status {
	case entity.StatusLoaded:
		writeJSON(w, http.StatusOK, resp)
	case entity.StatusError:
		writeJSON(w, http.StatusBadGateway, resp)
	default:
		writeJSON(w, http.StatusAccepted, resp)
	}
}

func (s *server) batchHandler(w http.ResponseWriter, r *http.Request) {
	typ, ok := s.parseType(w, r)
	if !ok {
		return
	}

	ids, err := parseIDs(r.URL.Query().Get("ids"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	records := make([]recordResponse, 0, len(ids))
	for _, id := range ids {
		rec, err := s.refs.Lookup(typ, id)
		if err != nil {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		records = append(records, toResponse(typ, id, rec))
	}

	writeJSON(w, http.StatusOK, map[string]any{"records": records})
}

// parseType reads the {type} URL parameter and rejects types without a resolver.
func (s *server) parseType(w http.ResponseWriter, r *http.Request) (entity.Type, bool) {
	typ, err := entity.ParseType(chi.URLParam(r, "type"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return "", false
	}
	for _, t := range s.refs.Types() {
		if t == typ {
			return typ, true
		}
	}
	writeError(w, http.StatusNotFound, fmt.Sprintf("%v: %s", resolver.ErrUnknownType, typ))
	return "", false
}

func parseIDs(raw string) ([]int64, error) {
	if raw == "" {
		return nil, errors.New("ids query parameter is required")
	}

	parts := strings.Split(raw, ",")
	if len(parts) > maxBatchIDs {
		return nil, fmt.Errorf("too many ids (%d > %d)", len(parts), maxBatchIDs)
	}

	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid id %q", p)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func toResponse(typ entity.Type, id int64, rec entity.Record[any]) recordResponse {
	resp := recordResponse{
		Type:     typ,
		ID:       id,
		Status:   rec.Status.String(),
		Value:    rec.Value,
		Attempts: rec.Attempts,
	}
	if rec.Err != nil {
		resp.Error = rec.Err.Error()
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// requestLogger logs every request; health and metrics probes at debug.
func (s *server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		event := s.logger.Info()
		switch r.URL.Path {
		case "/health", "/ready", "/metrics":
			event = s.logger.Debug()
		}
		event.
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Msg("Request completed")
	})
}
