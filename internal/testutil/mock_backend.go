// Package testutil provides testing utilities for the LIMS resolver.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// MockBackendResponse defines a canned response for a list endpoint.
type MockBackendResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockBackend is a configurable mock LIMS REST backend. By default every
// list endpoint answers "?id__in=1,2,3" with {"items": [{"id": 1, ...}]} for
// each requested id that has been seeded.
type MockBackend struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)
	entities map[string]map[int64]map[string]any
	failures map[string][]MockBackendResponse

	// Tracking
	RequestCount      int
	RequestedIDs      map[string][][]int64
	LastRequestHeader http.Header
}

// NewMockBackend creates a new mock backend server.
func NewMockBackend() *MockBackend {
	mock := &MockBackend{
		handlers:     make(map[string]func(w http.ResponseWriter, r *http.Request)),
		entities:     make(map[string]map[int64]map[string]any),
		failures:     make(map[string][]MockBackendResponse),
		RequestedIDs: make(map[string][][]int64),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.LastRequestHeader = r.Header.Clone()
		mock.mu.Unlock()

		mock.mu.RLock()
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.RUnlock()

		if exists {
			handler(w, r)
			return
		}

		mock.listHandler(w, r)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockBackend) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockBackend) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockBackend) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.RequestedIDs = make(map[string][][]int64)
	m.LastRequestHeader = nil
}

// SetHandler sets a custom handler for a specific path.
func (m *MockBackend) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a fixed response for a path.
func (m *MockBackend) SetResponse(path string, resp MockBackendResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		writeResponse(w, resp)
	})
}

// FailNext makes the next len(resps) requests to path return resps in order
// before falling back to the default list behaviour.
func (m *MockBackend) FailNext(path string, resps ...MockBackendResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[path] = append(m.failures[path], resps...)
}

// Seed registers entities served from path (e.g. "/api/samples/").
// Every entity must carry a numeric "id" field.
func (m *MockBackend) Seed(path string, entities ...map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.entities[path] == nil {
		m.entities[path] = make(map[int64]map[string]any)
	}
	for _, e := range entities {
		id, ok := toInt64(e["id"])
		if !ok {
			panic(fmt.Sprintf("seeded entity without numeric id: %v", e))
		}
		m.entities[path][id] = e
	}
}

// SeedRange registers entities with ids from..to, each named "<prefix>-<id>".
func (m *MockBackend) SeedRange(path, prefix string, from, to int64) {
	entities := make([]map[string]any, 0, to-from+1)
	for id := from; id <= to; id++ {
		entities = append(entities, map[string]any{
			"id":   id,
			"name": fmt.Sprintf("%s-%d", prefix, id),
		})
	}
	m.Seed(path, entities...)
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockBackend) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetRequestedIDs returns the id lists received on path, one per request.
func (m *MockBackend) GetRequestedIDs(path string) [][]int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([][]int64, len(m.RequestedIDs[path]))
	copy(out, m.RequestedIDs[path])
	return out
}

// listHandler serves "list where id in" requests from seeded entities.
func (m *MockBackend) listHandler(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	ids, err := parseIDs(r.URL.Query().Get("id__in"))
	if err != nil {
		writeResponse(w, MockBackendResponse{
			StatusCode: http.StatusBadRequest,
			Body:       fmt.Sprintf(`{"detail": %q}`, err.Error()),
		})
		return
	}

	m.mu.Lock()
	m.RequestedIDs[path] = append(m.RequestedIDs[path], ids)
	var failure *MockBackendResponse
	if queued := m.failures[path]; len(queued) > 0 {
		failure = &queued[0]
		m.failures[path] = queued[1:]
	}
	m.mu.Unlock()

	if failure != nil {
		writeResponse(w, *failure)
		return
	}

	m.mu.RLock()
	items := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		if e, ok := m.entities[path][id]; ok {
			items = append(items, e)
		}
	}
	m.mu.RUnlock()

	// Real backends order by their own key, not by the request.
	sort.Slice(items, func(i, j int) bool {
		a, _ := toInt64(items[i]["id"])
		b, _ := toInt64(items[j]["id"])
		return a > b
	})

	body, err := json.Marshal(map[string]any{"items": items, "count": len(items)})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

func writeResponse(w http.ResponseWriter, resp MockBackendResponse) {
	if resp.Delay > 0 {
		time.Sleep(resp.Delay)
	}
	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		w.Write([]byte(resp.Body))
	}
}

func parseIDs(raw string) ([]int64, error) {
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
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

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockBackendResponse {
	return MockBackendResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"detail": "Internal server error"}`,
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
	}
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse() MockBackendResponse {
	return MockBackendResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"detail": "Request was throttled."}`,
		Headers: map[string]string{
			"Content-Type": "application/json",
			"Retry-After":  "1",
		},
	}
}

// NewNotFoundResponse creates a 404 Not Found response.
func NewNotFoundResponse() MockBackendResponse {
	return MockBackendResponse{
		StatusCode: http.StatusNotFound,
		Body:       `{"detail": "Not found."}`,
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
	}
}
