// Package testutil provides HTTP mock servers for tracker tests.
package testutil

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
)

// RecordedRequest stores information about a request made to the mock server.
type RecordedRequest struct {
	Method  string
	Path    string
	Query   string
	Headers http.Header
	Body    []byte
}

// MockResponse represents a configured response for the mock server.
type MockResponse struct {
	StatusCode int
	Body       interface{}
	Headers    map[string]string
}

// MockTrackerServer is the base mock server for tracker tests.
// It provides request recording, response configuration, and error
// simulation.
type MockTrackerServer struct {
	Server *httptest.Server
	mu     sync.RWMutex

	requests []RecordedRequest

	responses      map[string]MockResponse // path -> response
	defaultHandler func(w http.ResponseWriter, r *http.Request)

	authError      bool
	rateLimitError bool
	serverError    int // number of requests still answered with 503

	rateLimitRetries int
	rateLimitCount   int
	retryAfter       string
}

// NewMockTrackerServer creates a new base mock server.
func NewMockTrackerServer() *MockTrackerServer {
	m := &MockTrackerServer{
		requests:   []RecordedRequest{},
		responses:  make(map[string]MockResponse),
		retryAfter: "1",
	}

	m.Server = httptest.NewServer(http.HandlerFunc(m.handleRequest))
	return m
}

// handleRequest records the request and answers with simulated errors, a
// configured response, the default handler, or 404, in that order.
func (m *MockTrackerServer) handleRequest(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	r.Body = io.NopCloser(bytes.NewReader(body))

	m.mu.Lock()
	m.requests = append(m.requests, RecordedRequest{
		Method:  r.Method,
		Path:    r.URL.Path,
		Query:   r.URL.RawQuery,
		Headers: r.Header.Clone(),
		Body:    body,
	})

	if m.authError {
		m.mu.Unlock()
		writeJSONStatus(w, http.StatusUnauthorized, map[string][]string{"errorMessages": {"Unauthorized"}})
		return
	}

	if m.rateLimitError && m.rateLimitCount < m.rateLimitRetries {
		m.rateLimitCount++
		retryAfter := m.retryAfter
		m.mu.Unlock()
		w.Header().Set("Retry-After", retryAfter)
		writeJSONStatus(w, http.StatusTooManyRequests, map[string][]string{"errorMessages": {"Rate limited"}})
		return
	}

	if m.serverError != 0 {
		if m.serverError > 0 {
			m.serverError--
		}
		retryAfter := m.retryAfter
		m.mu.Unlock()
		if retryAfter != "" {
			w.Header().Set("Retry-After", retryAfter)
		}
		writeJSONStatus(w, http.StatusServiceUnavailable, map[string][]string{"errorMessages": {"Service unavailable"}})
		return
	}

	resp, found := m.responses[r.URL.Path]
	handler := m.defaultHandler
	m.mu.Unlock()

	if found {
		for k, v := range resp.Headers {
			w.Header().Set(k, v)
		}
		status := resp.StatusCode
		if status == 0 {
			status = http.StatusOK
		}
		writeJSONStatus(w, status, resp.Body)
		return
	}

	if handler != nil {
		handler(w, r)
		return
	}

	writeJSONStatus(w, http.StatusNotFound, map[string][]string{"errorMessages": {"Not found"}})
}

// URL returns the mock server URL.
func (m *MockTrackerServer) URL() string {
	return m.Server.URL
}

// Close shuts down the mock server.
func (m *MockTrackerServer) Close() {
	m.Server.Close()
}

// SetResponse configures a response for a specific path.
func (m *MockTrackerServer) SetResponse(path string, statusCode int, body interface{}) {
	m.SetResponseWithHeaders(path, statusCode, body, nil)
}

// SetResponseWithHeaders configures a response with custom headers.
func (m *MockTrackerServer) SetResponseWithHeaders(path string, statusCode int, body interface{}, headers map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[path] = MockResponse{
		StatusCode: statusCode,
		Body:       body,
		Headers:    headers,
	}
}

// SetDefaultHandler sets a custom handler for unmatched requests.
func (m *MockTrackerServer) SetDefaultHandler(handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaultHandler = handler
}

// SetAuthError enables/disables 401 Unauthorized responses.
func (m *MockTrackerServer) SetAuthError(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.authError = enabled
}

// SetRateLimitError enables/disables 429 Too Many Requests responses.
// retries specifies how many requests get rate limited before succeeding.
func (m *MockTrackerServer) SetRateLimitError(enabled bool, retries int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rateLimitError = enabled
	m.rateLimitRetries = retries
	m.rateLimitCount = 0
}

// SetRetryAfter sets the Retry-After header sent with 429 responses.
func (m *MockTrackerServer) SetRetryAfter(value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retryAfter = value
}

// SetServerError makes the next n requests fail with 503. A negative n fails
// every request until reset.
func (m *MockTrackerServer) SetServerError(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.serverError = n
}

// GetRequests returns all recorded requests.
func (m *MockTrackerServer) GetRequests() []RecordedRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]RecordedRequest, len(m.requests))
	copy(result, m.requests)
	return result
}

// GetRequestCount returns the number of recorded requests.
func (m *MockTrackerServer) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.requests)
}

// CountRequests returns how many recorded requests used method.
func (m *MockTrackerServer) CountRequests(method string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, r := range m.requests {
		if r.Method == method {
			n++
		}
	}
	return n
}

// ClearRequests clears all recorded requests.
func (m *MockTrackerServer) ClearRequests() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = []RecordedRequest{}
}

// Reset clears all recorded requests, responses and simulated errors.
func (m *MockTrackerServer) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = []RecordedRequest{}
	m.responses = make(map[string]MockResponse)
	m.authError = false
	m.rateLimitError = false
	m.serverError = 0
	m.rateLimitCount = 0
	m.rateLimitRetries = 0
	m.retryAfter = "1"
}

func writeJSONStatus(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}
