package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// MockSinkServer is a test server standing in for the game backend's event
// endpoint. It records every JSON body it receives.
type MockSinkServer struct {
	*httptest.Server

	mu       sync.Mutex
	received []map[string]any
	status   int
}

// NewMockSinkServer creates a sink that accepts events with 202 Accepted.
func NewMockSinkServer(t *testing.T) *MockSinkServer {
	t.Helper()
	m := &MockSinkServer{status: http.StatusAccepted}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		m.mu.Lock()
		m.received = append(m.received, body)
		status := m.status
		m.mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(m.Close)
	return m
}

// SetStatus changes the status code returned for subsequent requests.
func (m *MockSinkServer) SetStatus(code int) {
	m.mu.Lock()
	m.status = code
	m.mu.Unlock()
}

// Received returns a copy of the recorded event bodies.
func (m *MockSinkServer) Received() []map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]map[string]any, len(m.received))
	copy(out, m.received)
	return out
}

// MockTwitchID mocks the id.twitch.tv OAuth endpoints.
type MockTwitchID struct {
	*httptest.Server
	Handlers map[string]http.HandlerFunc
}

// NewMockTwitchID creates a new mock identity server. Register responses via
// the helpers or by assigning Handlers["/oauth2/token"] directly.
func NewMockTwitchID(t *testing.T) *MockTwitchID {
	t.Helper()
	m := &MockTwitchID{
		Handlers: make(map[string]http.HandlerFunc),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if handler, ok := m.Handlers[r.URL.Path]; ok {
			handler(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(m.Close)
	return m
}

// MockTokenResponse registers a successful /oauth2/token response.
func (m *MockTwitchID) MockTokenResponse(accessToken, refreshToken string, expiresIn int) {
	m.Handlers["/oauth2/token"] = func(w http.ResponseWriter, r *http.Request) {
		response := map[string]any{
			"access_token":  accessToken,
			"refresh_token": refreshToken,
			"expires_in":    expiresIn,
			"token_type":    "bearer",
			"scope":         []string{"chat:read", "chat:edit"},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(response) //nolint:errcheck // test mock response
	}
}

// MockTokenError registers a failing /oauth2/token response.
func (m *MockTwitchID) MockTokenError(status int, message string) {
	m.Handlers["/oauth2/token"] = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]any{"status": status, "message": message}) //nolint:errcheck // test mock response
	}
}
