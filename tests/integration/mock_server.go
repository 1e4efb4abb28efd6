package integration

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
)

// MockUpstreamServer simulates the dating-platform API: token refresh,
// the paginated discovery feed, profile detail, and swipe interactions.
type MockUpstreamServer struct {
	server *httptest.Server

	mu       sync.Mutex
	pages    map[string]pickUpPage
	profiles map[string]json.RawMessage

	refreshCalls     int32
	pickUpCalls      int32
	profileCalls     int32
	interactionCalls int32

	// NewAccessToken is handed out by the refresh endpoint
	NewAccessToken string
}

type pickUpPage struct {
	Hits          []json.RawMessage `json:"hits"`
	NextPageToken string            `json:"nextPageToken"`
}

// NewMockUpstreamServer creates a mock with empty state
func NewMockUpstreamServer() *MockUpstreamServer {
	m := &MockUpstreamServer{
		pages:    map[string]pickUpPage{},
		profiles: map[string]json.RawMessage{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/rest/v2/login/refresh_token", m.handleRefresh)
	mux.HandleFunc("/v3/matchesGame/users:pickUp", m.handlePickUp)
	mux.HandleFunc("/rest/v2/user/info/profile", m.handleProfile)
	mux.HandleFunc("/v3/matchesGame/users/", m.handleInteraction)

	m.server = httptest.NewServer(mux)
	return m
}

// GetURL returns the mock server base URL
func (m *MockUpstreamServer) GetURL() string {
	return m.server.URL
}

// Close shuts down the mock server
func (m *MockUpstreamServer) Close() {
	m.server.Close()
}

// AddPage registers a discovery page keyed by the pageToken that selects it
func (m *MockUpstreamServer) AddPage(token, next string, hids ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	page := pickUpPage{NextPageToken: next, Hits: []json.RawMessage{}}
	for _, hid := range hids {
		page.Hits = append(page.Hits, json.RawMessage(fmt.Sprintf(
			`{"user":{"hid":"%s","name":"user %s"},"trackingData":{"src":"feed"}}`, hid, hid)))
	}
	m.pages[token] = page
}

// AddProfile registers profile detail for a hid
func (m *MockUpstreamServer) AddProfile(hid string, detail json.RawMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[hid] = detail
}

// RefreshCalls returns the number of token exchanges served
func (m *MockUpstreamServer) RefreshCalls() int {
	return int(atomic.LoadInt32(&m.refreshCalls))
}

// PickUpCalls returns the number of discovery pages served
func (m *MockUpstreamServer) PickUpCalls() int {
	return int(atomic.LoadInt32(&m.pickUpCalls))
}

// InteractionCalls returns the number of like/pass requests served
func (m *MockUpstreamServer) InteractionCalls() int {
	return int(atomic.LoadInt32(&m.interactionCalls))
}

func (m *MockUpstreamServer) handleRefresh(w http.ResponseWriter, r *http.Request) {
	atomic.AddInt32(&m.refreshCalls, 1)

	var req struct {
		RefreshToken string `json:"refresh_token"`
		AccessToken  string `json:"access_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{"result": nil})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"result": map[string]interface{}{
			"accessToken":  map[string]string{"access_token": m.NewAccessToken},
			"refreshToken": map[string]string{"refresh_token": "rotated-refresh"},
			"authToken":    "rotated-auth-token",
			"authKey":      "rotated-auth-key",
		},
	})
}

func (m *MockUpstreamServer) handlePickUp(w http.ResponseWriter, r *http.Request) {
	atomic.AddInt32(&m.pickUpCalls, 1)

	if !strings.HasPrefix(r.Header.Get("authorization"), "JWT ") {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	m.mu.Lock()
	page, ok := m.pages[r.URL.Query().Get("pageToken")]
	m.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if !ok {
		w.Write([]byte(`{"hits":[]}`))
		return
	}
	json.NewEncoder(w).Encode(page)
}

func (m *MockUpstreamServer) handleProfile(w http.ResponseWriter, r *http.Request) {
	atomic.AddInt32(&m.profileCalls, 1)

	m.mu.Lock()
	detail, ok := m.profiles[r.URL.Query().Get("users_hids[]")]
	m.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if !ok {
		w.Write([]byte(`{"result":[]}`))
		return
	}
	fmt.Fprintf(w, `{"result":[%s]}`, detail)
}

func (m *MockUpstreamServer) handleInteraction(w http.ResponseWriter, r *http.Request) {
	atomic.AddInt32(&m.interactionCalls, 1)
	w.WriteHeader(http.StatusOK)
}
