package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai-trading-agent/config"
	"ai-trading-agent/internal/agent"
	"ai-trading-agent/internal/events"
)

type stubAgent struct {
	status        agent.Status
	stopped       bool
	paused        bool
	pauseReason   string
	resumed       bool
	universe      []string
	universeErr   error
	killSwitchMap map[string]interface{}
}

func (s *stubAgent) Status() agent.Status  { return s.status }
func (s *stubAgent) Stop()                 { s.stopped = true }
func (s *stubAgent) Pause(reason string)   { s.paused = true; s.pauseReason = reason }
func (s *stubAgent) Resume()               { s.resumed = true }
func (s *stubAgent) UpdateUniverse(assets []string) error {
	if s.universeErr != nil {
		return s.universeErr
	}
	s.universe = assets
	return nil
}
func (s *stubAgent) KillSwitchStats() map[string]interface{} { return s.killSwitchMap }
func (s *stubAgent) BreakerStats() []map[string]interface{} {
	return []map[string]interface{}{{"name": "platform", "state": "closed"}}
}

var _ AgentAPI = (*stubAgent)(nil)

func newTestServer(stub *stubAgent) *Server {
	return NewServer(config.ServerConfig{Port: 0}, stub, nil, events.NewEventBus())
}

func doRequest(s *Server, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(&stubAgent{})
	w := doRequest(s, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestStatusEndpoint(t *testing.T) {
	stub := &stubAgent{status: agent.Status{State: agent.StateIdle, Cycle: 4, TradesToday: 2}}
	s := newTestServer(stub)

	w := doRequest(s, http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, w.Code)

	var got agent.Status
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, agent.StateIdle, got.State)
	assert.Equal(t, int64(4), got.Cycle)
	assert.Equal(t, 2, got.TradesToday)
}

func TestPauseWithReason(t *testing.T) {
	stub := &stubAgent{}
	s := newTestServer(stub)

	w := doRequest(s, http.MethodPost, "/api/pause", `{"reason":"maintenance window"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, stub.paused)
	assert.Equal(t, "maintenance window", stub.pauseReason)
}

func TestPauseWithoutBodyUsesDefaultReason(t *testing.T) {
	stub := &stubAgent{}
	s := newTestServer(stub)

	w := doRequest(s, http.MethodPost, "/api/pause", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "paused via API", stub.pauseReason)
}

func TestResumeBlockedAfterKillSwitch(t *testing.T) {
	stub := &stubAgent{status: agent.Status{KillSwitchTriggered: true}}
	s := newTestServer(stub)

	w := doRequest(s, http.MethodPost, "/api/resume", "")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.False(t, stub.resumed)
}

func TestResume(t *testing.T) {
	stub := &stubAgent{}
	s := newTestServer(stub)

	w := doRequest(s, http.MethodPost, "/api/resume", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, stub.resumed)
}

func TestStop(t *testing.T) {
	stub := &stubAgent{}
	s := newTestServer(stub)

	w := doRequest(s, http.MethodPost, "/api/stop", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, stub.stopped)
}

func TestDecisionsWithoutJournal(t *testing.T) {
	s := newTestServer(&stubAgent{})

	w := doRequest(s, http.MethodGet, "/api/decisions", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, false, body["journal_enabled"])
}

func TestUpdateUniverse(t *testing.T) {
	stub := &stubAgent{}
	s := newTestServer(stub)

	w := doRequest(s, http.MethodPut, "/api/universe", `{"assets":["BTCUSDT","ETHUSDT"]}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, stub.universe)
}

func TestUpdateUniverseRejectsMissingAssets(t *testing.T) {
	stub := &stubAgent{}
	s := newTestServer(stub)

	w := doRequest(s, http.MethodPut, "/api/universe", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Nil(t, stub.universe)
}

func TestBreakersEndpoint(t *testing.T) {
	s := newTestServer(&stubAgent{})

	w := doRequest(s, http.MethodGet, "/api/breakers", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "platform")
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(3, time.Minute)
	assert.True(t, rl.Allow("/api/status"))
	assert.True(t, rl.Allow("/api/status"))
	assert.True(t, rl.Allow("/api/status"))
	assert.False(t, rl.Allow("/api/status"))
	// Other endpoints are limited independently
	assert.True(t, rl.Allow("/api/pause"))
}
