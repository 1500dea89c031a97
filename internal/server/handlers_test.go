package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agilbank/concierge/internal/config"
	"github.com/agilbank/concierge/pkg/agents"
	"github.com/agilbank/concierge/pkg/ledger"
	"github.com/agilbank/concierge/pkg/orchestrator"
	"github.com/agilbank/concierge/pkg/provider"
	"github.com/agilbank/concierge/pkg/sessions"
	"github.com/agilbank/concierge/pkg/tools"
	"github.com/agilbank/concierge/pkg/turnqueue"
)

func newTestServer(t *testing.T, engines config.EnginesConfig) *Server {
	t.Helper()

	dir := t.TempDir()
	seed := map[string]string{
		"customers.csv": "customer_id,name,birth_date,score,limit\n" +
			"12345678901,Joao Silva,15/03/1985,720,5000.00\n",
		"score_bands.csv": "score_min,score_max,max_limit\n" +
			"0,699,2500.00\n700,1000,10000.00\n",
		"increase_requests.csv": "customer_id,requested_at,limit_at_request,requested_limit,status\n",
	}
	for file, content := range seed {
		require.NoError(t, os.WriteFile(filepath.Join(dir, file), []byte(content), 0o644))
	}

	store, err := ledger.New(dir)
	require.NoError(t, err)

	registry, err := tools.NewBankingRegistry(tools.Deps{Store: store, Logger: zerolog.Nop()})
	require.NoError(t, err)

	orch, err := orchestrator.New(orchestrator.Options{
		Graph:  agents.DefaultGraph(),
		Tools:  registry,
		Logger: zerolog.Nop(),
	})
	require.NoError(t, err)

	queue := turnqueue.New()
	t.Cleanup(queue.Shutdown)

	srv, err := New(Config{
		Server:   config.ServerConfig{Host: "127.0.0.1", Port: 8080},
		Engines:  engines,
		Registry: sessions.NewRegistry(time.Minute, zerolog.Nop()),
		Orch:     orch,
		Queue:    queue,
		Factory:  provider.NewFactory(provider.Credentials{}),
		Store:    store,
		Logger:   zerolog.Nop(),
	})
	require.NoError(t, err)
	return srv
}

func TestNew_RejectsMissingDependencies(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestHandleChat_MethodAndBodyValidation(t *testing.T) {
	srv := newTestServer(t, config.EnginesConfig{Default: "openai"})

	rec := httptest.NewRecorder()
	srv.handleChat(rec, httptest.NewRequest(http.MethodGet, "/api/chat", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = httptest.NewRecorder()
	srv.handleChat(rec, httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader("{not json")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	srv.handleChat(rec, httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"message":"  "}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp errorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "message is required", resp.Error)
}

func TestHandleChat_UnknownAgent(t *testing.T) {
	srv := newTestServer(t, config.EnginesConfig{Default: "openai"})

	rec := httptest.NewRecorder()
	body := `{"message":"hi","agentId":"billing"}`
	srv.handleChat(rec, httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(body)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "unknown agent id")
}

func TestHandleChat_RuntimeSelectionDisabled(t *testing.T) {
	srv := newTestServer(t, config.EnginesConfig{Default: "openai", AllowSelection: false})

	rec := httptest.NewRecorder()
	body := `{"message":"hi","provider":"anthropic"}`
	srv.handleChat(rec, httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(body)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "runtime engine selection is disabled")
}

func TestHandleChat_MissingCredential(t *testing.T) {
	srv := newTestServer(t, config.EnginesConfig{Default: "openai"})

	rec := httptest.NewRecorder()
	srv.handleChat(rec, httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"message":"hi"}`)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "no API key")
}

func TestResolveSession(t *testing.T) {
	srv := newTestServer(t, config.EnginesConfig{Default: "openai"})

	// No id: a fresh session on the full entry point, unauthenticated.
	session, err := srv.resolveSession(ChatRequest{})
	require.NoError(t, err)
	assert.Equal(t, agents.Full, session.ActiveAgent)
	assert.False(t, session.Context.Authenticated)

	// Known id: the same session comes back.
	again, err := srv.resolveSession(ChatRequest{SessionID: session.ID})
	require.NoError(t, err)
	assert.Same(t, session, again)

	// Unknown id: a fresh session instead of an error.
	fresh, err := srv.resolveSession(ChatRequest{SessionID: "gone"})
	require.NoError(t, err)
	assert.NotEqual(t, session.ID, fresh.ID)

	// Specialized entry points start pre-authenticated with the demo identity.
	demo, err := srv.resolveSession(ChatRequest{AgentID: "credit"})
	require.NoError(t, err)
	assert.Equal(t, agents.Credit, demo.ActiveAgent)
	assert.True(t, demo.Context.Authenticated)
	assert.Equal(t, "Joao Silva (Demo)", demo.Context.CustomerName)

	// Triage entry is not pre-authenticated.
	triage, err := srv.resolveSession(ChatRequest{AgentID: "triage"})
	require.NoError(t, err)
	assert.False(t, triage.Context.Authenticated)
}

func TestHandleTable(t *testing.T) {
	srv := newTestServer(t, config.EnginesConfig{Default: "openai"})

	rec := httptest.NewRecorder()
	srv.handleTable(rec, httptest.NewRequest(http.MethodGet, "/api/tables/customers", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Table string            `json:"table"`
		Rows  []ledger.Customer `json:"rows"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "customers", resp.Table)
	require.Len(t, resp.Rows, 1)
	assert.Equal(t, "Joao Silva", resp.Rows[0].Name)

	rec = httptest.NewRecorder()
	srv.handleTable(rec, httptest.NewRequest(http.MethodGet, "/api/tables/score_bands", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	srv.handleTable(rec, httptest.NewRequest(http.MethodGet, "/api/tables/increase_requests", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleTable_RejectsUnknownNames(t *testing.T) {
	srv := newTestServer(t, config.EnginesConfig{Default: "openai"})

	for _, name := range []string{"secrets", "../../etc/passwd", "customers.csv", ""} {
		rec := httptest.NewRecorder()
		srv.handleTable(rec, httptest.NewRequest(http.MethodGet, "/api/tables/"+name, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code, name)
	}

	rec := httptest.NewRecorder()
	srv.handleTable(rec, httptest.NewRequest(http.MethodPost, "/api/tables/customers", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandleTable_StorageUnavailable(t *testing.T) {
	srv := newTestServer(t, config.EnginesConfig{Default: "openai"})
	require.NoError(t, os.Remove(filepath.Join(srv.store.Dir(), "customers.csv")))

	rec := httptest.NewRecorder()
	srv.handleTable(rec, httptest.NewRequest(http.MethodGet, "/api/tables/customers", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandleProviders(t *testing.T) {
	srv := newTestServer(t, config.EnginesConfig{Default: "openai", AllowSelection: true})

	rec := httptest.NewRecorder()
	srv.handleProviders(rec, httptest.NewRequest(http.MethodGet, "/api/providers", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Providers        []provider.Info `json:"providers"`
		Default          string          `json:"default"`
		RuntimeSelection bool            `json:"runtimeSelection"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Empty(t, resp.Providers)
	assert.Equal(t, "openai", resp.Default)
	assert.True(t, resp.RuntimeSelection)
}

func TestHandleHealth(t *testing.T) {
	srv := newTestServer(t, config.EnginesConfig{Default: "openai"})
	srv.registry.Create(agents.Full, nil)

	rec := httptest.NewRecorder()
	srv.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Status   string `json:"status"`
		Sessions int    `json:"sessions"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 1, resp.Sessions)
}

func TestWithCORS(t *testing.T) {
	srv := newTestServer(t, config.EnginesConfig{Default: "openai"})

	called := false
	handler := srv.withCORS(func(w http.ResponseWriter, r *http.Request) { called = true })

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodOptions, "/api/chat", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.False(t, called)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/api/chat", nil))
	assert.True(t, called)
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(2)

	assert.True(t, rl.Allow("client-a"))
	assert.True(t, rl.Allow("client-a"))
	assert.False(t, rl.Allow("client-a"))

	// Other clients have their own window.
	assert.True(t, rl.Allow("client-b"))

	// Zero disables limiting.
	unlimited := NewRateLimiter(0)
	for i := 0; i < 100; i++ {
		assert.True(t, unlimited.Allow("client-a"))
	}
}

func TestRateLimiter_AllowPrunesStaleClients(t *testing.T) {
	rl := NewRateLimiter(1000)
	rl.clients["stale"] = []time.Time{time.Now().Add(-2 * time.Minute)}

	for i := 0; i < pruneInterval; i++ {
		assert.True(t, rl.Allow("active"))
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()
	assert.NotContains(t, rl.clients, "stale")
	assert.NotEmpty(t, rl.clients["active"])
}

func TestRateLimiter_Prune(t *testing.T) {
	rl := NewRateLimiter(10)
	rl.clients["stale"] = []time.Time{time.Now().Add(-2 * time.Minute)}
	require.True(t, rl.Allow("active"))

	rl.Prune()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	assert.NotContains(t, rl.clients, "stale")
	assert.Contains(t, rl.clients, "active")
}

func TestHandleChat_RateLimited(t *testing.T) {
	srv := newTestServer(t, config.EnginesConfig{Default: "openai"})
	srv.limiter = NewRateLimiter(1)

	body := func() *strings.Reader { return strings.NewReader(`{"message":"hi"}`) }

	req := httptest.NewRequest(http.MethodPost, "/api/chat", body())
	req.RemoteAddr = "10.0.0.1:5000"
	rec := httptest.NewRecorder()
	srv.handleChat(rec, req)
	assert.NotEqual(t, http.StatusTooManyRequests, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/chat", body())
	req.RemoteAddr = "10.0.0.1:5001"
	rec = httptest.NewRecorder()
	srv.handleChat(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}
