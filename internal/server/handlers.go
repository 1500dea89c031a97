package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/agilbank/concierge/pkg/agents"
	"github.com/agilbank/concierge/pkg/bank"
	"github.com/agilbank/concierge/pkg/ledger"
	"github.com/agilbank/concierge/pkg/orchestrator"
	"github.com/agilbank/concierge/pkg/provider"
	"github.com/agilbank/concierge/pkg/sessions"
)

// ChatRequest is the conversation endpoint's input.
type ChatRequest struct {
	SessionID string `json:"sessionId,omitempty"`
	Message   string `json:"message"`
	AgentID   string `json:"agentId,omitempty"`
	Provider  string `json:"provider,omitempty"`
	Model     string `json:"model,omitempty"`
}

// ChatResponse is the conversation endpoint's output.
type ChatResponse struct {
	SessionID string             `json:"sessionId"`
	Messages  []string           `json:"messages"`
	Trace     orchestrator.Trace `json:"trace"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.shuttingDown() {
		writeError(w, http.StatusServiceUnavailable, "server is shutting down")
		return
	}

	if !s.limiter.Allow(clientID(r)) {
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	s.inFlightReqs.Add(1)
	defer s.inFlightReqs.Done()

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	session, err := s.resolveSession(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	engine, err := s.resolveEngine(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.queue.Enqueue(r.Context(), session.ID, func(ctx context.Context) (interface{}, error) {
		return s.orch.ExecuteTurn(ctx, session, engine, orchestrator.TurnRequest{
			Message: req.Message,
			Model:   req.Model,
		})
	})
	if err != nil {
		s.logger.Error().
			Str("session_id", session.ID).
			Err(err).
			Msg("Turn execution failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	turn := result.(*orchestrator.TurnResult)
	writeJSON(w, http.StatusOK, ChatResponse{
		SessionID: session.ID,
		Messages:  turn.Messages,
		Trace:     turn.Trace,
	})
}

// resolveSession finds the referenced session, or creates one bound to the
// requested entry agent. Entry agents other than full and triage start
// pre-authenticated with the demo identity.
func (s *Server) resolveSession(req ChatRequest) (*sessions.Session, error) {
	if req.SessionID != "" {
		if session, err := s.registry.Get(req.SessionID); err == nil {
			return session, nil
		}
		// Unknown ids fall through to a fresh session.
	}

	agentID := agents.ID(req.AgentID)
	if agentID == "" {
		agentID = agents.Full
	}
	switch agentID {
	case agents.Full, agents.Triage, agents.Credit, agents.CreditInterview, agents.Exchange:
	default:
		return nil, errors.New("unknown agent id: " + req.AgentID)
	}

	var overrides *bank.Context
	if agentID != agents.Full && agentID != agents.Triage {
		overrides = bank.DemoIdentity()
	}
	return s.registry.Create(agentID, overrides), nil
}

func (s *Server) resolveEngine(req ChatRequest) (provider.Engine, error) {
	name := s.engines.Default
	if req.Provider != "" {
		if !s.engines.AllowSelection {
			return nil, errors.New("runtime engine selection is disabled")
		}
		name = req.Provider
	}
	return s.factory.New(name)
}

// handleProviders lists configured engines and whether runtime selection is
// permitted.
func (s *Server) handleProviders(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"providers":        s.factory.Available(),
		"default":          s.engines.Default,
		"runtimeSelection": s.engines.AllowSelection,
	})
}

// handleTable serves a ledger table read-only. The table name is resolved
// through an explicit allow-list, so path traversal is rejected by
// construction.
func (s *Server) handleTable(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	name := strings.TrimPrefix(r.URL.Path, "/api/tables/")

	var (
		data interface{}
		err  error
	)
	switch name {
	case "customers":
		data, err = s.store.ListCustomers()
	case "score_bands":
		data, err = s.store.ListScoreBands()
	case "increase_requests":
		data, err = s.store.ListIncreaseRequests()
	default:
		writeError(w, http.StatusNotFound, "unknown table")
		return
	}

	if err != nil {
		if errors.Is(err, ledger.ErrStorageUnavailable) {
			writeError(w, http.StatusServiceUnavailable, "table temporarily unavailable")
			return
		}
		s.logger.Error().Str("table", name).Err(err).Msg("Table read failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"table": name,
		"rows":  data,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"sessions": s.registry.Count(),
	})
}

func clientID(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}
