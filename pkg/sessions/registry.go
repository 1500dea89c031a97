// Package sessions holds the in-memory session registry. Sessions are
// process-local and never persisted; idle ones are evicted by a periodic
// sweep.
package sessions

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/agilbank/concierge/internal/observability"
	"github.com/agilbank/concierge/pkg/agents"
	"github.com/agilbank/concierge/pkg/bank"
	"github.com/agilbank/concierge/pkg/provider"
)

// DefaultTTL is the idle window after which a session is evicted.
const DefaultTTL = 30 * time.Minute

// Session is the per-conversation state: active agent, history and shared
// context. It is mutated only while its turn lane holds the session, so no
// lock is carried here.
type Session struct {
	ID          string
	ActiveAgent agents.ID
	History     []provider.Message
	Context     *bank.Context

	CreatedAt    time.Time
	LastActivity time.Time
}

// Registry maps session ids to sessions with idle-timeout eviction.
type Registry struct {
	sessions map[string]*Session
	ttl      time.Duration
	mu       sync.Mutex
	logger   zerolog.Logger

	now func() time.Time
}

// NewRegistry creates a registry with the given idle TTL. A non-positive TTL
// falls back to DefaultTTL.
func NewRegistry(ttl time.Duration, logger zerolog.Logger) *Registry {
	observability.EnsureRegistered()

	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Registry{
		sessions: make(map[string]*Session),
		ttl:      ttl,
		logger:   logger,
		now:      time.Now,
	}
}

// Create allocates a session bound to the given entry agent, merging any
// caller-supplied context overrides.
func (r *Registry) Create(agentID agents.ID, overrides *bank.Context) *Session {
	now := r.now()
	session := &Session{
		ID:           uuid.NewString(),
		ActiveAgent:  agentID,
		Context:      bank.NewContext(overrides),
		CreatedAt:    now,
		LastActivity: now,
	}

	r.mu.Lock()
	r.sessions[session.ID] = session
	count := len(r.sessions)
	r.mu.Unlock()

	observability.SetActiveSessions(count)
	observability.RecordConversationAudit(session.ID, "created", map[string]interface{}{
		"agent": string(agentID),
	})
	r.logger.Info().
		Str("session_id", session.ID).
		Str("agent", string(agentID)).
		Msg("Session created")

	return session
}

// Get resolves a session id, touching its last-activity timestamp.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session not found: %s", id)
	}
	session.LastActivity = r.now()
	return session, nil
}

// Delete removes a session. Returns whether it existed.
func (r *Registry) Delete(id string) bool {
	r.mu.Lock()
	_, ok := r.sessions[id]
	delete(r.sessions, id)
	count := len(r.sessions)
	r.mu.Unlock()

	if ok {
		observability.SetActiveSessions(count)
		observability.RecordConversationAudit(id, "deleted", nil)
	}
	return ok
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep evicts every session idle for longer than the TTL and returns the
// evicted ids.
func (r *Registry) Sweep() []string {
	cutoff := r.now().Add(-r.ttl)

	r.mu.Lock()
	evicted := []string{}
	for id, session := range r.sessions {
		if session.LastActivity.Before(cutoff) {
			delete(r.sessions, id)
			evicted = append(evicted, id)
		}
	}
	count := len(r.sessions)
	r.mu.Unlock()

	if len(evicted) > 0 {
		observability.SetActiveSessions(count)
		observability.RecordSessionsSwept(len(evicted))
		for _, id := range evicted {
			observability.RecordConversationAudit(id, "evicted", nil)
		}
		r.logger.Info().
			Int("evicted", len(evicted)).
			Int("remaining", count).
			Msg("Idle sessions swept")
	}
	return evicted
}
