package orchestrator

import (
	"fmt"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/agilbank/concierge/pkg/bank"
	"github.com/agilbank/concierge/pkg/provider"
)

// Event kinds emitted in the turn trace.
const (
	EventMessage    = "message"
	EventToolCall   = "tool_call"
	EventToolResult = "tool_result"
	EventHandoff    = "handoff"
)

// Event is one entry of the turn trace. Entries appear in strict emission
// order, matching history append order.
type Event struct {
	ID    string    `json:"id"`
	At    time.Time `json:"at"`
	Kind  string    `json:"kind"`
	Agent string    `json:"agent"`

	Content string                 `json:"content,omitempty"`
	Tool    string                 `json:"tool,omitempty"`
	Input   map[string]interface{} `json:"input,omitempty"`
	Output  string                 `json:"output,omitempty"`
	From    string                 `json:"from,omitempty"`
	To      string                 `json:"to,omitempty"`
}

// Trace summarizes one executed turn.
type Trace struct {
	TokenUsage      provider.Usage `json:"tokenUsage"`
	DurationMs      int64          `json:"durationMs"`
	ActiveAgent     string         `json:"activeAgent"`
	ContextSnapshot bank.Snapshot  `json:"contextSnapshot"`
	Events          []Event        `json:"events"`
}

// EventSink receives trace events as they are emitted, before the turn
// completes. Used by the live event stream.
type EventSink interface {
	Publish(sessionID string, event Event)
}

const eventIDLength = 12

func newEventID() string {
	id, err := gonanoid.New(eventIDLength)
	if err != nil {
		return fmt.Sprintf("evt%d", time.Now().UnixNano())
	}
	return id
}
