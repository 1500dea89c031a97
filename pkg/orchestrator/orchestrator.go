// Package orchestrator executes conversation turns: it drives the active
// agent's bounded step loop, applies tool effects, performs handoff
// transitions and emits the causal trace of everything that happened.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/agilbank/concierge/internal/observability"
	"github.com/agilbank/concierge/pkg/agents"
	"github.com/agilbank/concierge/pkg/provider"
	"github.com/agilbank/concierge/pkg/sessions"
	"github.com/agilbank/concierge/pkg/tools"
)

// MaxTurnSteps caps the internal step loop of a single turn. Reaching it
// abandons the turn with a retry message instead of an internal fault.
const MaxTurnSteps = 15

const (
	// ClosedMessage is returned for any turn on an ended conversation.
	ClosedMessage = "This conversation has ended. Please start a new session to continue being served."

	// RetryMessage is returned when a turn exhausts its step budget.
	RetryMessage = "Sorry, I could not complete your request right now. Please try again in a moment."
)

// TurnRequest is one inbound user message plus engine tuning.
type TurnRequest struct {
	Message     string
	Model       string
	Temperature float64
	MaxTokens   int
}

// TurnResult is the outcome of one executed turn.
type TurnResult struct {
	Messages []string `json:"messages"`
	Trace    Trace    `json:"trace"`
}

// Orchestrator executes turns against the agent graph.
type Orchestrator struct {
	graph  *agents.Graph
	tools  *tools.Registry
	sink   EventSink
	logger zerolog.Logger
}

// Options configures an Orchestrator.
type Options struct {
	Graph  *agents.Graph
	Tools  *tools.Registry
	Sink   EventSink
	Logger zerolog.Logger
}

// New creates an orchestrator, validating the graph against the registry.
func New(opts Options) (*Orchestrator, error) {
	if opts.Graph == nil {
		return nil, fmt.Errorf("agent graph is required")
	}
	if opts.Tools == nil {
		return nil, fmt.Errorf("tool registry is required")
	}
	if err := opts.Graph.Validate(opts.Tools); err != nil {
		return nil, fmt.Errorf("invalid agent graph: %w", err)
	}
	return &Orchestrator{
		graph:  opts.Graph,
		tools:  opts.Tools,
		sink:   opts.Sink,
		logger: opts.Logger,
	}, nil
}

// ExecuteTurn processes one inbound user message to completion. The caller
// must serialize turns per session; histories and shared context are mutated
// without further locking.
func (o *Orchestrator) ExecuteTurn(ctx context.Context, session *sessions.Session, engine provider.Engine, req TurnRequest) (*TurnResult, error) {
	start := time.Now()

	if session.Context.ConversationEnded {
		return &TurnResult{
			Messages: []string{ClosedMessage},
			Trace: Trace{
				ActiveAgent:     o.agentName(session.ActiveAgent),
				ContextSnapshot: session.Context.Snapshot(),
				Events:          []Event{},
			},
		}, nil
	}

	turn := &turnState{session: session}
	session.History = append(session.History, provider.Message{Role: "user", Content: req.Message})

	var usage provider.Usage
	finalized := false
	steps := 0

	for steps < MaxTurnSteps {
		steps++

		node, ok := o.graph.Node(session.ActiveAgent)
		if !ok {
			return nil, fmt.Errorf("unknown active agent: %s", session.ActiveAgent)
		}

		resp, err := engine.Complete(ctx, provider.Request{
			Model:       req.Model,
			System:      node.Instructions,
			Messages:    session.History,
			Tools:       o.offeredTools(node),
			Temperature: req.Temperature,
			MaxTokens:   req.MaxTokens,
		})
		if err != nil {
			observability.RecordTurn(string(node.ID), "error", time.Since(start), steps)
			return nil, fmt.Errorf("engine %s failed: %w", engine.Name(), err)
		}

		usage.Add(resp.Usage)
		observability.RecordEngineRequest(engine.Name(), resp.Usage.InputTokens, resp.Usage.OutputTokens)

		session.History = append(session.History, provider.Message{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		if resp.Content != "" {
			turn.messages = append(turn.messages, resp.Content)
			o.emit(turn, Event{Kind: EventMessage, Agent: node.Name, Content: resp.Content})
		}

		if len(resp.ToolCalls) == 0 {
			finalized = true
			break
		}

		for _, call := range resp.ToolCalls {
			o.applyToolCall(ctx, turn, node, call)
		}
	}

	status := "ok"
	if !finalized {
		status = "budget_exceeded"
		turn.messages = []string{RetryMessage}
		session.History = append(session.History, provider.Message{Role: "assistant", Content: RetryMessage})
		o.logger.Warn().
			Str("session_id", session.ID).
			Int("steps", steps).
			Msg("Turn abandoned after exhausting step budget")
	}

	finalAgent := o.agentName(session.ActiveAgent)
	observability.RecordTurn(string(session.ActiveAgent), status, time.Since(start), steps)

	return &TurnResult{
		Messages: turn.messages,
		Trace: Trace{
			TokenUsage:      usage,
			DurationMs:      time.Since(start).Milliseconds(),
			ActiveAgent:     finalAgent,
			ContextSnapshot: session.Context.Snapshot(),
			Events:          turn.events(),
		},
	}, nil
}

type turnState struct {
	session  *sessions.Session
	messages []string
	trace    []Event
}

func (t *turnState) events() []Event {
	if t.trace == nil {
		return []Event{}
	}
	return t.trace
}

func (o *Orchestrator) emit(turn *turnState, event Event) {
	event.ID = newEventID()
	event.At = time.Now()
	turn.trace = append(turn.trace, event)
	if o.sink != nil {
		o.sink.Publish(turn.session.ID, event)
	}
}

// offeredTools builds the engine-facing tool list for a node: its own tools
// plus one synthetic transfer tool per allowed handoff edge.
func (o *Orchestrator) offeredTools(node *agents.Node) []provider.ToolSchema {
	schemas := o.tools.Schemas(node.Tools)
	for _, target := range node.Handoffs {
		targetNode, ok := o.graph.Node(target)
		if !ok {
			continue
		}
		schemas = append(schemas, provider.ToolSchema{
			Name:        agents.HandoffToolName(target),
			Description: fmt.Sprintf("Transfer the conversation to the %s.", targetNode.Name),
			InputSchema: map[string]interface{}{
				"type":                 "object",
				"additionalProperties": false,
				"properties":           map[string]interface{}{},
			},
		})
	}
	return schemas
}

// applyToolCall runs one tool or handoff call and appends its result to the
// history. Tool failures become conversational text, never faults.
func (o *Orchestrator) applyToolCall(ctx context.Context, turn *turnState, node *agents.Node, call provider.ToolCall) {
	session := turn.session
	o.emit(turn, Event{Kind: EventToolCall, Agent: node.Name, Tool: call.Name, Input: call.Arguments})

	if target, ok := agents.HandoffTarget(call.Name); ok {
		o.applyHandoff(turn, node, call, target)
		return
	}

	var result string
	if !node.AllowsTool(call.Name) {
		result = fmt.Sprintf("The %s operation is not available to this agent.", call.Name)
	} else {
		var err error
		result, err = o.tools.Execute(ctx, call.Name, session.Context, call.Arguments)
		if err != nil {
			o.logger.Error().
				Str("session_id", session.ID).
				Str("tool", call.Name).
				Err(err).
				Msg("Tool execution failed")
			result = "An internal error occurred while executing the operation. Please try again."
		}
	}

	session.History = append(session.History, provider.Message{
		Role:       "tool",
		Content:    result,
		ToolCallID: call.ID,
	})
	o.emit(turn, Event{Kind: EventToolResult, Agent: node.Name, Tool: call.Name, Output: result})
}

func (o *Orchestrator) applyHandoff(turn *turnState, node *agents.Node, call provider.ToolCall, target agents.ID) {
	session := turn.session

	targetNode, known := o.graph.Node(target)
	if !known || !node.AllowsHandoff(target) {
		result := fmt.Sprintf("Transfer to %q is not permitted from this agent.", target)
		session.History = append(session.History, provider.Message{
			Role:       "tool",
			Content:    result,
			ToolCallID: call.ID,
		})
		o.emit(turn, Event{Kind: EventToolResult, Agent: node.Name, Tool: call.Name, Output: result})
		return
	}

	result := fmt.Sprintf("Conversation transferred to the %s.", targetNode.Name)
	session.History = append(session.History, provider.Message{
		Role:       "tool",
		Content:    result,
		ToolCallID: call.ID,
	})
	o.emit(turn, Event{Kind: EventToolResult, Agent: node.Name, Tool: call.Name, Output: result})

	session.ActiveAgent = target
	observability.RecordHandoff(string(node.ID), string(target))
	o.emit(turn, Event{Kind: EventHandoff, Agent: node.Name, From: node.Name, To: targetNode.Name})

	// The receiving agent greets the customer pro-actively, primed with the
	// context it would otherwise have to re-ask.
	session.History = append(session.History, provider.Message{
		Role:    "user",
		Content: handoffTrigger(session),
	})

	o.logger.Info().
		Str("session_id", session.ID).
		Str("from", string(node.ID)).
		Str("to", string(target)).
		Msg("Agent handoff")
}

func handoffTrigger(session *sessions.Session) string {
	c := session.Context
	if !c.Authenticated {
		return "[SYSTEM_TRIGGER] The conversation has just been transferred to you. The customer is not authenticated yet. Greet the customer and continue the service."
	}
	return fmt.Sprintf(
		"[SYSTEM_TRIGGER] The conversation has just been transferred to you. Context: customer name: %s; credit score: %d; credit limit: R$ %.2f. Greet the customer by name and continue the service without re-asking for information you already have.",
		c.CustomerName, c.CurrentScore, c.CurrentLimit,
	)
}

func (o *Orchestrator) agentName(id agents.ID) string {
	if node, ok := o.graph.Node(id); ok {
		return node.Name
	}
	return string(id)
}
