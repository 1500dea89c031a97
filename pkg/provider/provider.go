// Package provider abstracts the execution engines that turn instructions,
// tools and history into the next agent action. Engines only complete one
// request; agent-graph and handoff logic lives in the orchestrator.
package provider

import (
	"context"
	"fmt"
)

// Message is one conversation entry in engine-neutral form.
type Message struct {
	Role       string     `json:"role"` // user, assistant, tool
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ToolCall is a tool invocation requested by the engine.
type ToolCall struct {
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

// ToolSchema describes one tool offered to the engine.
type ToolSchema struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"input_schema"`
}

// Usage tracks token consumption across engine calls.
type Usage struct {
	InputTokens  int `json:"inputTokens"`
	OutputTokens int `json:"outputTokens"`
	Requests     int `json:"requests"`
}

// Add accumulates another usage sample.
func (u *Usage) Add(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.Requests += other.Requests
}

// TotalTokens returns input plus output tokens.
func (u Usage) TotalTokens() int {
	return u.InputTokens + u.OutputTokens
}

// Request is one completion request.
type Request struct {
	Model       string
	System      string
	Messages    []Message
	Tools       []ToolSchema
	Temperature float64
	MaxTokens   int
}

// Response is the engine's next action: text, tool calls, or both.
type Response struct {
	Content   string
	ToolCalls []ToolCall
	Usage     Usage
}

// Info describes an engine for the provider-info endpoint.
type Info struct {
	Name         string `json:"name"`
	Framework    string `json:"framework"`
	DefaultModel string `json:"defaultModel"`
}

// Engine is a pluggable execution engine.
type Engine interface {
	// Complete produces the next action for the given request.
	Complete(ctx context.Context, req Request) (*Response, error)

	// Name returns the engine identifier used for runtime selection.
	Name() string

	// Describe returns engine metadata.
	Describe() Info
}

// Credentials holds the API keys available to the factory.
type Credentials struct {
	OpenAIKey    string
	AnthropicKey string
}

// Factory creates engines by name from configured credentials.
type Factory struct {
	creds Credentials
}

// NewFactory creates an engine factory.
func NewFactory(creds Credentials) *Factory {
	return &Factory{creds: creds}
}

// New creates the named engine, failing when its credential is missing.
func (f *Factory) New(name string) (Engine, error) {
	switch name {
	case "openai":
		if f.creds.OpenAIKey == "" {
			return nil, fmt.Errorf("engine %q has no API key configured", name)
		}
		return NewOpenAIEngine(f.creds.OpenAIKey), nil
	case "anthropic":
		if f.creds.AnthropicKey == "" {
			return nil, fmt.Errorf("engine %q has no API key configured", name)
		}
		return NewAnthropicEngine(f.creds.AnthropicKey), nil
	default:
		return nil, fmt.Errorf("unsupported engine: %s", name)
	}
}

// Available returns metadata for every engine with a configured credential.
func (f *Factory) Available() []Info {
	infos := []Info{}
	if f.creds.OpenAIKey != "" {
		infos = append(infos, NewOpenAIEngine(f.creds.OpenAIKey).Describe())
	}
	if f.creds.AnthropicKey != "" {
		infos = append(infos, NewAnthropicEngine(f.creds.AnthropicKey).Describe())
	}
	return infos
}
