package provider

import (
	"context"
	"fmt"
	"sync"
)

// ScriptedEngine replays a fixed sequence of responses. Used by tests and by
// deployments without any credential configured.
type ScriptedEngine struct {
	mu        sync.Mutex
	responses []Response
	next      int

	// Requests records every request received, in order.
	Requests []Request
}

// NewScriptedEngine creates an engine that replays the given responses in
// order. When the script is exhausted it keeps returning the last response.
func NewScriptedEngine(responses ...Response) *ScriptedEngine {
	return &ScriptedEngine{responses: responses}
}

// Name returns the engine identifier.
func (e *ScriptedEngine) Name() string {
	return "scripted"
}

// Describe returns engine metadata.
func (e *ScriptedEngine) Describe() Info {
	return Info{
		Name:         "scripted",
		Framework:    "in-process replay",
		DefaultModel: "none",
	}
}

// Complete returns the next scripted response.
func (e *ScriptedEngine) Complete(_ context.Context, req Request) (*Response, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.Requests = append(e.Requests, req)

	if len(e.responses) == 0 {
		return nil, fmt.Errorf("scripted engine has no responses")
	}

	idx := e.next
	if idx >= len(e.responses) {
		idx = len(e.responses) - 1
	} else {
		e.next++
	}

	resp := e.responses[idx]
	resp.Usage.Requests = 1
	return &resp, nil
}

// CallCount returns how many completions were requested.
func (e *ScriptedEngine) CallCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.Requests)
}
