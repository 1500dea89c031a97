// Package agents defines the fixed directed graph of dialogue agents: which
// tools each node may invoke and which handoff edges are permitted.
package agents

import (
	"fmt"
	"strings"
)

// ID identifies an agent node.
type ID string

const (
	Triage          ID = "triage"
	Credit          ID = "credit"
	CreditInterview ID = "credit-interview"
	Exchange        ID = "exchange"

	// Full is the orchestrated entry point: it starts at triage with every
	// handoff edge reachable.
	Full ID = "full"
)

// Node is a single agent: its capability set and allowed handoff targets.
// Nodes are defined at startup and never mutated.
type Node struct {
	ID           ID
	Name         string
	Instructions string
	Tools        []string
	Handoffs     []ID
}

// AllowsTool reports whether the node may invoke the named tool.
func (n *Node) AllowsTool(name string) bool {
	for _, t := range n.Tools {
		if t == name {
			return true
		}
	}
	return false
}

// AllowsHandoff reports whether the node may transfer the conversation to the
// target node.
func (n *Node) AllowsHandoff(target ID) bool {
	for _, h := range n.Handoffs {
		if h == target {
			return true
		}
	}
	return false
}

// HandoffToolName returns the synthetic tool name that performs a handoff to
// the target node.
func HandoffToolName(target ID) string {
	return "transfer_to_" + strings.ReplaceAll(string(target), "-", "_")
}

// HandoffTarget resolves a synthetic transfer tool name back to an agent ID.
// Returns false if the name is not a transfer tool.
func HandoffTarget(toolName string) (ID, bool) {
	const prefix = "transfer_to_"
	if !strings.HasPrefix(toolName, prefix) {
		return "", false
	}
	return ID(strings.ReplaceAll(strings.TrimPrefix(toolName, prefix), "_", "-")), true
}

// Graph is the static agent graph.
type Graph struct {
	nodes map[ID]*Node
}

// Node resolves an agent ID to its node. The Full alias resolves to triage.
func (g *Graph) Node(id ID) (*Node, bool) {
	if id == Full {
		id = Triage
	}
	n, ok := g.nodes[id]
	return n, ok
}

// IDs returns the identifiers of all concrete nodes.
func (g *Graph) IDs() []ID {
	ids := make([]ID, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	return ids
}

// ToolChecker reports whether a tool name is registered. Satisfied by the
// tools registry.
type ToolChecker interface {
	Has(name string) bool
}

// Validate fails fast when a handoff edge points outside the graph or a
// capability references an unregistered tool.
func (g *Graph) Validate(reg ToolChecker) error {
	for id, node := range g.nodes {
		for _, target := range node.Handoffs {
			if _, ok := g.nodes[target]; !ok {
				return fmt.Errorf("agent %q declares handoff to unknown agent %q", id, target)
			}
			if target == id {
				return fmt.Errorf("agent %q declares handoff to itself", id)
			}
		}
		if reg == nil {
			continue
		}
		for _, tool := range node.Tools {
			if !reg.Has(tool) {
				return fmt.Errorf("agent %q declares unknown tool %q", id, tool)
			}
		}
	}
	return nil
}

// DefaultGraph builds the production agent graph:
//
//	triage           -> credit, exchange
//	credit           -> credit-interview, triage
//	credit-interview -> credit
//	exchange         -> triage
func DefaultGraph() *Graph {
	return &Graph{nodes: map[ID]*Node{
		Triage: {
			ID:           Triage,
			Name:         "Triage Agent",
			Instructions: triageInstructions,
			Tools:        []string{"validate_customer", "end_conversation"},
			Handoffs:     []ID{Credit, Exchange},
		},
		Credit: {
			ID:           Credit,
			Name:         "Credit Agent",
			Instructions: creditInstructions,
			Tools:        []string{"query_credit", "request_credit_increase", "end_conversation"},
			Handoffs:     []ID{CreditInterview, Triage},
		},
		CreditInterview: {
			ID:           CreditInterview,
			Name:         "Credit Interview Agent",
			Instructions: creditInterviewInstructions,
			Tools:        []string{"conduct_interview", "end_conversation"},
			Handoffs:     []ID{Credit},
		},
		Exchange: {
			ID:           Exchange,
			Name:         "Exchange Agent",
			Instructions: exchangeInstructions,
			Tools:        []string{"fetch_exchange_rate", "end_conversation"},
			Handoffs:     []ID{Triage},
		},
	}}
}
