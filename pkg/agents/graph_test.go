package agents

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChecker map[string]bool

func (f fakeChecker) Has(name string) bool { return f[name] }

func allToolsChecker() fakeChecker {
	return fakeChecker{
		"validate_customer":       true,
		"query_credit":            true,
		"request_credit_increase": true,
		"conduct_interview":       true,
		"fetch_exchange_rate":     true,
		"end_conversation":        true,
	}
}

func TestDefaultGraph_Shape(t *testing.T) {
	g := DefaultGraph()
	require.NoError(t, g.Validate(allToolsChecker()))

	triage, ok := g.Node(Triage)
	require.True(t, ok)
	assert.True(t, triage.AllowsHandoff(Credit))
	assert.True(t, triage.AllowsHandoff(Exchange))
	assert.False(t, triage.AllowsHandoff(CreditInterview))
	assert.True(t, triage.AllowsTool("validate_customer"))
	assert.False(t, triage.AllowsTool("query_credit"))

	credit, ok := g.Node(Credit)
	require.True(t, ok)
	assert.True(t, credit.AllowsHandoff(CreditInterview))
	assert.True(t, credit.AllowsHandoff(Triage))
	assert.False(t, credit.AllowsHandoff(Exchange))

	interview, ok := g.Node(CreditInterview)
	require.True(t, ok)
	assert.Equal(t, []ID{Credit}, interview.Handoffs)

	exchange, ok := g.Node(Exchange)
	require.True(t, ok)
	assert.Equal(t, []ID{Triage}, exchange.Handoffs)
}

func TestGraph_FullAliasResolvesToTriage(t *testing.T) {
	g := DefaultGraph()

	full, ok := g.Node(Full)
	require.True(t, ok)
	triage, _ := g.Node(Triage)
	assert.Same(t, triage, full)

	// Full is an alias, not a concrete node.
	assert.NotContains(t, g.IDs(), Full)
	assert.Len(t, g.IDs(), 4)
}

func TestHandoffToolName_RoundTrip(t *testing.T) {
	for _, id := range []ID{Triage, Credit, CreditInterview, Exchange} {
		name := HandoffToolName(id)
		target, ok := HandoffTarget(name)
		require.True(t, ok, name)
		assert.Equal(t, id, target)
	}

	assert.Equal(t, "transfer_to_credit_interview", HandoffToolName(CreditInterview))

	_, ok := HandoffTarget("query_credit")
	assert.False(t, ok)
}

func TestValidate_UnknownHandoffTarget(t *testing.T) {
	g := &Graph{nodes: map[ID]*Node{
		Triage: {ID: Triage, Handoffs: []ID{"billing"}},
	}}
	err := g.Validate(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown agent")
}

func TestValidate_SelfHandoff(t *testing.T) {
	g := &Graph{nodes: map[ID]*Node{
		Triage: {ID: Triage, Handoffs: []ID{Triage}},
	}}
	err := g.Validate(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "itself")
}

func TestValidate_UnknownTool(t *testing.T) {
	g := DefaultGraph()
	err := g.Validate(fakeChecker{"validate_customer": true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown tool")
}

func TestInstructions_NonEmpty(t *testing.T) {
	g := DefaultGraph()
	for _, id := range g.IDs() {
		node, ok := g.Node(id)
		require.True(t, ok)
		assert.NotEmpty(t, node.Instructions, string(id))
		assert.NotEmpty(t, node.Name, string(id))
	}
}
