package bank

// MaxAuthAttempts is the number of failed authentications tolerated before the
// conversation is terminated.
const MaxAuthAttempts = 3

// Context is the mutable state shared by every agent and tool within a single
// session. It is owned exclusively by that session and mutated synchronously
// during turn execution; it is never shared across sessions.
type Context struct {
	Authenticated bool `json:"authenticated"`
	AuthAttempts  int  `json:"authAttempts"`

	// Customer data, filled after authentication.
	CustomerID   string  `json:"customerId,omitempty"`
	CustomerName string  `json:"customerName,omitempty"`
	CurrentScore int     `json:"currentScore,omitempty"`
	CurrentLimit float64 `json:"currentLimit,omitempty"`

	// Interview answers, filled during a credit interview.
	Interview *InterviewAnswers `json:"interview,omitempty"`

	// ConversationEnded marks the session write-once-terminal: once set, no
	// further turn may mutate domain state.
	ConversationEnded bool `json:"conversationEnded"`
}

// NewContext returns a fresh context, optionally merged with caller-supplied
// overrides (used for pre-authenticated demo entry points).
func NewContext(overrides *Context) *Context {
	ctx := &Context{}
	if overrides != nil {
		*ctx = *overrides
	}
	return ctx
}

// DemoIdentity is the fixed pre-authenticated identity bound to sessions that
// enter through a specialized agent directly.
func DemoIdentity() *Context {
	return &Context{
		Authenticated: true,
		CustomerID:    "12345678901",
		CustomerName:  "Joao Silva (Demo)",
		CurrentScore:  720,
		CurrentLimit:  5000,
	}
}

// Snapshot is the subset of context exposed in traces and handoff triggers.
type Snapshot struct {
	Authenticated     bool    `json:"authenticated"`
	CustomerID        string  `json:"customerId,omitempty"`
	CustomerName      string  `json:"customerName,omitempty"`
	CurrentScore      int     `json:"currentScore,omitempty"`
	CurrentLimit      float64 `json:"currentLimit,omitempty"`
	ConversationEnded bool    `json:"conversationEnded"`
}

// Snapshot returns a copy of the customer-facing fields.
func (c *Context) Snapshot() Snapshot {
	return Snapshot{
		Authenticated:     c.Authenticated,
		CustomerID:        c.CustomerID,
		CustomerName:      c.CustomerName,
		CurrentScore:      c.CurrentScore,
		CurrentLimit:      c.CurrentLimit,
		ConversationEnded: c.ConversationEnded,
	}
}
