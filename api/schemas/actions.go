package schemas

// -- UI Action Schemas --

// InteractionStrategy is one of the escalating ways to trigger a UI action.
// Strategies are attempted strictly in order; a later strategy runs only
// after the previous one was rejected by the engine.
type InteractionStrategy string

const (
	// NormalInvoke asks the engine to perform the action with its full
	// actionability checks (visible, stable, receives events).
	NormalInvoke InteractionStrategy = "normal"
	// ForcedInvoke bypasses actionability checks and dispatches the raw
	// input event at the element.
	ForcedInvoke InteractionStrategy = "forced"
	// ScriptInvoke falls back to invoking the action from JavaScript
	// inside the page.
	ScriptInvoke InteractionStrategy = "script"
)

// DefaultStrategyOrder is the canonical escalation sequence.
var DefaultStrategyOrder = []InteractionStrategy{NormalInvoke, ForcedInvoke, ScriptInvoke}

// AttemptOutcome classifies a single resolve+perform cycle.
type AttemptOutcome string

const (
	// AttemptSuccess means a strategy completed without the engine raising.
	AttemptSuccess AttemptOutcome = "success"
	// AttemptNotFound means no candidate locator resolved to a visible,
	// enabled element. An element that resolves but is not interactable is
	// reported the same way.
	AttemptNotFound AttemptOutcome = "not_found"
	// AttemptRejected means a target was resolved but every strategy raised.
	AttemptRejected AttemptOutcome = "rejected"
)

// ActionAttempt describes one iteration of the executor's retry loop.
// Attempts are transient: they are aggregated into logs and return values,
// never persisted.
type ActionAttempt struct {
	Locator  string              `json:"locator,omitempty"`
	Strategy InteractionStrategy `json:"strategy,omitempty"`
	Outcome  AttemptOutcome      `json:"outcome"`
	Attempt  int                 `json:"attempt"`
}
