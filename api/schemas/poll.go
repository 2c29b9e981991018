package schemas

import "context"

// -- Poll Engine Schemas --

// Outcome is the final result of one poll run.
type Outcome int

const (
	OutcomePending Outcome = iota
	OutcomeCommitted
	OutcomeNoMatch
	OutcomeCancelled
	OutcomeExhausted
	// OutcomeAborted is reported when the browser session itself was lost.
	OutcomeAborted
)

func (o Outcome) String() string {
	switch o {
	case OutcomePending:
		return "pending"
	case OutcomeCommitted:
		return "committed"
	case OutcomeNoMatch:
		return "no_match"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeExhausted:
		return "exhausted"
	case OutcomeAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Terminal reports whether the outcome ends the run.
func (o Outcome) Terminal() bool {
	return o != OutcomePending
}

// EngineState is a node of the poll engine's state machine.
type EngineState int

const (
	StateSearching EngineState = iota
	StateDeciding
	StateCommitting
	StateRefreshing
	StateDone
	StateCancelled
	StateExhausted
	StateNoMatch
	StateAborted
)

func (s EngineState) String() string {
	switch s {
	case StateSearching:
		return "searching"
	case StateDeciding:
		return "deciding"
	case StateCommitting:
		return "committing"
	case StateRefreshing:
		return "refreshing"
	case StateDone:
		return "done"
	case StateCancelled:
		return "cancelled"
	case StateExhausted:
		return "exhausted"
	case StateNoMatch:
		return "no_match"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// PollState is the run state owned by the poll engine.
type PollState struct {
	AttemptCount int
	LastSelected *Record
	Outcome      Outcome
}

// -- Collaborator Interface --

// ClickMode selects how a click is dispatched.
type ClickMode int

const (
	// ClickNative dispatches real input events at the element.
	ClickNative ClickMode = iota
	// ClickScripted invokes the element's click handler from script. It is the
	// alternate route used when a native click does not register.
	ClickScripted
)

func (m ClickMode) String() string {
	if m == ClickScripted {
		return "scripted"
	}
	return "native"
}

// Collaborator is the capability set the poll engine needs from the host
// session. The engine never opens, closes or re-establishes the session.
type Collaborator interface {
	// FetchCurrentTable blocks until the results table and at least one visible
	// row are present, then returns the table region.
	FetchCurrentTable(ctx context.Context) (Element, error)
	// RefreshSearch triggers the host's "search again" affordance.
	RefreshSearch(ctx context.Context) error
	// Click dispatches a click at the element.
	Click(ctx context.Context, el Element, mode ClickMode) error
	// WaitInteractable blocks until the element can receive input.
	WaitInteractable(ctx context.Context, el Element) error
	// ConfirmCommit performs the downstream confirmation after a commit click.
	ConfirmCommit(ctx context.Context) error
}
