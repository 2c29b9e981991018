package schemas

import (
	"context"
	"errors"
	"strings"
)

// -- Sentinel Errors --

var (
	// ErrStaleElement marks a read against a node that was detached or
	// re-rendered after it was obtained. It is always recoverable.
	ErrStaleElement = errors.New("element is stale")
	// ErrTableUnavailable is returned when the results table never became
	// observable within the fetch window.
	ErrTableUnavailable = errors.New("results table unavailable")
	// ErrSessionInvalid means the underlying browser session is gone. Nothing
	// retried against it can succeed.
	ErrSessionInvalid = errors.New("browser session invalid")
)

// -- Live Region Schemas --

// Element is an opaque handle to one node of a live, hierarchical region. The
// underlying node may be invalidated between calls; implementations report that
// with an error wrapping ErrStaleElement.
type Element interface {
	// Find returns the descendants matching a CSS selector, in document order.
	Find(ctx context.Context, selector string) ([]Element, error)
	// Text returns the rendered text of the node.
	Text(ctx context.Context) (string, error)
	// Attr returns the value of an attribute and whether it is present.
	Attr(ctx context.Context, name string) (string, bool, error)
	// Visible reports whether the node is not suppressed from presentation.
	Visible(ctx context.Context) (bool, error)
	// String describes the node for logs.
	String() string
}

// CellRole is the semantic content role of one table cell. Cells are classified
// by role, never by column position.
type CellRole int

const (
	RoleUnknown CellRole = iota
	RoleTitle
	RoleInstructor
	RoleMeetingTimes
	RoleStatus
	RoleAttributes
	RoleAction
)

var cellRoleNames = map[CellRole]string{
	RoleUnknown:      "unknown",
	RoleTitle:        "title",
	RoleInstructor:   "instructor",
	RoleMeetingTimes: "meeting_times",
	RoleStatus:       "status",
	RoleAttributes:   "attributes",
	RoleAction:       "action",
}

func (r CellRole) String() string {
	if name, ok := cellRoleNames[r]; ok {
		return name
	}
	return "unknown"
}

// -- Record Schema --

// Record is one parsed row of the results table. Records are built fresh for
// every snapshot and never mutated afterwards; none of them outlives the poll
// cycle that produced it.
type Record struct {
	Title        string   `json:"title"`
	Instructor   string   `json:"instructor"`
	MeetingTimes []string `json:"meetingTimes"`
	Status       string   `json:"status,omitempty"`
	Fund         string   `json:"fund,omitempty"`
	// CommitHandle is the control that commits this row. Nil when the row
	// carries no actionable control; such a record can be selected but never
	// committed.
	CommitHandle Element `json:"-"`
}

// Actionable reports whether the record carries a commit handle.
func (r Record) Actionable() bool {
	return r.CommitHandle != nil
}

// Summary renders the one-line form used in logs and listings.
func (r Record) Summary() string {
	var b strings.Builder
	b.WriteString(r.Title)
	b.WriteString(" - ")
	b.WriteString(r.Instructor)
	if r.Status != "" {
		b.WriteString(" [")
		b.WriteString(r.Status)
		b.WriteString("]")
	}
	return b.String()
}
