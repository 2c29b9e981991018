package schemas

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

type stubElement struct{}

func (stubElement) Find(context.Context, string) ([]Element, error) { return nil, nil }
func (stubElement) Text(context.Context) (string, error) { return "", nil }
func (stubElement) Attr(context.Context, string) (string, bool, error) { return "", false, nil }
func (stubElement) Visible(context.Context) (bool, error) { return true, nil }
func (stubElement) String() string { return "stub" }

func TestRecordSummary(t *testing.T) {
	r := Record{Title: "Calculus I", Instructor: "Smith"}
	assert.Equal(t, "Calculus I - Smith", r.Summary())

	r.Status = "FULL"
	assert.Equal(t, "Calculus I - Smith [FULL]", r.Summary())
}

func TestRecordActionable(t *testing.T) {
	assert.False(t, Record{Title: "a", Instructor: "b"}.Actionable())
	assert.True(t, Record{Title: "a", Instructor: "b", CommitHandle: stubElement{}}.Actionable())
}

func TestEnumStrings(t *testing.T) {
	assert.Equal(t, "meeting_times", RoleMeetingTimes.String())
	assert.Equal(t, "unknown", CellRole(99).String())
	assert.Equal(t, "committed", OutcomeCommitted.String())
	assert.Equal(t, "aborted", OutcomeAborted.String())
	assert.Equal(t, "refreshing", StateRefreshing.String())
	assert.Equal(t, "scripted", ClickScripted.String())
	assert.Equal(t, "native", ClickNative.String())
}

func TestOutcomeTerminal(t *testing.T) {
	assert.False(t, OutcomePending.Terminal())
	for _, o := range []Outcome{OutcomeCommitted, OutcomeNoMatch, OutcomeCancelled, OutcomeExhausted, OutcomeAborted} {
		assert.True(t, o.Terminal(), o.String())
	}
}
