// internal/snapshot/extractor.go
// Package snapshot turns one live results-table region into an ordered slice
// of records. The region may be re-rendered by the page while it is being read,
// so every read is treated as fallible: stale reads are retried a few times
// locally, optional fields then degrade to empty values, and rows that lose a
// required field are dropped. Extraction itself never fails.
//
// Extraction runs in two phases. The first classifies a row's cells by their
// semantic label into a role-keyed set, and the second reads each field from
// that set into an immutable row snapshot. Column order is never consulted.
package snapshot

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/seatwatch/api/schemas"
	"github.com/xkilldash9x/seatwatch/internal/config"
)

// Reasons reported to the Observer when a row is dropped.
const (
	DropUnreadable = "unreadable"
	DropHidden     = "hidden"
	DropIncomplete = "incomplete"
	DropEmptyKey   = "empty_key"
)

// Observer receives extraction events. *observability.Metrics implements it.
type Observer interface {
	FieldDegraded(field string)
	RowDropped(reason string)
}

type nopObserver struct{}

func (nopObserver) FieldDegraded(string) {}
func (nopObserver) RowDropped(string)    {}

// Extractor converts a table region into records.
type Extractor struct {
	cfg      config.ExtractorConfig
	roles    map[string]schemas.CellRole
	logger   *zap.Logger
	observer Observer
	sleep    sleepFunc
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithLogger sets the logger used for degradation diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(x *Extractor) {
		if l != nil {
			x.logger = l.Named("extractor")
		}
	}
}

// WithObserver attaches an Observer, typically the metrics collector.
func WithObserver(o Observer) Option {
	return func(x *Extractor) {
		if o != nil {
			x.observer = o
		}
	}
}

// withSleep replaces the retry pause; tests use it to avoid real delays.
func withSleep(s sleepFunc) Option {
	return func(x *Extractor) { x.sleep = s }
}

// New builds an Extractor for the given label and selector configuration.
func New(cfg config.ExtractorConfig, opts ...Option) *Extractor {
	x := &Extractor{
		cfg:      cfg,
		roles:    roleTable(cfg.Labels),
		logger:   zap.NewNop(),
		observer: nopObserver{},
		sleep:    sleepContext,
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// NewDefault builds an Extractor with the default configuration.
func NewDefault(opts ...Option) *Extractor {
	return New(config.NewDefaultConfig().Extractor(), opts...)
}

func roleTable(l config.LabelConfig) map[string]schemas.CellRole {
	roles := make(map[string]schemas.CellRole, 5)
	add := func(label string, role schemas.CellRole) {
		if label = strings.TrimSpace(label); label != "" {
			roles[label] = role
		}
	}
	add(l.Title, schemas.RoleTitle)
	add(l.Instructor, schemas.RoleInstructor)
	add(l.MeetingTimes, schemas.RoleMeetingTimes)
	add(l.Status, schemas.RoleStatus)
	add(l.Attributes, schemas.RoleAttributes)
	return roles
}

// Extract reads every visible, complete row of region, in document order. It
// has no side effects on the region and may be called any number of times.
// Cancelling ctx stops extraction early and returns what was collected, so a
// caller that needs the whole table checks ctx.Err() afterwards.
func (x *Extractor) Extract(ctx context.Context, region schemas.Element) []schemas.Record {
	if region == nil {
		return nil
	}

	rows, err := retryStale(ctx, x.cfg.MaxAttempts, x.cfg.RetryDelay, x.sleep, func() ([]schemas.Element, error) {
		return region.Find(ctx, x.cfg.RowSelector)
	})
	if err != nil {
		x.logger.Debug("Could not enumerate table rows.", zap.String("region", region.String()), zap.Error(err))
		return nil
	}

	records := make([]schemas.Record, 0, len(rows))
	for i, row := range rows {
		if ctx.Err() != nil {
			break
		}
		cells, reason := x.classify(ctx, row)
		if reason != "" {
			x.drop(i, reason)
			continue
		}
		snap, reason := x.read(ctx, cells)
		if reason != "" {
			x.drop(i, reason)
			continue
		}
		records = append(records, snap.record())
	}
	return records
}

func (x *Extractor) drop(index int, reason string) {
	x.observer.RowDropped(reason)
	x.logger.Debug("Row skipped.", zap.Int("row", index), zap.String("reason", reason))
}

func (x *Extractor) degrade(field string, err error) {
	x.observer.FieldDegraded(field)
	x.logger.Debug("Field degraded.", zap.String("field", field), zap.Error(err))
}

// -- Phase one: role classification --

// rowCells is a row's cells keyed by semantic role. The first cell carrying a
// role wins.
type rowCells map[schemas.CellRole]schemas.Element

func (x *Extractor) classify(ctx context.Context, row schemas.Element) (rowCells, string) {
	visible, err := retryStale(ctx, x.cfg.MaxAttempts, x.cfg.RetryDelay, x.sleep, func() (bool, error) {
		return row.Visible(ctx)
	})
	if err != nil {
		return nil, DropUnreadable
	}
	if !visible {
		return nil, DropHidden
	}

	cells, err := retryStale(ctx, x.cfg.MaxAttempts, x.cfg.RetryDelay, x.sleep, func() ([]schemas.Element, error) {
		return row.Find(ctx, x.cfg.CellSelector)
	})
	if err != nil {
		return nil, DropUnreadable
	}

	out := make(rowCells, len(cells))
	for _, cell := range cells {
		role, err := x.roleOf(ctx, cell)
		if err != nil {
			x.logger.Debug("Cell label unreadable.", zap.String("cell", cell.String()), zap.Error(err))
			continue
		}
		if role == schemas.RoleUnknown {
			continue
		}
		if _, seen := out[role]; !seen {
			out[role] = cell
		}
	}

	if out[schemas.RoleTitle] == nil || out[schemas.RoleInstructor] == nil {
		return nil, DropIncomplete
	}
	return out, ""
}

func (x *Extractor) roleOf(ctx context.Context, cell schemas.Element) (schemas.CellRole, error) {
	return retryStale(ctx, x.cfg.MaxAttempts, x.cfg.RetryDelay, x.sleep, func() (schemas.CellRole, error) {
		if x.cfg.LabelAttribute != "" {
			label, ok, err := cell.Attr(ctx, x.cfg.LabelAttribute)
			if err != nil {
				return schemas.RoleUnknown, err
			}
			if ok {
				if role, found := x.roles[strings.TrimSpace(label)]; found {
					return role, nil
				}
			}
		}
		if x.cfg.ActionAttribute != "" {
			v, ok, err := cell.Attr(ctx, x.cfg.ActionAttribute)
			if err != nil {
				return schemas.RoleUnknown, err
			}
			if ok && strings.TrimSpace(v) == x.cfg.ActionValue {
				return schemas.RoleAction, nil
			}
		}
		return schemas.RoleUnknown, nil
	})
}

// -- Phase two: field reads --

// rowSnapshot holds the values read from one row. It is never modified after
// read returns.
type rowSnapshot struct {
	title        string
	instructor   string
	meetingTimes []string
	status       string
	fund         string
	handle       schemas.Element
}

func (s rowSnapshot) record() schemas.Record {
	return schemas.Record{
		Title:        s.title,
		Instructor:   s.instructor,
		MeetingTimes: s.meetingTimes,
		Status:       s.status,
		Fund:         s.fund,
		CommitHandle: s.handle,
	}
}

func (x *Extractor) read(ctx context.Context, cells rowCells) (rowSnapshot, string) {
	var snap rowSnapshot

	title, err := x.text(ctx, cells[schemas.RoleTitle])
	if err != nil {
		return snap, DropUnreadable
	}
	instructor, err := x.text(ctx, cells[schemas.RoleInstructor])
	if err != nil {
		return snap, DropUnreadable
	}
	if title == "" || instructor == "" {
		return snap, DropEmptyKey
	}
	snap.title = title
	snap.instructor = instructor
	snap.meetingTimes = []string{}

	if cell := cells[schemas.RoleMeetingTimes]; cell != nil {
		snap.meetingTimes = x.meetingTimes(ctx, cell)
	}
	if cell := cells[schemas.RoleStatus]; cell != nil {
		snap.status = x.preferredText(ctx, cell, x.cfg.StatusSelector, "status")
	}
	if cell := cells[schemas.RoleAttributes]; cell != nil {
		snap.fund = x.preferredText(ctx, cell, x.cfg.FundSelector, "fund")
	}
	if cell := cells[schemas.RoleAction]; cell != nil {
		snap.handle = x.commitHandle(ctx, cell)
	}
	return snap, ""
}

// text reads and trims an element's text with local stale retries.
func (x *Extractor) text(ctx context.Context, el schemas.Element) (string, error) {
	s, err := retryStale(ctx, x.cfg.MaxAttempts, x.cfg.RetryDelay, x.sleep, func() (string, error) {
		return el.Text(ctx)
	})
	return strings.TrimSpace(s), err
}

// preferredText returns the text of the first descendant matching selector,
// or the whole cell's text when there is none. Unreadable cells yield "".
func (x *Extractor) preferredText(ctx context.Context, cell schemas.Element, selector, field string) string {
	if selector != "" {
		found, err := retryStale(ctx, x.cfg.MaxAttempts, x.cfg.RetryDelay, x.sleep, func() ([]schemas.Element, error) {
			return cell.Find(ctx, selector)
		})
		if err != nil {
			x.degrade(field, err)
			return ""
		}
		if len(found) > 0 {
			s, err := x.text(ctx, found[0])
			if err != nil {
				x.degrade(field, err)
				return ""
			}
			return s
		}
	}
	s, err := x.text(ctx, cell)
	if err != nil {
		x.degrade(field, err)
		return ""
	}
	return s
}

func (x *Extractor) commitHandle(ctx context.Context, cell schemas.Element) schemas.Element {
	buttons, err := retryStale(ctx, x.cfg.MaxAttempts, x.cfg.RetryDelay, x.sleep, func() ([]schemas.Element, error) {
		return cell.Find(ctx, x.cfg.ButtonSelector)
	})
	if err != nil {
		x.degrade("commit_handle", err)
		return nil
	}
	if len(buttons) == 0 {
		return nil
	}
	return buttons[0]
}
