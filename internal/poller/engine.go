// File: internal/poller/engine.go
// Description: The retry/poll state machine. It repeatedly snapshots the
// results table through an injected collaborator, picks a section, and commits
// to it exactly once when a seat is open.

package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/seatwatch/api/schemas"
	"github.com/xkilldash9x/seatwatch/internal/config"
	"github.com/xkilldash9x/seatwatch/internal/selection"
	"github.com/xkilldash9x/seatwatch/internal/snapshot"
)

// Commit attempt results reported to the Observer.
const (
	CommitNoHandle      = "no_handle"
	CommitNative        = "native"
	CommitScripted      = "scripted"
	CommitClickFailed   = "click_failed"
	CommitConfirmFailed = "confirm_failed"
)

// Extractor turns a table region into records.
type Extractor interface {
	Extract(ctx context.Context, region schemas.Element) []schemas.Record
}

// Observer receives engine events. *observability.Metrics implements it.
type Observer interface {
	CycleStarted()
	Transition(to schemas.EngineState)
	Finished(outcome schemas.Outcome)
	CommitAttempt(result string)
	Snapshot(records int, took time.Duration)
}

type nopObserver struct{}

func (nopObserver) CycleStarted()                  {}
func (nopObserver) Transition(schemas.EngineState) {}
func (nopObserver) Finished(schemas.Outcome)       {}
func (nopObserver) CommitAttempt(string)           {}
func (nopObserver) Snapshot(int, time.Duration)    {}

// SleepFunc pauses for d, returning early with ctx's error on cancellation.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Engine drives one poll run. It is not safe for concurrent Runs.
type Engine struct {
	ops        schemas.Collaborator
	extractor  Extractor
	cfg        config.PollConfig
	logger     *zap.Logger
	observer   Observer
	sleep      SleepFunc
	onSnapshot func(attempt int, records []schemas.Record)

	mu      sync.Mutex
	state   schemas.PollState
	current schemas.EngineState
}

// Option configures an Engine.
type Option func(*Engine)

// WithConfig sets the delays, timeouts and attempt cap.
func WithConfig(cfg config.PollConfig) Option {
	return func(e *Engine) { e.cfg = cfg }
}

// WithExtractor replaces the default snapshot extractor.
func WithExtractor(x Extractor) Option {
	return func(e *Engine) {
		if x != nil {
			e.extractor = x
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l.Named("poller")
		}
	}
}

func WithObserver(o Observer) Option {
	return func(e *Engine) {
		if o != nil {
			e.observer = o
		}
	}
}

// WithSleep replaces the delay primitive, mainly for tests.
func WithSleep(s SleepFunc) Option {
	return func(e *Engine) {
		if s != nil {
			e.sleep = s
		}
	}
}

// WithOnSnapshot registers a callback invoked with every non-empty snapshot.
// It runs on the engine's goroutine and must not retain the records' handles
// past the current cycle.
func WithOnSnapshot(fn func(attempt int, records []schemas.Record)) Option {
	return func(e *Engine) { e.onSnapshot = fn }
}

// NewEngine builds an engine over the given collaborator.
func NewEngine(ops schemas.Collaborator, opts ...Option) *Engine {
	e := &Engine{
		ops:      ops,
		cfg:      config.NewDefaultConfig().Poll(),
		logger:   zap.NewNop(),
		observer: nopObserver{},
		sleep:    sleepContext,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.extractor == nil {
		e.extractor = snapshot.NewDefault(snapshot.WithLogger(e.logger))
	}
	return e
}

// RunPollLoop is a convenience wrapper that builds an Engine and runs it once.
func RunPollLoop(ctx context.Context, preference string, ops schemas.Collaborator, opts ...Option) (schemas.Outcome, error) {
	return NewEngine(ops, opts...).Run(ctx, preference)
}

// State returns a copy of the current run state.
func (e *Engine) State() schemas.PollState {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.state
	if s.LastSelected != nil {
		rec := *s.LastSelected
		s.LastSelected = &rec
	}
	return s
}

// Current returns the state machine node the engine is in.
func (e *Engine) Current() schemas.EngineState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}

// Run executes the state machine until a terminal outcome. The preference is
// fixed for the whole run. Cancellation of ctx is observed once per cycle and
// during delays; collaborator calls already in flight finish under their own
// timeouts. A non-nil error is returned only with OutcomeAborted.
func (e *Engine) Run(ctx context.Context, preference string) (schemas.Outcome, error) {
	e.mu.Lock()
	e.state = schemas.PollState{}
	e.current = schemas.StateSearching
	e.mu.Unlock()

	e.logger.Info("Poll loop starting.",
		zap.String("preference", preference),
		zap.Int("max_attempts", e.cfg.MaxAttempts),
		zap.Duration("retry_delay", e.cfg.RetryDelay))

	var (
		records []schemas.Record
		chosen  schemas.Record
		fatal   error
	)

	for {
		switch e.Current() {
		case schemas.StateSearching:
			if ctx.Err() != nil {
				e.transition(schemas.StateCancelled)
				continue
			}
			if e.cfg.MaxAttempts > 0 && e.State().AttemptCount >= e.cfg.MaxAttempts {
				e.transition(schemas.StateExhausted)
				continue
			}
			var err error
			records, err = e.search(ctx)
			switch {
			case isSessionLost(err):
				fatal = err
				e.transition(schemas.StateAborted)
			case err != nil || len(records) == 0:
				e.logger.Info("No sections available yet, retrying.", zap.Error(err))
				_ = e.sleep(ctx, e.cfg.EmptyDelay)
				e.transition(schemas.StateRefreshing)
			default:
				e.transition(schemas.StateDeciding)
			}

		case schemas.StateDeciding:
			rec, ok := selection.Select(records, preference)
			if !ok {
				e.logger.Warn("No section matches the preference.", zap.String("preference", preference))
				e.transition(schemas.StateNoMatch)
				continue
			}
			chosen = rec
			e.mu.Lock()
			e.state.LastSelected = &rec
			e.mu.Unlock()

			if selection.IsFull(rec.Status) {
				e.logger.Info("Selected section is full.",
					zap.String("section", rec.Summary()),
					zap.Int("attempt", e.State().AttemptCount))
				e.transition(schemas.StateRefreshing)
				continue
			}
			e.logger.Info("Seat open, committing.", zap.String("section", rec.Summary()))
			e.transition(schemas.StateCommitting)

		case schemas.StateCommitting:
			err := e.commit(ctx, chosen)
			switch {
			case err == nil:
				e.transition(schemas.StateDone)
			case isSessionLost(err):
				fatal = err
				e.transition(schemas.StateAborted)
			default:
				e.logger.Warn("Commit did not complete, will retry.", zap.Error(err))
				e.transition(schemas.StateRefreshing)
			}

		case schemas.StateRefreshing:
			if err := e.refresh(ctx); err != nil {
				if isSessionLost(err) {
					fatal = err
					e.transition(schemas.StateAborted)
					continue
				}
				e.logger.Warn("Search refresh failed.", zap.Error(err))
			}
			_ = e.sleep(ctx, e.cfg.RetryDelay)
			e.transition(schemas.StateSearching)

		default:
			return e.finish(fatal)
		}
	}
}

// -- State handlers --

func (e *Engine) search(ctx context.Context) ([]schemas.Record, error) {
	e.mu.Lock()
	e.state.AttemptCount++
	attempt := e.state.AttemptCount
	e.mu.Unlock()
	e.observer.CycleStarted()
	e.logger.Debug("Searching.", zap.Int("attempt", attempt))

	start := time.Now()
	fetchCtx, cancelFetch := e.opContext(ctx, e.cfg.FetchTimeout)
	table, err := e.ops.FetchCurrentTable(fetchCtx)
	cancelFetch()
	if err != nil {
		return nil, err
	}

	// Extraction gets its own budget. A snapshot cut short by it may be
	// missing rows or carry blank statuses, so it is discarded.
	extractCtx, cancelExtract := e.opContext(ctx, e.cfg.ExtractTimeout)
	defer cancelExtract()
	records := e.extractor.Extract(extractCtx, table)
	if err := extractCtx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", errSnapshotIncomplete, err)
	}
	e.observer.Snapshot(len(records), time.Since(start))

	if len(records) > 0 && e.onSnapshot != nil {
		e.onSnapshot(attempt, records)
	}
	return records, nil
}

// commit clicks the record's handle, falling back to the scripted route once,
// then confirms. Any failure is returned to the caller as retryable unless it
// reports a lost session.
func (e *Engine) commit(ctx context.Context, rec schemas.Record) error {
	if rec.CommitHandle == nil {
		e.observer.CommitAttempt(CommitNoHandle)
		return errNoHandle
	}

	opCtx, cancel := e.opContext(ctx, e.cfg.InteractTimeout)
	defer cancel()

	result := CommitNative
	err := e.ops.WaitInteractable(opCtx, rec.CommitHandle)
	if err == nil {
		err = e.ops.Click(opCtx, rec.CommitHandle, schemas.ClickNative)
	}
	if err != nil {
		if isSessionLost(err) {
			return err
		}
		e.logger.Debug("Native click failed, trying scripted click.", zap.Error(err))
		result = CommitScripted
		if err = e.ops.Click(opCtx, rec.CommitHandle, schemas.ClickScripted); err != nil {
			e.observer.CommitAttempt(CommitClickFailed)
			return err
		}
	}

	if err := e.ops.ConfirmCommit(opCtx); err != nil {
		e.observer.CommitAttempt(CommitConfirmFailed)
		return err
	}
	e.observer.CommitAttempt(result)
	return nil
}

func (e *Engine) refresh(ctx context.Context) error {
	opCtx, cancel := e.opContext(ctx, e.cfg.InteractTimeout)
	defer cancel()
	return e.ops.RefreshSearch(opCtx)
}

func (e *Engine) finish(fatal error) (schemas.Outcome, error) {
	var outcome schemas.Outcome
	switch e.Current() {
	case schemas.StateDone:
		outcome = schemas.OutcomeCommitted
	case schemas.StateNoMatch:
		outcome = schemas.OutcomeNoMatch
	case schemas.StateExhausted:
		outcome = schemas.OutcomeExhausted
	case schemas.StateAborted:
		outcome = schemas.OutcomeAborted
	default:
		outcome = schemas.OutcomeCancelled
	}

	e.mu.Lock()
	e.state.Outcome = outcome
	attempts := e.state.AttemptCount
	e.mu.Unlock()

	e.observer.Finished(outcome)
	e.logger.Info("Poll loop finished.", zap.Stringer("outcome", outcome), zap.Int("attempts", attempts))
	if outcome == schemas.OutcomeAborted {
		return outcome, fatal
	}
	return outcome, nil
}

// -- Helpers --

var (
	errNoHandle           = errors.New("commit control not rendered")
	errSnapshotIncomplete = errors.New("table read did not finish in time")
)

func (e *Engine) transition(to schemas.EngineState) {
	e.mu.Lock()
	from := e.current
	e.current = to
	e.mu.Unlock()
	e.observer.Transition(to)
	e.logger.Debug("State transition.", zap.Stringer("from", from), zap.Stringer("to", to))
}

// opContext derives the context for one collaborator call. It keeps ctx's
// values but not its cancellation, so a cancel request never interrupts a
// click half way.
func (e *Engine) opContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	detached := context.WithoutCancel(ctx)
	if timeout <= 0 {
		return context.WithCancel(detached)
	}
	return context.WithTimeout(detached, timeout)
}

func isSessionLost(err error) bool {
	return errors.Is(err, schemas.ErrSessionInvalid)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
