package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/seatwatch/api/schemas"
	"github.com/xkilldash9x/seatwatch/internal/config"
	"github.com/xkilldash9x/seatwatch/internal/console"
	"github.com/xkilldash9x/seatwatch/internal/observability"
	"github.com/xkilldash9x/seatwatch/internal/poller"
	"github.com/xkilldash9x/seatwatch/internal/reporting"
	"github.com/xkilldash9x/seatwatch/internal/selection"
)

const preferencePrompt = "Preferred class (index like 2, keyword like Smith/LEC, or blank for the first OPEN): "

// errWatchFailed is returned when a watch ends without committing and without
// being cancelled, so the process exits non-zero.
var errWatchFailed = errors.New("watch ended without registering")

func newWatchCmd(a *app) *cobra.Command {
	watchCmd := &cobra.Command{
		Use:   "watch [preference]",
		Short: "Poll the results table until the chosen section opens, then register once",
		Long: `Watch drives the browser session left on the class search results page.
It re-runs the search until the preferred section shows an open seat, then
clicks its add button and submits the registration exactly once.

The preference is a 1-based index into the first listing, a keyword matched
against title, instructor and fund, or empty for the first open section.
Press ESC to stop.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := applyWatchFlags(cmd, a.cfg); err != nil {
				return err
			}
			var preference string
			if len(args) == 1 {
				preference = args[0]
			}
			return a.runWatch(cmd, preference, len(args) == 0)
		},
	}

	flags := watchCmd.Flags()
	flags.Int("max-attempts", 0, "give up after this many search cycles (0 means never)")
	flags.Duration("retry-delay", 0, "delay between refreshes (default from config)")
	flags.String("metrics-addr", "", "serve prometheus metrics on this address, e.g. :9090")

	return watchCmd
}

// applyWatchFlags copies the watch flags the user set over the loaded
// configuration. Unset flags leave config file and environment values alone.
func applyWatchFlags(cmd *cobra.Command, cfg config.Interface) error {
	flags := cmd.Flags()
	if flags.Changed("max-attempts") {
		n, err := flags.GetInt("max-attempts")
		if err != nil {
			return err
		}
		if n < 0 {
			return errors.New("--max-attempts must not be negative")
		}
		cfg.SetPollMaxAttempts(n)
	}
	if flags.Changed("retry-delay") {
		d, err := flags.GetDuration("retry-delay")
		if err != nil {
			return err
		}
		if d < 0 {
			return errors.New("--retry-delay must not be negative")
		}
		cfg.SetPollRetryDelay(d)
	}
	if flags.Changed("metrics-addr") {
		addr, err := flags.GetString("metrics-addr")
		if err != nil {
			return err
		}
		cfg.SetMetricsAddr(addr)
	}
	return nil
}

func (a *app) runWatch(cmd *cobra.Command, preference string, askPreference bool) error {
	ctx := cmd.Context()
	runID := uuid.NewString()
	logger := a.logger.With(zap.String("run_id", runID))
	in, out := cmd.InOrStdin(), cmd.OutOrStdout()

	metrics := observability.NewMetrics()
	// The metrics address is bound before the browser starts so a bad address
	// fails the command instead of ending the watch later.
	var server *observability.MetricsServer
	if addr := a.cfg.Metrics().Addr; addr != "" {
		server = observability.NewMetricsServer(addr, metrics, logger)
		if err := server.Listen(); err != nil {
			return err
		}
		defer server.Close()
	}

	ls, err := a.bootstrap(cmd)
	if err != nil {
		return err
	}
	defer ls.close(ctx, logger)

	if askPreference && console.IsTerminal(in) {
		preference, err = console.Prompt(ctx, in, out, preferencePrompt)
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}
	}
	logger.Info("Starting watch.", zap.String("preference", preference))

	colorize := colorEnabled(out)

	// ESC handling puts the terminal in raw mode, so it starts only after the
	// first listing has been printed. Until then SIGINT still cancels.
	listed := make(chan struct{})
	var listedOnce sync.Once
	onSnapshot := func(attempt int, records []schemas.Record) {
		listedOnce.Do(func() {
			defer close(listed)
			fmt.Fprintln(out, "Search results:")
			_ = reporting.PrintSummary(out, records, colorize)
			if idx := selection.Index(records, preference); idx > 0 {
				fmt.Fprintf(out, "Watching [%d] %s. Press ESC to cancel.\n", idx, records[idx-1].Summary())
			}
		})
	}

	engine := poller.NewEngine(ls.session,
		poller.WithConfig(a.cfg.Poll()),
		poller.WithExtractor(a.newExtractor(metrics)),
		poller.WithLogger(logger),
		poller.WithObserver(metrics),
		poller.WithOnSnapshot(onSnapshot),
	)

	outcome, runErr := runWithHelpers(ctx, logger, engine, preference, in, listed, server)
	return reportOutcome(out, outcome, runErr, engine.State())
}

// runWithHelpers runs the engine alongside the ESC watcher and the metrics
// server. Only ctx or the ESC key cancel the engine; a failing helper is
// logged and the watch goes on without it.
func runWithHelpers(ctx context.Context, logger *zap.Logger, engine *poller.Engine, preference string, in io.Reader, listed <-chan struct{}, server *observability.MetricsServer) (schemas.Outcome, error) {
	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	var helpers errgroup.Group
	helpers.Go(func() error {
		select {
		case <-listed:
		case <-runCtx.Done():
			return nil
		}
		if err := console.WatchEscape(runCtx, in, stop); err != nil {
			return fmt.Errorf("escape watcher: %w", err)
		}
		return nil
	})
	if server != nil {
		helpers.Go(func() error {
			if err := server.Run(runCtx); err != nil {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}

	outcome, runErr := engine.Run(runCtx, preference)
	stop()
	if err := helpers.Wait(); err != nil {
		logger.Warn("Watch helper failed.", zap.Error(err))
	}
	return outcome, runErr
}

// reportOutcome prints the end of a watch and maps it to the command result.
// Only a commit or a user cancellation counts as success.
func reportOutcome(w io.Writer, outcome schemas.Outcome, runErr error, state schemas.PollState) error {
	switch outcome {
	case schemas.OutcomeCommitted:
		fmt.Fprintln(w, "Registration submitted.")
		return nil
	case schemas.OutcomeCancelled:
		fmt.Fprintln(w, "Cancelled by user.")
		return nil
	case schemas.OutcomeExhausted:
		fmt.Fprintf(w, "Gave up after %d attempts.\n", state.AttemptCount)
		return fmt.Errorf("%w: %s", errWatchFailed, outcome)
	case schemas.OutcomeAborted:
		fmt.Fprintln(w, "Browser session was lost.")
		if runErr != nil {
			return fmt.Errorf("%w: %s: %w", errWatchFailed, outcome, runErr)
		}
		return fmt.Errorf("%w: %s", errWatchFailed, outcome)
	default:
		fmt.Fprintf(w, "Watch ended: %s.\n", outcome)
		return fmt.Errorf("%w: %s", errWatchFailed, outcome)
	}
}
