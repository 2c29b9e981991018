package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/seatwatch/api/schemas"
	"github.com/xkilldash9x/seatwatch/internal/browser"
	"github.com/xkilldash9x/seatwatch/internal/config"
	"github.com/xkilldash9x/seatwatch/internal/console"
	"github.com/xkilldash9x/seatwatch/internal/reporting"
	"github.com/xkilldash9x/seatwatch/internal/snapshot"
)

const readyPrompt = "Sign in and run the class search in the browser window, then press Enter to continue..."

// liveSession is a browser brought up to the point where the user has run the
// first search by hand.
type liveSession struct {
	manager *browser.Manager
	session *browser.Session
}

// bootstrap launches or attaches to the browser and waits for the user to
// finish the manual steps. The caller must call close.
func (a *app) bootstrap(cmd *cobra.Command) (*liveSession, error) {
	ctx := cmd.Context()
	if err := applyBrowserFlags(cmd, a.cfg); err != nil {
		return nil, err
	}

	mgr, err := browser.NewManager(ctx, a.cfg.Browser(), a.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to start browser session: %w", err)
	}
	ls := &liveSession{manager: mgr, session: mgr.Session(a.cfg.Page())}

	if _, err := console.Prompt(ctx, cmd.InOrStdin(), cmd.ErrOrStderr(), readyPrompt+"\n"); err != nil && !errors.Is(err, io.EOF) {
		ls.close(ctx, a.logger)
		return nil, err
	}
	return ls, nil
}

// applyBrowserFlags copies the persistent browser flags the user set over the
// loaded configuration.
func applyBrowserFlags(cmd *cobra.Command, cfg config.Interface) error {
	flags := cmd.Flags()
	if flags.Changed("headless") {
		headless, err := flags.GetBool("headless")
		if err != nil {
			return err
		}
		cfg.SetBrowserHeadless(headless)
	}
	if flags.Changed("remote-url") {
		url, err := flags.GetString("remote-url")
		if err != nil {
			return err
		}
		cfg.SetBrowserRemoteURL(url)
	}
	return nil
}

func (ls *liveSession) close(ctx context.Context, logger *zap.Logger) {
	if err := ls.manager.Shutdown(context.WithoutCancel(ctx)); err != nil {
		logger.Warn("Browser did not shut down cleanly.", zap.Error(err))
	}
}

func (a *app) newExtractor(observer snapshot.Observer) *snapshot.Extractor {
	opts := []snapshot.Option{snapshot.WithLogger(a.logger)}
	if observer != nil {
		opts = append(opts, snapshot.WithObserver(observer))
	}
	return snapshot.New(a.cfg.Extractor(), opts...)
}

// -- Output --

type outputFlags struct {
	format string
	json   bool
	path   string
}

func (o *outputFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&o.format, "format", "f", reporting.FormatSummary, "output format: summary, details or json")
	cmd.Flags().BoolVar(&o.json, "json", false, "shorthand for --format json")
	cmd.Flags().StringVarP(&o.path, "output", "o", "", "write records to this file instead of stdout")
}

func (o *outputFlags) resolvedFormat() string {
	if o.json {
		return reporting.FormatJSON
	}
	return o.format
}

// writeRecords prints records to the command's stdout, or to the output file
// when one was given.
func (o *outputFlags) writeRecords(cmd *cobra.Command, records []schemas.Record) error {
	format := o.resolvedFormat()
	if o.path != "" {
		r, err := reporting.New(format, o.path, false)
		if err != nil {
			return err
		}
		if err := r.Write(records); err != nil {
			_ = r.Close()
			return fmt.Errorf("failed to write records: %w", err)
		}
		return r.Close()
	}

	out := cmd.OutOrStdout()
	switch format {
	case reporting.FormatSummary:
		return reporting.PrintSummary(out, records, colorEnabled(out))
	case reporting.FormatDetails:
		return reporting.PrintDetails(out, records)
	case reporting.FormatJSON:
		return reporting.WriteJSON(out, records)
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}

// colorEnabled reports whether w is a terminal that should get colors.
func colorEnabled(w io.Writer) bool {
	if _, set := os.LookupEnv("NO_COLOR"); set {
		return false
	}
	return console.IsTerminal(w)
}
