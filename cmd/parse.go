package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/seatwatch/api/schemas"
	"github.com/xkilldash9x/seatwatch/internal/selection"
	"github.com/xkilldash9x/seatwatch/internal/snapshot"
)

func newParseCmd(a *app) *cobra.Command {
	var (
		out        outputFlags
		preference string
	)

	parseCmd := &cobra.Command{
		Use:   "parse <file.html>",
		Short: "Extract sections from a saved results page and show what would be selected",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := a.parseFile(cmd, args[0])
			if err != nil {
				return err
			}
			if err := out.writeRecords(cmd, records); err != nil {
				return err
			}
			if cmd.Flags().Changed("preference") {
				return reportSelection(cmd, records, preference)
			}
			return nil
		},
	}
	out.register(parseCmd)
	parseCmd.Flags().StringVarP(&preference, "preference", "p", "", "index, keyword, or blank for the first open section")
	return parseCmd
}

// parseFile extracts records from the results table of a saved page. When the
// page has no element matching the table selector the whole document is used.
func (a *app) parseFile(cmd *cobra.Command, path string) ([]schemas.Record, error) {
	ctx := cmd.Context()

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	doc, err := snapshot.ParseHTML(f)
	if err != nil {
		return nil, err
	}

	region := doc
	tables, err := doc.Find(ctx, a.cfg.Page().TableSelector)
	if err != nil {
		return nil, err
	}
	if len(tables) > 0 {
		region = tables[0]
	} else {
		a.logger.Warn("Table selector matched nothing; extracting from the whole document.",
			zap.String("selector", a.cfg.Page().TableSelector))
	}

	records := a.newExtractor(nil).Extract(ctx, region)
	a.logger.Info("Parsed saved page.", zap.String("file", path), zap.Int("records", len(records)))
	return records, nil
}

// reportSelection explains which record the engine would act on. It goes to
// stderr so stdout stays machine readable.
func reportSelection(cmd *cobra.Command, records []schemas.Record, preference string) error {
	w := cmd.ErrOrStderr()
	rec, ok := selection.Select(records, preference)
	if !ok {
		_, err := fmt.Fprintln(w, "No classes found.")
		return err
	}

	action := "open, would commit"
	switch {
	case selection.IsFull(rec.Status):
		action = "full, would keep polling"
	case !rec.Actionable():
		action = "open, but no add button"
	}
	_, err := fmt.Fprintf(w, "Selected [%d] %s: %s\n", selection.Index(records, preference), rec.Summary(), action)
	return err
}
