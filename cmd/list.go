package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newListCmd(a *app) *cobra.Command {
	var out outputFlags

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "Print the sections currently shown in the browser's results table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ls, err := a.bootstrap(cmd)
			if err != nil {
				return err
			}
			defer ls.close(ctx, a.logger)

			start := time.Now()
			table, err := ls.session.FetchCurrentTable(ctx)
			if err != nil {
				return fmt.Errorf("failed to read results table: %w", err)
			}
			records := a.newExtractor(nil).Extract(ctx, table)
			a.logger.Info("Snapshot taken.", zap.Int("records", len(records)), zap.Duration("took", time.Since(start)))

			return out.writeRecords(cmd, records)
		},
	}
	out.register(listCmd)
	return listCmd
}
