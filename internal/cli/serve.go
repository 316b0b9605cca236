package cli

import (
	"github.com/spf13/cobra"

	"github.com/semmidev/dbbackup/internal/app"
)

func newServeCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and run schedules in process",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withApp(func(a *app.App) error {
				return a.Serve(cmd.Context())
			})
		},
	}
}

func newCleanupCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Delete backups older than backup.retention_days",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withApp(func(a *app.App) error {
				report, err := a.Cleanup.Run(cmd.Context())
				if err != nil {
					return err
				}
				success.Fprintf(cmd.OutOrStdout(), "✓ Cleanup finished: %d deleted, %d failed\n", report.Deleted, report.Failed)
				return nil
			})
		},
	}
}
