// Package cli implements the dbbackup command line.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/semmidev/dbbackup/internal/app"
	"github.com/semmidev/dbbackup/internal/config"
)

type options struct {
	configPath string
}

// NewRootCommand builds the command tree. Every subcommand loads the config
// and builds its own App.
func NewRootCommand() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "dbbackup",
		Short: "Back up and restore PostgreSQL environments with pg_dump and psql",
		Long: `dbbackup runs pg_dump and psql against the configured local and
production environments, keeps a record of every backup and runs
scheduled backups in a fixed timezone.

Examples:
  # Back up production now
  dbbackup create --env production --notes "before migration"

  # Restore a dump into local, dropping the public schema first
  dbbackup restore --env local --file /var/backups/local/bk_250601_020000_pg16.2_loc.sql --mode drop

  # Serve the HTTP API with the in-process scheduler
  dbbackup serve --config /etc/dbbackup/config.yaml`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "configs/config.yaml", "path to config file")

	root.AddCommand(
		newCreateCommand(opts),
		newListCommand(opts),
		newDeleteCommand(opts),
		newFilesCommand(opts),
		newRestoreCommand(opts),
		newScheduleCommand(opts),
		newCleanupCommand(opts),
		newServeCommand(opts),
	)
	return root
}

// Execute runs the CLI and exits with status 1 on any failure. SIGINT and
// SIGTERM cancel the command context, so a running pg_dump or psql is stopped
// and its record finalized before the process exits.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := NewRootCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		failure.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func (o *options) withApp(fn func(a *app.App) error) error {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	a, err := app.New(cfg)
	if err != nil {
		return fmt.Errorf("initialize app: %w", err)
	}
	defer a.Shutdown()

	return fn(a)
}
