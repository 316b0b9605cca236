package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/semmidev/dbbackup/internal/app"
	"github.com/semmidev/dbbackup/internal/domain"
	"github.com/semmidev/dbbackup/internal/usecase"
)

func newCreateCommand(opts *options) *cobra.Command {
	var env, actor, notes string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Run a manual backup and wait for it to finish",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withApp(func(a *app.App) error {
				req := usecase.BackupRequest{Environment: env, Kind: domain.KindManual, Notes: notes}
				if actor != "" {
					req.Actor = &actor
				}

				rec, err := a.Backups.RunBackupSync(cmd.Context(), req)
				if rec != nil {
					printBackup(cmd.OutOrStdout(), rec)
				}
				return err
			})
		},
	}
	cmd.Flags().StringVar(&env, "env", "", "environment to back up (local or production)")
	cmd.Flags().StringVar(&actor, "actor", "", "user id recorded as the creator")
	cmd.Flags().StringVar(&notes, "notes", "", "free text stored with the record")
	_ = cmd.MarkFlagRequired("env")
	return cmd
}

func newListCommand(opts *options) *cobra.Command {
	var env, status string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List backup records, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter := domain.BackupFilter{Status: domain.BackupStatus(status), Limit: limit}
			if env != "" {
				e, err := domain.ParseEnvironment(env)
				if err != nil {
					return err
				}
				filter.Environment = e
			}

			return opts.withApp(func(a *app.App) error {
				records, err := a.Backups.List(cmd.Context(), filter)
				if err != nil {
					return err
				}
				printBackups(cmd.OutOrStdout(), records)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&env, "env", "", "only this environment")
	cmd.Flags().StringVar(&status, "status", "", "only this status (in_progress, completed, failed)")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of records")
	return cmd
}

func newDeleteCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a backup's dump file and then its record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(func(a *app.App) error {
				if err := a.Backups.Delete(cmd.Context(), args[0]); err != nil {
					return err
				}
				success.Fprintf(cmd.OutOrStdout(), "✓ Deleted backup %s\n", args[0])
				return nil
			})
		},
	}
}

func newFilesCommand(opts *options) *cobra.Command {
	var env string

	cmd := &cobra.Command{
		Use:   "files",
		Short: "List dump files present in an environment's backup directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withApp(func(a *app.App) error {
				files, err := a.Backups.ListDumpFiles(cmd.Context(), env)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(files) == 0 {
					muted.Fprintln(out, "No dump files found")
					return nil
				}
				for _, f := range files {
					fmt.Fprintf(out, "%s  %10s  %s\n",
						f.ModTime.Format("2006-01-02 15:04:05"), domain.FormatSize(f.Size), f.Name)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&env, "env", "", "environment (local or production)")
	_ = cmd.MarkFlagRequired("env")
	return cmd
}
