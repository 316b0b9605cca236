package cli

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/semmidev/dbbackup/internal/app"
	"github.com/semmidev/dbbackup/internal/domain"
	"github.com/semmidev/dbbackup/internal/usecase"
)

func newRestoreCommand(opts *options) *cobra.Command {
	var req usecase.RestoreRequest
	var confirmed bool

	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Restore a dump into an environment with psql",
		Long: `Restore a plain SQL dump into an environment.

Drop mode recreates the public schema before the dump is loaded. Drop mode
and any restore into production ask for a typed confirmation unless
--confirm is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := domain.ParseEnvironment(req.Environment)
			if err != nil {
				return err
			}
			mode, err := domain.ParseRestoreMode(req.Mode)
			if err != nil {
				return err
			}

			if want := usecase.RequiredConfirmation(env, mode); want != "" {
				if confirmed {
					req.Confirmation = want
				} else {
					token, err := prompt(cmd.InOrStdin(), cmd.OutOrStdout(), env, mode, want)
					if err != nil {
						return err
					}
					req.Confirmation = token
				}
			}

			return opts.withApp(func(a *app.App) error {
				result, err := a.Restore.RunRestore(cmd.Context(), req)
				if err != nil {
					return err
				}
				success.Fprintf(cmd.OutOrStdout(), "✓ %s\n", result.Message)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&req.File, "file", "", "path of the .sql dump to restore")
	cmd.Flags().StringVar(&req.BackupID, "backup-id", "", "restore the dump of this completed backup instead of --file")
	cmd.Flags().StringVar(&req.Environment, "env", "", "target environment (local or production)")
	cmd.Flags().StringVar(&req.Mode, "mode", string(domain.RestoreSafe), "safe or drop")
	cmd.Flags().BoolVar(&confirmed, "confirm", false, "skip the typed confirmation")
	_ = cmd.MarkFlagRequired("env")
	cmd.MarkFlagsOneRequired("file", "backup-id")
	cmd.MarkFlagsMutuallyExclusive("file", "backup-id")
	return cmd
}

// prompt asks the user to type the confirmation token and returns what they typed.
func prompt(in io.Reader, out io.Writer, env domain.Environment, mode domain.RestoreMode, want string) (string, error) {
	if mode == domain.RestoreDrop {
		warning.Fprintf(out, "⚠ Drop mode deletes every object in the public schema of %s.\n", env)
	}
	if env == domain.EnvProduction {
		warning.Fprintln(out, "⚠ You are restoring into PRODUCTION.")
	}
	fmt.Fprintf(out, "Type %q to continue: ", want)

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read confirmation: %w", err)
	}
	return strings.TrimSpace(line), nil
}
