package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/semmidev/dbbackup/internal/app"
	"github.com/semmidev/dbbackup/internal/domain"
	"github.com/semmidev/dbbackup/internal/usecase"
)

func newScheduleCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Manage backup schedules",
	}
	cmd.AddCommand(
		newScheduleListCommand(opts),
		newScheduleAddCommand(opts),
		newScheduleRemoveCommand(opts),
		newScheduleRunDueCommand(opts),
	)
	return cmd
}

func newScheduleListCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List schedules with their next run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withApp(func(a *app.App) error {
				views, err := a.Schedules.List(cmd.Context())
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if len(views) == 0 {
					muted.Fprintln(out, "No schedules")
					return nil
				}

				tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tNAME\tENV\tTYPE\tTIME\tACTIVE\tNEXT RUN")
				for _, v := range views {
					next := "-"
					if v.NextRun != nil {
						next = v.NextRun.In(a.Config.Location()).Format("2006-01-02 15:04")
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%t\t%s\n",
						v.ID, v.Name, v.Environment, v.Recurrence, v.TimeOfDay, v.Active, next)
				}
				return tw.Flush()
			})
		},
	}
}

func newScheduleAddCommand(opts *options) *cobra.Command {
	var in usecase.ScheduleInput
	var actor string
	var inactive bool

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a daily, weekly (Sunday) or monthly (1st) schedule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if inactive {
				active := false
				in.Active = &active
			}
			var by *string
			if actor != "" {
				by = &actor
			}

			return opts.withApp(func(a *app.App) error {
				view, err := a.Schedules.Create(cmd.Context(), in, by)
				if err != nil {
					return err
				}
				success.Fprintf(cmd.OutOrStdout(), "✓ Added schedule %s (%s)\n", view.Name, view.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&in.Name, "name", "", "unique schedule name")
	cmd.Flags().StringVar(&in.Environment, "env", "", "environment (local or production)")
	cmd.Flags().StringVar(&in.Recurrence, "type", "daily", "daily, weekly or monthly")
	cmd.Flags().StringVar(&in.Time, "time", "", "time of day, HH:MM in the scheduler timezone")
	cmd.Flags().StringVar(&actor, "actor", "", "user id recorded as the creator")
	cmd.Flags().BoolVar(&inactive, "inactive", false, "create the schedule disabled")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("env")
	_ = cmd.MarkFlagRequired("time")
	return cmd
}

func newScheduleRemoveCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "remove ID",
		Short: "Remove a schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(func(a *app.App) error {
				if err := a.Schedules.Delete(cmd.Context(), args[0]); err != nil {
					return err
				}
				success.Fprintf(cmd.OutOrStdout(), "✓ Removed schedule %s\n", args[0])
				return nil
			})
		},
	}
}

// newScheduleRunDueCommand runs one tick and waits for the started backups.
// It is meant to be driven by an external cron.
func newScheduleRunDueCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "run-due",
		Short: "Start every schedule that is due now and wait for the backups",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withApp(func(a *app.App) error {
				started, tickErr := a.Tick.RunDue(cmd.Context())
				a.WaitIdle()

				out := cmd.OutOrStdout()
				if len(started) == 0 && tickErr == nil {
					muted.Fprintln(out, "No schedules due")
					return nil
				}

				var failed int
				for _, rec := range started {
					final, err := a.Backups.Get(cmd.Context(), rec.ID)
					if err != nil {
						return err
					}
					printBackup(out, final)
					if final.Status != domain.StatusCompleted {
						failed++
					}
				}
				if tickErr != nil {
					return tickErr
				}
				if failed > 0 {
					return fmt.Errorf("%d scheduled backup(s) failed", failed)
				}
				return nil
			})
		},
	}
}
