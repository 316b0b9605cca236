package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/semmidev/dbbackup/internal/domain"
)

var (
	success = color.New(color.FgGreen, color.Bold)
	failure = color.New(color.FgRed, color.Bold)
	warning = color.New(color.FgYellow, color.Bold)
	muted   = color.New(color.Faint)
)

func statusColor(s domain.BackupStatus) *color.Color {
	switch s {
	case domain.StatusCompleted:
		return success
	case domain.StatusFailed:
		return failure
	default:
		return warning
	}
}

func printBackups(w io.Writer, records []domain.BackupRecord) {
	if len(records) == 0 {
		muted.Fprintln(w, "No backups found")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tFILENAME\tENV\tTYPE\tSTATUS\tSIZE\tCREATED")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.Filename, r.Environment, r.Kind,
			statusColor(r.Status).Sprint(r.Status), r.SizeDisplay(),
			r.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	tw.Flush()
}

func printBackup(w io.Writer, r *domain.BackupRecord) {
	switch r.Status {
	case domain.StatusCompleted:
		success.Fprintf(w, "✓ Backup completed: %s (%s)\n", r.Filename, r.SizeDisplay())
	case domain.StatusFailed:
		failure.Fprintf(w, "✗ Backup failed: %s\n", r.Filename)
		if r.Notes != "" {
			fmt.Fprintln(w, r.Notes)
		}
	default:
		warning.Fprintf(w, "… Backup %s is %d%% done\n", r.Filename, r.Progress)
	}
	muted.Fprintf(w, "id %s\n", r.ID)
}
