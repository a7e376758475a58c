package cli

import (
	"context"
	"fmt"
)

func newCleanupCommand() *Command {
	cmd := newCommand("cleanup", "Delete old approved and rejected submissions")

	days := cmd.Flags.Int("days", 0, "Retention in days (default: SKILLMEAT_SUBMISSION_RETENTION_DAYS)")

	cmd.Run = func(ctx context.Context, app *App, args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		retention := *days
		if retention == 0 {
			retention = app.Config.SubmissionRetentionDays
		}

		removed, err := app.Tracker.CleanupOldSubmissions(retention)
		if err != nil {
			return err
		}
		fmt.Fprintf(app.Out, "Removed %d submissions older than %d days\n", removed, retention)
		return nil
	}
	return cmd
}
