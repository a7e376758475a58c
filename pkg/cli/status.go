package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/platinummonkey/skillmeat/pkg/submissions"
)

func newStatusCommand() *Command {
	cmd := newCommand("status", "Show the review state of submissions")

	id := cmd.Flags.String("id", "", "Submission ID (default: list every submission)")
	poll := cmd.Flags.Bool("poll", false, "Ask the broker for the latest review state")

	cmd.Run = func(ctx context.Context, app *App, args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}

		if *id == "" {
			list, err := app.Tracker.List(submissions.Filter{})
			if err != nil {
				return err
			}
			if len(list) == 0 {
				fmt.Fprintln(app.Out, "No submissions")
				return nil
			}
			for _, sub := range list {
				fmt.Fprintf(app.Out, "%s  %-18s %-10s %s\n", sub.ID, sub.Status, sub.BrokerName, sub.Metadata.Title)
			}
			return nil
		}

		sub, err := app.Tracker.Get(*id)
		if err != nil {
			return err
		}
		if *poll {
			b, err := app.Registry.Get(sub.BrokerName)
			if err != nil {
				return err
			}
			if sub, err = app.Tracker.PollBroker(ctx, *id, b); err != nil {
				return err
			}
		}

		printSubmission(app.Out, sub)
		if sub.Status == submissions.StatusRejected {
			return app.Tracker.HandleRejection(sub.ID)
		}
		return nil
	}
	return cmd
}

func printSubmission(w io.Writer, sub *submissions.Submission) {
	fmt.Fprintf(w, "Submission: %s\n", sub.ID)
	fmt.Fprintf(w, "Broker:     %s\n", sub.BrokerName)
	fmt.Fprintf(w, "Title:      %s\n", sub.Metadata.Title)
	fmt.Fprintf(w, "Status:     %s\n", sub.Status)
	fmt.Fprintf(w, "Submitted:  %s\n", sub.SubmittedAt.Format(time.RFC3339))
	fmt.Fprintf(w, "Updated:    %s\n", sub.UpdatedAt.Format(time.RFC3339))
	if sub.ReviewedAt != nil {
		fmt.Fprintf(w, "Reviewed:   %s\n", sub.ReviewedAt.Format(time.RFC3339))
	}
	if sub.ListingURL != "" {
		fmt.Fprintf(w, "Listing:    %s\n", sub.ListingURL)
	}
	if sub.Feedback != "" {
		fmt.Fprintf(w, "Feedback:   %s\n", sub.Feedback)
	}
	for _, e := range sub.Errors {
		fmt.Fprintf(w, "  error:   %s\n", e)
	}
	for _, warning := range sub.Warnings {
		fmt.Fprintf(w, "  warning: %s\n", warning)
	}
}
