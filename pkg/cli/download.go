package cli

import (
	"context"
	"fmt"
)

func newDownloadCommand() *Command {
	cmd := newCommand("download", "Download and verify a bundle")

	broker := cmd.Flags.String("broker", "", "Broker name")
	id := cmd.Flags.String("id", "", "Listing ID")
	dir := cmd.Flags.String("dir", "", "Output directory (default: a new temporary directory)")

	cmd.Run = func(ctx context.Context, app *App, args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		if *broker == "" || *id == "" {
			return fmt.Errorf("broker and id are required")
		}

		b, err := app.Registry.Get(*broker)
		if err != nil {
			return err
		}
		path, err := b.Download(ctx, *id, *dir)
		if err != nil {
			return err
		}

		fmt.Fprintf(app.Out, "Downloaded %s from %s to %s\n", *id, b.Name(), path)
		return nil
	}
	return cmd
}
