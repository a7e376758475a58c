package cli

import (
	"context"
	"fmt"

	"github.com/platinummonkey/skillmeat/pkg/marketplace"
	"github.com/platinummonkey/skillmeat/pkg/publishing"
)

func newPublishCommand() *Command {
	cmd := newCommand("publish", "Validate a bundle and submit it to a marketplace")

	broker := cmd.Flags.String("broker", "", "Broker name")
	bundlePath := cmd.Flags.String("bundle", "", "Path to the bundle archive")
	title := cmd.Flags.String("title", "", "Listing title")
	description := cmd.Flags.String("description", "", "Listing description")
	tags := cmd.Flags.String("tags", "", "Comma-separated tags")
	lic := cmd.Flags.String("license", "", "SPDX license identifier")
	price := cmd.Flags.Int("price", 0, "Price in cents")
	homepage := cmd.Flags.String("homepage", "", "Homepage URL")
	repository := cmd.Flags.String("repository", "", "Repository URL")
	documentation := cmd.Flags.String("documentation", "", "Documentation URL")
	publisher := cmd.Flags.String("publisher", "", "Publisher name")
	email := cmd.Flags.String("email", "", "Publisher email")
	skipSecurity := cmd.Flags.Bool("skip-security", false, "Skip the security scan (not recommended)")
	strict := cmd.Flags.Bool("strict", false, "Refuse to submit when validation produced warnings")

	cmd.Run = func(ctx context.Context, app *App, args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		if *broker == "" || *bundlePath == "" {
			return fmt.Errorf("broker and bundle are required")
		}

		b, err := app.Registry.Get(*broker)
		if err != nil {
			return err
		}

		var pub *marketplace.PublisherMetadata
		if *publisher != "" || *email != "" {
			pub, err = marketplace.NewPublisherMetadata(*publisher, *email, "")
			if err != nil {
				return err
			}
		}

		app.Licenses.Load(ctx)

		sub, report, err := app.Workflow.Publish(ctx, publishing.PublishInput{
			BundlePath: *bundlePath,
			Broker:     b,
			Metadata: marketplace.PublishMetadataFields{
				Title:         *title,
				Description:   *description,
				Tags:          splitList(*tags),
				License:       *lic,
				Price:         *price,
				Homepage:      *homepage,
				Repository:    *repository,
				Documentation: *documentation,
			},
			Publisher:      pub,
			SkipSecurity:   *skipSecurity,
			RejectWarnings: *strict,
		})
		if report != nil {
			fmt.Fprint(app.Out, report.Summary())
		}
		if err != nil {
			return err
		}

		fmt.Fprintf(app.Out, "Submitted %s to %s (status: %s)\n", sub.ID, sub.BrokerName, sub.Status)
		return nil
	}
	return cmd
}
