package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/platinummonkey/skillmeat/pkg/marketplace"
)

func newListingsCommand() *Command {
	cmd := newCommand("listings", "List bundles from one or every enabled marketplace")

	broker := cmd.Flags.String("broker", "", "Broker name (default: every enabled broker)")
	page := cmd.Flags.Int("page", 1, "Page number")
	pageSize := cmd.Flags.Int("page-size", 20, "Listings per page")
	asJSON := cmd.Flags.Bool("json", false, "Print JSON")
	filters := filterFlag{}
	cmd.Flags.Var(filters, "filter", "Filter as key=value (repeatable)")

	cmd.Run = func(ctx context.Context, app *App, args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		q := marketplace.ListingQuery{Filters: filters, Page: *page, PageSize: *pageSize}

		if *broker != "" {
			b, err := app.Registry.Get(*broker)
			if err != nil {
				return err
			}
			p, err := b.Listings(ctx, q)
			if err != nil {
				return err
			}
			res := &marketplace.AggregateResult{
				Pages:    map[string]*marketplace.ListingPage{b.Name(): p},
				Failures: map[string]error{},
			}
			return printListings(app.Out, res, *asJSON)
		}

		enabled := app.Registry.Enabled()
		if len(enabled) == 0 {
			return fmt.Errorf("no brokers are enabled, see 'brokers list'")
		}
		res := marketplace.AggregateListings(ctx, enabled, q, app.Config.FanoutTimeout)
		return printListings(app.Out, res, *asJSON)
	}
	return cmd
}

type listingsOutput struct {
	Listings map[string][]*marketplace.MarketplaceListing `json:"listings"`
	Failures map[string]string                            `json:"failures,omitempty"`
}

func printListings(w io.Writer, res *marketplace.AggregateResult, asJSON bool) error {
	if asJSON {
		out := listingsOutput{
			Listings: make(map[string][]*marketplace.MarketplaceListing, len(res.Pages)),
			Failures: make(map[string]string, len(res.Failures)),
		}
		for name, p := range res.Pages {
			out.Listings[name] = p.Listings
		}
		for name, err := range res.Failures {
			out.Failures[name] = err.Error()
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "BROKER\tID\tNAME\tPUBLISHER\tLICENSE\tPRICE\tSIGNED")
	for _, name := range res.Succeeded() {
		for _, l := range res.Pages[name].Listings {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%t\n",
				name, l.ListingID(), l.Name(), l.Publisher(), l.License(), formatPrice(l.Price()), l.IsSigned())
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	for _, name := range res.Succeeded() {
		p := res.Pages[name]
		fmt.Fprintf(w, "%s: page %d of %d", name, p.Page, p.TotalPages)
		if p.Skipped > 0 {
			fmt.Fprintf(w, " (%d malformed listings skipped)", p.Skipped)
		}
		fmt.Fprintln(w)
	}
	for _, name := range res.Failed() {
		fmt.Fprintf(w, "%s: failed: %v\n", name, res.Failures[name])
	}
	return nil
}

func formatPrice(cents int) string {
	if cents == 0 {
		return "free"
	}
	return fmt.Sprintf("$%d.%02d", cents/100, cents%100)
}
