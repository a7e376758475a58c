package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/platinummonkey/skillmeat/pkg/observability"
)

// Command represents a CLI command
type Command struct {
	Name        string
	Description string
	Run         func(ctx context.Context, app *App, args []string) error
	Subcommands map[string]*Command
	Flags       *flag.FlagSet
}

// NewRootCommand creates the root command
func NewRootCommand() *Command {
	root := &Command{
		Name:        "skillmeat-market",
		Description: "SkillMeat - browse, install and publish bundles across marketplaces",
		Subcommands: make(map[string]*Command),
		Flags:       flag.NewFlagSet("skillmeat-market", flag.ContinueOnError),
	}

	// Add subcommands
	root.Subcommands["listings"] = newListingsCommand()
	root.Subcommands["download"] = newDownloadCommand()
	root.Subcommands["publish"] = newPublishCommand()
	root.Subcommands["status"] = newStatusCommand()
	root.Subcommands["brokers"] = newBrokersCommand()
	root.Subcommands["cleanup"] = newCleanupCommand()

	return root
}

// Execute dispatches args to the matching subcommand
func (c *Command) Execute(ctx context.Context, app *App, args []string) error {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		return c.usage(app.Out)
	}

	subcmd, ok := c.Subcommands[args[0]]
	if !ok {
		return fmt.Errorf("unknown command: %s", strings.Join(append([]string{c.Name}, args[0]), " "))
	}

	// every invocation gets one correlation id shared by its log lines
	if observability.GetOperationID(ctx) == "" {
		ctx = observability.WithOperationID(ctx, uuid.NewString())
		if app.Logger != nil {
			ctx = observability.WithLogger(ctx, app.Logger)
		}
		observability.FromContext(ctx).WithField("command", args[0]).Debug("Running command")
	}
	if subcmd.Run == nil {
		return subcmd.Execute(ctx, app, args[1:])
	}
	return subcmd.Run(ctx, app, args[1:])
}

// newCommand creates a leaf command with its own flag set
func newCommand(name, description string) *Command {
	return &Command{
		Name:        name,
		Description: description,
		Flags:       flag.NewFlagSet(name, flag.ContinueOnError),
	}
}

// usage prints the command usage
func (c *Command) usage(w io.Writer) error {
	fmt.Fprintf(w, "Usage: %s <command> [args]\n\n", c.Name)
	fmt.Fprintf(w, "Commands:\n")

	names := make([]string, 0, len(c.Subcommands))
	for name := range c.Subcommands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-15s %s\n", name, c.Subcommands[name].Description)
	}
	return nil
}

// filterFlag collects repeated -filter key=value flags
type filterFlag map[string]string

func (f filterFlag) String() string {
	pairs := make([]string, 0, len(f))
	for k, v := range f {
		pairs = append(pairs, k+"="+v)
	}
	sort.Strings(pairs)
	return strings.Join(pairs, ",")
}

func (f filterFlag) Set(value string) error {
	k, v, ok := strings.Cut(value, "=")
	if !ok || strings.TrimSpace(k) == "" {
		return fmt.Errorf("filter must be key=value, got %q", value)
	}
	f[strings.TrimSpace(k)] = strings.TrimSpace(v)
	return nil
}

// splitList splits a comma-separated flag value, dropping blanks
func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
