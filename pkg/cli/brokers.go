package cli

import (
	"context"
	"fmt"
	"text/tabwriter"
)

func newBrokersCommand() *Command {
	cmd := &Command{
		Name:        "brokers",
		Description: "List, enable or disable marketplace brokers",
		Subcommands: make(map[string]*Command),
	}
	cmd.Subcommands["list"] = newBrokersListCommand()
	cmd.Subcommands["enable"] = newBrokerToggleCommand("enable", true)
	cmd.Subcommands["disable"] = newBrokerToggleCommand("disable", false)
	return cmd
}

func newBrokersListCommand() *Command {
	cmd := newCommand("list", "List configured brokers")

	cmd.Run = func(ctx context.Context, app *App, args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}

		tw := tabwriter.NewWriter(app.Out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tTYPE\tENABLED\tLOADED\tENDPOINT\tERROR")
		for _, info := range app.Registry.List() {
			fmt.Fprintf(tw, "%s\t%s\t%t\t%t\t%s\t%s\n",
				info.Name, info.Type, info.Enabled, info.Loaded, info.Endpoint, info.Error)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(app.Out, "Configuration: %s\n", app.Registry.Path())
		return nil
	}
	return cmd
}

func newBrokerToggleCommand(name string, enable bool) *Command {
	cmd := newCommand(name, fmt.Sprintf("%s a broker in marketplace.yaml", name))

	cmd.Run = func(ctx context.Context, app *App, args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		if cmd.Flags.NArg() != 1 {
			return fmt.Errorf("usage: brokers %s <name>", name)
		}
		broker := cmd.Flags.Arg(0)

		var err error
		if enable {
			err = app.Registry.EnableBroker(broker)
		} else {
			err = app.Registry.DisableBroker(broker)
		}
		if err != nil {
			return err
		}

		fmt.Fprintf(app.Out, "Broker %s %sd\n", broker, name)
		for _, info := range app.Registry.List() {
			if info.Name == broker && info.Enabled && !info.Loaded {
				fmt.Fprintf(app.Out, "Warning: %s is enabled but not loaded: %s\n", broker, info.Error)
			}
		}
		return nil
	}
	return cmd
}
