// Package cli implements the cadencebot commands using Cobra.
// Every command opens the app from the --config file; only run starts the
// scheduling units.
package cli

import (
	"context"
	"fmt"

	"cadencebot/internal/app"

	"github.com/spf13/cobra"
)

const defaultConfigPath = "./config.yaml"

// NewRootCmd builds the command tree. A fresh tree per call keeps flag state
// out of package globals.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "cadencebot",
		Short: "Timer-driven input automation for screen regions",
		Long: `cadencebot drives several named screen regions ("instances") on their own
timers. Each instance has two cadences; when one is due the bot clicks the
region, types the cadence payload and presses the commit key. Output to the
device is serialized across all instances.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringP("config", "c", defaultConfigPath, "path to config (yaml or json)")

	root.AddCommand(
		newRunCmd(),
		newAddCmd(),
		newRmCmd(),
		newListCmd(),
		newProbeCmd(),
		newResetCmd(),
		newScreenCmd(),
	)
	return root
}

// Execute runs the command tree with ctx.
func Execute(ctx context.Context) error {
	return NewRootCmd().ExecuteContext(ctx)
}

func openApp(cmd *cobra.Command) (*app.App, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, fmt.Errorf("get config flag: %w", err)
	}
	a, err := app.NewApp(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return a, nil
}

// withApp opens the app for a one-shot command and closes it afterwards.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(cmd.Context(), a)
}
