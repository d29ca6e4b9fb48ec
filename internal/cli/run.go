package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cadencebot/internal/app"
	logx "cadencebot/pkg/logx"

	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the scheduler in the foreground",
		Long: `Run restores the saved instances, starts the ones named by --start and then
runs until interrupted. With --console, commands are read from stdin
(type "help" for the list).`,
		Example: `  # Start every saved instance
  cadencebot run --start all

  # Start two instances and take commands from the terminal
  cadencebot run --start A,B --console`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			start, err := cmd.Flags().GetStringSlice("start")
			if err != nil {
				return fmt.Errorf("get start flag: %w", err)
			}
			console, err := cmd.Flags().GetBool("console")
			if err != nil {
				return fmt.Errorf("get console flag: %w", err)
			}

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			return runApp(cmd, a, start, console)
		},
	}
	cmd.Flags().StringSlice("start", nil, `instances to start ("all" for every instance)`)
	cmd.Flags().Bool("console", false, "read control commands from stdin")
	return cmd
}

func runApp(cmd *cobra.Command, a *app.App, start []string, console bool) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	startErr := a.Start(ctx, splitNames(start))
	if startErr != nil {
		a.Logger().Warn("some instances did not start", logx.Err(startErr))
	}

	reason := app.StopSignal
	if console {
		c := NewConsole(a.Supervisor(), cmd.OutOrStdout()).WithFeed(a.Logs().Feed())
		if err := c.Run(ctx, cmd.InOrStdin()); err != nil {
			a.Logger().Warn("console read failed", logx.Err(err))
		}
		if ctx.Err() == nil {
			reason = app.StopCommand
		}
	} else {
		select {
		case <-ctx.Done():
		case <-a.Done():
			reason = app.StopFatalError
		}
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	stopErr := a.Stop(stopCtx, reason)

	if err := a.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return stopErr
}
