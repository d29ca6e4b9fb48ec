package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cadencebot/internal/app"
	"cadencebot/internal/automation"

	"github.com/spf13/cobra"
)

const defaultProbePayload = "$test"

func newAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add an instance",
		Long: `Add a named instance bound to a screen region. The region centre must lie on
the display. Intervals are whole seconds or Go durations; the new instance
is saved Stopped.`,
		Example: `  cadencebot add A --region 100,200,50,40 --a 600 --b 1h`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			regionRaw, _ := cmd.Flags().GetString("region")
			aRaw, _ := cmd.Flags().GetString("a")
			bRaw, _ := cmd.Flags().GetString("b")

			region, err := parseRegion(regionRaw)
			if err != nil {
				return err
			}
			var intervals [automation.NumCadences]time.Duration
			for i, raw := range []string{aRaw, bRaw} {
				if intervals[i], err = parseInterval(raw); err != nil {
					return err
				}
			}

			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				inst, err := a.Supervisor().AddInstance(ctx, args[0], region, intervals)
				if err != nil {
					return fmt.Errorf("add instance: %w", err)
				}
				cads := a.Supervisor().Cadences()
				fmt.Fprintf(cmd.OutOrStdout(), "Added %s at %s (%s every %s, %s every %s)\n",
					inst.Name, inst.Region,
					cads[automation.CadenceA].Name, intervals[automation.CadenceA],
					cads[automation.CadenceB].Name, intervals[automation.CadenceB])
				return nil
			})
		},
	}
	cmd.Flags().String("region", "", "region as x,y,w,h (required)")
	cmd.Flags().String("a", "", "interval of the first cadence (required)")
	cmd.Flags().String("b", "", "interval of the second cadence (required)")
	_ = cmd.MarkFlagRequired("region")
	_ = cmd.MarkFlagRequired("a")
	_ = cmd.MarkFlagRequired("b")
	return cmd
}

func newRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "rm <name>...",
		Aliases: []string{"remove"},
		Short:   "Delete instances",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				var errs []error
				for _, name := range splitNames(args) {
					if err := a.Supervisor().RemoveInstance(ctx, name); err != nil {
						errs = append(errs, fmt.Errorf("remove %s: %w", name, err))
						continue
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", name)
				}
				return errors.Join(errs...)
			})
		},
	}
}

func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List instances and recent actions",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			n, _ := cmd.Flags().GetInt("actions")
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				out := cmd.OutOrStdout()
				sup := a.Supervisor()
				list := sup.Status()
				if len(list) == 0 {
					fmt.Fprintln(out, "No instances")
				}
				for _, st := range list {
					fmt.Fprintf(out, "%s  region=%s\n", app.FormatStatus(st, sup.Cadences()), st.Region)
				}
				if n <= 0 || a.Store() == nil {
					return nil
				}
				recs, err := a.Store().RecentActions(ctx, n)
				if err != nil {
					return fmt.Errorf("recent actions: %w", err)
				}
				if len(recs) > 0 {
					fmt.Fprintln(out)
				}
				for _, r := range recs {
					result := "ok"
					if !r.OK {
						result = "failed: " + r.Error
					}
					fmt.Fprintf(out, "%s  %-12s %-8s %-10s attempts=%d %s\n",
						r.At.Local().Format(time.DateTime), r.Instance, r.Cadence, r.Payload, r.Attempts, result)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntP("actions", "n", 0, "also show the last N recorded actions")
	return cmd
}

func newProbeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "probe <name>",
		Short: "Send one test action to an instance's region",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, _ := cmd.Flags().GetString("payload")
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				if err := a.Supervisor().Probe(ctx, args[0], payload); err != nil {
					return fmt.Errorf("probe %s: %w", args[0], err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Sent %q to %s\n", payload, args[0])
				return nil
			})
		},
	}
	cmd.Flags().String("payload", defaultProbePayload, "text to type")
	return cmd
}

func newResetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete every instance",
		Example: `  # Reset with confirmation prompt
  cadencebot reset

  # Reset without confirmation
  cadencebot reset --force`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			force, err := cmd.Flags().GetBool("force")
			if err != nil {
				return fmt.Errorf("get force flag: %w", err)
			}
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				n := a.Supervisor().Registry().Len()
				if n == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No instances")
					return nil
				}
				if !force {
					fmt.Fprintf(cmd.OutOrStdout(), "This will delete %d instance(s).\nAre you sure? [y/N] ", n)
					response, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
					if err != nil && response == "" {
						return fmt.Errorf("read response: %w", err)
					}
					response = strings.TrimSpace(strings.ToLower(response))
					if response != "y" && response != "yes" {
						fmt.Fprintln(cmd.OutOrStdout(), "Canceled")
						return nil
					}
				}
				if err := a.Supervisor().ResetAll(ctx); err != nil {
					return fmt.Errorf("reset: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d instance(s)\n", n)
				return nil
			})
		},
	}
	cmd.Flags().BoolP("force", "f", false, "skip confirmation prompt")
	return cmd
}

func newScreenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "screen",
		Short: "Show display bounds and the cursor position",
		Long: `Screen prints the display size used for region checks and the current cursor
position, which helps pick region coordinates.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				b, err := a.Supervisor().Bounds(ctx)
				if err != nil {
					return fmt.Errorf("display size: %w", err)
				}
				x, y, err := a.Device().CursorPosition()
				if err != nil {
					return fmt.Errorf("cursor position: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "driver: %s\ndisplay: %dx%d\ncursor: %d,%d\n", a.Device().Name(), b.W, b.H, x, y)
				return nil
			})
		},
	}
}
