package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/example/devctl/internal/config"
	"github.com/example/devctl/internal/orchestrator"
	"github.com/example/devctl/internal/runtime"
)

func newStackCommand(opts *config.Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stack",
		Short: "Start, stop, and restart service stacks",
	}
	cmd.AddCommand(
		newStackUpCommand(opts),
		newStackDownCommand(opts),
		newStackRestartCommand(opts),
		newStackLogsCommand(opts),
		newStatusCommand(opts),
	)
	return cmd
}

func newStackUpCommand(opts *config.Options) *cobra.Command {
	var build, attach, override bool
	cmd := &cobra.Command{
		Use:   "up STACK",
		Short: "Start a stack by name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := newAppEnv(opts)
			if err != nil {
				return err
			}
			result, err := env.orch.Up(cmd.Context(), args[0], orchestrator.UpOptions{
				Build:    build,
				Attach:   attach,
				Override: override,
			})
			if err != nil {
				return err
			}
			green := color.New(color.FgGreen)
			green.Fprintf(cmd.OutOrStdout(), "Stack %q is up (%d containers)\n",
				result.Stack, len(result.Record.Containers))
			if len(result.Missing) > 0 {
				yellow := color.New(color.FgYellow)
				yellow.Fprintf(cmd.ErrOrStderr(), "Warning: no running container for: %s\n",
					strings.Join(result.Missing, ", "))
			}
			if def, ok := env.resolver.Definition(result.Stack); ok && def.AccessURL != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "Access: %s\n", def.AccessURL)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&build, "build", false, "Rebuild images before starting")
	cmd.Flags().BoolVar(&attach, "attach", false, "Stay attached to compose output instead of detaching")
	cmd.Flags().BoolVar(&override, "override", false, "Replace the currently active stack if one is running")
	return cmd
}

func newStackDownCommand(opts *config.Options) *cobra.Command {
	return &cobra.Command{
		Use:   "down [STACK]",
		Short: "Stop the active stack",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := newAppEnv(opts)
			if err != nil {
				return err
			}
			if len(args) == 1 {
				rec, err := env.store.Read()
				if err != nil {
					return err
				}
				if rec != nil && rec.Stack != args[0] {
					return fmt.Errorf("stack %q is not active (active: %q)", args[0], rec.Stack)
				}
			}
			rec, err := env.orch.Down(cmd.Context())
			if err != nil {
				return err
			}
			if rec == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "No stack is running; nothing to stop.")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stack %q stopped.\n", rec.Stack)
			return nil
		},
	}
}

func newStackRestartCommand(opts *config.Options) *cobra.Command {
	return &cobra.Command{
		Use:   "restart [STACK]",
		Short: "Restart the active stack, or cycle to a named one",
		Long: "Without an argument the active stack's services restart in place.\n" +
			"With a stack name the named stack is brought up fresh, replacing\n" +
			"the active stack if it differs.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := newAppEnv(opts)
			if err != nil {
				return err
			}
			if len(args) == 1 {
				result, err := env.orch.Up(cmd.Context(), args[0], orchestrator.UpOptions{Override: true})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Stack %q restarted (%d containers).\n",
					result.Stack, len(result.Record.Containers))
				return nil
			}
			rec, err := env.orch.Restart(cmd.Context())
			if err != nil {
				return err
			}
			if rec == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "No stack is running; nothing to restart.")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stack %q restarted.\n", rec.Stack)
			return nil
		},
	}
}

func newStackLogsCommand(opts *config.Options) *cobra.Command {
	var follow bool
	var tail string
	cmd := &cobra.Command{
		Use:   "logs [SERVICE...]",
		Short: "Stream logs from the active stack",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := newAppEnv(opts)
			if err != nil {
				return err
			}
			rec, err := env.store.Read()
			if err != nil {
				return err
			}
			if rec == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "No stack is running; no logs to show.")
				return nil
			}
			return env.docker.ComposeLogs(cmd.Context(), runtime.ComposeOptions{
				ProjectName: opts.ProjectName,
				Manifests:   rec.ManifestPaths,
				Follow:      follow,
				Tail:        tail,
				Services:    args,
			})
		},
	}
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Follow log output")
	cmd.Flags().StringVar(&tail, "tail", "", "Number of lines to show from the end of the logs")
	return cmd
}
