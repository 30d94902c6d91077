package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/devctl/internal/config"
)

func newStateCommand(opts *config.Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Inspect and repair the recorded environment state",
	}
	cmd.AddCommand(newStateShowCommand(opts), newStateCleanCommand(opts))
	return cmd
}

func newStateShowCommand(opts *config.Options) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the recorded state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := newAppEnv(opts)
			if err != nil {
				return err
			}
			rec, err := env.store.Read()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "State file: %s\n", env.store.Path())
			if rec == nil {
				fmt.Fprintln(out, "No recorded state.")
				return nil
			}
			fmt.Fprintf(out, "Stack:      %s\n", rec.Stack)
			fmt.Fprintf(out, "Started:    %s\n", rec.StartedAt.Format(time.RFC3339))
			fmt.Fprintf(out, "Explicit:   %t\n", rec.Explicit)
			names := make([]string, 0, len(rec.Containers))
			for name := range rec.Containers {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				fmt.Fprintf(out, "Container:  %s -> %s\n", name, rec.Containers[name])
			}
			return nil
		},
	}
}

func newStateCleanCommand(opts *config.Options) *cobra.Command {
	var noRediscover bool
	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Discard the recorded state and rebuild it from running containers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := newAppEnv(opts)
			if err != nil {
				return err
			}
			rec, err := env.orch.Clean(cmd.Context(), !noRediscover)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if rec == nil {
				fmt.Fprintln(out, "State cleared.")
				return nil
			}
			fmt.Fprintf(out, "State rebuilt: stack %q is running (%d containers).\n",
				rec.Stack, len(rec.Containers))
			return nil
		},
	}
	cmd.Flags().BoolVar(&noRediscover, "no-rediscover", false, "Clear without rebuilding from running containers")
	return cmd
}
