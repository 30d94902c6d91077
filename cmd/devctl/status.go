package main

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/example/devctl/internal/config"
)

func newStatusCommand(opts *config.Options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the active stack and its running containers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := newAppEnv(opts)
			if err != nil {
				return err
			}
			st, err := env.orch.Status(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if st.Record == nil {
				fmt.Fprintln(out, "No active stack.")
			} else {
				green := color.New(color.FgGreen)
				green.Fprintf(out, "Active stack: %s\n", st.Record.Stack)
				fmt.Fprintf(out, "Started:      %s (%s ago)\n",
					st.Record.StartedAt.Local().Format(time.RFC1123),
					st.Record.Uptime(time.Now()))
				if !st.Record.Explicit {
					fmt.Fprintln(out, "Origin:       rediscovered from running containers")
				}
			}

			// Branch context is best effort; not every project root is a
			// git checkout.
			if branch, err := currentGitBranch(cmd, opts.ProjectRoot); err == nil {
				fmt.Fprintf(out, "Branch:       %s", branch)
				if reg, err := env.branchRegistry(); err == nil {
					if rule, pattern, ok := reg.Match(branch); ok {
						fmt.Fprintf(out, " (maps to stack %q via %q)", rule.Stack, pattern)
					}
				}
				fmt.Fprintln(out)
			}

			if len(st.Containers) == 0 {
				fmt.Fprintln(out, "No managed containers are running.")
				return nil
			}

			w := tabwriter.NewWriter(out, 2, 4, 2, ' ', 0)
			fmt.Fprintln(w, "CONTAINER\tTYPE\tROLES\tSTATUS\tPORTS")
			ns := opts.LabelNamespace
			for _, c := range st.Containers {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					c.Name,
					c.Labels[ns+".type"],
					c.Labels[ns+".roles"],
					c.Status,
					c.Ports)
			}
			if err := w.Flush(); err != nil {
				return err
			}

			if len(st.Stale) > 0 {
				yellow := color.New(color.FgYellow)
				yellow.Fprintf(cmd.ErrOrStderr(),
					"Warning: recorded but not running: %s\n", strings.Join(st.Stale, ", "))
			}
			return nil
		},
	}
}
