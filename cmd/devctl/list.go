package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/example/devctl/internal/config"
)

func newListCommand(opts *config.Options) *cobra.Command {
	var showServices bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List defined stacks and, with --services, the service catalog",
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
			green := color.New(color.FgGreen)

			w := tabwriter.NewWriter(out, 2, 4, 2, ' ', 0)
			fmt.Fprintln(w, "STACK\tNAME\tSERVICES\tDESCRIPTION")
			for _, id := range env.resolver.Available() {
				def, _ := env.resolver.Definition(id)
				marker := ""
				if rec != nil && rec.Stack == id {
					marker = green.Sprint(" (active)")
				}
				fmt.Fprintf(w, "%s%s\t%s\t%d\t%s\n", id, marker, def.Name, len(def.Services), def.Description)
			}
			if err := w.Flush(); err != nil {
				return err
			}

			if showServices {
				fmt.Fprintln(out)
				sw := tabwriter.NewWriter(out, 2, 4, 2, ' ', 0)
				fmt.Fprintln(sw, "SERVICE\tTYPE\tROLES\tDESCRIPTION")
				for _, svc := range env.catalog.Services() {
					fmt.Fprintf(sw, "%s\t%s\t%s\t%s\n", svc.Name, svc.Type, svc.Roles, svc.Description)
				}
				if err := sw.Flush(); err != nil {
					return err
				}
			}

			if issues := env.catalog.Issues(); len(issues) > 0 {
				yellow := color.New(color.FgYellow)
				var paths []string
				for _, issue := range issues {
					paths = append(paths, issue.Path)
				}
				yellow.Fprintf(cmd.ErrOrStderr(), "Warning: %d manifest(s) skipped: %s\n",
					len(issues), strings.Join(paths, ", "))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&showServices, "services", false, "Also list the service catalog")
	return cmd
}
