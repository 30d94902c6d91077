package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/example/devctl/internal/config"
	"github.com/example/devctl/internal/manifest"
)

func newURLsCommand(opts *config.Options) *cobra.Command {
	return &cobra.Command{
		Use:   "urls",
		Short: "Show access URLs and published ports of the active stack",
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
			if rec == nil {
				fmt.Fprintln(out, "No active stack.")
				return nil
			}

			if def, ok := env.resolver.Definition(rec.Stack); ok && def.AccessURL != "" {
				fmt.Fprintf(out, "Access URL: %s\n\n", def.AccessURL)
			}

			w := tabwriter.NewWriter(out, 2, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SERVICE\tPORT\tURL")
			for _, path := range rec.ManifestPaths {
				project, err := manifest.Load(path, opts.ProjectName)
				if err != nil {
					return fmt.Errorf("reading ports of %s: %w", path, err)
				}
				for _, binding := range manifest.PublishedPorts(project) {
					url := "-"
					if binding.Protocol == "tcp" {
						url = fmt.Sprintf("http://localhost:%d", binding.HostPort)
					}
					fmt.Fprintf(w, "%s\t%d/%s\t%s\n", binding.Service, binding.HostPort, binding.Protocol, url)
				}
			}
			return w.Flush()
		},
	}
}
