package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/devctl/internal/catalog"
	"github.com/example/devctl/internal/config"
	"github.com/example/devctl/internal/runtime"
)

func newContainerCommand(opts *config.Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "container",
		Short: "Operate on running containers by type or role",
		Long: "Container subcommands address containers through service labels.\n" +
			"Pick a target with --type (e.g. database) or --role (e.g. web);\n" +
			"when several match, the one declaring the primary role wins.\n" +
			"--container bypasses discovery and names a container directly.",
	}
	cmd.AddCommand(
		newContainerExecCommand(opts),
		newContainerLogsCommand(opts),
		newContainerRestartCommand(opts),
		newContainerStopCommand(opts),
	)
	return cmd
}

// selector holds the shared --type/--role/--container target flags.
type selector struct {
	svcType   string
	role      string
	container string
}

func (s *selector) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&s.svcType, "type", "", "Target the primary container of this service type")
	cmd.Flags().StringVar(&s.role, "role", "", "Target the first container declaring this role")
	cmd.Flags().StringVar(&s.container, "container", "", "Target a container by its literal name, bypassing discovery")
}

// resolve picks one running container for the selector. Exactly one of
// --type, --role, and --container must be set; no running match is an error
// here because every caller is about to act on the container.
func (s *selector) resolve(cmd *cobra.Command, env *appEnv) (runtime.Container, error) {
	set := 0
	for _, v := range []string{s.svcType, s.role, s.container} {
		if v != "" {
			set++
		}
	}
	if set > 1 {
		return runtime.Container{}, fmt.Errorf("--type, --role, and --container are mutually exclusive")
	}
	switch {
	case s.container != "":
		return runtime.Container{Name: s.container}, nil
	case s.svcType != "":
		t, err := catalog.ParseServiceType(s.svcType)
		if err != nil {
			return runtime.Container{}, err
		}
		c, ok, err := env.engine.Primary(cmd.Context(), t)
		if err != nil {
			return runtime.Container{}, err
		}
		if !ok {
			return runtime.Container{}, fmt.Errorf("no running container of type %q", t)
		}
		return c, nil
	case s.role != "":
		matches, err := env.engine.RunningByRole(cmd.Context(), s.role)
		if err != nil {
			return runtime.Container{}, err
		}
		if len(matches) == 0 {
			return runtime.Container{}, fmt.Errorf("no running container with role %q", s.role)
		}
		return matches[0], nil
	default:
		return runtime.Container{}, fmt.Errorf("pass --type, --role, or --container to pick a container")
	}
}

func newContainerExecCommand(opts *config.Options) *cobra.Command {
	var sel selector
	var interactive bool
	cmd := &cobra.Command{
		Use:   "exec -- COMMAND [ARG...]",
		Short: "Run a command inside a selected container",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := newAppEnv(opts)
			if err != nil {
				return err
			}
			c, err := sel.resolve(cmd, env)
			if err != nil {
				return err
			}
			return env.docker.Exec(cmd.Context(), c.Name, args, interactive)
		},
	}
	sel.bind(cmd)
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", true, "Allocate a TTY and keep stdin open")
	return cmd
}

func newContainerLogsCommand(opts *config.Options) *cobra.Command {
	var sel selector
	var follow bool
	var tail string
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Stream logs from a selected container",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := newAppEnv(opts)
			if err != nil {
				return err
			}
			c, err := sel.resolve(cmd, env)
			if err != nil {
				return err
			}
			return env.docker.ContainerLogs(cmd.Context(), c.Name, follow, tail)
		},
	}
	sel.bind(cmd)
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Follow log output")
	cmd.Flags().StringVar(&tail, "tail", "", "Number of lines to show from the end of the logs")
	return cmd
}

func newContainerRestartCommand(opts *config.Options) *cobra.Command {
	var sel selector
	cmd := &cobra.Command{
		Use:   "restart",
		Short: "Restart a selected container",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := newAppEnv(opts)
			if err != nil {
				return err
			}
			c, err := sel.resolve(cmd, env)
			if err != nil {
				return err
			}
			if err := env.docker.RestartContainer(cmd.Context(), c.Name); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Restarted %s.\n", c.Name)
			return nil
		},
	}
	sel.bind(cmd)
	return cmd
}

func newContainerStopCommand(opts *config.Options) *cobra.Command {
	var sel selector
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop a selected container",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := newAppEnv(opts)
			if err != nil {
				return err
			}
			c, err := sel.resolve(cmd, env)
			if err != nil {
				return err
			}
			if err := env.docker.StopContainer(cmd.Context(), c.Name); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stopped %s.\n", c.Name)
			return nil
		},
	}
	sel.bind(cmd)
	return cmd
}
