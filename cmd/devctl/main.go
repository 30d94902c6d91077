// main.go bootstraps devctl: it builds the root Cobra command, wires viper
// environment binding, and executes with a signal-aware context.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/example/devctl/internal/config"
	"github.com/example/devctl/internal/orchestrator"
	"github.com/example/devctl/internal/stacks"
	"github.com/example/devctl/internal/state"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rootCmd := newRootCommand()
	err := rootCmd.ExecuteContext(ctx)
	handleError(err)
	if err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := config.NewOptions()
	cmd := &cobra.Command{
		Use:           "devctl",
		Short:         "Label-driven orchestrator for local development stacks",
		Long: "devctl starts, stops, and inspects docker-compose service stacks.\n" +
			"Services identify themselves through manifest labels, so commands\n" +
			"address roles and types instead of container names.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	opts.BindFlags(cmd.PersistentFlags())

	stackCmd := newStackCommand(opts)
	containerCmd := newContainerCommand(opts)
	branchCmd := newBranchCommand(opts)
	statusCmd := newStatusCommand(opts)
	listCmd := newListCommand(opts)
	urlsCmd := newURLsCommand(opts)
	stateCmd := newStateCommand(opts)
	cmd.AddCommand(stackCmd, containerCmd, branchCmd, statusCmd, listCmd, urlsCmd, stateCmd, newVersionCommand())

	cmd.Example = `  # Start the full stack, replacing whatever is active
  devctl stack up full --override

  # Show what is running
  devctl status

  # Open a shell in the primary database container
  devctl container exec --type database -- sh`

	bindViper(append([]*cobra.Command{cmd, stackCmd, containerCmd, branchCmd, statusCmd, listCmd, urlsCmd, stateCmd},
		collectLeaves(stackCmd, containerCmd, branchCmd, stateCmd)...)...)
	return cmd
}

func collectLeaves(parents ...*cobra.Command) []*cobra.Command {
	var leaves []*cobra.Command
	for _, parent := range parents {
		leaves = append(leaves, parent.Commands()...)
	}
	return leaves
}

func bindViper(commands ...*cobra.Command) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.SetEnvPrefix("DEVCTL")
	v.AutomaticEnv()
	configFile := os.Getenv("DEVCTL_CONFIG")
	configureConfigFile(v, configFile)

	cobra.OnInitialize(func() {
		for _, cmd := range commands {
			if err := v.BindPFlags(cmd.Flags()); err != nil {
				cobra.CheckErr(err)
			}
			if err := v.BindPFlags(cmd.PersistentFlags()); err != nil {
				cobra.CheckErr(err)
			}
		}
		if err := readConfigFile(v, configFile != ""); err != nil {
			cobra.CheckErr(err)
		}
		for _, cmd := range commands {
			for _, fs := range []*pflag.FlagSet{cmd.Flags(), cmd.PersistentFlags()} {
				fs.VisitAll(func(f *pflag.Flag) {
					if f.Changed || !v.IsSet(f.Name) {
						return
					}
					if val := fmt.Sprintf("%v", v.Get(f.Name)); val != "" {
						_ = f.Value.Set(val)
					}
				})
			}
		}
	})
}

func configureConfigFile(v *viper.Viper, explicitPath string) {
	if explicitPath != "" {
		v.SetConfigFile(explicitPath)
		return
	}
	v.SetConfigName("config")
	for _, dir := range configSearchDirs() {
		v.AddConfigPath(dir)
	}
}

func readConfigFile(v *viper.Viper, strict bool) error {
	if err := v.ReadInConfig(); err != nil {
		var cfgErr viper.ConfigFileNotFoundError
		if errors.As(err, &cfgErr) && !strict {
			return nil
		}
		return err
	}
	return nil
}

func configSearchDirs() []string {
	added := make(map[string]struct{})
	var dirs []string
	add := func(path string) {
		if path == "" {
			return
		}
		if _, ok := added[path]; ok {
			return
		}
		added[path] = struct{}{}
		dirs = append(dirs, path)
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		add(filepath.Join(xdg, "devctl"))
	}
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		add(filepath.Join(home, ".config", "devctl"))
		add(filepath.Join(home, ".devctl"))
	}
	return dirs
}

func handleError(err error) {
	if err == nil || errors.Is(err, pflag.ErrHelp) {
		return
	}
	message := err.Error()

	var alreadyActive *state.AlreadyActiveError
	var unknownStack *stacks.UnknownStackError
	var resolveErr *stacks.ResolveError
	var conflictErr *orchestrator.ConflictError
	var degradedErr *orchestrator.DegradedError
	switch {
	case errors.As(err, &alreadyActive):
		message = fmt.Sprintf("%s\nHint: run 'devctl stack down' first, or pass --override to replace it.", err)
	case errors.As(err, &unknownStack):
		message = fmt.Sprintf("%s\nHint: run 'devctl list' to see the defined stacks.", err)
	case errors.As(err, &resolveErr):
		message = fmt.Sprintf("%s\nHint: every listed file must exist before the stack can start.", err)
	case errors.As(err, &conflictErr):
		message = fmt.Sprintf("%s\nHint: stop the stack holding these ports or change the published port in its manifest.", err)
	case errors.As(err, &degradedErr):
		message = fmt.Sprintf("%s\nHint: run 'devctl stack down' to clean up any partially started containers.", err)
	}
	fmt.Fprintf(os.Stderr, "Error: %s\n", message)
}
