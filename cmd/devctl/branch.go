package main

import (
	"fmt"
	"os/exec"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/example/devctl/internal/config"
	"github.com/example/devctl/internal/orchestrator"
)

func newBranchCommand(opts *config.Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "branch",
		Short: "Map git branches to stacks via branches.yml",
	}
	cmd.AddCommand(
		newBranchSwitchCommand(opts),
		newBranchListCommand(opts),
		newBranchShowCommand(opts),
	)
	return cmd
}

func newBranchSwitchCommand(opts *config.Options) *cobra.Command {
	var dryRun, noSetup bool
	cmd := &cobra.Command{
		Use:   "switch [BRANCH]",
		Short: "Bring up the stack mapped to a branch",
		Long: "Looks the branch up in branches.yml and starts its stack, replacing\n" +
			"the active one. Without an argument the current git branch is used.\n" +
			"Switching to the branch of the already-active stack does nothing.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := newAppEnv(opts)
			if err != nil {
				return err
			}
			branch := ""
			if len(args) == 1 {
				branch = args[0]
			} else {
				branch, err = currentGitBranch(cmd, opts.ProjectRoot)
				if err != nil {
					return err
				}
			}
			reg, err := env.branchRegistry()
			if err != nil {
				return err
			}
			result, err := env.orch.SwitchBranch(cmd.Context(), reg, branch, opts.ProjectRoot, orchestrator.SwitchOptions{
				DryRun:  dryRun,
				NoSetup: noSetup,
			})
			if err != nil {
				return err
			}
			if result == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "No stack mapping for branch %q; environment unchanged.\n", branch)
				return nil
			}
			if !result.Switched {
				fmt.Fprintf(cmd.OutOrStdout(), "Stack %q already active for branch %q.\n", result.Stack, branch)
				return nil
			}
			if result.DryRun {
				fmt.Fprintf(cmd.OutOrStdout(), "Would switch to stack %q (matched %q).\n", result.Stack, result.Pattern)
				return nil
			}
			green := color.New(color.FgGreen)
			green.Fprintf(cmd.OutOrStdout(), "Switched to stack %q (matched %q).\n", result.Stack, result.Pattern)
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show what would change without starting anything")
	cmd.Flags().BoolVar(&noSetup, "no-setup", false, "Skip the rule's setup commands after the switch")
	return cmd
}

func currentGitBranch(cmd *cobra.Command, dir string) (string, error) {
	git := exec.CommandContext(cmd.Context(), "git", "rev-parse", "--abbrev-ref", "HEAD")
	git.Dir = dir
	out, err := git.Output()
	if err != nil {
		return "", fmt.Errorf("detecting current git branch: %w", err)
	}
	branch := strings.TrimSpace(string(out))
	if branch == "" || branch == "HEAD" {
		return "", fmt.Errorf("not on a branch; pass the branch name explicitly")
	}
	return branch, nil
}

func newBranchListCommand(opts *config.Options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List branch patterns and their stacks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := newAppEnv(opts)
			if err != nil {
				return err
			}
			reg, err := env.branchRegistry()
			if err != nil {
				return err
			}
			patterns := reg.Patterns()
			if len(patterns) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No branch mappings defined.")
				return nil
			}
			for _, pattern := range patterns {
				rule, _ := reg.Rule(pattern)
				fmt.Fprintf(cmd.OutOrStdout(), "%-30s -> %s\n", pattern, rule.Stack)
			}
			return nil
		},
	}
}

func newBranchShowCommand(opts *config.Options) *cobra.Command {
	return &cobra.Command{
		Use:   "show BRANCH",
		Short: "Show which rule a branch would match",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := newAppEnv(opts)
			if err != nil {
				return err
			}
			reg, err := env.branchRegistry()
			if err != nil {
				return err
			}
			rule, pattern, ok := reg.Match(args[0])
			if !ok {
				fmt.Fprintf(cmd.OutOrStdout(), "Branch %q matches no rule.\n", args[0])
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Branch:  %s\nPattern: %s\nStack:   %s\n", args[0], pattern, rule.Stack)
			for _, setup := range rule.SetupCommands {
				fmt.Fprintf(cmd.OutOrStdout(), "Setup:   %s\n", setup)
			}
			return nil
		},
	}
}
