package orchestrator

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/example/devctl/internal/branches"
	"github.com/example/devctl/internal/runtime"
)

// SwitchOptions control a branch switch.
type SwitchOptions struct {
	// DryRun reports what would happen without running anything.
	DryRun bool
	// NoSetup skips the rule's setup commands after the stack comes up.
	NoSetup bool
}

// SwitchResult reports what a branch switch did.
type SwitchResult struct {
	Branch  string
	Pattern string
	Stack   string
	// Switched is false when the matched stack was already active, in
	// which case nothing ran.
	Switched bool
	DryRun   bool
	Up       *UpResult
}

// SwitchBranch brings the environment in line with a branch. The registry
// decides which stack the branch wants; if that stack is already active the
// call is a no-op, otherwise the active stack is replaced and the rule's
// setup commands run in workdir. A branch with no matching rule returns
// (nil, nil) and leaves everything untouched.
func (o *Orchestrator) SwitchBranch(ctx context.Context, reg *branches.Registry, branch, workdir string, opts SwitchOptions) (*SwitchResult, error) {
	rule, pattern, ok := reg.Match(branch)
	if !ok {
		return nil, nil
	}
	result := &SwitchResult{Branch: branch, Pattern: pattern, Stack: rule.Stack, DryRun: opts.DryRun}

	current, err := o.store.Read()
	if err != nil {
		return nil, err
	}
	if current != nil && current.Stack == rule.Stack {
		o.logger.Info("branch stack already active",
			zap.String("branch", branch), zap.String("stack", rule.Stack))
		return result, nil
	}
	if opts.DryRun {
		result.Switched = true
		return result, nil
	}

	up, err := o.Up(ctx, rule.Stack, UpOptions{Override: true})
	if err != nil {
		return nil, err
	}
	result.Switched = true
	result.Up = up

	if opts.NoSetup {
		return result, nil
	}
	commands, err := rule.Commands()
	if err != nil {
		return nil, err
	}
	for _, argv := range commands {
		o.logger.Info("running setup command", zap.Strings("argv", argv))
		if err := runtime.RunShell(ctx, workdir, argv); err != nil {
			return result, fmt.Errorf("setup command failed: %w", err)
		}
	}
	return result, nil
}
