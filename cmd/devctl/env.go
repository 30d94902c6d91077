package main

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/example/devctl/internal/branches"
	"github.com/example/devctl/internal/catalog"
	"github.com/example/devctl/internal/config"
	"github.com/example/devctl/internal/discovery"
	"github.com/example/devctl/internal/logging"
	"github.com/example/devctl/internal/orchestrator"
	"github.com/example/devctl/internal/runtime"
	"github.com/example/devctl/internal/stacks"
	"github.com/example/devctl/internal/state"
)

// appEnv is everything a command needs, wired once per invocation. Catalog
// and discovery results live only as long as the env, so nothing observed
// about the environment outlives the command that observed it.
type appEnv struct {
	opts     *config.Options
	logger   *zap.Logger
	docker   *runtime.Client
	catalog  *catalog.Catalog
	resolver *stacks.Resolver
	store    *state.Store
	engine   *discovery.Engine
	orch     *orchestrator.Orchestrator
}

func newAppEnv(opts *config.Options) (*appEnv, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	level := opts.LogLevel
	if opts.Verbose {
		level = "debug"
	}
	logger, err := logging.New(level)
	if err != nil {
		return nil, err
	}

	docker := runtime.New(logger)
	cat, err := catalog.Load(opts.ServicesDir(), opts.LabelNamespace, opts.ProjectName)
	if err != nil {
		return nil, err
	}
	for _, issue := range cat.Issues() {
		logger.Warn("skipped service manifest",
			zap.String("path", issue.Path), zap.String("reason", issue.Reason))
	}
	resolver, err := stacks.NewResolver(opts.StacksDir(), cat, opts.AuxDir())
	if err != nil {
		return nil, err
	}
	store := state.NewStore(opts.StateFile())

	return &appEnv{
		opts:     opts,
		logger:   logger,
		docker:   docker,
		catalog:  cat,
		resolver: resolver,
		store:    store,
		engine:   discovery.New(opts.LabelNamespace, docker),
		orch: orchestrator.New(cat, resolver, store, docker, logger,
			opts.LabelNamespace, opts.ProjectName),
	}, nil
}

func (e *appEnv) branchRegistry() (*branches.Registry, error) {
	reg, err := branches.Load(e.opts.BranchRegistryFile())
	if err != nil {
		return nil, fmt.Errorf("loading branch registry: %w", err)
	}
	return reg, nil
}
