// Package orchestrator coordinates the stack lifecycle: resolve, check
// ports, drive compose, and keep the state record honest. Commands talk to
// this facade instead of wiring the lower packages together themselves.
package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/example/devctl/internal/catalog"
	"github.com/example/devctl/internal/ports"
	"github.com/example/devctl/internal/runtime"
	"github.com/example/devctl/internal/stacks"
	"github.com/example/devctl/internal/state"
)

// ComposeRunner is the slice of the docker client the orchestrator drives.
type ComposeRunner interface {
	ComposeUp(ctx context.Context, opts runtime.ComposeOptions) error
	ComposeDown(ctx context.Context, opts runtime.ComposeOptions) error
	ComposeRestart(ctx context.Context, opts runtime.ComposeOptions) error
	Ps(ctx context.Context, labelFilters ...string) ([]runtime.Container, error)
}

// Orchestrator owns the stack lifecycle for one project.
type Orchestrator struct {
	cat       *catalog.Catalog
	resolver  *stacks.Resolver
	store     *state.Store
	docker    ComposeRunner
	logger    *zap.Logger
	namespace string
	project   string
}

// New wires an orchestrator from its collaborators.
func New(cat *catalog.Catalog, resolver *stacks.Resolver, store *state.Store, docker ComposeRunner, logger *zap.Logger, namespace, project string) *Orchestrator {
	return &Orchestrator{
		cat:       cat,
		resolver:  resolver,
		store:     store,
		docker:    docker,
		logger:    logger,
		namespace: namespace,
		project:   project,
	}
}

// ConflictError reports host port collisions that block a start.
type ConflictError struct {
	Stack     string
	Conflicts []ports.Conflict
}

func (e *ConflictError) Error() string {
	lines := make([]string, len(e.Conflicts))
	for i, c := range e.Conflicts {
		lines[i] = c.String()
	}
	return fmt.Sprintf("stack %q has port conflicts: %s", e.Stack, strings.Join(lines, "; "))
}

// DegradedError reports a compose up that failed after validation passed.
// No state is recorded for a degraded start; part of the stack may be
// running and needs an explicit down.
type DegradedError struct {
	Stack string
	Cause error
}

func (e *DegradedError) Error() string {
	return fmt.Sprintf("stack %q failed to start and may be partially running: %v", e.Stack, e.Cause)
}

func (e *DegradedError) Unwrap() error { return e.Cause }

// UpOptions control a stack start.
type UpOptions struct {
	Build    bool
	Attach   bool
	Override bool
}

// UpResult reports a completed start. Missing lists components that have no
// running container despite compose reporting success.
type UpResult struct {
	Stack   string
	Record  *state.Record
	Missing []string
}

// Up starts the named stack. An unresolvable stack or a port conflict never
// starts anything. Replacing an active stack sequences stop, then port
// check, then start.
func (o *Orchestrator) Up(ctx context.Context, stackID string, opts UpOptions) (*UpResult, error) {
	resolved, err := o.resolver.Resolve(stackID)
	if err != nil {
		return nil, err
	}

	current, err := o.store.Read()
	if err != nil {
		return nil, err
	}
	if current != nil && current.Stack != stackID && !opts.Override {
		return nil, &state.AlreadyActiveError{Current: current}
	}

	// An overridden stack stops before the port check runs, so its claims
	// never collide with the stack replacing it. Only a stack that will
	// stay active feeds the cross check.
	if current != nil && current.Stack != stackID {
		o.logger.Info("stopping active stack before override",
			zap.String("stack", current.Stack))
		if err := o.docker.ComposeDown(ctx, runtime.ComposeOptions{
			ProjectName: o.project,
			Manifests:   current.ManifestPaths,
		}); err != nil {
			return nil, fmt.Errorf("stopping stack %q: %w", current.Stack, err)
		}
		if err := o.store.Clear(); err != nil {
			return nil, err
		}
		current = nil
	}

	var activeStack string
	var activeManifests []string
	if current != nil {
		activeStack = current.Stack
		activeManifests = current.ManifestPaths
	}
	conflicts, err := ports.Check(ctx, resolved, o.project, activeStack, activeManifests)
	if err != nil {
		return nil, err
	}
	if len(conflicts) > 0 {
		return nil, &ConflictError{Stack: stackID, Conflicts: conflicts}
	}

	o.logger.Info("starting stack",
		zap.String("stack", stackID),
		zap.Int("components", len(resolved.Components)))
	if err := o.docker.ComposeUp(ctx, runtime.ComposeOptions{
		ProjectName: o.project,
		Manifests:   resolved.ManifestPaths,
		Build:       opts.Build,
		Detach:      !opts.Attach,
	}); err != nil {
		return nil, &DegradedError{Stack: stackID, Cause: err}
	}

	containers, missing, err := o.observeComponents(ctx, resolved)
	if err != nil {
		return nil, err
	}

	rec := &state.Record{
		Stack:         stackID,
		StartedAt:     time.Now().UTC(),
		ManifestPaths: append([]string(nil), resolved.ManifestPaths...),
		Containers:    containers,
		Explicit:      true,
	}
	if err := o.store.Write(rec, true); err != nil {
		return nil, err
	}
	return &UpResult{Stack: stackID, Record: rec, Missing: missing}, nil
}

// observeComponents maps each resolved component to its running container
// and names the components that never came up.
func (o *Orchestrator) observeComponents(ctx context.Context, resolved *stacks.ResolvedStack) (map[string]string, []string, error) {
	running, err := o.docker.Ps(ctx, o.namespace+".type")
	if err != nil {
		return nil, nil, err
	}
	byService := make(map[string]runtime.Container)
	for _, c := range running {
		if svc := c.Labels["com.docker.compose.service"]; svc != "" {
			byService[svc] = c
		}
	}

	containers := make(map[string]string)
	var missing []string
	for _, comp := range resolved.Components {
		if c, ok := byService[comp.Name]; ok {
			containers[comp.Name] = c.Name
		} else {
			missing = append(missing, comp.Name)
		}
	}
	sort.Strings(missing)
	return containers, missing, nil
}

// Down stops the active stack. With no record it falls back to label
// rediscovery, so containers started outside devctl still stop cleanly.
// The returned record is nil when there was nothing to stop.
func (o *Orchestrator) Down(ctx context.Context) (*state.Record, error) {
	rec, err := o.store.Read()
	if err != nil {
		return nil, err
	}
	if rec == nil {
		rec, err = o.Rediscover(ctx)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			return nil, nil
		}
	}

	if err := o.docker.ComposeDown(ctx, runtime.ComposeOptions{
		ProjectName: o.project,
		Manifests:   rec.ManifestPaths,
	}); err != nil {
		return rec, fmt.Errorf("stopping stack %q: %w", rec.Stack, err)
	}
	if err := o.store.Clear(); err != nil {
		return rec, err
	}
	return rec, nil
}

// Restart restarts the active stack's services in place.
func (o *Orchestrator) Restart(ctx context.Context, services ...string) (*state.Record, error) {
	rec, err := o.store.Read()
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, nil
	}
	if err := o.docker.ComposeRestart(ctx, runtime.ComposeOptions{
		ProjectName: o.project,
		Manifests:   rec.ManifestPaths,
		Services:    services,
	}); err != nil {
		return rec, fmt.Errorf("restarting stack %q: %w", rec.Stack, err)
	}
	return rec, nil
}

// Status describes the active stack and its live containers.
type Status struct {
	Record     *state.Record
	Containers []runtime.Container
	Stale      []string
}

// Status reports the active stack alongside what is actually running.
// An empty environment is a valid status, not an error. Stale lists
// recorded components with no live container.
func (o *Orchestrator) Status(ctx context.Context) (*Status, error) {
	rec, err := o.store.Read()
	if err != nil {
		return nil, err
	}
	containers, err := o.docker.Ps(ctx, o.namespace+".type")
	if err != nil {
		return nil, err
	}

	st := &Status{Record: rec, Containers: containers}
	if rec != nil {
		live := make(map[string]bool)
		for _, c := range containers {
			live[c.Labels["com.docker.compose.service"]] = true
		}
		for comp := range rec.Containers {
			if !live[comp] {
				st.Stale = append(st.Stale, comp)
			}
		}
		sort.Strings(st.Stale)
	}
	return st, nil
}

// Rediscover reconstructs a state record from running containers after the
// state file was lost. Among defined stacks whose services are all running,
// the one with the most services wins; the rebuilt record is marked as not
// explicitly started. Nothing running, or no complete match, yields nil.
func (o *Orchestrator) Rediscover(ctx context.Context) (*state.Record, error) {
	running, err := o.docker.Ps(ctx, o.namespace+".type")
	if err != nil {
		return nil, err
	}
	if len(running) == 0 {
		return nil, nil
	}

	byService := make(map[string]runtime.Container)
	for _, c := range running {
		if svc := c.Labels["com.docker.compose.service"]; svc != "" {
			byService[svc] = c
		}
	}

	var best *stacks.ResolvedStack
	for _, id := range o.resolver.Available() {
		resolved, err := o.resolver.Resolve(id)
		if err != nil {
			continue
		}
		complete := true
		for _, comp := range resolved.Components {
			if _, ok := byService[comp.Name]; !ok {
				complete = false
				break
			}
		}
		if !complete {
			continue
		}
		if best == nil || len(resolved.Components) > len(best.Components) {
			best = resolved
		}
	}
	if best == nil {
		return nil, nil
	}

	containers := make(map[string]string)
	for _, comp := range best.Components {
		containers[comp.Name] = byService[comp.Name].Name
	}
	rec := &state.Record{
		Stack:         best.Definition.ID,
		StartedAt:     time.Now().UTC(),
		ManifestPaths: append([]string(nil), best.ManifestPaths...),
		Containers:    containers,
		Explicit:      false,
	}
	o.logger.Info("rediscovered active stack",
		zap.String("stack", rec.Stack),
		zap.Int("containers", len(containers)))
	return rec, nil
}

// Clean removes the state record and, unless told otherwise, rebuilds it
// from whatever is actually running.
func (o *Orchestrator) Clean(ctx context.Context, rediscover bool) (*state.Record, error) {
	if err := o.store.Clear(); err != nil {
		return nil, err
	}
	if !rediscover {
		return nil, nil
	}
	rec, err := o.Rediscover(ctx)
	if err != nil || rec == nil {
		return nil, err
	}
	if err := o.store.Write(rec, true); err != nil {
		return nil, err
	}
	return rec, nil
}
