// Package discovery locates running containers by the service identity
// labels their manifests declare. Selection is driven entirely by labels so
// container names never leak into calling code.
package discovery

import (
	"context"
	"fmt"
	"sort"

	"github.com/example/devctl/internal/catalog"
	"github.com/example/devctl/internal/runtime"
)

// ContainerLister is the slice of the docker client discovery needs.
type ContainerLister interface {
	Ps(ctx context.Context, labelFilters ...string) ([]runtime.Container, error)
}

// Engine answers "which running container plays this part" questions.
// Results are memoized for the lifetime of the engine, which is scoped to a
// single command invocation.
type Engine struct {
	namespace string
	docker    ContainerLister

	byType map[catalog.ServiceType][]runtime.Container
	byRole map[string][]runtime.Container
}

// New returns an engine querying through docker using the given label
// namespace.
func New(namespace string, docker ContainerLister) *Engine {
	return &Engine{
		namespace: namespace,
		docker:    docker,
		byType:    make(map[catalog.ServiceType][]runtime.Container),
		byRole:    make(map[string][]runtime.Container),
	}
}

// RunningByType returns the running containers of the given service type,
// sorted by name. No matches is an empty slice, not an error.
func (e *Engine) RunningByType(ctx context.Context, t catalog.ServiceType) ([]runtime.Container, error) {
	if cached, ok := e.byType[t]; ok {
		return cached, nil
	}
	containers, err := e.docker.Ps(ctx, fmt.Sprintf("%s.type=%s", e.namespace, t))
	if err != nil {
		return nil, fmt.Errorf("discovering %s containers: %w", t, err)
	}
	sortByName(containers)
	e.byType[t] = containers
	return containers, nil
}

// RunningByRole returns the running containers declaring the given role,
// sorted by name. Docker narrows to containers carrying the roles label;
// membership in the comma-separated value is checked here.
func (e *Engine) RunningByRole(ctx context.Context, role string) ([]runtime.Container, error) {
	if cached, ok := e.byRole[role]; ok {
		return cached, nil
	}
	candidates, err := e.docker.Ps(ctx, e.namespace+".roles")
	if err != nil {
		return nil, fmt.Errorf("discovering %s containers: %w", role, err)
	}
	var matched []runtime.Container
	for _, c := range candidates {
		roles := catalog.ParseRoles(c.Labels[e.namespace+".roles"])
		if roles.Has(role) {
			matched = append(matched, c)
		}
	}
	sortByName(matched)
	e.byRole[role] = matched
	return matched, nil
}

// Primary picks the preferred container of a type: a container declaring the
// "primary" role wins, otherwise the first by name. The boolean reports
// whether any container of the type is running.
func (e *Engine) Primary(ctx context.Context, t catalog.ServiceType) (runtime.Container, bool, error) {
	containers, err := e.RunningByType(ctx, t)
	if err != nil {
		return runtime.Container{}, false, err
	}
	if len(containers) == 0 {
		return runtime.Container{}, false, nil
	}
	for _, c := range containers {
		roles := catalog.ParseRoles(c.Labels[e.namespace+".roles"])
		if roles.Has("primary") {
			return c, true, nil
		}
	}
	return containers[0], true, nil
}

// Managed returns every running container carrying the namespace type label,
// whatever its type. Used for status reporting and state rediscovery.
func (e *Engine) Managed(ctx context.Context) ([]runtime.Container, error) {
	containers, err := e.docker.Ps(ctx, e.namespace+".type")
	if err != nil {
		return nil, fmt.Errorf("discovering managed containers: %w", err)
	}
	sortByName(containers)
	return containers, nil
}

func sortByName(containers []runtime.Container) {
	sort.Slice(containers, func(i, j int) bool {
		return containers[i].Name < containers[j].Name
	})
}
