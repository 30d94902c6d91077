// Package ports detects host port collisions before any container starts.
// Detection is purely static: it reads the published ports out of the
// manifests themselves, so a stack that would collide is rejected without
// touching the container runtime.
package ports

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/example/devctl/internal/manifest"
	"github.com/example/devctl/internal/stacks"
)

// Conflict is one host port claimed by more than one owner. Owners are
// sorted, so the same collision always renders the same way regardless of
// which side was inspected first.
type Conflict struct {
	Port     int
	Protocol string
	Owners   []string
}

func (c Conflict) String() string {
	return fmt.Sprintf("port %d/%s claimed by %v", c.Port, c.Protocol, c.Owners)
}

type claim struct {
	port     int
	protocol string
	owner    string
}

// Check inspects the candidate stack's manifests for port collisions, both
// within the stack and against the currently active stack. Manifests of the
// active stack are re-read rather than trusted from recorded state. When the
// active stack is the candidate itself (a restart) the cross check is
// skipped, since a stack never conflicts with its own replacement.
func Check(ctx context.Context, candidate *stacks.ResolvedStack, projectName, activeStack string, activeManifests []string) ([]Conflict, error) {
	var (
		mu     sync.Mutex
		claims []claim
	)
	group, ctx := errgroup.WithContext(ctx)

	collect := func(path, ownerPrefix string) {
		group.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			project, err := manifest.Load(path, projectName)
			if err != nil {
				return fmt.Errorf("inspecting ports of %s: %w", path, err)
			}
			mu.Lock()
			defer mu.Unlock()
			for _, binding := range manifest.PublishedPorts(project) {
				claims = append(claims, claim{
					port:     binding.HostPort,
					protocol: binding.Protocol,
					owner:    ownerPrefix + binding.Service,
				})
			}
			return nil
		})
	}

	for _, path := range candidate.ManifestPaths {
		collect(path, "")
	}
	if activeStack != "" && activeStack != candidate.Definition.ID {
		for _, path := range activeManifests {
			collect(path, activeStack+":")
		}
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	byKey := make(map[string]map[string]struct{})
	for _, c := range claims {
		key := fmt.Sprintf("%d/%s", c.port, c.protocol)
		if byKey[key] == nil {
			byKey[key] = make(map[string]struct{})
		}
		byKey[key][c.owner] = struct{}{}
	}

	var conflicts []Conflict
	for _, c := range claims {
		key := fmt.Sprintf("%d/%s", c.port, c.protocol)
		owners := byKey[key]
		if owners == nil || len(owners) < 2 {
			continue
		}
		delete(byKey, key)
		names := make([]string, 0, len(owners))
		for owner := range owners {
			names = append(names, owner)
		}
		sort.Strings(names)
		conflicts = append(conflicts, Conflict{Port: c.port, Protocol: c.protocol, Owners: names})
	}
	sort.Slice(conflicts, func(i, j int) bool {
		if conflicts[i].Port != conflicts[j].Port {
			return conflicts[i].Port < conflicts[j].Port
		}
		return conflicts[i].Protocol < conflicts[j].Protocol
	})
	return conflicts, nil
}
