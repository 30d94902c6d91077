// Package stacks loads stack definitions and resolves them against the
// service catalog. Resolution is exhaustive: every missing file and unknown
// service in a stack is reported in one pass rather than failing on the
// first problem found.
package stacks

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/example/devctl/internal/catalog"
)

// Definition is one stack as declared by its YAML file under the stacks
// directory.
type Definition struct {
	ID          string   `yaml:"id"`
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	AccessURL   string   `yaml:"access_url"`
	Services    []string `yaml:"services"`
}

// auxRequirements lists extra configuration files a component type needs
// beyond its own manifest, relative to the aux directory.
var auxRequirements = map[catalog.ServiceType][]string{
	catalog.TypeMonitoring: {"monitoring/prometheus.yml"},
	catalog.TypeProxy:      {"proxy/Caddyfile"},
}

// ResolvedStack is a stack whose every component and prerequisite file has
// been verified to exist. ManifestPaths are ordered as the definition lists
// its services.
type ResolvedStack struct {
	Definition    Definition
	Components    []*catalog.ServiceDescriptor
	ManifestPaths []string
}

// UnknownStackError reports a stack name with no definition.
type UnknownStackError struct {
	Requested string
	Available []string
}

func (e *UnknownStackError) Error() string {
	return fmt.Sprintf("unknown stack %q (available: %s)",
		e.Requested, strings.Join(e.Available, ", "))
}

// ResolveError reports every problem found while resolving a stack.
type ResolveError struct {
	Stack            string
	UnknownServices  []string
	MissingManifests []string
	MissingAux       []string
}

func (e *ResolveError) Error() string {
	var parts []string
	if len(e.UnknownServices) > 0 {
		parts = append(parts, "unknown services: "+strings.Join(e.UnknownServices, ", "))
	}
	if len(e.MissingManifests) > 0 {
		parts = append(parts, "missing manifests: "+strings.Join(e.MissingManifests, ", "))
	}
	if len(e.MissingAux) > 0 {
		parts = append(parts, "missing config files: "+strings.Join(e.MissingAux, ", "))
	}
	return fmt.Sprintf("stack %q cannot be resolved: %s", e.Stack, strings.Join(parts, "; "))
}

// Resolver validates stack definitions against the catalog and filesystem.
type Resolver struct {
	definitions map[string]Definition
	cat         *catalog.Catalog
	auxDir      string
}

// NewResolver loads every stack definition under dir. Definition files that
// fail to parse abort loading; unlike service fragments there is no partial
// mode for the stack list itself.
func NewResolver(dir string, cat *catalog.Catalog, auxDir string) (*Resolver, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading stacks directory %s: %w", dir, err)
	}

	defs := make(map[string]Definition)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yml" && ext != ".yaml" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading stack definition %s: %w", path, err)
		}
		var def Definition
		if err := yaml.Unmarshal(raw, &def); err != nil {
			return nil, fmt.Errorf("parsing stack definition %s: %w", path, err)
		}
		if def.ID == "" {
			def.ID = strings.TrimSuffix(entry.Name(), ext)
		}
		if _, dup := defs[def.ID]; dup {
			return nil, fmt.Errorf("stack %q declared twice", def.ID)
		}
		defs[def.ID] = def
	}
	return &Resolver{definitions: defs, cat: cat, auxDir: auxDir}, nil
}

// Available returns the known stack IDs sorted.
func (r *Resolver) Available() []string {
	ids := make([]string, 0, len(r.definitions))
	for id := range r.definitions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Definition returns the raw definition for a stack ID.
func (r *Resolver) Definition(id string) (Definition, bool) {
	def, ok := r.definitions[id]
	return def, ok
}

// Resolve validates the named stack. A *UnknownStackError is returned for
// names with no definition; a *ResolveError collects every missing piece of
// a known stack.
func (r *Resolver) Resolve(id string) (*ResolvedStack, error) {
	def, ok := r.definitions[id]
	if !ok {
		return nil, &UnknownStackError{Requested: id, Available: r.Available()}
	}
	if len(def.Services) == 0 {
		return nil, fmt.Errorf("stack %q declares no services", id)
	}

	resolveErr := &ResolveError{Stack: id}
	resolved := &ResolvedStack{Definition: def}
	seenAux := make(map[string]bool)

	for _, name := range def.Services {
		svc, ok := r.cat.Get(name)
		if !ok {
			resolveErr.UnknownServices = append(resolveErr.UnknownServices, name)
			continue
		}
		if _, err := os.Stat(svc.ManifestPath); err != nil {
			resolveErr.MissingManifests = append(resolveErr.MissingManifests, svc.ManifestPath)
			continue
		}
		resolved.Components = append(resolved.Components, svc)
		resolved.ManifestPaths = append(resolved.ManifestPaths, svc.ManifestPath)

		for _, rel := range auxRequirements[svc.Type] {
			path := filepath.Join(r.auxDir, rel)
			if seenAux[path] {
				continue
			}
			seenAux[path] = true
			if _, err := os.Stat(path); err != nil {
				resolveErr.MissingAux = append(resolveErr.MissingAux, path)
			}
		}
	}

	if len(resolveErr.UnknownServices) > 0 ||
		len(resolveErr.MissingManifests) > 0 ||
		len(resolveErr.MissingAux) > 0 {
		return nil, resolveErr
	}
	return resolved, nil
}
