// Package catalog loads service identity metadata from docker-compose
// manifest fragments. Each fragment under the services directory declares
// exactly one managed service whose type, roles, and description are carried
// as labels under the configured namespace.
package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/example/devctl/internal/manifest"
)

// Issue records a manifest fragment that was skipped during loading. A bad
// fragment never aborts the catalog; the remaining services stay usable.
type Issue struct {
	Path   string
	Reason string
}

// Catalog is the set of services discovered from manifest fragments,
// indexed by service name.
type Catalog struct {
	namespace string
	services  map[string]*ServiceDescriptor
	issues    []Issue
}

// Load scans dir for compose fragments (*.yml, *.yaml) and builds the
// catalog. Fragments that fail to parse, carry no type label, declare a
// type outside the known set, or declare no roles are skipped and reported
// via Issues. A skipped fragment contributes nothing: none of its services
// enter the catalog.
func Load(dir, namespace, projectName string) (*Catalog, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading services directory %s: %w", dir, err)
	}

	cat := &Catalog{
		namespace: namespace,
		services:  make(map[string]*ServiceDescriptor),
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yml" && ext != ".yaml" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := cat.loadFragment(path, projectName); err != nil {
			cat.issues = append(cat.issues, Issue{Path: path, Reason: err.Error()})
		}
	}
	return cat, nil
}

func (c *Catalog) loadFragment(path, projectName string) error {
	project, err := manifest.Load(path, projectName)
	if err != nil {
		return fmt.Errorf("parsing manifest: %w", err)
	}

	// Descriptors are staged until the whole fragment validates. A fragment
	// with one bad service contributes nothing, so the catalog never depends
	// on map iteration order.
	var staged []*ServiceDescriptor
	for name, svc := range project.Services {
		rawType, ok := svc.Labels[c.namespace+".type"]
		if !ok {
			// Unlabeled services are not managed by the catalog.
			continue
		}
		svcType, err := ParseServiceType(rawType)
		if err != nil {
			return err
		}
		roles := ParseRoles(svc.Labels[c.namespace+".roles"])
		if len(roles) == 0 {
			return fmt.Errorf("service %q declares no roles", name)
		}
		if prev, dup := c.services[name]; dup {
			return fmt.Errorf("service %q already declared in %s", name, prev.ManifestPath)
		}
		staged = append(staged, &ServiceDescriptor{
			Name:         name,
			Type:         svcType,
			Roles:        roles,
			Description:  svc.Labels[c.namespace+".description"],
			ManifestPath: path,
		})
	}
	for _, svc := range staged {
		c.services[svc.Name] = svc
	}
	return nil
}

// Namespace returns the label namespace the catalog was loaded with.
func (c *Catalog) Namespace() string { return c.namespace }

// Get looks up a service by name.
func (c *Catalog) Get(name string) (*ServiceDescriptor, bool) {
	svc, ok := c.services[name]
	return svc, ok
}

// Services returns every descriptor sorted by name.
func (c *Catalog) Services() []*ServiceDescriptor {
	out := make([]*ServiceDescriptor, 0, len(c.services))
	for _, svc := range c.services {
		out = append(out, svc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ByType returns the descriptors of the given type sorted by name.
func (c *Catalog) ByType(t ServiceType) []*ServiceDescriptor {
	var out []*ServiceDescriptor
	for _, svc := range c.Services() {
		if svc.Type == t {
			out = append(out, svc)
		}
	}
	return out
}

// ByRole returns the descriptors declaring the given role sorted by name.
func (c *Catalog) ByRole(role string) []*ServiceDescriptor {
	var out []*ServiceDescriptor
	for _, svc := range c.Services() {
		if svc.Roles.Has(role) {
			out = append(out, svc)
		}
	}
	return out
}

// Issues returns the fragments skipped during loading.
func (c *Catalog) Issues() []Issue { return c.issues }
