package catalog

import (
	"fmt"
	"sort"
	"strings"
)

// ServiceType classifies a managed service. The set is closed: selectors and
// stack validation switch exhaustively over these values.
type ServiceType string

const (
	TypePHP        ServiceType = "php"
	TypeDatabase   ServiceType = "database"
	TypeCache      ServiceType = "cache"
	TypeBuild      ServiceType = "build"
	TypeMonitoring ServiceType = "monitoring"
	TypeSearch     ServiceType = "search"
	TypeProxy      ServiceType = "proxy"
	TypeQueue      ServiceType = "queue"
)

// KnownTypes lists every service type in stable order.
func KnownTypes() []ServiceType {
	return []ServiceType{
		TypePHP, TypeDatabase, TypeCache, TypeBuild,
		TypeMonitoring, TypeSearch, TypeProxy, TypeQueue,
	}
}

// ParseServiceType validates a raw label value against the closed enum.
func ParseServiceType(raw string) (ServiceType, error) {
	t := ServiceType(strings.ToLower(strings.TrimSpace(raw)))
	switch t {
	case TypePHP, TypeDatabase, TypeCache, TypeBuild,
		TypeMonitoring, TypeSearch, TypeProxy, TypeQueue:
		return t, nil
	}
	return "", fmt.Errorf("unknown service type %q (expected one of %s)", raw, typeList())
}

func typeList() string {
	known := KnownTypes()
	names := make([]string, len(known))
	for i, t := range known {
		names[i] = string(t)
	}
	return strings.Join(names, ", ")
}

// RoleSet is the set of roles a service declares, e.g. {web, cli, primary}.
type RoleSet map[string]struct{}

// ParseRoles splits the comma-separated roles label into a set.
func ParseRoles(csv string) RoleSet {
	set := make(RoleSet)
	for _, role := range strings.Split(csv, ",") {
		role = strings.TrimSpace(role)
		if role != "" {
			set[role] = struct{}{}
		}
	}
	return set
}

// Has reports whether the set contains the given role.
func (r RoleSet) Has(role string) bool {
	_, ok := r[role]
	return ok
}

// List returns the roles in sorted order.
func (r RoleSet) List() []string {
	roles := make([]string, 0, len(r))
	for role := range r {
		roles = append(roles, role)
	}
	sort.Strings(roles)
	return roles
}

// String renders the set back to its comma-separated label form.
func (r RoleSet) String() string {
	return strings.Join(r.List(), ",")
}

// ServiceDescriptor is the identity of one managed service as declared by
// its manifest fragment's labels. Immutable once loaded.
type ServiceDescriptor struct {
	Name         string
	Type         ServiceType
	Roles        RoleSet
	Description  string
	ManifestPath string
}
