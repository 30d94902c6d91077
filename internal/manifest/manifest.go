// Package manifest loads the per-component compose fragments the engine
// treats as declarative inputs, and extracts the pieces the orchestration
// engine reasons about: service labels and published host ports.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/compose-spec/compose-go/v2/loader"
	composetypes "github.com/compose-spec/compose-go/v2/types"
)

// Load parses a single manifest fragment into a compose project. Fragments
// hold one component each, so consistency checks that assume a complete
// project are skipped.
func Load(path, projectName string) (*composetypes.Project, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest %s: %w", path, err)
	}

	env := make(composetypes.Mapping)
	for _, kv := range os.Environ() {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		env[key] = value
	}

	details := composetypes.ConfigDetails{
		WorkingDir: filepath.Dir(path),
		ConfigFiles: []composetypes.ConfigFile{
			{Filename: path, Content: data},
		},
		Environment: env,
	}

	project, err := loader.Load(details, func(o *loader.Options) {
		o.SetProjectName(projectName, true)
		o.SkipConsistencyCheck = true
		o.SkipValidation = true
		o.ResolvePaths = false
	})
	if err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	return project, nil
}

// PortBinding is one published host port claimed by a manifest fragment.
type PortBinding struct {
	HostPort int
	Protocol string
	Service  string
}

// PublishedPorts returns every host-port binding declared by the project's
// services. Bindings without a published host port are ignored; host port
// ranges contribute each port in the range.
func PublishedPorts(project *composetypes.Project) []PortBinding {
	var bindings []PortBinding
	for name, svc := range project.Services {
		for _, port := range svc.Ports {
			for _, hostPort := range expandPublished(port.Published) {
				protocol := port.Protocol
				if protocol == "" {
					protocol = "tcp"
				}
				bindings = append(bindings, PortBinding{
					HostPort: hostPort,
					Protocol: protocol,
					Service:  name,
				})
			}
		}
	}
	sort.Slice(bindings, func(i, j int) bool {
		if bindings[i].HostPort != bindings[j].HostPort {
			return bindings[i].HostPort < bindings[j].HostPort
		}
		return bindings[i].Service < bindings[j].Service
	})
	return bindings
}

// expandPublished turns a compose "published" value ("8080", "8080-8082",
// or empty for an unpublished port) into the list of host ports it claims.
func expandPublished(published string) []int {
	published = strings.TrimSpace(published)
	if published == "" {
		return nil
	}
	if low, high, ok := strings.Cut(published, "-"); ok {
		start, err1 := strconv.Atoi(low)
		end, err2 := strconv.Atoi(high)
		if err1 != nil || err2 != nil || end < start {
			return nil
		}
		ports := make([]int, 0, end-start+1)
		for p := start; p <= end; p++ {
			ports = append(ports, p)
		}
		return ports
	}
	port, err := strconv.Atoi(published)
	if err != nil {
		return nil
	}
	return []int{port}
}
