// Package config defines the flag plumbing and runtime options shared by the
// devctl commands, translating Cobra/Viper flag values into a strongly typed
// struct that the catalog, resolver, and orchestrator consume.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
)

// DefaultLabelNamespace is the reverse-DNS prefix under which managed
// services declare their type, roles, and description labels.
const DefaultLabelNamespace = "io.devstack.service"

// Options holds all CLI configuration used by the orchestration engine.
type Options struct {
	ProjectName    string
	ProjectRoot    string
	LabelNamespace string
	LogLevel       string
	Verbose        bool
}

// NewOptions returns Options with defaults applied.
func NewOptions() *Options {
	return &Options{
		ProjectName:    "devstack",
		LabelNamespace: DefaultLabelNamespace,
		LogLevel:       "info",
	}
}

// BindFlags attaches engine flags to an arbitrary FlagSet.
func (o *Options) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.ProjectName, "project", o.ProjectName, "Compose project name used for container naming and runtime filters")
	fs.StringVar(&o.ProjectRoot, "root", "", "Project root directory (defaults to the current directory)")
	fs.StringVar(&o.LabelNamespace, "label-namespace", o.LabelNamespace, "Reverse-DNS label namespace consulted for service discovery")
	fs.StringVar(&o.LogLevel, "log-level", o.LogLevel, "Log level for devctl output (debug, info, warn, error)")
	fs.BoolVarP(&o.Verbose, "verbose", "v", false, "Log every runtime command issued (same as --log-level debug)")
}

// Validate resolves the project root and checks option coherence.
func (o *Options) Validate() error {
	if strings.TrimSpace(o.ProjectName) == "" {
		return fmt.Errorf("project name cannot be empty")
	}
	if strings.TrimSpace(o.LabelNamespace) == "" {
		return fmt.Errorf("label namespace cannot be empty")
	}
	o.LabelNamespace = strings.TrimSuffix(o.LabelNamespace, ".")
	if o.ProjectRoot == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("determine working directory: %w", err)
		}
		o.ProjectRoot = cwd
	}
	abs, err := filepath.Abs(o.ProjectRoot)
	if err != nil {
		return fmt.Errorf("resolve project root %q: %w", o.ProjectRoot, err)
	}
	o.ProjectRoot = abs
	return nil
}

// ServicesDir is where the per-component manifest fragments live.
func (o *Options) ServicesDir() string {
	return filepath.Join(o.ProjectRoot, "docker", "services")
}

// StacksDir is where the named stack definitions live.
func (o *Options) StacksDir() string {
	return filepath.Join(o.ProjectRoot, "docker", "stacks")
}

// AuxDir is the root for stack-specific auxiliary configuration
// (monitoring dashboards, proxy routing, and so on).
func (o *Options) AuxDir() string {
	return filepath.Join(o.ProjectRoot, "docker")
}

// StateFile is the location of the persisted active-stack record.
func (o *Options) StateFile() string {
	return filepath.Join(o.ProjectRoot, ".devstack-state.json")
}

// BranchRegistryFile is the location of the branch-to-stack registry.
func (o *Options) BranchRegistryFile() string {
	return filepath.Join(o.ProjectRoot, "branches.yml")
}
