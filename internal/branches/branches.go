// Package branches maps git branch names to stacks via the branches.yml
// registry, so switching branches can bring up the matching environment.
package branches

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"

	shellwords "github.com/mattn/go-shellwords"
	"gopkg.in/yaml.v3"
)

// Rule is the environment a branch pattern maps to.
type Rule struct {
	Stack         string   `yaml:"stack"`
	SetupCommands []string `yaml:"setup_commands"`
}

// Registry holds the branch patterns from branches.yml. Keys are either
// exact branch names or prefix patterns ending in "*".
type Registry struct {
	rules map[string]Rule
}

// Load reads the registry file. A missing file yields an empty registry, so
// projects without branch mappings still get every other command.
func Load(path string) (*Registry, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &Registry{rules: map[string]Rule{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading branch registry: %w", err)
	}

	var rules map[string]Rule
	if err := yaml.Unmarshal(raw, &rules); err != nil {
		return nil, fmt.Errorf("parsing branch registry %s: %w", path, err)
	}
	if rules == nil {
		rules = map[string]Rule{}
	}
	for pattern, rule := range rules {
		if rule.Stack == "" {
			return nil, fmt.Errorf("branch pattern %q maps to no stack", pattern)
		}
	}
	return &Registry{rules: rules}, nil
}

// Patterns returns the registered patterns sorted.
func (r *Registry) Patterns() []string {
	out := make([]string, 0, len(r.rules))
	for pattern := range r.rules {
		out = append(out, pattern)
	}
	sort.Strings(out)
	return out
}

// Rule returns the rule registered for an exact pattern.
func (r *Registry) Rule(pattern string) (Rule, bool) {
	rule, ok := r.rules[pattern]
	return rule, ok
}

// Match finds the rule for a branch. An exact entry always wins; otherwise
// the longest matching prefix pattern (an entry ending in "*") applies. The
// returned pattern names the entry that matched.
func (r *Registry) Match(branch string) (Rule, string, bool) {
	if rule, ok := r.rules[branch]; ok {
		return rule, branch, true
	}
	var (
		best    string
		bestLen = -1
	)
	for pattern := range r.rules {
		if !strings.HasSuffix(pattern, "*") {
			continue
		}
		prefix := strings.TrimSuffix(pattern, "*")
		if strings.HasPrefix(branch, prefix) && len(prefix) > bestLen {
			best = pattern
			bestLen = len(prefix)
		}
	}
	if bestLen < 0 {
		return Rule{}, "", false
	}
	return r.rules[best], best, true
}

// Commands expands the rule's setup commands into argv form. A command whose
// first word is "artisan" runs through the php interpreter; anything else
// runs under sh -c so shell syntax keeps working.
func (r Rule) Commands() ([][]string, error) {
	out := make([][]string, 0, len(r.SetupCommands))
	for _, raw := range r.SetupCommands {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		argv, err := shellwords.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("parsing setup command %q: %w", raw, err)
		}
		if len(argv) > 0 && argv[0] == "artisan" {
			out = append(out, append([]string{"php"}, argv...))
			continue
		}
		out = append(out, []string{"sh", "-c", raw})
	}
	return out, nil
}
