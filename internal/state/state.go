// Package state persists which stack is active. The record is a single flat
// JSON file in the project root, written atomically so a crash mid-write can
// never leave a half-written file behind.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// Record describes the one stack devctl considers active.
type Record struct {
	Stack         string            `json:"stack"`
	StartedAt     time.Time         `json:"started_at"`
	ManifestPaths []string          `json:"manifest_paths"`
	Containers    map[string]string `json:"containers"`
	Explicit      bool              `json:"explicit"`
}

// Uptime renders how long the stack has been running in coarse human units.
func (r *Record) Uptime(now time.Time) string {
	d := now.Sub(r.StartedAt)
	switch {
	case d < time.Minute:
		return "less than a minute"
	case d < time.Hour:
		m := int(d.Minutes())
		return fmt.Sprintf("%dm", m)
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
	default:
		days := int(d.Hours()) / 24
		return fmt.Sprintf("%dd %dh", days, int(d.Hours())%24)
	}
}

// AlreadyActiveError signals a refused write because another stack holds the
// active slot.
type AlreadyActiveError struct {
	Current *Record
}

func (e *AlreadyActiveError) Error() string {
	return fmt.Sprintf("stack %q is already active (started %s)",
		e.Current.Stack, e.Current.StartedAt.Format(time.RFC3339))
}

// Store reads and writes the state record at a fixed path.
type Store struct {
	path string
}

// NewStore returns a store backed by the given file path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the state file location.
func (s *Store) Path() string { return s.path }

// Read loads the current record. A missing file means no active stack and
// returns (nil, nil). An unreadable or corrupt file is moved aside to a
// .corrupt sibling and likewise treated as no active stack, so a damaged
// file can never wedge the tool.
func (s *Store) Read() (*Record, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading state file: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil || rec.Stack == "" {
		if moveErr := os.Rename(s.path, s.path+".corrupt"); moveErr != nil {
			return nil, fmt.Errorf("moving corrupt state file aside: %w", moveErr)
		}
		return nil, nil
	}
	return &rec, nil
}

// Write records the given stack as active. If another stack is already
// recorded and override is false the write is refused with an
// *AlreadyActiveError. Rewriting the same stack is always allowed.
func (s *Store) Write(rec *Record, override bool) error {
	current, err := s.Read()
	if err != nil {
		return err
	}
	if current != nil && current.Stack != rec.Stack && !override {
		return &AlreadyActiveError{Current: current}
	}

	// ManifestPaths keep their compose merge order; they are replayed as
	// -f arguments on down and restart.
	raw, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding state: %w", err)
	}
	raw = append(raw, '\n')

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".devstack-state-*")
	if err != nil {
		return fmt.Errorf("creating temp state file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("writing state: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("setting state file mode: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp state file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replacing state file: %w", err)
	}
	return nil
}

// Clear removes the state record. Clearing an absent record is a no-op.
func (s *Store) Clear() error {
	err := os.Remove(s.path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing state file: %w", err)
	}
	return nil
}
