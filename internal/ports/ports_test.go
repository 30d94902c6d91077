package ports

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/example/devctl/internal/stacks"
)

func writeManifest(t *testing.T, dir, name, service, port string) string {
	t.Helper()
	content := `
services:
  ` + service + `:
    image: busybox
    ports:
      - "` + port + `"
`
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing manifest %s: %v", name, err)
	}
	return path
}

func resolvedStack(id string, manifests ...string) *stacks.ResolvedStack {
	return &stacks.ResolvedStack{
		Definition:    stacks.Definition{ID: id},
		ManifestPaths: manifests,
	}
}

func TestCheckFindsIntraStackConflict(t *testing.T) {
	dir := t.TempDir()
	web := writeManifest(t, dir, "web.yml", "nginx", "80:80")
	app := writeManifest(t, dir, "app.yml", "app", "80:8000")

	conflicts, err := Check(context.Background(), resolvedStack("trad", web, app), "devstack", "", nil)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if len(conflicts) != 1 {
		t.Fatalf("got %d conflicts, want 1: %v", len(conflicts), conflicts)
	}
	c := conflicts[0]
	if c.Port != 80 || c.Protocol != "tcp" {
		t.Fatalf("conflict = %+v", c)
	}
	if want := []string{"app", "nginx"}; !reflect.DeepEqual(c.Owners, want) {
		t.Fatalf("owners = %v, want %v", c.Owners, want)
	}
}

func TestCheckIsSymmetric(t *testing.T) {
	dir := t.TempDir()
	web := writeManifest(t, dir, "web.yml", "nginx", "80:80")
	app := writeManifest(t, dir, "app.yml", "app", "80:8000")

	forward, err := Check(context.Background(), resolvedStack("s", web, app), "devstack", "", nil)
	if err != nil {
		t.Fatalf("Check forward: %v", err)
	}
	reverse, err := Check(context.Background(), resolvedStack("s", app, web), "devstack", "", nil)
	if err != nil {
		t.Fatalf("Check reverse: %v", err)
	}
	if !reflect.DeepEqual(forward, reverse) {
		t.Fatalf("conflict order depends on inspection order:\nforward: %v\nreverse: %v", forward, reverse)
	}
}

func TestCheckAgainstActiveStack(t *testing.T) {
	dir := t.TempDir()
	candidate := writeManifest(t, dir, "candidate.yml", "app", "8080:80")
	active := writeManifest(t, dir, "active.yml", "legacy", "8080:80")

	conflicts, err := Check(context.Background(), resolvedStack("next", candidate), "devstack", "old", []string{active})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if len(conflicts) != 1 {
		t.Fatalf("got %d conflicts, want 1: %v", len(conflicts), conflicts)
	}
	if want := []string{"app", "old:legacy"}; !reflect.DeepEqual(conflicts[0].Owners, want) {
		t.Fatalf("owners = %v, want %v", conflicts[0].Owners, want)
	}
}

func TestCheckSkipsSelfRestart(t *testing.T) {
	dir := t.TempDir()
	app := writeManifest(t, dir, "app.yml", "app", "8080:80")

	// Restarting the active stack must not conflict with itself.
	conflicts, err := Check(context.Background(), resolvedStack("same", app), "devstack", "same", []string{app})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if len(conflicts) != 0 {
		t.Fatalf("unexpected conflicts on restart: %v", conflicts)
	}
}

func TestCheckDistinguishesProtocols(t *testing.T) {
	dir := t.TempDir()
	tcp := writeManifest(t, dir, "tcp.yml", "web", "9000:9000")
	udp := writeManifest(t, dir, "udp.yml", "metrics", "9000:9000/udp")

	conflicts, err := Check(context.Background(), resolvedStack("s", tcp, udp), "devstack", "", nil)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if len(conflicts) != 0 {
		t.Fatalf("tcp and udp on the same port are not a conflict: %v", conflicts)
	}
}

func TestCheckNoPorts(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plain.yml")
	if err := os.WriteFile(path, []byte("services:\n  worker:\n    image: busybox\n"), 0o644); err != nil {
		t.Fatalf("writing manifest: %v", err)
	}
	conflicts, err := Check(context.Background(), resolvedStack("s", path), "devstack", "", nil)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if len(conflicts) != 0 {
		t.Fatalf("unexpected conflicts: %v", conflicts)
	}
}
