package manifest

import (
	"os"
	"path/filepath"
	"testing"
)

func writeManifest(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "service.yml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing manifest: %v", err)
	}
	return path
}

func TestLoadReadsServices(t *testing.T) {
	path := writeManifest(t, `
services:
  app:
    image: busybox
    labels:
      io.devstack.service.type: php
    ports:
      - "8080:80"
`)
	project, err := Load(path, "testproj")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	svc, ok := project.Services["app"]
	if !ok {
		t.Fatalf("service app not found, got %v", project.ServiceNames())
	}
	if got := svc.Labels["io.devstack.service.type"]; got != "php" {
		t.Fatalf("type label = %q, want php", got)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yml"), "testproj"); err == nil {
		t.Fatal("expected error for missing manifest")
	}
}

func TestPublishedPorts(t *testing.T) {
	path := writeManifest(t, `
services:
  app:
    image: busybox
    ports:
      - "8080:80"
      - "9000:9000/udp"
  db:
    image: busybox
    ports:
      - "3306:3306"
      - target: 5000
`)
	project, err := Load(path, "testproj")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	bindings := PublishedPorts(project)
	want := []PortBinding{
		{HostPort: 3306, Protocol: "tcp", Service: "db"},
		{HostPort: 8080, Protocol: "tcp", Service: "app"},
		{HostPort: 9000, Protocol: "udp", Service: "app"},
	}
	if len(bindings) != len(want) {
		t.Fatalf("got %d bindings, want %d: %v", len(bindings), len(want), bindings)
	}
	for i, b := range bindings {
		if b != want[i] {
			t.Fatalf("binding %d = %+v, want %+v", i, b, want[i])
		}
	}
}

func TestExpandPublished(t *testing.T) {
	tests := []struct {
		in   string
		want []int
	}{
		{"", nil},
		{"8080", []int{8080}},
		{"8080-8082", []int{8080, 8081, 8082}},
		{"bogus", nil},
	}
	for _, tt := range tests {
		got := expandPublished(tt.in)
		if len(got) != len(tt.want) {
			t.Fatalf("expandPublished(%q) = %v, want %v", tt.in, got, tt.want)
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Fatalf("expandPublished(%q) = %v, want %v", tt.in, got, tt.want)
			}
		}
	}
}
