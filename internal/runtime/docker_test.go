package runtime

import "testing"

func TestParseLabels(t *testing.T) {
	labels := parseLabels("io.devstack.service.type=php,io.devstack.service.roles=web,com.docker.compose.service=app")
	if got := labels["io.devstack.service.type"]; got != "php" {
		t.Fatalf("type = %q, want php", got)
	}
	if got := labels["com.docker.compose.service"]; got != "app" {
		t.Fatalf("compose service = %q, want app", got)
	}
	// A trailing entry without '=' is ignored, not an error.
	labels = parseLabels("a=1,garbage")
	if len(labels) != 1 || labels["a"] != "1" {
		t.Fatalf("labels = %v", labels)
	}
}

func TestContainerRunning(t *testing.T) {
	if !(Container{Status: "Up 2 hours"}).Running() {
		t.Fatal("Up status should count as running")
	}
	if (Container{Status: "Exited (1) 3 minutes ago"}).Running() {
		t.Fatal("Exited status should not count as running")
	}
}

func TestComposeOptionsBaseArgs(t *testing.T) {
	opts := ComposeOptions{
		ProjectName: "devstack",
		Manifests:   []string{"a.yml", "b.yml"},
	}
	got := opts.baseArgs("up")
	want := []string{"compose", "--project-name", "devstack", "-f", "a.yml", "-f", "b.yml", "up"}
	if len(got) != len(want) {
		t.Fatalf("args = %v, want %v", got, want)
	}
	for i := range got {
		if got[i] != want[i] {
			t.Fatalf("args = %v, want %v", got, want)
		}
	}
}
