package orchestrator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"go.uber.org/zap"

	"github.com/example/devctl/internal/catalog"
	"github.com/example/devctl/internal/runtime"
	"github.com/example/devctl/internal/stacks"
	"github.com/example/devctl/internal/state"
)

const testNamespace = "io.devstack.service"

// fakeRuntime records compose invocations and serves a fixed container set.
// sequence logs lifecycle calls in order.
type fakeRuntime struct {
	upCalls      []runtime.ComposeOptions
	downCalls    []runtime.ComposeOptions
	restartCalls []runtime.ComposeOptions
	sequence     []string
	upErr        error
	running      []runtime.Container
}

func (f *fakeRuntime) ComposeUp(_ context.Context, opts runtime.ComposeOptions) error {
	f.upCalls = append(f.upCalls, opts)
	f.sequence = append(f.sequence, "up")
	return f.upErr
}

func (f *fakeRuntime) ComposeDown(_ context.Context, opts runtime.ComposeOptions) error {
	f.downCalls = append(f.downCalls, opts)
	f.sequence = append(f.sequence, "down")
	return nil
}

func (f *fakeRuntime) ComposeRestart(_ context.Context, opts runtime.ComposeOptions) error {
	f.restartCalls = append(f.restartCalls, opts)
	f.sequence = append(f.sequence, "restart")
	return nil
}

func (f *fakeRuntime) Ps(_ context.Context, _ ...string) ([]runtime.Container, error) {
	return f.running, nil
}

func runningContainer(service, svcType string) runtime.Container {
	return runtime.Container{
		Name:   "devstack-" + service + "-1",
		Status: "Up 5 minutes",
		Labels: map[string]string{
			testNamespace + ".type":      svcType,
			"com.docker.compose.service": service,
		},
	}
}

// fixture is a project layout with services app (php, port 8080) and mysql
// (database, port 3306), and stacks minimal [app] and full [app, mysql].
type fixture struct {
	root   string
	docker *fakeRuntime
	store  *state.Store
	orch   *Orchestrator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	servicesDir := filepath.Join(root, "docker", "services")
	stacksDir := filepath.Join(root, "docker", "stacks")
	for _, dir := range []string{servicesDir, stacksDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("MkdirAll: %v", err)
		}
	}
	writeFile(t, filepath.Join(servicesDir, "app.yml"), `
services:
  app:
    image: php:8.3
    labels:
      io.devstack.service.type: php
      io.devstack.service.roles: web,primary
    ports:
      - "8080:80"
`)
	writeFile(t, filepath.Join(servicesDir, "mysql.yml"), `
services:
  mysql:
    image: mysql:8
    labels:
      io.devstack.service.type: database
      io.devstack.service.roles: primary
    ports:
      - "3306:3306"
`)
	writeFile(t, filepath.Join(stacksDir, "minimal.yml"), "services: [app]\n")
	writeFile(t, filepath.Join(stacksDir, "full.yml"), "services: [app, mysql]\n")

	cat, err := catalog.Load(servicesDir, testNamespace, "devstack")
	if err != nil {
		t.Fatalf("catalog.Load: %v", err)
	}
	resolver, err := stacks.NewResolver(stacksDir, cat, filepath.Join(root, "docker"))
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	docker := &fakeRuntime{}
	store := state.NewStore(filepath.Join(root, ".devstack-state.json"))
	return &fixture{
		root:   root,
		docker: docker,
		store:  store,
		orch:   New(cat, resolver, store, docker, zap.NewNop(), testNamespace, "devstack"),
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}

func (f *fixture) addStack(t *testing.T, id, body string) {
	t.Helper()
	writeFile(t, filepath.Join(f.root, "docker", "stacks", id+".yml"), body)
}

func TestUpUnknownStackNeverTouchesRuntime(t *testing.T) {
	f := newFixture(t)
	_, err := f.orch.Up(context.Background(), "nope", UpOptions{})
	var unknown *stacks.UnknownStackError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected UnknownStackError, got %v", err)
	}
	if len(f.docker.upCalls)+len(f.docker.downCalls) != 0 {
		t.Fatal("validation failure must not reach the runtime")
	}
}

func TestUpPortConflictBlocksStart(t *testing.T) {
	f := newFixture(t)
	// A second database publishing mysql's port.
	writeFile(t, filepath.Join(f.root, "docker", "services", "mariadb.yml"), `
services:
  mariadb:
    image: mariadb:11
    labels:
      io.devstack.service.type: database
      io.devstack.service.roles: primary
    ports:
      - "3306:3306"
`)
	f.addStack(t, "clash", "services: [mysql, mariadb]\n")

	// Catalog was loaded before mariadb existed; rebuild the fixture view.
	f = reopenFixture(t, f)

	_, err := f.orch.Up(context.Background(), "clash", UpOptions{})
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	if len(conflict.Conflicts) != 1 || conflict.Conflicts[0].Port != 3306 {
		t.Fatalf("conflicts = %v", conflict.Conflicts)
	}
	if len(f.docker.upCalls) != 0 {
		t.Fatal("conflicting stack must not start")
	}
	if rec, _ := f.store.Read(); rec != nil {
		t.Fatalf("no state may be recorded, got %+v", rec)
	}
}

// reopenFixture rebuilds catalog and resolver over the same root, keeping
// the fake runtime and store.
func reopenFixture(t *testing.T, f *fixture) *fixture {
	t.Helper()
	cat, err := catalog.Load(filepath.Join(f.root, "docker", "services"), testNamespace, "devstack")
	if err != nil {
		t.Fatalf("catalog.Load: %v", err)
	}
	resolver, err := stacks.NewResolver(filepath.Join(f.root, "docker", "stacks"), cat, filepath.Join(f.root, "docker"))
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	f.orch = New(cat, resolver, f.store, f.docker, zap.NewNop(), testNamespace, "devstack")
	return f
}

func TestUpRecordsState(t *testing.T) {
	f := newFixture(t)
	f.docker.running = []runtime.Container{
		runningContainer("app", "php"),
		runningContainer("mysql", "database"),
	}

	result, err := f.orch.Up(context.Background(), "full", UpOptions{Build: true})
	if err != nil {
		t.Fatalf("Up: %v", err)
	}
	if len(result.Missing) != 0 {
		t.Fatalf("missing = %v, want none", result.Missing)
	}
	if len(f.docker.upCalls) != 1 {
		t.Fatalf("up called %d times, want 1", len(f.docker.upCalls))
	}
	up := f.docker.upCalls[0]
	if !up.Build || !up.Detach || up.ProjectName != "devstack" || len(up.Manifests) != 2 {
		t.Fatalf("up options = %+v", up)
	}

	rec, err := f.store.Read()
	if err != nil || rec == nil {
		t.Fatalf("state after up: %+v, %v", rec, err)
	}
	if rec.Stack != "full" || !rec.Explicit {
		t.Fatalf("record = %+v", rec)
	}
	if rec.Containers["mysql"] != "devstack-mysql-1" {
		t.Fatalf("containers = %v", rec.Containers)
	}
}

func TestUpReportsMissingComponents(t *testing.T) {
	f := newFixture(t)
	// mysql never comes up.
	f.docker.running = []runtime.Container{runningContainer("app", "php")}

	result, err := f.orch.Up(context.Background(), "full", UpOptions{})
	if err != nil {
		t.Fatalf("Up: %v", err)
	}
	if len(result.Missing) != 1 || result.Missing[0] != "mysql" {
		t.Fatalf("missing = %v, want [mysql]", result.Missing)
	}
}

func TestUpComposeFailureIsDegraded(t *testing.T) {
	f := newFixture(t)
	f.docker.upErr = errors.New("exit status 1")

	_, err := f.orch.Up(context.Background(), "minimal", UpOptions{})
	var degraded *DegradedError
	if !errors.As(err, &degraded) {
		t.Fatalf("expected DegradedError, got %v", err)
	}
	if degraded.Stack != "minimal" {
		t.Fatalf("degraded stack = %q", degraded.Stack)
	}
	// A degraded start leaves no state behind.
	if rec, _ := f.store.Read(); rec != nil {
		t.Fatalf("state written despite failure: %+v", rec)
	}
}

func TestUpRefusesWhenAnotherStackActive(t *testing.T) {
	f := newFixture(t)
	f.docker.running = []runtime.Container{runningContainer("app", "php")}
	if _, err := f.orch.Up(context.Background(), "minimal", UpOptions{}); err != nil {
		t.Fatalf("first Up: %v", err)
	}

	_, err := f.orch.Up(context.Background(), "full", UpOptions{})
	var active *state.AlreadyActiveError
	if !errors.As(err, &active) {
		t.Fatalf("expected AlreadyActiveError, got %v", err)
	}
	if active.Current.Stack != "minimal" {
		t.Fatalf("holder = %q", active.Current.Stack)
	}
	if len(f.docker.upCalls) != 1 {
		t.Fatal("refused start must not reach the runtime")
	}
}

func TestUpOverrideReplacesActiveStack(t *testing.T) {
	f := newFixture(t)
	f.docker.running = []runtime.Container{runningContainer("app", "php")}
	if _, err := f.orch.Up(context.Background(), "minimal", UpOptions{}); err != nil {
		t.Fatalf("first Up: %v", err)
	}

	f.docker.running = []runtime.Container{
		runningContainer("app", "php"),
		runningContainer("mysql", "database"),
	}
	// minimal and full share app.yml (host port 8080); the shared port
	// must not read as a conflict once the old stack is stopping.
	if _, err := f.orch.Up(context.Background(), "full", UpOptions{Override: true}); err != nil {
		t.Fatalf("override Up to a stack sharing port 8080 must succeed, got: %v", err)
	}
	if len(f.docker.downCalls) != 1 {
		t.Fatalf("down called %d times, want 1 (old stack stopped first)", len(f.docker.downCalls))
	}
	if want := []string{"up", "down", "up"}; !reflect.DeepEqual(f.docker.sequence, want) {
		t.Fatalf("lifecycle sequence = %v, want %v", f.docker.sequence, want)
	}
	rec, _ := f.store.Read()
	if rec == nil || rec.Stack != "full" {
		t.Fatalf("record = %+v, want full active", rec)
	}
}

func TestUpSameStackIsARestartNotARefusal(t *testing.T) {
	f := newFixture(t)
	f.docker.running = []runtime.Container{runningContainer("app", "php")}
	if _, err := f.orch.Up(context.Background(), "minimal", UpOptions{}); err != nil {
		t.Fatalf("first Up: %v", err)
	}
	if _, err := f.orch.Up(context.Background(), "minimal", UpOptions{}); err != nil {
		t.Fatalf("second Up of the same stack: %v", err)
	}
	if len(f.docker.downCalls) != 0 {
		t.Fatal("re-upping the active stack must not stop it first")
	}
}

func TestRestartActiveStack(t *testing.T) {
	f := newFixture(t)
	f.docker.running = []runtime.Container{runningContainer("app", "php")}
	if _, err := f.orch.Up(context.Background(), "minimal", UpOptions{}); err != nil {
		t.Fatalf("Up: %v", err)
	}

	rec, err := f.orch.Restart(context.Background())
	if err != nil {
		t.Fatalf("Restart: %v", err)
	}
	if rec == nil || rec.Stack != "minimal" {
		t.Fatalf("record = %+v, want minimal", rec)
	}
	if len(f.docker.restartCalls) != 1 {
		t.Fatalf("restart called %d times, want 1", len(f.docker.restartCalls))
	}
}

func TestRestartWithNothingActive(t *testing.T) {
	f := newFixture(t)
	rec, err := f.orch.Restart(context.Background())
	if err != nil {
		t.Fatalf("Restart: %v", err)
	}
	if rec != nil {
		t.Fatalf("expected nil record, got %+v", rec)
	}
	if len(f.docker.restartCalls) != 0 {
		t.Fatal("restart must not run with nothing active")
	}
}

func TestDownNothingRunning(t *testing.T) {
	f := newFixture(t)
	rec, err := f.orch.Down(context.Background())
	if err != nil {
		t.Fatalf("Down: %v", err)
	}
	if rec != nil {
		t.Fatalf("expected nothing to stop, got %+v", rec)
	}
	if len(f.docker.downCalls) != 0 {
		t.Fatal("down must not run with nothing active")
	}
}

func TestDownFallsBackToRediscovery(t *testing.T) {
	f := newFixture(t)
	// No state file, but the full stack's containers are running.
	f.docker.running = []runtime.Container{
		runningContainer("app", "php"),
		runningContainer("mysql", "database"),
	}

	rec, err := f.orch.Down(context.Background())
	if err != nil {
		t.Fatalf("Down: %v", err)
	}
	if rec == nil || rec.Stack != "full" {
		t.Fatalf("rediscovered record = %+v, want full", rec)
	}
	if len(f.docker.downCalls) != 1 {
		t.Fatalf("down called %d times, want 1", len(f.docker.downCalls))
	}
}

func TestStatusEmptyEnvironment(t *testing.T) {
	f := newFixture(t)
	st, err := f.orch.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.Record != nil || len(st.Containers) != 0 {
		t.Fatalf("status = %+v, want empty", st)
	}
}

func TestStatusReportsStaleComponents(t *testing.T) {
	f := newFixture(t)
	f.docker.running = []runtime.Container{
		runningContainer("app", "php"),
		runningContainer("mysql", "database"),
	}
	if _, err := f.orch.Up(context.Background(), "full", UpOptions{}); err != nil {
		t.Fatalf("Up: %v", err)
	}

	// mysql dies after the start.
	f.docker.running = []runtime.Container{runningContainer("app", "php")}
	st, err := f.orch.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if len(st.Stale) != 1 || st.Stale[0] != "mysql" {
		t.Fatalf("stale = %v, want [mysql]", st.Stale)
	}
}

func TestRediscoverPicksMostSpecificStack(t *testing.T) {
	f := newFixture(t)
	// Both minimal [app] and full [app, mysql] are complete; full wins.
	f.docker.running = []runtime.Container{
		runningContainer("app", "php"),
		runningContainer("mysql", "database"),
	}

	rec, err := f.orch.Rediscover(context.Background())
	if err != nil {
		t.Fatalf("Rediscover: %v", err)
	}
	if rec == nil || rec.Stack != "full" {
		t.Fatalf("record = %+v, want full", rec)
	}
	if rec.Explicit {
		t.Fatal("rediscovered state must not be marked explicit")
	}
}

func TestRediscoverNoCompleteMatch(t *testing.T) {
	f := newFixture(t)
	// Only mysql runs; no defined stack is fully satisfied.
	f.docker.running = []runtime.Container{runningContainer("mysql", "database")}

	rec, err := f.orch.Rediscover(context.Background())
	if err != nil {
		t.Fatalf("Rediscover: %v", err)
	}
	if rec != nil {
		t.Fatalf("expected no match, got %+v", rec)
	}
}

func TestCleanRebuildsFromRunningContainers(t *testing.T) {
	f := newFixture(t)
	f.docker.running = []runtime.Container{runningContainer("app", "php")}
	if _, err := f.orch.Up(context.Background(), "minimal", UpOptions{}); err != nil {
		t.Fatalf("Up: %v", err)
	}

	rec, err := f.orch.Clean(context.Background(), true)
	if err != nil {
		t.Fatalf("Clean: %v", err)
	}
	if rec == nil || rec.Stack != "minimal" {
		t.Fatalf("rebuilt record = %+v, want minimal", rec)
	}

	rec, err = f.orch.Clean(context.Background(), false)
	if err != nil {
		t.Fatalf("Clean without rediscovery: %v", err)
	}
	if rec != nil {
		t.Fatalf("expected cleared state, got %+v", rec)
	}
	if onDisk, _ := f.store.Read(); onDisk != nil {
		t.Fatalf("state file survived clean: %+v", onDisk)
	}
}
