// Package runtime shells out to the docker CLI. All container inspection and
// compose lifecycle operations go through this package so callers never build
// docker invocations themselves.
package runtime

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"go.uber.org/zap"
)

// Container is one row of docker ps output.
type Container struct {
	ID     string
	Name   string
	Image  string
	Status string
	Ports  string
	Labels map[string]string
}

// Running reports whether the container status indicates a live container.
func (c Container) Running() bool {
	return strings.HasPrefix(c.Status, "Up")
}

// Client runs docker commands. The zero value is not usable; use New.
type Client struct {
	bin    string
	logger *zap.Logger
}

// New returns a docker client using the docker binary found on PATH.
func New(logger *zap.Logger) *Client {
	return &Client{bin: "docker", logger: logger}
}

// psRow mirrors the JSON emitted by docker ps --format '{{json .}}'.
type psRow struct {
	ID     string `json:"ID"`
	Names  string `json:"Names"`
	Image  string `json:"Image"`
	Status string `json:"Status"`
	Ports  string `json:"Ports"`
	Labels string `json:"Labels"`
}

// Ps lists running containers matching every given label filter. Filters are
// passed verbatim to docker, e.g. "io.devstack.service.type=database".
func (c *Client) Ps(ctx context.Context, labelFilters ...string) ([]Container, error) {
	args := []string{"ps", "--format", "{{json .}}"}
	for _, f := range labelFilters {
		args = append(args, "--filter", "label="+f)
	}
	out, err := c.run(ctx, args...)
	if err != nil {
		return nil, fmt.Errorf("listing containers: %w", err)
	}

	var containers []Container
	scanner := bufio.NewScanner(bytes.NewReader(out))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var row psRow
		if err := json.Unmarshal([]byte(line), &row); err != nil {
			return nil, fmt.Errorf("parsing docker ps output: %w", err)
		}
		containers = append(containers, Container{
			ID:     row.ID,
			Name:   row.Names,
			Image:  row.Image,
			Status: row.Status,
			Ports:  row.Ports,
			Labels: parseLabels(row.Labels),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading docker ps output: %w", err)
	}
	return containers, nil
}

// parseLabels splits docker's comma-separated key=value label rendering.
func parseLabels(raw string) map[string]string {
	labels := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		labels[key] = value
	}
	return labels
}

// ComposeOptions control compose lifecycle invocations.
type ComposeOptions struct {
	ProjectName string
	Manifests   []string
	Build       bool
	Detach      bool
	Follow      bool
	Tail        string
	Services    []string
}

func (o ComposeOptions) baseArgs(subcommand string) []string {
	args := []string{"compose", "--project-name", o.ProjectName}
	for _, path := range o.Manifests {
		args = append(args, "-f", path)
	}
	return append(args, subcommand)
}

// ComposeUp starts the services described by the given manifests. Output is
// streamed to the caller's stdio so compose progress stays visible.
func (c *Client) ComposeUp(ctx context.Context, opts ComposeOptions) error {
	args := opts.baseArgs("up")
	if opts.Detach {
		args = append(args, "--detach")
	}
	if opts.Build {
		args = append(args, "--build")
	}
	args = append(args, opts.Services...)
	return c.stream(ctx, args...)
}

// ComposeDown stops and removes the services of the given project.
func (c *Client) ComposeDown(ctx context.Context, opts ComposeOptions) error {
	return c.stream(ctx, opts.baseArgs("down")...)
}

// ComposeRestart restarts the services of the given project.
func (c *Client) ComposeRestart(ctx context.Context, opts ComposeOptions) error {
	args := opts.baseArgs("restart")
	args = append(args, opts.Services...)
	return c.stream(ctx, args...)
}

// ComposeLogs streams service logs for the given project.
func (c *Client) ComposeLogs(ctx context.Context, opts ComposeOptions) error {
	args := opts.baseArgs("logs")
	if opts.Follow {
		args = append(args, "--follow")
	}
	if opts.Tail != "" {
		args = append(args, "--tail", opts.Tail)
	}
	args = append(args, opts.Services...)
	return c.stream(ctx, args...)
}

// Exec runs a command inside a running container with stdio attached.
func (c *Client) Exec(ctx context.Context, container string, command []string, interactive bool) error {
	args := []string{"exec"}
	if interactive {
		args = append(args, "-it")
	}
	args = append(args, container)
	args = append(args, command...)
	return c.stream(ctx, args...)
}

// ContainerLogs streams logs of a single container.
func (c *Client) ContainerLogs(ctx context.Context, container string, follow bool, tail string) error {
	args := []string{"logs"}
	if follow {
		args = append(args, "--follow")
	}
	if tail != "" {
		args = append(args, "--tail", tail)
	}
	args = append(args, container)
	return c.stream(ctx, args...)
}

// RestartContainer restarts a single container.
func (c *Client) RestartContainer(ctx context.Context, container string) error {
	_, err := c.run(ctx, "restart", container)
	if err != nil {
		return fmt.Errorf("restarting %s: %w", container, err)
	}
	return nil
}

// StopContainer stops a single container.
func (c *Client) StopContainer(ctx context.Context, container string) error {
	_, err := c.run(ctx, "stop", container)
	if err != nil {
		return fmt.Errorf("stopping %s: %w", container, err)
	}
	return nil
}

// run executes docker and captures stdout. Stderr is folded into the error.
func (c *Client) run(ctx context.Context, args ...string) ([]byte, error) {
	c.logger.Debug("running docker", zap.Strings("args", args))
	cmd := exec.CommandContext(ctx, c.bin, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return nil, fmt.Errorf("docker %s: %w", strings.Join(args, " "), err)
		}
		return nil, fmt.Errorf("docker %s: %s: %w", args[0], msg, err)
	}
	return stdout.Bytes(), nil
}

// stream executes docker with the process stdio attached.
func (c *Client) stream(ctx context.Context, args ...string) error {
	c.logger.Debug("running docker", zap.Strings("args", args))
	cmd := exec.CommandContext(ctx, c.bin, args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("docker %s: %w", args[0], err)
	}
	return nil
}

// RunShell runs an arbitrary host command with stdio attached. Used by the
// branch registry to execute setup commands.
func RunShell(ctx context.Context, dir string, argv []string) error {
	if len(argv) == 0 {
		return fmt.Errorf("empty command")
	}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %w", strings.Join(argv, " "), err)
	}
	return nil
}
