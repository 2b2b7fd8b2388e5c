// Package dockeradapter implements sandbox.Adapter against a Docker daemon.
// Container lifecycle (create, start, exec, inspect, remove) follows the
// same shape as a conventional Docker-backed tool executor: one container
// per project, commands run via ContainerExecCreate/Attach, stdout/stderr
// demultiplexed with stdcopy.
package dockeradapter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/agentcore/platform/internal/sandbox"
	"github.com/agentcore/platform/internal/telemetry"
)

const containerLabelProject = "agentcore.project_id"

// Options configures the Docker adapter.
type Options struct {
	// Host is the Docker daemon endpoint. Empty uses the client default
	// (DOCKER_HOST env var, falling back to the local unix socket).
	Host string
	// DefaultImage is used when a caller does not specify one.
	DefaultImage string
	Log          telemetry.Logger
}

// Adapter implements sandbox.Adapter against a live Docker daemon.
type Adapter struct {
	cli          *client.Client
	defaultImage string
	log          telemetry.Logger
}

var _ sandbox.Adapter = (*Adapter)(nil)

// New creates a Docker client, verifies the daemon is reachable, and
// returns an Adapter bound to it.
func New(ctx context.Context, opts Options) (*Adapter, error) {
	if opts.Log == nil {
		opts.Log = telemetry.NewNoopLogger()
	}
	clientOpts := []client.Opt{client.WithAPIVersionNegotiation()}
	if opts.Host != "" {
		clientOpts = append(clientOpts, client.WithHost(opts.Host))
	} else {
		clientOpts = append(clientOpts, client.FromEnv)
	}
	cli, err := client.NewClientWithOpts(clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("dockeradapter: new client: %w", err)
	}
	if _, err := cli.Ping(ctx); err != nil {
		cli.Close()
		return nil, fmt.Errorf("dockeradapter: ping daemon: %w", err)
	}
	return &Adapter{cli: cli, defaultImage: opts.DefaultImage, log: opts.Log}, nil
}

// Create implements sandbox.Adapter.
func (a *Adapter) Create(ctx context.Context, projectID, image string) (string, error) {
	if image == "" {
		image = a.defaultImage
	}
	if image == "" {
		return "", errors.New("dockeradapter: no image specified and no default configured")
	}

	resp, err := a.cli.ContainerCreate(ctx,
		&container.Config{
			Image:  image,
			Labels: map[string]string{containerLabelProject: projectID},
			Tty:    false,
		},
		&container.HostConfig{AutoRemove: false},
		nil, nil, "",
	)
	if err != nil {
		return "", fmt.Errorf("dockeradapter: create container: %w", err)
	}
	if err := a.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return "", fmt.Errorf("dockeradapter: start container: %w", err)
	}
	a.log.Info(ctx, "sandbox container created", "project_id", projectID, "container_id", resp.ID, "image", image)
	return resp.ID, nil
}

// Terminate implements sandbox.Adapter.
func (a *Adapter) Terminate(ctx context.Context, containerID string) error {
	timeout := 10
	if err := a.cli.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &timeout}); err != nil {
		a.log.Warn(ctx, "sandbox container stop failed, removing anyway", "container_id", containerID, "error", err)
	}
	if err := a.cli.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true}); err != nil {
		if client.IsErrNotFound(err) {
			return nil
		}
		return fmt.Errorf("dockeradapter: remove container: %w", err)
	}
	return nil
}

// ContainerExists implements sandbox.Adapter.
func (a *Adapter) ContainerExists(ctx context.Context, containerID string) (bool, error) {
	_, err := a.cli.ContainerInspect(ctx, containerID)
	if err != nil {
		if client.IsErrNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("dockeradapter: inspect container: %w", err)
	}
	return true, nil
}

// HealthCheck implements sandbox.Adapter.
func (a *Adapter) HealthCheck(ctx context.Context, containerID string) error {
	inspect, err := a.cli.ContainerInspect(ctx, containerID)
	if err != nil {
		return fmt.Errorf("dockeradapter: inspect container: %w", err)
	}
	if !inspect.State.Running {
		return fmt.Errorf("dockeradapter: container %s is not running (state %s)", containerID, inspect.State.Status)
	}
	return nil
}

// CallTool implements sandbox.Adapter. It invokes the in-container tool
// entrypoint as `agent-tool <name>`, passing the JSON args on stdin.
func (a *Adapter) CallTool(ctx context.Context, containerID, toolName string, args []byte) (sandbox.ToolCallResult, error) {
	stdout, stderr, exitCode, err := a.exec(ctx, containerID, []string{"agent-tool", toolName}, args)
	if err != nil {
		return sandbox.ToolCallResult{}, err
	}
	return sandbox.ToolCallResult{Stdout: stdout, Stderr: stderr, ExitCode: exitCode}, nil
}

// ListTools implements sandbox.Adapter.
func (a *Adapter) ListTools(ctx context.Context, containerID string) ([]string, error) {
	stdout, _, exitCode, err := a.exec(ctx, containerID, []string{"agent-tool", "--list"}, nil)
	if err != nil {
		return nil, err
	}
	if exitCode != 0 {
		return nil, fmt.Errorf("dockeradapter: list tools exited %d", exitCode)
	}
	var names []string
	for _, line := range strings.Split(strings.TrimSpace(stdout), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			names = append(names, line)
		}
	}
	return names, nil
}

// SyncFile implements sandbox.Adapter by exec'ing a shell that writes stdin
// to path, avoiding a dependency on the Docker copy-to-container API (which
// requires tar framing).
func (a *Adapter) SyncFile(ctx context.Context, containerID, path string, content []byte) error {
	_, stderr, exitCode, err := a.exec(ctx, containerID, []string{"sh", "-c", "cat > " + path}, content)
	if err != nil {
		return err
	}
	if exitCode != 0 {
		return fmt.Errorf("dockeradapter: sync file %s exited %d: %s", path, exitCode, stderr)
	}
	return nil
}

// CleanupProjectContainers implements sandbox.Adapter.
func (a *Adapter) CleanupProjectContainers(ctx context.Context, projectID string) error {
	containers, err := a.cli.ContainerList(ctx, container.ListOptions{All: true})
	if err != nil {
		return fmt.Errorf("dockeradapter: list containers: %w", err)
	}
	for _, c := range containers {
		if c.Labels[containerLabelProject] != projectID {
			continue
		}
		if err := a.Terminate(ctx, c.ID); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the underlying Docker client.
func (a *Adapter) Close() error {
	return a.cli.Close()
}

func (a *Adapter) exec(ctx context.Context, containerID string, cmd []string, stdin []byte) (stdout, stderr string, exitCode int, err error) {
	execConfig := container.ExecOptions{
		Cmd:          cmd,
		AttachStdin:  len(stdin) > 0,
		AttachStdout: true,
		AttachStderr: true,
	}
	execID, err := a.cli.ContainerExecCreate(ctx, containerID, execConfig)
	if err != nil {
		return "", "", 0, fmt.Errorf("dockeradapter: exec create: %w", err)
	}
	attach, err := a.cli.ContainerExecAttach(ctx, execID.ID, container.ExecAttachOptions{})
	if err != nil {
		return "", "", 0, fmt.Errorf("dockeradapter: exec attach: %w", err)
	}
	defer attach.Close()

	if len(stdin) > 0 {
		if _, err := attach.Conn.Write(stdin); err != nil {
			return "", "", 0, fmt.Errorf("dockeradapter: write stdin: %w", err)
		}
		_ = attach.CloseWrite()
	}

	var stdoutBuf, stderrBuf bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdoutBuf, &stderrBuf, attach.Reader); err != nil && err != io.EOF {
		return "", "", 0, fmt.Errorf("dockeradapter: read output: %w", err)
	}

	inspect, err := a.cli.ContainerExecInspect(ctx, execID.ID)
	if err != nil {
		return "", "", 0, fmt.Errorf("dockeradapter: exec inspect: %w", err)
	}
	return stdoutBuf.String(), stderrBuf.String(), inspect.ExitCode, nil
}
