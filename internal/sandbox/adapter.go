package sandbox

import "context"

// ToolCallResult is the outcome of routing a tool call into a sandbox
// container.
type ToolCallResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Adapter is the execution-backend port the Service drives. A concrete
// binding (internal/sandbox/dockeradapter) implements it against a
// container runtime; Service never talks to that runtime directly.
type Adapter interface {
	// Create provisions a new container for projectID and returns its
	// backend-assigned container ID.
	Create(ctx context.Context, projectID, image string) (containerID string, err error)
	// Terminate stops and removes the container.
	Terminate(ctx context.Context, containerID string) error
	// ContainerExists reports whether the backend still knows about
	// containerID, used by health checks and reconciliation.
	ContainerExists(ctx context.Context, containerID string) (bool, error)
	// HealthCheck verifies the container is reachable and responsive.
	HealthCheck(ctx context.Context, containerID string) error
	// CallTool executes toolName with the given JSON-encoded args inside
	// the container and returns its raw output.
	CallTool(ctx context.Context, containerID, toolName string, args []byte) (ToolCallResult, error)
	// ListTools returns the tool descriptors the container advertises.
	ListTools(ctx context.Context, containerID string) ([]string, error)
	// SyncFile writes content to path inside the container.
	SyncFile(ctx context.Context, containerID, path string, content []byte) error
	// CleanupProjectContainers removes every container this adapter has
	// created for projectID, used by reconciliation and test teardown.
	CleanupProjectContainers(ctx context.Context, projectID string) error
}
