package sandbox_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/agentcore/platform/internal/sandbox"
)

// memLock is an in-process DistLock used by tests that don't stand up a
// Redis server; it provides the same mutual-exclusion contract.
type memLock struct {
	mu    sync.Mutex
	held  map[string]bool
	inner sync.Mutex
}

func newMemLock() *memLock { return &memLock{held: make(map[string]bool)} }

func (l *memLock) Acquire(ctx context.Context, key string, ttl, acquireTimeout time.Duration) (func(context.Context), error) {
	deadline := time.Now().Add(acquireTimeout)
	for {
		l.mu.Lock()
		if !l.held[key] {
			l.held[key] = true
			l.mu.Unlock()
			return func(context.Context) {
				l.mu.Lock()
				delete(l.held, key)
				l.mu.Unlock()
			}, nil
		}
		l.mu.Unlock()
		if time.Now().After(deadline) {
			return nil, sandbox.ErrLockHeld
		}
		time.Sleep(time.Millisecond)
	}
}

type fakeAdapter struct {
	mu        sync.Mutex
	created   int32
	exists    map[string]bool
	failNextCreate bool
}

func newFakeAdapter() *fakeAdapter { return &fakeAdapter{exists: make(map[string]bool)} }

func (a *fakeAdapter) Create(ctx context.Context, projectID, image string) (string, error) {
	atomic.AddInt32(&a.created, 1)
	id := "container-" + uuid.NewString()
	a.mu.Lock()
	a.exists[id] = true
	a.mu.Unlock()
	return id, nil
}
func (a *fakeAdapter) Terminate(ctx context.Context, containerID string) error {
	a.mu.Lock()
	delete(a.exists, containerID)
	a.mu.Unlock()
	return nil
}
func (a *fakeAdapter) ContainerExists(ctx context.Context, containerID string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.exists[containerID], nil
}
func (a *fakeAdapter) HealthCheck(ctx context.Context, containerID string) error { return nil }
func (a *fakeAdapter) CallTool(ctx context.Context, containerID, toolName string, args []byte) (sandbox.ToolCallResult, error) {
	return sandbox.ToolCallResult{Stdout: "ok", ExitCode: 0}, nil
}
func (a *fakeAdapter) ListTools(ctx context.Context, containerID string) ([]string, error) { return nil, nil }
func (a *fakeAdapter) SyncFile(ctx context.Context, containerID, path string, content []byte) error {
	return nil
}
func (a *fakeAdapter) CleanupProjectContainers(ctx context.Context, projectID string) error { return nil }

func newTestService(adapter *fakeAdapter) *sandbox.Service {
	return sandbox.NewService(sandbox.Options{
		Store:   sandbox.NewMemStore(),
		Adapter: adapter,
		Lock:    newMemLock(),
	})
}

func TestGetOrCreateIsIdempotentUnderConcurrency(t *testing.T) {
	adapter := newFakeAdapter()
	svc := newTestService(adapter)
	ctx := context.Background()

	var wg sync.WaitGroup
	const n = 20
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.GetOrCreate(ctx, "proj-1", "image:latest")
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	require.Equal(t, int32(1), atomic.LoadInt32(&adapter.created))
}

func TestRestartRejectsTerminatedSandbox(t *testing.T) {
	adapter := newFakeAdapter()
	svc := newTestService(adapter)
	ctx := context.Background()

	row, err := svc.GetOrCreate(ctx, "proj-2", "image:latest")
	require.NoError(t, err)
	firstContainer := row.ContainerID

	require.NoError(t, svc.Terminate(ctx, "proj-2"))
	_, err = svc.Restart(ctx, "proj-2")
	require.ErrorIs(t, err, sandbox.ErrTerminal)

	_ = firstContainer
}

func TestTerminateIsIdempotent(t *testing.T) {
	adapter := newFakeAdapter()
	svc := newTestService(adapter)
	ctx := context.Background()

	require.NoError(t, svc.Terminate(ctx, "proj-never-created"))

	_, err := svc.GetOrCreate(ctx, "proj-3", "image:latest")
	require.NoError(t, err)
	require.NoError(t, svc.Terminate(ctx, "proj-3"))
	require.NoError(t, svc.Terminate(ctx, "proj-3"))
}

func TestGetOrCreateRecreatesWhenContainerVanishedOutOfBand(t *testing.T) {
	adapter := newFakeAdapter()
	svc := newTestService(adapter)
	ctx := context.Background()

	row, err := svc.GetOrCreate(ctx, "proj-5", "image:latest")
	require.NoError(t, err)
	firstContainer := row.ContainerID

	// Simulate the container crashing or being removed without going
	// through the service (e.g. killed by the container runtime directly):
	// the DB row still says Running, but the adapter no longer knows about
	// the container, so GetOrCreate must not hand it back as usable
	// (spec.md §4.5/§4.6, testable property 6).
	require.NoError(t, adapter.Terminate(ctx, firstContainer))

	row2, err := svc.GetOrCreate(ctx, "proj-5", "image:latest")
	require.NoError(t, err)
	require.NotEqual(t, firstContainer, row2.ContainerID)
	exists, err := adapter.ContainerExists(ctx, row2.ContainerID)
	require.NoError(t, err)
	require.True(t, exists)
	require.Equal(t, int32(2), atomic.LoadInt32(&adapter.created))
}

func TestReconcileOrphansRecreatesMissingContainer(t *testing.T) {
	adapter := newFakeAdapter()
	svc := newTestService(adapter)
	ctx := context.Background()

	row, err := svc.GetOrCreate(ctx, "proj-4", "image:latest")
	require.NoError(t, err)

	require.NoError(t, adapter.Terminate(ctx, row.ContainerID))

	require.NoError(t, svc.ReconcileOrphans(ctx))
	require.Equal(t, int32(2), atomic.LoadInt32(&adapter.created))
}
