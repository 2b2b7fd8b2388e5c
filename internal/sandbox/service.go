package sandbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/agentcore/platform/internal/telemetry"
)

const (
	defaultLockTTL            = 120 * time.Second
	defaultLockAcquireTimeout = 30 * time.Second
	defaultCreateRetries      = 3
	defaultHealthCacheTTL     = 60 * time.Second
	// DefaultMaxOrphanAge is the age past which ReconcileOrphans terminates
	// an orphaned container instead of adopting it back into a row.
	DefaultMaxOrphanAge = 24 * time.Hour
)

// Options configures a Service.
type Options struct {
	Store              Store
	Adapter            Adapter
	Lock               DistLock
	Log                telemetry.Logger
	DefaultImage        string
	LockTTL             time.Duration
	LockAcquireTimeout  time.Duration
	CreateRetries       int
	HealthCacheTTL      time.Duration
	MaxOrphanAge        time.Duration
}

// Service enforces single-writer semantics on top of Store and Adapter: at
// most one goroutine per project, in this process or another, is ever
// mutating a ProjectSandbox's container at a time.
type Service struct {
	store   Store
	adapter Adapter
	lock    DistLock
	log     telemetry.Logger

	defaultImage       string
	lockTTL            time.Duration
	lockAcquireTimeout time.Duration
	createRetries      int
	healthCacheTTL     time.Duration
	maxOrphanAge       time.Duration

	mu        sync.Mutex
	projectMu map[string]*sync.Mutex // in-process third locking layer
}

// NewService builds a Service from Options, filling zero-value fields with
// the spec's documented defaults.
func NewService(opts Options) *Service {
	log := opts.Log
	if log == nil {
		log = telemetry.NewNoopLogger()
	}
	s := &Service{
		store:              opts.Store,
		adapter:            opts.Adapter,
		lock:               opts.Lock,
		log:                log,
		defaultImage:       opts.DefaultImage,
		lockTTL:            orDefault(opts.LockTTL, defaultLockTTL),
		lockAcquireTimeout: orDefault(opts.LockAcquireTimeout, defaultLockAcquireTimeout),
		createRetries:      opts.CreateRetries,
		healthCacheTTL:     orDefault(opts.HealthCacheTTL, defaultHealthCacheTTL),
		maxOrphanAge:       orDefault(opts.MaxOrphanAge, DefaultMaxOrphanAge),
		projectMu:          make(map[string]*sync.Mutex),
	}
	if s.createRetries <= 0 {
		s.createRetries = defaultCreateRetries
	}
	return s
}

func orDefault(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func (s *Service) projectLock(projectID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.projectMu[projectID]
	if !ok {
		m = &sync.Mutex{}
		s.projectMu[projectID] = m
	}
	return m
}

// GetOrCreate returns the running sandbox for projectID, creating one if
// none exists. It is idempotent: concurrent callers across processes
// converge on exactly one container. Layering is, outside in: an in-process
// mutex (serializes goroutines within this process without round-tripping
// to Redis), a Redis distributed lock (serializes processes), and finally
// the store's unique constraint (the final authority if the first
// two somehow both lose a race, e.g. a lock TTL expiring mid-create).
func (s *Service) GetOrCreate(ctx context.Context, projectID, image string) (*ProjectSandbox, error) {
	if projectID == "" {
		return nil, ErrProjectRequired
	}
	if existing, err := s.store.Get(ctx, projectID); err == nil {
		if s.usableRunning(ctx, existing) {
			return existing, nil
		}
		s.cleanupFailed(ctx, existing)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	pl := s.projectLock(projectID)
	pl.Lock()
	defer pl.Unlock()

	// Re-check now that we hold the in-process lock: another goroutine may
	// have just finished creating it.
	if existing, err := s.store.Get(ctx, projectID); err == nil {
		if s.usableRunning(ctx, existing) {
			return existing, nil
		}
		s.cleanupFailed(ctx, existing)
	}

	lockKey := "sandbox:create:" + projectID
	release, err := s.lock.Acquire(ctx, lockKey, s.lockTTL, s.lockAcquireTimeout)
	if err != nil {
		return nil, fmt.Errorf("sandbox: acquire create lock: %w", err)
	}
	defer release(ctx)

	if existing, err := s.store.Get(ctx, projectID); err == nil {
		if s.usableRunning(ctx, existing) {
			return existing, nil
		}
		s.cleanupFailed(ctx, existing)
	}

	var lastErr error
	for attempt := 1; attempt <= s.createRetries; attempt++ {
		row, err := s.create(ctx, projectID, image)
		if err == nil {
			return row, nil
		}
		if errors.Is(err, ErrConflict) {
			// Someone else's row landed between our Get and our Create; the
			// winner is authoritative, fetch and use it.
			if winner, gerr := s.store.Get(ctx, projectID); gerr == nil {
				return winner, nil
			}
		}
		lastErr = err
		s.log.Warn(ctx, "sandbox create attempt failed", "project_id", projectID, "attempt", attempt, "error", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(float64(attempt)*0.2) * time.Second):
		}
	}
	return nil, fmt.Errorf("sandbox: create failed after %d attempts: %w", s.createRetries, lastErr)
}

// usableRunning reports whether row is both DB-usable and backed by a
// container the adapter still knows about. spec.md §4.5: container_exists
// "returns the true runtime state, not the DB status" — a Running row whose
// container crashed or was removed out-of-band must not be handed back as
// usable just because nothing has swept it yet (spec.md §4.6's
// get_or_create pseudocode checks both; testable property 6).
func (s *Service) usableRunning(ctx context.Context, row *ProjectSandbox) bool {
	if !row.Status.IsUsable() {
		return false
	}
	exists, err := s.adapter.ContainerExists(ctx, row.ContainerID)
	if err != nil {
		s.log.Warn(ctx, "sandbox: container existence check failed", "project_id", row.ProjectID, "error", err)
		return false
	}
	return exists
}

// cleanupFailed terminates row's container (best-effort) and deletes its
// row, per spec.md §4.6's get_or_create pseudocode: "else: cleanup_failed(row)
// # terminate old container, delete row". The caller falls through to
// provisioning a fresh row afterward.
func (s *Service) cleanupFailed(ctx context.Context, row *ProjectSandbox) {
	if row.ContainerID != "" {
		if err := s.adapter.Terminate(ctx, row.ContainerID); err != nil {
			s.log.Warn(ctx, "sandbox: cleanup failed row: terminate failed", "project_id", row.ProjectID, "error", err)
		}
	}
	if err := s.store.Delete(ctx, row.ProjectID); err != nil {
		s.log.Warn(ctx, "sandbox: cleanup failed row: delete failed", "project_id", row.ProjectID, "error", err)
	}
}

func (s *Service) create(ctx context.Context, projectID, image string) (*ProjectSandbox, error) {
	if image == "" {
		image = s.defaultImage
	}
	row := &ProjectSandbox{ProjectID: projectID, Status: StatusStarting, Image: image}
	if err := s.store.Create(ctx, row); err != nil {
		return nil, err
	}

	containerID, err := s.adapter.Create(ctx, projectID, image)
	if err != nil {
		_ = s.store.UpdateStatus(ctx, projectID, StatusError, "", err.Error())
		return nil, fmt.Errorf("sandbox: provision container: %w", err)
	}
	if err := s.store.UpdateStatus(ctx, projectID, StatusRunning, containerID, ""); err != nil {
		return nil, err
	}
	row.Status, row.ContainerID = StatusRunning, containerID
	return row, nil
}

// ExecuteTool routes a tool call into projectID's container.
func (s *Service) ExecuteTool(ctx context.Context, projectID, toolName string, args json.RawMessage) (ToolCallResult, error) {
	row, err := s.store.Get(ctx, projectID)
	if err != nil {
		return ToolCallResult{}, err
	}
	if !row.Status.IsUsable() {
		return ToolCallResult{}, fmt.Errorf("sandbox: project %s sandbox is %s, not usable", projectID, row.Status)
	}
	return s.adapter.CallTool(ctx, row.ContainerID, toolName, args)
}

// SyncFile writes content to path inside projectID's container.
func (s *Service) SyncFile(ctx context.Context, projectID, path string, content []byte) error {
	row, err := s.store.Get(ctx, projectID)
	if err != nil {
		return err
	}
	if !row.Status.IsUsable() {
		return fmt.Errorf("sandbox: project %s sandbox is %s, not usable", projectID, row.Status)
	}
	return s.adapter.SyncFile(ctx, row.ContainerID, path, content)
}

// Restart moves an Error sandbox back to Running by terminating whatever
// container exists (if any) and creating a fresh one, reusing the existing
// row. Restart is idempotent: restarting an already-Running sandbox is a
// no-op that returns the current row.
func (s *Service) Restart(ctx context.Context, projectID string) (*ProjectSandbox, error) {
	pl := s.projectLock(projectID)
	pl.Lock()
	defer pl.Unlock()

	row, err := s.store.Get(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if row.Status.IsUsable() {
		return row, nil
	}
	if row.Status.IsTerminal() {
		return nil, ErrTerminal
	}
	if !CanTransition(row.Status, StatusStarting) {
		return nil, ErrInvalidTransition
	}

	if row.ContainerID != "" {
		if err := s.adapter.Terminate(ctx, row.ContainerID); err != nil {
			s.log.Warn(ctx, "sandbox restart: terminate old container failed", "project_id", projectID, "error", err)
		}
	}
	if err := s.store.UpdateStatus(ctx, projectID, StatusStarting, "", ""); err != nil {
		return nil, err
	}

	containerID, err := s.adapter.Create(ctx, projectID, row.Image)
	if err != nil {
		_ = s.store.UpdateStatus(ctx, projectID, StatusError, "", err.Error())
		return nil, fmt.Errorf("sandbox: restart: provision container: %w", err)
	}
	if err := s.store.UpdateStatus(ctx, projectID, StatusRunning, containerID, ""); err != nil {
		return nil, err
	}
	row.Status, row.ContainerID, row.LastError = StatusRunning, containerID, ""
	return row, nil
}

// Terminate moves projectID's sandbox to Terminated, tearing down its
// container. Terminating an already-terminated sandbox is a no-op.
func (s *Service) Terminate(ctx context.Context, projectID string) error {
	pl := s.projectLock(projectID)
	pl.Lock()
	defer pl.Unlock()

	row, err := s.store.Get(ctx, projectID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	if row.Status.IsTerminal() {
		return nil
	}
	if row.ContainerID != "" {
		if err := s.adapter.Terminate(ctx, row.ContainerID); err != nil {
			return fmt.Errorf("sandbox: terminate container: %w", err)
		}
	}
	return s.store.UpdateStatus(ctx, projectID, StatusTerminated, "", "")
}

// HealthCheck verifies projectID's container is reachable, using
// LastHealthyAt as a cache so repeated calls within healthCacheTTL don't
// round-trip to the backend.
func (s *Service) HealthCheck(ctx context.Context, projectID string) error {
	row, err := s.store.Get(ctx, projectID)
	if err != nil {
		return err
	}
	if !row.Status.IsUsable() {
		return fmt.Errorf("sandbox: project %s sandbox is %s", projectID, row.Status)
	}
	if time.Since(row.LastHealthyAt) < s.healthCacheTTL {
		return nil
	}
	if err := s.adapter.HealthCheck(ctx, row.ContainerID); err != nil {
		_ = s.store.UpdateStatus(ctx, projectID, StatusError, "", err.Error())
		return fmt.Errorf("sandbox: health check: %w", err)
	}
	return s.store.UpdateStatus(ctx, projectID, StatusRunning, row.ContainerID, "")
}

// ReconcileOrphans sweeps Running rows whose container no longer exists: a
// row last updated within maxOrphanAge gets a fresh container in place and
// stays Running, an older one is marked Terminated. It only walks existing
// rows; containers with no ProjectSandbox row are not discovered or
// adopted, and no row is put in StatusOrphan. This is a supplemental sweep
// (not part of the primary four-state machine).
func (s *Service) ReconcileOrphans(ctx context.Context) error {
	rows, err := s.store.ListByStatus(ctx, StatusRunning)
	if err != nil {
		return err
	}
	for _, row := range rows {
		exists, err := s.adapter.ContainerExists(ctx, row.ContainerID)
		if err != nil {
			s.log.Warn(ctx, "reconcile: container existence check failed", "project_id", row.ProjectID, "error", err)
			continue
		}
		if exists {
			continue
		}
		age := time.Since(row.UpdatedAt)
		if age < s.maxOrphanAge {
			s.log.Info(ctx, "reconcile: recreating missing container", "project_id", row.ProjectID, "age", age)
			// The row still exists, so provision in place rather than via
			// create, whose store.Create would conflict with it.
			containerID, err := s.adapter.Create(ctx, row.ProjectID, row.Image)
			if err != nil {
				s.log.Warn(ctx, "reconcile: recreate failed", "project_id", row.ProjectID, "error", err)
				continue
			}
			if err := s.store.UpdateStatus(ctx, row.ProjectID, StatusRunning, containerID, ""); err != nil {
				s.log.Warn(ctx, "reconcile: recreate failed", "project_id", row.ProjectID, "error", err)
			}
			continue
		}
		s.log.Info(ctx, "reconcile: terminating stale orphan", "project_id", row.ProjectID, "age", age)
		if err := s.store.UpdateStatus(ctx, row.ProjectID, StatusTerminated, "", "container missing past max orphan age"); err != nil {
			s.log.Warn(ctx, "reconcile: terminate stale orphan failed", "project_id", row.ProjectID, "error", err)
		}
	}
	return nil
}

// SyncAll runs HealthCheck against every Running sandbox, an optional
// periodic complement to the on-demand, cache-backed HealthCheck.
func (s *Service) SyncAll(ctx context.Context) error {
	rows, err := s.store.ListByStatus(ctx, StatusRunning)
	if err != nil {
		return err
	}
	for _, row := range rows {
		if err := s.adapter.HealthCheck(ctx, row.ContainerID); err != nil {
			s.log.Warn(ctx, "sync: sandbox unhealthy", "project_id", row.ProjectID, "error", err)
			_ = s.store.UpdateStatus(ctx, row.ProjectID, StatusError, "", err.Error())
			continue
		}
		_ = s.store.UpdateStatus(ctx, row.ProjectID, StatusRunning, row.ContainerID, "")
	}
	return nil
}
