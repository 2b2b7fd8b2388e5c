package sandbox

import "context"

// Store persists ProjectSandbox rows. Implementations must enforce at most
// one row per ProjectID via a unique constraint (the first of the three
// locking layers Service relies on for get_or_create).
type Store interface {
	// Get returns the row for projectID, or ErrNotFound.
	Get(ctx context.Context, projectID string) (*ProjectSandbox, error)
	// Create inserts a new row. Implementations must fail with a detectable
	// conflict error (wrapped, not swallowed) when a row for ProjectID
	// already exists, so Service can treat it as "someone else won the
	// race" rather than a hard failure.
	Create(ctx context.Context, s *ProjectSandbox) error
	// UpdateStatus transitions an existing row's status and related fields.
	UpdateStatus(ctx context.Context, projectID string, status Status, containerID, lastError string) error
	// Delete removes the row entirely (used by GetOrCreate to forget a row
	// whose container is unusable before creating a new one).
	Delete(ctx context.Context, projectID string) error
	// ListByStatus returns all rows in the given status, used by
	// ReconcileOrphans and SyncAll sweeps.
	ListByStatus(ctx context.Context, status Status) ([]*ProjectSandbox, error)
}
