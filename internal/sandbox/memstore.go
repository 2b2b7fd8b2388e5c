package sandbox

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrConflict is returned by MemStore.Create when a row for the project
// already exists, mirroring a unique-constraint violation.
var ErrConflict = errors.New("sandbox: project sandbox already exists")

// MemStore is an in-process Store, the reference implementation used by
// unit tests.
type MemStore struct {
	mu   sync.Mutex
	rows map[string]*ProjectSandbox // project_id -> row
}

var _ Store = (*MemStore)(nil)

// NewMemStore constructs an empty in-memory sandbox store.
func NewMemStore() *MemStore {
	return &MemStore{rows: make(map[string]*ProjectSandbox)}
}

// Get implements Store.
func (s *MemStore) Get(_ context.Context, projectID string) (*ProjectSandbox, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rows[projectID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

// Create implements Store.
func (s *MemStore) Create(_ context.Context, row *ProjectSandbox) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.rows[row.ProjectID]; exists {
		return ErrConflict
	}
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	row.CreatedAt, row.UpdatedAt = now, now
	cp := *row
	s.rows[row.ProjectID] = &cp
	return nil
}

// UpdateStatus implements Store.
func (s *MemStore) UpdateStatus(_ context.Context, projectID string, status Status, containerID, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rows[projectID]
	if !ok {
		return ErrNotFound
	}
	r.Status = status
	if containerID != "" {
		r.ContainerID = containerID
	}
	r.LastError = lastError
	r.UpdatedAt = time.Now().UTC()
	if status == StatusRunning {
		r.LastHealthyAt = r.UpdatedAt
	}
	return nil
}

// Delete implements Store.
func (s *MemStore) Delete(_ context.Context, projectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.rows, projectID)
	return nil
}

// ListByStatus implements Store.
func (s *MemStore) ListByStatus(_ context.Context, status Status) ([]*ProjectSandbox, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*ProjectSandbox
	for _, r := range s.rows {
		if r.Status == status {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}
