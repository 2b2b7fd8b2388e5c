// Package sandbox implements the project-sandbox lifecycle: a single-writer
// state machine per project (spec.md L4), the adapter contract for the
// underlying execution backend (L5), and the service that enforces
// single-writer semantics and exposes get_or_create/execute_tool/restart/
// terminate/health_check/sync_file (L6).
package sandbox

import (
	"errors"
	"time"
)

// Status is a ProjectSandbox's lifecycle state.
type Status string

const (
	StatusStarting   Status = "starting"
	StatusRunning    Status = "running"
	StatusError      Status = "error"
	StatusTerminated Status = "terminated"
	// StatusOrphan names a container with no matching ProjectSandbox row,
	// or a row that claims RUNNING while its container is gone. No code
	// path in this package sets it: ReconcileOrphans moves such rows
	// straight to Running or Terminated.
	StatusOrphan Status = "orphan"
)

// ProjectSandbox is the durable representation of one project's execution
// container. At most one row exists per ProjectID (spec.md data model).
type ProjectSandbox struct {
	ID            string
	ProjectID     string
	Status        Status
	ContainerID   string
	Image         string
	LastError     string
	LastHealthyAt time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// transitions is the permitted-transition table (spec.md §4.4). A sandbox
// may only move along an edge listed here; any other requested transition
// is rejected by Service before it touches the store.
var transitions = map[Status][]Status{
	StatusStarting:   {StatusRunning, StatusError},
	StatusRunning:    {StatusError, StatusTerminated},
	StatusError:      {StatusStarting, StatusTerminated},
	StatusTerminated: {},
}

// CanTransition reports whether moving from to is a permitted edge.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsUsable reports whether tool calls may be routed to a sandbox in this
// status without first restarting it.
func (s Status) IsUsable() bool { return s == StatusRunning }

// IsActive reports whether the sandbox still occupies backend resources
// (starting or running, as opposed to terminated or errored-out).
func (s Status) IsActive() bool { return s == StatusStarting || s == StatusRunning }

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool { return s == StatusTerminated }

// IsRecoverable reports whether Restart can move this status back toward
// Running without first terminating and recreating the row.
func (s Status) IsRecoverable() bool { return s == StatusError }

// ErrProjectRequired is returned when an operation is missing its project ID.
var ErrProjectRequired = errors.New("sandbox: project id is required")

// ErrInvalidTransition is returned when a requested status change is not a
// permitted edge in the transition table.
var ErrInvalidTransition = errors.New("sandbox: invalid status transition")

// ErrNotFound is returned when no ProjectSandbox row exists for a project.
var ErrNotFound = errors.New("sandbox: project sandbox not found")

// ErrTerminal is returned when an operation is attempted against a
// terminated sandbox.
var ErrTerminal = errors.New("sandbox: sandbox is terminated")
