// Package graph declares the knowledge/memory backend port that
// knowledge-oriented builtin tools depend on. No concrete implementation
// ships with this module (spec.md's GraphService is scoped to the
// interface, per its Non-goals); callers wire a real graph store behind
// this port in deployment.
package graph

import "context"

// Node is one stored fact or memory entry.
type Node struct {
	ID      string
	Kind    string
	Content string
	Tags    []string
}

// Service is the port builtin knowledge/memory tools call through.
type Service interface {
	Remember(ctx context.Context, n Node) (string, error)
	Recall(ctx context.Context, query string, limit int) ([]Node, error)
	Forget(ctx context.Context, id string) error
}
