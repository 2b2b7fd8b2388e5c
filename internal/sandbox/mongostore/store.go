// Package mongostore implements sandbox.Store on top of MongoDB, with a
// unique index on project_id providing the first of the three locking
// layers sandbox.Service relies on for get_or_create.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"goa.design/clue/health"

	"github.com/agentcore/platform/internal/sandbox"
)

const (
	defaultCollection = "project_sandboxes"
	defaultTimeout     = 5 * time.Second
	clientName         = "sandbox-mongo"
)

type (
	Options struct {
		Client     *mongodriver.Client
		Database   string
		Collection string
		Timeout    time.Duration
	}

	Store struct {
		coll    *mongodriver.Collection
		mongo   *mongodriver.Client
		timeout time.Duration
	}

	sandboxDocument struct {
		ID            string    `bson:"_id"`
		ProjectID     string    `bson:"project_id"`
		Status        string    `bson:"status"`
		ContainerID   string    `bson:"container_id,omitempty"`
		Image         string    `bson:"image,omitempty"`
		LastError     string    `bson:"last_error,omitempty"`
		LastHealthyAt time.Time `bson:"last_healthy_at,omitempty"`
		CreatedAt     time.Time `bson:"created_at"`
		UpdatedAt     time.Time `bson:"updated_at"`
	}
)

var _ sandbox.Store = (*Store)(nil)
var _ health.Pinger = (*Store)(nil)

// New builds a Mongo-backed sandbox.Store, ensuring the unique index on
// project_id that backs get_or_create's first locking layer.
func New(ctx context.Context, opts Options) (*Store, error) {
	if opts.Client == nil {
		return nil, errors.New("sandbox/mongostore: mongo client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("sandbox/mongostore: database name is required")
	}
	collName := opts.Collection
	if collName == "" {
		collName = defaultCollection
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	s := &Store{
		coll:    opts.Client.Database(opts.Database).Collection(collName),
		mongo:   opts.Client,
		timeout: timeout,
	}

	ictx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	idx := mongodriver.IndexModel{
		Keys:    bson.D{{Key: "project_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := s.coll.Indexes().CreateOne(ictx, idx); err != nil {
		return nil, fmt.Errorf("sandbox/mongostore: ensure index: %w", err)
	}
	return s, nil
}

func (s *Store) Name() string { return clientName }

func (s *Store) Ping(ctx context.Context) error { return s.mongo.Ping(ctx, nil) }

func (s *Store) Get(ctx context.Context, projectID string) (*sandbox.ProjectSandbox, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var doc sandboxDocument
	if err := s.coll.FindOne(ctx, bson.M{"project_id": projectID}).Decode(&doc); err != nil {
		if errors.Is(err, mongodriver.ErrNoDocuments) {
			return nil, sandbox.ErrNotFound
		}
		return nil, fmt.Errorf("sandbox/mongostore: get: %w", err)
	}
	return fromDocument(doc), nil
}

// Create implements sandbox.Store. A duplicate-key error from the unique
// project_id index surfaces as sandbox.ErrConflict so Service can treat it
// as "another process already created this row."
func (s *Store) Create(ctx context.Context, row *sandbox.ProjectSandbox) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	now := time.Now().UTC()
	if row.ID == "" {
		row.ID = bson.NewObjectID().Hex()
	}
	row.CreatedAt, row.UpdatedAt = now, now
	doc := toDocument(row)
	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		if mongodriver.IsDuplicateKeyError(err) {
			return sandbox.ErrConflict
		}
		return fmt.Errorf("sandbox/mongostore: insert: %w", err)
	}
	return nil
}

func (s *Store) UpdateStatus(ctx context.Context, projectID string, status sandbox.Status, containerID, lastError string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	now := time.Now().UTC()
	set := bson.M{"status": string(status), "last_error": lastError, "updated_at": now}
	if containerID != "" {
		set["container_id"] = containerID
	}
	if status == sandbox.StatusRunning {
		set["last_healthy_at"] = now
	}
	res, err := s.coll.UpdateOne(ctx, bson.M{"project_id": projectID}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("sandbox/mongostore: update status: %w", err)
	}
	if res.MatchedCount == 0 {
		return sandbox.ErrNotFound
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, projectID string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if _, err := s.coll.DeleteOne(ctx, bson.M{"project_id": projectID}); err != nil {
		return fmt.Errorf("sandbox/mongostore: delete: %w", err)
	}
	return nil
}

func (s *Store) ListByStatus(ctx context.Context, status sandbox.Status) ([]*sandbox.ProjectSandbox, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	cur, err := s.coll.Find(ctx, bson.M{"status": string(status)})
	if err != nil {
		return nil, fmt.Errorf("sandbox/mongostore: list by status: %w", err)
	}
	defer cur.Close(ctx)

	var out []*sandbox.ProjectSandbox
	for cur.Next(ctx) {
		var doc sandboxDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, fromDocument(doc))
	}
	return out, cur.Err()
}

func toDocument(r *sandbox.ProjectSandbox) sandboxDocument {
	return sandboxDocument{
		ID: r.ID, ProjectID: r.ProjectID, Status: string(r.Status), ContainerID: r.ContainerID,
		Image: r.Image, LastError: r.LastError, LastHealthyAt: r.LastHealthyAt,
		CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
	}
}

func fromDocument(doc sandboxDocument) *sandbox.ProjectSandbox {
	return &sandbox.ProjectSandbox{
		ID: doc.ID, ProjectID: doc.ProjectID, Status: sandbox.Status(doc.Status), ContainerID: doc.ContainerID,
		Image: doc.Image, LastError: doc.LastError, LastHealthyAt: doc.LastHealthyAt,
		CreatedAt: doc.CreatedAt, UpdatedAt: doc.UpdatedAt,
	}
}
