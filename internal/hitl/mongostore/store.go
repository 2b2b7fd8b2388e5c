// Package mongostore implements hitl.Store on top of MongoDB, following the
// same collection-wrapping pattern as internal/eventlog/mongostore.
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

	"github.com/agentcore/platform/internal/hitl"
)

const (
	defaultCollection = "pending_hitl_requests"
	defaultTimeout     = 5 * time.Second
	clientName         = "hitl-mongo"
)

type (
	// Options configures the Mongo-backed HITL request store.
	Options struct {
		Client     *mongodriver.Client
		Database   string
		Collection string
		Timeout    time.Duration
	}

	// Store implements hitl.Store and health.Pinger against MongoDB.
	Store struct {
		coll    *mongodriver.Collection
		mongo   *mongodriver.Client
		timeout time.Duration
	}

	requestDocument struct {
		ID             string             `bson:"_id"`
		ConversationID string             `bson:"conversation_id"`
		MessageID      string             `bson:"message_id,omitempty"`
		CallID         string             `bson:"call_id"`
		Kind           string             `bson:"kind"`
		Prompt         string             `bson:"prompt"`
		Options        []optionDocument   `bson:"options,omitempty"`
		EnvVars        []envVarDocument   `bson:"env_vars,omitempty"`
		AllowCustom    bool               `bson:"allow_custom"`
		DefaultChoice  string             `bson:"default_choice"`
		Status         string             `bson:"status"`
		CreatedAt      time.Time          `bson:"created_at"`
		ResolvedAt     time.Time          `bson:"resolved_at,omitempty"`
	}

	optionDocument struct {
		ID            string   `bson:"id"`
		Label         string   `bson:"label"`
		Description   string   `bson:"description"`
		Recommended   bool     `bson:"recommended"`
		EstimatedTime string   `bson:"estimated_time,omitempty"`
		EstimatedCost string   `bson:"estimated_cost,omitempty"`
		Risks         []string `bson:"risks,omitempty"`
	}

	envVarDocument struct {
		Name              string `bson:"name"`
		Description       string `bson:"description"`
		InputType         string `bson:"input_type"`
		Required          bool   `bson:"required"`
		ValidationPattern string `bson:"validation_pattern,omitempty"`
	}
)

var _ hitl.Store = (*Store)(nil)
var _ health.Pinger = (*Store)(nil)

// New builds a Mongo-backed hitl.Store.
func New(ctx context.Context, opts Options) (*Store, error) {
	if opts.Client == nil {
		return nil, errors.New("hitl/mongostore: mongo client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("hitl/mongostore: database name is required")
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
		Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "status", Value: 1}},
	}
	if _, err := s.coll.Indexes().CreateOne(ictx, idx); err != nil {
		return nil, fmt.Errorf("hitl/mongostore: ensure index: %w", err)
	}
	return s, nil
}

// Name implements health.Pinger.
func (s *Store) Name() string { return clientName }

// Ping implements health.Pinger.
func (s *Store) Ping(ctx context.Context) error {
	return s.mongo.Ping(ctx, nil)
}

// Create implements hitl.Store.
func (s *Store) Create(ctx context.Context, r *hitl.Request) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if r.Status == "" {
		r.Status = hitl.StatusPending
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	doc := toDocument(r)
	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("hitl/mongostore: insert request: %w", err)
	}
	return nil
}

// Get implements hitl.Store.
func (s *Store) Get(ctx context.Context, requestID string) (*hitl.Request, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var doc requestDocument
	if err := s.coll.FindOne(ctx, bson.M{"_id": requestID}).Decode(&doc); err != nil {
		if errors.Is(err, mongodriver.ErrNoDocuments) {
			return nil, hitl.ErrNotFound
		}
		return nil, fmt.Errorf("hitl/mongostore: get request: %w", err)
	}
	return fromDocument(doc), nil
}

// Resolve implements hitl.Store, transitioning the request to resolved only
// if it is still pending, matching the at-most-once contract via a
// conditional update filter.
func (s *Store) Resolve(ctx context.Context, requestID string, _ hitl.Response) error {
	return s.transition(ctx, requestID, hitl.StatusResolved)
}

// Cancel implements hitl.Store.
func (s *Store) Cancel(ctx context.Context, requestID string) error {
	return s.transition(ctx, requestID, hitl.StatusCanceled)
}

func (s *Store) transition(ctx context.Context, requestID string, to hitl.Status) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	res, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": requestID, "status": string(hitl.StatusPending)},
		bson.M{"$set": bson.M{"status": string(to), "resolved_at": time.Now().UTC()}},
	)
	if err != nil {
		return fmt.Errorf("hitl/mongostore: update request: %w", err)
	}
	if res.MatchedCount == 0 {
		if _, err := s.Get(ctx, requestID); err != nil {
			return err
		}
		return hitl.ErrAlreadyResolved
	}
	return nil
}

// ListPending implements hitl.Store.
func (s *Store) ListPending(ctx context.Context, conversationID string) ([]*hitl.Request, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	cur, err := s.coll.Find(ctx, bson.M{"conversation_id": conversationID, "status": string(hitl.StatusPending)})
	if err != nil {
		return nil, fmt.Errorf("hitl/mongostore: list pending: %w", err)
	}
	defer cur.Close(ctx)

	var out []*hitl.Request
	for cur.Next(ctx) {
		var doc requestDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, fromDocument(doc))
	}
	return out, cur.Err()
}

func toDocument(r *hitl.Request) requestDocument {
	opts := make([]optionDocument, len(r.Options))
	for i, o := range r.Options {
		opts[i] = optionDocument{
			ID: o.ID, Label: o.Label, Description: o.Description, Recommended: o.Recommended,
			EstimatedTime: o.EstimatedTime, EstimatedCost: o.EstimatedCost, Risks: o.Risks,
		}
	}
	envVars := make([]envVarDocument, len(r.EnvVars))
	for i, e := range r.EnvVars {
		envVars[i] = envVarDocument{
			Name: e.Name, Description: e.Description, InputType: e.InputType,
			Required: e.Required, ValidationPattern: e.ValidationPattern,
		}
	}
	return requestDocument{
		ID: r.ID, ConversationID: r.ConversationID, MessageID: r.MessageID, CallID: r.CallID, Kind: string(r.Kind),
		Prompt: r.Prompt, Options: opts, EnvVars: envVars, AllowCustom: r.AllowCustom,
		DefaultChoice: r.DefaultChoice, Status: string(r.Status), CreatedAt: r.CreatedAt, ResolvedAt: r.ResolvedAt,
	}
}

func fromDocument(doc requestDocument) *hitl.Request {
	opts := make([]hitl.Option, len(doc.Options))
	for i, o := range doc.Options {
		opts[i] = hitl.Option{
			ID: o.ID, Label: o.Label, Description: o.Description, Recommended: o.Recommended,
			EstimatedTime: o.EstimatedTime, EstimatedCost: o.EstimatedCost, Risks: o.Risks,
		}
	}
	envVars := make([]hitl.EnvVarSpec, len(doc.EnvVars))
	for i, e := range doc.EnvVars {
		envVars[i] = hitl.EnvVarSpec{
			Name: e.Name, Description: e.Description, InputType: e.InputType,
			Required: e.Required, ValidationPattern: e.ValidationPattern,
		}
	}
	return &hitl.Request{
		ID: doc.ID, ConversationID: doc.ConversationID, MessageID: doc.MessageID, CallID: doc.CallID, Kind: hitl.Kind(doc.Kind),
		Prompt: doc.Prompt, Options: opts, EnvVars: envVars, AllowCustom: doc.AllowCustom,
		DefaultChoice: doc.DefaultChoice, Status: hitl.Status(doc.Status), CreatedAt: doc.CreatedAt, ResolvedAt: doc.ResolvedAt,
	}
}
