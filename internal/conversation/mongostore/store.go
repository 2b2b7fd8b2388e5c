// Package mongostore implements conversation.Store, conversation.CheckpointStore,
// and conversation.AuditStore on top of MongoDB, mirroring the
// collection-wrapping pattern used by internal/eventlog/mongostore and
// internal/hitl/mongostore.
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

	"github.com/agentcore/platform/internal/conversation"

	"github.com/google/uuid"
)

const (
	defaultConversationsCollection = "conversations"
	defaultCheckpointsCollection   = "execution_checkpoints"
	defaultAuditCollection         = "tool_execution_records"
	defaultTimeout                 = 5 * time.Second
	clientName                     = "conversation-mongo"
)

type (
	// Options configures the Mongo-backed conversation stores.
	Options struct {
		Client                 *mongodriver.Client
		Database               string
		ConversationCollection string
		CheckpointCollection   string
		AuditCollection        string
		Timeout                time.Duration
	}

	// Store implements conversation.Store against MongoDB.
	Store struct {
		mongo   *mongodriver.Client
		convs   *mongodriver.Collection
		timeout time.Duration
	}

	// CheckpointStore implements conversation.CheckpointStore against MongoDB.
	CheckpointStore struct {
		checkpoints *mongodriver.Collection
		timeout     time.Duration
	}

	// AuditStore implements conversation.AuditStore against MongoDB.
	AuditStore struct {
		records *mongodriver.Collection
		timeout time.Duration
	}

	conversationDocument struct {
		ID           string    `bson:"_id"`
		TenantID     string    `bson:"tenant_id"`
		ProjectID    string    `bson:"project_id"`
		UserID       string    `bson:"user_id"`
		Title        string    `bson:"title"`
		Status       string    `bson:"status"`
		AgentConfig  []byte    `bson:"agent_config,omitempty"`
		MessageCount int       `bson:"message_count"`
		CreatedAt    time.Time `bson:"created_at"`
		UpdatedAt    time.Time `bson:"updated_at"`
	}

	checkpointDocument struct {
		ID             bson.ObjectID `bson:"_id,omitempty"`
		ConversationID string        `bson:"conversation_id"`
		MessageID      string        `bson:"message_id"`
		Kind           string        `bson:"kind"`
		State          []byte        `bson:"state"`
		CreatedAt      time.Time     `bson:"created_at"`
	}

	auditDocument struct {
		ID             bson.ObjectID `bson:"_id,omitempty"`
		ConversationID string        `bson:"conversation_id"`
		MessageID      string        `bson:"message_id"`
		ToolName       string        `bson:"tool_name"`
		Arguments      []byte        `bson:"arguments,omitempty"`
		Result         []byte        `bson:"result,omitempty"`
		Error          string        `bson:"error,omitempty"`
		DurationMs     int64         `bson:"duration_ms"`
		StartedAt      time.Time     `bson:"started_at"`
	}
)

var _ health.Pinger = (*Store)(nil)

// New builds the three Mongo-backed conversation stores sharing one client
// and database.
func New(ctx context.Context, opts Options) (*Store, *CheckpointStore, *AuditStore, error) {
	if opts.Client == nil {
		return nil, nil, nil, errors.New("conversation/mongostore: mongo client is required")
	}
	if opts.Database == "" {
		return nil, nil, nil, errors.New("conversation/mongostore: database name is required")
	}
	convColl := opts.ConversationCollection
	if convColl == "" {
		convColl = defaultConversationsCollection
	}
	checkpointColl := opts.CheckpointCollection
	if checkpointColl == "" {
		checkpointColl = defaultCheckpointsCollection
	}
	auditColl := opts.AuditCollection
	if auditColl == "" {
		auditColl = defaultAuditCollection
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	db := opts.Client.Database(opts.Database)
	store := &Store{mongo: opts.Client, convs: db.Collection(convColl), timeout: timeout}
	checkpoints := &CheckpointStore{checkpoints: db.Collection(checkpointColl), timeout: timeout}
	audit := &AuditStore{records: db.Collection(auditColl), timeout: timeout}

	ictx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	idx := mongodriver.IndexModel{
		Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "message_id", Value: 1}, {Key: "created_at", Value: 1}},
	}
	if _, err := checkpoints.checkpoints.Indexes().CreateOne(ictx, idx); err != nil {
		return nil, nil, nil, fmt.Errorf("conversation/mongostore: ensure checkpoint index: %w", err)
	}
	if _, err := audit.records.Indexes().CreateOne(ictx, mongodriver.IndexModel{
		Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "started_at", Value: 1}},
	}); err != nil {
		return nil, nil, nil, fmt.Errorf("conversation/mongostore: ensure audit index: %w", err)
	}

	return store, checkpoints, audit, nil
}

// Name implements health.Pinger.
func (s *Store) Name() string { return clientName }

// Ping implements health.Pinger.
func (s *Store) Ping(ctx context.Context) error { return s.mongo.Ping(ctx, nil) }

// Create implements conversation.Store.
func (s *Store) Create(ctx context.Context, c *conversation.Conversation) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Status == "" {
		c.Status = conversation.StatusActive
	}
	now := time.Now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now
	doc := conversationDocument{
		ID: c.ID, TenantID: c.TenantID, ProjectID: c.ProjectID, UserID: c.UserID,
		Title: c.Title, Status: string(c.Status), AgentConfig: []byte(c.AgentConfig),
		MessageCount: c.MessageCount, CreatedAt: c.CreatedAt, UpdatedAt: c.UpdatedAt,
	}
	if _, err := s.convs.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("conversation/mongostore: insert: %w", err)
	}
	return nil
}

// Get implements conversation.Store.
func (s *Store) Get(ctx context.Context, id string) (*conversation.Conversation, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var doc conversationDocument
	err := s.convs.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongodriver.ErrNoDocuments) {
		return nil, conversation.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("conversation/mongostore: get: %w", err)
	}
	return &conversation.Conversation{
		ID: doc.ID, TenantID: doc.TenantID, ProjectID: doc.ProjectID, UserID: doc.UserID,
		Title: doc.Title, Status: conversation.Status(doc.Status), AgentConfig: doc.AgentConfig,
		MessageCount: doc.MessageCount, CreatedAt: doc.CreatedAt, UpdatedAt: doc.UpdatedAt,
	}, nil
}

// IncrementMessageCount implements conversation.Store.
func (s *Store) IncrementMessageCount(ctx context.Context, id string, delta int) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	res, err := s.convs.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$inc": bson.M{"message_count": delta},
		"$set": bson.M{"updated_at": time.Now().UTC()},
	})
	if err != nil {
		return fmt.Errorf("conversation/mongostore: increment message count: %w", err)
	}
	if res.MatchedCount == 0 {
		return conversation.ErrNotFound
	}
	return nil
}

// UpdateStatus implements conversation.Store.
func (s *Store) UpdateStatus(ctx context.Context, id string, status conversation.Status) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	res, err := s.convs.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set": bson.M{"status": string(status), "updated_at": time.Now().UTC()},
	})
	if err != nil {
		return fmt.Errorf("conversation/mongostore: update status: %w", err)
	}
	if res.MatchedCount == 0 {
		return conversation.ErrNotFound
	}
	return nil
}

// Delete implements conversation.Store.
func (s *Store) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if _, err := s.convs.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return fmt.Errorf("conversation/mongostore: delete: %w", err)
	}
	return nil
}

// Write implements conversation.CheckpointStore.
func (s *CheckpointStore) Write(ctx context.Context, c *conversation.ExecutionCheckpoint) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	c.CreatedAt = time.Now().UTC()
	doc := checkpointDocument{
		ID: bson.NewObjectID(), ConversationID: c.ConversationID, MessageID: c.MessageID,
		Kind: string(c.Kind), State: []byte(c.State), CreatedAt: c.CreatedAt,
	}
	if _, err := s.checkpoints.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("conversation/mongostore: write checkpoint: %w", err)
	}
	c.ID = doc.ID.Hex()
	return nil
}

// Latest implements conversation.CheckpointStore.
func (s *CheckpointStore) Latest(ctx context.Context, conversationID, messageID string) (*conversation.ExecutionCheckpoint, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}})
	var doc checkpointDocument
	err := s.checkpoints.FindOne(ctx, bson.M{"conversation_id": conversationID, "message_id": messageID}, opts).Decode(&doc)
	if errors.Is(err, mongodriver.ErrNoDocuments) {
		return nil, conversation.ErrNoCheckpoint
	}
	if err != nil {
		return nil, fmt.Errorf("conversation/mongostore: latest checkpoint: %w", err)
	}
	return &conversation.ExecutionCheckpoint{
		ID: doc.ID.Hex(), ConversationID: doc.ConversationID, MessageID: doc.MessageID,
		Kind: conversation.CheckpointKind(doc.Kind), State: doc.State, CreatedAt: doc.CreatedAt,
	}, nil
}

// DeleteByConversation implements conversation.CheckpointStore.
func (s *CheckpointStore) DeleteByConversation(ctx context.Context, conversationID string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if _, err := s.checkpoints.DeleteMany(ctx, bson.M{"conversation_id": conversationID}); err != nil {
		return fmt.Errorf("conversation/mongostore: delete checkpoints: %w", err)
	}
	return nil
}

// Record implements conversation.AuditStore.
func (s *AuditStore) Record(ctx context.Context, r *conversation.ToolExecutionRecord) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if r.StartedAt.IsZero() {
		r.StartedAt = time.Now().UTC()
	}
	doc := auditDocument{
		ID: bson.NewObjectID(), ConversationID: r.ConversationID, MessageID: r.MessageID,
		ToolName: r.ToolName, Arguments: []byte(r.Arguments), Result: []byte(r.Result),
		Error: r.Error, DurationMs: r.DurationMs, StartedAt: r.StartedAt,
	}
	if _, err := s.records.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("conversation/mongostore: record tool execution: %w", err)
	}
	r.ID = doc.ID.Hex()
	return nil
}

// DeleteByConversation implements conversation.AuditStore.
func (s *AuditStore) DeleteByConversation(ctx context.Context, conversationID string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if _, err := s.records.DeleteMany(ctx, bson.M{"conversation_id": conversationID}); err != nil {
		return fmt.Errorf("conversation/mongostore: delete tool execution records: %w", err)
	}
	return nil
}
