package eventlog

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemStore is an in-process Store implementation. It is the reference
// implementation exercised by the unit tests for the universally quantified
// properties in spec §8 (dense sequences, happens-before ordering); the
// Mongo-backed Store in internal/eventlog/mongostore satisfies the same
// contract against a durable backend.
type MemStore struct {
	mu    sync.Mutex
	seq   map[string]int64      // conversation_id -> last allocated sequence
	byConv map[string][]*Record // conversation_id -> records, append order == sequence order
}

// NewMemStore constructs an empty in-memory event log.
func NewMemStore() *MemStore {
	return &MemStore{
		seq:    make(map[string]int64),
		byConv: make(map[string][]*Record),
	}
}

// Append implements Store. Sequence allocation is serialized per
// conversation by the store-wide mutex; this is sufficient for a
// single-process store (the Mongo store uses a per-conversation document
// counter instead so that multiple processes stay correct).
func (s *MemStore) Append(_ context.Context, r *Record) error {
	if err := Validate(r); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.seq[r.ConversationID] + 1
	s.seq[r.ConversationID] = next

	r.ID = uuid.NewString()
	r.Sequence = next
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	s.byConv[r.ConversationID] = append(s.byConv[r.ConversationID], r)
	return nil
}

// ListByConversation implements Store.
func (s *MemStore) ListByConversation(_ context.Context, conversationID string, sinceSeq int64) ([]*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := s.byConv[conversationID]
	out := make([]*Record, 0, len(all))
	for _, r := range all {
		if r.Sequence > sinceSeq {
			out = append(out, r)
		}
	}
	return out, nil
}

// ListByMessage implements Store.
func (s *MemStore) ListByMessage(_ context.Context, conversationID, messageID string) ([]*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*Record
	for _, r := range s.byConv[conversationID] {
		if r.MessageID == messageID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out, nil
}

// DeleteByConversation implements Store.
func (s *MemStore) DeleteByConversation(_ context.Context, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.byConv, conversationID)
	delete(s.seq, conversationID)
	return nil
}
