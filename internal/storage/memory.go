package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mailsabhi2007/SNConsultant/pkg/models"
)

// maxMessagesPerConversation limits messages kept per conversation to
// prevent unbounded memory growth. When exceeded, old messages are trimmed.
const maxMessagesPerConversation = 1000

// MemoryStore provides an in-memory Store implementation for testing and
// local runs.
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]*models.Conversation
	messages      map[string][]*models.Message
	handoffs      map[string][]*models.HandoffRecord
	preferences   map[string][]*Preference
}

// NewMemoryStore creates a new in-memory conversation store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: map[string]*models.Conversation{},
		messages:      map[string][]*models.Message{},
		handoffs:      map[string][]*models.HandoffRecord{},
		preferences:   map[string][]*Preference{},
	}
}

func (m *MemoryStore) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	if conv == nil {
		return errNilArg("conversation")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	clone := *conv
	if clone.ID == "" {
		clone.ID = uuid.NewString()
	}
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = time.Now()
	}
	clone.UpdatedAt = clone.CreatedAt
	// Reflect generated fields back to the caller.
	conv.ID = clone.ID
	conv.CreatedAt = clone.CreatedAt
	conv.UpdatedAt = clone.UpdatedAt
	m.conversations[clone.ID] = &clone
	return nil
}

func (m *MemoryStore) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	conv, ok := m.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *conv
	return &clone, nil
}

func (m *MemoryStore) ListConversations(ctx context.Context, userID string, limit int) ([]*models.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*models.Conversation
	for _, conv := range m.conversations {
		if userID != "" && conv.UserID != userID {
			continue
		}
		clone := *conv
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) AppendMessage(ctx context.Context, conversationID string, msg *models.Message) error {
	if msg == nil {
		return errNilArg("message")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	clone := *msg
	if clone.ID == "" {
		clone.ID = uuid.NewString()
	}
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = time.Now()
	}
	clone.ConversationID = conversationID
	msg.ID = clone.ID
	msg.CreatedAt = clone.CreatedAt

	msgs := append(m.messages[conversationID], &clone)
	if len(msgs) > maxMessagesPerConversation {
		msgs = msgs[len(msgs)-maxMessagesPerConversation:]
	}
	m.messages[conversationID] = msgs
	if conv, ok := m.conversations[conversationID]; ok {
		conv.UpdatedAt = clone.CreatedAt
	}
	return nil
}

func (m *MemoryStore) History(ctx context.Context, conversationID string, limit int) ([]*models.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	msgs := m.messages[conversationID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]*models.Message, len(msgs))
	for i, msg := range msgs {
		clone := *msg
		out[i] = &clone
	}
	return out, nil
}

func (m *MemoryStore) RecordHandoff(ctx context.Context, conversationID string, h *models.HandoffRecord) error {
	if h == nil {
		return errNilArg("handoff record")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	clone := *h
	if clone.Timestamp.IsZero() {
		clone.Timestamp = time.Now()
	}
	m.handoffs[conversationID] = append(m.handoffs[conversationID], &clone)
	return nil
}

func (m *MemoryStore) Handoffs(ctx context.Context, conversationID string) ([]*models.HandoffRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	records := m.handoffs[conversationID]
	out := make([]*models.HandoffRecord, len(records))
	for i, h := range records {
		clone := *h
		out[i] = &clone
	}
	return out, nil
}

func (m *MemoryStore) SavePreference(ctx context.Context, userID, category, preference string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.preferences[userID] = append(m.preferences[userID], &Preference{
		ID:         uuid.NewString(),
		UserID:     userID,
		Category:   category,
		Preference: preference,
		CreatedAt:  time.Now(),
	})
	return nil
}

func (m *MemoryStore) Preferences(ctx context.Context, userID string) ([]*Preference, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	prefs := m.preferences[userID]
	out := make([]*Preference, len(prefs))
	for i, p := range prefs {
		clone := *p
		out[i] = &clone
	}
	return out, nil
}

func (m *MemoryStore) Close() error { return nil }
