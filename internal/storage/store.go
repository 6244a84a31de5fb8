// Package storage persists conversations, message history, handoff records
// and learned user preferences.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/mailsabhi2007/SNConsultant/pkg/models"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("storage: not found")

func errNilArg(name string) error {
	return errors.New("storage: " + name + " is required")
}

// Store is the interface for conversation persistence.
type Store interface {
	// Conversation CRUD
	CreateConversation(ctx context.Context, conv *models.Conversation) error
	GetConversation(ctx context.Context, id string) (*models.Conversation, error)
	ListConversations(ctx context.Context, userID string, limit int) ([]*models.Conversation, error)

	// Message history
	AppendMessage(ctx context.Context, conversationID string, msg *models.Message) error
	History(ctx context.Context, conversationID string, limit int) ([]*models.Message, error)

	// Handoff audit trail
	RecordHandoff(ctx context.Context, conversationID string, h *models.HandoffRecord) error
	Handoffs(ctx context.Context, conversationID string) ([]*models.HandoffRecord, error)

	// Learned preferences
	SavePreference(ctx context.Context, userID, category, preference string) error
	Preferences(ctx context.Context, userID string) ([]*Preference, error)

	Close() error
}

// Preference is one durable fact learned about a user.
type Preference struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Category   string    `json:"category"`
	Preference string    `json:"preference"`
	CreatedAt  time.Time `json:"created_at"`
}
