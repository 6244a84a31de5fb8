package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/mailsabhi2007/SNConsultant/pkg/models"
)

const storageSchema = `
CREATE TABLE IF NOT EXISTS conversations (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL DEFAULT '',
	title      TEXT NOT NULL DEFAULT '',
	metadata   TEXT NOT NULL DEFAULT '{}',
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_conversations_user ON conversations(user_id, updated_at);

CREATE TABLE IF NOT EXISTS messages (
	id              TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL,
	role            TEXT NOT NULL,
	content         TEXT NOT NULL,
	tool_calls      TEXT NOT NULL DEFAULT '[]',
	tool_results    TEXT NOT NULL DEFAULT '[]',
	metadata        TEXT NOT NULL DEFAULT '{}',
	created_at      TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at);

CREATE TABLE IF NOT EXISTS handoffs (
	id              TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL,
	from_agent      TEXT NOT NULL,
	to_agent        TEXT NOT NULL,
	reason          TEXT NOT NULL,
	context_summary TEXT NOT NULL,
	created_at      TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_handoffs_conversation ON handoffs(conversation_id, created_at);

CREATE TABLE IF NOT EXISTS preferences (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	category   TEXT NOT NULL,
	preference TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_preferences_user ON preferences(user_id, created_at);
`

// SQLiteStore is a Store backed by an embedded SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (and if needed initializes) a SQLite-backed store at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// The driver serializes access per connection; a single connection
	// avoids SQLITE_BUSY on concurrent writers.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(storageSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	if conv == nil {
		return errNilArg("conversation")
	}
	if conv.ID == "" {
		conv.ID = uuid.NewString()
	}
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = time.Now()
	}
	conv.UpdatedAt = conv.CreatedAt

	meta, err := marshalJSON(conv.Metadata, "{}")
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO conversations (id, user_id, title, metadata, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		conv.ID, conv.UserID, conv.Title, meta, conv.CreatedAt, conv.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert conversation: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, title, metadata, created_at, updated_at
		 FROM conversations WHERE id = ?`, id)

	var conv models.Conversation
	var meta string
	err := row.Scan(&conv.ID, &conv.UserID, &conv.Title, &meta, &conv.CreatedAt, &conv.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan conversation: %w", err)
	}
	if err := json.Unmarshal([]byte(meta), &conv.Metadata); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	return &conv, nil
}

func (s *SQLiteStore) ListConversations(ctx context.Context, userID string, limit int) ([]*models.Conversation, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, title, metadata, created_at, updated_at
		 FROM conversations
		 WHERE (? = '' OR user_id = ?)
		 ORDER BY updated_at DESC LIMIT ?`,
		userID, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query conversations: %w", err)
	}
	defer rows.Close()

	var out []*models.Conversation
	for rows.Next() {
		var conv models.Conversation
		var meta string
		if err := rows.Scan(&conv.ID, &conv.UserID, &conv.Title, &meta, &conv.CreatedAt, &conv.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		if err := json.Unmarshal([]byte(meta), &conv.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
		out = append(out, &conv)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) AppendMessage(ctx context.Context, conversationID string, msg *models.Message) error {
	if msg == nil {
		return errNilArg("message")
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	msg.ConversationID = conversationID

	calls, err := marshalJSON(msg.ToolCalls, "[]")
	if err != nil {
		return fmt.Errorf("encode tool calls: %w", err)
	}
	results, err := marshalJSON(msg.ToolResults, "[]")
	if err != nil {
		return fmt.Errorf("encode tool results: %w", err)
	}
	meta, err := marshalJSON(msg.Metadata, "{}")
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO messages (id, conversation_id, role, content, tool_calls, tool_results, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, conversationID, string(msg.Role), msg.Content, calls, results, meta, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE conversations SET updated_at = ? WHERE id = ?`, msg.CreatedAt, conversationID)
	if err != nil {
		return fmt.Errorf("touch conversation: %w", err)
	}
	return nil
}

func (s *SQLiteStore) History(ctx context.Context, conversationID string, limit int) ([]*models.Message, error) {
	if limit <= 0 {
		limit = 200
	}
	// Most recent N, then reversed back into chronological order.
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, role, content, tool_calls, tool_results, metadata, created_at
		 FROM (
			SELECT * FROM messages WHERE conversation_id = ?
			ORDER BY created_at DESC, id DESC LIMIT ?
		 ) ORDER BY created_at ASC, id ASC`,
		conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var out []*models.Message
	for rows.Next() {
		msg := &models.Message{ConversationID: conversationID}
		var role, calls, results, meta string
		if err := rows.Scan(&msg.ID, &role, &msg.Content, &calls, &results, &meta, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.Role = models.Role(role)
		if err := json.Unmarshal([]byte(calls), &msg.ToolCalls); err != nil {
			return nil, fmt.Errorf("decode tool calls: %w", err)
		}
		if err := json.Unmarshal([]byte(results), &msg.ToolResults); err != nil {
			return nil, fmt.Errorf("decode tool results: %w", err)
		}
		if err := json.Unmarshal([]byte(meta), &msg.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) RecordHandoff(ctx context.Context, conversationID string, h *models.HandoffRecord) error {
	if h == nil {
		return errNilArg("handoff record")
	}
	if h.Timestamp.IsZero() {
		h.Timestamp = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO handoffs (id, conversation_id, from_agent, to_agent, reason, context_summary, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), conversationID, h.FromAgent, h.ToAgent, h.Reason, h.ContextSummary, h.Timestamp)
	if err != nil {
		return fmt.Errorf("insert handoff: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Handoffs(ctx context.Context, conversationID string) ([]*models.HandoffRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT from_agent, to_agent, reason, context_summary, created_at
		 FROM handoffs WHERE conversation_id = ? ORDER BY created_at ASC`,
		conversationID)
	if err != nil {
		return nil, fmt.Errorf("query handoffs: %w", err)
	}
	defer rows.Close()

	var out []*models.HandoffRecord
	for rows.Next() {
		var h models.HandoffRecord
		if err := rows.Scan(&h.FromAgent, &h.ToAgent, &h.Reason, &h.ContextSummary, &h.Timestamp); err != nil {
			return nil, fmt.Errorf("scan handoff: %w", err)
		}
		out = append(out, &h)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SavePreference(ctx context.Context, userID, category, preference string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO preferences (id, user_id, category, preference, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		uuid.NewString(), userID, category, preference, time.Now())
	if err != nil {
		return fmt.Errorf("insert preference: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Preferences(ctx context.Context, userID string) ([]*Preference, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, category, preference, created_at
		 FROM preferences WHERE user_id = ? ORDER BY created_at ASC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("query preferences: %w", err)
	}
	defer rows.Close()

	var out []*Preference
	for rows.Next() {
		var p Preference
		if err := rows.Scan(&p.ID, &p.UserID, &p.Category, &p.Preference, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan preference: %w", err)
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func marshalJSON(v any, empty string) (string, error) {
	if v == nil {
		return empty, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
