package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/mailsabhi2007/SNConsultant/pkg/models"
)

// runStoreTests exercises the Store contract against an implementation.
func runStoreTests(t *testing.T, open func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("conversation round trip", func(t *testing.T) {
		store := open(t)
		conv := &models.Conversation{UserID: "alice", Title: "SLA questions"}
		if err := store.CreateConversation(ctx, conv); err != nil {
			t.Fatalf("CreateConversation: %v", err)
		}
		if conv.ID == "" {
			t.Fatal("ID should be generated")
		}
		got, err := store.GetConversation(ctx, conv.ID)
		if err != nil {
			t.Fatalf("GetConversation: %v", err)
		}
		if got.UserID != "alice" || got.Title != "SLA questions" {
			t.Errorf("got %+v", got)
		}
	})

	t.Run("missing conversation", func(t *testing.T) {
		store := open(t)
		if _, err := store.GetConversation(ctx, "nope"); !errors.Is(err, ErrNotFound) {
			t.Errorf("err = %v, want ErrNotFound", err)
		}
	})

	t.Run("list filters by user", func(t *testing.T) {
		store := open(t)
		for _, u := range []string{"alice", "alice", "bob"} {
			if err := store.CreateConversation(ctx, &models.Conversation{UserID: u}); err != nil {
				t.Fatalf("CreateConversation: %v", err)
			}
		}
		list, err := store.ListConversations(ctx, "alice", 10)
		if err != nil {
			t.Fatalf("ListConversations: %v", err)
		}
		if len(list) != 2 {
			t.Errorf("len = %d, want 2", len(list))
		}
	})

	t.Run("history is chronological and limited", func(t *testing.T) {
		store := open(t)
		conv := &models.Conversation{UserID: "alice"}
		if err := store.CreateConversation(ctx, conv); err != nil {
			t.Fatalf("CreateConversation: %v", err)
		}
		base := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
		contents := []string{"first", "second", "third", "fourth"}
		for i, content := range contents {
			msg := &models.Message{
				Role:      models.RoleUser,
				Content:   content,
				CreatedAt: base.Add(time.Duration(i) * time.Minute),
			}
			if err := store.AppendMessage(ctx, conv.ID, msg); err != nil {
				t.Fatalf("AppendMessage: %v", err)
			}
		}

		all, err := store.History(ctx, conv.ID, 10)
		if err != nil {
			t.Fatalf("History: %v", err)
		}
		if len(all) != 4 || all[0].Content != "first" || all[3].Content != "fourth" {
			t.Errorf("history out of order: %v", contentsOf(all))
		}

		tail, err := store.History(ctx, conv.ID, 2)
		if err != nil {
			t.Fatalf("History: %v", err)
		}
		if len(tail) != 2 || tail[0].Content != "third" || tail[1].Content != "fourth" {
			t.Errorf("limited history should keep the newest messages, got %v", contentsOf(tail))
		}
	})

	t.Run("messages keep tool payloads", func(t *testing.T) {
		store := open(t)
		conv := &models.Conversation{UserID: "alice"}
		if err := store.CreateConversation(ctx, conv); err != nil {
			t.Fatalf("CreateConversation: %v", err)
		}
		msg := &models.Message{
			Role:    models.RoleAssistant,
			Content: "checking",
			ToolCalls: []models.ToolCall{
				{ID: "t1", Name: "check_table_schema", Input: []byte(`{"table": "incident"}`)},
			},
			Metadata: map[string]any{"agent": "solution_architect"},
		}
		if err := store.AppendMessage(ctx, conv.ID, msg); err != nil {
			t.Fatalf("AppendMessage: %v", err)
		}
		history, err := store.History(ctx, conv.ID, 10)
		if err != nil {
			t.Fatalf("History: %v", err)
		}
		if len(history) != 1 {
			t.Fatalf("len = %d", len(history))
		}
		got := history[0]
		if len(got.ToolCalls) != 1 || got.ToolCalls[0].Name != "check_table_schema" {
			t.Errorf("tool calls = %v", got.ToolCalls)
		}
		if got.Metadata["agent"] != "solution_architect" {
			t.Errorf("metadata = %v", got.Metadata)
		}
	})

	t.Run("handoff trail", func(t *testing.T) {
		store := open(t)
		conv := &models.Conversation{UserID: "alice"}
		if err := store.CreateConversation(ctx, conv); err != nil {
			t.Fatalf("CreateConversation: %v", err)
		}
		records := []*models.HandoffRecord{
			{FromAgent: "consultant", ToAgent: "solution_architect", Reason: "needs design", ContextSummary: "summary one", Timestamp: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)},
			{FromAgent: "solution_architect", ToAgent: "implementation", Reason: "needs live data", ContextSummary: "summary two", Timestamp: time.Date(2026, 5, 1, 9, 5, 0, 0, time.UTC)},
		}
		for _, h := range records {
			if err := store.RecordHandoff(ctx, conv.ID, h); err != nil {
				t.Fatalf("RecordHandoff: %v", err)
			}
		}
		got, err := store.Handoffs(ctx, conv.ID)
		if err != nil {
			t.Fatalf("Handoffs: %v", err)
		}
		if len(got) != 2 || got[0].ToAgent != "solution_architect" || got[1].ToAgent != "implementation" {
			t.Errorf("handoffs = %v", got)
		}
	})

	t.Run("preferences per user", func(t *testing.T) {
		store := open(t)
		if err := store.SavePreference(ctx, "alice", "style", "prefers flows over workflows"); err != nil {
			t.Fatalf("SavePreference: %v", err)
		}
		if err := store.SavePreference(ctx, "bob", "style", "prefers classic workflows"); err != nil {
			t.Fatalf("SavePreference: %v", err)
		}
		prefs, err := store.Preferences(ctx, "alice")
		if err != nil {
			t.Fatalf("Preferences: %v", err)
		}
		if len(prefs) != 1 || prefs[0].Preference != "prefers flows over workflows" {
			t.Errorf("prefs = %v", prefs)
		}
	})

	t.Run("nil arguments rejected", func(t *testing.T) {
		store := open(t)
		if err := store.CreateConversation(ctx, nil); err == nil {
			t.Error("nil conversation should be rejected")
		}
		if err := store.AppendMessage(ctx, "c1", nil); err == nil {
			t.Error("nil message should be rejected")
		}
		if err := store.RecordHandoff(ctx, "c1", nil); err == nil {
			t.Error("nil handoff should be rejected")
		}
	})
}

func contentsOf(msgs []*models.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Content
	}
	return out
}

func TestMemoryStore(t *testing.T) {
	runStoreTests(t, func(t *testing.T) Store {
		return NewMemoryStore()
	})
}

func TestSQLiteStore(t *testing.T) {
	runStoreTests(t, func(t *testing.T) Store {
		store, err := OpenSQLite(filepath.Join(t.TempDir(), "storage.db"))
		if err != nil {
			t.Fatalf("OpenSQLite: %v", err)
		}
		t.Cleanup(func() { store.Close() })
		return store
	})
}
