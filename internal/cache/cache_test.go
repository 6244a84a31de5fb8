package cache

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

// stubEmbedder returns scripted vectors per text, with a fallback.
type stubEmbedder struct {
	vectors map[string][]float32
	err     error
	calls   int
}

func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if v, ok := s.vectors[text]; ok {
		return v, nil
	}
	return []float32{1, 0, 0}, nil
}

func (s *stubEmbedder) Name() string   { return "stub" }
func (s *stubEmbedder) Dimension() int { return 3 }

func openTestStore(t *testing.T, embedder *stubEmbedder) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "cache.db"), embedder, Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestLookupExactMatchSkipsEmbedding(t *testing.T) {
	ctx := context.Background()
	embedder := &stubEmbedder{}
	store := openTestStore(t, embedder)

	scope := Scope{UserID: "alice"}
	if err := store.Put(ctx, "How do I create a business rule?", "Use the rule editor.", scope, DefaultTTLDays); err != nil {
		t.Fatalf("Put: %v", err)
	}

	// Embedding failures after this point prove the exact path never embeds.
	embedder.err = errors.New("embedding service down")

	match, err := store.Lookup(ctx, "how do i  CREATE a business rule?", scope)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if match == nil {
		t.Fatal("expected an exact match")
	}
	if match.Similarity != 1.0 {
		t.Errorf("similarity = %v, want 1.0", match.Similarity)
	}
	if match.Entry.ResponseText != "Use the rule editor." {
		t.Errorf("response = %q", match.Entry.ResponseText)
	}
}

func TestLookupSemanticSimilarity(t *testing.T) {
	ctx := context.Background()
	embedder := &stubEmbedder{vectors: map[string][]float32{
		"How do I configure SLAs?":     {1, 0, 0},
		"How can I set up SLA timers?": {0.95, 0.3, 0}, // above threshold
		"Explain import sets":          {0, 0, 1},      // orthogonal
	}}
	store := openTestStore(t, embedder)

	scope := Scope{UserID: "alice"}
	if err := store.Put(ctx, "How do I configure SLAs?", "Define SLA records per priority.", scope, DefaultTTLDays); err != nil {
		t.Fatalf("Put: %v", err)
	}

	match, err := store.Lookup(ctx, "How can I set up SLA timers?", scope)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if match == nil {
		t.Fatal("expected a semantic hit above the threshold")
	}
	if match.Similarity >= 1.0 || match.Similarity < DefaultThreshold {
		t.Errorf("similarity = %v, want in [%v, 1)", match.Similarity, DefaultThreshold)
	}

	miss, err := store.Lookup(ctx, "Explain import sets", scope)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if miss != nil {
		t.Errorf("orthogonal query must miss, got %+v", miss)
	}
}

func TestLookupRecordsHit(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t, &stubEmbedder{})

	scope := Scope{UserID: "alice"}
	if err := store.Put(ctx, "How do I create a catalog item?", "Use the catalog builder.", scope, DefaultTTLDays); err != nil {
		t.Fatalf("Put: %v", err)
	}
	for i := 0; i < 2; i++ {
		if _, err := store.Lookup(ctx, "How do I create a catalog item?", scope); err != nil {
			t.Fatalf("Lookup %d: %v", i, err)
		}
	}

	stats, err := store.UserStats(ctx, "alice")
	if err != nil {
		t.Fatalf("UserStats: %v", err)
	}
	if stats.TotalEntries != 1 || stats.TotalHits != 2 {
		t.Errorf("stats = %+v, want 1 entry with 2 hits", stats)
	}
}

func TestPutSkipsNonCacheableQueries(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t, &stubEmbedder{})

	if err := store.Put(ctx, "Show me the error log from my instance", "three failures", Scope{UserID: "alice"}, DefaultTTLDays); err != nil {
		t.Fatalf("Put: %v", err)
	}
	stats, err := store.UserStats(ctx, "alice")
	if err != nil {
		t.Fatalf("UserStats: %v", err)
	}
	if stats.TotalEntries != 0 {
		t.Errorf("entries = %d, live-data queries must not be stored", stats.TotalEntries)
	}
}

func TestExpiryAndSweep(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t, &stubEmbedder{})

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return base }

	scope := Scope{UserID: "alice"}
	if err := store.Put(ctx, "How do I schedule a report?", "Use scheduled jobs.", scope, 1); err != nil {
		t.Fatalf("Put: %v", err)
	}

	// Still fresh.
	if match, _ := store.Lookup(ctx, "How do I schedule a report?", scope); match == nil {
		t.Fatal("entry should be live before expiry")
	}

	store.now = func() time.Time { return base.AddDate(0, 0, 2) }

	if match, _ := store.Lookup(ctx, "How do I schedule a report?", scope); match != nil {
		t.Error("expired entry must not match")
	}
	removed, err := store.SweepExpired(ctx)
	if err != nil {
		t.Fatalf("SweepExpired: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
}

func TestNoExpiryWhenTTLZero(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t, &stubEmbedder{})

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return base }

	scope := Scope{UserID: "alice"}
	if err := store.Put(ctx, "How do I export a report?", "Use the export menu.", scope, 0); err != nil {
		t.Fatalf("Put: %v", err)
	}

	store.now = func() time.Time { return base.AddDate(10, 0, 0) }

	if match, _ := store.Lookup(ctx, "How do I export a report?", scope); match == nil {
		t.Error("zero TTL entries must never expire")
	}
	if removed, _ := store.SweepExpired(ctx); removed != 0 {
		t.Errorf("sweep removed %d entries, want 0", removed)
	}
}

func TestScopeSeparatesUsers(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t, &stubEmbedder{})

	if err := store.Put(ctx, "How do I reset a password?", "alice's answer", Scope{UserID: "alice"}, DefaultTTLDays); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := store.Put(ctx, "How do I reset a password?", "global answer", Scope{}, DefaultTTLDays); err != nil {
		t.Fatalf("Put: %v", err)
	}

	match, err := store.Lookup(ctx, "How do I reset a password?", Scope{UserID: "bob"})
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if match != nil {
		t.Errorf("bob must not see alice's entries, got %q", match.Entry.ResponseText)
	}

	global, err := store.Lookup(ctx, "How do I reset a password?", Scope{})
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if global == nil || global.Entry.ResponseText != "global answer" {
		t.Errorf("global lookup = %+v, want the global entry", global)
	}
}

func TestPurgeUser(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t, &stubEmbedder{})

	if err := store.Put(ctx, "How do I clone an instance?", "Request a clone.", Scope{UserID: "alice"}, DefaultTTLDays); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := store.Put(ctx, "How do I clone an instance?", "Request a clone.", Scope{UserID: "bob"}, DefaultTTLDays); err != nil {
		t.Fatalf("Put: %v", err)
	}

	removed, err := store.PurgeUser(ctx, "alice")
	if err != nil {
		t.Fatalf("PurgeUser: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	stats, err := store.UserStats(ctx, "bob")
	if err != nil {
		t.Fatalf("UserStats: %v", err)
	}
	if stats.TotalEntries != 1 {
		t.Errorf("bob's entries = %d, purge must not cross users", stats.TotalEntries)
	}
}

func TestDuplicateEntriesResolvedAtLookup(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t, &stubEmbedder{})

	scope := Scope{UserID: "alice"}
	if err := store.Put(ctx, "How do I write a UI policy?", "first answer", scope, DefaultTTLDays); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := store.Put(ctx, "How do I write a UI policy?", "second answer", scope, DefaultTTLDays); err != nil {
		t.Fatalf("Put: %v", err)
	}

	match, err := store.Lookup(ctx, "How do I write a UI policy?", scope)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if match == nil {
		t.Fatal("expected a hit despite duplicates")
	}
	if match.Similarity != 1.0 {
		t.Errorf("similarity = %v, want 1.0", match.Similarity)
	}
}
