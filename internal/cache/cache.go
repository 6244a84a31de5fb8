// Package cache implements a semantic response cache backed by SQLite.
//
// The cache stores (query, response, embedding) tuples and answers "is this
// question already answered" lookups. Lookups are scoped to user, model and
// temperature, test a normalized exact text match first, then fall back to
// cosine similarity over the stored embeddings. Entries expire by TTL and
// are removed by a periodic sweep.
//
// Caching is best-effort by contract: callers are expected to swallow
// errors from this package rather than fail a turn on them.
package cache

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver

	"github.com/mailsabhi2007/SNConsultant/internal/embeddings"
)

// DefaultThreshold is the minimum cosine similarity for a semantic hit.
const DefaultThreshold = 0.75

// DefaultTTLDays is the default entry lifetime.
const DefaultTTLDays = 15

const schema = `
CREATE TABLE IF NOT EXISTS semantic_cache (
	cache_id        INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id         TEXT,
	query_text      TEXT NOT NULL,
	response_text   TEXT NOT NULL,
	query_embedding BLOB NOT NULL,
	model_name      TEXT,
	temperature     REAL,
	hit_count       INTEGER NOT NULL DEFAULT 0,
	created_at      TIMESTAMP NOT NULL,
	last_used       TIMESTAMP,
	expires_at      TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_semantic_cache_user ON semantic_cache(user_id);
CREATE INDEX IF NOT EXISTS idx_semantic_cache_expiry ON semantic_cache(expires_at);
`

// Entry is a stored query/response pair.
type Entry struct {
	ID           int64      `json:"cache_id"`
	UserID       string     `json:"user_id,omitempty"` // empty = global
	QueryText    string     `json:"query_text"`
	ResponseText string     `json:"response_text"`
	ModelName    string     `json:"model_name,omitempty"`
	Temperature  *float64   `json:"temperature,omitempty"`
	HitCount     int        `json:"hit_count"`
	CreatedAt    time.Time  `json:"created_at"`
	LastUsed     *time.Time `json:"last_used,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
}

// Match is a cache hit: the entry plus the similarity that selected it.
// Similarity is 1.0 for normalized exact text matches.
type Match struct {
	Entry      Entry   `json:"entry"`
	Similarity float64 `json:"similarity"`
}

// Scope filters lookups and stores to a user/model/temperature combination.
// Zero values mean global/unfiltered.
type Scope struct {
	UserID      string
	ModelName   string
	Temperature *float64
}

// Stats summarizes cache usage.
type Stats struct {
	TotalEntries int     `json:"total_entries"`
	TotalHits    int     `json:"total_hits"`
	AvgHits      float64 `json:"avg_hits_per_entry"`
}

// Store is the SQLite-backed semantic cache.
type Store struct {
	db         *sql.DB
	embedder   embeddings.Provider
	classifier *Classifier
	threshold  float64

	// now is injectable for expiry tests.
	now func() time.Time
}

// Options configures a Store.
type Options struct {
	// Threshold is the minimum cosine similarity for a semantic hit.
	// Defaults to DefaultThreshold.
	Threshold float64

	// Classifier overrides the default cacheability classifier.
	Classifier *Classifier
}

// Open opens (creating if needed) a cache store at the given SQLite path.
func Open(path string, embedder embeddings.Provider, opts Options) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init cache schema: %w", err)
	}
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultThreshold
	}
	if opts.Classifier == nil {
		opts.Classifier = NewClassifier()
	}
	return &Store{
		db:         db,
		embedder:   embedder,
		classifier: opts.Classifier,
		threshold:  opts.Threshold,
		now:        time.Now,
	}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Cacheable reports whether a query may use the cache at all.
func (s *Store) Cacheable(query string) bool {
	return s.classifier.Cacheable(query)
}

// Lookup searches for a previously answered, sufficiently similar query.
//
// Returns nil (a miss) when the query is not cacheable, nothing matches, or
// every candidate falls below the threshold. A normalized exact text match
// short-circuits with similarity 1.0 and is preferred over any other
// candidate regardless of score. On a hit, the entry's hit count and
// last-used timestamp are updated.
func (s *Store) Lookup(ctx context.Context, query string, scope Scope) (*Match, error) {
	if !s.classifier.Cacheable(query) {
		return nil, nil
	}

	candidates, err := s.candidates(ctx, scope)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	// Exact-match fast path: no embedding call needed.
	normalized := NormalizeQuery(query)
	for i := range candidates {
		if NormalizeQuery(candidates[i].entry.QueryText) == normalized {
			match := &Match{Entry: candidates[i].entry, Similarity: 1.0}
			if err := s.recordHit(ctx, match.Entry.ID); err != nil {
				return nil, err
			}
			return match, nil
		}
	}

	queryVec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	var best *Match
	for i := range candidates {
		vec, err := decodeVector(candidates[i].embedding)
		if err != nil {
			continue // skip corrupt rows
		}
		sim := Cosine(queryVec, vec)
		if sim < s.threshold {
			continue
		}
		if best == nil || sim > best.Similarity {
			best = &Match{Entry: candidates[i].entry, Similarity: sim}
		}
	}
	if best == nil {
		return nil, nil
	}
	if err := s.recordHit(ctx, best.Entry.ID); err != nil {
		return nil, err
	}
	return best, nil
}

// Put stores a query/response pair. It is a no-op for non-cacheable
// queries. Duplicate entries for the same query are permitted; the
// exact-match/best-similarity rule resolves them at lookup time.
func (s *Store) Put(ctx context.Context, query, response string, scope Scope, ttlDays int) error {
	if !s.classifier.Cacheable(query) {
		return nil
	}

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return fmt.Errorf("embed query: %w", err)
	}

	now := s.now().UTC()
	var expiresAt any
	if ttlDays > 0 {
		expiresAt = now.AddDate(0, 0, ttlDays)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO semantic_cache (
			user_id, query_text, response_text, query_embedding,
			model_name, temperature, created_at, expires_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		nullString(scope.UserID), query, response, encodeVector(vec),
		nullString(scope.ModelName), scope.Temperature, now, expiresAt,
	)
	if err != nil {
		return fmt.Errorf("insert cache entry: %w", err)
	}
	return nil
}

// SweepExpired deletes all entries whose expiry has passed. Returns the
// number of entries removed. Intended to run periodically, independent of
// request latency.
func (s *Store) SweepExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM semantic_cache
		WHERE expires_at IS NOT NULL AND expires_at < ?`, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("sweep expired entries: %w", err)
	}
	return res.RowsAffected()
}

// PurgeUser deletes all entries scoped to a user. Returns the number of
// entries removed.
func (s *Store) PurgeUser(ctx context.Context, userID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM semantic_cache WHERE user_id = ?`, userID)
	if err != nil {
		return 0, fmt.Errorf("purge user cache: %w", err)
	}
	return res.RowsAffected()
}

// UserStats returns usage statistics for one user's entries.
func (s *Store) UserStats(ctx context.Context, userID string) (Stats, error) {
	return s.stats(ctx, `SELECT COUNT(*), COALESCE(SUM(hit_count),0), COALESCE(AVG(hit_count),0)
		FROM semantic_cache WHERE user_id = ?`, userID)
}

// GlobalStats returns usage statistics across all entries.
func (s *Store) GlobalStats(ctx context.Context) (Stats, error) {
	return s.stats(ctx, `SELECT COUNT(*), COALESCE(SUM(hit_count),0), COALESCE(AVG(hit_count),0)
		FROM semantic_cache`)
}

func (s *Store) stats(ctx context.Context, query string, args ...any) (Stats, error) {
	var st Stats
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&st.TotalEntries, &st.TotalHits, &st.AvgHits); err != nil {
		return Stats{}, fmt.Errorf("cache stats: %w", err)
	}
	return st, nil
}

type candidate struct {
	entry     Entry
	embedding []byte
}

// candidates loads all non-expired entries matching the scope. The model
// and temperature filters apply only when set.
func (s *Store) candidates(ctx context.Context, scope Scope) ([]candidate, error) {
	query := `
		SELECT cache_id, COALESCE(user_id,''), query_text, response_text,
		       query_embedding, COALESCE(model_name,''), temperature,
		       hit_count, created_at, last_used, expires_at
		FROM semantic_cache
		WHERE (expires_at IS NULL OR expires_at > ?)`
	args := []any{s.now().UTC()}

	if scope.UserID != "" {
		query += ` AND user_id = ?`
		args = append(args, scope.UserID)
	} else {
		query += ` AND user_id IS NULL`
	}
	if scope.ModelName != "" {
		query += ` AND model_name = ?`
		args = append(args, scope.ModelName)
	}
	if scope.Temperature != nil {
		query += ` AND temperature = ?`
		args = append(args, *scope.Temperature)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query cache candidates: %w", err)
	}
	defer rows.Close()

	var result []candidate
	for rows.Next() {
		var c candidate
		var temp sql.NullFloat64
		var lastUsed, expiresAt sql.NullTime
		if err := rows.Scan(
			&c.entry.ID, &c.entry.UserID, &c.entry.QueryText, &c.entry.ResponseText,
			&c.embedding, &c.entry.ModelName, &temp,
			&c.entry.HitCount, &c.entry.CreatedAt, &lastUsed, &expiresAt,
		); err != nil {
			return nil, fmt.Errorf("scan cache entry: %w", err)
		}
		if temp.Valid {
			t := temp.Float64
			c.entry.Temperature = &t
		}
		if lastUsed.Valid {
			t := lastUsed.Time
			c.entry.LastUsed = &t
		}
		if expiresAt.Valid {
			t := expiresAt.Time
			c.entry.ExpiresAt = &t
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

func (s *Store) recordHit(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE semantic_cache
		SET hit_count = hit_count + 1, last_used = ?
		WHERE cache_id = ?`, s.now().UTC(), id)
	if err != nil {
		return fmt.Errorf("record cache hit: %w", err)
	}
	return nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
