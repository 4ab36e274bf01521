package cache

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS translations (
	key         TEXT PRIMARY KEY,
	source      TEXT NOT NULL,
	translated  TEXT NOT NULL,
	provider    TEXT NOT NULL,
	model       TEXT NOT NULL,
	target_lang TEXT NOT NULL,
	tokens      INTEGER NOT NULL,
	created_at  TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_translations_created ON translations(created_at);
`

// Entry is one remembered translation.
type Entry struct {
	Source     string
	Translated string
	Provider   string
	Model      string
	TargetLang string
	Tokens     int
	CreatedAt  time.Time
}

// Stats summarizes cache effectiveness for the run summary.
type Stats struct {
	Entries     int
	Hits        int
	Misses      int
	TokensSaved int
}

// Cache is a persistent translation memory. Identical chunks resolved
// with the same model and target language are served from disk instead
// of the API. Safe for concurrent use.
type Cache struct {
	db  *sql.DB
	log *slog.Logger

	mu     sync.Mutex
	hits   int
	misses int
	saved  int
}

// Open creates or opens the cache database at path.
func Open(path string, logger *slog.Logger) (*Cache, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create cache directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize cache schema: %w", err)
	}
	return &Cache{db: db, log: logger}, nil
}

// Key derives the lookup key for one chunk. The same text translated
// to a different language or with a different model is a different
// entry.
func Key(source, model, targetLang string) string {
	h := sha256.New()
	h.Write([]byte(source))
	h.Write([]byte{0})
	h.Write([]byte(model))
	h.Write([]byte{0})
	h.Write([]byte(targetLang))
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns the remembered translation for a chunk, if any.
func (c *Cache) Get(ctx context.Context, source, model, targetLang string) (Entry, bool, error) {
	var e Entry
	row := c.db.QueryRowContext(ctx,
		`SELECT source, translated, provider, model, target_lang, tokens, created_at
		 FROM translations WHERE key = ?`, Key(source, model, targetLang))
	err := row.Scan(&e.Source, &e.Translated, &e.Provider, &e.Model, &e.TargetLang, &e.Tokens, &e.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		c.mu.Lock()
		c.misses++
		c.mu.Unlock()
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("cache lookup failed: %w", err)
	}
	c.mu.Lock()
	c.hits++
	c.saved += e.Tokens
	c.mu.Unlock()
	return e, true, nil
}

// Put remembers a completed translation, replacing any previous entry
// for the same key.
func (c *Cache) Put(ctx context.Context, e Entry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	_, err := c.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO translations
		 (key, source, translated, provider, model, target_lang, tokens, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		Key(e.Source, e.Model, e.TargetLang),
		e.Source, e.Translated, e.Provider, e.Model, e.TargetLang, e.Tokens, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("cache store failed: %w", err)
	}
	return nil
}

// Prune deletes entries older than maxAge and returns how many were
// removed.
func (c *Cache) Prune(ctx context.Context, maxAge time.Duration) (int, error) {
	res, err := c.db.ExecContext(ctx,
		`DELETE FROM translations WHERE created_at < ?`, time.Now().Add(-maxAge))
	if err != nil {
		return 0, fmt.Errorf("cache prune failed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n > 0 {
		c.log.Debug("pruned cache entries", "removed", n)
	}
	return int(n), nil
}

// Stats returns counters for the current process plus the total entry
// count on disk.
func (c *Cache) Stats(ctx context.Context) (Stats, error) {
	var entries int
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM translations`).Scan(&entries); err != nil {
		return Stats{}, fmt.Errorf("cache stats failed: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Entries:     entries,
		Hits:        c.hits,
		Misses:      c.misses,
		TokensSaved: c.saved,
	}, nil
}

// Close releases the database handle.
func (c *Cache) Close() error {
	return c.db.Close()
}
