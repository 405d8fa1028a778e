// Package resultcache stores validated provider results keyed by asset
// content hash, analysis kind, and model. The cache is a shared SQLite table
// rather than process memory, so every worker sees the same entries and a
// re-analysis of identical bytes never pays for a second provider call.
package resultcache

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"mivvo/internal/config"
	"mivvo/internal/logging"
	"mivvo/internal/providers"
	"mivvo/internal/report"
)

const schema = `
CREATE TABLE IF NOT EXISTS provider_results (
    cache_key  TEXT PRIMARY KEY,
    kind       TEXT NOT NULL,
    model      TEXT NOT NULL,
    payload    TEXT NOT NULL,
    created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_provider_results_created ON provider_results (created_at);
`

// Cache is the shared provider-result cache. A disabled cache is a valid
// no-op instance: Get always misses and Put discards.
type Cache struct {
	db      *sql.DB
	enabled bool
	maxAge  time.Duration
	logger  *slog.Logger
}

// Open creates the cache against the shared database file. When the cache is
// disabled in configuration no database handle is opened.
func Open(cfg *config.Config, logger *slog.Logger) (*Cache, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.NewComponentLogger(logger, "resultcache")

	cache := &Cache{logger: logger}
	if !cfg.ResultCache.Enabled {
		return cache, nil
	}

	dataDir := strings.TrimSpace(cfg.Paths.DataDir)
	if dataDir == "" {
		return nil, errors.New("resultcache: data directory not configured")
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("resultcache: create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "mivvo.db")
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("resultcache: open database: %w", err)
	}
	if _, err := db.ExecContext(context.Background(), schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("resultcache: init schema: %w", err)
	}

	cache.db = db
	cache.enabled = true
	if cfg.ResultCache.MaxAgeDay > 0 {
		cache.maxAge = time.Duration(cfg.ResultCache.MaxAgeDay) * 24 * time.Hour
	}
	return cache, nil
}

// Close releases the database handle.
func (c *Cache) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

// Enabled reports whether the cache is live.
func (c *Cache) Enabled() bool {
	return c != nil && c.enabled
}

// Key derives the cache key for one asset, kind, and model combination.
func Key(assetData []byte, kind report.AnalysisKind, model string) string {
	sum := sha256.Sum256(assetData)
	return fmt.Sprintf("%s:%s:%s", hex.EncodeToString(sum[:]), kind, strings.TrimSpace(model))
}

// Get returns the cached result for the key, or nil on a miss. Entries older
// than the configured max age are misses and deleted opportunistically.
func (c *Cache) Get(ctx context.Context, key string) (*providers.Result, error) {
	if !c.Enabled() {
		return nil, nil
	}

	var (
		payload   string
		createdAt string
	)
	err := c.db.QueryRowContext(ctx,
		`SELECT payload, created_at FROM provider_results WHERE cache_key = ?`, key,
	).Scan(&payload, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resultcache: query: %w", err)
	}

	if c.maxAge > 0 {
		created, parseErr := time.Parse(time.RFC3339Nano, createdAt)
		if parseErr != nil || time.Since(created) > c.maxAge {
			if _, err := c.db.ExecContext(ctx, `DELETE FROM provider_results WHERE cache_key = ?`, key); err != nil {
				c.logger.Warn("failed to evict expired cache entry", logging.Error(err))
			}
			return nil, nil
		}
	}

	var result providers.Result
	if err := json.Unmarshal([]byte(payload), &result); err != nil {
		// A corrupt row is treated as a miss so the provider call proceeds.
		c.logger.Warn("discarding undecodable cache entry",
			logging.String("cache_key", key), logging.Error(err))
		_, _ = c.db.ExecContext(ctx, `DELETE FROM provider_results WHERE cache_key = ?`, key)
		return nil, nil
	}
	return &result, nil
}

// Put stores a validated result. Overwrites are allowed; the newest analysis
// of identical bytes wins.
func (c *Cache) Put(ctx context.Context, key string, result *providers.Result) error {
	if !c.Enabled() || result == nil {
		return nil
	}
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("resultcache: encode result: %w", err)
	}
	_, err = c.db.ExecContext(ctx,
		`INSERT INTO provider_results (cache_key, kind, model, payload, created_at)
         VALUES (?, ?, ?, ?, ?)
         ON CONFLICT (cache_key) DO UPDATE SET payload = excluded.payload, created_at = excluded.created_at`,
		key, string(result.Kind), result.Model, string(payload),
		time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("resultcache: store result: %w", err)
	}
	return nil
}

// Prune deletes entries older than the configured max age. A zero max age
// keeps everything.
func (c *Cache) Prune(ctx context.Context) (int64, error) {
	if !c.Enabled() || c.maxAge <= 0 {
		return 0, nil
	}
	cutoff := time.Now().UTC().Add(-c.maxAge).Format(time.RFC3339Nano)
	res, err := c.db.ExecContext(ctx, `DELETE FROM provider_results WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("resultcache: prune: %w", err)
	}
	return res.RowsAffected()
}
