package sourcemap

import (
	"database/sql"
	"fmt"

	_ "github.com/glebarez/go-sqlite"
)

// Cache is an on-disk accelerator that stores raw source-map JSON (not
// decoded tables), keyed by (generated URL, content hash). The JSON source-map fetched over the
// wire is always authoritative; a cache miss or a stale-hash mismatch
// just means falling back to re-fetching and re-decoding — this is a
// projection, not a store of record, the same role the teacher's
// internal/audit/index.go gives SQLite over the JSONL audit log.
type Cache struct {
	db *sql.DB
}

// OpenCache opens (or creates) the SQLite cache database at path.
func OpenCache(path string) (*Cache, error) {
	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening source-map cache %s: %w", path, err)
	}
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS source_maps (
			generated_url TEXT NOT NULL,
			content_hash  TEXT NOT NULL,
			raw_map       BLOB NOT NULL,
			PRIMARY KEY (generated_url, content_hash)
		);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating source-map cache schema: %w", err)
	}
	return &Cache{db: db}, nil
}

// Get returns the cached raw source-map JSON for (generatedURL, hash), if
// present.
func (c *Cache) Get(generatedURL, hash string) ([]byte, bool) {
	var raw []byte
	err := c.db.QueryRow(
		`SELECT raw_map FROM source_maps WHERE generated_url = ? AND content_hash = ?`,
		generatedURL, hash,
	).Scan(&raw)
	if err != nil {
		return nil, false
	}
	return raw, true
}

// Put stores raw under (generatedURL, hash), replacing any prior entry
// for that URL (a changed hash means the generated source was rebuilt).
func (c *Cache) Put(generatedURL, hash string, raw []byte) {
	_, _ = c.db.Exec(
		`DELETE FROM source_maps WHERE generated_url = ? AND content_hash <> ?`,
		generatedURL, hash,
	)
	_, _ = c.db.Exec(
		`INSERT OR REPLACE INTO source_maps (generated_url, content_hash, raw_map) VALUES (?, ?, ?)`,
		generatedURL, hash, raw,
	)
}

// Close releases the underlying database handle.
func (c *Cache) Close() error { return c.db.Close() }
