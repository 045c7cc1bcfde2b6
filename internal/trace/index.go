package trace

import (
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/glebarez/go-sqlite"
)

// sqliteIndex is a queryable projection of the JSONL trace files; the
// files remain the source of truth and the index can be rebuilt from
// them (it isn't here, since a trace log is diagnostic and disposable,
// unlike internal/audit's reindex-on-startup recovery).
type sqliteIndex struct {
	db *sql.DB
}

func openIndex(path string) (*sqliteIndex, error) {
	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening sqlite index %s: %w", path, err)
	}
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS entries (
			seq       INTEGER PRIMARY KEY,
			ts        TEXT NOT NULL,
			direction TEXT NOT NULL DEFAULT '',
			actor     TEXT NOT NULL DEFAULT '',
			kind      TEXT NOT NULL DEFAULT '',
			body      TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS idx_direction ON entries(direction);
		CREATE INDEX IF NOT EXISTS idx_actor ON entries(actor);
		CREATE INDEX IF NOT EXISTS idx_ts ON entries(ts);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating sqlite schema: %w", err)
	}
	return &sqliteIndex{db: db}, nil
}

func (idx *sqliteIndex) insert(e *Entry) {
	_, err := idx.db.Exec(
		`INSERT OR REPLACE INTO entries (seq, ts, direction, actor, kind, body) VALUES (?, ?, ?, ?, ?, ?)`,
		e.Seq, e.Timestamp, string(e.Direction), e.Actor, e.Kind, string(e.Body),
	)
	if err != nil {
		slog.Error("sqlite trace index insert failed", "seq", e.Seq, "error", err)
	}
}

func (idx *sqliteIndex) query(params QueryParams) ([]Entry, error) {
	query := "SELECT seq, ts, direction, actor, kind, body FROM entries WHERE 1=1"
	var args []any

	if params.Direction != "" {
		query += " AND direction = ?"
		args = append(args, string(params.Direction))
	}
	if params.Actor != "" {
		query += " AND actor = ?"
		args = append(args, params.Actor)
	}
	if params.Since != "" {
		query += " AND ts >= ?"
		args = append(args, params.Since)
	}
	query += " ORDER BY seq DESC"
	if params.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, params.Limit)
	}

	rows, err := idx.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying sqlite trace index: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var dir, body string
		if err := rows.Scan(&e.Seq, &e.Timestamp, &dir, &e.Actor, &e.Kind, &body); err != nil {
			return nil, fmt.Errorf("scanning sqlite row: %w", err)
		}
		e.Direction = Direction(dir)
		if body != "" {
			e.Body = []byte(body)
		}
		entries = append(entries, e)
	}
	// Rows come back newest-first so LIMIT keeps the most recent ones;
	// return them oldest-first, the order the JSONL fallback uses.
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, rows.Err()
}

func (idx *sqliteIndex) tail(limit int) ([]Entry, error) {
	return idx.query(QueryParams{Limit: limit})
}

func (idx *sqliteIndex) close() error {
	return idx.db.Close()
}
