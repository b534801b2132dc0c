// Package history archives transcripts across sessions in a sqlite
// database, so past dictation can be queried by time window after the
// temp sessions themselves are cleaned up.
package history

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS transcripts (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	ordinal    INTEGER NOT NULL,
	created_at TIMESTAMP NOT NULL,
	language   TEXT,
	text       TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transcripts_created_at ON transcripts(created_at);
`

// Entry is one archived transcript.
type Entry struct {
	SessionID string
	Ordinal   int
	CreatedAt time.Time
	Language  string
	Text      string
}

// Store is the sqlite-backed transcript archive.
type Store struct {
	db *sql.DB
}

// DefaultPath places the archive next to the temp sessions.
func DefaultPath(tempRoot string) string {
	return filepath.Join(tempRoot, "history.db")
}

// Open opens (creating if needed) the archive at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize history schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Append archives one transcript.
func (s *Store) Append(e Entry) error {
	_, err := s.db.Exec(
		`INSERT INTO transcripts (session_id, ordinal, created_at, language, text) VALUES (?, ?, ?, ?, ?)`,
		e.SessionID, e.Ordinal, e.CreatedAt.UTC(), e.Language, e.Text,
	)
	return err
}

// Since returns transcripts created at or after the cutoff, oldest first.
func (s *Store) Since(cutoff time.Time) ([]Entry, error) {
	rows, err := s.db.Query(
		`SELECT session_id, ordinal, created_at, language, text
		 FROM transcripts WHERE created_at >= ? ORDER BY created_at ASC, id ASC`,
		cutoff.UTC(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntries(rows)
}

// Recent returns the last n transcripts, oldest first.
func (s *Store) Recent(n int) ([]Entry, error) {
	rows, err := s.db.Query(
		`SELECT session_id, ordinal, created_at, language, text FROM
		 (SELECT * FROM transcripts ORDER BY created_at DESC, id DESC LIMIT ?)
		 ORDER BY created_at ASC, id ASC`,
		n,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var out []Entry
	for rows.Next() {
		var e Entry
		var lang sql.NullString
		if err := rows.Scan(&e.SessionID, &e.Ordinal, &e.CreatedAt, &lang, &e.Text); err != nil {
			return nil, err
		}
		e.Language = lang.String
		out = append(out, e)
	}
	return out, rows.Err()
}
