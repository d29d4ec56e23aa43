// Package store provides the SQLite-backed note store: notes, their content,
// attachments and a small key/value table used by the vault.
package store

import (
	"crypto/rand"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/oklog/ulid/v2"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS notes (
	id             TEXT PRIMARY KEY,
	title          TEXT NOT NULL DEFAULT '',
	headline       TEXT NOT NULL DEFAULT '',
	content_id     TEXT NOT NULL DEFAULT '',
	tags           TEXT NOT NULL DEFAULT '[]',
	locked         INTEGER NOT NULL DEFAULT 0,
	readonly       INTEGER NOT NULL DEFAULT 0,
	conflicted     INTEGER NOT NULL DEFAULT 0,
	history_anchor INTEGER,
	date_created   INTEGER NOT NULL,
	date_edited    INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_notes_edited ON notes(date_edited);

CREATE TABLE IF NOT EXISTS content (
	id          TEXT PRIMARY KEY,
	note_id     TEXT NOT NULL,
	type        TEXT NOT NULL DEFAULT 'tiptap',
	data        TEXT NOT NULL DEFAULT '',
	locked      INTEGER NOT NULL DEFAULT 0,
	checksum    TEXT NOT NULL DEFAULT '',
	date_edited INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_content_note ON content(note_id);

CREATE TABLE IF NOT EXISTS attachments (
	hash       TEXT PRIMARY KEY,
	note_id    TEXT NOT NULL,
	kind       TEXT NOT NULL DEFAULT 'images',
	mime_type  TEXT NOT NULL DEFAULT '',
	filename   TEXT NOT NULL DEFAULT '',
	url        TEXT NOT NULL DEFAULT '',
	downloaded INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_attachments_note ON attachments(note_id, kind);

CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value BLOB NOT NULL
);
`

// DB wraps a sql.DB with note-store operations.
type DB struct {
	conn *sql.DB
	path string

	idMu    sync.Mutex
	entropy *ulid.MonotonicEntropy
	now     func() time.Time
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}
	return &DB{
		conn:    conn,
		path:    path,
		entropy: ulid.Monotonic(rand.Reader, 0),
		now:     time.Now,
	}, nil
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) newID() string {
	db.idMu.Lock()
	defer db.idMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(db.now()), db.entropy).String()
}

func millis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
