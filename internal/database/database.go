// Package database provides SQLite-backed persistence for notes, tags,
// links, and attachments, with an FTS5 shadow table over title and body
// kept in sync by triggers.
package database

import (
	"database/sql"

	_ "modernc.org/sqlite"

	"github.com/tessera-kb/tessera/internal/apperr"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS notes (
	id          TEXT PRIMARY KEY,
	title       TEXT NOT NULL DEFAULT '',
	raw_content BLOB NOT NULL,
	body        TEXT NOT NULL DEFAULT '',
	metadata    TEXT NOT NULL DEFAULT '{}',
	path        TEXT NOT NULL,
	checksum    TEXT NOT NULL DEFAULT '',
	created_at  INTEGER NOT NULL,
	modified_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_notes_modified_at ON notes(modified_at DESC);

CREATE VIRTUAL TABLE IF NOT EXISTS notes_fts USING fts5(
	id UNINDEXED,
	title,
	body,
	content='notes',
	content_rowid='rowid',
	tokenize='porter unicode61'
);

CREATE TRIGGER IF NOT EXISTS notes_fts_insert AFTER INSERT ON notes
BEGIN
	INSERT INTO notes_fts(rowid, id, title, body)
	VALUES (new.rowid, new.id, new.title, new.body);
END;

CREATE TRIGGER IF NOT EXISTS notes_fts_delete AFTER DELETE ON notes
BEGIN
	INSERT INTO notes_fts(notes_fts, rowid, id, title, body)
	VALUES ('delete', old.rowid, old.id, old.title, old.body);
END;

CREATE TRIGGER IF NOT EXISTS notes_fts_update AFTER UPDATE ON notes
BEGIN
	INSERT INTO notes_fts(notes_fts, rowid, id, title, body)
	VALUES ('delete', old.rowid, old.id, old.title, old.body);
	INSERT INTO notes_fts(rowid, id, title, body)
	VALUES (new.rowid, new.id, new.title, new.body);
END;

CREATE TABLE IF NOT EXISTS tags (
	id   INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS note_tags (
	note_id TEXT NOT NULL,
	tag_id  INTEGER NOT NULL,
	PRIMARY KEY (note_id, tag_id),
	FOREIGN KEY (note_id) REFERENCES notes(id) ON DELETE CASCADE,
	FOREIGN KEY (tag_id) REFERENCES tags(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS links (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	source_note_id TEXT NOT NULL,
	target         TEXT NOT NULL,
	link_type      TEXT NOT NULL,
	text           TEXT NOT NULL DEFAULT '',
	position       INTEGER NOT NULL DEFAULT 0,
	FOREIGN KEY (source_note_id) REFERENCES notes(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_links_source ON links(source_note_id);
CREATE INDEX IF NOT EXISTS idx_links_target ON links(target);

CREATE TABLE IF NOT EXISTS attachments (
	id         TEXT PRIMARY KEY,
	filename   TEXT NOT NULL,
	mime_type  TEXT NOT NULL,
	size       INTEGER NOT NULL,
	checksum   TEXT NOT NULL,
	path       TEXT NOT NULL,
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS note_attachments (
	note_id       TEXT NOT NULL,
	attachment_id TEXT NOT NULL,
	PRIMARY KEY (note_id, attachment_id),
	FOREIGN KEY (note_id) REFERENCES notes(id) ON DELETE CASCADE,
	FOREIGN KEY (attachment_id) REFERENCES attachments(id) ON DELETE CASCADE
);
`

// DB wraps a sql.DB with note-store operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(path string) (*DB, error) {
	dsn := path + "?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(on)"
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, apperr.Database("open", err)
	}
	// SQLite serializes writers; a single connection avoids lock churn
	// between the indexer and readers.
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, apperr.Database("ping", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, apperr.Database("apply schema", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
