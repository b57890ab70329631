package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/tessera-kb/tessera/internal/apperr"
	"github.com/tessera-kb/tessera/internal/models"
)

// UpsertNote replaces the note row, its tag associations, and its
// attachment associations inside a single transaction. A failure anywhere
// rolls back the whole operation.
func (db *DB) UpsertNote(ctx context.Context, note *models.Note) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Database("begin tx", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	metadataJSON, err := json.Marshal(note.Metadata)
	if err != nil {
		return apperr.Database("marshal metadata", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO notes (id, title, raw_content, body, metadata, path, checksum, created_at, modified_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title       = excluded.title,
			raw_content = excluded.raw_content,
			body        = excluded.body,
			metadata    = excluded.metadata,
			path        = excluded.path,
			checksum    = excluded.checksum,
			created_at  = excluded.created_at,
			modified_at = excluded.modified_at
	`, note.ID, note.Title, note.RawContent, note.Body, string(metadataJSON),
		note.Path, note.Checksum, note.CreatedAt.Unix(), note.ModifiedAt.Unix())
	if err != nil {
		return apperr.Database("upsert note", err)
	}

	if err := replaceNoteTags(ctx, tx, note.ID, note.Metadata.Tags); err != nil {
		return err
	}
	if err := replaceNoteAttachments(ctx, tx, note.ID, note.Attachments); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return apperr.Database("commit upsert", err)
	}
	return nil
}

func replaceNoteTags(ctx context.Context, tx *sql.Tx, noteID string, tags []string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM note_tags WHERE note_id = ?`, noteID); err != nil {
		return apperr.Database("delete note tags", err)
	}
	for _, tag := range tags {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO tags (name) VALUES (?)`, tag); err != nil {
			return apperr.Database("insert tag", err)
		}
		var tagID int64
		if err := tx.QueryRowContext(ctx, `SELECT id FROM tags WHERE name = ?`, tag).Scan(&tagID); err != nil {
			return apperr.Database("lookup tag", err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO note_tags (note_id, tag_id) VALUES (?, ?)`,
			noteID, tagID); err != nil {
			return apperr.Database("link tag", err)
		}
	}
	return nil
}

func replaceNoteAttachments(ctx context.Context, tx *sql.Tx, noteID string, attachments []models.Attachment) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM note_attachments WHERE note_id = ?`, noteID); err != nil {
		return apperr.Database("delete note attachments", err)
	}
	for _, att := range attachments {
		_, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO attachments (id, filename, mime_type, size, checksum, path, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, att.ID, att.Filename, att.MIMEType, att.Size, att.Checksum, att.Path, time.Now().Unix())
		if err != nil {
			return apperr.Database("insert attachment", err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO note_attachments (note_id, attachment_id) VALUES (?, ?)`,
			noteID, att.ID); err != nil {
			return apperr.Database("link attachment", err)
		}
	}
	return nil
}

const noteColumns = `id, title, raw_content, body, metadata, path, checksum, created_at, modified_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNote(row rowScanner) (*models.Note, error) {
	var (
		n                     models.Note
		metadataJSON          string
		createdAt, modifiedAt int64
	)
	err := row.Scan(&n.ID, &n.Title, &n.RawContent, &n.Body, &metadataJSON,
		&n.Path, &n.Checksum, &createdAt, &modifiedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(metadataJSON), &n.Metadata); err != nil {
		return nil, apperr.Database("unmarshal metadata", err)
	}
	n.CreatedAt = time.Unix(createdAt, 0)
	n.ModifiedAt = time.Unix(modifiedAt, 0)
	return &n, nil
}

// GetNote reconstructs the full note model including attachments.
// Absence is not an error: a missing id returns (nil, nil).
func (db *DB) GetNote(ctx context.Context, id string) (*models.Note, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+noteColumns+` FROM notes WHERE id = ?`, id)
	note, err := scanNote(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Database("get note", err)
	}
	attachments, err := db.noteAttachments(ctx, id)
	if err != nil {
		return nil, err
	}
	note.Attachments = attachments
	return note, nil
}

// DeleteNote removes a note. Junction rows and links cascade; the FTS
// entry is removed by trigger. Deleting an absent id succeeds silently.
func (db *DB) DeleteNote(ctx context.Context, id string) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM notes WHERE id = ?`, id); err != nil {
		return apperr.Database("delete note", err)
	}
	return nil
}

// SearchNotes runs a full-text match over title and body, ordered by
// the engine's relevance rank.
func (db *DB) SearchNotes(ctx context.Context, query string, limit, offset int) ([]*models.Note, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.conn.QueryContext(ctx, `
		SELECT `+prefixedNoteColumns("n")+`
		FROM notes n
		JOIN notes_fts f ON f.rowid = n.rowid
		WHERE notes_fts MATCH ?
		ORDER BY rank
		LIMIT ? OFFSET ?
	`, query, limit, offset)
	if err != nil {
		return nil, apperr.Database("search notes", err)
	}
	return db.collectNotes(ctx, rows)
}

// GetNotesByTag returns notes carrying the exact tag, most recently
// modified first.
func (db *DB) GetNotesByTag(ctx context.Context, tag string) ([]*models.Note, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT DISTINCT `+prefixedNoteColumns("n")+`
		FROM notes n
		JOIN note_tags nt ON n.id = nt.note_id
		JOIN tags t ON nt.tag_id = t.id
		WHERE t.name = ?
		ORDER BY n.modified_at DESC
	`, tag)
	if err != nil {
		return nil, apperr.Database("notes by tag", err)
	}
	return db.collectNotes(ctx, rows)
}

// GetTagsWithCounts returns every known tag and its usage count.
func (db *DB) GetTagsWithCounts(ctx context.Context) (map[string]int, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT t.name, COUNT(nt.note_id)
		FROM tags t
		LEFT JOIN note_tags nt ON t.id = nt.tag_id
		GROUP BY t.name
	`)
	if err != nil {
		return nil, apperr.Database("tags with counts", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var name string
		var count int
		if err := rows.Scan(&name, &count); err != nil {
			return nil, apperr.Database("scan tag count", err)
		}
		counts[name] = count
	}
	return counts, rows.Err()
}

// UpdateNoteLinks replaces a note's outgoing links wholesale inside one
// transaction, never a partial replacement.
func (db *DB) UpdateNoteLinks(ctx context.Context, noteID string, links []models.Link) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Database("begin tx", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM links WHERE source_note_id = ?`, noteID); err != nil {
		return apperr.Database("delete links", err)
	}
	if len(links) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO links (source_note_id, target, link_type, text, position)
			VALUES (?, ?, ?, ?, ?)
		`)
		if err != nil {
			return apperr.Database("prepare link insert", err)
		}
		defer stmt.Close()
		for _, link := range links {
			if _, err := stmt.ExecContext(ctx, noteID, link.Target, string(link.Type), link.Text, link.Position); err != nil {
				return apperr.Database("insert link", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return apperr.Database("commit links", err)
	}
	return nil
}

// GetBacklinks returns the ids of notes whose internal links target noteID.
func (db *DB) GetBacklinks(ctx context.Context, noteID string) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT DISTINCT source_note_id
		FROM links
		WHERE target = ? AND link_type = 'internal'
		ORDER BY source_note_id
	`, noteID)
	if err != nil {
		return nil, apperr.Database("backlinks", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var source string
		if err := rows.Scan(&source); err != nil {
			return nil, apperr.Database("scan backlink", err)
		}
		out = append(out, source)
	}
	return out, rows.Err()
}

// RebuildIndex recomputes the FTS shadow table from the notes table.
// Used after bulk changes or to recover from corruption.
func (db *DB) RebuildIndex(ctx context.Context) error {
	if _, err := db.conn.ExecContext(ctx, `INSERT INTO notes_fts(notes_fts) VALUES ('rebuild')`); err != nil {
		return apperr.Database("rebuild fts", err)
	}
	return nil
}

// AllChecksums returns path -> checksum for every indexed note. The
// indexer uses this to rebuild its cache from durable state.
func (db *DB) AllChecksums(ctx context.Context) (map[string]string, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT path, checksum FROM notes`)
	if err != nil {
		return nil, apperr.Database("all checksums", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var path, sum string
		if err := rows.Scan(&path, &sum); err != nil {
			return nil, apperr.Database("scan checksum", err)
		}
		out[path] = sum
	}
	return out, rows.Err()
}

// ListNotes returns notes ordered by modification time descending, plus
// the total count for pagination.
func (db *DB) ListNotes(ctx context.Context, limit, offset int) ([]*models.Note, int, error) {
	if limit <= 0 {
		limit = 50
	}
	var total int
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM notes`).Scan(&total); err != nil {
		return nil, 0, apperr.Database("count notes", err)
	}
	rows, err := db.conn.QueryContext(ctx, `
		SELECT `+noteColumns+`
		FROM notes
		ORDER BY modified_at DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, 0, apperr.Database("list notes", err)
	}
	notes, err := db.collectNotes(ctx, rows)
	if err != nil {
		return nil, 0, err
	}
	return notes, total, nil
}

func (db *DB) collectNotes(ctx context.Context, rows *sql.Rows) ([]*models.Note, error) {
	defer rows.Close()
	var notes []*models.Note
	for rows.Next() {
		note, err := scanNote(rows)
		if err != nil {
			return nil, apperr.Database("scan note", err)
		}
		notes = append(notes, note)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Database("iterate notes", err)
	}
	for _, note := range notes {
		attachments, err := db.noteAttachments(ctx, note.ID)
		if err != nil {
			return nil, err
		}
		note.Attachments = attachments
	}
	return notes, nil
}

func (db *DB) noteAttachments(ctx context.Context, noteID string) ([]models.Attachment, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT a.id, a.filename, a.mime_type, a.size, a.checksum, a.path
		FROM attachments a
		JOIN note_attachments na ON a.id = na.attachment_id
		WHERE na.note_id = ?
	`, noteID)
	if err != nil {
		return nil, apperr.Database("note attachments", err)
	}
	defer rows.Close()

	var out []models.Attachment
	for rows.Next() {
		var att models.Attachment
		if err := rows.Scan(&att.ID, &att.Filename, &att.MIMEType, &att.Size, &att.Checksum, &att.Path); err != nil {
			return nil, apperr.Database("scan attachment", err)
		}
		att.NoteIDs = []string{noteID}
		out = append(out, att)
	}
	return out, rows.Err()
}

func prefixedNoteColumns(alias string) string {
	return alias + ".id, " + alias + ".title, " + alias + ".raw_content, " + alias + ".body, " +
		alias + ".metadata, " + alias + ".path, " + alias + ".checksum, " +
		alias + ".created_at, " + alias + ".modified_at"
}
