package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/starford/quill/internal/apperr"
	"github.com/starford/quill/internal/checksum"
	"github.com/starford/quill/internal/models"
	"github.com/starford/quill/internal/parser"
)

const noteColumns = `id, title, headline, content_id, tags, locked, readonly, conflicted, history_anchor, date_created, date_edited`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNote(s rowScanner) (*models.Note, error) {
	var (
		n                         models.Note
		tagsJSON                  string
		locked, readonly, conflct int
		anchor                    sql.NullInt64
		created, edited           int64
	)
	if err := s.Scan(&n.ID, &n.Title, &n.Headline, &n.ContentID, &tagsJSON,
		&locked, &readonly, &conflct, &anchor, &created, &edited); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(tagsJSON), &n.Tags); err != nil {
		return nil, fmt.Errorf("decode tags of %s: %w", n.ID, err)
	}
	if n.Tags == nil {
		n.Tags = []string{}
	}
	n.Locked = locked != 0
	n.Readonly = readonly != 0
	n.Conflicted = conflct != 0
	if anchor.Valid {
		t := fromMillis(anchor.Int64)
		n.HistoryAnchor = &t
	}
	n.CreatedAt = fromMillis(created)
	n.EditedAt = fromMillis(edited)
	return &n, nil
}

// Note returns the note with the given id, or apperr.ErrNotFound.
func (db *DB) Note(ctx context.Context, id string) (*models.Note, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+noteColumns+` FROM notes WHERE id = ?`, id)
	n, err := scanNote(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get note: %w", err)
	}
	return n, nil
}

// Add creates or updates a note from a partial write and returns its id.
// A patch without ID creates a new note. Content for a locked note is
// rejected with apperr.ErrLocked; locked content goes through PutLocked.
func (db *DB) Add(ctx context.Context, p models.NotePatch) (string, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	now := db.now()
	id := p.ID
	var existing *models.Note
	if id != "" {
		existing, err = scanNote(tx.QueryRowContext(ctx, `SELECT `+noteColumns+` FROM notes WHERE id = ?`, id))
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("store: get note: %w", err)
		}
	} else {
		id = db.newID()
	}

	if existing != nil && existing.Locked && p.Content != nil {
		return "", apperr.ErrLocked
	}

	var anchor any
	if p.HistoryAnchor != nil {
		anchor = millis(*p.HistoryAnchor)
	}

	if existing == nil {
		title := defaultTitle(now)
		if p.Title != nil && *p.Title != "" {
			title = *p.Title
		}
		contentID := ""
		headline := ""
		if p.Content != nil {
			contentID = db.newID()
			headline = parser.Headline(p.Content.Data)
			if err := putContent(ctx, tx, contentID, id, p.Content, false, now); err != nil {
				return "", err
			}
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO notes (id, title, headline, content_id, history_anchor, date_created, date_edited)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, id, title, headline, contentID, anchor, millis(now), millis(now))
		if err != nil {
			return "", fmt.Errorf("store: insert note: %w", err)
		}
		return id, tx.Commit()
	}

	title := existing.Title
	if p.Title != nil && *p.Title != "" {
		title = *p.Title
	}
	headline := existing.Headline
	contentID := existing.ContentID
	if p.Content != nil {
		if contentID == "" {
			contentID = db.newID()
		}
		headline = parser.Headline(p.Content.Data)
		if err := putContent(ctx, tx, contentID, id, p.Content, false, now); err != nil {
			return "", err
		}
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE notes SET title = ?, headline = ?, content_id = ?, history_anchor = ?, date_edited = ?
		WHERE id = ?
	`, title, headline, contentID, anchor, millis(now), id)
	if err != nil {
		return "", fmt.Errorf("store: update note: %w", err)
	}
	return id, tx.Commit()
}

// PutLocked stores already encrypted content for a note and marks it locked.
// The content id is taken from p.ContentID, falling back to the note's own.
func (db *DB) PutLocked(ctx context.Context, p models.NotePatch, ciphertext string) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	existing, err := scanNote(tx.QueryRowContext(ctx, `SELECT `+noteColumns+` FROM notes WHERE id = ?`, p.ID))
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("store: get note: %w", err)
	}

	now := db.now()
	contentID := p.ContentID
	if contentID == "" {
		contentID = existing.ContentID
	}
	if contentID == "" {
		contentID = db.newID()
	}
	title := existing.Title
	if p.Title != nil && *p.Title != "" {
		title = *p.Title
	}
	if p.Content != nil {
		cp := &models.ContentPatch{Data: ciphertext, Type: p.Content.Type}
		if err := putContent(ctx, tx, contentID, p.ID, cp, true, now); err != nil {
			return err
		}
	}
	var anchor any
	if p.HistoryAnchor != nil {
		anchor = millis(*p.HistoryAnchor)
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE notes SET title = ?, headline = '', content_id = ?, locked = 1, history_anchor = ?, date_edited = ?
		WHERE id = ?
	`, title, contentID, anchor, millis(now), p.ID)
	if err != nil {
		return fmt.Errorf("store: update locked note: %w", err)
	}
	return tx.Commit()
}

// SetFlags updates the readonly and conflicted markers of a note.
func (db *DB) SetFlags(ctx context.Context, id string, readonly, conflicted bool) error {
	res, err := db.conn.ExecContext(ctx, `UPDATE notes SET readonly = ?, conflicted = ? WHERE id = ?`,
		boolInt(readonly), boolInt(conflicted), id)
	if err != nil {
		return fmt.Errorf("store: set flags: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

// SetTags replaces the tag list of a note.
func (db *DB) SetTags(ctx context.Context, id string, tags []string) error {
	tagsJSON, _ := json.Marshal(tags)
	res, err := db.conn.ExecContext(ctx, `UPDATE notes SET tags = ? WHERE id = ?`, string(tagsJSON), id)
	if err != nil {
		return fmt.Errorf("store: set tags: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

// UnlinkTag removes tag from the note's tag list.
func (db *DB) UnlinkTag(ctx context.Context, id, tag string) error {
	n, err := db.Note(ctx, id)
	if err != nil {
		return err
	}
	tags := slices.DeleteFunc(slices.Clone(n.Tags), func(t string) bool { return t == tag })
	return db.SetTags(ctx, id, tags)
}

// Delete removes a note and its content.
func (db *DB) Delete(ctx context.Context, id string) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, _ = tx.ExecContext(ctx, `DELETE FROM content WHERE note_id = ?`, id)
	_, _ = tx.ExecContext(ctx, `DELETE FROM attachments WHERE note_id = ?`, id)
	_, _ = tx.ExecContext(ctx, `DELETE FROM notes WHERE id = ?`, id)
	return tx.Commit()
}

// ListNotes returns notes ordered by last edit, newest first, and the total count.
func (db *DB) ListNotes(ctx context.Context, limit, offset int) ([]models.Note, int, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	var total int
	if err := db.conn.QueryRowContext(ctx, `SELECT count(*) FROM notes`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("store: count notes: %w", err)
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+noteColumns+` FROM notes ORDER BY date_edited DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("store: list notes: %w", err)
	}
	defer rows.Close()

	var out []models.Note
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *n)
	}
	return out, total, rows.Err()
}

// ChangedSince returns notes edited strictly after t, oldest first.
func (db *DB) ChangedSince(ctx context.Context, t time.Time) ([]models.Note, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+noteColumns+` FROM notes WHERE date_edited > ? ORDER BY date_edited ASC`, millis(t))
	if err != nil {
		return nil, fmt.Errorf("store: changed since: %w", err)
	}
	defer rows.Close()

	var out []models.Note
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *n)
	}
	return out, rows.Err()
}

func putContent(ctx context.Context, tx *sql.Tx, id, noteID string, c *models.ContentPatch, locked bool, now time.Time) error {
	typ := c.Type
	if typ == "" {
		typ = models.ContentTypeTiptap
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO content (id, note_id, type, data, locked, checksum, date_edited)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			type        = excluded.type,
			data        = excluded.data,
			locked      = excluded.locked,
			checksum    = excluded.checksum,
			date_edited = excluded.date_edited
	`, id, noteID, typ, c.Data, boolInt(locked), checksum.String(c.Data), millis(now))
	if err != nil {
		return fmt.Errorf("store: upsert content: %w", err)
	}
	return nil
}

func defaultTitle(now time.Time) string {
	return "Note " + now.Format("02-01-2006 15:04")
}
