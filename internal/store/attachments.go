package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/starford/quill/internal/apperr"
	"github.com/starford/quill/internal/models"
)

const attachmentColumns = `hash, note_id, kind, mime_type, filename, url, downloaded`

func scanAttachment(s rowScanner) (*models.Attachment, error) {
	var (
		a          models.Attachment
		downloaded int
	)
	if err := s.Scan(&a.Hash, &a.NoteID, &a.Kind, &a.MimeType, &a.Filename, &a.URL, &downloaded); err != nil {
		return nil, err
	}
	a.Downloaded = downloaded != 0
	return &a, nil
}

// AddAttachment inserts or replaces an attachment record.
func (db *DB) AddAttachment(ctx context.Context, a models.Attachment) error {
	if a.Kind == "" {
		a.Kind = models.KindImages
	}
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO attachments (`+attachmentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(hash) DO UPDATE SET
			note_id    = excluded.note_id,
			kind       = excluded.kind,
			mime_type  = excluded.mime_type,
			filename   = excluded.filename,
			url        = excluded.url,
			downloaded = excluded.downloaded
	`, a.Hash, a.NoteID, a.Kind, a.MimeType, a.Filename, a.URL, boolInt(a.Downloaded))
	if err != nil {
		return fmt.Errorf("store: upsert attachment: %w", err)
	}
	return nil
}

// Attachment returns the attachment with the given hash, or apperr.ErrNotFound.
func (db *DB) Attachment(ctx context.Context, hash string) (*models.Attachment, error) {
	a, err := scanAttachment(db.conn.QueryRowContext(ctx,
		`SELECT `+attachmentColumns+` FROM attachments WHERE hash = ?`, hash))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get attachment: %w", err)
	}
	return a, nil
}

// AttachmentsOfNote lists the attachments of kind referenced by a note.
func (db *DB) AttachmentsOfNote(ctx context.Context, noteID, kind string) ([]models.Attachment, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+attachmentColumns+` FROM attachments WHERE note_id = ? AND kind = ? ORDER BY hash`, noteID, kind)
	if err != nil {
		return nil, fmt.Errorf("store: attachments of note: %w", err)
	}
	defer rows.Close()

	var out []models.Attachment
	for rows.Next() {
		a, err := scanAttachment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// MarkDownloaded flags an attachment blob as present locally.
func (db *DB) MarkDownloaded(ctx context.Context, hash string) error {
	res, err := db.conn.ExecContext(ctx, `UPDATE attachments SET downloaded = 1 WHERE hash = ?`, hash)
	if err != nil {
		return fmt.Errorf("store: mark downloaded: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}
