package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/starford/quill/internal/apperr"
	"github.com/starford/quill/internal/models"
	"github.com/starford/quill/internal/parser"
)

// ContentRaw returns the stored content record without decrypting it.
func (db *DB) ContentRaw(ctx context.Context, id string) (*models.Content, error) {
	var (
		c      models.Content
		locked int
		edited int64
	)
	err := db.conn.QueryRowContext(ctx, `
		SELECT id, note_id, type, data, locked, checksum, date_edited FROM content WHERE id = ?
	`, id).Scan(&c.ID, &c.NoteID, &c.Type, &c.Data, &locked, &c.Checksum, &edited)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get content: %w", err)
	}
	c.Locked = locked != 0
	c.EditedAt = fromMillis(edited)
	return &c, nil
}

// InsertPlaceholders returns a copy of c in which images whose attachments are
// not downloaded yet point at asset.
func (db *DB) InsertPlaceholders(ctx context.Context, c *models.Content, asset string) (*models.Content, error) {
	if c == nil || c.Locked || c.NoteID == "" {
		return c, nil
	}
	pending := make(map[string]bool)
	for _, kind := range []string{models.KindImages, models.KindWebclips} {
		atts, err := db.AttachmentsOfNote(ctx, c.NoteID, kind)
		if err != nil {
			return nil, err
		}
		for _, a := range atts {
			if !a.Downloaded {
				pending[a.Hash] = true
			}
		}
	}
	data, err := parser.ReplaceImageSources(c.Data, pending, asset)
	if err != nil {
		return nil, fmt.Errorf("store: insert placeholders: %w", err)
	}
	out := *c
	out.Data = data
	return &out, nil
}
