// Package noteservice is the read model the HTTP and MCP layers share:
// note listings and details with locked content decrypted when possible.
package noteservice

import (
	"context"
	"errors"
	"time"

	"github.com/starford/quill/internal/apperr"
	"github.com/starford/quill/internal/checksum"
	"github.com/starford/quill/internal/models"
	"github.com/starford/quill/internal/parser"
)

// NoteDetail is the full representation of a note.
type NoteDetail struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Headline   string    `json:"headline"`
	Content    string    `json:"content"`
	Checksum   string    `json:"checksum"`
	Tags       []string  `json:"tags"`
	Locked     bool      `json:"locked"`
	Readonly   bool      `json:"readonly"`
	Conflicted bool      `json:"conflicted"`
	EditedAt   time.Time `json:"edited_at"`
}

// NoteListItem is a lightweight item in a list response.
type NoteListItem struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	Headline string    `json:"headline"`
	Tags     []string  `json:"tags"`
	Locked   bool      `json:"locked"`
	EditedAt time.Time `json:"edited_at"`
}

// Store is the note store subset the service reads.
type Store interface {
	Note(ctx context.Context, id string) (*models.Note, error)
	ContentRaw(ctx context.Context, id string) (*models.Content, error)
	ListNotes(ctx context.Context, limit, offset int) ([]models.Note, int, error)
	Delete(ctx context.Context, id string) error
}

// Decrypter opens locked content.
type Decrypter interface {
	DecryptContent(c *models.Content) (*models.Content, error)
}

// Service coordinates store and vault reads.
type Service struct {
	store Store
	vault Decrypter
}

// NewService creates a new note service.
func NewService(store Store, vault Decrypter) *Service {
	return &Service{store: store, vault: vault}
}

// GetNote returns a note with its plain content. A locked note whose vault
// is not unlocked yields apperr.ErrVaultLocked.
func (s *Service) GetNote(ctx context.Context, id string) (*NoteDetail, error) {
	n, err := s.store.Note(ctx, id)
	if err != nil {
		return nil, err
	}
	data := ""
	if n.ContentID != "" {
		c, err := s.store.ContentRaw(ctx, n.ContentID)
		switch {
		case err == nil:
			if c.Locked {
				if c, err = s.vault.DecryptContent(c); err != nil {
					return nil, err
				}
			}
			data = c.Data
		case !errors.Is(err, apperr.ErrNotFound):
			return nil, err
		}
	}
	return &NoteDetail{
		ID:         n.ID,
		Title:      n.Title,
		Headline:   n.Headline,
		Content:    data,
		Checksum:   checksum.String(data),
		Tags:       nonNilSlice(n.Tags),
		Locked:     n.Locked,
		Readonly:   n.Readonly,
		Conflicted: n.Conflicted,
		EditedAt:   n.EditedAt,
	}, nil
}

// Markdown returns the note title and its content converted to Markdown.
func (s *Service) Markdown(ctx context.Context, id string) (string, string, error) {
	d, err := s.GetNote(ctx, id)
	if err != nil {
		return "", "", err
	}
	return d.Title, parser.Markdown(d.Content), nil
}

// DeleteNote removes a note and its content.
func (s *Service) DeleteNote(ctx context.Context, id string) error {
	if _, err := s.store.Note(ctx, id); err != nil {
		return err
	}
	return s.store.Delete(ctx, id)
}

// ListNotes returns paginated notes, newest first.
func (s *Service) ListNotes(ctx context.Context, limit, offset int) ([]NoteListItem, int, error) {
	rows, total, err := s.store.ListNotes(ctx, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	items := make([]NoteListItem, len(rows))
	for i, r := range rows {
		items[i] = NoteListItem{
			ID:       r.ID,
			Title:    r.Title,
			Headline: r.Headline,
			Tags:     nonNilSlice(r.Tags),
			Locked:   r.Locked,
			EditedAt: r.EditedAt,
		}
	}
	return items, total, nil
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
