// Package editor keeps an embedded rich-text editor surface and the note
// store consistent: it owns the open-note session, validates every message
// crossing the editor boundary and debounces saves.
package editor

import (
	"context"

	"github.com/starford/quill/internal/models"
)

// NoteStore is the note database as seen by the editor.
type NoteStore interface {
	Note(ctx context.Context, id string) (*models.Note, error)
	Add(ctx context.Context, p models.NotePatch) (string, error)
	ContentRaw(ctx context.Context, id string) (*models.Content, error)
	InsertPlaceholders(ctx context.Context, c *models.Content, asset string) (*models.Content, error)
	UnlinkTag(ctx context.Context, noteID, tag string) error
}

// Vault is the save and read path for locked notes.
type Vault interface {
	Save(ctx context.Context, p models.NotePatch) error
	Decrypt(ctx context.Context, n *models.Note) (*models.Content, error)
}

// Attachments downloads attachment blobs.
type Attachments interface {
	DownloadImages(ctx context.Context, noteID string, done func(models.Attachment)) error
	Download(ctx context.Context, hash string) (*models.Attachment, error)
	Cancel(noteID string)
}

// Surface is the transport to the embedded editor.
type Surface interface {
	Post(ctx context.Context, data []byte) error
}

// RequestKind names a host UI action the editor asked for.
type RequestKind string

const (
	RequestNewTag     RequestKind = "new-tag"
	RequestPicker     RequestKind = "picker"
	RequestBack       RequestKind = "back"
	RequestPro        RequestKind = "pro"
	RequestPublish    RequestKind = "publish"
	RequestProperties RequestKind = "properties"
	RequestUnlock     RequestKind = "unlock"
	RequestToast      RequestKind = "toast"
)

// Request is an editor-originated action forwarded to the host UI.
type Request struct {
	Kind   RequestKind `json:"kind"`
	NoteID string      `json:"note_id,omitempty"`
	Value  string      `json:"value,omitempty"`
}

// Observer receives the externally visible effects of editing.
type Observer interface {
	// EditingChanged reports the id of the open note, "" when none.
	EditingChanged(noteID string)
	// NoteCreated reports the id assigned to a new note on its first save.
	NoteCreated(noteID string)
	// QueueRefresh marks list screens as stale.
	QueueRefresh(screens ...string)
	// Forward hands an editor request to the host UI.
	Forward(req Request)
}

// NopObserver discards all notifications.
type NopObserver struct{}

func (NopObserver) EditingChanged(string) {}
func (NopObserver) NoteCreated(string) {}
func (NopObserver) QueueRefresh(...string) {}
func (NopObserver) Forward(Request) {}

// Screens refreshed after a save changes what lists show.
var refreshScreens = []string{"ColoredNotes", "Notes", "TaggedNotes", "TopicNotes"}
