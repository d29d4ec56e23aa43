package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/quill/internal/noteservice"
	"github.com/starford/quill/internal/storage"
)

// Deps are the collaborators behind the API routes.
type Deps struct {
	Notes          *noteservice.Service
	Editor         EditorController
	Vault          Unlocker
	Blobs          BlobSource
	Index          AttachmentIndex
	Storage        storage.Provider
	Events         EventPublisher
	AttachmentBase string

	// SSE, if non-nil, is mounted at GET /events inside the auth group.
	SSE http.Handler
}

// NewRouter creates a chi router with all API routes mounted behind auth.
func NewRouter(d Deps, auth AuthSettings) chi.Router {
	h := NewHandler(d.Notes, d.Events)
	eh := NewEditorHandler(d.Editor, d.Notes, d.Vault)
	ah := NewAttachmentHandler(d.Blobs, d.Index, d.Storage, d.AttachmentBase)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(auth))

	r.Get("/notes", h.ListNotes)
	r.Get("/notes/{id}", h.GetNote)
	r.Get("/notes/{id}/markdown", h.NoteMarkdown)
	r.Delete("/notes/{id}", h.DeleteNote)

	r.Get("/editor/session", eh.Current)
	r.Post("/editor/open", eh.Open)
	r.Post("/editor/new", eh.New)
	r.Post("/editor/reset", eh.Reset)

	r.Post("/vault/unlock", eh.Unlock)

	r.Get("/attachments/{hash}", ah.ServeBlob)
	r.Post("/attachments", ah.Upload)

	if d.SSE != nil {
		r.Get("/events", d.SSE.ServeHTTP)
	}

	return r
}
