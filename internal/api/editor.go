package api

import (
	"context"
	"net/http"

	"github.com/starford/quill/internal/apperr"
	"github.com/starford/quill/internal/editor"
)

// EditorController drives the embedded editor.
type EditorController interface {
	LoadNote(ctx context.Context, req editor.LoadRequest) error
	Reset(ctx context.Context, clearGlobal bool)
	Current() editor.SessionInfo
}

// NoteLookup explains why a note could not be opened.
type NoteLookup interface {
	GetNote(ctx context.Context, id string) (*NoteDetail, error)
}

// Unlocker unlocks the note vault.
type Unlocker interface {
	Unlock(ctx context.Context, password string) error
}

// EditorHandler holds editor and vault route handlers.
type EditorHandler struct {
	editor EditorController
	notes  NoteLookup
	vault  Unlocker
}

// NewEditorHandler creates a new EditorHandler.
func NewEditorHandler(ed EditorController, notes NoteLookup, vault Unlocker) *EditorHandler {
	return &EditorHandler{editor: ed, notes: notes, vault: vault}
}

// Current handles GET /api/editor/session.
//
//	@Summary		Describe the live editor session
//	@Tags			editor
//	@Produce		json
//	@Success		200	{object}	SessionResponse
//	@Security		BearerAuth
//	@Router			/editor/session [get]
func (h *EditorHandler) Current(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.editor.Current())
}

// Open handles POST /api/editor/open.
//
//	@Summary		Open a stored note in the editor
//	@Tags			editor
//	@Accept			json
//	@Produce		json
//	@Param			body	body		OpenNoteRequest	true	"Note to open"
//	@Success		200		{object}	SessionResponse
//	@Failure		404		{object}	errResponse
//	@Failure		423		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/editor/open [post]
func (h *EditorHandler) Open(w http.ResponseWriter, r *http.Request) {
	var req OpenNoteRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.editor.LoadNote(r.Context(), editor.ExistingNote(req.ID, req.Forced)); err != nil {
		writeError(w, "open note", err)
		return
	}
	info := h.editor.Current()
	if info.NoteID != req.ID {
		// The load was abandoned; the note is gone or sealed behind the vault.
		if _, err := h.notes.GetNote(r.Context(), req.ID); err != nil {
			writeError(w, "open note", err)
			return
		}
		writeError(w, "open note", apperr.ErrConflict)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// New handles POST /api/editor/new.
func (h *EditorHandler) New(w http.ResponseWriter, r *http.Request) {
	if err := h.editor.LoadNote(r.Context(), editor.NewNote()); err != nil {
		writeError(w, "new note", err)
		return
	}
	writeJSON(w, http.StatusOK, h.editor.Current())
}

// Reset handles POST /api/editor/reset.
func (h *EditorHandler) Reset(w http.ResponseWriter, r *http.Request) {
	var req ResetRequest
	if !decodeBody(w, r, &req) {
		return
	}
	h.editor.Reset(r.Context(), req.ClearGlobal)
	w.WriteHeader(http.StatusNoContent)
}

// Unlock handles POST /api/vault/unlock.
//
//	@Summary		Unlock the note vault
//	@Tags			vault
//	@Accept			json
//	@Param			body	body	UnlockRequest	true	"Vault password"
//	@Success		204
//	@Failure		403	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/vault/unlock [post]
func (h *EditorHandler) Unlock(w http.ResponseWriter, r *http.Request) {
	var req UnlockRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.vault.Unlock(r.Context(), req.Password); err != nil {
		writeError(w, "unlock vault", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
