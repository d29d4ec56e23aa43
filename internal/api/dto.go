package api

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/quill/internal/editor"
	"github.com/starford/quill/internal/noteservice"
)

// OpenNoteRequest asks the editor to load a stored note.
type OpenNoteRequest struct {
	ID     string `json:"id" example:"01HZX3Q9V6P4K2M8N7R5T1W0YA" validate:"required"`
	Forced bool   `json:"forced"`
}

// Validate validates the request.
func (r *OpenNoteRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.ID, validation.Required, validation.Length(1, 128)),
	)
}

// ResetRequest asks the editor to drop the open note.
type ResetRequest struct {
	ClearGlobal bool `json:"clear_global"`
}

// Validate validates the request.
func (r *ResetRequest) Validate() error { return nil }

// UnlockRequest carries the vault password.
type UnlockRequest struct {
	Password string `json:"password" validate:"required"`
}

// Validate validates the request.
func (r *UnlockRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Password, validation.Required),
	)
}

// SessionResponse describes the live editor session.
type SessionResponse = editor.SessionInfo

// NoteDetail is the full note response type (aliased from the domain layer).
type NoteDetail = noteservice.NoteDetail

// NoteListItem is a lightweight item in a list response (aliased from the domain layer).
type NoteListItem = noteservice.NoteListItem

// NoteListResponse wraps paginated note listings.
type NoteListResponse struct {
	Notes []NoteListItem `json:"notes" validate:"required"`
	Total int            `json:"total" example:"42" validate:"required"`
}

// AttachmentUploadResponse is returned after a successful attachment upload.
type AttachmentUploadResponse struct {
	Hash string `json:"hash" example:"9f86d081884c7d65..." validate:"required"`
	Size int64  `json:"size" example:"12345" validate:"required"`
	URL  string `json:"url" example:"/api/attachments/9f86d081884c7d65..." validate:"required"`
}
