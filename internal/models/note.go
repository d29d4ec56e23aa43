// Package models defines the domain types for quill.
package models

import "time"

// ContentTypeTiptap is the serialization format emitted by the embedded editor.
const ContentTypeTiptap = "tiptap"

// Attachment kinds that participate in image loading.
const (
	KindImages   = "images"
	KindWebclips = "webclips"
)

// Note is a note record as held by the note store.
type Note struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Headline   string    `json:"headline"`
	ContentID  string    `json:"content_id,omitempty"`
	Tags       []string  `json:"tags"`
	Locked     bool      `json:"locked"`
	Readonly   bool      `json:"readonly"`
	Conflicted bool      `json:"conflicted"`
	Content    *Content  `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
	EditedAt   time.Time `json:"edited_at"`

	// HistoryAnchor groups successive saves into one version-history entry.
	// Nil when the last save carried empty content.
	HistoryAnchor *time.Time `json:"history_anchor,omitempty"`
}

// Content is the body of a note. Data is ciphertext when Locked is set.
type Content struct {
	ID       string    `json:"id"`
	NoteID   string    `json:"note_id"`
	Type     string    `json:"type"`
	Data     string    `json:"data"`
	Locked   bool      `json:"locked"`
	Checksum string    `json:"checksum"`
	EditedAt time.Time `json:"edited_at"`
}

// NotePatch is a partial note write. Nil fields are left unchanged.
type NotePatch struct {
	ID            string
	Title         *string
	Content       *ContentPatch
	ContentID     string
	HistoryAnchor *time.Time
}

// ContentPatch carries new content for a NotePatch.
type ContentPatch struct {
	Data string
	Type string
}

// Attachment is a file referenced from note content by its hash.
type Attachment struct {
	Hash       string `json:"hash"`
	NoteID     string `json:"note_id"`
	Kind       string `json:"kind"`
	MimeType   string `json:"mime_type"`
	Filename   string `json:"filename"`
	URL        string `json:"url"`
	Downloaded bool   `json:"downloaded"`
}
