package api

import (
	"context"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/quill/internal/checksum"
	"github.com/starford/quill/internal/models"
	"github.com/starford/quill/internal/storage"
)

const maxUploadBytes = 50 << 20 // 50 MB

// BlobSource returns downloaded attachment bytes by hash.
type BlobSource interface {
	Blob(ctx context.Context, hash string) (*models.Attachment, []byte, error)
}

// AttachmentIndex records uploaded attachments.
type AttachmentIndex interface {
	AddAttachment(ctx context.Context, a models.Attachment) error
}

// AttachmentHandler serves and accepts attachment files.
type AttachmentHandler struct {
	source BlobSource
	index  AttachmentIndex
	blobs  storage.Provider
	base   string
}

// NewAttachmentHandler creates a handler. base is the URL prefix under which
// blobs are served, e.g. "/api/attachments/".
func NewAttachmentHandler(source BlobSource, index AttachmentIndex, blobs storage.Provider, base string) *AttachmentHandler {
	return &AttachmentHandler{source: source, index: index, blobs: blobs, base: base}
}

// ServeBlob handles GET /api/attachments/{hash}.
func (h *AttachmentHandler) ServeBlob(w http.ResponseWriter, r *http.Request) {
	a, data, err := h.source.Blob(r.Context(), chi.URLParam(r, "hash"))
	if err != nil {
		writeError(w, "serve attachment", err)
		return
	}
	if a.MimeType != "" {
		w.Header().Set("Content-Type", a.MimeType)
	}
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "private, max-age=31536000, immutable")
	_, _ = w.Write(data)
}

// Upload handles POST /api/attachments (multipart/form-data, fields "file"
// and "note_id"). Blobs are stored under their content hash.
func (h *AttachmentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("file too large or invalid multipart"))
		return
	}
	noteID := r.FormValue("note_id")
	if noteID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("missing 'note_id' field in multipart form"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("missing 'file' field in multipart form"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read file"))
		return
	}

	hash := checksum.Sum(data)
	if err := h.blobs.Write(hash, data); err != nil {
		writeError(w, "store attachment", err)
		return
	}

	mime := header.Header.Get("Content-Type")
	kind := "files"
	if strings.HasPrefix(mime, "image/") {
		kind = models.KindImages
	}
	a := models.Attachment{
		Hash:       hash,
		NoteID:     noteID,
		Kind:       kind,
		MimeType:   mime,
		Filename:   filepath.Base(header.Filename),
		Downloaded: true,
	}
	if err := h.index.AddAttachment(r.Context(), a); err != nil {
		writeError(w, "index attachment", err)
		return
	}

	writeJSON(w, http.StatusCreated, AttachmentUploadResponse{
		Hash: hash,
		Size: int64(len(data)),
		URL:  h.base + hash,
	})
}
