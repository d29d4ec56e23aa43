package mcpserver

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/quill/internal/checksum"
	"github.com/starford/quill/internal/models"
)

const maxAssetSize = 10 << 20 // 10 MB

var allowedMIME = map[string]bool{
	"image/png":       true,
	"image/jpeg":      true,
	"image/gif":       true,
	"image/webp":      true,
	"image/svg+xml":   true,
	"application/pdf": true,
}

type attachResult struct {
	Hash    string `json:"hash"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

func (s *Server) attachFile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	noteID, err := req.RequireString("note_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	uri, err := req.RequireString("data")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if _, err := s.notes.GetNote(ctx, noteID); err != nil {
		return toolError(err), nil
	}

	data, mime, err := decodeDataURI(uri)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(data) > maxAssetSize {
		return mcp.NewToolResultError(fmt.Sprintf("file too large: %d bytes (max %d)", len(data), maxAssetSize)), nil
	}
	if err := validateMagicBytes(data, mime); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	hash := checksum.Sum(data)
	if err := s.blobs.Write(hash, data); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to save attachment: %v", err)), nil
	}

	kind := "files"
	if strings.HasPrefix(mime, "image/") {
		kind = models.KindImages
	}
	filename := filepath.Base(req.GetString("filename", hash))
	if err := s.index.AddAttachment(ctx, models.Attachment{
		Hash:       hash,
		NoteID:     noteID,
		Kind:       kind,
		MimeType:   mime,
		Filename:   filename,
		Downloaded: true,
	}); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to index attachment: %v", err)), nil
	}

	url := s.base + hash
	snippet := fmt.Sprintf(`<a href="%s">%s</a>`, url, html.EscapeString(filename))
	if kind == models.KindImages {
		snippet = fmt.Sprintf(`<img data-hash="%s" src="%s" alt="%s">`, hash, url, html.EscapeString(filename))
	}
	out, _ := json.Marshal(attachResult{Hash: hash, URL: url, Snippet: snippet})
	return mcp.NewToolResultText(string(out)), nil
}

// decodeDataURI parses a data:<mediatype>;base64,<data> URI.
func decodeDataURI(uri string) ([]byte, string, error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return nil, "", fmt.Errorf("only data URIs are supported")
	}
	meta, encoded, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, "", fmt.Errorf("invalid data URI: missing comma separator")
	}
	if !strings.Contains(meta, ";base64") {
		return nil, "", fmt.Errorf("only base64 data URIs are supported")
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, "", fmt.Errorf("invalid base64 data: %w", err)
		}
	}

	mime := strings.Split(strings.TrimSuffix(meta, ";base64"), ";")[0]
	if !allowedMIME[mime] {
		return nil, "", fmt.Errorf("unsupported MIME type in data URI: %s", mime)
	}
	return data, mime, nil
}

// validateMagicBytes verifies file content matches the declared type.
func validateMagicBytes(data []byte, mime string) error {
	if mime == "image/svg+xml" {
		prefix := data
		if len(prefix) > 1024 {
			prefix = prefix[:1024]
		}
		if !bytes.Contains(prefix, []byte("<svg")) {
			return fmt.Errorf("content does not appear to be a valid SVG (missing <svg tag)")
		}
		return nil
	}
	detected := strings.Split(http.DetectContentType(data), ";")[0]
	if detected != mime {
		return fmt.Errorf("content does not match type %s (detected: %s)", mime, detected)
	}
	return nil
}
