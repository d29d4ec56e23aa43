// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Quill editor tools for LLM integration.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/quill/internal/apperr"
	"github.com/starford/quill/internal/editor"
	"github.com/starford/quill/internal/models"
	"github.com/starford/quill/internal/noteservice"
	"github.com/starford/quill/internal/storage"
)

const sessionURI = "quill://editor/session"

// Editor is the part of the editor manager driven by tools.
type Editor interface {
	LoadNote(ctx context.Context, req editor.LoadRequest) error
	Current() editor.SessionInfo
}

// AttachmentIndex records attachments written by attach_file.
type AttachmentIndex interface {
	AddAttachment(ctx context.Context, a models.Attachment) error
}

// Server wraps the MCP server with Quill tools.
type Server struct {
	mcp    *server.MCPServer
	notes  *noteservice.Service
	editor Editor
	blobs  storage.Provider
	index  AttachmentIndex
	base   string
}

// New creates a new MCP server with all Quill tools registered. base is the
// URL prefix attachments are served under.
func New(notes *noteservice.Service, ed Editor, blobs storage.Provider, index AttachmentIndex, base string) *Server {
	s := &Server{notes: notes, editor: ed, blobs: blobs, index: index, base: base}

	s.mcp = server.NewMCPServer(
		"Quill",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_notes",
		mcp.WithDescription("List notes, most recently edited first."),
		mcp.WithNumber("limit", mcp.Description("Page size (default 50)")),
		mcp.WithNumber("offset", mcp.Description("Page offset")),
	), s.listNotes)

	s.mcp.AddTool(mcp.NewTool("read_note",
		mcp.WithDescription("Read a note converted to Markdown."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Note id")),
	), s.readNote)

	s.mcp.AddTool(mcp.NewTool("open_note",
		mcp.WithDescription("Open a note in the editor. Reopening the note already "+
			"being edited does nothing unless forced is set."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Note id")),
		mcp.WithBoolean("forced", mcp.Description("Reload even if the note is already open")),
	), s.openNote)

	s.mcp.AddTool(mcp.NewTool("new_note",
		mcp.WithDescription("Start a new, unsaved note in the editor. The note is "+
			"created once the first edit is saved."),
	), s.newNote)

	s.mcp.AddTool(mcp.NewTool("current_session",
		mcp.WithDescription("Describe the live editor session."),
	), s.currentSession)

	s.mcp.AddTool(mcp.NewTool("attach_file",
		mcp.WithDescription("Store a file as an attachment of a note. Returns the "+
			"content hash and an <img> snippet ready to paste into the note body."),
		mcp.WithString("note_id", mcp.Required(), mcp.Description("Note the attachment belongs to")),
		mcp.WithString("data", mcp.Required(), mcp.Description("Base64 data URI (data:image/png;base64,...)")),
		mcp.WithString("filename", mcp.Description("Original file name")),
	), s.attachFile)

	s.mcp.AddResource(
		mcp.NewResource(sessionURI, "Editor session",
			mcp.WithResourceDescription("The note currently open in the editor."),
			mcp.WithMIMEType("application/json"),
		),
		s.readSessionResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// Handler returns the MCP server over streamable HTTP.
func (s *Server) Handler() http.Handler {
	return server.NewStreamableHTTPServer(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) *mcp.CallToolResult {
	out, _ := json.MarshalIndent(v, "", "  ")
	return mcp.NewToolResultText(string(out))
}

func toolError(err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return mcp.NewToolResultError("note not found")
	case errors.Is(err, apperr.ErrVaultLocked):
		return mcp.NewToolResultError("note is locked; unlock the vault first")
	}
	return mcp.NewToolResultError(err.Error())
}

func (s *Server) listNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	items, total, err := s.notes.ListNotes(ctx, req.GetInt("limit", 50), req.GetInt("offset", 0))
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(map[string]any{"notes": items, "total": total}), nil
}

func (s *Server) readNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	title, md, err := s.notes.Markdown(ctx, id)
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText("# " + title + "\n\n" + md), nil
}

func (s *Server) openNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.editor.LoadNote(ctx, editor.ExistingNote(id, req.GetBool("forced", false))); err != nil {
		return toolError(err), nil
	}
	info := s.editor.Current()
	if info.NoteID != id {
		if _, err := s.notes.GetNote(ctx, id); err != nil {
			return toolError(err), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("note %s could not be opened", id)), nil
	}
	return jsonResult(info), nil
}

func (s *Server) newNote(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := s.editor.LoadNote(ctx, editor.NewNote()); err != nil {
		return toolError(err), nil
	}
	return jsonResult(s.editor.Current()), nil
}

func (s *Server) currentSession(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.editor.Current()), nil
}

func (s *Server) readSessionResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	out, err := json.Marshal(s.editor.Current())
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      sessionURI,
			MIMEType: "application/json",
			Text:     string(out),
		},
	}, nil
}
