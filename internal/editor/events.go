package editor

import (
	"context"
	"log/slog"

	"github.com/starford/quill/internal/models"
)

func (m *Manager) handleEvent(ctx context.Context, sid string, ev Event) {
	noteID := m.session.NoteID()
	switch e := ev.(type) {
	case ContentEvent:
		if e.IgnoreEdit {
			return
		}
		m.debouncer.OnContentChanged(sid, e.HTML, models.ContentTypeTiptap)
	case TitleEvent:
		m.debouncer.OnTitleChanged(sid, e.Title)
	case SelectionEvent:
	case NewTagEvent:
		if noteID == "" {
			m.observer.Forward(Request{Kind: RequestToast, Value: "Start writing to create a new note"})
			return
		}
		m.observer.Forward(Request{Kind: RequestNewTag, NoteID: noteID})
	case TagEvent:
		if noteID == "" || e.Tag == "" {
			return
		}
		go m.removeTag(context.WithoutCancel(ctx), sid, noteID, e.Tag)
	case PickerEvent:
		m.observer.Forward(Request{Kind: RequestPicker, NoteID: noteID, Value: e.Kind})
	case DownloadAttachmentEvent:
		go m.downloadAttachment(context.WithoutCancel(ctx), sid, e.Hash)
	case BackEvent:
		m.observer.Forward(Request{Kind: RequestBack, NoteID: noteID})
	case ProEvent:
		m.observer.Forward(Request{Kind: RequestPro})
	case MonographEvent:
		m.observer.Forward(Request{Kind: RequestPublish, NoteID: noteID})
	case PropertiesEvent:
		m.observer.Forward(Request{Kind: RequestProperties, NoteID: noteID})
	case LogEvent:
		m.log.Info("editor log", slog.String("text", e.Text))
	case LoadEvent:
		go m.onEditorLoaded(context.WithoutCancel(ctx))
	}
}

func (m *Manager) removeTag(ctx context.Context, sid, noteID, tag string) {
	if err := m.store.UnlinkTag(ctx, noteID, tag); err != nil {
		m.log.Warn("editor: remove tag", slog.String("note_id", noteID), slog.String("error", err.Error()))
		return
	}
	note, err := m.store.Note(ctx, noteID)
	if err != nil {
		return
	}
	if m.session.Matches(sid) {
		m.bridge.SetTags(ctx, note.Tags)
	}
	m.observer.QueueRefresh("TaggedNotes")
}

func (m *Manager) downloadAttachment(ctx context.Context, sid, hash string) {
	a, err := m.attachments.Download(ctx, hash)
	if err != nil {
		m.log.Warn("editor: download attachment", slog.String("hash", hash), slog.String("error", err.Error()))
		m.observer.Forward(Request{Kind: RequestToast, Value: "Failed to download attachment"})
		return
	}
	if m.session.Matches(sid) {
		m.bridge.SetAttachment(ctx, a.Hash, m.opts.attachmentBase+a.Hash)
	}
}

// onEditorLoaded restores the surface after it (re)started.
func (m *Manager) onEditorLoaded(ctx context.Context) {
	if !m.session.Live() {
		return
	}
	if m.opts.theme != "" {
		m.bridge.SetTheme(ctx, m.opts.theme)
	}
	// Waits for the surface ack; loads must not queue behind it.
	if m.opts.placeholder != "" {
		m.bridge.SetPlaceholder(ctx, m.opts.placeholder)
	}

	m.loadMu.Lock()
	defer m.loadMu.Unlock()
	if !m.session.Live() {
		return
	}

	noteID := m.session.NoteID()
	if noteID == "" {
		m.bridge.SetSessionID(ctx, m.session.ID())
		m.bridge.Focus(ctx)
		return
	}
	if err := m.loadNote(ctx, ExistingNote(noteID, true)); err != nil {
		m.log.Error("editor: reload after surface load", slog.String("note_id", noteID), slog.String("error", err.Error()))
	}
}

func (m *Manager) noteMissing(ctx context.Context, origin string) {
	m.loadMu.Lock()
	defer m.loadMu.Unlock()
	if m.session.Matches(origin) {
		m.reset(ctx, true)
	}
}

func (m *Manager) noteCreated(ctx context.Context, origin string, note *models.Note, untitled bool) {
	if !m.session.adopt(origin, note) {
		return
	}
	m.log.Debug("editor: note created", slog.String("note_id", note.ID))
	m.observer.NoteCreated(note.ID)
	m.observer.EditingChanged(note.ID)
	if untitled {
		m.bridge.SetTitlePlaceholder(ctx, note.Title)
	}
}

func (m *Manager) noteSaved(ctx context.Context, origin string, note *models.Note, sum string) (int, bool) {
	saves, live := m.session.saved(origin, note, sum)
	if live {
		m.bridge.SetStatus(ctx, note.EditedAt)
	}
	return saves, live
}

func (m *Manager) restartHistory(origin string) {
	m.session.restartHistory(origin)
}
