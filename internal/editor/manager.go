package editor

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/starford/quill/internal/apperr"
	"github.com/starford/quill/internal/checksum"
	"github.com/starford/quill/internal/models"
)

// LoadKind selects between opening a stored note and starting a new one.
type LoadKind int

const (
	LoadNew LoadKind = iota
	LoadExisting
)

// LoadRequest asks the Manager to open a note.
type LoadRequest struct {
	Kind   LoadKind
	NoteID string
	// Forced reloads even when the note is already open.
	Forced bool
}

// NewNote requests a blank unsaved note.
func NewNote() LoadRequest {
	return LoadRequest{Kind: LoadNew}
}

// ExistingNote requests the stored note id.
func ExistingNote(id string, forced bool) LoadRequest {
	return LoadRequest{Kind: LoadExisting, NoteID: id, Forced: forced}
}

// Manager owns the editing session and wires the bridge and debouncer to it.
type Manager struct {
	store       NoteStore
	vault       Vault
	attachments Attachments
	observer    Observer
	opts        options
	log         *slog.Logger

	session   *Session
	bridge    *Bridge
	debouncer *Debouncer

	loadMu sync.Mutex

	imgMu    sync.Mutex
	imgTimer *time.Timer
}

// New creates a Manager with no open note.
func New(store NoteStore, vault Vault, attachments Attachments, observer Observer, opts ...Option) *Manager {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if observer == nil {
		observer = NopObserver{}
	}

	m := &Manager{
		store:       store,
		vault:       vault,
		attachments: attachments,
		observer:    observer,
		opts:        o,
		log:         o.log,
		session:     newSession(o.now),
	}
	m.bridge = newBridge(m.session, m, o.log, o.ackTimeout)
	m.debouncer = newDebouncer(store, vault, m.session, m, observer, o.log, o.debounce)
	m.debouncer.sanitize = o.sanitize
	return m
}

// Bridge returns the message bridge.
func (m *Manager) Bridge() *Bridge { return m.bridge }

// Current returns the live session identity.
func (m *Manager) Current() SessionInfo { return m.session.Snapshot() }

// Attach makes s the live editor surface, replacing any previous one.
func (m *Manager) Attach(s Surface) {
	m.bridge.attach(s)
}

// Detach removes s if it is still the live surface.
func (m *Manager) Detach(s Surface) {
	m.bridge.detach(s)
}

// Receive passes one inbound surface message to the bridge.
func (m *Manager) Receive(ctx context.Context, data []byte) {
	m.bridge.Receive(ctx, data)
}

// LoadNote opens a note in the editor. Loading the note that is already open
// without Forced does nothing. A note that no longer exists leaves the
// editor empty and is not an error.
func (m *Manager) LoadNote(ctx context.Context, req LoadRequest) error {
	m.loadMu.Lock()
	defer m.loadMu.Unlock()
	return m.loadNote(ctx, req)
}

func (m *Manager) loadNote(ctx context.Context, req LoadRequest) error {
	if req.Kind == LoadNew {
		if m.session.Live() {
			m.reset(ctx, true)
		}
		sid := "session_" + uuid.NewString()
		m.session.start(sid, nil, m.opts.now(), "")
		m.bridge.SetSessionID(ctx, sid)
		m.bridge.Focus(ctx)
		m.observer.EditingChanged("")
		m.log.Debug("editor: new note session", slog.String("session_id", sid))
		return nil
	}

	if req.NoteID == "" {
		return errors.New("editor: load existing note without id")
	}

	m.observer.EditingChanged(req.NoteID)
	if !req.Forced && m.session.Live() && m.session.NoteID() == req.NoteID {
		return nil
	}

	note, err := m.store.Note(ctx, req.NoteID)
	if errors.Is(err, apperr.ErrNotFound) {
		m.log.Info("editor: note to load not found", slog.String("note_id", req.NoteID))
		m.reset(ctx, true)
		return nil
	}
	if err != nil {
		return err
	}

	if m.session.Live() {
		m.reset(ctx, false)
	}

	content, err := m.loadContent(ctx, note)
	if errors.Is(err, apperr.ErrVaultLocked) {
		m.observer.EditingChanged("")
		m.observer.Forward(Request{Kind: RequestUnlock, NoteID: note.ID})
		return nil
	}
	if err != nil {
		return err
	}

	sid := note.ID + "_session_" + uuid.NewString()
	m.session.start(sid, note, note.EditedAt, checksum.String(content.Data))

	m.bridge.SetSessionID(ctx, sid)
	m.bridge.SetStatus(ctx, note.EditedAt)
	m.bridge.SetTitle(ctx, note.Title)
	m.bridge.SetHTML(ctx, content.Data)
	m.bridge.SetTags(ctx, note.Tags)

	if !note.Locked {
		m.scheduleImages(note.ID, sid)
	}
	m.log.Debug("editor: note loaded", slog.String("note_id", note.ID), slog.String("session_id", sid))
	return nil
}

func (m *Manager) loadContent(ctx context.Context, note *models.Note) (*models.Content, error) {
	if note.Locked {
		return m.vault.Decrypt(ctx, note)
	}
	var c *models.Content
	switch {
	case note.Content != nil:
		c = note.Content
	case note.ContentID != "":
		raw, err := m.store.ContentRaw(ctx, note.ContentID)
		if err != nil && !errors.Is(err, apperr.ErrNotFound) {
			return nil, err
		}
		c = raw
	}
	if c == nil {
		return &models.Content{NoteID: note.ID, Type: models.ContentTypeTiptap}, nil
	}
	return m.store.InsertPlaceholders(ctx, c, m.opts.placeholderAsset)
}

// Reset blanks the editor and ends the session. With clearGlobal the
// editing marker is cleared and downloads for the abandoned note stop.
func (m *Manager) Reset(ctx context.Context, clearGlobal bool) {
	m.loadMu.Lock()
	defer m.loadMu.Unlock()
	m.reset(ctx, clearGlobal)
}

func (m *Manager) reset(ctx context.Context, clearGlobal bool) {
	m.stopImages()
	prev := m.session.NoteID()
	if m.session.Live() {
		m.bridge.SetTitle(ctx, "")
		m.bridge.ClearContent(ctx)
		m.bridge.ClearTags(ctx)
	}
	m.session.end()
	if clearGlobal {
		m.observer.EditingChanged("")
		if prev != "" {
			m.attachments.Cancel(prev)
		}
	}
}

// EnsureReady checks that the surface answers a status query. When it does
// not, the surface is asked to reload and false is returned.
func (m *Manager) EnsureReady(ctx context.Context) bool {
	if _, ok := m.bridge.await(ctx, TypeStatus, nil, m.session.ID(), 0); ok {
		return true
	}
	m.log.Warn("editor: surface not responding, reloading")
	m.bridge.reload(ctx)
	return false
}

// OnExternalUpdate reconciles the open note with a version written outside
// the editor. Older or foreign notes are ignored.
func (m *Manager) OnExternalUpdate(ctx context.Context, note *models.Note) {
	m.loadMu.Lock()
	defer m.loadMu.Unlock()

	if note == nil || !m.session.Live() || note.ID != m.session.NoteID() {
		return
	}
	if !note.EditedAt.After(m.session.lastChangeAt()) {
		return
	}

	prev := m.session.current()
	var (
		content *models.Content
		err     error
	)
	if note.Locked {
		content, err = m.vault.Decrypt(ctx, note)
		if err != nil {
			m.log.Info("editor: open note locked externally", slog.String("note_id", note.ID))
			m.reset(ctx, true)
			m.observer.Forward(Request{Kind: RequestUnlock, NoteID: note.ID})
			return
		}
	} else {
		content, err = m.loadContent(ctx, note)
		if err != nil {
			m.log.Error("editor: reload external change", slog.String("note_id", note.ID), slog.String("error", err.Error()))
			return
		}
	}

	sum := checksum.String(content.Data)
	changed := sum != m.session.contentChecksum()
	m.session.synced(note, sum)

	if changed {
		m.bridge.UpdateHTML(ctx, content.Data)
	}
	if prev == nil || prev.Title != note.Title {
		m.bridge.SetTitle(ctx, note.Title)
	}
	if prev == nil || !slices.Equal(prev.Tags, note.Tags) {
		m.bridge.SetTags(ctx, note.Tags)
	}
	m.bridge.SetStatus(ctx, note.EditedAt)
}

// Close flushes pending edits and stops background work.
func (m *Manager) Close(ctx context.Context) {
	m.stopImages()
	m.debouncer.FlushAll(ctx)
}

func (m *Manager) scheduleImages(noteID, sid string) {
	m.imgMu.Lock()
	defer m.imgMu.Unlock()
	if m.imgTimer != nil {
		m.imgTimer.Stop()
	}
	m.imgTimer = time.AfterFunc(m.opts.imageLoadDelay, func() {
		ctx := context.Background()
		if !m.session.Matches(sid) {
			return
		}
		err := m.attachments.DownloadImages(ctx, noteID, func(a models.Attachment) {
			if m.session.Matches(sid) {
				m.bridge.SetAttachment(ctx, a.Hash, m.opts.attachmentBase+a.Hash)
			}
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			m.log.Warn("editor: image download", slog.String("note_id", noteID), slog.String("error", err.Error()))
		}
	})
}

func (m *Manager) stopImages() {
	m.imgMu.Lock()
	defer m.imgMu.Unlock()
	if m.imgTimer != nil {
		m.imgTimer.Stop()
		m.imgTimer = nil
	}
}
