package editor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/starford/quill/internal/apperr"
	"github.com/starford/quill/internal/checksum"
	"github.com/starford/quill/internal/models"
	"github.com/starford/quill/internal/parser"
)

// newNoteKey keys the pending edit of a note that has no id yet.
const newNoteKey = "new-note"

// PendingEdit is an unsaved change waiting for its debounce timer.
// Title and Content are nil when unchanged.
type PendingEdit struct {
	NoteID          string
	Title           *string
	Content         *string
	ContentType     string
	OriginSessionID string
}

// flushHooks are the session mutations a flush may request.
type flushHooks interface {
	noteMissing(ctx context.Context, origin string)
	noteCreated(ctx context.Context, origin string, note *models.Note, untitled bool)
	noteSaved(ctx context.Context, origin string, note *models.Note, sum string) (saves int, live bool)
	restartHistory(origin string)
}

type pending struct {
	edit  PendingEdit
	timer *time.Timer
}

// Debouncer coalesces edits per note and writes them after a quiet period.
// Timers of abandoned sessions are not cancelled; their flush is discarded.
type Debouncer struct {
	store    NoteStore
	vault    Vault
	session  *Session
	hooks    flushHooks
	observer Observer
	log      *slog.Logger
	delay    time.Duration
	sanitize func(string) string

	mu      sync.Mutex
	pending map[string]*pending

	flushMu sync.Mutex
}

func newDebouncer(store NoteStore, vault Vault, s *Session, hooks flushHooks, obs Observer, log *slog.Logger, delay time.Duration) *Debouncer {
	return &Debouncer{
		store:    store,
		vault:    vault,
		session:  s,
		hooks:    hooks,
		observer: obs,
		log:      log,
		delay:    delay,
		pending:  make(map[string]*pending),
	}
}

// OnContentChanged records new document content from session sid. Content
// equal to what the session last loaded or saved is the editor echoing a
// push and is dropped, unless it reverts an edit that is still pending.
func (d *Debouncer) OnContentChanged(sid, html, contentType string) {
	if d.isEcho(sid, html) {
		d.log.Debug("editor: unchanged content ignored", slog.String("session_id", sid))
		return
	}
	d.schedule(sid, func(e *PendingEdit) {
		e.Content = &html
		e.ContentType = contentType
	})
}

// OnTitleChanged records a new title from session sid.
func (d *Debouncer) OnTitleChanged(sid, title string) {
	d.schedule(sid, func(e *PendingEdit) {
		e.Title = &title
	})
}

func (d *Debouncer) isEcho(sid, html string) bool {
	if !d.session.Matches(sid) || checksum.String(html) != d.session.contentChecksum() {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, p := range d.pending {
		if p.edit.OriginSessionID == sid && p.edit.Content != nil {
			return false
		}
	}
	return true
}

func (d *Debouncer) schedule(sid string, apply func(*PendingEdit)) {
	noteID := d.session.NoteID()
	key := noteID
	if key == "" {
		key = newNoteKey
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if p, ok := d.pending[key]; ok && p.edit.OriginSessionID == sid && p.timer.Stop() {
		apply(&p.edit)
		p.timer.Reset(d.delay)
		return
	}

	p := &pending{edit: PendingEdit{NoteID: noteID, OriginSessionID: sid}}
	apply(&p.edit)
	d.pending[key] = p
	p.timer = time.AfterFunc(d.delay, func() { d.fire(key, p) })
}

func (d *Debouncer) fire(key string, p *pending) {
	d.mu.Lock()
	if d.pending[key] == p {
		delete(d.pending, key)
	}
	edit := p.edit
	d.mu.Unlock()

	d.Flush(context.Background(), edit)
}

// FlushAll writes every pending edit whose timer has not fired yet.
func (d *Debouncer) FlushAll(ctx context.Context) {
	d.mu.Lock()
	var edits []PendingEdit
	for key, p := range d.pending {
		if p.timer.Stop() {
			edits = append(edits, p.edit)
		}
		delete(d.pending, key)
	}
	d.mu.Unlock()

	for _, e := range edits {
		d.Flush(ctx, e)
	}
}

// Flush writes one pending edit. Failures are logged, never returned.
func (d *Debouncer) Flush(ctx context.Context, edit PendingEdit) {
	d.flushMu.Lock()
	defer d.flushMu.Unlock()

	origin := edit.OriginSessionID
	noteID, anchor, ok := d.session.target(origin, edit.NoteID)
	if !ok {
		d.log.Debug("editor: stale edit discarded",
			slog.String("session_id", origin),
			slog.String("note_id", edit.NoteID))
		return
	}

	var before *models.Note
	if noteID != "" {
		n, err := d.store.Note(ctx, noteID)
		if errors.Is(err, apperr.ErrNotFound) {
			d.log.Info("editor: open note was deleted", slog.String("note_id", noteID))
			d.hooks.noteMissing(ctx, origin)
			return
		}
		if err != nil {
			d.log.Error("editor: load note for save", slog.String("note_id", noteID), slog.String("error", err.Error()))
			return
		}
		if n.Readonly || n.Conflicted {
			d.log.Debug("editor: save skipped", slog.String("note_id", noteID),
				slog.Bool("readonly", n.Readonly), slog.Bool("conflicted", n.Conflicted))
			return
		}
		before = n
	}

	patch := models.NotePatch{ID: noteID, Title: edit.Title, HistoryAnchor: &anchor}
	sum := ""
	if edit.Content != nil {
		data := *edit.Content
		if d.sanitize != nil {
			data = d.sanitize(data)
		}
		if parser.IsEmpty(data) {
			d.hooks.restartHistory(origin)
			patch.HistoryAnchor = nil
		}
		patch.Content = &models.ContentPatch{Data: data, Type: edit.ContentType}
		sum = checksum.String(data)
	}

	id := noteID
	var err error
	if before != nil && before.Locked {
		patch.ContentID = before.ContentID
		err = d.vault.Save(ctx, patch)
	} else {
		id, err = d.store.Add(ctx, patch)
	}
	if err != nil {
		d.log.Error("editor: save failed", slog.String("note_id", noteID), slog.String("error", err.Error()))
		return
	}

	saved, err := d.store.Note(ctx, id)
	if err != nil {
		d.log.Error("editor: reload saved note", slog.String("note_id", id), slog.String("error", err.Error()))
		return
	}

	if noteID == "" {
		d.hooks.noteCreated(ctx, origin, saved, edit.Title == nil || *edit.Title == "")
	}

	refresh := before == nil || before.Title != saved.Title || before.Headline != saved.Headline
	if saves, live := d.hooks.noteSaved(ctx, origin, saved, sum); live && saves < 2 {
		refresh = true
	}
	if refresh {
		d.observer.QueueRefresh(refreshScreens...)
	}
}
