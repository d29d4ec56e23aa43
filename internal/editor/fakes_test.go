package editor

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/starford/quill/internal/apperr"
	"github.com/starford/quill/internal/models"
	"github.com/starford/quill/internal/parser"
)

type fakeStore struct {
	mu       sync.Mutex
	notes    map[string]*models.Note
	contents map[string]*models.Content
	adds     []models.NotePatch
	seq      int
	clock    time.Time

	// onRead runs once, outside the lock, on the next read of the keyed note.
	onRead map[string]func()
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		notes:    make(map[string]*models.Note),
		contents: make(map[string]*models.Content),
		clock:    time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (s *fakeStore) tick() time.Time {
	s.clock = s.clock.Add(time.Second)
	return s.clock
}

func (s *fakeStore) put(n models.Note, html string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n.EditedAt.IsZero() {
		n.EditedAt = s.tick()
	}
	if html != "" || n.ContentID != "" {
		if n.ContentID == "" {
			n.ContentID = n.ID + "-content"
		}
		s.contents[n.ContentID] = &models.Content{ID: n.ContentID, NoteID: n.ID, Type: models.ContentTypeTiptap, Data: html, Locked: n.Locked}
		n.Headline = parser.Headline(html)
	}
	s.notes[n.ID] = &n
}

func (s *fakeStore) remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.notes, id)
}

func (s *fakeStore) addCalls() []models.NotePatch {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.adds)
}

func (s *fakeStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.notes)
}

func (s *fakeStore) content(noteID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notes[noteID]
	if !ok {
		return ""
	}
	if c, ok := s.contents[n.ContentID]; ok {
		return c.Data
	}
	return ""
}

func (s *fakeStore) beforeRead(id string, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.onRead == nil {
		s.onRead = make(map[string]func())
	}
	s.onRead[id] = fn
}

func (s *fakeStore) Note(_ context.Context, id string) (*models.Note, error) {
	s.mu.Lock()
	fn := s.onRead[id]
	delete(s.onRead, id)
	s.mu.Unlock()
	if fn != nil {
		fn()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notes[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	cp := *n
	cp.Tags = slices.Clone(n.Tags)
	return &cp, nil
}

func (s *fakeStore) Add(_ context.Context, p models.NotePatch) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.adds = append(s.adds, p)

	n, ok := s.notes[p.ID]
	if !ok {
		s.seq++
		n = &models.Note{ID: fmt.Sprintf("note-%d", s.seq), Title: fmt.Sprintf("Note %d", s.seq)}
		s.notes[n.ID] = n
	}
	if n.Locked && p.Content != nil {
		return "", apperr.ErrLocked
	}
	if p.Title != nil && *p.Title != "" {
		n.Title = *p.Title
	}
	if p.Content != nil {
		if n.ContentID == "" {
			n.ContentID = n.ID + "-content"
		}
		s.contents[n.ContentID] = &models.Content{ID: n.ContentID, NoteID: n.ID, Type: p.Content.Type, Data: p.Content.Data}
		n.Headline = parser.Headline(p.Content.Data)
	}
	n.HistoryAnchor = p.HistoryAnchor
	n.EditedAt = s.tick()
	return n.ID, nil
}

func (s *fakeStore) ContentRaw(_ context.Context, id string) (*models.Content, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contents[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *fakeStore) InsertPlaceholders(_ context.Context, c *models.Content, _ string) (*models.Content, error) {
	return c, nil
}

func (s *fakeStore) UnlinkTag(_ context.Context, id, tag string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notes[id]
	if !ok {
		return apperr.ErrNotFound
	}
	n.Tags = slices.DeleteFunc(n.Tags, func(t string) bool { return t == tag })
	return nil
}

// fakeVault keeps locked content in the store's content map in plain text.
type fakeVault struct {
	store  *fakeStore
	mu     sync.Mutex
	saves  []models.NotePatch
	locked bool
}

func (v *fakeVault) Save(_ context.Context, p models.NotePatch) error {
	v.mu.Lock()
	v.saves = append(v.saves, p)
	v.mu.Unlock()

	v.store.mu.Lock()
	defer v.store.mu.Unlock()
	n := v.store.notes[p.ID]
	if p.Content != nil {
		v.store.contents[p.ContentID] = &models.Content{ID: p.ContentID, NoteID: p.ID, Data: p.Content.Data, Locked: true}
	}
	n.EditedAt = v.store.tick()
	return nil
}

func (v *fakeVault) Decrypt(_ context.Context, n *models.Note) (*models.Content, error) {
	v.mu.Lock()
	locked := v.locked
	v.mu.Unlock()
	if locked {
		return nil, apperr.ErrVaultLocked
	}
	v.store.mu.Lock()
	defer v.store.mu.Unlock()
	c, ok := v.store.contents[n.ContentID]
	if !ok {
		return &models.Content{NoteID: n.ID}, nil
	}
	cp := *c
	cp.Locked = false
	return &cp, nil
}

func (v *fakeVault) saveCalls() []models.NotePatch {
	v.mu.Lock()
	defer v.mu.Unlock()
	return slices.Clone(v.saves)
}

type fakeAttachments struct {
	mu        sync.Mutex
	images    map[string][]string
	cancelled []string
	fetched   []string
}

func (a *fakeAttachments) DownloadImages(_ context.Context, noteID string, done func(models.Attachment)) error {
	a.mu.Lock()
	hashes := slices.Clone(a.images[noteID])
	a.mu.Unlock()
	for _, h := range hashes {
		done(models.Attachment{Hash: h, NoteID: noteID, Downloaded: true})
	}
	return nil
}

func (a *fakeAttachments) Download(_ context.Context, hash string) (*models.Attachment, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if hash == "missing" {
		return nil, apperr.ErrNotFound
	}
	a.fetched = append(a.fetched, hash)
	return &models.Attachment{Hash: hash, Downloaded: true}, nil
}

func (a *fakeAttachments) Cancel(noteID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cancelled = append(a.cancelled, noteID)
}

func (a *fakeAttachments) cancelCalls() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return slices.Clone(a.cancelled)
}

type recordingObserver struct {
	mu        sync.Mutex
	editing   []string
	created   []string
	refreshes int
	requests  []Request
}

func (o *recordingObserver) EditingChanged(id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.editing = append(o.editing, id)
}

func (o *recordingObserver) NoteCreated(id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.created = append(o.created, id)
}

func (o *recordingObserver) QueueRefresh(...string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.refreshes++
}

func (o *recordingObserver) Forward(r Request) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.requests = append(o.requests, r)
}

func (o *recordingObserver) lastEditing() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.editing) == 0 {
		return "<none>"
	}
	return o.editing[len(o.editing)-1]
}

func (o *recordingObserver) createdIDs() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return slices.Clone(o.created)
}

func (o *recordingObserver) forwarded() []Request {
	o.mu.Lock()
	defer o.mu.Unlock()
	return slices.Clone(o.requests)
}

// fakeSurface records posted commands. Types listed in replies are answered
// with an empty reply tagged with the command's session.
type fakeSurface struct {
	mu      sync.Mutex
	msgs    []Message
	replies map[MessageType]bool
	target  interface {
		Receive(ctx context.Context, data []byte)
	}
}

func (s *fakeSurface) Post(_ context.Context, data []byte) error {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return err
	}
	s.mu.Lock()
	s.msgs = append(s.msgs, msg)
	reply := s.replies[msg.Type] && s.target != nil
	s.mu.Unlock()

	if reply {
		out, _ := json.Marshal(Message{Type: msg.Type, Value: json.RawMessage(`true`), SessionID: msg.SessionID})
		go s.target.Receive(context.Background(), out)
	}
	return nil
}

func (s *fakeSurface) messages(t MessageType) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Message
	for _, m := range s.msgs {
		if m.Type == t {
			out = append(out, m)
		}
	}
	return out
}

func (s *fakeSurface) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = nil
}

const testDebounce = 20 * time.Millisecond

type env struct {
	m       *Manager
	store   *fakeStore
	vault   *fakeVault
	atts    *fakeAttachments
	obs     *recordingObserver
	surface *fakeSurface
}

func newEnv(t *testing.T, opts ...Option) *env {
	t.Helper()
	store := newFakeStore()
	e := &env{
		store:   store,
		vault:   &fakeVault{store: store},
		atts:    &fakeAttachments{images: make(map[string][]string)},
		obs:     &recordingObserver{},
		surface: &fakeSurface{replies: make(map[MessageType]bool)},
	}
	base := []Option{
		WithDebounce(testDebounce),
		WithAckTimeout(100 * time.Millisecond),
		WithImageLoadDelay(time.Millisecond),
	}
	e.m = New(store, e.vault, e.atts, e.obs, append(base, opts...)...)
	e.surface.target = e.m
	e.m.Attach(e.surface)
	t.Cleanup(func() { e.m.Close(context.Background()) })
	return e
}

// emit delivers an editor event tagged with sid.
func (e *env) emit(t MessageType, v any, sid string) {
	data, err := encode(t, v, sid)
	if err != nil {
		panic(err)
	}
	e.m.Receive(context.Background(), data)
}

func (e *env) sid() string {
	return e.m.Current().ID
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// settle waits long enough for any armed debounce timer to have fired.
func settle() {
	time.Sleep(5 * testDebounce)
}

// text decodes a string payload.
func text(m Message) string {
	var s string
	_ = json.Unmarshal(m.Value, &s)
	return s
}
