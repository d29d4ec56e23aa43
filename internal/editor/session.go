package editor

import (
	"sync"
	"time"

	"github.com/starford/quill/internal/models"
)

// Session is the live editing state. Only the Manager mutates it; the Bridge
// and Debouncer hold a handle for reading.
type Session struct {
	mu sync.RWMutex

	id         string
	noteID     string
	note       *models.Note
	anchor     time.Time
	saves      int
	lastChange time.Time
	checksum   string

	now func() time.Time
}

// SessionInfo is a point-in-time copy of the session identity.
type SessionInfo struct {
	ID            string    `json:"session_id"`
	NoteID        string    `json:"note_id,omitempty"`
	HistoryAnchor time.Time `json:"history_anchor,omitzero"`
	Locked        bool      `json:"locked"`
	Readonly      bool      `json:"readonly"`
}

func newSession(now func() time.Time) *Session {
	if now == nil {
		now = time.Now
	}
	return &Session{now: now}
}

// ID returns the live session token, or "" when no session is live.
func (s *Session) ID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.id
}

// NoteID returns the id of the open note, or "" for a new unsaved note.
func (s *Session) NoteID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.noteID
}

// Live reports whether a session is live.
func (s *Session) Live() bool {
	return s.ID() != ""
}

// Matches reports whether id is the live session token.
func (s *Session) Matches(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.id != "" && s.id == id
}

// Anchor returns the history anchor of the live session.
func (s *Session) Anchor() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.anchor
}

// target resolves the note and history anchor an edit from origin applies to.
// An empty noteID with ok set means origin is a new note not saved yet.
func (s *Session) target(origin, noteID string) (string, time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.id == "" || s.id != origin {
		return "", time.Time{}, false
	}
	if noteID == "" {
		noteID = s.noteID
	}
	return noteID, s.anchor, true
}

// Snapshot returns a copy of the session identity.
func (s *Session) Snapshot() SessionInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	info := SessionInfo{ID: s.id, NoteID: s.noteID, HistoryAnchor: s.anchor}
	if s.note != nil {
		info.Locked = s.note.Locked
		info.Readonly = s.note.Readonly
	}
	return info
}

func (s *Session) lastChangeAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastChange
}

func (s *Session) contentChecksum() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.checksum
}

func (s *Session) current() *models.Note {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.note
}

func (s *Session) start(id string, note *models.Note, anchor time.Time, sum string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.id = id
	s.note = note
	s.noteID = ""
	s.lastChange = time.Time{}
	if note != nil {
		s.noteID = note.ID
		s.lastChange = note.EditedAt
	}
	s.anchor = anchor
	s.saves = 0
	s.checksum = sum
}

func (s *Session) end() {
	s.start("", nil, time.Time{}, "")
}

// adopt records the id of a note created by the first save of this session.
func (s *Session) adopt(origin string, note *models.Note) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.id == "" || s.id != origin || s.noteID != "" {
		return false
	}
	s.noteID = note.ID
	s.note = note
	return true
}

func (s *Session) restartHistory(origin string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.id != "" && s.id == origin {
		s.anchor = s.now()
	}
}

// saved records a completed save and returns the number of saves so far.
func (s *Session) saved(origin string, note *models.Note, sum string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.id == "" || s.id != origin {
		return 0, false
	}
	s.saves++
	s.note = note
	s.lastChange = note.EditedAt
	if sum != "" {
		s.checksum = sum
	}
	return s.saves, true
}

func (s *Session) synced(note *models.Note, sum string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.note = note
	s.lastChange = note.EditedAt
	s.checksum = sum
}
