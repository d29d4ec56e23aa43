package editor

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"

	"github.com/starford/quill/internal/models"
)

func TestLoadExistingPushesNote(t *testing.T) {
	e := newEnv(t)
	e.store.put(models.Note{ID: "abc", Title: "Groceries", Tags: []string{"home"}}, "<p>Hello</p>")
	ctx := context.Background()

	if err := e.m.LoadNote(ctx, ExistingNote("abc", false)); err != nil {
		t.Fatalf("LoadNote: %v", err)
	}

	sid := e.sid()
	assert.Equal(t, true, strings.HasPrefix(sid, "abc_session_"))
	assert.Equal(t, "abc", e.m.Current().NoteID)
	assert.Equal(t, "abc", e.obs.lastEditing())

	html := e.surface.messages(TypeHTML)
	assert.Equal(t, 1, len(html))
	assert.Equal(t, "<p>Hello</p>", text(html[0]))
	assert.Equal(t, sid, html[0].SessionID)
	assert.Equal(t, 1, len(e.surface.messages(TypeTitle)))
	assert.Equal(t, 1, len(e.surface.messages(TypeTags)))
	assert.Equal(t, 1, len(e.surface.messages(TypeSession)))
}

func TestLoadNewStartsBlankSession(t *testing.T) {
	e := newEnv(t)
	before := time.Now()

	if err := e.m.LoadNote(context.Background(), NewNote()); err != nil {
		t.Fatalf("LoadNote: %v", err)
	}

	info := e.m.Current()
	assert.Equal(t, true, strings.HasPrefix(info.ID, "session_"))
	assert.Equal(t, "", info.NoteID)
	assert.Equal(t, false, info.HistoryAnchor.Before(before))
	assert.Equal(t, 0, len(e.surface.messages(TypeHTML)))
	assert.Equal(t, 1, len(e.surface.messages(TypeFocus)))
	assert.Equal(t, "", e.obs.lastEditing())
}

// Property: loading the open note again without forced keeps the session.
func TestLoadSameNoteIsIdempotent(t *testing.T) {
	e := newEnv(t)
	e.store.put(models.Note{ID: "abc"}, "<p>Hello</p>")
	ctx := context.Background()

	_ = e.m.LoadNote(ctx, ExistingNote("abc", false))
	first := e.sid()
	_ = e.m.LoadNote(ctx, ExistingNote("abc", false))

	assert.Equal(t, first, e.sid())
	assert.Equal(t, 1, len(e.surface.messages(TypeHTML)))

	_ = e.m.LoadNote(ctx, ExistingNote("abc", true))
	assert.NotEqual(t, first, e.sid())
	assert.Equal(t, 2, len(e.surface.messages(TypeHTML)))
}

func TestLoadMissingNoteClearsState(t *testing.T) {
	e := newEnv(t)
	e.store.put(models.Note{ID: "abc"}, "<p>Hello</p>")
	ctx := context.Background()
	_ = e.m.LoadNote(ctx, ExistingNote("abc", false))

	if err := e.m.LoadNote(ctx, ExistingNote("gone", false)); err != nil {
		t.Fatalf("LoadNote returned %v, want nil", err)
	}
	assert.Equal(t, "", e.sid())
	assert.Equal(t, "", e.obs.lastEditing())
	assert.Equal(t, []string{"abc"}, e.atts.cancelCalls())
}

// Property: an event tagged with an old session never schedules a save.
func TestStaleSessionEventIgnored(t *testing.T) {
	e := newEnv(t)
	e.store.put(models.Note{ID: "a"}, "<p>A</p>")
	e.store.put(models.Note{ID: "b"}, "<p>B</p>")
	ctx := context.Background()

	_ = e.m.LoadNote(ctx, ExistingNote("a", false))
	sidA := e.sid()
	_ = e.m.LoadNote(ctx, ExistingNote("b", false))

	e.emit(EventContent, ContentEvent{HTML: "<p>A edited</p>"}, sidA)
	e.emit(EventTitle, TitleEvent{Title: "stale"}, sidA)
	settle()

	assert.Equal(t, 0, len(e.store.addCalls()))
	assert.Equal(t, "<p>A</p>", e.store.content("a"))
	assert.Equal(t, "<p>B</p>", e.store.content("b"))
}

// Property: a burst of edits produces a single save with the last value.
func TestDebounceCoalesces(t *testing.T) {
	e := newEnv(t)
	e.store.put(models.Note{ID: "abc"}, "<p>Hello</p>")
	_ = e.m.LoadNote(context.Background(), ExistingNote("abc", false))
	sid := e.sid()

	for i := 1; i <= 5; i++ {
		e.emit(EventContent, ContentEvent{HTML: "<p>v" + string(rune('0'+i)) + "</p>"}, sid)
	}
	waitFor(t, "save", func() bool { return len(e.store.addCalls()) == 1 })
	settle()

	adds := e.store.addCalls()
	assert.Equal(t, 1, len(adds))
	assert.Equal(t, "<p>v5</p>", adds[0].Content.Data)
}

func TestTitleAndContentCoalesceIndependently(t *testing.T) {
	e := newEnv(t)
	e.store.put(models.Note{ID: "abc", Title: "Old"}, "<p>Hello</p>")
	_ = e.m.LoadNote(context.Background(), ExistingNote("abc", false))
	sid := e.sid()

	e.emit(EventTitle, TitleEvent{Title: "New"}, sid)
	e.emit(EventContent, ContentEvent{HTML: "<p>x</p>"}, sid)
	e.emit(EventTitle, TitleEvent{Title: "Newer"}, sid)
	waitFor(t, "save", func() bool { return len(e.store.addCalls()) == 1 })

	p := e.store.addCalls()[0]
	assert.Equal(t, "Newer", *p.Title)
	assert.Equal(t, "<p>x</p>", p.Content.Data)
}

func TestIgnoreEditIsNotSaved(t *testing.T) {
	e := newEnv(t)
	e.store.put(models.Note{ID: "abc"}, "<p>Hello</p>")
	_ = e.m.LoadNote(context.Background(), ExistingNote("abc", false))

	e.emit(EventContent, ContentEvent{HTML: "<p>echo</p>", IgnoreEdit: true}, e.sid())
	settle()
	assert.Equal(t, 0, len(e.store.addCalls()))
}

// Property: locked notes are written through the vault only.
func TestLockedNoteRoutesThroughVault(t *testing.T) {
	e := newEnv(t)
	e.store.put(models.Note{ID: "sec", Locked: true, ContentID: "sec-c"}, "<p>secret</p>")
	e.store.put(models.Note{ID: "pub"}, "<p>public</p>")
	ctx := context.Background()

	_ = e.m.LoadNote(ctx, ExistingNote("sec", false))
	assert.Equal(t, "<p>secret</p>", text(e.surface.messages(TypeHTML)[0]))
	e.emit(EventContent, ContentEvent{HTML: "<p>more secret</p>"}, e.sid())
	waitFor(t, "vault save", func() bool { return len(e.vault.saveCalls()) == 1 })

	save := e.vault.saveCalls()[0]
	assert.Equal(t, "sec", save.ID)
	assert.Equal(t, "sec-c", save.ContentID)
	assert.Equal(t, "<p>more secret</p>", save.Content.Data)
	assert.Equal(t, 0, len(e.store.addCalls()))

	_ = e.m.LoadNote(ctx, ExistingNote("pub", false))
	e.emit(EventContent, ContentEvent{HTML: "<p>more public</p>"}, e.sid())
	waitFor(t, "plain save", func() bool { return len(e.store.addCalls()) == 1 })
	assert.Equal(t, 1, len(e.vault.saveCalls()))
}

func TestLockedNoteWithoutKeyAsksUnlock(t *testing.T) {
	e := newEnv(t)
	e.vault.locked = true
	e.store.put(models.Note{ID: "sec", Locked: true, ContentID: "sec-c"}, "<p>secret</p>")

	if err := e.m.LoadNote(context.Background(), ExistingNote("sec", false)); err != nil {
		t.Fatalf("LoadNote: %v", err)
	}
	assert.Equal(t, "", e.sid())
	reqs := e.obs.forwarded()
	assert.Equal(t, 1, len(reqs))
	assert.Equal(t, RequestUnlock, reqs[0].Kind)
	assert.Equal(t, 0, len(e.surface.messages(TypeHTML)))
}

// Property: a new note gets exactly one id, reused by later edits.
func TestNewNoteIDAssignedOnce(t *testing.T) {
	e := newEnv(t)
	_ = e.m.LoadNote(context.Background(), NewNote())
	sid := e.sid()

	e.emit(EventContent, ContentEvent{HTML: "<p>first</p>"}, sid)
	waitFor(t, "first save", func() bool { return len(e.store.addCalls()) == 1 })
	waitFor(t, "id adopted", func() bool { return e.m.Current().NoteID != "" })

	e.emit(EventContent, ContentEvent{HTML: "<p>second</p>"}, sid)
	waitFor(t, "second save", func() bool { return len(e.store.addCalls()) == 2 })

	created := e.obs.createdIDs()
	assert.Equal(t, 1, len(created))
	assert.Equal(t, created[0], e.m.Current().NoteID)
	assert.Equal(t, created[0], e.store.addCalls()[1].ID)
	assert.Equal(t, 1, e.store.count())
	assert.Equal(t, sid, e.sid())
	assert.Equal(t, created[0], e.obs.lastEditing())

	// Untitled note: the store-derived title is offered as placeholder.
	ph := e.surface.messages(TypeTitlePlaceholder)
	assert.Equal(t, 1, len(ph))
}

// Scenario: edit "Hello" to "Hello world" and get one save plus a status push.
func TestEditPersistsAndPushesStatus(t *testing.T) {
	e := newEnv(t)
	e.store.put(models.Note{ID: "abc"}, "Hello")
	_ = e.m.LoadNote(context.Background(), ExistingNote("abc", false))
	loadStatus := len(e.surface.messages(TypeStatus))

	e.emit(EventContent, ContentEvent{HTML: "Hello world"}, e.sid())
	waitFor(t, "status", func() bool { return len(e.surface.messages(TypeStatus)) == loadStatus+1 })

	adds := e.store.addCalls()
	assert.Equal(t, 1, len(adds))
	assert.Equal(t, "abc", adds[0].ID)
	assert.Equal(t, "Hello world", e.store.content("abc"))

	saved, _ := e.store.Note(context.Background(), "abc")
	var status StatusValue
	last := e.surface.messages(TypeStatus)
	_ = json.Unmarshal(last[len(last)-1].Value, &status)
	assert.Equal(t, saved.EditedAt.Format(time.DateTime), status.Date)
	assert.Equal(t, e.sid(), last[len(last)-1].SessionID)
}

// Scenario: a title typed into a new note and abandoned creates nothing.
func TestAbandonedNewNoteNotPersisted(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	_ = e.m.LoadNote(ctx, NewNote())

	e.emit(EventTitle, TitleEvent{Title: "My note"}, e.sid())
	e.m.Reset(ctx, true)
	settle()

	assert.Equal(t, 0, len(e.store.addCalls()))
	assert.Equal(t, 0, e.store.count())
}

// Scenario: switching notes before the timer fires discards the edit.
func TestSwitchNoteDiscardsPendingEdit(t *testing.T) {
	e := newEnv(t)
	e.store.put(models.Note{ID: "x"}, "<p>x</p>")
	e.store.put(models.Note{ID: "y"}, "<p>y</p>")
	ctx := context.Background()

	_ = e.m.LoadNote(ctx, ExistingNote("x", false))
	e.emit(EventContent, ContentEvent{HTML: "<p>x typed</p>"}, e.sid())
	_ = e.m.LoadNote(ctx, ExistingNote("y", false))
	settle()

	assert.Equal(t, 0, len(e.store.addCalls()))
	assert.Equal(t, "<p>x</p>", e.store.content("x"))
	assert.Equal(t, "<p>y</p>", e.store.content("y"))
}

func TestDeletedNoteResetsEditor(t *testing.T) {
	e := newEnv(t)
	e.store.put(models.Note{ID: "abc"}, "<p>Hello</p>")
	_ = e.m.LoadNote(context.Background(), ExistingNote("abc", false))
	sid := e.sid()
	e.store.remove("abc")

	e.emit(EventContent, ContentEvent{HTML: "<p>late</p>"}, sid)
	waitFor(t, "reset", func() bool { return e.sid() == "" })

	assert.Equal(t, 0, len(e.store.addCalls()))
	assert.Equal(t, "", e.obs.lastEditing())
}

func TestReadonlyAndConflictedNotesSkipSave(t *testing.T) {
	for _, n := range []models.Note{{ID: "ro", Readonly: true}, {ID: "cf", Conflicted: true}} {
		t.Run(n.ID, func(t *testing.T) {
			e := newEnv(t)
			e.store.put(n, "<p>keep</p>")
			_ = e.m.LoadNote(context.Background(), ExistingNote(n.ID, false))
			e.emit(EventContent, ContentEvent{HTML: "<p>changed</p>"}, e.sid())
			settle()
			assert.Equal(t, 0, len(e.store.addCalls()))
			assert.Equal(t, "<p>keep</p>", e.store.content(n.ID))
		})
	}
}

func TestEmptyContentRestartsHistory(t *testing.T) {
	e := newEnv(t)
	e.store.put(models.Note{ID: "abc"}, "<p>Hello</p>")
	_ = e.m.LoadNote(context.Background(), ExistingNote("abc", false))
	anchor := e.m.Current().HistoryAnchor
	sid := e.sid()

	e.emit(EventContent, ContentEvent{HTML: "<p><br></p>"}, sid)
	waitFor(t, "save", func() bool { return len(e.store.addCalls()) == 1 })
	assert.Equal(t, true, e.store.addCalls()[0].HistoryAnchor == nil)
	assert.Equal(t, true, e.m.Current().HistoryAnchor.After(anchor))

	e.emit(EventContent, ContentEvent{HTML: "<p>back</p>"}, sid)
	waitFor(t, "second save", func() bool { return len(e.store.addCalls()) == 2 })
	second := e.store.addCalls()[1]
	assert.Equal(t, true, second.HistoryAnchor != nil)
	assert.Equal(t, true, second.HistoryAnchor.Equal(e.m.Current().HistoryAnchor))
}

func TestHistoryAnchorIsNoteEditTime(t *testing.T) {
	e := newEnv(t)
	e.store.put(models.Note{ID: "abc"}, "<p>Hello</p>")
	n, _ := e.store.Note(context.Background(), "abc")
	_ = e.m.LoadNote(context.Background(), ExistingNote("abc", false))

	sid := e.sid()
	for i := 0; i < 2; i++ {
		e.emit(EventContent, ContentEvent{HTML: "<p>edit</p>"}, sid)
		waitFor(t, "save", func() bool { return len(e.store.addCalls()) == i+1 })
	}
	for _, p := range e.store.addCalls() {
		assert.Equal(t, true, p.HistoryAnchor.Equal(n.EditedAt))
	}
}

func TestSanitizerApplied(t *testing.T) {
	e := newEnv(t, WithSanitizer(func(s string) string {
		return strings.ReplaceAll(s, "<script>x</script>", "")
	}))
	e.store.put(models.Note{ID: "abc"}, "<p>Hello</p>")
	_ = e.m.LoadNote(context.Background(), ExistingNote("abc", false))

	e.emit(EventContent, ContentEvent{HTML: "<p>ok</p><script>x</script>"}, e.sid())
	waitFor(t, "save", func() bool { return len(e.store.addCalls()) == 1 })
	assert.Equal(t, "<p>ok</p>", e.store.content("abc"))
}

func TestResetBlanksEditor(t *testing.T) {
	e := newEnv(t)
	e.store.put(models.Note{ID: "abc", Title: "T"}, "<p>Hello</p>")
	ctx := context.Background()
	_ = e.m.LoadNote(ctx, ExistingNote("abc", false))
	sid := e.sid()
	e.surface.reset()

	e.m.Reset(ctx, false)

	assert.Equal(t, "", e.sid())
	clear := e.surface.messages(TypeClear)
	assert.Equal(t, 1, len(clear))
	assert.Equal(t, sid, clear[0].SessionID)
	assert.Equal(t, "abc", e.obs.lastEditing())
	assert.Equal(t, 0, len(e.atts.cancelCalls()))

	_ = e.m.LoadNote(ctx, ExistingNote("abc", false))
	e.m.Reset(ctx, true)
	assert.Equal(t, "", e.obs.lastEditing())
	assert.Equal(t, []string{"abc"}, e.atts.cancelCalls())
}

func TestFlushAllOnClose(t *testing.T) {
	e := newEnv(t, WithDebounce(time.Hour))
	e.store.put(models.Note{ID: "abc"}, "<p>Hello</p>")
	_ = e.m.LoadNote(context.Background(), ExistingNote("abc", false))

	e.emit(EventContent, ContentEvent{HTML: "<p>final</p>"}, e.sid())
	e.m.Close(context.Background())

	assert.Equal(t, 1, len(e.store.addCalls()))
	assert.Equal(t, "<p>final</p>", e.store.content("abc"))
}

func TestRefreshQueuedOnTitleChange(t *testing.T) {
	e := newEnv(t)
	e.store.put(models.Note{ID: "abc", Title: "Same"}, "<p>Hello</p>")
	_ = e.m.LoadNote(context.Background(), ExistingNote("abc", false))
	sid := e.sid()

	// The first two saves of a session always refresh.
	for i := 1; i <= 2; i++ {
		e.emit(EventTitle, TitleEvent{Title: "Same"}, sid)
		waitFor(t, "save", func() bool { return len(e.store.addCalls()) == i })
	}
	e.obs.mu.Lock()
	base := e.obs.refreshes
	e.obs.mu.Unlock()
	assert.Equal(t, 1, base)

	e.emit(EventTitle, TitleEvent{Title: "Different"}, sid)
	waitFor(t, "refresh", func() bool {
		e.obs.mu.Lock()
		defer e.obs.mu.Unlock()
		return e.obs.refreshes == base+1
	})
}

func TestForwardedRequests(t *testing.T) {
	e := newEnv(t)
	e.store.put(models.Note{ID: "abc"}, "<p>Hello</p>")
	_ = e.m.LoadNote(context.Background(), ExistingNote("abc", false))
	sid := e.sid()

	e.emit(EventBack, nil, sid)
	e.emit(EventPro, nil, sid)
	e.emit(EventMonograph, nil, sid)
	e.emit(EventProperties, nil, sid)
	e.emit(EventNewTag, nil, sid)
	e.emit(EventPicker, "image", sid)
	e.emit(EventSelection, map[string]bool{"bold": true}, sid)
	e.emit(EventBack, nil, "wrong")

	var kinds []RequestKind
	for _, r := range e.obs.forwarded() {
		kinds = append(kinds, r.Kind)
	}
	assert.Equal(t, []RequestKind{RequestBack, RequestPro, RequestPublish, RequestProperties, RequestNewTag, RequestPicker}, kinds)
	assert.Equal(t, "image", e.obs.forwarded()[5].Value)
}

func TestNewTagWithoutNoteShowsToast(t *testing.T) {
	e := newEnv(t)
	_ = e.m.LoadNote(context.Background(), NewNote())
	e.emit(EventNewTag, nil, e.sid())

	reqs := e.obs.forwarded()
	assert.Equal(t, 1, len(reqs))
	assert.Equal(t, RequestToast, reqs[0].Kind)
}

func TestTagRemoval(t *testing.T) {
	e := newEnv(t)
	e.store.put(models.Note{ID: "abc", Tags: []string{"a", "b"}}, "<p>Hello</p>")
	_ = e.m.LoadNote(context.Background(), ExistingNote("abc", false))

	e.emit(EventTag, "a", e.sid())
	waitFor(t, "tags push", func() bool { return len(e.surface.messages(TypeTags)) == 2 })

	tags := e.surface.messages(TypeTags)
	assert.Equal(t, `["b"]`, string(tags[1].Value))
}

func TestDownloadAttachment(t *testing.T) {
	e := newEnv(t)
	e.store.put(models.Note{ID: "abc"}, "<p>Hello</p>")
	_ = e.m.LoadNote(context.Background(), ExistingNote("abc", false))

	e.emit(EventDownloadAttachment, DownloadAttachmentEvent{Hash: "h1"}, e.sid())
	waitFor(t, "attachment push", func() bool { return len(e.surface.messages(TypeAttachment)) == 1 })

	var v AttachmentValue
	_ = json.Unmarshal(e.surface.messages(TypeAttachment)[0].Value, &v)
	assert.Equal(t, "h1", v.Hash)
	assert.Equal(t, DefaultAttachmentBase+"h1", v.Src)

	e.emit(EventDownloadAttachment, DownloadAttachmentEvent{Hash: "missing"}, e.sid())
	waitFor(t, "toast", func() bool { return len(e.obs.forwarded()) == 1 })
}

func TestImagesLoadAfterDelay(t *testing.T) {
	e := newEnv(t)
	e.atts.images["abc"] = []string{"img1", "img2"}
	e.store.put(models.Note{ID: "abc"}, `<p><img data-hash="img1"><img data-hash="img2"></p>`)
	_ = e.m.LoadNote(context.Background(), ExistingNote("abc", false))

	waitFor(t, "image pushes", func() bool { return len(e.surface.messages(TypeAttachment)) == 2 })
}

func TestEditorLoadReloadsOpenNote(t *testing.T) {
	e := newEnv(t, WithTheme("dark"), WithPlaceholder("Start writing"))
	e.surface.replies[TypePlaceholder] = true
	e.store.put(models.Note{ID: "abc"}, "<p>Hello</p>")
	_ = e.m.LoadNote(context.Background(), ExistingNote("abc", false))
	first := e.sid()

	// Sent by a freshly started surface that has no session yet.
	e.emit(EventLoad, nil, "")
	waitFor(t, "reload", func() bool { return len(e.surface.messages(TypeHTML)) == 2 })

	assert.NotEqual(t, first, e.sid())
	assert.Equal(t, 1, len(e.surface.messages(TypeTheme)))
	assert.Equal(t, 1, len(e.surface.messages(TypePlaceholder)))
}

func TestLoadNotBlockedByUnansweredPlaceholder(t *testing.T) {
	e := newEnv(t, WithPlaceholder("Start writing"), WithAckTimeout(time.Second))
	e.store.put(models.Note{ID: "abc"}, "<p>Hello</p>")
	e.store.put(models.Note{ID: "other"}, "<p>Other</p>")
	ctx := context.Background()
	_ = e.m.LoadNote(ctx, ExistingNote("abc", false))

	// The surface never acknowledges the placeholder.
	e.emit(EventLoad, nil, "")
	waitFor(t, "placeholder", func() bool { return len(e.surface.messages(TypePlaceholder)) == 1 })

	start := time.Now()
	_ = e.m.LoadNote(ctx, ExistingNote("other", false))
	assert.Equal(t, true, time.Since(start) < 500*time.Millisecond)
	assert.Equal(t, "other", e.m.Current().NoteID)

	// Once the ack times out the surface is restored with the open note.
	waitFor(t, "reload", func() bool { return len(e.surface.messages(TypeHTML)) == 3 })
	assert.Equal(t, "other", e.m.Current().NoteID)
}

func TestEnsureReady(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	assert.Equal(t, false, e.m.EnsureReady(ctx))
	assert.Equal(t, 1, len(e.surface.messages(TypeReload)))

	e.surface.replies[TypeStatus] = true
	assert.Equal(t, true, e.m.EnsureReady(ctx))
	assert.Equal(t, 1, len(e.surface.messages(TypeReload)))
}

func TestExternalUpdateReconciles(t *testing.T) {
	e := newEnv(t)
	e.store.put(models.Note{ID: "abc", Title: "Old"}, "<p>Hello</p>")
	ctx := context.Background()
	_ = e.m.LoadNote(ctx, ExistingNote("abc", false))

	// Older versions are ignored.
	stale, _ := e.store.Note(ctx, "abc")
	e.m.OnExternalUpdate(ctx, stale)
	assert.Equal(t, 0, len(e.surface.messages(TypeUpdateHTML)))

	e.store.put(models.Note{ID: "abc", Title: "New", ContentID: "abc-content"}, "<p>Synced</p>")
	fresh, _ := e.store.Note(ctx, "abc")
	e.m.OnExternalUpdate(ctx, fresh)

	upd := e.surface.messages(TypeUpdateHTML)
	assert.Equal(t, 1, len(upd))
	assert.Equal(t, "<p>Synced</p>", text(upd[0]))
	titles := e.surface.messages(TypeTitle)
	assert.Equal(t, "New", text(titles[len(titles)-1]))

	// The editor echoes the pushed content; that echo is not saved back.
	e.emit(EventContent, ContentEvent{HTML: "<p>Synced</p>"}, e.sid())
	settle()
	assert.Equal(t, 0, len(e.store.addCalls()))
}

func TestEditAfterExternalUpdateIsSaved(t *testing.T) {
	e := newEnv(t)
	e.store.put(models.Note{ID: "abc", Title: "Old"}, "<p>Hello</p>")
	ctx := context.Background()
	_ = e.m.LoadNote(ctx, ExistingNote("abc", false))

	e.store.put(models.Note{ID: "abc", Title: "New", ContentID: "abc-content"}, "<p>Synced</p>")
	fresh, _ := e.store.Note(ctx, "abc")
	e.m.OnExternalUpdate(ctx, fresh)

	// Typed straight after the push, well inside one debounce interval.
	e.emit(EventContent, ContentEvent{HTML: "<p>Synced and typed</p>"}, e.sid())
	e.emit(EventTitle, TitleEvent{Title: "Renamed"}, e.sid())
	settle()

	adds := e.store.addCalls()
	assert.Equal(t, 1, len(adds))
	assert.Equal(t, "<p>Synced and typed</p>", e.store.content("abc"))
	assert.Equal(t, "Renamed", *adds[0].Title)
}

func TestRevertToSavedContentIsSaved(t *testing.T) {
	e := newEnv(t)
	e.store.put(models.Note{ID: "abc"}, "<p>Hello</p>")
	_ = e.m.LoadNote(context.Background(), ExistingNote("abc", false))
	sid := e.sid()

	// Equal to the loaded content, but it undoes the pending edit.
	e.emit(EventContent, ContentEvent{HTML: "<p>Hello there</p>"}, sid)
	e.emit(EventContent, ContentEvent{HTML: "<p>Hello</p>"}, sid)
	settle()

	assert.Equal(t, 1, len(e.store.addCalls()))
	assert.Equal(t, "<p>Hello</p>", e.store.content("abc"))
}

func TestFlushKeepsAnchorOfOriginSession(t *testing.T) {
	e := newEnv(t)
	e.store.put(models.Note{ID: "x"}, "<p>x</p>")
	e.store.put(models.Note{ID: "y"}, "<p>y</p>")
	ctx := context.Background()

	_ = e.m.LoadNote(ctx, ExistingNote("x", false))
	x, _ := e.store.Note(ctx, "x")
	sid := e.sid()

	// Another note is opened while the save of x is reading the store.
	e.store.beforeRead("x", func() {
		_ = e.m.LoadNote(ctx, ExistingNote("y", false))
	})
	e.emit(EventContent, ContentEvent{HTML: "<p>x typed</p>"}, sid)
	waitFor(t, "save of x", func() bool { return len(e.store.addCalls()) == 1 })

	add := e.store.addCalls()[0]
	assert.Equal(t, "x", add.ID)
	assert.Equal(t, x.EditedAt, *add.HistoryAnchor)
	assert.Equal(t, "y", e.m.Current().NoteID)
	assert.Equal(t, "<p>y</p>", e.store.content("y"))
}

func TestExternalUpdateForOtherNoteIgnored(t *testing.T) {
	e := newEnv(t)
	e.store.put(models.Note{ID: "abc"}, "<p>Hello</p>")
	e.store.put(models.Note{ID: "other"}, "<p>Other</p>")
	ctx := context.Background()
	_ = e.m.LoadNote(ctx, ExistingNote("abc", false))

	other, _ := e.store.Note(ctx, "other")
	e.m.OnExternalUpdate(ctx, other)
	assert.Equal(t, 0, len(e.surface.messages(TypeUpdateHTML)))
}
