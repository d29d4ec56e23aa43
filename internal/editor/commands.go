package editor

import (
	"context"
	"time"
)

const statusLabel = "Saved"

// StatusValue is the payload of a native:status push.
type StatusValue struct {
	Date  string `json:"date"`
	Label string `json:"label"`
}

// AttachmentValue announces a downloaded attachment to the editor.
type AttachmentValue struct {
	Hash string `json:"hash"`
	Src  string `json:"src"`
}

// SetHTML replaces the editor document.
func (b *Bridge) SetHTML(ctx context.Context, html string) {
	b.Send(ctx, TypeHTML, html)
}

// UpdateHTML merges externally changed content into the editor document.
func (b *Bridge) UpdateHTML(ctx context.Context, html string) {
	b.Send(ctx, TypeUpdateHTML, html)
}

func (b *Bridge) SetTitle(ctx context.Context, title string) {
	b.Send(ctx, TypeTitle, title)
}

// SetStatus shows the last-saved time.
func (b *Bridge) SetStatus(ctx context.Context, saved time.Time) {
	b.Send(ctx, TypeStatus, StatusValue{Date: saved.Format(time.DateTime), Label: statusLabel})
}

// SetSessionID tells the editor which token to tag its events with.
func (b *Bridge) SetSessionID(ctx context.Context, id string) {
	b.Send(ctx, TypeSession, id)
}

func (b *Bridge) Focus(ctx context.Context) {
	b.Send(ctx, TypeFocus, "")
}

// ClearContent blanks the document and title.
func (b *Bridge) ClearContent(ctx context.Context) {
	b.Send(ctx, TypeClear, "")
}

func (b *Bridge) ClearTags(ctx context.Context) {
	b.Send(ctx, TypeTags, []string{})
}

func (b *Bridge) SetTags(ctx context.Context, tags []string) {
	if tags == nil {
		tags = []string{}
	}
	b.Send(ctx, TypeTags, tags)
}

func (b *Bridge) SetTheme(ctx context.Context, theme string) {
	b.Send(ctx, TypeTheme, theme)
}

func (b *Bridge) SetTitlePlaceholder(ctx context.Context, text string) {
	b.Send(ctx, TypeTitlePlaceholder, text)
}

// SetPlaceholder pushes the empty-document placeholder and waits for the
// editor to acknowledge it.
func (b *Bridge) SetPlaceholder(ctx context.Context, text string) bool {
	_, ok := b.SendAndAwait(ctx, TypePlaceholder, text, 0)
	return ok
}

// SetAttachment points images with hash at src.
func (b *Bridge) SetAttachment(ctx context.Context, hash, src string) {
	b.Send(ctx, TypeAttachment, AttachmentValue{Hash: hash, Src: src})
}
