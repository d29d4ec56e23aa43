package editor

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// MessageType discriminates messages crossing the editor boundary.
type MessageType string

// Commands sent to the editor surface.
const (
	TypeHTML             MessageType = "native:html"
	TypeTitle            MessageType = "native:title"
	TypeStatus           MessageType = "native:status"
	TypeTheme            MessageType = "native:theme"
	TypeTitlePlaceholder MessageType = "native:titleplaceholder"
	TypeSession          MessageType = "native:session"
	TypePlaceholder      MessageType = "native:placeholder"
	TypeTags             MessageType = "native:tags"
	TypeFocus            MessageType = "native:focus"
	TypeClear            MessageType = "native:clear"
	TypeUpdateHTML       MessageType = "native:updatehtml"
	TypeAttachment       MessageType = "native:attachment"
	TypeReload           MessageType = "native:reload"
	TypeLogger           MessageType = "native:logger"
)

// Events emitted by the editor surface.
const (
	EventLoad               MessageType = "editor-event:load"
	EventContent            MessageType = "editor-event:content"
	EventTitle              MessageType = "editor-event:title"
	EventSelection          MessageType = "editor-event:selection"
	EventNewTag             MessageType = "editor-event:newtag"
	EventTag                MessageType = "editor-event:tag"
	EventPicker             MessageType = "editor-event:picker"
	EventDownloadAttachment MessageType = "editor-event:download-attachment"
	EventBack               MessageType = "editor-event:back"
	EventPro                MessageType = "editor-event:pro"
	EventMonograph          MessageType = "editor-event:monograph"
	EventProperties         MessageType = "editor-event:properties"
)

const nativePrefix = "native:"

// Message is the wire envelope shared by commands and events.
type Message struct {
	Type      MessageType     `json:"type"`
	Value     json.RawMessage `json:"value,omitempty"`
	SessionID string          `json:"sessionId,omitempty"`
}

// sessionIndependent lists inbound types accepted regardless of session.
var sessionIndependent = map[MessageType]bool{
	TypeStatus: true,
	EventLoad:  true,
}

// Event is an inbound editor message with a typed payload.
type Event interface {
	event()
}

type (
	// LoadEvent reports that the editor surface (re)started.
	LoadEvent struct{}

	// ContentEvent carries the full serialized document.
	ContentEvent struct {
		HTML       string `json:"html"`
		IgnoreEdit bool   `json:"ignoreEdit"`
	}

	// TitleEvent carries the edited title.
	TitleEvent struct {
		Title string `json:"title"`
	}

	// SelectionEvent reports cursor state; the host does not act on it.
	SelectionEvent struct {
		State json.RawMessage
	}

	// NewTagEvent asks for the tag dialog.
	NewTagEvent struct{}

	// TagEvent asks to remove a tag from the open note.
	TagEvent struct {
		Tag string
	}

	// PickerEvent asks for a file or image picker.
	PickerEvent struct {
		Kind string
	}

	// DownloadAttachmentEvent asks to fetch one attachment.
	DownloadAttachmentEvent struct {
		Hash string `json:"hash"`
	}

	BackEvent       struct{}
	ProEvent        struct{}
	MonographEvent  struct{}
	PropertiesEvent struct{}

	// LogEvent carries a log line from the editor.
	LogEvent struct {
		Text string
	}

	// ReplyEvent answers a command sent with SendAndAwait.
	ReplyEvent struct {
		Type  MessageType
		Value json.RawMessage
	}
)

func (LoadEvent) event() {}
func (ContentEvent) event() {}
func (TitleEvent) event() {}
func (SelectionEvent) event() {}
func (NewTagEvent) event() {}
func (TagEvent) event() {}
func (PickerEvent) event() {}
func (DownloadAttachmentEvent) event() {}
func (BackEvent) event() {}
func (ProEvent) event() {}
func (MonographEvent) event() {}
func (PropertiesEvent) event() {}
func (LogEvent) event() {}
func (ReplyEvent) event() {}

// ErrUnknownMessage is returned by Decode for unrecognized message types.
var ErrUnknownMessage = errors.New("editor: unknown message type")

// Decode parses a wire message and its typed payload.
func Decode(data []byte) (Message, Event, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return msg, nil, fmt.Errorf("editor: decode message: %w", err)
	}

	var (
		ev  Event
		err error
	)
	switch msg.Type {
	case EventLoad:
		ev = LoadEvent{}
	case EventContent:
		var e ContentEvent
		err = decodeValue(msg.Value, &e)
		ev = e
	case EventTitle:
		var e TitleEvent
		err = decodeValue(msg.Value, &e)
		ev = e
	case EventSelection:
		ev = SelectionEvent{State: msg.Value}
	case EventNewTag:
		ev = NewTagEvent{}
	case EventTag:
		var tag string
		err = decodeValue(msg.Value, &tag)
		ev = TagEvent{Tag: tag}
	case EventPicker:
		var kind string
		err = decodeValue(msg.Value, &kind)
		ev = PickerEvent{Kind: kind}
	case EventDownloadAttachment:
		var e DownloadAttachmentEvent
		err = decodeValue(msg.Value, &e)
		if err == nil && e.Hash == "" {
			err = errors.New("missing hash")
		}
		ev = e
	case EventBack:
		ev = BackEvent{}
	case EventPro:
		ev = ProEvent{}
	case EventMonograph:
		ev = MonographEvent{}
	case EventProperties:
		ev = PropertiesEvent{}
	case TypeLogger:
		var text string
		if decodeValue(msg.Value, &text) != nil {
			text = string(msg.Value)
		}
		ev = LogEvent{Text: text}
	default:
		if !strings.HasPrefix(string(msg.Type), nativePrefix) {
			return msg, nil, fmt.Errorf("%w: %q", ErrUnknownMessage, msg.Type)
		}
		ev = ReplyEvent{Type: msg.Type, Value: msg.Value}
	}
	if err != nil {
		return msg, nil, fmt.Errorf("editor: decode %s: %w", msg.Type, err)
	}
	return msg, ev, nil
}

func decodeValue(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}

func encode(t MessageType, v any, sessionID string) ([]byte, error) {
	msg := Message{Type: t, SessionID: sessionID}
	if v != nil {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("editor: encode %s: %w", t, err)
		}
		msg.Value = raw
	}
	return json.Marshal(msg)
}
