package editor

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

type eventHandler interface {
	handleEvent(ctx context.Context, sessionID string, ev Event)
}

// Bridge is the only conduit to the editor surface. Outbound commands carry
// the live session token; inbound events carrying any other token are dropped.
type Bridge struct {
	session *Session
	handler eventHandler
	log     *slog.Logger
	timeout time.Duration

	mu      sync.Mutex
	surface Surface
	waiters map[MessageType][]chan json.RawMessage
}

func newBridge(s *Session, h eventHandler, log *slog.Logger, timeout time.Duration) *Bridge {
	return &Bridge{
		session: s,
		handler: h,
		log:     log,
		timeout: timeout,
		waiters: make(map[MessageType][]chan json.RawMessage),
	}
}

func (b *Bridge) attach(s Surface) {
	b.mu.Lock()
	b.surface = s
	b.mu.Unlock()
}

func (b *Bridge) detach(s Surface) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.surface != s {
		return false
	}
	b.surface = nil
	return true
}

// Attached reports whether a surface is connected.
func (b *Bridge) Attached() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.surface != nil
}

// Send posts a command tagged with the live session. Without a live session
// it only logs a warning.
func (b *Bridge) Send(ctx context.Context, t MessageType, v any) {
	sid := b.session.ID()
	if sid == "" {
		b.log.Warn("editor: send without session", slog.String("type", string(t)))
		return
	}
	b.post(ctx, t, v, sid)
}

// SendAndAwait posts a command and waits for the reply of the same type.
// It reports false when no session is live, the timeout elapses or ctx ends.
// A timeout of zero uses the bridge default.
func (b *Bridge) SendAndAwait(ctx context.Context, t MessageType, v any, timeout time.Duration) (json.RawMessage, bool) {
	sid := b.session.ID()
	if sid == "" {
		b.log.Warn("editor: send without session", slog.String("type", string(t)))
		return nil, false
	}
	return b.await(ctx, t, v, sid, timeout)
}

func (b *Bridge) await(ctx context.Context, t MessageType, v any, sid string, timeout time.Duration) (json.RawMessage, bool) {
	if timeout <= 0 {
		timeout = b.timeout
	}
	ch := make(chan json.RawMessage, 1)
	b.mu.Lock()
	b.waiters[t] = append(b.waiters[t], ch)
	b.mu.Unlock()
	defer b.dropWaiter(t, ch)

	if !b.post(ctx, t, v, sid) {
		return nil, false
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case reply := <-ch:
		return reply, true
	case <-timer.C:
		b.log.Debug("editor: no response", slog.String("type", string(t)), slog.Duration("timeout", timeout))
		return nil, false
	case <-ctx.Done():
		return nil, false
	}
}

func (b *Bridge) dropWaiter(t MessageType, ch chan json.RawMessage) {
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.waiters[t]
	for i, c := range list {
		if c == ch {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(b.waiters, t)
	} else {
		b.waiters[t] = list
	}
}

func (b *Bridge) post(ctx context.Context, t MessageType, v any, sid string) bool {
	data, err := encode(t, v, sid)
	if err != nil {
		b.log.Error("editor: encode command", slog.String("type", string(t)), slog.String("error", err.Error()))
		return false
	}

	b.mu.Lock()
	s := b.surface
	b.mu.Unlock()
	if s == nil {
		b.log.Debug("editor: no surface attached", slog.String("type", string(t)))
		return false
	}
	if err := s.Post(ctx, data); err != nil {
		b.log.Warn("editor: post failed", slog.String("type", string(t)), slog.String("error", err.Error()))
		return false
	}
	return true
}

// Receive handles one inbound message from the surface.
func (b *Bridge) Receive(ctx context.Context, data []byte) {
	msg, ev, err := Decode(data)
	if err != nil {
		b.log.Debug("editor: dropped message", slog.String("error", err.Error()))
		return
	}

	if !sessionIndependent[msg.Type] && !b.session.Matches(msg.SessionID) {
		b.log.Debug("editor: stale session",
			slog.String("type", string(msg.Type)),
			slog.String("session_id", msg.SessionID))
		return
	}

	if reply, ok := ev.(ReplyEvent); ok {
		b.resolve(reply)
		return
	}
	b.handler.handleEvent(ctx, msg.SessionID, ev)
}

func (b *Bridge) resolve(r ReplyEvent) {
	b.mu.Lock()
	list := b.waiters[r.Type]
	delete(b.waiters, r.Type)
	b.mu.Unlock()

	for _, ch := range list {
		select {
		case ch <- r.Value:
		default:
		}
	}
}

// reload asks the surface to restart; it is sent without a session.
func (b *Bridge) reload(ctx context.Context) {
	b.post(ctx, TypeReload, nil, "")
}
