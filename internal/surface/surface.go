// Package surface carries editor bridge messages over a WebSocket.
package surface

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/starford/quill/internal/editor"
)

// ErrClosed is returned by Post after the connection ended.
var ErrClosed = errors.New("surface: connection closed")

// Receiver is the editor side of a connection.
type Receiver interface {
	Attach(s editor.Surface)
	Detach(s editor.Surface)
	Receive(ctx context.Context, data []byte)
}

// Settings tunes connection timeouts.
type Settings struct {
	WriteTimeout time.Duration
	ReadTimeout  time.Duration
	PingInterval time.Duration
	BufferSize   int
}

// DefaultSettings returns the timeouts used by NewHandler.
func DefaultSettings() Settings {
	return Settings{
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  60 * time.Second,
		PingInterval: 20 * time.Second,
		BufferSize:   64,
	}
}

// Handler upgrades requests to editor connections. A new connection
// replaces the previous one as the live surface.
type Handler struct {
	receiver Receiver
	settings Settings
	log      *slog.Logger
	upgrader websocket.Upgrader
}

// NewHandler creates a Handler feeding receiver.
func NewHandler(receiver Receiver, settings Settings, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	def := DefaultSettings()
	if settings.WriteTimeout <= 0 {
		settings.WriteTimeout = def.WriteTimeout
	}
	if settings.ReadTimeout <= 0 {
		settings.ReadTimeout = def.ReadTimeout
	}
	if settings.PingInterval <= 0 {
		settings.PingInterval = def.PingInterval
	}
	if settings.BufferSize <= 0 {
		settings.BufferSize = def.BufferSize
	}
	return &Handler{
		receiver: receiver,
		settings: settings,
		log:      log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// ServeHTTP handles GET /editor/ws.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("surface: upgrade failed", slog.String("error", err.Error()))
		return
	}

	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	c := &Conn{
		ws:       ws,
		send:     make(chan []byte, h.settings.BufferSize),
		ctx:      ctx,
		cancel:   cancel,
		settings: h.settings,
		log:      h.log,
	}

	h.receiver.Attach(c)
	h.log.Info("surface: editor connected", slog.String("remote", r.RemoteAddr))
	defer func() {
		h.receiver.Detach(c)
		h.log.Info("surface: editor disconnected", slog.String("remote", r.RemoteAddr))
	}()

	go c.writeLoop()
	c.readLoop(h.receiver)
}

// Conn is one live editor connection.
type Conn struct {
	ws       *websocket.Conn
	send     chan []byte
	ctx      context.Context
	cancel   context.CancelFunc
	settings Settings
	log      *slog.Logger
}

// Post queues a message for the editor.
func (c *Conn) Post(ctx context.Context, data []byte) error {
	select {
	case c.send <- data:
		return nil
	case <-c.ctx.Done():
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close ends the connection.
func (c *Conn) Close() {
	c.cancel()
}

func (c *Conn) writeLoop() {
	defer c.cancel()
	defer c.ws.Close()

	ping := time.NewTicker(c.settings.PingInterval)
	defer ping.Stop()

	for {
		select {
		case <-c.ctx.Done():
			c.ws.SetWriteDeadline(time.Now().Add(c.settings.WriteTimeout))
			_ = c.ws.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case msg := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(c.settings.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.log.Info("surface: write failed", slog.String("error", err.Error()))
				return
			}
		case <-ping.C:
			c.ws.SetWriteDeadline(time.Now().Add(c.settings.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Conn) readLoop(receiver Receiver) {
	defer c.cancel()

	c.ws.SetReadDeadline(time.Now().Add(c.settings.ReadTimeout))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.settings.ReadTimeout))
	})

	for {
		messageType, data, err := c.ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Debug("surface: read ended", slog.String("error", err.Error()))
			}
			return
		}
		c.ws.SetReadDeadline(time.Now().Add(c.settings.ReadTimeout))

		if messageType != websocket.TextMessage {
			continue
		}
		receiver.Receive(c.ctx, data)
	}
}
