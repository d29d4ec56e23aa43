// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/quill/internal/api"
	"github.com/starford/quill/internal/attachments"
	"github.com/starford/quill/internal/changefeed"
	"github.com/starford/quill/internal/editor"
	"github.com/starford/quill/internal/mcpserver"
	"github.com/starford/quill/internal/models"
	"github.com/starford/quill/internal/noteservice"
	"github.com/starford/quill/internal/parser"
	"github.com/starford/quill/internal/sse"
	"github.com/starford/quill/internal/storage"
	"github.com/starford/quill/internal/store"
	"github.com/starford/quill/internal/surface"
	"github.com/starford/quill/internal/vault"
)

const attachmentBase = "/api/attachments/"

// services is the object graph shared by the HTTP server and the MCP stdio mode.
type services struct {
	db          *store.DB
	blobs       *storage.FS
	vault       *vault.Vault
	attachments *attachments.Manager
	broker      *sse.Broker
	editor      *editor.Manager
	notes       *noteservice.Service
	mcp         *mcpserver.Server
}

func setup(opts []Option) (*application, *slog.Logger, error) {
	app := &application{logOutput: os.Stdout}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return nil, nil, fmt.Errorf("config is required")
	}

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(app.logOutput, &slog.HandlerOptions{
		Level: app.config.App.LogLevel,
	}))
	slog.SetDefault(logger)
	return app, logger, nil
}

func newServices(ctx context.Context, cfg *Config, logger *slog.Logger) (*services, error) {
	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("files_path", cfg.Files.Path),
		slog.String("auth_mode", cfg.Auth.Mode),
		slog.String("log_level", cfg.App.LogLevel.String()))

	blobs, err := storage.NewFS(cfg.Files.Path)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	db, err := store.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	v := vault.New(db)
	if cfg.Vault.Password != "" {
		if err := v.Unlock(ctx, cfg.Vault.Password); err != nil {
			db.Close()
			return nil, fmt.Errorf("unlock vault: %w", err)
		}
		logger.Info("Vault unlocked")
	}

	att := attachments.New(db, blobs, attachments.WithLogger(logger.With(slog.String("component", "attachments"))))
	broker := sse.NewBroker(cfg.Editor.RefreshThrottle)

	edOpts := []editor.Option{
		editor.WithLogger(logger.With(slog.String("component", "editor"))),
		editor.WithDebounce(cfg.Editor.Debounce),
		editor.WithAckTimeout(cfg.Editor.AckTimeout),
		editor.WithImageLoadDelay(cfg.Editor.ImageLoadDelay),
		editor.WithPlaceholderAsset(cfg.Editor.PlaceholderAsset),
		editor.WithAttachmentBase(attachmentBase),
		editor.WithPlaceholder(cfg.Editor.Placeholder),
		editor.WithTheme(cfg.Editor.Theme),
	}
	if cfg.Editor.Sanitize {
		edOpts = append(edOpts, editor.WithSanitizer(parser.Sanitize))
	}
	ed := editor.New(db, v, att, broker, edOpts...)

	notes := noteservice.NewService(db, v)
	return &services{
		db:          db,
		blobs:       blobs,
		vault:       v,
		attachments: att,
		broker:      broker,
		editor:      ed,
		notes:       notes,
		mcp:         mcpserver.New(notes, ed, blobs, db, attachmentBase),
	}, nil
}

// close flushes pending edits and releases resources.
func (s *services) close(ctx context.Context) {
	s.editor.Close(ctx)
	s.broker.Close()
	if err := s.db.Close(); err != nil {
		slog.Error("store close error", slog.String("error", err.Error()))
	}
}

func (s *services) router(cfg *Config, logger *slog.Logger) chi.Router {
	auth := api.AuthSettings{
		Mode:      cfg.Auth.Mode,
		Token:     cfg.Auth.Token,
		JWTSecret: cfg.Auth.JWTSecret,
	}

	apiRouter := api.NewRouter(api.Deps{
		Notes:          s.notes,
		Editor:         s.editor,
		Vault:          s.vault,
		Blobs:          s.attachments,
		Index:          s.db,
		Storage:        s.blobs,
		Events:         s.broker,
		AttachmentBase: attachmentBase,
		SSE:            s.broker,
	}, auth)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if s.editor.Bridge().Attached() && !s.editor.EnsureReady(r.Context()) {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"editor not responding"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	// Editor surface and MCP share the API auth.
	guarded := r.With(api.AuthMiddleware(auth))
	guarded.Handle("/editor/ws", surface.NewHandler(s.editor, surface.DefaultSettings(),
		logger.With(slog.String("component", "surface"))))
	guarded.Handle("/mcp", s.mcp.Handler())

	return r
}

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, logger, err := setup(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	svc, err := newServices(ctx, cfg, logger)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: svc.router(cfg, logger),
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	g, gCtx := errgroup.WithContext(runCtx)

	// Reconcile the open note with writes made outside the editor.
	g.Go(func() error {
		err := changefeed.Watch(gCtx, svc.db, svc.db.Path(), time.Now(), 0, logger,
			func(ctx context.Context, n *models.Note) {
				svc.editor.OnExternalUpdate(ctx, n)
				svc.broker.PublishNoteEvent(sse.EventNoteUpdated, n.ID)
			})
		if err != nil {
			logger.Warn("changefeed unavailable", slog.String("error", err.Error()))
		}
		return nil
	})

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		stop()

		return nil
	})

	err = g.Wait()
	closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	svc.close(closeCtx)

	if err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// RunMCP serves the MCP tools over stdin/stdout until the client disconnects.
// Logs must not go to stdout in this mode; pass WithLogOutput(os.Stderr).
func RunMCP(ctx context.Context, opts ...Option) error {
	app, logger, err := setup(opts)
	if err != nil {
		return err
	}

	svc, err := newServices(ctx, app.config, logger)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		svc.close(shutdownCtx)
	}()

	logger.Info("MCP server starting on stdio")
	return svc.mcp.ServeStdio()
}
