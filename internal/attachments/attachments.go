// Package attachments downloads attachment blobs referenced by notes into the
// local blob store.
package attachments

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/starford/quill/internal/apperr"
	"github.com/starford/quill/internal/models"
	"github.com/starford/quill/internal/storage"
)

const (
	defaultLimit   = 4
	maxBlobBytes   = 50 << 20 // 50 MB
	defaultTimeout = 30 * time.Second
)

// Store is the subset of the note store used for attachment records.
type Store interface {
	Attachment(ctx context.Context, hash string) (*models.Attachment, error)
	AttachmentsOfNote(ctx context.Context, noteID, kind string) ([]models.Attachment, error)
	MarkDownloaded(ctx context.Context, hash string) error
}

// Fetcher retrieves the bytes of a remote attachment.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// HTTPFetcher fetches attachments over HTTP.
type HTTPFetcher struct {
	Client *http.Client
}

// Fetch implements Fetcher.
func (f HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	client := f.Client
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxBlobBytes))
}

// Option configures a Manager.
type Option func(*Manager)

// WithFetcher replaces the HTTP fetcher.
func WithFetcher(f Fetcher) Option {
	return func(m *Manager) { m.fetch = f }
}

// WithLimit bounds the number of concurrent downloads per note.
func WithLimit(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.limit = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.log = l }
}

// Manager tracks and runs attachment downloads.
type Manager struct {
	store Store
	blobs storage.Provider
	fetch Fetcher
	limit int
	log   *slog.Logger

	mu       sync.Mutex
	runs     uint64
	inflight map[string]run
}

type run struct {
	id     uint64
	cancel context.CancelFunc
}

// New creates a Manager writing blobs to blobs.
func New(store Store, blobs storage.Provider, opts ...Option) *Manager {
	m := &Manager{
		store:    store,
		blobs:    blobs,
		fetch:    HTTPFetcher{},
		limit:    defaultLimit,
		log:      slog.Default(),
		inflight: make(map[string]run),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// OfNote lists the attachments of kind referenced by a note.
func (m *Manager) OfNote(ctx context.Context, noteID, kind string) ([]models.Attachment, error) {
	return m.store.AttachmentsOfNote(ctx, noteID, kind)
}

// Blob returns the stored bytes of a downloaded attachment.
func (m *Manager) Blob(ctx context.Context, hash string) (*models.Attachment, []byte, error) {
	a, err := m.store.Attachment(ctx, hash)
	if err != nil {
		return nil, nil, err
	}
	if !a.Downloaded || !m.blobs.Exists(hash) {
		return a, nil, apperr.ErrNotFound
	}
	data, err := m.blobs.Read(hash)
	if err != nil {
		return a, nil, err
	}
	return a, data, nil
}

// DownloadImages fetches every missing image of a note. done is called for
// each attachment that becomes available. A later call for the same note, or
// Cancel, aborts the previous run.
func (m *Manager) DownloadImages(ctx context.Context, noteID string, done func(models.Attachment)) error {
	atts, err := m.store.AttachmentsOfNote(ctx, noteID, models.KindImages)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	if prev, ok := m.inflight[noteID]; ok {
		prev.cancel()
	}
	m.runs++
	self := run{id: m.runs, cancel: cancel}
	m.inflight[noteID] = self
	m.mu.Unlock()
	defer func() {
		cancel()
		m.mu.Lock()
		// A newer run may have replaced this one.
		if cur, ok := m.inflight[noteID]; ok && cur.id == self.id {
			delete(m.inflight, noteID)
		}
		m.mu.Unlock()
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.limit)
	for _, a := range atts {
		if a.Downloaded {
			continue
		}
		g.Go(func() error {
			if err := m.download(gctx, a); err != nil {
				if errors.Is(err, context.Canceled) {
					return err
				}
				m.log.Warn("attachment download failed", slog.String("hash", a.Hash), slog.String("error", err.Error()))
				return nil
			}
			a.Downloaded = true
			if done != nil {
				done(a)
			}
			return nil
		})
	}
	return g.Wait()
}

// Download fetches a single attachment by hash.
func (m *Manager) Download(ctx context.Context, hash string) (*models.Attachment, error) {
	a, err := m.store.Attachment(ctx, hash)
	if err != nil {
		return nil, err
	}
	if a.Downloaded && m.blobs.Exists(hash) {
		return a, nil
	}
	if err := m.download(ctx, *a); err != nil {
		return nil, err
	}
	a.Downloaded = true
	return a, nil
}

// Cancel aborts in-flight downloads for a note.
func (m *Manager) Cancel(noteID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.inflight[noteID]; ok {
		r.cancel()
		delete(m.inflight, noteID)
	}
}

func (m *Manager) download(ctx context.Context, a models.Attachment) error {
	if a.URL == "" {
		return fmt.Errorf("attachment %s has no source url", a.Hash)
	}
	data, err := m.fetch.Fetch(ctx, a.URL)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := m.blobs.Write(a.Hash, data); err != nil {
		return fmt.Errorf("write blob: %w", err)
	}
	return m.store.MarkDownloaded(ctx, a.Hash)
}
