// Package changefeed watches the note database for writes and reports the
// notes edited since the last pass.
package changefeed

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/quill/internal/models"
)

// DefaultSettle is how long the feed waits after the last write before
// querying the database.
const DefaultSettle = 200 * time.Millisecond

// Source lists notes edited after a point in time, oldest first.
type Source interface {
	ChangedSince(ctx context.Context, t time.Time) ([]models.Note, error)
}

// Callback is called for every note edited since the previous pass.
type Callback func(ctx context.Context, note *models.Note)

// Watch starts an fsnotify watcher on the directory holding dbPath and
// processes write events until ctx is cancelled. Writes to the database file
// and its -wal/-journal siblings are debounced by settle, then every note
// edited after the cursor is passed to cb. The cursor starts at since.
func Watch(ctx context.Context, src Source, dbPath string, since time.Time, settle time.Duration, logger *slog.Logger, cb Callback) error {
	if settle <= 0 {
		settle = DefaultSettle
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	dir := filepath.Dir(dbPath)
	if err := w.Add(dir); err != nil {
		return err
	}
	base := filepath.Base(dbPath)
	logger.Info("changefeed: started", slog.String("db", dbPath))

	cursor := since
	var settleTimer *time.Timer
	var settleCh <-chan time.Time

	schedule := func() {
		if settleTimer == nil {
			settleTimer = time.NewTimer(settle)
			settleCh = settleTimer.C
		} else {
			settleTimer.Reset(settle)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if settleTimer != nil {
				settleTimer.Stop()
			}
			logger.Info("changefeed: stopped")
			return nil

		case <-settleCh:
			cursor = drain(ctx, src, cursor, logger, cb)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 || !isDBFile(filepath.Base(ev.Name), base) {
				continue
			}
			schedule()

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("changefeed: error", slog.String("error", watchErr.Error()))
		}
	}
}

func isDBFile(name, base string) bool {
	if name == base {
		return true
	}
	suffix, ok := strings.CutPrefix(name, base)
	return ok && (suffix == "-wal" || suffix == "-journal")
}

// drain reports every note edited after cursor and returns the new cursor.
func drain(ctx context.Context, src Source, cursor time.Time, logger *slog.Logger, cb Callback) time.Time {
	notes, err := src.ChangedSince(ctx, cursor)
	if err != nil {
		logger.Warn("changefeed: query failed", slog.String("error", err.Error()))
		return cursor
	}
	for i := range notes {
		n := &notes[i]
		if n.EditedAt.After(cursor) {
			cursor = n.EditedAt
		}
		logger.Debug("changefeed: note changed", slog.String("note_id", n.ID))
		cb(ctx, n)
	}
	return cursor
}
