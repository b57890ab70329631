// Package indexer keeps the search database in sync with the notes on
// disk, both on demand and by watching the filesystem.
package indexer

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/tessera-kb/tessera/internal/database"
	"github.com/tessera-kb/tessera/internal/events"
	"github.com/tessera-kb/tessera/internal/models"
	"github.com/tessera-kb/tessera/internal/storage"
)

// Config controls indexer behavior.
type Config struct {
	// Debounce is how long a path must be quiet after its last filesystem
	// event before it is re-indexed. Rapid successive writes to the same
	// file coalesce into a single index pass.
	Debounce time.Duration
	// SweepInterval is how often the pending-event map is scanned for
	// paths whose debounce window has elapsed.
	SweepInterval time.Duration
	// Filter decides which files are indexed at all.
	Filter FilterConfig
}

// DefaultConfig returns the indexer defaults.
func DefaultConfig() Config {
	return Config{
		Debounce:      250 * time.Millisecond,
		SweepInterval: 100 * time.Millisecond,
		Filter:        DefaultFilterConfig(),
	}
}

// Indexer parses notes from storage and writes them into the database,
// publishing an event for every index mutation. Unchanged files are
// skipped via a checksum cache.
type Indexer struct {
	cfg    Config
	store  *storage.Storage
	db     database.Store
	bus    *events.Bus
	cache  *checksumCache
	logger *slog.Logger
}

// New creates an indexer. bus may be nil, in which case no events are
// published.
func New(cfg Config, store *storage.Storage, db database.Store, bus *events.Bus, logger *slog.Logger) *Indexer {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultConfig().Debounce
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultConfig().SweepInterval
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Indexer{
		cfg:    cfg,
		store:  store,
		db:     db,
		bus:    bus,
		cache:  newChecksumCache(),
		logger: logger,
	}
}

// WarmCache loads the checksum cache from the database, so the first
// pass after a restart skips files already indexed.
func (ix *Indexer) WarmCache(ctx context.Context) error {
	checksums, err := ix.db.AllChecksums(ctx)
	if err != nil {
		return err
	}
	ix.cache.Replace(checksums)
	return nil
}

func (ix *Indexer) publish(ev models.IndexEvent) {
	if ix.bus != nil {
		ix.bus.Publish(ev)
	}
}

// IndexFile parses and indexes a single note, identified by its
// mosaic-relative path. If the file's checksum matches the last indexed
// version the call is a no-op.
func (ix *Indexer) IndexFile(ctx context.Context, relPath string) error {
	note, err := ix.store.LoadNote(relPath)
	if err != nil {
		ix.publish(models.IndexEvent{Type: models.EventIndexError, Path: relPath, Reason: err.Error()})
		return err
	}

	if ix.cache.Matches(relPath, note.Checksum) {
		ix.logger.Debug("indexer: unchanged, skipping", slog.String("path", relPath))
		return nil
	}

	if err := ix.db.UpsertNote(ctx, note); err != nil {
		ix.publish(models.IndexEvent{Type: models.EventIndexError, Path: relPath, Reason: err.Error()})
		return err
	}

	links := ix.store.ExtractLinks(note.Body)
	if err := ix.db.UpdateNoteLinks(ctx, note.ID, links); err != nil {
		ix.publish(models.IndexEvent{Type: models.EventIndexError, Path: relPath, Reason: err.Error()})
		return err
	}

	ix.cache.Put(relPath, note.Checksum)
	ix.publish(models.IndexEvent{Type: models.EventNoteIndexed, Path: relPath, NoteID: note.ID})
	ix.logger.Debug("indexer: indexed", slog.String("path", relPath), slog.String("note_id", note.ID))
	return nil
}

// RemoveFromIndex deletes the note for relPath from the database.
// Removing a path that was never indexed is not an error.
func (ix *Indexer) RemoveFromIndex(ctx context.Context, relPath string) error {
	noteID := storage.NoteIDForPath(relPath)
	if err := ix.db.DeleteNote(ctx, noteID); err != nil {
		ix.publish(models.IndexEvent{Type: models.EventIndexError, Path: relPath, Reason: err.Error()})
		return err
	}
	ix.cache.Delete(relPath)
	ix.publish(models.IndexEvent{Type: models.EventNoteRemoved, Path: relPath, NoteID: noteID})
	ix.logger.Debug("indexer: removed", slog.String("path", relPath))
	return nil
}

// RebuildIndex clears the checksum cache, walks every note on disk,
// re-indexes each one and rebuilds the full-text index structures. It
// returns the number of notes indexed. Per-file failures are reported
// as events and do not abort the walk.
func (ix *Indexer) RebuildIndex(ctx context.Context) (int, error) {
	ix.publish(models.IndexEvent{Type: models.EventRebuildStarted})
	ix.cache.Clear()

	count := 0
	base := ix.store.Root()
	err := filepath.WalkDir(ix.store.NotesDir(), func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(base, path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		info, infoErr := d.Info()
		if infoErr != nil || !ix.cfg.Filter.ShouldIndexFile(rel, info) {
			return nil
		}
		if idxErr := ix.IndexFile(ctx, rel); idxErr != nil {
			ix.logger.Warn("rebuild: index failed", slog.String("path", rel), slog.String("error", idxErr.Error()))
			return nil
		}
		count++
		return nil
	})
	if err != nil {
		ix.publish(models.IndexEvent{Type: models.EventIndexError, Reason: err.Error()})
		return 0, err
	}

	if err := ix.db.RebuildIndex(ctx); err != nil {
		ix.publish(models.IndexEvent{Type: models.EventIndexError, Reason: err.Error()})
		return 0, err
	}

	ix.publish(models.IndexEvent{Type: models.EventRebuildCompleted, Count: count})
	ix.logger.Info("rebuild: completed", slog.Int("count", count))
	return count, nil
}

// Watch starts an fsnotify watcher on the notes directory and processes
// file change events until ctx is cancelled. Write and create events are
// debounced per path: the file is indexed only after it has been quiet
// for the configured window, so editors that write in bursts trigger a
// single index pass.
//
// New directories created at runtime are added to the watch list. Rename
// events remove the old path immediately and schedule a reconciliation
// pass to pick up the file under its new name.
func (ix *Indexer) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	watchRoot := ix.store.NotesDir()
	if err := addDirsRecursive(w, watchRoot); err != nil {
		return err
	}

	ix.logger.Info("watcher: started", slog.String("root", watchRoot))

	// pending maps mosaic-relative path to the time of its last event.
	pending := make(map[string]time.Time)

	sweep := time.NewTicker(ix.cfg.SweepInterval)
	defer sweep.Stop()

	var reconcileTimer *time.Timer
	var reconcileCh <-chan time.Time
	scheduleReconcile := func() {
		if reconcileTimer == nil {
			reconcileTimer = time.NewTimer(2 * ix.cfg.Debounce)
			reconcileCh = reconcileTimer.C
		} else {
			reconcileTimer.Reset(2 * ix.cfg.Debounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reconcileTimer != nil {
				reconcileTimer.Stop()
			}
			ix.logger.Info("watcher: stopped")
			return nil

		case <-sweep.C:
			now := time.Now()
			for rel, last := range pending {
				if now.Sub(last) < ix.cfg.Debounce {
					continue
				}
				delete(pending, rel)
				if err := ix.IndexFile(ctx, rel); err != nil {
					ix.logger.Warn("watcher: index failed", slog.String("path", rel), slog.String("error", err.Error()))
				}
			}

		case <-reconcileCh:
			ix.reconcile(ctx)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			ix.handleEvent(ctx, w, ev, pending, scheduleReconcile)

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			ix.logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

func (ix *Indexer) handleEvent(ctx context.Context, w *fsnotify.Watcher, ev fsnotify.Event, pending map[string]time.Time, scheduleReconcile func()) {
	absPath := ev.Name

	// New directories are added to the watch list, and any notes already
	// inside them are queued.
	if ev.Op&fsnotify.Create != 0 {
		if info, statErr := os.Stat(absPath); statErr == nil && info.IsDir() {
			if addErr := addDirsRecursive(w, absPath); addErr != nil {
				ix.logger.Warn("watcher: add new dir failed",
					slog.String("path", absPath),
					slog.String("error", addErr.Error()))
			}
			ix.queueDir(absPath, pending)
			return
		}
	}

	rel, relErr := filepath.Rel(ix.store.Root(), absPath)
	if relErr != nil {
		return
	}
	rel = filepath.ToSlash(rel)

	switch {
	case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
		info, statErr := os.Stat(absPath)
		if statErr != nil || !ix.cfg.Filter.ShouldIndexFile(rel, info) {
			return
		}
		pending[rel] = time.Now()

	case ev.Op&fsnotify.Remove != 0:
		if !ix.cfg.Filter.hasNoteExtension(rel) {
			return
		}
		delete(pending, rel)
		if err := ix.RemoveFromIndex(ctx, rel); err != nil {
			ix.logger.Warn("watcher: remove failed", slog.String("path", rel), slog.String("error", err.Error()))
		}

	case ev.Op&fsnotify.Rename != 0:
		// fsnotify fires Rename on the OLD path only. The new path shows
		// up as a separate Create if it lands inside a watched dir; the
		// reconciliation pass catches moves that fsnotify missed.
		if !ix.cfg.Filter.hasNoteExtension(rel) {
			return
		}
		delete(pending, rel)
		if err := ix.RemoveFromIndex(ctx, rel); err != nil {
			ix.logger.Warn("watcher: rename remove failed", slog.String("path", rel), slog.String("error", err.Error()))
		}
		scheduleReconcile()
	}
}

// queueDir queues every eligible note under dirPath for indexing.
func (ix *Indexer) queueDir(dirPath string, pending map[string]time.Time) {
	_ = filepath.WalkDir(dirPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(ix.store.Root(), path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		info, infoErr := d.Info()
		if infoErr != nil || !ix.cfg.Filter.ShouldIndexFile(rel, info) {
			return nil
		}
		pending[rel] = time.Now()
		return nil
	})
}

// Sync brings the database up to date with the files on disk without a
// full rebuild: stale entries are removed and changed files re-indexed,
// using checksums to skip the rest. Typically run once at startup after
// WarmCache.
func (ix *Indexer) Sync(ctx context.Context) {
	ix.reconcile(ctx)
}

// reconcile compares the database against the files on disk: stale
// entries are removed and changed or missing files are re-indexed.
func (ix *Indexer) reconcile(ctx context.Context) {
	checksums, err := ix.db.AllChecksums(ctx)
	if err != nil {
		ix.logger.Warn("reconcile: all checksums failed", slog.String("error", err.Error()))
		return
	}

	notes, err := ix.store.ListNotes()
	if err != nil {
		ix.logger.Warn("reconcile: list failed", slog.String("error", err.Error()))
		return
	}

	// Paths rejected by the filter are treated as absent, so stale rows
	// for newly excluded files are removed below.
	disk := make(map[string]string, len(notes))
	for _, n := range notes {
		abs := filepath.Join(ix.store.Root(), filepath.FromSlash(n.Path))
		info, statErr := os.Stat(abs)
		if statErr != nil || !ix.cfg.Filter.ShouldIndexFile(n.Path, info) {
			continue
		}
		disk[n.Path] = n.Checksum
	}

	for p := range checksums {
		if _, ok := disk[p]; !ok {
			if err := ix.RemoveFromIndex(ctx, p); err != nil {
				ix.logger.Warn("reconcile: remove failed", slog.String("path", p), slog.String("error", err.Error()))
			}
		}
	}

	for p, cs := range disk {
		if checksums[p] == cs {
			continue
		}
		if err := ix.IndexFile(ctx, p); err != nil {
			ix.logger.Warn("reconcile: index failed", slog.String("path", p), slog.String("error", err.Error()))
		}
	}
}

// addDirsRecursive adds root and all its subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}
