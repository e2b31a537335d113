// Package monitor reports file system changes below the document scopes
// using fsnotify.
package monitor

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/spotter/internal/engine"
)

// FS is an engine.Monitor backed by fsnotify. Watches are recursive: new
// directories are watched as they appear and their existing content is
// reported as created. A new directory rejected by skipDir is reported but
// neither watched nor walked.
type FS struct {
	logger *slog.Logger
}

// New creates an FS monitor.
func New(logger *slog.Logger) *FS {
	return &FS{logger: logger}
}

var _ engine.Monitor = (*FS)(nil)

// Watch blocks until ctx is canceled. Missing roots are skipped.
func (m *FS) Watch(ctx context.Context, roots []string, skipDir func(string) bool, emit func(engine.Event)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if skipDir == nil {
		skipDir = func(string) bool { return false }
	}

	for _, root := range roots {
		if err := addDirsRecursive(w, filepath.Clean(root), skipDir, nil); err != nil {
			m.logger.Warn("monitor: skipping root", slog.String("root", root), slog.String("error", err.Error()))
			continue
		}
		m.logger.Info("monitor: started", slog.String("root", root))
	}

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("monitor: stopped")
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			m.handle(w, ev, skipDir, emit)

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			m.logger.Error("monitor: error", slog.String("error", watchErr.Error()))
		}
	}
}

func (m *FS) handle(w *fsnotify.Watcher, ev fsnotify.Event, skipDir func(string) bool, emit func(engine.Event)) {
	path := ev.Name
	switch {
	case ev.Op&fsnotify.Create != 0:
		info, err := os.Lstat(path)
		if err == nil && info.IsDir() {
			if skipDir(path) {
				emit(engine.Event{Op: engine.OpCreated, Path: path})
				return
			}
			// Entries created before the watch was added would be missed
			// otherwise, so the new tree is reported as a whole.
			err := addDirsRecursive(w, path, skipDir, func(p string) {
				emit(engine.Event{Op: engine.OpCreated, Path: p})
			})
			if err != nil {
				m.logger.Warn("monitor: add new dir failed", slog.String("path", path), slog.String("error", err.Error()))
			}
			return
		}
		emit(engine.Event{Op: engine.OpCreated, Path: path})

	case ev.Op&fsnotify.Write != 0:
		emit(engine.Event{Op: engine.OpModified, Path: path})

	case ev.Op&fsnotify.Remove != 0:
		emit(engine.Event{Op: engine.OpDeleted, Path: path})

	case ev.Op&fsnotify.Rename != 0:
		// fsnotify reports the old name only; the new name arrives as a
		// separate create when it stays inside a watched directory.
		emit(engine.Event{Op: engine.OpRenamed, Path: path})
	}
}

// addDirsRecursive watches root and every directory below it that skipDir
// accepts. When found is set it is called for every entry below root,
// root included.
func addDirsRecursive(w *fsnotify.Watcher, root string, skipDir func(string) bool, found func(string)) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if path != root && skipDir(path) {
				return filepath.SkipDir
			}
			if err := w.Add(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return err
			}
		}
		if found != nil {
			found(path)
		}
		return nil
	})
}
