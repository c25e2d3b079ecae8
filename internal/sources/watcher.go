package sources

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/Anansitrading/kijko/internal/logging"
)

// Watcher marks a selection stale whenever the watched tree changes on
// disk, so the UI can prompt for a rescan.
type Watcher struct {
	fsw       *fsnotify.Watcher
	selection *Selection
	logger    *logging.Logger
	done      chan struct{}
}

// Watch starts watching root and all of its subdirectories.
func Watch(root string, selection *Selection, logger *logging.Logger) (*Watcher, error) {
	if logger == nil {
		logger = logging.NewNop()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}

	w := &Watcher{
		fsw:       fsw,
		selection: selection,
		logger:    logger,
		done:      make(chan struct{}),
	}

	if err := w.addRecursive(root); err != nil {
		fsw.Close()
		return nil, err
	}

	go w.loop()
	return w, nil
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return nil
		}
		if _, skip := skipDirs[info.Name()]; skip && path != root {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("watching %s: %w", path, err)
		}
		return nil
	})
}

func (w *Watcher) loop() {
	ctx := context.Background()
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.logger.Debug(ctx, "filesystem change", zap.String("path", event.Name), zap.String("op", event.Op.String()))
			w.selection.MarkStale()

			// New directories need their own watch.
			if event.Op.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if _, skip := skipDirs[filepath.Base(event.Name)]; !skip {
						_ = w.fsw.Add(event.Name)
					}
				}
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn(ctx, "watcher error", zap.Error(err))
		case <-w.done:
			return
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fsw.Close()
}
