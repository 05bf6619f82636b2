package library

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch monitors the library directory and keeps the index up to date,
// publishing an Event for every note file that changes. It blocks until
// the context is cancelled.
func (l *Library) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(l.root); err != nil {
		return fmt.Errorf("adding library to watcher: %w", err)
	}

	l.logger.Info("watching library", slog.String("root", l.root))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("fsnotify events channel closed")
			}

			l.handleEvent(event)

		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("fsnotify errors channel closed")
			}
			// Non-fatal; the index misses updates for the affected paths.
			l.logger.Warn("watcher error", slog.String("error", err.Error()))
		}
	}
}

// handleEvent processes a single fsnotify event, updating the index.
// Writes that leave the file unchanged (for example the rename that
// completes a Save) publish nothing.
func (l *Library) handleEvent(event fsnotify.Event) {
	if filepath.Dir(event.Name) != l.root {
		return
	}

	base := filepath.Base(event.Name)
	name, ok := l.index.nameOf(base)
	if !ok {
		return
	}

	before := l.index.Get(name)
	l.index.updateFile(name, base)
	after := l.index.Get(name)

	switch {
	case after == nil && before != nil:
		l.logger.Debug("note file removed", slog.String("name", name))
		l.notify(OpRemoved, name)
	case after != nil && (before == nil || before.Hash != after.Hash):
		l.logger.Debug("note file changed", slog.String("name", name), slog.String("op", event.Op.String()))
		l.notify(OpUpdated, name)
	}
}
