// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package scanner

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/wseabra/marco-polo/services/cartograph/ast"
)

// DefaultDebounce is how long the watcher waits after the last filesystem
// event before firing a rescan. Editors write files in bursts.
const DefaultDebounce = 500 * time.Millisecond

// Watcher observes a project tree and invokes a callback after source
// files change.
//
// Description:
//
//	fsnotify does not watch recursively, so every non-skipped directory
//	under the root is registered individually; directories created while
//	watching are added as they appear. Events for unsupported file types
//	are ignored, and bursts of events collapse into one callback per
//	debounce window.
//
// Thread Safety: a Watcher runs one goroutine inside Watch; do not call
// Watch concurrently on the same instance.
type Watcher struct {
	scanner  *Scanner
	logger   *slog.Logger
	debounce time.Duration
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounce sets the event debounce window.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithWatcherLogger sets the logger. Nil uses slog.Default().
func WithWatcherLogger(logger *slog.Logger) WatcherOption {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// NewWatcher creates a Watcher that rescans with the given Scanner.
func NewWatcher(scanner *Scanner, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		scanner:  scanner,
		logger:   slog.Default(),
		debounce: DefaultDebounce,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Watch blocks, invoking onChange with a fresh ScanResult after each
// debounced change burst, until the context is canceled.
//
// Inputs:
//
//	ctx - Cancels the watch loop.
//	root - The project root to observe.
//	onChange - Called with each rescan result. Scan failures are logged
//	           and skipped; the loop keeps running.
//
// Outputs:
//
//	error - The context error on cancellation, or a watcher setup error.
func (w *Watcher) Watch(ctx context.Context, root string, onChange func(*ScanResult)) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer fsw.Close()

	if err := w.addDirs(fsw, root); err != nil {
		return err
	}

	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-fsw.Events:
			if !ok {
				return fmt.Errorf("watcher event channel closed")
			}
			if !w.relevant(event) {
				continue
			}
			// New directories need their own watch.
			if event.Op.Has(fsnotify.Create) {
				if err := w.addDirs(fsw, event.Name); err != nil {
					w.logger.Warn("watching new path", slog.String("path", event.Name), slog.Any("error", err))
				}
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return fmt.Errorf("watcher error channel closed")
			}
			w.logger.Warn("watch error", slog.Any("error", err))

		case <-timerC:
			timer = nil
			timerC = nil
			result, err := w.scanner.Scan(ctx, root)
			if err != nil {
				w.logger.Error("rescan failed", slog.String("root", root), slog.Any("error", err))
				continue
			}
			onChange(result)
		}
	}
}

// relevant reports whether an event should trigger a rescan: a change to
// a supported source file, or a directory-shaped create or remove.
func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Op.Has(fsnotify.Chmod) {
		return false
	}
	if _, ok := ast.ParserFor(event.Name); ok {
		return true
	}
	// Creations and removals of extensionless paths may be directories.
	return filepath.Ext(event.Name) == "" &&
		(event.Op.Has(fsnotify.Create) || event.Op.Has(fsnotify.Remove) || event.Op.Has(fsnotify.Rename))
}

// addDirs registers path and every non-skipped directory below it.
// Non-directory paths are ignored.
func (w *Watcher) addDirs(fsw *fsnotify.Watcher, path string) error {
	return filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			// The path may have vanished between the event and the walk.
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if p != path && w.scanner.heuristics.SkipDirectory(d.Name()) {
			return filepath.SkipDir
		}
		if err := fsw.Add(p); err != nil {
			w.logger.Warn("adding watch", slog.String("path", p), slog.Any("error", err))
		}
		return nil
	})
}
