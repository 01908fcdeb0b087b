// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package storage

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// PathWatcher delivers change notifications for a single file path. The file
// store depends on this interface rather than fsnotify directly so the
// debounce and reconcile trigger are testable without a real filesystem
// watcher.
type PathWatcher interface {
	// Watch begins delivering change notifications for path via onChange
	// until ctx is cancelled or Close is called. Only real changes after the
	// call are delivered; the file already existing is not an event.
	Watch(ctx context.Context, path string, onChange func()) error

	// Close stops the watcher and releases resources.
	Close() error
}

// NewFSWatcher creates a PathWatcher backed by fsnotify.
func NewFSWatcher(logger *slog.Logger) (PathWatcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &fsWatcher{
		watcher: fsw,
		logger:  logger,
		doneCh:  make(chan struct{}),
	}, nil
}

// fsWatcher watches the directory containing the target file so that
// atomic-replace saves (write temp, rename over) are still observed.
type fsWatcher struct {
	watcher *fsnotify.Watcher
	logger  *slog.Logger
	doneCh  chan struct{}

	once sync.Once
}

func (w *fsWatcher) Watch(ctx context.Context, path string, onChange func()) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path %s: %w", path, err)
	}

	if err := w.watcher.Add(filepath.Dir(absPath)); err != nil {
		return fmt.Errorf("failed to watch directory of %s: %w", absPath, err)
	}

	go w.eventLoop(ctx, absPath, onChange)
	w.logger.Debug("watching config file", "path", absPath)
	return nil
}

func (w *fsWatcher) eventLoop(ctx context.Context, absPath string, onChange func()) {
	defer close(w.doneCh)

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Name != absPath {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				onChange()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("file watcher error", "error", err)

		case <-ctx.Done():
			return
		}
	}
}

func (w *fsWatcher) Close() error {
	var err error
	w.once.Do(func() {
		err = w.watcher.Close()
	})
	return err
}

// debouncer coalesces bursts of change notifications into one trailing-edge
// trigger: the callback fires only after the window elapses with no further
// notification (an editor writing a file in several steps yields one
// reconcile pass).
type debouncer struct {
	mu     sync.Mutex
	window time.Duration
	fn     func()
	timer  *time.Timer
}

func newDebouncer(window time.Duration, fn func()) *debouncer {
	return &debouncer{window: window, fn: fn}
}

// Trigger resets the pending timer, or starts one if none is pending.
func (d *debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.fn)
}

// Stop cancels any pending trigger.
func (d *debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
