package watcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/MimeLyc/docbrief/pkg/log"
)

// EventHandler processes one newly dropped file.
type EventHandler func(ctx context.Context, path string) error

// Watcher monitors a drop directory and briefs new documents automatically.
type Watcher struct {
	dir      string
	supports func(path string) bool
	handler  EventHandler

	watcher     *fsnotify.Watcher
	semaphore   chan struct{}
	settleDelay time.Duration
	wg          sync.WaitGroup
}

// New watches dir for created files. supports filters by file type; handler
// runs for each accepted file with at most maxConcurrent in flight.
func New(dir string, supports func(string) bool, handler EventHandler, maxConcurrent int) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("add watch path: %w", err)
	}
	if maxConcurrent <= 0 {
		maxConcurrent = 2
	}
	return &Watcher{
		dir:         dir,
		supports:    supports,
		handler:     handler,
		watcher:     fw,
		semaphore:   make(chan struct{}, maxConcurrent),
		settleDelay: 500 * time.Millisecond,
	}, nil
}

// Start blocks until ctx is cancelled, dispatching each created file to the
// handler. In-flight handlers are drained before returning.
func (w *Watcher) Start(ctx context.Context) error {
	log.Info("watching %s for new documents", w.dir)

	for {
		select {
		case <-ctx.Done():
			w.wg.Wait()
			log.Info("document watcher stopped")
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if event.Op&fsnotify.Create != fsnotify.Create {
				continue
			}
			if !w.supports(event.Name) {
				log.Debug("ignoring unsupported file: %s", event.Name)
				continue
			}

			log.Info("new document detected: %s", event.Name)

			// Give the writer a moment to finish the file.
			time.Sleep(w.settleDelay)

			select {
			case w.semaphore <- struct{}{}:
				w.wg.Add(1)
				go func(path string) {
					defer w.wg.Done()
					defer func() { <-w.semaphore }()

					if err := w.handler(ctx, path); err != nil {
						log.Error("failed to brief %s: %v", path, err)
					}
				}(event.Name)
			case <-ctx.Done():
				return ctx.Err()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			log.Error("watcher error: %v", err)
		}
	}
}

// Stop closes the underlying filesystem watcher.
func (w *Watcher) Stop() error {
	return w.watcher.Close()
}
