package storage

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/gsdkit/telegram-mcp/logger"
	"github.com/gsdkit/telegram-mcp/paths"
)

// Watcher observes the project's sessions directory and reports which
// session's log changed. The long-poll read path uses it to wake up as soon
// as an external writer lands an answer, instead of waiting for the next
// poll tick. Consumers must treat it as best-effort: missed events only mean
// falling back to interval polling.
type Watcher struct {
	watcher *fsnotify.Watcher
	changes chan string
	log     *slog.Logger
	done    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
}

// NewWatcher starts watching the sessions directory of projectRoot,
// creating it if needed.
func NewWatcher(projectRoot string) (*Watcher, error) {
	dir := paths.SessionsDir(projectRoot)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create sessions dir: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}

	w := &Watcher{
		watcher: fsw,
		changes: make(chan string, 16),
		log:     logger.WithComponent("storage-watcher"),
		done:    make(chan struct{}),
	}
	w.wg.Add(1)
	go w.run()
	return w, nil
}

// Changes returns the channel of session ids whose log changed.
func (w *Watcher) Changes() <-chan string {
	return w.changes
}

func (w *Watcher) run() {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			// Only writes and renames of .jsonl files matter; the atomic
			// rewrite path surfaces as a rename of <file>.tmp onto the log.
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			name := filepath.Base(event.Name)
			if !strings.HasSuffix(name, ".jsonl") {
				continue
			}
			sessionID := strings.TrimSuffix(name, ".jsonl")
			select {
			case w.changes <- sessionID:
			default:
				// Consumer is behind; it will reload on its next tick anyway.
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("watcher error", "error", err)
		}
	}
}

// Close stops the watcher and releases its resources.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		err = w.watcher.Close()
		w.wg.Wait()
		close(w.changes)
	})
	return err
}
