package frpc

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Watcher monitors one configuration file for content changes. Filesystem
// notifications are noisy (editors touch files without changing them,
// atomic saves fire several events for one save), so a change is only
// reported when the SHA-256 of the file content actually differs.
type Watcher struct {
	dir      string
	filename string

	watcher   *fsnotify.Watcher
	changes   chan struct{}
	closeOnce sync.Once

	mu   sync.Mutex
	hash string
}

// NewWatcher creates a watcher for the given config file path. Start must
// be called before changes are delivered.
func NewWatcher(configPath string) *Watcher {
	return &Watcher{
		dir:      filepath.Dir(configPath),
		filename: filepath.Base(configPath),
		changes:  make(chan struct{}, 16),
	}
}

// Start subscribes to filesystem notifications for the config directory
// (non-recursive) and begins delivering debounce-free change events on
// Changes. A missing config file is fine: the initial hash is empty and
// the file's later creation is detected.
func (w *Watcher) Start() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create config file watcher: %w", err)
	}
	// Watch the directory, not the file: editors using atomic saves
	// replace the file and would silently drop a file-level watch.
	if err := watcher.Add(w.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}

	w.watcher = watcher
	w.mu.Lock()
	w.hash = fileHash(w.path())
	w.mu.Unlock()

	go w.loop()

	slog.Info("Watching config file for changes", "file", w.path())
	return nil
}

// Changes returns the single-consumer channel of change notifications,
// delivered in FIFO order.
func (w *Watcher) Changes() <-chan struct{} {
	return w.changes
}

// Close releases the watcher resources. Safe to call when Start was never
// called or the watcher is already closed.
func (w *Watcher) Close() {
	w.closeOnce.Do(func() {
		if w.watcher != nil {
			w.watcher.Close()
		}
	})
}

func (w *Watcher) path() string {
	return filepath.Join(w.dir, w.filename)
}

func (w *Watcher) loop() {
	defer close(w.changes)

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != w.filename {
				continue
			}
			// Write is the "modified" kind; Create covers the file
			// appearing after a missing start and atomic-save renames.
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			slog.Debug("Filesystem event on config file", "event", event.Op.String(), "file", event.Name)
			w.checkContent()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Debug("Config watcher error", "error", err)
		}
	}
}

// checkContent recomputes the content hash and emits a change only when
// it differs from the stored one. Read failures are a no-op so the watch
// loop survives transient I/O errors mid-save.
func (w *Watcher) checkContent() {
	newHash := fileHash(w.path())
	if newHash == "" {
		return
	}

	w.mu.Lock()
	changed := newHash != w.hash
	if changed {
		w.hash = newHash
	}
	w.mu.Unlock()

	if !changed {
		return
	}

	select {
	case w.changes <- struct{}{}:
	default:
		// Consumer is behind; the pending notification already covers
		// this change.
	}
}

// fileHash returns the hex SHA-256 of the file content, or the empty
// string when the file is missing or unreadable.
func fileHash(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
