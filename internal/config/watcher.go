// watcher.go watches the config file for edits and re-applies the settings
// that are safe to change at runtime. Only logging.level is hot-reloadable;
// everything else (ports, database, redis) requires a restart, so changes to
// those keys are logged and otherwise ignored.
package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceInterval is how long the watcher lets the file settle after an
// event before re-reading it. Editors and os.WriteFile truncate then write,
// emitting several events per save; reading on the first one can parse an
// empty or half-written file.
const debounceInterval = 100 * time.Millisecond

// Watcher re-reads the config file on change and invokes the registered
// callback with the freshly loaded configuration.
type Watcher struct {
	path     string
	onChange func(*Config)
	fsw      *fsnotify.Watcher
	done     chan struct{}

	// last holds the raw bytes of the most recent successful reload, so
	// settle-and-reread never fires the callback for content it has already
	// delivered.
	last []byte
}

// NewWatcher starts watching configPath. onChange runs on every successful
// reload; a reload that fails validation keeps the previous configuration and
// logs the error.
func NewWatcher(configPath string, onChange func(*Config)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	// Watch the directory, not the file: editors and configmap mounts replace
	// the file atomically (rename), which drops a watch held on the file itself.
	if err := fsw.Add(filepath.Dir(configPath)); err != nil {
		fsw.Close()
		return nil, err
	}

	w := &Watcher{
		path:     configPath,
		onChange: onChange,
		fsw:      fsw,
		done:     make(chan struct{}),
	}
	if raw, err := os.ReadFile(configPath); err == nil {
		w.last = raw
	}
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	var settle <-chan time.Time
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			// Coalesce the event burst of one save into a single reload.
			settle = time.After(debounceInterval)
		case <-settle:
			settle = nil
			w.reload()
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			slog.Warn("config watcher error", "error", err)
		case <-w.done:
			return
		}
	}
}

// reload re-reads the settled file. Empty content means a writer is still
// mid-truncate; unchanged content means the burst already got delivered.
// Either way the previous configuration stays in force.
func (w *Watcher) reload() {
	raw, err := os.ReadFile(w.path)
	if err != nil {
		slog.Error("config reload failed, keeping previous configuration",
			"path", w.path, "error", err)
		return
	}
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(raw, w.last) {
		return
	}

	cfg, err := Load(w.path)
	if err != nil {
		slog.Error("config reload failed, keeping previous configuration",
			"path", w.path, "error", err)
		return
	}

	w.last = raw
	slog.Info("config reloaded", "path", w.path)
	w.onChange(cfg)
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fsw.Close()
}
