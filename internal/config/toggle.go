package config

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Toggle tracks memory.enabled from the config file while a page is open.
// Edits take effect on the next submission.
type Toggle struct {
	path     string
	override *bool
	log      *zap.Logger
	enabled  atomic.Bool

	watcher *fsnotify.Watcher
	stopCh  chan struct{}
	doneCh  chan struct{}
	once    sync.Once
}

// NewToggle starts from initial. When override is set it wins over the file.
func NewToggle(path string, initial bool, override *bool, log *zap.Logger) *Toggle {
	if log == nil {
		log = zap.NewNop()
	}
	t := &Toggle{path: path, override: override, log: log}
	t.enabled.Store(initial)
	if override != nil {
		t.enabled.Store(*override)
	}
	return t
}

// Enabled reports the current value. It matches controller.Options.Enabled.
func (t *Toggle) Enabled(context.Context) bool {
	return t.enabled.Load()
}

// Start watches the config file's directory; editors often replace the
// file instead of writing it in place.
func (t *Toggle) Start(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	dir := filepath.Dir(t.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		w.Close()
		return err
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return err
	}
	t.watcher = w
	t.stopCh = make(chan struct{})
	t.doneCh = make(chan struct{})
	go t.run(ctx)
	return nil
}

// Stop ends the watch and waits for the loop to exit.
func (t *Toggle) Stop() {
	if t.watcher == nil {
		return
	}
	t.once.Do(func() {
		close(t.stopCh)
		<-t.doneCh
		t.watcher.Close()
	})
}

func (t *Toggle) run(ctx context.Context) {
	defer close(t.doneCh)

	// Saves arrive as bursts of events.
	var debounce <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.stopCh:
			return
		case ev, ok := <-t.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(t.path) {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0 {
				debounce = time.After(100 * time.Millisecond)
			}
		case err, ok := <-t.watcher.Errors:
			if !ok {
				return
			}
			t.log.Warn("config watch error", zap.Error(err))
		case <-debounce:
			debounce = nil
			t.reload()
		}
	}
}

func (t *Toggle) reload() {
	if t.override != nil {
		return
	}
	cfg, err := Load(t.path)
	if err != nil {
		t.log.Warn("config reload failed, keeping memory setting", zap.Error(err))
		return
	}
	next := cfg.MemoryEnabled()
	if prev := t.enabled.Swap(next); prev != next {
		t.log.Info("memory toggled", zap.Bool("enabled", next))
	}
}
