package config

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// WatcherConfig tunes the debounce window between a filesystem event
// and the reload it triggers, so a save-as editor's several rapid
// write/rename/create events collapse into exactly one reload.
type WatcherConfig struct {
	DebounceInterval time.Duration
}

func (c *WatcherConfig) applyDefaults() {
	if c.DebounceInterval <= 0 {
		c.DebounceInterval = 500 * time.Millisecond
	}
}

// Watcher reloads a Manager's store whenever the backing file changes
// on disk. It watches the file's containing directory rather than the
// file itself, since editors commonly replace a file by rename rather
// than writing it in place, which would otherwise drop the fsnotify
// watch.
type Watcher struct {
	path    string
	cfg     WatcherConfig
	manager *Manager
	logger  *logrus.Logger

	watcher *fsnotify.Watcher
	wg      sync.WaitGroup
	cancel  context.CancelFunc
}

func NewWatcher(path string, manager *Manager, cfg WatcherConfig, logger *logrus.Logger) (*Watcher, error) {
	cfg.applyDefaults()
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(path)
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, err
	}
	return &Watcher{path: path, cfg: cfg, manager: manager, logger: logger, watcher: fw}, nil
}

// Start begins watching in the background. Call Stop to end it.
func (w *Watcher) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.wg.Add(1)
	go w.run(ctx)
}

func (w *Watcher) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.watcher.Close()
	w.wg.Wait()
}

func (w *Watcher) run(ctx context.Context) {
	defer w.wg.Done()

	absPath, err := filepath.Abs(w.path)
	if err != nil {
		absPath = w.path
	}

	debounceTimer := time.NewTimer(0)
	if !debounceTimer.Stop() {
		<-debounceTimer.C
	}
	pending := false

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			target, _ := filepath.Abs(ev.Name)
			if target != absPath {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if !debounceTimer.Stop() {
				select {
				case <-debounceTimer.C:
				default:
				}
			}
			debounceTimer.Reset(w.cfg.DebounceInterval)
			pending = true

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.WithError(err).Warn("configuration file watcher error")

		case <-debounceTimer.C:
			if !pending {
				continue
			}
			pending = false
			w.reload()
		}
	}
}

func (w *Watcher) reload() {
	doc, err := Load(w.path)
	if err != nil {
		w.logger.WithError(err).WithField("path", w.path).Error("failed to reload configuration, keeping previous settings")
		return
	}
	store, err := doc.NewStore()
	if err != nil {
		w.logger.WithError(err).WithField("path", w.path).Error("configuration reload rejected, keeping previous settings")
		return
	}
	w.manager.Reload(store)
	w.logger.WithField("path", w.path).Info("configuration reloaded")
}
