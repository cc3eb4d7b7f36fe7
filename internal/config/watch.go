package config

import (
	"errors"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"dev.mingus.money/internal/cache"
)

// Watcher reloads tier policies when the policy file changes on disk
type Watcher struct {
	cfg      *Config
	logger   *zap.Logger
	onReload func(*cache.Registry)
	watcher  *fsnotify.Watcher
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewWatcher watches the configured policy file. The callback receives each
// successfully rebuilt registry; a file that fails to parse is logged and
// the previous policies stay in effect.
func NewWatcher(cfg *Config, logger *zap.Logger, onReload func(*cache.Registry)) (*Watcher, error) {
	if cfg.Cache.PolicyFile == "" {
		return nil, errors.New("config: no policy file configured")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	// Watch the directory. Editors and atomic writers replace the file,
	// which silently drops a watch set on the file itself.
	if err := watcher.Add(filepath.Dir(cfg.Cache.PolicyFile)); err != nil {
		watcher.Close()
		return nil, err
	}

	w := &Watcher{
		cfg:      cfg,
		logger:   logger,
		onReload: onReload,
		watcher:  watcher,
		stopChan: make(chan struct{}),
	}

	return w, nil
}

func (w *Watcher) Start() {
	go w.watchLoop()
	w.logger.Info("started policy file watcher", zap.String("file", w.cfg.Cache.PolicyFile))
}

func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopChan)
		w.watcher.Close()
	})
}

func (w *Watcher) watchLoop() {
	target := filepath.Clean(w.cfg.Cache.PolicyFile)
	var pending *time.Timer

	for {
		select {
		case <-w.stopChan:
			if pending != nil {
				pending.Stop()
			}
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}

			// Debounce bursts from editors that write in several steps
			if pending != nil {
				pending.Stop()
			}
			pending = time.AfterFunc(500*time.Millisecond, w.reload)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("policy watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) reload() {
	registry, err := w.cfg.Registry()
	if err != nil {
		w.logger.Error("policy reload failed",
			zap.String("file", w.cfg.Cache.PolicyFile),
			zap.Error(err))
		return
	}

	w.logger.Info("tier policies reloaded", zap.String("file", w.cfg.Cache.PolicyFile))
	if w.onReload != nil {
		w.onReload(registry)
	}
}
