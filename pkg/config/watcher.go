package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/httpusers/pkg/users"
)

// Watcher reloads the config file when it changes and publishes the
// signup policy. Other settings need a restart.
type Watcher struct {
	path    string
	logger  *logrus.Logger
	watcher *fsnotify.Watcher
	policy  atomic.Pointer[users.Policy]

	mu       sync.Mutex
	onReload []func(*Config)
}

// NewWatcher watches the directory holding path so editors that replace
// the file are picked up too
func NewWatcher(path string, initial *Config, logger *logrus.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", path, err)
	}

	w := &Watcher{path: filepath.Clean(path), logger: logger, watcher: fw}
	p := initial.Policy()
	w.policy.Store(&p)
	return w, nil
}

// Policy returns the most recently loaded policy
func (w *Watcher) Policy() users.Policy {
	return *w.policy.Load()
}

// OnReload registers fn to run after every successful reload
func (w *Watcher) OnReload(fn func(*Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onReload = append(w.onReload, fn)
}

// Run processes file events until ctx is done
func (w *Watcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				w.reload()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.WithError(err).Warn("config watcher error")
		}
	}
}

// reload keeps the previous policy when the new file does not load
func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		w.logger.WithError(err).WithField("path", w.path).Warn("config reload failed, keeping previous policy")
		return
	}

	p := cfg.Policy()
	old := w.policy.Swap(&p)
	if *old != p {
		w.logger.WithFields(logrus.Fields{
			"require_activation":   p.RequireActivation,
			"require_confirmation": p.RequireConfirmation,
		}).Info("signup policy reloaded")
	}

	w.mu.Lock()
	fns := make([]func(*Config), len(w.onReload))
	copy(fns, w.onReload)
	w.mu.Unlock()
	for _, fn := range fns {
		fn(cfg)
	}
}

// Close stops watching
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
