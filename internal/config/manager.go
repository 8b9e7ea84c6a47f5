package config

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/gettogether/peersync/internal/bus"
)

// KindUpdated is published on the bus after a successful reload.
const KindUpdated = "config.updated"

// Manager holds the current configuration snapshot and reloads it when the
// file changes on disk. Readers always see a complete config; a reload that
// fails to parse keeps the previous snapshot.
type Manager struct {
	path   string
	bus    *bus.Bus
	logger *zap.Logger
	cur    atomic.Pointer[Config]
	cancel context.CancelFunc
}

// NewManager loads the config at path and returns a manager serving it.
func NewManager(path string, b *bus.Bus, logger *zap.Logger) (*Manager, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	m := &Manager{path: path, bus: b, logger: logger}
	m.cur.Store(cfg)
	return m, nil
}

// Snapshot returns the current configuration. Callers must not mutate it.
func (m *Manager) Snapshot() *Config {
	return m.cur.Load()
}

// Watch starts reloading the config on file changes until ctx is cancelled.
func (m *Manager) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	// Watch the directory: editors replace the file, which drops a watch
	// on the file itself.
	if err := w.Add(filepath.Dir(m.path)); err != nil {
		_ = w.Close()
		return err
	}

	ctx, m.cancel = context.WithCancel(ctx)
	go func() {
		defer func() { _ = w.Close() }()
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Name != m.path {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				m.reload()
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				m.logger.Warn("config watcher error", zap.Error(err))
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

// Stop cancels the watcher.
func (m *Manager) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
}

func (m *Manager) reload() {
	cfg, err := Load(m.path)
	if err != nil {
		m.logger.Warn("config reload failed, keeping previous", zap.Error(err))
		return
	}
	m.cur.Store(cfg)
	m.logger.Info("config reloaded", zap.Bool("notifications", cfg.Notifications.Enabled))
	if m.bus != nil {
		m.bus.Publish(bus.Event{Kind: KindUpdated, Timestamp: time.Now()})
	}
}
