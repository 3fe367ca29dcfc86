package poe

import (
	"context"

	"github.com/fsnotify/fsnotify"
	"github.com/poe-platform/fastapi-poe/pkg/safego"
	"go.uber.org/zap"
)

// ManifestWatcher watches a bot manifest file for changes and invokes
// onChange with the names of bots whose settings changed, without
// restarting the process or dropping in-flight streams on unaffected bots
// (C9 expansion). Grounded in the teacher's config file watch pattern
// (internal/infrastructure/config, reload-on-write).
type ManifestWatcher struct {
	Path    string
	Logger  *zap.Logger
	watcher *fsnotify.Watcher
}

// NewManifestWatcher creates a ManifestWatcher for path.
func NewManifestWatcher(path string, logger *zap.Logger) (*ManifestWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(path); err != nil {
		w.Close()
		return nil, err
	}
	return &ManifestWatcher{Path: path, Logger: logger, watcher: w}, nil
}

// Watch blocks, re-loading the manifest on every write event and calling
// onChange with the changed bot names, until ctx is canceled. It should be
// launched via safego.Go by the caller (cmd/poeserver does this) so a panic
// in onChange can't take down the host process.
func (m *ManifestWatcher) Watch(ctx context.Context, onChange func(changed []string, manifest BotManifest)) {
	prev, err := LoadManifest(m.Path)
	if err != nil {
		m.Logger.Error("initial manifest load failed", zap.Error(err))
	}

	for {
		select {
		case <-ctx.Done():
			m.watcher.Close()
			return
		case ev, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			next, err := LoadManifest(m.Path)
			if err != nil {
				m.Logger.Warn("manifest reload failed, keeping previous bots", zap.Error(err))
				continue
			}
			changed := prev.Diff(next)
			if len(changed) == 0 {
				continue
			}
			m.Logger.Info("manifest changed", zap.Strings("bots", changed))
			safego.Go(m.Logger, "manifest-onchange", func() {
				onChange(changed, next)
			})
			prev = next
		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			m.Logger.Warn("manifest watcher error", zap.Error(err))
		}
	}
}
