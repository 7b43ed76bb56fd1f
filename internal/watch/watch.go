// Package watch debounces fsnotify events on a set of config files into
// cache-invalidation calls, so edits to a watched file (cmd/proxy watches
// the project's .mcp.json and the trust store) take effect without
// restarting the broker.
package watch

import (
	"context"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// debounce absorbs editors that write a file in several quick syscalls
// (truncate, then write, then close) as one logical change.
const debounce = 300 * time.Millisecond

// ConfigWatcher watches a set of config file paths and invokes onChange,
// debounced, whenever one is written or recreated.
type ConfigWatcher struct {
	logger   *zap.Logger
	watcher  *fsnotify.Watcher
	onChange func()
}

// New builds a ConfigWatcher over paths. Missing paths are skipped rather
// than erroring, since a fresh install may not have a home config yet;
// callers should re-create the watcher after the config loader confirms a
// path's existence if they need it watched retroactively.
func New(logger *zap.Logger, onChange func(), paths ...string) (*ConfigWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	cw := &ConfigWatcher{logger: logger, watcher: w, onChange: onChange}
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := w.Add(p); err != nil {
			logger.Debug("watch: skipping unwatchable path", zap.String("path", p), zap.Error(err))
			continue
		}
	}
	return cw, nil
}

// Run blocks, dispatching debounced change notifications until ctx is
// cancelled. Call it in its own goroutine.
func (cw *ConfigWatcher) Run(ctx context.Context) {
	defer cw.watcher.Close()

	var pending *time.Timer
	fire := func() {
		cw.logger.Info("config file changed, invalidating cached catalogue")
		cw.onChange()
	}

	for {
		select {
		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if pending != nil {
				pending.Stop()
			}
			pending = time.AfterFunc(debounce, fire)

		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			cw.logger.Warn("config file watcher error", zap.Error(err))

		case <-ctx.Done():
			if pending != nil {
				pending.Stop()
			}
			return
		}
	}
}

// Close stops the underlying fsnotify watcher immediately, without waiting
// for Run's context to be cancelled.
func (cw *ConfigWatcher) Close() error {
	return cw.watcher.Close()
}
