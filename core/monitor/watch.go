package monitor

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"plancost/internal/errors"
)

// watchDebounce collapses editor write bursts into one wakeup.
const watchDebounce = 200 * time.Millisecond

// watchPlan posts to wake whenever the plan artifact changes. The
// parent directory is watched rather than the file itself: terraform
// and most editors replace the file wholesale, which drops a watch
// held on the old inode.
func (m *Monitor) watchPlan(ctx context.Context, wake chan<- struct{}) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(errors.TypeInternal, "failed to create plan watcher", err)
	}

	target := filepath.Clean(m.opts.PlanPath)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		watcher.Close()
		return errors.Wrapf(errors.TypeConfig, err, "failed to watch %s", filepath.Dir(target))
	}

	m.logger.Info("watching plan artifact", zap.String("path", target))

	go func() {
		defer watcher.Close()

		var debounce <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				m.logger.Debug("plan artifact event", zap.String("op", event.Op.String()))
				debounce = time.After(watchDebounce)

			case <-debounce:
				debounce = nil
				select {
				case wake <- struct{}{}:
				default:
				}

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				m.logger.Warn("plan watcher error", zap.Error(err))
			}
		}
	}()

	return nil
}
