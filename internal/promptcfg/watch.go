package promptcfg

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ErrNoFile is returned by Watch when the manager has no operator file.
var ErrNoFile = errors.New("promptcfg: no prompt config file to watch")

const reloadDebounce = 150 * time.Millisecond

// Watch reloads the operator file whenever it changes until ctx is done.
// Editors that replace the file via rename are handled by watching the
// parent directory.
func (m *Manager) Watch(ctx context.Context) error {
	if m.path == "" {
		return ErrNoFile
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsw.Close()

	target := filepath.Clean(m.path)
	if err := fsw.Add(filepath.Dir(target)); err != nil {
		return err
	}

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(reloadDebounce, func() {
				if err := m.Reload(); err != nil {
					m.logger.Warn().Err(err).Msg("prompt config reload failed; keeping previous settings")
				}
			})
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			m.logger.Warn().Err(err).Str("path", m.path).Msg("prompt config watcher error")
		}
	}
}
