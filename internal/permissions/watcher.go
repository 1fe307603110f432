package permissions

import (
	"context"
	"fmt"
	"log"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the allow list whenever the config file changes, so
// permission edits apply to running workers without a restart. Blocks
// until ctx is cancelled.
//
// The parent directory is watched rather than the file itself: editors
// that write via rename would otherwise detach the watch.
func (m *Manager) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(m.configPath)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(m.configPath) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if err := m.Reload(); err != nil {
				log.Printf("permissions: reload failed: %v", err)
				continue
			}
			log.Printf("permissions: reloaded %s", m.configPath)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Printf("permissions: watch error: %v", err)
		}
	}
}
