package config

import (
	"context"
	"log"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch monitors the user and project config files and invokes onChange with
// a freshly loaded Config whenever one of them is written. It blocks until
// ctx is cancelled. A reload that fails to parse is logged and skipped; the
// previous configuration stays in effect.
func Watch(ctx context.Context, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Watch directories, not files: editors replace files on save and a
	// file watch dies with the old inode.
	dirs := map[string]bool{getUserConfigDir(): true}
	if project := findProjectConfig(); project != "" {
		dirs[filepath.Dir(project)] = true
	}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			log.Printf("[config] cannot watch %s: %v", dir, err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			base := filepath.Base(event.Name)
			if base != "config.yaml" && base != ".localmind.yaml" && base != "workers.yaml" {
				continue
			}
			cfg, err := Load()
			if err != nil {
				log.Printf("[config] reload failed, keeping previous config: %v", err)
				continue
			}
			log.Printf("[config] reloaded after change to %s", base)
			onChange(cfg)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Printf("[config] watch error: %v", err)
		}
	}
}
