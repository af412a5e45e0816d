package docstore

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// Watcher streams change notifications for vault documents, keyed by
// vault-relative path.
type Watcher struct {
	watcher *fsnotify.Watcher
}

// Close stops the watcher and releases its resources.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

// Watch starts monitoring the vault for markdown edits. onChange runs on
// the watcher goroutine for every write or create of a document; callers
// are expected to debounce. logf receives diagnostics.
func (s *Store) Watch(ctx context.Context, onChange func(path string), logf func(format string, args ...interface{})) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	// fsnotify does not recurse, so register every directory up front.
	// Directories created later are added as their create events arrive.
	err = filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if name := d.Name(); strings.HasPrefix(name, ".") && p != s.root {
				return filepath.SkipDir
			}
			return fsw.Add(p)
		}
		return nil
	})
	if err != nil {
		fsw.Close()
		return nil, err
	}

	go func() {
		for {
			select {
			case event, ok := <-fsw.Events:
				if !ok {
					return
				}
				if event.Op&fsnotify.Create != 0 {
					if info, statErr := os.Stat(event.Name); statErr == nil && info.IsDir() {
						if !strings.HasPrefix(filepath.Base(event.Name), ".") {
							_ = fsw.Add(event.Name)
						}
						continue
					}
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if !strings.EqualFold(filepath.Ext(event.Name), ".md") {
					continue
				}
				rel, relErr := filepath.Rel(s.root, event.Name)
				if relErr != nil {
					continue
				}
				rel = filepath.ToSlash(rel)
				if strings.HasPrefix(rel, ".") {
					continue
				}
				onChange(rel)

			case watchErr, ok := <-fsw.Errors:
				if !ok {
					return
				}
				logf("watcher error: %v", watchErr)

			case <-ctx.Done():
				fsw.Close()
				return
			}
		}
	}()

	return &Watcher{watcher: fsw}, nil
}
