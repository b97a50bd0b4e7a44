package client

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
)

var DefaultWatchIgnore = []string{
	"**/__pycache__/**",
	"**/*.pyc",
	"**/.git/**",
	"**/.venv/**",
}

// Watcher reports file changes under a directory tree. It makes edits in a
// host directory mounted into the container observable from inside it.
type Watcher struct {
	root     string
	ignore   []string
	logger   *slog.Logger
	onChange func(path string)
	fsw      *fsnotify.Watcher
}

func NewWatcher(root string, ignore []string, logger *slog.Logger, onChange func(string)) (*Watcher, error) {
	for _, pattern := range ignore {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid watch ignore pattern %q", pattern)
		}
	}

	if logger == nil {
		logger = slog.Default()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	w := &Watcher{root: root, ignore: ignore, logger: logger, onChange: onChange, fsw: fsw}
	if err := w.addTree(root); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return w, nil
}

func (w *Watcher) rel(p string) string {
	r, err := filepath.Rel(w.root, p)
	if err != nil {
		return filepath.ToSlash(p)
	}
	return filepath.ToSlash(r)
}

func (w *Watcher) ignored(rel string) bool {
	for _, pattern := range w.ignore {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}

// A directory is skipped when anything inside it would be ignored.
func (w *Watcher) ignoredDir(rel string) bool {
	if rel == "." {
		return false
	}
	return w.ignored(rel) || w.ignored(path.Join(rel, "_"))
}

func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if w.ignoredDir(w.rel(p)) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(p); err != nil {
			return fmt.Errorf("watch %q: %w", p, err)
		}
		return nil
	})
}

func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
				continue
			}

			rel := w.rel(ev.Name)
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if !w.ignoredDir(rel) {
						if err := w.addTree(ev.Name); err != nil {
							w.logger.Warn("Failed to watch new directory", "path", rel, "error", err)
						}
					}
					continue
				}
			}
			if w.ignored(rel) {
				continue
			}

			w.logger.Info("Source changed", "path", rel, "op", ev.Op.String())
			w.onChange(rel)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("Watcher error", "error", err)
		}
	}
}
