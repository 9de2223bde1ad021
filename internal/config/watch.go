package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/tailored-agentic-units/flowkernel/internal/ferrors"
)

// Watcher live-reloads a project config file, re-running Load and
// delivering the new Config on Changes whenever the file is written.
// Grounded on the teacher-pack's FileProvider.Watch debounce pattern
// (watch the containing directory, not the file itself, since editors
// commonly replace-then-rename rather than write in place).
type Watcher struct {
	loader  *Loader
	path    string
	watcher *fsnotify.Watcher
	Changes chan Config
	errs    chan error
}

// WatchProjectFile starts watching path for changes and re-resolves
// the Loader's full layered Config on every write, delivering results
// on the returned Watcher's Changes channel until ctx is cancelled.
func WatchProjectFile(ctx context.Context, loader *Loader, path string) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, ferrors.Wrap(ferrors.KindIO, err, "create config file watcher")
	}
	dir := filepath.Dir(path)
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, ferrors.Wrap(ferrors.KindIO, err, "watch config directory %s", dir)
	}

	w := &Watcher{
		loader:  loader,
		path:    path,
		watcher: fw,
		Changes: make(chan Config, 1),
		errs:    make(chan error, 1),
	}
	go w.loop(ctx)
	return w, nil
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.Changes)
	defer w.watcher.Close()

	name := filepath.Base(w.path)
	var debounce *time.Timer
	const delay = 150 * time.Millisecond

	fire := func() {
		if err := w.loader.MergeFile(w.path); err != nil {
			slog.Warn("config reload failed", "path", w.path, "error", err)
			return
		}
		cfg, err := w.loader.Load()
		if err != nil {
			slog.Warn("config reload failed", "path", w.path, "error", err)
			return
		}
		select {
		case w.Changes <- cfg:
		default:
		}
	}

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(delay, fire)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("config watcher error", "error", err)
		}
	}
}
