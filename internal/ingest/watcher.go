package ingest

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/joseph-ayodele/blood-report-parser/constants"
)

type WatchConfig struct {
	Roots       []string // watched recursively
	InitialScan bool     // emit images already present
	Debounce    time.Duration
	Logger      *slog.Logger
}

// StartWatcher emits image paths created, written or renamed under the roots.
// Paths touched repeatedly within Debounce are emitted once. Both channels
// close when ctx is done.
func StartWatcher(ctx context.Context, cfg WatchConfig) (<-chan string, <-chan error, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if len(cfg.Roots) == 0 {
		return nil, nil, errors.New("no roots provided")
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Error("failed to create fsnotify watcher", "error", err)
		return nil, nil, err
	}

	var initial []string
	for _, root := range cfg.Roots {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if d.IsDir() {
				return w.Add(path)
			}
			if cfg.InitialScan && constants.IsImageExt(filepath.Ext(path)) {
				initial = append(initial, path)
			}
			return nil
		})
		if err != nil {
			logger.Error("failed to add root directory", "root", root, "error", err)
			_ = w.Close()
			return nil, nil, err
		}
	}

	evCh := make(chan string, 256)
	errCh := make(chan error, 1)
	go watchLoop(ctx, w, cfg.Debounce, initial, evCh, errCh, logger)
	return evCh, errCh, nil
}

func watchLoop(ctx context.Context, w *fsnotify.Watcher, debounce time.Duration, initial []string, evCh chan<- string, errCh chan<- error, logger *slog.Logger) {
	defer close(evCh)
	defer close(errCh)
	defer func() {
		if err := w.Close(); err != nil {
			logger.Warn("watcher close failed", "error", err)
		}
	}()

	emit := func(p string) bool {
		select {
		case evCh <- p:
			return true
		case <-ctx.Done():
			return false
		}
	}
	for _, p := range initial {
		if !emit(p) {
			return
		}
	}

	pending := map[string]struct{}{}
	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	flush := func() bool {
		for p := range pending {
			delete(pending, p)
			if !emit(p) {
				return false
			}
		}
		return true
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-fire:
			fire = nil
			if !flush() {
				return
			}
		case e, ok := <-w.Events:
			if !ok {
				return
			}
			if e.Has(fsnotify.Create) {
				// New subdirectories join the watch; files make Add fail harmlessly.
				_ = w.Add(e.Name)
			}
			if !constants.IsImageExt(filepath.Ext(e.Name)) || !(e.Has(fsnotify.Create) || e.Has(fsnotify.Write) || e.Has(fsnotify.Rename)) {
				continue
			}
			pending[e.Name] = struct{}{}
			if debounce <= 0 {
				if !flush() {
					return
				}
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				timer.Reset(debounce)
			}
			fire = timer.C
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			logger.Error("watcher error", "error", err)
			select {
			case errCh <- err:
			default:
			}
		}
	}
}
