package library

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
)

// DefaultSettle is how long a file must stay unchanged before it is read.
const DefaultSettle = 300 * time.Millisecond

// Watch calls fn with every supported file that is created or written in
// dir until ctx is done. Writes are coalesced per file so that fn sees the
// finished file once it has been quiet for settle.
func Watch(ctx context.Context, dir string, settle time.Duration, logger *log.Logger, fn func(Document)) error {
	if logger == nil {
		logger = log.Default()
	}
	if settle <= 0 {
		settle = DefaultSettle
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("error creating fsnotify watcher: %w", err)
	}
	defer w.Close() //nolint:errcheck

	if err := w.Add(dir); err != nil {
		return fmt.Errorf("error watching %s: %w", dir, err)
	}
	logger.Info("fsnotify watching dir", "dir", dir)

	var (
		mu     sync.Mutex
		timers = map[string]*time.Timer{}
		wg     sync.WaitGroup
	)
	defer func() {
		mu.Lock()
		for _, t := range timers {
			if t.Stop() {
				wg.Done()
			}
		}
		mu.Unlock()
		wg.Wait()
	}()

	deliver := func(path string) {
		defer wg.Done()
		mu.Lock()
		delete(timers, path)
		mu.Unlock()

		if ctx.Err() != nil {
			return
		}
		d, err := Load(path)
		if err != nil {
			logger.Debug("skipping file", "file", path, "error", err)
			return
		}
		if d.Content == "" {
			return
		}
		fn(d)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if !IsSupported(event.Name) {
				continue
			}
			logger.Debug("fsnotify event", "file", event.Name, "event", event.Op)

			path := event.Name
			mu.Lock()
			if t, ok := timers[path]; ok && t.Stop() {
				t.Reset(settle)
			} else {
				wg.Add(1)
				timers[path] = time.AfterFunc(settle, func() { deliver(path) })
			}
			mu.Unlock()
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Debug("fsnotify error", "dir", dir, "error", err)
		}
	}
}
