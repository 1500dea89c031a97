package ledger

import (
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watcher observes the ledger directory for external modifications. Score band
// edits invalidate the in-memory band cache; other table changes are only
// logged, since tables are re-read on every operation.
type Watcher struct {
	store   *Store
	watcher *fsnotify.Watcher
	logger  zerolog.Logger
	stopCh  chan struct{}
}

// NewWatcher starts watching the store's directory.
func NewWatcher(store *Store, logger zerolog.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(store.Dir()); err != nil {
		fw.Close()
		return nil, err
	}

	w := &Watcher{
		store:   store,
		watcher: fw,
		logger:  logger,
		stopCh:  make(chan struct{}),
	}
	go w.run()

	logger.Info().Str("dir", store.Dir()).Msg("Ledger watcher started")
	return w, nil
}

// Stop stops the watcher.
func (w *Watcher) Stop() error {
	close(w.stopCh)
	return w.watcher.Close()
}

func (w *Watcher) run() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			name := filepath.Base(event.Name)
			if !strings.HasSuffix(name, ".csv") {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}

			w.logger.Debug().
				Str("table", name).
				Str("op", event.Op.String()).
				Msg("Ledger file changed on disk")

			if name == bandsFile {
				w.store.InvalidateBandCache()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn().Err(err).Msg("Ledger watcher error")

		case <-w.stopCh:
			return
		}
	}
}
