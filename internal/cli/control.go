package cli

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"

	"github.com/relicta-tech/releasekit/internal/ui"
)

// Control files recognised in the control directory.
const (
	pauseFile  = "PAUSE"
	cancelFile = "CANCEL"
)

// controlWatcher drives a publish run from files in a directory: creating
// PAUSE pauses, removing it resumes, creating CANCEL cancels.
type controlWatcher struct {
	dir     string
	control ui.Control
	logger  *log.Logger
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// startControlWatcher creates dir if needed, applies files already present
// and watches for changes until Stop. A CANCEL left over from an earlier
// run is removed instead of cancelling.
func startControlWatcher(dir string, control ui.Control, logger *log.Logger) (*controlWatcher, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	stale := filepath.Join(dir, cancelFile)
	if _, err := os.Stat(stale); err == nil {
		logger.Warn("removing stale control file", "file", stale)
		if err := os.Remove(stale); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(dir); err != nil {
		_ = fw.Close()
		return nil, err
	}

	w := &controlWatcher{
		dir:     dir,
		control: control,
		logger:  logger,
		watcher: fw,
		done:    make(chan struct{}),
	}
	w.sync(pauseFile)
	go w.loop()
	return w, nil
}

// Stop closes the watcher and waits for the event loop to exit.
func (w *controlWatcher) Stop() {
	_ = w.watcher.Close()
	<-w.done
}

func (w *controlWatcher) loop() {
	defer close(w.done)
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.sync(filepath.Base(event.Name))
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("control directory watch error", "error", err)
		}
	}
}

// sync applies the current presence of a control file, whatever the event.
func (w *controlWatcher) sync(name string) {
	switch name {
	case pauseFile:
		if w.exists(pauseFile) {
			if w.control.Pause() {
				w.logger.Info("paused by control file", "dir", w.dir)
			}
		} else if w.control.Resume() {
			w.logger.Info("resumed by control file", "dir", w.dir)
		}
	case cancelFile:
		if w.exists(cancelFile) && w.control.Cancel() {
			w.logger.Warn("cancelled by control file", "dir", w.dir)
		}
	}
}

func (w *controlWatcher) exists(name string) bool {
	_, err := os.Stat(filepath.Join(w.dir, name))
	return err == nil
}
