package ingest

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// settleDelay gives a newly created file time to finish writing before
// it is read.
const settleDelay = 500 * time.Millisecond

// Watcher mirrors filesystem changes under the music directory into the
// catalog through the scanner.
type Watcher struct {
	scanner *Scanner
	logger  *logrus.Logger
	fsw     *fsnotify.Watcher
}

// StartWatcher begins recursive monitoring of the configured music
// directory.
func (s *Scanner) StartWatcher() error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w := &Watcher{scanner: s, logger: s.logger, fsw: fsw}
	s.watcher = w

	go w.run()

	if err := w.addRecursive(s.cfg.Paths.MusicDir); err != nil {
		fsw.Close()
		s.watcher = nil
		return err
	}
	s.logger.WithField("dir", s.cfg.Paths.MusicDir).Info("File watcher started")
	return nil
}

// StopWatcher closes the watcher. Safe to call when never started.
func (s *Scanner) StopWatcher() {
	if s.watcher != nil {
		s.watcher.fsw.Close()
		s.watcher = nil
	}
}

func (w *Watcher) addRecursive(dir string) error {
	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return w.fsw.Add(path)
		}
		return nil
	})
}

func (w *Watcher) run() {
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.WithError(err).Error("File watcher error")
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	name := filepath.Base(event.Name)
	if strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".tmp") {
		return
	}

	switch {
	case event.Has(fsnotify.Create) && IsAudioFile(event.Name):
		go func(path string) {
			time.Sleep(settleDelay)
			if err := w.scanner.AddFile(path, w.scanner.collectionStorage()); err != nil {
				w.logger.WithError(err).WithField("path", path).Error("Failed to ingest new file")
			}
		}(event.Name)

	case (event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename)) && IsAudioFile(event.Name):
		go func(path string) {
			if err := w.scanner.RemoveFile(path); err != nil {
				w.logger.WithError(err).WithField("path", path).Error("Failed to remove deleted file")
			}
		}(event.Name)

	case event.Has(fsnotify.Create):
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addRecursive(event.Name); err == nil {
				w.logger.WithField("dir", event.Name).Info("Watching new directory")
			}
		}
	}
}
