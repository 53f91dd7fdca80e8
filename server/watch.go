package server

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/zond/mudcore"
	"go.uber.org/zap"
)

const (
	settleTime = 200 * time.Millisecond
)

// newWatcher watches dir and every directory below it.
func newWatcher(dir string) (*fsnotify.Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, mudcore.WithStack(err)
	}
	if err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return err
		}
		return watcher.Add(p)
	}); err != nil {
		watcher.Close()
		return nil, mudcore.WithStack(err)
	}
	return watcher, nil
}

// watch calls onChange once changes have settled, until ctx is done. It
// closes the watcher.
func watch(ctx context.Context, watcher *fsnotify.Watcher, log *zap.SugaredLogger, onChange func()) {
	defer watcher.Close()
	timer := time.NewTimer(settleTime)
	timer.Stop()
	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if info, err := os.Stat(event.Name); err == nil && info.IsDir() && event.Op&fsnotify.Create != 0 {
				if err := watcher.Add(event.Name); err != nil {
					log.Warnw("watching", "path", event.Name, "error", err)
				}
			}
			timer.Reset(settleTime)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Warnw("watching commands", "error", err)
		case <-timer.C:
			onChange()
		}
	}
}
