package pages

import (
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
)

const watchOps = fsnotify.Write | fsnotify.Create | fsnotify.Remove | fsnotify.Rename

func (r *renderer) launchWatcher() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "while creating template watcher")
	}
	if err := watcher.Add(r.config.directory); err != nil {
		_ = watcher.Close()
		return errors.Wrap(err, "while watching templates directory")
	}
	started := make(chan struct{})
	r.Add(1)
	go func() {
		defer r.Done()
		defer watcher.Close()

		close(started)
		for {
			select {
			case <-r.ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !event.Op.Has(watchOps) || !isTemplate(event.Name) {
					continue
				}
				r.Debug(r.ctx, "template event: %s", event)
				r.reload()
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				r.Error(r.ctx, "error while watching templates: %s", err)
			}
		}
	}()
	<-started
	r.Info(r.ctx, "watching templates in %s", r.config.directory)
	return nil
}

func isTemplate(name string) bool {
	return strings.EqualFold(filepath.Ext(name), templateExtension)
}
