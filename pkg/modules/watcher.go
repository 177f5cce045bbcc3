package modules

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// CatalogWatcher reloads a Catalog whenever its override file changes
type CatalogWatcher struct {
	catalog *Catalog
	path    string
	watcher *fsnotify.Watcher
	log     *logrus.Logger

	// reloaded receives the result of every reload attempt; used by tests
	reloaded chan error
}

// NewCatalogWatcher watches path for changes. The parent directory is
// watched so that editors replacing the file by rename are picked up.
func NewCatalogWatcher(catalog *Catalog, path string, log *logrus.Logger) (*CatalogWatcher, error) {
	if log == nil {
		log = logrus.New()
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(path)); err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", path, err)
	}
	return &CatalogWatcher{
		catalog: catalog,
		path:    filepath.Clean(path),
		watcher: w,
		log:     log,
	}, nil
}

// Run processes file events until ctx is done
func (cw *CatalogWatcher) Run(ctx context.Context) {
	defer cw.watcher.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != cw.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			cw.reload()
		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			cw.log.WithError(err).Warn("catalog watcher error")
		}
	}
}

func (cw *CatalogWatcher) reload() {
	err := cw.catalog.Reload(cw.path)
	if err != nil {
		cw.log.WithError(err).WithField("path", cw.path).Warn("catalog reload failed, keeping previous catalog")
	} else {
		cw.log.WithField("path", cw.path).Info("module catalog reloaded")
	}
	if cw.reloaded != nil {
		cw.reloaded <- err
	}
}
