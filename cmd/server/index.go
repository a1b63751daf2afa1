package main

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// indexCache holds the custom index file in memory and reloads it when the
// file changes on disk, so edits show up without a restart.
type indexCache struct {
	mu   sync.RWMutex
	path string
	data []byte
}

func newIndexCache(path string) (*indexCache, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c := &indexCache{path: path, data: data}

	// Watch the directory rather than the file: editors typically replace
	// the file, which would invalidate a direct watch.
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return c, nil
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return c, nil
	}
	go c.watch(watcher)
	return c, nil
}

func (c *indexCache) watch(watcher *fsnotify.Watcher) {
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(c.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if data, err := os.ReadFile(c.path); err == nil {
				c.mu.Lock()
				c.data = data
				c.mu.Unlock()
			}
		case _, ok := <-watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

func (c *indexCache) Bytes() []byte {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.data
}

func (c *indexCache) Name() string {
	return filepath.Base(c.path)
}
