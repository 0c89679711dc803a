package catalog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchDebounce coalesces bursts of events, such as a slot being copied in.
const watchDebounce = 200 * time.Millisecond

// Watch enables the in-memory slot cache and keeps it fresh by watching
// the catalog root and every slot directory until ctx is done. It blocks;
// run it on its own goroutine. The cache is disabled again on return.
func (c *Catalog) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(c.root); err != nil {
		return fmt.Errorf("watch %s: %w", c.root, err)
	}
	c.watchSlotDirs(watcher)

	c.mu.Lock()
	c.watching = true
	c.valid = false
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.watching = false
		c.valid = false
		c.cache = nil
		c.mu.Unlock()
	}()

	debounce := time.NewTimer(0)
	<-debounce.C
	defer debounce.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			// The write that lands a new info.json can precede the cache
			// read, so invalidate now and again after the burst.
			c.invalidate()
			if ev.Op&fsnotify.Create != 0 && filepath.Dir(ev.Name) == c.root {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					_ = watcher.Add(ev.Name)
				}
			}
			debounce.Reset(watchDebounce)

		case <-debounce.C:
			c.invalidate()
			c.logger.Debug("slot catalog changed on disk")

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			c.logger.Warn("catalog watcher error", "error", err)
			c.invalidate()
		}
	}
}

func (c *Catalog) watchSlotDirs(watcher *fsnotify.Watcher) {
	entries, err := os.ReadDir(c.root)
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.IsDir() && validName(e.Name()) {
			if err := watcher.Add(c.SlotDir(e.Name())); err != nil {
				c.logger.Debug("cannot watch slot directory", "slot", e.Name(), "error", err)
			}
		}
	}
}

// Watching reports whether the cache is currently maintained by Watch.
func (c *Catalog) Watching() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.watching
}
