// Copyright (C) 2025 InnerShift AI (engineering@innershift.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package protocol

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/singleflight"

	"github.com/InnerShiftAI/InnerShiftCore/pkg/logging"
	"github.com/InnerShiftAI/InnerShiftCore/services/protocol/scripts"
)

// CatalogSource supplies the engine's current step catalog. A source may
// swap whole catalogs between calls (hot reload); it must never mutate a
// catalog it has handed out.
type CatalogSource interface {
	Catalog() *Catalog
}

// DefaultCatalog builds the catalog from the embedded scripts alone.
func DefaultCatalog() (*Catalog, error) {
	set, err := scripts.LoadEmbedded()
	if err != nil {
		return nil, err
	}
	return BuildCatalog(set)
}

// =============================================================================
// Static Source
// =============================================================================

// StaticSource serves one immutable catalog. The right source for tests
// and for deployments without a script override directory.
type StaticSource struct {
	cat *Catalog
}

func NewStaticSource(cat *Catalog) *StaticSource {
	return &StaticSource{cat: cat}
}

func (s *StaticSource) Catalog() *Catalog {
	return s.cat
}

// =============================================================================
// Watching Source
// =============================================================================

// Rewrites arrive as bursts of filesystem events; reloads are delayed
// until the burst settles.
const reloadDebounce = 250 * time.Millisecond

// WatchingSource merges script overrides from a directory over the base
// set and rebuilds the catalog when the directory changes.
//
// Swaps are atomic: a turn holds whichever catalog it resolved at its
// start, and an override that fails validation is rejected wholesale; the
// previous catalog keeps serving.
type WatchingSource struct {
	base *scripts.Set
	dir  string
	log  *logging.Logger

	current   atomic.Pointer[Catalog]
	group     singleflight.Group
	watcher   *fsnotify.Watcher
	done      chan struct{}
	closeOnce sync.Once
}

// NewWatchingSource builds the initial catalog from base plus any
// overrides already in dir, then starts watching dir for changes. An
// unwatchable dir disables live reload but is not an error; overrides
// are optional.
func NewWatchingSource(base *scripts.Set, dir string, log *logging.Logger) (*WatchingSource, error) {
	if log == nil {
		log = logging.Default()
	}
	w := &WatchingSource{
		base: base,
		dir:  dir,
		log:  log,
		done: make(chan struct{}),
	}

	overrides, err := scripts.LoadDir(dir)
	if err != nil {
		return nil, err
	}
	cat, err := BuildCatalog(base.Merge(overrides))
	if err != nil {
		return nil, err
	}
	w.current.Store(cat)

	if dir != "" {
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			return nil, fmt.Errorf("script watcher: %w", err)
		}
		if err := watcher.Add(dir); err != nil {
			w.log.Warn("script override dir not watchable; live reload disabled", "dir", dir, "error", err)
			_ = watcher.Close()
		} else {
			w.watcher = watcher
			go w.run()
		}
	}
	return w, nil
}

// Catalog returns the current catalog snapshot.
func (w *WatchingSource) Catalog() *Catalog {
	return w.current.Load()
}

// Close stops the watcher. Safe to call more than once.
func (w *WatchingSource) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		if w.watcher != nil {
			err = w.watcher.Close()
		}
	})
	return err
}

func (w *WatchingSource) run() {
	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !strings.HasSuffix(event.Name, ".yaml") {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(reloadDebounce, w.reload)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("script watcher error", "dir", w.dir, "error", err)
		}
	}
}

// reload rebuilds the catalog from disk. Concurrent triggers collapse into
// one rebuild; a failed rebuild keeps the current catalog serving.
func (w *WatchingSource) reload() {
	_, _, _ = w.group.Do("reload", func() (any, error) {
		overrides, err := scripts.LoadDir(w.dir)
		if err != nil {
			w.log.Warn("script override reload failed; keeping current catalog", "dir", w.dir, "error", err)
			return nil, nil
		}
		cat, err := BuildCatalog(w.base.Merge(overrides))
		if err != nil {
			w.log.Warn("script override rejected; keeping current catalog", "dir", w.dir, "error", err)
			return nil, nil
		}
		w.current.Store(cat)
		w.log.Info("script catalog reloaded", "dir", w.dir, "overrides", len(overrides))
		return nil, nil
	})
}
