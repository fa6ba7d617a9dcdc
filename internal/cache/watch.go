// Copyright (C) 2025 harvest contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package cache

import (
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch starts a background fsnotify watcher on the cache root so the
// process-local metadata map (cache.go's metaByID) stays fresh when
// another process sharing the root adds or removes a session directory
// out from under this one Returns a stop
// function; safe to ignore if the caller never shares the root.
func (m *Manager) Watch(logger *slog.Logger) (stop func(), err error) {
	if logger == nil {
		logger = slog.Default()
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(m.root); err != nil {
		w.Close()
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				// fsnotify on a directory only reports events for its
				// direct children, so ev.Name is the session directory
				// itself (create/remove), never a nested artifact path.
				id := filepath.Base(ev.Name)
				if ev.Op&(fsnotify.Remove|fsnotify.Rename|fsnotify.Create) != 0 {
					m.invalidate(id)
					logger.Debug("cache watcher invalidated session metadata", "session_id", id, "op", ev.Op.String())
				}
			case werr, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Warn("cache watcher error", "error", werr)
			case <-done:
				return
			}
		}
	}()

	return func() {
		close(done)
		w.Close()
	}, nil
}
