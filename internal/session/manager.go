// Copyright (C) 2025 harvest contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/oscaromsn/harvest/internal/archive"
	"github.com/oscaromsn/harvest/internal/dag"
	"github.com/oscaromsn/harvest/internal/errs"
	"github.com/oscaromsn/harvest/internal/resolver"
)

// Options configures a Manager: maximum concurrent sessions,
// per-session idle timeout, log level.
type Options struct {
	MaxConcurrentSessions int
	IdleTimeout           time.Duration
	IdleSweepInterval     time.Duration
	LogLevel              slog.Level
}

// DefaultOptions returns modest concurrency defaults sized for a
// single-process deployment.
func DefaultOptions() Options {
	return Options{
		MaxConcurrentSessions: 16,
		IdleTimeout:           30 * time.Minute,
		IdleSweepInterval:     time.Minute,
		LogLevel:              slog.LevelInfo,
	}
}

// Manager owns the live set of sessions keyed by id.
// Each Session's mutable state is only ever touched while holding that
// Session's own mutex, so operations across different sessions proceed
// concurrently; Manager's own mutex only protects the session index.
type Manager struct {
	opts   Options
	logger *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session

	stopSweep chan struct{}
	sweepOnce sync.Once
}

// New constructs a Manager and starts its idle-eviction sweeper.
func New(opts Options, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		opts:      opts,
		logger:    logger,
		sessions:  make(map[string]*Session),
		stopSweep: make(chan struct{}),
	}
	go m.sweepLoop()
	return m
}

// CreateSession parses the trace, grades its quality, and constructs a
// new session.
func (m *Manager) CreateSession(traceBytes, cookieBytes []byte, prompt string, inputVariables map[string]string, parseOpts archive.Options) (string, error) {
	m.mu.Lock()
	if m.opts.MaxConcurrentSessions > 0 && len(m.sessions) >= m.opts.MaxConcurrentSessions {
		m.mu.Unlock()
		return "", errs.New(errs.CodeCapacityExceeded, "maximum concurrent session count reached")
	}
	m.mu.Unlock()

	trace, err := archive.Parse(traceBytes, parseOpts)
	if err != nil {
		return "", err
	}
	if trace.Validation.Grade == archive.QualityPoor {
		m.logger.Warn("session created from poor-quality trace",
			"issues", trace.Validation.Issues)
	}

	var cookies archive.CookieSnapshot
	if len(cookieBytes) > 0 {
		cookies, err = archive.ParseCookieSnapshot(cookieBytes)
		if err != nil {
			return "", err
		}
	}

	id := uuid.NewString()
	g := dag.New()
	sess := &Session{
		ID:             id,
		CreatedAt:      time.Now(),
		Prompt:         prompt,
		Trace:          trace,
		Cookies:        cookies,
		Graph:          g,
		InputVariables: inputVariables,
		lastAccessed:   time.Now(),
	}
	if inputVariables == nil {
		sess.InputVariables = map[string]string{}
	}
	sess.Resolver = resolver.New(g, trace, cookies, id, m.logger.With("session_id", id))
	sess.Resolver.InputVariables = sess.InputVariables

	m.mu.Lock()
	m.sessions[id] = sess
	m.mu.Unlock()

	sess.AddLog(LogInfo, "session created", map[string]any{"quality": string(trace.Validation.Grade)})
	return id, nil
}

// GetSession returns the live session for id, touching its
// last-accessed timestamp.
func (m *Manager) GetSession(id string) (*Session, error) {
	m.mu.RLock()
	sess, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, errs.New(errs.CodeSessionNotFound, "no session with that id").WithSession(id)
	}
	sess.touch()
	return sess, nil
}

// ListSessions returns every live session id.
func (m *Manager) ListSessions() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	return ids
}

// DeleteSession removes a session from the live set.
func (m *Manager) DeleteSession(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return errs.New(errs.CodeSessionNotFound, "no session with that id").WithSession(id)
	}
	delete(m.sessions, id)
	return nil
}

// AddLog appends a log entry to a session.
func (m *Manager) AddLog(id string, level LogLevel, message string, data map[string]any) error {
	sess, err := m.GetSession(id)
	if err != nil {
		return err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.AddLog(level, message, data)
	m.logger.LogAttrs(context.Background(), slogLevel(level), message, slog.String("session_id", id))
	return nil
}

// ClearAllSessions drops every live session. Sessions are torn down
// concurrently, bounded by MaxConcurrentSessions, using an
// errgroup plus a buffered-channel semaphore for the fan-out.
func (m *Manager) ClearAllSessions(ctx context.Context) error {
	m.mu.Lock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	limit := m.opts.MaxConcurrentSessions
	if limit <= 0 {
		limit = 16
	}
	g, _ := errgroup.WithContext(ctx)
	sem := make(chan struct{}, limit)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			sem <- struct{}{}
			defer func() { <-sem }()
			m.logger.Info("session cleared on shutdown", "session_id", id)
			return nil
		})
	}
	return g.Wait()
}

// Stop halts the idle-eviction sweeper. Safe to call multiple times.
func (m *Manager) Stop() {
	m.sweepOnce.Do(func() { close(m.stopSweep) })
}

func (m *Manager) sweepLoop() {
	interval := m.opts.IdleSweepInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopSweep:
			return
		case <-ticker.C:
			m.evictIdle()
		}
	}
}

func (m *Manager) evictIdle() {
	if m.opts.IdleTimeout <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, sess := range m.sessions {
		if sess.IdleSince() >= m.opts.IdleTimeout {
			delete(m.sessions, id)
			m.logger.Info("session evicted after idle timeout", "session_id", id)
		}
	}
}
