// Copyright (C) 2025 harvest contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package session implements the Session Manager:
// the live set of in-memory analysis sessions, each owned by a single
// logical worker, and the completion-state diagnostics every downstream
// tool reads as its single source of truth for readiness.
package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/oscaromsn/harvest/internal/archive"
	"github.com/oscaromsn/harvest/internal/auth"
	"github.com/oscaromsn/harvest/internal/dag"
	"github.com/oscaromsn/harvest/internal/resolver"
)

// LogLevel is the per-entry severity of a session's append-only log.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// LogEntry is one append-only session log line, ordered by enqueue
// time.
type LogEntry struct {
	At      time.Time
	Level   LogLevel
	Message string
	Data    map[string]any
}

// Session is one unit of analysis work: a parsed trace, its DAG, the
// resolver driving that DAG, and the bookkeeping the Resource Surface
// and Workflow Orchestrator read.
//
// Thread Safety: a Session's fields are only ever mutated by the
// single worker goroutine that owns it; callers reach it through
// Manager, which serializes access per session id.
type Session struct {
	ID        string
	CreatedAt time.Time
	Prompt    string

	Trace   *archive.Trace
	Cookies archive.CookieSnapshot

	Graph    *dag.Graph
	Resolver *resolver.Resolver
	Auth     auth.Analysis

	// ActionURL, MasterNodeID, and GroupID identify the workflow the
	// Workflow Orchestrator is driving for this session, once chosen.
	ActionURL    string
	MasterNodeID string
	GroupID      string

	InputVariables map[string]string

	IsComplete    bool
	CodeGenerated bool
	EmittedScript string

	Logs []LogEntry

	lastAccessed time.Time
	mu           sync.Mutex
}

// touch records an access for idle-eviction bookkeeping.
func (s *Session) touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastAccessed = time.Now()
}

// IdleSince returns how long it has been since the session was last
// touched.
func (s *Session) IdleSince() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.lastAccessed)
}

// AddLog appends a log entry.
func (s *Session) AddLog(level LogLevel, message string, data map[string]any) {
	s.Logs = append(s.Logs, LogEntry{At: time.Now(), Level: level, Message: message, Data: data})
}

// slogLevel maps a LogLevel onto the standard library's levels, for
// sessions constructed with a *slog.Logger sink (see Manager.logger).
func slogLevel(l LogLevel) slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
