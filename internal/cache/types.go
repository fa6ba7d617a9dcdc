// Copyright (C) 2025 harvest contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package cache implements the Completed-Session Cache: on successful
// code emission, the Session Manager hands a finished session's
// artifacts here, which materializes them under a shared root and
// maintains a fast-lookup metadata index.
package cache

import "time"

// Input is what the Session Manager hands to Cache on successful code
// emission. It is a plain value type (not *session.Session) so this
// package has no dependency on internal/session — the cache only ever
// needs the finished artifacts, never a live session.
type Input struct {
	SessionID    string
	Prompt       string
	ArchiveBytes []byte // raw uploaded archive bytes
	CookieBytes  []byte // raw uploaded cookie snapshot bytes, nil if none
	Script       string
	Quality      string
	TotalNodes   int
	CompletedAt  time.Time
}

// Metadata is the per-session metadata.json.
type Metadata struct {
	SessionID          string    `json:"session_id"`
	CompletionTimestamp time.Time `json:"completion_timestamp"`
	Prompt             string    `json:"prompt"`
	QualityGrade       string    `json:"quality_grade"`
	TotalNodes         int       `json:"total_nodes"`
	CodeGenerated      bool      `json:"code_generated"`
	AvailableArtifacts []string  `json:"available_artifacts"`
	LastAccessed       time.Time `json:"last_accessed"`
}

// ArtifactKind is one of the named artifact files a session may carry.
type ArtifactKind string

const (
	ArtifactHAR      ArtifactKind = "original.har"
	ArtifactCookies  ArtifactKind = "cookies.json"
	ArtifactGenerated ArtifactKind = "generated.ts"
	ArtifactMetadata ArtifactKind = "metadata.json"
)

// Manifest is returned by Cache: the set of artifact files now on disk
// for a session.
type Manifest struct {
	SessionID string
	Artifacts []ArtifactKind
	Metadata  Metadata
}
