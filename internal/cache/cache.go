// Copyright (C) 2025 harvest contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oscaromsn/harvest/internal/errs"
)

// Manager materializes finished-session artifacts under a shared root
// directory and serves them on demand.
//
// Thread Safety: safe for concurrent use. Metadata is loaded lazily on
// first access and held in a process-local map guarded by mu; artifact
// bytes are always read from disk on demand, never cached in memory.
type Manager struct {
	root string

	mu       sync.Mutex
	metaByID map[string]*Metadata

	index *Index
}

// New constructs a Manager rooted at dir, opening (or creating) its
// BadgerDB side index at dir/.index.
func New(dir string) (*Manager, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errs.Wrap(errs.CodeCacheWriteFailed, "could not create cache root", err)
	}
	idx, err := OpenIndex(filepath.Join(dir, ".index"))
	if err != nil {
		return nil, errs.Wrap(errs.CodeCacheWriteFailed, "could not open cache index", err)
	}
	return &Manager{root: dir, metaByID: make(map[string]*Metadata), index: idx}, nil
}

// Close releases the side index's BadgerDB handle.
func (m *Manager) Close() error {
	return m.index.Close()
}

// Cache materializes a finished session's artifacts to disk and
// returns the manifest of what got written.
func (m *Manager) Cache(in Input) (*Manifest, error) {
	dir := filepath.Join(m.root, in.SessionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errs.Wrap(errs.CodeCacheWriteFailed, "could not create session cache directory", err).WithSession(in.SessionID)
	}

	hashes := make(map[ArtifactKind]string)
	var artifacts []ArtifactKind

	if len(in.ArchiveBytes) > 0 {
		if err := writeAtomic(filepath.Join(dir, string(ArtifactHAR)), in.ArchiveBytes); err != nil {
			return nil, errs.Wrap(errs.CodeCacheWriteFailed, "could not write original.har", err).WithSession(in.SessionID)
		}
		hashes[ArtifactHAR] = contentHash(in.ArchiveBytes)
		artifacts = append(artifacts, ArtifactHAR)
	}
	if len(in.CookieBytes) > 0 {
		if err := writeAtomic(filepath.Join(dir, string(ArtifactCookies)), in.CookieBytes); err != nil {
			return nil, errs.Wrap(errs.CodeCacheWriteFailed, "could not write cookies.json", err).WithSession(in.SessionID)
		}
		hashes[ArtifactCookies] = contentHash(in.CookieBytes)
		artifacts = append(artifacts, ArtifactCookies)
	}
	if in.Script != "" {
		if err := writeAtomic(filepath.Join(dir, string(ArtifactGenerated)), []byte(in.Script)); err != nil {
			return nil, errs.Wrap(errs.CodeCacheWriteFailed, "could not write generated.ts", err).WithSession(in.SessionID)
		}
		hashes[ArtifactGenerated] = contentHash([]byte(in.Script))
		artifacts = append(artifacts, ArtifactGenerated)
	}

	completedAt := in.CompletedAt
	if completedAt.IsZero() {
		completedAt = time.Now()
	}
	meta := Metadata{
		SessionID:           in.SessionID,
		CompletionTimestamp: completedAt,
		Prompt:              in.Prompt,
		QualityGrade:        in.Quality,
		TotalNodes:          in.TotalNodes,
		CodeGenerated:       in.Script != "",
		AvailableArtifacts:  artifactNames(artifacts),
		LastAccessed:        completedAt,
	}
	metaJSON, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return nil, errs.Wrap(errs.CodeCacheWriteFailed, "could not marshal metadata", err).WithSession(in.SessionID)
	}
	if err := writeAtomic(filepath.Join(dir, string(ArtifactMetadata)), metaJSON); err != nil {
		return nil, errs.Wrap(errs.CodeCacheWriteFailed, "could not write metadata.json", err).WithSession(in.SessionID)
	}
	hashes[ArtifactMetadata] = contentHash(metaJSON)
	artifacts = append(artifacts, ArtifactMetadata)

	if err := m.index.Put(in.SessionID, meta, hashes); err != nil {
		return nil, errs.Wrap(errs.CodeCacheWriteFailed, "could not update cache index", err).WithSession(in.SessionID)
	}

	m.mu.Lock()
	m.metaByID[in.SessionID] = &meta
	m.mu.Unlock()

	return &Manifest{SessionID: in.SessionID, Artifacts: artifacts, Metadata: meta}, nil
}

// GetCachedMetadata returns a session's metadata, loading it lazily
// from disk (or the index) on first access.
func (m *Manager) GetCachedMetadata(id string) (*Metadata, error) {
	m.mu.Lock()
	if meta, ok := m.metaByID[id]; ok {
		m.mu.Unlock()
		return meta, nil
	}
	m.mu.Unlock()

	if meta, ok, err := m.index.Get(id); err == nil && ok {
		m.mu.Lock()
		m.metaByID[id] = meta
		m.mu.Unlock()
		return meta, nil
	}

	path := filepath.Join(m.root, id, string(ArtifactMetadata))
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errs.New(errs.CodeCacheMiss, "no cached metadata for session").WithSession(id)
		}
		return nil, errs.Wrap(errs.CodeCacheWriteFailed, "could not read metadata.json", err).WithSession(id)
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, errs.Wrap(errs.CodeCacheWriteFailed, "corrupt metadata.json", err).WithSession(id)
	}
	m.mu.Lock()
	m.metaByID[id] = &meta
	m.mu.Unlock()
	return &meta, nil
}

// GetCachedArtifact reads one artifact's bytes from disk on demand,
// verifying content integrity against the index's recorded hash when
// one is present.
func (m *Manager) GetCachedArtifact(id string, kind ArtifactKind) ([]byte, error) {
	path := filepath.Join(m.root, id, string(kind))
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errs.New(errs.CodeCacheMiss, "artifact not present for session").WithSession(id)
		}
		return nil, errs.Wrap(errs.CodeCacheWriteFailed, "could not read artifact", err).WithSession(id)
	}
	if expected, ok, err := m.index.ContentHash(id, kind); err == nil && ok {
		if contentHash(data) != expected {
			return nil, errs.New(errs.CodeCacheWriteFailed, "artifact content hash mismatch").WithSession(id)
		}
	}
	return data, nil
}

// AllCachedSessions enumerates completed sessions by scanning the
// shared root directory directly rather than trusting the index alone
// — the index accelerates lookups but is never the sole copy of an
// artifact.
func (m *Manager) AllCachedSessions() ([]string, error) {
	entries, err := os.ReadDir(m.root)
	if err != nil {
		return nil, errs.Wrap(errs.CodeCacheWriteFailed, "could not scan cache root", err)
	}
	var ids []string
	for _, e := range entries {
		if !e.IsDir() || e.Name() == ".index" {
			continue
		}
		if _, err := os.Stat(filepath.Join(m.root, e.Name(), string(ArtifactMetadata))); err == nil {
			ids = append(ids, e.Name())
		}
	}
	return ids, nil
}

// RemoveCached deletes a session's artifact directory and index
// entries.
func (m *Manager) RemoveCached(id string) error {
	dir := filepath.Join(m.root, id)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return errs.New(errs.CodeCacheMiss, "no cached session to remove").WithSession(id)
	}
	if err := os.RemoveAll(dir); err != nil {
		return errs.Wrap(errs.CodeCacheWriteFailed, "could not remove cached session directory", err).WithSession(id)
	}
	_ = m.index.Delete(id)
	m.mu.Lock()
	delete(m.metaByID, id)
	m.mu.Unlock()
	return nil
}

// invalidate drops a session's in-memory metadata, forcing the next
// GetCachedMetadata to reload from disk. Used by watch.go when another
// process mutates the cache root out from under this one.
func (m *Manager) invalidate(id string) {
	m.mu.Lock()
	delete(m.metaByID, id)
	m.mu.Unlock()
}

// writeAtomic implements a temp-file-then-rename discipline: the
// artifact is only ever visible at its final path once fully written.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}

func contentHash(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

func artifactNames(kinds []ArtifactKind) []string {
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}
	return names
}
