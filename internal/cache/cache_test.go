// Copyright (C) 2025 harvest contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oscaromsn/harvest/internal/errs"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return m
}

func TestCache_WritesArtifactsAndMetadata(t *testing.T) {
	m := newTestManager(t)

	manifest, err := m.Cache(Input{
		SessionID:    "sess-1",
		Prompt:       "check out with a gift card",
		ArchiveBytes: []byte(`{"log":{"entries":[]}}`),
		CookieBytes:  []byte(`{"sid":"abc"}`),
		Script:       "export async function run() {}",
		Quality:      "good",
		TotalNodes:   3,
		CompletedAt:  time.Unix(1000, 0),
	})
	require.NoError(t, err)
	require.ElementsMatch(t, []ArtifactKind{ArtifactHAR, ArtifactCookies, ArtifactGenerated, ArtifactMetadata}, manifest.Artifacts)

	har, err := m.GetCachedArtifact("sess-1", ArtifactHAR)
	require.NoError(t, err)
	require.Equal(t, `{"log":{"entries":[]}}`, string(har))

	meta, err := m.GetCachedMetadata("sess-1")
	require.NoError(t, err)
	require.Equal(t, "sess-1", meta.SessionID)
	require.True(t, meta.CodeGenerated)
}

func TestGetCachedMetadata_CacheMiss(t *testing.T) {
	m := newTestManager(t)

	_, err := m.GetCachedMetadata("does-not-exist")
	require.Error(t, err)
	var e *errs.Error
	require.ErrorAs(t, err, &e)
	require.Equal(t, errs.CodeCacheMiss, e.Code)
}

func TestGetCachedArtifact_CacheMiss(t *testing.T) {
	m := newTestManager(t)
	_, err := m.Cache(Input{SessionID: "sess-2", Script: "x"})
	require.NoError(t, err)

	_, err = m.GetCachedArtifact("sess-2", ArtifactCookies)
	require.Error(t, err)
	var e *errs.Error
	require.ErrorAs(t, err, &e)
	require.Equal(t, errs.CodeCacheMiss, e.Code)
}

func TestAllCachedSessions_ScansRoot(t *testing.T) {
	m := newTestManager(t)
	_, err := m.Cache(Input{SessionID: "sess-a", Script: "x"})
	require.NoError(t, err)
	_, err = m.Cache(Input{SessionID: "sess-b", Script: "y"})
	require.NoError(t, err)

	ids, err := m.AllCachedSessions()
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"sess-a", "sess-b"}, ids)
}

func TestRemoveCached(t *testing.T) {
	m := newTestManager(t)
	_, err := m.Cache(Input{SessionID: "sess-3", Script: "x"})
	require.NoError(t, err)

	require.NoError(t, m.RemoveCached("sess-3"))
	_, err = m.GetCachedMetadata("sess-3")
	require.Error(t, err)
}
