// Copyright (C) 2025 harvest contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oscaromsn/harvest/internal/archive"
	"github.com/oscaromsn/harvest/internal/dag"
	"github.com/oscaromsn/harvest/internal/errs"
)

func sampleHAR() []byte {
	return []byte(`{"log":{"entries":[
		{"startedDateTime":"2024-01-01T00:00:00Z","request":{"method":"GET","url":"https://svc/api/widgets","headers":[]},"response":{"status":200,"content":{"mimeType":"application/json","text":"{\"ok\":true}"}}}
	]}}`)
}

func TestCreateSession_RejectsAtCapacity(t *testing.T) {
	m := New(Options{MaxConcurrentSessions: 1}, nil)
	defer m.Stop()

	_, err := m.CreateSession(sampleHAR(), nil, "do a thing", nil, archive.Options{})
	require.NoError(t, err)

	_, err = m.CreateSession(sampleHAR(), nil, "do another thing", nil, archive.Options{})
	require.Error(t, err)
	var e *errs.Error
	require.ErrorAs(t, err, &e)
	require.Equal(t, errs.CodeCapacityExceeded, e.Code)
}

func TestGetSession_NotFound(t *testing.T) {
	m := New(DefaultOptions(), nil)
	defer m.Stop()

	_, err := m.GetSession("does-not-exist")
	require.Error(t, err)
	var e *errs.Error
	require.ErrorAs(t, err, &e)
	require.Equal(t, errs.CodeSessionNotFound, e.Code)
}

func TestListAndDeleteSession(t *testing.T) {
	m := New(DefaultOptions(), nil)
	defer m.Stop()

	id, err := m.CreateSession(sampleHAR(), nil, "prompt", nil, archive.Options{})
	require.NoError(t, err)
	require.Contains(t, m.ListSessions(), id)

	require.NoError(t, m.DeleteSession(id))
	_, err = m.GetSession(id)
	require.Error(t, err)
}

func TestAnalyzeCompletionState_BlockedWithoutMaster(t *testing.T) {
	m := New(DefaultOptions(), nil)
	defer m.Stop()

	id, err := m.CreateSession(sampleHAR(), nil, "prompt", nil, archive.Options{})
	require.NoError(t, err)

	state, err := m.AnalyzeCompletionState(id)
	require.NoError(t, err)
	require.False(t, state.IsComplete)
	require.NotEmpty(t, state.Blockers)
	require.False(t, state.Diagnostics.HasMasterNode)
}

func TestAnalyzeCompletionState_CompleteWithResolvedMaster(t *testing.T) {
	m := New(DefaultOptions(), nil)
	defer m.Stop()

	id, err := m.CreateSession(sampleHAR(), nil, "prompt", nil, archive.Options{})
	require.NoError(t, err)

	sess, err := m.GetSession(id)
	require.NoError(t, err)

	masterID, err := sess.Graph.AddNode(dag.KindMasterRequest, "only-group")
	require.NoError(t, err)
	require.NoError(t, sess.Graph.UpdateNode(masterID, func(n *dag.Node) {
		n.Request = sess.Trace.Records[0]
		n.State = dag.StateResolved
		n.ClassifiedParameters = []dag.ClassifiedParameter{{Name: "x", Value: "y"}}
	}))

	state, err := m.AnalyzeCompletionState(id)
	require.NoError(t, err)
	require.True(t, state.IsComplete)
	require.Empty(t, state.Blockers)
}

func TestClearAllSessions(t *testing.T) {
	m := New(DefaultOptions(), nil)
	defer m.Stop()

	_, err := m.CreateSession(sampleHAR(), nil, "prompt", nil, archive.Options{})
	require.NoError(t, err)

	require.NoError(t, m.ClearAllSessions(context.Background()))
	require.Empty(t, m.ListSessions())
}
