// Copyright (C) 2025 harvest contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oscaromsn/harvest/internal/session"
)

func twoStepHAR() []byte {
	return []byte(`{"log":{"entries":[
		{"startedDateTime":"2024-01-01T00:00:00Z","request":{"method":"GET","url":"https://svc/api/login","headers":[]},"response":{"status":200,"content":{"mimeType":"application/json","text":"{\"token\":\"ABCdef123456\"}"}}},
		{"startedDateTime":"2024-01-01T00:00:01Z","request":{"method":"GET","url":"https://svc/api/profile?token=ABCdef123456","headers":[]},"response":{"status":200,"content":{"mimeType":"application/json","text":"{\"name\":\"Ada\"}"}}}
	]}}`)
}

func TestRun_CompletesAndEmitsScript(t *testing.T) {
	m := session.New(session.DefaultOptions(), nil)
	defer m.Stop()
	o := New(m)

	result, err := o.Run(context.Background(), twoStepHAR(), nil, "view my profile", nil, DefaultOptions())
	require.NoError(t, err)
	require.True(t, result.Complete)
	require.NotEmpty(t, result.Script)
	require.Contains(t, result.Script, "profile")
	require.Contains(t, result.Script, "result1.body.token")
	require.False(t, result.IterationCapHit)
}

func TestRun_ReturnsDiagnosisWhenIterationCapHit(t *testing.T) {
	m := session.New(session.DefaultOptions(), nil)
	defer m.Stop()
	o := New(m)

	opts := DefaultOptions()
	opts.IterationCap = 1

	result, err := o.Run(context.Background(), twoStepHAR(), nil, "view my profile", nil, opts)
	require.NoError(t, err)
	require.False(t, result.Complete)
	require.Empty(t, result.Script)
	require.True(t, result.IterationCapHit)
	require.NotNil(t, result.State)
}

func TestRun_FailsWhenTraceHasNoRecords(t *testing.T) {
	m := session.New(session.DefaultOptions(), nil)
	defer m.Stop()
	o := New(m)

	_, err := o.Run(context.Background(), []byte(`{"log":{"entries":[]}}`), nil, "do a thing", nil, DefaultOptions())
	require.Error(t, err)
}
