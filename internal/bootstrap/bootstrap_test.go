// Copyright (C) 2025 harvest contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package bootstrap

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oscaromsn/harvest/internal/archive"
	"github.com/oscaromsn/harvest/internal/auth"
	"github.com/oscaromsn/harvest/internal/dag"
)

func TestLookup_InitialPageHTML(t *testing.T) {
	html := &archive.Record{
		Method: "GET",
		URL:    "https://svc/",
		Response: &archive.Response{
			Body: &archive.Body{MimeType: "text/html", Text: `<meta name="csrf" content="tok-abc123xyz">`},
		},
	}
	trace := &archive.Trace{Records: []*archive.Record{html}}
	f := New(trace, nil, nil, nil, nil)

	src, ok := f.Lookup("tok-abc123xyz")
	require.True(t, ok)
	require.Equal(t, dag.BootstrapInitialPageHTML, src.Type)
	require.Equal(t, "https://svc/", src.URL)
	require.NotEmpty(t, src.Pattern)
}

func TestLookup_InitialPageCookie(t *testing.T) {
	trace := &archive.Trace{Records: []*archive.Record{}}
	cookies := archive.CookieSnapshot{"sid": archive.Cookie{Value: "sess-xyz987"}}
	f := New(trace, cookies, nil, nil, nil)

	src, ok := f.Lookup("sess-xyz987")
	require.True(t, ok)
	require.Equal(t, dag.BootstrapInitialPageCookie, src.Type)
	require.Equal(t, "sid", src.CookieName)
}

func TestLookup_DedicatedAuthRequest(t *testing.T) {
	login := &archive.Record{
		Method: "POST",
		URL:    "https://svc/api/login",
		Response: &archive.Response{
			Body: &archive.Body{
				MimeType:   "application/json",
				Text:       `{"data":{"token":"jwt-abc123456"}}`,
				Structured: map[string]any{"data": map[string]any{"token": "jwt-abc123456"}},
			},
		},
	}
	trace := &archive.Trace{Records: []*archive.Record{login}}
	a := &auth.Analysis{
		AuthEndpoints: []auth.AuthEndpoint{{RecordIndex: 0, URL: login.URL, Purpose: auth.PurposeLogin}},
	}
	f := New(trace, nil, a, nil, nil)

	src, ok := f.Lookup("jwt-abc123456")
	require.True(t, ok)
	require.Equal(t, dag.BootstrapDedicatedAuth, src.Type)
	require.Equal(t, "data.token", src.JSONPath)
}

func TestLookup_NoSourceFound(t *testing.T) {
	trace := &archive.Trace{Records: []*archive.Record{}}
	f := New(trace, nil, nil, nil, nil)

	_, ok := f.Lookup("nothing-matches-this-value")
	require.False(t, ok)
}

type fakeConfirmer struct {
	refined *dag.BootstrapSource
	err     error
}

func (f fakeConfirmer) ConfirmBootstrapSource(_ context.Context, _ string, guess *dag.BootstrapSource) (*dag.BootstrapSource, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.refined != nil {
		return f.refined, nil
	}
	return guess, nil
}

func TestLookup_ConfirmerRefinesHeuristicGuess(t *testing.T) {
	trace := &archive.Trace{Records: []*archive.Record{}}
	cookies := archive.CookieSnapshot{"sid": archive.Cookie{Value: "sess-xyz987"}}
	refined := &dag.BootstrapSource{Type: dag.BootstrapInitialPageCookie, CookieName: "sid", Pattern: "refined"}
	f := New(trace, cookies, nil, fakeConfirmer{refined: refined}, nil)

	src, ok := f.Lookup("sess-xyz987")
	require.True(t, ok)
	require.Equal(t, "refined", src.Pattern)
}
