// Copyright (C) 2025 harvest contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llmclient

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oscaromsn/harvest/internal/archive"
)

func TestRequestSummary_RendersCurlLikeForm(t *testing.T) {
	rec := &archive.Record{
		Method:  "POST",
		URL:     "https://api.example.com/login",
		Headers: archive.NewHeaders([]archive.Header{{Name: "Content-Type", Value: "application/json"}}),
		Body:    &archive.Body{MimeType: "application/json", Text: `{"user":"ada"}`},
	}

	summary := requestSummary(rec)
	require.Contains(t, summary, "curl -X POST")
	require.Contains(t, summary, "https://api.example.com/login")
	require.Contains(t, summary, "Content-Type: application/json")
	require.Contains(t, summary, `{"user":"ada"}`)
}

func TestRequestSummary_NilRecord(t *testing.T) {
	require.Empty(t, requestSummary(nil))
}
