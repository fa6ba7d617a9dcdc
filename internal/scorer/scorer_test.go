// Copyright (C) 2025 harvest contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package scorer

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oscaromsn/harvest/internal/archive"
)

func TestRank_PrefersAPIMatchOverStaticAsset(t *testing.T) {
	descriptors := []archive.URLDescriptor{
		{Method: "GET", URL: "https://svc/static/app.css", ResponseContentType: "text", Index: 0},
		{Method: "POST", URL: "https://svc/api/search?q=foo", ResponseContentType: "json", Index: 1},
	}

	ranked := Rank("search for foo", descriptors)
	require.Len(t, ranked, 2)
	require.Equal(t, "https://svc/api/search?q=foo", ranked[0].Descriptor.URL)
	require.Greater(t, ranked[0].Score, ranked[1].Score)
}

func TestRank_StableOnTies(t *testing.T) {
	descriptors := []archive.URLDescriptor{
		{Method: "GET", URL: "https://svc/api/a", ResponseContentType: "json", Index: 0},
		{Method: "GET", URL: "https://svc/api/b", ResponseContentType: "json", Index: 1},
	}

	ranked := Rank("unrelated prompt text", descriptors)
	require.Equal(t, 0, ranked[0].Descriptor.Index)
	require.Equal(t, 1, ranked[1].Descriptor.Index)
}

func TestRank_ActionVerbBoostsMutatingMethod(t *testing.T) {
	descriptors := []archive.URLDescriptor{
		{Method: "GET", URL: "https://svc/api/items", ResponseContentType: "json", Index: 0},
		{Method: "POST", URL: "https://svc/api/items", ResponseContentType: "json", Index: 1},
	}

	ranked := Rank("create a new item", descriptors)
	require.Equal(t, "POST", ranked[0].Descriptor.Method)
}
