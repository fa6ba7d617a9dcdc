// Copyright (C) 2025 harvest contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package auth

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oscaromsn/harvest/internal/archive"
)

func recordWithAuthHeader(value string, status int) *archive.Record {
	headers := archive.NewHeaders(nil)
	headers.Set("Authorization", value)
	return &archive.Record{
		Method:  "GET",
		URL:     "https://svc/api/profile",
		Headers: headers,
		Response: &archive.Response{
			Status: status,
		},
	}
}

func TestAnalyze_NoAuthSignal(t *testing.T) {
	trace := &archive.Trace{Records: []*archive.Record{
		{Method: "GET", URL: "https://svc/api/public", Headers: archive.NewHeaders(nil)},
	}}

	a := Analyze(trace, nil)
	require.False(t, a.HasAuth)
	require.Equal(t, TypeNone, a.PrimaryAuthType)
	require.Equal(t, FlowSimple, a.FlowComplexity)
	require.NotEmpty(t, a.Recommendations)
}

func TestAnalyze_BearerTokenSimpleFlow(t *testing.T) {
	trace := &archive.Trace{Records: []*archive.Record{
		recordWithAuthHeader("Bearer abcDEF123456xyz", 200),
		recordWithAuthHeader("Bearer abcDEF123456xyz", 200),
	}}

	a := Analyze(trace, nil)
	require.True(t, a.HasAuth)
	require.Equal(t, TypeBearerToken, a.PrimaryAuthType)
	require.Equal(t, FlowSimple, a.FlowComplexity)
	require.Empty(t, a.SecurityIssues)
}

func TestAnalyze_AuthFailureDetected(t *testing.T) {
	trace := &archive.Trace{Records: []*archive.Record{
		recordWithAuthHeader("Bearer expiredtoken123", 401),
	}}

	a := Analyze(trace, nil)
	require.Len(t, a.SecurityIssues, 1)
	require.True(t, a.PerRequest[0].Failure)
}

func TestAnalyze_RefreshedTokenIsModerateComplexity(t *testing.T) {
	trace := &archive.Trace{Records: []*archive.Record{
		recordWithAuthHeader("Bearer firstTokenValue123", 200),
		recordWithAuthHeader("Bearer secondTokenValue456", 200),
	}}

	a := Analyze(trace, nil)
	require.Equal(t, FlowModerate, a.FlowComplexity)
}
