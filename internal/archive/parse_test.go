// Copyright (C) 2025 harvest contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package archive

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func sampleHAR(entries string) []byte {
	return []byte(`{"log":{"version":"1.2","creator":{"name":"x","version":"1"},"entries":[` + entries + `]}}`)
}

func TestParse_EmptyArchive(t *testing.T) {
	_, err := Parse(sampleHAR(""), Options{})
	require.Error(t, err)
}

func TestParse_MalformedArchive(t *testing.T) {
	_, err := Parse([]byte(`{"nope": true}`), Options{})
	require.Error(t, err)
}

func TestParse_S1_SingleSearchPost(t *testing.T) {
	entry := `{
		"startedDateTime": "2026-01-01T00:00:00Z",
		"time": 10,
		"request": {
			"method": "POST",
			"url": "https://svc/api/search?q=foo",
			"httpVersion": "HTTP/1.1",
			"headers": [{"name":"Content-Type","value":"application/json"}],
			"queryString": [{"name":"q","value":"foo"}],
			"postData": {"mimeType":"application/json","text":"{\"q\":\"foo\",\"ctx\":\"AB7\"}"}
		},
		"response": {
			"status": 200,
			"statusText": "OK",
			"httpVersion": "HTTP/1.1",
			"headers": [{"name":"Content-Type","value":"application/json"}],
			"content": {"size": 10, "mimeType": "application/json", "text": "{\"items\":[],\"token\":\"ZZZ\"}"}
		}
	}`

	trace, err := Parse(sampleHAR(entry), Options{})
	require.NoError(t, err)
	require.Len(t, trace.Records, 1)
	require.Equal(t, "POST", trace.Records[0].Method)
	require.NotNil(t, trace.Records[0].Body.Structured)
}

func TestParse_StaticAssetDroppedByDefault(t *testing.T) {
	entry := `{
		"startedDateTime": "2026-01-01T00:00:00Z",
		"time": 1,
		"request": {"method":"GET","url":"https://svc/app.js","httpVersion":"HTTP/1.1","headers":[],"queryString":[]},
		"response": {"status":200,"statusText":"OK","httpVersion":"HTTP/1.1","headers":[],"content":{"size":1,"mimeType":"application/javascript"}}
	}`
	trace, err := Parse(sampleHAR(entry), Options{})
	require.Error(t, err) // empty after filtering
	require.Equal(t, QualityEmpty, trace.Validation.Grade)
}

func TestMarshal_RoundTrip(t *testing.T) {
	entry := `{
		"startedDateTime": "2026-01-01T00:00:00Z",
		"time": 10,
		"request": {
			"method": "GET",
			"url": "https://svc/api/user",
			"httpVersion": "HTTP/1.1",
			"headers": [{"name":"Accept","value":"application/json"}],
			"queryString": []
		},
		"response": {
			"status": 200,
			"statusText": "OK",
			"httpVersion": "HTTP/1.1",
			"headers": [{"name":"Content-Type","value":"application/json"}],
			"content": {"size": 10, "mimeType": "application/json", "text": "{\"uid\":\"u-42\"}"}
		}
	}`
	trace, err := Parse(sampleHAR(entry), Options{})
	require.NoError(t, err)

	out, err := Marshal(trace)
	require.NoError(t, err)

	roundTripped, err := Parse(out, Options{})
	require.NoError(t, err)
	require.Equal(t, trace.Records[0].Method, roundTripped.Records[0].Method)
	require.Equal(t, trace.Records[0].URL, roundTripped.Records[0].URL)
	require.Equal(t, trace.Records[0].Response.Status, roundTripped.Records[0].Response.Status)
	require.Equal(t, trace.Records[0].Response.Body.Text, roundTripped.Records[0].Response.Body.Text)
}
