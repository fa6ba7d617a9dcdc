// Copyright (C) 2025 harvest contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package archive

import (
	"encoding/base64"
	"encoding/json"
	"time"
)

// The following types mirror the HAR wire format
// No third-party HAR library exists anywhere in the reference corpus
// (see DESIGN.md), so decoding stays on encoding/json.

type harDocument struct {
	Log harLog `json:"log"`
}

type harLog struct {
	Version string    `json:"version"`
	Creator harCreator `json:"creator"`
	Entries []harEntry `json:"entries"`
}

type harCreator struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type harEntry struct {
	StartedDateTime string       `json:"startedDateTime"`
	Time            float64      `json:"time"`
	Request         harRequest   `json:"request"`
	Response        *harResponse `json:"response"`
}

type harRequest struct {
	Method      string        `json:"method"`
	URL         string        `json:"url"`
	HTTPVersion string        `json:"httpVersion"`
	Headers     []Header      `json:"headers"`
	QueryString []Header      `json:"queryString"`
	PostData    *harPostData  `json:"postData,omitempty"`
}

type harPostData struct {
	MimeType string `json:"mimeType"`
	Text     string `json:"text"`
}

type harResponse struct {
	Status     int         `json:"status"`
	StatusText string      `json:"statusText"`
	HTTPVersion string     `json:"httpVersion"`
	Headers    []Header    `json:"headers"`
	Content    harContent  `json:"content"`
}

type harContent struct {
	Size     int    `json:"size"`
	MimeType string `json:"mimeType"`
	Text     string `json:"text,omitempty"`
	Encoding string `json:"encoding,omitempty"`
}

func decodeHAR(buf []byte) (*harDocument, error) {
	var doc harDocument
	if err := json.Unmarshal(buf, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// toRecord converts a single HAR entry into the normalized Record model.
// Tolerant of a missing response and of either text or base64 content,
//
func (e *harEntry) toRecord() *Record {
	capturedAt, _ := time.Parse(time.RFC3339, e.StartedDateTime)

	rec := &Record{
		Method:     e.Request.Method,
		URL:        e.Request.URL,
		Headers:    NewHeaders(e.Request.Headers),
		CapturedAt: capturedAt,
	}
	if e.Request.PostData != nil {
		rec.Body = &Body{
			MimeType: e.Request.PostData.MimeType,
			Text:     e.Request.PostData.Text,
		}
		if rec.Body.IsJSONLike() {
			var v any
			if err := json.Unmarshal([]byte(rec.Body.Text), &v); err == nil {
				rec.Body.Structured = v
			}
		}
	}

	if e.Response != nil {
		text := e.Response.Content.Text
		if e.Response.Content.Encoding == "base64" {
			if decoded, err := base64.StdEncoding.DecodeString(text); err == nil {
				text = string(decoded)
			}
		}
		resp := &Response{
			Status:     e.Response.Status,
			StatusText: e.Response.StatusText,
			Headers:    NewHeaders(e.Response.Headers),
			Body: &Body{
				MimeType: e.Response.Content.MimeType,
				Text:     text,
			},
		}
		if resp.Body.IsJSONLike() {
			var v any
			if err := json.Unmarshal([]byte(text), &v); err == nil {
				resp.Body.Structured = v
			}
		}
		rec.Response = resp
	}

	return rec
}

// toHAREntry round-trips a Record back into the HAR wire format, used by
// the Completed-Session Cache when re-serializing the originally parsed
// trace.
func toHAREntry(rec *Record) harEntry {
	entry := harEntry{
		StartedDateTime: rec.CapturedAt.Format(time.RFC3339),
		Request: harRequest{
			Method:      rec.Method,
			URL:         rec.URL,
			HTTPVersion: "HTTP/1.1",
			Headers:     rec.Headers.Pairs(),
		},
	}
	for k, vs := range rec.Query() {
		for _, v := range vs {
			entry.Request.QueryString = append(entry.Request.QueryString, Header{Name: k, Value: v})
		}
	}
	if rec.Body != nil {
		entry.Request.PostData = &harPostData{MimeType: rec.Body.MimeType, Text: rec.Body.Text}
	}
	if rec.Response != nil {
		entry.Response = &harResponse{
			Status:      rec.Response.Status,
			StatusText:  rec.Response.StatusText,
			HTTPVersion: "HTTP/1.1",
			Headers:     rec.Response.Headers.Pairs(),
		}
		if rec.Response.Body != nil {
			entry.Response.Content = harContent{
				Size:     len(rec.Response.Body.Text),
				MimeType: rec.Response.Body.MimeType,
				Text:     rec.Response.Body.Text,
			}
		}
	}
	return entry
}

// Marshal re-serializes a Trace to the HAR document format, round-
// tripping the originally parsed fields faithfully.
func Marshal(t *Trace) ([]byte, error) {
	doc := harDocument{
		Log: harLog{
			Version: "1.2",
			Creator: harCreator{Name: "harvest", Version: "1"},
		},
	}
	for _, rec := range t.Records {
		doc.Log.Entries = append(doc.Log.Entries, toHAREntry(rec))
	}
	return json.MarshalIndent(doc, "", "  ")
}
