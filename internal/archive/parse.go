// Copyright (C) 2025 harvest contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package archive

import (
	"strings"

	"github.com/oscaromsn/harvest/internal/errs"
)

// Options enumerates the parse-time filtering knobs
type Options struct {
	// ExcludeKeywords drops any request whose URL contains one of these
	// substrings (case-insensitive).
	ExcludeKeywords []string

	// IncludeAllAPIRequests disables the static-asset-extension filter.
	IncludeAllAPIRequests bool

	// MinimumQuality rejects the parse with har-quality-insufficient if
	// the computed grade falls below this threshold. Empty string means
	// no threshold beyond the always-enforced "not empty" check.
	MinimumQuality Quality

	// PreserveAnalytics is accepted but not read: Parse's filtering rules
	// drop no request as analytics/tracking noise, so the flag does not
	// change what Parse returns.
	PreserveAnalytics bool
}

var qualityRank = map[Quality]int{
	QualityEmpty:     0,
	QualityPoor:      1,
	QualityGood:      2,
	QualityExcellent: 3,
}

// Parse normalizes a raw HAR document into a Trace, applying the
// filtering rules and computing the quality grade
//
// Fails with malformed-archive when the top-level structure is missing,
// and with empty-archive when zero entries exist.
func Parse(buf []byte, opts Options) (*Trace, error) {
	if len(buf) == 0 {
		return nil, errs.New(errs.CodeMalformedArchive, "archive buffer is empty")
	}

	doc, err := decodeHAR(buf)
	if err != nil {
		return nil, errs.Wrap(errs.CodeMalformedArchive, "archive is not valid HAR JSON", err)
	}
	if doc.Log.Entries == nil {
		return nil, errs.New(errs.CodeMalformedArchive, "archive has no top-level log.entries")
	}
	if len(doc.Log.Entries) == 0 {
		return nil, errs.New(errs.CodeEmptyArchive, "archive contains zero entries")
	}

	trace := &Trace{}
	for _, entry := range doc.Log.Entries {
		rec := entry.toRecord()
		if !keepRecord(rec, opts) {
			continue
		}
		trace.Records = append(trace.Records, rec)
	}

	trace.Descriptors = buildDescriptors(trace.Records)
	trace.Validation = grade(trace, len(doc.Log.Entries))

	if trace.Validation.Grade == QualityEmpty {
		return trace, errs.New(errs.CodeHARQualityInsufficient, "no relevant requests survived filtering").
			WithDiagnostics(trace.Validation.Issues, errs.Recommend(trace.Validation.Recommendations...))
	}
	if opts.MinimumQuality != "" && qualityRank[trace.Validation.Grade] < qualityRank[opts.MinimumQuality] {
		return trace, errs.New(errs.CodeHARQualityInsufficient, "trace quality below configured minimum").
			WithDiagnostics(trace.Validation.Issues, errs.Recommend(trace.Validation.Recommendations...))
	}

	return trace, nil
}

// keepRecord applies the filtering rules: drop
// static assets by default, drop exclude-keyword matches, but always
// keep JSON-like responses and non-GET requests regardless of extension.
func keepRecord(rec *Record, opts Options) bool {
	lowerURL := strings.ToLower(rec.URL)
	for _, kw := range opts.ExcludeKeywords {
		if kw != "" && strings.Contains(lowerURL, strings.ToLower(kw)) {
			return false
		}
	}

	isJSONResponse := rec.Response != nil && rec.Response.Body.IsJSONLike()
	isNonGET := !strings.EqualFold(rec.Method, "GET")
	if isJSONResponse || isNonGET {
		return true
	}

	if !opts.IncludeAllAPIRequests && hasStaticAssetExtension(pathOf(rec.URL)) {
		return false
	}
	return true
}

func pathOf(rawURL string) string {
	if i := strings.Index(rawURL, "://"); i >= 0 {
		rawURL = rawURL[i+3:]
	}
	if i := strings.IndexByte(rawURL, '/'); i >= 0 {
		rawURL = rawURL[i:]
	} else {
		return "/"
	}
	if i := strings.IndexAny(rawURL, "?#"); i >= 0 {
		rawURL = rawURL[:i]
	}
	return rawURL
}

func buildDescriptors(records []*Record) []URLDescriptor {
	out := make([]URLDescriptor, 0, len(records))
	for i, rec := range records {
		reqCT, _ := rec.Headers.Get("content-type")
		respCT := ""
		if rec.Response != nil {
			respCT = classifyResponseType(rec.Response.Body.MimeType)
		}
		out = append(out, URLDescriptor{
			Method:              rec.Method,
			URL:                 rec.URL,
			RequestContentType:  reqCT,
			ResponseContentType: respCT,
			Index:               i,
		})
	}
	return out
}
