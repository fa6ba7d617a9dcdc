// Copyright (C) 2025 harvest contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package archive

import (
	"fmt"
	"regexp"
	"strings"
)

var apiLikePattern = regexp.MustCompile(`(?i)/api/|/v[1-9]/|\.json\b`)

func isAPILike(rawURL string) bool {
	return apiLikePattern.MatchString(rawURL)
}

// grade computes Stats, AuthSummary, and the overall Quality verdict for
// a parsed (already-filtered) Trace grading
// table. originalEntryCount is the raw entry count before filtering.
func grade(t *Trace, originalEntryCount int) Validation {
	var stats Stats
	var auth AuthSummary
	schemeSet := map[string]bool{}

	stats.TotalEntries = originalEntryCount
	stats.RelevantEntries = len(t.Records)

	for _, rec := range t.Records {
		if isAPILike(rec.URL) {
			stats.APILikeRequests++
		}
		if !strings.EqualFold(rec.Method, "GET") {
			stats.NonGETRequests++
		}
		if rec.Response != nil && rec.Response.Body != nil && rec.Response.Body.Text != "" {
			stats.ResponsesWithBody++
		}

		if authz, ok := rec.Headers.Get("authorization"); ok && authz != "" {
			stats.AuthBearingReqs++
			auth.HasAuthorizationHeader = true
			scheme := authScheme(authz)
			if scheme != "" && !schemeSet[scheme] {
				schemeSet[scheme] = true
				auth.ObservedSchemes = append(auth.ObservedSchemes, scheme)
			}
		}
		if _, ok := rec.Headers.Get("cookie"); ok {
			auth.SendsCookies = true
		}
		if hasTokenShapedParam(rec) {
			stats.TokenBearingReqs++
			auth.HasTokenShapedParam = true
		}
		if rec.Response != nil && (rec.Response.Status == 401 || rec.Response.Status == 403) {
			stats.AuthErrors++
			auth.HasAuthError = true
		}
	}

	v := Validation{Stats: stats, Auth: auth}
	v.Grade = gradeFromStats(stats)
	v.Issues, v.Recommendations = diagnose(stats, v.Grade)
	return v
}

func gradeFromStats(s Stats) Quality {
	switch {
	case s.RelevantEntries == 0:
		return QualityEmpty
	case s.RelevantEntries < 5 || (s.APILikeRequests == 0 && s.NonGETRequests == 0):
		return QualityPoor
	case s.RelevantEntries >= 20 && s.APILikeRequests >= 5 && s.AuthErrors == 0:
		return QualityExcellent
	default:
		return QualityGood
	}
}

func diagnose(s Stats, grade Quality) ([]string, []string) {
	var issues, recs []string

	if s.RelevantEntries == 0 {
		issues = append(issues, "no requests survived filtering")
		recs = append(recs, "re-record the trace with include-all-api-requests enabled, or relax exclude keywords")
		return issues, recs
	}
	if s.RelevantEntries < 5 {
		issues = append(issues, fmt.Sprintf("only %d relevant requests found, fewer than the minimum of 5", s.RelevantEntries))
		recs = append(recs, "capture a longer session covering the full user action")
	}
	if s.APILikeRequests == 0 && s.NonGETRequests == 0 {
		issues = append(issues, "no API-like or non-GET requests found")
		recs = append(recs, "verify the recorded action actually issues a backend call")
	}
	if s.AuthErrors > 0 {
		issues = append(issues, fmt.Sprintf("%d requests returned 401/403", s.AuthErrors))
		recs = append(recs, "re-record with valid credentials so the action succeeds end to end")
	}
	if grade == QualityGood && len(issues) == 0 {
		issues = append(issues, "trace is usable but below the bar for excellent (needs 20+ relevant, 5+ api-like, zero auth errors)")
	}
	return issues, recs
}

