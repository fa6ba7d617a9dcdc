// Copyright (C) 2025 harvest contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// authscan.go implements the authentication pre-scan: a cheap,
// parse-time signal pass distinct from the full
// Authentication Analyzer in internal/auth, which runs later over a
// completed Trace.
package archive

import (
	"regexp"
	"strings"

	"github.com/oscaromsn/harvest/internal/heuristics"
)

var tokenShapedParamPattern = regexp.MustCompile(`[A-Za-z0-9_-]{24,}`)

// hasTokenShapedParam reports whether any query parameter value looks
// like a bearer token or session id: long, and showing entropy signal.
func hasTokenShapedParam(rec *Record) bool {
	for _, vs := range rec.Query() {
		for _, v := range vs {
			if tokenShapedParamPattern.MatchString(v) && heuristics.HasEntropySignal(v) {
				return true
			}
		}
	}
	return false
}

// authScheme extracts the scheme token ("bearer", "basic", ...) from an
// Authorization header value.
func authScheme(authorizationHeader string) string {
	parts := strings.SplitN(authorizationHeader, " ", 2)
	if len(parts) == 0 {
		return ""
	}
	return strings.ToLower(parts[0])
}
