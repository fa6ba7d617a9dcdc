// Copyright (C) 2025 harvest contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package heuristics holds small, pure structural-signal checks shared by
// the Trace Parser's auth pre-scan and the Dependency
// Resolver's dynamic-part extraction.
package heuristics

import "unicode"

// wellKnownConstants are literal values that never count as dynamic,
//.
var wellKnownConstants = map[string]bool{
	"application/json":                  true,
	"application/x-www-form-urlencoded": true,
	"text/plain":                        true,
	"text/html":                         true,
	"multipart/form-data":               true,
	"gzip, deflate, br":                 true,
	"no-cache":                          true,
	"keep-alive":                        true,
}

// HasEntropySignal reports whether a literal value shows sufficient
// entropy or structural signal to be treated as a candidate dynamic
// part: length >= 6, mixed case/digits, or a JSON-ish token shape.
func HasEntropySignal(value string) bool {
	if len(value) < 6 {
		return false
	}
	if wellKnownConstants[value] {
		return false
	}
	if looksLikeUserAgent(value) {
		return false
	}

	var hasUpper, hasLower, hasDigit bool
	for _, r := range value {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	mixedCaseOrDigits := (hasUpper && hasLower) || hasDigit
	return mixedCaseOrDigits || looksLikeJSONToken(value)
}

func looksLikeUserAgent(value string) bool {
	return containsAny(value, "Mozilla/", "AppleWebKit", "Gecko/", "Chrome/", "Safari/")
}

func looksLikeJSONToken(value string) bool {
	if len(value) == 0 {
		return false
	}
	switch value[0] {
	case '{', '[', '"':
		return true
	}
	return false
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if contains(s, sub) {
			return true
		}
	}
	return false
}

func contains(s, sub string) bool {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return true
		}
	}
	return false
}
