// Copyright (C) 2025 harvest contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package resolver

import (
	"strings"

	"github.com/oscaromsn/harvest/internal/archive"
	"github.com/oscaromsn/harvest/internal/heuristics"
)

// ExtractDynamicParts implements step 3: collect
// every literal substring of rec's URL, headers, and body that is not
// already a known input-variable value, is not a well-known constant,
// and shows sufficient entropy or structural signal.
func ExtractDynamicParts(rec *archive.Record, known map[string]string) []string {
	seen := map[string]bool{}
	var out []string

	consider := func(candidate string) {
		if candidate == "" || seen[candidate] {
			return
		}
		if isKnownValue(candidate, known) {
			return
		}
		if !heuristics.HasEntropySignal(candidate) {
			return
		}
		seen[candidate] = true
		out = append(out, candidate)
	}

	for _, seg := range pathSegments(rec.URL) {
		consider(seg)
	}
	for _, values := range rec.Query() {
		for _, v := range values {
			consider(v)
		}
	}
	for _, h := range rec.Headers.Pairs() {
		if strings.EqualFold(h.Name, "user-agent") {
			continue
		}
		consider(h.Value)
	}
	if rec.Body != nil {
		for _, v := range leafStrings(rec.Body.Structured) {
			consider(v)
		}
		if rec.Body.Structured == nil {
			consider(rec.Body.Text)
		}
	}

	return out
}

func isKnownValue(candidate string, known map[string]string) bool {
	for _, v := range known {
		if v == candidate {
			return true
		}
	}
	return false
}

func pathSegments(rawURL string) []string {
	path := rawURL
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if i := strings.Index(path, "://"); i >= 0 {
		path = path[i+3:]
		if j := strings.IndexByte(path, '/'); j >= 0 {
			path = path[j:]
		} else {
			path = ""
		}
	}
	return strings.Split(strings.Trim(path, "/"), "/")
}

// leafStrings walks a decoded JSON value and collects every string leaf.
func leafStrings(v any) []string {
	var out []string
	var walk func(any)
	walk = func(v any) {
		switch t := v.(type) {
		case string:
			out = append(out, t)
		case map[string]any:
			for _, child := range t {
				walk(child)
			}
		case []any:
			for _, child := range t {
				walk(child)
			}
		}
	}
	walk(v)
	return out
}
