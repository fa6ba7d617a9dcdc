// Copyright (C) 2025 harvest contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package scorer ranks request records by relevance to a user prompt
// using lexical and structural heuristics
//
// Follows a weighted-composite-with-tie-break scoring idiom:
// several cheap subscores combined with fixed weights, ties broken
// deterministically rather than left to map iteration order.
package scorer

import (
	"regexp"
	"sort"
	"strings"

	"github.com/oscaromsn/harvest/internal/archive"
)

// Fixed subscore weights
const (
	weightKeyword    = 3.0
	weightAPIPattern = 2.0
	weightParamComplexity = 1.5
	weightMethod     = 1.0
	weightResponse   = 0.8
)

// Scored pairs a descriptor with its composite score, for callers that
// want the breakdown (e.g. the orchestrator's diagnostics).
type Scored struct {
	Descriptor archive.URLDescriptor
	Score      float64
}

var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "to": true, "of": true, "for": true,
	"my": true, "i": true, "want": true, "please": true, "on": true, "in": true,
	"with": true, "and": true, "is": true, "do": true, "me": true,
}

var actionVerbs = map[string]bool{
	"create": true, "submit": true, "update": true, "delete": true,
	"search": true, "login": true, "auth": true, "post": true, "add": true,
	"remove": true, "edit": true, "save": true, "send": true,
}

var apiPathPattern = regexp.MustCompile(`(?i)/api/|/v[1-9]/|\.json\b`)
var staticNoisePattern = regexp.MustCompile(`(?i)favicon|analytics|tracking`)
var uuidLikePattern = regexp.MustCompile(`(?i)[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}|\d{3,}`)

// Rank scores descriptors against prompt and returns them sorted by
// descending composite score. Deterministic: equal scores preserve
// input order (sort.SliceStable over the original Index).
func Rank(prompt string, descriptors []archive.URLDescriptor) []Scored {
	tokens := tokenize(prompt)
	promptHasActionVerb := false
	for _, t := range tokens {
		if actionVerbs[t] {
			promptHasActionVerb = true
			break
		}
	}

	out := make([]Scored, len(descriptors))
	for i, d := range descriptors {
		out[i] = Scored{Descriptor: d, Score: composite(tokens, promptHasActionVerb, d)}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out
}

func composite(tokens []string, promptHasActionVerb bool, d archive.URLDescriptor) float64 {
	return weightKeyword*keywordRelevance(tokens, d.URL) +
		weightAPIPattern*apiPatternScore(d.URL) +
		weightParamComplexity*paramComplexity(d.URL) +
		weightMethod*methodScore(d.Method, promptHasActionVerb) +
		weightResponse*responseTypeScore(d.ResponseContentType)
}

func tokenize(prompt string) []string {
	fields := strings.FieldsFunc(strings.ToLower(prompt), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f != "" && !stopwords[f] {
			out = append(out, f)
		}
	}
	return out
}

// keywordRelevance is the proportion of non-stopword prompt tokens that
// occur as substrings of the URL path segments, case-insensitive.
func keywordRelevance(tokens []string, rawURL string) float64 {
	if len(tokens) == 0 {
		return 0
	}
	lowerPath := strings.ToLower(rawURL)
	if i := strings.IndexByte(lowerPath, '?'); i >= 0 {
		lowerPath = lowerPath[:i]
	}
	if i := strings.Index(lowerPath, "://"); i >= 0 {
		lowerPath = lowerPath[i+3:]
		if j := strings.IndexByte(lowerPath, '/'); j >= 0 {
			lowerPath = lowerPath[j:]
		} else {
			lowerPath = ""
		}
	}
	matches := 0
	for _, t := range tokens {
		if strings.Contains(lowerPath, t) {
			matches++
		}
	}
	return float64(matches) / float64(len(tokens))
}

func apiPatternScore(rawURL string) float64 {
	score := 0.0
	if apiPathPattern.MatchString(rawURL) {
		score += 1.0
	}
	if staticNoisePattern.MatchString(rawURL) {
		score -= 1.0
	}
	lower := strings.ToLower(rawURL)
	for _, ext := range []string{".css", ".png", ".jpg", ".ico", ".woff"} {
		if strings.HasSuffix(lower, ext) {
			score -= 1.0
		}
	}
	return score
}

func paramComplexity(rawURL string) float64 {
	count := 0.0
	if i := strings.IndexByte(rawURL, '?'); i >= 0 {
		query := rawURL[i+1:]
		if query != "" {
			count += float64(len(strings.Split(query, "&")))
		}
		rawURL = rawURL[:i]
	}
	for _, seg := range strings.Split(rawURL, "/") {
		if uuidLikePattern.MatchString(seg) {
			count++
		}
	}
	return count
}

func methodScore(method string, promptHasActionVerb bool) float64 {
	m := strings.ToUpper(method)
	isMutation := m == "POST" || m == "PUT" || m == "PATCH" || m == "DELETE"
	switch {
	case isMutation && promptHasActionVerb:
		return 1.0
	case isMutation:
		return 0.2
	default:
		return 0.0
	}
}

func responseTypeScore(contentType string) float64 {
	switch contentType {
	case "json":
		return 1.0
	case "html":
		return 0.6
	case "text":
		return 0.4
	case "binary":
		return 0.1
	default:
		return 0.0
	}
}
