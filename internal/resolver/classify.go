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
	"github.com/oscaromsn/harvest/internal/dag"
)

// ClassifyParameter implements step 4: scan the
// rest of the trace for occurrences of value under the same inferred
// parameter name, and produce a classified parameter.
//
// A value with a demonstrable producer (another record's response body,
// earlier or later, or a snapshot cookie containing it verbatim) is classified dynamic ahead
// of the consistency-based constant checks, even when it is the only
// occurrence of its parameter name in a small trace — see DESIGN.md's
// resolution of this Open Question. Otherwise classification falls
// back to the consistency/occurrence thresholds
func ClassifyParameter(value string, rec *archive.Record, trace *archive.Trace, cookies archive.CookieSnapshot, known map[string]string) dag.ClassifiedParameter {
	name := inferParameterName(rec, value)

	distinctValues := map[string]bool{}
	occurrences := 0
	hasProducer := false

	for _, other := range trace.Records {
		if occursIn(other, value) {
			occurrences++
		}
		if v, ok := valueForName(other, name); ok {
			distinctValues[v] = true
		}
		if other != rec && other.Response != nil && other.Response.Body != nil && strings.Contains(other.Response.Body.Text, value) {
			hasProducer = true
		}
	}
	for _, cookie := range cookies {
		if cookie.Value != "" && strings.Contains(cookie.Value, value) {
			hasProducer = true
		}
	}
	if len(distinctValues) == 0 {
		distinctValues[value] = true
	}

	consistency := 1.0 / float64(len(distinctValues))

	p := dag.ClassifiedParameter{
		Name:             name,
		Value:            value,
		Source:           dag.SourceConsistencyAnalysis,
		OccurrenceCount:  occurrences,
		TotalScanned:     len(trace.Records),
		ConsistencyScore: consistency,
		Pattern:          patternOf(value),
	}

	switch {
	case hasProducer:
		p.Classification = dag.ClassDynamic
		p.Confidence = 0.9
	case consistency >= 0.95 && len(distinctValues) == 1:
		p.Classification = dag.ClassStaticConstant
		p.Confidence = 0.95
	case consistency >= 0.8 && occurrences >= 2:
		p.Classification = dag.ClassSessionConstant
		p.Confidence = 0.85
	case matchesUserInput(value, known):
		p.Classification = dag.ClassUserInput
		p.Confidence = 1.0
	default:
		p.Classification = dag.ClassOptional
		p.Confidence = 0.5
	}

	return p
}

func matchesUserInput(value string, known map[string]string) bool {
	for _, v := range known {
		if v == value {
			return true
		}
	}
	return false
}

func occursIn(rec *archive.Record, value string) bool {
	if strings.Contains(rec.URL, value) {
		return true
	}
	for _, h := range rec.Headers.Pairs() {
		if h.Value == value {
			return true
		}
	}
	if rec.Body != nil && strings.Contains(rec.Body.Text, value) {
		return true
	}
	return false
}

// inferParameterName re-derives where value was found in rec, for
// naming the classified parameter: a query key, a header name, the
// literal "path", or a JSON body key.
func inferParameterName(rec *archive.Record, value string) string {
	for name, values := range rec.Query() {
		for _, v := range values {
			if v == value {
				return name
			}
		}
	}
	for _, h := range rec.Headers.Pairs() {
		if h.Value == value {
			return h.Name
		}
	}
	if rec.Body != nil {
		if name, ok := jsonKeyFor(rec.Body.Structured, value); ok {
			return name
		}
	}
	if strings.Contains(rec.URL, value) {
		return "path"
	}
	return "unknown"
}

// valueForName returns the value rec carries under the given inferred
// parameter name (a query key, header name, or JSON body key), so the
// caller can build the set of distinct values a name takes across the
// trace. "path" and "unknown" are too ambiguous to compare across
// records and are skipped.
func valueForName(rec *archive.Record, name string) (string, bool) {
	switch name {
	case "path", "unknown", "":
		return "", false
	}
	if values := rec.Query()[name]; len(values) > 0 {
		return values[0], true
	}
	if v, ok := rec.Headers.Get(name); ok {
		return v, true
	}
	if rec.Body != nil {
		if v, ok := jsonValueFor(rec.Body.Structured, name); ok {
			return v, true
		}
	}
	return "", false
}

func jsonValueFor(v any, key string) (string, bool) {
	switch t := v.(type) {
	case map[string]any:
		if child, ok := t[key]; ok {
			if s, ok := child.(string); ok {
				return s, true
			}
		}
		for _, child := range t {
			if s, ok := jsonValueFor(child, key); ok {
				return s, true
			}
		}
	case []any:
		for _, child := range t {
			if s, ok := jsonValueFor(child, key); ok {
				return s, true
			}
		}
	}
	return "", false
}

func jsonKeyFor(v any, target string) (string, bool) {
	switch t := v.(type) {
	case map[string]any:
		for k, child := range t {
			if s, ok := child.(string); ok && s == target {
				return k, true
			}
			if name, ok := jsonKeyFor(child, target); ok {
				return name, true
			}
		}
	case []any:
		for _, child := range t {
			if name, ok := jsonKeyFor(child, target); ok {
				return name, true
			}
		}
	}
	return "", false
}

// patternOf produces a coarse shape signature for a value, used by the
// code emitter and bootstrap finder as a stable regex hint.
func patternOf(value string) string {
	var b strings.Builder
	for _, r := range value {
		switch {
		case r >= '0' && r <= '9':
			b.WriteByte('#')
		case r >= 'a' && r <= 'z':
			b.WriteByte('a')
		case r >= 'A' && r <= 'Z':
			b.WriteByte('A')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
