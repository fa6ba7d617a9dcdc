// Copyright (C) 2025 harvest contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package bootstrap implements the Bootstrap Finder: for a dynamic
// part that the Dependency Resolver could not find a producer for in
// the trace itself, locate it in the page the
// session started from — the first HTML response, the cookie
// snapshot, or a request the Authentication Analyzer flagged as part
// of the login flow.
//
// Tries a cheap heuristic first, and only escalates to an LLM
// confirmation pass when one is configured, logging a diff whenever
// the two disagree.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/oscaromsn/harvest/internal/archive"
	"github.com/oscaromsn/harvest/internal/auth"
	"github.com/oscaromsn/harvest/internal/dag"
)

// Confirmer optionally refines a heuristic bootstrap guess. Implemented
// by internal/llmclient; Finder works without one.
type Confirmer interface {
	ConfirmBootstrapSource(ctx context.Context, part string, guess *dag.BootstrapSource) (*dag.BootstrapSource, error)
}

// Finder resolves still-unresolved literals to a BootstrapSource, per
// the three-source scan order
type Finder struct {
	Trace   *archive.Trace
	Cookies archive.CookieSnapshot
	Auth    *auth.Analysis

	Confirmer Confirmer
	Timeout   time.Duration
	Logger    *slog.Logger
}

// New constructs a Finder. confirmer may be nil.
func New(trace *archive.Trace, cookies archive.CookieSnapshot, a *auth.Analysis, confirmer Confirmer, logger *slog.Logger) *Finder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Finder{
		Trace:     trace,
		Cookies:   cookies,
		Auth:      a,
		Confirmer: confirmer,
		Timeout:   2 * time.Second,
		Logger:    logger,
	}
}

// Lookup implements the resolver.BootstrapLookup signature: scan the
// three source kinds in order and return the first match, optionally
// refined by an LLM confirmation pass.
func (f *Finder) Lookup(part string) (*dag.BootstrapSource, bool) {
	guess, ok := f.heuristicLookup(part)
	if !ok {
		return nil, false
	}

	if f.Confirmer == nil {
		return guess, true
	}

	ctx := context.Background()
	if f.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.Timeout)
		defer cancel()
	}

	confirmed, err := f.Confirmer.ConfirmBootstrapSource(ctx, part, guess)
	if err != nil {
		f.Logger.Warn("bootstrap LLM confirmation failed, using heuristic guess",
			"part", part, "error", err)
		return guess, true
	}
	f.logDiff(part, guess, confirmed)
	return confirmed, true
}

func (f *Finder) heuristicLookup(part string) (*dag.BootstrapSource, bool) {
	if src, ok := f.fromInitialPageHTML(part); ok {
		return src, true
	}
	if src, ok := f.fromInitialPageCookie(part); ok {
		return src, true
	}
	if src, ok := f.fromDedicatedAuthRequest(part); ok {
		return src, true
	}
	return nil, false
}

// fromInitialPageHTML scans the first HTML response body in the trace
// for a literal occurrence of part, producing a regex anchored on the
// surrounding markup as the extraction pattern.
func (f *Finder) fromInitialPageHTML(part string) (*dag.BootstrapSource, bool) {
	rec := firstHTMLRecord(f.Trace)
	if rec == nil || rec.Response == nil || rec.Response.Body == nil {
		return nil, false
	}
	body := rec.Response.Body.Text
	idx := strings.Index(body, part)
	if idx < 0 {
		return nil, false
	}
	return &dag.BootstrapSource{
		Type:    dag.BootstrapInitialPageHTML,
		URL:     rec.URL,
		Pattern: surroundingMarkupPattern(body, idx, len(part)),
	}, true
}

// fromInitialPageCookie scans the cookie snapshot for a value that
// equals or contains part.
func (f *Finder) fromInitialPageCookie(part string) (*dag.BootstrapSource, bool) {
	for name, cookie := range f.Cookies {
		if cookie.Value == "" {
			continue
		}
		if cookie.Value == part || strings.Contains(cookie.Value, part) {
			return &dag.BootstrapSource{
				Type:       dag.BootstrapInitialPageCookie,
				CookieName: name,
			}, true
		}
	}
	return nil, false
}

// fromDedicatedAuthRequest scans every request the Authentication
// Analyzer flagged as part of the auth flow for a response body that
// contains part, recording the JSON path to the match.
func (f *Finder) fromDedicatedAuthRequest(part string) (*dag.BootstrapSource, bool) {
	if f.Auth == nil {
		return nil, false
	}
	for _, ep := range f.Auth.AuthEndpoints {
		if ep.RecordIndex < 0 || ep.RecordIndex >= len(f.Trace.Records) {
			continue
		}
		rec := f.Trace.Records[ep.RecordIndex]
		if rec.Response == nil || rec.Response.Body == nil {
			continue
		}
		if path, ok := jsonPathFor(rec.Response.Body.Structured, part, ""); ok {
			return &dag.BootstrapSource{
				Type:     dag.BootstrapDedicatedAuth,
				URL:      rec.URL,
				JSONPath: path,
			}, true
		}
		if strings.Contains(rec.Response.Body.Text, part) {
			return &dag.BootstrapSource{
				Type: dag.BootstrapDedicatedAuth,
				URL:  rec.URL,
			}, true
		}
	}
	return nil, false
}

func (f *Finder) logDiff(part string, heuristic, confirmed *dag.BootstrapSource) {
	if confirmed == nil {
		return
	}
	if heuristic.Type != confirmed.Type || heuristic.Pattern != confirmed.Pattern ||
		heuristic.CookieName != confirmed.CookieName || heuristic.JSONPath != confirmed.JSONPath ||
		heuristic.URL != confirmed.URL {
		f.Logger.Info("bootstrap LLM corrected heuristic guess",
			"part", part,
			"heuristic_type", heuristic.Type, "llm_type", confirmed.Type,
			"heuristic_pattern", heuristic.Pattern, "llm_pattern", confirmed.Pattern,
		)
	}
}

func firstHTMLRecord(trace *archive.Trace) *archive.Record {
	if trace == nil {
		return nil
	}
	for _, rec := range trace.Records {
		if rec.Response == nil || rec.Response.Body == nil {
			continue
		}
		if archive.ClassifyResponseType(rec.Response.Body.MimeType) == "html" {
			return rec
		}
	}
	return nil
}

// surroundingMarkupPattern builds a regex hint anchored on a short
// window of markup before and after the match, escaped so it is safe
// to compile verbatim.
func surroundingMarkupPattern(body string, idx, length int) string {
	const window = 24
	start := idx - window
	if start < 0 {
		start = 0
	}
	end := idx + length + window
	if end > len(body) {
		end = len(body)
	}
	before := regexp.QuoteMeta(strings.TrimSpace(body[start:idx]))
	after := regexp.QuoteMeta(strings.TrimSpace(body[idx+length : end]))
	return fmt.Sprintf("%s(.+?)%s", before, after)
}

// jsonPathFor walks a decoded JSON value looking for a string leaf
// equal to target, returning a dotted path to it.
func jsonPathFor(v any, target, path string) (string, bool) {
	switch t := v.(type) {
	case map[string]any:
		for k, child := range t {
			childPath := k
			if path != "" {
				childPath = path + "." + k
			}
			if s, ok := child.(string); ok && s == target {
				return childPath, true
			}
			if p, ok := jsonPathFor(child, target, childPath); ok {
				return p, true
			}
		}
	case []any:
		for i, child := range t {
			childPath := fmt.Sprintf("%s[%d]", path, i)
			if p, ok := jsonPathFor(child, target, childPath); ok {
				return p, true
			}
		}
	}
	return "", false
}
