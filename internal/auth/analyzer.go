// Copyright (C) 2025 harvest contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package auth

import (
	"log/slog"
	"strings"

	"github.com/oscaromsn/harvest/internal/archive"
	"github.com/oscaromsn/harvest/internal/heuristics"
)

var bearerTokenPattern = "bearer"

// loginKeywords / refreshKeywords / logoutKeywords drive the purpose
// tagging of candidate auth endpoints by URL path substring.
var loginKeywords = []string{"login", "signin", "sign-in", "authenticate", "token"}
var refreshKeywords = []string{"refresh"}
var logoutKeywords = []string{"logout", "signout", "sign-out", "revoke"}
var validateKeywords = []string{"validate", "verify", "session", "me", "whoami"}

// Analyze classifies the authentication surface of a parsed trace,
// log receives one debug entry per request with
// a detected auth signal, following an audited-classification idiom:
// every classification decision gets a matching log line.
func Analyze(trace *archive.Trace, log *slog.Logger) Analysis {
	if log == nil {
		log = slog.Default()
	}

	var a Analysis
	observedSet := map[AuthType]bool{}
	tokensByName := map[string]*TokenLifecycle{}

	for i, rec := range trace.Records {
		info := RequestAuthInfo{RecordIndex: i}
		tokens := extractTokens(rec)

		for _, t := range tokens {
			a.Tokens = append(a.Tokens, t)
			observedSet[t.Type] = true
			info.ObservedTypes = append(info.ObservedTypes, t.Type)
			lifecycle := tokensByName[t.Name]
			if lifecycle == nil {
				lifecycle = &TokenLifecycle{Name: t.Name, FirstSeenAt: i}
				tokensByName[t.Name] = lifecycle
			}
			lifecycle.AppearsInBody = lifecycle.AppearsInBody || t.Location == LocationBody
		}

		if len(tokens) > 0 {
			info.Authenticated = true
			info.PrimaryType = tokens[0].Type
			log.Debug("auth signal detected", "index", i, "url", rec.URL, "type", tokens[0].Type)
		}
		if rec.Response != nil && (rec.Response.Status == 401 || rec.Response.Status == 403) {
			info.Failure = true
			a.SecurityIssues = append(a.SecurityIssues, endpointIssue(rec))
		}
		if purpose, ok := classifyEndpointPurpose(rec.URL); ok {
			a.AuthEndpoints = append(a.AuthEndpoints, AuthEndpoint{RecordIndex: i, URL: rec.URL, Purpose: purpose})
		}

		a.PerRequest = append(a.PerRequest, info)
	}

	distinctValues := map[string]map[string]bool{}
	for _, t := range a.Tokens {
		if distinctValues[t.Name] == nil {
			distinctValues[t.Name] = map[string]bool{}
		}
		distinctValues[t.Name][t.Value] = true
	}
	for name, lifecycle := range tokensByName {
		lifecycle.DistinctValues = len(distinctValues[name])
		lifecycle.Refreshed = lifecycle.DistinctValues > 1
		a.TokenLifecycles = append(a.TokenLifecycles, *lifecycle)
	}

	a.HasAuth = len(a.Tokens) > 0
	for t := range observedSet {
		a.ObservedAuthTypes = append(a.ObservedAuthTypes, t)
	}
	a.PrimaryAuthType = primaryType(observedSet)
	a.FlowComplexity = flowComplexity(observedSet, a.TokenLifecycles, a.AuthEndpoints)
	a.Recommendations = recommendations(a)
	a.CodeGenerationReady = len(a.SecurityIssues) == 0 || a.HasAuth

	return a
}

// extractTokens scans a single request's headers, cookies, and URL for
// credential-shaped values, tagging each with its auth type and location.
func extractTokens(rec *archive.Record) []Token {
	var out []Token

	if authz, ok := rec.Headers.Get("authorization"); ok && authz != "" {
		scheme, value := splitAuthHeader(authz)
		switch strings.ToLower(scheme) {
		case bearerTokenPattern:
			out = append(out, Token{Type: TypeBearerToken, Location: LocationHeader, Name: "Authorization", Value: value})
		case "basic":
			out = append(out, Token{Type: TypeBasicAuth, Location: LocationHeader, Name: "Authorization", Value: value})
		default:
			out = append(out, Token{Type: TypeOAuth, Location: LocationHeader, Name: "Authorization", Value: value})
		}
	}

	for _, h := range rec.Headers.Pairs() {
		lower := strings.ToLower(h.Name)
		if lower == "authorization" {
			continue
		}
		if strings.Contains(lower, "api-key") || strings.Contains(lower, "apikey") || lower == "x-api-key" {
			out = append(out, Token{Type: TypeAPIKey, Location: LocationHeader, Name: h.Name, Value: h.Value})
		} else if strings.HasPrefix(lower, "x-") && heuristics.HasEntropySignal(h.Value) {
			out = append(out, Token{Type: TypeCustomHeader, Location: LocationHeader, Name: h.Name, Value: h.Value})
		}
	}

	if cookieHeader, ok := rec.Headers.Get("cookie"); ok {
		for name, value := range parseCookieHeader(cookieHeader) {
			if heuristics.HasEntropySignal(value) {
				out = append(out, Token{Type: TypeSessionCookie, Location: LocationCookie, Name: name, Value: value})
			}
		}
	}

	for name, values := range rec.Query() {
		lower := strings.ToLower(name)
		if lower == "token" || lower == "access_token" || lower == "api_key" || lower == "apikey" {
			for _, v := range values {
				out = append(out, Token{Type: TypeURLParameter, Location: LocationURL, Name: name, Value: v})
			}
		}
	}

	return out
}

func splitAuthHeader(value string) (scheme, token string) {
	parts := strings.SplitN(value, " ", 2)
	if len(parts) != 2 {
		return value, ""
	}
	return parts[0], parts[1]
}

func parseCookieHeader(header string) map[string]string {
	out := map[string]string{}
	for _, pair := range strings.Split(header, ";") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			continue
		}
		out[strings.TrimSpace(kv[0])] = strings.TrimSpace(kv[1])
	}
	return out
}

func classifyEndpointPurpose(rawURL string) (EndpointPurpose, bool) {
	lower := strings.ToLower(rawURL)
	switch {
	case containsAny(lower, logoutKeywords):
		return PurposeLogout, true
	case containsAny(lower, refreshKeywords):
		return PurposeRefresh, true
	case containsAny(lower, loginKeywords):
		return PurposeLogin, true
	case containsAny(lower, validateKeywords):
		return PurposeValidate, true
	default:
		return "", false
	}
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func primaryType(observed map[AuthType]bool) AuthType {
	// Preference order (bearer, oauth, api-key, basic, session-cookie,
	// custom, url) differs from the AuthType declaration order: a
	// token-bearing scheme always outranks a weaker fallback when several
	// are present.
	preference := []AuthType{
		TypeBearerToken, TypeOAuth, TypeAPIKey, TypeBasicAuth,
		TypeSessionCookie, TypeCustomHeader, TypeURLParameter,
	}
	for _, t := range preference {
		if observed[t] {
			return t
		}
	}
	return TypeNone
}

func flowComplexity(observed map[AuthType]bool, lifecycles []TokenLifecycle, endpoints []AuthEndpoint) FlowComplexity {
	hasRefresh := false
	for _, l := range lifecycles {
		if l.Refreshed {
			hasRefresh = true
			break
		}
	}
	for _, e := range endpoints {
		if e.Purpose == PurposeRefresh {
			hasRefresh = true
		}
	}

	switch {
	case len(observed) == 0:
		return FlowSimple
	case len(observed) == 1 && !hasRefresh:
		return FlowSimple
	case len(observed) == 1 && hasRefresh:
		return FlowModerate
	default:
		return FlowComplex
	}
}

func recommendations(a Analysis) []string {
	var out []string
	if !a.HasAuth {
		out = append(out, "no authentication signal detected; verify the recorded trace covers an authenticated session if one is expected")
		return out
	}
	for _, info := range a.PerRequest {
		if info.Failure {
			out = append(out, "re-record with valid, non-expired credentials to eliminate 401/403 responses")
			break
		}
	}
	if a.FlowComplexity == FlowComplex {
		out = append(out, "multiple auth mechanisms observed; confirm which one the generated script should drive")
	}
	return out
}

func endpointIssue(rec *archive.Record) string {
	return "authentication failure observed at " + rec.URL
}
