// Copyright (C) 2025 harvest contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package llmclient implements the LLM Collaborator: four structured,
// tool-call-backed questions answered by whichever provider is
// configured, with every caller treating a failed or unconfigured
// collaborator as "fall back to the heuristic path".
//
// The schema shape (name/description/parameters per tool, with a
// forced tool choice) is expressed directly as langchaingo llms.Tool
// values for structured model answers. Rather than
// a separate HTTP client per provider, this package drives every
// provider through github.com/tmc/langchaingo's single llms.Model
// interface.
package llmclient

import (
	"time"

	"github.com/oscaromsn/harvest/internal/archive"
)

// Config selects and configures a provider-backed Client.
type Config struct {
	// Provider is "anthropic" or "openai". Empty means unconfigured:
	// New returns a no-provider-configured error and every caller is
	// expected to fall back to heuristics.
	Provider string
	APIKey   string
	Model    string
	Timeout  time.Duration
}

// Workflow is one entry of the discover-workflows answer schema.
type Workflow struct {
	ID                string             `json:"id"`
	Name              string             `json:"name"`
	Description       string             `json:"description"`
	Category          string             `json:"category"`
	Priority          int                `json:"priority"`
	Complexity        string             `json:"complexity"`
	RequiresUserInput bool               `json:"requires_user_input"`
	Endpoints         []WorkflowEndpoint `json:"endpoints"`
}

// WorkflowEndpoint is one request a discovered workflow is built from.
type WorkflowEndpoint struct {
	URL    string `json:"url"`
	Method string `json:"method"`
	Role   string `json:"role"` // "primary", "secondary", or "supporting"
}

// identifiedVariable is one entry of identify-input-variables' answer.
type identifiedVariable struct {
	VariableName  string `json:"variable_name"`
	VariableValue string `json:"variable_value"`
}

// requestSummary renders an archive.Record as the canonical curl-like
// textual form the identify-dynamic-parts and identify-input-variables
// calls take as input.
func requestSummary(rec *archive.Record) string {
	if rec == nil {
		return ""
	}
	var b []byte
	b = append(b, "curl -X "...)
	b = append(b, rec.Method...)
	b = append(b, " '"...)
	b = append(b, rec.URL...)
	b = append(b, '\'')
	if rec.Headers != nil {
		for _, h := range rec.Headers.Pairs() {
			b = append(b, " -H '"...)
			b = append(b, h.Name...)
			b = append(b, ": "...)
			b = append(b, h.Value...)
			b = append(b, '\'')
		}
	}
	if rec.Body != nil && rec.Body.Text != "" {
		b = append(b, " -d '"...)
		b = append(b, rec.Body.Text...)
		b = append(b, '\'')
	}
	return string(b)
}
