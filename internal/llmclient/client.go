// Copyright (C) 2025 harvest contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llmclient

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/oscaromsn/harvest/internal/archive"
	"github.com/oscaromsn/harvest/internal/dag"
	"github.com/oscaromsn/harvest/internal/errs"
	"github.com/oscaromsn/harvest/internal/scorer"
)

// Client answers the four structured calls over a
// single langchaingo llms.Model, and implements every interface the
// rest of the codebase defines for an LLM collaborator:
// resolver.Collaborator, bootstrap.Confirmer, orchestrator.MasterSelector.
type Client struct {
	model    llms.Model
	provider string
	logger   *slog.Logger
}

// New constructs a Client for the configured provider. An empty
// Provider is a deliberate no-op configuration: it returns
// no-provider-configured so callers can treat "no collaborator" the
// same way whether New was never called or was called with a blank
// Config.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Provider == "" || cfg.APIKey == "" {
		return nil, errs.New(errs.CodeNoProviderConfigured, "no LLM provider configured; resolver and master selection will use heuristics only")
	}

	var model llms.Model
	var err error
	switch strings.ToLower(cfg.Provider) {
	case "anthropic":
		opts := []anthropic.Option{anthropic.WithToken(cfg.APIKey)}
		if cfg.Model != "" {
			opts = append(opts, anthropic.WithModel(cfg.Model))
		}
		model, err = anthropic.New(opts...)
	case "openai":
		opts := []openai.Option{openai.WithToken(cfg.APIKey)}
		if cfg.Model != "" {
			opts = append(opts, openai.WithModel(cfg.Model))
		}
		model, err = openai.New(opts...)
	default:
		return nil, errs.New(errs.CodeNoProviderConfigured, fmt.Sprintf("unknown LLM provider %q", cfg.Provider))
	}
	if err != nil {
		return nil, errs.Wrap(errs.CodeNoProviderConfigured, "constructing LLM provider client failed", err)
	}

	return &Client{model: model, provider: cfg.Provider, logger: logger}, nil
}

// callStructured asks the model a single question and forces its
// answer through one tool call matching schema, unified across
// providers by langchaingo's llms.Tool/llms.ToolCall.
func (c *Client) callStructured(ctx context.Context, system, user, toolName, toolDescription string, schema map[string]any, out any) error {
	tool := llms.Tool{
		Type: "function",
		Function: &llms.FunctionDefinition{
			Name:        toolName,
			Description: toolDescription,
			Parameters:  schema,
		},
	}

	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, system),
		llms.TextParts(llms.ChatMessageTypeHuman, user),
	}

	resp, err := c.model.GenerateContent(ctx, messages,
		llms.WithTools([]llms.Tool{tool}),
		llms.WithToolChoice(toolName),
	)
	if err != nil {
		return fmt.Errorf("llmclient: %s: generate content: %w", toolName, err)
	}
	if len(resp.Choices) == 0 || len(resp.Choices[0].ToolCalls) == 0 {
		return fmt.Errorf("llmclient: %s: model returned no tool call", toolName)
	}

	call := resp.Choices[0].ToolCalls[0]
	if call.FunctionCall == nil {
		return fmt.Errorf("llmclient: %s: tool call carried no function payload", toolName)
	}

	if err := json.Unmarshal([]byte(call.FunctionCall.Arguments), out); err != nil {
		return fmt.Errorf("llmclient: %s: unmarshaling tool arguments: %w", toolName, err)
	}
	return nil
}

// SelectMasterURL implements orchestrator.MasterSelector: pick the
// master request from the URL Scorer's ranked candidates.
func (c *Client) SelectMasterURL(ctx context.Context, prompt string, ranked []scorer.Scored) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "User intent: %s\n\nCandidate requests, highest-scored first:\n", prompt)
	for i, r := range ranked {
		if i >= 20 {
			break
		}
		fmt.Fprintf(&b, "%d. [score %.2f] %s %s\n", i+1, r.Score, r.Descriptor.Method, r.Descriptor.URL)
	}

	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{"type": "string", "description": "the selected candidate's exact URL"},
		},
		"required": []string{"url"},
	}

	var out struct {
		URL string `json:"url"`
	}
	system := "You select which single recorded HTTP request best matches a user's described action. Answer only via the select_master_url tool."
	if err := c.callStructured(ctx, system, b.String(), "select_master_url", "Selects the master request URL for the user's action.", schema, &out); err != nil {
		return "", err
	}
	if out.URL == "" {
		return "", fmt.Errorf("llmclient: identify-url: model returned an empty url")
	}
	return out.URL, nil
}

// IdentifyDynamicParts implements resolver.Collaborator. On any failure it logs a
// warning and returns ok=false so the resolver falls back to
// ExtractDynamicParts degrade-to-heuristic policy.
func (c *Client) IdentifyDynamicParts(ctx context.Context, rec *archive.Record, known map[string]string) ([]string, bool) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"dynamic_parts": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string"},
				"description": "literal substrings of the request that look session- or response-derived",
			},
		},
		"required": []string{"dynamic_parts"},
	}

	var out struct {
		DynamicParts []string `json:"dynamic_parts"`
	}
	system := "You scan one recorded HTTP request and list the literal value substrings (tokens, ids, timestamps) that look like they came from a prior response or session state rather than being hand-typed. Answer only via the list_dynamic_parts tool."
	user := fmt.Sprintf("Request:\n%s\n\nKnown input variables (never list these as dynamic): %v", requestSummary(rec), known)

	if err := c.callStructured(ctx, system, user, "list_dynamic_parts", "Lists the request's dynamic value substrings.", schema, &out); err != nil {
		c.logger.Warn("llmclient identify-dynamic-parts failed, falling back to heuristics", "error", err)
		return nil, false
	}
	return out.DynamicParts, true
}

// IdentifyInputVariables implements resolver.Collaborator.
func (c *Client) IdentifyInputVariables(ctx context.Context, rec *archive.Record, userVars map[string]string, dynamicParts []string) (map[string]string, []string, bool) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"identified_variables": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"variable_name":  map[string]any{"type": "string"},
						"variable_value": map[string]any{"type": "string"},
					},
					"required": []string{"variable_name", "variable_value"},
				},
			},
		},
		"required": []string{"identified_variables"},
	}

	var out struct {
		IdentifiedVariables []identifiedVariable `json:"identified_variables"`
	}
	system := "You match a request's dynamic value substrings against a table of user-supplied input variables. Answer only via the match_input_variables tool, one entry per dynamic part that corresponds to a known variable."
	user := fmt.Sprintf("Request:\n%s\n\nUser-supplied variables: %v\n\nCurrent dynamic parts: %v", requestSummary(rec), userVars, dynamicParts)

	if err := c.callStructured(ctx, system, user, "match_input_variables", "Matches dynamic parts to user-supplied input variables.", schema, &out); err != nil {
		c.logger.Warn("llmclient identify-input-variables failed, falling back to heuristics", "error", err)
		return nil, nil, false
	}

	identified := make(map[string]string, len(out.IdentifiedVariables))
	var removed []string
	for _, v := range out.IdentifiedVariables {
		identified[v.VariableName] = v.VariableValue
		removed = append(removed, v.VariableValue)
	}
	return identified, removed, true
}

// DiscoverWorkflows implements discover-workflows call. Nothing in this
// repository calls it: the Resource Surface has no workflow-discovery
// endpoint, and the one-shot Workflow Orchestrator only ever needs a
// single selected master URL.
func (c *Client) DiscoverWorkflows(ctx context.Context, trace *archive.Trace, prompt string) ([]Workflow, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "User intent: %s\n\nRecorded requests:\n", prompt)
	for i, d := range trace.Descriptors {
		if i >= 50 {
			break
		}
		fmt.Fprintf(&b, "- %s %s\n", d.Method, d.URL)
	}

	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"workflows": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"id":                  map[string]any{"type": "string"},
						"name":                map[string]any{"type": "string"},
						"description":         map[string]any{"type": "string"},
						"category":            map[string]any{"type": "string"},
						"priority":            map[string]any{"type": "integer"},
						"complexity":          map[string]any{"type": "string"},
						"requires_user_input": map[string]any{"type": "boolean"},
						"endpoints": map[string]any{
							"type": "array",
							"items": map[string]any{
								"type": "object",
								"properties": map[string]any{
									"url":    map[string]any{"type": "string"},
									"method": map[string]any{"type": "string"},
									"role":   map[string]any{"type": "string", "enum": []string{"primary", "secondary", "supporting"}},
								},
							},
						},
					},
					"required": []string{"id", "name", "endpoints"},
				},
			},
		},
		"required": []string{"workflows"},
	}

	var out struct {
		Workflows []Workflow `json:"workflows"`
	}
	system := "You group a trace's recorded requests into the distinct end-user workflows they implement. Answer only via the discover_workflows tool."
	if err := c.callStructured(ctx, system, b.String(), "discover_workflows", "Lists the distinct workflows present in the trace.", schema, &out); err != nil {
		return nil, err
	}
	return out.Workflows, nil
}

// ConfirmBootstrapSource implements bootstrap.Confirmer: given the
// Bootstrap Finder's best guess at where a session constant came from,
// ask the model to confirm or refine it.
func (c *Client) ConfirmBootstrapSource(ctx context.Context, part string, guess *dag.BootstrapSource) (*dag.BootstrapSource, error) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"confirmed":   map[string]any{"type": "boolean"},
			"type":        map[string]any{"type": "string", "enum": []string{string(dag.BootstrapInitialPageHTML), string(dag.BootstrapInitialPageCookie), string(dag.BootstrapDedicatedAuth)}},
			"url":         map[string]any{"type": "string"},
			"pattern":     map[string]any{"type": "string"},
			"cookie_name": map[string]any{"type": "string"},
			"json_path":   map[string]any{"type": "string"},
		},
		"required": []string{"confirmed"},
	}

	var out struct {
		Confirmed  bool   `json:"confirmed"`
		Type       string `json:"type"`
		URL        string `json:"url"`
		Pattern    string `json:"pattern"`
		CookieName string `json:"cookie_name"`
		JSONPath   string `json:"json_path"`
	}

	var guessDesc string
	if guess != nil {
		guessDesc = fmt.Sprintf("type=%s url=%s pattern=%q cookie=%s json_path=%s", guess.Type, guess.URL, guess.Pattern, guess.CookieName, guess.JSONPath)
	} else {
		guessDesc = "none"
	}

	system := "You confirm or refine a heuristic guess about where a session-constant value (like a CSRF token) originates, from the initial page's HTML, a cookie, or a dedicated auth request. Answer only via the confirm_bootstrap_source tool."
	user := fmt.Sprintf("Value needing a source: %q\nHeuristic guess: %s", part, guessDesc)

	if err := c.callStructured(ctx, system, user, "confirm_bootstrap_source", "Confirms or refines the bootstrap source guess.", schema, &out); err != nil {
		return nil, err
	}
	if !out.Confirmed {
		return nil, fmt.Errorf("llmclient: confirm-bootstrap-source: model declined to confirm the heuristic guess for %q", part)
	}
	return &dag.BootstrapSource{
		Type:       dag.BootstrapSourceType(out.Type),
		URL:        out.URL,
		Pattern:    out.Pattern,
		CookieName: out.CookieName,
		JSONPath:   out.JSONPath,
	}, nil
}
