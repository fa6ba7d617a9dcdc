// Copyright (C) 2025 harvest contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package api implements the Resource Surface:
// a gin HTTP layer exposing the Session Manager, Workflow Orchestrator,
// and Completed-Session Cache as the artifact-URI read surface plus a
// thin session-lifecycle mutation surface.
//
// Follows a Handlers-struct-closing-over-a-service shape, one method
// per endpoint, nested router groups for related endpoints, and a
// uniform ErrorResponse{Error, Code} body with a per-request
// correlation id.
package api

import "time"

// ErrorResponse is the uniform JSON error body returned by every
// handler on failure.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// CreateSessionRequest is the body of POST /v1/harvest/sessions.
// Archive and Cookies carry the raw bytes of a recorded HTTP archive
// and a cookie snapshot, respectively; validation here is limited to
// the http-input boundary (non-empty archive, non-empty prompt), full
// semantic validation of the trace belongs to the Trace Parser itself.
type CreateSessionRequest struct {
	Archive        []byte            `json:"archive" validate:"required,min=2"`
	Cookies        []byte            `json:"cookies,omitempty"`
	Prompt         string            `json:"prompt" validate:"required"`
	InputVariables map[string]string `json:"input_variables,omitempty"`
}

// CreateSessionResponse answers a successful create-session call.
type CreateSessionResponse struct {
	SessionID string `json:"session_id"`
}

// RunRequest is the body of POST /v1/harvest/sessions/run, the one-shot
// Workflow Orchestrator binding.
type RunRequest struct {
	Archive        []byte            `json:"archive" validate:"required,min=2"`
	Cookies        []byte            `json:"cookies,omitempty"`
	Prompt         string            `json:"prompt" validate:"required"`
	InputVariables map[string]string `json:"input_variables,omitempty"`
	IterationCap   int               `json:"iteration_cap,omitempty"`
}

// RunResponse answers a one-shot Run call.
type RunResponse struct {
	SessionID       string   `json:"session_id"`
	Complete        bool     `json:"complete"`
	Script          string   `json:"script,omitempty"`
	Blockers        []string `json:"blockers,omitempty"`
	Recommendations []string `json:"recommendations,omitempty"`
	IterationsRun   int      `json:"iterations_run"`
	IterationCapHit bool     `json:"iteration_cap_hit"`
}

// StatusResponse is status.json.
type StatusResponse struct {
	SessionID       string    `json:"session_id"`
	CreatedAt       time.Time `json:"created_at"`
	Prompt          string    `json:"prompt"`
	IsComplete      bool      `json:"is_complete"`
	CodeGenerated   bool      `json:"code_generated"`
	Blockers        []string  `json:"blockers,omitempty"`
	Recommendations []string  `json:"recommendations,omitempty"`
	TotalNodes      int       `json:"total_nodes"`
	UnresolvedNodes int       `json:"unresolved_nodes"`
	PendingInQueue  int       `json:"pending_in_queue"`
}

// DAGNode is one rendered node of dag.json.
type DAGNode struct {
	ID             string   `json:"id"`
	Kind           string   `json:"kind"`
	State          string   `json:"state"`
	GroupID        string   `json:"group_id"`
	URL            string   `json:"url,omitempty"`
	Method         string   `json:"method,omitempty"`
	DynamicParts   []string `json:"dynamic_parts,omitempty"`
	ExtractedParts []string `json:"extracted_parts,omitempty"`
}

// DAGEdge is one rendered edge of dag.json.
type DAGEdge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// DAGResponse is dag.json.
type DAGResponse struct {
	SessionID string    `json:"session_id"`
	Nodes     []DAGNode `json:"nodes"`
	Edges     []DAGEdge `json:"edges"`
}

// LogEntryResponse is one JSON message of the streamed session log
// (?stream=1); the plain log.txt view renders entries as text lines.
type LogEntryResponse struct {
	At      time.Time      `json:"at"`
	Level   string         `json:"level"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

// ResolveResponse answers a single debug resolver iteration.
type ResolveResponse struct {
	Outcome string `json:"outcome"`
}

// CompletedListEntry is one row of the completed-sessions list.
type CompletedListEntry struct {
	SessionID          string    `json:"session_id"`
	CompletionTimestamp time.Time `json:"completion_timestamp"`
	Prompt             string    `json:"prompt"`
	QualityGrade       string    `json:"quality_grade"`
	AvailableArtifacts []string  `json:"available_artifacts"`
}

// CompletedListResponse is artifacts/list.json.
type CompletedListResponse struct {
	Sessions []CompletedListEntry `json:"sessions"`
}
