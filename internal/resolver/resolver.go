// Copyright (C) 2025 harvest contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package resolver implements the Dependency Resolver: the iterative
// loop that pops a pending node, extracts and classifies its dynamic
// parts, searches for producers, and drives the session's DAG toward
// completion.
//
// Each iteration opens a per-iteration otel span and logs structured
// batch bookkeeping keyed by session id.
package resolver

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"
	"log/slog"

	"github.com/oscaromsn/harvest/internal/archive"
	"github.com/oscaromsn/harvest/internal/dag"
	"github.com/oscaromsn/harvest/internal/errs"
)

var tracer = otel.Tracer("github.com/oscaromsn/harvest/internal/resolver")

// Outcome is the per-iteration result tag
type Outcome string

const (
	OutcomeResolved Outcome = "resolved"
	OutcomeSkipped  Outcome = "skipped"
	OutcomeBlocked  Outcome = "blocked-on-dependencies"
	OutcomeComplete Outcome = "analysis-complete"
)

// StepResult is returned by one call to Step.
type StepResult struct {
	Outcome  Outcome
	NodeID   string
	Blockers []dag.UnresolvedNode
}

// BootstrapLookup resolves a still-unresolved literal to a bootstrap
// source, implemented by internal/bootstrap and injected by the caller
// so the resolver has no direct dependency on it.
type BootstrapLookup func(part string) (*dag.BootstrapSource, bool)

// Collaborator is the optional LLM escalation path for steps 3-5 of
// (identify-dynamic-parts and
// identify-input-variables calls), implemented by internal/llmclient
// and injected so the resolver has no direct dependency on it. Either
// method returning ok=false (unconfigured, error, or a degenerate
// answer) falls through to the heuristic path below unchanged.
type Collaborator interface {
	IdentifyDynamicParts(ctx context.Context, rec *archive.Record, known map[string]string) ([]string, bool)
	IdentifyInputVariables(ctx context.Context, rec *archive.Record, userVars map[string]string, dynamicParts []string) (identified map[string]string, removed []string, ok bool)
}

// Resolver drives a single session's DAG through the ten-step iteration
//
//
// Thread Safety: not safe for concurrent use. Matches the Session
// Manager's single-worker-per-session scheduling model ; callers
// must serialize all Step calls for a given session.
type Resolver struct {
	Graph          *dag.Graph
	Trace          *archive.Trace
	Cookies        archive.CookieSnapshot
	InputVariables map[string]string
	Queue          []string

	SessionID    string
	Logger       *slog.Logger
	Bootstrap    BootstrapLookup
	Collaborator Collaborator
}

// New constructs a Resolver for one session.
func New(g *dag.Graph, trace *archive.Trace, cookies archive.CookieSnapshot, sessionID string, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		Graph:          g,
		Trace:          trace,
		Cookies:        cookies,
		InputVariables: map[string]string{},
		SessionID:      sessionID,
		Logger:         logger,
	}
}

// Enqueue appends a node id to the FIFO processing queue, skipping it
// if already present.
func (r *Resolver) Enqueue(id string) {
	for _, existing := range r.Queue {
		if existing == id {
			return
		}
	}
	r.Queue = append(r.Queue, id)
}

// Step runs one iteration of the ten-step algorithm.
func (r *Resolver) Step(ctx context.Context) (*StepResult, error) {
	ctx, span := tracer.Start(ctx, "resolver.step", oteltrace.WithAttributes(
		attribute.String("session_id", r.SessionID),
	))
	defer span.End()

	// Step 1: pop.
	id, ok := r.pop()
	if !ok {
		if unresolved := r.Graph.UnresolvedNodes(); len(unresolved) > 0 {
			r.Logger.Warn("resolver blocked on dependencies", "session_id", r.SessionID, "unresolved_count", len(unresolved))
			return &StepResult{Outcome: OutcomeBlocked, Blockers: unresolved}, nil
		}
		r.Logger.Info("resolver analysis complete", "session_id", r.SessionID)
		return &StepResult{Outcome: OutcomeComplete}, nil
	}

	node := r.Graph.GetNode(id)
	if node == nil {
		return nil, errs.New(errs.CodeNodeNotFound, "queued node no longer exists in graph").WithSession(r.SessionID)
	}

	// Step 2: guard.
	if r.isScriptOrHTML(node) {
		_ = r.Graph.UpdateNode(id, func(n *dag.Node) {
			n.DynamicParts = nil
			n.State = dag.StateSkipped
		})
		r.Logger.Debug("resolver skipped node", "session_id", r.SessionID, "node_id", id)
		return &StepResult{Outcome: OutcomeSkipped, NodeID: id}, nil
	}

	rec := node.Request
	if rec == nil {
		// Cookie and not-found nodes carry no request to extract from.
		_ = r.Graph.UpdateNode(id, func(n *dag.Node) { n.State = dag.StateResolved })
		return &StepResult{Outcome: OutcomeResolved, NodeID: id}, nil
	}

	// Step 3: extract dynamic parts, escalating to the LLM collaborator
	// first when one is configured.
	parts := ExtractDynamicParts(rec, r.InputVariables)
	if r.Collaborator != nil {
		if got, ok := r.Collaborator.IdentifyDynamicParts(ctx, rec, r.InputVariables); ok {
			parts = got
		}
	}

	// Step 5 folded early: strip anything that matches a supplied input
	// variable before classification, binding it onto the node. The
	// collaborator's identify-input-variables call, when configured,
	// replaces the exact-match heuristic wholesale for this node.
	var remaining []string
	bindings := map[string]string{}
	boundByCollaborator := false
	if r.Collaborator != nil {
		if identified, removed, ok := r.Collaborator.IdentifyInputVariables(ctx, rec, r.InputVariables, parts); ok {
			bindings = identified
			removedSet := make(map[string]bool, len(removed))
			for _, p := range removed {
				removedSet[p] = true
			}
			for _, part := range parts {
				if !removedSet[part] {
					remaining = append(remaining, part)
				}
			}
			boundByCollaborator = true
		}
	}
	if !boundByCollaborator {
		for _, part := range parts {
			if name, matched := matchInputVariable(part, r.InputVariables); matched {
				bindings[name] = part
				continue
			}
			remaining = append(remaining, part)
		}
	}

	// Step 4: classify.
	var classified []dag.ClassifiedParameter
	var dynamicRemaining []string
	for _, part := range remaining {
		cp := ClassifyParameter(part, rec, r.Trace, r.Cookies, r.InputVariables)
		classified = append(classified, cp)
		// Step 6: filter by classification; only "dynamic" blocks completion.
		if cp.Classification == dag.ClassDynamic {
			dynamicRemaining = append(dynamicRemaining, part)
		}
	}

	// Steps 7-9: find producers, add nodes/edges, stopping at the first cycle.
	notFound, err := r.resolveProducers(ctx, id, dynamicRemaining)
	if err != nil {
		_ = r.Graph.UpdateNode(id, func(n *dag.Node) { n.State = dag.StateFailed })
		return nil, err
	}

	// Step 10: persist.
	err = r.Graph.UpdateNode(id, func(n *dag.Node) {
		n.DynamicParts = notFound
		n.InputVariables = mergeMaps(n.InputVariables, bindings)
		for _, cp := range classified {
			n.Reclassify(cp)
		}
		if len(notFound) == 0 {
			n.State = dag.StateResolved
		} else {
			n.State = dag.StateBlocked
		}
	})
	if err != nil {
		return nil, err
	}

	r.Logger.Debug("resolver processed node", "session_id", r.SessionID, "node_id", id, "remaining_dynamic_parts", len(notFound))
	return &StepResult{Outcome: OutcomeResolved, NodeID: id}, nil
}

func (r *Resolver) pop() (string, bool) {
	if len(r.Queue) == 0 {
		return "", false
	}
	id := r.Queue[0]
	r.Queue = r.Queue[1:]
	return id, true
}

func (r *Resolver) isScriptOrHTML(n *dag.Node) bool {
	if n.Request == nil {
		return false
	}
	if strings.HasSuffix(pathOnly(n.Request.URL), ".js") {
		return true
	}
	if n.Request.Response != nil && n.Request.Response.Body != nil {
		if archive.ClassifyResponseType(n.Request.Response.Body.MimeType) == "html" {
			return true
		}
	}
	return false
}

func pathOnly(rawURL string) string {
	u := rawURL
	if i := strings.IndexByte(u, '?'); i >= 0 {
		u = u[:i]
	}
	return u
}

func matchInputVariable(part string, known map[string]string) (string, bool) {
	for name, value := range known {
		if value == part {
			return name, true
		}
	}
	return "", false
}

func mergeMaps(a, b map[string]string) map[string]string {
	if a == nil {
		a = map[string]string{}
	}
	for k, v := range b {
		a[k] = v
	}
	return a
}
