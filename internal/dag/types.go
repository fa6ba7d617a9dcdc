// Copyright (C) 2025 harvest contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package dag implements the typed directed-acyclic-graph of request,
// cookie, and not-found nodes described in : ordered
// edges, cycle detection, topological sort, and per-group views.
package dag

import "github.com/oscaromsn/harvest/internal/archive"

// NodeKind is the variant discriminator for a Node.
type NodeKind string

const (
	KindRequest       NodeKind = "request"
	KindMasterRequest NodeKind = "master-request"
	KindCookie        NodeKind = "cookie"
	KindNotFound      NodeKind = "not-found"
)

// NodeState tracks a node through the resolver's state machine
// .
type NodeState string

const (
	StateNew        NodeState = "new"
	StateEnqueued   NodeState = "enqueued"
	StateInProcess  NodeState = "in-process"
	StateResolved   NodeState = "resolved"
	StateBlocked    NodeState = "blocked"
	StateSkipped    NodeState = "skipped"
	StateFailed     NodeState = "failed"
)

// Classification is the taxonomy a classified parameter falls into.
type Classification string

const (
	ClassDynamic         Classification = "dynamic"
	ClassSessionConstant Classification = "session-constant"
	ClassStaticConstant  Classification = "static-constant"
	ClassUserInput       Classification = "user-input"
	ClassOptional        Classification = "optional"
)

// ParameterSource tags where a classification decision came from.
type ParameterSource string

const (
	SourceHeuristic         ParameterSource = "heuristic"
	SourceLLM               ParameterSource = "llm"
	SourceManual             ParameterSource = "manual"
	SourceConsistencyAnalysis ParameterSource = "consistency-analysis"
)

// BootstrapSourceType enumerates where a bootstrap-resolved value came from.
type BootstrapSourceType string

const (
	BootstrapInitialPageHTML   BootstrapSourceType = "initial-page-html"
	BootstrapInitialPageCookie BootstrapSourceType = "initial-page-cookie"
	BootstrapDedicatedAuth     BootstrapSourceType = "dedicated-auth-request"
)

// BootstrapSource records the origin of a value that no earlier request
// in the graph produces.
type BootstrapSource struct {
	Type       BootstrapSourceType
	URL        string
	Pattern    string
	CookieName string
	JSONPath   string
}

// ClassifiedParameter is a single classified dynamic part.
type ClassifiedParameter struct {
	Name             string
	Value            string
	Classification   Classification
	Confidence       float64
	Source           ParameterSource
	OccurrenceCount  int
	TotalScanned     int
	ConsistencyScore float64
	Pattern          string
	DomainContext    string
	BootstrapSource  *BootstrapSource
	RequiresBootstrap bool
}

// Node is a single DAG node. Exactly one field among Request/Cookie is
// populated depending on Kind; a not-found node carries neither.
type Node struct {
	ID         string
	Kind       NodeKind
	State      NodeState
	GroupID    string

	Request  *archive.Record
	Response *archive.Response

	CookieName  string
	CookieValue string

	DynamicParts  []string
	ExtractedParts []string

	InputVariables map[string]string

	ClassifiedParameters []ClassifiedParameter
	BootstrapSource      *BootstrapSource
}

// Reclassify appends or updates a classified parameter keyed by
// (Name, Value), resolving reclassification Open Question
// additively rather than by wholesale replacement.
func (n *Node) Reclassify(p ClassifiedParameter) {
	for i, existing := range n.ClassifiedParameters {
		if existing.Name == p.Name && existing.Value == p.Value {
			n.ClassifiedParameters[i] = p
			return
		}
	}
	n.ClassifiedParameters = append(n.ClassifiedParameters, p)
}

// Edge is a directed dependency: From consumes a value that To produces.
type Edge struct {
	From string
	To   string
}
