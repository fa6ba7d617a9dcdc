// Copyright (C) 2025 harvest contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package session

import (
	"github.com/oscaromsn/harvest/internal/dag"
)

// Diagnostics is the full breakdown analyze-completion-state returns,
// used as the single source of truth for readiness by every downstream
// tool.
type Diagnostics struct {
	HasMasterNode         bool
	HasActionURL          bool
	DAGComplete           bool
	QueueEmpty            bool
	TotalNodes            int
	UnresolvedNodes       int
	PendingInQueue        int
	AuthAnalysisComplete  bool
	AuthReadiness         bool
	AuthErrors            int
	AllNodesClassified    bool
	NodesNeedingClassification int
	BootstrapAnalysisComplete bool
	SessionConstantsCount      int
	UnresolvedSessionConstants int
}

// CompletionState is the result of analyze-completion-state.
type CompletionState struct {
	IsComplete      bool
	Blockers        []string
	Recommendations []string
	Diagnostics     Diagnostics
}

// SyncCompletionState recomputes is-complete from the DAG and queue and
// updates the session flag in place
func (m *Manager) SyncCompletionState(id string) error {
	sess, err := m.GetSession(id)
	if err != nil {
		return err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.IsComplete = sess.Graph.IsComplete() && len(sess.Resolver.Queue) == 0
	return nil
}

// AnalyzeCompletionState computes the full diagnostic record, the
// single source of truth for readiness every downstream tool (Code
// Emitter, Workflow Orchestrator, Resource Surface) reads before
// acting on a session.
func (m *Manager) AnalyzeCompletionState(id string) (*CompletionState, error) {
	sess, err := m.GetSession(id)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	nodes := sess.Graph.AllNodes()
	var d Diagnostics
	d.TotalNodes = len(nodes)
	d.PendingInQueue = len(sess.Resolver.Queue)
	d.QueueEmpty = d.PendingInQueue == 0
	d.DAGComplete = sess.Graph.IsComplete()

	for _, n := range nodes {
		if n.Kind == dag.KindMasterRequest {
			d.HasMasterNode = true
			if n.Request != nil {
				d.HasActionURL = n.Request.URL != ""
			}
		}
		if n.Kind == dag.KindNotFound || len(n.DynamicParts) > 0 {
			d.UnresolvedNodes++
		}
		if n.Kind == dag.KindRequest || n.Kind == dag.KindMasterRequest {
			// A node still in its pre-resolver state has never been
			// through classification, regardless of whether it turns out
			// to carry zero or many parameters; judge by State, not by
			// ClassifiedParameters length, so a request with no dynamic
			// parts doesn't block completion forever.
			if n.Request != nil && (n.State == dag.StateNew || n.State == dag.StateEnqueued) {
				d.NodesNeedingClassification++
			}
		}
		for _, cp := range n.ClassifiedParameters {
			if cp.Classification == dag.ClassSessionConstant {
				d.SessionConstantsCount++
				if cp.BootstrapSource == nil && cp.RequiresBootstrap {
					d.UnresolvedSessionConstants++
				}
			}
		}
	}
	d.AllNodesClassified = d.NodesNeedingClassification == 0
	d.BootstrapAnalysisComplete = d.UnresolvedSessionConstants == 0

	d.AuthAnalysisComplete = sess.Auth.PrimaryAuthType != "" || !sess.Auth.HasAuth
	d.AuthReadiness = sess.Auth.CodeGenerationReady
	d.AuthErrors = len(sess.Auth.SecurityIssues)

	isComplete := d.HasMasterNode && d.DAGComplete && d.QueueEmpty && d.AllNodesClassified

	var blockers, recs []string
	if !d.HasMasterNode {
		blockers = append(blockers, "no master request node has been selected")
		recs = append(recs, "select or confirm a master request before resolving")
	}
	if !d.DAGComplete {
		blockers = append(blockers, "dependency DAG still has unresolved nodes")
		recs = append(recs, "continue calling the resolver until analysis-complete")
	}
	if !d.QueueEmpty {
		blockers = append(blockers, "processing queue is not empty")
		recs = append(recs, "drain the queue by running further resolver iterations")
	}
	if !d.AllNodesClassified {
		blockers = append(blockers, "some nodes have unclassified parameters")
		recs = append(recs, "run classification over the remaining nodes")
	}

	sess.IsComplete = isComplete

	return &CompletionState{
		IsComplete:      isComplete,
		Blockers:        blockers,
		Recommendations: recs,
		Diagnostics:     d,
	}, nil
}
