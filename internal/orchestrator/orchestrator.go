// Copyright (C) 2025 harvest contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package orchestrator implements the Workflow Orchestrator: a
// one-shot pipeline binding that takes a trace, an optional cookie
// snapshot, a prompt, and optional input variables,
// and drives them all the way through to an emitted script or a
// structured diagnosis.
//
// Follows a primary-decision-plus-escalation shape: the URL Scorer
// makes the fast deterministic call, with an optional LLM escalation
// tier at master-node selection. The escalation call runs under the
// caller's ctx with no timeout of its own; StepTimeout bounds resolver
// iterations only.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/oscaromsn/harvest/internal/archive"
	"github.com/oscaromsn/harvest/internal/auth"
	"github.com/oscaromsn/harvest/internal/bootstrap"
	"github.com/oscaromsn/harvest/internal/dag"
	"github.com/oscaromsn/harvest/internal/emitter"
	"github.com/oscaromsn/harvest/internal/errs"
	"github.com/oscaromsn/harvest/internal/resolver"
	"github.com/oscaromsn/harvest/internal/scorer"
	"github.com/oscaromsn/harvest/internal/session"
)

const (
	defaultIterationCap = 20
	minIterationCap     = 1
	maxIterationCap     = 50
)

// MasterSelector optionally escalates master-URL selection to an LLM
// collaborator when one is configured; Orchestrator works without one,
// falling back to the URL Scorer's top-ranked candidate alone.
// Implemented by internal/llmclient.
type MasterSelector interface {
	SelectMasterURL(ctx context.Context, prompt string, ranked []scorer.Scored) (string, error)
}

// Confirmer is re-exported so callers can wire one collaborator
// implementation into both the Bootstrap Finder and master-node
// selection without importing internal/bootstrap directly.
type Confirmer = bootstrap.Confirmer

// Options configures one Run call.
type Options struct {
	// IterationCap bounds resolver iterations before returning an
	// interactive diagnosis instead of a script. Default 20, clamped to
	// [1, 50]
	IterationCap int

	// StepTimeout bounds a single resolver iteration.
	StepTimeout time.Duration

	ParseOptions archive.Options

	Selector  MasterSelector
	Confirmer Confirmer

	Logger *slog.Logger
}

// DefaultOptions returns the default iteration cap and a modest
// per-step timeout.
func DefaultOptions() Options {
	return Options{IterationCap: defaultIterationCap, StepTimeout: 10 * time.Second}
}

func (o Options) clamp() Options {
	if o.IterationCap < minIterationCap || o.IterationCap > maxIterationCap {
		if o.IterationCap == 0 {
			o.IterationCap = defaultIterationCap
		} else if o.IterationCap < minIterationCap {
			o.IterationCap = minIterationCap
		} else {
			o.IterationCap = maxIterationCap
		}
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Result is what Run returns on either path: a finished script, or an
// interactive diagnosis the caller can drive further with the Session
// Manager directly.
type Result struct {
	SessionID string
	Script    string // non-empty only when Complete is true
	Complete  bool

	Diagnosis *emitter.Diagnosis
	State     *session.CompletionState

	IterationsRun   int
	IterationCapHit bool
}

// Orchestrator binds a Session Manager to one-shot pipeline runs.
type Orchestrator struct {
	manager *session.Manager
}

// New constructs an Orchestrator over an existing Session Manager, so
// the Resource Surface and the one-shot pipeline share the same live
// session set.
func New(manager *session.Manager) *Orchestrator {
	return &Orchestrator{manager: manager}
}

// Run implements end-to-end binding: create session,
// rank URLs, select and enqueue a master node, loop the resolver to
// completion or the iteration cap, then emit.
func (o *Orchestrator) Run(ctx context.Context, traceBytes, cookieBytes []byte, prompt string, inputVariables map[string]string, opts Options) (*Result, error) {
	opts = opts.clamp()

	id, err := o.manager.CreateSession(traceBytes, cookieBytes, prompt, inputVariables, opts.ParseOptions)
	if err != nil {
		return nil, err
	}

	sess, err := o.manager.GetSession(id)
	if err != nil {
		return nil, err
	}

	sess.Auth = auth.Analyze(sess.Trace, opts.Logger.With("session_id", id))

	masterURL, err := o.selectMasterURL(ctx, sess, opts)
	if err != nil {
		return nil, err
	}

	masterID, groupID, err := o.createMaster(sess, masterURL)
	if err != nil {
		return nil, err
	}
	sess.ActionURL = masterURL
	sess.MasterNodeID = masterID
	sess.GroupID = groupID
	sess.Resolver.Enqueue(masterID)

	finder := bootstrap.New(sess.Trace, sess.Cookies, &sess.Auth, opts.Confirmer, opts.Logger)
	sess.Resolver.Bootstrap = finder.Lookup

	iterations, capHit, err := o.driveResolver(ctx, sess, opts)
	if err != nil {
		return nil, err
	}

	state, err := o.manager.AnalyzeCompletionState(id)
	if err != nil {
		return nil, err
	}

	if capHit || !state.IsComplete {
		return &Result{
			SessionID:       id,
			Complete:        false,
			State:           state,
			IterationsRun:   iterations,
			IterationCapHit: capHit,
		}, nil
	}

	script, diag, err := emitter.Emit(emitter.Input{Completion: emitter.Completion{
		IsComplete:      state.IsComplete,
		Blockers:        state.Blockers,
		Recommendations: state.Recommendations,
	}}, sess.Graph, groupID)
	if err != nil {
		return nil, errs.Wrap(errs.CodeCodeGenerationFailed, "code emission failed", err).WithSession(id)
	}
	if diag != nil {
		return &Result{SessionID: id, Complete: false, Diagnosis: diag, State: state, IterationsRun: iterations}, nil
	}

	sess.EmittedScript = script
	sess.CodeGenerated = true
	sess.AddLog(session.LogInfo, "code emitted", map[string]any{"group_id": groupID})

	return &Result{SessionID: id, Script: script, Complete: true, State: state, IterationsRun: iterations}, nil
}

// selectMasterURL ranks the trace's URL descriptors and, when a
// MasterSelector is configured, escalates to it for a second opinion.
func (o *Orchestrator) selectMasterURL(ctx context.Context, sess *session.Session, opts Options) (string, error) {
	ranked := scorer.Rank(sess.Prompt, sess.Trace.Descriptors)
	if len(ranked) == 0 {
		return "", errs.New(errs.CodeURLNotFoundInArchive, "trace has no candidate request to select as the master node").WithSession(sess.ID)
	}

	if opts.Selector == nil {
		return ranked[0].Descriptor.URL, nil
	}

	selected, err := opts.Selector.SelectMasterURL(ctx, sess.Prompt, ranked)
	if err != nil {
		opts.Logger.Warn("master-url LLM selection failed, falling back to URL Scorer", "session_id", sess.ID, "error", err)
		return ranked[0].Descriptor.URL, nil
	}
	return selected, nil
}

// createMaster finds the trace record backing masterURL and adds it to
// the graph as the group's single master-request node.
func (o *Orchestrator) createMaster(sess *session.Session, masterURL string) (nodeID, groupID string, err error) {
	var rec *archive.Record
	for _, candidate := range sess.Trace.Records {
		if candidate.URL == masterURL {
			rec = candidate
			break
		}
	}
	if rec == nil {
		return "", "", errs.New(errs.CodeURLNotFoundInArchive, fmt.Sprintf("selected master url %q not found in trace", masterURL)).WithSession(sess.ID)
	}

	groupID = fmt.Sprintf("group-%s", sess.ID)
	id, err := sess.Graph.AddNode(dag.KindMasterRequest, groupID)
	if err != nil {
		return "", "", err
	}
	if err := sess.Graph.UpdateNode(id, func(n *dag.Node) {
		n.Request = rec
		n.Response = rec.Response
	}); err != nil {
		return "", "", err
	}
	return id, groupID, nil
}

// driveResolver loops resolver.Step until analysis-complete or the
// iteration cap, honoring ctx and opts.StepTimeout per step.
func (o *Orchestrator) driveResolver(ctx context.Context, sess *session.Session, opts Options) (iterations int, capHit bool, err error) {
	for iterations = 0; iterations < opts.IterationCap; iterations++ {
		if err := ctx.Err(); err != nil {
			return iterations, false, errs.Wrap(errs.CodeCancelled, "orchestrator run cancelled", err).WithSession(sess.ID)
		}

		stepCtx := ctx
		var cancel context.CancelFunc
		if opts.StepTimeout > 0 {
			stepCtx, cancel = context.WithTimeout(ctx, opts.StepTimeout)
		}
		result, stepErr := sess.Resolver.Step(stepCtx)
		if cancel != nil {
			cancel()
		}
		if stepErr != nil {
			return iterations, false, stepErr
		}

		switch result.Outcome {
		case resolver.OutcomeComplete:
			return iterations + 1, false, nil
		case resolver.OutcomeBlocked:
			return iterations + 1, false, nil
		}
	}
	return iterations, true, nil
}
