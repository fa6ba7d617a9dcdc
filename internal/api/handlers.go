// Copyright (C) 2025 harvest contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package api

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/oscaromsn/harvest/internal/archive"
	"github.com/oscaromsn/harvest/internal/cache"
	"github.com/oscaromsn/harvest/internal/dag"
	"github.com/oscaromsn/harvest/internal/errs"
	"github.com/oscaromsn/harvest/internal/orchestrator"
	"github.com/oscaromsn/harvest/internal/session"
)

// Handlers binds the Resource Surface's endpoints to the Session
// Manager, Workflow Orchestrator, and Completed-Session Cache: one
// struct closing over the services it needs, one method per endpoint.
type Handlers struct {
	Sessions     *session.Manager
	Orchestrator *orchestrator.Orchestrator
	Cache        *cache.Manager

	// Selector and Confirmer, when non-nil, are attached to every
	// HandleRun call's Options so master-URL selection and bootstrap
	// confirmation can escalate to the LLM Collaborator. Left nil, runs
	// fall back to the URL Scorer and heuristic bootstrap guess alone.
	Selector  orchestrator.MasterSelector
	Confirmer orchestrator.Confirmer

	logger   *slog.Logger
	validate *validator.Validate
}

// NewHandlers constructs a Handlers. cacheMgr may be nil if the
// Completed-Session Cache is not configured for this process.
func NewHandlers(sessions *session.Manager, orch *orchestrator.Orchestrator, cacheMgr *cache.Manager, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		Sessions:     sessions,
		Orchestrator: orch,
		Cache:        cacheMgr,
		logger:       logger,
		validate:     validator.New(),
	}
}

// requestIDKey is the gin context key getOrCreateRequestID reads/writes
// to thread a per-request correlation id through handler logging.
const requestIDKey = "request_id"

func getOrCreateRequestID(c *gin.Context) string {
	if v, ok := c.Get(requestIDKey); ok {
		return v.(string)
	}
	id := uuid.NewString()
	c.Set(requestIDKey, id)
	return id
}

// writeError renders err as an ErrorResponse, mapping harvest's stable
// error Code onto an HTTP status table-driven rather than one branch
// per call site, since every handler here shares the same Code
// taxonomy.
func (h *Handlers) writeError(c *gin.Context, logger *slog.Logger, err error) {
	var herr *errs.Error
	if e, ok := err.(*errs.Error); ok {
		herr = e
	} else {
		herr = errs.Wrap(errs.CodeMalformedArchive, "unexpected error", err)
	}
	logger.Warn("request failed", "code", herr.Code, "error", herr.Error())
	c.JSON(statusForCode(herr.Code), ErrorResponse{Error: herr.Explanation, Code: string(herr.Code)})
}

// statusForCode maps a stable error Code onto an HTTP status.
func statusForCode(code errs.Code) int {
	switch code {
	case errs.CodeSessionNotFound, errs.CodeNodeNotFound, errs.CodeCacheMiss:
		return http.StatusNotFound
	case errs.CodeURLNotFoundInArchive, errs.CodeMalformedArchive, errs.CodeEmptyArchive,
		errs.CodeHARQualityInsufficient, errs.CodeNoProviderConfigured:
		return http.StatusBadRequest
	case errs.CodeCircularDependencies, errs.CodeAnalysisIncomplete, errs.CodeCodeGenerationFailed:
		return http.StatusConflict
	case errs.CodeCapacityExceeded:
		return http.StatusServiceUnavailable
	case errs.CodeCancelled, errs.CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// HandleCreateSession handles POST /v1/harvest/sessions.
func (h *Handlers) HandleCreateSession(c *gin.Context) {
	logger := h.logger.With("request_id", getOrCreateRequestID(c), "handler", "HandleCreateSession")

	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "MALFORMED_REQUEST_BODY"})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_REQUEST"})
		return
	}

	id, err := h.Sessions.CreateSession(req.Archive, req.Cookies, req.Prompt, req.InputVariables, archive.Options{})
	if err != nil {
		h.writeError(c, logger, err)
		return
	}

	logger.Info("session created", "session_id", id)
	c.JSON(http.StatusCreated, CreateSessionResponse{SessionID: id})
}

// HandleListSessions handles GET /v1/harvest/sessions.
func (h *Handlers) HandleListSessions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sessions": h.Sessions.ListSessions()})
}

// HandleDeleteSession handles DELETE /v1/harvest/sessions/:id.
func (h *Handlers) HandleDeleteSession(c *gin.Context) {
	logger := h.logger.With("request_id", getOrCreateRequestID(c), "handler", "HandleDeleteSession")
	id := c.Param("id")
	if err := h.Sessions.DeleteSession(id); err != nil {
		h.writeError(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// HandleStatus handles GET /v1/harvest/sessions/:id/status, rendering
// status.json.
func (h *Handlers) HandleStatus(c *gin.Context) {
	logger := h.logger.With("request_id", getOrCreateRequestID(c), "handler", "HandleStatus")
	id := c.Param("id")

	sess, err := h.Sessions.GetSession(id)
	if err != nil {
		h.writeError(c, logger, err)
		return
	}
	state, err := h.Sessions.AnalyzeCompletionState(id)
	if err != nil {
		h.writeError(c, logger, err)
		return
	}

	c.JSON(http.StatusOK, StatusResponse{
		SessionID:       sess.ID,
		CreatedAt:       sess.CreatedAt,
		Prompt:          sess.Prompt,
		IsComplete:      state.IsComplete,
		CodeGenerated:   sess.CodeGenerated,
		Blockers:        state.Blockers,
		Recommendations: state.Recommendations,
		TotalNodes:      state.Diagnostics.TotalNodes,
		UnresolvedNodes: state.Diagnostics.UnresolvedNodes,
		PendingInQueue:  state.Diagnostics.PendingInQueue,
	})
}

// HandleDAG handles GET /v1/harvest/sessions/:id/dag, rendering
// dag.json.
func (h *Handlers) HandleDAG(c *gin.Context) {
	logger := h.logger.With("request_id", getOrCreateRequestID(c), "handler", "HandleDAG")
	id := c.Param("id")

	sess, err := h.Sessions.GetSession(id)
	if err != nil {
		h.writeError(c, logger, err)
		return
	}

	c.JSON(http.StatusOK, renderDAG(id, sess.Graph))
}

func renderDAG(sessionID string, g *dag.Graph) DAGResponse {
	resp := DAGResponse{SessionID: sessionID}
	for _, n := range g.AllNodes() {
		node := DAGNode{
			ID:             n.ID,
			Kind:           string(n.Kind),
			State:          string(n.State),
			GroupID:        n.GroupID,
			DynamicParts:   n.DynamicParts,
			ExtractedParts: n.ExtractedParts,
		}
		if n.Request != nil {
			node.URL = n.Request.URL
			node.Method = n.Request.Method
		}
		resp.Nodes = append(resp.Nodes, node)
	}
	for _, e := range g.Edges() {
		resp.Edges = append(resp.Edges, DAGEdge{From: e.From, To: e.To})
	}
	return resp
}

// HandleDAGDiff handles GET /v1/harvest/sessions/:id/dag.diff?against=:otherId,
// a debug resource supplementing the main graph resource with a
// unified-diff view between two sessions' DAGs.
func (h *Handlers) HandleDAGDiff(c *gin.Context) {
	logger := h.logger.With("request_id", getOrCreateRequestID(c), "handler", "HandleDAGDiff")
	id := c.Param("id")
	against := c.Query("against")
	if against == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "'against' query parameter is required", Code: "MISSING_PARAMETER"})
		return
	}

	base, err := h.Sessions.GetSession(id)
	if err != nil {
		h.writeError(c, logger, err)
		return
	}
	target, err := h.Sessions.GetSession(against)
	if err != nil {
		h.writeError(c, logger, err)
		return
	}

	d, err := dag.DiffGraphs(base.Graph, target.Graph, id, against)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error(), Code: "DIFF_FAILED"})
		return
	}
	text, err := dag.RenderUnified(d)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error(), Code: "DIFF_FAILED"})
		return
	}
	c.String(http.StatusOK, text)
}

// HandleLog handles GET /v1/harvest/sessions/:id/log, rendering
// log.txt. ?stream=1 upgrades to a websocket tail; see streamLog.
func (h *Handlers) HandleLog(c *gin.Context) {
	logger := h.logger.With("request_id", getOrCreateRequestID(c), "handler", "HandleLog")
	id := c.Param("id")

	sess, err := h.Sessions.GetSession(id)
	if err != nil {
		h.writeError(c, logger, err)
		return
	}

	if c.Query("stream") == "1" {
		h.streamLog(c, sess)
		return
	}

	var b strings.Builder
	for _, e := range sess.Logs {
		b.WriteString("[" + e.At.Format(time.RFC3339) + "] " + strings.ToUpper(string(e.Level)) + ": " + e.Message + "\n")
	}
	c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(b.String()))
}

// HandleResolve handles POST /v1/harvest/sessions/:id/resolve, driving
// a single resolver iteration — a debug tool exposing an internal
// step for inspection one call at a time.
func (h *Handlers) HandleResolve(c *gin.Context) {
	logger := h.logger.With("request_id", getOrCreateRequestID(c), "handler", "HandleResolve")
	id := c.Param("id")

	sess, err := h.Sessions.GetSession(id)
	if err != nil {
		h.writeError(c, logger, err)
		return
	}

	result, err := sess.Resolver.Step(c.Request.Context())
	if err != nil {
		h.writeError(c, logger, err)
		return
	}
	resolverIterationsTotal.WithLabelValues(string(result.Outcome)).Inc()
	c.JSON(http.StatusOK, ResolveResponse{Outcome: string(result.Outcome)})
}

// HandleRun handles POST /v1/harvest/sessions/run, the one-shot Workflow
// Orchestrator binding: create, resolve to completion or the iteration
// cap, then emit.
func (h *Handlers) HandleRun(c *gin.Context) {
	logger := h.logger.With("request_id", getOrCreateRequestID(c), "handler", "HandleRun")
	started := time.Now()

	var req RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "MALFORMED_REQUEST_BODY"})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_REQUEST"})
		return
	}

	opts := orchestrator.DefaultOptions()
	opts.Logger = h.logger
	opts.Selector = h.Selector
	opts.Confirmer = h.Confirmer
	if req.IterationCap > 0 {
		opts.IterationCap = req.IterationCap
	}

	result, err := h.Orchestrator.Run(c.Request.Context(), req.Archive, req.Cookies, req.Prompt, req.InputVariables, opts)
	if err != nil {
		runLatencySeconds.WithLabelValues("error").Observe(time.Since(started).Seconds())
		h.writeError(c, logger, err)
		return
	}
	runOutcome := "incomplete"
	if result.Complete {
		runOutcome = "complete"
	}
	runLatencySeconds.WithLabelValues(runOutcome).Observe(time.Since(started).Seconds())

	if result.Complete && h.Cache != nil {
		if err := h.cacheCompletedRun(req, result); err != nil {
			logger.Warn("caching completed session failed", "session_id", result.SessionID, "error", err)
		}
	}

	resp := RunResponse{
		SessionID:       result.SessionID,
		Complete:        result.Complete,
		Script:          result.Script,
		IterationsRun:   result.IterationsRun,
		IterationCapHit: result.IterationCapHit,
	}
	if result.Diagnosis != nil {
		resp.Blockers = result.Diagnosis.Blockers
		resp.Recommendations = result.Diagnosis.Recommendations
	} else if result.State != nil {
		resp.Blockers = result.State.Blockers
		resp.Recommendations = result.State.Recommendations
	}
	c.JSON(http.StatusOK, resp)
}

// cacheCompletedRun hands a finished run's artifacts to the
// Completed-Session Cache. The cache package takes plain bytes (no
// internal/session dependency), so the raw request bytes this handler
// already holds are exactly what it needs.
func (h *Handlers) cacheCompletedRun(req RunRequest, result *orchestrator.Result) error {
	sess, err := h.Sessions.GetSession(result.SessionID)
	if err != nil {
		return err
	}
	quality := ""
	if sess.Trace != nil {
		quality = string(sess.Trace.Validation.Grade)
	}
	started := time.Now()
	_, err = h.Cache.Cache(cache.Input{
		SessionID:    result.SessionID,
		Prompt:       req.Prompt,
		ArchiveBytes: req.Archive,
		CookieBytes:  req.Cookies,
		Script:       result.Script,
		Quality:      quality,
		TotalNodes:   sess.Graph.NodeCount(),
	})
	cacheWriteLatencySeconds.Observe(time.Since(started).Seconds())
	return err
}

// HandleCompletedList handles GET /v1/harvest/completed, listing every
// session the Completed-Session Cache has metadata for.
func (h *Handlers) HandleCompletedList(c *gin.Context) {
	logger := h.logger.With("request_id", getOrCreateRequestID(c), "handler", "HandleCompletedList")
	if h.Cache == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "completed-session cache not configured", Code: "CACHE_NOT_AVAILABLE"})
		return
	}

	ids, err := h.Cache.AllCachedSessions()
	if err != nil {
		h.writeError(c, logger, err)
		return
	}

	resp := CompletedListResponse{Sessions: make([]CompletedListEntry, 0, len(ids))}
	for _, id := range ids {
		meta, err := h.Cache.GetCachedMetadata(id)
		if err != nil {
			cacheLookupsTotal.WithLabelValues("miss").Inc()
			logger.Warn("skipping cached session with unreadable metadata", "session_id", id, "error", err)
			continue
		}
		cacheLookupsTotal.WithLabelValues("hit").Inc()
		resp.Sessions = append(resp.Sessions, CompletedListEntry{
			SessionID:           meta.SessionID,
			CompletionTimestamp: meta.CompletionTimestamp,
			Prompt:              meta.Prompt,
			QualityGrade:        meta.QualityGrade,
			AvailableArtifacts:  meta.AvailableArtifacts,
		})
	}
	c.JSON(http.StatusOK, resp)
}

// HandleCompletedArtifact handles GET /v1/harvest/completed/:id/:artifact,
// serving one cached artifact file by name.
func (h *Handlers) HandleCompletedArtifact(c *gin.Context) {
	logger := h.logger.With("request_id", getOrCreateRequestID(c), "handler", "HandleCompletedArtifact")
	if h.Cache == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "completed-session cache not configured", Code: "CACHE_NOT_AVAILABLE"})
		return
	}

	id := c.Param("id")
	artifact := cache.ArtifactKind(c.Param("artifact"))

	data, err := h.Cache.GetCachedArtifact(id, artifact)
	if err != nil {
		cacheLookupsTotal.WithLabelValues("miss").Inc()
		h.writeError(c, logger, err)
		return
	}
	cacheLookupsTotal.WithLabelValues("hit").Inc()

	c.Data(http.StatusOK, contentTypeFor(artifact), data)
}

func contentTypeFor(kind cache.ArtifactKind) string {
	switch kind {
	case cache.ArtifactGenerated:
		return "application/typescript"
	default:
		return "application/json"
	}
}

// HandleHealth handles GET /v1/harvest/health, a liveness check.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// HandleReady handles GET /v1/harvest/ready: the Resource Surface is
// ready once its Session Manager is constructed, which New guarantees.
func (h *Handlers) HandleReady(c *gin.Context) {
	if h.Sessions == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "session manager not initialized", Code: "NOT_READY"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
