// Copyright (C) 2025 harvest contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/oscaromsn/harvest/internal/archive"
	"github.com/oscaromsn/harvest/internal/errs"
	"github.com/oscaromsn/harvest/internal/orchestrator"
	"github.com/oscaromsn/harvest/internal/session"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func sampleHAR() []byte {
	return []byte(`{"log":{"entries":[
		{"startedDateTime":"2024-01-01T00:00:00Z","request":{"method":"GET","url":"https://svc/api/widgets","headers":[]},"response":{"status":200,"content":{"mimeType":"application/json","text":"{\"ok\":true}"}}}
	]}}`)
}

func newTestEngine(t *testing.T) (*gin.Engine, *Handlers) {
	t.Helper()
	mgr := session.New(session.DefaultOptions(), nil)
	t.Cleanup(mgr.Stop)
	orch := orchestrator.New(mgr)
	h := NewHandlers(mgr, orch, nil, nil)

	engine := gin.New()
	v1 := engine.Group("/v1")
	RegisterRoutes(v1, h)
	return engine, h
}

func doRequest(engine *gin.Engine, method, path string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestHandleCreateSession_Success(t *testing.T) {
	engine, _ := newTestEngine(t)

	body, err := json.Marshal(CreateSessionRequest{Archive: sampleHAR(), Prompt: "view widgets"})
	require.NoError(t, err)

	w := doRequest(engine, http.MethodPost, "/v1/harvest/sessions", body)
	require.Equal(t, http.StatusCreated, w.Code)

	var resp CreateSessionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.SessionID)
}

func TestHandleCreateSession_RejectsMissingPrompt(t *testing.T) {
	engine, _ := newTestEngine(t)

	body, err := json.Marshal(CreateSessionRequest{Archive: sampleHAR()})
	require.NoError(t, err)

	w := doRequest(engine, http.MethodPost, "/v1/harvest/sessions", body)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleCreateSession_RejectsEmptyArchive(t *testing.T) {
	engine, _ := newTestEngine(t)

	body, err := json.Marshal(CreateSessionRequest{Prompt: "view widgets"})
	require.NoError(t, err)

	w := doRequest(engine, http.MethodPost, "/v1/harvest/sessions", body)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleListAndDeleteSession(t *testing.T) {
	engine, h := newTestEngine(t)

	id, err := h.Sessions.CreateSession(sampleHAR(), nil, "view widgets", nil, archive.Options{})
	require.NoError(t, err)

	w := doRequest(engine, http.MethodGet, "/v1/harvest/sessions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var listResp struct {
		Sessions []string `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listResp))
	require.Contains(t, listResp.Sessions, id)

	w = doRequest(engine, http.MethodDelete, "/v1/harvest/sessions/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(engine, http.MethodGet, "/v1/harvest/sessions/"+id+"/status", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleStatus_NotFound(t *testing.T) {
	engine, _ := newTestEngine(t)

	w := doRequest(engine, http.MethodGet, "/v1/harvest/sessions/does-not-exist/status", nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &errResp))
	require.Equal(t, "session-not-found", errResp.Code)
}

func TestHandleStatus_BlockedWithoutMaster(t *testing.T) {
	engine, h := newTestEngine(t)

	id, err := h.Sessions.CreateSession(sampleHAR(), nil, "view widgets", nil, archive.Options{})
	require.NoError(t, err)

	w := doRequest(engine, http.MethodGet, "/v1/harvest/sessions/"+id+"/status", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp StatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.False(t, resp.IsComplete)
	require.NotEmpty(t, resp.Blockers)
}

func TestHandleDAG_RendersNodesAndEdges(t *testing.T) {
	engine, h := newTestEngine(t)

	id, err := h.Sessions.CreateSession(sampleHAR(), nil, "view widgets", nil, archive.Options{})
	require.NoError(t, err)

	w := doRequest(engine, http.MethodGet, "/v1/harvest/sessions/"+id+"/dag", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp DAGResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, id, resp.SessionID)
}

func TestHandleCompletedList_UnavailableWithoutCache(t *testing.T) {
	engine, _ := newTestEngine(t)

	w := doRequest(engine, http.MethodGet, "/v1/harvest/completed", nil)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHandleHealthAndReady(t *testing.T) {
	engine, _ := newTestEngine(t)

	w := doRequest(engine, http.MethodGet, "/v1/harvest/health", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(engine, http.MethodGet, "/v1/harvest/ready", nil)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestHandleRun_CompletesTwoStepWorkflow(t *testing.T) {
	engine, _ := newTestEngine(t)

	har := []byte(`{"log":{"entries":[
		{"startedDateTime":"2024-01-01T00:00:00Z","request":{"method":"GET","url":"https://svc/api/user","headers":[]},"response":{"status":200,"content":{"mimeType":"application/json","text":"{\"uid\":\"u-4200\"}"}}},
		{"startedDateTime":"2024-01-01T00:00:01Z","request":{"method":"GET","url":"https://svc/api/profile?uid=u-4200","headers":[]},"response":{"status":200,"content":{"mimeType":"application/json","text":"{\"name\":\"a\"}"}}}
	]}}`)

	body, err := json.Marshal(RunRequest{Archive: har, Prompt: "view my profile"})
	require.NoError(t, err)

	w := doRequest(engine, http.MethodPost, "/v1/harvest/sessions/run", body)
	require.Equal(t, http.StatusOK, w.Code)

	var resp RunResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.SessionID)
	require.True(t, resp.Complete)
}

func TestHandleDAGDiff_RequiresAgainstParam(t *testing.T) {
	engine, h := newTestEngine(t)

	id, err := h.Sessions.CreateSession(sampleHAR(), nil, "view widgets", nil, archive.Options{})
	require.NoError(t, err)

	w := doRequest(engine, http.MethodGet, "/v1/harvest/sessions/"+id+"/dag.diff", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStatusForCode_MapsKnownCodes(t *testing.T) {
	cases := map[string]int{
		"session-not-found":     http.StatusNotFound,
		"capacity-exceeded":     http.StatusServiceUnavailable,
		"circular-dependencies": http.StatusConflict,
		"malformed-archive":     http.StatusBadRequest,
		"cancelled":             http.StatusGatewayTimeout,
	}
	for code, want := range cases {
		require.Equal(t, want, statusForCode(errs.Code(code)))
	}
}
