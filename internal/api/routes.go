// Copyright (C) 2025 harvest contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package api

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers every /v1/harvest/* endpoint with the given
// router group: one nested group per resource family, handlers bound
// to a single Handlers value.
//
// Core Endpoints:
//
//	POST   /v1/harvest/sessions        - create-session
//	GET    /v1/harvest/sessions        - list-sessions
//	DELETE /v1/harvest/sessions/:id    - delete-session
//	POST   /v1/harvest/sessions/run    - one-shot Workflow Orchestrator
//
// Per-session Resource Endpoints:
//
//	GET  /v1/harvest/sessions/:id/status    - status.json
//	GET  /v1/harvest/sessions/:id/dag       - dag.json
//	GET  /v1/harvest/sessions/:id/dag.diff  - debug: unified DAG diff
//	GET  /v1/harvest/sessions/:id/log       - log.txt (?stream=1 for websocket tail)
//	POST /v1/harvest/sessions/:id/resolve   - debug: drive one resolver iteration
//
// Completed-Session Cache Endpoints:
//
//	GET /v1/harvest/completed              - artifacts/list.json
//	GET /v1/harvest/completed/:id/:artifact - one cached artifact file
//
// Health Endpoints:
//
//	GET /v1/harvest/health - liveness
//	GET /v1/harvest/ready  - readiness
func RegisterRoutes(rg *gin.RouterGroup, h *Handlers) {
	harvest := rg.Group("/harvest")
	{
		sessions := harvest.Group("/sessions")
		{
			sessions.POST("", h.HandleCreateSession)
			sessions.GET("", h.HandleListSessions)
			sessions.POST("/run", h.HandleRun)
			sessions.DELETE("/:id", h.HandleDeleteSession)

			sessions.GET("/:id/status", h.HandleStatus)
			sessions.GET("/:id/dag", h.HandleDAG)
			sessions.GET("/:id/dag.diff", h.HandleDAGDiff)
			sessions.GET("/:id/log", h.HandleLog)
			sessions.POST("/:id/resolve", h.HandleResolve)
		}

		completed := harvest.Group("/completed")
		{
			completed.GET("", h.HandleCompletedList)
			completed.GET("/:id/:artifact", h.HandleCompletedArtifact)
		}

		harvest.GET("/health", h.HandleHealth)
		harvest.GET("/ready", h.HandleReady)
	}
}
