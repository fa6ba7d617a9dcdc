// Copyright (C) 2025 harvest contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package api

import (
	"github.com/gin-gonic/gin"
	otelgin "go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewEngine builds the gin.Engine serving the Resource Surface: otelgin
// tracing, request-id assignment, the /v1/harvest/* route tree, and a
// Prometheus /metrics exposition, wrapping RegisterRoutes with its own
// middleware chain at the call site rather than inside the route
// registration itself.
func NewEngine(h *Handlers) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestIDMiddleware())
	engine.Use(otelgin.Middleware("harvest"))

	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := engine.Group("/v1")
	RegisterRoutes(v1, h)

	return engine
}

// requestIDMiddleware assigns a request id up front so every handler's
// getOrCreateRequestID call sees the same value, threading one
// per-request correlation id through every slog.With(...) call a
// request touches.
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		getOrCreateRequestID(c)
		c.Next()
	}
}
