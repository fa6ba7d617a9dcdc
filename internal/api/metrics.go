// Copyright (C) 2025 harvest contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for the Resource Surface, following a promauto.NewCounterVec/
// NewHistogramVec idiom: resolver iterations, cache hits/misses, cache
// write latency, and end-to-end run latency, each labeled by outcome.
var (
	// resolverIterationsTotal counts resolver.Step calls by outcome
	// (resolved, skipped, blocked-on-dependencies, analysis-complete).
	resolverIterationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "harvest",
		Subsystem: "resolver",
		Name:      "iterations_total",
		Help:      "Total resolver.Step calls by outcome",
	}, []string{"outcome"})

	// cacheLookupsTotal counts Completed-Session Cache lookups by result
	// (hit, miss).
	cacheLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "harvest",
		Subsystem: "cache",
		Name:      "lookups_total",
		Help:      "Total completed-session cache lookups by result",
	}, []string{"result"})

	// cacheWriteLatencySeconds measures how long materializing a
	// completed session's artifacts under the cache root takes.
	cacheWriteLatencySeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "harvest",
		Subsystem: "cache",
		Name:      "write_latency_seconds",
		Help:      "Completed-Session Cache artifact write latency",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2},
	})

	// runLatencySeconds measures the Workflow Orchestrator's end-to-end
	// Run call latency.
	runLatencySeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "harvest",
		Subsystem: "orchestrator",
		Name:      "run_latency_seconds",
		Help:      "Workflow Orchestrator Run call latency by outcome",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
	}, []string{"outcome"})
)
