// Copyright (C) 2025 harvest contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/oscaromsn/harvest/internal/session"
)

// setupTelemetry installs a stdout-backed TracerProvider and
// MeterProvider as the global otel providers, so otelgin's per-request
// spans and the live-session gauge below land somewhere without
// requiring an external collector. Returns a shutdown func flushing
// both providers.
func setupTelemetry(ctx context.Context, sessions *session.Manager) (func(context.Context) error, error) {
	traceExporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("creating stdout trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(traceExporter))
	otel.SetTracerProvider(tp)

	metricExporter, err := stdoutmetric.New()
	if err != nil {
		return nil, fmt.Errorf("creating stdout metric exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)))
	otel.SetMeterProvider(mp)

	if err := registerSessionGauge(mp, sessions); err != nil {
		return nil, fmt.Errorf("registering live-session gauge: %w", err)
	}

	return func(shutdownCtx context.Context) error {
		if err := tp.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return mp.Shutdown(shutdownCtx)
	}, nil
}

// registerSessionGauge exposes the Session Manager's live session
// count as an observable gauge, read at each metric collection tick
// rather than incremented/decremented at each mutation site.
func registerSessionGauge(mp *sdkmetric.MeterProvider, sessions *session.Manager) error {
	meter := mp.Meter("harvest.cmd.harvestd")
	gauge, err := meter.Int64ObservableGauge("harvest.sessions.live",
		metric.WithDescription("number of sessions currently held by the Session Manager"))
	if err != nil {
		return err
	}
	_, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveInt64(gauge, int64(len(sessions.ListSessions())))
		return nil
	}, gauge)
	return err
}
