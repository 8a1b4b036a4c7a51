// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// tracer is the shared OTel tracer for graph building.
var tracer = otel.Tracer("cartograph.graph")

// Package-level Prometheus metrics for graph builds. Auto-registered via
// promauto so no explicit registry wiring is needed.
var (
	// buildDuration measures the duration of graph builds.
	//
	// Labels:
	//   - status: "success" or "error"
	buildDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "cartograph",
			Subsystem: "graph",
			Name:      "build_duration_seconds",
			Help:      "Duration of class graph builds in seconds.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
		},
		[]string{"status"},
	)

	// buildsTotal counts graph builds.
	//
	// Labels:
	//   - status: "success" or "error"
	buildsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cartograph",
			Subsystem: "graph",
			Name:      "builds_total",
			Help:      "Total number of class graph builds.",
		},
		[]string{"status"},
	)

	// edgesCreatedTotal counts relationship edges admitted into graphs,
	// by kind.
	edgesCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cartograph",
			Subsystem: "graph",
			Name:      "edges_created_total",
			Help:      "Total relationship edges admitted into class graphs.",
		},
		[]string{"kind"},
	)

	// diagnosticsTotal counts diagnostics emitted during builds, by code.
	diagnosticsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cartograph",
			Subsystem: "graph",
			Name:      "diagnostics_total",
			Help:      "Total diagnostics emitted during class graph builds.",
		},
		[]string{"code"},
	)
)

// startBuildSpan begins the tracing span for one build.
func startBuildSpan(ctx context.Context, classCount int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "ClassGraphBuilder.Build",
		trace.WithAttributes(
			attribute.Int("batch.classes", classCount),
		),
	)
}

// setBuildSpanResult records the outcome attributes on the build span.
func setBuildSpanResult(span trace.Span, classes, edges, diagnostics int, incomplete bool) {
	span.SetAttributes(
		attribute.Int("graph.classes", classes),
		attribute.Int("graph.edges", edges),
		attribute.Int("graph.diagnostics", diagnostics),
		attribute.Bool("graph.incomplete", incomplete),
	)
}

// recordBuildMetrics records the Prometheus metrics for one build.
func recordBuildMetrics(duration time.Duration, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	buildDuration.WithLabelValues(status).Observe(duration.Seconds())
	buildsTotal.WithLabelValues(status).Inc()
}
