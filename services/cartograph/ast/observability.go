// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ast

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("cartograph.ast")

var (
	parseDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "cartograph",
		Subsystem: "ast",
		Name:      "parse_duration_seconds",
		Help:      "Time spent parsing a single source file.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
	}, []string{"language"})

	filesParsedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cartograph",
		Subsystem: "ast",
		Name:      "files_parsed_total",
		Help:      "Number of files parsed, by language and status.",
	}, []string{"language", "status"})

	classesExtractedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cartograph",
		Subsystem: "ast",
		Name:      "classes_extracted_total",
		Help:      "Number of class entities extracted, by language.",
	}, []string{"language"})
)

// startParseSpan begins a tracing span for one file parse.
func startParseSpan(ctx context.Context, language, filePath string, size int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Parser.Parse",
		trace.WithAttributes(
			attribute.String("parse.language", language),
			attribute.String("parse.file", filePath),
			attribute.Int("parse.size_bytes", size),
		))
}

// setParseSpanResult records extraction counts on the span.
func setParseSpanResult(span trace.Span, classes, errors int) {
	span.SetAttributes(
		attribute.Int("parse.classes", classes),
		attribute.Int("parse.errors", errors),
	)
}

// recordParseMetrics records Prometheus metrics for one parse attempt.
func recordParseMetrics(language string, duration time.Duration, classes int, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	parseDuration.WithLabelValues(language).Observe(duration.Seconds())
	filesParsedTotal.WithLabelValues(language, status).Inc()
	if classes > 0 {
		classesExtractedTotal.WithLabelValues(language).Add(float64(classes))
	}
}
