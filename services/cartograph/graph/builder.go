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
	"runtime"
	"sort"
	"time"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/wseabra/marco-polo/services/cartograph/classify"
	"github.com/wseabra/marco-polo/services/cartograph/config"
	"github.com/wseabra/marco-polo/services/cartograph/inherit"
	"github.com/wseabra/marco-polo/services/cartograph/model"
	"github.com/wseabra/marco-polo/services/cartograph/resolve"
)

// ProgressPhase indicates which phase of building is in progress.
type ProgressPhase int

const (
	// ProgressPhaseClassifying indicates members and methods are being
	// classified into edges.
	ProgressPhaseClassifying ProgressPhase = iota

	// ProgressPhaseInheritance indicates the inheritance DAG is being
	// resolved and cycle-checked.
	ProgressPhaseInheritance

	// ProgressPhaseMerging indicates duplicate edges are being merged by
	// strength precedence.
	ProgressPhaseMerging

	// ProgressPhaseFinalizing indicates the graph is being frozen.
	ProgressPhaseFinalizing
)

// String returns the string representation of the ProgressPhase.
func (p ProgressPhase) String() string {
	switch p {
	case ProgressPhaseClassifying:
		return "classifying"
	case ProgressPhaseInheritance:
		return "inheritance"
	case ProgressPhaseMerging:
		return "merging"
	case ProgressPhaseFinalizing:
		return "finalizing"
	default:
		return "unknown"
	}
}

// BuildProgress contains progress information during a build.
type BuildProgress struct {
	// Phase is the current build phase.
	Phase ProgressPhase

	// ClassesTotal is the number of classes in the batch.
	ClassesTotal int

	// ClassesProcessed is the number of classes classified so far.
	ClassesProcessed int
}

// ProgressFunc is a callback for build progress updates. It may be called
// from multiple goroutines during the classification phase.
type ProgressFunc func(progress BuildProgress)

// BuildStats summarizes one build.
type BuildStats struct {
	// ClassesProcessed is the number of classes classified.
	ClassesProcessed int `json:"classes_processed"`

	// EdgesCreated is the number of edges admitted into the graph after
	// merging.
	EdgesCreated int `json:"edges_created"`

	// EdgesMerged is the number of weaker duplicate edges folded into a
	// stronger edge's label list.
	EdgesMerged int `json:"edges_merged"`

	// DurationMilli is the wall-clock build duration in milliseconds.
	DurationMilli int64 `json:"duration_milli"`
}

// BuildResult contains the graph, diagnostics, and build statistics.
type BuildResult struct {
	// Graph is the assembled class graph. Never nil.
	Graph *ClassGraph

	// Diagnostics aggregates classifier and inheritance diagnostics in
	// deterministic order (also available via Graph.Diagnostics()).
	Diagnostics []model.Diagnostic

	// Stats summarizes the build.
	Stats BuildStats

	// Incomplete is true when the build was cut short by context
	// cancellation; the graph holds partial results.
	Incomplete bool
}

// Success reports whether the build ran to completion.
func (r *BuildResult) Success() bool {
	return !r.Incomplete
}

// HasCycle reports whether an InheritanceCycle diagnostic was produced,
// the one diagnostic class callers must treat as suspect for
// inheritance-dependent queries.
func (r *BuildResult) HasCycle() bool {
	for _, d := range r.Diagnostics {
		if d.Code == model.DiagInheritanceCycle {
			return true
		}
	}
	return false
}

// BuilderOptions configures Builder behavior.
type BuilderOptions struct {
	// WorkerCount is the number of parallel workers for per-class
	// classification. Default: runtime.NumCPU().
	WorkerCount int

	// ProgressCallback is called periodically with build progress.
	// May be nil.
	ProgressCallback ProgressFunc

	// Heuristics are the resolution/classification tables. Nil uses the
	// embedded defaults.
	Heuristics *config.Heuristics

	// RealizationEdges controls whether capability tags produce
	// Realization edges. Renderers that fold interface realization into
	// inheritance can disable this.
	RealizationEdges bool
}

// DefaultBuilderOptions returns sensible defaults.
func DefaultBuilderOptions() BuilderOptions {
	return BuilderOptions{
		WorkerCount:      runtime.NumCPU(),
		RealizationEdges: true,
	}
}

// BuilderOption is a functional option for configuring Builder.
type BuilderOption func(*BuilderOptions)

// WithWorkerCount sets the number of parallel classification workers.
func WithWorkerCount(n int) BuilderOption {
	return func(o *BuilderOptions) {
		o.WorkerCount = n
	}
}

// WithProgressCallback sets the progress callback function.
func WithProgressCallback(fn ProgressFunc) BuilderOption {
	return func(o *BuilderOptions) {
		o.ProgressCallback = fn
	}
}

// WithHeuristics sets the resolution/classification tables.
func WithHeuristics(h *config.Heuristics) BuilderOption {
	return func(o *BuilderOptions) {
		o.Heuristics = h
	}
}

// WithoutRealizationEdges disables capability Realization edges.
func WithoutRealizationEdges() BuilderOption {
	return func(o *BuilderOptions) {
		o.RealizationEdges = false
	}
}

// Builder constructs class graphs from structural model batches.
//
// Description:
//
//	The builder is stateless and reusable; each Build() call operates on
//	its own internal state and produces a new immutable ClassGraph.
//	Per-class classification runs in parallel (classification of one
//	class has no data dependency on another's results); the inheritance
//	cycle check is a single sequential pass over the resolved base-class
//	table. Merge order is the sorted class order, so the output is
//	deterministic regardless of worker interleaving.
//
// Thread Safety: Builder is safe for concurrent use.
type Builder struct {
	options    BuilderOptions
	resolver   *resolve.Resolver
	classifier *classify.Classifier
}

// NewBuilder creates a new Builder with the given options.
//
// Example:
//
//	builder := NewBuilder(
//	    WithWorkerCount(4),
//	    WithHeuristics(cfg),
//	)
func NewBuilder(opts ...BuilderOption) *Builder {
	options := DefaultBuilderOptions()
	for _, opt := range opts {
		opt(&options)
	}
	if options.WorkerCount <= 0 {
		options.WorkerCount = runtime.NumCPU()
	}
	if options.Heuristics == nil {
		options.Heuristics, _ = config.Default()
	}

	resolver := resolve.NewResolver(options.Heuristics)
	return &Builder{
		options:    options,
		resolver:   resolver,
		classifier: classify.NewClassifier(resolver, options.Heuristics),
	}
}

// Build assembles the class graph for one batch.
//
// Description:
//
//	Runs classification (parallel), inheritance resolution (sequential),
//	and precedence merging, then freezes the graph. Individual
//	unresolvable references degrade to diagnostics; the only error-like
//	outcome is context cancellation, which yields a partial result with
//	Incomplete set rather than an error.
//
// Inputs:
//
//	ctx - Context for cancellation, checked between phases and per class.
//	batch - The structural model snapshot. Nil builds an empty graph.
//
// Outputs:
//
//	*BuildResult - Graph, diagnostics, and statistics. Never nil.
//	error - Non-nil only for internal invariant violations.
func (b *Builder) Build(ctx context.Context, batch *model.Batch) (*BuildResult, error) {
	ctx, span := startBuildSpan(ctx, batchLen(batch))
	defer span.End()

	start := time.Now()
	result := &BuildResult{Graph: NewClassGraph()}

	if batch == nil || batch.Len() == 0 {
		result.Graph.Freeze()
		result.Stats.DurationMilli = time.Since(start).Milliseconds()
		setBuildSpanResult(span, 0, 0, 0, false)
		recordBuildMetrics(time.Since(start), true)
		return result, nil
	}

	// Phase 1: per-class classification, bounded parallelism. Results
	// land in a slice indexed by sorted class order so the merge phase
	// is deterministic.
	names := batch.Names()
	classResults := make([]classify.Result, len(names))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(b.options.WorkerCount)
	for i, name := range names {
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			class, _ := batch.Lookup(name)
			classResults[i] = b.classifier.ClassifyClass(class, batch)
			b.reportProgress(ProgressPhaseClassifying, len(names), i+1)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		// Cancelled mid-classification: assemble whatever completed
		// (unstarted classes left empty results) and skip the
		// inheritance pass, which needs a full batch walk.
		result.Incomplete = true
		if err := b.assemble(result, batch, names, classResults, nil); err != nil {
			return nil, err
		}
		b.finish(result, batch, start, span)
		return result, nil
	}

	// Phase 2: inheritance, single sequential pass.
	b.reportProgress(ProgressPhaseInheritance, len(names), len(names))
	inhResult := inherit.BuildInheritance(batch, b.resolver)

	if err := ctx.Err(); err != nil {
		result.Incomplete = true
	}

	// Phase 3: precedence merge and graph assembly.
	if err := b.assemble(result, batch, names, classResults, inhResult); err != nil {
		return nil, err
	}

	// Phase 4: finalize.
	b.finish(result, batch, start, span)
	return result, nil
}

// assemble registers classes and merges classification and inheritance
// edges into the result graph. A nil inhResult assembles classification
// edges only.
func (b *Builder) assemble(result *BuildResult, batch *model.Batch, names []string, classResults []classify.Result, inhResult *inherit.Result) error {
	b.reportProgress(ProgressPhaseMerging, len(names), len(names))
	for _, name := range names {
		class, _ := batch.Lookup(name)
		if err := result.Graph.AddClass(class); err != nil {
			return err
		}
	}

	merged := make(map[string]*model.RelationshipEdge)
	var order []string
	admit := func(edge model.RelationshipEdge) {
		if !b.options.RealizationEdges && edge.Kind == model.KindRealization {
			return
		}
		key := edge.Key()
		existing, ok := merged[key]
		if !ok {
			e := edge
			merged[key] = &e
			order = append(order, key)
			return
		}
		result.Stats.EdgesMerged++
		if edge.Kind.Mergeable() && edge.Kind.Stronger(existing.Kind) {
			existing.Kind = edge.Kind
		}
		existing.Labels = mergeLabels(existing.Labels, edge.Labels)
		existing.Cyclic = existing.Cyclic || edge.Cyclic
	}

	for i := range classResults {
		for _, edge := range classResults[i].Edges {
			admit(edge)
		}
		result.Diagnostics = append(result.Diagnostics, classResults[i].Diagnostics...)
	}
	if inhResult != nil {
		for _, edge := range inhResult.Edges {
			admit(edge)
		}
		result.Diagnostics = append(result.Diagnostics, inhResult.Diagnostics...)
	}

	for _, key := range order {
		edge := *merged[key]
		sort.Strings(edge.Labels)
		if err := result.Graph.AddEdge(edge); err != nil {
			return err
		}
		edgesCreatedTotal.WithLabelValues(edge.Kind.String()).Inc()
		result.Stats.EdgesCreated++
	}
	return result.Graph.AddDiagnostics(result.Diagnostics...)
}

// finish freezes the graph and records stats, span, and metrics.
func (b *Builder) finish(result *BuildResult, batch *model.Batch, start time.Time, span trace.Span) {
	b.reportProgress(ProgressPhaseFinalizing, batchLen(batch), batchLen(batch))
	result.Graph.Freeze()
	result.Stats.ClassesProcessed = batchLen(batch)
	result.Stats.DurationMilli = time.Since(start).Milliseconds()
	for _, d := range result.Diagnostics {
		diagnosticsTotal.WithLabelValues(string(d.Code)).Inc()
	}
	setBuildSpanResult(span, result.Graph.ClassCount(), result.Graph.EdgeCount(),
		len(result.Diagnostics), result.Incomplete)
	recordBuildMetrics(time.Since(start), !result.Incomplete)
}

// reportProgress invokes the progress callback when configured.
func (b *Builder) reportProgress(phase ProgressPhase, total, processed int) {
	if b.options.ProgressCallback == nil {
		return
	}
	b.options.ProgressCallback(BuildProgress{
		Phase:            phase,
		ClassesTotal:     total,
		ClassesProcessed: processed,
	})
}

// mergeLabels unions two label lists, deduplicated.
func mergeLabels(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range a {
		if _, dup := seen[s]; !dup {
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	for _, s := range b {
		if _, dup := seen[s]; !dup {
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}

func batchLen(batch *model.Batch) int {
	if batch == nil {
		return 0
	}
	return batch.Len()
}
