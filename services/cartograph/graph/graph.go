// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package graph assembles classified relationship edges into a single
// queryable class graph.
package graph

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/wseabra/marco-polo/services/cartograph/model"
)

// Sentinel errors for graph mutation.
var (
	// ErrGraphFrozen is returned when mutating a frozen graph.
	ErrGraphFrozen = errors.New("graph is frozen")

	// ErrUnknownEndpoint is returned when an edge references a class that
	// is not in the graph.
	ErrUnknownEndpoint = errors.New("edge endpoint not in graph")

	// ErrDuplicateClass is returned when adding a class name twice.
	ErrDuplicateClass = errors.New("class already in graph")
)

// ClassGraph is the assembled, queryable relationship graph for one batch.
//
// Description:
//
//	Construction (AddClass/AddEdge, normally driven by the Builder) is
//	the single mutation point; Freeze() transitions the graph to
//	read-only. Every edge's endpoints are validated against the class
//	set on insertion. Inheritance edges flagged Cyclic stay in the edge
//	list but are excluded from the ancestor/descendant views.
//
// Thread Safety:
//
//	Not safe for concurrent mutation. After Freeze() the graph is
//	immutable and safe for unlimited concurrent reads.
type ClassGraph struct {
	classes map[string]*model.ClassEntity
	names   []string

	edges    []model.RelationshipEdge
	bySource map[string][]int
	byTarget map[string][]int

	ancestors   map[string][]string
	descendants map[string][]string

	diagnostics []model.Diagnostic

	frozen bool

	// BuiltAtMilli is the Unix timestamp in milliseconds when the graph
	// was frozen.
	BuiltAtMilli int64
}

// NewClassGraph creates an empty graph in building state.
func NewClassGraph() *ClassGraph {
	return &ClassGraph{
		classes:     make(map[string]*model.ClassEntity),
		bySource:    make(map[string][]int),
		byTarget:    make(map[string][]int),
		ancestors:   make(map[string][]string),
		descendants: make(map[string][]string),
	}
}

// AddClass adds a class entity to the graph.
//
// Outputs:
//
//	error - ErrGraphFrozen after Freeze(), ErrDuplicateClass on repeated
//	names, or a validation error for nil/unnamed entities.
func (g *ClassGraph) AddClass(class *model.ClassEntity) error {
	if g.frozen {
		return ErrGraphFrozen
	}
	if class == nil || class.Name == "" {
		return fmt.Errorf("class must be non-nil with a name")
	}
	if _, dup := g.classes[class.Name]; dup {
		return fmt.Errorf("%w: %s", ErrDuplicateClass, class.Name)
	}
	g.classes[class.Name] = class
	g.names = append(g.names, class.Name)
	return nil
}

// AddEdge adds a relationship edge to the graph.
//
// Description:
//
//	Both endpoints must already be present; this enforces the graph
//	invariant that every edge's endpoints exist in the class set. The
//	caller (Builder) is responsible for merge/precedence handling before
//	insertion — AddEdge stores what it is given.
func (g *ClassGraph) AddEdge(edge model.RelationshipEdge) error {
	if g.frozen {
		return ErrGraphFrozen
	}
	if _, ok := g.classes[edge.Source]; !ok {
		return fmt.Errorf("%w: source %s", ErrUnknownEndpoint, edge.Source)
	}
	if _, ok := g.classes[edge.Target]; !ok {
		return fmt.Errorf("%w: target %s", ErrUnknownEndpoint, edge.Target)
	}
	idx := len(g.edges)
	g.edges = append(g.edges, edge)
	g.bySource[edge.Source] = append(g.bySource[edge.Source], idx)
	g.byTarget[edge.Target] = append(g.byTarget[edge.Target], idx)
	return nil
}

// AddDiagnostics appends diagnostics to the graph's diagnostics list.
func (g *ClassGraph) AddDiagnostics(diags ...model.Diagnostic) error {
	if g.frozen {
		return ErrGraphFrozen
	}
	g.diagnostics = append(g.diagnostics, diags...)
	return nil
}

// Freeze sorts the class and edge views, computes the ancestor and
// descendant indexes from the acyclic inheritance edges, and makes the
// graph immutable. Freeze is idempotent.
func (g *ClassGraph) Freeze() {
	if g.frozen {
		return
	}
	sort.Strings(g.names)

	// Canonical edge order: source, target, kind. Index slices are
	// rebuilt to match.
	sort.Slice(g.edges, func(i, j int) bool {
		if g.edges[i].Source != g.edges[j].Source {
			return g.edges[i].Source < g.edges[j].Source
		}
		if g.edges[i].Target != g.edges[j].Target {
			return g.edges[i].Target < g.edges[j].Target
		}
		return g.edges[i].Kind < g.edges[j].Kind
	})
	g.bySource = make(map[string][]int, len(g.classes))
	g.byTarget = make(map[string][]int, len(g.classes))
	for i, e := range g.edges {
		g.bySource[e.Source] = append(g.bySource[e.Source], i)
		g.byTarget[e.Target] = append(g.byTarget[e.Target], i)
	}

	g.computeInheritanceViews()
	g.BuiltAtMilli = time.Now().UnixMilli()
	g.frozen = true
}

// computeInheritanceViews derives ancestor and descendant sets from the
// non-cyclic inheritance edges.
func (g *ClassGraph) computeInheritanceViews() {
	parents := make(map[string][]string)
	for _, e := range g.edges {
		if e.Kind == model.KindInheritance && !e.Cyclic {
			parents[e.Source] = append(parents[e.Source], e.Target)
		}
	}

	memo := make(map[string]map[string]struct{}, len(g.names))
	var collect func(name string) map[string]struct{}
	collect = func(name string) map[string]struct{} {
		if set, ok := memo[name]; ok {
			return set
		}
		set := make(map[string]struct{})
		memo[name] = set
		for _, p := range parents[name] {
			set[p] = struct{}{}
			for anc := range collect(p) {
				set[anc] = struct{}{}
			}
		}
		return set
	}

	descendants := make(map[string]map[string]struct{})
	for _, name := range g.names {
		set := collect(name)
		sorted := make([]string, 0, len(set))
		for anc := range set {
			sorted = append(sorted, anc)
			if descendants[anc] == nil {
				descendants[anc] = make(map[string]struct{})
			}
			descendants[anc][name] = struct{}{}
		}
		sort.Strings(sorted)
		g.ancestors[name] = sorted
	}
	for anc, set := range descendants {
		sorted := make([]string, 0, len(set))
		for d := range set {
			sorted = append(sorted, d)
		}
		sort.Strings(sorted)
		g.descendants[anc] = sorted
	}
}

// Frozen reports whether the graph is read-only.
func (g *ClassGraph) Frozen() bool {
	return g.frozen
}

// ClassCount returns the number of classes in the graph.
func (g *ClassGraph) ClassCount() int {
	return len(g.names)
}

// EdgeCount returns the number of edges in the graph.
func (g *ClassGraph) EdgeCount() int {
	return len(g.edges)
}

// GetClass returns the class with the given qualified name.
func (g *ClassGraph) GetClass(name string) (*model.ClassEntity, bool) {
	c, ok := g.classes[name]
	return c, ok
}

// AllClasses returns all classes in sorted name order.
func (g *ClassGraph) AllClasses() []*model.ClassEntity {
	out := make([]*model.ClassEntity, 0, len(g.names))
	for _, name := range g.names {
		out = append(out, g.classes[name])
	}
	return out
}

// AllEdges returns a copy of every edge in canonical order, flagged
// cyclic inheritance edges included.
func (g *ClassGraph) AllEdges() []model.RelationshipEdge {
	out := make([]model.RelationshipEdge, len(g.edges))
	copy(out, g.edges)
	return out
}

// Diagnostics returns the diagnostics recorded during the build.
func (g *ClassGraph) Diagnostics() []model.Diagnostic {
	out := make([]model.Diagnostic, len(g.diagnostics))
	copy(out, g.diagnostics)
	return out
}

// AncestorsOf returns the full acyclic ancestor set of the class, sorted.
// Unknown classes return nil.
func (g *ClassGraph) AncestorsOf(name string) []string {
	return g.ancestors[name]
}

// DescendantsOf returns every class whose acyclic ancestor set contains
// the given class, sorted.
func (g *ClassGraph) DescendantsOf(name string) []string {
	return g.descendants[name]
}

// RelationshipsOf returns the outgoing edges of the class, optionally
// filtered to the given kinds, in canonical order.
func (g *ClassGraph) RelationshipsOf(name string, kinds ...model.RelationshipKind) []model.RelationshipEdge {
	var out []model.RelationshipEdge
	for _, idx := range g.bySource[name] {
		e := g.edges[idx]
		if len(kinds) > 0 && !kindIn(e.Kind, kinds) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// ReferencesTo returns the incoming edges of the class, optionally
// filtered to the given kinds, in canonical order.
func (g *ClassGraph) ReferencesTo(name string, kinds ...model.RelationshipKind) []model.RelationshipEdge {
	var out []model.RelationshipEdge
	for _, idx := range g.byTarget[name] {
		e := g.edges[idx]
		if len(kinds) > 0 && !kindIn(e.Kind, kinds) {
			continue
		}
		out = append(out, e)
	}
	return out
}

func kindIn(kind model.RelationshipKind, kinds []model.RelationshipKind) bool {
	for _, k := range kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// Hash returns a deterministic SHA-256 hex digest of the graph structure.
//
// Description:
//
//	The digest covers sorted class names and the canonical edge list
//	(source, target, kind, labels, cyclic flag). Two runs over the same
//	structural model snapshot produce identical hashes, which is the
//	idempotence check used by tests and snapshot metadata.
func (g *ClassGraph) Hash() string {
	h := sha256.New()
	for _, name := range g.names {
		h.Write([]byte("class:" + name + "\n"))
	}
	for _, e := range g.edges {
		fmt.Fprintf(h, "edge:%s>%s:%s:%s:%t\n",
			e.Source, e.Target, e.Kind, strings.Join(e.Labels, ","), e.Cyclic)
	}
	return hex.EncodeToString(h.Sum(nil))
}
