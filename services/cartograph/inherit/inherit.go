// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package inherit builds and validates the inheritance DAG from declared
// base-class lists.
//
// Multiple inheritance is supported: a class may declare any number of
// resolved bases, each an independent directed edge. Diamonds are legal
// and preserved. Cycles are reported and the cycle-closing edges are
// excluded from the acyclic ancestor view while remaining in the raw edge
// list.
package inherit

import (
	"fmt"
	"sort"

	"github.com/wseabra/marco-polo/services/cartograph/model"
	"github.com/wseabra/marco-polo/services/cartograph/resolve"
)

// Result is the outcome of inheritance resolution for one batch.
//
// Thread Safety: Immutable after BuildInheritance returns; safe for
// concurrent use.
type Result struct {
	// Edges are all inheritance edges, subclass → superclass, including
	// cycle-closing edges flagged Cyclic. Duplicate declarations of the
	// same (subclass, superclass) pair are collapsed; distinct bases stay
	// distinct.
	Edges []model.RelationshipEdge

	// Diagnostics are the UnknownBaseClass and InheritanceCycle entries.
	Diagnostics []model.Diagnostic

	ancestors map[string][]string
}

// BuildInheritance resolves declared bases into inheritance edges and
// computes the acyclic ancestor view.
//
// Description:
//
//	For each class, each declared base name is resolved against the
//	batch; unresolved bases are dropped with an UnknownBaseClass
//	diagnostic but do not fail the run. After building all edges a
//	depth-first cycle check with visited/in-progress marking runs over
//	the subclass→superclass relation in sorted class order, so results
//	are deterministic. Any back edge is flagged Cyclic and reported as
//	InheritanceCycle. Ancestor sets are the union of parents' ancestor
//	sets plus the parents themselves, computed over the acyclic view.
//
// Inputs:
//
//	batch - The batch to analyze. Must not be nil.
//	resolver - The type-reference resolver. Must not be nil.
//
// Outputs:
//
//	*Result - Edges, diagnostics, and the ancestor view. Never nil.
func BuildInheritance(batch *model.Batch, resolver *resolve.Resolver) *Result {
	res := &Result{ancestors: make(map[string][]string)}

	// Resolve declared bases into a parent table. Duplicate
	// (subclass, superclass) declarations collapse here.
	parents := make(map[string][]string, batch.Len())
	for _, name := range batch.Names() {
		class, _ := batch.Lookup(name)
		seen := make(map[string]struct{}, len(class.Bases))
		for _, base := range class.Bases {
			ref := resolver.Resolve(base, batch)
			if ref.External {
				res.Diagnostics = append(res.Diagnostics, model.Diagnostic{
					Code:   model.DiagUnknownBaseClass,
					Class:  name,
					Member: base,
					Detail: fmt.Sprintf("declared base %q does not resolve within the batch", base),
				})
				continue
			}
			if _, dup := seen[ref.Target]; dup {
				continue
			}
			seen[ref.Target] = struct{}{}
			parents[name] = append(parents[name], ref.Target)
		}
	}

	// Cycle check with white/grey/black marking. Back edges (to a node
	// currently in progress) close a cycle.
	const (
		white = 0 // unvisited
		grey  = 1 // in progress
		black = 2 // done
	)
	color := make(map[string]int, batch.Len())
	cyclic := make(map[string]map[string]bool)

	var visit func(name string)
	visit = func(name string) {
		color[name] = grey
		for _, parent := range parents[name] {
			switch color[parent] {
			case grey:
				if cyclic[name] == nil {
					cyclic[name] = make(map[string]bool)
				}
				cyclic[name][parent] = true
				res.Diagnostics = append(res.Diagnostics, model.Diagnostic{
					Code:   model.DiagInheritanceCycle,
					Class:  name,
					Member: parent,
					Detail: fmt.Sprintf("inheritance edge %s -> %s closes a cycle; excluded from ancestor queries", name, parent),
				})
			case white:
				visit(parent)
			}
		}
		color[name] = black
	}
	for _, name := range batch.Names() {
		if color[name] == white {
			visit(name)
		}
	}

	// Materialize edges, flagging the cycle-closing ones.
	for _, name := range batch.Names() {
		for _, parent := range parents[name] {
			res.Edges = append(res.Edges, model.RelationshipEdge{
				Source: name,
				Target: parent,
				Kind:   model.KindInheritance,
				Cyclic: cyclic[name][parent],
			})
		}
	}

	// Ancestor sets over the acyclic view. Removing every back edge
	// leaves a DAG, so the memoized walk terminates.
	memo := make(map[string]map[string]struct{}, batch.Len())
	var collect func(name string) map[string]struct{}
	collect = func(name string) map[string]struct{} {
		if set, ok := memo[name]; ok {
			return set
		}
		set := make(map[string]struct{})
		memo[name] = set
		for _, parent := range parents[name] {
			if cyclic[name][parent] {
				continue
			}
			set[parent] = struct{}{}
			for anc := range collect(parent) {
				set[anc] = struct{}{}
			}
		}
		return set
	}
	for _, name := range batch.Names() {
		set := collect(name)
		sorted := make([]string, 0, len(set))
		for anc := range set {
			sorted = append(sorted, anc)
		}
		sort.Strings(sorted)
		res.ancestors[name] = sorted
	}

	return res
}

// Ancestors returns the full acyclic ancestor set of the class, sorted.
// Diamond paths contribute each ancestor once. The returned slice must not
// be modified.
func (r *Result) Ancestors(name string) []string {
	return r.ancestors[name]
}

// IsAncestor reports whether ancestor appears in the acyclic ancestor set
// of name (the "is-a" query).
func (r *Result) IsAncestor(name, ancestor string) bool {
	for _, a := range r.ancestors[name] {
		if a == ancestor {
			return true
		}
	}
	return false
}

// HasCycle reports whether any InheritanceCycle diagnostic was produced.
func (r *Result) HasCycle() bool {
	for _, d := range r.Diagnostics {
		if d.Code == model.DiagInheritanceCycle {
			return true
		}
	}
	return false
}
