// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package classify decides the relationship kind for every member,
// parameter, and return type reference of a class.
//
// The rules are an ownership heuristic over declaration syntax, not a true
// ownership analysis. A pointer member that is owned exclusively and never
// shared will be classified as Aggregation unless the provider attaches an
// OwnershipHint. This imprecision is documented and accepted; the hint is
// the escape hatch.
package classify

import (
	"fmt"

	"github.com/wseabra/marco-polo/services/cartograph/config"
	"github.com/wseabra/marco-polo/services/cartograph/model"
	"github.com/wseabra/marco-polo/services/cartograph/resolve"
)

// Result carries the edges and diagnostics produced for one class (or one
// member/method when using the fine-grained entry points).
type Result struct {
	// Edges are the classified relationship edges, in declaration order.
	// Merging duplicate pairs is the graph builder's job, not ours.
	Edges []model.RelationshipEdge

	// Diagnostics are the non-fatal problems found while classifying.
	Diagnostics []model.Diagnostic
}

// Classifier classifies type references into relationship edges.
//
// Description:
//
//	Classification rules, in priority order, first match wins per
//	reference:
//
//	 1. Member held by value (or container-of-value) → Composition.
//	    The owning class constructs and destroys the part.
//	 2. Member held by pointer/reference (or container-of-pointer) with
//	    outside-supply evidence — a constructor parameter or setter whose
//	    parameter resolves to the same target — → Aggregation.
//	 3. Remaining pointer/reference members → Association.
//	 4. Method parameter and return references → Dependency, with
//	    self-dependencies suppressed.
//
//	An OwnershipHint on the member overrides the syntax heuristics in
//	either direction. References external to the batch never produce
//	edges; non-builtin unknowns produce UnresolvedTypeReference
//	diagnostics.
//
// Thread Safety: Classifier is immutable after construction. Classifying
// distinct classes has no shared state and may run concurrently.
type Classifier struct {
	resolver   *resolve.Resolver
	heuristics *config.Heuristics
}

// NewClassifier creates a Classifier. Nil arguments fall back to the
// embedded default heuristics.
func NewClassifier(r *resolve.Resolver, h *config.Heuristics) *Classifier {
	if h == nil {
		h, _ = config.Default()
	}
	if r == nil {
		r = resolve.NewResolver(h)
	}
	return &Classifier{resolver: r, heuristics: h}
}

// ClassifyClass classifies every member, method, and capability of one
// class against the batch.
//
// Inputs:
//
//	class - The class to classify. Must not be nil.
//	batch - The batch the class belongs to. Must not be nil.
//
// Outputs:
//
//	Result - Edges in declaration order plus diagnostics. Never shares
//	state with other calls, so distinct classes may be classified in
//	parallel.
func (c *Classifier) ClassifyClass(class *model.ClassEntity, batch *model.Batch) Result {
	var res Result

	for i := range class.Members {
		edge, diags := c.ClassifyMember(&class.Members[i], class, batch)
		res.Diagnostics = append(res.Diagnostics, diags...)
		if edge != nil {
			res.Edges = append(res.Edges, *edge)
		}
	}

	for i := range class.Methods {
		edges, diags := c.ClassifyMethod(&class.Methods[i], batch)
		res.Diagnostics = append(res.Diagnostics, diags...)
		res.Edges = append(res.Edges, edges...)
	}

	res.Edges = append(res.Edges, c.classifyCapabilities(class, batch, &res)...)

	return res
}

// ClassifyMember classifies a single member declaration.
//
// Description:
//
//	Applies rules 1–3 (Composition/Aggregation/Association). External
//	references produce no edge; unknown non-builtin references produce an
//	UnresolvedTypeReference diagnostic.
//
// Outputs:
//
//	*model.RelationshipEdge - The classified edge, or nil when the
//	reference is external.
//	[]model.Diagnostic - Diagnostics for unresolved references.
func (c *Classifier) ClassifyMember(member *model.MemberDeclaration, class *model.ClassEntity, batch *model.Batch) (*model.RelationshipEdge, []model.Diagnostic) {
	ref := c.resolver.Resolve(member.RawType, batch)
	if ref.External {
		if !ref.Builtin && ref.Base != "" {
			return nil, []model.Diagnostic{{
				Code:   model.DiagUnresolvedTypeReference,
				Class:  member.Owner,
				Member: member.Name,
				Detail: fmt.Sprintf("member type %q does not resolve within the batch", member.RawType),
			}}
		}
		return nil, nil
	}

	kind := c.memberKind(member, ref, class, batch)
	return &model.RelationshipEdge{
		Source: member.Owner,
		Target: ref.Target,
		Kind:   kind,
		Labels: []string{member.Name},
	}, nil
}

// memberKind applies the ownership rules to a resolved member reference.
func (c *Classifier) memberKind(member *model.MemberDeclaration, ref model.TypeReference, class *model.ClassEntity, batch *model.Batch) model.RelationshipKind {
	// Provider hints trump syntax in both directions.
	switch member.Ownership {
	case model.OwnershipOwned:
		return model.KindComposition
	case model.OwnershipShared:
		return model.KindAggregation
	}

	switch ref.Storage {
	case model.StorageValue, model.StorageContainerOfValue:
		// Rule 1: a plain field held by value is constructed and
		// destroyed with the whole.
		return model.KindComposition
	default:
		// Rules 2 and 3: pointer-like storage.
		if c.suppliedFromOutside(member, ref.Target, class, batch) {
			return model.KindAggregation
		}
		return model.KindAssociation
	}
}

// suppliedFromOutside reports whether a pointer-like member has
// outside-supply evidence: a constructor parameter resolving to the same
// target class, or a setter-named method taking exactly one parameter of
// that target.
func (c *Classifier) suppliedFromOutside(member *model.MemberDeclaration, target string, class *model.ClassEntity, batch *model.Batch) bool {
	for i := range class.Methods {
		m := &class.Methods[i]
		switch {
		case m.IsConstructor:
			for _, p := range m.Parameters {
				if c.resolver.Resolve(p.RawType, batch).Target == target {
					return true
				}
			}
		case c.heuristics.IsSetterName(m.Name) && len(m.Parameters) == 1:
			if c.resolver.Resolve(m.Parameters[0].RawType, batch).Target == target {
				return true
			}
		}
	}
	return false
}

// ClassifyMethod classifies a single method signature into Dependency
// edges.
//
// Description:
//
//	Rule 4: each distinct resolved target referenced by a parameter or
//	the return type yields one Dependency edge from the owning class,
//	labeled with the method name. A method consuming or producing its own
//	class produces no edge (self-reference suppression).
//
// Outputs:
//
//	[]model.RelationshipEdge - One edge per distinct resolved target, in
//	first-reference order.
//	[]model.Diagnostic - Diagnostics for unresolved references.
func (c *Classifier) ClassifyMethod(method *model.MethodSignature, batch *model.Batch) ([]model.RelationshipEdge, []model.Diagnostic) {
	var edges []model.RelationshipEdge
	var diags []model.Diagnostic
	seen := make(map[string]struct{})

	classify := func(raw string) {
		if raw == "" {
			return
		}
		ref := c.resolver.Resolve(raw, batch)
		if ref.External {
			if !ref.Builtin && ref.Base != "" {
				diags = append(diags, model.Diagnostic{
					Code:   model.DiagUnresolvedTypeReference,
					Class:  method.Owner,
					Member: method.Name,
					Detail: fmt.Sprintf("signature type %q does not resolve within the batch", raw),
				})
			}
			return
		}
		// Self-reference suppression: a class depending on itself
		// carries no diagram information.
		if ref.Target == method.Owner {
			return
		}
		if _, dup := seen[ref.Target]; dup {
			return
		}
		seen[ref.Target] = struct{}{}
		edges = append(edges, model.RelationshipEdge{
			Source: method.Owner,
			Target: ref.Target,
			Kind:   model.KindDependency,
			Labels: []string{method.Name},
		})
	}

	for _, p := range method.Parameters {
		classify(p.RawType)
	}
	classify(method.ReturnType)

	return edges, diags
}

// classifyCapabilities emits Realization edges for resolved capability
// tags. Unresolved tags surface as UnresolvedTypeReference diagnostics.
func (c *Classifier) classifyCapabilities(class *model.ClassEntity, batch *model.Batch, res *Result) []model.RelationshipEdge {
	var edges []model.RelationshipEdge
	for _, capability := range class.Capabilities {
		ref := c.resolver.Resolve(capability, batch)
		if ref.External {
			if !ref.Builtin && ref.Base != "" {
				res.Diagnostics = append(res.Diagnostics, model.Diagnostic{
					Code:   model.DiagUnresolvedTypeReference,
					Class:  class.Name,
					Member: capability,
					Detail: fmt.Sprintf("capability %q does not resolve within the batch", capability),
				})
			}
			continue
		}
		if ref.Target == class.Name {
			continue
		}
		edges = append(edges, model.RelationshipEdge{
			Source: class.Name,
			Target: ref.Target,
			Kind:   model.KindRealization,
			Labels: []string{capability},
		})
	}
	return edges
}
