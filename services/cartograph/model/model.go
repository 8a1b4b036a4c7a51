// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package model defines the language-agnostic structural model consumed by
// the cartograph engine: class entities, their members and method
// signatures, resolved type references, and the relationship edges the
// engine produces from them.
//
// The model is data-only. Upstream providers (the ast parsers, or any
// external tool emitting the JSON form) construct entities; the engine
// never mutates them after batch construction.
package model

import (
	"fmt"
	"sort"
)

// StorageForm describes how a type reference is held at its declaration
// site. The classifier's ownership heuristics key off this.
type StorageForm int

const (
	// StorageValue is a bare, by-value declaration (e.g. `Logger logger`).
	StorageValue StorageForm = iota

	// StoragePointer is a pointer declaration (e.g. `Logger* logger`).
	StoragePointer

	// StorageReference is a reference declaration (e.g. `Logger& logger`).
	StorageReference

	// StorageContainerOfValue is a known container holding elements by
	// value (e.g. `std::vector<Post>`).
	StorageContainerOfValue

	// StorageContainerOfPointer is a known container holding elements by
	// pointer (e.g. `std::vector<Post*>`).
	StorageContainerOfPointer
)

// String returns the string representation of the StorageForm.
func (s StorageForm) String() string {
	switch s {
	case StorageValue:
		return "value"
	case StoragePointer:
		return "pointer"
	case StorageReference:
		return "reference"
	case StorageContainerOfValue:
		return "container_of_value"
	case StorageContainerOfPointer:
		return "container_of_pointer"
	default:
		return "unknown"
	}
}

// Visibility is the declared access level of a member or method. The core
// classification logic ignores it; it is preserved for diagram output.
type Visibility int

const (
	// VisibilityPublic maps to the `+` sigil in class diagrams.
	VisibilityPublic Visibility = iota

	// VisibilityProtected maps to the `#` sigil in class diagrams.
	VisibilityProtected

	// VisibilityPrivate maps to the `-` sigil in class diagrams.
	VisibilityPrivate
)

// String returns the string representation of the Visibility.
func (v Visibility) String() string {
	switch v {
	case VisibilityPublic:
		return "public"
	case VisibilityProtected:
		return "protected"
	case VisibilityPrivate:
		return "private"
	default:
		return "unknown"
	}
}

// Sigil returns the class-diagram prefix character for the Visibility.
func (v Visibility) Sigil() string {
	switch v {
	case VisibilityProtected:
		return "#"
	case VisibilityPrivate:
		return "-"
	default:
		return "+"
	}
}

// OwnershipHint is an optional provider-supplied annotation that overrides
// the syntactic ownership heuristics.
//
// Description:
//
//	Pointer-vs-value classification is inherently imprecise: a pointer
//	member that is owned exclusively and never shared would be
//	misclassified as Aggregation on syntax alone. Providers that know
//	better (through ownership analysis or manual annotation) can set a
//	hint; OwnershipUnspecified keeps the default heuristics.
type OwnershipHint int

const (
	// OwnershipUnspecified applies the default syntax-driven heuristics.
	OwnershipUnspecified OwnershipHint = iota

	// OwnershipOwned forces the strong-ownership (Composition) path.
	OwnershipOwned

	// OwnershipShared forces the weak-ownership (Aggregation) path.
	OwnershipShared
)

// String returns the string representation of the OwnershipHint.
func (o OwnershipHint) String() string {
	switch o {
	case OwnershipOwned:
		return "owned"
	case OwnershipShared:
		return "shared"
	default:
		return "unspecified"
	}
}

// MemberDeclaration is a single data member of a class.
type MemberDeclaration struct {
	// Owner is the qualified name of the declaring class.
	Owner string `json:"owner"`

	// Name is the member name as written.
	Name string `json:"name"`

	// RawType is the referenced type exactly as written, including
	// pointer/reference/container decoration.
	RawType string `json:"raw_type"`

	// Storage is the storage form inferred from the declaration.
	Storage StorageForm `json:"storage"`

	// Visibility is preserved for output and ignored by classification.
	Visibility Visibility `json:"visibility"`

	// Ownership is an optional annotation overriding the heuristics.
	Ownership OwnershipHint `json:"ownership,omitempty"`
}

// Parameter is a single parameter of a method signature.
type Parameter struct {
	// Name is the parameter name, possibly empty for unnamed parameters.
	Name string `json:"name,omitempty"`

	// RawType is the parameter type exactly as written.
	RawType string `json:"raw_type"`
}

// MethodSignature is a single method of a class. Bodies are never modeled;
// only the signature participates in relationship classification.
type MethodSignature struct {
	// Owner is the qualified name of the declaring class.
	Owner string `json:"owner"`

	// Name is the method name as written.
	Name string `json:"name"`

	// IsConstructor marks constructors/initializers. Constructor
	// parameters are outside-supply evidence for aggregation.
	IsConstructor bool `json:"is_constructor,omitempty"`

	// Parameters are the declared parameters, in order.
	Parameters []Parameter `json:"parameters,omitempty"`

	// ReturnType is the declared return type as written, or empty when
	// the method returns nothing.
	ReturnType string `json:"return_type,omitempty"`

	// Visibility is preserved for output and ignored by classification.
	Visibility Visibility `json:"visibility"`
}

// ClassEntity is one class in a batch. Identity is the scope-qualified
// Name, which must be unique within the batch.
//
// Thread Safety: Immutable after batch construction; safe for concurrent
// reads.
type ClassEntity struct {
	// Name is the scope-qualified class name (e.g. "UI::Button").
	Name string `json:"name"`

	// Members are the declared data members, in declaration order.
	Members []MemberDeclaration `json:"members,omitempty"`

	// Methods are the declared method signatures, in declaration order.
	Methods []MethodSignature `json:"methods,omitempty"`

	// Bases are the declared base-class names, in declaration order, as
	// written (resolution happens in the engine).
	Bases []string `json:"bases,omitempty"`

	// Capabilities are polymorphic capability tags ("implements
	// capability X") for interface-realization edges, distinct from the
	// base-class list.
	Capabilities []string `json:"capabilities,omitempty"`

	// IsAbstract marks classes with at least one pure-virtual/abstract
	// method. Informational; classification does not branch on it.
	IsAbstract bool `json:"is_abstract,omitempty"`

	// FilePath is where the class was declared, for traceability.
	FilePath string `json:"file_path,omitempty"`

	// StartLine and EndLine delimit the declaration, 1-based.
	StartLine int `json:"start_line,omitempty"`
	EndLine   int `json:"end_line,omitempty"`
}

// TypeReference is the resolved form of a raw type name appearing in a
// member, parameter, return type, or base-class list.
type TypeReference struct {
	// Raw is the type name exactly as written.
	Raw string `json:"raw"`

	// Base is the stripped base identifier (decoration removed).
	Base string `json:"base"`

	// Target is the qualified name of the resolved class, or empty when
	// the reference is external to the batch.
	Target string `json:"target,omitempty"`

	// External is true when the base identifier is not a class in the
	// batch (builtin, library type, or unknown). External references
	// never produce edges.
	External bool `json:"external,omitempty"`

	// Builtin is true for recognized language builtins (a subset of
	// External). Builtins do not produce diagnostics.
	Builtin bool `json:"builtin,omitempty"`

	// Storage is the storage form inferred from the decoration.
	Storage StorageForm `json:"storage"`
}

// RelationshipKind is the classified kind of a relationship edge.
//
// The member/method kinds form a total strength order used when merging
// duplicate edges for the same ordered class pair:
//
//	Composition > Aggregation > Association > Dependency
//
// Inheritance and Realization are orthogonal: they are never merged with
// the member/method kinds, even between the same pair.
type RelationshipKind int

const (
	// KindDependency: the source uses the target only through method
	// parameters or return values, not as stored state.
	KindDependency RelationshipKind = iota

	// KindAssociation: a non-owning stored reference with no ownership
	// evidence either way.
	KindAssociation

	// KindAggregation: weak ownership; the whole references a part whose
	// lifetime is managed outside the whole.
	KindAggregation

	// KindComposition: strong ownership; the part's lifetime is bound to
	// the whole.
	KindComposition

	// KindInheritance: subclass-to-superclass is-a relation.
	KindInheritance

	// KindRealization: implementation of a declared capability
	// (interface realization), kept separate from inheritance for
	// diagram fidelity.
	KindRealization
)

// String returns the string representation of the RelationshipKind.
func (k RelationshipKind) String() string {
	switch k {
	case KindDependency:
		return "dependency"
	case KindAssociation:
		return "association"
	case KindAggregation:
		return "aggregation"
	case KindComposition:
		return "composition"
	case KindInheritance:
		return "inheritance"
	case KindRealization:
		return "realization"
	default:
		return "unknown"
	}
}

// Mergeable reports whether the kind participates in strength-order
// merging. Inheritance and Realization edges are always kept separately.
func (k RelationshipKind) Mergeable() bool {
	return k == KindDependency || k == KindAssociation ||
		k == KindAggregation || k == KindComposition
}

// Stronger reports whether k outranks other in the merge order. Only
// meaningful for mergeable kinds.
func (k RelationshipKind) Stronger(other RelationshipKind) bool {
	return k > other
}

// RelationshipEdge is one directed relationship between two classes in the
// batch. Direction runs from the referring class to the referenced class;
// Inheritance runs from subclass to superclass.
type RelationshipEdge struct {
	// Source is the qualified name of the referring class.
	Source string `json:"source"`

	// Target is the qualified name of the referenced class.
	Target string `json:"target"`

	// Kind is the classified relationship kind.
	Kind RelationshipKind `json:"kind"`

	// Labels carry the originating member/method names, including those
	// of weaker edges merged into this one, so diagnostics can show every
	// contributing declaration. Sorted, deduplicated.
	Labels []string `json:"labels,omitempty"`

	// Cyclic marks inheritance edges that close a cycle. Such edges are
	// kept in the raw edge list for graph completeness but excluded from
	// the acyclic ancestor view.
	Cyclic bool `json:"cyclic,omitempty"`
}

// Key returns the (source, target, kind-class) identity used for merging.
// All mergeable kinds share one key per ordered pair; Inheritance and
// Realization each get their own.
func (e RelationshipEdge) Key() string {
	class := "rel"
	switch e.Kind {
	case KindInheritance:
		class = "inherit"
	case KindRealization:
		class = "realize"
	}
	return e.Source + "\x00" + e.Target + "\x00" + class
}

// DiagnosticCode identifies the category of a non-fatal analysis problem.
type DiagnosticCode string

const (
	// DiagUnknownBaseClass: a declared base class did not resolve within
	// the batch. The inheritance edge is dropped.
	DiagUnknownBaseClass DiagnosticCode = "UnknownBaseClass"

	// DiagInheritanceCycle: a class is reachable from itself through the
	// subclass→superclass relation. The cycle-closing edge is excluded
	// from the acyclic view. Callers should treat inheritance-dependent
	// queries as suspect when this appears.
	DiagInheritanceCycle DiagnosticCode = "InheritanceCycle"

	// DiagUnresolvedTypeReference: a member/parameter/return type neither
	// resolved within the batch nor matched a known builtin. No edge is
	// produced.
	DiagUnresolvedTypeReference DiagnosticCode = "UnresolvedTypeReference"
)

// Diagnostic is one non-fatal problem found during a run, carrying enough
// origin information for traceability.
type Diagnostic struct {
	// Code is the diagnostic category.
	Code DiagnosticCode `json:"code"`

	// Class is the qualified name of the originating class.
	Class string `json:"class"`

	// Member is the originating member or method name, when applicable.
	Member string `json:"member,omitempty"`

	// Detail is a human-readable explanation.
	Detail string `json:"detail,omitempty"`
}

// String renders the diagnostic as a single log-friendly line.
func (d Diagnostic) String() string {
	s := string(d.Code) + ": " + d.Class
	if d.Member != "" {
		s += "." + d.Member
	}
	if d.Detail != "" {
		s += " (" + d.Detail + ")"
	}
	return s
}

// Batch is the full set of classes analyzed together in one run. Lookup is
// by exact qualified name; iteration order is the sorted name list so every
// pass over a batch is deterministic.
//
// Thread Safety: Immutable after construction; safe for concurrent use.
type Batch struct {
	classes map[string]*ClassEntity
	names   []string
}

// NewBatch constructs a Batch from the given classes.
//
// Description:
//
//	Validates that every class has a non-empty name and that qualified
//	names are unique within the batch. The input slice order is not
//	significant; iteration always follows sorted qualified names.
//
// Inputs:
//
//	classes - The class entities for one analysis run. Nil entries are
//	rejected.
//
// Outputs:
//
//	*Batch - The immutable batch.
//	error - Non-nil on nil entries, empty names, or duplicate names.
func NewBatch(classes []*ClassEntity) (*Batch, error) {
	b := &Batch{
		classes: make(map[string]*ClassEntity, len(classes)),
		names:   make([]string, 0, len(classes)),
	}
	for i, c := range classes {
		if c == nil {
			return nil, fmt.Errorf("class at index %d is nil", i)
		}
		if c.Name == "" {
			return nil, fmt.Errorf("class at index %d has empty name", i)
		}
		if _, dup := b.classes[c.Name]; dup {
			return nil, fmt.Errorf("duplicate class name %q in batch", c.Name)
		}
		b.classes[c.Name] = c
		b.names = append(b.names, c.Name)
	}
	sort.Strings(b.names)
	return b, nil
}

// Lookup returns the class with the exact qualified name, if present.
func (b *Batch) Lookup(name string) (*ClassEntity, bool) {
	c, ok := b.classes[name]
	return c, ok
}

// Contains reports whether the exact qualified name is in the batch.
func (b *Batch) Contains(name string) bool {
	_, ok := b.classes[name]
	return ok
}

// Names returns the sorted qualified names of all classes in the batch.
// The returned slice must not be modified.
func (b *Batch) Names() []string {
	return b.names
}

// Len returns the number of classes in the batch.
func (b *Batch) Len() int {
	return len(b.names)
}

// Classes returns the class entities in sorted name order.
func (b *Batch) Classes() []*ClassEntity {
	out := make([]*ClassEntity, 0, len(b.names))
	for _, name := range b.names {
		out = append(out, b.classes[name])
	}
	return out
}
