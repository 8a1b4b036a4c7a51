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
	"fmt"

	"github.com/wseabra/marco-polo/services/cartograph/model"
)

// GraphSchemaVersion is the version of the serialization schema.
// Increment when the serialization format changes in a breaking way.
const GraphSchemaVersion = "1.0"

// SerializableGraph is the JSON-serializable representation of a ClassGraph.
//
// Description:
//
//	Contains all data needed to reconstruct a ClassGraph from JSON.
//	Classes are sorted by name and edges by (source, target, kind) for
//	deterministic output, enabling reliable diffing and content hashing.
//
// Thread Safety: SerializableGraph is a value type with no internal state.
type SerializableGraph struct {
	// SchemaVersion identifies the serialization format version.
	SchemaVersion string `json:"schema_version"`

	// BuiltAtMilli is the Unix timestamp in milliseconds when the graph was frozen.
	BuiltAtMilli int64 `json:"built_at_milli"`

	// GraphHash is the deterministic hash of the graph structure.
	GraphHash string `json:"graph_hash"`

	// Classes contains all classes in the graph, sorted by name.
	Classes []*model.ClassEntity `json:"classes"`

	// Edges contains all edges in the graph, in canonical sort order.
	Edges []SerializableEdge `json:"edges"`

	// Diagnostics contains all diagnostics recorded during the build.
	Diagnostics []model.Diagnostic `json:"diagnostics,omitempty"`
}

// SerializableEdge is the JSON-serializable representation of a
// RelationshipEdge.
type SerializableEdge struct {
	// Source is the name of the class the edge originates from.
	Source string `json:"source"`

	// Target is the name of the class the edge points to.
	Target string `json:"target"`

	// Kind is the human-readable kind string (e.g., "composition").
	Kind string `json:"kind"`

	// KindCode is the integer kind for exact reconstruction.
	KindCode model.RelationshipKind `json:"kind_code"`

	// Labels are the member and method names that produced the edge.
	Labels []string `json:"labels,omitempty"`

	// Cyclic marks inheritance edges that close a cycle.
	Cyclic bool `json:"cyclic,omitempty"`
}

// ToSerializable converts a ClassGraph to its JSON-serializable
// representation.
//
// Description:
//
//	Copies classes and edges in the graph's canonical order (Freeze()
//	already sorted both) into a SerializableGraph suitable for JSON
//	encoding. The resulting structure contains all data needed to
//	reconstruct the graph.
//
// Outputs:
//
//	*SerializableGraph - The serializable representation. Never nil.
//
// Thread Safety:
//
//	Safe for concurrent use on frozen graphs.
func (g *ClassGraph) ToSerializable() *SerializableGraph {
	if g == nil {
		return &SerializableGraph{
			SchemaVersion: GraphSchemaVersion,
			Classes:       []*model.ClassEntity{},
			Edges:         []SerializableEdge{},
		}
	}

	edges := make([]SerializableEdge, 0, len(g.edges))
	for _, e := range g.edges {
		edges = append(edges, SerializableEdge{
			Source:   e.Source,
			Target:   e.Target,
			Kind:     e.Kind.String(),
			KindCode: e.Kind,
			Labels:   e.Labels,
			Cyclic:   e.Cyclic,
		})
	}

	return &SerializableGraph{
		SchemaVersion: GraphSchemaVersion,
		BuiltAtMilli:  g.BuiltAtMilli,
		GraphHash:     g.Hash(),
		Classes:       g.AllClasses(),
		Edges:         edges,
		Diagnostics:   g.Diagnostics(),
	}
}

// FromSerializable reconstructs a ClassGraph from its serializable
// representation.
//
// Description:
//
//	Creates a new ClassGraph in building state, calls AddClass() and
//	AddEdge() for each entry so the secondary indexes and inheritance
//	views are rebuilt by the normal construction path, then calls
//	Freeze(). Reusing the construction code path guarantees index
//	consistency.
//
// Inputs:
//
//	sg - The serializable graph to reconstruct. Must not be nil.
//
// Outputs:
//
//	*ClassGraph - The reconstructed graph in read-only state.
//	error - Non-nil if sg is nil, the schema version is unsupported, or
//	        an entry is invalid.
func FromSerializable(sg *SerializableGraph) (*ClassGraph, error) {
	if sg == nil {
		return nil, fmt.Errorf("serializable graph must not be nil")
	}
	if sg.SchemaVersion != GraphSchemaVersion {
		return nil, fmt.Errorf("unsupported schema version %q (expected %q)", sg.SchemaVersion, GraphSchemaVersion)
	}

	g := NewClassGraph()

	for i, class := range sg.Classes {
		if class == nil {
			return nil, fmt.Errorf("class at index %d is nil", i)
		}
		if err := g.AddClass(class); err != nil {
			return nil, fmt.Errorf("adding class %s: %w", class.Name, err)
		}
	}

	// KindCode is authoritative for exact reconstruction.
	for i, se := range sg.Edges {
		err := g.AddEdge(model.RelationshipEdge{
			Source: se.Source,
			Target: se.Target,
			Kind:   se.KindCode,
			Labels: se.Labels,
			Cyclic: se.Cyclic,
		})
		if err != nil {
			return nil, fmt.Errorf("adding edge %d (%s -> %s): %w", i, se.Source, se.Target, err)
		}
	}
	if len(sg.Diagnostics) > 0 {
		if err := g.AddDiagnostics(sg.Diagnostics...); err != nil {
			return nil, err
		}
	}

	g.Freeze()
	g.BuiltAtMilli = sg.BuiltAtMilli

	return g, nil
}
