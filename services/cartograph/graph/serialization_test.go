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
	"encoding/json"
	"reflect"
	"testing"
)

func builtFixtureGraph(t *testing.T) *ClassGraph {
	t.Helper()
	result, err := NewBuilder().Build(context.Background(), blogFixture(t))
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	return result.Graph
}

func TestSerialization_RoundTrip(t *testing.T) {
	g := builtFixtureGraph(t)
	sg := g.ToSerializable()

	if sg.SchemaVersion != GraphSchemaVersion {
		t.Errorf("schema version: got %q, want %q", sg.SchemaVersion, GraphSchemaVersion)
	}
	if sg.GraphHash != g.Hash() {
		t.Error("serialized form must carry the graph hash")
	}
	if len(sg.Classes) != g.ClassCount() {
		t.Errorf("expected %d classes, got %d", g.ClassCount(), len(sg.Classes))
	}
	if len(sg.Edges) != g.EdgeCount() {
		t.Errorf("expected %d edges, got %d", g.EdgeCount(), len(sg.Edges))
	}

	restored, err := FromSerializable(sg)
	if err != nil {
		t.Fatalf("FromSerializable failed: %v", err)
	}
	if !restored.Frozen() {
		t.Error("restored graph must be frozen")
	}
	if restored.Hash() != g.Hash() {
		t.Error("round trip must preserve the graph hash")
	}
	if restored.BuiltAtMilli != g.BuiltAtMilli {
		t.Error("round trip must preserve the build timestamp")
	}
	if !reflect.DeepEqual(restored.AncestorsOf("Admin"), g.AncestorsOf("Admin")) {
		t.Error("round trip must preserve the ancestor view")
	}
	if !reflect.DeepEqual(restored.Diagnostics(), g.Diagnostics()) {
		t.Error("round trip must preserve diagnostics")
	}
}

func TestSerialization_JSONStability(t *testing.T) {
	g := builtFixtureGraph(t)

	a, err := json.Marshal(g.ToSerializable())
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	b, err := json.Marshal(g.ToSerializable())
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if string(a) != string(b) {
		t.Error("serialization of the same graph must be byte-stable")
	}
}

func TestFromSerializable_Validation(t *testing.T) {
	t.Run("nil input", func(t *testing.T) {
		if _, err := FromSerializable(nil); err == nil {
			t.Fatal("expected error for nil input")
		}
	})

	t.Run("unsupported schema version", func(t *testing.T) {
		sg := builtFixtureGraph(t).ToSerializable()
		sg.SchemaVersion = "0.9"
		if _, err := FromSerializable(sg); err == nil {
			t.Fatal("expected error for unsupported schema version")
		}
	})

	t.Run("edge with unknown endpoint", func(t *testing.T) {
		sg := builtFixtureGraph(t).ToSerializable()
		sg.Edges = append(sg.Edges, SerializableEdge{Source: "Ghost", Target: "Admin"})
		if _, err := FromSerializable(sg); err == nil {
			t.Fatal("expected error for dangling edge endpoint")
		}
	})
}
