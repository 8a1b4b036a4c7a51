// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package classify

import (
	"testing"

	"github.com/wseabra/marco-polo/services/cartograph/model"
)

func testBatch(t *testing.T, classes ...*model.ClassEntity) *model.Batch {
	t.Helper()
	batch, err := model.NewBatch(classes)
	if err != nil {
		t.Fatalf("NewBatch failed: %v", err)
	}
	return batch
}

func member(owner, name, rawType string) model.MemberDeclaration {
	return model.MemberDeclaration{Owner: owner, Name: name, RawType: rawType}
}

func singleEdge(t *testing.T, edge *model.RelationshipEdge, diags []model.Diagnostic) model.RelationshipEdge {
	t.Helper()
	if len(diags) != 0 {
		t.Fatalf("unexpected diagnostics: %v", diags)
	}
	if edge == nil {
		t.Fatal("expected an edge, got nil")
	}
	return *edge
}

func TestClassifier_ClassifyMember(t *testing.T) {
	c := NewClassifier(nil, nil)

	t.Run("value member is composition", func(t *testing.T) {
		owner := &model.ClassEntity{Name: "Admin"}
		batch := testBatch(t, owner, &model.ClassEntity{Name: "Logger"})
		m := member("Admin", "logger", "Logger")
		e, diags := c.ClassifyMember(&m, owner, batch)
		edge := singleEdge(t, e, diags)
		if edge.Kind != model.KindComposition {
			t.Errorf("expected composition, got %s", edge.Kind)
		}
		if edge.Source != "Admin" || edge.Target != "Logger" {
			t.Errorf("unexpected endpoints: %s -> %s", edge.Source, edge.Target)
		}
		if len(edge.Labels) != 1 || edge.Labels[0] != "logger" {
			t.Errorf("expected member-name label, got %v", edge.Labels)
		}
	})

	t.Run("container of values is composition", func(t *testing.T) {
		owner := &model.ClassEntity{Name: "Admin"}
		batch := testBatch(t, owner, &model.ClassEntity{Name: "Post"})
		m := member("Admin", "posts", "std::vector<Post>")
		e, diags := c.ClassifyMember(&m, owner, batch)
		edge := singleEdge(t, e, diags)
		if edge.Kind != model.KindComposition {
			t.Errorf("expected composition, got %s", edge.Kind)
		}
	})

	t.Run("plain pointer is association", func(t *testing.T) {
		owner := &model.ClassEntity{Name: "Admin"}
		batch := testBatch(t, owner, &model.ClassEntity{Name: "Session"})
		m := member("Admin", "session", "Session*")
		e, diags := c.ClassifyMember(&m, owner, batch)
		edge := singleEdge(t, e, diags)
		if edge.Kind != model.KindAssociation {
			t.Errorf("expected association, got %s", edge.Kind)
		}
	})

	t.Run("pointer with constructor supply is aggregation", func(t *testing.T) {
		owner := &model.ClassEntity{
			Name: "User",
			Methods: []model.MethodSignature{{
				Owner:         "User",
				Name:          "User",
				IsConstructor: true,
				Parameters:    []model.Parameter{{Name: "logger", RawType: "Logger*"}},
			}},
		}
		batch := testBatch(t, owner, &model.ClassEntity{Name: "Logger"})
		m := member("User", "logger", "Logger*")
		e, diags := c.ClassifyMember(&m, owner, batch)
		edge := singleEdge(t, e, diags)
		if edge.Kind != model.KindAggregation {
			t.Errorf("expected aggregation, got %s", edge.Kind)
		}
	})

	t.Run("pointer with setter supply is aggregation", func(t *testing.T) {
		owner := &model.ClassEntity{
			Name: "User",
			Methods: []model.MethodSignature{{
				Owner:      "User",
				Name:       "setLogger",
				Parameters: []model.Parameter{{Name: "logger", RawType: "Logger*"}},
			}},
		}
		batch := testBatch(t, owner, &model.ClassEntity{Name: "Logger"})
		m := member("User", "logger", "Logger*")
		e, diags := c.ClassifyMember(&m, owner, batch)
		edge := singleEdge(t, e, diags)
		if edge.Kind != model.KindAggregation {
			t.Errorf("expected aggregation, got %s", edge.Kind)
		}
	})

	t.Run("setter with two parameters is not supply evidence", func(t *testing.T) {
		owner := &model.ClassEntity{
			Name: "User",
			Methods: []model.MethodSignature{{
				Owner: "User",
				Name:  "setLogger",
				Parameters: []model.Parameter{
					{Name: "logger", RawType: "Logger*"},
					{Name: "level", RawType: "int"},
				},
			}},
		}
		batch := testBatch(t, owner, &model.ClassEntity{Name: "Logger"})
		m := member("User", "logger", "Logger*")
		e, diags := c.ClassifyMember(&m, owner, batch)
		edge := singleEdge(t, e, diags)
		if edge.Kind != model.KindAssociation {
			t.Errorf("expected association, got %s", edge.Kind)
		}
	})

	t.Run("owned hint forces composition on a pointer", func(t *testing.T) {
		owner := &model.ClassEntity{Name: "Engine"}
		batch := testBatch(t, owner, &model.ClassEntity{Name: "Piston"})
		m := member("Engine", "piston", "Piston*")
		m.Ownership = model.OwnershipOwned
		e, diags := c.ClassifyMember(&m, owner, batch)
		edge := singleEdge(t, e, diags)
		if edge.Kind != model.KindComposition {
			t.Errorf("expected composition via hint, got %s", edge.Kind)
		}
	})

	t.Run("shared hint forces aggregation on a value", func(t *testing.T) {
		owner := &model.ClassEntity{Name: "Engine"}
		batch := testBatch(t, owner, &model.ClassEntity{Name: "Piston"})
		m := member("Engine", "piston", "Piston")
		m.Ownership = model.OwnershipShared
		e, diags := c.ClassifyMember(&m, owner, batch)
		edge := singleEdge(t, e, diags)
		if edge.Kind != model.KindAggregation {
			t.Errorf("expected aggregation via hint, got %s", edge.Kind)
		}
	})

	t.Run("builtin member produces nothing", func(t *testing.T) {
		owner := &model.ClassEntity{Name: "User"}
		batch := testBatch(t, owner)
		m := member("User", "name", "std::string")
		edge, diags := c.ClassifyMember(&m, owner, batch)
		if edge != nil {
			t.Errorf("expected no edge for builtin, got %+v", edge)
		}
		if len(diags) != 0 {
			t.Errorf("expected no diagnostics for builtin, got %v", diags)
		}
	})

	t.Run("unresolved member produces a diagnostic", func(t *testing.T) {
		owner := &model.ClassEntity{Name: "User"}
		batch := testBatch(t, owner)
		m := member("User", "db", "Database*")
		edge, diags := c.ClassifyMember(&m, owner, batch)
		if edge != nil {
			t.Errorf("expected no edge for unresolved type, got %+v", edge)
		}
		if len(diags) != 1 {
			t.Fatalf("expected 1 diagnostic, got %v", diags)
		}
		d := diags[0]
		if d.Code != model.DiagUnresolvedTypeReference {
			t.Errorf("unexpected code %s", d.Code)
		}
		if d.Class != "User" || d.Member != "db" {
			t.Errorf("unexpected location %s.%s", d.Class, d.Member)
		}
	})
}

func TestClassifier_ClassifyMethod(t *testing.T) {
	c := NewClassifier(nil, nil)

	t.Run("parameters and return become dependencies", func(t *testing.T) {
		batch := testBatch(t,
			&model.ClassEntity{Name: "Admin"},
			&model.ClassEntity{Name: "Post"},
			&model.ClassEntity{Name: "Report"},
		)
		m := model.MethodSignature{
			Owner:      "Admin",
			Name:       "review",
			Parameters: []model.Parameter{{Name: "post", RawType: "const Post&"}},
			ReturnType: "Report",
		}
		edges, diags := c.ClassifyMethod(&m, batch)
		if len(diags) != 0 {
			t.Fatalf("unexpected diagnostics: %v", diags)
		}
		if len(edges) != 2 {
			t.Fatalf("expected 2 edges, got %v", edges)
		}
		if edges[0].Target != "Post" || edges[1].Target != "Report" {
			t.Errorf("expected first-reference order Post then Report, got %s, %s", edges[0].Target, edges[1].Target)
		}
		for _, e := range edges {
			if e.Kind != model.KindDependency {
				t.Errorf("expected dependency, got %s", e.Kind)
			}
			if len(e.Labels) != 1 || e.Labels[0] != "review" {
				t.Errorf("expected method-name label, got %v", e.Labels)
			}
		}
	})

	t.Run("duplicate targets collapse to one edge", func(t *testing.T) {
		batch := testBatch(t,
			&model.ClassEntity{Name: "Admin"},
			&model.ClassEntity{Name: "Post"},
		)
		m := model.MethodSignature{
			Owner: "Admin",
			Name:  "merge",
			Parameters: []model.Parameter{
				{Name: "a", RawType: "Post*"},
				{Name: "b", RawType: "Post*"},
			},
			ReturnType: "Post",
		}
		edges, _ := c.ClassifyMethod(&m, batch)
		if len(edges) != 1 {
			t.Fatalf("expected 1 edge, got %v", edges)
		}
	})

	t.Run("self references are suppressed", func(t *testing.T) {
		batch := testBatch(t, &model.ClassEntity{Name: "Node"})
		m := model.MethodSignature{
			Owner:      "Node",
			Name:       "clone",
			ReturnType: "Node*",
		}
		edges, diags := c.ClassifyMethod(&m, batch)
		if len(edges) != 0 {
			t.Errorf("expected no edges for self-reference, got %v", edges)
		}
		if len(diags) != 0 {
			t.Errorf("unexpected diagnostics: %v", diags)
		}
	})

	t.Run("unresolved signature type produces a diagnostic", func(t *testing.T) {
		batch := testBatch(t, &model.ClassEntity{Name: "Admin"})
		m := model.MethodSignature{
			Owner:      "Admin",
			Name:       "export",
			Parameters: []model.Parameter{{Name: "sink", RawType: "Sink&"}},
		}
		edges, diags := c.ClassifyMethod(&m, batch)
		if len(edges) != 0 {
			t.Errorf("expected no edges, got %v", edges)
		}
		if len(diags) != 1 || diags[0].Code != model.DiagUnresolvedTypeReference {
			t.Errorf("expected one UnresolvedTypeReference diagnostic, got %v", diags)
		}
	})
}

func TestClassifier_ClassifyClass(t *testing.T) {
	c := NewClassifier(nil, nil)

	t.Run("capabilities become realization edges", func(t *testing.T) {
		admin := &model.ClassEntity{Name: "Admin", Capabilities: []string{"Loggable"}}
		batch := testBatch(t, admin, &model.ClassEntity{Name: "Loggable", IsAbstract: true})
		res := c.ClassifyClass(admin, batch)
		if len(res.Edges) != 1 {
			t.Fatalf("expected 1 edge, got %v", res.Edges)
		}
		e := res.Edges[0]
		if e.Kind != model.KindRealization || e.Source != "Admin" || e.Target != "Loggable" {
			t.Errorf("unexpected edge %+v", e)
		}
	})

	t.Run("unresolved capability produces a diagnostic", func(t *testing.T) {
		admin := &model.ClassEntity{Name: "Admin", Capabilities: []string{"Serializable"}}
		batch := testBatch(t, admin)
		res := c.ClassifyClass(admin, batch)
		if len(res.Edges) != 0 {
			t.Errorf("expected no edges, got %v", res.Edges)
		}
		if len(res.Diagnostics) != 1 || res.Diagnostics[0].Code != model.DiagUnresolvedTypeReference {
			t.Errorf("expected one UnresolvedTypeReference diagnostic, got %v", res.Diagnostics)
		}
	})

	t.Run("members and methods classify together in order", func(t *testing.T) {
		admin := &model.ClassEntity{
			Name: "Admin",
			Members: []model.MemberDeclaration{
				member("Admin", "logger", "Logger"),
			},
			Methods: []model.MethodSignature{{
				Owner:      "Admin",
				Name:       "createPost",
				Parameters: []model.Parameter{{Name: "post", RawType: "Post&"}},
			}},
		}
		batch := testBatch(t, admin,
			&model.ClassEntity{Name: "Logger"},
			&model.ClassEntity{Name: "Post"},
		)
		res := c.ClassifyClass(admin, batch)
		if len(res.Edges) != 2 {
			t.Fatalf("expected 2 edges, got %v", res.Edges)
		}
		if res.Edges[0].Kind != model.KindComposition || res.Edges[1].Kind != model.KindDependency {
			t.Errorf("expected member edge before method edge, got %v", res.Edges)
		}
	})
}
