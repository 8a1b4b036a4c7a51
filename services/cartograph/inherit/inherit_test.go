// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package inherit

import (
	"reflect"
	"testing"

	"github.com/wseabra/marco-polo/services/cartograph/model"
	"github.com/wseabra/marco-polo/services/cartograph/resolve"
)

func buildFixture(t *testing.T, classes ...*model.ClassEntity) *Result {
	t.Helper()
	batch, err := model.NewBatch(classes)
	if err != nil {
		t.Fatalf("NewBatch failed: %v", err)
	}
	return BuildInheritance(batch, resolve.NewResolver(nil))
}

func TestBuildInheritance(t *testing.T) {
	t.Run("simple hierarchy", func(t *testing.T) {
		res := buildFixture(t,
			&model.ClassEntity{Name: "Animal"},
			&model.ClassEntity{Name: "Dog", Bases: []string{"Animal"}},
			&model.ClassEntity{Name: "Cat", Bases: []string{"Animal"}},
		)
		if len(res.Edges) != 2 {
			t.Fatalf("expected 2 edges, got %v", res.Edges)
		}
		for _, e := range res.Edges {
			if e.Kind != model.KindInheritance {
				t.Errorf("expected inheritance kind, got %s", e.Kind)
			}
			if e.Target != "Animal" {
				t.Errorf("expected Animal as target, got %s", e.Target)
			}
			if e.Cyclic {
				t.Errorf("edge %s -> %s flagged cyclic", e.Source, e.Target)
			}
		}
		if !res.IsAncestor("Dog", "Animal") {
			t.Error("Animal must be an ancestor of Dog")
		}
		if res.IsAncestor("Animal", "Dog") {
			t.Error("ancestry must be directional")
		}
		if res.HasCycle() {
			t.Error("no cycle expected")
		}
	})

	t.Run("transitive ancestors", func(t *testing.T) {
		res := buildFixture(t,
			&model.ClassEntity{Name: "Auth"},
			&model.ClassEntity{Name: "User", Bases: []string{"Auth"}},
			&model.ClassEntity{Name: "Admin", Bases: []string{"User"}},
		)
		want := []string{"Auth", "User"}
		if got := res.Ancestors("Admin"); !reflect.DeepEqual(got, want) {
			t.Errorf("Ancestors(Admin): got %v, want %v", got, want)
		}
	})

	t.Run("diamond contributes each ancestor once", func(t *testing.T) {
		res := buildFixture(t,
			&model.ClassEntity{Name: "Base"},
			&model.ClassEntity{Name: "Left", Bases: []string{"Base"}},
			&model.ClassEntity{Name: "Right", Bases: []string{"Base"}},
			&model.ClassEntity{Name: "Bottom", Bases: []string{"Left", "Right"}},
		)
		want := []string{"Base", "Left", "Right"}
		if got := res.Ancestors("Bottom"); !reflect.DeepEqual(got, want) {
			t.Errorf("Ancestors(Bottom): got %v, want %v", got, want)
		}
	})

	t.Run("duplicate base declarations collapse", func(t *testing.T) {
		res := buildFixture(t,
			&model.ClassEntity{Name: "Animal"},
			&model.ClassEntity{Name: "Dog", Bases: []string{"Animal", "Animal"}},
		)
		if len(res.Edges) != 1 {
			t.Errorf("expected 1 edge, got %v", res.Edges)
		}
	})

	t.Run("unknown base is dropped with a diagnostic", func(t *testing.T) {
		res := buildFixture(t,
			&model.ClassEntity{Name: "Dog", Bases: []string{"Pet"}},
		)
		if len(res.Edges) != 0 {
			t.Errorf("expected no edges, got %v", res.Edges)
		}
		if len(res.Diagnostics) != 1 {
			t.Fatalf("expected 1 diagnostic, got %v", res.Diagnostics)
		}
		d := res.Diagnostics[0]
		if d.Code != model.DiagUnknownBaseClass || d.Class != "Dog" || d.Member != "Pet" {
			t.Errorf("unexpected diagnostic %+v", d)
		}
	})

	t.Run("two-node cycle", func(t *testing.T) {
		res := buildFixture(t,
			&model.ClassEntity{Name: "A", Bases: []string{"B"}},
			&model.ClassEntity{Name: "B", Bases: []string{"A"}},
		)
		if !res.HasCycle() {
			t.Fatal("expected a cycle")
		}

		// Sorted visit order starts at A, so B -> A is the back edge.
		var cyclicEdges int
		for _, e := range res.Edges {
			if e.Cyclic {
				cyclicEdges++
				if e.Source != "B" || e.Target != "A" {
					t.Errorf("expected B -> A as the cyclic edge, got %s -> %s", e.Source, e.Target)
				}
			}
		}
		if cyclicEdges != 1 {
			t.Errorf("expected exactly 1 cyclic edge, got %d", cyclicEdges)
		}

		// The forward edge survives in the ancestor view, the back edge
		// does not.
		if got := res.Ancestors("A"); !reflect.DeepEqual(got, []string{"B"}) {
			t.Errorf("Ancestors(A): got %v, want [B]", got)
		}
		if got := res.Ancestors("B"); len(got) != 0 {
			t.Errorf("Ancestors(B): got %v, want empty", got)
		}
	})

	t.Run("self inheritance is a cycle", func(t *testing.T) {
		res := buildFixture(t,
			&model.ClassEntity{Name: "Ouroboros", Bases: []string{"Ouroboros"}},
		)
		if !res.HasCycle() {
			t.Fatal("expected a cycle")
		}
		if got := res.Ancestors("Ouroboros"); len(got) != 0 {
			t.Errorf("Ancestors(Ouroboros): got %v, want empty", got)
		}
	})
}
