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
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/dgraph-io/badger/v4"
)

func newTestSnapshotManager(t *testing.T) *SnapshotManager {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	if err != nil {
		t.Fatalf("opening in-memory badger: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	m, err := NewSnapshotManager(db, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("NewSnapshotManager failed: %v", err)
	}
	return m
}

func TestSnapshotManager_SaveLoad(t *testing.T) {
	m := newTestSnapshotManager(t)
	ctx := context.Background()
	g := builtFixtureGraph(t)

	meta, err := m.Save(ctx, g, "/projects/blog", "initial")
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if meta.SnapshotID == "" {
		t.Fatal("expected a snapshot ID")
	}
	if meta.GraphHash != g.Hash() {
		t.Error("metadata must carry the graph hash")
	}
	if meta.ClassCount != g.ClassCount() || meta.EdgeCount != g.EdgeCount() {
		t.Errorf("metadata counts: got %d/%d, want %d/%d",
			meta.ClassCount, meta.EdgeCount, g.ClassCount(), g.EdgeCount())
	}
	if meta.Label != "initial" {
		t.Errorf("unexpected label %q", meta.Label)
	}

	loaded, loadedMeta, err := m.Load(ctx, meta.SnapshotID)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Hash() != g.Hash() {
		t.Error("loaded graph must match the saved graph")
	}
	if loadedMeta.SnapshotID != meta.SnapshotID {
		t.Error("loaded metadata must match the saved metadata")
	}
}

func TestSnapshotManager_LoadLatest(t *testing.T) {
	m := newTestSnapshotManager(t)
	ctx := context.Background()

	first := builtFixtureGraph(t)
	if _, err := m.Save(ctx, first, "/projects/blog", "first"); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	second := builtFixtureGraph(t)
	second.BuiltAtMilli = first.BuiltAtMilli + 1
	secondMeta, err := m.Save(ctx, second, "/projects/blog", "second")
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	_, latestMeta, err := m.LoadLatest(ctx, ProjectHash("/projects/blog"))
	if err != nil {
		t.Fatalf("LoadLatest failed: %v", err)
	}
	if latestMeta.SnapshotID != secondMeta.SnapshotID {
		t.Errorf("expected latest snapshot %s, got %s", secondMeta.SnapshotID, latestMeta.SnapshotID)
	}

	t.Run("unknown project", func(t *testing.T) {
		_, _, err := m.LoadLatest(ctx, ProjectHash("/projects/nope"))
		if !errors.Is(err, ErrSnapshotNotFound) {
			t.Errorf("expected ErrSnapshotNotFound, got %v", err)
		}
	})
}

func TestSnapshotManager_List(t *testing.T) {
	m := newTestSnapshotManager(t)
	ctx := context.Background()

	first := builtFixtureGraph(t)
	if _, err := m.Save(ctx, first, "/projects/blog", "first"); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	second := builtFixtureGraph(t)
	second.BuiltAtMilli = first.BuiltAtMilli + 1
	if _, err := m.Save(ctx, second, "/projects/blog", "second"); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	other := builtFixtureGraph(t)
	if _, err := m.Save(ctx, other, "/projects/other", "other"); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	t.Run("scoped to project", func(t *testing.T) {
		list, err := m.List(ctx, ProjectHash("/projects/blog"), 0)
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(list) != 2 {
			t.Fatalf("expected 2 snapshots, got %d", len(list))
		}
	})

	t.Run("limit applies", func(t *testing.T) {
		list, err := m.List(ctx, ProjectHash("/projects/blog"), 1)
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(list) != 1 {
			t.Fatalf("expected 1 snapshot, got %d", len(list))
		}
	})

	t.Run("unknown project lists nothing", func(t *testing.T) {
		list, err := m.List(ctx, ProjectHash("/projects/nope"), 0)
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(list) != 0 {
			t.Errorf("expected empty list, got %d entries", len(list))
		}
	})
}

func TestSnapshotManager_Delete(t *testing.T) {
	m := newTestSnapshotManager(t)
	ctx := context.Background()

	meta, err := m.Save(ctx, builtFixtureGraph(t), "/projects/blog", "")
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := m.Delete(ctx, meta.SnapshotID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, _, err := m.Load(ctx, meta.SnapshotID); !errors.Is(err, ErrSnapshotNotFound) {
		t.Errorf("expected ErrSnapshotNotFound after delete, got %v", err)
	}

	t.Run("deleting unknown snapshot", func(t *testing.T) {
		if err := m.Delete(ctx, "feedfacefeedface"); !errors.Is(err, ErrSnapshotNotFound) {
			t.Errorf("expected ErrSnapshotNotFound, got %v", err)
		}
	})
}

func TestSnapshotManager_NotFound(t *testing.T) {
	m := newTestSnapshotManager(t)
	_, _, err := m.Load(context.Background(), "deadbeefdeadbeef")
	if !errors.Is(err, ErrSnapshotNotFound) {
		t.Errorf("expected ErrSnapshotNotFound, got %v", err)
	}
}

func TestProjectHash(t *testing.T) {
	a := ProjectHash("/projects/blog")
	if len(a) != 16 {
		t.Errorf("expected a 16-character hash, got %q", a)
	}
	if a != ProjectHash("/projects/blog") {
		t.Error("hash must be deterministic")
	}
	if a == ProjectHash("/projects/other") {
		t.Error("distinct roots must hash differently")
	}
}
