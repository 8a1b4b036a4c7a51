// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	h, err := Default()
	if err != nil {
		t.Fatalf("Default() failed: %v", err)
	}
	if len(h.BuiltinTypes) == 0 {
		t.Error("expected default builtin types")
	}
	if len(h.ContainerTypes) == 0 {
		t.Error("expected default container types")
	}
	if len(h.SetterPrefixes) == 0 {
		t.Error("expected default setter prefixes")
	}
	if len(h.SkipDirectories) == 0 {
		t.Error("expected default skip directories")
	}
}

func TestHeuristics_IsBuiltin(t *testing.T) {
	h, err := Default()
	if err != nil {
		t.Fatalf("Default() failed: %v", err)
	}
	for _, name := range []string{"int", "std::string", "str", "void"} {
		if !h.IsBuiltin(name) {
			t.Errorf("expected %q to be builtin", name)
		}
	}
	if h.IsBuiltin("Logger") {
		t.Error("Logger must not be builtin")
	}
}

func TestHeuristics_IsContainer(t *testing.T) {
	h, err := Default()
	if err != nil {
		t.Fatalf("Default() failed: %v", err)
	}
	for _, name := range []string{"std::vector", "std::map", "List", "Optional"} {
		if !h.IsContainer(name) {
			t.Errorf("expected %q to be a container", name)
		}
	}
	if h.IsContainer("User") {
		t.Error("User must not be a container")
	}
}

func TestHeuristics_SkipDirectory(t *testing.T) {
	h, err := Default()
	if err != nil {
		t.Fatalf("Default() failed: %v", err)
	}
	for _, name := range []string{".git", "node_modules", "__pycache__"} {
		if !h.SkipDirectory(name) {
			t.Errorf("expected %q to be skipped", name)
		}
	}
	if h.SkipDirectory("src") {
		t.Error("src must not be skipped")
	}
}

func TestHeuristics_IsSetterName(t *testing.T) {
	h, err := Default()
	if err != nil {
		t.Fatalf("Default() failed: %v", err)
	}

	t.Run("matches prefixes case-insensitively", func(t *testing.T) {
		for _, name := range []string{"setLogger", "SetLogger", "set_logger", "assignOwner"} {
			if !h.IsSetterName(name) {
				t.Errorf("expected %q to be a setter name", name)
			}
		}
	})

	t.Run("bare prefix does not count", func(t *testing.T) {
		if h.IsSetterName("set") {
			t.Error("a method literally named set must not count as a setter")
		}
	})

	t.Run("non-setter names", func(t *testing.T) {
		for _, name := range []string{"getLogger", "reset", "update"} {
			if h.IsSetterName(name) {
				t.Errorf("did not expect %q to be a setter name", name)
			}
		}
	})
}

func TestLoad(t *testing.T) {
	t.Run("overrides merge over defaults", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "heuristics.yaml")
		content := []byte("builtin_types:\n  - custom_scalar\n")
		if err := os.WriteFile(path, content, 0o644); err != nil {
			t.Fatalf("write fixture: %v", err)
		}

		h, err := Load(path)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if !h.IsBuiltin("custom_scalar") {
			t.Error("expected overridden builtin to be recognized")
		}
		if h.IsBuiltin("int") {
			t.Error("overridden builtin list must replace the default list")
		}
		if !h.IsContainer("std::vector") {
			t.Error("unset sections must fall back to defaults")
		}
	})

	t.Run("missing file fails", func(t *testing.T) {
		if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
			t.Fatal("expected error for missing config file")
		}
	})

	t.Run("malformed yaml fails", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "bad.yaml")
		if err := os.WriteFile(path, []byte("builtin_types: {nope"), 0o644); err != nil {
			t.Fatalf("write fixture: %v", err)
		}
		if _, err := Load(path); err == nil {
			t.Fatal("expected error for malformed yaml")
		}
	})
}
