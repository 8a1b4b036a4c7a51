// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package scanner

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func writeFixture(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
}

func quietScanner(opts ...ScannerOption) *Scanner {
	opts = append(opts, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	return NewScanner(opts...)
}

func TestScanner_DiscoverFiles(t *testing.T) {
	root := t.TempDir()
	writeFixture(t, root, "src/animal.hpp", "class Animal {};\n")
	writeFixture(t, root, "src/zoo.py", "class Zoo:\n    pass\n")
	writeFixture(t, root, "README.md", "docs\n")
	writeFixture(t, root, "node_modules/dep/index.hpp", "class Skipped {};\n")
	writeFixture(t, root, ".git/objects/blob.py", "class AlsoSkipped:\n    pass\n")

	files, err := quietScanner().DiscoverFiles(root)
	if err != nil {
		t.Fatalf("DiscoverFiles failed: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("expected 2 files, got %v", files)
	}
	for _, f := range files {
		base := filepath.Base(f)
		if base != "animal.hpp" && base != "zoo.py" {
			t.Errorf("unexpected file %s", f)
		}
	}

	t.Run("missing root fails", func(t *testing.T) {
		if _, err := quietScanner().DiscoverFiles(filepath.Join(root, "nope")); err == nil {
			t.Error("expected error for missing root")
		}
	})

	t.Run("file root fails", func(t *testing.T) {
		if _, err := quietScanner().DiscoverFiles(filepath.Join(root, "README.md")); err == nil {
			t.Error("expected error for non-directory root")
		}
	})
}

func TestScanner_Scan(t *testing.T) {
	t.Run("mixed-language project", func(t *testing.T) {
		root := t.TempDir()
		writeFixture(t, root, "animal.hpp", `
class Animal {
public:
    void speak();
};

class Dog : public Animal {
private:
    Logger* logger_;
};
`)
		writeFixture(t, root, "logger.py", `
class Logger:
    def write(self, line: str) -> None:
        pass
`)

		result, err := quietScanner(WithWorkerCount(2)).Scan(context.Background(), root)
		if err != nil {
			t.Fatalf("Scan failed: %v", err)
		}
		if result.FilesScanned != 2 {
			t.Errorf("expected 2 files scanned, got %d", result.FilesScanned)
		}
		if len(result.FileErrors) != 0 {
			t.Errorf("unexpected file errors: %v", result.FileErrors)
		}
		for _, name := range []string{"Animal", "Dog", "Logger"} {
			if !result.Batch.Contains(name) {
				t.Errorf("batch missing %s; got %v", name, result.Batch.Names())
			}
		}
	})

	t.Run("unparseable file degrades to a file error", func(t *testing.T) {
		root := t.TempDir()
		writeFixture(t, root, "ok.py", "class Ok:\n    pass\n")
		writeFixture(t, root, "bad.py", string([]byte{0xff, 0xfe, 0x00}))

		result, err := quietScanner().Scan(context.Background(), root)
		if err != nil {
			t.Fatalf("Scan failed: %v", err)
		}
		if len(result.FileErrors) != 1 {
			t.Fatalf("expected 1 file error, got %v", result.FileErrors)
		}
		if _, ok := result.FileErrors[filepath.Join(root, "bad.py")]; !ok {
			t.Errorf("expected bad.py in file errors, got %v", result.FileErrors)
		}
		if !result.Batch.Contains("Ok") {
			t.Error("healthy files must still contribute classes")
		}
	})

	t.Run("empty project yields an empty batch", func(t *testing.T) {
		result, err := quietScanner().Scan(context.Background(), t.TempDir())
		if err != nil {
			t.Fatalf("Scan failed: %v", err)
		}
		if result.Batch.Len() != 0 || result.FilesScanned != 0 {
			t.Errorf("expected empty result, got %+v", result)
		}
	})

	t.Run("cancelled context fails the scan", func(t *testing.T) {
		root := t.TempDir()
		writeFixture(t, root, "a.py", "class A:\n    pass\n")
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if _, err := quietScanner().Scan(ctx, root); err == nil {
			t.Error("expected error for cancelled context")
		}
	})
}
