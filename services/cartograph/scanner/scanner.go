// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package scanner discovers parseable source files under a project root
// and turns them into a structural model batch.
package scanner

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/wseabra/marco-polo/services/cartograph/ast"
	"github.com/wseabra/marco-polo/services/cartograph/config"
	"github.com/wseabra/marco-polo/services/cartograph/model"
)

// ScannerOption configures a Scanner instance.
type ScannerOption func(*Scanner)

// WithHeuristics sets the skip-directory table. Nil uses the embedded
// defaults.
func WithHeuristics(h *config.Heuristics) ScannerOption {
	return func(s *Scanner) {
		if h != nil {
			s.heuristics = h
		}
	}
}

// WithWorkerCount sets the number of parallel file parses.
func WithWorkerCount(n int) ScannerOption {
	return func(s *Scanner) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithLogger sets the logger. Nil uses slog.Default().
func WithLogger(logger *slog.Logger) ScannerOption {
	return func(s *Scanner) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Scanner walks a project tree, parses every supported source file, and
// assembles the results into a Batch.
//
// Thread Safety: Scanner is safe for concurrent use.
type Scanner struct {
	heuristics *config.Heuristics
	logger     *slog.Logger
	workers    int
}

// NewScanner creates a Scanner with the given options.
func NewScanner(opts ...ScannerOption) *Scanner {
	s := &Scanner{
		workers: 4,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.heuristics == nil {
		s.heuristics, _ = config.Default()
	}
	return s
}

// ScanResult contains the outcome of scanning one project tree.
type ScanResult struct {
	// Batch is the merged structural model. Never nil.
	Batch *model.Batch

	// FilesScanned is the number of files parsed.
	FilesScanned int

	// FileErrors maps file paths to parse failures. Parse-level problems
	// (syntax errors) are carried inside the results, not here.
	FileErrors map[string]error
}

// DiscoverFiles returns the supported source files under root, skipping
// configured directories. Paths are returned in walk order relative to
// the filesystem, absolute if root is absolute.
func (s *Scanner) DiscoverFiles(root string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat project root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("project root %s is not a directory", root)
	}

	var files []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && s.heuristics.SkipDirectory(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if _, ok := ast.ParserFor(path); ok {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", root, err)
	}
	return files, nil
}

// Scan walks root, parses every supported file in parallel, and merges
// the parse results into a Batch.
//
// Description:
//
//	Unreadable or unparseable files degrade to entries in FileErrors;
//	the scan itself fails only when the root is unusable, the context is
//	canceled, or the merged batch fails validation.
func (s *Scanner) Scan(ctx context.Context, root string) (*ScanResult, error) {
	files, err := s.DiscoverFiles(root)
	if err != nil {
		return nil, err
	}

	results := make([]*ast.ParseResult, len(files))
	fileErrors := make(map[string]error)

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(s.workers)
	errCh := make(chan fileError, len(files))

	for i, path := range files {
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			content, err := os.ReadFile(path)
			if err != nil {
				errCh <- fileError{path: path, err: err}
				return nil
			}
			parser, _ := ast.ParserFor(path)
			result, err := parser.Parse(egCtx, content, path)
			if err != nil {
				errCh <- fileError{path: path, err: err}
				return nil
			}
			if len(result.Errors) > 0 {
				s.logger.Warn("partial parse",
					slog.String("file", path),
					slog.Any("errors", result.Errors))
			}
			results[i] = result
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, fmt.Errorf("scan canceled: %w", err)
	}
	close(errCh)
	for fe := range errCh {
		fileErrors[fe.path] = fe.err
	}

	batch, err := ast.AssembleBatch(results)
	if err != nil {
		return nil, fmt.Errorf("assembling batch: %w", err)
	}

	s.logger.Info("scan complete",
		slog.String("root", root),
		slog.Int("files", len(files)),
		slog.Int("classes", batch.Len()),
		slog.Int("file_errors", len(fileErrors)))

	return &ScanResult{
		Batch:        batch,
		FilesScanned: len(files),
		FileErrors:   fileErrors,
	}, nil
}

type fileError struct {
	path string
	err  error
}
