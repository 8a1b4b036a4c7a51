// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package cartograph exposes the class-relationship engine as an HTTP
// service: scan a project or post a structural model, get back a cached
// class graph, its diagnostics, and Mermaid diagrams.
package cartograph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/wseabra/marco-polo/services/cartograph/config"
	"github.com/wseabra/marco-polo/services/cartograph/graph"
	"github.com/wseabra/marco-polo/services/cartograph/model"
	"github.com/wseabra/marco-polo/services/cartograph/scanner"
)

// ErrGraphNotFound is returned when a graph ID is not in the cache.
var ErrGraphNotFound = errors.New("graph not found")

// DefaultMaxCachedGraphs bounds the in-memory graph cache.
const DefaultMaxCachedGraphs = 16

// ServiceConfig configures a Service.
type ServiceConfig struct {
	// Heuristics are the resolution/classification tables. Nil uses the
	// embedded defaults.
	Heuristics *config.Heuristics

	// MaxCachedGraphs bounds the in-memory graph cache. Oldest entries
	// are evicted first. Default: DefaultMaxCachedGraphs.
	MaxCachedGraphs int

	// WorkerCount is passed through to the scanner and builder.
	WorkerCount int

	// Logger for service-level output. Nil uses slog.Default().
	Logger *slog.Logger

	// SnapshotDB is an optional opened BadgerDB for snapshot
	// persistence. Nil disables the snapshot endpoints.
	SnapshotDB *badger.DB
}

// DefaultServiceConfig returns sensible defaults.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		MaxCachedGraphs: DefaultMaxCachedGraphs,
	}
}

// CachedGraph is one built graph held in the service cache.
type CachedGraph struct {
	// GraphID is the cache key handed back to clients.
	GraphID string

	// ProjectRoot is the scanned root, empty for posted batches.
	ProjectRoot string

	// Graph is the frozen class graph.
	Graph *graph.ClassGraph

	// Result is the full build result including stats.
	Result *graph.BuildResult

	// CreatedAt is when the graph entered the cache.
	CreatedAt time.Time
}

// Service owns the engine wiring: scanner, builder, snapshot manager,
// and the graph cache.
//
// Thread Safety: Service is safe for concurrent use.
type Service struct {
	cfg       ServiceConfig
	logger    *slog.Logger
	builder   *graph.Builder
	scanner   *scanner.Scanner
	snapshots *graph.SnapshotManager

	mu     sync.RWMutex
	graphs map[string]*CachedGraph
	order  []string
}

// NewService creates a Service from the given config.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.MaxCachedGraphs <= 0 {
		cfg.MaxCachedGraphs = DefaultMaxCachedGraphs
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	builderOpts := []graph.BuilderOption{graph.WithHeuristics(cfg.Heuristics)}
	scannerOpts := []scanner.ScannerOption{
		scanner.WithHeuristics(cfg.Heuristics),
		scanner.WithLogger(logger),
	}
	if cfg.WorkerCount > 0 {
		builderOpts = append(builderOpts, graph.WithWorkerCount(cfg.WorkerCount))
		scannerOpts = append(scannerOpts, scanner.WithWorkerCount(cfg.WorkerCount))
	}

	s := &Service{
		cfg:     cfg,
		logger:  logger,
		builder: graph.NewBuilder(builderOpts...),
		scanner: scanner.NewScanner(scannerOpts...),
		graphs:  make(map[string]*CachedGraph),
	}

	if cfg.SnapshotDB != nil {
		mgr, err := graph.NewSnapshotManager(cfg.SnapshotDB, logger)
		if err != nil {
			return nil, fmt.Errorf("creating snapshot manager: %w", err)
		}
		s.snapshots = mgr
	}

	return s, nil
}

// AnalyzeBatch builds a graph from a posted structural model and caches
// it.
func (s *Service) AnalyzeBatch(ctx context.Context, classes []*model.ClassEntity) (*CachedGraph, error) {
	batch, err := model.NewBatch(classes)
	if err != nil {
		return nil, fmt.Errorf("invalid batch: %w", err)
	}

	result, err := s.builder.Build(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("building graph: %w", err)
	}

	return s.cache("", result), nil
}

// ScanProject scans a project root, builds its graph, and caches it.
// When snapshot persistence is enabled the graph is also saved.
func (s *Service) ScanProject(ctx context.Context, root, label string) (*CachedGraph, *scanner.ScanResult, error) {
	scanResult, err := s.scanner.Scan(ctx, root)
	if err != nil {
		return nil, nil, err
	}

	result, err := s.builder.Build(ctx, scanResult.Batch)
	if err != nil {
		return nil, nil, fmt.Errorf("building graph: %w", err)
	}

	cached := s.cache(root, result)

	if s.snapshots != nil {
		if _, err := s.snapshots.Save(ctx, cached.Graph, root, label); err != nil {
			s.logger.Warn("snapshot save failed", slog.String("root", root), slog.Any("error", err))
		}
	}

	return cached, scanResult, nil
}

// GetGraph returns a cached graph by ID. An empty ID returns the most
// recently built graph.
func (s *Service) GetGraph(graphID string) (*CachedGraph, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if graphID == "" {
		if len(s.order) == 0 {
			return nil, ErrGraphNotFound
		}
		return s.graphs[s.order[len(s.order)-1]], nil
	}
	cached, ok := s.graphs[graphID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrGraphNotFound, graphID)
	}
	return cached, nil
}

// Snapshots returns the snapshot manager, or nil when persistence is
// disabled.
func (s *Service) Snapshots() *graph.SnapshotManager {
	return s.snapshots
}

// CacheCount returns the number of cached graphs.
func (s *Service) CacheCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.graphs)
}

// RestoreGraph inserts an externally loaded graph (e.g., from a
// snapshot) into the cache and returns its entry.
func (s *Service) RestoreGraph(projectRoot string, g *graph.ClassGraph) *CachedGraph {
	return s.cache(projectRoot, &graph.BuildResult{
		Graph:       g,
		Diagnostics: g.Diagnostics(),
	})
}

// cache stores a build result under a fresh uuid, evicting the oldest
// entry past the cache bound.
func (s *Service) cache(projectRoot string, result *graph.BuildResult) *CachedGraph {
	cached := &CachedGraph{
		GraphID:     uuid.NewString(),
		ProjectRoot: projectRoot,
		Graph:       result.Graph,
		Result:      result,
		CreatedAt:   time.Now(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.graphs[cached.GraphID] = cached
	s.order = append(s.order, cached.GraphID)
	for len(s.order) > s.cfg.MaxCachedGraphs {
		evicted := s.order[0]
		s.order = s.order[1:]
		delete(s.graphs, evicted)
		s.logger.Debug("evicted cached graph", slog.String("graph_id", evicted))
	}

	return cached
}
