// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command cartograph starts the Cartograph API server.
//
// Cartograph maps a codebase into a UML class graph:
//   - Tree-sitter parsing for C++ and Python sources
//   - Relationship classification (composition, aggregation, association,
//     dependency, inheritance, realization)
//   - Mermaid classDiagram rendering
//   - BadgerDB snapshot persistence
//
// Usage:
//
//	go run ./cmd/cartograph
//	go run ./cmd/cartograph -port 9090
//	go run ./cmd/cartograph -snapshot-dir ~/.cartograph/snapshots
//
// Example requests:
//
//	# Health check
//	curl http://localhost:8080/v1/cartograph/health
//
//	# Scan a project and build its class graph
//	curl -X POST http://localhost:8080/v1/cartograph/scan \
//	  -H "Content-Type: application/json" \
//	  -d '{"project_root": "/path/to/project"}'
//
//	# Render the most recent graph as Mermaid
//	curl http://localhost:8080/v1/cartograph/diagram
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/dgraph-io/badger/v4"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/wseabra/marco-polo/services/cartograph"
	"github.com/wseabra/marco-polo/services/cartograph/config"
)

func main() {
	port := flag.Int("port", 8080, "Port to listen on")
	debug := flag.Bool("debug", false, "Enable debug mode")
	workers := flag.Int("workers", 0, "Parallel workers for scan and build (0 = NumCPU)")
	heuristicsPath := flag.String("heuristics", "", "Path to a heuristics YAML overriding the embedded defaults")
	snapshotDir := flag.String("snapshot-dir", "", "BadgerDB directory for snapshot persistence (empty = default, \"off\" = disabled)")
	flag.Parse()

	if *debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	heuristics, err := loadHeuristics(*heuristicsPath)
	if err != nil {
		slog.Error("Failed to load heuristics", slog.String("error", err.Error()))
		os.Exit(1)
	}

	db := openSnapshotDB(*snapshotDir)

	cfg := cartograph.DefaultServiceConfig()
	cfg.Heuristics = heuristics
	cfg.WorkerCount = *workers
	cfg.Logger = logger
	cfg.SnapshotDB = db

	svc, err := cartograph.NewService(cfg)
	if err != nil {
		slog.Error("Failed to create service", slog.String("error", err.Error()))
		os.Exit(1)
	}
	handlers := cartograph.NewHandlers(svc)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("cartograph"))
	if *debug {
		router.Use(gin.Logger())
	}

	v1 := router.Group("/v1")
	cartograph.RegisterRoutes(v1, handlers)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		slog.Info("Shutting down Cartograph server")
		if db != nil {
			if err := db.Close(); err != nil {
				slog.Warn("Failed to close snapshot BadgerDB", slog.String("error", err.Error()))
			}
		}
		os.Exit(0)
	}()

	addr := fmt.Sprintf(":%d", *port)
	slog.Info("Starting Cartograph server",
		slog.String("address", addr),
		slog.Bool("snapshots", db != nil))
	if err := router.Run(addr); err != nil {
		slog.Error("Failed to start server", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// loadHeuristics loads the heuristics tables, merging a user file over
// the embedded defaults when a path is given.
func loadHeuristics(path string) (*config.Heuristics, error) {
	if path == "" {
		return config.Default()
	}
	return config.Load(path)
}

// openSnapshotDB opens the snapshot BadgerDB. Unavailability degrades to
// a nil DB (snapshot endpoints disabled) rather than refusing to start.
func openSnapshotDB(dir string) *badger.DB {
	if dir == "off" {
		return nil
	}
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			slog.Warn("No home directory, snapshot persistence disabled", slog.String("error", err.Error()))
			return nil
		}
		dir = filepath.Join(home, ".cartograph", "snapshots")
	}

	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		slog.Warn("Snapshot BadgerDB unavailable, persistence disabled",
			slog.String("path", dir),
			slog.String("error", err.Error()))
		return nil
	}
	slog.Info("Snapshot BadgerDB opened", slog.String("path", dir))
	return db
}
