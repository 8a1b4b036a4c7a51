// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cartograph

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers all Cartograph routes with the router.
//
// Description:
//
//	Registers all /v1/cartograph/* endpoints with the given Gin router
//	group. The router group should already have any required middleware
//	applied.
//
// Core Endpoints:
//
//	POST /v1/cartograph/analyze - Build a graph from a posted model
//	POST /v1/cartograph/scan - Scan a project root and build its graph
//	GET  /v1/cartograph/graph - Export a cached graph as JSON
//	GET  /v1/cartograph/diagram - Render a cached graph as Mermaid
//	GET  /v1/cartograph/diagnostics - List a graph's diagnostics
//	GET  /v1/cartograph/class/:name - Inspect one class and its edges
//
// Snapshot Endpoints:
//
//	GET    /v1/cartograph/snapshots - List stored snapshots
//	POST   /v1/cartograph/snapshots/:id/restore - Load a snapshot into the cache
//	DELETE /v1/cartograph/snapshots/:id - Delete a snapshot
//
// Health Endpoints:
//
//	GET /v1/cartograph/health - Health check
//	GET /v1/cartograph/ready - Readiness check
//
// Example:
//
//	service, _ := cartograph.NewService(cartograph.DefaultServiceConfig())
//	handlers := cartograph.NewHandlers(service)
//
//	v1 := router.Group("/v1")
//	cartograph.RegisterRoutes(v1, handlers)
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	cg := rg.Group("/cartograph")
	{
		// Graph lifecycle
		cg.POST("/analyze", handlers.HandleAnalyze)
		cg.POST("/scan", handlers.HandleScan)

		// Graph queries
		cg.GET("/graph", handlers.HandleGraph)
		cg.GET("/diagram", handlers.HandleDiagram)
		cg.GET("/diagnostics", handlers.HandleDiagnostics)
		cg.GET("/class/:name", handlers.HandleClass)

		// Snapshot persistence
		cg.GET("/snapshots", handlers.HandleListSnapshots)
		cg.POST("/snapshots/:id/restore", handlers.HandleLoadSnapshot)
		cg.DELETE("/snapshots/:id", handlers.HandleDeleteSnapshot)

		// Health checks
		cg.GET("/health", handlers.HandleHealth)
		cg.GET("/ready", handlers.HandleReady)
	}
}
