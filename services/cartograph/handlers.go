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
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/wseabra/marco-polo/services/cartograph/graph"
	"github.com/wseabra/marco-polo/services/cartograph/mermaid"
	"github.com/wseabra/marco-polo/services/cartograph/model"
)

// ErrorResponse is the uniform error body for all endpoints.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// AnalyzeRequest is the body for POST /v1/cartograph/analyze.
type AnalyzeRequest struct {
	// Classes is the structural model to classify.
	Classes []*model.ClassEntity `json:"classes" binding:"required"`
}

// ScanRequest is the body for POST /v1/cartograph/scan.
type ScanRequest struct {
	// ProjectRoot is the directory to scan.
	ProjectRoot string `json:"project_root" binding:"required"`

	// Label is an optional snapshot label.
	Label string `json:"label"`
}

// GraphSummary describes one built graph in responses.
type GraphSummary struct {
	GraphID     string             `json:"graph_id"`
	ProjectRoot string             `json:"project_root,omitempty"`
	GraphHash   string             `json:"graph_hash"`
	ClassCount  int                `json:"class_count"`
	EdgeCount   int                `json:"edge_count"`
	Diagnostics []model.Diagnostic `json:"diagnostics,omitempty"`
	Stats       graph.BuildStats   `json:"stats"`
	Incomplete  bool               `json:"incomplete,omitempty"`
}

// ScanResponse is the body for a successful scan.
type ScanResponse struct {
	GraphSummary
	FilesScanned int               `json:"files_scanned"`
	FileErrors   map[string]string `json:"file_errors,omitempty"`
}

// ClassResponse is the body for GET /v1/cartograph/class.
type ClassResponse struct {
	Class       *model.ClassEntity       `json:"class"`
	Ancestors   []string                 `json:"ancestors"`
	Descendants []string                 `json:"descendants"`
	Outgoing    []model.RelationshipEdge `json:"outgoing"`
	Incoming    []model.RelationshipEdge `json:"incoming"`
}

// Handlers holds the HTTP handlers for the cartograph service.
type Handlers struct {
	service *Service
}

// NewHandlers creates Handlers backed by the given service.
func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// HandleAnalyze handles POST /v1/cartograph/analyze.
//
// Description:
//
//	Builds a class graph from a posted structural model and caches it.
//	Unresolvable references come back as diagnostics, not errors.
//
// Response:
//
//	200 OK: GraphSummary
//	400 Bad Request: Malformed body or invalid batch
func (h *Handlers) HandleAnalyze(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleAnalyze")

	var req AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "invalid request body: " + err.Error(),
			Code:  "INVALID_BODY",
		})
		return
	}

	cached, err := h.service.AnalyzeBatch(c.Request.Context(), req.Classes)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: err.Error(),
			Code:  "INVALID_BATCH",
		})
		return
	}

	logger.Info("batch analyzed",
		slog.String("graph_id", cached.GraphID),
		slog.Int("classes", cached.Graph.ClassCount()),
		slog.Int("edges", cached.Graph.EdgeCount()),
	)

	c.JSON(http.StatusOK, summarize(cached))
}

// HandleScan handles POST /v1/cartograph/scan.
//
// Response:
//
//	200 OK: ScanResponse
//	400 Bad Request: Malformed body
//	422 Unprocessable Entity: Scan failed (bad root, canceled)
func (h *Handlers) HandleScan(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleScan")

	var req ScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "invalid request body: " + err.Error(),
			Code:  "INVALID_BODY",
		})
		return
	}

	cached, scanResult, err := h.service.ScanProject(c.Request.Context(), req.ProjectRoot, req.Label)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Error: err.Error(),
			Code:  "SCAN_FAILED",
		})
		return
	}

	resp := ScanResponse{
		GraphSummary: summarize(cached),
		FilesScanned: scanResult.FilesScanned,
	}
	if len(scanResult.FileErrors) > 0 {
		resp.FileErrors = make(map[string]string, len(scanResult.FileErrors))
		for path, ferr := range scanResult.FileErrors {
			resp.FileErrors[path] = ferr.Error()
		}
	}

	logger.Info("project scanned",
		slog.String("graph_id", cached.GraphID),
		slog.String("root", req.ProjectRoot),
		slog.Int("files", scanResult.FilesScanned),
		slog.Int("classes", cached.Graph.ClassCount()),
	)

	c.JSON(http.StatusOK, resp)
}

// HandleDiagram handles GET /v1/cartograph/diagram.
//
// Query Parameters:
//
//	graph_id: Graph to render (optional, defaults to most recent)
//
// Response:
//
//	200 OK: text/plain Mermaid classDiagram
//	404 Not Found: Unknown graph ID or empty cache
func (h *Handlers) HandleDiagram(c *gin.Context) {
	cached, ok := h.lookupGraph(c)
	if !ok {
		return
	}
	c.String(http.StatusOK, mermaid.Render(cached.Graph))
}

// HandleGraph handles GET /v1/cartograph/graph.
//
// Returns the full serialized graph for the given graph_id.
func (h *Handlers) HandleGraph(c *gin.Context) {
	cached, ok := h.lookupGraph(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, cached.Graph.ToSerializable())
}

// HandleClass handles GET /v1/cartograph/class/:name.
//
// Response:
//
//	200 OK: ClassResponse
//	404 Not Found: Unknown graph or class
func (h *Handlers) HandleClass(c *gin.Context) {
	cached, ok := h.lookupGraph(c)
	if !ok {
		return
	}

	name := c.Param("name")
	class, found := cached.Graph.GetClass(name)
	if !found {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: "class not found: " + name,
			Code:  "CLASS_NOT_FOUND",
		})
		return
	}

	c.JSON(http.StatusOK, ClassResponse{
		Class:       class,
		Ancestors:   cached.Graph.AncestorsOf(name),
		Descendants: cached.Graph.DescendantsOf(name),
		Outgoing:    cached.Graph.RelationshipsOf(name),
		Incoming:    cached.Graph.ReferencesTo(name),
	})
}

// HandleDiagnostics handles GET /v1/cartograph/diagnostics.
func (h *Handlers) HandleDiagnostics(c *gin.Context) {
	cached, ok := h.lookupGraph(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"graph_id":    cached.GraphID,
		"diagnostics": cached.Graph.Diagnostics(),
	})
}

// HandleListSnapshots handles GET /v1/cartograph/snapshots.
//
// Query Parameters:
//
//	project_root: Filter to one project (optional)
//	limit: Maximum results, default 100 (optional)
func (h *Handlers) HandleListSnapshots(c *gin.Context) {
	mgr, ok := h.requireSnapshots(c)
	if !ok {
		return
	}

	projectHash := ""
	if root := c.Query("project_root"); root != "" {
		projectHash = graph.ProjectHash(root)
	}
	limit := 0
	if limitStr := c.Query("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil {
			limit = parsed
		}
	}

	metas, err := mgr.List(c.Request.Context(), projectHash, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: err.Error(),
			Code:  "SNAPSHOT_LIST_FAILED",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"snapshots": metas})
}

// HandleLoadSnapshot handles POST /v1/cartograph/snapshots/:id/restore.
//
// Loads the snapshot into the graph cache and returns its new graph ID.
func (h *Handlers) HandleLoadSnapshot(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleLoadSnapshot")

	mgr, ok := h.requireSnapshots(c)
	if !ok {
		return
	}

	snapshotID := c.Param("id")
	g, meta, err := mgr.Load(c.Request.Context(), snapshotID)
	if err != nil {
		status := http.StatusInternalServerError
		code := "SNAPSHOT_LOAD_FAILED"
		if errors.Is(err, graph.ErrSnapshotNotFound) {
			status = http.StatusNotFound
			code = "SNAPSHOT_NOT_FOUND"
		}
		c.JSON(status, ErrorResponse{Error: err.Error(), Code: code})
		return
	}

	cached := h.service.RestoreGraph(meta.ProjectRoot, g)

	logger.Info("snapshot restored",
		slog.String("snapshot_id", snapshotID),
		slog.String("graph_id", cached.GraphID),
	)

	c.JSON(http.StatusOK, gin.H{
		"graph_id": cached.GraphID,
		"metadata": meta,
	})
}

// HandleDeleteSnapshot handles DELETE /v1/cartograph/snapshots/:id.
func (h *Handlers) HandleDeleteSnapshot(c *gin.Context) {
	mgr, ok := h.requireSnapshots(c)
	if !ok {
		return
	}

	snapshotID := c.Param("id")
	if err := mgr.Delete(c.Request.Context(), snapshotID); err != nil {
		status := http.StatusInternalServerError
		code := "SNAPSHOT_DELETE_FAILED"
		if errors.Is(err, graph.ErrSnapshotNotFound) {
			status = http.StatusNotFound
			code = "SNAPSHOT_NOT_FOUND"
		}
		c.JSON(status, ErrorResponse{Error: err.Error(), Code: code})
		return
	}
	c.Status(http.StatusNoContent)
}

// HandleHealth handles GET /v1/cartograph/health.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// HandleReady handles GET /v1/cartograph/ready.
func (h *Handlers) HandleReady(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":        "ready",
		"cached_graphs": h.service.CacheCount(),
		"snapshots":     h.service.Snapshots() != nil,
	})
}

// lookupGraph resolves the graph_id query parameter to a cached graph,
// writing the 404 response itself on failure.
func (h *Handlers) lookupGraph(c *gin.Context) (*CachedGraph, bool) {
	cached, err := h.service.GetGraph(c.Query("graph_id"))
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: err.Error(),
			Code:  "GRAPH_NOT_FOUND",
		})
		return nil, false
	}
	return cached, true
}

// requireSnapshots returns the snapshot manager or writes a 501 when
// persistence is disabled.
func (h *Handlers) requireSnapshots(c *gin.Context) (*graph.SnapshotManager, bool) {
	mgr := h.service.Snapshots()
	if mgr == nil {
		c.JSON(http.StatusNotImplemented, ErrorResponse{
			Error: "snapshot persistence is not enabled",
			Code:  "SNAPSHOTS_DISABLED",
		})
		return nil, false
	}
	return mgr, true
}

// summarize builds a GraphSummary from a cache entry.
func summarize(cached *CachedGraph) GraphSummary {
	return GraphSummary{
		GraphID:     cached.GraphID,
		ProjectRoot: cached.ProjectRoot,
		GraphHash:   cached.Graph.Hash(),
		ClassCount:  cached.Graph.ClassCount(),
		EdgeCount:   cached.Graph.EdgeCount(),
		Diagnostics: cached.Result.Diagnostics,
		Stats:       cached.Result.Stats,
		Incomplete:  cached.Result.Incomplete,
	}
}

// getOrCreateRequestID returns the request ID from the X-Request-ID
// header, minting one when absent.
func getOrCreateRequestID(c *gin.Context) string {
	if id := c.GetHeader("X-Request-ID"); id != "" {
		return id
	}
	id := uuid.NewString()
	c.Header("X-Request-ID", id)
	return id
}
