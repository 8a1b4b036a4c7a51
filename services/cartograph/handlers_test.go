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
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func newTestRouter(t *testing.T) (*gin.Engine, *Service) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := DefaultServiceConfig()
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	service, err := NewService(cfg)
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}

	router := gin.New()
	v1 := router.Group("/v1")
	RegisterRoutes(v1, NewHandlers(service))
	return router, service
}

func doRequest(t *testing.T, router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

const analyzeBody = `{
	"classes": [
		{"name": "Animal"},
		{"name": "Dog", "bases": ["Animal"], "members": [
			{"owner": "Dog", "name": "pack", "raw_type": "Pack*"}
		]},
		{"name": "Pack"}
	]
}`

func TestHandleAnalyze(t *testing.T) {
	router, _ := newTestRouter(t)

	t.Run("valid batch", func(t *testing.T) {
		w := doRequest(t, router, http.MethodPost, "/v1/cartograph/analyze", analyzeBody)
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
		}
		var summary GraphSummary
		if err := json.Unmarshal(w.Body.Bytes(), &summary); err != nil {
			t.Fatalf("unmarshal response: %v", err)
		}
		if summary.GraphID == "" {
			t.Error("expected a graph ID")
		}
		if summary.ClassCount != 3 {
			t.Errorf("expected 3 classes, got %d", summary.ClassCount)
		}
		if summary.EdgeCount != 2 {
			t.Errorf("expected inheritance and association edges, got %d", summary.EdgeCount)
		}
	})

	t.Run("malformed body", func(t *testing.T) {
		w := doRequest(t, router, http.MethodPost, "/v1/cartograph/analyze", "{not json")
		if w.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", w.Code)
		}
		var resp ErrorResponse
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("unmarshal error response: %v", err)
		}
		if resp.Code != "INVALID_BODY" {
			t.Errorf("expected INVALID_BODY, got %q", resp.Code)
		}
	})

	t.Run("duplicate class names", func(t *testing.T) {
		body := `{"classes": [{"name": "A"}, {"name": "A"}]}`
		w := doRequest(t, router, http.MethodPost, "/v1/cartograph/analyze", body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", w.Code)
		}
	})
}

func TestHandleGraphQueries(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doRequest(t, router, http.MethodPost, "/v1/cartograph/analyze", analyzeBody)
	if w.Code != http.StatusOK {
		t.Fatalf("analyze failed: %d %s", w.Code, w.Body.String())
	}
	var summary GraphSummary
	if err := json.Unmarshal(w.Body.Bytes(), &summary); err != nil {
		t.Fatalf("unmarshal summary: %v", err)
	}

	t.Run("graph returns the serialized form", func(t *testing.T) {
		w := doRequest(t, router, http.MethodGet, "/v1/cartograph/graph?graph_id="+summary.GraphID, "")
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}
		if !strings.Contains(w.Body.String(), `"schema_version":"1.0"`) {
			t.Errorf("missing schema version in %s", w.Body.String())
		}
	})

	t.Run("empty graph_id falls back to most recent", func(t *testing.T) {
		w := doRequest(t, router, http.MethodGet, "/v1/cartograph/graph", "")
		if w.Code != http.StatusOK {
			t.Errorf("expected 200 for implicit latest graph, got %d", w.Code)
		}
	})

	t.Run("diagram renders mermaid", func(t *testing.T) {
		w := doRequest(t, router, http.MethodGet, "/v1/cartograph/diagram?graph_id="+summary.GraphID, "")
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}
		if !strings.HasPrefix(w.Body.String(), "classDiagram") {
			t.Errorf("expected mermaid output, got %q", w.Body.String())
		}
		if !strings.Contains(w.Body.String(), "Animal <|-- Dog") {
			t.Errorf("missing inheritance arrow in %q", w.Body.String())
		}
	})

	t.Run("class detail", func(t *testing.T) {
		w := doRequest(t, router, http.MethodGet, "/v1/cartograph/class/Dog?graph_id="+summary.GraphID, "")
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
		}
		var resp ClassResponse
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("unmarshal class response: %v", err)
		}
		if resp.Class == nil || resp.Class.Name != "Dog" {
			t.Errorf("unexpected class %+v", resp.Class)
		}
		if len(resp.Ancestors) != 1 || resp.Ancestors[0] != "Animal" {
			t.Errorf("unexpected ancestors %v", resp.Ancestors)
		}
		if len(resp.Outgoing) != 2 {
			t.Errorf("expected 2 outgoing edges, got %v", resp.Outgoing)
		}
	})

	t.Run("unknown class is 404", func(t *testing.T) {
		w := doRequest(t, router, http.MethodGet, "/v1/cartograph/class/Ghost?graph_id="+summary.GraphID, "")
		if w.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", w.Code)
		}
	})

	t.Run("unknown graph id is 404", func(t *testing.T) {
		w := doRequest(t, router, http.MethodGet, "/v1/cartograph/graph?graph_id=nope", "")
		if w.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", w.Code)
		}
	})

	t.Run("diagnostics endpoint", func(t *testing.T) {
		w := doRequest(t, router, http.MethodGet, "/v1/cartograph/diagnostics?graph_id="+summary.GraphID, "")
		if w.Code != http.StatusOK {
			t.Errorf("expected 200, got %d", w.Code)
		}
	})
}

func TestHandleSnapshots_Disabled(t *testing.T) {
	router, _ := newTestRouter(t)
	w := doRequest(t, router, http.MethodGet, "/v1/cartograph/snapshots", "")
	if w.Code != http.StatusNotImplemented {
		t.Errorf("expected 501 without a snapshot DB, got %d", w.Code)
	}
	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal error response: %v", err)
	}
	if resp.Code != "SNAPSHOTS_DISABLED" {
		t.Errorf("expected SNAPSHOTS_DISABLED, got %q", resp.Code)
	}
}

func TestHealthEndpoints(t *testing.T) {
	router, _ := newTestRouter(t)
	for _, path := range []string{"/v1/cartograph/health", "/v1/cartograph/ready"} {
		w := doRequest(t, router, http.MethodGet, path, "")
		if w.Code != http.StatusOK {
			t.Errorf("%s: expected 200, got %d", path, w.Code)
		}
	}
}

func TestService_Cache(t *testing.T) {
	_, service := newTestRouter(t)

	t.Run("empty cache has no latest graph", func(t *testing.T) {
		if _, err := service.GetGraph(""); err == nil {
			t.Error("expected error for empty cache")
		}
	})

	t.Run("eviction keeps the cache bounded", func(t *testing.T) {
		for i := 0; i < DefaultMaxCachedGraphs+4; i++ {
			if _, err := service.AnalyzeBatch(context.Background(), nil); err != nil {
				t.Fatalf("AnalyzeBatch failed: %v", err)
			}
		}
		if n := service.CacheCount(); n != DefaultMaxCachedGraphs {
			t.Errorf("expected cache bounded at %d, got %d", DefaultMaxCachedGraphs, n)
		}
	})
}
