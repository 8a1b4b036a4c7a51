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
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// BadgerDB key prefixes for class-graph snapshots.
const (
	keyPrefixSnap      = "cartograph:snap:"
	keyPrefixSnapIndex = "cartograph:snap:index:"
	keySuffixData      = ":data"
	keySuffixMeta      = ":meta"
	keySuffixLatest    = ":latest"
)

// ErrSnapshotNotFound is returned when a snapshot ID or project has no
// stored snapshot.
var ErrSnapshotNotFound = errors.New("snapshot not found")

// SnapshotMetadata contains metadata about a saved class-graph snapshot.
type SnapshotMetadata struct {
	// SnapshotID is the unique identifier for this snapshot.
	// Derived from SHA256(ProjectRoot + BuiltAtMilli)[:16].
	SnapshotID string `json:"snapshot_id"`

	// ProjectRoot is the absolute path of the analyzed project.
	ProjectRoot string `json:"project_root"`

	// ProjectHash is SHA256(ProjectRoot)[:16] for key grouping.
	ProjectHash string `json:"project_hash"`

	// GraphHash is the deterministic hash of the graph structure.
	GraphHash string `json:"graph_hash"`

	// Label is an optional human-readable label.
	Label string `json:"label,omitempty"`

	// CreatedAtMilli is when the snapshot was saved (Unix milliseconds UTC).
	CreatedAtMilli int64 `json:"created_at_milli"`

	// ClassCount is the number of classes in the graph.
	ClassCount int `json:"class_count"`

	// EdgeCount is the number of relationship edges in the graph.
	EdgeCount int `json:"edge_count"`

	// DiagnosticCount is the number of diagnostics recorded at build time.
	DiagnosticCount int `json:"diagnostic_count"`

	// SchemaVersion is the serialization schema version.
	SchemaVersion string `json:"schema_version"`

	// CompressedSize is the size of the gzip-compressed JSON payload in bytes.
	CompressedSize int64 `json:"compressed_size"`

	// ContentHash is the SHA256 hash of the compressed payload.
	ContentHash string `json:"content_hash"`
}

// SnapshotManager manages saving and loading class-graph snapshots in
// BadgerDB.
//
// Description:
//
//	Provides CRUD operations for class-graph snapshots stored as
//	gzip-compressed JSON in BadgerDB. Each snapshot stores the full
//	SerializableGraph plus metadata for listing and filtering. Snapshots
//	are grouped by project root so a watch loop can keep overwriting the
//	"latest" pointer while labeled snapshots stay addressable.
//
// Thread Safety:
//
//	Safe for concurrent use. BadgerDB handles its own concurrency control.
type SnapshotManager struct {
	db     *badger.DB
	logger *slog.Logger
}

// NewSnapshotManager creates a new SnapshotManager.
//
// Inputs:
//
//	db - An opened BadgerDB instance. Must not be nil. The caller owns
//	     the DB lifecycle.
//	logger - Logger for diagnostic output. Must not be nil.
//
// Outputs:
//
//	*SnapshotManager - The configured manager.
//	error - Non-nil if db or logger is nil.
func NewSnapshotManager(db *badger.DB, logger *slog.Logger) (*SnapshotManager, error) {
	if db == nil {
		return nil, fmt.Errorf("badger db must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}
	return &SnapshotManager{db: db, logger: logger}, nil
}

// Save persists a class-graph snapshot to BadgerDB.
//
// Description:
//
//	Serializes the graph to JSON, gzip-compresses it, and stores it in
//	BadgerDB along with metadata. Updates the "latest" pointer for the
//	project.
//
// Inputs:
//
//	ctx - Context for cancellation. Must not be nil.
//	g - The graph to snapshot. Must not be nil and should be frozen.
//	projectRoot - The analyzed project's root path, used for grouping.
//	label - Optional human-readable label for the snapshot.
//
// Outputs:
//
//	*SnapshotMetadata - Metadata about the saved snapshot.
//	error - Non-nil if serialization or storage fails.
//
// Key Schema:
//
//	cartograph:snap:{projectHash}:{snapshotID}:data → gzip(JSON(SerializableGraph))
//	cartograph:snap:{projectHash}:{snapshotID}:meta → JSON(SnapshotMetadata)
//	cartograph:snap:{projectHash}:latest            → snapshotID
//	cartograph:snap:index:{snapshotID}              → projectHash
func (m *SnapshotManager) Save(ctx context.Context, g *ClassGraph, projectRoot, label string) (*SnapshotMetadata, error) {
	if ctx == nil {
		return nil, fmt.Errorf("ctx must not be nil")
	}
	if g == nil {
		return nil, fmt.Errorf("graph must not be nil")
	}

	sg := g.ToSerializable()

	jsonData, err := json.Marshal(sg)
	if err != nil {
		return nil, fmt.Errorf("marshaling graph: %w", err)
	}

	var compressed bytes.Buffer
	gw, err := gzip.NewWriterLevel(&compressed, gzip.BestCompression)
	if err != nil {
		return nil, fmt.Errorf("creating gzip writer: %w", err)
	}
	if _, err := gw.Write(jsonData); err != nil {
		return nil, fmt.Errorf("compressing graph: %w", err)
	}
	if err := gw.Close(); err != nil {
		return nil, fmt.Errorf("closing gzip writer: %w", err)
	}

	compressedData := compressed.Bytes()

	projectHash := ProjectHash(projectRoot)
	snapshotID := hashString(fmt.Sprintf("%s:%d", projectRoot, g.BuiltAtMilli))[:16]

	meta := &SnapshotMetadata{
		SnapshotID:      snapshotID,
		ProjectRoot:     projectRoot,
		ProjectHash:     projectHash,
		GraphHash:       sg.GraphHash,
		Label:           label,
		CreatedAtMilli:  time.Now().UnixMilli(),
		ClassCount:      g.ClassCount(),
		EdgeCount:       g.EdgeCount(),
		DiagnosticCount: len(sg.Diagnostics),
		SchemaVersion:   GraphSchemaVersion,
		CompressedSize:  int64(len(compressedData)),
		ContentHash:     hashBytes(compressedData),
	}

	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("marshaling metadata: %w", err)
	}

	dataKey := keyPrefixSnap + projectHash + ":" + snapshotID + keySuffixData
	metaKey := keyPrefixSnap + projectHash + ":" + snapshotID + keySuffixMeta
	latestKey := keyPrefixSnap + projectHash + keySuffixLatest
	indexKey := keyPrefixSnapIndex + snapshotID

	err = m.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(dataKey), compressedData); err != nil {
			return fmt.Errorf("storing data: %w", err)
		}
		if err := txn.Set([]byte(metaKey), metaJSON); err != nil {
			return fmt.Errorf("storing metadata: %w", err)
		}
		if err := txn.Set([]byte(latestKey), []byte(snapshotID)); err != nil {
			return fmt.Errorf("updating latest pointer: %w", err)
		}
		if err := txn.Set([]byte(indexKey), []byte(projectHash)); err != nil {
			return fmt.Errorf("storing reverse index: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("writing snapshot to badger: %w", err)
	}

	m.logger.Info("snapshot saved",
		slog.String("snapshot_id", snapshotID),
		slog.String("project_root", projectRoot),
		slog.Int("class_count", meta.ClassCount),
		slog.Int("edge_count", meta.EdgeCount),
		slog.Int64("compressed_size", meta.CompressedSize),
	)

	return meta, nil
}

// Load retrieves a class-graph snapshot by its ID.
//
// Outputs:
//
//	*ClassGraph - The reconstructed graph in read-only state.
//	*SnapshotMetadata - The snapshot metadata.
//	error - ErrSnapshotNotFound if the ID is unknown; other errors for
//	        storage or reconstruction failures.
func (m *SnapshotManager) Load(ctx context.Context, snapshotID string) (*ClassGraph, *SnapshotMetadata, error) {
	if ctx == nil {
		return nil, nil, fmt.Errorf("ctx must not be nil")
	}
	if snapshotID == "" {
		return nil, nil, fmt.Errorf("snapshot ID must not be empty")
	}

	projectHash, err := m.getProjectHash(snapshotID)
	if err != nil {
		return nil, nil, fmt.Errorf("looking up snapshot %s: %w", snapshotID, err)
	}

	return m.loadByKeys(projectHash, snapshotID)
}

// LoadLatest loads the most recent snapshot for a project.
//
// Inputs:
//
//	ctx - Context for cancellation. Must not be nil.
//	projectHash - The SHA256(ProjectRoot)[:16] hash. Must not be empty.
//
// Outputs:
//
//	*ClassGraph - The reconstructed graph in read-only state.
//	*SnapshotMetadata - The snapshot metadata.
//	error - ErrSnapshotNotFound if the project has no snapshots.
func (m *SnapshotManager) LoadLatest(ctx context.Context, projectHash string) (*ClassGraph, *SnapshotMetadata, error) {
	if ctx == nil {
		return nil, nil, fmt.Errorf("ctx must not be nil")
	}
	if projectHash == "" {
		return nil, nil, fmt.Errorf("project hash must not be empty")
	}

	latestKey := keyPrefixSnap + projectHash + keySuffixLatest
	var snapshotID string
	err := m.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(latestKey))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			snapshotID = string(val)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil, fmt.Errorf("project %s: %w", projectHash, ErrSnapshotNotFound)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("reading latest pointer for %s: %w", projectHash, err)
	}

	return m.loadByKeys(projectHash, snapshotID)
}

// List returns metadata for snapshots matching the optional project hash
// filter.
//
// Description:
//
//	Iterates BadgerDB keys with the snapshot prefix to find metadata
//	entries. If projectHash is non-empty, only snapshots for that project
//	are returned. Results are ordered by CreatedAtMilli descending.
//
// Inputs:
//
//	ctx - Context for cancellation. Must not be nil.
//	projectHash - Optional filter. If empty, returns all snapshots.
//	limit - Maximum number of results. If <= 0, defaults to 100.
func (m *SnapshotManager) List(ctx context.Context, projectHash string, limit int) ([]*SnapshotMetadata, error) {
	if ctx == nil {
		return nil, fmt.Errorf("ctx must not be nil")
	}
	if limit <= 0 {
		limit = 100
	}

	var results []*SnapshotMetadata

	prefix := keyPrefixSnap
	if projectHash != "" {
		prefix = keyPrefixSnap + projectHash + ":"
	}

	err := m.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek([]byte(prefix)); it.Valid(); it.Next() {
			item := it.Item()
			key := string(item.Key())

			if !isMetaKey(key) {
				continue
			}

			var meta SnapshotMetadata
			err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &meta)
			})
			if err != nil {
				m.logger.Warn("skipping corrupt metadata", slog.String("key", key), slog.Any("error", err))
				continue
			}

			results = append(results, &meta)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].CreatedAtMilli > results[j].CreatedAtMilli
	})

	if len(results) > limit {
		results = results[:limit]
	}

	return results, nil
}

// Delete removes a snapshot from BadgerDB.
//
// Description:
//
//	Removes all keys associated with the given snapshot ID: data,
//	metadata, and the reverse index entry. If the deleted snapshot was
//	the "latest" for its project, the latest pointer is also removed.
func (m *SnapshotManager) Delete(ctx context.Context, snapshotID string) error {
	if ctx == nil {
		return fmt.Errorf("ctx must not be nil")
	}
	if snapshotID == "" {
		return fmt.Errorf("snapshot ID must not be empty")
	}

	projectHash, err := m.getProjectHash(snapshotID)
	if err != nil {
		return fmt.Errorf("looking up snapshot %s: %w", snapshotID, err)
	}

	dataKey := keyPrefixSnap + projectHash + ":" + snapshotID + keySuffixData
	metaKey := keyPrefixSnap + projectHash + ":" + snapshotID + keySuffixMeta
	latestKey := keyPrefixSnap + projectHash + keySuffixLatest
	indexKey := keyPrefixSnapIndex + snapshotID

	err = m.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete([]byte(dataKey)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("deleting data: %w", err)
		}
		if err := txn.Delete([]byte(metaKey)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("deleting metadata: %w", err)
		}
		if err := txn.Delete([]byte(indexKey)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("deleting reverse index: %w", err)
		}

		item, err := txn.Get([]byte(latestKey))
		if err == nil {
			var currentLatest string
			_ = item.Value(func(val []byte) error {
				currentLatest = string(val)
				return nil
			})
			if currentLatest == snapshotID {
				if err := txn.Delete([]byte(latestKey)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
					return fmt.Errorf("deleting latest pointer: %w", err)
				}
			}
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("deleting snapshot %s: %w", snapshotID, err)
	}

	m.logger.Info("snapshot deleted", slog.String("snapshot_id", snapshotID))
	return nil
}

// loadByKeys loads a graph from BadgerDB using known projectHash and
// snapshotID.
func (m *SnapshotManager) loadByKeys(projectHash, snapshotID string) (*ClassGraph, *SnapshotMetadata, error) {
	dataKey := keyPrefixSnap + projectHash + ":" + snapshotID + keySuffixData
	metaKey := keyPrefixSnap + projectHash + ":" + snapshotID + keySuffixMeta

	var compressedData []byte
	var metaJSON []byte

	err := m.db.View(func(txn *badger.Txn) error {
		dataItem, err := txn.Get([]byte(dataKey))
		if err != nil {
			return fmt.Errorf("reading data for %s: %w", snapshotID, err)
		}
		compressedData, err = dataItem.ValueCopy(nil)
		if err != nil {
			return fmt.Errorf("copying data for %s: %w", snapshotID, err)
		}

		metaItem, err := txn.Get([]byte(metaKey))
		if err != nil {
			return fmt.Errorf("reading metadata for %s: %w", snapshotID, err)
		}
		metaJSON, err = metaItem.ValueCopy(nil)
		if err != nil {
			return fmt.Errorf("copying metadata for %s: %w", snapshotID, err)
		}

		return nil
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil, fmt.Errorf("snapshot %s: %w", snapshotID, ErrSnapshotNotFound)
	}
	if err != nil {
		return nil, nil, err
	}

	var meta SnapshotMetadata
	if err := json.Unmarshal(metaJSON, &meta); err != nil {
		return nil, nil, fmt.Errorf("unmarshaling metadata for %s: %w", snapshotID, err)
	}
	if actual := hashBytes(compressedData); meta.ContentHash != "" && meta.ContentHash != actual {
		return nil, nil, fmt.Errorf("integrity check failed for %s: expected hash %s, got %s", snapshotID, meta.ContentHash, actual)
	}

	gr, err := gzip.NewReader(bytes.NewReader(compressedData))
	if err != nil {
		return nil, nil, fmt.Errorf("decompressing snapshot %s: %w", snapshotID, err)
	}
	defer gr.Close()

	jsonData, err := io.ReadAll(gr)
	if err != nil {
		return nil, nil, fmt.Errorf("reading decompressed data for %s: %w", snapshotID, err)
	}

	var sg SerializableGraph
	if err := json.Unmarshal(jsonData, &sg); err != nil {
		return nil, nil, fmt.Errorf("unmarshaling graph for %s: %w", snapshotID, err)
	}

	g, err := FromSerializable(&sg)
	if err != nil {
		return nil, nil, fmt.Errorf("reconstructing graph for %s: %w", snapshotID, err)
	}

	return g, &meta, nil
}

// getProjectHash retrieves the project hash for a snapshot ID from the
// reverse index.
func (m *SnapshotManager) getProjectHash(snapshotID string) (string, error) {
	indexKey := keyPrefixSnapIndex + snapshotID
	var projectHash string
	err := m.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(indexKey))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			projectHash = string(val)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", ErrSnapshotNotFound
	}
	if err != nil {
		return "", err
	}
	return projectHash, nil
}

// ProjectHash returns SHA256(projectRoot)[:16] for use as a key prefix.
//
// Exported so handlers can convert a project_root query param to the
// hash used in storage.
func ProjectHash(projectRoot string) string {
	return hashString(projectRoot)[:16]
}

// hashString returns the hex-encoded SHA256 hash of a string.
func hashString(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])
}

// hashBytes returns the hex-encoded SHA256 hash of a byte slice.
func hashBytes(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// isMetaKey returns true if the key ends with the metadata suffix.
func isMetaKey(key string) bool {
	return len(key) > len(keySuffixMeta) && key[len(key)-len(keySuffixMeta):] == keySuffixMeta
}
