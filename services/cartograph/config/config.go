// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the heuristics tables that drive type-reference
// resolution and ownership classification.
package config

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed cartograph_defaults.yaml
var defaultHeuristicsYAML []byte

// Heuristics contains the classification and scanning tables.
//
// Description:
//
//	BuiltinTypes and ContainerTypes drive the type-reference resolver:
//	builtins resolve to external references without diagnostics,
//	containers are unwrapped to their element type. SetterPrefixes feed
//	the aggregation evidence check. SkipDirectories bounds the scanner.
//
// Thread Safety: Immutable after loading; safe for concurrent use.
type Heuristics struct {
	// BuiltinTypes never produce relationship edges or diagnostics.
	BuiltinTypes []string `yaml:"builtin_types"`

	// ContainerTypes are unwrapped to their element type during
	// resolution. Map-like containers resolve their last type argument.
	ContainerTypes []string `yaml:"container_types"`

	// SetterPrefixes mark methods that count as outside-supply evidence
	// when they take exactly one parameter of the member's type.
	SetterPrefixes []string `yaml:"setter_prefixes"`

	// SkipDirectories are directory names the scanner never enters.
	SkipDirectories []string `yaml:"skip_directories"`

	builtinSet   map[string]struct{}
	containerSet map[string]struct{}
	skipSet      map[string]struct{}
}

var (
	defaultOnce sync.Once
	defaultCfg  *Heuristics
	defaultErr  error
)

// Default returns the embedded default heuristics.
//
// Description:
//
//	Parses the embedded YAML exactly once and caches the result. The
//	embedded defaults are validated at build time by tests, so an error
//	here indicates a corrupted binary.
//
// Outputs:
//
//	*Heuristics - The shared default configuration. Must not be mutated.
//	error - Non-nil only if the embedded YAML fails to parse.
//
// Thread Safety: Safe for concurrent use.
func Default() (*Heuristics, error) {
	defaultOnce.Do(func() {
		defaultCfg, defaultErr = parse(defaultHeuristicsYAML)
	})
	return defaultCfg, defaultErr
}

// Load reads heuristics from a YAML file, falling back to the embedded
// defaults for any list the file omits.
//
// Inputs:
//
//	path - Path to a YAML file. Empty path returns Default().
//
// Outputs:
//
//	*Heuristics - The merged configuration.
//	error - Non-nil on read, parse, or validation failure.
func Load(path string) (*Heuristics, error) {
	if path == "" {
		return Default()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading heuristics config: %w", err)
	}

	cfg, err := parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing heuristics config %s: %w", path, err)
	}

	def, err := Default()
	if err != nil {
		return nil, err
	}
	if len(cfg.BuiltinTypes) == 0 {
		cfg.BuiltinTypes = def.BuiltinTypes
	}
	if len(cfg.ContainerTypes) == 0 {
		cfg.ContainerTypes = def.ContainerTypes
	}
	if len(cfg.SetterPrefixes) == 0 {
		cfg.SetterPrefixes = def.SetterPrefixes
	}
	if len(cfg.SkipDirectories) == 0 {
		cfg.SkipDirectories = def.SkipDirectories
	}
	cfg.buildIndexes()

	slog.Debug("loaded heuristics config",
		slog.String("path", path),
		slog.Int("builtins", len(cfg.BuiltinTypes)),
		slog.Int("containers", len(cfg.ContainerTypes)),
	)

	return cfg, nil
}

// parse unmarshals and validates a YAML heuristics document.
func parse(data []byte) (*Heuristics, error) {
	var cfg Heuristics
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.buildIndexes()
	return &cfg, nil
}

// validate rejects entries that would corrupt the lookup tables.
func (h *Heuristics) validate() error {
	for _, name := range h.BuiltinTypes {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("builtin_types contains an empty entry")
		}
	}
	for _, name := range h.ContainerTypes {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("container_types contains an empty entry")
		}
		if strings.ContainsAny(name, "<>[]") {
			return fmt.Errorf("container type %q must be a bare name without brackets", name)
		}
	}
	for _, prefix := range h.SetterPrefixes {
		if strings.TrimSpace(prefix) == "" {
			return fmt.Errorf("setter_prefixes contains an empty entry")
		}
	}
	return nil
}

// buildIndexes materializes the lookup sets.
func (h *Heuristics) buildIndexes() {
	h.builtinSet = make(map[string]struct{}, len(h.BuiltinTypes))
	for _, name := range h.BuiltinTypes {
		h.builtinSet[name] = struct{}{}
	}
	h.containerSet = make(map[string]struct{}, len(h.ContainerTypes))
	for _, name := range h.ContainerTypes {
		h.containerSet[name] = struct{}{}
	}
	h.skipSet = make(map[string]struct{}, len(h.SkipDirectories))
	for _, name := range h.SkipDirectories {
		h.skipSet[name] = struct{}{}
	}
}

// IsBuiltin reports whether the base identifier is a known builtin.
func (h *Heuristics) IsBuiltin(name string) bool {
	_, ok := h.builtinSet[name]
	return ok
}

// IsContainer reports whether the bare name is a known container type.
func (h *Heuristics) IsContainer(name string) bool {
	_, ok := h.containerSet[name]
	return ok
}

// SkipDirectory reports whether the scanner should skip the directory name.
func (h *Heuristics) SkipDirectory(name string) bool {
	_, ok := h.skipSet[name]
	return ok
}

// IsSetterName reports whether the method name carries a setter prefix.
// Matching is case-insensitive and requires a non-empty remainder, so a
// method literally named "set" does not count.
func (h *Heuristics) IsSetterName(name string) bool {
	lower := strings.ToLower(name)
	for _, prefix := range h.SetterPrefixes {
		p := strings.ToLower(prefix)
		if strings.HasPrefix(lower, p) && len(name) > len(p) {
			return true
		}
	}
	return false
}
