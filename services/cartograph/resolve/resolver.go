// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package resolve maps raw type names, as written in member, parameter,
// return, and base-class positions, to class entities within a batch.
package resolve

import (
	"strings"

	"github.com/wseabra/marco-polo/services/cartograph/config"
	"github.com/wseabra/marco-polo/services/cartograph/model"
)

// Resolver resolves raw type names against a batch using the configured
// builtin and container tables.
//
// Description:
//
//	Resolution is a pure function of its inputs: decoration is stripped
//	to obtain a base identifier, known container wrappers are unwrapped
//	to their element type, and the base identifier is looked up against
//	the batch's class name set. Lookup requires an exact scope-qualified
//	match; there is no fuzzy matching.
//
// Thread Safety: Resolver is immutable after construction and safe for
// concurrent use.
type Resolver struct {
	heuristics *config.Heuristics
}

// NewResolver creates a Resolver with the given heuristics. A nil
// heuristics falls back to the embedded defaults.
func NewResolver(h *config.Heuristics) *Resolver {
	if h == nil {
		h, _ = config.Default()
	}
	return &Resolver{heuristics: h}
}

// Resolve maps a raw type name to a TypeReference within the batch.
//
// Description:
//
//	Strips const/volatile qualifiers and pointer/reference decoration,
//	unwraps one level of known container syntax (Outer<Inner> or
//	Outer[Inner]; map-like containers resolve their last type argument;
//	Optional wrappers unwrap to pointer storage), and looks the base
//	identifier up in the batch. Unknown identifiers
//	resolve to External; recognized builtins are additionally marked
//	Builtin so no diagnostic is raised for them.
//
// Inputs:
//
//	raw - The type name exactly as written. May be empty.
//	batch - The batch to resolve against. Must not be nil.
//
// Outputs:
//
//	model.TypeReference - The resolved reference. For an empty raw name
//	the reference is External with an empty Base.
//
// Thread Safety: Safe for concurrent use.
func (r *Resolver) Resolve(raw string, batch *model.Batch) model.TypeReference {
	ref := model.TypeReference{Raw: raw, Storage: model.StorageValue}

	name := stripQualifiers(raw)
	if name == "" {
		ref.External = true
		return ref
	}

	// Pointer/reference decoration on the outer type.
	name, outerStorage := stripDecoration(name)

	// Optional wrappers are pointer-like, not containers: the element
	// may be absent, so the reference cannot be owning by syntax alone.
	if inner, ok := unwrapOptional(name); ok {
		elem, _ := stripDecoration(stripQualifiers(inner))
		ref.Storage = model.StoragePointer
		name = elem
	} else if inner, ok := r.unwrapContainer(name); ok {
		elem, elemStorage := stripDecoration(stripQualifiers(inner))
		if elemStorage == model.StoragePointer || elemStorage == model.StorageReference {
			ref.Storage = model.StorageContainerOfPointer
		} else {
			ref.Storage = model.StorageContainerOfValue
		}
		name = elem
	} else {
		ref.Storage = outerStorage
	}

	ref.Base = name
	if name == "" {
		ref.External = true
		return ref
	}

	if batch != nil && batch.Contains(name) {
		ref.Target = name
		return ref
	}

	ref.External = true
	ref.Builtin = r.heuristics.IsBuiltin(name)
	return ref
}

// stripQualifiers removes const/volatile qualifiers, surrounding
// whitespace, and surrounding quotes (Python string annotations used as
// forward references) without touching pointer/reference decoration.
func stripQualifiers(raw string) string {
	s := strings.TrimSpace(raw)
	for {
		switch {
		case strings.HasPrefix(s, "const "):
			s = strings.TrimSpace(strings.TrimPrefix(s, "const "))
		case strings.HasPrefix(s, "volatile "):
			s = strings.TrimSpace(strings.TrimPrefix(s, "volatile "))
		case len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0]:
			s = strings.TrimSpace(s[1 : len(s)-1])
		default:
			return s
		}
	}
}

// stripDecoration removes trailing pointer/reference markers and returns
// the storage form they imply. A bare name is StorageValue.
func stripDecoration(name string) (string, model.StorageForm) {
	storage := model.StorageValue
	for {
		trimmed := strings.TrimSpace(name)
		switch {
		case strings.HasSuffix(trimmed, "*"):
			name = strings.TrimSuffix(trimmed, "*")
			storage = model.StoragePointer
		case strings.HasSuffix(trimmed, "&"):
			name = strings.TrimSuffix(trimmed, "&")
			if storage == model.StorageValue {
				storage = model.StorageReference
			}
		default:
			return trimmed, storage
		}
	}
}

// unwrapOptional returns the element type of an Optional wrapper.
func unwrapOptional(name string) (string, bool) {
	open := strings.IndexAny(name, "<[")
	if open <= 0 {
		return "", false
	}
	outer := strings.TrimSpace(name[:open])
	if outer != "Optional" && outer != "typing.Optional" {
		return "", false
	}
	close := byte('>')
	if name[open] == '[' {
		close = ']'
	}
	if name[len(name)-1] != close {
		return "", false
	}
	return strings.TrimSpace(name[open+1 : len(name)-1]), true
}

// unwrapContainer returns the element type of a known container wrapper.
//
// Description:
//
//	Recognizes Outer<...> and Outer[...] syntax where Outer is in the
//	configured container table. Multi-argument containers (maps) resolve
//	their last top-level argument, matching the convention that the value
//	type is the related one.
//
// Outputs:
//
//	string - The raw element type, unstripped.
//	bool - False when the name is not a known container wrapper.
func (r *Resolver) unwrapContainer(name string) (string, bool) {
	open := strings.IndexAny(name, "<[")
	if open <= 0 {
		return "", false
	}
	var close byte
	if name[open] == '<' {
		close = '>'
	} else {
		close = ']'
	}
	if name[len(name)-1] != close {
		return "", false
	}

	outer := strings.TrimSpace(name[:open])
	if !r.heuristics.IsContainer(outer) {
		return "", false
	}

	args := splitTopLevel(name[open+1 : len(name)-1])
	if len(args) == 0 {
		return "", false
	}
	return args[len(args)-1], true
}

// splitTopLevel splits a type argument list on commas that are not nested
// inside further angle brackets or square brackets.
func splitTopLevel(s string) []string {
	var args []string
	depth := 0
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '<', '[':
			depth++
		case '>', ']':
			depth--
		case ',':
			if depth == 0 {
				args = append(args, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
	}
	last := strings.TrimSpace(s[start:])
	if last != "" {
		args = append(args, last)
	}
	return args
}
