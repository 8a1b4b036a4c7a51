// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ast extracts structural class models from source files using
// tree-sitter grammars. Each supported language has its own parser; all
// parsers produce the same language-neutral ClassEntity records that the
// classifier and graph builder consume.
package ast

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/wseabra/marco-polo/services/cartograph/model"
)

// DefaultMaxFileSize is the maximum file size parsers accept by default.
const DefaultMaxFileSize = 10 * 1024 * 1024 // 10MB

// WarnFileSize is the threshold above which a warning is logged before
// parsing.
const WarnFileSize = 1 * 1024 * 1024 // 1MB

// Parse error sentinels.
var (
	// ErrFileTooLarge indicates content exceeds the parser's size limit.
	ErrFileTooLarge = errors.New("file too large")

	// ErrInvalidContent indicates content is not valid UTF-8.
	ErrInvalidContent = errors.New("invalid content")

	// ErrUnsupportedFile indicates no registered parser handles the file.
	ErrUnsupportedFile = errors.New("unsupported file type")
)

// ParseResult contains the classes extracted from one source file.
//
// Description:
//
//	Parsers are error-tolerant: a file with syntax errors still yields
//	the classes that could be extracted, with the problems recorded in
//	Errors. A non-nil ParseResult with a non-empty Errors slice is a
//	partial success, not a failure.
type ParseResult struct {
	// FilePath is the path the content was attributed to.
	FilePath string `json:"file_path"`

	// Language is the canonical language name (e.g., "cpp", "python").
	Language string `json:"language"`

	// Hash is the SHA256 hex hash of the raw content.
	Hash string `json:"hash"`

	// ParsedAtMilli is the Unix timestamp in milliseconds when parsing
	// completed.
	ParsedAtMilli int64 `json:"parsed_at_milli"`

	// Classes are the extracted class entities.
	Classes []*model.ClassEntity `json:"classes"`

	// Errors holds non-fatal extraction problems.
	Errors []string `json:"errors,omitempty"`
}

// Parser extracts class entities from source code in one language.
//
// Thread Safety: implementations must be safe for concurrent use; Parse
// creates its own tree-sitter parser per call.
type Parser interface {
	// Parse extracts class entities from the given content.
	Parse(ctx context.Context, content []byte, filePath string) (*ParseResult, error)

	// Language returns the canonical language name.
	Language() string

	// Extensions returns the file extensions this parser handles,
	// including the leading dot.
	Extensions() []string
}

// Parsers returns one instance of every registered parser.
func Parsers() []Parser {
	return []Parser{
		NewCppParser(),
		NewPythonParser(),
	}
}

// ParserFor returns a parser for the given file path, selected by
// extension.
//
// Outputs:
//
//	Parser - The matching parser, or nil.
//	bool - False when no parser handles the extension.
func ParserFor(path string) (Parser, bool) {
	ext := strings.ToLower(filepath.Ext(path))
	for _, p := range Parsers() {
		for _, e := range p.Extensions() {
			if e == ext {
				return p, true
			}
		}
	}
	return nil, false
}

// SupportedExtensions returns all extensions any registered parser
// handles.
func SupportedExtensions() []string {
	var out []string
	for _, p := range Parsers() {
		out = append(out, p.Extensions()...)
	}
	return out
}

// validate checks structural invariants of a ParseResult before it is
// returned to callers.
func (r *ParseResult) validate() error {
	if r.FilePath == "" {
		return fmt.Errorf("parse result missing file path")
	}
	seen := make(map[string]struct{}, len(r.Classes))
	for _, c := range r.Classes {
		if c == nil {
			return fmt.Errorf("parse result contains nil class")
		}
		if c.Name == "" {
			return fmt.Errorf("parse result contains unnamed class in %s", r.FilePath)
		}
		if _, dup := seen[c.Name]; dup {
			return fmt.Errorf("parse result contains duplicate class %s in %s", c.Name, r.FilePath)
		}
		seen[c.Name] = struct{}{}
	}
	return nil
}
