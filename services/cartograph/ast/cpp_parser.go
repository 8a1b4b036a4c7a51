// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ast

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/cpp"

	"github.com/wseabra/marco-polo/services/cartograph/config"
	"github.com/wseabra/marco-polo/services/cartograph/model"
)

// CppParserOption configures a CppParser instance.
type CppParserOption func(*CppParser)

// WithCppMaxFileSize sets the maximum file size the parser will accept.
func WithCppMaxFileSize(bytes int64) CppParserOption {
	return func(p *CppParser) {
		if bytes > 0 {
			p.maxFileSize = bytes
		}
	}
}

// WithCppHeuristics sets the container-type tables used for storage-form
// detection. Nil uses the embedded defaults.
func WithCppHeuristics(h *config.Heuristics) CppParserOption {
	return func(p *CppParser) {
		if h != nil {
			p.heuristics = h
		}
	}
}

// CppParser implements the Parser interface for C++ source code.
//
// Description:
//
//	CppParser uses tree-sitter to parse C++ headers and sources and
//	extract class and struct declarations, their members with storage
//	forms, their method signatures, and their base-class lists. Classes
//	declared inside namespaces get "::"-qualified names so the same
//	simple name in two namespaces stays distinct.
//
// Thread Safety:
//
//	CppParser instances are safe for concurrent use. Each Parse call
//	creates its own tree-sitter parser instance.
type CppParser struct {
	maxFileSize int64
	heuristics  *config.Heuristics
}

// NewCppParser creates a new CppParser with the given options.
func NewCppParser(opts ...CppParserOption) *CppParser {
	p := &CppParser{
		maxFileSize: DefaultMaxFileSize,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.heuristics == nil {
		p.heuristics, _ = config.Default()
	}
	return p
}

// Parse extracts class entities from C++ source code.
//
// Description:
//
//	Error-tolerant: syntactically invalid files yield the classes that
//	could be extracted, with problems recorded in ParseResult.Errors.
//
// Inputs:
//
//	ctx - Context for cancellation. Checked before and after parsing.
//	content - Raw C++ source bytes. Must be valid UTF-8.
//	filePath - Path for attribution and error reporting.
//
// Outputs:
//
//	*ParseResult - Extracted classes and metadata. Never nil on success.
//	error - ErrFileTooLarge, ErrInvalidContent, or a context error.
func (p *CppParser) Parse(ctx context.Context, content []byte, filePath string) (*ParseResult, error) {
	ctx, span := startParseSpan(ctx, "cpp", filePath, len(content))
	defer span.End()

	start := time.Now()

	if err := ctx.Err(); err != nil {
		recordParseMetrics("cpp", time.Since(start), 0, false)
		return nil, fmt.Errorf("parse canceled before start: %w", err)
	}
	if int64(len(content)) > p.maxFileSize {
		recordParseMetrics("cpp", time.Since(start), 0, false)
		return nil, fmt.Errorf("%w: size %d exceeds limit %d", ErrFileTooLarge, len(content), p.maxFileSize)
	}
	if len(content) > WarnFileSize {
		slog.Warn("parsing large file",
			slog.String("file", filePath),
			slog.Int("size_bytes", len(content)))
	}
	if !utf8.Valid(content) {
		recordParseMetrics("cpp", time.Since(start), 0, false)
		return nil, fmt.Errorf("%w: content is not valid UTF-8", ErrInvalidContent)
	}

	hash := sha256.Sum256(content)

	parser := sitter.NewParser()
	parser.SetLanguage(cpp.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		recordParseMetrics("cpp", time.Since(start), 0, false)
		return nil, fmt.Errorf("tree-sitter parse failed: %w", err)
	}
	defer tree.Close()

	if err := ctx.Err(); err != nil {
		recordParseMetrics("cpp", time.Since(start), 0, false)
		return nil, fmt.Errorf("parse canceled after tree-sitter: %w", err)
	}

	result := &ParseResult{
		FilePath:      filePath,
		Language:      "cpp",
		Hash:          hex.EncodeToString(hash[:]),
		ParsedAtMilli: time.Now().UnixMilli(),
		Classes:       make([]*model.ClassEntity, 0),
		Errors:        make([]string, 0),
	}

	root := tree.RootNode()
	if root == nil {
		result.Errors = append(result.Errors, "tree-sitter returned nil root node")
		return result, nil
	}
	if root.HasError() {
		result.Errors = append(result.Errors, "source contains syntax errors")
	}

	p.extractScope(root, content, filePath, nil, result)

	if err := result.validate(); err != nil {
		recordParseMetrics("cpp", time.Since(start), 0, false)
		return nil, fmt.Errorf("result validation failed: %w", err)
	}

	setParseSpanResult(span, len(result.Classes), len(result.Errors))
	recordParseMetrics("cpp", time.Since(start), len(result.Classes), true)
	return result, nil
}

// Language returns "cpp".
func (p *CppParser) Language() string {
	return "cpp"
}

// Extensions returns the C++ source and header extensions.
func (p *CppParser) Extensions() []string {
	return []string{".cpp", ".cc", ".cxx", ".hpp", ".hh", ".hxx", ".h"}
}

// extractScope walks one declaration scope (translation unit or
// namespace body), descending into nested namespaces with the qualified
// prefix accumulated in nsPath.
func (p *CppParser) extractScope(node *sitter.Node, content []byte, filePath string, nsPath []string, result *ParseResult) {
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child == nil {
			continue
		}
		switch child.Type() {
		case "namespace_definition":
			name := ""
			if n := child.ChildByFieldName("name"); n != nil {
				name = string(content[n.StartByte():n.EndByte()])
			}
			body := child.ChildByFieldName("body")
			if body == nil {
				continue
			}
			inner := nsPath
			if name != "" {
				inner = append(append([]string{}, nsPath...), name)
			}
			p.extractScope(body, content, filePath, inner, result)
		case "class_specifier", "struct_specifier":
			if class := p.extractClass(child, content, filePath, nsPath); class != nil {
				result.Classes = append(result.Classes, class)
			}
		}
	}
}

// extractClass builds a ClassEntity from a class_specifier or
// struct_specifier node. Returns nil for anonymous or bodyless
// declarations (forward declarations carry no structure).
func (p *CppParser) extractClass(node *sitter.Node, content []byte, filePath string, nsPath []string) *model.ClassEntity {
	nameNode := node.ChildByFieldName("name")
	body := node.ChildByFieldName("body")
	if nameNode == nil || body == nil {
		return nil
	}

	simpleName := string(content[nameNode.StartByte():nameNode.EndByte()])
	qualified := simpleName
	if len(nsPath) > 0 {
		qualified = strings.Join(nsPath, "::") + "::" + simpleName
	}

	class := &model.ClassEntity{
		Name:      qualified,
		FilePath:  filePath,
		StartLine: int(node.StartPoint().Row + 1),
		EndLine:   int(node.EndPoint().Row + 1),
	}

	// Base clause precedes the body.
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child != nil && child.Type() == "base_class_clause" {
			class.Bases = append(class.Bases, p.extractBases(child, content)...)
		}
	}

	// structs default to public members, classes to private.
	visibility := model.VisibilityPrivate
	if node.Type() == "struct_specifier" {
		visibility = model.VisibilityPublic
	}

	for i := 0; i < int(body.ChildCount()); i++ {
		child := body.Child(i)
		if child == nil {
			continue
		}
		switch child.Type() {
		case "access_specifier":
			visibility = accessVisibility(string(content[child.StartByte():child.EndByte()]))
		case "field_declaration":
			p.extractFieldDeclaration(child, content, class, simpleName, visibility)
		case "function_definition", "declaration":
			if method := p.extractMethod(child, content, qualified, simpleName, visibility); method != nil {
				class.Methods = append(class.Methods, *method)
				if isPureVirtual(child, content) {
					class.IsAbstract = true
				}
			}
		}
	}

	return class
}

// extractBases collects base names from a base_class_clause, skipping
// the access and virtual keywords.
func (p *CppParser) extractBases(node *sitter.Node, content []byte) []string {
	var bases []string
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child == nil {
			continue
		}
		switch child.Type() {
		case "type_identifier", "qualified_identifier", "template_type":
			bases = append(bases, string(content[child.StartByte():child.EndByte()]))
		}
	}
	return bases
}

// extractFieldDeclaration handles a member variable declaration. A
// field_declaration whose declarator is a function_declarator is a
// method prototype and is routed to extractMethod instead.
func (p *CppParser) extractFieldDeclaration(node *sitter.Node, content []byte, class *model.ClassEntity, simpleName string, visibility model.Visibility) {
	declarator := node.ChildByFieldName("declarator")
	if declarator != nil && containsFunctionDeclarator(declarator) {
		if method := p.extractMethod(node, content, class.Name, simpleName, visibility); method != nil {
			class.Methods = append(class.Methods, *method)
			if isPureVirtual(node, content) {
				class.IsAbstract = true
			}
		}
		return
	}

	typeNode := node.ChildByFieldName("type")
	if typeNode == nil || declarator == nil {
		return
	}
	typeText := string(content[typeNode.StartByte():typeNode.EndByte()])

	name, pointers, references := unwrapDeclarator(declarator, content)
	if name == "" {
		return
	}

	class.Members = append(class.Members, model.MemberDeclaration{
		Owner:      class.Name,
		Name:       name,
		RawType:    typeText + strings.Repeat("*", pointers) + strings.Repeat("&", references),
		Storage:    p.storageForm(typeNode, content, pointers, references),
		Visibility: visibility,
	})
}

// storageForm maps a declared type and its declarator decoration to a
// StorageForm. Container detection applies to template types whose name,
// including any namespace qualifier, is in the configured container
// table.
func (p *CppParser) storageForm(typeNode *sitter.Node, content []byte, pointers, references int) model.StorageForm {
	if pointers > 0 {
		return model.StoragePointer
	}
	if references > 0 {
		return model.StorageReference
	}
	if tmpl := templateTypeNode(typeNode); tmpl != nil {
		nameNode := tmpl.ChildByFieldName("name")
		if nameNode != nil {
			container := string(content[nameNode.StartByte():nameNode.EndByte()])
			if tmpl != typeNode {
				// Qualified template like std::vector<T>: the container
				// table keys on the qualified name, so prepend the
				// qualifier text preceding the template_type.
				container = string(content[typeNode.StartByte():tmpl.StartByte()]) + container
			}
			if p.heuristics.IsContainer(container) {
				if templateArgumentHasPointer(tmpl, content) {
					return model.StorageContainerOfPointer
				}
				return model.StorageContainerOfValue
			}
		}
	}
	return model.StorageValue
}

// templateTypeNode descends qualified_identifier wrappers to the
// underlying template_type, if any.
func templateTypeNode(node *sitter.Node) *sitter.Node {
	for node != nil {
		switch node.Type() {
		case "template_type":
			return node
		case "qualified_identifier":
			node = node.ChildByFieldName("name")
		default:
			return nil
		}
	}
	return nil
}

// extractMethod builds a MethodSignature from a function_definition,
// declaration, or method-prototype field_declaration. Returns nil when
// no function_declarator is present.
func (p *CppParser) extractMethod(node *sitter.Node, content []byte, owner, simpleName string, visibility model.Visibility) *model.MethodSignature {
	fnDecl := findFunctionDeclarator(node.ChildByFieldName("declarator"))
	if fnDecl == nil {
		return nil
	}

	nameNode := fnDecl.ChildByFieldName("declarator")
	if nameNode == nil {
		return nil
	}
	name := string(content[nameNode.StartByte():nameNode.EndByte()])
	// Destructors carry no relationship information.
	if strings.HasPrefix(name, "~") {
		return nil
	}

	method := &model.MethodSignature{
		Owner:         owner,
		Name:          name,
		IsConstructor: name == simpleName,
		Visibility:    visibility,
	}

	if params := fnDecl.ChildByFieldName("parameters"); params != nil {
		for i := 0; i < int(params.ChildCount()); i++ {
			child := params.Child(i)
			if child == nil || child.Type() != "parameter_declaration" {
				continue
			}
			typeNode := child.ChildByFieldName("type")
			if typeNode == nil {
				continue
			}
			typeText := string(content[typeNode.StartByte():typeNode.EndByte()])
			paramName, pointers, references := unwrapDeclarator(child.ChildByFieldName("declarator"), content)
			method.Parameters = append(method.Parameters, model.Parameter{
				Name:    paramName,
				RawType: typeText + strings.Repeat("*", pointers) + strings.Repeat("&", references),
			})
		}
	}

	if !method.IsConstructor {
		if typeNode := node.ChildByFieldName("type"); typeNode != nil {
			returnType := string(content[typeNode.StartByte():typeNode.EndByte()])
			// Pointer and reference return decoration lives on the
			// declarator chain, not the type node.
			_, pointers, references := countDecoration(node.ChildByFieldName("declarator"))
			method.ReturnType = returnType + strings.Repeat("*", pointers) + strings.Repeat("&", references)
		}
	}

	return method
}

// unwrapDeclarator walks pointer and reference wrappers down to the
// identifier, returning the name and the decoration counts.
func unwrapDeclarator(node *sitter.Node, content []byte) (name string, pointers, references int) {
	for node != nil {
		switch node.Type() {
		case "pointer_declarator":
			pointers++
			node = node.ChildByFieldName("declarator")
		case "reference_declarator":
			references++
			// reference_declarator has no named declarator field.
			node = lastNamedChild(node)
		case "init_declarator":
			node = node.ChildByFieldName("declarator")
		case "identifier", "field_identifier":
			return string(content[node.StartByte():node.EndByte()]), pointers, references
		default:
			return "", pointers, references
		}
	}
	return "", pointers, references
}

// countDecoration counts pointer and reference wrappers on a declarator
// chain without extracting the name.
func countDecoration(node *sitter.Node) (depth, pointers, references int) {
	for node != nil && depth < 8 {
		switch node.Type() {
		case "pointer_declarator":
			pointers++
			node = node.ChildByFieldName("declarator")
		case "reference_declarator":
			references++
			node = lastNamedChild(node)
		default:
			return depth, pointers, references
		}
		depth++
	}
	return depth, pointers, references
}

// findFunctionDeclarator descends through pointer and reference wrappers
// to locate the function_declarator of a method declaration.
func findFunctionDeclarator(node *sitter.Node) *sitter.Node {
	for node != nil {
		switch node.Type() {
		case "function_declarator":
			return node
		case "pointer_declarator":
			node = node.ChildByFieldName("declarator")
		case "reference_declarator":
			node = lastNamedChild(node)
		default:
			return nil
		}
	}
	return nil
}

// containsFunctionDeclarator reports whether the declarator chain
// terminates in a function_declarator.
func containsFunctionDeclarator(node *sitter.Node) bool {
	return findFunctionDeclarator(node) != nil
}

// lastNamedChild returns the last named child of a node, or nil.
func lastNamedChild(node *sitter.Node) *sitter.Node {
	n := int(node.NamedChildCount())
	if n == 0 {
		return nil
	}
	return node.NamedChild(n - 1)
}

// templateArgumentHasPointer reports whether any template argument of a
// template_type carries pointer decoration.
func templateArgumentHasPointer(node *sitter.Node, content []byte) bool {
	args := node.ChildByFieldName("arguments")
	if args == nil {
		return false
	}
	text := string(content[args.StartByte():args.EndByte()])
	return strings.Contains(text, "*")
}

// isPureVirtual reports whether a method declaration ends in "= 0".
func isPureVirtual(node *sitter.Node, content []byte) bool {
	text := string(content[node.StartByte():node.EndByte()])
	text = strings.TrimSuffix(strings.TrimSpace(text), ";")
	text = strings.TrimSpace(text)
	return strings.HasSuffix(text, "= 0") || strings.HasSuffix(text, "=0")
}

// accessVisibility maps a C++ access specifier keyword to a Visibility.
func accessVisibility(text string) model.Visibility {
	switch strings.TrimSpace(strings.TrimSuffix(text, ":")) {
	case "public":
		return model.VisibilityPublic
	case "protected":
		return model.VisibilityProtected
	default:
		return model.VisibilityPrivate
	}
}
