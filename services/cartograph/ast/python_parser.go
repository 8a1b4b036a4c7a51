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
	"github.com/smacker/go-tree-sitter/python"

	"github.com/wseabra/marco-polo/services/cartograph/config"
	"github.com/wseabra/marco-polo/services/cartograph/model"
)

// Base names that mark a Python class as abstract rather than naming a
// real ancestor.
var pythonAbstractMarkers = map[string]bool{
	"ABC":             true,
	"abc.ABC":         true,
	"Protocol":        true,
	"typing.Protocol": true,
}

// PythonParserOption configures a PythonParser instance.
type PythonParserOption func(*PythonParser)

// WithPythonMaxFileSize sets the maximum file size the parser will accept.
func WithPythonMaxFileSize(bytes int64) PythonParserOption {
	return func(p *PythonParser) {
		if bytes > 0 {
			p.maxFileSize = bytes
		}
	}
}

// WithPythonHeuristics sets the container-type tables used for
// storage-form detection. Nil uses the embedded defaults.
func WithPythonHeuristics(h *config.Heuristics) PythonParserOption {
	return func(p *PythonParser) {
		if h != nil {
			p.heuristics = h
		}
	}
}

// PythonParser implements the Parser interface for Python source code.
//
// Description:
//
//	PythonParser uses tree-sitter to extract class definitions, their
//	annotated attributes (class body and __init__ self-assignments),
//	their method signatures, and their base classes. Python has no
//	value/pointer distinction, so storage forms are inferred from the
//	annotation shape: Optional[X] behaves like a nullable pointer,
//	attributes constructed in __init__ behave like owned values, and
//	plain annotations behave like shared references.
//
// Thread Safety:
//
//	PythonParser instances are safe for concurrent use. Each Parse call
//	creates its own tree-sitter parser instance.
type PythonParser struct {
	maxFileSize int64
	heuristics  *config.Heuristics
}

// NewPythonParser creates a new PythonParser with the given options.
func NewPythonParser(opts ...PythonParserOption) *PythonParser {
	p := &PythonParser{
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

// Parse extracts class entities from Python source code.
//
// Outputs:
//
//	*ParseResult - Extracted classes and metadata. Never nil on success.
//	error - ErrFileTooLarge, ErrInvalidContent, or a context error.
func (p *PythonParser) Parse(ctx context.Context, content []byte, filePath string) (*ParseResult, error) {
	ctx, span := startParseSpan(ctx, "python", filePath, len(content))
	defer span.End()

	start := time.Now()

	if err := ctx.Err(); err != nil {
		recordParseMetrics("python", time.Since(start), 0, false)
		return nil, fmt.Errorf("parse canceled before start: %w", err)
	}
	if int64(len(content)) > p.maxFileSize {
		recordParseMetrics("python", time.Since(start), 0, false)
		return nil, fmt.Errorf("%w: size %d exceeds limit %d", ErrFileTooLarge, len(content), p.maxFileSize)
	}
	if len(content) > WarnFileSize {
		slog.Warn("parsing large file",
			slog.String("file", filePath),
			slog.Int("size_bytes", len(content)))
	}
	if !utf8.Valid(content) {
		recordParseMetrics("python", time.Since(start), 0, false)
		return nil, fmt.Errorf("%w: content is not valid UTF-8", ErrInvalidContent)
	}

	hash := sha256.Sum256(content)

	parser := sitter.NewParser()
	parser.SetLanguage(python.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		recordParseMetrics("python", time.Since(start), 0, false)
		return nil, fmt.Errorf("tree-sitter parse failed: %w", err)
	}
	defer tree.Close()

	if err := ctx.Err(); err != nil {
		recordParseMetrics("python", time.Since(start), 0, false)
		return nil, fmt.Errorf("parse canceled after tree-sitter: %w", err)
	}

	result := &ParseResult{
		FilePath:      filePath,
		Language:      "python",
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

	p.extractClasses(root, content, filePath, result)

	if err := result.validate(); err != nil {
		recordParseMetrics("python", time.Since(start), 0, false)
		return nil, fmt.Errorf("result validation failed: %w", err)
	}

	setParseSpanResult(span, len(result.Classes), len(result.Errors))
	recordParseMetrics("python", time.Since(start), len(result.Classes), true)
	return result, nil
}

// Language returns "python".
func (p *PythonParser) Language() string {
	return "python"
}

// Extensions returns the Python source and stub extensions.
func (p *PythonParser) Extensions() []string {
	return []string{".py", ".pyi"}
}

// extractClasses walks top-level statements for class definitions.
// Classes nested inside functions are intentionally skipped; they are
// implementation details, not part of the structural model.
func (p *PythonParser) extractClasses(root *sitter.Node, content []byte, filePath string, result *ParseResult) {
	for i := 0; i < int(root.ChildCount()); i++ {
		child := root.Child(i)
		if child == nil {
			continue
		}
		node := child
		if node.Type() == "decorated_definition" {
			if def := node.ChildByFieldName("definition"); def != nil {
				node = def
			}
		}
		if node.Type() != "class_definition" {
			continue
		}
		if class := p.extractClass(node, content, filePath); class != nil {
			result.Classes = append(result.Classes, class)
		}
	}
}

// extractClass builds a ClassEntity from a class_definition node.
func (p *PythonParser) extractClass(node *sitter.Node, content []byte, filePath string) *model.ClassEntity {
	nameNode := node.ChildByFieldName("name")
	body := node.ChildByFieldName("body")
	if nameNode == nil || body == nil {
		return nil
	}
	name := string(content[nameNode.StartByte():nameNode.EndByte()])

	class := &model.ClassEntity{
		Name:      name,
		FilePath:  filePath,
		StartLine: int(node.StartPoint().Row + 1),
		EndLine:   int(node.EndPoint().Row + 1),
	}

	if supers := node.ChildByFieldName("superclasses"); supers != nil {
		p.extractSuperclasses(supers, content, class)
	}

	for i := 0; i < int(body.ChildCount()); i++ {
		child := body.Child(i)
		if child == nil {
			continue
		}
		stmt := child
		if stmt.Type() == "decorated_definition" {
			if def := stmt.ChildByFieldName("definition"); def != nil {
				stmt = def
			}
		}
		switch stmt.Type() {
		case "expression_statement":
			p.extractClassAttribute(stmt, content, class)
		case "function_definition":
			p.extractPythonMethod(stmt, content, class)
		}
	}

	return class
}

// extractSuperclasses splits the argument_list of a class definition
// into real bases and abstract markers. ABC and Protocol mark the class
// abstract without contributing an inheritance edge; metaclass keyword
// arguments are ignored except for ABCMeta.
func (p *PythonParser) extractSuperclasses(node *sitter.Node, content []byte, class *model.ClassEntity) {
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child == nil {
			continue
		}
		switch child.Type() {
		case "identifier", "attribute":
			base := string(content[child.StartByte():child.EndByte()])
			if pythonAbstractMarkers[base] {
				class.IsAbstract = true
				continue
			}
			class.Bases = append(class.Bases, base)
		case "subscript":
			// Generic[T] and Protocol[T] style bases.
			value := child.ChildByFieldName("value")
			if value == nil {
				continue
			}
			base := string(content[value.StartByte():value.EndByte()])
			if pythonAbstractMarkers[base] {
				class.IsAbstract = true
			}
		case "keyword_argument":
			text := string(content[child.StartByte():child.EndByte()])
			if strings.Contains(text, "ABCMeta") {
				class.IsAbstract = true
			}
		}
	}
}

// extractClassAttribute handles a class-body annotated assignment like
// "count: int" or "owner: User = None".
func (p *PythonParser) extractClassAttribute(stmt *sitter.Node, content []byte, class *model.ClassEntity) {
	if stmt.ChildCount() == 0 {
		return
	}
	assign := stmt.Child(0)
	if assign == nil || assign.Type() != "assignment" {
		return
	}
	left := assign.ChildByFieldName("left")
	typeNode := assign.ChildByFieldName("type")
	if left == nil || typeNode == nil || left.Type() != "identifier" {
		return
	}

	name := string(content[left.StartByte():left.EndByte()])
	rawType := pythonAnnotation(typeNode, content)

	class.Members = append(class.Members, model.MemberDeclaration{
		Owner:      class.Name,
		Name:       name,
		RawType:    rawType,
		Storage:    p.pythonStorage(rawType, false),
		Visibility: pythonVisibility(name),
	})
}

// extractPythonMethod builds a MethodSignature from a function
// definition in a class body and, for __init__, harvests self-attribute
// assignments as members.
func (p *PythonParser) extractPythonMethod(node *sitter.Node, content []byte, class *model.ClassEntity) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	name := string(content[nameNode.StartByte():nameNode.EndByte()])
	isInit := name == "__init__"

	// Dunder methods other than the constructor carry no relationship
	// information worth surfacing.
	if !isInit && strings.HasPrefix(name, "__") && strings.HasSuffix(name, "__") {
		return
	}

	method := model.MethodSignature{
		Owner:         class.Name,
		Name:          name,
		IsConstructor: isInit,
		Visibility:    pythonVisibility(name),
	}

	if params := node.ChildByFieldName("parameters"); params != nil {
		for i := 0; i < int(params.ChildCount()); i++ {
			child := params.Child(i)
			if child == nil {
				continue
			}
			param, ok := p.extractParameter(child, content)
			if ok && param.Name != "self" && param.Name != "cls" {
				method.Parameters = append(method.Parameters, param)
			}
		}
	}

	if !isInit {
		if ret := node.ChildByFieldName("return_type"); ret != nil {
			method.ReturnType = pythonAnnotation(ret, content)
		}
	}

	class.Methods = append(class.Methods, method)

	if isInit {
		if body := node.ChildByFieldName("body"); body != nil {
			p.extractInitAttributes(body, content, class)
		}
	}
}

// extractParameter reads one parameter node. Untyped parameters keep an
// empty RawType so the classifier skips them.
func (p *PythonParser) extractParameter(node *sitter.Node, content []byte) (model.Parameter, bool) {
	switch node.Type() {
	case "identifier":
		return model.Parameter{Name: string(content[node.StartByte():node.EndByte()])}, true
	case "typed_parameter", "typed_default_parameter":
		var param model.Parameter
		if typeNode := node.ChildByFieldName("type"); typeNode != nil {
			param.RawType = pythonAnnotation(typeNode, content)
		}
		// typed_parameter holds the name as its first named child;
		// typed_default_parameter has a name field.
		if nameNode := node.ChildByFieldName("name"); nameNode != nil {
			param.Name = string(content[nameNode.StartByte():nameNode.EndByte()])
		} else if node.NamedChildCount() > 0 {
			first := node.NamedChild(0)
			if first != nil && first.Type() == "identifier" {
				param.Name = string(content[first.StartByte():first.EndByte()])
			}
		}
		return param, param.Name != ""
	case "default_parameter":
		if nameNode := node.ChildByFieldName("name"); nameNode != nil {
			return model.Parameter{Name: string(content[nameNode.StartByte():nameNode.EndByte()])}, true
		}
	}
	return model.Parameter{}, false
}

// extractInitAttributes walks an __init__ body for "self.x" assignments.
// Annotated assignments use the annotation type; bare assignments whose
// right side is a constructor call use the called name as the type and
// value storage, since construction inside __init__ is ownership.
func (p *PythonParser) extractInitAttributes(body *sitter.Node, content []byte, class *model.ClassEntity) {
	seen := make(map[string]bool, len(class.Members))
	for _, m := range class.Members {
		seen[m.Name] = true
	}

	for i := 0; i < int(body.ChildCount()); i++ {
		stmt := body.Child(i)
		if stmt == nil || stmt.Type() != "expression_statement" || stmt.ChildCount() == 0 {
			continue
		}
		assign := stmt.Child(0)
		if assign == nil || assign.Type() != "assignment" {
			continue
		}
		left := assign.ChildByFieldName("left")
		if left == nil || left.Type() != "attribute" {
			continue
		}
		object := left.ChildByFieldName("object")
		attr := left.ChildByFieldName("attribute")
		if object == nil || attr == nil || string(content[object.StartByte():object.EndByte()]) != "self" {
			continue
		}
		name := string(content[attr.StartByte():attr.EndByte()])
		if seen[name] {
			continue
		}

		var rawType string
		constructed := false
		if typeNode := assign.ChildByFieldName("type"); typeNode != nil {
			rawType = pythonAnnotation(typeNode, content)
		} else if right := assign.ChildByFieldName("right"); right != nil && right.Type() == "call" {
			if fn := right.ChildByFieldName("function"); fn != nil && (fn.Type() == "identifier" || fn.Type() == "attribute") {
				rawType = string(content[fn.StartByte():fn.EndByte()])
				constructed = true
			}
		}
		if rawType == "" {
			continue
		}

		seen[name] = true
		class.Members = append(class.Members, model.MemberDeclaration{
			Owner:      class.Name,
			Name:       name,
			RawType:    rawType,
			Storage:    p.pythonStorage(rawType, constructed),
			Visibility: pythonVisibility(name),
		})
	}
}

// pythonAnnotation reads an annotation node's text, unquoting string
// annotations so forward references like "Logger" resolve by name.
func pythonAnnotation(node *sitter.Node, content []byte) string {
	text := strings.TrimSpace(string(content[node.StartByte():node.EndByte()]))
	if len(text) >= 2 && (text[0] == '"' || text[0] == '\'') && text[len(text)-1] == text[0] {
		text = strings.TrimSpace(text[1 : len(text)-1])
	}
	return text
}

// pythonStorage maps a Python annotation shape to a StorageForm.
func (p *PythonParser) pythonStorage(rawType string, constructed bool) model.StorageForm {
	if constructed {
		return model.StorageValue
	}
	trimmed := strings.TrimSpace(rawType)
	if open := strings.IndexByte(trimmed, '['); open > 0 {
		outer := trimmed[:open]
		if outer == "Optional" || outer == "typing.Optional" {
			return model.StoragePointer
		}
		if p.heuristics.IsContainer(outer) {
			return model.StorageContainerOfValue
		}
	}
	return model.StorageReference
}

// pythonVisibility maps Python naming conventions to a Visibility.
func pythonVisibility(name string) model.Visibility {
	switch {
	case strings.HasPrefix(name, "__"):
		return model.VisibilityPrivate
	case strings.HasPrefix(name, "_"):
		return model.VisibilityProtected
	default:
		return model.VisibilityPublic
	}
}
