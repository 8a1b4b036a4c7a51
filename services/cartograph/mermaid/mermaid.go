// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package mermaid renders a class graph as a Mermaid classDiagram.
package mermaid

import (
	"fmt"
	"strings"

	"github.com/wseabra/marco-polo/services/cartograph/graph"
	"github.com/wseabra/marco-polo/services/cartograph/model"
)

// Render produces Mermaid classDiagram text for a frozen graph.
//
// Description:
//
//	Classes are emitted in the graph's sorted order and edges in its
//	canonical edge order, so the output is byte-stable for the same
//	graph. Qualified names containing "::" get a sanitized node ID with
//	the original name as a display label, since Mermaid identifiers
//	cannot contain colons.
//
// Arrow conventions:
//
//	Parent    <|-- Child      inheritance
//	Interface <|.. Class      realization
//	Owner      *-- Part       composition
//	Owner      o-- Part       aggregation
//	Source     --> Target     association
//	Source     ..> Target     dependency
func Render(g *graph.ClassGraph) string {
	var b strings.Builder
	b.WriteString("classDiagram\n")

	for _, class := range g.AllClasses() {
		writeClass(&b, class)
	}

	for _, edge := range g.AllEdges() {
		writeEdge(&b, edge)
	}

	return b.String()
}

// writeClass emits one class block with its members and methods.
func writeClass(b *strings.Builder, class *model.ClassEntity) {
	id := nodeID(class.Name)
	if id != class.Name {
		fmt.Fprintf(b, "    class %s[\"%s\"] {\n", id, class.Name)
	} else {
		fmt.Fprintf(b, "    class %s {\n", id)
	}

	if class.IsAbstract {
		b.WriteString("        <<abstract>>\n")
	}

	for _, m := range class.Members {
		fmt.Fprintf(b, "        %s%s %s\n", m.Visibility.Sigil(), memberType(m.RawType), m.Name)
	}
	for _, m := range class.Methods {
		fmt.Fprintf(b, "        %s%s()\n", m.Visibility.Sigil(), m.Name)
	}

	b.WriteString("    }\n")
}

// writeEdge emits one relationship line, with merged labels appended
// after a colon.
func writeEdge(b *strings.Builder, edge model.RelationshipEdge) {
	source := nodeID(edge.Source)
	target := nodeID(edge.Target)

	var line string
	switch edge.Kind {
	case model.KindInheritance:
		line = fmt.Sprintf("    %s <|-- %s", target, source)
	case model.KindRealization:
		line = fmt.Sprintf("    %s <|.. %s", target, source)
	case model.KindComposition:
		line = fmt.Sprintf("    %s *-- %s", source, target)
	case model.KindAggregation:
		line = fmt.Sprintf("    %s o-- %s", source, target)
	case model.KindAssociation:
		line = fmt.Sprintf("    %s --> %s", source, target)
	default:
		line = fmt.Sprintf("    %s ..> %s", source, target)
	}

	if len(edge.Labels) > 0 {
		line += " : " + strings.Join(edge.Labels, ", ")
	}
	b.WriteString(line + "\n")
}

// nodeID sanitizes a class name into a valid Mermaid identifier.
func nodeID(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// memberType trims a raw declared type down to something readable in a
// diagram cell. Mermaid treats "~" as the generic marker, so template
// angle brackets are converted.
func memberType(raw string) string {
	t := strings.TrimSpace(raw)
	t = strings.ReplaceAll(t, "<", "~")
	t = strings.ReplaceAll(t, ">", "~")
	return t
}
