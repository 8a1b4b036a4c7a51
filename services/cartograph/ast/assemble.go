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
	"sort"

	"github.com/wseabra/marco-polo/services/cartograph/model"
)

// AssembleBatch merges parse results from many files into one Batch.
//
// Description:
//
//	C++ splits a class across header and source, so the same class name
//	may appear in several ParseResults; declarations are merged by name,
//	unioning members, methods, and bases. After merging, a base class
//	that is abstract and carries no data members is promoted from the
//	base list to a capability: inheriting from a pure interface is
//	realization, not structural inheritance.
//
// Inputs:
//
//	results - Parse results to merge. Nil entries are skipped.
//
// Outputs:
//
//	*model.Batch - The merged, validated batch.
//	error - Non-nil when the merged classes fail batch validation.
func AssembleBatch(results []*ParseResult) (*model.Batch, error) {
	merged := make(map[string]*model.ClassEntity)
	var order []string

	for _, result := range results {
		if result == nil {
			continue
		}
		for _, class := range result.Classes {
			existing, ok := merged[class.Name]
			if !ok {
				clone := *class
				merged[class.Name] = &clone
				order = append(order, class.Name)
				continue
			}
			mergeClass(existing, class)
		}
	}

	// Promote pure-interface bases to capabilities.
	for _, name := range order {
		class := merged[name]
		var bases []string
		for _, base := range class.Bases {
			if target, ok := merged[base]; ok && isPureInterface(target) {
				class.Capabilities = append(class.Capabilities, base)
				continue
			}
			bases = append(bases, base)
		}
		class.Bases = bases
		sort.Strings(class.Capabilities)
	}

	classes := make([]*model.ClassEntity, 0, len(order))
	for _, name := range order {
		classes = append(classes, merged[name])
	}
	return model.NewBatch(classes)
}

// mergeClass folds a second declaration of the same class into dst,
// skipping members and methods dst already has.
func mergeClass(dst, src *model.ClassEntity) {
	members := make(map[string]bool, len(dst.Members))
	for _, m := range dst.Members {
		members[m.Name] = true
	}
	for _, m := range src.Members {
		if !members[m.Name] {
			members[m.Name] = true
			m.Owner = dst.Name
			dst.Members = append(dst.Members, m)
		}
	}

	methods := make(map[string]bool, len(dst.Methods))
	for _, m := range dst.Methods {
		methods[m.Name] = true
	}
	for _, m := range src.Methods {
		if !methods[m.Name] {
			methods[m.Name] = true
			m.Owner = dst.Name
			dst.Methods = append(dst.Methods, m)
		}
	}

	bases := make(map[string]bool, len(dst.Bases))
	for _, b := range dst.Bases {
		bases[b] = true
	}
	for _, b := range src.Bases {
		if !bases[b] {
			bases[b] = true
			dst.Bases = append(dst.Bases, b)
		}
	}

	dst.IsAbstract = dst.IsAbstract || src.IsAbstract
	if dst.FilePath == "" {
		dst.FilePath = src.FilePath
	}
}

// isPureInterface reports whether a class is abstract, has no data
// members, and declares no constructor.
func isPureInterface(class *model.ClassEntity) bool {
	if !class.IsAbstract || len(class.Members) > 0 {
		return false
	}
	for _, m := range class.Methods {
		if m.IsConstructor {
			return false
		}
	}
	return true
}
