// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"path/filepath"
	"slices"
	"strings"
)

// MinimalUniquePaths returns a short name for each of the paths, using only the path components that
// distinguish it from the others. A single path is named by its base name.
//
// If a path differs from the others in more than one component, the first and the last differing
// components are joined by "...".
func MinimalUniquePaths(paths ...string) []string {
	split := make([][]string, len(paths))
	for ii, path := range paths {
		split[ii] = strings.Split(filepath.Clean(path), string(filepath.Separator))
	}
	names := make([]string, len(paths))
	for ii, components := range split {
		var diffIndexes []int
		for jj, other := range split {
			if ii == jj {
				continue
			}
			for k := range min(len(components), len(other)) {
				if components[k] != other[k] && !slices.Contains(diffIndexes, k) {
					diffIndexes = append(diffIndexes, k)
				}
			}
		}
		slices.Sort(diffIndexes)
		switch len(diffIndexes) {
		case 0:
			names[ii] = components[len(components)-1]
		case 1:
			names[ii] = components[diffIndexes[0]]
		default:
			names[ii] = components[diffIndexes[0]] + "..." + components[diffIndexes[len(diffIndexes)-1]]
		}
	}
	return names
}
