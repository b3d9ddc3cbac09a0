// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package nodepath implements the '/'-separated path algebra of a
// container tree.
//
// Every canonical path is absolute. The root is "/"; every other path
// is "/" followed by one or more non-empty segments joined by '/',
// with no trailing separator. The segments "." and ".." are never
// valid: container paths name nodes, they do not navigate.
package nodepath

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Root is the path of the root group.
const Root = "/"

// Separator joins path segments.
const Separator = "/"

// chunkPrefix names the physical chunk records of a leaf.
const chunkPrefix = "chunk_"

// ErrInvalidPath is returned for a path that cannot be canonicalized.
var ErrInvalidPath = errors.New("invalid node path")

// Join appends name to parent. A parent of "" or "/" yields "/name".
// Join does not validate; use Clean on untrusted input.
func Join(parent, name string) string {
	if parent == "" || parent == Root {
		return Root + name
	}
	return strings.TrimSuffix(parent, Separator) + Separator + name
}

// Clean validates a path and returns its canonical form. A missing
// leading separator is added and a single trailing separator is
// removed; "" is the root. Empty interior segments, "." and ".." are
// rejected.
func Clean(path string) (string, error) {
	if path == "" || path == Root {
		return Root, nil
	}
	trimmed := strings.TrimPrefix(path, Separator)
	trimmed = strings.TrimSuffix(trimmed, Separator)
	if trimmed == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	for segment := range strings.SplitSeq(trimmed, Separator) {
		switch segment {
		case "":
			return "", fmt.Errorf("%w: %q has an empty segment", ErrInvalidPath, path)
		case ".", "..":
			return "", fmt.Errorf("%w: %q contains %q", ErrInvalidPath, path, segment)
		}
	}
	return Root + trimmed, nil
}

// Split returns the segments of a canonical path. The root has none.
func Split(path string) []string {
	trimmed := strings.Trim(path, Separator)
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, Separator)
}

// Parent returns the path of the group containing path. The parent of
// the root is the root.
func Parent(path string) string {
	index := strings.LastIndex(strings.TrimSuffix(path, Separator), Separator)
	if index <= 0 {
		return Root
	}
	return path[:index]
}

// Base returns the last segment of path, or "" for the root.
func Base(path string) string {
	trimmed := strings.TrimSuffix(path, Separator)
	return trimmed[strings.LastIndex(trimmed, Separator)+1:]
}

// Depth is the number of separators in a summary name (a path without
// its leading '/'). "a" has depth 0, "a/b" depth 1.
func Depth(name string) int {
	return strings.Count(strings.TrimPrefix(name, Separator), Separator)
}

// Ancestors returns every proper ancestor of path from the outermost
// inwards, excluding the root and path itself:
//
//	Ancestors("/a/b/c") == []string{"/a", "/a/b"}
func Ancestors(path string) []string {
	segments := Split(path)
	if len(segments) < 2 {
		return nil
	}
	ancestors := make([]string, 0, len(segments)-1)
	current := Root
	for _, segment := range segments[:len(segments)-1] {
		current = Join(current, segment)
		ancestors = append(ancestors, current)
	}
	return ancestors
}

// ChunkName returns the record name of the index'th chunk of a leaf.
func ChunkName(index int) string {
	return chunkPrefix + strconv.Itoa(index)
}

// IsChunkName reports whether name (a segment or a full path) names a
// chunk record: "chunk_" followed by a non-negative decimal index with
// no leading zeros.
func IsChunkName(name string) bool {
	_, ok := ChunkIndex(Base(name))
	return ok
}

// ChunkIndex parses a chunk record name.
func ChunkIndex(name string) (int, bool) {
	digits, ok := strings.CutPrefix(name, chunkPrefix)
	if !ok || digits == "" {
		return 0, false
	}
	if len(digits) > 1 && digits[0] == '0' {
		return 0, false
	}
	for _, c := range digits {
		if c < '0' || c > '9' {
			return 0, false
		}
	}
	index, err := strconv.Atoi(digits)
	if err != nil {
		return 0, false
	}
	return index, true
}
