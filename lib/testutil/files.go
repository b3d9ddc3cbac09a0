// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"math/rand/v2"
	"strconv"
	"sync/atomic"
	"os"
	"path/filepath"
	"slices"
)

// TB is the subset of testing.TB used by the file helpers.
type TB interface {
	Helper()
	Fatalf(format string, args ...any)
	TempDir() string
}

// TempPath returns the path of name inside a fresh temporary directory
// that is removed when the test completes. The file is not created.
func TempPath(t TB, name string) string {
	t.Helper()
	return filepath.Join(t.TempDir(), name)
}

// ReadFile returns the contents of path, failing the test on error.
func ReadFile(t TB, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading %s: %v", path, err)
	}
	return data
}

// DirEntries returns the sorted names of the entries of directory.
func DirEntries(t TB, directory string) []string {
	t.Helper()
	entries, err := os.ReadDir(directory)
	if err != nil {
		t.Fatalf("listing %s: %v", directory, err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	slices.Sort(names)
	return names
}

// RandomBytes returns size pseudo-random bytes determined by seed.
// The output does not compress.
func RandomBytes(size int, seed uint64) []byte {
	var key [32]byte
	for i := range 8 {
		key[i] = byte(seed >> (8 * i))
	}
	source := rand.NewChaCha8(key)
	data := make([]byte, size)
	source.Read(data)
	return data
}

var uniqueCounter atomic.Uint64

// UniqueID returns prefix followed by a dash and a number no other
// call in the test binary has returned.
func UniqueID(prefix string) string {
	return prefix + "-" + strconv.FormatUint(uniqueCounter.Add(1), 10)
}
