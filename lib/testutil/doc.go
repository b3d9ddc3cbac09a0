// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for slurmflow packages.
//
// [TempPath], [ReadFile] and [DirEntries] cover the file handling that
// container tests repeat: a fresh path in a per-test directory, the
// exact bytes of a file for before/after comparison, and the names
// left behind in a directory.
//
// [RandomBytes] returns deterministic, incompressible payloads from a
// seeded ChaCha8 source, so size-sensitive tests (chunk counts,
// compression fallbacks) behave the same on every run.
//
// [RequireReceive] and [RequireClosed] bound a wait on a channel so a
// broken test fails instead of hanging.
//
// [UniqueID] returns names that no other test in the binary uses.
//
// Helpers fail the test with t.Fatalf instead of returning errors.
package testutil
