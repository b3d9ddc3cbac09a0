// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package runnable executes units of work stored in container files.
//
// A [Unit] that is also an objtree.Composite can be saved with [Store],
// shipped to a cluster node, and started there with [Launch], which is
// what "slurmflow run" does inside a batch job. [Execute] owns the
// lifecycle: Run, signal forwarding while Run is in progress, then
// Cleanup. [Command] is the built-in unit that wraps an external
// program.
package runnable
