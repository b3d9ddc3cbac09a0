// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package container implements the hierarchical container file: a tree
// of groups and binary datasets addressed by '/'-separated paths, with
// string attributes on any node.
//
// A container is one SQLite database file opened through
// [sqlitepool]. Every node is a row of the nodes table keyed by its
// canonical path; attributes live in a separate table keyed by
// (path, name). Children are returned in insertion order. The root
// group "/" exists in every container and cannot be deleted, only
// emptied.
//
// A Container holds a single connection for its lifetime and is not
// safe for concurrent use. Concurrent access to one file from several
// processes is not supported and must be serialized by the caller.
//
// [Compactor] implementations rewrite a closed container file in
// place. [VacuumCompactor] runs SQLite's VACUUM; [CommandCompactor]
// runs an external program.
package container
