// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package objtree describes how in-memory values map onto a container
// tree, without any runtime introspection.
//
// A value is either a Composite (it enumerates ordered, named fields
// through [Composite.Fields]) or a Leaf (anything else, serialized
// opaquely). [Classify] makes that decision; a Composite with no fields
// is a Leaf.
//
// Reconstruction is two-phase. A [Registry] maps each stable type tag
// to a [Factory] that returns an empty [Builder]. The loader sets every
// stored field on the builder by name and, if the builder implements
// [Finisher], calls Finish to obtain the final validated value. Types
// whose zero value is already valid simply return a pointer to
// themselves from the factory and receive fields directly.
//
// Tags are registered at process start, usually from init functions
// against [DefaultRegistry]. An unknown tag at load time is
// [ErrUnresolvedType]; there is no fallback to import-by-name.
//
// [Record] is a generic Composite (a type tag plus ordered fields) for
// data that has no dedicated Go type.
package objtree
