// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package persist stores object graphs in container files and
// reconstructs them.
//
// The store walks a value depth-first. A composite (see
// [objtree.Classify]) becomes a group carrying a "type" attribute
// with its type tag and one child per field. A leaf is encoded by the
// closed value codec ([codec.EncodeValue]), compressed into a frame
// ([compress.Encode]), and written as datasets chunk_0, chunk_1, ...
// inside a group at the leaf's path.
//
// Loading reverses the walk. A group with a "type" attribute is
// rebuilt through the [objtree.Registry]: the factory yields a
// builder, every child is loaded and set as a field in stored order,
// and the builder is finished. Any other group is a leaf whose chunk
// run is read from chunk_0 up to the first missing index.
//
// Every store runs inside one savepoint, so a failed store leaves the
// container as it was. Errors carry the offending path as an [*Error]
// and wrap one of the sentinel errors ([ErrPathNotFound],
// [ErrUnresolvedType], [ErrCorruptData], [ErrSerialization],
// [ErrRepackFailure], [ErrKindConflict]).
//
// [Repack] compacts a container file through a scratch copy and an
// atomic rename. [Summary] lists node names.
package persist
