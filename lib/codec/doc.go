// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec serializes leaf values for slurmflow containers.
//
// [EncodeValue] and [DecodeValue] handle the closed set of leaf kinds a
// container can hold: null, booleans, fixed-width integers and floats,
// strings, byte strings, typed arrays of those, heterogeneous lists of
// supported values, and field-less composites ([EmptyComposite]).
// Every payload is wrapped in a versioned envelope recording its exact
// Go kind, so a value decodes back to the type it was encoded from.
// Anything outside the set is rejected with [ErrUnsupportedKind].
//
// Envelopes are CBOR in core deterministic encoding, so identical
// values produce identical chunk records. [Diagnose] renders a stored
// envelope for humans.
package codec
