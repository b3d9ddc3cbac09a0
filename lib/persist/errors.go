// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package persist

import (
	"errors"

	"github.com/slurmflow/slurmflow/lib/compress"
	"github.com/slurmflow/slurmflow/lib/objtree"
)

var (
	// ErrPathNotFound means the requested path (or the container file
	// itself) does not exist.
	ErrPathNotFound = errors.New("path not found")

	// ErrUnresolvedType means a composite's type tag has no registered
	// factory. It is the same value as objtree.ErrUnresolvedType.
	ErrUnresolvedType = objtree.ErrUnresolvedType

	// ErrCorruptData means a leaf's chunk run is missing, malformed,
	// or fails decompression or decoding. It is the same value as
	// compress.ErrCorruptData.
	ErrCorruptData = compress.ErrCorruptData

	// ErrSerialization means a value cannot be stored (unsupported
	// leaf kind, invalid field name) or a builder rejected a stored
	// field.
	ErrSerialization = errors.New("serialization error")

	// ErrRepackFailure means compaction failed. The original container
	// is untouched.
	ErrRepackFailure = errors.New("repack failed")

	// ErrKindConflict means a store under PolicyStrict would replace a
	// node of a different kind.
	ErrKindConflict = errors.New("node kind conflict")
)

// Error records a failed operation and the container path at which it
// failed. Err wraps one of the package's sentinel errors.
type Error struct {
	// Op is "save", "store", "load", "inspect", "repack" or "summary".
	Op string

	// Path is the container path of the offending node, or the file
	// path for whole-file operations.
	Path string

	Err error
}

func (e *Error) Error() string {
	return e.Op + " " + e.Path + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// wrapError returns err unchanged if it already carries a path, and
// otherwise attaches op and path.
func wrapError(op, path string, err error) error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) {
		return err
	}
	return &Error{Op: op, Path: path, Err: err}
}
