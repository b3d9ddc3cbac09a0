// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package persist

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/slurmflow/slurmflow/lib/codec"
	"github.com/slurmflow/slurmflow/lib/container"
	"github.com/slurmflow/slurmflow/lib/nodepath"
)

// Inspection describes one stored node without resolving its type.
type Inspection struct {
	Path string

	// TypeTag is set for composites.
	TypeTag string

	// Fields lists a composite's field names in stored order.
	Fields []string

	// Chunks, Size and Diagnostic are set for leaves: the number of
	// chunk records, the decompressed payload size, and the payload
	// in CBOR diagnostic notation.
	Chunks     int
	Size       int
	Diagnostic string
}

// IsComposite reports whether the node is a composite.
func (i Inspection) IsComposite() bool { return i.TypeTag != "" }

// Inspect reports on the node at internalPath of the container file at
// location. Unlike Load it needs no registry, so it works on files
// written by programs with types this process does not know.
func Inspect(ctx context.Context, location, internalPath string) (Inspection, error) {
	c, err := container.Open(ctx, container.Config{Path: location, Mode: container.ModeReadOnly})
	if err != nil {
		if container.IsNotExist(err) {
			err = fmt.Errorf("%w: %w", ErrPathNotFound, err)
		}
		return Inspection{}, &Error{Op: "inspect", Path: location, Err: err}
	}
	defer c.Close()

	path, err := nodepath.Clean(internalPath)
	if err != nil {
		return Inspection{}, &Error{Op: "inspect", Path: internalPath, Err: fmt.Errorf("%w: %w", ErrPathNotFound, err)}
	}
	info, found, err := stat(c, path)
	if err != nil {
		return Inspection{}, &Error{Op: "inspect", Path: path, Err: err}
	}
	if !found {
		return Inspection{}, &Error{Op: "inspect", Path: path, Err: ErrPathNotFound}
	}
	if !info.IsGroup {
		return Inspection{}, &Error{Op: "inspect", Path: path, Err: fmt.Errorf("%w: dataset is not a node", ErrCorruptData)}
	}

	report := Inspection{Path: path}
	tag, tagged, err := c.Attr(path, TypeAttr)
	if err != nil {
		return Inspection{}, &Error{Op: "inspect", Path: path, Err: err}
	}
	if tagged {
		report.TypeTag = tag
		children, err := c.Children(path)
		if err != nil {
			return Inspection{}, &Error{Op: "inspect", Path: path, Err: err}
		}
		for _, child := range children {
			report.Fields = append(report.Fields, child.Name)
		}
		return report, nil
	}

	data, chunks, err := readPayload(c, path)
	if err != nil {
		return Inspection{}, wrapError("inspect", path, err)
	}
	diagnostic, err := codec.Diagnose(data)
	if err != nil {
		return Inspection{}, &Error{Op: "inspect", Path: path, Err: fmt.Errorf("%w: %w", ErrCorruptData, err)}
	}
	report.Chunks = chunks
	report.Size = len(data)
	report.Diagnostic = diagnostic
	return report, nil
}

// WriteTo prints the inspection in a short human-readable form.
func (i Inspection) WriteTo(w io.Writer) (int64, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "path: %s\n", i.Path)
	if i.IsComposite() {
		fmt.Fprintf(&b, "type: %s\n", i.TypeTag)
		fmt.Fprintf(&b, "fields: %s\n", strings.Join(i.Fields, ", "))
	} else {
		fmt.Fprintf(&b, "chunks: %d\n", i.Chunks)
		fmt.Fprintf(&b, "size: %d\n", i.Size)
		fmt.Fprintf(&b, "value: %s\n", i.Diagnostic)
	}
	n, err := io.WriteString(w, b.String())
	return int64(n), err
}
