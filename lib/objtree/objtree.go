// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package objtree

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
)

// Field is one named value of a Composite.
type Field struct {
	Name  string
	Value any
}

// Composite is implemented by every value stored as a tree node with
// named children.
type Composite interface {
	// TypeTag returns the stable identifier used to find this type's
	// factory at load time. Conventionally "<package path>.<Type>",
	// see [TypeName].
	TypeTag() string

	// Fields returns the value's fields in declaration order. Names
	// must be unique, non-empty, and must not contain '/'.
	Fields() []Field
}

// Builder receives reconstructed field values by name.
type Builder interface {
	// SetField assigns one field. Unknown names and values of the
	// wrong type should be rejected with an error.
	SetField(name string, value any) error
}

// Finisher is implemented by builders that produce a separate final
// value once all fields are set, typically to validate invariants
// that a constructor would normally enforce.
type Finisher interface {
	Finish() (any, error)
}

// Kind is the classification of a value.
type Kind int

const (
	// KindLeaf values are serialized opaquely.
	KindLeaf Kind = iota

	// KindComposite values are stored as a tagged group with one child
	// per field.
	KindComposite
)

// String returns "leaf" or "composite".
func (k Kind) String() string {
	switch k {
	case KindLeaf:
		return "leaf"
	case KindComposite:
		return "composite"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// ErrInvalidField is returned by ExtractFields for a field name that
// cannot be a tree node name.
var ErrInvalidField = errors.New("invalid field")

// Classify reports whether v is a Composite with at least one field.
// Everything else, including nil and field-less composites, is a
// Leaf.
func Classify(v any) Kind {
	composite, ok := v.(Composite)
	if !ok || IsNilPointer(v) {
		return KindLeaf
	}
	if len(composite.Fields()) == 0 {
		return KindLeaf
	}
	return KindComposite
}

// ExtractFields returns the fields of a Composite in declaration
// order, validating that names are usable as node names.
func ExtractFields(composite Composite) ([]Field, error) {
	fields := composite.Fields()
	seen := make(map[string]struct{}, len(fields))
	for _, field := range fields {
		if err := ValidateFieldName(field.Name); err != nil {
			return nil, fmt.Errorf("%s: %w", composite.TypeTag(), err)
		}
		if _, duplicate := seen[field.Name]; duplicate {
			return nil, fmt.Errorf("%s: %w: duplicate field %q", composite.TypeTag(), ErrInvalidField, field.Name)
		}
		seen[field.Name] = struct{}{}
	}
	return fields, nil
}

// ValidateFieldName rejects names that cannot be a single path
// segment.
func ValidateFieldName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("%w: empty field name", ErrInvalidField)
	case name == "." || name == "..":
		return fmt.Errorf("%w: field name %q", ErrInvalidField, name)
	case strings.Contains(name, "/"):
		return fmt.Errorf("%w: field name %q contains '/'", ErrInvalidField, name)
	}
	return nil
}

// TypeTag returns the tag of a Composite, or "" for any other value.
func TypeTag(v any) string {
	composite, ok := v.(Composite)
	if !ok || IsNilPointer(v) {
		return ""
	}
	return composite.TypeTag()
}

// TypeName returns the conventional tag for T: its package path and
// name joined by '.'. Pointer types resolve to their element type.
// Unnamed types return their Go syntax representation.
func TypeName[T any]() string {
	typ := reflect.TypeFor[T]()
	for typ.Kind() == reflect.Pointer {
		typ = typ.Elem()
	}
	if typ.Name() == "" || typ.PkgPath() == "" {
		return typ.String()
	}
	return typ.PkgPath() + "." + typ.Name()
}

// IsNilPointer reports whether v is a typed nil pointer. Such values
// are stored as null leaves.
func IsNilPointer(v any) bool {
	value := reflect.ValueOf(v)
	return value.Kind() == reflect.Pointer && value.IsNil()
}
