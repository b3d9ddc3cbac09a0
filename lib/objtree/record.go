// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package objtree

import "fmt"

// RecordTag is the type tag of [Record].
const RecordTag = "objtree.Record"

func init() {
	DefaultRegistry.MustRegister(RecordTag, RecordFactory(RecordTag))
}

// RecordFactory returns a factory for records tagged tag. Register it
// under the same tag so loaded records keep their type tag:
//
//	registry.MustRegister("sweep.Trial", objtree.RecordFactory("sweep.Trial"))
func RecordFactory(tag string) Factory {
	if tag == RecordTag {
		tag = ""
	}
	return func() Builder { return &Record{Tag: tag} }
}

// Record is a generic Composite: an ordered set of named fields with
// no dedicated Go type. Setting an existing field replaces its value
// in place; new fields are appended.
//
// The zero value is an empty record tagged [RecordTag].
type Record struct {
	// Tag overrides the type tag. Empty means RecordTag. A record with
	// a custom tag loads back through whatever factory that tag is
	// registered to; use RecordFactory to get a Record back.
	Tag string

	fields []Field
}

// NewRecord creates a record from alternating name, value arguments:
//
//	NewRecord("a", 42, "b", "hello")
//
// Panics if the argument count is odd or a name is not a string.
func NewRecord(pairs ...any) *Record {
	if len(pairs)%2 != 0 {
		panic("objtree.NewRecord: odd number of arguments")
	}
	record := &Record{}
	for i := 0; i < len(pairs); i += 2 {
		name, ok := pairs[i].(string)
		if !ok {
			panic(fmt.Sprintf("objtree.NewRecord: argument %d is %T, want string", i, pairs[i]))
		}
		record.Set(name, pairs[i+1])
	}
	return record
}

// TypeTag implements Composite.
func (r *Record) TypeTag() string {
	if r.Tag == "" {
		return RecordTag
	}
	return r.Tag
}

// Fields implements Composite. The returned slice is a copy.
func (r *Record) Fields() []Field {
	fields := make([]Field, len(r.fields))
	copy(fields, r.fields)
	return fields
}

// SetField implements Builder.
func (r *Record) SetField(name string, value any) error {
	if err := ValidateFieldName(name); err != nil {
		return err
	}
	r.Set(name, value)
	return nil
}

// Set assigns a field, keeping the position of an existing one.
func (r *Record) Set(name string, value any) {
	for i := range r.fields {
		if r.fields[i].Name == name {
			r.fields[i].Value = value
			return
		}
	}
	r.fields = append(r.fields, Field{Name: name, Value: value})
}

// Get returns the value of a field.
func (r *Record) Get(name string) (any, bool) {
	for _, field := range r.fields {
		if field.Name == name {
			return field.Value, true
		}
	}
	return nil, false
}

// Len returns the number of fields.
func (r *Record) Len() int {
	return len(r.fields)
}
