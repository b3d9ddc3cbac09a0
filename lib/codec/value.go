// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"errors"
	"fmt"
)

// ValueVersion is the envelope version written by EncodeValue. Decoding
// rejects any other version.
const ValueVersion = 1

// ErrUnsupportedKind is returned by EncodeValue for a value outside the
// closed set of leaf kinds.
var ErrUnsupportedKind = errors.New("unsupported value kind")

// ErrMalformed is returned by DecodeValue for bytes that are not a
// valid value envelope.
var ErrMalformed = errors.New("malformed value envelope")

// Kind names the Go type a leaf value was encoded from. Kind strings
// are format constants.
type Kind string

const (
	KindNull     Kind = "null"
	KindBool     Kind = "bool"
	KindInt      Kind = "int"
	KindInt8     Kind = "int8"
	KindInt16    Kind = "int16"
	KindInt32    Kind = "int32"
	KindInt64    Kind = "int64"
	KindUint     Kind = "uint"
	KindUint8    Kind = "uint8"
	KindUint16   Kind = "uint16"
	KindUint32   Kind = "uint32"
	KindUint64   Kind = "uint64"
	KindFloat32  Kind = "float32"
	KindFloat64  Kind = "float64"
	KindString   Kind = "string"
	KindBytes    Kind = "bytes"
	KindInts     Kind = "[]int"
	KindInt64s   Kind = "[]int64"
	KindFloat32s Kind = "[]float32"
	KindFloat64s Kind = "[]float64"
	KindStrings  Kind = "[]string"
	KindBools    Kind = "[]bool"
	KindList     Kind = "list"
	KindEmpty    Kind = "empty"
)

// EmptyComposite stands in for a composite value that has no fields.
// It is stored as a leaf carrying only the type tag; the caller
// resolves the tag back into a value.
type EmptyComposite struct {
	TypeTag string `cbor:"type"`
}

// envelope is the on-disk wrapper of every leaf value.
type envelope struct {
	Version uint8      `cbor:"v"`
	Kind    Kind       `cbor:"k"`
	Data    RawMessage `cbor:"d,omitempty"`
}

// KindOf reports the kind EncodeValue would record for v, or false if
// v is outside the supported set. List elements are not inspected.
func KindOf(v any) (Kind, bool) {
	switch v.(type) {
	case nil:
		return KindNull, true
	case bool:
		return KindBool, true
	case int:
		return KindInt, true
	case int8:
		return KindInt8, true
	case int16:
		return KindInt16, true
	case int32:
		return KindInt32, true
	case int64:
		return KindInt64, true
	case uint:
		return KindUint, true
	case uint8:
		return KindUint8, true
	case uint16:
		return KindUint16, true
	case uint32:
		return KindUint32, true
	case uint64:
		return KindUint64, true
	case float32:
		return KindFloat32, true
	case float64:
		return KindFloat64, true
	case string:
		return KindString, true
	case []byte:
		return KindBytes, true
	case []int:
		return KindInts, true
	case []int64:
		return KindInt64s, true
	case []float32:
		return KindFloat32s, true
	case []float64:
		return KindFloat64s, true
	case []string:
		return KindStrings, true
	case []bool:
		return KindBools, true
	case []any:
		return KindList, true
	case EmptyComposite, *EmptyComposite:
		return KindEmpty, true
	default:
		return "", false
	}
}

// EncodeValue serializes a leaf value into a versioned envelope.
func EncodeValue(v any) ([]byte, error) {
	wrapped, err := wrap(v)
	if err != nil {
		return nil, err
	}
	return Marshal(wrapped)
}

// DecodeValue reverses EncodeValue, returning a value of the same Go
// type that was encoded.
func DecodeValue(data []byte) (any, error) {
	var wrapped envelope
	if err := Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return unwrap(wrapped)
}

func wrap(v any) (envelope, error) {
	kind, ok := KindOf(v)
	if !ok {
		return envelope{}, fmt.Errorf("%w: %T", ErrUnsupportedKind, v)
	}

	var payload any
	switch kind {
	case KindNull:
		return envelope{Version: ValueVersion, Kind: kind}, nil
	case KindList:
		items := v.([]any)
		wrappedItems := make([]envelope, len(items))
		for i, item := range items {
			wrappedItem, err := wrap(item)
			if err != nil {
				return envelope{}, fmt.Errorf("list element %d: %w", i, err)
			}
			wrappedItems[i] = wrappedItem
		}
		payload = wrappedItems
	case KindEmpty:
		if pointer, isPointer := v.(*EmptyComposite); isPointer {
			if pointer == nil {
				return envelope{}, fmt.Errorf("%w: nil *EmptyComposite", ErrUnsupportedKind)
			}
			v = *pointer
		}
		payload = v
	default:
		payload = v
	}

	data, err := Marshal(payload)
	if err != nil {
		return envelope{}, fmt.Errorf("encoding %s: %w", kind, err)
	}
	return envelope{Version: ValueVersion, Kind: kind, Data: data}, nil
}

func unwrap(wrapped envelope) (any, error) {
	if wrapped.Version != ValueVersion {
		return nil, fmt.Errorf("%w: version %d is not supported (this code supports version %d)",
			ErrMalformed, wrapped.Version, ValueVersion)
	}

	switch wrapped.Kind {
	case KindNull:
		return nil, nil
	case KindBool:
		return decodeAs[bool](wrapped)
	case KindInt:
		return decodeAs[int](wrapped)
	case KindInt8:
		return decodeAs[int8](wrapped)
	case KindInt16:
		return decodeAs[int16](wrapped)
	case KindInt32:
		return decodeAs[int32](wrapped)
	case KindInt64:
		return decodeAs[int64](wrapped)
	case KindUint:
		return decodeAs[uint](wrapped)
	case KindUint8:
		return decodeAs[uint8](wrapped)
	case KindUint16:
		return decodeAs[uint16](wrapped)
	case KindUint32:
		return decodeAs[uint32](wrapped)
	case KindUint64:
		return decodeAs[uint64](wrapped)
	case KindFloat32:
		return decodeAs[float32](wrapped)
	case KindFloat64:
		return decodeAs[float64](wrapped)
	case KindString:
		return decodeAs[string](wrapped)
	case KindBytes:
		return decodeAs[[]byte](wrapped)
	case KindInts:
		return decodeAs[[]int](wrapped)
	case KindInt64s:
		return decodeAs[[]int64](wrapped)
	case KindFloat32s:
		return decodeAs[[]float32](wrapped)
	case KindFloat64s:
		return decodeAs[[]float64](wrapped)
	case KindStrings:
		return decodeAs[[]string](wrapped)
	case KindBools:
		return decodeAs[[]bool](wrapped)
	case KindEmpty:
		composite, err := decodeAs[EmptyComposite](wrapped)
		if err != nil {
			return nil, err
		}
		if composite.TypeTag == "" {
			return nil, fmt.Errorf("%w: empty composite without a type tag", ErrMalformed)
		}
		return composite, nil
	case KindList:
		wrappedItems, err := decodeAs[[]envelope](wrapped)
		if err != nil {
			return nil, err
		}
		items := make([]any, len(wrappedItems))
		for i, wrappedItem := range wrappedItems {
			item, err := unwrap(wrappedItem)
			if err != nil {
				return nil, fmt.Errorf("list element %d: %w", i, err)
			}
			items[i] = item
		}
		return items, nil
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrMalformed, wrapped.Kind)
	}
}

func decodeAs[T any](wrapped envelope) (T, error) {
	var value T
	if len(wrapped.Data) == 0 {
		return value, fmt.Errorf("%w: %s envelope has no data", ErrMalformed, wrapped.Kind)
	}
	if err := Unmarshal(wrapped.Data, &value); err != nil {
		return value, fmt.Errorf("%w: decoding %s: %v", ErrMalformed, wrapped.Kind, err)
	}
	return value, nil
}
