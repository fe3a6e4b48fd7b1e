// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package field encodes and decodes typed values at fixed positions in a
// frame payload.
//
// A field is defined once with its width (or length-prefix width) and byte
// order; a Schema is an ordered list of fields applied positionally.
package field

import (
	"errors"
	"fmt"
)

// Field errors
var (
	// ErrRange is returned when a value does not fit the field definition.
	ErrRange = errors.New("value out of range")
	// ErrTruncated is returned when fewer bytes are available than the field declares.
	ErrTruncated = errors.New("truncated input")
	// ErrMissing is returned when a record lacks a value for a schema field.
	ErrMissing = errors.New("missing value")
	// ErrInvalidField is returned by Schema.Validate, and by a field's own
	// encode and decode, for malformed definitions.
	ErrInvalidField = errors.New("invalid field definition")
)

// Error wraps a field failure with the field name and operation.
type Error struct {
	Err   error
	Field string
	Op    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("field %q: %s: %v", e.Field, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Order is the byte order of a multi-byte scalar.
type Order int

const (
	// LittleEndian stores the least significant byte first.
	LittleEndian Order = iota
	// BigEndian stores the most significant byte first.
	BigEndian
)

func (o Order) String() string {
	if o == BigEndian {
		return "big-endian"
	}
	return "little-endian"
}

// Put writes the low len(dst) bytes of v into dst.
func (o Order) Put(dst []byte, v uint64) {
	n := len(dst)
	for i := range n {
		b := byte(v >> (8 * uint(i)))
		if o == BigEndian {
			dst[n-1-i] = b
		} else {
			dst[i] = b
		}
	}
}

// Get reads a scalar of len(p) bytes.
func (o Order) Get(p []byte) uint64 {
	var v uint64
	n := len(p)
	for i := range n {
		var b byte
		if o == BigEndian {
			b = p[n-1-i]
		} else {
			b = p[i]
		}
		v |= uint64(b) << (8 * uint(i))
	}
	return v
}

// Kind identifies how a field is laid out on the wire.
type Kind int

const (
	// KindUint is a fixed-width unsigned scalar of 1 to 8 bytes.
	KindUint Kind = iota
	// KindBytes is a fixed-width opaque byte string.
	KindBytes
	// KindBlob is a byte string preceded by a 1, 2 or 4 byte length.
	KindBlob
	// KindTail consumes every remaining byte of the payload.
	KindTail
)

func (k Kind) String() string {
	switch k {
	case KindUint:
		return "uint"
	case KindBytes:
		return "bytes"
	case KindBlob:
		return "blob"
	case KindTail:
		return "tail"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Value is a decoded field value. Scalars use Uint, everything else Bytes.
type Value struct {
	Name  string
	Bytes []byte
	Uint  uint64
}

// U returns a scalar value for the named field.
func U(name string, v uint64) Value {
	return Value{Name: name, Uint: v}
}

// B returns a byte string value for the named field.
func B(name string, p []byte) Value {
	return Value{Name: name, Bytes: p}
}

// Codec is the capability set of one field definition.
type Codec interface {
	// Name returns the field tag.
	Name() string
	// Kind returns the wire layout.
	Kind() Kind
	// Size returns the encoded size in bytes, or -1 if it depends on the value.
	Size() int
	// AppendValue encodes v and appends it to dst.
	AppendValue(dst []byte, v Value) ([]byte, error)
	// DecodeValue decodes one value from the start of p and reports the
	// number of bytes consumed. Byte strings are copied out of p.
	DecodeValue(p []byte) (Value, int, error)
}
