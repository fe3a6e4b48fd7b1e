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

package field

import (
	"fmt"
	"math"
	"slices"
)

// Every field checks its own definition before encoding or decoding, so a
// field used outside a Schema fails with ErrInvalidField instead of
// producing malformed bytes.

// UintField is a fixed-width unsigned scalar.
type UintField struct {
	name  string
	width int
	order Order
}

// Uint defines a scalar of width bytes (1 to 8).
func Uint(name string, width int, order Order) *UintField {
	return &UintField{name: name, width: width, order: order}
}

// U8 defines a single byte scalar.
func U8(name string) *UintField { return Uint(name, 1, LittleEndian) }

// U16 defines a two byte scalar.
func U16(name string, order Order) *UintField { return Uint(name, 2, order) }

// U32 defines a four byte scalar.
func U32(name string, order Order) *UintField { return Uint(name, 4, order) }

// U64 defines an eight byte scalar.
func U64(name string, order Order) *UintField { return Uint(name, 8, order) }

func (f *UintField) Name() string { return f.name }
func (*UintField) Kind() Kind     { return KindUint }
func (f *UintField) Size() int    { return f.width }

// Max returns the largest value the field can carry.
func (f *UintField) Max() uint64 {
	if f.width >= 8 {
		return ^uint64(0)
	}
	return 1<<(8*uint(f.width)) - 1
}

func (f *UintField) validate() error {
	if f.width < 1 || f.width > 8 {
		return fmt.Errorf("%w: uint width %d", ErrInvalidField, f.width)
	}
	return nil
}

func (f *UintField) AppendValue(dst []byte, v Value) ([]byte, error) {
	if err := f.validate(); err != nil {
		return dst, &Error{Field: f.name, Op: "encode", Err: err}
	}
	if v.Uint > f.Max() {
		return dst, &Error{Field: f.name, Op: "encode", Err: fmt.Errorf("%w: %d exceeds %d", ErrRange, v.Uint, f.Max())}
	}
	dst = slices.Grow(dst, f.width)
	n := len(dst)
	dst = dst[:n+f.width]
	f.order.Put(dst[n:], v.Uint)
	return dst, nil
}

func (f *UintField) DecodeValue(p []byte) (Value, int, error) {
	if err := f.validate(); err != nil {
		return Value{}, 0, &Error{Field: f.name, Op: "decode", Err: err}
	}
	if len(p) < f.width {
		return Value{}, 0, &Error{Field: f.name, Op: "decode", Err: ErrTruncated}
	}
	return Value{Name: f.name, Uint: f.order.Get(p[:f.width])}, f.width, nil
}

// BytesField is a fixed-width opaque byte string.
type BytesField struct {
	name  string
	width int
}

// Bytes defines a byte string of exactly width bytes.
func Bytes(name string, width int) *BytesField {
	return &BytesField{name: name, width: width}
}

func (f *BytesField) Name() string { return f.name }
func (*BytesField) Kind() Kind     { return KindBytes }
func (f *BytesField) Size() int    { return f.width }

func (f *BytesField) validate() error {
	if f.width < 1 {
		return fmt.Errorf("%w: bytes width %d", ErrInvalidField, f.width)
	}
	return nil
}

func (f *BytesField) AppendValue(dst []byte, v Value) ([]byte, error) {
	if err := f.validate(); err != nil {
		return dst, &Error{Field: f.name, Op: "encode", Err: err}
	}
	if len(v.Bytes) != f.width {
		return dst, &Error{
			Field: f.name, Op: "encode",
			Err: fmt.Errorf("%w: %d bytes, want %d", ErrRange, len(v.Bytes), f.width),
		}
	}
	return append(dst, v.Bytes...), nil
}

func (f *BytesField) DecodeValue(p []byte) (Value, int, error) {
	if err := f.validate(); err != nil {
		return Value{}, 0, &Error{Field: f.name, Op: "decode", Err: err}
	}
	if len(p) < f.width {
		return Value{}, 0, &Error{Field: f.name, Op: "decode", Err: ErrTruncated}
	}
	return Value{Name: f.name, Bytes: slices.Clone(p[:f.width])}, f.width, nil
}

// BlobField is a byte string preceded by its length.
type BlobField struct {
	name   string
	prefix int
	order  Order
	max    int
}

// Blob defines a length-prefixed byte string. prefix is the width of the
// length field (1, 2 or 4 bytes) and max the largest accepted payload; a
// max of zero means the largest length the prefix can express.
func Blob(name string, prefix int, order Order, maxLen int) *BlobField {
	return &BlobField{name: name, prefix: prefix, order: order, max: maxLen}
}

func (f *BlobField) Name() string { return f.name }
func (*BlobField) Kind() Kind     { return KindBlob }
func (*BlobField) Size() int      { return -1 }

// MaxLen returns the largest payload the field accepts.
func (f *BlobField) MaxLen() int {
	limit := uint64(1)<<(8*uint(f.prefix)) - 1
	if limit > math.MaxInt32 {
		limit = math.MaxInt32
	}
	if f.max > 0 && uint64(f.max) < limit {
		return f.max
	}
	return int(limit)
}

func (f *BlobField) validate() error {
	switch f.prefix {
	case 1, 2, 4:
	default:
		return fmt.Errorf("%w: blob prefix width %d", ErrInvalidField, f.prefix)
	}
	if f.max < 0 {
		return fmt.Errorf("%w: negative blob maximum", ErrInvalidField)
	}
	return nil
}

func (f *BlobField) AppendValue(dst []byte, v Value) ([]byte, error) {
	if err := f.validate(); err != nil {
		return dst, &Error{Field: f.name, Op: "encode", Err: err}
	}
	if len(v.Bytes) > f.MaxLen() {
		return dst, &Error{
			Field: f.name, Op: "encode",
			Err: fmt.Errorf("%w: %d bytes exceeds %d", ErrRange, len(v.Bytes), f.MaxLen()),
		}
	}
	dst = slices.Grow(dst, f.prefix+len(v.Bytes))
	n := len(dst)
	dst = dst[:n+f.prefix]
	f.order.Put(dst[n:], uint64(len(v.Bytes)))
	return append(dst, v.Bytes...), nil
}

func (f *BlobField) DecodeValue(p []byte) (Value, int, error) {
	if err := f.validate(); err != nil {
		return Value{}, 0, &Error{Field: f.name, Op: "decode", Err: err}
	}
	if len(p) < f.prefix {
		return Value{}, 0, &Error{Field: f.name, Op: "decode", Err: ErrTruncated}
	}
	n := f.order.Get(p[:f.prefix])
	if n > uint64(f.MaxLen()) {
		return Value{}, 0, &Error{
			Field: f.name, Op: "decode",
			Err: fmt.Errorf("%w: declared length %d exceeds %d", ErrRange, n, f.MaxLen()),
		}
	}
	end := f.prefix + int(n)
	if len(p) < end {
		return Value{}, 0, &Error{Field: f.name, Op: "decode", Err: ErrTruncated}
	}
	return Value{Name: f.name, Bytes: slices.Clone(p[f.prefix:end])}, end, nil
}

// TailField takes every byte left in the payload. It must be the last
// field of a schema.
type TailField struct {
	name string
	max  int
}

// Tail defines a trailing byte string of at most maxLen bytes (zero means
// unbounded).
func Tail(name string, maxLen int) *TailField {
	return &TailField{name: name, max: maxLen}
}

func (f *TailField) Name() string { return f.name }
func (*TailField) Kind() Kind     { return KindTail }
func (*TailField) Size() int      { return -1 }

func (f *TailField) validate() error {
	if f.max < 0 {
		return fmt.Errorf("%w: negative tail maximum", ErrInvalidField)
	}
	return nil
}

func (f *TailField) AppendValue(dst []byte, v Value) ([]byte, error) {
	if err := f.validate(); err != nil {
		return dst, &Error{Field: f.name, Op: "encode", Err: err}
	}
	if f.max > 0 && len(v.Bytes) > f.max {
		return dst, &Error{
			Field: f.name, Op: "encode",
			Err: fmt.Errorf("%w: %d bytes exceeds %d", ErrRange, len(v.Bytes), f.max),
		}
	}
	return append(dst, v.Bytes...), nil
}

func (f *TailField) DecodeValue(p []byte) (Value, int, error) {
	if err := f.validate(); err != nil {
		return Value{}, 0, &Error{Field: f.name, Op: "decode", Err: err}
	}
	if f.max > 0 && len(p) > f.max {
		return Value{}, 0, &Error{
			Field: f.name, Op: "decode",
			Err: fmt.Errorf("%w: %d bytes exceeds %d", ErrRange, len(p), f.max),
		}
	}
	return Value{Name: f.name, Bytes: slices.Clone(p)}, len(p), nil
}
