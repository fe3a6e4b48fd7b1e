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

import "fmt"

// Record is an ordered set of named values, as produced by Schema.Decode.
type Record []Value

// Get returns the value named name.
func (r Record) Get(name string) (Value, bool) {
	for _, v := range r {
		if v.Name == name {
			return v, true
		}
	}
	return Value{}, false
}

// Uint returns the scalar named name, or zero.
func (r Record) Uint(name string) uint64 {
	v, _ := r.Get(name)
	return v.Uint
}

// Bytes returns the byte string named name, or nil.
func (r Record) Bytes(name string) []byte {
	v, _ := r.Get(name)
	return v.Bytes
}

// Set replaces the value with the same name or appends v.
func (r Record) Set(v Value) Record {
	for i := range r {
		if r[i].Name == v.Name {
			r[i] = v
			return r
		}
	}
	return append(r, v)
}

// Schema is an ordered list of fields applied positionally.
type Schema []Codec

type validator interface {
	validate() error
}

// Validate checks every field definition, name uniqueness, and that a Tail
// field only appears last.
func (s Schema) Validate() error {
	seen := make(map[string]struct{}, len(s))
	for i, c := range s {
		if c == nil {
			return fmt.Errorf("%w: field %d is nil", ErrInvalidField, i)
		}
		if c.Name() == "" {
			return fmt.Errorf("%w: field %d has no name", ErrInvalidField, i)
		}
		if _, dup := seen[c.Name()]; dup {
			return fmt.Errorf("%w: duplicate field %q", ErrInvalidField, c.Name())
		}
		seen[c.Name()] = struct{}{}
		if v, ok := c.(validator); ok {
			if err := v.validate(); err != nil {
				return fmt.Errorf("field %q: %w", c.Name(), err)
			}
		}
		if c.Kind() == KindTail && i != len(s)-1 {
			return fmt.Errorf("%w: tail field %q must be last", ErrInvalidField, c.Name())
		}
	}
	return nil
}

// Size returns the encoded size of the schema, or -1 if any field is
// variable length.
func (s Schema) Size() int {
	total := 0
	for _, c := range s {
		n := c.Size()
		if n < 0 {
			return -1
		}
		total += n
	}
	return total
}

// MinSize returns the smallest possible encoded size.
func (s Schema) MinSize() int {
	total := 0
	for _, c := range s {
		switch c.Kind() {
		case KindBlob:
			if b, ok := c.(*BlobField); ok {
				total += b.prefix
			}
		case KindTail:
		default:
			total += c.Size()
		}
	}
	return total
}

// Append encodes r field by field and appends the result to dst. On error
// dst is returned unchanged.
func (s Schema) Append(dst []byte, r Record) ([]byte, error) {
	start := len(dst)
	for _, c := range s {
		v, ok := r.Get(c.Name())
		if !ok {
			return dst[:start], &Error{Field: c.Name(), Op: "encode", Err: ErrMissing}
		}
		var err error
		dst, err = c.AppendValue(dst, v)
		if err != nil {
			return dst[:start], err
		}
	}
	return dst, nil
}

// Encode returns the encoding of r.
func (s Schema) Encode(r Record) ([]byte, error) {
	size := s.Size()
	if size < 0 {
		size = 0
	}
	return s.Append(make([]byte, 0, size), r)
}

// Decode decodes one value per field from p and reports the bytes consumed.
func (s Schema) Decode(p []byte) (Record, int, error) {
	rec := make(Record, 0, len(s))
	off := 0
	for _, c := range s {
		v, n, err := c.DecodeValue(p[off:])
		if err != nil {
			return nil, 0, err
		}
		rec = append(rec, v)
		off += n
	}
	return rec, off, nil
}
