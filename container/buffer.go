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

// Package container provides bounded byte buffers for frame assembly and
// partial-read accumulation.
package container

import (
	"errors"
	"fmt"
	"io"
)

// Container errors
var (
	// ErrZeroCapacity is returned by New for a non-positive capacity.
	ErrZeroCapacity = errors.New("container: capacity must be positive")
	// ErrCapacity is returned when a write does not fit.
	ErrCapacity = errors.New("container: capacity exceeded")
	// ErrUnderrun is returned when more bytes are requested than are readable.
	ErrUnderrun = errors.New("container: not enough readable bytes")
)

// Buffer is a fixed-capacity byte buffer with a read cursor and a write
// cursor. Invariant: 0 <= r <= w <= Cap().
//
// A Buffer is not safe for concurrent use.
type Buffer struct {
	buf []byte
	r   int
	w   int
}

// New allocates a buffer of the given capacity. It is the only allocation
// the buffer ever makes.
func New(capacity int) (*Buffer, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrZeroCapacity, capacity)
	}
	return &Buffer{buf: make([]byte, capacity)}, nil
}

// Cap returns the fixed capacity.
func (b *Buffer) Cap() int {
	return len(b.buf)
}

// Readable returns the number of unconsumed bytes.
func (b *Buffer) Readable() int {
	return b.w - b.r
}

// Available returns the space left after the write cursor.
func (b *Buffer) Available() int {
	return len(b.buf) - b.w
}

// Free returns the space Compact would make available.
func (b *Buffer) Free() int {
	return len(b.buf) - b.Readable()
}

// Write appends p at the write cursor. Writes are all-or-nothing: if p does
// not fit in Available bytes nothing is written and ErrCapacity is
// returned.
func (b *Buffer) Write(p []byte) (int, error) {
	if len(p) > b.Available() {
		return 0, fmt.Errorf("%w: %d bytes, %d available", ErrCapacity, len(p), b.Available())
	}
	n := copy(b.buf[b.w:], p)
	b.w += n
	return n, nil
}

// WriteByte appends a single byte.
func (b *Buffer) WriteByte(c byte) error {
	if b.Available() < 1 {
		return ErrCapacity
	}
	b.buf[b.w] = c
	b.w++
	return nil
}

// Peek returns the next n unconsumed bytes without advancing the read
// cursor. The slice aliases the buffer and is valid until the next
// Write, Compact or Reset.
func (b *Buffer) Peek(n int) ([]byte, error) {
	if n < 0 || n > b.Readable() {
		return nil, fmt.Errorf("%w: want %d, have %d", ErrUnderrun, n, b.Readable())
	}
	return b.buf[b.r : b.r+n], nil
}

// Consume advances the read cursor by n bytes.
func (b *Buffer) Consume(n int) error {
	if n < 0 || n > b.Readable() {
		return fmt.Errorf("%w: want %d, have %d", ErrUnderrun, n, b.Readable())
	}
	b.r += n
	if b.r == b.w {
		b.r, b.w = 0, 0
	}
	return nil
}

// Bytes returns every unconsumed byte. Same aliasing rules as Peek.
func (b *Buffer) Bytes() []byte {
	return b.buf[b.r:b.w]
}

// Read implements io.Reader over the unconsumed bytes.
func (b *Buffer) Read(p []byte) (int, error) {
	if b.Readable() == 0 {
		if len(p) == 0 {
			return 0, nil
		}
		return 0, io.EOF
	}
	n := copy(p, b.buf[b.r:b.w])
	_ = b.Consume(n)
	return n, nil
}

// Reset moves both cursors to zero. The storage is reused.
func (b *Buffer) Reset() {
	b.r, b.w = 0, 0
}

// Compact moves the unconsumed bytes to offset zero, keeping their order.
func (b *Buffer) Compact() {
	if b.r == 0 {
		return
	}
	n := copy(b.buf, b.buf[b.r:b.w])
	b.r, b.w = 0, n
}
