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

package container

import "sync"

// Size thresholds for pooled slices
const (
	SmallBufferSize = 16   // control bytes, short answers
	FrameBufferSize = 264  // one frame with an 8-bit length (2 + 1 + 255 + 2, rounded)
	BlockBufferSize = 1040 // one Ymodem 1K block with header and CRC
	LargeBufferSize = 4096 // transport read scratch
)

// Pool manages reusable byte slices in size classes. It reduces
// allocations in the receive and encode hot paths.
type Pool struct {
	small sync.Pool
	frame sync.Pool
	block sync.Pool
	large sync.Pool
}

var defaultPool = NewPool()

func sizedPool(size int) sync.Pool {
	return sync.Pool{
		New: func() any {
			buf := make([]byte, size)
			return &buf
		},
	}
}

// NewPool creates an empty pool.
func NewPool() *Pool {
	return &Pool{
		small: sizedPool(SmallBufferSize),
		frame: sizedPool(FrameBufferSize),
		block: sizedPool(BlockBufferSize),
		large: sizedPool(LargeBufferSize),
	}
}

func take(p *sync.Pool, size int) []byte {
	bufPtr, ok := p.Get().(*[]byte)
	if !ok {
		return make([]byte, size)
	}
	return (*bufPtr)[:size]
}

// Get returns a slice of length size. Return it with Put when done.
func (p *Pool) Get(size int) []byte {
	switch {
	case size <= SmallBufferSize:
		return take(&p.small, size)
	case size <= FrameBufferSize:
		return take(&p.frame, size)
	case size <= BlockBufferSize:
		return take(&p.block, size)
	case size <= LargeBufferSize:
		return take(&p.large, size)
	default:
		// Oversized requests bypass the pool.
		return make([]byte, size)
	}
}

// Put clears buf and returns it to its size class. Slices that did not
// come from the pool are dropped.
func (p *Pool) Put(buf []byte) {
	if buf == nil {
		return
	}
	full := buf[:cap(buf)]
	clear(full)

	switch cap(buf) {
	case SmallBufferSize:
		p.small.Put(&full)
	case FrameBufferSize:
		p.frame.Put(&full)
	case BlockBufferSize:
		p.block.Put(&full)
	case LargeBufferSize:
		p.large.Put(&full)
	}
}

// GetBuffer takes a slice from the default pool.
func GetBuffer(size int) []byte {
	return defaultPool.Get(size)
}

// PutBuffer returns a slice to the default pool.
func PutBuffer(buf []byte) {
	defaultPool.Put(buf)
}

// GetFrameBuffer takes a frame-sized slice from the default pool.
func GetFrameBuffer() []byte {
	return defaultPool.Get(FrameBufferSize)
}
