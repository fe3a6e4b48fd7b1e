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

// Package testing holds transport wrappers that reproduce the timing of
// real USB-UART bridges in tests.
package testing

import (
	"math/rand/v2"
	"time"

	protolib "github.com/ZaparooProject/go-protolib"
	"github.com/ZaparooProject/go-protolib/container"
	"github.com/ZaparooProject/go-protolib/internal/syncutil"
)

// JitterConfig configures a JitteryTransport.
type JitterConfig struct {
	MaxLatency time.Duration
	// Smallest fragment handed to Receive when FragmentReads is set
	FragmentMinBytes int
	// Hold back data once this many bytes were delivered
	StallAfterBytes int
	StallDuration   time.Duration
	Seed            uint64
	FragmentReads   bool
	// Never deliver across a 64-byte USB packet boundary
	USBBoundaryStress bool
}

// DefaultJitterConfig fragments every read with up to 5ms latency.
func DefaultJitterConfig() JitterConfig {
	return JitterConfig{
		MaxLatency:       5 * time.Millisecond,
		FragmentReads:    true,
		FragmentMinBytes: 1,
	}
}

const usbPacketSize = 64

// JitteryTransport wraps a Transport and delivers what it receives late
// and in random fragments, the way CH340 and FTDI bridges do. Sends pass
// through unchanged. Nothing is lost: bytes read from the backend and
// not yet delivered are held in a buffer.
type JitteryTransport struct {
	protolib.Transport
	rng       *rand.Rand
	pending   *container.Buffer
	scratch   []byte
	config    JitterConfig
	delivered int
	stalled   bool
	mu        syncutil.Mutex
}

// NewJitteryTransport wraps backend. A zero Seed picks a random one.
func NewJitteryTransport(backend protolib.Transport, config JitterConfig) *JitteryTransport {
	seed := config.Seed
	if seed == 0 {
		seed = rand.Uint64() //nolint:gosec // test jitter
	}
	if config.FragmentMinBytes < 1 {
		config.FragmentMinBytes = 1
	}
	pending, _ := container.New(container.LargeBufferSize)
	return &JitteryTransport{
		Transport: backend,
		rng:       rand.New(rand.NewPCG(seed, seed^0xDEADBEEF)), //nolint:gosec // test jitter
		pending:   pending,
		scratch:   make([]byte, container.LargeBufferSize),
		config:    config,
	}
}

// Receive delivers a fragment of the pending bytes, reading the backend
// only when nothing is pending.
func (j *JitteryTransport) Receive(p []byte) (int, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.config.MaxLatency > 0 {
		if d := time.Duration(j.rng.Int64N(int64(j.config.MaxLatency) + 1)); d > 0 {
			time.Sleep(d)
		}
	}

	if j.pending.Readable() == 0 {
		j.pending.Compact()
		n, err := j.Transport.Receive(j.scratch[:j.pending.Available()])
		if err != nil {
			return 0, err //nolint:wrapcheck // pass-through
		}
		if n == 0 {
			return 0, nil
		}
		_, _ = j.pending.Write(j.scratch[:n])
	}

	n := min(j.pending.Readable(), len(p))
	n = j.limitForStall(n)
	if j.config.USBBoundaryStress {
		if untilBoundary := usbPacketSize - j.delivered%usbPacketSize; untilBoundary < n {
			n = untilBoundary
		}
	}
	if j.config.FragmentReads && n > j.config.FragmentMinBytes {
		n = j.config.FragmentMinBytes + j.rng.IntN(n-j.config.FragmentMinBytes+1)
	}

	_, _ = j.pending.Read(p[:n])
	j.delivered += n
	return n, nil
}

// limitForStall caps n so delivery stops at StallAfterBytes, then sleeps
// once for StallDuration on the next call.
func (j *JitteryTransport) limitForStall(n int) int {
	if j.config.StallAfterBytes <= 0 || j.stalled {
		return n
	}
	if j.delivered >= j.config.StallAfterBytes {
		j.stalled = true
		time.Sleep(j.config.StallDuration)
		return n
	}
	return min(n, j.config.StallAfterBytes-j.delivered)
}

// HasCapability forwards to the wrapped transport.
func (j *JitteryTransport) HasCapability(c protolib.TransportCapability) bool {
	return protolib.HasCapability(j.Transport, c)
}

// ResetStallState re-arms StallAfterBytes and the USB boundary counter.
func (j *JitteryTransport) ResetStallState() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.delivered = 0
	j.stalled = false
}

// ClearBuffer drops bytes received but not yet delivered.
func (j *JitteryTransport) ClearBuffer() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.pending.Reset()
}
