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

package testing

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	protolib "github.com/ZaparooProject/go-protolib"
	"github.com/ZaparooProject/go-protolib/lacte"
	"github.com/ZaparooProject/go-protolib/protocol"
	"github.com/ZaparooProject/go-protolib/transport/loopback"
)

func jitteryPair(t *testing.T, cfg JitterConfig) (*loopback.Transport, *JitteryTransport) {
	t.Helper()
	a, b := loopback.Pair()
	require.NoError(t, b.SetTimeout(5*time.Millisecond))
	t.Cleanup(func() { _ = a.Close() })
	return a, NewJitteryTransport(b, cfg)
}

// readAll receives until want bytes arrived and returns each fragment size.
func readAll(t *testing.T, j *JitteryTransport, want int) ([]byte, []int) {
	t.Helper()
	var got []byte
	var sizes []int
	buf := make([]byte, 256)
	deadline := time.Now().Add(2 * time.Second)
	for len(got) < want {
		require.True(t, time.Now().Before(deadline), "timed out after %d bytes", len(got))
		n, err := j.Receive(buf)
		require.NoError(t, err)
		if n > 0 {
			got = append(got, buf[:n]...)
			sizes = append(sizes, n)
		}
	}
	return got, sizes
}

func payload(n int) []byte {
	p := make([]byte, n)
	for i := range p {
		p[i] = byte(i)
	}
	return p
}

func TestJitteryTransport_PassThrough(t *testing.T) {
	t.Parallel()

	a, j := jitteryPair(t, JitterConfig{Seed: 12345})
	frame := []byte{0xFF, 0x55, 0x05, 0x04, 0x03, 0x02, 0x01, 0x01, 0x5A, 0x90}
	_, err := a.Send(frame)
	require.NoError(t, err)

	got, sizes := readAll(t, j, len(frame))
	assert.Equal(t, frame, got)
	assert.Equal(t, []int{len(frame)}, sizes)

	n, err := j.Send([]byte{0xAA})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	got2 := make([]byte, 4)
	n, err = a.Receive(got2)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xAA}, got2[:n])
}

func TestJitteryTransport_Fragmentation(t *testing.T) {
	t.Parallel()

	a, j := jitteryPair(t, JitterConfig{FragmentReads: true, FragmentMinBytes: 2, Seed: 99})
	data := payload(200)
	_, err := a.Send(data)
	require.NoError(t, err)

	got, sizes := readAll(t, j, len(data))
	assert.Equal(t, data, got)
	assert.Greater(t, len(sizes), 1)
	for _, s := range sizes[:len(sizes)-1] {
		assert.GreaterOrEqual(t, s, 2)
	}
}

func TestJitteryTransport_SameSeedSameFragments(t *testing.T) {
	t.Parallel()

	run := func() []int {
		a, j := jitteryPair(t, JitterConfig{FragmentReads: true, Seed: 7})
		_, err := a.Send(payload(100))
		require.NoError(t, err)
		_, sizes := readAll(t, j, 100)
		return sizes
	}
	assert.Equal(t, run(), run())
}

func TestJitteryTransport_USBBoundaryStress(t *testing.T) {
	t.Parallel()

	a, j := jitteryPair(t, JitterConfig{USBBoundaryStress: true, Seed: 1})
	data := payload(200)
	_, err := a.Send(data)
	require.NoError(t, err)

	got, sizes := readAll(t, j, len(data))
	assert.Equal(t, data, got)
	assert.Equal(t, []int{64, 64, 64, 8}, sizes)
}

func TestJitteryTransport_StallAfterBytes(t *testing.T) {
	t.Parallel()

	stall := 30 * time.Millisecond
	a, j := jitteryPair(t, JitterConfig{StallAfterBytes: 10, StallDuration: stall, Seed: 1})
	_, err := a.Send(payload(40))
	require.NoError(t, err)

	buf := make([]byte, 64)
	n, err := j.Receive(buf)
	require.NoError(t, err)
	assert.Equal(t, 10, n)

	start := time.Now()
	n, err = j.Receive(buf)
	require.NoError(t, err)
	assert.Equal(t, 30, n)
	assert.GreaterOrEqual(t, time.Since(start), stall)

	j.ResetStallState()
	_, err = a.Send(payload(20))
	require.NoError(t, err)
	n, err = j.Receive(buf)
	require.NoError(t, err)
	assert.Equal(t, 10, n, "reset re-arms the stall")
}

func TestJitteryTransport_ClearBuffer(t *testing.T) {
	t.Parallel()

	a, j := jitteryPair(t, JitterConfig{StallAfterBytes: 4, Seed: 1})
	_, err := a.Send(payload(8))
	require.NoError(t, err)

	buf := make([]byte, 16)
	n, err := j.Receive(buf)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	j.ClearBuffer()
	n, err = j.Receive(buf)
	require.NoError(t, err)
	assert.Zero(t, n, "cleared bytes are gone")
}

func TestJitteryTransport_Latency(t *testing.T) {
	t.Parallel()

	_, j := jitteryPair(t, JitterConfig{MaxLatency: 10 * time.Millisecond, Seed: 3})
	start := time.Now()
	for range 5 {
		_, err := j.Receive(make([]byte, 8))
		require.NoError(t, err)
	}
	// Each call also waits out the backend read timeout.
	assert.GreaterOrEqual(t, time.Since(start), 25*time.Millisecond)
}

func TestDefaultJitterConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultJitterConfig()
	assert.True(t, cfg.FragmentReads)
	assert.Equal(t, 1, cfg.FragmentMinBytes)
	assert.Equal(t, 5*time.Millisecond, cfg.MaxLatency)
	assert.False(t, cfg.USBBoundaryStress)
}

func TestJitteryTransport_LacteSession(t *testing.T) {
	t.Parallel()

	a, b := loopback.Pair()
	require.NoError(t, a.SetTimeout(2*time.Millisecond))
	require.NoError(t, b.SetTimeout(2*time.Millisecond))
	cfg := JitterConfig{
		MaxLatency:        time.Millisecond,
		FragmentReads:     true,
		USBBoundaryStress: true,
		Seed:              54321,
	}

	vb, err := lacte.NewVirtualBoard(NewJitteryTransport(b, cfg))
	require.NoError(t, err)
	host, err := lacte.NewHost(NewJitteryTransport(a, cfg),
		lacte.WithRetryConfig(&protolib.RetryConfig{}),
		lacte.WithEndpointOptions(protocol.WithRequestTimeout(time.Second)))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	var g errgroup.Group
	g.Go(func() error { return vb.Run(ctx) })
	g.Go(func() error { return host.Run(ctx) })
	defer func() {
		cancel()
		require.NoError(t, g.Wait())
		_ = a.Close()
	}()

	want := lacte.DefaultBoardState()
	for range 5 {
		data, err := host.GetRFIDData(ctx)
		require.NoError(t, err)
		assert.Equal(t, want.RFIDData, data)

		uid, err := host.GetUID(ctx)
		require.NoError(t, err)
		assert.True(t, bytes.Equal(want.UID[:], uid[:]))
	}

	stats := host.Endpoint().Stats()
	assert.Equal(t, uint64(10), stats.Frames)
	assert.Zero(t, stats.ChecksumErrors)
	assert.Zero(t, stats.NoiseBytes)
}
