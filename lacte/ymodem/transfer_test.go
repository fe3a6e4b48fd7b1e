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

package ymodem

import (
	"bytes"
	"context"
	"crypto/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	protolib "github.com/ZaparooProject/go-protolib"
	"github.com/ZaparooProject/go-protolib/transport/loopback"
)

func randomImage(t *testing.T, n int) []byte {
	t.Helper()
	b := make([]byte, n)
	_, err := rand.Read(b)
	require.NoError(t, err)
	return b
}

type result struct {
	err  error
	file File
	data []byte
}

// startReceiver runs a Receiver on the far end of a loopback pair.
func startReceiver(t *testing.T) (protolib.Transport, <-chan result) {
	t.Helper()

	a, b := loopback.Pair()
	require.NoError(t, a.SetTimeout(5*time.Millisecond))
	require.NoError(t, b.SetTimeout(5*time.Millisecond))
	t.Cleanup(func() { _ = a.Close() })

	out := make(chan result, 1)
	go func() {
		var buf bytes.Buffer
		r := NewReceiver(b, WithBlockTimeout(500*time.Millisecond), WithMaxRetries(3))
		file, err := r.Receive(context.Background(), &buf)
		out <- result{file: file, data: buf.Bytes(), err: err}
	}()
	return a, out
}

func TestTransfer_Sizes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		size int
	}{
		{name: "partial last block", size: 2500},
		{name: "exact blocks", size: 2 * BlockSize},
		{name: "tiny", size: 1},
		{name: "empty", size: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			tr, done := startReceiver(t)
			image := randomImage(t, tt.size)

			var progress []int64
			s := NewSender(tr,
				WithStartTimeout(time.Second),
				WithBlockTimeout(500*time.Millisecond),
				WithProgress(func(sent, total int64) {
					assert.Equal(t, int64(tt.size), total)
					progress = append(progress, sent)
				}),
			)
			require.NoError(t, s.Send(context.Background(), "fw.bin", bytes.NewReader(image), int64(tt.size)))

			res := <-done
			require.NoError(t, res.err)
			assert.Equal(t, File{Name: "fw.bin", Size: int64(tt.size)}, res.file)
			assert.Equal(t, image, append([]byte{}, res.data...))
			blocks := (tt.size + BlockSize - 1) / BlockSize
			assert.Len(t, progress, blocks)
		})
	}
}

func TestSender_ResendsOnNAK(t *testing.T) {
	t.Parallel()

	m := protolib.NewMockTransport()
	require.NoError(t, m.SetTimeout(5*time.Millisecond))
	m.QueueReceive([]byte{CRCReq})

	dataBlocks := 0
	m.SetResponder(func(sent []byte) []byte {
		if sent[0] == STX {
			dataBlocks++
			if dataBlocks == 1 {
				return []byte{NAK}
			}
		}
		return []byte{ACK}
	})

	s := NewSender(m, WithBlockTimeout(100*time.Millisecond))
	require.NoError(t, s.Send(context.Background(), "a", bytes.NewReader([]byte{1, 2}), 2))
	assert.Equal(t, 2, dataBlocks)
	// header, block, block again, EOT, end of batch
	assert.Equal(t, 5, m.SendCount())
}

func TestSender_NoStart(t *testing.T) {
	t.Parallel()

	m := protolib.NewMockTransport()
	require.NoError(t, m.SetTimeout(5*time.Millisecond))

	s := NewSender(m, WithStartTimeout(30*time.Millisecond))
	err := s.Send(context.Background(), "a", bytes.NewReader([]byte{1}), 1)
	require.ErrorIs(t, err, ErrNoStart)
	assert.True(t, protolib.HasTrace(err))
	assert.Equal(t, []byte{CAN, CAN}, m.Sent())
}

func TestSender_NoAck(t *testing.T) {
	t.Parallel()

	m := protolib.NewMockTransport()
	require.NoError(t, m.SetTimeout(5*time.Millisecond))
	m.QueueReceive([]byte{CRCReq})

	s := NewSender(m, WithBlockTimeout(10*time.Millisecond), WithMaxRetries(2))
	err := s.Send(context.Background(), "a", bytes.NewReader([]byte{1}), 1)
	require.ErrorIs(t, err, ErrNoAck)
	// header three times, then the abort
	assert.Equal(t, 4, m.SendCount())
	assert.True(t, bytes.HasSuffix(m.Sent(), []byte{CAN, CAN}))
}

func TestSender_CancelledByReceiver(t *testing.T) {
	t.Parallel()

	m := protolib.NewMockTransport()
	require.NoError(t, m.SetTimeout(5*time.Millisecond))
	m.QueueReceive([]byte{CRCReq})
	m.SetResponder(func([]byte) []byte { return []byte{CAN, CAN} })

	s := NewSender(m, WithBlockTimeout(50*time.Millisecond))
	err := s.Send(context.Background(), "a", bytes.NewReader([]byte{1}), 1)
	require.ErrorIs(t, err, ErrCancelled)
	assert.Equal(t, 1, m.SendCount())
}

func TestSender_ContextCancelled(t *testing.T) {
	t.Parallel()

	m := protolib.NewMockTransport()
	require.NoError(t, m.SetTimeout(5*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewSender(m).Send(ctx, "a", bytes.NewReader(nil), 0)
	require.ErrorIs(t, err, context.Canceled)
}

func TestReceiver_GivesUpWithoutSender(t *testing.T) {
	t.Parallel()

	m := protolib.NewMockTransport()
	require.NoError(t, m.SetTimeout(5*time.Millisecond))

	r := NewReceiver(m, WithBlockTimeout(10*time.Millisecond), WithMaxRetries(2))
	_, err := r.Receive(context.Background(), &bytes.Buffer{})
	require.ErrorIs(t, err, ErrNoAck)
	assert.Equal(t, []byte{CRCReq, CRCReq, CRCReq, CRCReq, CAN, CAN}, m.Sent())
}

func TestFlash(t *testing.T) {
	t.Parallel()

	image := randomImage(t, 1500)
	path := filepath.Join(t.TempDir(), "board.bin")
	require.NoError(t, os.WriteFile(path, image, 0o600))

	tr, done := startReceiver(t)
	require.NoError(t, NewSender(tr).Flash(context.Background(), path))

	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, File{Name: "board.bin", Size: 1500}, res.file)
	assert.Equal(t, image, res.data)

	err := NewSender(tr).Flash(context.Background(), filepath.Join(t.TempDir(), "missing.bin"))
	require.ErrorIs(t, err, os.ErrNotExist)
}
