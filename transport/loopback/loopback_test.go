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

package loopback

import (
	"testing"
	"time"

	protolib "github.com/ZaparooProject/go-protolib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPair_BothDirections(t *testing.T) {
	t.Parallel()

	a, b := Pair()
	defer func() { _ = a.Close() }()

	n, err := a.Send([]byte{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	buf := make([]byte, 8)
	n, err = b.Receive(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, buf[:n])

	_, err = b.Send([]byte{9})
	require.NoError(t, err)
	n, err = a.Receive(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{9}, buf[:n])
}

func TestPair_SplitReads(t *testing.T) {
	t.Parallel()

	a, b := Pair()
	_, err := a.Send([]byte{1, 2, 3, 4, 5})
	require.NoError(t, err)

	var got []byte
	buf := make([]byte, 2)
	for len(got) < 5 {
		n, err := b.Receive(buf)
		require.NoError(t, err)
		got = append(got, buf[:n]...)
	}
	assert.Equal(t, []byte{1, 2, 3, 4, 5}, got)
}

func TestReceive_Timeout(t *testing.T) {
	t.Parallel()

	a, _ := Pair()
	require.NoError(t, a.SetTimeout(5*time.Millisecond))

	start := time.Now()
	n, err := a.Receive(make([]byte, 4))
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.GreaterOrEqual(t, time.Since(start), 5*time.Millisecond)

	require.ErrorIs(t, a.SetTimeout(0), protolib.ErrInvalidParameter)
}

func TestReceive_WakesOnSend(t *testing.T) {
	t.Parallel()

	a, b := Pair()
	require.NoError(t, b.SetTimeout(time.Second))

	go func() {
		time.Sleep(5 * time.Millisecond)
		_, _ = a.Send([]byte{7})
	}()

	buf := make([]byte, 1)
	n, err := b.Receive(buf)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, byte(7), buf[0])
}

func TestClose_ClosesBothEnds(t *testing.T) {
	t.Parallel()

	a, b := Pair()
	require.NoError(t, b.SetTimeout(time.Second))
	assert.True(t, a.IsConnected())

	require.NoError(t, a.Close())
	require.NoError(t, a.Close())
	assert.False(t, b.IsConnected())

	_, err := b.Send([]byte{1})
	require.ErrorIs(t, err, protolib.ErrTransportClosed)
	_, err = b.Receive(make([]byte, 1))
	require.ErrorIs(t, err, protolib.ErrTransportClosed)
	assert.Equal(t, protolib.TransportLoopback, a.Type())
}
