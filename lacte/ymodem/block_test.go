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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChecksum_Check(t *testing.T) {
	t.Parallel()
	assert.Equal(t, uint16(0x31C3), Checksum([]byte("123456789")))
}

func TestDataBlock_Padding(t *testing.T) {
	t.Parallel()

	b := DataBlock(1, []byte("abc"))
	require.Len(t, b, BlockSize+overhead)
	assert.Equal(t, []byte{STX, 0x01, 0xFE, 'a', 'b', 'c', padByte}, b[:7])
	assert.Equal(t, []byte{0xD7, 0xC2}, b[len(b)-2:])

	seq, payload, err := ParseBlock(b)
	require.NoError(t, err)
	assert.Equal(t, byte(1), seq)
	assert.Equal(t, append([]byte("abc"), bytes.Repeat([]byte{padByte}, BlockSize-3)...), payload)
}

func TestHeaderBlock(t *testing.T) {
	t.Parallel()

	b, err := HeaderBlock("fw.bin", 3000)
	require.NoError(t, err)
	require.Len(t, b, HeaderSize+overhead)
	assert.Equal(t, []byte{SOH, 0x00, 0xFF}, b[:3])
	assert.True(t, bytes.HasPrefix(b[3:], []byte("fw.bin\x003000\x00")))

	seq, payload, err := ParseBlock(b)
	require.NoError(t, err)
	assert.Zero(t, seq)
	name, size, err := ParseHeader(payload)
	require.NoError(t, err)
	assert.Equal(t, "fw.bin", name)
	assert.Equal(t, int64(3000), size)

	end, err := HeaderBlock("", 0)
	require.NoError(t, err)
	_, payload, err = ParseBlock(end)
	require.NoError(t, err)
	assert.Equal(t, make([]byte, HeaderSize), payload)
	name, _, err = ParseHeader(payload)
	require.NoError(t, err)
	assert.Empty(t, name)

	_, err = HeaderBlock(strings.Repeat("x", HeaderSize), 1)
	require.ErrorIs(t, err, ErrNameSize)
}

func TestParseBlock_Errors(t *testing.T) {
	t.Parallel()

	good := DataBlock(7, []byte{1, 2, 3})
	tests := []struct {
		mutate func([]byte) []byte
		name   string
	}{
		{name: "empty", mutate: func([]byte) []byte { return nil }},
		{name: "unknown mark", mutate: func(b []byte) []byte { b[0] = 0x55; return b }},
		{name: "short", mutate: func(b []byte) []byte { return b[:100] }},
		{name: "sequence complement", mutate: func(b []byte) []byte { b[2] = 0; return b }},
		{name: "crc", mutate: func(b []byte) []byte { b[10] ^= 0xFF; return b }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, _, err := ParseBlock(tt.mutate(bytes.Clone(good)))
			require.ErrorIs(t, err, ErrBadBlock)
		})
	}
}

func TestParseHeader_Errors(t *testing.T) {
	t.Parallel()

	_, _, err := ParseHeader([]byte("no terminator"))
	require.ErrorIs(t, err, ErrBadBlock)

	name, size, err := ParseHeader([]byte("fw.bin\x00\x00"))
	require.NoError(t, err)
	assert.Equal(t, "fw.bin", name)
	assert.Zero(t, size)

	_, _, err = ParseHeader([]byte("fw.bin\x0099999999999999999999\x00"))
	require.ErrorIs(t, err, ErrBadBlock)
}
