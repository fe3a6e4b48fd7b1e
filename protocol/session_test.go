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

package protocol

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	protolib "github.com/ZaparooProject/go-protolib"
	"github.com/ZaparooProject/go-protolib/field"
)

func newSession(t testing.TB) *Session {
	t.Helper()
	s, err := NewSession(boardCodec(t))
	require.NoError(t, err)
	return s
}

func versionFrame(t testing.TB, major, minor uint64) []byte {
	t.Helper()
	frame, err := boardCodec(t).Encode(Message{
		Type:   typeVersion,
		Fields: field.Record{field.U("major", major), field.U("minor", minor)},
	})
	require.NoError(t, err)
	return frame
}

// drain collects every message and discard error Next produces.
func drain(s *Session) ([]Message, []error) {
	var msgs []Message
	var errs []error
	for {
		msg, err := s.Next()
		if errors.Is(err, ErrNeedMore) {
			return msgs, errs
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		msgs = append(msgs, msg)
	}
}

func TestSession_ReferenceFrame(t *testing.T) {
	t.Parallel()

	s := newSession(t)
	frame := mustHex(t, uidFrame)
	assert.Equal(t, len(frame), s.Push(frame))

	msg, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, uint64(typeUID), msg.Type)
	assert.Equal(t, mustHex(t, "32 ff d8 05 47 50 35 32 30 64 24 57"), msg.Fields.Bytes("uid"))

	_, err = s.Next()
	require.ErrorIs(t, err, ErrNeedMore)
	assert.Equal(t, StateSeekingSync, s.State())
	assert.Equal(t, uint64(1), s.Stats().Frames)
	assert.Zero(t, s.Buffered())
}

func TestSession_SplitReadOneByte(t *testing.T) {
	t.Parallel()

	s := newSession(t)
	frame := mustHex(t, uidFrame)

	var got []Message
	for i, b := range frame {
		require.Equal(t, 1, s.Push([]byte{b}))
		msgs, errs := drain(s)
		require.Empty(t, errs)
		if i < len(frame)-1 {
			require.Empty(t, msgs, "delivered early at byte %d", i)
		}
		got = append(got, msgs...)
	}
	require.Len(t, got, 1)
	assert.Equal(t, uint64(typeUID), got[0].Type)
}

func TestSession_StatesProgress(t *testing.T) {
	t.Parallel()

	s := newSession(t)
	frame := versionFrame(t, 1, 0)

	s.Push(frame[:2])
	_, err := s.Next()
	require.ErrorIs(t, err, ErrNeedMore)
	assert.Equal(t, StateReadingLength, s.State())

	s.Push(frame[2:4])
	_, err = s.Next()
	require.ErrorIs(t, err, ErrNeedMore)
	assert.Equal(t, StateReadingPayload, s.State())

	s.Push(frame[4:6])
	_, err = s.Next()
	require.ErrorIs(t, err, ErrNeedMore)
	assert.Equal(t, StateVerifyingCRC, s.State())

	s.Push(frame[6:])
	msg, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), msg.Fields.Uint("major"))
}

func TestSession_ResyncAfterCorruption(t *testing.T) {
	t.Parallel()

	s := newSession(t)
	bad := versionFrame(t, 1, 0)
	bad[len(bad)-1] ^= 0xFF
	good := versionFrame(t, 2, 7)

	s.Push(append(bad, good...))
	msgs, errs := drain(s)

	require.Len(t, msgs, 1)
	assert.Equal(t, uint64(2), msgs[0].Fields.Uint("major"))
	assert.Equal(t, uint64(7), msgs[0].Fields.Uint("minor"))

	require.Len(t, errs, 1)
	require.ErrorIs(t, errs[0], ErrChecksum)
	require.ErrorIs(t, errs[0], protolib.ErrFrameCorrupted)
	var ferr *FrameError
	require.ErrorAs(t, errs[0], &ferr)
	assert.Equal(t, StateVerifyingCRC, ferr.State)
	assert.Equal(t, bad, ferr.Frame)

	stats := s.Stats()
	assert.Equal(t, uint64(1), stats.ChecksumErrors)
	assert.Equal(t, uint64(1), stats.Frames)
	// The rest of the bad frame is rescanned as noise.
	assert.Equal(t, uint64(len(bad)-1), stats.NoiseBytes)
}

func TestSession_FrameHiddenInsideCorruptFrame(t *testing.T) {
	t.Parallel()

	// A broken frame whose declared length swallows a valid frame must
	// not hide it.
	s := newSession(t)
	good := versionFrame(t, 3, 1)
	stream := append([]byte{0xFF, 0xAA, 0x0A, typeEcho}, good...)
	stream = append(stream, 0x00, 0x00, 0x00)

	s.Push(stream)
	msgs, errs := drain(s)
	require.Len(t, msgs, 1)
	assert.Equal(t, uint64(3), msgs[0].Fields.Uint("major"))
	require.NotEmpty(t, errs)
	require.ErrorIs(t, errs[0], ErrChecksum)
}

func TestSession_NoiseAndPartialSync(t *testing.T) {
	t.Parallel()

	s := newSession(t)
	s.Push([]byte{0x00, 0x13, 0xAA, 0xFF})
	_, err := s.Next()
	require.ErrorIs(t, err, ErrNeedMore)
	assert.Equal(t, uint64(3), s.Stats().NoiseBytes)
	assert.Equal(t, 1, s.Buffered(), "trailing 0xFF may start a marker")

	frame := versionFrame(t, 1, 2)
	s.Push(frame[1:])
	msg, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), msg.Fields.Uint("minor"))
}

func TestSession_Oversize(t *testing.T) {
	t.Parallel()

	s := newSession(t)
	good := versionFrame(t, 1, 0)
	s.Push(append([]byte{0xFF, 0xAA, 0xF0}, good...))

	msgs, errs := drain(s)
	require.Len(t, msgs, 1)
	require.Len(t, errs, 1)
	require.ErrorIs(t, errs[0], ErrFrameTooLarge)
	assert.Equal(t, uint64(1), s.Stats().Oversize)
}

func TestSession_DecodeErrorConsumesFrame(t *testing.T) {
	t.Parallel()

	cfg := boardConfig()
	cfg.Messages = nil
	raw := MustNewCodec(cfg)
	unknown, err := raw.Encode(Message{Type: 0x33, Payload: []byte{1, 2}})
	require.NoError(t, err)

	s := newSession(t)
	s.Push(append(unknown, versionFrame(t, 1, 0)...))
	msgs, errs := drain(s)

	require.Len(t, msgs, 1)
	require.Len(t, errs, 1)
	require.ErrorIs(t, errs[0], ErrUnknownType)
	assert.Equal(t, uint64(1), s.Stats().DecodeErrors)
	assert.Zero(t, s.Stats().NoiseBytes, "a verified frame is consumed whole")
}

func TestSession_PushBounded(t *testing.T) {
	t.Parallel()

	s := newSession(t)
	capacity := 2 * boardCodec(t).MaxFrameSize()
	big := make([]byte, capacity+10)
	n := s.Push(big)
	assert.Equal(t, capacity, n)

	msgs, _ := drain(s)
	assert.Empty(t, msgs)
	assert.Zero(t, s.Buffered())
	assert.Equal(t, len(big)-10, int(s.Stats().NoiseBytes))
}

func TestSession_Feed(t *testing.T) {
	t.Parallel()

	s := newSession(t)
	var stream []byte
	for i := range 50 {
		stream = append(stream, 0x00)
		stream = append(stream, versionFrame(t, uint64(i), 0)...)
	}

	var majors []uint64
	require.NoError(t, s.Feed(stream, func(m Message) error {
		majors = append(majors, m.Fields.Uint("major"))
		return nil
	}))
	require.Len(t, majors, 50)
	for i, m := range majors {
		assert.Equal(t, uint64(i), m)
	}

	errStop := errors.New("stop")
	err := s.Feed(append(versionFrame(t, 1, 0), versionFrame(t, 2, 0)...), func(Message) error {
		return errStop
	})
	require.ErrorIs(t, err, errStop)
}

func TestSession_Reset(t *testing.T) {
	t.Parallel()

	s := newSession(t)
	frame := versionFrame(t, 1, 0)
	s.Push(frame[:5])
	_, err := s.Next()
	require.ErrorIs(t, err, ErrNeedMore)

	s.Reset()
	assert.Equal(t, StateSeekingSync, s.State())
	assert.Zero(t, s.Buffered())

	s.Push(frame)
	_, err = s.Next()
	require.NoError(t, err)
}

func TestSession_IndependentSessions(t *testing.T) {
	t.Parallel()

	codec := boardCodec(t)
	var wg sync.WaitGroup
	results := make([][]uint64, 8)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := NewSession(codec)
			if err != nil {
				return
			}
			for j := range 20 {
				frame, _ := codec.Encode(Message{
					Type:   typeVersion,
					Fields: field.Record{field.U("major", uint64(i)), field.U("minor", uint64(j))},
				})
				for _, b := range frame {
					s.Push([]byte{b})
					for {
						msg, err := s.Next()
						if err != nil {
							break
						}
						results[i] = append(results[i], msg.Fields.Uint("major")<<8|msg.Fields.Uint("minor"))
					}
				}
			}
		}()
	}
	wg.Wait()

	for i, got := range results {
		require.Len(t, got, 20)
		for j, v := range got {
			assert.Equal(t, uint64(i)<<8|uint64(j), v)
		}
	}
}

func TestNewSession_NilCodec(t *testing.T) {
	t.Parallel()

	_, err := NewSession(nil)
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestState_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "verifying-crc", StateVerifyingCRC.String())
	assert.Equal(t, "State(9)", State(9).String())
}
