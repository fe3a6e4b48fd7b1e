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
	"bytes"
	"errors"
	"fmt"
	"slices"

	"github.com/ZaparooProject/go-protolib/container"
	"github.com/ZaparooProject/go-protolib/crc"
)

// Stats counts what a Session has seen.
type Stats struct {
	// Frames is the number of messages delivered.
	Frames uint64 `json:"frames" yaml:"frames"`
	// ChecksumErrors is the number of frames failing the checksum.
	ChecksumErrors uint64 `json:"checksum_errors" yaml:"checksum_errors"`
	// Oversize is the number of declared lengths above MaxPayload.
	Oversize uint64 `json:"oversize" yaml:"oversize"`
	// DecodeErrors is the number of verified frames whose payload did not decode.
	DecodeErrors uint64 `json:"decode_errors" yaml:"decode_errors"`
	// NoiseBytes is the number of bytes skipped while seeking sync.
	NoiseBytes uint64 `json:"noise_bytes" yaml:"noise_bytes"`
}

// Session reassembles frames from a byte stream. Bytes are pushed in any
// chunking; Next returns one message at a time. Bytes stay buffered until
// their frame is verified so a failed frame can be rescanned from the byte
// after its sync marker.
//
// A Session is not safe for concurrent use.
type Session struct {
	codec  *Codec
	buf    *container.Buffer
	stats  Stats
	state  State
	length int
	fed    int
	sum    crc.State
}

// NewSession returns a session decoding frames for codec.
func NewSession(codec *Codec) (*Session, error) {
	if codec == nil {
		return nil, fmt.Errorf("%w: nil codec", ErrInvalidConfig)
	}
	buf, err := container.New(2 * codec.MaxFrameSize())
	if err != nil {
		return nil, err
	}
	return &Session{codec: codec, buf: buf}, nil
}

// State returns the current state.
func (s *Session) State() State {
	return s.state
}

// Stats returns a snapshot of the counters.
func (s *Session) Stats() Stats {
	return s.stats
}

// Buffered returns the number of bytes waiting to be parsed.
func (s *Session) Buffered() int {
	return s.buf.Readable()
}

// Reset drops buffered bytes and returns to StateSeekingSync. Counters are
// kept.
func (s *Session) Reset() {
	s.buf.Reset()
	s.state = StateSeekingSync
	s.length, s.fed = 0, 0
}

// Push buffers as much of p as fits and returns the number of bytes taken.
// Call Next until it returns ErrNeedMore before pushing the rest.
func (s *Session) Push(p []byte) int {
	if len(p) > s.buf.Available() {
		s.buf.Compact()
	}
	n := min(len(p), s.buf.Available())
	_, _ = s.buf.Write(p[:n])
	return n
}

// Next returns the next complete message. It returns ErrNeedMore when more
// input is required, and a *FrameError when a frame was discarded; the
// session is ready for the next call in both cases. After a discarded
// frame the sync search resumes at the byte right after the first byte of
// that frame's sync marker, so a real frame starting inside the bad one is
// still found. Those rescanned bytes count as noise in Stats.
func (s *Session) Next() (Message, error) {
	cfg := &s.codec.cfg
	syncLen := len(cfg.Sync)
	off := syncLen + cfg.LengthWidth

	for {
		switch s.state {
		case StateSeekingSync:
			if !s.seekSync() {
				return Message{}, ErrNeedMore
			}
			s.state = StateReadingLength

		case StateReadingLength:
			if s.buf.Readable() < off {
				return Message{}, ErrNeedMore
			}
			head, _ := s.buf.Peek(off)
			length := cfg.LengthOrder.Get(head[syncLen:])
			if length > uint64(cfg.MaxPayload) {
				s.stats.Oversize++
				return Message{}, s.discard(StateReadingLength, off,
					fmt.Errorf("%w: declared %d, max %d", ErrFrameTooLarge, length, cfg.MaxPayload))
			}
			s.length = int(length)
			s.fed = 0
			s.sum = cfg.CRC.Init()
			if cfg.Scope.Has(ScopeSync) {
				s.sum = cfg.CRC.Update(s.sum, head[:syncLen])
			}
			if cfg.Scope.Has(ScopeLength) {
				s.sum = cfg.CRC.Update(s.sum, head[syncLen:])
			}
			s.state = StateReadingPayload

		case StateReadingPayload:
			have := min(s.buf.Readable()-off, s.length)
			if have > s.fed {
				if cfg.Scope.Has(ScopePayload) {
					p, _ := s.buf.Peek(off + have)
					s.sum = cfg.CRC.Update(s.sum, p[off+s.fed:])
				}
				s.fed = have
			}
			if s.fed < s.length {
				return Message{}, ErrNeedMore
			}
			s.state = StateVerifyingCRC

		case StateVerifyingCRC:
			total := off + s.length + s.codec.crcSize
			if s.buf.Readable() < total {
				return Message{}, ErrNeedMore
			}
			frame, _ := s.buf.Peek(total)
			want := cfg.CRCOrder.Get(frame[off+s.length:])
			got := uint64(cfg.CRC.Finalize(s.sum))
			if got != want {
				s.stats.ChecksumErrors++
				return Message{}, s.discard(StateVerifyingCRC, total,
					fmt.Errorf("%w: got %#x, frame carries %#x", ErrChecksum, got, want))
			}

			msg, err := s.codec.DecodePayload(frame[off : off+s.length])
			if err != nil {
				s.stats.DecodeErrors++
				ferr := &FrameError{Err: err, State: StateVerifyingCRC, Frame: slices.Clone(frame)}
				_ = s.buf.Consume(total)
				s.state = StateSeekingSync
				return Message{}, ferr
			}
			_ = s.buf.Consume(total)
			s.state = StateSeekingSync
			s.stats.Frames++
			return msg, nil
		}
	}
}

// seekSync drops bytes before the next sync marker. A trailing partial
// marker is kept. It reports whether a marker now starts the buffer.
func (s *Session) seekSync() bool {
	sync := s.codec.cfg.Sync
	data := s.buf.Bytes()
	if idx := bytes.Index(data, sync); idx >= 0 {
		s.skip(idx)
		return true
	}
	keep := min(len(sync)-1, len(data))
	for ; keep > 0; keep-- {
		if bytes.HasPrefix(sync, data[len(data)-keep:]) {
			break
		}
	}
	s.skip(len(data) - keep)
	return false
}

func (s *Session) skip(n int) {
	if n == 0 {
		return
	}
	s.stats.NoiseBytes += uint64(n)
	_ = s.buf.Consume(n)
}

// discard reports the n bytes at the head of the buffer as a failed frame
// and drops only the first sync byte so the rest is rescanned.
func (s *Session) discard(state State, n int, err error) *FrameError {
	frame, _ := s.buf.Peek(min(n, s.buf.Readable()))
	ferr := &FrameError{Err: err, State: state, Frame: slices.Clone(frame)}
	_ = s.buf.Consume(1)
	s.state = StateSeekingSync
	return ferr
}

// Feed pushes p and calls fn for every message it completes. Discarded
// frames are counted in Stats and skipped. If fn returns an error Feed
// stops and returns it; bytes of p not yet pushed are dropped.
func (s *Session) Feed(p []byte, fn func(Message) error) error {
	for {
		n := s.Push(p)
		p = p[n:]
		for {
			msg, err := s.Next()
			if errors.Is(err, ErrNeedMore) {
				break
			}
			var ferr *FrameError
			if errors.As(err, &ferr) {
				continue
			}
			if err := fn(msg); err != nil {
				return err
			}
		}
		if len(p) == 0 {
			return nil
		}
	}
}
