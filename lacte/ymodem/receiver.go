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
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	protolib "github.com/ZaparooProject/go-protolib"
)

// File describes a received file.
type File struct {
	Name string `json:"name" yaml:"name"`
	Size int64  `json:"size" yaml:"size"`
}

// Receiver accepts a YMODEM transfer, playing the bootloader's part.
type Receiver struct {
	link         *link
	blockTimeout time.Duration
	maxRetries   int
}

// NewReceiver creates a receiver on t.
func NewReceiver(t protolib.Transport, opts ...Option) *Receiver {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Receiver{
		link:         newLink(t),
		blockTimeout: o.blockTimeout,
		maxRetries:   o.maxRetries,
	}
}

type packet struct {
	payload []byte
	mark    byte
	seq     byte
}

var errTimeout = errors.New("ymodem: timeout")

// next reads the next block or control byte. A malformed block is
// reported as ErrBadBlock; silence as errTimeout.
func (r *Receiver) next(ctx context.Context) (packet, error) {
	deadline := time.Now().Add(r.blockTimeout)
	for {
		c, ok, err := r.link.readByte(ctx, time.Until(deadline))
		if err != nil {
			return packet{}, err
		}
		if !ok {
			return packet{}, errTimeout
		}
		switch c {
		case EOT:
			return packet{mark: EOT}, nil
		case CAN:
			return packet{}, ErrCancelled
		case SOH, STX:
			rest, ok, err := r.link.readFull(ctx, blockSize(c)+overhead-1, time.Until(deadline))
			if err != nil {
				return packet{}, err
			}
			if !ok {
				r.link.flush()
				return packet{}, fmt.Errorf("%w: short block", ErrBadBlock)
			}
			seq, payload, err := ParseBlock(append([]byte{c}, rest...))
			if err != nil {
				r.link.flush()
				return packet{}, err
			}
			return packet{mark: c, seq: seq, payload: payload}, nil
		}
	}
}

// expect reads until accept returns true, sending nak after every timeout
// or bad block, up to the retry limit.
func (r *Receiver) expect(ctx context.Context, nak byte, accept func(packet) (bool, error)) error {
	for failures := 0; failures <= r.maxRetries; {
		p, err := r.next(ctx)
		switch {
		case errors.Is(err, errTimeout), errors.Is(err, ErrBadBlock):
			failures++
			if err := r.link.write(ctx, []byte{nak}, "retry"); err != nil {
				return err
			}
			continue
		case err != nil:
			return err
		}
		done, err := accept(p)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
	return fmt.Errorf("%w: too many failed blocks", ErrNoAck)
}

func (r *Receiver) ack(ctx context.Context) error {
	return r.link.write(ctx, []byte{ACK}, "ACK")
}

// Receive accepts one file into w and returns its name and size. Data
// past the announced size is dropped.
func (r *Receiver) Receive(ctx context.Context, w io.Writer) (File, error) {
	file, err := r.receive(ctx, w)
	if err != nil {
		if !errors.Is(err, ErrCancelled) {
			_ = r.link.write(context.Background(), []byte{CAN, CAN}, "abort")
		}
		return file, r.link.trace.WrapError(err)
	}
	return file, nil
}

func (r *Receiver) receive(ctx context.Context, w io.Writer) (File, error) {
	var file File

	if err := r.link.write(ctx, []byte{CRCReq}, "start"); err != nil {
		return file, err
	}
	err := r.expect(ctx, CRCReq, func(p packet) (bool, error) {
		if p.mark != SOH || p.seq != 0 {
			return false, nil
		}
		name, size, err := ParseHeader(p.payload)
		if err != nil {
			return false, err
		}
		file = File{Name: name, Size: size}
		return true, r.ack(ctx)
	})
	if err != nil {
		return file, err
	}
	protolib.Debugf("ymodem: receiving %q (%d bytes)", file.Name, file.Size)

	expected := byte(1)
	var written int64
	err = r.expect(ctx, NAK, func(p packet) (bool, error) {
		switch {
		case p.mark == EOT:
			return true, r.ack(ctx)
		case p.seq == expected-1:
			return false, r.ack(ctx)
		case p.seq != expected:
			return false, fmt.Errorf("%w: sequence %d, want %d", ErrBadBlock, p.seq, expected)
		}
		data := p.payload
		if file.Size > 0 {
			data = data[:min(int64(len(data)), max(file.Size-written, 0))]
		}
		if _, err := w.Write(data); err != nil {
			return false, fmt.Errorf("write file: %w", err)
		}
		written += int64(len(data))
		expected++
		return false, r.ack(ctx)
	})
	if err != nil {
		return file, err
	}

	err = r.expect(ctx, NAK, func(p packet) (bool, error) {
		if p.mark == EOT {
			return false, r.ack(ctx)
		}
		if p.mark != SOH || p.seq != 0 {
			return false, nil
		}
		return true, r.ack(ctx)
	})
	return file, err
}
