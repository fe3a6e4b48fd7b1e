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
	"fmt"
	"slices"

	"github.com/ZaparooProject/go-protolib/container"
	"github.com/ZaparooProject/go-protolib/crc"
	"github.com/ZaparooProject/go-protolib/field"
)

// Codec encodes messages into frames and decodes frame payloads for one
// Config. A Codec is immutable and safe for concurrent use.
type Codec struct {
	cfg      Config
	crcSize  int
	maxFrame int
}

// NewCodec validates cfg and returns a codec for it.
func NewCodec(cfg Config) (*Codec, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Codec{cfg: cfg.clone(), crcSize: crc.Size(cfg.CRC)}
	c.maxFrame = len(cfg.Sync) + cfg.LengthWidth + cfg.MaxPayload + c.crcSize
	return c, nil
}

// MustNewCodec is NewCodec for static configurations. It panics on error.
func MustNewCodec(cfg Config) *Codec {
	c, err := NewCodec(cfg)
	if err != nil {
		panic(err)
	}
	return c
}

// Name returns the configured name.
func (c *Codec) Name() string {
	return c.cfg.Name
}

// MaxFrameSize returns the largest frame this codec produces or accepts.
func (c *Codec) MaxFrameSize() int {
	return c.maxFrame
}

// Overhead returns the bytes a frame adds around its payload.
func (c *Codec) Overhead() int {
	return len(c.cfg.Sync) + c.cfg.LengthWidth + c.crcSize
}

// Encode returns the frame for msg.
func (c *Codec) Encode(msg Message) ([]byte, error) {
	return c.AppendFrame(make([]byte, 0, c.Overhead()+c.cfg.prefixSize()+len(msg.Payload)), msg)
}

// AppendFrame appends the frame for msg to dst. On error dst is returned
// unchanged.
func (c *Codec) AppendFrame(dst []byte, msg Message) ([]byte, error) {
	start := len(dst)
	dst = append(dst, c.cfg.Sync...)
	lenAt := len(dst)
	dst = append(dst, make([]byte, c.cfg.LengthWidth)...)

	payloadAt := len(dst)
	dst, err := c.appendPayload(dst, msg)
	if err != nil {
		return dst[:start], err
	}
	n := len(dst) - payloadAt
	if n > c.cfg.MaxPayload {
		return dst[:start], fmt.Errorf("%w: %d bytes, max %d", ErrFrameTooLarge, n, c.cfg.MaxPayload)
	}
	c.cfg.LengthOrder.Put(dst[lenAt:payloadAt], uint64(n))

	sum := c.checksum(dst[start:lenAt], dst[lenAt:payloadAt], dst[payloadAt:])
	var tail [4]byte
	c.cfg.CRCOrder.Put(tail[:c.crcSize], uint64(sum))
	return append(dst, tail[:c.crcSize]...), nil
}

// EncodeTo writes the frame for msg into b. Nothing is written when the
// frame does not fit.
func (c *Codec) EncodeTo(b *container.Buffer, msg Message) error {
	scratch := container.GetBuffer(c.maxFrame)
	defer container.PutBuffer(scratch)

	frame, err := c.AppendFrame(scratch[:0], msg)
	if err != nil {
		return err
	}
	if _, err := b.Write(frame); err != nil {
		return fmt.Errorf("encode %s: %w", c.cfg.Name, err)
	}
	return nil
}

func (c *Codec) appendPayload(dst []byte, msg Message) ([]byte, error) {
	var err error
	if len(c.cfg.Header) > 0 {
		if dst, err = c.cfg.Header.Append(dst, msg.Header); err != nil {
			return dst, err
		}
	}
	if c.cfg.TypeField != nil {
		if dst, err = c.cfg.TypeField.AppendValue(dst, field.U(c.cfg.TypeField.Name(), msg.Type)); err != nil {
			return dst, err
		}
	} else if msg.Type != 0 {
		return dst, fmt.Errorf("%w: %d", ErrUnknownType, msg.Type)
	}

	if c.cfg.Messages == nil {
		return append(dst, msg.Payload...), nil
	}
	schema, ok := c.cfg.Messages[msg.Type]
	if !ok {
		return dst, fmt.Errorf("%w: %d", ErrUnknownType, msg.Type)
	}
	return schema.Append(dst, msg.Fields)
}

func (c *Codec) checksum(sync, length, payload []byte) uint32 {
	e := c.cfg.CRC
	s := e.Init()
	if c.cfg.Scope.Has(ScopeSync) {
		s = e.Update(s, sync)
	}
	if c.cfg.Scope.Has(ScopeLength) {
		s = e.Update(s, length)
	}
	if c.cfg.Scope.Has(ScopePayload) {
		s = e.Update(s, payload)
	}
	return e.Finalize(s)
}

// DecodePayload splits a verified payload into header, type and body and
// decodes the body with the type's schema.
func (c *Codec) DecodePayload(p []byte) (Message, error) {
	var msg Message
	off := 0
	if len(c.cfg.Header) > 0 {
		rec, n, err := c.cfg.Header.Decode(p)
		if err != nil {
			return Message{}, err
		}
		msg.Header = rec
		off += n
	}
	if c.cfg.TypeField != nil {
		v, n, err := c.cfg.TypeField.DecodeValue(p[off:])
		if err != nil {
			return Message{}, err
		}
		msg.Type = v.Uint
		off += n
	}
	body := p[off:]
	msg.Payload = slices.Clone(body)

	if c.cfg.Messages == nil {
		return msg, nil
	}
	schema, ok := c.cfg.Messages[msg.Type]
	if !ok {
		return Message{}, fmt.Errorf("%w: %d", ErrUnknownType, msg.Type)
	}
	rec, n, err := schema.Decode(body)
	if err != nil {
		return Message{}, err
	}
	if n != len(body) {
		return Message{}, fmt.Errorf("%w: type %d, %d extra bytes", ErrTrailingData, msg.Type, len(body)-n)
	}
	msg.Fields = rec
	return msg, nil
}
