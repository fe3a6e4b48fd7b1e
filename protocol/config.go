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

// Package protocol implements a length and checksum validated frame codec
// and the streaming session that reassembles frames from a byte stream.
//
// A frame on the wire is
//
//	sync | length | payload | checksum
//
// where payload is the header fields, the optional type field, and the
// message body laid out by the schema registered for that type. The
// checksum covers the parts selected by Config.Scope.
package protocol

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	protolib "github.com/ZaparooProject/go-protolib"
	"github.com/ZaparooProject/go-protolib/crc"
	"github.com/ZaparooProject/go-protolib/field"
)

// Protocol errors
var (
	// ErrInvalidConfig is returned by NewCodec for an unusable configuration.
	ErrInvalidConfig = errors.New("protocol: invalid config")
	// ErrNeedMore is returned by Session.Next when no complete frame is buffered.
	ErrNeedMore = errors.New("protocol: need more data")
	// ErrChecksum is reported for a frame whose checksum does not match.
	ErrChecksum = errors.New("protocol: checksum mismatch")
	// ErrFrameTooLarge is reported for a declared length above MaxPayload.
	ErrFrameTooLarge = errors.New("protocol: frame too large")
	// ErrUnknownType is reported for a type with no registered schema.
	ErrUnknownType = errors.New("protocol: unknown message type")
	// ErrTrailingData is reported when a body is longer than its schema.
	ErrTrailingData = errors.New("protocol: trailing data after message body")
)

// Scope selects which frame parts the checksum covers.
type Scope uint8

const (
	// ScopeSync covers the sync marker.
	ScopeSync Scope = 1 << iota
	// ScopeLength covers the length prefix.
	ScopeLength
	// ScopePayload covers the payload.
	ScopePayload

	// ScopeAll covers every part before the checksum.
	ScopeAll = ScopeSync | ScopeLength | ScopePayload
)

// Has reports whether s includes part.
func (s Scope) Has(part Scope) bool {
	return s&part != 0
}

func (s Scope) String() string {
	if s == 0 {
		return "none"
	}
	var parts []string
	for _, p := range []struct {
		s    Scope
		name string
	}{{ScopeSync, "sync"}, {ScopeLength, "length"}, {ScopePayload, "payload"}} {
		if s.Has(p.s) {
			parts = append(parts, p.name)
		}
	}
	return strings.Join(parts, "+")
}

// Config describes one frame layout. It is copied by NewCodec and must
// not be changed afterwards.
type Config struct {
	// CRC computes the frame checksum.
	CRC crc.Engine
	// TypeField carries the message type after the header. Nil means
	// the layout has a single message kind registered as type 0.
	TypeField *field.UintField
	// Messages maps a type to its body schema. A nil map leaves bodies
	// undecoded in Message.Payload.
	Messages map[uint64]field.Schema
	// Name appears in logs and errors.
	Name string
	// Sync is the marker opening every frame.
	Sync []byte
	// Header holds fixed-size fields preceding the type.
	Header field.Schema
	// LengthWidth is the size of the length prefix in bytes: 1, 2 or 4.
	LengthWidth int
	// LengthOrder is the byte order of the length prefix.
	LengthOrder field.Order
	// CRCOrder is the byte order of the transmitted checksum.
	CRCOrder field.Order
	// Scope selects what the checksum covers.
	Scope Scope
	// MaxPayload bounds the declared length.
	MaxPayload int
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	switch {
	case len(c.Sync) == 0:
		return fmt.Errorf("%w: empty sync marker", ErrInvalidConfig)
	case c.LengthWidth != 1 && c.LengthWidth != 2 && c.LengthWidth != 4:
		return fmt.Errorf("%w: length width %d", ErrInvalidConfig, c.LengthWidth)
	case c.CRC == nil:
		return fmt.Errorf("%w: no checksum engine", ErrInvalidConfig)
	case c.Scope == 0 || c.Scope&^ScopeAll != 0:
		return fmt.Errorf("%w: checksum scope %#x", ErrInvalidConfig, uint8(c.Scope))
	case c.MaxPayload <= 0:
		return fmt.Errorf("%w: max payload %d", ErrInvalidConfig, c.MaxPayload)
	}

	if uint64(c.MaxPayload) > 1<<(8*uint(c.LengthWidth))-1 {
		return fmt.Errorf("%w: max payload %d does not fit a %d byte length",
			ErrInvalidConfig, c.MaxPayload, c.LengthWidth)
	}

	if err := c.Header.Validate(); err != nil {
		return fmt.Errorf("%w: header: %w", ErrInvalidConfig, err)
	}
	if c.Header.Size() < 0 {
		return fmt.Errorf("%w: header must be fixed size", ErrInvalidConfig)
	}
	if c.TypeField != nil {
		if err := (field.Schema{c.TypeField}).Validate(); err != nil {
			return fmt.Errorf("%w: type field: %w", ErrInvalidConfig, err)
		}
	}
	for typ, schema := range c.Messages {
		if c.TypeField == nil && typ != 0 {
			return fmt.Errorf("%w: type %d registered without a type field", ErrInvalidConfig, typ)
		}
		if c.TypeField != nil && typ > c.TypeField.Max() {
			return fmt.Errorf("%w: type %d does not fit the type field", ErrInvalidConfig, typ)
		}
		if err := schema.Validate(); err != nil {
			return fmt.Errorf("%w: type %d: %w", ErrInvalidConfig, typ, err)
		}
	}
	if c.prefixSize() > c.MaxPayload {
		return fmt.Errorf("%w: header and type exceed max payload", ErrInvalidConfig)
	}
	return nil
}

// prefixSize is the size of the header plus the type field.
func (c *Config) prefixSize() int {
	n := c.Header.Size()
	if c.TypeField != nil {
		n += c.TypeField.Size()
	}
	return n
}

func (c *Config) clone() Config {
	out := *c
	out.Sync = slices.Clone(c.Sync)
	out.Header = slices.Clone(c.Header)
	if c.Messages != nil {
		out.Messages = make(map[uint64]field.Schema, len(c.Messages))
		for k, v := range c.Messages {
			out.Messages[k] = slices.Clone(v)
		}
	}
	return out
}

// Message is one decoded frame.
type Message struct {
	// Header holds the header fields.
	Header field.Record
	// Fields holds the body decoded by the type's schema.
	Fields field.Record
	// Payload is the raw body (after header and type).
	Payload []byte
	// Type is the value of the type field.
	Type uint64
}

// State is the position of a Session in the frame state machine.
type State int

const (
	// StateSeekingSync scans for the sync marker.
	StateSeekingSync State = iota
	// StateReadingLength waits for the length prefix.
	StateReadingLength
	// StateReadingPayload waits for the declared payload bytes.
	StateReadingPayload
	// StateVerifyingCRC waits for and checks the trailing checksum.
	StateVerifyingCRC
)

func (s State) String() string {
	switch s {
	case StateSeekingSync:
		return "seeking-sync"
	case StateReadingLength:
		return "reading-length"
	case StateReadingPayload:
		return "reading-payload"
	case StateVerifyingCRC:
		return "verifying-crc"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// FrameError reports a discarded frame. The session has already resynced
// when it is returned.
type FrameError struct {
	Err   error
	Frame []byte
	State State
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("frame discarded in %s (%d bytes): %v", e.State, len(e.Frame), e.Err)
}

// Unwrap also yields protolib.ErrFrameCorrupted so callers that only know
// the transport level errors can still match a dropped frame.
func (e *FrameError) Unwrap() []error {
	return []error{e.Err, protolib.ErrFrameCorrupted}
}
