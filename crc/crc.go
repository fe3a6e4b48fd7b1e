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

// Package crc implements cyclic redundancy checks for frame validation.
//
// Two engines are provided: Soft, a table-driven engine parameterized by
// width, polynomial, initial value, reflection flags and final xor, and
// Modbus, a zero-configuration CRC16-MODBUS engine. Both satisfy Engine and
// support streaming accumulation:
//
//	s := eng.Init()
//	s = eng.Update(s, chunk1)
//	s = eng.Update(s, chunk2)
//	sum := eng.Finalize(s)
//
// The result is independent of how the input is split into chunks.
package crc

import (
	"errors"
	"fmt"
)

// ErrInvalidWidth is returned when Params.Width is not 8, 16 or 32.
var ErrInvalidWidth = errors.New("crc: width must be 8, 16 or 32")

// State is a running checksum accumulator. Only the low Width bits are used.
// The representation is engine specific: reflected engines keep it
// bit-reversed until Finalize.
type State uint32

// Engine computes checksums over byte sequences.
type Engine interface {
	// Width returns the checksum width in bits.
	Width() int
	// Init returns the accumulator for an empty input.
	Init() State
	// Update feeds p into the accumulator.
	Update(s State, p []byte) State
	// Finalize applies output reflection and the final xor.
	Finalize(s State) uint32
	// Compute is Finalize(Update(Init(), p)).
	Compute(p []byte) uint32
}

// Params describes a CRC variant in the Rocksoft model.
type Params struct {
	Name   string
	Width  int
	Poly   uint32
	Init   uint32
	XorOut uint32
	RefIn  bool
	RefOut bool
}

// Named variants. Check values are over the ASCII string "123456789".
var (
	// ParamsModbus is CRC-16/MODBUS (check 0x4B37).
	ParamsModbus = Params{Name: "CRC-16/MODBUS", Width: 16, Poly: 0x8005, Init: 0xFFFF, RefIn: true, RefOut: true}
	// ParamsARC is CRC-16/ARC (check 0xBB3D).
	ParamsARC = Params{Name: "CRC-16/ARC", Width: 16, Poly: 0x8005, RefIn: true, RefOut: true}
	// ParamsXModem is CRC-16/XMODEM, used by the Ymodem flasher (check 0x31C3).
	ParamsXModem = Params{Name: "CRC-16/XMODEM", Width: 16, Poly: 0x1021}
	// ParamsCCITTFalse is CRC-16/CCITT-FALSE (check 0x29B1).
	ParamsCCITTFalse = Params{Name: "CRC-16/CCITT-FALSE", Width: 16, Poly: 0x1021, Init: 0xFFFF}
	// ParamsCRC32 is CRC-32/ISO-HDLC (check 0xCBF43926).
	ParamsCRC32 = Params{
		Name: "CRC-32", Width: 32, Poly: 0x04C11DB7, Init: 0xFFFFFFFF,
		XorOut: 0xFFFFFFFF, RefIn: true, RefOut: true,
	}
	// ParamsCRC8 is CRC-8/SMBUS (check 0xF4).
	ParamsCRC8 = Params{Name: "CRC-8", Width: 8, Poly: 0x07}
)

// Validate reports whether p describes a supported variant.
func (p Params) Validate() error {
	switch p.Width {
	case 8, 16, 32:
		return nil
	default:
		return fmt.Errorf("%w: got %d", ErrInvalidWidth, p.Width)
	}
}

// Size returns the checksum width in bytes.
func (p Params) Size() int {
	return p.Width / 8
}

func (p Params) mask() uint32 {
	if p.Width == 32 {
		return 0xFFFFFFFF
	}
	return 1<<uint(p.Width) - 1
}

// reflect reverses the low width bits of v.
func reflect(v uint32, width int) uint32 {
	var r uint32
	for i := range width {
		if v&(1<<uint(i)) != 0 {
			r |= 1 << uint(width-1-i)
		}
	}
	return r
}

// Size returns the byte size of checksums produced by e.
func Size(e Engine) int {
	return e.Width() / 8
}
