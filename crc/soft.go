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

package crc

// Soft is a table-driven CRC engine for arbitrary Params.
// A Soft is immutable after New and safe for concurrent use.
type Soft struct {
	params Params
	table  [256]uint32
	mask   uint32
	init   State
}

// New builds an engine for p. Poly, Init and XorOut are truncated to Width.
func New(p Params) (*Soft, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	s := &Soft{mask: p.mask()}
	p.Poly &= s.mask
	p.Init &= s.mask
	p.XorOut &= s.mask
	s.params = p

	if p.RefIn {
		s.buildReflected()
		s.init = State(reflect(p.Init, p.Width))
	} else {
		s.buildNormal()
		s.init = State(p.Init)
	}
	return s, nil
}

// MustNew is like New but panics on invalid parameters.
// It is intended for package-level presets.
func MustNew(p Params) *Soft {
	s, err := New(p)
	if err != nil {
		panic(err)
	}
	return s
}

func (s *Soft) buildReflected() {
	poly := reflect(s.params.Poly, s.params.Width)
	for i := range s.table {
		v := uint32(i)
		for range 8 {
			if v&1 != 0 {
				v = v>>1 ^ poly
			} else {
				v >>= 1
			}
		}
		s.table[i] = v
	}
}

func (s *Soft) buildNormal() {
	w := s.params.Width
	top := uint32(1) << uint(w-1)
	for i := range s.table {
		v := uint32(i) << uint(w-8)
		for range 8 {
			if v&top != 0 {
				v = (v<<1 ^ s.params.Poly) & s.mask
			} else {
				v = v << 1 & s.mask
			}
		}
		s.table[i] = v
	}
}

// Params returns the normalized parameters of the engine.
func (s *Soft) Params() Params {
	return s.params
}

// Width implements Engine.
func (s *Soft) Width() int {
	return s.params.Width
}

// Init implements Engine.
func (s *Soft) Init() State {
	return s.init
}

// Update implements Engine.
func (s *Soft) Update(st State, p []byte) State {
	c := uint32(st)
	if s.params.RefIn {
		for _, b := range p {
			c = s.table[byte(c)^b] ^ c>>8
		}
		return State(c)
	}
	shift := uint(s.params.Width - 8)
	for _, b := range p {
		c = (c<<8)&s.mask ^ s.table[byte(c>>shift)^b]
	}
	return State(c)
}

// Finalize implements Engine.
func (s *Soft) Finalize(st State) uint32 {
	c := uint32(st)
	if s.params.RefOut != s.params.RefIn {
		c = reflect(c, s.params.Width)
	}
	return (c ^ s.params.XorOut) & s.mask
}

// Compute implements Engine.
func (s *Soft) Compute(p []byte) uint32 {
	return s.Finalize(s.Update(s.init, p))
}
