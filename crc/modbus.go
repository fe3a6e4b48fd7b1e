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

// modbusNibbles is the 16-entry table for reflected polynomial 0xA001.
var modbusNibbles = [16]uint16{
	0x0000, 0xCC01, 0xD801, 0x1400, 0xF001, 0x3C00, 0x2800, 0xE401,
	0xA001, 0x6C00, 0x7800, 0xB401, 0x5000, 0x9C01, 0x8801, 0x4400,
}

// Modbus is the fixed CRC16-MODBUS engine. The zero value is ready to use.
// Output is identical to New(ParamsModbus).
type Modbus struct{}

var _ Engine = Modbus{}

// Width implements Engine.
func (Modbus) Width() int {
	return 16
}

// Init implements Engine.
func (Modbus) Init() State {
	return 0xFFFF
}

// Update implements Engine.
func (Modbus) Update(s State, p []byte) State {
	c := uint16(s)
	for _, b := range p {
		c = modbusNibbles[(uint16(b)^c)&0x0F] ^ c>>4
		c = modbusNibbles[(uint16(b>>4)^c)&0x0F] ^ c>>4
	}
	return State(c)
}

// Finalize implements Engine.
func (Modbus) Finalize(s State) uint32 {
	return uint32(s) & 0xFFFF
}

// Compute implements Engine.
func (m Modbus) Compute(p []byte) uint32 {
	return m.Finalize(m.Update(m.Init(), p))
}

// Checksum16 returns the CRC16-MODBUS of p.
func Checksum16(p []byte) uint16 {
	return uint16(Modbus{}.Compute(p))
}
