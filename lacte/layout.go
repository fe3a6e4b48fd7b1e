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

package lacte

import (
	"github.com/ZaparooProject/go-protolib/crc"
	"github.com/ZaparooProject/go-protolib/field"
	"github.com/ZaparooProject/go-protolib/protocol"
)

// Frame markers
var (
	HostSync  = []byte{0xFF, 0x55}
	BoardSync = []byte{0xFF, 0xAA}
)

// MaxPayload is the largest payload an 8-bit length can declare.
const MaxPayload = 0xFF

// Field names used in records.
const (
	FieldTime   = "time"
	FieldType   = "type"
	FieldData   = "data"
	FieldParam  = "param"
	FieldStatus = "status"
	FieldErrors = "errors"
	FieldRFID   = "rfid"
	FieldMajor  = "major"
	FieldMinor  = "minor"
	FieldUID    = "uid"
	FieldBoot   = "boot"

	FieldMagic        = "magic"
	FieldLacteID      = "lacte_id"
	FieldLacteSN      = "lacte_sn"
	FieldReserve      = "reserve"
	FieldVolume       = "volume"
	FieldProdDate     = "prod_date"
	FieldShelfLife    = "shelf_life"
	FieldUsageTime    = "usage_time"
	FieldMcuUID       = "mcu_uid"
	FieldMachineSN    = "machine_sn"
	FieldActivation   = "activation"
	FieldDrinkCounter = "drink_counter"
	FieldTimeCounter  = "time_counter"
)

// Sizes of the fixed board answers.
const (
	UIDSize      = 12
	RFIDSize     = 7
	InfoSize     = 1 + 2 + RFIDSize
	RFIDDataSize = 52
)

func u16(name string) *field.UintField { return field.U16(name, field.LittleEndian) }
func u32(name string) *field.UintField { return field.U32(name, field.LittleEndian) }

func rfidField() *field.UintField { return field.Uint(FieldRFID, RFIDSize, field.LittleEndian) }

func rfidDataSchema() field.Schema {
	return field.Schema{
		u16(FieldMagic),
		u16(FieldLacteID),
		u32(FieldLacteSN),
		u16(FieldReserve),
		u16(FieldVolume),
		u32(FieldProdDate),
		u32(FieldShelfLife),
		u32(FieldUsageTime),
		field.Bytes(FieldMcuUID, UIDSize),
		u32(FieldMachineSN),
		u32(FieldActivation),
		u32(FieldDrinkCounter),
		u32(FieldTimeCounter),
	}
}

// HostConfig is the host-to-board layout:
//
//	FF 55 | len | time u32 | type | data | crc16
func HostConfig() protocol.Config {
	tail := MaxPayload - 4 - 1
	empty := field.Schema{}
	return protocol.Config{
		Name:        "lacte-host",
		Sync:        HostSync,
		LengthWidth: 1,
		CRC:         crc.Modbus{},
		CRCOrder:    field.BigEndian,
		Scope:       protocol.ScopeLength | protocol.ScopePayload,
		MaxPayload:  MaxPayload,
		Header:      field.Schema{u32(FieldTime)},
		TypeField:   field.U8(FieldType),
		Messages: map[uint64]field.Schema{
			uint64(PacketInfo):      empty,
			uint64(PacketVersion):   empty,
			uint64(PacketUID):       empty,
			uint64(PacketRFID):      empty,
			uint64(PacketRFIDData):  empty,
			uint64(PacketSetParams): {field.Tail(FieldData, tail)},
			uint64(PacketGetParams): {field.U8(FieldParam)},
			uint64(PacketRestart):   {field.Tail(FieldData, tail)},
		},
	}
}

// BoardConfig is the board-to-host layout:
//
//	FF AA | len | type | data | crc16
func BoardConfig() protocol.Config {
	tail := MaxPayload - 1
	return protocol.Config{
		Name:        "lacte-board",
		Sync:        BoardSync,
		LengthWidth: 1,
		CRC:         crc.Modbus{},
		CRCOrder:    field.BigEndian,
		Scope:       protocol.ScopeLength | protocol.ScopePayload,
		MaxPayload:  MaxPayload,
		TypeField:   field.U8(FieldType),
		Messages: map[uint64]field.Schema{
			uint64(PacketInfo):      {field.U8(FieldStatus), u16(FieldErrors), rfidField()},
			uint64(PacketVersion):   {field.U8(FieldMajor), field.U8(FieldMinor)},
			uint64(PacketUID):       {field.Bytes(FieldUID, UIDSize)},
			uint64(PacketRFID):      {rfidField()},
			uint64(PacketRFIDData):  rfidDataSchema(),
			uint64(PacketSetParams): {field.Tail(FieldData, tail)},
			uint64(PacketGetParams): {field.Tail(FieldData, tail)},
			uint64(PacketRestart):   {field.U8(FieldBoot)},
		},
	}
}

var (
	hostCodec  = protocol.MustNewCodec(HostConfig())
	boardCodec = protocol.MustNewCodec(BoardConfig())
)

// HostCodec encodes and decodes host-to-board frames.
func HostCodec() *protocol.Codec { return hostCodec }

// BoardCodec encodes and decodes board-to-host frames.
func BoardCodec() *protocol.Codec { return boardCodec }
