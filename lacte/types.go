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
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/ZaparooProject/go-protolib/field"
)

// Defaults reported by a fresh VirtualBoard.
const (
	DefaultRFID    RFIDNumber = 0x7BB3094D1E64EE
	DefaultLacteSN uint32     = 1105824325
	DefaultMagic   uint16     = 0xCCAA
)

// Packet is a typed board answer.
type Packet interface {
	PacketType() PacketType
	Record() field.Record
}

// Version is the board firmware version.
type Version struct {
	Major uint8 `json:"major" yaml:"major"`
	Minor uint8 `json:"minor" yaml:"minor"`
}

// PacketType implements Packet.
func (Version) PacketType() PacketType { return PacketVersion }

// Record implements Packet.
func (v Version) Record() field.Record {
	return field.Record{field.U(FieldMajor, uint64(v.Major)), field.U(FieldMinor, uint64(v.Minor))}
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

func versionFromRecord(r field.Record) Version {
	return Version{Major: uint8(r.Uint(FieldMajor)), Minor: uint8(r.Uint(FieldMinor))}
}

// UID is the 12-byte board MCU identifier.
type UID [UIDSize]byte

// PacketType implements Packet.
func (UID) PacketType() PacketType { return PacketUID }

// Record implements Packet.
func (u UID) Record() field.Record {
	return field.Record{field.B(FieldUID, u[:])}
}

func (u UID) String() string {
	return hex.EncodeToString(u[:])
}

// MarshalText renders the UID as hex.
func (u UID) MarshalText() ([]byte, error) {
	return []byte(u.String()), nil
}

// UnmarshalText accepts the forms ParseUID does.
func (u *UID) UnmarshalText(text []byte) error {
	*u = ParseUID(string(text))
	return nil
}

// ParseUID reads hex digits into a UID.
func ParseUID(s string) UID {
	var u UID
	copy(u[:], ParseHexBytes(s, UIDSize))
	return u
}

// RFIDNumber is the 56-bit RFID card number.
type RFIDNumber uint64

// MaxRFID is the largest card number.
const MaxRFID RFIDNumber = 1<<(8*RFIDSize) - 1

// PacketType implements Packet.
func (RFIDNumber) PacketType() PacketType { return PacketRFID }

// Record implements Packet.
func (n RFIDNumber) Record() field.Record {
	return field.Record{field.U(FieldRFID, uint64(n&MaxRFID))}
}

func (n RFIDNumber) String() string {
	return strconv.FormatUint(uint64(n&MaxRFID), 10)
}

// ParseRFIDNumber parses a card number in decimal or hex.
func ParseRFIDNumber(s string) (RFIDNumber, error) {
	v, err := ParseUint(s, 64)
	if err != nil {
		return 0, err
	}
	if RFIDNumber(v) > MaxRFID {
		return 0, fmt.Errorf("rfid %q exceeds 56 bits", s)
	}
	return RFIDNumber(v), nil
}

// Info is the board status report.
type Info struct {
	Status BoardStatus `json:"status" yaml:"status"`
	Errors ErrorFlags  `json:"errors" yaml:"errors"`
	RFID   RFIDNumber  `json:"rfid" yaml:"rfid"`
}

// PacketType implements Packet.
func (Info) PacketType() PacketType { return PacketInfo }

// Record implements Packet.
func (i Info) Record() field.Record {
	return field.Record{
		field.U(FieldStatus, uint64(i.Status)),
		field.U(FieldErrors, uint64(i.Errors)),
		field.U(FieldRFID, uint64(i.RFID&MaxRFID)),
	}
}

// String renders the info as "status,errors,rfid".
func (i Info) String() string {
	return fmt.Sprintf("%s,%s,%s", i.Status, i.Errors, i.RFID)
}

// ParseInfo parses the form produced by String.
func ParseInfo(s string) (Info, error) {
	first := strings.Index(s, ",")
	last := strings.LastIndex(s, ",")
	if first < 0 || first == last {
		return Info{}, fmt.Errorf("info %q: want status,errors,rfid", s)
	}
	status, err := ParseBoardStatus(s[:first])
	if err != nil {
		return Info{}, err
	}
	rfid, err := ParseRFIDNumber(s[last+1:])
	if err != nil {
		return Info{}, err
	}
	return Info{Status: status, Errors: ParseErrorFlags(s[first+1 : last]), RFID: rfid}, nil
}

func infoFromRecord(r field.Record) Info {
	return Info{
		Status: BoardStatus(r.Uint(FieldStatus)),
		Errors: ErrorFlags(r.Uint(FieldErrors)),
		RFID:   RFIDNumber(r.Uint(FieldRFID)),
	}
}

// RFIDData is the content of the product card.
type RFIDData struct {
	Magic        uint16 `json:"magic" yaml:"magic"`
	LacteID      uint16 `json:"lacte_id" yaml:"lacte_id"`
	LacteSN      uint32 `json:"lacte_sn" yaml:"lacte_sn"`
	Reserve      uint16 `json:"reserve" yaml:"reserve"`
	Volume       uint16 `json:"volume" yaml:"volume"`
	ProdDate     uint32 `json:"prod_date" yaml:"prod_date"` // unix time
	ShelfLife    uint32 `json:"shelf_life" yaml:"shelf_life"`
	UsageTime    uint32 `json:"usage_time" yaml:"usage_time"`
	McuUID       UID    `json:"mcu_uid" yaml:"mcu_uid"`
	MachineSN    uint32 `json:"machine_sn" yaml:"machine_sn"`
	Activation   uint32 `json:"activation" yaml:"activation"`
	DrinkCounter uint32 `json:"drink_counter" yaml:"drink_counter"`
	TimeCounter  uint32 `json:"time_counter" yaml:"time_counter"`
}

// PacketType implements Packet.
func (RFIDData) PacketType() PacketType { return PacketRFIDData }

// Record implements Packet.
func (d RFIDData) Record() field.Record {
	return field.Record{
		field.U(FieldMagic, uint64(d.Magic)),
		field.U(FieldLacteID, uint64(d.LacteID)),
		field.U(FieldLacteSN, uint64(d.LacteSN)),
		field.U(FieldReserve, uint64(d.Reserve)),
		field.U(FieldVolume, uint64(d.Volume)),
		field.U(FieldProdDate, uint64(d.ProdDate)),
		field.U(FieldShelfLife, uint64(d.ShelfLife)),
		field.U(FieldUsageTime, uint64(d.UsageTime)),
		field.B(FieldMcuUID, d.McuUID[:]),
		field.U(FieldMachineSN, uint64(d.MachineSN)),
		field.U(FieldActivation, uint64(d.Activation)),
		field.U(FieldDrinkCounter, uint64(d.DrinkCounter)),
		field.U(FieldTimeCounter, uint64(d.TimeCounter)),
	}
}

func rfidDataFromRecord(r field.Record) RFIDData {
	d := RFIDData{
		Magic:        uint16(r.Uint(FieldMagic)),
		LacteID:      uint16(r.Uint(FieldLacteID)),
		LacteSN:      uint32(r.Uint(FieldLacteSN)),
		Reserve:      uint16(r.Uint(FieldReserve)),
		Volume:       uint16(r.Uint(FieldVolume)),
		ProdDate:     uint32(r.Uint(FieldProdDate)),
		ShelfLife:    uint32(r.Uint(FieldShelfLife)),
		UsageTime:    uint32(r.Uint(FieldUsageTime)),
		MachineSN:    uint32(r.Uint(FieldMachineSN)),
		Activation:   uint32(r.Uint(FieldActivation)),
		DrinkCounter: uint32(r.Uint(FieldDrinkCounter)),
		TimeCounter:  uint32(r.Uint(FieldTimeCounter)),
	}
	copy(d.McuUID[:], r.Bytes(FieldMcuUID))
	return d
}

// PacketType implements Packet.
func (BootAnswer) PacketType() PacketType { return PacketRestart }

// Record implements Packet.
func (b BootAnswer) Record() field.Record {
	return field.Record{field.U(FieldBoot, uint64(b))}
}

// RawPacket is an answer carried as raw data: SET_PARAMS and GET_PARAMS.
type RawPacket struct {
	Data []byte
	Type PacketType
}

// PacketType implements Packet.
func (p RawPacket) PacketType() PacketType { return p.Type }

// Record implements Packet.
func (p RawPacket) Record() field.Record {
	return field.Record{field.B(FieldData, p.Data)}
}
