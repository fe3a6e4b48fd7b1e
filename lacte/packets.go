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

// Package lacte implements the lacte board protocol: the host and board
// frame layouts, typed packets, a host client, a board endpoint and a
// virtual board for tests and simulation.
package lacte

import (
	"fmt"
	"strings"
)

// PacketType identifies a request or answer.
type PacketType uint8

// Packet types
const (
	PacketInfo      PacketType = 0x00
	PacketVersion   PacketType = 0x01
	PacketUID       PacketType = 0x02
	PacketRFID      PacketType = 0x03
	PacketRFIDData  PacketType = 0x04
	PacketSetParams PacketType = 0x40
	PacketGetParams PacketType = 0x41
	PacketRestart   PacketType = 0x7F
)

var packetNames = map[PacketType]string{
	PacketInfo:      "INFO",
	PacketVersion:   "VERSION",
	PacketUID:       "UID",
	PacketRFID:      "RFID_ID",
	PacketRFIDData:  "RFID_DATA",
	PacketSetParams: "SET_PARAMS",
	PacketGetParams: "GET_PARAMS",
	PacketRestart:   "RESTART",
}

func (p PacketType) String() string {
	if name, ok := packetNames[p]; ok {
		return fmt.Sprintf("%s(0x%02X)", name, uint8(p))
	}
	return fmt.Sprintf("UNKNOWN(0x%02X)", uint8(p))
}

// PacketTypes returns every defined packet type in wire order.
func PacketTypes() []PacketType {
	return []PacketType{
		PacketInfo, PacketVersion, PacketUID, PacketRFID,
		PacketRFIDData, PacketSetParams, PacketGetParams, PacketRestart,
	}
}

// Known reports whether p is a defined packet type.
func (p PacketType) Known() bool {
	_, ok := packetNames[p]
	return ok
}

// Param selects a board parameter for GET_PARAMS.
type Param uint8

// Board parameters
const (
	Param1 Param = iota
	Param2
	Param3
	Param4
)

func (p Param) String() string {
	if p <= Param4 {
		return fmt.Sprintf("PARAM%d", uint8(p)+1)
	}
	return fmt.Sprintf("Param(%d)", uint8(p))
}

// BoardStatus is the board's operating state.
type BoardStatus uint8

// Board states
const (
	StatusIdle BoardStatus = iota
	StatusCalibration
	StatusError
	StatusReady
	StatusWork
)

var statusNames = []string{"IDLE", "CALIBRATION", "ERROR", "READY", "WORK"}

func (s BoardStatus) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("UNKNOWN(%d)", uint8(s))
}

// ParseBoardStatus parses a status name, case-insensitively.
func ParseBoardStatus(s string) (BoardStatus, error) {
	s = strings.TrimSpace(s)
	for i, name := range statusNames {
		if strings.EqualFold(s, name) {
			return BoardStatus(i), nil
		}
	}
	return 0, fmt.Errorf("unknown board status %q", s)
}

// BootAnswer is the board's reply to RESTART.
type BootAnswer uint8

// Boot answers
const (
	BootNo BootAnswer = iota
	BootYes
)

func (b BootAnswer) String() string {
	switch b {
	case BootNo:
		return "NO"
	case BootYes:
		return "YES"
	default:
		return fmt.Sprintf("BootAnswer(%d)", uint8(b))
	}
}

// MarshalText renders the status by name.
func (s BoardStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a status name.
func (s *BoardStatus) UnmarshalText(text []byte) error {
	v, err := ParseBoardStatus(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}
