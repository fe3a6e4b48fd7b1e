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
	"context"
	"slices"
	"time"

	protolib "github.com/ZaparooProject/go-protolib"
	"github.com/ZaparooProject/go-protolib/internal/syncutil"
	"github.com/ZaparooProject/go-protolib/protocol"
)

// BoardState is everything a VirtualBoard reports.
type BoardState struct {
	Info       Info       `json:"info" yaml:"info"`
	Version    Version    `json:"version" yaml:"version"`
	UID        UID        `json:"uid" yaml:"uid"`
	RFID       RFIDNumber `json:"rfid" yaml:"rfid"`
	RFIDData   RFIDData   `json:"rfid_data" yaml:"rfid_data"`
	BootAnswer BootAnswer `json:"boot_answer" yaml:"boot_answer"`
}

// DefaultBoardState returns the state of a fresh VirtualBoard.
func DefaultBoardState() BoardState {
	return BoardState{
		Version: Version{Major: 1, Minor: 0},
		Info:    Info{Status: StatusIdle, RFID: DefaultRFID},
		UID:     UID{0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0A, 0x0B},
		RFID:    DefaultRFID,
		RFIDData: RFIDData{
			Magic:        DefaultMagic,
			LacteSN:      DefaultLacteSN,
			ProdDate:     0x01102320,
			McuUID:       UID{0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0A, 0x0B},
			MachineSN:    0x44332211,
			Activation:   0x02010501,
			DrinkCounter: 0x30040506,
			TimeCounter:  0x11223344,
		},
		BootAnswer: BootNo,
	}
}

// VirtualBoard simulates a lacte board on a transport. It answers every
// host request from its state. GET_PARAMS is answered only for parameters
// set with SetParam; SET_PARAMS is acknowledged by echoing its data.
type VirtualBoard struct {
	board    *Board
	params   map[Param][]byte
	requests map[PacketType]int
	lastTime time.Time
	state    BoardState
	mu       syncutil.Mutex
}

// NewVirtualBoard creates a virtual board on t with the default state.
func NewVirtualBoard(t protolib.Transport, opts ...protocol.EndpointOption) (*VirtualBoard, error) {
	vb := &VirtualBoard{
		state:    DefaultBoardState(),
		params:   make(map[Param][]byte),
		requests: make(map[PacketType]int),
	}
	board, err := NewBoard(t, vb.handle, opts...)
	if err != nil {
		return nil, err
	}
	vb.board = board
	return vb, nil
}

// Run serves requests until ctx is cancelled or the transport fails.
func (vb *VirtualBoard) Run(ctx context.Context) error {
	return vb.board.Run(ctx)
}

// Close closes the transport.
func (vb *VirtualBoard) Close() error {
	return vb.board.Close()
}

// Endpoint returns the underlying endpoint.
func (vb *VirtualBoard) Endpoint() *protocol.Endpoint {
	return vb.board.Endpoint()
}

func (vb *VirtualBoard) handle(req Request) {
	vb.mu.Lock()
	vb.requests[req.Type]++
	vb.lastTime = req.Time
	st := vb.state
	var answer Packet
	switch req.Type {
	case PacketInfo:
		answer = st.Info
	case PacketVersion:
		answer = st.Version
	case PacketUID:
		answer = st.UID
	case PacketRFID:
		answer = st.RFID
	case PacketRFIDData:
		answer = st.RFIDData
	case PacketRestart:
		answer = st.BootAnswer
	case PacketSetParams:
		answer = RawPacket{Type: PacketSetParams, Data: slices.Clone(req.Data)}
	case PacketGetParams:
		if value, ok := vb.params[req.Param]; ok {
			data := append([]byte{byte(req.Param)}, value...)
			answer = RawPacket{Type: PacketGetParams, Data: data}
		}
	}
	vb.mu.Unlock()

	if answer == nil {
		protolib.Debugf("virtual board: no answer for %s", req.Type)
		return
	}
	if err := vb.board.Answer(context.Background(), answer); err != nil {
		protolib.Debugf("virtual board: answer %s: %v", req.Type, err)
	}
}

// State returns a copy of the board state.
func (vb *VirtualBoard) State() BoardState {
	vb.mu.Lock()
	defer vb.mu.Unlock()
	return vb.state
}

// RequestCount returns how many requests of type t were served.
func (vb *VirtualBoard) RequestCount(t PacketType) int {
	vb.mu.Lock()
	defer vb.mu.Unlock()
	return vb.requests[t]
}

// LastRequestTime returns the time stamp of the latest request.
func (vb *VirtualBoard) LastRequestTime() time.Time {
	vb.mu.Lock()
	defer vb.mu.Unlock()
	return vb.lastTime
}

func (vb *VirtualBoard) update(fn func(*BoardState)) {
	vb.mu.Lock()
	fn(&vb.state)
	vb.mu.Unlock()
}

// SetState replaces the whole state.
func (vb *VirtualBoard) SetState(s BoardState) { vb.update(func(st *BoardState) { *st = s }) }

// SetVersion sets the firmware version.
func (vb *VirtualBoard) SetVersion(v Version) { vb.update(func(st *BoardState) { st.Version = v }) }

// SetInfo sets the status report.
func (vb *VirtualBoard) SetInfo(i Info) { vb.update(func(st *BoardState) { st.Info = i }) }

// SetStatus sets the status in the report.
func (vb *VirtualBoard) SetStatus(s BoardStatus) { vb.update(func(st *BoardState) { st.Info.Status = s }) }

// SetErrors sets the error flags in the report.
func (vb *VirtualBoard) SetErrors(f ErrorFlags) { vb.update(func(st *BoardState) { st.Info.Errors = f }) }

// SetUID sets the MCU identifier.
func (vb *VirtualBoard) SetUID(u UID) { vb.update(func(st *BoardState) { st.UID = u }) }

// SetRFID sets the card number. The status report follows it.
func (vb *VirtualBoard) SetRFID(n RFIDNumber) {
	vb.update(func(st *BoardState) {
		st.RFID = n
		st.Info.RFID = n
	})
}

// SetRFIDData sets the whole product card.
func (vb *VirtualBoard) SetRFIDData(d RFIDData) { vb.update(func(st *BoardState) { st.RFIDData = d }) }

// SetMagic sets the card magic word.
func (vb *VirtualBoard) SetMagic(v uint16) { vb.update(func(st *BoardState) { st.RFIDData.Magic = v }) }

// SetLacteID sets the product id.
func (vb *VirtualBoard) SetLacteID(v uint16) { vb.update(func(st *BoardState) { st.RFIDData.LacteID = v }) }

// SetLacteSN sets the product pack serial number.
func (vb *VirtualBoard) SetLacteSN(v uint32) { vb.update(func(st *BoardState) { st.RFIDData.LacteSN = v }) }

// SetVolume sets the product volume.
func (vb *VirtualBoard) SetVolume(v uint16) { vb.update(func(st *BoardState) { st.RFIDData.Volume = v }) }

// SetProdDate sets the production date.
func (vb *VirtualBoard) SetProdDate(v uint32) { vb.update(func(st *BoardState) { st.RFIDData.ProdDate = v }) }

// SetShelfLife sets the product shelf life.
func (vb *VirtualBoard) SetShelfLife(v uint32) { vb.update(func(st *BoardState) { st.RFIDData.ShelfLife = v }) }

// SetUsageTime sets the product usage time.
func (vb *VirtualBoard) SetUsageTime(v uint32) { vb.update(func(st *BoardState) { st.RFIDData.UsageTime = v }) }

// SetMcuUID sets the board serial stored on the card.
func (vb *VirtualBoard) SetMcuUID(u UID) { vb.update(func(st *BoardState) { st.RFIDData.McuUID = u }) }

// SetMachineSN sets the machine serial number.
func (vb *VirtualBoard) SetMachineSN(v uint32) { vb.update(func(st *BoardState) { st.RFIDData.MachineSN = v }) }

// SetActivation sets the activation time.
func (vb *VirtualBoard) SetActivation(v uint32) { vb.update(func(st *BoardState) { st.RFIDData.Activation = v }) }

// SetDrinkCounter sets the drink counter.
func (vb *VirtualBoard) SetDrinkCounter(v uint32) {
	vb.update(func(st *BoardState) { st.RFIDData.DrinkCounter = v })
}

// SetTimeCounter sets the time counter.
func (vb *VirtualBoard) SetTimeCounter(v uint32) {
	vb.update(func(st *BoardState) { st.RFIDData.TimeCounter = v })
}

// SetBootAnswer sets the reply to RESTART.
func (vb *VirtualBoard) SetBootAnswer(b BootAnswer) { vb.update(func(st *BoardState) { st.BootAnswer = b }) }

// SetParam makes GET_PARAMS for p answer with value.
func (vb *VirtualBoard) SetParam(p Param, value []byte) {
	vb.mu.Lock()
	vb.params[p] = slices.Clone(value)
	vb.mu.Unlock()
}
