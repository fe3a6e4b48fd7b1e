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
	"time"

	protolib "github.com/ZaparooProject/go-protolib"
	"github.com/ZaparooProject/go-protolib/field"
	"github.com/ZaparooProject/go-protolib/protocol"
)

// Request is a decoded host request as seen by a board.
type Request struct {
	Time  time.Time
	Data  []byte
	Type  PacketType
	Param Param
}

func requestFromMessage(m protocol.Message) Request {
	return Request{
		Type:  PacketType(m.Type),
		Time:  time.Unix(int64(m.Header.Uint(FieldTime)), 0),
		Param: Param(m.Fields.Uint(FieldParam)),
		Data:  m.Fields.Bytes(FieldData),
	}
}

// Board is the board side of the protocol: it decodes host requests and
// sends answers.
type Board struct {
	ep *protocol.Endpoint
}

// NewBoard creates a board on t. handle is called for every request on
// the endpoint's dispatcher goroutine.
func NewBoard(t protolib.Transport, handle func(Request), opts ...protocol.EndpointOption) (*Board, error) {
	opts = append(opts, protocol.WithHandler(func(m protocol.Message) {
		handle(requestFromMessage(m))
	}))
	ep, err := protocol.NewEndpoint(t, HostCodec(), BoardCodec(), opts...)
	if err != nil {
		return nil, err
	}
	return &Board{ep: ep}, nil
}

// Run serves requests until ctx is cancelled or the transport fails.
func (b *Board) Run(ctx context.Context) error {
	return b.ep.Run(ctx)
}

// Close closes the transport.
func (b *Board) Close() error {
	return b.ep.Close()
}

// Endpoint returns the underlying endpoint.
func (b *Board) Endpoint() *protocol.Endpoint {
	return b.ep
}

// Answer sends p to the host.
func (b *Board) Answer(ctx context.Context, p Packet) error {
	return b.ep.Send(ctx, protocol.Message{Type: uint64(p.PacketType()), Fields: p.Record()})
}

// AnswerParam answers GET_PARAMS with the parameter number followed by
// its value.
func (b *Board) AnswerParam(ctx context.Context, p Param, value []byte) error {
	data := make([]byte, 0, 1+len(value))
	data = append(data, byte(p))
	data = append(data, value...)
	return b.ep.Send(ctx, protocol.Message{
		Type:   uint64(PacketGetParams),
		Fields: field.Record{field.B(FieldData, data)},
	})
}
