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
	"fmt"
	"time"

	protolib "github.com/ZaparooProject/go-protolib"
	"github.com/ZaparooProject/go-protolib/field"
	"github.com/ZaparooProject/go-protolib/internal/syncutil"
	"github.com/ZaparooProject/go-protolib/protocol"
)

// Host talks to a lacte board. Requests are serialized: each one stamps
// the current time, waits for the answer of the same type and is retried
// on transient failures.
type Host struct {
	ep     *protocol.Endpoint
	retry  *protolib.RetryConfig
	now    func() time.Time
	epOpts []protocol.EndpointOption
	mu     syncutil.Mutex
}

// HostOption configures a Host.
type HostOption func(*Host)

// WithRetryConfig replaces the request retry policy.
func WithRetryConfig(cfg *protolib.RetryConfig) HostOption {
	return func(h *Host) { h.retry = cfg }
}

// WithClock replaces the time source used for request stamps.
func WithClock(now func() time.Time) HostOption {
	return func(h *Host) { h.now = now }
}

// WithEndpointOptions passes options to the underlying endpoint.
func WithEndpointOptions(opts ...protocol.EndpointOption) HostOption {
	return func(h *Host) { h.epOpts = append(h.epOpts, opts...) }
}

// NewHost creates a host on t. Call Run before sending requests.
func NewHost(t protolib.Transport, opts ...HostOption) (*Host, error) {
	h := &Host{
		retry: protolib.DefaultRetryConfig(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	ep, err := protocol.NewEndpoint(t, BoardCodec(), HostCodec(), h.epOpts...)
	if err != nil {
		return nil, err
	}
	h.ep = ep
	return h, nil
}

// Run reads answers until ctx is cancelled or the transport fails.
func (h *Host) Run(ctx context.Context) error {
	return h.ep.Run(ctx)
}

// Close closes the transport.
func (h *Host) Close() error {
	return h.ep.Close()
}

// Endpoint returns the underlying endpoint.
func (h *Host) Endpoint() *protocol.Endpoint {
	return h.ep
}

func (h *Host) request(
	ctx context.Context, typ PacketType, fields field.Record, match func(protocol.Message) bool,
) (protocol.Message, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if match == nil {
		match = func(m protocol.Message) bool { return m.Type == uint64(typ) }
	}

	var answer protocol.Message
	err := protolib.RetryWithConfig(ctx, h.retry, func() error {
		msg := protocol.Message{
			Type:   uint64(typ),
			Header: field.Record{field.U(FieldTime, uint64(uint32(h.now().Unix())))},
			Fields: fields,
		}
		var err error
		answer, err = h.ep.Request(ctx, msg, match)
		return err
	})
	if err != nil {
		return protocol.Message{}, fmt.Errorf("%s: %w", typ, err)
	}
	protolib.Debugf("lacte %s answered: %s", typ, protolib.FormatHex(answer.Payload))
	return answer, nil
}

// GetInfo requests the board status.
func (h *Host) GetInfo(ctx context.Context) (Info, error) {
	m, err := h.request(ctx, PacketInfo, nil, nil)
	if err != nil {
		return Info{}, err
	}
	return infoFromRecord(m.Fields), nil
}

// GetVersion requests the firmware version.
func (h *Host) GetVersion(ctx context.Context) (Version, error) {
	m, err := h.request(ctx, PacketVersion, nil, nil)
	if err != nil {
		return Version{}, err
	}
	return versionFromRecord(m.Fields), nil
}

// GetUID requests the MCU identifier.
func (h *Host) GetUID(ctx context.Context) (UID, error) {
	m, err := h.request(ctx, PacketUID, nil, nil)
	if err != nil {
		return UID{}, err
	}
	var uid UID
	copy(uid[:], m.Fields.Bytes(FieldUID))
	return uid, nil
}

// GetRFID requests the number of the card in the reader.
func (h *Host) GetRFID(ctx context.Context) (RFIDNumber, error) {
	m, err := h.request(ctx, PacketRFID, nil, nil)
	if err != nil {
		return 0, err
	}
	return RFIDNumber(m.Fields.Uint(FieldRFID)), nil
}

// GetRFIDData requests the product card content.
func (h *Host) GetRFIDData(ctx context.Context) (RFIDData, error) {
	m, err := h.request(ctx, PacketRFIDData, nil, nil)
	if err != nil {
		return RFIDData{}, err
	}
	return rfidDataFromRecord(m.Fields), nil
}

// Restart asks the board to restart, passing data to its bootloader.
func (h *Host) Restart(ctx context.Context, data []byte) (BootAnswer, error) {
	m, err := h.request(ctx, PacketRestart, field.Record{field.B(FieldData, data)}, nil)
	if err != nil {
		return 0, err
	}
	return BootAnswer(m.Fields.Uint(FieldBoot)), nil
}

// GetParam reads one board parameter. The answer carries the parameter
// number followed by its value; the value is returned.
func (h *Host) GetParam(ctx context.Context, p Param) ([]byte, error) {
	m, err := h.request(ctx, PacketGetParams, field.Record{field.U(FieldParam, uint64(p))},
		func(m protocol.Message) bool {
			data := m.Fields.Bytes(FieldData)
			return m.Type == uint64(PacketGetParams) && len(data) > 0 && data[0] == byte(p)
		})
	if err != nil {
		return nil, err
	}
	return m.Fields.Bytes(FieldData)[1:], nil
}

// SetParams writes raw parameter data and returns the board's
// acknowledgement data.
func (h *Host) SetParams(ctx context.Context, raw []byte) ([]byte, error) {
	m, err := h.request(ctx, PacketSetParams, field.Record{field.B(FieldData, raw)}, nil)
	if err != nil {
		return nil, err
	}
	return m.Fields.Bytes(FieldData), nil
}
