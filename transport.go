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

package protolib

import (
	"context"
	"fmt"
	"time"

	"github.com/ZaparooProject/go-protolib/internal/syncutil"
)

// Transport is a raw byte channel to a board. Receive is not frame
// aligned: one frame may span several calls and one call may carry
// several frames.
type Transport interface {
	// Send writes p and returns the number of bytes written.
	Send(p []byte) (int, error)
	// Receive reads up to len(p) bytes. Zero bytes with a nil error means
	// the read timeout passed with nothing on the line.
	Receive(p []byte) (int, error)
	Close() error
	// SetTimeout sets how long Receive waits.
	SetTimeout(timeout time.Duration) error
	IsConnected() bool
	Type() TransportType
}

// TransportType names a transport implementation.
type TransportType string

const (
	TransportUART     TransportType = "uart"
	TransportLoopback TransportType = "loopback"
	TransportMock     TransportType = "mock"
)

// TransportCapability is an optional feature a transport may offer.
type TransportCapability string

// CapabilityModemLines means the transport drives DTR and RTS. Boards
// often wire those to reset and boot select.
const CapabilityModemLines TransportCapability = "modem_lines"

// TransportCapabilityChecker is implemented by transports with optional
// features.
type TransportCapabilityChecker interface {
	HasCapability(capability TransportCapability) bool
}

// ModemLines is implemented by transports reporting CapabilityModemLines.
type ModemLines interface {
	SetDTR(level bool) error
	SetRTS(level bool) error
}

// HasCapability reports whether t advertises capability.
func HasCapability(t Transport, capability TransportCapability) bool {
	c, ok := t.(TransportCapabilityChecker)
	return ok && c.HasCapability(capability)
}

// TransportWithRetry resends after short writes and transient send
// errors. Reads pass straight through since a quiet line is reported as
// zero bytes rather than an error.
type TransportWithRetry struct {
	Transport
	config *RetryConfig
	mu     syncutil.RWMutex
}

// NewTransportWithRetry wraps t. A nil config means DefaultRetryConfig.
func NewTransportWithRetry(t Transport, config *RetryConfig) *TransportWithRetry {
	if config == nil {
		config = DefaultRetryConfig()
	}
	return &TransportWithRetry{Transport: t, config: config}
}

// Send writes all of p, resuming a partial write where it stopped.
func (t *TransportWithRetry) Send(p []byte) (int, error) {
	t.mu.RLock()
	cfg := t.config
	t.mu.RUnlock()

	sent := 0
	err := RetryWithConfig(context.Background(), cfg, func() error {
		n, err := t.Transport.Send(p[sent:])
		sent += n
		switch {
		case err != nil:
			return &TransportError{Op: "Send", Err: err, Type: GetErrorType(err), Retryable: IsRetryable(err)}
		case sent < len(p):
			return NewTransportWriteError("Send", fmt.Sprintf("%d/%d bytes", sent, len(p)))
		default:
			return nil
		}
	})
	return sent, err
}

// HasCapability reports the wrapped transport's capabilities.
func (t *TransportWithRetry) HasCapability(capability TransportCapability) bool {
	return HasCapability(t.Transport, capability)
}

// SetDTR drives DTR on the wrapped transport.
func (t *TransportWithRetry) SetDTR(level bool) error {
	m, err := t.modemLines()
	if err != nil {
		return err
	}
	return m.SetDTR(level)
}

// SetRTS drives RTS on the wrapped transport.
func (t *TransportWithRetry) SetRTS(level bool) error {
	m, err := t.modemLines()
	if err != nil {
		return err
	}
	return m.SetRTS(level)
}

func (t *TransportWithRetry) modemLines() (ModemLines, error) {
	m, ok := t.Transport.(ModemLines)
	if !ok {
		return nil, fmt.Errorf("%w: %s has no modem lines", ErrInvalidParameter, t.Type())
	}
	return m, nil
}

// Unwrap returns the wrapped transport.
func (t *TransportWithRetry) Unwrap() Transport {
	return t.Transport
}

// SetRetryConfig replaces the send policy.
func (t *TransportWithRetry) SetRetryConfig(config *RetryConfig) {
	t.mu.Lock()
	t.config = config
	t.mu.Unlock()
}
