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

// Package uart implements protolib.Transport over a serial port.
package uart

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"go.bug.st/serial"

	protolib "github.com/ZaparooProject/go-protolib"
	"github.com/ZaparooProject/go-protolib/internal/syncutil"
)

// Port is the part of serial.Port the transport uses.
type Port interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Drain() error
	ResetInputBuffer() error
	SetReadTimeout(t time.Duration) error
	SetDTR(dtr bool) error
	SetRTS(rts bool) error
	Close() error
}

var _ Port = serial.Port(nil)

// Transport is a protolib.Transport on a serial port. It reports
// CapabilityModemLines.
type Transport struct {
	port     Port
	portName string
	mu       syncutil.Mutex
	closed   bool
}

// Option configures the serial mode.
type Option func(*serial.Mode, *time.Duration)

// WithBaudRate sets the line speed.
func WithBaudRate(baud int) Option {
	return func(m *serial.Mode, _ *time.Duration) {
		if baud > 0 {
			m.BaudRate = baud
		}
	}
}

// WithReadTimeout sets how long Receive waits for data.
func WithReadTimeout(d time.Duration) Option {
	return func(_ *serial.Mode, t *time.Duration) {
		if d > 0 {
			*t = d
		}
	}
}

func isWindows() bool {
	return runtime.GOOS == "windows"
}

// defaultReadTimeout returns the platform read timeout. Windows drivers
// need longer.
func defaultReadTimeout() time.Duration {
	if isWindows() {
		return 2 * protolib.DefaultReadTimeout
	}
	return protolib.DefaultReadTimeout
}

// windowsPostWriteDelay gives Windows drivers time to flush after a write.
func windowsPostWriteDelay() {
	if isWindows() {
		time.Sleep(15 * time.Millisecond)
	}
}

// New opens portName at 115200 8N1 unless options say otherwise.
func New(portName string, opts ...Option) (*Transport, error) {
	mode := &serial.Mode{
		BaudRate: protolib.DefaultBaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	timeout := defaultReadTimeout()
	for _, opt := range opts {
		opt(mode, &timeout)
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("uart open %s: %w", portName, err)
	}
	if err := port.SetReadTimeout(timeout); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("uart %s read timeout: %w", portName, err)
	}
	protolib.Debugf("uart: opened %s at %d baud", portName, mode.BaudRate)
	return NewFromPort(port, portName), nil
}

// NewFromPort wraps an already open port.
func NewFromPort(port Port, portName string) *Transport {
	return &Transport{port: port, portName: portName}
}

// Name returns the port name.
func (t *Transport) Name() string {
	return t.portName
}

// Send writes p and waits for it to leave the output buffer.
func (t *Transport) Send(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return 0, protolib.NewTransportClosedError("Send", t.portName)
	}

	written := 0
	for written < len(p) {
		n, err := t.port.Write(p[written:])
		written += n
		if err != nil {
			return written, t.wrap("Send", err)
		}
		if n == 0 {
			return written, protolib.NewTransportWriteError("Send", t.portName)
		}
	}
	if err := t.drainWithRetry("send"); err != nil {
		return written, err
	}
	windowsPostWriteDelay()
	return written, nil
}

// Receive reads whatever arrived, up to len(p). It returns 0 and a nil
// error when the read timeout expires.
func (t *Transport) Receive(p []byte) (int, error) {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return 0, protolib.NewTransportClosedError("Receive", t.portName)
	}

	n, err := t.port.Read(p)
	if err != nil {
		if isInterruptedSystemCall(err) {
			return n, nil
		}
		var portErr *serial.PortError
		if errors.As(err, &portErr) && portErr.Code() == serial.PortClosed {
			return n, protolib.NewTransportClosedError("Receive", t.portName)
		}
		return n, t.wrap("Receive", err)
	}
	return n, nil
}

func (t *Transport) wrap(op string, err error) error {
	return protolib.NewTransportError(op, t.portName, err, protolib.GetErrorType(err))
}

// Flush discards unread input.
func (t *Transport) Flush() error {
	return t.locked("flush", t.port.ResetInputBuffer)
}

// SetTimeout changes how long Receive waits.
func (t *Transport) SetTimeout(timeout time.Duration) error {
	return t.locked("set timeout", func() error { return t.port.SetReadTimeout(timeout) })
}

// SetDTR drives the DTR line.
func (t *Transport) SetDTR(level bool) error {
	return t.locked("set DTR", func() error { return t.port.SetDTR(level) })
}

// SetRTS drives the RTS line.
func (t *Transport) SetRTS(level bool) error {
	return t.locked("set RTS", func() error { return t.port.SetRTS(level) })
}

func (t *Transport) locked(op string, fn func() error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := fn(); err != nil {
		return fmt.Errorf("uart %s %s: %w", t.portName, op, err)
	}
	return nil
}

// Close closes the transport connection. Closing twice is a no-op.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed || t.port == nil {
		return nil
	}
	t.closed = true
	if err := t.port.Close(); err != nil {
		return fmt.Errorf("uart %s close: %w", t.portName, err)
	}
	return nil
}

// IsConnected reports whether the port is open.
func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.port != nil && !t.closed
}

// Type returns protolib.TransportUART.
func (*Transport) Type() protolib.TransportType {
	return protolib.TransportUART
}

// HasCapability implements protolib.TransportCapabilityChecker.
func (*Transport) HasCapability(capability protolib.TransportCapability) bool {
	return capability == protolib.CapabilityModemLines
}

// isInterruptedSystemCall matches EINTR, including drivers that only
// report it as text.
func isInterruptedSystemCall(err error) bool {
	if err == nil {
		return false
	}
	if isInterrupted(err) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "interrupted system call") || strings.Contains(msg, "eintr")
}

// drainWithRetry waits for the output buffer to empty. An interrupted
// drain is tried again with a doubling pause starting at 2ms.
func (t *Transport) drainWithRetry(op string) error {
	err := protolib.RetryWithConfig(context.Background(), &protolib.RetryConfig{
		ShouldRetry:       isInterruptedSystemCall,
		MaxAttempts:       protolib.TransportDrainRetries,
		InitialBackoff:    2 * time.Millisecond,
		BackoffMultiplier: 2,
	}, t.port.Drain)
	if err != nil {
		return fmt.Errorf("%w: uart %s drain: %w", protolib.ErrTransportWrite, op, err)
	}
	return nil
}
