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
	"slices"
	"time"

	"github.com/ZaparooProject/go-protolib/internal/syncutil"
)

// MockOp selects which MockTransport operation an injected error applies to.
type MockOp int

const (
	// MockOpSend targets Send.
	MockOpSend MockOp = iota
	// MockOpReceive targets Receive.
	MockOpReceive
)

// MockTransport provides a byte-stream Transport for testing. Bytes queued
// with QueueReceive, or produced by the responder for each Send, are
// handed out by Receive in arrival order.
type MockTransport struct {
	responder func(sent []byte) []byte
	errorMap  map[MockOp]error
	notify    chan struct{}
	closed    chan struct{}
	rx        []byte
	sent      []byte
	sendCount int
	timeout   time.Duration
	delay     time.Duration
	mu        syncutil.RWMutex
	connected bool
}

// NewMockTransport returns an open mock with the default read timeout.
func NewMockTransport() *MockTransport {
	return &MockTransport{
		connected: true,
		timeout:   DefaultReadTimeout,
		errorMap:  make(map[MockOp]error),
		notify:    make(chan struct{}, 1),
		closed:    make(chan struct{}),
	}
}

// Send implements Transport. It records p, then queues whatever the
// responder returns for it.
func (m *MockTransport) Send(p []byte) (int, error) {
	m.mu.RLock()
	connected := m.connected
	delay := m.delay
	m.mu.RUnlock()

	if !connected {
		return 0, NewTransportClosedError("Send", "mock")
	}
	if delay > 0 {
		time.Sleep(delay)
	}

	m.mu.Lock()
	m.sendCount++
	if err, exists := m.errorMap[MockOpSend]; exists {
		m.mu.Unlock()
		return 0, err
	}
	m.sent = append(m.sent, p...)
	responder := m.responder
	m.mu.Unlock()

	if responder != nil {
		if answer := responder(slices.Clone(p)); len(answer) > 0 {
			m.QueueReceive(answer)
		}
	}
	return len(p), nil
}

// Receive implements Transport. It waits up to the configured timeout for
// queued bytes and returns 0 with a nil error when none arrive.
func (m *MockTransport) Receive(p []byte) (int, error) {
	m.mu.RLock()
	timeout := m.timeout
	m.mu.RUnlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		m.mu.Lock()
		if !m.connected {
			m.mu.Unlock()
			return 0, NewTransportClosedError("Receive", "mock")
		}
		if err, exists := m.errorMap[MockOpReceive]; exists {
			m.mu.Unlock()
			return 0, err
		}
		if len(m.rx) > 0 {
			n := copy(p, m.rx)
			m.rx = m.rx[n:]
			m.mu.Unlock()
			return n, nil
		}
		m.mu.Unlock()

		select {
		case <-m.notify:
		case <-m.closed:
		case <-timer.C:
			return 0, nil
		}
	}
}

// Close wakes any waiting Receive. Closing twice is a no-op.
func (m *MockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.connected {
		m.connected = false
		close(m.closed)
	}
	return nil
}

func (m *MockTransport) SetTimeout(timeout time.Duration) error {
	m.mu.Lock()
	m.timeout = timeout
	m.mu.Unlock()
	return nil
}

func (m *MockTransport) IsConnected() bool {
	m.mu.RLock()
	connected := m.connected
	m.mu.RUnlock()
	return connected
}

func (*MockTransport) Type() TransportType {
	return TransportMock
}

// QueueReceive appends data to the bytes Receive will return.
func (m *MockTransport) QueueReceive(data []byte) {
	m.mu.Lock()
	m.rx = append(m.rx, data...)
	m.mu.Unlock()

	select {
	case m.notify <- struct{}{}:
	default:
	}
}

// SetResponder installs fn to produce the answer for every Send.
func (m *MockTransport) SetResponder(fn func(sent []byte) []byte) {
	m.mu.Lock()
	m.responder = fn
	m.mu.Unlock()
}

// SetError makes every later op fail with err until ClearError.
func (m *MockTransport) SetError(op MockOp, err error) {
	m.mu.Lock()
	m.errorMap[op] = err
	m.mu.Unlock()
}

// ClearError undoes SetError.
func (m *MockTransport) ClearError(op MockOp) {
	m.mu.Lock()
	delete(m.errorMap, op)
	m.mu.Unlock()
}

// SetDelay stalls every Send by delay, like a slow line.
func (m *MockTransport) SetDelay(delay time.Duration) {
	m.mu.Lock()
	m.delay = delay
	m.mu.Unlock()
}

// Sent returns a copy of every byte sent so far.
func (m *MockTransport) Sent() []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.sent)
}

// SendCount returns how many times Send was called.
func (m *MockTransport) SendCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sendCount
}

// Reset clears recorded traffic, queued input and injected errors.
// A closed mock stays closed.
func (m *MockTransport) Reset() {
	m.mu.Lock()
	m.rx = nil
	m.sent = nil
	m.sendCount = 0
	m.errorMap = make(map[MockOp]error)
	m.mu.Unlock()
}
