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

// Package loopback provides an in-memory pair of connected transports.
// Bytes sent on one end are received on the other, which lets a host and a
// virtual board run in one process.
package loopback

import (
	"sync"
	"time"

	protolib "github.com/ZaparooProject/go-protolib"
	"github.com/ZaparooProject/go-protolib/internal/syncutil"
)

const defaultTimeout = 50 * time.Millisecond

// pipe carries bytes in one direction.
type pipe struct {
	notify chan struct{}
	buf    []byte
	mu     syncutil.Mutex
}

func newPipe() *pipe {
	return &pipe{notify: make(chan struct{}, 1)}
}

func (p *pipe) write(b []byte) {
	p.mu.Lock()
	p.buf = append(p.buf, b...)
	p.mu.Unlock()
	select {
	case p.notify <- struct{}{}:
	default:
	}
}

func (p *pipe) read(b []byte) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := copy(b, p.buf)
	p.buf = p.buf[n:]
	if len(p.buf) > 0 {
		select {
		case p.notify <- struct{}{}:
		default:
		}
	}
	return n
}

// link is the state both ends share.
type link struct {
	closed chan struct{}
	once   sync.Once
}

func (l *link) close() {
	l.once.Do(func() { close(l.closed) })
}

func (l *link) isClosed() bool {
	select {
	case <-l.closed:
		return true
	default:
		return false
	}
}

// Transport is one end of a loopback pair. Closing either end closes both.
type Transport struct {
	rx      *pipe
	tx      *pipe
	link    *link
	name    string
	timeout time.Duration
	mu      syncutil.RWMutex
}

// Pair returns two connected ends.
func Pair() (a, b *Transport) {
	ab, ba := newPipe(), newPipe()
	l := &link{closed: make(chan struct{})}
	a = &Transport{rx: ba, tx: ab, link: l, name: "loopback-a", timeout: defaultTimeout}
	b = &Transport{rx: ab, tx: ba, link: l, name: "loopback-b", timeout: defaultTimeout}
	return a, b
}

// Send implements protolib.Transport.
func (t *Transport) Send(p []byte) (int, error) {
	if t.link.isClosed() {
		return 0, protolib.NewTransportClosedError("Send", t.name)
	}
	t.tx.write(p)
	return len(p), nil
}

// Receive implements protolib.Transport. It returns 0 and a nil error
// when nothing arrives within the timeout.
func (t *Transport) Receive(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if n := t.rx.read(p); n > 0 {
		return n, nil
	}

	t.mu.RLock()
	timeout := t.timeout
	t.mu.RUnlock()
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-t.rx.notify:
		return t.rx.read(p), nil
	case <-t.link.closed:
		return 0, protolib.NewTransportClosedError("Receive", t.name)
	case <-timer.C:
		return 0, nil
	}
}

// Close closes both ends.
func (t *Transport) Close() error {
	t.link.close()
	return nil
}

// SetTimeout sets the read timeout.
func (t *Transport) SetTimeout(timeout time.Duration) error {
	if timeout <= 0 {
		return protolib.NewTransportError("SetTimeout", t.name, protolib.ErrInvalidParameter, protolib.ErrorTypePermanent)
	}
	t.mu.Lock()
	t.timeout = timeout
	t.mu.Unlock()
	return nil
}

// IsConnected reports whether the pair is still open.
func (t *Transport) IsConnected() bool {
	return !t.link.isClosed()
}

// Type implements protolib.Transport.
func (*Transport) Type() protolib.TransportType {
	return protolib.TransportLoopback
}
