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

package ymodem

import (
	"context"
	"fmt"
	"time"

	protolib "github.com/ZaparooProject/go-protolib"
	"github.com/ZaparooProject/go-protolib/container"
)

// link reads bytes from a transport with deadlines, keeping what was read
// but not yet used.
type link struct {
	t     protolib.Transport
	buf   *container.Buffer
	trace *protolib.TraceBuffer
}

func newLink(t protolib.Transport) *link {
	buf, _ := container.New(2 * (BlockSize + overhead))
	return &link{
		t:     t,
		buf:   buf,
		trace: protolib.NewTraceBuffer(string(t.Type()), "ymodem", 32),
	}
}

func (l *link) write(ctx context.Context, p []byte, note string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.trace.RecordTX(p, note)
	for sent := 0; sent < len(p); {
		n, err := l.t.Send(p[sent:])
		if err != nil {
			return fmt.Errorf("ymodem send %s: %w", note, err)
		}
		if n == 0 {
			return fmt.Errorf("ymodem send %s: %w", note, protolib.ErrTransportWrite)
		}
		sent += n
	}
	return nil
}

// fill reads once from the transport into the buffer.
func (l *link) fill() error {
	l.buf.Compact()
	scratch := container.GetBuffer(l.buf.Available())
	defer container.PutBuffer(scratch)

	n, err := l.t.Receive(scratch)
	if err != nil {
		return fmt.Errorf("ymodem receive: %w", err)
	}
	if n > 0 {
		l.trace.RecordRX(scratch[:n], "")
		_, _ = l.buf.Write(scratch[:n])
	}
	return nil
}

// readByte returns the next byte. ok is false when nothing arrived
// before the timeout.
func (l *link) readByte(ctx context.Context, timeout time.Duration) (c byte, ok bool, err error) {
	deadline := time.Now().Add(timeout)
	for l.buf.Readable() == 0 {
		if err := ctx.Err(); err != nil {
			return 0, false, err
		}
		if time.Now().After(deadline) {
			return 0, false, nil
		}
		if err := l.fill(); err != nil {
			return 0, false, err
		}
	}
	p, _ := l.buf.Peek(1)
	c = p[0]
	_ = l.buf.Consume(1)
	return c, true, nil
}

// readFull returns the next n bytes. ok is false when they did not all
// arrive before the timeout.
func (l *link) readFull(ctx context.Context, n int, timeout time.Duration) (p []byte, ok bool, err error) {
	deadline := time.Now().Add(timeout)
	for l.buf.Readable() < n {
		if err := ctx.Err(); err != nil {
			return nil, false, err
		}
		if time.Now().After(deadline) {
			return nil, false, nil
		}
		if err := l.fill(); err != nil {
			return nil, false, err
		}
	}
	peek, _ := l.buf.Peek(n)
	p = append([]byte(nil), peek...)
	_ = l.buf.Consume(n)
	return p, true, nil
}

// flush drops everything buffered.
func (l *link) flush() {
	l.buf.Reset()
}
