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
	"errors"
	"fmt"
	"io"
	"runtime"
	"strings"
	"syscall"
	"time"
)

// Sentinel errors shared by transports, endpoints and the file transfer.
var (
	ErrTransportTimeout = errors.New("transport timeout")
	ErrTransportWrite   = errors.New("transport write failed")
	ErrTransportClosed  = errors.New("transport is closed")

	// ErrNoAnswer is returned when a request ran out of attempts.
	ErrNoAnswer = errors.New("no answer received")
	// ErrFrameCorrupted marks a frame dropped on a checksum or length error.
	ErrFrameCorrupted = errors.New("frame corrupted")

	ErrInvalidParameter = errors.New("invalid parameter")
)

// ErrorType sorts an error for retry decisions.
type ErrorType int

const (
	// ErrorTypeTransient may succeed if sent again.
	ErrorTypeTransient ErrorType = iota
	// ErrorTypePermanent will not succeed on retry.
	ErrorTypePermanent
	// ErrorTypeTimeout is a missed deadline.
	ErrorTypeTimeout
)

func (t ErrorType) String() string {
	switch t {
	case ErrorTypeTransient:
		return "transient"
	case ErrorTypePermanent:
		return "permanent"
	case ErrorTypeTimeout:
		return "timeout"
	default:
		return fmt.Sprintf("ErrorType(%d)", int(t))
	}
}

// TransportError carries the failed operation and the port it ran on.
type TransportError struct {
	Err       error
	Op        string
	Port      string
	Type      ErrorType
	Retryable bool
}

func (e *TransportError) Error() string {
	if e.Port == "" {
		return e.Op + ": " + e.Err.Error()
	}
	return e.Op + " " + e.Port + ": " + e.Err.Error()
}

func (e *TransportError) Unwrap() error { return e.Err }

// NewTransportError wraps err. Transient and timeout errors are retryable.
func NewTransportError(op, port string, err error, typ ErrorType) *TransportError {
	return &TransportError{
		Err:       err,
		Op:        op,
		Port:      port,
		Type:      typ,
		Retryable: typ != ErrorTypePermanent,
	}
}

// NewNoAnswerError reports a request whose answer never came.
func NewNoAnswerError(op, port string) *TransportError {
	return NewTransportError(op, port, ErrNoAnswer, ErrorTypeTimeout)
}

// NewTransportWriteError reports a short or failed write.
func NewTransportWriteError(op, port string) *TransportError {
	return NewTransportError(op, port, ErrTransportWrite, ErrorTypeTransient)
}

// NewTransportClosedError reports use of a closed transport.
func NewTransportClosedError(op, port string) *TransportError {
	return NewTransportError(op, port, ErrTransportClosed, ErrorTypePermanent)
}

// GetErrorType classifies err. A nil error is transient.
func GetErrorType(err error) ErrorType {
	var te *TransportError
	switch {
	case err == nil:
		return ErrorTypeTransient
	case errors.As(err, &te):
		return te.Type
	case errors.Is(err, ErrTransportTimeout),
		errors.Is(err, ErrNoAnswer),
		errors.Is(err, context.DeadlineExceeded):
		return ErrorTypeTimeout
	case IsFatal(err), errors.Is(err, ErrInvalidParameter):
		return ErrorTypePermanent
	default:
		return ErrorTypeTransient
	}
}

// IsRetryable reports whether the failed operation may be attempted again.
func IsRetryable(err error) bool {
	var te *TransportError
	switch {
	case err == nil:
		return false
	case errors.As(err, &te):
		return te.Retryable
	default:
		return errors.Is(err, ErrTransportTimeout) ||
			errors.Is(err, ErrTransportWrite) ||
			errors.Is(err, ErrNoAnswer) ||
			errors.Is(err, ErrFrameCorrupted)
	}
}

// IsFatal reports whether the board or its link is gone. Pollers stop on a
// fatal error instead of counting it as a missed poll.
func IsFatal(err error) bool {
	var te *TransportError
	switch {
	case err == nil:
		return false
	case errors.As(err, &te):
		return te.Type == ErrorTypePermanent
	case errors.Is(err, ErrTransportClosed),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrClosedPipe):
		return true
	default:
		return deviceGone(err)
	}
}

// Windows codes seen when a USB serial adapter is pulled mid transfer.
const (
	winAccessDenied syscall.Errno = 5
	winGenFailure   syscall.Errno = 31
	winNoSuchDevice syscall.Errno = 433
)

func deviceGone(err error) bool {
	var errno syscall.Errno
	if !errors.As(err, &errno) {
		return false
	}
	//nolint:exhaustive // only the unplug codes matter
	switch errno {
	case syscall.EIO, syscall.ENXIO, syscall.ENODEV:
		return true
	}
	if runtime.GOOS != "windows" {
		return false
	}
	//nolint:exhaustive // only the unplug codes matter
	switch errno {
	case winAccessDenied, winGenFailure, winNoSuchDevice:
		return true
	}
	return false
}

// FormatHex renders data as spaced upper case hex, cut after 32 bytes.
func FormatHex(data []byte) string {
	const limit = 32
	if len(data) == 0 {
		return "(empty)"
	}
	var sb strings.Builder
	for i, b := range data {
		if i == limit {
			_, _ = fmt.Fprintf(&sb, " ... (%d bytes total)", len(data))
			break
		}
		if i > 0 {
			sb.WriteByte(' ')
		}
		_, _ = fmt.Fprintf(&sb, "%02X", b)
	}
	return sb.String()
}

// TraceDirection tells sent bytes from received ones.
type TraceDirection string

const (
	TraceTX TraceDirection = "TX"
	TraceRX TraceDirection = "RX"
)

// TraceEntry is one recorded chunk of wire traffic.
type TraceEntry struct {
	Timestamp time.Time
	Direction TraceDirection
	Note      string
	Data      []byte
}

func (e TraceEntry) String() string {
	s := fmt.Sprintf("[%s] %s: %s", e.Timestamp.Format("15:04:05.000"), e.Direction, FormatHex(e.Data))
	if e.Note != "" {
		s += " (" + e.Note + ")"
	}
	return s
}

// TraceableError attaches the recent wire traffic of a failed exchange.
// Callers pull it out with GetTrace:
//
//	if te := protolib.GetTrace(err); te != nil {
//		fmt.Fprint(os.Stderr, te.FormatTrace())
//	}
type TraceableError struct {
	Err       error
	Transport string
	Port      string
	Trace     []TraceEntry
}

func (e *TraceableError) Error() string { return e.Err.Error() }

func (e *TraceableError) Unwrap() error { return e.Err }

// FormatTrace lists the entries one per line, ">" for sent and "<" for received.
func (e *TraceableError) FormatTrace() string {
	if len(e.Trace) == 0 {
		return fmt.Sprintf("[%s:%s] (no trace data)", e.Transport, e.Port)
	}
	var sb strings.Builder
	_, _ = fmt.Fprintf(&sb, "[%s:%s] Wire trace (%d entries):\n", e.Transport, e.Port, len(e.Trace))
	for _, entry := range e.Trace {
		arrow := ">"
		if entry.Direction == TraceRX {
			arrow = "<"
		}
		_, _ = fmt.Fprintf(&sb, "  %s %s", arrow, FormatHex(entry.Data))
		if entry.Note != "" {
			_, _ = fmt.Fprintf(&sb, " (%s)", entry.Note)
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

// TraceBuffer keeps the last few exchanges of one link in a ring.
// It is not safe for concurrent use.
type TraceBuffer struct {
	transport string
	port      string
	ring      []TraceEntry
	next      int
	full      bool
}

// NewTraceBuffer holds up to size entries, 16 when size is not positive.
func NewTraceBuffer(transport, port string, size int) *TraceBuffer {
	if size <= 0 {
		size = 16
	}
	return &TraceBuffer{transport: transport, port: port, ring: make([]TraceEntry, size)}
}

// RecordTX records bytes written to the board.
func (tb *TraceBuffer) RecordTX(data []byte, note string) { tb.record(TraceTX, data, note) }

// RecordRX records bytes read from the board.
func (tb *TraceBuffer) RecordRX(data []byte, note string) { tb.record(TraceRX, data, note) }

// RecordTimeout records a wait that ended without data.
func (tb *TraceBuffer) RecordTimeout(note string) { tb.record(TraceRX, nil, "TIMEOUT: "+note) }

func (tb *TraceBuffer) record(dir TraceDirection, data []byte, note string) {
	tb.ring[tb.next] = TraceEntry{
		Timestamp: time.Now(),
		Direction: dir,
		Note:      note,
		Data:      append([]byte(nil), data...),
	}
	tb.next = (tb.next + 1) % len(tb.ring)
	if tb.next == 0 {
		tb.full = true
	}
}

// Entries returns the recorded entries, oldest first.
func (tb *TraceBuffer) Entries() []TraceEntry {
	if !tb.full {
		return append([]TraceEntry(nil), tb.ring[:tb.next]...)
	}
	out := make([]TraceEntry, 0, len(tb.ring))
	out = append(out, tb.ring[tb.next:]...)
	return append(out, tb.ring[:tb.next]...)
}

// Clear drops every entry.
func (tb *TraceBuffer) Clear() {
	clear(tb.ring)
	tb.next, tb.full = 0, false
}

// WrapError attaches the current entries to err. It returns nil for nil.
func (tb *TraceBuffer) WrapError(err error) error {
	if err == nil {
		return nil
	}
	return &TraceableError{Err: err, Transport: tb.transport, Port: tb.port, Trace: tb.Entries()}
}

// HasTrace reports whether err carries a wire trace.
func HasTrace(err error) bool { return GetTrace(err) != nil }

// GetTrace returns the wire trace in err's chain, or nil.
func GetTrace(err error) *TraceableError {
	var te *TraceableError
	if errors.As(err, &te) {
		return te
	}
	return nil
}
