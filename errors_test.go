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
	"strings"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsRetryable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		name string
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "timeout", err: ErrTransportTimeout, want: true},
		{name: "no answer", err: ErrNoAnswer, want: true},
		{name: "corrupted frame", err: ErrFrameCorrupted, want: true},
		{name: "wrapped write", err: fmt.Errorf("tx: %w", ErrTransportWrite), want: true},
		{name: "closed", err: ErrTransportClosed, want: false},
		{name: "invalid parameter", err: ErrInvalidParameter, want: false},
		{name: "transport error transient", err: NewTransportWriteError("Send", "/dev/ttyS1"), want: true},
		{name: "transport error permanent", err: NewTransportClosedError("Send", "/dev/ttyS1"), want: false},
		{name: "plain", err: errors.New("boom"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestIsFatal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		name string
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "closed", err: ErrTransportClosed, want: true},
		{name: "eof", err: io.EOF, want: true},
		{name: "closed pipe", err: fmt.Errorf("open: %w", io.ErrClosedPipe), want: true},
		{name: "EIO", err: fmt.Errorf("read: %w", syscall.EIO), want: true},
		{name: "ENODEV", err: syscall.ENODEV, want: true},
		{name: "EAGAIN", err: syscall.EAGAIN, want: false},
		{name: "timeout", err: ErrTransportTimeout, want: false},
		{name: "permanent transport error", err: NewTransportClosedError("Receive", ""), want: true},
		{name: "transient transport error", err: NewTransportError("Receive", "", ErrFrameCorrupted, ErrorTypeTransient), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, IsFatal(tt.err))
		})
	}
}

func TestGetErrorType(t *testing.T) {
	t.Parallel()

	assert.Equal(t, ErrorTypeTimeout, GetErrorType(ErrTransportTimeout))
	assert.Equal(t, ErrorTypeTimeout, GetErrorType(context.DeadlineExceeded))
	assert.Equal(t, ErrorTypeTimeout, GetErrorType(NewNoAnswerError("Request", "")))
	assert.Equal(t, ErrorTypePermanent, GetErrorType(io.EOF))
	assert.Equal(t, ErrorTypePermanent, GetErrorType(ErrInvalidParameter))
	assert.Equal(t, ErrorTypeTransient, GetErrorType(ErrTransportWrite))
	assert.Equal(t, ErrorTypeTransient, GetErrorType(nil))

	assert.Equal(t, "timeout", ErrorTypeTimeout.String())
	assert.Equal(t, "ErrorType(9)", ErrorType(9).String())
}

func TestTransportError_Format(t *testing.T) {
	t.Parallel()

	err := NewNoAnswerError("Request", "/dev/ttyUSB0")
	assert.Equal(t, "Request /dev/ttyUSB0: no answer received", err.Error())
	require.ErrorIs(t, err, ErrNoAnswer)
	assert.True(t, err.Retryable)

	noPort := NewTransportClosedError("Send", "")
	assert.Equal(t, "Send: transport is closed", noPort.Error())
	assert.False(t, noPort.Retryable)
}

func TestTraceBuffer_EvictsOldest(t *testing.T) {
	t.Parallel()

	tb := NewTraceBuffer("uart", "/dev/ttyS0", 2)
	tb.RecordTX([]byte{0xFF, 0x55}, "request")
	tb.RecordRX([]byte{0xFF, 0xAA}, "")
	tb.RecordTimeout("answer")

	entries := tb.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, TraceRX, entries[0].Direction)
	assert.Equal(t, "TIMEOUT: answer", entries[1].Note)

	tb.RecordTX([]byte{0x06}, "ack")
	entries = tb.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "TIMEOUT: answer", entries[0].Note)
	assert.Equal(t, "ack", entries[1].Note)

	tb.Clear()
	assert.Empty(t, tb.Entries())
}

func TestTraceBuffer_WrapError(t *testing.T) {
	t.Parallel()

	tb := NewTraceBuffer("uart", "/dev/ttyS0", 0)
	require.NoError(t, tb.WrapError(nil))

	data := []byte{0x01, 0x02}
	tb.RecordTX(data, "probe")
	data[0] = 0xEE // recorded bytes are copied

	err := tb.WrapError(fmt.Errorf("probe: %w", ErrNoAnswer))
	require.ErrorIs(t, err, ErrNoAnswer)
	assert.True(t, HasTrace(err))

	te := GetTrace(err)
	require.NotNil(t, te)
	assert.Equal(t, []byte{0x01, 0x02}, te.Trace[0].Data)
	assert.Contains(t, te.FormatTrace(), "> 01 02 (probe)")
	assert.Contains(t, te.Trace[0].String(), "TX: 01 02 (probe)")

	assert.Nil(t, GetTrace(errors.New("plain")))
	assert.Contains(t, (&TraceableError{Transport: "uart", Port: "x", Err: io.EOF}).FormatTrace(), "no trace data")
}

func TestFormatHex(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "(empty)", FormatHex(nil))
	assert.Equal(t, "FF AA 0D", FormatHex([]byte{0xFF, 0xAA, 0x0D}))

	long := make([]byte, 40)
	out := FormatHex(long)
	assert.True(t, strings.HasSuffix(out, "00 ... (40 bytes total)"))
	assert.Equal(t, 32, strings.Count(out, "00"))
}
