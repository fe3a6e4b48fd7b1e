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

// Package ymodem sends firmware images to a board bootloader over a
// transport using YMODEM with 1K blocks and CRC16/XMODEM.
package ymodem

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"

	"github.com/ZaparooProject/go-protolib/crc"
)

// Control bytes
const (
	SOH    = 0x01
	STX    = 0x02
	EOT    = 0x04
	ACK    = 0x06
	NAK    = 0x15
	CAN    = 0x18
	CRCReq = 'C'
)

// Block sizes
const (
	HeaderSize = 128
	BlockSize  = 1024
	overhead   = 3 + 2
	padByte    = 0x1A
)

// Transfer errors
var (
	ErrNoStart   = errors.New("ymodem: receiver did not request a transfer")
	ErrNoAck     = errors.New("ymodem: block not acknowledged")
	ErrCancelled = errors.New("ymodem: transfer cancelled by peer")
	ErrBadBlock  = errors.New("ymodem: malformed block")
	ErrNameSize  = errors.New("ymodem: file name does not fit the header block")
)

var xmodem = crc.MustNew(crc.ParamsXModem)

// Checksum returns the CRC16/XMODEM of p.
func Checksum(p []byte) uint16 {
	return uint16(xmodem.Compute(p))
}

func appendBlock(dst []byte, mark, seq byte, data []byte, size int) []byte {
	dst = append(dst, mark, seq, ^seq)
	start := len(dst)
	dst = append(dst, data...)
	for len(dst)-start < size {
		dst = append(dst, padByte)
	}
	sum := Checksum(dst[start:])
	return append(dst, byte(sum>>8), byte(sum))
}

// HeaderBlock builds block zero carrying "name\x00size". An empty name
// with size 0 is the end-of-batch block.
func HeaderBlock(name string, size int64) ([]byte, error) {
	info := make([]byte, 0, HeaderSize)
	if name != "" || size != 0 {
		info = append(info, name...)
		info = append(info, 0)
		info = strconv.AppendInt(info, size, 10)
	}
	if len(info) >= HeaderSize {
		return nil, fmt.Errorf("%w: %q", ErrNameSize, name)
	}
	for len(info) < HeaderSize {
		info = append(info, 0)
	}
	return appendBlock(make([]byte, 0, HeaderSize+overhead), SOH, 0, info, HeaderSize), nil
}

// DataBlock builds a 1K data block. Short data is padded with 0x1A.
func DataBlock(seq byte, data []byte) []byte {
	return appendBlock(make([]byte, 0, BlockSize+overhead), STX, seq, data, BlockSize)
}

// blockSize returns the payload size announced by mark.
func blockSize(mark byte) int {
	switch mark {
	case SOH:
		return HeaderSize
	case STX:
		return BlockSize
	default:
		return 0
	}
}

// ParseBlock checks a complete SOH or STX block and returns its sequence
// number and payload.
func ParseBlock(p []byte) (seq byte, payload []byte, err error) {
	if len(p) < 1 {
		return 0, nil, ErrBadBlock
	}
	size := blockSize(p[0])
	if size == 0 || len(p) != size+overhead {
		return 0, nil, fmt.Errorf("%w: mark 0x%02X length %d", ErrBadBlock, p[0], len(p))
	}
	if p[1] != ^p[2] {
		return 0, nil, fmt.Errorf("%w: sequence 0x%02X/0x%02X", ErrBadBlock, p[1], p[2])
	}
	payload = p[3 : 3+size]
	want := uint16(p[3+size])<<8 | uint16(p[4+size])
	if got := Checksum(payload); got != want {
		return 0, nil, fmt.Errorf("%w: crc 0x%04X, want 0x%04X", ErrBadBlock, got, want)
	}
	return p[1], payload, nil
}

// ParseHeader reads the file name and size from a header payload. An
// empty name marks the end of the batch.
func ParseHeader(payload []byte) (name string, size int64, err error) {
	nameEnd := bytes.IndexByte(payload, 0)
	if nameEnd < 0 {
		return "", 0, fmt.Errorf("%w: unterminated file name", ErrBadBlock)
	}
	name = string(payload[:nameEnd])
	if name == "" {
		return "", 0, nil
	}
	rest := payload[nameEnd+1:]
	end := 0
	for end < len(rest) && rest[end] >= '0' && rest[end] <= '9' {
		end++
	}
	if end == 0 {
		return name, 0, nil
	}
	size, err = strconv.ParseInt(string(rest[:end]), 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("%w: size: %w", ErrBadBlock, err)
	}
	return name, size, nil
}
