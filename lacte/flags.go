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
	"fmt"
	"math/bits"
	"strings"
)

// BoardError is one bit of the board error word.
type BoardError uint16

// Board error flags
const (
	ErrCalibration       BoardError = 1 << 0
	ErrMotor             BoardError = 1 << 1
	ErrRFID              BoardError = 1 << 2
	ErrRFIDNoCard        BoardError = 1 << 3
	ErrRFIDBadCard       BoardError = 1 << 4
	ErrInvalidTime       BoardError = 1 << 5 // dispensing blocked until time is set
	ErrShelfLifeExceeded BoardError = 1 << 6
	ErrUsageTimeExceeded BoardError = 1 << 7
)

// AllBoardErrors lists every flag in bit order.
var AllBoardErrors = []BoardError{
	ErrCalibration,
	ErrMotor,
	ErrRFID,
	ErrRFIDNoCard,
	ErrRFIDBadCard,
	ErrInvalidTime,
	ErrShelfLifeExceeded,
	ErrUsageTimeExceeded,
}

func (e BoardError) String() string {
	switch e {
	case ErrCalibration:
		return "CalibrationError"
	case ErrMotor:
		return "MotorError"
	case ErrRFID:
		return "RFIDError"
	case ErrRFIDNoCard:
		return "RFID_NoCard"
	case ErrRFIDBadCard:
		return "RFID_BadCard"
	case ErrInvalidTime:
		return "InvalidTime"
	case ErrShelfLifeExceeded:
		return "ShelfLifeExceeded"
	case ErrUsageTimeExceeded:
		return "UsageTimeExceeded"
	default:
		return "UnknownError"
	}
}

// ErrorFlags is the board error word.
type ErrorFlags uint16

// NewErrorFlags combines flags.
func NewErrorFlags(errs ...BoardError) ErrorFlags {
	var f ErrorFlags
	for _, e := range errs {
		f.Set(e)
	}
	return f
}

// ParseErrorFlags sets every flag whose name appears in s, so it accepts
// the output of String.
func ParseErrorFlags(s string) ErrorFlags {
	var f ErrorFlags
	for _, e := range AllBoardErrors {
		if strings.Contains(s, e.String()) {
			f.Set(e)
		}
	}
	return f
}

// Has reports whether e is set.
func (f ErrorFlags) Has(e BoardError) bool { return uint16(f)&uint16(e) != 0 }

// Set sets e.
func (f *ErrorFlags) Set(e BoardError) { *f |= ErrorFlags(e) }

// Clear clears e.
func (f *ErrorFlags) Clear(e BoardError) { *f &^= ErrorFlags(e) }

// Count returns the number of set flags.
func (f ErrorFlags) Count() int { return bits.OnesCount16(uint16(f)) }

// List returns the set flags in bit order.
func (f ErrorFlags) List() []BoardError {
	var out []BoardError
	for _, e := range AllBoardErrors {
		if f.Has(e) {
			out = append(out, e)
		}
	}
	return out
}

// Diff returns the flags that changed from prev to f, mapped to their new
// state.
func (f ErrorFlags) Diff(prev ErrorFlags) map[BoardError]bool {
	changed := make(map[BoardError]bool)
	for _, e := range AllBoardErrors {
		if f.Has(e) != prev.Has(e) {
			changed[e] = f.Has(e)
		}
	}
	return changed
}

func (f ErrorFlags) String() string {
	if f == 0 {
		return "Errors: NONE"
	}
	names := make([]string, 0, f.Count())
	for _, e := range f.List() {
		names = append(names, e.String())
	}
	return fmt.Sprintf("Errors(%d): %s [0x%x]", f.Count(), strings.Join(names, ", "), uint16(f))
}

// MarshalText renders the flags by name.
func (f ErrorFlags) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// UnmarshalText parses the form produced by MarshalText.
func (f *ErrorFlags) UnmarshalText(text []byte) error {
	*f = ParseErrorFlags(string(text))
	return nil
}
