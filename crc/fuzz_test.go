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

package crc

import "testing"

// FuzzModbusSplit checks that the nibble-table engine matches the generic
// engine and that any split point yields the same checksum.
//
// Run with: go test -fuzz=FuzzModbusSplit -fuzztime=30s ./crc/
func FuzzModbusSplit(f *testing.F) {
	f.Add([]byte("123456789"), 4)
	f.Add([]byte{}, 0)
	f.Add([]byte{0xFF, 0xAA, 0x0D, 0x02}, 1)

	soft := MustNew(ParamsModbus)

	f.Fuzz(func(t *testing.T, data []byte, k int) {
		if k < 0 {
			k = -(k + 1)
		}
		if len(data) > 0 {
			k %= len(data) + 1
		} else {
			k = 0
		}

		want := soft.Compute(data)
		if got := (Modbus{}).Compute(data); got != want {
			t.Fatalf("Modbus = 0x%04X, Soft = 0x%04X", got, want)
		}

		m := Modbus{}
		s := m.Update(m.Update(m.Init(), data[:k]), data[k:])
		if got := m.Finalize(s); got != want {
			t.Fatalf("split at %d = 0x%04X, want 0x%04X", k, got, want)
		}
	})
}
