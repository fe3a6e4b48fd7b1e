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
	"strconv"
	"strings"
)

// ParseUint parses a decimal or hex number that fits in bitSize bits.
// Whitespace and '_' separators are ignored. The input is hex when it has
// a 0x prefix or contains any of a-f.
func ParseUint(s string, bitSize int) (uint64, error) {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case ' ', '\t', '\n', '\r', '_':
			continue
		}
		b.WriteRune(r)
	}
	str := b.String()
	if str == "" {
		return 0, fmt.Errorf("parse %q: empty number", s)
	}

	base := 10
	if len(str) > 2 && str[0] == '0' && (str[1] == 'x' || str[1] == 'X') {
		base = 16
		str = str[2:]
	} else if strings.ContainsAny(str, "abcdefABCDEF") {
		base = 16
	}

	v, err := strconv.ParseUint(str, base, bitSize)
	if err != nil {
		return 0, fmt.Errorf("parse %q: %w", s, err)
	}
	return v, nil
}

// ParseHexBytes reads hex digit pairs from s into an n-byte slice. Any
// non-hex characters and 0x prefixes are skipped; an odd digit count is
// padded with a leading zero. Missing bytes are zero and extra digits
// are ignored.
func ParseHexBytes(s string, n int) []byte {
	digits := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '0' && i+1 < len(s) && (s[i+1] == 'x' || s[i+1] == 'X') {
			i++
			continue
		}
		if isHexDigit(c) {
			digits = append(digits, c)
		}
	}
	if len(digits)%2 != 0 {
		digits = append([]byte{'0'}, digits...)
	}

	out := make([]byte, n)
	for i := range min(n, len(digits)/2) {
		out[i] = hexValue(digits[2*i])<<4 | hexValue(digits[2*i+1])
	}
	return out
}

func isHexDigit(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func hexValue(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	default:
		return c - 'A' + 10
	}
}
