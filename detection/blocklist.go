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

package detection

import (
	"path/filepath"
	"regexp"
	"strings"
)

// DefaultBlocklist lists USB VID:PID pairs that misbehave when probed at
// 115200 baud. Entries are compared case-insensitively.
func DefaultBlocklist() []string {
	return []string{
		"1366:0105", // SEGGER J-Link CDC, resets the target on open
		"0483:374B", // ST-LINK/V2-1 VCP
	}
}

// IsBlocked reports whether vidpid is on the blocklist.
func IsBlocked(vidpid string, blocklist []string) bool {
	id := ParseVIDPID(vidpid)
	if id == "" {
		return false
	}
	for _, blocked := range blocklist {
		if ParseVIDPID(blocked) == id {
			return true
		}
	}
	return false
}

var (
	plainVIDPID = regexp.MustCompile(`^\s*([0-9A-F]+):([0-9A-F]+)\s*$`)
	vidPattern  = regexp.MustCompile(`(?:VID[:=_]|VENDOR=)([0-9A-F]+)`)
	pidPattern  = regexp.MustCompile(`(?:PID[:=_]|PRODUCT=)([0-9A-F]+)`)
)

// ParseVIDPID normalizes a USB id to upper case "VVVV:PPPP". It accepts
// "1234:5678", "VID:1234 PID:5678", "VID_1234&PID_5678" and
// "vendor=1234 product=5678". It returns "" when no pair is found.
func ParseVIDPID(descriptor string) string {
	s := strings.ToUpper(descriptor)
	if m := plainVIDPID.FindStringSubmatch(s); m != nil {
		return m[1] + ":" + m[2]
	}
	vid := vidPattern.FindStringSubmatch(s)
	pid := pidPattern.FindStringSubmatch(s)
	if vid == nil || pid == nil {
		return ""
	}
	return vid[1] + ":" + pid[1]
}

// IsPathIgnored reports whether devicePath is in ignorePaths. Paths are
// cleaned and compared case-insensitively so "COM2" matches "com2".
func IsPathIgnored(devicePath string, ignorePaths []string) bool {
	if devicePath == "" {
		return false
	}
	device := normalizedPath(devicePath)
	for _, p := range ignorePaths {
		if p != "" && normalizedPath(p) == device {
			return true
		}
	}
	return false
}

func normalizedPath(path string) string {
	return strings.ToLower(filepath.Clean(path))
}
