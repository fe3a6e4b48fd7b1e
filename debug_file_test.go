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
	"bufio"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readEvents(t *testing.T, path string) []map[string]any {
	t.Helper()
	f, err := os.Open(path) //nolint:gosec // test file
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	var events []map[string]any
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var event map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &event), "line %q", scanner.Text())
		events = append(events, event)
	}
	require.NoError(t, scanner.Err())
	return events
}

//nolint:paralleltest // mutates package-level log sinks
func TestSessionLog_Lifecycle(t *testing.T) {
	useSinks(t, nil, io.Discard, false)
	t.Cleanup(func() { _ = CloseSessionLog() })

	path, err := InitSessionLogIn(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, path, GetSessionLogPath())
	assert.Regexp(t, `^protolib_\d{8}_\d{6}\.log$`, filepath.Base(path))

	Debugf("checksum mismatch on %s", "VERSION")
	require.NoError(t, CloseSessionLog())
	assert.Empty(t, GetSessionLogPath())

	events := readEvents(t, path)
	require.Len(t, events, 3)
	assert.Equal(t, "protolib session log", events[0]["message"])
	assert.Contains(t, events[0], "pid")
	assert.Contains(t, events[0], "go_version")
	assert.Equal(t, "checksum mismatch on VERSION", events[1]["message"])
	assert.Equal(t, "session ended", events[2]["message"])

	// Nothing reaches the closed file.
	Debugf("after close")
	assert.Len(t, readEvents(t, path), 3)
}

//nolint:paralleltest // mutates package-level log sinks
func TestSessionLog_ReopenClosesPrevious(t *testing.T) {
	useSinks(t, nil, io.Discard, false)
	t.Cleanup(func() { _ = CloseSessionLog() })

	first, err := InitSessionLogIn(t.TempDir())
	require.NoError(t, err)
	second, err := InitSessionLogIn(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, second, GetSessionLogPath())

	events := readEvents(t, first)
	assert.Equal(t, "session ended", events[len(events)-1]["message"])
}

//nolint:paralleltest // mutates package-level log sinks
func TestSessionLog_Errors(t *testing.T) {
	useSinks(t, nil, io.Discard, false)

	require.NoError(t, CloseSessionLog())

	_, err := InitSessionLogIn(filepath.Join(t.TempDir(), "missing"))
	require.ErrorContains(t, err, "create session log")
	assert.Empty(t, GetSessionLogPath())
}
