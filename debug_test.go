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
	"bytes"
	"encoding/json"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// useSinks points package logging at session and console until the test ends.
func useSinks(t *testing.T, session, console io.Writer, debug bool) {
	t.Helper()
	var oldSession, oldConsole io.Writer
	var oldDebug bool
	sinks.update(func(s *logSinks) {
		oldSession, oldConsole, oldDebug = s.session, s.console, s.debug
		s.session, s.console, s.debug = session, console, debug
	})
	t.Cleanup(func() {
		sinks.update(func(s *logSinks) {
			s.session, s.console, s.debug = oldSession, oldConsole, oldDebug
		})
	})
}

//nolint:paralleltest // mutates package-level log sinks
func TestDebugf_WritesJSONToSessionLog(t *testing.T) {
	var buf bytes.Buffer
	useSinks(t, &buf, io.Discard, false)

	Debugf("frame %d dropped", 42)

	var event map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &event))
	assert.Equal(t, "frame 42 dropped", event["message"])
	assert.Equal(t, "debug", event["level"])
	assert.Contains(t, event, "time")
}

//nolint:paralleltest // mutates package-level log sinks
func TestDebug_NoSinks(t *testing.T) {
	useSinks(t, nil, io.Discard, false)

	assert.NotPanics(t, func() {
		Debugf("nothing %d", 1)
		Debugln("nothing")
		l := Logger()
		l.Info().Msg("nothing")
	})
}

//nolint:paralleltest // mutates package-level log sinks
func TestDebugln_WritesToSessionLog(t *testing.T) {
	var buf bytes.Buffer
	useSinks(t, &buf, io.Discard, false)

	Debugln("frame", 3, "dropped")

	assert.Contains(t, buf.String(), "frame3 dropped")
}

//nolint:paralleltest // mutates package-level log sinks
func TestDebugf_ConsoleOnlyWhenEnabled(t *testing.T) {
	var console bytes.Buffer
	useSinks(t, nil, &console, false)

	Debugf("hidden")
	assert.Empty(t, console.String())
	assert.False(t, DebugEnabled())

	SetDebugEnabled(true)
	assert.True(t, DebugEnabled())
	Debugf("shown %s", "here")
	assert.Contains(t, console.String(), "shown here")
	assert.Contains(t, console.String(), "DBG")
}

//nolint:paralleltest // mutates package-level log sinks
func TestLogger_FieldsReachSessionLog(t *testing.T) {
	var buf bytes.Buffer
	useSinks(t, &buf, io.Discard, false)

	l := Logger()
	l.Info().Str("packet", "VERSION").Msg("sent")
	assert.Contains(t, buf.String(), `"packet":"VERSION"`)
}

func TestLogSinks_LoggerBuiltOnChange(t *testing.T) {
	t.Parallel()

	var console, session bytes.Buffer
	s := newLogSinks(&console, false)
	_, active := s.logger()
	assert.False(t, active)

	s.update(func(ls *logSinks) { ls.session = &session })
	l, active := s.logger()
	require.True(t, active)
	l.Debug().Msgf("frame %d", 1)
	assert.Contains(t, session.String(), `"message":"frame 1"`)
	assert.Empty(t, console.String())

	// The cached logger keeps writing to both sinks until the next change.
	s.update(func(ls *logSinks) { ls.debug = true })
	l, _ = s.logger()
	l.Debug().Msg("both")
	l.Debug().Msg("again")
	assert.Equal(t, 2, strings.Count(console.String(), "DBG"))
	assert.Equal(t, 3, strings.Count(session.String(), "\n"))

	s.update(func(ls *logSinks) { ls.session, ls.debug = nil, false })
	_, active = s.logger()
	assert.False(t, active)
}
