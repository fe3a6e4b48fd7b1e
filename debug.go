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
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/ZaparooProject/go-protolib/internal/syncutil"
)

// logSinks is where package logging goes: the session log when one is
// open, and the console while debug output is on. The combined logger is
// rebuilt whenever a sink changes.
type logSinks struct {
	console io.Writer
	session io.Writer
	file    *os.File
	path    string
	log     zerolog.Logger
	mu      syncutil.RWMutex
	debug   bool
	active  bool
}

// PROTOLIB_DEBUG or DEBUG in the environment turns console output on.
var sinks = newLogSinks(os.Stdout, os.Getenv("PROTOLIB_DEBUG") != "" || os.Getenv("DEBUG") != "")

func newLogSinks(console io.Writer, debug bool) *logSinks {
	s := &logSinks{console: console, debug: debug}
	s.rebuild()
	return s
}

// rebuild must be called with mu held for writing.
func (s *logSinks) rebuild() {
	var writers []io.Writer
	if s.session != nil {
		writers = append(writers, s.session)
	}
	if s.debug {
		writers = append(writers, zerolog.ConsoleWriter{Out: s.console, TimeFormat: "15:04:05.000", NoColor: true})
	}
	s.active = len(writers) > 0
	if !s.active {
		s.log = zerolog.Nop()
		return
	}
	s.log = zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(zerolog.DebugLevel).
		With().Timestamp().Logger()
}

// update applies fn to the sinks and rebuilds the logger.
func (s *logSinks) update(fn func(*logSinks)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s)
	s.rebuild()
}

func (s *logSinks) logger() (zerolog.Logger, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.log, s.active
}

// Logger returns a debug level logger on the open session log and, while
// debug output is on, the console. It discards everything when neither
// is active.
func Logger() zerolog.Logger {
	l, _ := sinks.logger()
	return l
}

// Debugf logs a formatted debug message.
func Debugf(format string, args ...any) {
	if l, ok := sinks.logger(); ok {
		l.Debug().Msgf(format, args...)
	}
}

// Debugln logs args joined like fmt.Sprint.
func Debugln(args ...any) {
	if l, ok := sinks.logger(); ok {
		l.Debug().Msg(fmt.Sprint(args...))
	}
}

// SetDebugEnabled turns console debug output on or off.
func SetDebugEnabled(enabled bool) {
	sinks.update(func(s *logSinks) { s.debug = enabled })
}

// DebugEnabled reports whether console debug output is on.
func DebugEnabled() bool {
	sinks.mu.RLock()
	defer sinks.mu.RUnlock()
	return sinks.debug
}
