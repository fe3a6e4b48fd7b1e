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
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// InitSessionLog opens a JSON lines session log in the working directory
// and returns its path.
func InitSessionLog() (string, error) {
	return InitSessionLogIn(".")
}

// InitSessionLogIn opens protolib_<date>_<time>.log in dir. Every debug
// message is written there until CloseSessionLog, whether or not console
// output is on. A log that is already open is closed first.
func InitSessionLogIn(dir string) (string, error) {
	if err := CloseSessionLog(); err != nil {
		return "", err
	}

	path := filepath.Join(dir, "protolib_"+time.Now().Format("20060102_150405")+".log")
	f, err := os.Create(path) //nolint:gosec // name is built here
	if err != nil {
		return "", fmt.Errorf("create session log: %w", err)
	}

	hl := zerolog.New(f)
	header := hl.Info().
		Int("pid", os.Getpid()).
		Str("started", time.Now().Format(time.RFC3339)).
		Str("os", runtime.GOOS+"/"+runtime.GOARCH).
		Str("go_version", runtime.Version()).
		Str("command_line", strings.Join(os.Args, " "))
	if exe, err := os.Executable(); err == nil {
		header = header.Str("executable", exe)
	}
	header.Msg("protolib session log")

	sinks.update(func(s *logSinks) { s.file, s.session, s.path = f, f, path })
	return path, nil
}

// CloseSessionLog writes a closing event and closes the session log. It
// does nothing when no log is open.
func CloseSessionLog() error {
	var f *os.File
	sinks.update(func(s *logSinks) {
		f = s.file
		s.file, s.session, s.path = nil, nil, ""
	})
	if f == nil {
		return nil
	}

	fl := zerolog.New(f)
	fl.Info().Timestamp().Msg("session ended")
	if err := f.Close(); err != nil {
		return fmt.Errorf("close session log: %w", err)
	}
	return nil
}

// GetSessionLogPath returns the open session log's path, or "".
func GetSessionLogPath() string {
	sinks.mu.RLock()
	defer sinks.mu.RUnlock()
	return sinks.path
}
