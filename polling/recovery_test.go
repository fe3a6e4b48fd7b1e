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

package polling

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	protolib "github.com/ZaparooProject/go-protolib"
)

type countingLine struct {
	sets []bool
}

func (l *countingLine) Set(active bool) error {
	l.sets = append(l.sets, active)
	return nil
}

func (*countingLine) Name() string { return "test" }

func fastRecovery() SleepRecoveryConfig {
	cfg := DefaultSleepRecoveryConfig()
	cfg.RecoveryBackoff = time.Millisecond
	return cfg
}

func TestDefaultRecoverer_BoardAnswers(t *testing.T) {
	t.Parallel()

	board := &fakeBoard{}
	line := &countingLine{}
	r := NewDefaultRecoverer(board, line, fastRecovery())
	require.NoError(t, r.AttemptRecovery(context.Background()))
	assert.Equal(t, 1, board.versions)
	assert.Empty(t, line.sets, "no reset when the board answers")
}

func TestDefaultRecoverer_ResetPulse(t *testing.T) {
	t.Parallel()

	board := &fakeBoard{versionErr: []error{protolib.ErrNoAnswer}}
	line := &countingLine{}
	r := NewDefaultRecoverer(board, line, fastRecovery())
	r.SetPulse(time.Millisecond)

	require.NoError(t, r.AttemptRecovery(context.Background()))
	assert.Equal(t, 2, board.versions)
	assert.Equal(t, []bool{true, false}, line.sets)
}

func TestDefaultRecoverer_GivesUp(t *testing.T) {
	t.Parallel()

	errs := make([]error, 3)
	for i := range errs {
		errs[i] = protolib.ErrNoAnswer
	}
	board := &fakeBoard{versionErr: errs}
	r := NewDefaultRecoverer(board, nil, fastRecovery())

	err := r.AttemptRecovery(context.Background())
	require.ErrorIs(t, err, protolib.ErrNoAnswer)
	assert.Equal(t, 3, board.versions)
}

func TestDefaultRecoverer_Defaults(t *testing.T) {
	t.Parallel()

	r := NewDefaultRecoverer(&fakeBoard{}, nil, SleepRecoveryConfig{})
	assert.Equal(t, 3, r.maxAttempts)
	assert.Equal(t, 500*time.Millisecond, r.backoff)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	board := &fakeBoard{versionErr: []error{protolib.ErrNoAnswer}}
	r = NewDefaultRecoverer(board, nil, DefaultSleepRecoveryConfig())
	require.ErrorIs(t, r.AttemptRecovery(ctx), context.Canceled)
}
