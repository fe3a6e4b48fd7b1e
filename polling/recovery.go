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
	"time"

	protolib "github.com/ZaparooProject/go-protolib"
	"github.com/ZaparooProject/go-protolib/internal/syncutil"
	"github.com/ZaparooProject/go-protolib/resetline"
)

// Recoverer brings the board back after a host sleep or a stall.
type Recoverer interface {
	// AttemptRecovery returns nil once the board answers again.
	AttemptRecovery(ctx context.Context) error
}

// DefaultRecoverer pings the board with VERSION. When that fails and a
// reset line is set, it pulses the line and pings again. Rounds repeat
// RecoveryBackoff apart up to MaxRecoveryAttempts.
type DefaultRecoverer struct {
	board       Board
	reset       resetline.Line
	pulse       time.Duration
	backoff     time.Duration
	maxAttempts int
	mu          syncutil.Mutex
}

// NewDefaultRecoverer returns a recoverer for board. reset may be nil.
func NewDefaultRecoverer(board Board, reset resetline.Line, cfg SleepRecoveryConfig) *DefaultRecoverer {
	r := &DefaultRecoverer{
		board:       board,
		reset:       reset,
		backoff:     cfg.RecoveryBackoff,
		maxAttempts: cfg.MaxRecoveryAttempts,
	}
	if r.maxAttempts <= 0 {
		r.maxAttempts = DefaultSleepRecoveryConfig().MaxRecoveryAttempts
	}
	if r.backoff <= 0 {
		r.backoff = DefaultSleepRecoveryConfig().RecoveryBackoff
	}
	return r
}

// SetPulse sets the reset pulse length. Zero uses the resetline default.
func (r *DefaultRecoverer) SetPulse(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pulse = d
}

// AttemptRecovery returns nil as soon as the board answers, otherwise the
// last round's error, or the context error once ctx ends.
func (r *DefaultRecoverer) AttemptRecovery(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	err := protolib.RetryWithConfig(ctx, &protolib.RetryConfig{
		ShouldRetry:       func(error) bool { return ctx.Err() == nil },
		MaxAttempts:       r.maxAttempts,
		InitialBackoff:    r.backoff,
		BackoffMultiplier: 1,
	}, func() error { return r.round(ctx) })
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (r *DefaultRecoverer) round(ctx context.Context) error {
	_, err := r.board.GetVersion(ctx)
	if err == nil || r.reset == nil {
		return err
	}
	if err := resetline.Pulse(ctx, r.reset, r.pulse); err != nil {
		return err
	}
	_, err = r.board.GetVersion(ctx)
	return err
}
