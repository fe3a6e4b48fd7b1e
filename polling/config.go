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

import "time"

// SleepRecoveryConfig configures recovery after the host sleeps. A long gap
// between polls usually means the USB adapter was suspended and the board
// may have been reset.
type SleepRecoveryConfig struct {
	Enabled bool
	// TimeDiscontinuityThreshold is how far past the poll interval a gap
	// must run to count as a sleep.
	TimeDiscontinuityThreshold time.Duration
	// MaxRecoveryAttempts bounds the reset and ping rounds before Start
	// gives up.
	MaxRecoveryAttempts int
	RecoveryBackoff     time.Duration
}

// DefaultSleepRecoveryConfig allows a 2s gap and three rounds 500ms apart.
func DefaultSleepRecoveryConfig() SleepRecoveryConfig {
	return SleepRecoveryConfig{
		Enabled:                    true,
		TimeDiscontinuityThreshold: 2 * time.Second,
		MaxRecoveryAttempts:        3,
		RecoveryBackoff:            500 * time.Millisecond,
	}
}

// DetectSleep reports whether elapsed exceeds pollInterval plus the
// discontinuity threshold.
func (cfg SleepRecoveryConfig) DetectSleep(elapsed, pollInterval time.Duration) bool {
	if !cfg.Enabled {
		return false
	}
	return elapsed > pollInterval+cfg.TimeDiscontinuityThreshold
}

// Config tunes a Session.
type Config struct {
	PollInterval time.Duration
	// CardRemovalTimeout is how long the board must report no card before
	// the card counts as removed. It absorbs single missed reads while a
	// card is being seated.
	CardRemovalTimeout time.Duration
	// IdleInterval is the slower poll interval used once no card has been
	// seen for IdleAfter. Zero disables adaptive polling.
	IdleInterval time.Duration
	IdleAfter    time.Duration
	// ReadCardData fetches RFID_DATA for every detected card.
	ReadCardData bool
	SleepRecovery SleepRecoveryConfig
}

// DefaultConfig polls every 250ms, every 500ms after 5s with no card.
func DefaultConfig() *Config {
	return &Config{
		PollInterval:       250 * time.Millisecond,
		CardRemovalTimeout: 600 * time.Millisecond,
		IdleInterval:       500 * time.Millisecond,
		IdleAfter:          5 * time.Second,
		ReadCardData:       true,
		SleepRecovery:      DefaultSleepRecoveryConfig(),
	}
}
