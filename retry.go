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
	"context"
	"fmt"
	"math/rand/v2"
	"time"
)

// RetryConfig is the backoff policy for repeated requests and writes.
type RetryConfig struct {
	// ShouldRetry decides whether an error is worth another attempt.
	// IsRetryable is used when nil.
	ShouldRetry func(error) bool
	// MaxAttempts counts the first try. Zero or less means a single try
	// with no deadline applied.
	MaxAttempts int
	// InitialBackoff is the pause after the first failure.
	InitialBackoff time.Duration
	// MaxBackoff caps the pause. Zero leaves it uncapped.
	MaxBackoff time.Duration
	// BackoffMultiplier grows the pause after each failure.
	BackoffMultiplier float64
	// Jitter adds up to this fraction of the pause at random.
	Jitter float64
	// RetryTimeout bounds all attempts together.
	RetryTimeout time.Duration
}

// DefaultRetryConfig returns the policy used for lacte requests.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:       DefaultRequestRetries,
		InitialBackoff:    RequestInitialBackoff,
		MaxBackoff:        RequestMaxBackoff,
		BackoffMultiplier: RequestBackoffMultiplier,
		Jitter:            RequestJitter,
		RetryTimeout:      RequestRetryTimeout,
	}
}

// RetryableFunc is one attempt of a retried operation.
type RetryableFunc func() error

// RetryWithConfig runs fn until it succeeds, fails with an error the
// policy will not retry, or runs out of attempts or time. The last
// attempt's error is returned; a context that ends before the first
// attempt yields the context error. A nil config means DefaultRetryConfig.
func RetryWithConfig(ctx context.Context, config *RetryConfig, fn RetryableFunc) error {
	if config == nil {
		config = DefaultRetryConfig()
	}
	if config.MaxAttempts <= 0 {
		return fn()
	}
	if config.RetryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, config.RetryTimeout)
		defer cancel()
	}

	retry := config.ShouldRetry
	if retry == nil {
		retry = IsRetryable
	}

	var last error
	pause := config.InitialBackoff
	for attempt := 1; ; attempt++ {
		if ctx.Err() != nil {
			if last != nil {
				return last
			}
			return fmt.Errorf("retry context cancelled: %w", ctx.Err())
		}
		last = fn()
		if last == nil || !retry(last) || attempt >= config.MaxAttempts {
			return last
		}

		Debugf("attempt %d/%d failed, retrying: %v", attempt, config.MaxAttempts, last)
		timer := time.NewTimer(jittered(pause, config.Jitter))
		select {
		case <-ctx.Done():
			timer.Stop()
			return last
		case <-timer.C:
		}
		pause = nextBackoff(pause, config)
	}
}

func nextBackoff(pause time.Duration, config *RetryConfig) time.Duration {
	pause = time.Duration(float64(pause) * config.BackoffMultiplier)
	if config.MaxBackoff > 0 {
		pause = min(pause, config.MaxBackoff)
	}
	return pause
}

// jittered returns pause plus a random share of at most factor*pause.
func jittered(pause time.Duration, factor float64) time.Duration {
	if factor <= 0 || pause <= 0 {
		return pause
	}
	//nolint:gosec // backoff spread, not security sensitive
	return pause + time.Duration(rand.Float64()*factor*float64(pause))
}
