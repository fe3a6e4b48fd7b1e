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

import "time"

// Request retry constants control host request behavior.
const (
	// DefaultRequestTimeout is how long a host waits for the answer to one request.
	DefaultRequestTimeout = time.Second
	// DefaultRequestRetries is the number of attempts for one request.
	DefaultRequestRetries = 3
	// RequestInitialBackoff is the initial delay between attempts.
	RequestInitialBackoff = 10 * time.Millisecond
	// RequestMaxBackoff is the maximum delay between attempts.
	RequestMaxBackoff = 500 * time.Millisecond
	// RequestBackoffMultiplier is the exponential backoff multiplier.
	RequestBackoffMultiplier = 2.0
	// RequestJitter is the random jitter factor (0.0-1.0).
	RequestJitter = 0.1
	// RequestRetryTimeout caps all attempts of one request.
	RequestRetryTimeout = 5 * time.Second
)

// Serial defaults for lacte boards.
const (
	// DefaultBaudRate is the line rate every lacte board ships with.
	DefaultBaudRate = 115200
	// DefaultReadTimeout is the per-call Receive timeout.
	DefaultReadTimeout = 50 * time.Millisecond
	// TransportDrainRetries is the number of attempts to drain stale input.
	TransportDrainRetries = 3
)

// Endpoint constants.
const (
	// DefaultQueueSize bounds the received message queue. The oldest
	// message is dropped on overflow.
	DefaultQueueSize = 100
)

// Ymodem timing.
const (
	// YmodemStartTimeout is how long the sender waits for the receiver's 'C'.
	YmodemStartTimeout = 10 * time.Second
	// YmodemBlockTimeout is how long the sender waits for a block ACK.
	YmodemBlockTimeout = 3 * time.Second
	// YmodemMaxRetries is the number of times one block is resent on NAK or timeout.
	YmodemMaxRetries = 10
)

// Reset line timing.
const (
	// DefaultResetPulse is how long the reset line is held active.
	DefaultResetPulse = 100 * time.Millisecond
	// BootSettleDelay is the delay after releasing reset before the
	// bootloader is ready to talk.
	BootSettleDelay = 200 * time.Millisecond
)
