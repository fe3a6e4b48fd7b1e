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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestRetryConstants_RequestValues verifies request retry constants
// leave room for every attempt inside the overall timeout.
func TestRetryConstants_RequestValues(t *testing.T) {
	t.Parallel()

	assert.GreaterOrEqual(t, DefaultRequestRetries, 1)
	assert.LessOrEqual(t, DefaultRequestRetries, 10)
	assert.Greater(t, RequestMaxBackoff, RequestInitialBackoff)
	assert.GreaterOrEqual(t, RequestBackoffMultiplier, 1.5)
	assert.LessOrEqual(t, RequestJitter, 0.5)

	minExpected := time.Duration(DefaultRequestRetries) * DefaultRequestTimeout
	assert.GreaterOrEqual(t, RequestRetryTimeout, minExpected,
		"RequestRetryTimeout should allow every attempt to wait a full request timeout")
}

// TestRetryConstants_Ymodem verifies the transfer timing follows the
// bootloader's expectations.
func TestRetryConstants_Ymodem(t *testing.T) {
	t.Parallel()

	assert.Greater(t, YmodemStartTimeout, YmodemBlockTimeout,
		"the bootloader needs longer to start than to ACK a block")
	assert.GreaterOrEqual(t, YmodemMaxRetries, 3)
	assert.Less(t, DefaultResetPulse, BootSettleDelay)
	assert.Less(t, DefaultReadTimeout, DefaultRequestTimeout)
}
