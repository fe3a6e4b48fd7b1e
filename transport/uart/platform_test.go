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

package uart

import (
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	protolib "github.com/ZaparooProject/go-protolib"
)

func TestPlatformTimings(t *testing.T) {
	t.Parallel()

	onWindows := runtime.GOOS == "windows"
	assert.Equal(t, onWindows, isWindows())

	want := protolib.DefaultReadTimeout
	if onWindows {
		want *= 2
	}
	assert.Equal(t, want, defaultReadTimeout())

	start := time.Now()
	windowsPostWriteDelay()
	if onWindows {
		assert.GreaterOrEqual(t, time.Since(start), 15*time.Millisecond)
	} else {
		assert.Less(t, time.Since(start), 5*time.Millisecond)
	}
}
