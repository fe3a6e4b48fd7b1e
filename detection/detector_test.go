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

//nolint:paralleltest // Tests swap the package-level registry and cache
package detection

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMode_StringParse(t *testing.T) {
	for _, m := range []Mode{Passive, Safe, Full} {
		got, err := ParseMode(m.String())
		require.NoError(t, err)
		assert.Equal(t, m, got)
	}
	got, err := ParseMode("SAFE")
	require.NoError(t, err)
	assert.Equal(t, Safe, got)

	_, err = ParseMode("aggressive")
	require.Error(t, err)
	assert.Equal(t, "Mode(7)", Mode(7).String())
}

func TestDeviceInfo_String(t *testing.T) {
	tests := []struct {
		name     string
		expected string
		device   DeviceInfo
	}{
		{
			name:     "low",
			device:   DeviceInfo{Transport: "uart", Path: "/dev/ttyUSB0", Confidence: Low},
			expected: "uart device at /dev/ttyUSB0 (confidence: low)",
		},
		{
			name:     "medium",
			device:   DeviceInfo{Transport: "uart", Path: "/dev/ttyACM0", Confidence: Medium},
			expected: "uart device at /dev/ttyACM0 (confidence: medium)",
		},
		{
			name:     "high",
			device:   DeviceInfo{Transport: "uart", Path: "COM3", Confidence: High},
			expected: "uart device at COM3 (confidence: high)",
		},
		{
			name:     "unknown",
			device:   DeviceInfo{Transport: "uart", Path: "/dev/ttyUSB1", Confidence: Confidence(99)},
			expected: "uart device at /dev/ttyUSB1 (confidence: unknown)",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.device.String())
		})
	}
}

func TestDeviceInfo_JSON(t *testing.T) {
	b, err := json.Marshal(DeviceInfo{
		Transport:  "uart",
		Path:       "/dev/ttyUSB0",
		Confidence: High,
		Metadata:   map[string]string{"version": "1.0"},
	})
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"transport":"uart","path":"/dev/ttyUSB0","confidence":"high","metadata":{"version":"1.0"}}`,
		string(b))
}

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()

	assert.Equal(t, Safe, opts.Mode)
	assert.Equal(t, 5*time.Second, opts.Timeout)
	assert.Equal(t, 2*time.Second, opts.ProbeTimeout)
	assert.True(t, opts.EnableCache)
	assert.Equal(t, 30*time.Second, opts.CacheTTL)
	assert.NotEmpty(t, opts.Blocklist)
	assert.Nil(t, opts.IgnorePaths)
}

func newTestCache(now *time.Time) *resultCache {
	c := newResultCache()
	c.now = func() time.Time { return *now }
	return c
}

func TestResultCache_TTL(t *testing.T) {
	now := time.Unix(1700000000, 0)
	c := newTestCache(&now)

	_, ok := c.get("uart", time.Minute)
	assert.False(t, ok)

	c.put("uart", []DeviceInfo{{Transport: "uart", Path: "/dev/ttyUSB0"}})
	got, ok := c.get("uart", time.Minute)
	require.True(t, ok)
	assert.Equal(t, "/dev/ttyUSB0", got[0].Path)

	now = now.Add(2 * time.Minute)
	_, ok = c.get("uart", time.Minute)
	assert.False(t, ok)
}

func TestResultCache_Copies(t *testing.T) {
	now := time.Unix(1700000000, 0)
	c := newTestCache(&now)

	devices := []DeviceInfo{{Transport: "uart", Path: "/dev/ttyUSB0"}}
	c.put("uart", devices)
	devices[0].Path = "/dev/ttyUSB1"

	got, ok := c.get("uart", time.Minute)
	require.True(t, ok)
	assert.Equal(t, "/dev/ttyUSB0", got[0].Path)

	got[0].Path = "/dev/ttyUSB2"
	again, _ := c.get("uart", time.Minute)
	assert.Equal(t, "/dev/ttyUSB0", again[0].Path)
}

func TestResultCache_DropReset(t *testing.T) {
	now := time.Unix(1700000000, 0)
	c := newTestCache(&now)

	c.put("uart", []DeviceInfo{{Transport: "uart"}})
	c.put("mock", []DeviceInfo{{Transport: "mock"}})

	c.drop("uart")
	_, ok := c.get("uart", time.Minute)
	assert.False(t, ok)
	_, ok = c.get("mock", time.Minute)
	assert.True(t, ok)

	c.reset()
	_, ok = c.get("mock", time.Minute)
	assert.False(t, ok)
}

func TestIsBlocked(t *testing.T) {
	blocklist := []string{"1234:5678", "ABCD:EF01"}

	tests := []struct {
		name    string
		vidpid  string
		blocked bool
	}{
		{"exact", "1234:5678", true},
		{"upper", "ABCD:EF01", true},
		{"case insensitive", "abcd:ef01", true},
		{"descriptor form", "VID_1234&PID_5678", true},
		{"not listed", "9999:9999", false},
		{"empty", "", false},
		{"partial", "1234:", false},
		{"whitespace", "  1234:5678  ", true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.blocked, IsBlocked(tc.vidpid, blocklist))
		})
	}
}

func TestParseVIDPID(t *testing.T) {
	tests := []struct {
		name       string
		descriptor string
		expected   string
	}{
		{"plain", "1234:5678", "1234:5678"},
		{"VID:PID", "VID:1234 PID:5678", "1234:5678"},
		{"VID=PID=", "VID=1234 PID=5678", "1234:5678"},
		{"windows hardware id", "USB\\VID_1A86&PID_7523\\5&1234", "1A86:7523"},
		{"vendor product", "vendor=1234 product=5678", "1234:5678"},
		{"mixed case", "vid:abcd pid:ef01", "ABCD:EF01"},
		{"invalid", "not a valid descriptor", ""},
		{"empty", "", ""},
		{"only VID", "VID:1234", ""},
		{"only PID", "PID:5678", ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, ParseVIDPID(tc.descriptor))
		})
	}
}

type stubDetector struct {
	err       error
	transport string
	devices   []DeviceInfo
	calls     int
}

func (s *stubDetector) Detect(_ context.Context, _ *Options) ([]DeviceInfo, error) {
	s.calls++
	return s.devices, s.err
}

func (s *stubDetector) Transport() string {
	return s.transport
}

type blockingDetector struct{}

func (*blockingDetector) Detect(ctx context.Context, _ *Options) ([]DeviceInfo, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (*blockingDetector) Transport() string {
	return "blocking"
}

func withRegistry(t *testing.T, detectors ...Detector) {
	t.Helper()
	saved := registry
	registry = nil
	for _, d := range detectors {
		RegisterDetector(d)
	}
	ClearDetectionCache()
	t.Cleanup(func() {
		registry = saved
		ClearDetectionCache()
	})
}

func TestGetDetectors_FilterByTransport(t *testing.T) {
	withRegistry(t,
		&stubDetector{transport: "uart"},
		&stubDetector{transport: "mock"},
		&stubDetector{transport: "loopback"})

	tests := []struct {
		name       string
		transports []string
		expected   int
	}{
		{"all", nil, 3},
		{"empty", []string{}, 3},
		{"single", []string{"uart"}, 1},
		{"two", []string{"uart", "mock"}, 2},
		{"missing", []string{"usb"}, 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Len(t, getDetectors(tc.transports), tc.expected)
		})
	}
}

func TestDetectAll_NoDetectors(t *testing.T) {
	withRegistry(t)

	opts := DefaultOptions()
	opts.Transports = []string{"nonexistent"}
	_, err := DetectAll(context.Background(), &opts)
	require.ErrorIs(t, err, ErrNoDetectors)
}

func TestDetectAll_Timeout(t *testing.T) {
	withRegistry(t, &blockingDetector{})

	opts := DefaultOptions()
	opts.Timeout = 10 * time.Millisecond
	opts.EnableCache = false

	_, err := DetectAll(context.Background(), &opts)
	require.ErrorIs(t, err, ErrDetectionTimeout)
}

func TestDetectAll_PartialFailure(t *testing.T) {
	failing := &stubDetector{transport: "mock", err: errors.New("bus error")}
	working := &stubDetector{
		transport: "uart",
		devices:   []DeviceInfo{{Transport: "uart", Path: "/dev/ttyUSB0", Confidence: High}},
	}
	withRegistry(t, failing, working)

	opts := DefaultOptions()
	opts.EnableCache = false
	devices, err := DetectAll(context.Background(), &opts)
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "/dev/ttyUSB0", devices[0].Path)
}

func TestDetectAll_Errors(t *testing.T) {
	withRegistry(t, &stubDetector{transport: "mock", err: errors.New("bus error")})

	opts := DefaultOptions()
	opts.EnableCache = false
	_, err := DetectAll(context.Background(), &opts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mock: bus error")

	withRegistry(t, &stubDetector{transport: "uart", err: ErrNoDevicesFound})
	_, err = DetectAll(context.Background(), &opts)
	require.ErrorIs(t, err, ErrNoDevicesFound)
}

func TestDetectAll_CacheFiltersAndClears(t *testing.T) {
	stub := &stubDetector{
		transport: "uart",
		devices: []DeviceInfo{
			{Transport: "uart", Path: "/dev/ttyUSB0", Metadata: map[string]string{"vidpid": "1A86:7523"}},
			{Transport: "uart", Path: "/dev/ttyUSB1"},
		},
	}
	withRegistry(t, stub)

	opts := DefaultOptions()
	devices, err := DetectAll(context.Background(), &opts)
	require.NoError(t, err)
	assert.Len(t, devices, 2)

	opts.IgnorePaths = []string{"/dev/ttyUSB1"}
	devices, err = DetectAll(context.Background(), &opts)
	require.NoError(t, err)
	require.Len(t, devices, 1, "cached results honour the new ignore list")
	assert.Equal(t, 1, stub.calls)

	opts.IgnorePaths = nil
	opts.Blocklist = []string{"1a86:7523"}
	devices, err = DetectAll(context.Background(), &opts)
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "/dev/ttyUSB1", devices[0].Path)

	ClearDetectionCacheForTransport("uart")
	stub.devices = nil
	stub.err = ErrNoDevicesFound
	_, err = DetectAll(context.Background(), &opts)
	require.ErrorIs(t, err, ErrNoDevicesFound)
	assert.Equal(t, 2, stub.calls)
	_, ok := results.get("uart", time.Minute)
	assert.False(t, ok, "an empty result clears the cache entry")
}
