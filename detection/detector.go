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

// Package detection finds lacte boards attached to the host. Each
// transport registers a Detector; DetectAll runs them concurrently and
// caches what they find.
package detection

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	protolib "github.com/ZaparooProject/go-protolib"
	"golang.org/x/sync/errgroup"
)

// Mode is how much a detector may talk to a candidate port.
type Mode int

const (
	// Passive only inspects USB descriptors.
	Passive Mode = iota
	// Safe sends a single VERSION request.
	Safe
	// Full sends VERSION and then UID.
	Full
)

var modeNames = [...]string{"passive", "safe", "full"}

func (m Mode) String() string {
	if m < 0 || int(m) >= len(modeNames) {
		return fmt.Sprintf("Mode(%d)", int(m))
	}
	return modeNames[m]
}

// ParseMode is the inverse of Mode.String.
func ParseMode(s string) (Mode, error) {
	for i, name := range modeNames {
		if strings.EqualFold(s, name) {
			return Mode(i), nil
		}
	}
	return 0, fmt.Errorf("%w: detection mode %q", protolib.ErrInvalidParameter, s)
}

// Confidence is how sure a detector is that a port hosts a lacte board.
type Confidence int

const (
	// Low means the port exists and was not ruled out.
	Low Confidence = iota
	// Medium means the USB descriptor matches a known adapter.
	Medium
	// High means the board answered a request.
	High
)

func (c Confidence) String() string {
	switch c {
	case Low:
		return "low"
	case Medium:
		return "medium"
	case High:
		return "high"
	default:
		return "unknown"
	}
}

// MarshalText renders the confidence by name in JSON and YAML output.
func (c Confidence) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// DeviceInfo describes one candidate board.
type DeviceInfo struct {
	// vidpid, manufacturer, product, serial, version, uid
	Metadata   map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	Transport  string            `json:"transport" yaml:"transport"`
	Path       string            `json:"path" yaml:"path"`
	Name       string            `json:"name,omitempty" yaml:"name,omitempty"`
	Confidence Confidence        `json:"confidence" yaml:"confidence"`
}

func (d DeviceInfo) String() string {
	return fmt.Sprintf("%s device at %s (confidence: %s)", d.Transport, d.Path, d.Confidence)
}

// Options configures DetectAll.
type Options struct {
	// USB VID:PID pairs never probed, e.g. "0403:6001"
	Blocklist []string
	// Ports never reported, e.g. "/dev/ttyUSB0" or "COM2"
	IgnorePaths []string
	// Transports to run; empty runs every registered detector
	Transports []string
	CacheTTL   time.Duration
	// Bound on the whole run; zero leaves ctx as is
	Timeout time.Duration
	// Bound on one probe
	ProbeTimeout time.Duration
	Mode         Mode
	EnableCache  bool
}

// DefaultOptions probes in Safe mode and caches results for 30s.
func DefaultOptions() Options {
	return Options{
		Mode:         Safe,
		Timeout:      5 * time.Second,
		ProbeTimeout: 2 * time.Second,
		Blocklist:    DefaultBlocklist(),
		EnableCache:  true,
		CacheTTL:     30 * time.Second,
	}
}

// Detector finds boards on one kind of transport.
type Detector interface {
	Detect(ctx context.Context, opts *Options) ([]DeviceInfo, error)
	Transport() string
}

// Detection errors
var (
	ErrNoDevicesFound      = errors.New("no lacte devices found")
	ErrNoDetectors         = errors.New("no detectors available for specified transports")
	ErrDetectionTimeout    = errors.New("detection timeout")
	ErrUnsupportedPlatform = errors.New("platform not supported")
)

var registry []Detector

// RegisterDetector adds d to the set DetectAll runs. Detectors register
// from init, so the registry is not locked.
func RegisterDetector(d Detector) {
	registry = append(registry, d)
}

func getDetectors(transports []string) []Detector {
	if len(transports) == 0 {
		return registry
	}
	var filtered []Detector
	for _, d := range registry {
		for _, t := range transports {
			if d.Transport() == t {
				filtered = append(filtered, d)
				break
			}
		}
	}
	return filtered
}

// DetectAll runs every selected detector concurrently. Devices are
// returned when at least one detector found some, even if others failed.
func DetectAll(ctx context.Context, opts *Options) ([]DeviceInfo, error) {
	detectors := getDetectors(opts.Transports)
	if len(detectors) == 0 {
		return nil, ErrNoDetectors
	}
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	found := make([][]DeviceInfo, len(detectors))
	errs := make([]error, len(detectors))
	var g errgroup.Group
	for i, d := range detectors {
		g.Go(func() error {
			found[i], errs[i] = runDetector(ctx, d, opts)
			return nil
		})
	}
	_ = g.Wait()

	var all []DeviceInfo
	for _, devices := range found {
		all = append(all, devices...)
	}
	if len(all) > 0 {
		return all, nil
	}
	if ctx.Err() != nil {
		return nil, ErrDetectionTimeout
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return nil, ErrNoDevicesFound
}

func runDetector(ctx context.Context, d Detector, opts *Options) ([]DeviceInfo, error) {
	transport := d.Transport()
	if opts.EnableCache {
		if cached, ok := results.get(transport, opts.CacheTTL); ok {
			// Options may have changed since the entry was stored.
			return filterDevices(cached, opts), nil
		}
	}

	devices, err := d.Detect(ctx, opts)
	if err != nil && !errors.Is(err, ErrNoDevicesFound) {
		protolib.Debugf("%s detection failed: %v", transport, err)
		return nil, fmt.Errorf("%s: %w", transport, err)
	}
	if opts.EnableCache {
		if len(devices) > 0 {
			results.put(transport, devices)
		} else {
			// A board that went away must not linger until the TTL.
			results.drop(transport)
		}
	}
	return devices, nil
}

func filterDevices(devices []DeviceInfo, opts *Options) []DeviceInfo {
	if len(opts.IgnorePaths) == 0 && len(opts.Blocklist) == 0 {
		return devices
	}
	var filtered []DeviceInfo
	for _, device := range devices {
		if IsPathIgnored(device.Path, opts.IgnorePaths) {
			continue
		}
		if vidpid, ok := device.Metadata["vidpid"]; ok && IsBlocked(vidpid, opts.Blocklist) {
			continue
		}
		filtered = append(filtered, device)
	}
	return filtered
}

// ClearDetectionCache forgets every cached result.
func ClearDetectionCache() {
	results.reset()
}

// ClearDetectionCacheForTransport forgets the cached result of one transport.
func ClearDetectionCacheForTransport(transport string) {
	results.drop(transport)
}
