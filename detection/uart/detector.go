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

// Package uart registers a detector that looks for lacte boards on serial
// ports. Importing it for side effects is enough:
//
//	import _ "github.com/ZaparooProject/go-protolib/detection/uart"
package uart

import (
	"context"
	"fmt"
	"strings"
	"time"

	protolib "github.com/ZaparooProject/go-protolib"
	"github.com/ZaparooProject/go-protolib/detection"
	"github.com/ZaparooProject/go-protolib/lacte"
	"github.com/ZaparooProject/go-protolib/protocol"
	"github.com/ZaparooProject/go-protolib/transport/uart"
	"golang.org/x/sync/errgroup"
)

const (
	// Ports probed at the same time.
	probeParallelism = 4
	probeReadTimeout = 20 * time.Millisecond
	probeAnswerWait  = 300 * time.Millisecond
)

// serialPort is one enumerated port with whatever USB metadata the
// platform exposes.
type serialPort struct {
	Path         string
	Name         string
	VIDPID       string
	Manufacturer string
	Product      string
	SerialNumber string
}

// probeResult is what a board told us about itself.
type probeResult struct {
	Version string
	UID     string
}

// probeDeviceFn is replaced in tests.
var probeDeviceFn = probeDevice

type detector struct{}

// New returns the serial port detector.
func New() detection.Detector {
	return &detector{}
}

func init() {
	detection.RegisterDetector(New())
}

func (*detector) Transport() string {
	return "uart"
}

// Detect enumerates serial ports and, unless opts.Mode is Passive, asks
// each candidate for its firmware version.
func (d *detector) Detect(ctx context.Context, opts *detection.Options) ([]detection.DeviceInfo, error) {
	ports, err := getSerialPorts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate serial ports: %w", err)
	}
	ports = filterPorts(ports, opts)
	if len(ports) == 0 {
		return nil, detection.ErrNoDevicesFound
	}

	found := make([]*detection.DeviceInfo, len(ports))
	var g errgroup.Group
	g.SetLimit(probeParallelism)
	for i := range ports {
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			if device, ok := d.processPort(ctx, &ports[i], opts); ok {
				found[i] = &device
			}
			return nil
		})
	}
	_ = g.Wait()

	var devices []detection.DeviceInfo
	for _, device := range found {
		if device != nil {
			devices = append(devices, *device)
		}
	}
	if len(devices) == 0 {
		return nil, detection.ErrNoDevicesFound
	}
	return devices, nil
}

// filterPorts drops blocked and ignored ports. Outside Full mode it also
// drops ports that look like neither a USB serial adapter nor a board.
func filterPorts(ports []serialPort, opts *detection.Options) []serialPort {
	var filtered []serialPort
	for i := range ports {
		port := &ports[i]
		if port.VIDPID != "" && detection.IsBlocked(port.VIDPID, opts.Blocklist) {
			continue
		}
		if detection.IsPathIgnored(port.Path, opts.IgnorePaths) {
			continue
		}
		if opts.Mode != detection.Full && !matchesGoodPatterns(port) && !isLikelyBoard(port) {
			continue
		}
		filtered = append(filtered, *port)
	}
	return filtered
}

func matchesGoodPatterns(port *serialPort) bool {
	goodPatterns := []string{
		"ttyusb", "ttyacm", "ttyama", // Linux USB adapters and the Raspberry Pi UART
		"usbserial", "slab_usbtouart", "usbmodem", "wchusbserial", // macOS
	}
	goodManufacturers := []string{
		"ftdi", "future technology devices international",
		"silicon labs", "prolific", "qinheng", "wch.cn", "stmicroelectronics",
	}

	name := strings.ToLower(port.Name)
	path := strings.ToLower(port.Path)
	for _, pattern := range goodPatterns {
		if strings.Contains(name, pattern) || strings.Contains(path, pattern) {
			return true
		}
	}
	manufacturer := strings.ToLower(port.Manufacturer)
	for _, m := range goodManufacturers {
		if strings.Contains(manufacturer, m) {
			return true
		}
	}
	return false
}

// isLikelyBoard reports whether the USB descriptor matches an adapter or
// MCU seen on lacte boards.
func isLikelyBoard(port *serialPort) bool {
	known := []string{
		"1A86:7523", // QinHeng CH340
		"10C4:EA60", // Silicon Labs CP210x
		"0403:6001", // FTDI FT232
		"067B:2303", // Prolific PL2303
		"0483:5740", // STM32 virtual COM port
	}
	if id := detection.ParseVIDPID(port.VIDPID); id != "" {
		for _, k := range known {
			if id == k {
				return true
			}
		}
	}

	product := strings.ToLower(port.Product)
	manufacturer := strings.ToLower(port.Manufacturer)
	for _, keyword := range []string{"lacte", "stm32", "virtual com"} {
		if strings.Contains(product, keyword) || strings.Contains(manufacturer, keyword) {
			return true
		}
	}
	return false
}

func (d *detector) processPort(
	ctx context.Context, port *serialPort, opts *detection.Options,
) (detection.DeviceInfo, bool) {
	confidence, shouldProbe := d.determinePortHandling(port, opts.Mode)
	if opts.Mode == detection.Passive && confidence == detection.Low {
		return detection.DeviceInfo{}, false
	}

	device := createDeviceInfo(port, confidence)
	if !shouldProbe {
		return device, true
	}

	probeTimeout := opts.ProbeTimeout
	if probeTimeout <= 0 {
		probeTimeout = 2 * time.Second
	}
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	res, err := probeDeviceFn(probeCtx, port.Path, opts.Mode)
	if err != nil {
		// A port that stays silent is not reported, whatever its descriptor says.
		protolib.Debugf("probe %s: %v", port.Path, err)
		return detection.DeviceInfo{}, false
	}
	device.Confidence = detection.High
	if res.Version != "" {
		device.Metadata["version"] = res.Version
	}
	if res.UID != "" {
		device.Metadata["uid"] = res.UID
	}
	return device, true
}

// determinePortHandling returns the confidence a port starts with and
// whether to probe it.
func (*detector) determinePortHandling(port *serialPort, mode detection.Mode) (detection.Confidence, bool) {
	likely := isLikelyBoard(port)
	switch mode {
	case detection.Passive:
		if likely {
			return detection.Medium, false
		}
		return detection.Low, false
	case detection.Safe, detection.Full:
		if likely {
			return detection.Medium, true
		}
		return detection.Low, true
	default:
		return detection.Low, false
	}
}

func createDeviceInfo(port *serialPort, confidence detection.Confidence) detection.DeviceInfo {
	device := detection.DeviceInfo{
		Transport:  "uart",
		Path:       port.Path,
		Name:       port.Name,
		Confidence: confidence,
		Metadata:   make(map[string]string),
	}
	for key, value := range map[string]string{
		"vidpid":       port.VIDPID,
		"manufacturer": port.Manufacturer,
		"product":      port.Product,
		"serial":       port.SerialNumber,
	} {
		if value != "" {
			device.Metadata[key] = value
		}
	}
	return device
}

// probeDevice opens path and runs probeTransport on it.
func probeDevice(ctx context.Context, path string, mode detection.Mode) (probeResult, error) {
	t, err := uart.New(path, uart.WithReadTimeout(probeReadTimeout))
	if err != nil {
		return probeResult{}, err
	}
	return probeTransport(ctx, t, mode)
}

// probeTransport asks for the firmware version, plus the MCU UID in Full
// mode. Each request is sent once so a port that is not a board gets as
// little traffic as possible. t is closed on return.
func probeTransport(ctx context.Context, t protolib.Transport, mode detection.Mode) (probeResult, error) {
	host, err := lacte.NewHost(t,
		lacte.WithRetryConfig(&protolib.RetryConfig{}),
		lacte.WithEndpointOptions(protocol.WithRequestTimeout(probeAnswerWait)))
	if err != nil {
		_ = t.Close()
		return probeResult{}, err
	}
	defer func() { _ = host.Close() }()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return host.Run(gctx) })

	var res probeResult
	g.Go(func() error {
		defer cancel()
		v, err := host.GetVersion(gctx)
		if err != nil {
			return err
		}
		res.Version = v.String()
		if mode != detection.Full {
			return nil
		}
		uid, err := host.GetUID(gctx)
		if err != nil {
			return err
		}
		res.UID = uid.String()
		return nil
	})
	if err := g.Wait(); err != nil {
		return probeResult{}, err
	}
	return res, nil
}
