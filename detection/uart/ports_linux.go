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
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	protolib "github.com/ZaparooProject/go-protolib"
)

// Replaced in tests with a fake sysfs tree.
var (
	sysTTYDir = "/sys/class/tty"
	devDir    = "/dev"
)

var (
	builtinPatterns  = []string{"ttyS*", "ttyAMA*"}
	fallbackPatterns = []string{"ttyUSB*", "ttyACM*", "ttyS*", "ttyAMA*"}
)

// getSerialPorts lists USB serial ports with their sysfs metadata, then
// the on-board UARTs. With no sysfs it falls back to globbing /dev.
func getSerialPorts(ctx context.Context) ([]serialPort, error) {
	ports, err := usbSerialPorts(sysTTYDir)
	if err != nil {
		protolib.Debugf("sysfs enumeration failed: %v", err)
	}
	ports = append(ports, globPorts(ctx, builtinPatterns)...)
	if len(ports) == 0 {
		return globPorts(ctx, fallbackPatterns), nil
	}
	return ports, nil
}

func usbSerialPorts(ttyDir string) ([]serialPort, error) {
	entries, err := os.ReadDir(ttyDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", ttyDir, err)
	}
	var ports []serialPort
	for _, entry := range entries {
		if port, ok := usbSerialPort(ttyDir, entry.Name()); ok {
			ports = append(ports, port)
		}
	}
	return ports, nil
}

// usbSerialPort resolves the device link of a tty class entry. Only
// entries backed by a USB interface are returned.
func usbSerialPort(ttyDir, name string) (serialPort, bool) {
	resolved, err := filepath.EvalSymlinks(filepath.Join(ttyDir, name, "device"))
	if err != nil || !strings.Contains(resolved, "/usb") {
		return serialPort{}, false
	}
	port := serialPort{
		Path: filepath.Join(devDir, name),
		Name: name,
	}
	readUSBAttributes(&port, resolved)
	return port, true
}

// readUSBAttributes walks up from the interface directory to the USB
// device directory holding idVendor and idProduct.
func readUSBAttributes(port *serialPort, dir string) {
	for range 10 {
		if readUSBIdentifiers(port, dir) {
			return
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return
		}
		dir = parent
	}
}

func readUSBIdentifiers(port *serialPort, dir string) bool {
	vid, ok := readAttr(dir, "idVendor")
	if !ok {
		return false
	}
	pid, ok := readAttr(dir, "idProduct")
	if !ok {
		return false
	}
	port.VIDPID = strings.ToUpper(vid + ":" + pid)
	port.Manufacturer, _ = readAttr(dir, "manufacturer")
	port.Product, _ = readAttr(dir, "product")
	port.SerialNumber, _ = readAttr(dir, "serial")
	return true
}

func readAttr(dir, name string) (string, bool) {
	b, err := os.ReadFile(filepath.Join(filepath.Clean(dir), name)) // #nosec G304 -- sysfs attribute
	if err != nil {
		return "", false
	}
	return strings.TrimSpace(string(b)), true
}

func globPorts(ctx context.Context, patterns []string) []serialPort {
	var ports []serialPort
	for _, pattern := range patterns {
		if ctx.Err() != nil {
			return ports
		}
		matches, err := filepath.Glob(filepath.Join(devDir, pattern))
		if err != nil {
			continue
		}
		for _, path := range matches {
			if _, err := os.Stat(path); err == nil {
				ports = append(ports, serialPort{Path: path, Name: filepath.Base(path)})
			}
		}
	}
	return ports
}
