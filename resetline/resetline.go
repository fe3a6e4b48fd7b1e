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

// Package resetline drives the board reset and boot-select lines, either
// through host GPIO pins or through the DTR and RTS lines of a serial
// adapter.
package resetline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	protolib "github.com/ZaparooProject/go-protolib"
)

// Errors
var (
	ErrPinNotFound  = errors.New("resetline: pin not found")
	ErrNoModemLines = errors.New("resetline: transport cannot drive modem lines")
)

// Line is a digital output with an active level.
type Line interface {
	// Set drives the line to its active level when active is true.
	Set(active bool) error
	Name() string
}

type gpioLine struct {
	pin       gpio.PinOut
	activeLow bool
}

// Open finds a host GPIO pin by name, such as "GPIO17".
func Open(name string, activeLow bool) (Line, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("%w: %s", ErrPinNotFound, name)
	}
	return FromPin(pin, activeLow), nil
}

// FromPin wraps an already resolved pin.
func FromPin(pin gpio.PinOut, activeLow bool) Line {
	return &gpioLine{pin: pin, activeLow: activeLow}
}

func (l *gpioLine) Set(active bool) error {
	level := gpio.Level(active != l.activeLow)
	if err := l.pin.Out(level); err != nil {
		return fmt.Errorf("set %s: %w", l.pin.Name(), err)
	}
	return nil
}

func (l *gpioLine) Name() string {
	return l.pin.Name()
}

// Signal selects a modem control line.
type Signal string

// Modem control lines
const (
	DTR Signal = "dtr"
	RTS Signal = "rts"
)

type modemLine struct {
	lines     protolib.ModemLines
	signal    Signal
	activeLow bool
}

// FromTransport drives sig on t. Most USB serial adapters invert DTR and
// RTS, so activeLow is usually true.
func FromTransport(t protolib.Transport, sig Signal, activeLow bool) (Line, error) {
	lines, ok := t.(protolib.ModemLines)
	if !ok || !protolib.HasCapability(t, protolib.CapabilityModemLines) {
		return nil, fmt.Errorf("%w: %s", ErrNoModemLines, t.Type())
	}
	if sig != DTR && sig != RTS {
		return nil, fmt.Errorf("resetline: unknown signal %q", sig)
	}
	return &modemLine{lines: lines, signal: sig, activeLow: activeLow}, nil
}

func (l *modemLine) Set(active bool) error {
	level := active != l.activeLow
	if l.signal == DTR {
		return l.lines.SetDTR(level)
	}
	return l.lines.SetRTS(level)
}

func (l *modemLine) Name() string {
	return string(l.signal)
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pulse holds reset active for d, releases it and waits for the board to
// boot. A zero d uses DefaultResetPulse. Reset is released even when ctx
// is cancelled.
func Pulse(ctx context.Context, reset Line, d time.Duration) error {
	if d <= 0 {
		d = protolib.DefaultResetPulse
	}
	protolib.Debugf("resetline: pulsing %s for %v", reset.Name(), d)
	if err := reset.Set(true); err != nil {
		return err
	}
	waitErr := sleep(ctx, d)
	if err := reset.Set(false); err != nil {
		return err
	}
	if waitErr != nil {
		return waitErr
	}
	return sleep(ctx, protolib.BootSettleDelay)
}

// EnterBootloader holds boot active across a reset pulse so the board
// starts its bootloader, then releases boot.
func EnterBootloader(ctx context.Context, reset, boot Line, d time.Duration) error {
	if err := boot.Set(true); err != nil {
		return err
	}
	err := Pulse(ctx, reset, d)
	if relErr := boot.Set(false); err == nil {
		err = relErr
	}
	return err
}
