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

// Package config loads lactectl settings from TOML or YAML files.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	protolib "github.com/ZaparooProject/go-protolib"
	"github.com/ZaparooProject/go-protolib/lacte/ymodem"
	"github.com/ZaparooProject/go-protolib/protocol"
	"github.com/ZaparooProject/go-protolib/transport/uart"
)

// Config errors
var (
	ErrUnknownFormat = errors.New("config: unknown file format")
	ErrUnknownKeys   = errors.New("config: unknown keys")
	ErrInvalid       = errors.New("config: invalid value")
)

// Duration is a time.Duration written as a string such as "250ms".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Device selects and configures the serial port.
type Device struct {
	Path        string   `toml:"path" yaml:"path"`
	Baud        int      `toml:"baud" yaml:"baud"`
	ReadTimeout Duration `toml:"read_timeout" yaml:"read_timeout"`
}

// Request configures host requests.
type Request struct {
	Timeout Duration `toml:"timeout" yaml:"timeout"`
	Retries int      `toml:"retries" yaml:"retries"`
}

// Endpoint configures message dispatch.
type Endpoint struct {
	QueueSize int `toml:"queue_size" yaml:"queue_size"`
}

// Reset configures the reset and boot lines. Pin names a host GPIO; when
// it is empty, Signal names a modem line of the serial port instead.
type Reset struct {
	Pin       string   `toml:"pin" yaml:"pin"`
	BootPin   string   `toml:"boot_pin" yaml:"boot_pin"`
	Signal    string   `toml:"signal" yaml:"signal"`
	Pulse     Duration `toml:"pulse" yaml:"pulse"`
	ActiveLow bool     `toml:"active_low" yaml:"active_low"`
}

// Flash configures firmware upload.
type Flash struct {
	StartTimeout Duration `toml:"start_timeout" yaml:"start_timeout"`
	BlockTimeout Duration `toml:"block_timeout" yaml:"block_timeout"`
	MaxRetries   int      `toml:"max_retries" yaml:"max_retries"`
}

// Log configures debug output.
type Log struct {
	Dir        string `toml:"dir" yaml:"dir"`
	Debug      bool   `toml:"debug" yaml:"debug"`
	SessionLog bool   `toml:"session_log" yaml:"session_log"`
}

// Config is the complete lactectl configuration.
type Config struct {
	Device   Device   `toml:"device" yaml:"device"`
	Reset    Reset    `toml:"reset" yaml:"reset"`
	Log      Log      `toml:"log" yaml:"log"`
	Request  Request  `toml:"request" yaml:"request"`
	Flash    Flash    `toml:"flash" yaml:"flash"`
	Endpoint Endpoint `toml:"endpoint" yaml:"endpoint"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Device: Device{
			Baud:        protolib.DefaultBaudRate,
			ReadTimeout: Duration{protolib.DefaultReadTimeout},
		},
		Request: Request{
			Timeout: Duration{protolib.DefaultRequestTimeout},
			Retries: protolib.DefaultRequestRetries,
		},
		Endpoint: Endpoint{QueueSize: protolib.DefaultQueueSize},
		Reset: Reset{
			Signal:    "dtr",
			Pulse:     Duration{protolib.DefaultResetPulse},
			ActiveLow: true,
		},
		Flash: Flash{
			StartTimeout: Duration{protolib.YmodemStartTimeout},
			BlockTimeout: Duration{protolib.YmodemBlockTimeout},
			MaxRetries:   protolib.YmodemMaxRetries,
		},
		Log: Log{Dir: "."},
	}
}

// Load reads path over the defaults and validates the result. The format
// follows the extension: .toml, .yaml or .yml.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is chosen by the operator
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = cfg.decodeTOML(data)
	case ".yaml", ".yml":
		err = cfg.decodeYAML(data)
	default:
		err = fmt.Errorf("%w: %s", ErrUnknownFormat, path)
	}
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) decodeTOML(data []byte) error {
	meta, err := toml.Decode(string(data), c)
	if err != nil {
		return fmt.Errorf("parse toml: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("%w: %s", ErrUnknownKeys, strings.Join(keys, ", "))
	}
	return nil
}

func (c *Config) decodeYAML(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		if strings.Contains(err.Error(), "not found in type") {
			return fmt.Errorf("%w: %w", ErrUnknownKeys, err)
		}
		return fmt.Errorf("parse yaml: %w", err)
	}
	return nil
}

// Validate checks every setting.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...)))
		}
	}
	check(c.Device.Baud > 0, "device.baud %d", c.Device.Baud)
	check(c.Device.ReadTimeout.Duration > 0, "device.read_timeout %v", c.Device.ReadTimeout)
	check(c.Request.Timeout.Duration > 0, "request.timeout %v", c.Request.Timeout)
	check(c.Request.Retries >= 0, "request.retries %d", c.Request.Retries)
	check(c.Endpoint.QueueSize > 0, "endpoint.queue_size %d", c.Endpoint.QueueSize)
	check(c.Reset.Pulse.Duration > 0, "reset.pulse %v", c.Reset.Pulse)
	check(c.Reset.Signal == "" || c.Reset.Signal == "dtr" || c.Reset.Signal == "rts",
		"reset.signal %q (want dtr or rts)", c.Reset.Signal)
	check(c.Flash.StartTimeout.Duration > 0, "flash.start_timeout %v", c.Flash.StartTimeout)
	check(c.Flash.BlockTimeout.Duration > 0, "flash.block_timeout %v", c.Flash.BlockTimeout)
	check(c.Flash.MaxRetries >= 0, "flash.max_retries %d", c.Flash.MaxRetries)
	return errors.Join(errs...)
}

// RetryConfig returns the request retry policy.
func (c *Config) RetryConfig() *protolib.RetryConfig {
	rc := protolib.DefaultRetryConfig()
	rc.MaxAttempts = c.Request.Retries
	return rc
}

// EndpointOptions returns the endpoint settings.
func (c *Config) EndpointOptions() []protocol.EndpointOption {
	return []protocol.EndpointOption{
		protocol.WithQueueSize(c.Endpoint.QueueSize),
		protocol.WithRequestTimeout(c.Request.Timeout.Duration),
	}
}

// UARTOptions returns the serial port settings.
func (c *Config) UARTOptions() []uart.Option {
	return []uart.Option{
		uart.WithBaudRate(c.Device.Baud),
		uart.WithReadTimeout(c.Device.ReadTimeout.Duration),
	}
}

// YmodemOptions returns the flashing settings.
func (c *Config) YmodemOptions() []ymodem.Option {
	return []ymodem.Option{
		ymodem.WithStartTimeout(c.Flash.StartTimeout.Duration),
		ymodem.WithBlockTimeout(c.Flash.BlockTimeout.Duration),
		ymodem.WithMaxRetries(c.Flash.MaxRetries),
	}
}
