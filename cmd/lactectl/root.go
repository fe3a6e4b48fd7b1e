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

package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	protolib "github.com/ZaparooProject/go-protolib"
	"github.com/ZaparooProject/go-protolib/config"
	"github.com/ZaparooProject/go-protolib/detection"
	"github.com/ZaparooProject/go-protolib/lacte"
	"github.com/ZaparooProject/go-protolib/transport/uart"
)

var errNoBoard = errors.New("no board answered; pass --device")

// app holds the state shared by every subcommand.
type app struct {
	cfg *config.Config
	// dial opens the serial port; tests swap in a loopback end
	dial func(path string, opts ...uart.Option) (protolib.Transport, error)
	// resetLines opens the reset line, plus the boot line when boot is set
	resetLines func(t protolib.Transport, boot bool) (*lines, error)

	configPath string
	device     string
	output     string
	baud       int
	debug      bool
}

func newApp() *app {
	a := &app{
		cfg: config.Default(),
		dial: func(path string, opts ...uart.Option) (protolib.Transport, error) {
			return uart.New(path, opts...)
		},
	}
	a.resetLines = a.openResetLines
	return a
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "lactectl",
		Short:         "Talk to lacte boards over a serial port",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return protolib.CloseSessionLog()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "config file (.toml, .yaml or .yml)")
	flags.StringVarP(&a.device, "device", "d", "", "serial port (auto-detect if empty)")
	flags.IntVar(&a.baud, "baud", 0, "baud rate (default from config, 115200)")
	flags.BoolVar(&a.debug, "debug", false, "print protocol debug output")
	flags.StringVarP(&a.output, "output", "o", formatText, "output format: text, json, yaml")

	root.AddCommand(
		newDetectCmd(a),
		newInfoCmd(a),
		newVersionCmd(a),
		newUIDCmd(a),
		newRFIDCmd(a),
		newRFIDDataCmd(a),
		newRestartCmd(a),
		newParamCmd(a),
		newFlashCmd(a),
		newResetCmd(a),
		newSimulateCmd(a),
		newWatchCmd(a),
		newConfigCmd(a),
	)
	return root
}

// setup loads the config file, then applies the flags on top of it.
func (a *app) setup(cmd *cobra.Command) error {
	if err := checkFormat(a.output); err != nil {
		return err
	}
	if a.configPath != "" {
		cfg, err := config.Load(a.configPath)
		if err != nil {
			return err
		}
		a.cfg = cfg
	}
	if a.device != "" {
		a.cfg.Device.Path = a.device
	}
	if cmd.Flags().Changed("baud") {
		a.cfg.Device.Baud = a.baud
	}
	if a.debug {
		a.cfg.Log.Debug = true
	}
	if err := a.cfg.Validate(); err != nil {
		return err
	}

	if a.cfg.Log.Debug != protolib.DebugEnabled() {
		protolib.SetDebugEnabled(a.cfg.Log.Debug)
	}
	if a.cfg.Log.SessionLog {
		path, err := protolib.InitSessionLogIn(a.cfg.Log.Dir)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "session log:", path)
	}
	return nil
}

// devicePath returns the configured port, or the first board found by a
// Safe detection run.
func (a *app) devicePath(ctx context.Context) (string, error) {
	if a.cfg.Device.Path != "" {
		return a.cfg.Device.Path, nil
	}
	opts := detection.DefaultOptions()
	devices, err := detection.DetectAll(ctx, &opts)
	if err != nil {
		return "", fmt.Errorf("%w: %w", errNoBoard, err)
	}
	for _, d := range devices {
		if d.Confidence == detection.High {
			protolib.Debugf("using %s", d)
			return d.Path, nil
		}
	}
	return "", errNoBoard
}

func (a *app) open(ctx context.Context) (protolib.Transport, error) {
	path, err := a.devicePath(ctx)
	if err != nil {
		return nil, err
	}
	t, err := a.dial(path, a.cfg.UARTOptions()...)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return protolib.NewTransportWithRetry(t, a.cfg.RetryConfig()), nil
}

// withHost runs fn against a host on the board port.
func (a *app) withHost(ctx context.Context, fn func(context.Context, *lacte.Host) error) error {
	t, err := a.open(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = t.Close() }()
	return a.runHost(ctx, t, fn)
}

// runHost runs a host on t for the duration of fn. t stays open so the
// caller can hand it to another protocol afterwards.
func (a *app) runHost(ctx context.Context, t protolib.Transport, fn func(context.Context, *lacte.Host) error) error {
	host, err := lacte.NewHost(t,
		lacte.WithRetryConfig(a.cfg.RetryConfig()),
		lacte.WithEndpointOptions(a.cfg.EndpointOptions()...))
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return host.Run(gctx) })
	g.Go(func() error {
		defer cancel()
		return fn(gctx, host)
	})
	return g.Wait()
}
