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
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	protolib "github.com/ZaparooProject/go-protolib"
	"github.com/ZaparooProject/go-protolib/lacte"
	"github.com/ZaparooProject/go-protolib/lacte/ymodem"
	"github.com/ZaparooProject/go-protolib/resetline"
)

var (
	errBootRefused = errors.New("board refused to enter its bootloader")
	errNoBootLine  = errors.New("reset.boot_pin is required with reset.pin")
)

// lines are the reset and, when requested, boot select outputs.
type lines struct {
	reset resetline.Line
	boot  resetline.Line
}

// openResetLines uses host GPIOs when reset.pin is set. Otherwise reset
// is the configured modem line of t and boot the other one.
func (a *app) openResetLines(t protolib.Transport, boot bool) (*lines, error) {
	rc := a.cfg.Reset
	if rc.Pin != "" {
		l := &lines{}
		var err error
		if l.reset, err = resetline.Open(rc.Pin, rc.ActiveLow); err != nil {
			return nil, err
		}
		if !boot {
			return l, nil
		}
		if rc.BootPin == "" {
			return nil, errNoBootLine
		}
		if l.boot, err = resetline.Open(rc.BootPin, rc.ActiveLow); err != nil {
			return nil, err
		}
		return l, nil
	}

	resetSig, bootSig := resetline.DTR, resetline.RTS
	if resetline.Signal(rc.Signal) == resetline.RTS {
		resetSig, bootSig = resetline.RTS, resetline.DTR
	}
	l := &lines{}
	var err error
	if l.reset, err = resetline.FromTransport(t, resetSig, rc.ActiveLow); err != nil {
		return nil, err
	}
	if boot {
		if l.boot, err = resetline.FromTransport(t, bootSig, rc.ActiveLow); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// pulse resets the board, into its bootloader when l has a boot line.
func (a *app) pulse(ctx context.Context, l *lines) error {
	d := a.cfg.Reset.Pulse.Duration
	if l.boot != nil {
		return resetline.EnterBootloader(ctx, l.reset, l.boot, d)
	}
	return resetline.Pulse(ctx, l.reset, d)
}

type resetResult struct {
	Line       string `json:"line" yaml:"line"`
	Bootloader bool   `json:"bootloader" yaml:"bootloader"`
}

func newResetCmd(a *app) *cobra.Command {
	var boot bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Pulse the reset line, optionally into the bootloader",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var t protolib.Transport
			if a.cfg.Reset.Pin == "" {
				var err error
				if t, err = a.open(cmd.Context()); err != nil {
					return err
				}
				defer func() { _ = t.Close() }()
			}
			l, err := a.resetLines(t, boot)
			if err != nil {
				return err
			}
			if err := a.pulse(cmd.Context(), l); err != nil {
				return err
			}
			return a.emit(cmd, resetResult{Line: l.reset.Name(), Bootloader: boot})
		},
	}
	cmd.Flags().BoolVar(&boot, "boot", false, "hold the boot line during reset")
	return cmd
}

// Ways to get the board into its bootloader before a transfer.
const (
	enterRestart = "restart"
	enterReset   = "reset"
	enterNone    = "none"
)

type flashResult struct {
	Image string `json:"image" yaml:"image"`
	Size  int64  `json:"size" yaml:"size"`
}

func (r flashResult) String() string {
	return fmt.Sprintf("flashed %s (%d bytes)", r.Image, r.Size)
}

func newFlashCmd(a *app) *cobra.Command {
	var enter string
	cmd := &cobra.Command{
		Use:   "flash <image>",
		Short: "Upload a firmware image with Ymodem",
		Long: `Upload a firmware image with Ymodem.

By default the board is sent a RESTART request first so it starts its
bootloader. --enter reset uses the reset and boot lines instead, and
--enter none expects the bootloader to be running already.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			image := args[0]
			info, err := os.Stat(image)
			if err != nil {
				return fmt.Errorf("firmware image: %w", err)
			}
			if enter != enterRestart && enter != enterReset && enter != enterNone {
				return fmt.Errorf("%w: --enter %q", protolib.ErrInvalidParameter, enter)
			}

			ctx := cmd.Context()
			t, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = t.Close() }()

			if err := a.enterBootloader(ctx, t, enter); err != nil {
				return err
			}

			opts := append(a.cfg.YmodemOptions(), ymodem.WithProgress(progressPrinter(cmd.ErrOrStderr())))
			if err := ymodem.NewSender(t, opts...).Flash(ctx, image); err != nil {
				if te := protolib.GetTrace(err); te != nil && protolib.DebugEnabled() {
					_, _ = fmt.Fprint(cmd.ErrOrStderr(), te.FormatTrace())
				}
				return err
			}
			return a.emit(cmd, flashResult{Image: filepath.Base(image), Size: info.Size()})
		},
	}
	cmd.Flags().StringVar(&enter, "enter", enterRestart, "how to start the bootloader: restart, reset or none")
	return cmd
}

func (a *app) enterBootloader(ctx context.Context, t protolib.Transport, enter string) error {
	switch enter {
	case enterRestart:
		return a.runHost(ctx, t, func(ctx context.Context, h *lacte.Host) error {
			answer, err := h.Restart(ctx, nil)
			if err != nil {
				return err
			}
			if answer != lacte.BootYes {
				return fmt.Errorf("%w: answered %s", errBootRefused, answer)
			}
			return nil
		})
	case enterReset:
		l, err := a.resetLines(t, true)
		if err != nil {
			return err
		}
		return a.pulse(ctx, l)
	default:
		return nil
	}
}

// progressPrinter reports whole-percent steps on w.
func progressPrinter(w io.Writer) ymodem.Progress {
	last := -1
	return func(sent, total int64) {
		if total <= 0 {
			return
		}
		pct := int(sent * 100 / total)
		if pct == last {
			return
		}
		last = pct
		_, _ = fmt.Fprintf(w, "\rflashing: %3d%% (%d/%d)", pct, sent, total)
		if sent >= total {
			_, _ = fmt.Fprintln(w)
		}
	}
}
