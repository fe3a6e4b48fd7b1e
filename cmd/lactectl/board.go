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
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	protolib "github.com/ZaparooProject/go-protolib"
	"github.com/ZaparooProject/go-protolib/lacte"
)

// query builds a command that runs one host request and prints its answer.
func query[T any](a *app, use, short string, get func(*lacte.Host, context.Context) (T, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var answer T
			err := a.withHost(cmd.Context(), func(ctx context.Context, h *lacte.Host) error {
				var err error
				answer, err = get(h, ctx)
				return err
			})
			if err != nil {
				return err
			}
			return a.emit(cmd, answer)
		},
	}
}

func newInfoCmd(a *app) *cobra.Command {
	return query(a, "info", "Print board status, error flags and card number", (*lacte.Host).GetInfo)
}

func newVersionCmd(a *app) *cobra.Command {
	return query(a, "version", "Print the board firmware version", (*lacte.Host).GetVersion)
}

func newUIDCmd(a *app) *cobra.Command {
	return query(a, "uid", "Print the board MCU identifier", (*lacte.Host).GetUID)
}

func newRFIDCmd(a *app) *cobra.Command {
	return query(a, "rfid", "Print the number of the card in the reader", (*lacte.Host).GetRFID)
}

func newRFIDDataCmd(a *app) *cobra.Command {
	return query(a, "rfid-data", "Print the product card content", (*lacte.Host).GetRFIDData)
}

type restartResult struct {
	Answer string `json:"answer" yaml:"answer"`
}

func newRestartCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "restart [hex-data]",
		Short: "Restart the board, passing data to its bootloader",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := hexArg(args)
			if err != nil {
				return err
			}
			var answer lacte.BootAnswer
			err = a.withHost(cmd.Context(), func(ctx context.Context, h *lacte.Host) error {
				var err error
				answer, err = h.Restart(ctx, data)
				return err
			})
			if err != nil {
				return err
			}
			return a.emit(cmd, restartResult{Answer: answer.String()})
		},
	}
}

// hexArg decodes the optional hex argument, ignoring spaces and colons.
func hexArg(args []string) ([]byte, error) {
	if len(args) == 0 {
		return nil, nil
	}
	clean := strings.NewReplacer(" ", "", ":", "", "0x", "").Replace(args[0])
	data, err := hex.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("%w: hex data %q", protolib.ErrInvalidParameter, args[0])
	}
	return data, nil
}

type paramResult struct {
	Param string `json:"param" yaml:"param"`
	Value string `json:"value" yaml:"value"`
}

func (p paramResult) String() string {
	return p.Param + " = " + p.Value
}

// parseParam accepts 1..4 or PARAM1..PARAM4.
func parseParam(s string) (lacte.Param, error) {
	s = strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(s)), "PARAM")
	n, err := lacte.ParseUint(s, 8)
	if err != nil || n < 1 || n > uint64(lacte.Param4)+1 {
		return 0, fmt.Errorf("%w: parameter %q (want 1-4)", protolib.ErrInvalidParameter, s)
	}
	return lacte.Param(n - 1), nil
}

func newParamCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "param",
		Short: "Read or write board parameters",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "get <param>",
		Short: "Read one parameter (1-4)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := parseParam(args[0])
			if err != nil {
				return err
			}
			var value []byte
			err = a.withHost(cmd.Context(), func(ctx context.Context, h *lacte.Host) error {
				var err error
				value, err = h.GetParam(ctx, p)
				return err
			})
			if err != nil {
				return err
			}
			return a.emit(cmd, paramResult{Param: p.String(), Value: hex.EncodeToString(value)})
		},
	}, &cobra.Command{
		Use:   "set <hex-data>",
		Short: "Write raw parameter data and print the acknowledgement",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := hexArg(args)
			if err != nil {
				return err
			}
			var ack []byte
			err = a.withHost(cmd.Context(), func(ctx context.Context, h *lacte.Host) error {
				var err error
				ack, err = h.SetParams(ctx, data)
				return err
			})
			if err != nil {
				return err
			}
			return a.emit(cmd, paramResult{Param: "SET", Value: hex.EncodeToString(ack)})
		},
	})
	return cmd
}
