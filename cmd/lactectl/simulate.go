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
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	protolib "github.com/ZaparooProject/go-protolib"
	"github.com/ZaparooProject/go-protolib/lacte"
)

// loadBoardState reads a YAML (or JSON) board state over the defaults.
func loadBoardState(path string) (lacte.BoardState, error) {
	state := lacte.DefaultBoardState()
	if path == "" {
		return state, nil
	}
	data, err := os.ReadFile(path) //nolint:gosec // path is chosen by the operator
	if err != nil {
		return state, fmt.Errorf("board state: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&state); err != nil {
		return state, fmt.Errorf("board state %s: %w", path, err)
	}
	return state, nil
}

type simulateSummary struct {
	Requests map[string]int `json:"requests" yaml:"requests"`
	Frames   uint64         `json:"frames" yaml:"frames"`
	Errors   uint64         `json:"checksum_errors" yaml:"checksum_errors"`
}

func newSimulateCmd(a *app) *cobra.Command {
	var statePath string
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Answer host requests on the port as a virtual board until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			state, err := loadBoardState(statePath)
			if err != nil {
				return err
			}
			if a.cfg.Device.Path == "" {
				return fmt.Errorf("%w: simulate needs --device", protolib.ErrInvalidParameter)
			}
			t, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = t.Close() }()

			vb, err := lacte.NewVirtualBoard(t, a.cfg.EndpointOptions()...)
			if err != nil {
				return err
			}
			vb.SetState(state)
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "simulating board %s on %s\n", state.UID, a.cfg.Device.Path)

			err = vb.Run(cmd.Context())
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}

			summary := simulateSummary{Requests: make(map[string]int)}
			for _, typ := range lacte.PacketTypes() {
				if n := vb.RequestCount(typ); n > 0 {
					summary.Requests[typ.String()] = n
				}
			}
			stats := vb.Endpoint().Stats()
			summary.Frames, summary.Errors = stats.Frames, stats.ChecksumErrors
			return a.emit(cmd, summary)
		},
	}
	cmd.Flags().StringVar(&statePath, "state", "", "YAML or JSON board state (default built-in)")
	return cmd
}
