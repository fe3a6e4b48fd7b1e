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
	"time"

	"github.com/spf13/cobra"

	"github.com/ZaparooProject/go-protolib/lacte"
	"github.com/ZaparooProject/go-protolib/polling"
	"github.com/ZaparooProject/go-protolib/resetline"
)

type watchEvent struct {
	Time  time.Time        `json:"time" yaml:"time"`
	Data  *lacte.RFIDData  `json:"data,omitempty" yaml:"data,omitempty"`
	Event string           `json:"event" yaml:"event"`
	Info  lacte.Info       `json:"info" yaml:"info"`
	Card  lacte.RFIDNumber `json:"card" yaml:"card"`
}

func (e watchEvent) String() string {
	switch e.Event {
	case "status":
		return fmt.Sprintf("%s status %s", e.Time.Format(time.TimeOnly), e.Info)
	default:
		return fmt.Sprintf("%s card %s %s", e.Time.Format(time.TimeOnly), e.Event, e.Card)
	}
}

func newWatchCmd(a *app) *cobra.Command {
	cfg := polling.DefaultConfig()
	var noData bool
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Report card and status changes until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg.ReadCardData = !noData
			// Recovery can pulse reset only through GPIO; modem lines need
			// the port the host holds.
			var reset resetline.Line
			if a.cfg.Reset.Pin != "" {
				l, err := a.resetLines(nil, false)
				if err != nil {
					return err
				}
				reset = l.reset
			}

			err := a.withHost(cmd.Context(), func(ctx context.Context, h *lacte.Host) error {
				s := polling.NewSession(h, cfg)
				r := polling.NewDefaultRecoverer(h, reset, cfg.SleepRecovery)
				r.SetPulse(a.cfg.Reset.Pulse.Duration)
				s.SetRecoverer(r)

				emit := func(ev watchEvent) error {
					ev.Time = time.Now()
					return a.emit(cmd, ev)
				}
				s.SetOnCardDetected(func(e polling.CardEvent) error {
					return emit(watchEvent{Event: "inserted", Card: e.Card, Info: e.Info, Data: e.Data})
				})
				s.SetOnCardChanged(func(e polling.CardEvent) error {
					return emit(watchEvent{Event: "changed", Card: e.Card, Info: e.Info, Data: e.Data})
				})
				s.SetOnCardRemoved(func(n lacte.RFIDNumber) {
					_ = emit(watchEvent{Event: "removed", Card: n})
				})
				s.SetOnStatusChanged(func(_, cur lacte.Info) {
					_ = emit(watchEvent{Event: "status", Info: cur, Card: cur.RFID})
				})
				return s.Start(ctx)
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	flags := cmd.Flags()
	flags.DurationVar(&cfg.PollInterval, "interval", cfg.PollInterval, "INFO poll interval")
	flags.DurationVar(&cfg.CardRemovalTimeout, "removal-timeout", cfg.CardRemovalTimeout, "how long a card must be gone to count as removed")
	flags.BoolVar(&noData, "no-data", false, "skip reading RFID_DATA for new cards")
	return cmd
}
