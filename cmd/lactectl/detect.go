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
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ZaparooProject/go-protolib/detection"
)

type deviceList []detection.DeviceInfo

func (l deviceList) String() string {
	var b strings.Builder
	for i, d := range l {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(d.String())
		keys := make([]string, 0, len(d.Metadata))
		for k := range d.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			_, _ = fmt.Fprintf(&b, "\n  %s: %s", k, d.Metadata[k])
		}
	}
	return b.String()
}

func newDetectCmd(a *app) *cobra.Command {
	opts := detection.DefaultOptions()
	var mode string
	var noCache bool
	cmd := &cobra.Command{
		Use:   "detect",
		Short: "List serial ports with a lacte board",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := detection.ParseMode(mode)
			if err != nil {
				return err
			}
			opts.Mode = m
			opts.EnableCache = !noCache
			devices, err := detection.DetectAll(cmd.Context(), &opts)
			if err != nil {
				return err
			}
			return a.emit(cmd, deviceList(devices))
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&mode, "mode", detection.Safe.String(), "passive, safe (VERSION request) or full (VERSION and UID)")
	flags.StringSliceVar(&opts.Transports, "transport", nil, "detectors to run (default all)")
	flags.StringSliceVar(&opts.IgnorePaths, "ignore", nil, "ports to skip")
	flags.StringSliceVar(&opts.Blocklist, "block", opts.Blocklist, "USB VID:PID pairs never probed")
	flags.DurationVar(&opts.Timeout, "timeout", opts.Timeout, "overall detection timeout")
	flags.BoolVar(&noCache, "no-cache", false, "ignore cached results")
	return cmd
}
