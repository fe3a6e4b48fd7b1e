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

package ymodem

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	protolib "github.com/ZaparooProject/go-protolib"
)

// Progress reports how many bytes of a transfer were acknowledged.
type Progress func(sent, total int64)

// Sender pushes files to a YMODEM receiver.
type Sender struct {
	link         *link
	progress     Progress
	startTimeout time.Duration
	blockTimeout time.Duration
	maxRetries   int
}

// Option configures a Sender or Receiver.
type Option func(*options)

type options struct {
	progress     Progress
	startTimeout time.Duration
	blockTimeout time.Duration
	maxRetries   int
}

func defaultOptions() options {
	return options{
		startTimeout: protolib.YmodemStartTimeout,
		blockTimeout: protolib.YmodemBlockTimeout,
		maxRetries:   protolib.YmodemMaxRetries,
	}
}

// WithStartTimeout sets how long to wait for the peer to start.
func WithStartTimeout(d time.Duration) Option {
	return func(o *options) { o.startTimeout = d }
}

// WithBlockTimeout sets how long to wait for each reply.
func WithBlockTimeout(d time.Duration) Option {
	return func(o *options) { o.blockTimeout = d }
}

// WithMaxRetries sets how many times a block is resent or re-requested.
func WithMaxRetries(n int) Option {
	return func(o *options) { o.maxRetries = n }
}

// WithProgress installs a progress callback.
func WithProgress(fn Progress) Option {
	return func(o *options) { o.progress = fn }
}

// NewSender creates a sender on t.
func NewSender(t protolib.Transport, opts ...Option) *Sender {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Sender{
		link:         newLink(t),
		progress:     o.progress,
		startTimeout: o.startTimeout,
		blockTimeout: o.blockTimeout,
		maxRetries:   o.maxRetries,
	}
}

// Flash sends the file at path, named by its base name.
func (s *Sender) Flash(ctx context.Context, path string) error {
	f, err := os.Open(path) //nolint:gosec // path is chosen by the operator
	if err != nil {
		return fmt.Errorf("open firmware: %w", err)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat firmware: %w", err)
	}
	return s.Send(ctx, filepath.Base(path), f, info.Size())
}

// Send transfers size bytes from r as name. On failure the transfer is
// aborted with CAN CAN and the error carries a trace of the exchange.
func (s *Sender) Send(ctx context.Context, name string, r io.Reader, size int64) error {
	header, err := HeaderBlock(name, size)
	if err != nil {
		return err
	}

	if err := s.send(ctx, header, r, size); err != nil {
		if !errors.Is(err, ErrCancelled) {
			_ = s.link.write(context.Background(), []byte{CAN, CAN}, "abort")
		}
		return s.link.trace.WrapError(err)
	}
	return nil
}

func (s *Sender) send(ctx context.Context, header []byte, r io.Reader, size int64) error {
	protolib.Debugln("ymodem: waiting for receiver")
	if err := s.waitStart(ctx); err != nil {
		return err
	}

	protolib.Debugf("ymodem: sending header (%d bytes)", size)
	if err := s.sendBlock(ctx, header, "header"); err != nil {
		return err
	}

	data := make([]byte, BlockSize)
	var sent int64
	for seq := byte(1); ; seq++ {
		n, err := io.ReadFull(r, data)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("read firmware: %w", err)
		}
		if err := s.sendBlock(ctx, DataBlock(seq, data[:n]), fmt.Sprintf("block %d", seq)); err != nil {
			return err
		}
		sent += int64(n)
		if s.progress != nil {
			s.progress(sent, size)
		}
		if n < BlockSize {
			break
		}
	}

	protolib.Debugln("ymodem: finishing transfer")
	if err := s.sendBlock(ctx, []byte{EOT}, "EOT"); err != nil {
		return err
	}
	final, _ := HeaderBlock("", 0)
	return s.sendBlock(ctx, final, "end of batch")
}

// waitStart waits for the receiver's 'C'.
func (s *Sender) waitStart(ctx context.Context) error {
	deadline := time.Now().Add(s.startTimeout)
	for time.Now().Before(deadline) {
		c, ok, err := s.link.readByte(ctx, time.Until(deadline))
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		switch c {
		case CRCReq:
			return nil
		case CAN:
			return ErrCancelled
		}
	}
	s.link.trace.RecordTimeout("waiting for C")
	return ErrNoStart
}

// sendBlock writes block until it is acknowledged. NAK and silence cause
// a resend; CAN ends the transfer.
func (s *Sender) sendBlock(ctx context.Context, block []byte, note string) error {
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			protolib.Debugf("ymodem: resending %s (attempt %d)", note, attempt+1)
		}
		if err := s.link.write(ctx, block, note); err != nil {
			return err
		}
		reply, err := s.waitReply(ctx)
		if err != nil {
			return err
		}
		switch reply {
		case ACK:
			return nil
		case CAN:
			return ErrCancelled
		}
	}
	return fmt.Errorf("%w: %s after %d attempts", ErrNoAck, note, s.maxRetries+1)
}

// waitReply returns ACK, NAK or CAN, or 0 on timeout. Other bytes, such
// as a repeated 'C', are skipped.
func (s *Sender) waitReply(ctx context.Context) (byte, error) {
	deadline := time.Now().Add(s.blockTimeout)
	for {
		c, ok, err := s.link.readByte(ctx, time.Until(deadline))
		if err != nil {
			return 0, err
		}
		if !ok {
			s.link.trace.RecordTimeout("waiting for ACK")
			return 0, nil
		}
		switch c {
		case ACK, NAK, CAN:
			return c, nil
		}
	}
}
