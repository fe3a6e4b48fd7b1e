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

package protocol

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	protolib "github.com/ZaparooProject/go-protolib"
	"github.com/ZaparooProject/go-protolib/container"
	"github.com/ZaparooProject/go-protolib/internal/syncutil"
)

// ErrEndpointClosed is returned by Request once Run has returned. It
// matches protolib.ErrTransportClosed.
var ErrEndpointClosed = fmt.Errorf("protocol: endpoint stopped: %w", protolib.ErrTransportClosed)

// Handler receives messages no pending Request claimed.
type Handler func(Message)

// EndpointStats extends the session counters with endpoint counters.
type EndpointStats struct {
	Stats   `yaml:",inline"`
	Sent    uint64 `json:"sent" yaml:"sent"`
	Dropped uint64 `json:"dropped" yaml:"dropped"`
}

// EndpointOption configures an Endpoint.
type EndpointOption func(*Endpoint)

// WithHandler sets the handler for unsolicited messages.
func WithHandler(h Handler) EndpointOption {
	return func(e *Endpoint) { e.handler = h }
}

// WithQueueSize bounds the queue between the reader and the handler.
func WithQueueSize(n int) EndpointOption {
	return func(e *Endpoint) {
		if n > 0 {
			e.queueSize = n
		}
	}
}

// WithRequestTimeout sets how long Request waits for an answer.
func WithRequestTimeout(d time.Duration) EndpointOption {
	return func(e *Endpoint) {
		if d > 0 {
			e.requestTimeout = d
		}
	}
}

type waiter struct {
	match func(Message) bool
	ch    chan Message
}

// Endpoint runs a Session over a Transport. It owns the transport: a
// reader goroutine feeds the session and a dispatcher goroutine hands
// messages to the handler. Send and Request may be called from any
// goroutine.
type Endpoint struct {
	transport      protolib.Transport
	rx             *Session
	tx             *Codec
	handler        Handler
	notify         chan struct{}
	done           chan struct{}
	waiters        map[uint64]*waiter
	queue          *ring
	stats          EndpointStats
	requestTimeout time.Duration
	queueSize      int
	nextWaiter     uint64
	sendMu         syncutil.Mutex
	mu             syncutil.Mutex
	id             uuid.UUID
	running        bool
}

// NewEndpoint creates an endpoint decoding received frames with rx and
// encoding sent messages with tx.
func NewEndpoint(t protolib.Transport, rx, tx *Codec, opts ...EndpointOption) (*Endpoint, error) {
	if t == nil || tx == nil {
		return nil, fmt.Errorf("%w: endpoint needs a transport and codecs", ErrInvalidConfig)
	}
	session, err := NewSession(rx)
	if err != nil {
		return nil, err
	}
	e := &Endpoint{
		id:             uuid.New(),
		transport:      t,
		rx:             session,
		tx:             tx,
		notify:         make(chan struct{}, 1),
		done:           make(chan struct{}),
		waiters:        make(map[uint64]*waiter),
		queueSize:      protolib.DefaultQueueSize,
		requestTimeout: protolib.DefaultRequestTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.queue = newRing(e.queueSize)
	return e, nil
}

// ID identifies the endpoint in logs.
func (e *Endpoint) ID() uuid.UUID {
	return e.id
}

// Transport returns the underlying transport.
func (e *Endpoint) Transport() protolib.Transport {
	return e.transport
}

func (e *Endpoint) logger() zerolog.Logger {
	return protolib.Logger().With().
		Str("endpoint", e.id.String()).
		Str("codec", e.rx.codec.Name()).
		Logger()
}

// Run reads and dispatches until ctx is cancelled or the transport fails.
// It returns nil on cancellation. Run may only be called once.
func (e *Endpoint) Run(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return errors.New("protocol: endpoint already running")
	}
	e.running = true
	e.mu.Unlock()
	defer close(e.done)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return e.readLoop(gctx) })
	g.Go(func() error { return e.dispatchLoop(gctx) })

	err := g.Wait()
	if err != nil && ctx.Err() == nil {
		log := e.logger()
		log.Error().Err(err).Msg("endpoint stopped")
		return err
	}
	return nil
}

func (e *Endpoint) readLoop(ctx context.Context) error {
	buf := container.GetBuffer(container.LargeBufferSize)
	defer container.PutBuffer(buf)

	for ctx.Err() == nil {
		n, err := e.transport.Receive(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("endpoint %s: %w", e.id, err)
		}
		if n == 0 {
			continue
		}
		e.feed(buf[:n])
	}
	return nil
}

func (e *Endpoint) feed(p []byte) {
	for len(p) > 0 {
		n := e.rx.Push(p)
		p = p[n:]
		for {
			msg, err := e.rx.Next()
			if errors.Is(err, ErrNeedMore) {
				break
			}
			if err != nil {
				e.logDiscard(err)
				continue
			}
			e.deliver(msg)
		}
	}
	e.mu.Lock()
	e.stats.Stats = e.rx.Stats()
	e.mu.Unlock()
}

func (e *Endpoint) logDiscard(err error) {
	log := e.logger()
	ev := log.Debug().Err(err)
	var ferr *FrameError
	if errors.As(err, &ferr) {
		ev = ev.Str("state", ferr.State.String()).Str("frame", protolib.FormatHex(ferr.Frame))
	}
	ev.Msg("frame discarded")
}

// deliver hands msg to the first matching waiter, else queues it.
func (e *Endpoint) deliver(msg Message) {
	e.mu.Lock()
	for id, w := range e.waiters {
		if w.match(msg) {
			delete(e.waiters, id)
			e.mu.Unlock()
			w.ch <- msg
			return
		}
	}
	if dropped, full := e.queue.push(msg); full {
		e.stats.Dropped++
		log := e.logger()
		log.Warn().Uint64("type", dropped.Type).Msg("receive queue full, dropped oldest message")
	}
	e.mu.Unlock()

	select {
	case e.notify <- struct{}{}:
	default:
	}
}

func (e *Endpoint) dispatchLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-e.notify:
		}
		for {
			e.mu.Lock()
			msg, ok := e.queue.pop()
			handler := e.handler
			e.mu.Unlock()
			if !ok {
				break
			}

			if handler != nil {
				handler(msg)
			} else {
				log := e.logger()
				log.Debug().Uint64("type", msg.Type).Msg("unsolicited message ignored")
			}
		}
	}
}

// Send encodes msg with the tx codec and writes it. Concurrent calls are
// serialized so frames never interleave.
func (e *Endpoint) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	frame, err := e.tx.Encode(msg)
	if err != nil {
		return fmt.Errorf("encode type %d: %w", msg.Type, err)
	}

	e.sendMu.Lock()
	defer e.sendMu.Unlock()

	for sent := 0; sent < len(frame); {
		n, err := e.transport.Send(frame[sent:])
		if err != nil {
			return fmt.Errorf("send type %d: %w", msg.Type, err)
		}
		if n == 0 {
			return fmt.Errorf("send type %d: %w", msg.Type, protolib.ErrTransportWrite)
		}
		sent += n
	}

	e.mu.Lock()
	e.stats.Sent++
	e.mu.Unlock()

	log := e.logger()
	log.Debug().Uint64("type", msg.Type).Str("frame", protolib.FormatHex(frame)).Msg("sent")
	return nil
}

// Request sends msg and waits for the first received message for which
// match returns true. It fails with a retryable no-answer error when none
// arrives within the request timeout.
func (e *Endpoint) Request(ctx context.Context, msg Message, match func(Message) bool) (Message, error) {
	w := &waiter{match: match, ch: make(chan Message, 1)}
	e.mu.Lock()
	e.nextWaiter++
	id := e.nextWaiter
	e.waiters[id] = w
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		delete(e.waiters, id)
		e.mu.Unlock()
	}()

	if err := e.Send(ctx, msg); err != nil {
		return Message{}, err
	}

	timer := time.NewTimer(e.requestTimeout)
	defer timer.Stop()

	select {
	case answer := <-w.ch:
		return answer, nil
	case <-ctx.Done():
		return Message{}, ctx.Err()
	case <-e.done:
		return Message{}, ErrEndpointClosed
	case <-timer.C:
		return Message{}, protolib.NewNoAnswerError("Request", fmt.Sprintf("type %d", msg.Type))
	}
}

// Stats returns a snapshot of the counters.
func (e *Endpoint) Stats() EndpointStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

// Close closes the transport. A running Run then returns the
// transport's closed error.
func (e *Endpoint) Close() error {
	if err := e.transport.Close(); err != nil {
		return fmt.Errorf("close endpoint %s: %w", e.id, err)
	}
	return nil
}
