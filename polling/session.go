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

// Package polling watches a lacte board for product cards. A Session
// polls INFO, tracks the card number the board reports and calls back
// when a card arrives, changes or is removed.
package polling

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	protolib "github.com/ZaparooProject/go-protolib"
	"github.com/ZaparooProject/go-protolib/internal/syncutil"
	"github.com/ZaparooProject/go-protolib/lacte"
)

// ErrSessionClosed is returned by Start after Close.
var ErrSessionClosed = errors.New("polling session closed")

// Board is the part of a lacte host a session polls. *lacte.Host
// implements it.
type Board interface {
	GetInfo(ctx context.Context) (lacte.Info, error)
	GetRFIDData(ctx context.Context) (lacte.RFIDData, error)
	GetVersion(ctx context.Context) (lacte.Version, error)
}

// CardEvent describes a card seen by the board. Data is nil when card
// data reading is off or the RFID_DATA request failed.
type CardEvent struct {
	Data *lacte.RFIDData  `json:"data,omitempty" yaml:"data,omitempty"`
	Info lacte.Info       `json:"info" yaml:"info"`
	Card lacte.RFIDNumber `json:"card" yaml:"card"`
}

// Metrics are the session's operational counters.
type Metrics struct {
	PollCycles      int64         `json:"poll_cycles" yaml:"poll_cycles"`
	PollErrors      int64         `json:"poll_errors" yaml:"poll_errors"`
	CardsDetected   int64         `json:"cards_detected" yaml:"cards_detected"`
	CallbackErrors  int64         `json:"callback_errors" yaml:"callback_errors"`
	Recoveries      int64         `json:"recoveries" yaml:"recoveries"`
	LastPollLatency time.Duration `json:"last_poll_latency" yaml:"last_poll_latency"`
}

// Session handles continuous card monitoring with state machine
type Session struct {
	board           Board
	recoverer       Recoverer
	config          *Config
	now             func() time.Time
	onCardDetected  func(CardEvent) error
	onCardChanged   func(CardEvent) error
	onCardRemoved   func(lacte.RFIDNumber)
	onStatusChanged func(old, cur lacte.Info)
	pauseChan       chan struct{}
	resumeChan      chan struct{}
	ackChan         chan struct{}
	state           CardState
	haveInfo        bool
	stateMutex      syncutil.RWMutex

	pollCycles      atomic.Int64
	pollErrors      atomic.Int64
	cardsDetected   atomic.Int64
	callbackErrors  atomic.Int64
	recoveries      atomic.Int64
	lastPollLatency atomic.Int64
	lastCardSeen    atomic.Int64
	closed          atomic.Bool
	isPaused        atomic.Bool
}

// NewSession creates a new card monitoring session
func NewSession(board Board, config *Config) *Session {
	if config == nil {
		config = DefaultConfig()
	}
	return &Session{
		board:      board,
		config:     config,
		now:        time.Now,
		pauseChan:  make(chan struct{}, 1),
		resumeChan: make(chan struct{}, 1),
		ackChan:    make(chan struct{}, 1),
	}
}

// SetRecoverer sets what Start uses to bring the board back after a
// detected host sleep.
func (s *Session) SetRecoverer(r Recoverer) {
	s.stateMutex.Lock()
	defer s.stateMutex.Unlock()
	s.recoverer = r
}

// SetOnCardDetected sets the callback for when a card is detected.
func (s *Session) SetOnCardDetected(callback func(CardEvent) error) {
	s.stateMutex.Lock()
	defer s.stateMutex.Unlock()
	s.onCardDetected = callback
}

// SetOnCardChanged sets the callback for when a different card replaces
// the current one without a removal in between.
func (s *Session) SetOnCardChanged(callback func(CardEvent) error) {
	s.stateMutex.Lock()
	defer s.stateMutex.Unlock()
	s.onCardChanged = callback
}

// SetOnCardRemoved sets the callback for when a card is removed.
func (s *Session) SetOnCardRemoved(callback func(lacte.RFIDNumber)) {
	s.stateMutex.Lock()
	defer s.stateMutex.Unlock()
	s.onCardRemoved = callback
}

// SetOnStatusChanged sets the callback for status or error flag changes.
// The first report is delivered with a zero old value.
func (s *Session) SetOnStatusChanged(callback func(old, cur lacte.Info)) {
	s.stateMutex.Lock()
	defer s.stateMutex.Unlock()
	s.onStatusChanged = callback
}

// GetState returns the current card state
func (s *Session) GetState() CardState {
	s.stateMutex.RLock()
	defer s.stateMutex.RUnlock()
	return s.state
}

// GetMetrics returns current operational metrics
func (s *Session) GetMetrics() Metrics {
	return Metrics{
		PollCycles:      s.pollCycles.Load(),
		PollErrors:      s.pollErrors.Load(),
		CardsDetected:   s.cardsDetected.Load(),
		CallbackErrors:  s.callbackErrors.Load(),
		Recoveries:      s.recoveries.Load(),
		LastPollLatency: time.Duration(s.lastPollLatency.Load()),
	}
}

// Start polls until ctx is cancelled, a callback fails or recovery after
// a host sleep gives up.
func (s *Session) Start(ctx context.Context) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}
	s.lastCardSeen.Store(s.now().UnixNano())

	timer := time.NewTimer(s.config.PollInterval)
	defer timer.Stop()

	var lastPoll time.Time
	for {
		if err := s.handleContextAndPause(ctx); err != nil {
			return err
		}

		now := s.now()
		if !lastPoll.IsZero() && s.config.SleepRecovery.DetectSleep(now.Sub(lastPoll), s.currentInterval()) {
			if err := s.recoverFromSleep(ctx, now.Sub(lastPoll)); err != nil {
				return err
			}
		}
		lastPoll = now

		if err := s.executeSinglePollingCycle(ctx); err != nil {
			return err
		}

		timer.Reset(s.currentInterval())
		if err := s.waitForNextPollOrPause(ctx, timer); err != nil {
			return err
		}
	}
}

// Close stops future polling. A running Start returns at its next cycle.
func (s *Session) Close() error {
	s.closed.Store(true)
	s.isPaused.Store(false)
	select {
	case <-s.pauseChan:
	default:
	}
	select {
	case <-s.resumeChan:
	default:
	}
	return nil
}

// Pause temporarily stops the polling loop, for example while the host
// talks to the board for something else.
func (s *Session) Pause() {
	if s.isPaused.CompareAndSwap(false, true) {
		select {
		case s.pauseChan <- struct{}{}:
		default:
		}
	}
}

// PauseWithAck pauses and waits until the loop has stopped polling, or
// until ctx ends. It returns at once when no loop is running.
func (s *Session) PauseWithAck(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if !s.isPaused.CompareAndSwap(false, true) {
		return nil
	}
	select {
	case s.pauseChan <- struct{}{}:
	default:
		return nil
	}

	ackTimeout := time.NewTimer(s.config.PollInterval + protolib.DefaultRequestTimeout)
	defer ackTimeout.Stop()
	select {
	case <-s.ackChan:
		return nil
	case <-ackTimeout.C:
		return nil
	case <-ctx.Done():
		s.isPaused.Store(false)
		return ctx.Err()
	}
}

// Resume restarts the polling loop after a pause
func (s *Session) Resume() {
	if s.isPaused.CompareAndSwap(true, false) {
		select {
		case s.resumeChan <- struct{}{}:
		default:
		}
	}
}

func (s *Session) currentInterval() time.Duration {
	cfg := s.config
	if cfg.IdleInterval <= 0 || cfg.IdleAfter <= 0 {
		return cfg.PollInterval
	}
	if s.GetState().Present {
		return cfg.PollInterval
	}
	idle := s.now().Sub(time.Unix(0, s.lastCardSeen.Load()))
	if idle > cfg.IdleAfter {
		return cfg.IdleInterval
	}
	return cfg.PollInterval
}

func (s *Session) recoverFromSleep(ctx context.Context, gap time.Duration) error {
	s.stateMutex.RLock()
	r := s.recoverer
	s.stateMutex.RUnlock()

	protolib.Debugf("polling: %v since last poll, host probably slept", gap)
	// The card may have been swapped while the host slept.
	s.handleCardRemoval()
	if r == nil {
		return nil
	}
	s.recoveries.Add(1)
	if err := r.AttemptRecovery(ctx); err != nil {
		return fmt.Errorf("recovery after sleep: %w", err)
	}
	return nil
}

func (s *Session) executeSinglePollingCycle(ctx context.Context) error {
	start := s.now()
	info, err := s.board.GetInfo(ctx)
	s.pollCycles.Add(1)
	s.lastPollLatency.Store(int64(s.now().Sub(start)))
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if protolib.IsFatal(err) {
			return fmt.Errorf("board lost: %w", err)
		}
		s.handlePollingError(err)
		return nil
	}

	s.checkStatus(info)
	if err := s.processPollingResults(ctx, info); err != nil {
		s.callbackErrors.Add(1)
		return fmt.Errorf("callback error during polling: %w", err)
	}
	return nil
}

// handlePollingError counts a failed poll. An unanswered INFO counts
// as no card so a board that stops answering releases its card after
// CardRemovalTimeout.
func (s *Session) handlePollingError(err error) {
	s.pollErrors.Add(1)
	protolib.Debugf("polling: %v", err)
	if errors.Is(err, protolib.ErrNoAnswer) {
		s.handleMissingCard()
	}
}

func (s *Session) checkStatus(info lacte.Info) {
	s.stateMutex.Lock()
	old, had := s.state.Info, s.haveInfo
	s.state.Info, s.haveInfo = info, true
	cb := s.onStatusChanged
	s.stateMutex.Unlock()

	if cb == nil || (had && old.Status == info.Status && old.Errors == info.Errors) {
		return
	}
	if !had {
		old = lacte.Info{}
	}
	cb(old, info)
}

func (s *Session) processPollingResults(ctx context.Context, info lacte.Info) error {
	if info.RFID == 0 {
		s.handleMissingCard()
		return nil
	}
	now := s.now()
	s.lastCardSeen.Store(now.UnixNano())

	s.stateMutex.Lock()
	wasPresent := s.state.Present
	previous := s.state.Card
	s.state.TransitionToPresent(info.RFID, now)
	onDetected, onChanged := s.onCardDetected, s.onCardChanged
	s.stateMutex.Unlock()

	switch {
	case !wasPresent:
		s.cardsDetected.Add(1)
		return s.safeCallCallback(onDetected, s.cardEvent(ctx, info), "OnCardDetected")
	case previous != info.RFID:
		s.cardsDetected.Add(1)
		return s.safeCallCallback(onChanged, s.cardEvent(ctx, info), "OnCardChanged")
	default:
		return nil
	}
}

func (s *Session) cardEvent(ctx context.Context, info lacte.Info) CardEvent {
	ev := CardEvent{Card: info.RFID, Info: info}
	if !s.config.ReadCardData {
		return ev
	}
	data, err := s.board.GetRFIDData(ctx)
	if err != nil {
		protolib.Debugf("polling: card %s data: %v", info.RFID, err)
		return ev
	}
	ev.Data = &data
	return ev
}

// handleMissingCard starts or completes the removal timeout.
func (s *Session) handleMissingCard() {
	now := s.now()
	s.stateMutex.Lock()
	if !s.state.Present {
		s.stateMutex.Unlock()
		return
	}
	s.state.TransitionToRemovalPending(now)
	due := s.state.RemovalDue(now, s.config.CardRemovalTimeout)
	s.stateMutex.Unlock()

	if due {
		s.handleCardRemoval()
	}
}

// handleCardRemoval forgets the current card and reports its removal.
func (s *Session) handleCardRemoval() {
	if s.closed.Load() {
		return
	}
	s.stateMutex.Lock()
	wasPresent := s.state.Present
	card := s.state.Card
	if wasPresent {
		s.state.TransitionToIdle()
	}
	onRemoved := s.onCardRemoved
	s.stateMutex.Unlock()

	if wasPresent && onRemoved != nil {
		onRemoved(card)
	}
}

// safeCallCallback executes a callback with panic recovery
func (*Session) safeCallCallback(callback func(CardEvent) error, ev CardEvent, name string) (err error) {
	if callback == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s callback panicked: %v", name, r)
		}
	}()
	if err := callback(ev); err != nil {
		return fmt.Errorf("%s callback failed: %w", name, err)
	}
	return nil
}

func (s *Session) waitForNextPollOrPause(ctx context.Context, timer *time.Timer) error {
	select {
	case <-timer.C:
		return nil
	case <-s.pauseChan:
		return s.handlePauseSignal(ctx)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) handlePauseSignal(ctx context.Context) error {
	select {
	case s.ackChan <- struct{}{}:
	default:
	}
	return s.waitForResume(ctx)
}

func (s *Session) handleContextAndPause(ctx context.Context) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.pauseChan:
		return s.handlePauseSignal(ctx)
	default:
		return nil
	}
}

func (s *Session) waitForResume(ctx context.Context) error {
	select {
	case <-s.resumeChan:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
