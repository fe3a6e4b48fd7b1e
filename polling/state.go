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

package polling

import (
	"time"

	"github.com/ZaparooProject/go-protolib/lacte"
)

// CardDetectionState is the card presence state machine.
type CardDetectionState int

const (
	// StateIdle means no card is in the reader.
	StateIdle CardDetectionState = iota
	// StateCardPresent means the board reports a card.
	StateCardPresent
	// StateRemovalPending means the card vanished from the report but
	// CardRemovalTimeout has not passed yet.
	StateRemovalPending
)

func (s CardDetectionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCardPresent:
		return "present"
	case StateRemovalPending:
		return "removal-pending"
	default:
		return "unknown"
	}
}

// CardState tracks the card in the reader and the last board report.
type CardState struct {
	LastSeenTime   time.Time
	MissingSince   time.Time
	Info           lacte.Info
	Card           lacte.RFIDNumber
	DetectionState CardDetectionState
	Present        bool
}

// TransitionToPresent records card n as seen at now.
func (cs *CardState) TransitionToPresent(n lacte.RFIDNumber, now time.Time) {
	cs.DetectionState = StateCardPresent
	cs.Card = n
	cs.Present = true
	cs.LastSeenTime = now
	cs.MissingSince = time.Time{}
}

// TransitionToRemovalPending starts the removal timeout at now. It is a
// no-op when removal is already pending.
func (cs *CardState) TransitionToRemovalPending(now time.Time) {
	if cs.DetectionState == StateRemovalPending {
		return
	}
	cs.DetectionState = StateRemovalPending
	cs.MissingSince = now
}

// RemovalDue reports whether the card has been missing for timeout.
func (cs *CardState) RemovalDue(now time.Time, timeout time.Duration) bool {
	return cs.DetectionState == StateRemovalPending && now.Sub(cs.MissingSince) >= timeout
}

// TransitionToIdle forgets the card.
func (cs *CardState) TransitionToIdle() {
	cs.DetectionState = StateIdle
	cs.Card = 0
	cs.Present = false
	cs.LastSeenTime = time.Time{}
	cs.MissingSince = time.Time{}
}
