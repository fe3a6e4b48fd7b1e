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

// ring is a fixed capacity FIFO of messages. push on a full ring
// overwrites the oldest entry and returns it.
type ring struct {
	buf  []Message
	head int
	n    int
}

func newRing(size int) *ring {
	return &ring{buf: make([]Message, max(size, 1))}
}

func (r *ring) len() int { return r.n }

func (r *ring) push(msg Message) (dropped Message, full bool) {
	tail := (r.head + r.n) % len(r.buf)
	if r.n == len(r.buf) {
		dropped, full = r.buf[r.head], true
		r.head = (r.head + 1) % len(r.buf)
		r.n--
	}
	r.buf[tail] = msg
	r.n++
	return dropped, full
}

func (r *ring) pop() (Message, bool) {
	if r.n == 0 {
		return Message{}, false
	}
	msg := r.buf[r.head]
	r.buf[r.head] = Message{}
	r.head = (r.head + 1) % len(r.buf)
	r.n--
	return msg, true
}
