/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

// Package icequeue buffers remote ICE candidates that arrive before a
// remote description has been set on the peer connection, and drains them
// in arrival order once one is.
package icequeue

import (
	"sync"

	"github.com/pion/webrtc/v4"
)

// Queue is a FIFO buffer of pending remote ICE candidates. The zero value
// is ready to use.
type Queue struct {
	mu      sync.Mutex
	pending []webrtc.ICECandidateInit
}

// Push appends a candidate to the tail of the queue.
func (q *Queue) Push(candidate webrtc.ICECandidateInit) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, candidate)
}

// Len reports how many candidates are currently buffered.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Drain empties the queue and returns its contents in FIFO order. It is the
// caller's responsibility to add each candidate to the peer connection, in
// the returned order, before any further negotiation handler runs — this is
// what keeps the drain atomic with respect to the next signaling-state
// transition (spec invariant: the queue empties before any further
// negotiation handler runs).
func (q *Queue) Drain() []webrtc.ICECandidateInit {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return nil
	}
	drained := q.pending
	q.pending = nil
	return drained
}
