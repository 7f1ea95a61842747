/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

// Package events provides the typed publish/subscribe surface consumers of
// the call orchestrator observe: change, local-track-change, track-change,
// finish, message and error.
package events

import "sync"

// Kind identifies one of the orchestrator's public event types.
type Kind string

const (
	// Change fires whenever any observable orchestrator property changes:
	// finished, connected, matched, streams, controls, toggled audio/video.
	Change Kind = "change"
	// LocalTrackChange fires when the local media stream is (re)acquired,
	// replaced on a device switch, or torn down.
	LocalTrackChange Kind = "local-track-change"
	// TrackChange fires when the assembled peer stream's composition
	// changes: a remote track is added, muted, unmuted, or ended.
	TrackChange Kind = "track-change"
	// Finish fires exactly once, when the call transitions to finished.
	Finish Kind = "finish"
	// Message fires for inbound data-channel payloads that are not the
	// reserved external-controls frame.
	Message Kind = "message"
	// Error fires for diagnostic and fatal conditions; see orchestrator.ErrorCode.
	Error Kind = "error"
)

// Handler receives the payload published for a Kind. Handlers run
// synchronously on the publishing goroutine, in registration order, and
// must not block — there is no back-pressure and a slow handler stalls
// every other subscriber along with the orchestrator's dispatch loop.
type Handler func(data any)

// Emitter is a typed publish/subscribe registry. The zero value is not
// usable; construct with New.
type Emitter struct {
	mu       sync.RWMutex
	handlers map[Kind][]Handler
}

// New creates an empty Emitter.
func New() *Emitter {
	return &Emitter{handlers: make(map[Kind][]Handler)}
}

// On registers a handler for kind. Nil handlers are ignored.
func (e *Emitter) On(kind Kind, handler Handler) {
	if handler == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[kind] = append(e.handlers[kind], handler)
}

// Off removes every handler registered for kind.
func (e *Emitter) Off(kind Kind) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.handlers, kind)
}

// Emit calls every handler registered for kind, in registration order, with
// data. Handlers are snapshotted under the read lock and invoked after it
// is released, so a handler may itself call On/Off/Emit without deadlocking.
func (e *Emitter) Emit(kind Kind, data any) {
	e.mu.RLock()
	handlers := make([]Handler, len(e.handlers[kind]))
	copy(handlers, e.handlers[kind])
	e.mu.RUnlock()

	for _, handler := range handlers {
		handler(data)
	}
}
