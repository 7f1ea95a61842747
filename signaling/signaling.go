/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

// Package signaling defines the transport-agnostic contract the Call
// Orchestrator negotiates over (spec.md §6 "Signaling contract"), plus the
// shared payload types every binding exchanges.
package signaling

import (
	"context"

	"github.com/relaycall/callorc/events"
)

// The Event* constants identify the signaling transport's inbound
// notifications, as events.Kind values. They reuse events.Emitter's
// dispatch machinery — the same snapshot-then-call registry the public
// Event Emitter uses — since the two have identical
// delivery semantics even though their event vocabularies differ.
const (
	EventOpen            events.Kind = "open"
	EventClose           events.Kind = "close"
	EventError           events.Kind = "error"
	EventNewPeer         events.Kind = "newPeer"
	EventDisconnect      events.Kind = "disconnect"
	EventFinished        events.Kind = "finished"
	EventNewOffer        events.Kind = "newOffer"
	EventNewAnswer       events.Kind = "newAnswer"
	EventNewIceCandidate events.Kind = "newIceCandidate"
)

// PeerRef carries a bare room identifier, the payload shape of newPeer,
// disconnect, and finished.
type PeerRef struct {
	RoomID string
}

// SDPPayload carries an offer or answer, the payload shape of newOffer and
// newAnswer.
type SDPPayload struct {
	SDP    string
	RoomID string
}

// ICECandidatePayload carries a single trickled ICE candidate, the payload
// shape of newIceCandidate. Candidate is the candidate attribute line as
// received from the wire, not a JSON object; the orchestrator wraps it in a
// webrtc.ICECandidateInit with only Candidate set, so sdpMid and
// sdpMLineIndex are not carried in either direction.
type ICECandidatePayload struct {
	Candidate string
	RoomID   string
}

// Adapter is the signaling contract of spec.md §6: the calls the
// orchestrator issues, keyed by room id, plus the events above delivered
// through Events(). Connected reports the transport's live/dead state.
type Adapter interface {
	Connected() bool

	Connect(ctx context.Context, roomID string) error
	Disconnect(ctx context.Context, roomID string) error
	Finish(ctx context.Context, roomID string) error
	SendSDPOffer(ctx context.Context, roomID, sdp string) error
	SendSDPAnswer(ctx context.Context, roomID, sdp string) error
	SendICECandidate(ctx context.Context, roomID, candidate string) error

	// Events returns the Emitter instances fire Event notifications on. The
	// orchestrator calls On/Off against it directly; it is not wrapped so
	// that a single Emitter instance serves both a binding's internal
	// bookkeeping and the orchestrator's subscriptions.
	Events() *events.Emitter
}
