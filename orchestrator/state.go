/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package orchestrator

// State is the explicit orchestrator state (spec.md §9's recommended
// encoding of the signalingState × iceConnectionState × connectionState
// triple into a single enumeration, routed through one dispatcher).
type State string

const (
	StateIdle                State = "idle"
	StateAcquiringMedia       State = "acquiring_media"
	StateSignalingConnected   State = "signaling_connected"
	StateNegotiatingOfferer   State = "negotiating_offerer"
	StateNegotiatingAnswerer  State = "negotiating_answerer"
	StateMatched              State = "matched"
	StateSustaining           State = "sustaining"
	StateReconnecting         State = "reconnecting"
	StateFinished             State = "finished"
)
