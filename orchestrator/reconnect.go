/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package orchestrator

import (
	"context"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/relaycall/callorc/bitrate"
	"github.com/relaycall/callorc/events"
)

// handleICEConnectionStateChange implements spec.md §4.4's ICE recovery
// ladder: the first "failed" restarts ICE; a second, while the first
// restart is still outstanding, is surfaced as POOR_CONNECTION_ERROR
// instead of retried forever. "disconnected" hands off to the
// bitrate-driven disconnection strategy.
func (o *Orchestrator) handleICEConnectionStateChange(s webrtc.ICEConnectionState) {
	if o.finished {
		return
	}
	switch s {
	case webrtc.ICEConnectionStateFailed:
		o.onICEFailed()
	case webrtc.ICEConnectionStateDisconnected:
		o.runDisconnectionStrategy()
	case webrtc.ICEConnectionStateConnected, webrtc.ICEConnectionStateCompleted:
		o.iceFailed.Store(false)
	}
}

func (o *Orchestrator) onICEFailed() {
	if !o.iceFailed.CompareAndSwap(false, true) {
		o.events.Emit(events.Error, newCallError(ErrPoorConnection, "ICE failed a second time", nil))
		return
	}
	o.requestICERestart()
}

// handleConnectionStateChange implements spec.md §4.4's connection-level
// recovery: on "failed", consult the Network Supervisor with a 3-second
// timeout. Online means the PeerConnection itself is broken beyond ICE
// restart, so the whole call is restarted; offline means the link is down
// and recovery waits for a network-change event instead of retrying blind.
func (o *Orchestrator) handleConnectionStateChange(s webrtc.PeerConnectionState) {
	if o.finished || s != webrtc.PeerConnectionStateFailed {
		return
	}
	o.onConnectionFailed()
}

func (o *Orchestrator) onConnectionFailed() {
	if o.cfg.Network == nil {
		o.runRestartCall()
		return
	}
	if o.cfg.Network.IsOnline(context.Background(), 3*time.Second) {
		o.runRestartCall()
		return
	}

	o.events.Emit(events.Error, newCallError(ErrNoInternetAccess, "network unreachable during connection recovery", nil))
	o.subscribeNetworkChange()
}

// subscribeNetworkChange registers a one-shot "wait for online" handler,
// guarded by listeningForNetworkChange so overlapping connection failures
// don't stack up redundant subscriptions.
func (o *Orchestrator) subscribeNetworkChange() {
	if !o.listeningForNetworkChange.CompareAndSwap(false, true) {
		return
	}
	sub := o.cfg.Network.OnChange(func(online bool) {
		if !online {
			return
		}
		o.enqueue(func() {
			o.listeningForNetworkChange.Store(false)
			if o.networkSub != nil {
				o.networkSub.Unsubscribe()
				o.networkSub = nil
			}
			o.runRestartCall()
		})
	})
	o.networkSub = sub
}

// handleICEGatheringStateChange implements the optional ICE-stall check
// (spec.md §4.4): when enabled, gathering reaching "complete" schedules a
// single 3-second check of whether negotiation is still stuck at
// "checking"/"connecting" — if so, the call is restarted rather than left
// to hang indefinitely.
func (o *Orchestrator) handleICEGatheringStateChange(s webrtc.ICEGatheringState) {
	if !o.cfg.AllowIceStalledChecking || s != webrtc.ICEGatheringStateComplete || o.pc == nil {
		return
	}
	pc := o.pc
	time.AfterFunc(3*time.Second, func() {
		o.enqueue(func() {
			if o.finished || o.pc != pc {
				return
			}
			if pc.ICEConnectionState() == webrtc.ICEConnectionStateChecking ||
				pc.ConnectionState() == webrtc.PeerConnectionStateConnecting {
				o.runRestartCall()
			}
		})
	})
}

// runDisconnectionStrategy samples bitrate twice, 4 seconds apart, and
// hands both samples to checkDifferenceAndRestart, which restarts ICE when
// the relevant channel's throughput rose by more than 100kbps in between
// (see the sign note there). Single-flighted by runningDisconnectionStrategy so a second
// "disconnected" transition during the 4-second window is ignored rather
// than starting a second overlapping sampling window.
//
// NOTE: the enabling guard below is inverted on purpose. The source gates
// this strategy on AllowBitrateChecking being FALSE, not true — i.e. the
// bitrate-driven recovery path runs by default and is switched OFF by
// turning bitrate checking on. That reads backwards, but spec.md §9 open
// question 2 asks this behavior be preserved rather than silently
// corrected, so it is kept exactly as specified.
func (o *Orchestrator) runDisconnectionStrategy() {
	if o.cfg.AllowBitrateChecking {
		return
	}
	if o.pc == nil {
		return
	}
	if !o.runningDisconnectionStrategy.CompareAndSwap(false, true) {
		return
	}

	pc := o.pc
	before := o.bitrateSampler.Find(pc)

	time.AfterFunc(4*time.Second, func() {
		o.enqueue(func() {
			defer o.runningDisconnectionStrategy.Store(false)
			if o.finished || o.pc != pc {
				return
			}
			after := o.bitrateSampler.Find(pc)
			o.checkDifferenceAndRestart(before, after)
		})
	})
}

// checkDifferenceAndRestart picks the most relevant channel — local video
// output if local video is on, else peer video input if the peer has
// video, else local audio output, else peer audio input — and decides
// whether to restart ICE from the before/after bitrate samples on it.
//
// NOTE: the restart condition's sign is inverted on purpose, mirroring
// runDisconnectionStrategy's guard above (spec.md §9 open question 3):
// it fires when the channel's throughput INCREASED by more than 100kbps
// between samples, not when it dropped. Preserved as specified rather
// than silently corrected.
func (o *Orchestrator) checkDifferenceAndRestart(before, after bitrate.Rates) {
	o.mu.RLock()
	localVideoOn := o.videoEnabled
	localAudioOn := o.audioEnabled
	peerHasVideo := o.peerStream.hasVideo()
	o.mu.RUnlock()

	if shouldRestartForBitrateDelta(localVideoOn, localAudioOn, peerHasVideo, before, after) {
		o.requestICERestart()
	}
}

// shouldRestartForBitrateDelta is the pure decision at the heart of
// checkDifferenceAndRestart, split out so the channel-selection and sign
// logic can be exercised without a real PeerConnection — the same split
// bitrate.Sampler.Find/sampleFrom uses.
func shouldRestartForBitrateDelta(localVideoOn, localAudioOn, peerHasVideo bool, before, after bitrate.Rates) bool {
	var oldValue, newValue int
	switch {
	case localVideoOn:
		oldValue, newValue = before.Video.Output, after.Video.Output
	case peerHasVideo:
		oldValue, newValue = before.Video.Input, after.Video.Input
	case localAudioOn:
		oldValue, newValue = before.Audio.Output, after.Audio.Output
	default:
		oldValue, newValue = before.Audio.Input, after.Audio.Input
	}
	return oldValue-newValue < -100
}

// runRestartCall implements the shared "restart-call" procedure every
// recovery path above converges on: tear the current peer connection down
// and re-enter the offerer path against the same room, as if a fresh
// newPeer signaling event had just arrived.
func (o *Orchestrator) runRestartCall() {
	roomID := o.roomID
	constraints := o.constraints
	if roomID == "" {
		return
	}
	o.cleanLocked()
	o.iceFailed.Store(false)
	if err := o.beginOffererPath(context.Background(), roomID, constraints); err != nil {
		o.events.Emit(events.Error, err)
	}
}
