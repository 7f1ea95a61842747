/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package orchestrator

import (
	"context"
	"fmt"

	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"

	"github.com/relaycall/callorc/device"
	"github.com/relaycall/callorc/events"
	"github.com/relaycall/callorc/signaling"
)

// attachSignalingListeners wires the orchestrator's negotiation handlers to
// the signaling.Adapter's event emitter. Called once per Orchestrator
// lifetime, on the first Start.
func (o *Orchestrator) attachSignalingListeners() {
	if o.cfg.Signaling == nil {
		return
	}
	em := o.cfg.Signaling.Events()

	em.On(signaling.EventNewPeer, func(data any) {
		o.enqueue(func() { o.onNewPeer(data) })
	})
	em.On(signaling.EventNewOffer, func(data any) {
		o.enqueue(func() { o.onNewOffer(data) })
	})
	em.On(signaling.EventNewAnswer, func(data any) {
		o.enqueue(func() { o.onNewAnswer(data) })
	})
	em.On(signaling.EventNewIceCandidate, func(data any) {
		o.enqueue(func() { o.onNewRemoteIceCandidate(data) })
	})
	em.On(signaling.EventError, func(data any) {
		o.events.Emit(events.Error, data)
	})
	em.On(signaling.EventClose, func(data any) {
		o.emitChange()
	})
	em.On(signaling.EventFinished, func(data any) {
		o.enqueue(func() {
			if !o.finished {
				_ = o.finishLocked()
			}
		})
	})
}

func (o *Orchestrator) onNewPeer(data any) {
	if o.finished {
		return
	}
	ctx := context.Background()
	if err := o.beginOffererPath(ctx, o.roomID, o.constraints); err != nil {
		o.events.Emit(events.Error, err)
	}
}

// beginOffererPath implements the offerer path of spec.md §4.4: create the
// peer connection, install listeners, acquire media, add tracks, create
// the control data channel, and let OnNegotiationNeeded fire the offer.
func (o *Orchestrator) beginOffererPath(ctx context.Context, roomID string, constraints Constraints) error {
	o.state = StateNegotiatingOfferer

	if err := o.createPeerConnection(); err != nil {
		o.events.Emit(events.Error, newCallError(ErrSupport, "failed to create peer connection", err))
		return err
	}

	if err := o.acquireAndAddTracks(ctx, constraints); err != nil {
		return err
	}

	dc, err := o.pc.CreateDataChannel("data-channel", &webrtc.DataChannelInit{Ordered: boolPtr(true)})
	if err != nil {
		o.events.Emit(events.Error, err)
		return err
	}
	o.installDataChannel(dc)

	return nil
}

// onNewOffer implements the answerer path of spec.md §4.4.
func (o *Orchestrator) onNewOffer(data any) {
	if o.finished {
		return
	}
	payload, ok := data.(signaling.SDPPayload)
	if !ok {
		return
	}
	o.state = StateNegotiatingAnswerer

	o.cleanLocked() // closes any prior peer connection

	if err := o.createPeerConnection(); err != nil {
		o.events.Emit(events.Error, newCallError(ErrSupport, "failed to create peer connection", err))
		return
	}

	if err := o.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  payload.SDP,
	}); err != nil {
		o.events.Emit(events.Error, err)
		return
	}
	o.drainICEQueue()

	ctx := context.Background()
	if err := o.acquireAndAddTracks(ctx, o.constraints); err != nil {
		return
	}

	answer, err := o.pc.CreateAnswer(nil)
	if err != nil {
		o.events.Emit(events.Error, err)
		return
	}
	answer.SDP = o.sdpRewriter.Rewrite(answer.SDP, o.cfg.Bandwidth)
	if err := o.pc.SetLocalDescription(answer); err != nil {
		o.events.Emit(events.Error, err)
		return
	}
	if o.cfg.Signaling != nil {
		if err := o.cfg.Signaling.SendSDPAnswer(ctx, payload.RoomID, answer.SDP); err != nil {
			o.events.Emit(events.Error, err)
		}
	}
}

// onNewAnswer accepts an inbound answer only in have-local-offer or
// have-remote-pranswer signaling states.
func (o *Orchestrator) onNewAnswer(data any) {
	if o.finished || o.pc == nil {
		return
	}
	payload, ok := data.(signaling.SDPPayload)
	if !ok {
		return
	}
	switch o.pc.SignalingState() {
	case webrtc.SignalingStateHaveLocalOffer, webrtc.SignalingStateHaveRemotePranswer:
	default:
		return
	}

	rewritten := o.sdpRewriter.Rewrite(payload.SDP, o.cfg.Bandwidth)
	if err := o.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  rewritten,
	}); err != nil {
		o.events.Emit(events.Error, err)
	}
}

func (o *Orchestrator) onNewRemoteIceCandidate(data any) {
	payload, ok := data.(signaling.ICECandidatePayload)
	if !ok {
		return
	}
	candidate := webrtc.ICECandidateInit{Candidate: payload.Candidate}

	if o.pc == nil {
		o.iceQueue.Push(candidate)
		return
	}
	if o.pc.RemoteDescription() != nil {
		if err := o.pc.AddICECandidate(candidate); err != nil {
			o.logf("orchestrator: add ICE candidate failed: %v", err)
		}
		return
	}
	if o.pc.SignalingState() == webrtc.SignalingStateStable {
		o.logf("orchestrator: dropping ICE candidate received in stable state with no remote description (anomalous)")
		return
	}
	o.iceQueue.Push(candidate)
}

// drainICEQueue adds every buffered candidate to the peer connection, in
// arrival order, emptying the queue before returning. Called on
// signalingstatechange once a remote description exists.
func (o *Orchestrator) drainICEQueue() {
	if o.pc == nil || o.pc.RemoteDescription() == nil {
		return
	}
	for _, c := range o.iceQueue.Drain() {
		if err := o.pc.AddICECandidate(c); err != nil {
			o.logf("orchestrator: add queued ICE candidate failed: %v", err)
		}
	}
}

// newMediaAPI builds the pion webrtc.API this orchestrator's peer
// connections are created from: default codecs, undeclared-SSRC handling
// for peers that send RTP before the answer is fully processed, and the
// default interceptor chain (RTCP reports, NACK, TWCC) registered
// explicitly rather than left to an implicit default, the same shape
// calling/media.go's NewMediaEngine builds its API from.
func newMediaAPI() (*webrtc.API, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("orchestrator: register default codecs: %w", err)
	}

	settings := webrtc.SettingEngine{}
	settings.SetHandleUndeclaredSSRCWithoutAnswer(true)

	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, registry); err != nil {
		return nil, fmt.Errorf("orchestrator: register default interceptors: %w", err)
	}

	return webrtc.NewAPI(
		webrtc.WithMediaEngine(m),
		webrtc.WithSettingEngine(settings),
		webrtc.WithInterceptorRegistry(registry),
	), nil
}

func (o *Orchestrator) createPeerConnection() error {
	if o.mediaAPI == nil {
		api, err := newMediaAPI()
		if err != nil {
			return err
		}
		o.mediaAPI = api
	}

	pc, err := o.mediaAPI.NewPeerConnection(o.cfg.RTCConfiguration)
	if err != nil {
		return fmt.Errorf("orchestrator: new peer connection: %w", err)
	}
	o.pc = pc

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		init := c.ToJSON()
		o.enqueue(func() {
			if o.cfg.Signaling == nil || o.roomID == "" {
				return
			}
			if err := o.cfg.Signaling.SendICECandidate(context.Background(), o.roomID, init.Candidate); err != nil {
				o.logf("orchestrator: send ICE candidate failed: %v", err)
			}
		})
	})

	pc.OnSignalingStateChange(func(webrtc.SignalingState) {
		o.enqueue(o.drainICEQueue)
	})

	pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		o.enqueue(func() { o.handleICEConnectionStateChange(s) })
	})

	pc.OnICEGatheringStateChange(func(s webrtc.ICEGatheringState) {
		o.enqueue(func() { o.handleICEGatheringStateChange(s) })
	})

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		o.enqueue(func() { o.handleConnectionStateChange(s) })
	})

	pc.OnNegotiationNeeded(func() {
		o.enqueue(func() { o.handleNegotiationNeeded(false) })
	})

	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		o.enqueue(func() { o.installDataChannel(dc) })
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		o.enqueue(func() { o.onRemoteTrack(track, receiver) })
	})

	return nil
}

// handleNegotiationNeeded produces and sends a new offer. iceRestart
// requests an ICE restart flag on the generated offer.
func (o *Orchestrator) handleNegotiationNeeded(iceRestart bool) {
	if o.pc == nil || o.pc.SignalingState() != webrtc.SignalingStateStable {
		return
	}

	offer, err := o.pc.CreateOffer(&webrtc.OfferOptions{ICERestart: iceRestart})
	if err != nil {
		o.events.Emit(events.Error, err)
		return
	}
	offer.SDP = o.sdpRewriter.Rewrite(offer.SDP, o.cfg.Bandwidth)

	if err := o.pc.SetLocalDescription(offer); err != nil {
		o.events.Emit(events.Error, err)
		return
	}
	if o.cfg.Signaling != nil && o.roomID != "" {
		if err := o.cfg.Signaling.SendSDPOffer(context.Background(), o.roomID, offer.SDP); err != nil {
			o.events.Emit(events.Error, err)
		}
	}
}

func (o *Orchestrator) requestICERestart() {
	if o.pc == nil {
		return
	}
	if restarter, ok := any(o.pc).(interface{ RestartICE() error }); ok {
		if err := restarter.RestartICE(); err == nil {
			return
		}
	}
	o.handleNegotiationNeeded(true)
}

// acquireAndAddTracks acquires local media (if not already held) and adds
// its tracks to the peer connection as senders.
func (o *Orchestrator) acquireAndAddTracks(ctx context.Context, constraints Constraints) error {
	o.mu.RLock()
	existing := o.localStream
	o.mu.RUnlock()
	if existing.Video != nil || existing.Audio != nil {
		o.addStreamTracks(existing)
		return nil
	}

	if err := o.devices.SelectDefaults(ctx); err != nil {
		o.events.Emit(events.Error, err)
	}

	stream, err := o.devices.Acquire(ctx, constraints)
	if err != nil {
		o.events.Emit(events.Error, err)
		return err
	}
	o.setLocalStream(stream)
	o.addStreamTracks(stream)
	return nil
}

// addStreamTracks adds each track of stream to the peer connection at most
// once, per negotiation invariant 6. It checks the existing senders rather
// than relying on callers to invoke it only once per connection lifetime.
func (o *Orchestrator) addStreamTracks(stream device.Stream) {
	if o.pc == nil {
		return
	}
	senders := o.pc.GetSenders()
	for _, t := range []device.Track{stream.Video, stream.Audio} {
		if t == nil {
			continue
		}
		webrtcTrack, ok := t.(device.WebRTCTrack)
		if !ok {
			continue
		}
		local := webrtcTrack.Local()
		if local == nil {
			continue
		}
		if hasSenderForTrack(senders, local.Kind()) {
			continue
		}
		if _, err := o.pc.AddTrack(local); err != nil {
			o.logf("orchestrator: add track failed: %v", err)
		}
	}
}

// hasSenderForTrack reports whether senders already includes one carrying a
// track of the given kind, so addStreamTracks never adds a second sender
// for the same media kind on a connection.
func hasSenderForTrack(senders []*webrtc.RTPSender, kind webrtc.RTPCodecType) bool {
	for _, sender := range senders {
		if sender.Track() != nil && sender.Track().Kind() == kind {
			return true
		}
	}
	return false
}

func (o *Orchestrator) onRemoteTrack(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
	o.mu.Lock()
	switch track.Kind() {
	case webrtc.RTPCodecTypeVideo:
		o.peerStream.VideoTracks = append(o.peerStream.VideoTracks, track)
	case webrtc.RTPCodecTypeAudio:
		o.peerStream.AudioTracks = append(o.peerStream.AudioTracks, track)
	}
	snapshot := o.peerStream
	o.mu.Unlock()
	o.events.Emit(events.TrackChange, snapshot)
}

func boolPtr(b bool) *bool { return &b }
