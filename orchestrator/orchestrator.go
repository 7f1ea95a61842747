/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

// Package orchestrator implements the Call Orchestrator of spec.md §4.4:
// the state machine that drives one pion/webrtc PeerConnection per call
// through media acquisition, offer/answer negotiation, ICE trickling, and
// local recovery strategies, against a pluggable signaling.Adapter,
// network.Prober, and device.Provider.
package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
	"go.uber.org/atomic"

	"github.com/relaycall/callorc/bitrate"
	"github.com/relaycall/callorc/device"
	"github.com/relaycall/callorc/events"
	"github.com/relaycall/callorc/icequeue"
	"github.com/relaycall/callorc/sdp"
	"github.com/relaycall/callorc/signaling"
)

// Constraints is the acquisition request passed to Start, aliased from
// device so callers need only import this package.
type Constraints = device.Constraints

// ExternalControls is the peer's reported audio/video-enabled state,
// received over the data channel (Glossary: "External controls").
type ExternalControls struct {
	Audio bool
	Video bool
}

// PeerStream is the assembled remote media: every inbound video and audio
// track collected across all of the current peer connection's receivers.
type PeerStream struct {
	VideoTracks []*webrtc.TrackRemote
	AudioTracks []*webrtc.TrackRemote
}

func (p PeerStream) hasVideo() bool { return len(p.VideoTracks) > 0 }

// Orchestrator is the Call Orchestrator. The zero value is not usable;
// construct with New.
type Orchestrator struct {
	cfg    *Config
	events *events.Emitter

	// dispatch is the single execution context every inbound event — host
	// callback, signaling event, or internal timer — is funneled through,
	// realizing spec.md §5's single-threaded cooperative scheduling model
	// and §9's explicit-dispatcher design note as one goroutine reading
	// one channel.
	dispatch chan func()
	stopCh   chan struct{}
	stopOnce sync.Once

	// mu guards only the fields the Consumer surface getters read from
	// arbitrary goroutines; every other field is touched exclusively by
	// the dispatch goroutine and needs no lock.
	mu                sync.RWMutex
	finished          bool
	matched           bool
	localStream       device.Stream
	peerStream        PeerStream
	audioEnabled      bool
	videoEnabled      bool
	externalControls  ExternalControls

	state       State
	roomID      string
	constraints Constraints

	mediaAPI     *webrtc.API
	pc           *webrtc.PeerConnection
	dataChan     *webrtc.DataChannel
	listenersSet bool

	iceQueue       *icequeue.Queue
	sdpRewriter    *sdp.Rewriter
	bitrateSampler *bitrate.Sampler
	devices        *device.Coordinator

	iceFailed                    atomic.Bool
	runningDisconnectionStrategy atomic.Bool
	listeningForNetworkChange    atomic.Bool
	networkSub                   networkSubscription
}

// networkSubscription narrows the network.Prober subscription handle to
// the single method the orchestrator needs, keeping reconnect.go testable
// against a fake.
type networkSubscription interface {
	Unsubscribe()
}

// New constructs an Orchestrator and starts its dispatch goroutine. A nil
// cfg uses DefaultConfig.
func New(cfg *Config) *Orchestrator {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	o := &Orchestrator{
		cfg:            cfg,
		events:         events.New(),
		dispatch:       make(chan func(), 64),
		stopCh:         make(chan struct{}),
		state:          StateIdle,
		iceQueue:       &icequeue.Queue{},
		sdpRewriter:    sdp.New(cfg.sdpTransformEnabled(), cfg.Logger),
		bitrateSampler: bitrate.New(),
		devices:        device.New(cfg.Devices),
	}
	go o.run()
	return o
}

func (o *Orchestrator) run() {
	for {
		select {
		case fn := <-o.dispatch:
			fn()
		case <-o.stopCh:
			return
		}
	}
}

// enqueue schedules fn to run on the dispatch goroutine without waiting
// for it to complete. Used for host/signaling callbacks, which must not
// block the caller.
func (o *Orchestrator) enqueue(fn func()) {
	select {
	case o.dispatch <- fn:
	case <-o.stopCh:
	}
}

// runSync schedules fn on the dispatch goroutine and blocks for its
// result. Used by public operations that report success/failure.
func (o *Orchestrator) runSync(fn func() error) error {
	done := make(chan error, 1)
	select {
	case o.dispatch <- func() { done <- fn() }:
	case <-o.stopCh:
		return fmt.Errorf("orchestrator: stopped")
	}
	select {
	case err := <-done:
		return err
	case <-o.stopCh:
		return fmt.Errorf("orchestrator: stopped")
	}
}

// Stop terminates the dispatch goroutine. Callers that create one
// Orchestrator per call and discard it after Finish need not call this;
// it exists for long-lived hosts that recycle Orchestrators and would
// otherwise leak a goroutine per call. Safe to call more than once.
func (o *Orchestrator) Stop() {
	o.stopOnce.Do(func() { close(o.stopCh) })
}

func (o *Orchestrator) logf(format string, v ...any) {
	if o.cfg.Logger != nil {
		o.cfg.Logger.Printf(format, v...)
	}
}

func (o *Orchestrator) emitChange() {
	o.events.Emit(events.Change, nil)
}

// Events returns the public Event Emitter (spec.md §4.5).
func (o *Orchestrator) Events() *events.Emitter { return o.events }

// --- Consumer surface getters (spec.md §6) ---

// Finished reports whether Finish has been called.
func (o *Orchestrator) Finished() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.finished
}

// Connected reports whether the signaling subscription is live.
func (o *Orchestrator) Connected() bool {
	if o.cfg.Signaling == nil {
		return false
	}
	return o.cfg.Signaling.Connected()
}

// Matched reports whether the peer-to-peer data channel is open.
func (o *Orchestrator) Matched() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.matched
}

// LocalStream returns the current local media stream.
func (o *Orchestrator) LocalStream() device.Stream {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.localStream
}

// PeerStream returns the assembled remote media stream.
func (o *Orchestrator) PeerStream() PeerStream {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.peerStream
}

// Video reports the local video-enabled flag.
func (o *Orchestrator) Video() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.videoEnabled
}

// Audio reports the local audio-enabled flag.
func (o *Orchestrator) Audio() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.audioEnabled
}

// ExternalControls returns the peer's last-reported audio/video state.
func (o *Orchestrator) ExternalControls() ExternalControls {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.externalControls
}

func (o *Orchestrator) setMatched(v bool) {
	o.mu.Lock()
	o.matched = v
	o.mu.Unlock()
}

func (o *Orchestrator) setLocalStream(s device.Stream) {
	o.mu.Lock()
	o.localStream = s
	o.audioEnabled = s.Audio != nil && s.Audio.Enabled()
	o.videoEnabled = s.Video != nil && s.Video.Enabled()
	o.mu.Unlock()
	o.events.Emit(events.LocalTrackChange, s)
}

func (o *Orchestrator) setPeerStream(s PeerStream) {
	o.mu.Lock()
	o.peerStream = s
	o.mu.Unlock()
	o.events.Emit(events.TrackChange, s)
}

func (o *Orchestrator) setExternalControls(ec ExternalControls) {
	o.mu.Lock()
	o.externalControls = ec
	o.mu.Unlock()
	o.emitChange()
}

// --- Lifecycle operations (spec.md §4.4 table) ---

// Start acquires media, attaches signaling listeners on first use, connects
// signaling if not already connected, and enters the offerer/answerer
// negotiation protocol as inbound signaling events arrive.
func (o *Orchestrator) Start(ctx context.Context, roomID string, constraints Constraints) error {
	return o.runSync(func() error {
		if o.finished {
			return fmt.Errorf("orchestrator: cannot start, already finished")
		}

		o.roomID = roomID
		o.constraints = constraints
		o.state = StateAcquiringMedia

		if err := o.acquireAndAddTracks(ctx, constraints); err != nil {
			return err
		}

		if !o.listenersSet {
			o.attachSignalingListeners()
			o.listenersSet = true
		}

		if o.cfg.Signaling != nil && !o.cfg.Signaling.Connected() {
			if err := o.cfg.Signaling.Connect(ctx, roomID); err != nil {
				o.events.Emit(events.Error, newCallError(ErrSupport, "signaling connect failed", err))
				return err
			}
		}

		o.state = StateSignalingConnected
		o.emitChange()
		return nil
	})
}

// Finish tears the call down permanently. Idempotent: a second call is a
// no-op with a warning log.
func (o *Orchestrator) Finish() error {
	return o.runSync(o.finishLocked)
}

// finishLocked is Finish's body; it must run on the dispatch goroutine.
func (o *Orchestrator) finishLocked() error {
	if o.finished {
		o.logf("orchestrator: finish() called again after finish; ignoring")
		return nil
	}
	if o.roomID == "" {
		return fmt.Errorf("orchestrator: finish() called with no roomId")
	}

	o.mu.Lock()
	o.finished = true
	o.mu.Unlock()
	roomID := o.roomID
	o.roomID = ""
	o.constraints = Constraints{}
	o.state = StateFinished

	o.cleanLocked()

	if o.cfg.Signaling != nil {
		ctx := context.Background()
		if err := o.cfg.Signaling.Finish(ctx, roomID); err != nil {
			o.logf("orchestrator: signaling finish failed (ignored): %v", err)
		}
		if err := o.cfg.Signaling.Disconnect(ctx, roomID); err != nil {
			o.logf("orchestrator: signaling disconnect failed (ignored): %v", err)
		}
	}

	o.events.Emit(events.Finish, nil)
	o.emitChange()
	return nil
}

// Clean closes the peer connection and data channel if open, nulls every
// listener slot, and clears the ICE queue — but does not stop local
// tracks, so a subsequent Start can reuse them.
func (o *Orchestrator) Clean() {
	_ = o.runSync(func() error {
		o.cleanLocked()
		o.emitChange()
		return nil
	})
}

func (o *Orchestrator) cleanLocked() {
	if o.dataChan != nil {
		o.dataChan.OnOpen(nil)
		o.dataChan.OnClose(nil)
		o.dataChan.OnError(nil)
		o.dataChan.OnMessage(nil)
		_ = o.dataChan.Close()
		o.dataChan = nil
	}
	if o.pc != nil {
		o.pc.OnICECandidate(nil)
		o.pc.OnICEConnectionStateChange(nil)
		o.pc.OnConnectionStateChange(nil)
		o.pc.OnSignalingStateChange(nil)
		o.pc.OnICEGatheringStateChange(func(webrtc.ICEGatheringState) {})
		o.pc.OnNegotiationNeeded(nil)
		o.pc.OnTrack(nil)
		o.pc.OnDataChannel(nil)
		_ = o.pc.Close()
		o.pc = nil
	}
	o.setMatched(false)
	o.iceQueue.Drain()
}

// ToggleAudio flips enabled on the local audio track, pushes the new
// control state over the data channel, and emits change. Silent no-op if
// there is no local stream.
func (o *Orchestrator) ToggleAudio() {
	o.toggle(true)
}

// ToggleVideo flips enabled on the local video track.
func (o *Orchestrator) ToggleVideo() {
	o.toggle(false)
}

func (o *Orchestrator) toggle(audio bool) {
	o.enqueue(func() {
		o.mu.RLock()
		stream := o.localStream
		o.mu.RUnlock()

		var track device.Track
		if audio {
			track = stream.Audio
		} else {
			track = stream.Video
		}
		if track == nil {
			return
		}
		track.SetEnabled(!track.Enabled())

		o.mu.Lock()
		if audio {
			o.audioEnabled = track.Enabled()
		} else {
			o.videoEnabled = track.Enabled()
		}
		o.mu.Unlock()

		o.sendControlFrame()
		o.emitChange()
	})
}

// SetActiveDevice makes target the remembered video device and replaces
// the video sender track. Only video devices are supported: a target of
// any other kind returns an error and changes nothing.
func (o *Orchestrator) SetActiveDevice(ctx context.Context, target device.Info) error {
	return o.runSync(func() error {
		return o.switchDeviceLocked(ctx, target)
	})
}

// NextVideoDevice rotates to the next videoinput, wrapping.
func (o *Orchestrator) NextVideoDevice(ctx context.Context) error {
	return o.runSync(func() error {
		next, err := o.devices.NextVideoDevice(ctx)
		if err != nil {
			o.events.Emit(events.Error, err)
			return err
		}
		return o.switchDeviceLocked(ctx, next)
	})
}

func (o *Orchestrator) switchDeviceLocked(ctx context.Context, target device.Info) error {
	o.mu.RLock()
	stream := o.localStream
	o.mu.RUnlock()

	if target.Kind != device.VideoInput {
		return fmt.Errorf("orchestrator: only video device switching is implemented")
	}

	current := stream.Video
	if switcher, ok := current.(device.CameraSwitcher); ok {
		if err := switcher.SwitchCamera(); err != nil {
			o.events.Emit(events.Error, err)
			return err
		}
		return nil
	}

	next, err := o.devices.SwitchVideoDevice(ctx, target, current)
	if err != nil {
		o.events.Emit(events.Error, err)
		return err
	}

	stream.Video = next
	o.setLocalStream(stream)
	o.replaceSenderTrack(next)
	return nil
}

func (o *Orchestrator) replaceSenderTrack(next device.Track) {
	if o.pc == nil {
		return
	}
	webrtcTrack, ok := next.(device.WebRTCTrack)
	if !ok {
		return
	}
	local := webrtcTrack.Local()
	if local == nil {
		return
	}
	for _, sender := range o.pc.GetSenders() {
		if sender.Track() != nil && sender.Track().Kind() == webrtc.RTPCodecTypeVideo {
			if err := sender.ReplaceTrack(local); err != nil {
				o.logf("orchestrator: replace track failed, falling back to renegotiation: %v", err)
				o.requestICERestart()
			}
			return
		}
	}
}

// ShareScreen tears the peer connection down and re-enters the offerer
// path with a video constraint whose DeviceID is "screen" ("renegotiation
// by teardown"). Media is requested through Provider.GetUserMedia, not
// GetDisplayMedia, and only when no local stream is held: an already
// acquired local stream is reused unchanged.
func (o *Orchestrator) ShareScreen(ctx context.Context) error {
	return o.restartWithConstraints(ctx, Constraints{
		Video: &device.VideoConstraints{DeviceID: "screen"},
		Audio: o.constraints.Audio,
	})
}

// ShareVideo tears the peer connection down and re-enters the offerer
// path with a default camera video constraint. As with ShareScreen, an
// already acquired local stream is reused unchanged.
func (o *Orchestrator) ShareVideo(ctx context.Context) error {
	return o.restartWithConstraints(ctx, Constraints{
		Video: &device.VideoConstraints{},
		Audio: o.constraints.Audio,
	})
}

func (o *Orchestrator) restartWithConstraints(ctx context.Context, constraints Constraints) error {
	return o.runSync(func() error {
		roomID := o.roomID
		o.cleanLocked()
		o.constraints = constraints
		o.state = StateAcquiringMedia
		return o.beginOffererPath(ctx, roomID, constraints)
	})
}

// Send forwards data to the open data channel. Silent no-op if the
// channel is not open.
func (o *Orchestrator) Send(data []byte) {
	o.enqueue(func() {
		if o.dataChan == nil || o.dataChan.ReadyState() != webrtc.DataChannelStateOpen {
			return
		}
		if err := o.dataChan.Send(data); err != nil {
			o.logf("orchestrator: send failed: %v", err)
		}
	})
}
