/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package orchestrator

import (
	"context"
	"sync"

	"github.com/relaycall/callorc/device"
	"github.com/relaycall/callorc/events"
	"github.com/relaycall/callorc/signaling"
)

// fakeTrack is a minimal device.Track double; it does not implement
// device.WebRTCTrack, so orchestrator code that adds/replaces peer
// connection senders silently skips it, matching how a Provider without a
// webrtc-native track behaves.
type fakeTrack struct {
	id      string
	kind    device.Kind
	mu      sync.Mutex
	enabled bool
	stopped bool
}

func newFakeTrack(id string, kind device.Kind) *fakeTrack {
	return &fakeTrack{id: id, kind: kind, enabled: true}
}

func (t *fakeTrack) ID() string   { return t.id }
func (t *fakeTrack) Kind() device.Kind { return t.kind }
func (t *fakeTrack) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}
func (t *fakeTrack) SetEnabled(v bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enabled = v
}
func (t *fakeTrack) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
}

// fakeProvider serves a fixed device list and hands back fresh fakeTracks
// on every acquisition.
type fakeProvider struct {
	infos []device.Info
	fail  error
}

func (p *fakeProvider) EnumerateDevices(ctx context.Context) ([]device.Info, error) {
	return p.infos, nil
}

func (p *fakeProvider) GetUserMedia(ctx context.Context, constraints device.Constraints) (device.RawStream, error) {
	if p.fail != nil {
		return device.RawStream{}, p.fail
	}
	var raw device.RawStream
	if constraints.Video != nil || len(p.videoInfos()) > 0 {
		id := "video-default"
		if constraints.Video != nil && constraints.Video.DeviceID != "" {
			id = constraints.Video.DeviceID
		}
		raw.VideoTracks = append(raw.VideoTracks, newFakeTrack(id, device.VideoInput))
	}
	id := "audio-default"
	if constraints.Audio != nil && constraints.Audio.DeviceID != "" {
		id = constraints.Audio.DeviceID
	}
	raw.AudioTracks = append(raw.AudioTracks, newFakeTrack(id, device.AudioInput))
	return raw, nil
}

func (p *fakeProvider) GetDisplayMedia(ctx context.Context) (device.RawStream, error) {
	return device.RawStream{VideoTracks: []device.Track{newFakeTrack("screen", device.VideoInput)}}, nil
}

func (p *fakeProvider) videoInfos() []device.Info {
	var out []device.Info
	for _, i := range p.infos {
		if i.Kind == device.VideoInput {
			out = append(out, i)
		}
	}
	return out
}

func defaultFakeProvider() *fakeProvider {
	return &fakeProvider{infos: []device.Info{
		{ID: "video-default", Kind: device.VideoInput, Label: "Front Camera", Facing: "front"},
		{ID: "video-rear", Kind: device.VideoInput, Label: "Rear Camera", Facing: "back"},
		{ID: "audio-default", Kind: device.AudioInput, Label: "Default Mic"},
	}}
}

// fakeSignaling is a minimal signaling.Adapter double: it records every
// call and lets tests drive inbound events directly through its Emitter.
type fakeSignaling struct {
	mu        sync.Mutex
	em        *events.Emitter
	connected bool

	connectCalls    []string
	finishCalls     []string
	disconnectCalls []string
	offers          []string
	answers         []string
	candidates      []string

	connectErr error
}

func newFakeSignaling() *fakeSignaling {
	return &fakeSignaling{em: events.New()}
}

func (f *fakeSignaling) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeSignaling) Connect(ctx context.Context, roomID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected = true
	f.connectCalls = append(f.connectCalls, roomID)
	return nil
}

func (f *fakeSignaling) Disconnect(ctx context.Context, roomID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	f.disconnectCalls = append(f.disconnectCalls, roomID)
	return nil
}

func (f *fakeSignaling) Finish(ctx context.Context, roomID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finishCalls = append(f.finishCalls, roomID)
	return nil
}

func (f *fakeSignaling) SendSDPOffer(ctx context.Context, roomID, sdp string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offers = append(f.offers, sdp)
	return nil
}

func (f *fakeSignaling) SendSDPAnswer(ctx context.Context, roomID, sdp string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers = append(f.answers, sdp)
	return nil
}

func (f *fakeSignaling) SendICECandidate(ctx context.Context, roomID, candidate string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.candidates = append(f.candidates, candidate)
	return nil
}

func (f *fakeSignaling) Events() *events.Emitter { return f.em }

var _ signaling.Adapter = (*fakeSignaling)(nil)
