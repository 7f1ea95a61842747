/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package device

import (
	"context"
	"errors"
	"testing"
)

type fakeTrack struct {
	id      string
	kind    Kind
	enabled bool
	stopped bool
}

func (t *fakeTrack) ID() string         { return t.id }
func (t *fakeTrack) Kind() Kind         { return t.kind }
func (t *fakeTrack) Enabled() bool      { return t.enabled }
func (t *fakeTrack) SetEnabled(b bool)  { t.enabled = b }
func (t *fakeTrack) Stop()              { t.stopped = true }

type fakeProvider struct {
	infos     []Info
	enumErr   error
	failUM    error
	lastConst Constraints
}

func (p *fakeProvider) EnumerateDevices(ctx context.Context) ([]Info, error) {
	if p.enumErr != nil {
		return nil, p.enumErr
	}
	return p.infos, nil
}

func (p *fakeProvider) GetUserMedia(ctx context.Context, constraints Constraints) (RawStream, error) {
	p.lastConst = constraints
	if p.failUM != nil {
		return RawStream{}, p.failUM
	}
	var raw RawStream
	if constraints.Video != nil {
		raw.VideoTracks = []Track{&fakeTrack{id: constraints.Video.DeviceID, kind: VideoInput, enabled: true}}
	}
	if constraints.Audio != nil {
		raw.AudioTracks = []Track{&fakeTrack{id: constraints.Audio.DeviceID, kind: AudioInput, enabled: true}}
	}
	return raw, nil
}

func (p *fakeProvider) GetDisplayMedia(ctx context.Context) (RawStream, error) {
	return RawStream{}, nil
}

func TestSelectDefaultsPrefersFrontFacing(t *testing.T) {
	p := &fakeProvider{infos: []Info{
		{ID: "back-cam", Kind: VideoInput, Label: "Back Camera", Facing: "back"},
		{ID: "front-cam", Kind: VideoInput, Label: "Front Camera", Facing: "front"},
		{ID: "mic", Kind: AudioInput, Label: "Built-in Mic"},
	}}
	c := New(p)
	if err := c.SelectDefaults(context.Background()); err != nil {
		t.Fatalf("SelectDefaults: %v", err)
	}
	if c.SelectedVideo() == nil || c.SelectedVideo().ID != "front-cam" {
		t.Errorf("expected front-cam selected, got %+v", c.SelectedVideo())
	}
	if c.SelectedAudio() == nil || c.SelectedAudio().ID != "mic" {
		t.Errorf("expected mic selected, got %+v", c.SelectedAudio())
	}
}

func TestSelectDefaultsFallsBackToNonRearLabel(t *testing.T) {
	p := &fakeProvider{infos: []Info{
		{ID: "rear", Kind: VideoInput, Label: "Rear facing camera"},
		{ID: "webcam", Kind: VideoInput, Label: "USB Webcam"},
	}}
	c := New(p)
	_ = c.SelectDefaults(context.Background())
	if c.SelectedVideo() == nil || c.SelectedVideo().ID != "webcam" {
		t.Errorf("expected webcam selected over rear camera, got %+v", c.SelectedVideo())
	}
}

func TestSelectDefaultsRemembersPriorSelectionByID(t *testing.T) {
	p := &fakeProvider{infos: []Info{
		{ID: "cam-a", Kind: VideoInput, Label: "Camera A"},
		{ID: "cam-b", Kind: VideoInput, Label: "Camera B"},
	}}
	c := New(p)
	_ = c.SelectDefaults(context.Background())
	c.selectedVideo = &Info{ID: "cam-b", Kind: VideoInput}

	_ = c.SelectDefaults(context.Background())
	if c.SelectedVideo().ID != "cam-b" {
		t.Errorf("expected remembered cam-b to stick, got %+v", c.SelectedVideo())
	}
}

func TestAcquireDefaultsDeviceIDFromSelection(t *testing.T) {
	p := &fakeProvider{infos: []Info{{ID: "cam-1", Kind: VideoInput}}}
	c := New(p)
	_ = c.SelectDefaults(context.Background())

	stream, err := c.Acquire(context.Background(), Constraints{Video: &VideoConstraints{}})
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if stream.Video == nil || stream.Video.ID() != "cam-1" {
		t.Errorf("expected acquire to default to selected device cam-1, got %+v", stream.Video)
	}
	if p.lastConst.Video.DeviceID != "cam-1" {
		t.Errorf("expected GetUserMedia to receive defaulted device id, got %q", p.lastConst.Video.DeviceID)
	}
}

func TestAcquireWrapsFailureAsDeviceError(t *testing.T) {
	p := &fakeProvider{failUM: errors.New("permission denied")}
	c := New(p)

	_, err := c.Acquire(context.Background(), Constraints{Video: &VideoConstraints{DeviceID: "x"}})
	var devErr *Error
	if !errors.As(err, &devErr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if devErr.Code != ErrPermission || devErr.Device != Camera {
		t.Errorf("unexpected error shape: %+v", devErr)
	}
}

func TestAcquireWrapsNotFoundFailureAsDeviceError(t *testing.T) {
	p := &fakeProvider{failUM: errors.New("no such device")}
	c := New(p)

	_, err := c.Acquire(context.Background(), Constraints{Video: &VideoConstraints{DeviceID: "x"}})
	var devErr *Error
	if !errors.As(err, &devErr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if devErr.Code != ErrNotFound {
		t.Errorf("unexpected error code: %+v", devErr)
	}
}

func TestAcquireHonorsProviderReasonError(t *testing.T) {
	p := &fakeProvider{failUM: &ReasonError{Reason: ReasonNotAllowed, Err: errors.New("denied by user")}}
	c := New(p)

	_, err := c.Acquire(context.Background(), Constraints{Video: &VideoConstraints{DeviceID: "x"}})
	var devErr *Error
	if !errors.As(err, &devErr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if devErr.Code != ErrPermission {
		t.Errorf("expected ReasonNotAllowed to classify as ErrPermission, got %+v", devErr)
	}
}

func TestSelectDefaultsClassifiesEnumerationFailure(t *testing.T) {
	p := &fakeProvider{enumErr: &ReasonError{Reason: ReasonSecurity, Err: errors.New("blocked")}}
	c := New(p)

	err := c.SelectDefaults(context.Background())
	var devErr *Error
	if !errors.As(err, &devErr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if devErr.Code != ErrPermission {
		t.Errorf("expected ReasonSecurity to classify as ErrPermission, got %+v", devErr)
	}
}

func TestNextVideoDeviceCyclesAndWraps(t *testing.T) {
	p := &fakeProvider{infos: []Info{
		{ID: "cam-a", Kind: VideoInput},
		{ID: "cam-b", Kind: VideoInput},
	}}
	c := New(p)
	_ = c.SelectDefaults(context.Background())
	first := c.SelectedVideo().ID

	next, err := c.NextVideoDevice(context.Background())
	if err != nil {
		t.Fatalf("NextVideoDevice: %v", err)
	}
	if next.ID == first {
		t.Errorf("expected NextVideoDevice to switch away from %q", first)
	}

	back, err := c.NextVideoDevice(context.Background())
	if err != nil {
		t.Fatalf("NextVideoDevice: %v", err)
	}
	if back.ID != first {
		t.Errorf("expected wraparound back to %q, got %q", first, back.ID)
	}
}

func TestSwitchVideoDeviceStopsCurrentAndAcquiresTarget(t *testing.T) {
	p := &fakeProvider{infos: []Info{{ID: "cam-a", Kind: VideoInput}}}
	c := New(p)
	current := &fakeTrack{id: "cam-old", kind: VideoInput, enabled: true}

	next, err := c.SwitchVideoDevice(context.Background(), Info{ID: "cam-a", Kind: VideoInput}, current)
	if err != nil {
		t.Fatalf("SwitchVideoDevice: %v", err)
	}
	if !current.stopped {
		t.Error("expected current track to be stopped")
	}
	if next == nil || next.ID() != "cam-a" {
		t.Errorf("expected new track for cam-a, got %+v", next)
	}
	if c.SelectedVideo().ID != "cam-a" {
		t.Errorf("expected selection updated to cam-a, got %+v", c.SelectedVideo())
	}
}

func TestResetClearsSelection(t *testing.T) {
	p := &fakeProvider{infos: []Info{{ID: "cam-a", Kind: VideoInput}}}
	c := New(p)
	_ = c.SelectDefaults(context.Background())
	if c.SelectedVideo() == nil {
		t.Fatal("expected a selection before Reset")
	}
	c.Reset()
	if c.SelectedVideo() != nil || c.SelectedAudio() != nil {
		t.Error("expected Reset to clear selections")
	}
}
