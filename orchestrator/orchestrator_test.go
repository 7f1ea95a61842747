/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/relaycall/callorc/device"
	"github.com/relaycall/callorc/events"
)

func newTestOrchestrator() (*Orchestrator, *fakeSignaling, *fakeProvider) {
	sig := newFakeSignaling()
	prov := defaultFakeProvider()
	cfg := DefaultConfig()
	cfg.Signaling = sig
	cfg.Devices = prov
	return New(cfg), sig, prov
}

// drain blocks until every function already enqueued on o's dispatch
// channel has run, by appending one more and waiting for it.
func drain(o *Orchestrator) {
	_ = o.runSync(func() error { return nil })
}

func TestDefaultConfigSdpTransformDisabledByDefault(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.sdpTransformEnabled() {
		t.Error("expected AllowSDPTransform unset by default")
	}
	falseVal := false
	cfg.AllowSDPTransform = &falseVal
	if !cfg.sdpTransformEnabled() {
		t.Error("a non-nil *bool, even pointing at false, must enable the transform (spec open question 1)")
	}
}

func TestCallErrorWrapsAndUnwraps(t *testing.T) {
	inner := errors.New("boom")
	err := newCallError(ErrDeviceNotFound, "no camera", inner)
	if !errors.Is(err, inner) {
		t.Error("expected errors.Is to see through to the wrapped error")
	}
	if err.Error() == "" {
		t.Error("expected a non-empty error string")
	}
}

func TestStartConnectsSignalingAndEmitsChange(t *testing.T) {
	o, sig, _ := newTestOrchestrator()
	changes := 0
	o.Events().On(events.Change, func(any) { changes++ })

	if err := o.Start(context.Background(), "room-1", device.Constraints{}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !sig.Connected() {
		t.Error("expected signaling to be connected after Start")
	}
	if len(sig.connectCalls) != 1 || sig.connectCalls[0] != "room-1" {
		t.Errorf("expected exactly one Connect(room-1) call, got %v", sig.connectCalls)
	}
	if changes == 0 {
		t.Error("expected at least one change event")
	}
}

func TestFinishRequiresPriorStart(t *testing.T) {
	o, _, _ := newTestOrchestrator()
	if err := o.Finish(); err == nil {
		t.Error("expected an error finishing a call that was never started")
	}
}

func TestFinishIsIdempotent(t *testing.T) {
	o, sig, _ := newTestOrchestrator()
	if err := o.Start(context.Background(), "room-2", device.Constraints{}); err != nil {
		t.Fatalf("Start: %v", err)
	}

	finishes := 0
	o.Events().On(events.Finish, func(any) { finishes++ })

	if err := o.Finish(); err != nil {
		t.Fatalf("first Finish: %v", err)
	}
	if err := o.Finish(); err != nil {
		t.Fatalf("second Finish must be a silent no-op, got error: %v", err)
	}
	if finishes != 1 {
		t.Errorf("expected exactly one finish event across two Finish calls, got %d", finishes)
	}
	if !o.Finished() {
		t.Error("expected Finished() to stick")
	}
	if len(sig.finishCalls) != 1 {
		t.Errorf("expected signaling Finish called exactly once, got %d", len(sig.finishCalls))
	}
}

func TestToggleAudioRestoresStateAfterTwoCalls(t *testing.T) {
	o, _, _ := newTestOrchestrator()
	stream := device.Stream{
		Video: newFakeTrack("v1", device.VideoInput),
		Audio: newFakeTrack("a1", device.AudioInput),
	}
	o.setLocalStream(stream)

	changes := 0
	o.Events().On(events.Change, func(any) { changes++ })

	initial := o.Audio()
	o.ToggleAudio()
	drain(o)
	if o.Audio() == initial {
		t.Fatal("expected audio-enabled flag to flip after one toggle")
	}
	o.ToggleAudio()
	drain(o)
	if o.Audio() != initial {
		t.Error("expected audio-enabled flag to return to its original value after two toggles")
	}
	if changes != 2 {
		t.Errorf("expected exactly two change events for two toggles, got %d", changes)
	}
}

func TestToggleVideoIsANoOpWithoutALocalStream(t *testing.T) {
	o, _, _ := newTestOrchestrator()
	changes := 0
	o.Events().On(events.Change, func(any) { changes++ })

	o.ToggleVideo()
	drain(o)

	if changes != 0 {
		t.Errorf("expected no change event when there is no local video track, got %d", changes)
	}
}

func TestNextVideoDeviceCyclesThroughEnumeratedCameras(t *testing.T) {
	o, _, _ := newTestOrchestrator()
	ctx := context.Background()

	if err := o.devices.SelectDefaults(ctx); err != nil {
		t.Fatalf("SelectDefaults: %v", err)
	}
	stream, err := o.devices.Acquire(ctx, device.Constraints{})
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	o.setLocalStream(stream)

	firstID := stream.Video.ID()
	if err := o.NextVideoDevice(ctx); err != nil {
		t.Fatalf("NextVideoDevice: %v", err)
	}
	if o.LocalStream().Video.ID() == firstID {
		t.Error("expected NextVideoDevice to switch to a different camera")
	}
}

func TestSetActiveDeviceRejectsNonVideoTargets(t *testing.T) {
	o, _, _ := newTestOrchestrator()
	err := o.SetActiveDevice(context.Background(), device.Info{ID: "audio-default", Kind: device.AudioInput})
	if err == nil {
		t.Error("expected an error switching to a non-video device, audio switching isn't implemented")
	}
}

func TestRunSyncReturnsErrorAfterStop(t *testing.T) {
	o, _, _ := newTestOrchestrator()
	o.Stop()
	if err := o.runSync(func() error { return nil }); err == nil {
		t.Error("expected runSync to fail once the orchestrator has stopped")
	}
}
