/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package device

import (
	"context"
	"regexp"
)

var backOrRear = regexp.MustCompile(`(?i)back|rear`)

// Coordinator implements the Device Coordinator of spec.md §4.3: default
// selection, acquisition, and switching of local video/audio input, against
// a pluggable Provider.
type Coordinator struct {
	provider Provider

	selectedVideo *Info
	selectedAudio *Info
}

// New constructs a Coordinator bound to provider.
func New(provider Provider) *Coordinator {
	return &Coordinator{provider: provider}
}

// SelectDefaults enumerates available devices and records the default
// camera and microphone, without acquiring a stream. It is separated from
// Acquire so the orchestrator can report "which device would be used"
// before the user has granted access.
func (c *Coordinator) SelectDefaults(ctx context.Context) error {
	infos, err := c.provider.EnumerateDevices(ctx)
	if err != nil {
		return &Error{Code: classify(err), Device: Camera, Err: err}
	}
	c.selectedVideo = pickDefault(infos, VideoInput, c.selectedVideo)
	c.selectedAudio = pickDefault(infos, AudioInput, c.selectedAudio)
	return nil
}

// pickDefault chooses a device of kind from infos, preferring (in order):
// the device remembered from a prior selection (by ID, if still present),
// a front-facing device, a device whose label doesn't look like a rear
// camera, then simply the first device of that kind.
func pickDefault(infos []Info, kind Kind, remembered *Info) *Info {
	var candidates []Info
	for _, info := range infos {
		if info.Kind == kind {
			candidates = append(candidates, info)
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	if remembered != nil {
		for i := range candidates {
			if candidates[i].ID == remembered.ID {
				return &candidates[i]
			}
		}
	}

	for i := range candidates {
		if candidates[i].Facing == "front" {
			return &candidates[i]
		}
	}

	for i := range candidates {
		if !backOrRear.MatchString(candidates[i].Label) {
			return &candidates[i]
		}
	}

	return &candidates[0]
}

// Acquire calls GetUserMedia with constraints defaulted from the currently
// selected devices when the caller leaves DeviceID empty, then reduces the
// resulting RawStream to a single video/audio Track pair.
func (c *Coordinator) Acquire(ctx context.Context, constraints Constraints) (Stream, error) {
	if constraints.Video != nil && constraints.Video.DeviceID == "" && c.selectedVideo != nil {
		constraints.Video.DeviceID = c.selectedVideo.ID
	}
	if constraints.Audio != nil && constraints.Audio.DeviceID == "" && c.selectedAudio != nil {
		constraints.Audio.DeviceID = c.selectedAudio.ID
	}

	raw, err := c.provider.GetUserMedia(ctx, constraints)
	if err != nil {
		tag := Camera
		if constraints.Video == nil {
			tag = Microphone
		}
		return Stream{}, &Error{Code: classify(err), Device: tag, Err: err}
	}

	var out Stream
	for _, t := range raw.VideoTracks {
		if t.Enabled() {
			out.Video = t
			break
		}
	}
	for _, t := range raw.AudioTracks {
		if t.Enabled() {
			out.Audio = t
			break
		}
	}
	return out, nil
}

// NextVideoDevice returns the video device that follows the currently
// selected one in enumeration order, wrapping around. It is the backing
// operation for the orchestrator's nextVideoDevice (spec.md §4.4), used on
// platforms where the acquired Track does not implement CameraSwitcher.
func (c *Coordinator) NextVideoDevice(ctx context.Context) (Info, error) {
	infos, err := c.provider.EnumerateDevices(ctx)
	if err != nil {
		return Info{}, &Error{Code: classify(err), Device: Camera, Err: err}
	}

	var videos []Info
	for _, info := range infos {
		if info.Kind == VideoInput {
			videos = append(videos, info)
		}
	}
	if len(videos) == 0 {
		return Info{}, &Error{Code: ErrNotFound, Device: Camera}
	}

	idx := 0
	if c.selectedVideo != nil {
		for i, info := range videos {
			if info.ID == c.selectedVideo.ID {
				idx = (i + 1) % len(videos)
				break
			}
		}
	}

	next := videos[idx]
	c.selectedVideo = &next
	return next, nil
}

// SwitchVideoDevice stops current (if non-nil), acquires target, and
// returns the new Track. Callers are responsible for adding the returned
// Track to the peer connection and removing the stopped one; the
// Coordinator owns device selection state, not the RTCPeerConnection.
func (c *Coordinator) SwitchVideoDevice(ctx context.Context, target Info, current Track) (Track, error) {
	if current != nil {
		current.Stop()
	}
	stream, err := c.Acquire(ctx, Constraints{Video: &VideoConstraints{DeviceID: target.ID}})
	if err != nil {
		return nil, err
	}
	c.selectedVideo = &target
	return stream.Video, nil
}

// SelectedVideo returns the currently selected default video device, if any.
func (c *Coordinator) SelectedVideo() *Info { return c.selectedVideo }

// SelectedAudio returns the currently selected default audio device, if any.
func (c *Coordinator) SelectedAudio() *Info { return c.selectedAudio }

// Reset clears remembered device selections, forcing the next
// SelectDefaults to pick fresh defaults.
func (c *Coordinator) Reset() {
	c.selectedVideo = nil
	c.selectedAudio = nil
}
