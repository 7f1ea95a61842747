//go:build linux

/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package device

import (
	"context"
	"errors"
	"fmt"
	"os"
	"syscall"

	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/opus"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	_ "github.com/pion/mediadevices/pkg/driver/camera"
	_ "github.com/pion/mediadevices/pkg/driver/microphone"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/pion/webrtc/v4"
)

// reasonFromOpenError turns the V4L2/ALSA device-open failure pion/
// mediadevices surfaces (an *os.PathError wrapping a syscall errno, for a
// camera or mic node under /dev) into the precise Reason the §7
// classification needs, rather than leaving it to text matching.
func reasonFromOpenError(err error) Reason {
	switch {
	case errors.Is(err, os.ErrPermission):
		return ReasonNotAllowed
	case errors.Is(err, os.ErrNotExist):
		return ReasonNotFound
	case errors.Is(err, syscall.EBUSY):
		return ReasonNotReadable
	default:
		return ReasonNotFound
	}
}

// mediaTrack adapts a pion/mediadevices track to the Track interface.
type mediaTrack struct {
	track   mediadevices.Track
	kind    Kind
	enabled bool
}

func (t *mediaTrack) ID() string   { return t.track.ID() }
func (t *mediaTrack) Kind() Kind   { return t.kind }
func (t *mediaTrack) Enabled() bool { return t.enabled }

func (t *mediaTrack) SetEnabled(enabled bool) {
	t.enabled = enabled
	if enabled {
		_ = t.track.Unmute()
	} else {
		_ = t.track.Mute()
	}
}

func (t *mediaTrack) Stop() { _ = t.track.Close() }

// Local satisfies device.WebRTCTrack: a pion/mediadevices Track already
// implements webrtc.TrackLocal, so it can be added to a PeerConnection
// without further adaptation.
func (t *mediaTrack) Local() webrtc.TrackLocal {
	if tl, ok := t.track.(webrtc.TrackLocal); ok {
		return tl
	}
	return nil
}

// mediaDevicesProvider implements Provider on top of pion/mediadevices,
// which drives V4L2 cameras and malgo microphones on Linux.
type mediaDevicesProvider struct {
	codecSelector *mediadevices.CodecSelector
}

// NewHardwareProvider constructs the reference Linux Provider. Video is
// encoded as VP8, audio as Opus, matching the codec choice the call pack's
// ExternalPC initializer uses.
func NewHardwareProvider() (Provider, error) {
	vpxParams, err := vpx.NewVP8Params()
	if err != nil {
		return nil, fmt.Errorf("device: vp8 params: %w", err)
	}
	vpxParams.BitRate = 1_500_000

	opusParams, err := opus.NewParams()
	if err != nil {
		return nil, fmt.Errorf("device: opus params: %w", err)
	}

	return &mediaDevicesProvider{
		codecSelector: mediadevices.NewCodecSelector(
			mediadevices.WithVideoEncoders(&vpxParams),
			mediadevices.WithAudioEncoders(&opusParams),
		),
	}, nil
}

func (p *mediaDevicesProvider) EnumerateDevices(ctx context.Context) ([]Info, error) {
	var infos []Info
	for _, d := range mediadevices.EnumerateDevices() {
		kind := AudioInput
		switch d.Kind {
		case mediadevices.VideoInput:
			kind = VideoInput
		case mediadevices.AudioInput:
			kind = AudioInput
		}
		infos = append(infos, Info{ID: d.DeviceID, Kind: kind, Label: d.Label})
	}
	return infos, nil
}

func (p *mediaDevicesProvider) GetUserMedia(ctx context.Context, constraints Constraints) (RawStream, error) {
	opts := mediadevices.MediaStreamConstraints{
		Codec: p.codecSelector,
	}
	if constraints.Video != nil {
		vc := constraints.Video
		opts.Video = func(c *mediadevices.MediaTrackConstraints) {
			if vc.DeviceID != "" {
				c.DeviceID = prop.String(vc.DeviceID)
			}
			if vc.Width > 0 {
				c.Width = prop.Int(vc.Width)
			}
			if vc.Height > 0 {
				c.Height = prop.Int(vc.Height)
			}
		}
	}
	if constraints.Audio != nil {
		ac := constraints.Audio
		opts.Audio = func(c *mediadevices.MediaTrackConstraints) {
			if ac.DeviceID != "" {
				c.DeviceID = prop.String(ac.DeviceID)
			}
		}
	}

	stream, err := mediadevices.GetUserMedia(opts)
	if err != nil {
		return RawStream{}, &ReasonError{Reason: reasonFromOpenError(err), Err: err}
	}

	var raw RawStream
	for _, t := range stream.GetVideoTracks() {
		raw.VideoTracks = append(raw.VideoTracks, &mediaTrack{track: t, kind: VideoInput, enabled: true})
	}
	for _, t := range stream.GetAudioTracks() {
		raw.AudioTracks = append(raw.AudioTracks, &mediaTrack{track: t, kind: AudioInput, enabled: true})
	}
	return raw, nil
}

func (p *mediaDevicesProvider) GetDisplayMedia(ctx context.Context) (RawStream, error) {
	// Screen capture has no V4L2/malgo analogue; pion/mediadevices exposes no
	// display-capture driver on Linux, so this always returns ErrNotFound.
	// The orchestrator does not call GetDisplayMedia.
	return RawStream{}, &Error{Code: ErrNotFound, Device: Camera, Err: fmt.Errorf("display capture unsupported on this platform")}
}
