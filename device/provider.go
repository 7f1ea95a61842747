/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

// Package device implements the Device Coordinator: enumeration, default
// selection, acquisition and switching of local camera/microphone input,
// against a pluggable Media Provider contract (spec.md §6).
package device

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/pion/webrtc/v4"
)

// Kind mirrors the browser MediaDeviceKind enum spec.md's Media Provider
// contract is modeled on.
type Kind string

const (
	VideoInput  Kind = "videoinput"
	AudioInput  Kind = "audioinput"
	AudioOutput Kind = "audiooutput"
)

// Info describes one enumerated device.
type Info struct {
	ID     string
	Kind   Kind
	Label  string
	Facing string // "front", "back"/"environment", or "" if unreported
}

// VideoConstraints requests a specific device and capture shape.
type VideoConstraints struct {
	DeviceID string
	Width    int
	Height   int
}

// AudioConstraints requests a specific device and processing options.
type AudioConstraints struct {
	DeviceID         string
	NoiseSuppression bool
}

// Constraints is the acquisition request passed to GetUserMedia.
type Constraints struct {
	Video *VideoConstraints
	Audio *AudioConstraints
}

// Track is the minimal surface the Coordinator needs from an acquired
// local media track — enough to implement toggleAudio/toggleVideo (§4.4)
// and device switching, without binding the Coordinator to any specific
// WebRTC track implementation.
type Track interface {
	ID() string
	Kind() Kind
	Enabled() bool
	SetEnabled(enabled bool)
	Stop()
}

// WebRTCTrack is an optional capability of Track for Providers whose
// underlying capture library already produces a webrtc.TrackLocal (as
// pion/mediadevices does), letting the orchestrator add the track to a
// peer connection directly instead of through another adaptation layer.
type WebRTCTrack interface {
	Track
	Local() webrtc.TrackLocal
}

// CameraSwitcher is an optional capability a video Track may implement on
// runtimes that expose a native in-place camera flip (the spec's mobile
// `_switchCamera`) instead of requiring a full stop/re-acquire/re-add.
// No reference Provider in this module implements it — no mobile camera
// driver exists anywhere in the example pack this module was grounded
// on — but orchestrator code probes for it via a type assertion before
// falling back to a full re-acquire, so a future mobile Provider can add
// it without any Coordinator/Orchestrator change.
type CameraSwitcher interface {
	SwitchCamera() error
}

// RawStream is everything GetUserMedia returned, before the Coordinator
// reduces it to the first enabled track per kind (spec.md §4.3 "Acquire").
type RawStream struct {
	VideoTracks []Track
	AudioTracks []Track
}

// Stream is the composite local stream the Coordinator hands to the
// orchestrator: at most one video and one audio track.
type Stream struct {
	Video Track
	Audio Track
}

// Provider is the Media Provider contract of spec.md §6: device
// enumeration and acquisition, kept pluggable so the Coordinator's
// selection logic is testable without real hardware.
type Provider interface {
	EnumerateDevices(ctx context.Context) ([]Info, error)
	GetUserMedia(ctx context.Context, constraints Constraints) (RawStream, error)
	GetDisplayMedia(ctx context.Context) (RawStream, error)
}

// ErrorCode identifies the §7 device error kinds.
type ErrorCode string

const (
	ErrNotFound   ErrorCode = "DEVICE_NOT_FOUND_ERROR"
	ErrPermission ErrorCode = "DEVICE_PERMISSION_ERROR"
)

// Tag identifies which device an Error concerns.
type Tag string

const (
	Camera     Tag = "camera"
	Microphone Tag = "microphone"
)

// Error is the per-device classification of an enumeration/acquisition
// failure, modeled on the teacher's webexsdk.APIError embed-and-Unwrap
// shape (_examples/tejzpr-webex-go-sdk/webexsdk/errors.go).
type Error struct {
	Code   ErrorCode
	Device Tag
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s (%s): %v", e.Code, e.Device, e.Err)
	}
	return fmt.Sprintf("%s (%s)", e.Code, e.Device)
}

func (e *Error) Unwrap() error { return e.Err }

// Reason is the provider-reported cause of an enumeration/acquisition
// failure, named after the DOMException values spec.md §7's
// NotFound/NotReadable/Overconstrained vs. Abort/Security/NotAllowed split
// is itself modeled on.
type Reason string

const (
	ReasonNotFound        Reason = "NotFound"
	ReasonNotReadable     Reason = "NotReadable"
	ReasonOverconstrained Reason = "Overconstrained"
	ReasonAbort           Reason = "Abort"
	ReasonSecurity        Reason = "Security"
	ReasonNotAllowed      Reason = "NotAllowed"
)

// ReasonError lets a Provider attach a precise cause to an enumeration or
// acquisition failure, so classify can map it to the exact §7 code instead
// of guessing from error text.
type ReasonError struct {
	Reason Reason
	Err    error
}

func (e *ReasonError) Error() string { return fmt.Sprintf("%s: %v", e.Reason, e.Err) }
func (e *ReasonError) Unwrap() error { return e.Err }

// classify maps a Provider's returned error to the §7 device error code.
// A *ReasonError carries an exact cause when the Provider supplies one;
// otherwise this falls back to the OS/V4L2-level failure text real capture
// drivers actually surface (EBUSY/"device or resource busy" for a camera
// already claimed by another process, ENOENT/"no such device" for one that
// vanished between enumerate and acquire, EACCES/"permission denied" for
// one the process isn't allowed to open) — an underlying condition a
// Provider that has no notion of this spec's error taxonomy still reports
// in its error's message. Unrecognized failures default to not-found
// rather than permission, since an unannotated failure is far more often a
// device-state problem than an access-control one on this module's
// reference (V4L2/malgo) Provider.
func classify(err error) ErrorCode {
	var re *ReasonError
	if errors.As(err, &re) {
		switch re.Reason {
		case ReasonNotFound, ReasonNotReadable, ReasonOverconstrained:
			return ErrNotFound
		case ReasonAbort, ReasonSecurity, ReasonNotAllowed:
			return ErrPermission
		}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "permission denied"),
		strings.Contains(msg, "access denied"),
		strings.Contains(msg, "not allowed"),
		strings.Contains(msg, "operation not permitted"):
		return ErrPermission
	default:
		return ErrNotFound
	}
}
