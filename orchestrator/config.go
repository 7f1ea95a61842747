/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package orchestrator

import (
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/relaycall/callorc/device"
	"github.com/relaycall/callorc/network"
	"github.com/relaycall/callorc/sdp"
	"github.com/relaycall/callorc/signaling"
)

// Logger is satisfied by *log.Logger.
type Logger interface {
	Printf(format string, v ...any)
}

// Config is the orchestrator's dynamic configuration object (spec.md §9).
type Config struct {
	// LogLevel mirrors the source's 0..5 scale; this implementation only
	// distinguishes "log" (any value) from a nil Logger, but the field is
	// kept for configuration-surface parity.
	LogLevel int

	// AllowSDPTransform: the source checks whether this option was set AT
	// ALL, not whether it is true — so a caller-supplied *bool pointing at
	// false still enables the structured-transform path. That is
	// preserved here deliberately (spec.md §9 open question 1: "do not
	// silently fix"). A nil pointer means "not configured" (transform
	// disabled); any non-nil pointer, regardless of the bool it points to,
	// enables it.
	AllowSDPTransform *bool

	// AllowIceStalledChecking enables the 3-second ICE-gathering-complete
	// stall check (spec.md §4.4).
	AllowIceStalledChecking bool

	// AllowBitrateChecking gates the bitrate-driven disconnection
	// strategy. NOTE: runDisconnectedStrategy's guard is specified as
	// "runs only when this is false" (spec.md §9 open question 2) — that
	// inversion is preserved; see reconnect.go.
	AllowBitrateChecking bool

	// Bandwidth is the configured SDP bandwidth cap; defaults to 600 kbps.
	Bandwidth sdp.Bandwidth

	// RTCConfiguration passes through to pion's PeerConnection.
	RTCConfiguration webrtc.Configuration

	Signaling signaling.Adapter
	Network   *network.Prober
	Devices   device.Provider
	Logger    Logger

	// IceFailedRestartTimeout is carried in the configuration with a 10s
	// default. No recovery path reads it: an ICE restart is not bounded by
	// a timeout.
	IceFailedRestartTimeout time.Duration
}

// sdpTransformEnabled reports whether the ambiguous-by-design presence
// check (see AllowSDPTransform's doc) is satisfied.
func (c *Config) sdpTransformEnabled() bool {
	return c.AllowSDPTransform != nil
}

// DefaultConfig returns the documented defaults (spec.md §9): logLevel
// WARN-equivalent, SDP transform unset, stalled-checking and
// bitrate-checking off, 600kbps bandwidth cap, a single default STUN
// server (the same default the teacher's MediaEngine uses, since a Go
// peer behind NAT needs an explicit public candidate the way a browser's
// built-in ICE stack does not).
func DefaultConfig() *Config {
	return &Config{
		LogLevel:  2,
		Bandwidth: sdp.Limit(600),
		RTCConfiguration: webrtc.Configuration{
			ICEServers: []webrtc.ICEServer{
				{URLs: []string{"stun:stun.l.google.com:19302"}},
			},
		},
		IceFailedRestartTimeout: 10 * time.Second,
	}
}
