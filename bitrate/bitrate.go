/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

// Package bitrate samples a peer connection's RTP statistics and converts
// them into per-direction, per-media bitrates, in kbps.
package bitrate

import (
	"math"
	"sync"

	"github.com/pion/webrtc/v4"
)

// channel identifies one of the four tracked RTP streams.
type channel int

const (
	inboundVideo channel = iota
	outboundVideo
	inboundAudio
	outboundAudio
	invalidChannel
)

// Direction holds a media kind's input (received) and output (sent)
// bitrate, in kbps.
type Direction struct {
	Input  int
	Output int
}

// Rates is the fully populated result of a single Find call. A channel
// with no corresponding stats entry this round, or with no prior sample to
// diff against, contributes 0 rather than being omitted.
type Rates struct {
	Video Direction
	Audio Direction
}

type sample struct {
	bytes       uint64
	timestampMs float64
}

// Sampler retains the most recent sample per channel across calls to Find.
// A Sampler is not safe for concurrent Find calls against overlapping
// state transitions from two different goroutines; the orchestrator owns
// one Sampler per call and only ever calls Find from its single dispatch
// goroutine or a short-lived timer goroutine that reports back onto it.
type Sampler struct {
	mu   sync.Mutex
	prev map[channel]sample
}

// New creates a Sampler with no retained history.
func New() *Sampler {
	return &Sampler{prev: make(map[channel]sample, 4)}
}

// Find queries pc's current statistics and returns the bitrate delta since
// the previous call to Find on this Sampler. The very first call against a
// fresh Sampler always returns all zeros, since there is no prior sample.
func (s *Sampler) Find(pc *webrtc.PeerConnection) Rates {
	return s.sampleFrom(collect(pc.GetStats()))
}

// sampleFrom does the actual diffing against retained state; split out from
// Find so the diffing logic can be exercised without a real PeerConnection.
func (s *Sampler) sampleFrom(cur map[channel]sample) Rates {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rates Rates
	rates.Video.Input = s.diff(inboundVideo, cur)
	rates.Video.Output = s.diff(outboundVideo, cur)
	rates.Audio.Input = s.diff(inboundAudio, cur)
	rates.Audio.Output = s.diff(outboundAudio, cur)
	return rates
}

func (s *Sampler) diff(ch channel, cur map[channel]sample) int {
	next, ok := cur[ch]
	if !ok {
		return 0
	}
	prev, hadPrev := s.prev[ch]
	s.prev[ch] = next
	if !hadPrev {
		return 0
	}

	deltaBytes := int64(next.bytes) - int64(prev.bytes)
	deltaMs := next.timestampMs - prev.timestampMs
	if deltaBytes <= 0 || deltaMs <= 0 {
		return 0
	}
	return int(math.Floor(8 * float64(deltaBytes) / deltaMs))
}

func collect(report webrtc.StatsReport) map[channel]sample {
	cur := make(map[channel]sample, 4)
	for _, raw := range report {
		switch stat := raw.(type) {
		case webrtc.InboundRTPStreamStats:
			if ch := channelFor(stat.Kind, false); ch != invalidChannel {
				cur[ch] = sample{bytes: stat.BytesReceived, timestampMs: float64(stat.Timestamp)}
			}
		case webrtc.OutboundRTPStreamStats:
			if ch := channelFor(stat.Kind, true); ch != invalidChannel {
				cur[ch] = sample{bytes: stat.BytesSent, timestampMs: float64(stat.Timestamp)}
			}
		}
	}
	return cur
}

func channelFor(kind string, outbound bool) channel {
	switch {
	case kind == "video" && !outbound:
		return inboundVideo
	case kind == "video" && outbound:
		return outboundVideo
	case kind == "audio" && !outbound:
		return inboundAudio
	case kind == "audio" && outbound:
		return outboundAudio
	default:
		return invalidChannel
	}
}
