/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

// Package sdp parses and rewrites locally generated SDP offers/answers:
// enforcing a bandwidth ceiling (b=AS/b=TIAS) on every media section, and
// optionally re-serializing the whole document to drop fields a peer might
// reject.
package sdp

import (
	"log"
	"strconv"
	"strings"

	pionsdp "github.com/pion/sdp/v3"
)

// Logger is satisfied by *log.Logger; parse failures are reported through
// it rather than aborting negotiation.
type Logger interface {
	Printf(format string, v ...any)
}

// Rewriter enforces the configured bandwidth ceiling on locally generated
// SDP, optionally performing a full structured re-serialization.
type Rewriter struct {
	// Transform mirrors the allowSDPTransform option: when true, the SDP is
	// parsed into github.com/pion/sdp/v3's structured form and
	// re-marshaled in full, dropping any field the parser doesn't
	// recognize. When false, only the bandwidth lines are touched and the
	// rest of the document is preserved byte-for-byte.
	//
	// Per spec.md §9's open question, this is "option present at all" in
	// spirit — callers decide presence by constructing a Rewriter with
	// Transform: true at all, not by checking truthiness of some outer
	// config value. Do not silently reinterpret this as "truthy".
	Transform bool
	Logger    Logger
}

// New constructs a Rewriter. A nil logger falls back to log.Default().
func New(transform bool, logger Logger) *Rewriter {
	if logger == nil {
		logger = log.Default()
	}
	return &Rewriter{Transform: transform, Logger: logger}
}

// Rewrite enforces bw on raw and, if Transform is enabled, re-serializes
// the whole document through a structured parse. Parse failure never
// aborts negotiation: the original SDP is returned unchanged and the
// failure is logged.
func (r *Rewriter) Rewrite(raw string, bw Bandwidth) string {
	parsed := &pionsdp.SessionDescription{}
	if err := parsed.Unmarshal([]byte(raw)); err != nil {
		r.Logger.Printf("sdp: parse failed, using original SDP as-is: %v", err)
		return raw
	}

	if !r.Transform {
		// Touch only the bandwidth lines; leave everything else exactly as
		// the peer connection produced it.
		return rewriteBandwidthLinesText(raw, bw)
	}

	applyBandwidth(parsed, bw)
	out, err := parsed.Marshal()
	if err != nil {
		r.Logger.Printf("sdp: marshal failed, using original SDP as-is: %v", err)
		return raw
	}
	return string(out)
}

// applyBandwidth mutates every media description's Bandwidth slice in
// place. Unmarshaling then Marshaling positions b= lines immediately after
// the corresponding c= line per RFC 4566 field ordering, satisfying the
// "inserted immediately after c=IN" requirement without manual line
// splicing.
func applyBandwidth(sd *pionsdp.SessionDescription, bw Bandwidth) {
	for _, md := range sd.MediaDescriptions {
		md.Bandwidth = stripModifiers(md.Bandwidth)
		if bw.IsUnlimited() {
			continue
		}
		md.Bandwidth = append(md.Bandwidth,
			pionsdp.Bandwidth{Type: modifierAS, Bandwidth: uint64(bw.KBps())},
			pionsdp.Bandwidth{Type: modifierTIAS, Bandwidth: uint64(bw.BPS())},
		)
	}
}

func stripModifiers(bws []pionsdp.Bandwidth) []pionsdp.Bandwidth {
	kept := bws[:0:0]
	for _, b := range bws {
		if b.Type == modifierAS || b.Type == modifierTIAS {
			continue
		}
		kept = append(kept, b)
	}
	return kept
}

// rewriteBandwidthLinesText performs the same bandwidth enforcement at the
// text level, preserving every other line byte-for-byte. Grounded on the
// teacher's own line-oriented SDP surgery in calling/media.go
// (ModifySdpForMobius / fixIncomingSdp).
func rewriteBandwidthLinesText(raw string, bw Bandwidth) string {
	lines := strings.Split(raw, "\r\n")
	var out []string

	inSection := false
	for i := 0; i < len(lines); i++ {
		line := lines[i]

		if strings.HasPrefix(line, "m=") {
			inSection = true
			out = append(out, line)
			continue
		}
		if !inSection {
			out = append(out, line)
			continue
		}
		if strings.HasPrefix(line, "b=AS:") || strings.HasPrefix(line, "b=TIAS:") {
			continue // dropped; re-inserted right after c= below, or omitted if unlimited
		}
		out = append(out, line)
		if strings.HasPrefix(line, "c=IN ") {
			if !bw.IsUnlimited() {
				out = append(out,
					"b="+modifierAS+":"+strconv.Itoa(bw.KBps()),
					"b="+modifierTIAS+":"+strconv.Itoa(bw.BPS()),
				)
			}
		}
	}

	return strings.Join(out, "\r\n")
}
