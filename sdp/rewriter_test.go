/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package sdp

import (
	"log"
	"strings"
	"testing"
)

const sampleSDP = "v=0\r\n" +
	"o=- 46117318 2 IN IP4 127.0.0.1\r\n" +
	"s=-\r\n" +
	"t=0 0\r\n" +
	"a=group:BUNDLE 0 1\r\n" +
	"m=audio 9 UDP/TLS/RTP/SAVPF 111\r\n" +
	"c=IN IP4 0.0.0.0\r\n" +
	"a=mid:0\r\n" +
	"m=video 9 UDP/TLS/RTP/SAVPF 96\r\n" +
	"c=IN IP4 0.0.0.0\r\n" +
	"a=mid:1\r\n"

func TestRewriterIdentityWhenTransformDisabledAndUnlimited(t *testing.T) {
	r := New(false, log.Default())
	out := r.Rewrite(sampleSDP, Unlimited())
	if out != sampleSDP {
		t.Errorf("expected identity rewrite, got:\n%s", out)
	}
}

func TestRewriterInsertsBandwidthAfterConnectionLine(t *testing.T) {
	r := New(false, log.Default())
	out := r.Rewrite(sampleSDP, Limit(600))

	lines := strings.Split(out, "\r\n")
	for i, line := range lines {
		if line == "c=IN IP4 0.0.0.0" {
			if lines[i+1] != "b=AS:600" || lines[i+2] != "b=TIAS:600000" {
				t.Fatalf("expected b=AS/b=TIAS immediately after c= line, got %q, %q", lines[i+1], lines[i+2])
			}
		}
	}

	if n := strings.Count(out, "b=AS:600"); n != 2 {
		t.Errorf("expected exactly one b=AS line per media section (2 total), got %d", n)
	}
	if n := strings.Count(out, "b=TIAS:600000"); n != 2 {
		t.Errorf("expected exactly one b=TIAS line per media section (2 total), got %d", n)
	}
}

func TestRewriterRewritesExistingBandwidthLine(t *testing.T) {
	withExisting := strings.Replace(sampleSDP,
		"c=IN IP4 0.0.0.0\r\na=mid:0",
		"c=IN IP4 0.0.0.0\r\nb=AS:200\r\na=mid:0", 1)

	r := New(false, log.Default())
	out := r.Rewrite(withExisting, Limit(600))

	if strings.Contains(out, "b=AS:200") {
		t.Error("expected stale b=AS:200 to be replaced")
	}
	if !strings.Contains(out, "b=AS:600") {
		t.Error("expected new b=AS:600 to be present")
	}
}

func TestRewriterUnlimitedStripsExistingLines(t *testing.T) {
	withExisting := strings.Replace(sampleSDP,
		"c=IN IP4 0.0.0.0\r\na=mid:0",
		"c=IN IP4 0.0.0.0\r\nb=AS:200\r\nb=TIAS:200000\r\na=mid:0", 1)

	r := New(false, log.Default())
	out := r.Rewrite(withExisting, Unlimited())

	if strings.Contains(out, "b=AS:") || strings.Contains(out, "b=TIAS:") {
		t.Errorf("expected all bandwidth lines stripped when unlimited, got:\n%s", out)
	}
}

func TestRewriterParseFailureFallsBackToOriginal(t *testing.T) {
	var logged string
	r := New(true, testLogger{&logged})

	garbage := "not an sdp document at all"
	out := r.Rewrite(garbage, Limit(600))

	if out != garbage {
		t.Errorf("expected original SDP returned unchanged on parse failure, got %q", out)
	}
	if logged == "" {
		t.Error("expected parse failure to be logged")
	}
}

func TestRewriterTransformModeEnforcesBandwidth(t *testing.T) {
	r := New(true, log.Default())
	out := r.Rewrite(sampleSDP, Limit(600))

	if !strings.Contains(out, "b=AS:600") || !strings.Contains(out, "b=TIAS:600000") {
		t.Errorf("expected bandwidth lines after structured rewrite, got:\n%s", out)
	}
}

type testLogger struct{ out *string }

func (l testLogger) Printf(format string, v ...any) {
	*l.out = format
}
