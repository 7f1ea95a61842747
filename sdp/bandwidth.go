/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package sdp

// Bandwidth is the configured maximum bitrate for locally generated offers
// and answers, expressed in kbps. The zero value is Unlimited.
type Bandwidth struct {
	limited bool
	kbps    int
}

// Unlimited reports no bandwidth ceiling: all existing b=AS/b=TIAS lines
// are stripped from locally generated SDP instead of being (re)written.
func Unlimited() Bandwidth {
	return Bandwidth{}
}

// Limit returns a Bandwidth that enforces the given kbps ceiling via
// b=AS:<kbps> and b=TIAS:<kbps*1000> lines.
func Limit(kbps int) Bandwidth {
	return Bandwidth{limited: true, kbps: kbps}
}

// IsUnlimited reports whether b represents no bandwidth ceiling.
func (b Bandwidth) IsUnlimited() bool {
	return !b.limited
}

// KBps returns the configured ceiling in kbps. Only meaningful when
// !IsUnlimited().
func (b Bandwidth) KBps() int {
	return b.kbps
}

// BPS returns the configured ceiling in bits per second, the unit TIAS
// uses. Only meaningful when !IsUnlimited().
func (b Bandwidth) BPS() int {
	return b.kbps * 1000
}

const (
	modifierAS   = "AS"
	modifierTIAS = "TIAS"
)
