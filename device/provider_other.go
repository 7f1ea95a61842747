//go:build !linux

/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package device

import (
	"context"
	"fmt"
)

// noHardwareProvider reports no devices and refuses acquisition. Camera/mic
// capture via pion/mediadevices requires platform-specific drivers (V4L2 on
// Linux); on other platforms a host application supplies its own Provider
// (e.g. backed by a browser's getUserMedia over a WebView bridge).
type noHardwareProvider struct{}

// NewHardwareProvider returns a Provider with no usable hardware backing on
// this platform. Callers needing real capture must supply their own
// Provider implementation.
func NewHardwareProvider() (Provider, error) {
	return &noHardwareProvider{}, nil
}

func (noHardwareProvider) EnumerateDevices(ctx context.Context) ([]Info, error) {
	return nil, nil
}

func (noHardwareProvider) GetUserMedia(ctx context.Context, constraints Constraints) (RawStream, error) {
	return RawStream{}, &Error{Code: ErrNotFound, Device: Camera, Err: fmt.Errorf("no media capture support on this platform")}
}

func (noHardwareProvider) GetDisplayMedia(ctx context.Context) (RawStream, error) {
	return RawStream{}, &Error{Code: ErrNotFound, Device: Camera, Err: fmt.Errorf("no display capture support on this platform")}
}
