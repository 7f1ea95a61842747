/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package orchestrator

import "fmt"

// ErrorCode classifies a CallError per spec.md §7.
type ErrorCode string

const (
	// ErrSupport fires when the host runtime lacks addTrack/addStream
	// entirely. The call cannot proceed.
	ErrSupport ErrorCode = "SUPPORT_ERROR"
	// ErrPoorConnection fires when ICE has failed twice in one session.
	// The call stays alive; the consumer decides whether to Finish.
	ErrPoorConnection ErrorCode = "POOR_CONNECTION_ERROR"
	// ErrNoInternetAccess fires when the network probe reports offline
	// during recovery. The orchestrator retries automatically on the next
	// online transition.
	ErrNoInternetAccess ErrorCode = "NO_INTERNET_ACCESS_ERROR"
	// ErrDeviceNotFound fires when device enumeration/acquisition failed
	// with a not-found/not-readable/overconstrained cause.
	ErrDeviceNotFound ErrorCode = "DEVICE_NOT_FOUND_ERROR"
	// ErrDevicePermission fires when device acquisition failed with an
	// abort/security/not-allowed cause.
	ErrDevicePermission ErrorCode = "DEVICE_PERMISSION_ERROR"
)

// CallError is the error shape emitted via the error event, modeled on
// the teacher's webexsdk.APIError embed-and-Unwrap pattern
// (_examples/tejzpr-webex-go-sdk/webexsdk/errors.go).
type CallError struct {
	Code ErrorCode
	Msg  string
	Err  error
}

func (e *CallError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

func (e *CallError) Unwrap() error { return e.Err }

func newCallError(code ErrorCode, msg string, err error) *CallError {
	return &CallError{Code: code, Msg: msg, Err: err}
}
