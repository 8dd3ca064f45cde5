// SPDX-License-Identifier: GPL-3.0-or-later

package paconn

import "fmt"

// ErrorCode is the stable numeric error enumeration of §7.
type ErrorCode int

// Error kinds, stable across versions (§7).
const (
	ErrOK ErrorCode = iota
	ErrProtocol
	ErrTimeout
	ErrAuthKey
	ErrInternal
	ErrConnectionTerminated
	ErrConnectionRefused
	ErrInvalid
	ErrInvalidServer
	ErrNoEntity
	ErrBadState
	ErrVersion
	ErrNotSupported
	ErrForked
	ErrUnknown
	ErrMax // sentinel, §7
)

var errorNames = [...]string{
	ErrOK:                   "OK",
	ErrProtocol:             "PROTOCOL",
	ErrTimeout:              "TIMEOUT",
	ErrAuthKey:              "AUTHKEY",
	ErrInternal:             "INTERNAL",
	ErrConnectionTerminated: "CONNECTION_TERMINATED",
	ErrConnectionRefused:    "CONNECTION_REFUSED",
	ErrInvalid:              "INVALID",
	ErrInvalidServer:        "INVALIDSERVER",
	ErrNoEntity:             "NOENTITY",
	ErrBadState:             "BADSTATE",
	ErrVersion:              "VERSION",
	ErrNotSupported:         "NOTSUPPORTED",
	ErrForked:               "FORKED",
	ErrUnknown:              "UNKNOWN",
	ErrMax:                  "MAX",
}

// String implements [fmt.Stringer].
func (c ErrorCode) String() string {
	if c >= 0 && int(c) < len(errorNames) {
		return errorNames[c]
	}
	return "UNKNOWN"
}

// NormalizeServerErrorCode normalizes an inbound `ERROR` code (§7): a code
// of [ErrOK] is not a legitimate failure code from the wire and is
// normalized to [ErrProtocol]; a code at or beyond [ErrMax] is out of range
// and normalized to [ErrUnknown]. See §9 Open Questions for the rationale
// behind treating OK-as-error as a protocol violation rather than silently
// accepting it.
func NormalizeServerErrorCode(code ErrorCode) ErrorCode {
	if code == ErrOK {
		return ErrProtocol
	}
	if code >= ErrMax {
		return ErrUnknown
	}
	return code
}

// Error wraps an [ErrorCode] as a standard Go error.
type Error struct {
	Code ErrorCode
}

// NewError wraps code as an [*Error].
func NewError(code ErrorCode) *Error {
	return &Error{Code: code}
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("paconn: %s", e.Code)
}

// Is allows `errors.Is(err, paconn.NewError(paconn.ErrTimeout))`-style
// comparisons by code rather than by pointer identity.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return other.Code == e.Code
}
