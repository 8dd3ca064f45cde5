//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: https://github.com/rbmk-project/rbmk/blob/v0.17.0/pkg/common/errclass/errclass.go
//

// Package classify maps transport-level errors to short, stable labels
// suitable for structured logging and metrics, the same way the rbmk
// project's errclass package does. Plug it into [paconn.Config.ErrClassifier]
// via paconn.ErrClassifierFunc(classify.New) to replace the library's
// no-op default.
package classify

import (
	"context"
	"errors"
	"io"
	"net"
)

// New classifies err into a short label, or "" for a nil error. Unknown
// errors are classified as "EUNKNOWN" rather than left unlabeled, so a
// caller can distinguish "no error" from "an error we don't recognize".
func New(err error) string {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, context.Canceled):
		return "ECANCELED"
	case errors.Is(err, context.DeadlineExceeded):
		return "ETIMEDOUT"
	case errors.Is(err, io.EOF):
		return "EOF"
	case errors.Is(err, io.ErrUnexpectedEOF):
		return "EUNEXPECTEDEOF"

	case errors.Is(err, errEADDRNOTAVAIL):
		return "EADDRNOTAVAIL"
	case errors.Is(err, errEADDRINUSE):
		return "EADDRINUSE"
	case errors.Is(err, errECONNABORTED):
		return "ECONNABORTED"
	case errors.Is(err, errECONNREFUSED):
		return "ECONNREFUSED"
	case errors.Is(err, errECONNRESET):
		return "ECONNRESET"
	case errors.Is(err, errEHOSTUNREACH):
		return "EHOSTUNREACH"
	case errors.Is(err, errEINVAL):
		return "EINVAL"
	case errors.Is(err, errEINTR):
		return "EINTR"
	case errors.Is(err, errENETDOWN):
		return "ENETDOWN"
	case errors.Is(err, errENETUNREACH):
		return "ENETUNREACH"
	case errors.Is(err, errENOBUFS):
		return "ENOBUFS"
	case errors.Is(err, errENOENT):
		return "ENOENT"
	case errors.Is(err, errENOTCONN):
		return "ENOTCONN"
	case errors.Is(err, errEPIPE):
		return "EPIPE"
	case errors.Is(err, errEPROTONOSUPPORT):
		return "EPROTONOSUPPORT"
	case errors.Is(err, errETIMEDOUT):
		return "ETIMEDOUT"
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "ETIMEDOUT"
	}

	return "EUNKNOWN"
}
