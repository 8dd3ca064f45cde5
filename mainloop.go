// SPDX-License-Identifier: GPL-3.0-or-later

package paconn

import "time"

// NoDeadline is the sentinel duration meaning "no deadline" (§6.1
// `rttime_new`, `rttime_restart`). [MainLoop.NewTimeEvent] and
// [TimeEvent.Restart] take a [time.Time] rather than a duration; there
// the zero [time.Time] plays this role.
const NoDeadline time.Duration = -1

// TimeEvent is a single scheduled callback registered on a [MainLoop]
// (§6.1 `rttime_new`/`rttime_restart`).
type TimeEvent interface {
	// Restart reschedules the event to fire `at`, or disarms it if at is
	// the zero [time.Time].
	Restart(at time.Time)

	// Free cancels the event and releases any resources held for it.
	Free()
}

// MainLoop is the external "main loop API (time/IO event source
// interface)" collaborator named out of scope in §1. The core only needs
// to schedule one-shot/rearmable deadlines through it; everything else
// (socket readiness, dbus fd integration) is the caller's event loop
// responsibility per §5 "Scheduling model".
type MainLoop interface {
	// NewTimeEvent schedules cb to run once at the given time. A zero
	// [time.Time] creates a disarmed event that must be armed later via
	// [TimeEvent.Restart].
	NewTimeEvent(at time.Time, cb func()) TimeEvent
}
