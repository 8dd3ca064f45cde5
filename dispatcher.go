// SPDX-License-Identifier: GPL-3.0-or-later

package paconn

import (
	"log/slog"
	"sync"
	"time"
)

// ReplyContinuation is the continuation registered for a single
// outstanding tag (§4.5 "Registration"). It is invoked exactly once, with
// the inbound packet on REPLY/ERROR, or a synthesized [CmdTimeout] packet
// on timeout.
type ReplyContinuation func(p Packet)

// CommandHandler handles an inbound packet routed by command id through
// the dispatcher's fixed command table (§4.5, §9 "Dynamic dispatch").
type CommandHandler func(p Packet, creds *PeerCredentials)

// Dispatcher is the §4.5 "Tag dispatcher": it routes inbound packets
// either by tag (REPLY/ERROR/TIMEOUT) to a registered [ReplyContinuation],
// or by command id to a registered [CommandHandler]. It owns per-tag
// timeout scheduling and drain synchronization independent of the
// [Transport] layer below it.
type Dispatcher struct {
	mu sync.Mutex

	logger  SLogger
	timeNow func() time.Time

	commands map[Command]CommandHandler
	pending  map[uint32]*dispatcherEntry

	drainCB func()
}

type dispatcherEntry struct {
	cb       ReplyContinuation
	freeHook func()
	timer    *time.Timer
}

// NewDispatcher returns a new, empty [*Dispatcher].
func NewDispatcher(logger SLogger, timeNow func() time.Time) *Dispatcher {
	if logger == nil {
		logger = DefaultSLogger()
	}
	if timeNow == nil {
		timeNow = time.Now
	}
	return &Dispatcher{
		logger:   logger,
		timeNow:  timeNow,
		commands: make(map[Command]CommandHandler),
		pending:  make(map[uint32]*dispatcherEntry),
	}
}

// SetCommandHandler installs the handler for an inbound command routed by
// the command table (§4.5). Passing a nil handler removes any existing
// registration.
func (d *Dispatcher) SetCommandHandler(cmd Command, handler CommandHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if handler == nil {
		delete(d.commands, cmd)
		return
	}
	d.commands[cmd] = handler
}

// Register records a pending reply for tag (§4.5 "Registration"). If
// timeout is positive, a synthesized [CmdTimeout] packet fires cb after
// timeout elapses unless the tag is resolved or cancelled first.
// freeHook, if non-nil, runs exactly once when the entry leaves the table
// by any path.
func (d *Dispatcher) Register(tag uint32, timeout time.Duration, cb ReplyContinuation, freeHook func()) {
	d.mu.Lock()
	entry := &dispatcherEntry{cb: cb, freeHook: freeHook}
	d.pending[tag] = entry
	if timeout > 0 {
		entry.timer = time.AfterFunc(timeout, func() { d.fireTimeout(tag) })
	}
	d.mu.Unlock()
}

// Cancel removes tag's pending entry, if any, running its free-hook but
// never invoking its continuation (§5 "Cancellation").
func (d *Dispatcher) Cancel(tag uint32) {
	d.mu.Lock()
	entry, ok := d.pending[tag]
	if ok {
		delete(d.pending, tag)
	}
	d.mu.Unlock()
	if !ok {
		return
	}
	if entry.timer != nil {
		entry.timer.Stop()
	}
	if entry.freeHook != nil {
		entry.freeHook()
	}
	d.maybeFireDrain()
}

func (d *Dispatcher) fireTimeout(tag uint32) {
	d.mu.Lock()
	entry, ok := d.pending[tag]
	if ok {
		delete(d.pending, tag)
	}
	d.mu.Unlock()
	if !ok {
		return
	}
	entry.cb(Packet{Command: CmdTimeout, Tag: tag})
	if entry.freeHook != nil {
		entry.freeHook()
	}
	d.maybeFireDrain()
}

// dispatchProtocolViolation is returned by [Dispatcher.Dispatch] when an
// inbound packet cannot be routed (§4.5 "Unknown command").
type dispatchProtocolViolation struct{ reason string }

func (e *dispatchProtocolViolation) Error() string {
	return "paconn: dispatcher: protocol violation: " + e.reason
}

// Dispatch routes an inbound packet (§4.5). REPLY/ERROR/TIMEOUT commands
// are routed by tag; everything else by command id. It returns a non-nil
// error exactly when the inbound packet constitutes a protocol violation
// (unregistered tag, or a command with no registered handler).
func (d *Dispatcher) Dispatch(p Packet, creds *PeerCredentials) error {
	switch p.Command {
	case CmdReply, CmdError, CmdTimeout:
		d.mu.Lock()
		entry, ok := d.pending[p.Tag]
		if ok {
			delete(d.pending, p.Tag)
		}
		d.mu.Unlock()
		if !ok {
			return &dispatchProtocolViolation{reason: "reply for unknown tag"}
		}
		if entry.timer != nil {
			entry.timer.Stop()
		}
		entry.cb(p)
		if entry.freeHook != nil {
			entry.freeHook()
		}
		d.maybeFireDrain()
		return nil
	default:
		d.mu.Lock()
		handler, ok := d.commands[p.Command]
		d.mu.Unlock()
		if !ok {
			d.logger.Debug("dispatchUnknownCommand", slog.Any("command", p.Command))
			return &dispatchProtocolViolation{reason: "unknown command"}
		}
		handler(p, creds)
		return nil
	}
}

// Pending reports whether any tag is outstanding (§4.5 "Drain").
func (d *Dispatcher) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending) > 0
}

// SetDrainCallback arms a one-shot callback firing when [Pending]
// transitions to false, then self-clearing (§4.5 "Drain").
func (d *Dispatcher) SetDrainCallback(cb func()) {
	d.mu.Lock()
	empty := len(d.pending) == 0
	if empty {
		d.mu.Unlock()
		cb()
		return
	}
	d.drainCB = cb
	d.mu.Unlock()
}

func (d *Dispatcher) maybeFireDrain() {
	d.mu.Lock()
	if len(d.pending) > 0 || d.drainCB == nil {
		d.mu.Unlock()
		return
	}
	cb := d.drainCB
	d.drainCB = nil
	d.mu.Unlock()
	cb()
}

// CancelAll cancels every pending tag, running each entry's free-hook but
// never its continuation, used when a [Context] tears down (§3 "On entry
// to FAILED or TERMINATED ... all operations are cancelled").
func (d *Dispatcher) CancelAll() {
	d.mu.Lock()
	entries := d.pending
	d.pending = make(map[uint32]*dispatcherEntry)
	d.mu.Unlock()
	for _, entry := range entries {
		if entry.timer != nil {
			entry.timer.Stop()
		}
		if entry.freeHook != nil {
			entry.freeHook()
		}
	}
}
