// SPDX-License-Identifier: GPL-3.0-or-later

package paconn

import "time"

// simpleRequest implements the shape common to every "simple request/ack"
// operation of §4.7: valid only in READY, sends cmd with payload under a
// fresh tag, and resolves cb exactly once with either success or a
// normalized server [*Error]. Any reply command other than ERROR or the
// local timeout resolves cb with success; its payload is not inspected.
func (c *Context) simpleRequest(cmd Command, payload []byte, cb func(err error)) (*Operation, error) {
	if err := c.checkAPIEntry(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.state != StateReady {
		c.mu.Unlock()
		return nil, NewError(ErrBadState)
	}
	dispatcher, transport := c.disp, c.transport
	c.mu.Unlock()

	tag := c.nextTag()
	op := newOperation(c, tag, nil)

	dispatcher.Register(tag, c.cfg.DefaultTimeout, func(p Packet) {
		defer op.markDone()
		switch p.Command {
		case CmdTimeout:
			if cb != nil {
				cb(NewError(ErrTimeout))
			}
		case CmdError:
			r := c.cfg.Codec.NewReader(p.Payload)
			code, _ := r.GetUint32()
			if cb != nil {
				cb(NewError(NormalizeServerErrorCode(ErrorCode(code))))
			}
		default:
			if cb != nil {
				cb(nil)
			}
		}
	}, nil)

	if err := transport.SendPacket(Packet{Command: cmd, Tag: tag, Payload: payload}); err != nil {
		op.Cancel()
		return nil, NewError(ErrConnectionTerminated)
	}
	return op, nil
}

// ExitDaemon asks the server to shut down (§6.1 `exit_daemon`, §6.2
// `EXIT`).
func (c *Context) ExitDaemon(cb func(err error)) (*Operation, error) {
	return c.simpleRequest(CmdExit, nil, cb)
}

// SetDefaultSink changes the server's default sink by name (§6.1
// `set_default_sink`, §6.2 `SET_DEFAULT_SINK`).
func (c *Context) SetDefaultSink(name string, cb func(err error)) (*Operation, error) {
	w := c.cfg.Codec.NewWriter()
	w.PutString(name)
	return c.simpleRequest(CmdSetDefaultSink, w.Bytes(), cb)
}

// SetDefaultSource changes the server's default source by name (§6.1
// `set_default_source`, §6.2 `SET_DEFAULT_SOURCE`).
func (c *Context) SetDefaultSource(name string, cb func(err error)) (*Operation, error) {
	w := c.cfg.Codec.NewWriter()
	w.PutString(name)
	return c.simpleRequest(CmdSetDefaultSource, w.Bytes(), cb)
}

// SetName updates the client's `application.name` property, both locally
// and on the server, via a single-key [PropListUpdate] (§6.1
// `pa_context_set_name`, folded into proplist updates since protocol
// version 13 per §4.6).
func (c *Context) SetName(name string, cb func(err error)) (*Operation, error) {
	pl := NewPropList()
	pl.Set("application.name", name)
	return c.PropListUpdate(PropListReplace, pl, cb)
}

// PropListUpdate merges pl into the client's property list according to
// mode, on both the local snapshot and the server (§6.1
// `proplist_update`, §6.2 `UPDATE_CLIENT_PROPLIST`).
func (c *Context) PropListUpdate(mode PropListUpdateMode, pl PropList, cb func(err error)) (*Operation, error) {
	w := c.cfg.Codec.NewWriter()
	w.PutUint8(uint8(mode))
	w.PutPropList(pl)

	op, err := c.simpleRequest(CmdUpdateClientProplist, w.Bytes(), cb)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.propList.Merge(mode, pl)
	c.mu.Unlock()
	return op, nil
}

// PropListRemove removes keys from the client's property list, both
// locally and on the server (§6.1 `proplist_remove`, §6.2
// `REMOVE_CLIENT_PROPLIST`).
func (c *Context) PropListRemove(keys []string, cb func(err error)) (*Operation, error) {
	w := c.cfg.Codec.NewWriter()
	w.PutUint32(uint32(len(keys)))
	for _, k := range keys {
		w.PutString(k)
	}

	op, err := c.simpleRequest(CmdRemoveClientProplist, w.Bytes(), cb)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	for _, k := range keys {
		c.propList.Unset(k)
	}
	c.mu.Unlock()
	return op, nil
}

// Drain completes cb once every enqueued byte has been flushed and every
// outstanding tag has resolved (§4.7 "drain()"): valid only in READY and
// only when [Context.IsPending] is true. If nothing is pending at call
// time, Drain is refused with [ErrBadState] (§8 "Drain soundness").
func (c *Context) Drain(cb func()) (*Operation, error) {
	if err := c.checkAPIEntry(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.state != StateReady {
		c.mu.Unlock()
		return nil, NewError(ErrBadState)
	}
	transport, dispatcher := c.transport, c.disp
	c.mu.Unlock()

	if !(transport.Pending() || dispatcher.Pending()) {
		return nil, NewError(ErrBadState)
	}

	// Drain never registers a dispatcher tag of its own (it rides the
	// existing pending-tag/pending-bytes counters), but still claims a
	// tag so that cancelling it can never collide with a real request.
	op := newOperation(c, c.nextTag(), nil)
	transport.SetDrainCallback(func() {
		dispatcher.SetDrainCallback(func() {
			if cb != nil {
				cb()
			}
			op.markDone()
		})
	})
	return op, nil
}

// RTTimeNew schedules a one-shot callback on loop, used by higher-level
// stream timing code built on this package (§6.1 `rttime_new`). loop is
// the caller-supplied [MainLoop]; this package never owns one itself.
func (c *Context) RTTimeNew(loop MainLoop, at time.Time, cb func()) TimeEvent {
	return loop.NewTimeEvent(at, cb)
}

// RTTimeRestart reschedules event (§6.1 `rttime_restart`). It is a thin
// wrapper so callers can treat rescheduling as part of the same API
// surface as [Context.RTTimeNew].
func RTTimeRestart(event TimeEvent, at time.Time) {
	event.Restart(at)
}
