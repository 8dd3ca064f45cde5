// SPDX-License-Identifier: GPL-3.0-or-later

package paconn

import "sync"

// Operation is a per-request continuation (§3 "Operation", §4.7): created
// at API entry, referenced by the dispatcher's reply registration, and
// unreferenced when the reply arrives, the context tears down, or the
// caller cancels it explicitly. Done is idempotent.
type Operation struct {
	mu   sync.Mutex
	ctx  *Context
	tag  uint32
	done bool

	// onDone runs exactly once, however the operation ends: success,
	// server error, cancellation, or context teardown.
	onDone func()
}

// newOperation creates an [*Operation] linked into ctx's live-operation
// list (§3 "an ordered list of live operations").
func newOperation(ctx *Context, tag uint32, onDone func()) *Operation {
	op := &Operation{ctx: ctx, tag: tag, onDone: onDone}
	ctx.addOperation(op)
	return op
}

// Cancel cancels the operation: its dispatcher registration is removed
// without invoking the user callback, and its free-hook runs exactly once
// (§5 "Cancellation").
func (op *Operation) Cancel() {
	op.mu.Lock()
	done := op.done
	op.mu.Unlock()
	if done {
		return
	}

	// During teardown the context has already released its dispatcher.
	if d := op.ctx.dispatcher(); d != nil {
		d.Cancel(op.tag)
	}
	op.finish()
}

// finish marks the operation done and unlinks it from the context,
// invoking its completion hook exactly once regardless of how it is
// reached (reply, timeout, or cancellation).
func (op *Operation) finish() {
	op.mu.Lock()
	alreadyDone := op.done
	op.done = true
	op.mu.Unlock()

	op.ctx.removeOperation(op)
	if !alreadyDone && op.onDone != nil {
		op.onDone()
	}
}

// markDone is called from the reply continuation when a reply, error, or
// timeout resolves the tag, and from Drain's completion callback (as
// opposed to explicit [Cancel]).
func (op *Operation) markDone() {
	op.finish()
}
