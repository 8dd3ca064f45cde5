// SPDX-License-Identifier: GPL-3.0-or-later

package paconn

// SeekMode selects how an inbound memory frame's offset is interpreted
// relative to a stream's write pointer (§4.4 "memblock-received").
type SeekMode uint8

const (
	// SeekRelative advances the write pointer by Offset bytes.
	SeekRelative SeekMode = iota

	// SeekAbsolute sets the write pointer to Offset bytes from the
	// start of the stream.
	SeekAbsolute

	// SeekRelativeOnRead seeks relative to the read pointer instead of
	// the write pointer.
	SeekRelativeOnRead

	// SeekRelativeEnd seeks relative to the end of the stream.
	SeekRelativeEnd
)

// InboundQueue is the write side of a record/monitor stream's ring buffer:
// the part of the "per-stream playback/record state machine" collaborator
// named out of scope in §1 that [Transport] must drive when a memory frame
// arrives for that stream.
type InboundQueue interface {
	// Seek repositions the write pointer according to mode and offset,
	// mirroring `pa_memblockq_seek` semantics.
	Seek(mode SeekMode, offset int64)

	// Push appends block's bytes at the current write pointer and
	// advances it.
	Push(block Memblock)

	// AdvanceWrite advances the write pointer by n bytes without
	// writing data, representing a hole (§4.4 "memblock-received" with
	// a nil block).
	AdvanceWrite(n int64)

	// Len reports the number of bytes currently queued.
	Len() int64
}

// PlaybackStream is the external per-stream playback state machine
// collaborator named out of scope in §1. [Context]'s command handlers forward
// `REQUEST`/`UNDERFLOW`/`OVERFLOW`/`STARTED`/`SUSPENDED`/`MOVED`/
// `BUFFER_ATTR_CHANGED` notifications (§6.2) to the stream matching the
// packet's channel id; everything else about playback state belongs here.
type PlaybackStream interface {
	// Channel returns the channel id this stream was created with.
	Channel() uint32

	// Request is called when the server asks for more data, with the
	// number of bytes it wants.
	Request(length int64)

	// Underflow is called when the server's playback buffer ran dry.
	Underflow()

	// Overflow is called when data was dropped because the server's
	// buffer was full.
	Overflow()

	// Started is called when the server begins actually playing audio
	// for this stream after a buffer pre-fill.
	Started()

	// Suspended is called when the output device backing this stream
	// suspends or resumes; suspended reports the new state.
	Suspended(suspended bool)

	// Moved is called when the stream is moved to a different sink.
	Moved()

	// BufferAttrChanged is called when the server changes this
	// stream's buffer attributes out of band.
	BufferAttrChanged()

	// Fail transitions the stream to FAILED, called on every live
	// stream when the owning [Context] enters FAILED (§3, §7, §8
	// scenario 6).
	Fail()

	// Terminate transitions the stream to TERMINATED, called on every
	// live stream when the owning [Context] enters TERMINATED (§3, §7).
	Terminate()
}

// RecordStream is the external per-stream record state machine
// collaborator named out of scope in §1, the record-side counterpart of
// [PlaybackStream]. [Transport] delivers inbound memory frames for this
// stream's channel to Queue.
type RecordStream interface {
	// Channel returns the channel id this stream was created with.
	Channel() uint32

	// Queue returns the ring buffer that inbound memory frames for this
	// stream are pushed into.
	Queue() InboundQueue

	// ReadCallback is invoked with the queue's length after a memblock
	// or hole has been pushed, when the stream has installed one
	// (§4.4 "memblock-received": "if data is available and the stream
	// has a read callback, invoke it with the queue length"). Returns
	// nil if the stream has none installed.
	ReadCallback() func(length int64)

	Overflow()
	Started()
	Suspended(suspended bool)
	Moved()
	BufferAttrChanged()

	// Fail transitions the stream to FAILED, called on every live
	// stream when the owning [Context] enters FAILED (§3, §7, §8
	// scenario 6).
	Fail()

	// Terminate transitions the stream to TERMINATED, called on every
	// live stream when the owning [Context] enters TERMINATED (§3, §7).
	Terminate()
}
