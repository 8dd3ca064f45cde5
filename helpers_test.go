// SPDX-License-Identifier: GPL-3.0-or-later

package paconn

import (
	"context"
	"log/slog"
	"net"
	"time"
)

// newCapturingLogger returns a logger that captures all log records into the
// returned slice. The caller can inspect the slice after exercising the code
// under test to verify which events were emitted.
func newCapturingLogger() (*slog.Logger, *[]slog.Record) {
	var records []slog.Record
	handler := &funcHandler{
		enabled: func(ctx context.Context, level slog.Level) bool { return true },
		handle: func(ctx context.Context, record slog.Record) error {
			records = append(records, record)
			return nil
		},
	}
	return slog.New(handler), &records
}

// funcHandler is a minimal [slog.Handler] backed by plain functions,
// sufficient for capturing records in tests without a real sink.
type funcHandler struct {
	enabled func(context.Context, slog.Level) bool
	handle  func(context.Context, slog.Record) error
}

var _ slog.Handler = &funcHandler{}

func (h *funcHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.enabled(ctx, level)
}

func (h *funcHandler) Handle(ctx context.Context, record slog.Record) error {
	return h.handle(ctx, record)
}

func (h *funcHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h
}

func (h *funcHandler) WithGroup(name string) slog.Handler {
	return h
}

// funcDialer adapts a function to the [Dialer] interface for tests.
type funcDialer struct {
	DialContextFunc func(ctx context.Context, network, address string) (net.Conn, error)
}

var _ Dialer = &funcDialer{}

func (d *funcDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	return d.DialContextFunc(ctx, network, address)
}

// funcConn is a minimal [net.Conn] test double with overridable fields.
// Any field left nil falls back to an inert default.
type funcConn struct {
	ReadFunc        func([]byte) (int, error)
	WriteFunc       func([]byte) (int, error)
	CloseFunc       func() error
	LocalAddrFunc   func() net.Addr
	RemoteAddrFunc  func() net.Addr
	SetDeadlineFunc func(time.Time) error
	SetReadDeadFunc func(time.Time) error
	SetWriteDeaFunc func(time.Time) error
}

var _ net.Conn = &funcConn{}

// newMinimalConn returns a [*funcConn] with only LocalAddrFunc and
// RemoteAddrFunc set, the minimum needed for code that derives logging
// fields from a connection's addresses during construction.
func newMinimalConn() *funcConn {
	return &funcConn{
		LocalAddrFunc:  func() net.Addr { return &net.TCPAddr{} },
		RemoteAddrFunc: func() net.Addr { return &net.TCPAddr{} },
	}
}

func (c *funcConn) Read(b []byte) (int, error) {
	if c.ReadFunc != nil {
		return c.ReadFunc(b)
	}
	return 0, net.ErrClosed
}

func (c *funcConn) Write(b []byte) (int, error) {
	if c.WriteFunc != nil {
		return c.WriteFunc(b)
	}
	return len(b), nil
}

func (c *funcConn) Close() error {
	if c.CloseFunc != nil {
		return c.CloseFunc()
	}
	return nil
}

func (c *funcConn) LocalAddr() net.Addr {
	if c.LocalAddrFunc != nil {
		return c.LocalAddrFunc()
	}
	return &net.TCPAddr{}
}

func (c *funcConn) RemoteAddr() net.Addr {
	if c.RemoteAddrFunc != nil {
		return c.RemoteAddrFunc()
	}
	return &net.TCPAddr{}
}

func (c *funcConn) SetDeadline(t time.Time) error {
	if c.SetDeadlineFunc != nil {
		return c.SetDeadlineFunc(t)
	}
	return nil
}

func (c *funcConn) SetReadDeadline(t time.Time) error {
	if c.SetReadDeadFunc != nil {
		return c.SetReadDeadFunc(t)
	}
	return nil
}

func (c *funcConn) SetWriteDeadline(t time.Time) error {
	if c.SetWriteDeaFunc != nil {
		return c.SetWriteDeaFunc(t)
	}
	return nil
}

// fakePacketStream is a minimal in-memory [PacketStream] test double: sent
// packets are recorded rather than written to a real connection, and
// inbound packets/drain completion are injected by calling the captured
// callbacks directly.
type fakePacketStream struct {
	SendPacketFunc func(p Packet) error

	sent     []Packet
	pending  int
	drainCB  func()
	onPacket func(Packet, *PeerCredentials)
	creds    PeerCredentials
	hasCreds bool
	shm      bool
	closed   bool
}

var _ PacketStream = &fakePacketStream{}

func (s *fakePacketStream) SendPacket(p Packet) error {
	if s.SendPacketFunc != nil {
		return s.SendPacketFunc(p)
	}
	s.sent = append(s.sent, p)
	return nil
}

func (s *fakePacketStream) SendPacketWithCreds(p Packet) error {
	return s.SendPacket(p)
}

func (s *fakePacketStream) SendMemblock(f MemblockFrame) error {
	return nil
}

func (s *fakePacketStream) SetPacketReceivedCallback(cb func(p Packet, creds *PeerCredentials)) {
	s.onPacket = cb
}

func (s *fakePacketStream) SetMemblockReceivedCallback(cb func(f MemblockFrame)) {}

func (s *fakePacketStream) SetLinkDiedCallback(cb func()) {}

func (s *fakePacketStream) EnableSharedMemory(enable bool) { s.shm = enable }

func (s *fakePacketStream) SupportsCredentialPassing() bool { return s.hasCreds }

func (s *fakePacketStream) PeerCredentials() (PeerCredentials, bool) { return s.creds, s.hasCreds }

func (s *fakePacketStream) Pending() bool { return s.pending > 0 }

func (s *fakePacketStream) SetDrainCallback(cb func()) {
	if s.pending == 0 {
		cb()
		return
	}
	s.drainCB = cb
}

func (s *fakePacketStream) Close() error {
	s.closed = true
	return nil
}

// deliverReply injects an inbound packet as if it had arrived over the
// wire, invoking whatever [Dispatcher]/continuation is wired to receive
// it via the captured onPacket callback.
func (s *fakePacketStream) deliverReply(p Packet) {
	if s.onPacket != nil {
		s.onPacket(p, nil)
	}
}

// fakePlaybackStream is a minimal [PlaybackStream] test double recording
// every notification delivered to it.
type fakePlaybackStream struct {
	channel    uint32
	requests   []int64
	underflows int
	overflows  int
	started    int
	suspended  []bool
	moved      int
	bufAttr    int
	failed     int
	terminated int
}

var _ PlaybackStream = &fakePlaybackStream{}

func (s *fakePlaybackStream) Channel() uint32        { return s.channel }
func (s *fakePlaybackStream) Request(length int64)   { s.requests = append(s.requests, length) }
func (s *fakePlaybackStream) Underflow()              { s.underflows++ }
func (s *fakePlaybackStream) Overflow()               { s.overflows++ }
func (s *fakePlaybackStream) Started()                { s.started++ }
func (s *fakePlaybackStream) Suspended(suspended bool) { s.suspended = append(s.suspended, suspended) }
func (s *fakePlaybackStream) Moved()                   { s.moved++ }
func (s *fakePlaybackStream) BufferAttrChanged()       { s.bufAttr++ }
func (s *fakePlaybackStream) Fail()                    { s.failed++ }
func (s *fakePlaybackStream) Terminate()               { s.terminated++ }

// fakeInboundQueue is a minimal [InboundQueue] test double tracking its
// queued length.
type fakeInboundQueue struct {
	length int64
}

var _ InboundQueue = &fakeInboundQueue{}

func (q *fakeInboundQueue) Seek(mode SeekMode, offset int64) {}
func (q *fakeInboundQueue) Push(block Memblock)              { q.length += int64(len(block.Bytes())) }
func (q *fakeInboundQueue) AdvanceWrite(n int64)              { q.length += n }
func (q *fakeInboundQueue) Len() int64                        { return q.length }

// fakeRecordStream is a minimal [RecordStream] test double.
type fakeRecordStream struct {
	channel      uint32
	queue        *fakeInboundQueue
	overflows    int
	started      int
	suspended    []bool
	moved        int
	bufAttr      int
	failed       int
	terminated   int
	readCallback func(length int64)
}

var _ RecordStream = &fakeRecordStream{}

func (s *fakeRecordStream) Channel() uint32 { return s.channel }
func (s *fakeRecordStream) Queue() InboundQueue {
	if s.queue == nil {
		return nil
	}
	return s.queue
}
func (s *fakeRecordStream) ReadCallback() func(length int64) { return s.readCallback }
func (s *fakeRecordStream) Overflow()                         { s.overflows++ }
func (s *fakeRecordStream) Started()                          { s.started++ }
func (s *fakeRecordStream) Suspended(suspended bool)          { s.suspended = append(s.suspended, suspended) }
func (s *fakeRecordStream) Moved()                             { s.moved++ }
func (s *fakeRecordStream) BufferAttrChanged()                 { s.bufAttr++ }
func (s *fakeRecordStream) Fail()                              { s.failed++ }
func (s *fakeRecordStream) Terminate()                         { s.terminated++ }
