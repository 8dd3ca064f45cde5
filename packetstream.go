// SPDX-License-Identifier: GPL-3.0-or-later

package paconn

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
)

// PeerCredentials is the out-of-band peer identity exchanged over a local
// transport (§3 `do_shm` invariant conjunct (e), §4.6 "Credentials").
type PeerCredentials struct {
	UID uint32
	GID uint32
	PID int32
}

// Packet is a single tag-struct packet: the `(command, tag)` header of
// §6.2 plus its command-specific payload, handed to/from the codec.
type Packet struct {
	Command Command
	Tag     uint32
	Payload []byte
}

// MemblockFrame is a single inbound or outbound media frame (§4.4): a
// channel id, a byte offset, a seek mode, and a memory block. A nil Block
// with Length > 0 represents a hole (§4.4 "memblock-received").
type MemblockFrame struct {
	Channel uint32
	Offset  int64
	Seek    SeekMode
	Block   Memblock
	Length  int // used instead of Block.Bytes() length when Block is nil (a hole)
}

// PacketStream is the external "packet-stream framing layer" collaborator
// named out of scope in §1. [Transport] (§4.4) is built entirely on top of
// this interface; the core never frames bytes itself.
type PacketStream interface {
	// SendPacket sends a tag-struct packet.
	SendPacket(p Packet) error

	// SendPacketWithCreds sends a tag-struct packet carrying the local
	// process's credentials out of band (§4.6 "Credentials"). Returns
	// [ErrNotSupported]-wrapped error if the stream cannot pass
	// credentials.
	SendPacketWithCreds(p Packet) error

	// SendMemblock sends a media frame (§4.4).
	SendMemblock(f MemblockFrame) error

	// SetPacketReceivedCallback installs the inbound packet callback
	// (§4.4). creds is non-nil only when the peer attached credentials
	// to that specific packet.
	SetPacketReceivedCallback(cb func(p Packet, creds *PeerCredentials))

	// SetMemblockReceivedCallback installs the inbound media frame
	// callback (§4.4).
	SetMemblockReceivedCallback(cb func(f MemblockFrame))

	// SetLinkDiedCallback installs the callback fired once on transport
	// failure (§4.4).
	SetLinkDiedCallback(cb func())

	// EnableSharedMemory turns on shared-memory transfer after
	// authentication succeeds (§4.4, §4.6).
	EnableSharedMemory(enable bool)

	// SupportsCredentialPassing reports whether [SendPacketWithCreds]
	// and credentialed delivery are available on this transport (true
	// for unix domain sockets, false otherwise).
	SupportsCredentialPassing() bool

	// PeerCredentials returns the credentials observed at connect time,
	// if any (§3 `do_shm` invariant conjunct (e)).
	PeerCredentials() (PeerCredentials, bool)

	// Pending reports whether any enqueued bytes have not yet been
	// flushed to the kernel (§4.4, §4.5 "Drain").
	Pending() bool

	// SetDrainCallback arms a one-shot callback that fires exactly once
	// when [Pending] transitions to false, then self-clears (§4.5).
	SetDrainCallback(cb func())

	// Close tears down the stream.
	Close() error
}

// NewLengthPrefixedPacketStream wraps conn in a minimal length-prefixed
// [PacketStream], the default used by [NewConfig]. Each frame is
// `[1 byte kind][4 byte length][body]`; kind 0 is a tag-struct packet
// (`command, tag, payload`), kind 1 is a media frame
// (`channel, offset, seek, length, bytes`). Peer credentials are obtained
// once via [PeerCredentialsOf] when conn is a unix socket.
//
// This stream sends no ancillary credential data: SendPacketWithCreds
// writes the packet exactly as SendPacket does, and every inbound packet
// is delivered with the credentials read at connect time, not with
// credentials attached to that packet.
func NewLengthPrefixedPacketStream(conn net.Conn, codec TagStructCodec, logger SLogger) PacketStream {
	if logger == nil {
		logger = DefaultSLogger()
	}
	s := &lengthPrefixedStream{
		conn:   conn,
		codec:  codec,
		logger: logger,
	}
	s.creds, s.hasCreds = PeerCredentialsOf(conn)
	go s.readLoop()
	return s
}

const (
	frameKindPacket byte = iota
	frameKindMemblock
)

type lengthPrefixedStream struct {
	conn   net.Conn
	codec  TagStructCodec
	logger SLogger

	writeMu sync.Mutex
	pending int
	drainCB func()

	onPacket   func(Packet, *PeerCredentials)
	onMemblock func(MemblockFrame)
	onLinkDied func()
	linkDied   sync.Once

	shm      bool
	creds    PeerCredentials
	hasCreds bool
}

var _ PacketStream = &lengthPrefixedStream{}

func (s *lengthPrefixedStream) SetPacketReceivedCallback(cb func(Packet, *PeerCredentials)) {
	s.onPacket = cb
}

func (s *lengthPrefixedStream) SetMemblockReceivedCallback(cb func(MemblockFrame)) {
	s.onMemblock = cb
}

func (s *lengthPrefixedStream) SetLinkDiedCallback(cb func()) {
	s.onLinkDied = cb
}

func (s *lengthPrefixedStream) EnableSharedMemory(enable bool) {
	s.shm = enable
}

func (s *lengthPrefixedStream) SupportsCredentialPassing() bool {
	return s.hasCreds
}

func (s *lengthPrefixedStream) PeerCredentials() (PeerCredentials, bool) {
	return s.creds, s.hasCreds
}

func (s *lengthPrefixedStream) Pending() bool {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.pending > 0
}

func (s *lengthPrefixedStream) SetDrainCallback(cb func()) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.pending == 0 {
		s.writeMu.Unlock()
		cb()
		s.writeMu.Lock()
		return
	}
	s.drainCB = cb
}

func (s *lengthPrefixedStream) Close() error {
	return s.conn.Close()
}

func (s *lengthPrefixedStream) SendPacket(p Packet) error {
	w := s.codec.NewWriter()
	w.PutUint32(uint32(p.Command))
	w.PutUint32(p.Tag)
	body := w.Bytes()
	body = append(body, p.Payload...)
	return s.writeFrame(frameKindPacket, body)
}

func (s *lengthPrefixedStream) SendPacketWithCreds(p Packet) error {
	if !s.hasCreds {
		return fmt.Errorf("paconn: %w: credential passing unsupported on this stream", NewError(ErrNotSupported))
	}
	return s.SendPacket(p)
}

func (s *lengthPrefixedStream) SendMemblock(f MemblockFrame) error {
	w := s.codec.NewWriter()
	w.PutUint32(f.Channel)
	w.PutUint32(uint64ToUint32Pair(f.Offset >> 32))
	w.PutUint32(uint64ToUint32Pair(f.Offset))
	w.PutUint8(uint8(f.Seek))
	var data []byte
	if f.Block != nil {
		data = f.Block.Bytes()
	}
	w.PutBytes(data)
	return s.writeFrame(frameKindMemblock, w.Bytes())
}

// uint64ToUint32Pair truncates v to its low 32 bits; used to split a 64-bit
// offset across two PutUint32 calls on the minimal codec.
func uint64ToUint32Pair(v int64) uint32 {
	return uint32(v)
}

func (s *lengthPrefixedStream) writeFrame(kind byte, body []byte) error {
	s.writeMu.Lock()
	s.pending++
	s.writeMu.Unlock()

	defer func() {
		s.writeMu.Lock()
		s.pending--
		cb := (func())(nil)
		if s.pending == 0 && s.drainCB != nil {
			cb = s.drainCB
			s.drainCB = nil
		}
		s.writeMu.Unlock()
		if cb != nil {
			cb()
		}
	}()

	header := make([]byte, 5)
	header[0] = kind
	binary.BigEndian.PutUint32(header[1:], uint32(len(body)))
	if _, err := s.conn.Write(header); err != nil {
		s.fail()
		return err
	}
	if _, err := s.conn.Write(body); err != nil {
		s.fail()
		return err
	}
	return nil
}

func (s *lengthPrefixedStream) fail() {
	s.linkDied.Do(func() {
		if s.onLinkDied != nil {
			s.onLinkDied()
		}
	})
}

func (s *lengthPrefixedStream) readLoop() {
	header := make([]byte, 5)
	for {
		if _, err := io.ReadFull(s.conn, header); err != nil {
			s.fail()
			return
		}
		kind := header[0]
		n := binary.BigEndian.Uint32(header[1:])
		body := make([]byte, n)
		if n > 0 {
			if _, err := io.ReadFull(s.conn, body); err != nil {
				s.fail()
				return
			}
		}
		switch kind {
		case frameKindPacket:
			s.dispatchPacket(body)
		case frameKindMemblock:
			s.dispatchMemblock(body)
		default:
			s.logger.Debug("paconn: unknown frame kind", "kind", kind)
		}
	}
}

func (s *lengthPrefixedStream) dispatchPacket(body []byte) {
	r := s.codec.NewReader(body)
	cmd, err := r.GetUint32()
	if err != nil {
		s.logger.Debug("paconn: malformed packet header", "err", err)
		return
	}
	tag, err := r.GetUint32()
	if err != nil {
		s.logger.Debug("paconn: malformed packet header", "err", err)
		return
	}
	var creds *PeerCredentials
	if s.hasCreds {
		c := s.creds
		creds = &c
	}
	// Payload excludes the (command, tag) header, mirroring SendPacket.
	hdr := s.codec.NewWriter()
	hdr.PutUint32(cmd)
	hdr.PutUint32(tag)
	payload := body[len(hdr.Bytes()):]
	if s.onPacket != nil {
		s.onPacket(Packet{Command: Command(cmd), Tag: tag, Payload: payload}, creds)
	}
}

func (s *lengthPrefixedStream) dispatchMemblock(body []byte) {
	r := s.codec.NewReader(body)
	channel, err := r.GetUint32()
	if err != nil {
		return
	}
	hi, err := r.GetUint32()
	if err != nil {
		return
	}
	lo, err := r.GetUint32()
	if err != nil {
		return
	}
	offset := int64(hi)<<32 | int64(lo)
	seek, err := r.GetUint8()
	if err != nil {
		return
	}
	data, err := r.GetBytes()
	if err != nil {
		return
	}
	frame := MemblockFrame{Channel: channel, Offset: offset, Seek: SeekMode(seek), Length: len(data)}
	if len(data) > 0 {
		frame.Block = &byteMemblock{data: data}
	}
	if s.onMemblock != nil {
		s.onMemblock(frame)
	}
}
