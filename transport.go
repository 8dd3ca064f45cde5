// SPDX-License-Identifier: GPL-3.0-or-later

package paconn

// Transport is the §4.4 "Protocol transport": it wraps a [PacketStream]
// with the policy the core needs on top of raw framing — shared-memory
// enablement after authentication, peer-credential exposure, and the
// inbound routing policy for link-died, packet, and memblock events.
type Transport struct {
	stream PacketStream
	logger SLogger

	// OnLinkDied fires once when the underlying stream dies (§4.4
	// "On link-died").
	OnLinkDied func()

	// OnPacket fires for every inbound tag-struct packet (§4.4
	// "On packet-received"). The caller is expected to hand it to a
	// [Dispatcher] and fail the context on protocol violation.
	OnPacket func(p Packet, creds *PeerCredentials)

	// RecordStreamByChannel resolves a channel id to its [RecordStream],
	// used to route inbound memblocks (§4.4 "On memblock-received").
	RecordStreamByChannel func(channel uint32) (RecordStream, bool)
}

// NewTransport wraps stream in a [*Transport] and installs the §4.4
// callback policy.
func NewTransport(stream PacketStream, logger SLogger) *Transport {
	if logger == nil {
		logger = DefaultSLogger()
	}
	t := &Transport{stream: stream, logger: logger}
	stream.SetLinkDiedCallback(t.handleLinkDied)
	stream.SetPacketReceivedCallback(t.handlePacket)
	stream.SetMemblockReceivedCallback(t.handleMemblock)
	return t
}

func (t *Transport) handleLinkDied() {
	if t.OnLinkDied != nil {
		t.OnLinkDied()
	}
}

func (t *Transport) handlePacket(p Packet, creds *PeerCredentials) {
	if t.OnPacket != nil {
		t.OnPacket(p, creds)
	}
}

// handleMemblock implements §4.4 "On memblock-received": look up the
// record stream by channel id; if present and the block is non-empty,
// seek the queue to offset with the given seek mode and push the block;
// if the block is empty (a hole), advance the write pointer by
// offset+length instead; then, if data is available and the stream has a
// read callback, invoke it with the queue length.
func (t *Transport) handleMemblock(f MemblockFrame) {
	if t.RecordStreamByChannel == nil {
		return
	}
	stream, ok := t.RecordStreamByChannel(f.Channel)
	if !ok {
		return
	}
	queue := stream.Queue()
	if queue == nil {
		return
	}
	if f.Block != nil {
		queue.Seek(f.Seek, f.Offset)
		queue.Push(f.Block)
	} else {
		queue.AdvanceWrite(f.Offset + int64(f.Length))
	}
	if queue.Len() <= 0 {
		return
	}
	if cb := stream.ReadCallback(); cb != nil {
		cb(queue.Len())
	}
}

// SendPacket sends a tag-struct packet.
func (t *Transport) SendPacket(p Packet) error {
	return t.stream.SendPacket(p)
}

// SendPacketWithCreds sends a tag-struct packet carrying local
// credentials out of band (§4.6 "Credentials").
func (t *Transport) SendPacketWithCreds(p Packet) error {
	return t.stream.SendPacketWithCreds(p)
}

// SendMemblock sends a media frame.
func (t *Transport) SendMemblock(f MemblockFrame) error {
	return t.stream.SendMemblock(f)
}

// EnableSharedMemory turns on shared-memory transfer, called once
// authentication computes the `do_shm` invariant (§3, §4.6).
func (t *Transport) EnableSharedMemory(enable bool) {
	t.stream.EnableSharedMemory(enable)
}

// SupportsCredentialPassing reports whether the underlying stream can
// pass credentials (§4.6 "Credentials").
func (t *Transport) SupportsCredentialPassing() bool {
	return t.stream.SupportsCredentialPassing()
}

// PeerCredentials returns the credentials observed at connect time, if
// any (§3 `do_shm` invariant conjunct (e)).
func (t *Transport) PeerCredentials() (PeerCredentials, bool) {
	return t.stream.PeerCredentials()
}

// Pending reports whether any enqueued bytes are unflushed (§4.4, §4.5
// "Drain").
func (t *Transport) Pending() bool {
	return t.stream.Pending()
}

// SetDrainCallback arms a one-shot drain-complete callback (§4.7
// "drain()").
func (t *Transport) SetDrainCallback(cb func()) {
	t.stream.SetDrainCallback(cb)
}

// Close tears down the underlying stream.
func (t *Transport) Close() error {
	return t.stream.Close()
}
