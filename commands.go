// SPDX-License-Identifier: GPL-3.0-or-later

package paconn

// Command identifies a tag-struct packet's numeric command field (§6.2).
type Command uint32

// Pseudo-commands dispatched by tag rather than by command table lookup
// (§4.5): a packet whose command equals one of these three is routed to
// the continuation registered under its tag, never through the command
// table.
const (
	CmdReply Command = iota
	CmdError
	CmdTimeout // synthesized locally by the dispatcher, never sent on the wire
)

// Outbound commands (§6.2).
const (
	CmdAuth Command = iota + 32
	CmdSetClientName
	CmdUpdateClientProplist
	CmdRemoveClientProplist
	CmdSetDefaultSink
	CmdSetDefaultSource
	CmdExit
)

// Inbound commands routed by command id through the dispatcher's command
// table (§4.5, §6.2).
const (
	CmdRequest Command = iota + 64
	CmdOverflow
	CmdUnderflow
	CmdPlaybackStreamKilled
	CmdRecordStreamKilled
	CmdPlaybackStreamMoved
	CmdRecordStreamMoved
	CmdPlaybackStreamSuspended
	CmdRecordStreamSuspended
	CmdStarted
	CmdSubscribeEvent
	CmdExtension
	CmdPlaybackStreamEvent
	CmdRecordStreamEvent
	CmdClientEvent
	CmdPlaybackBufferAttrChanged
	CmdRecordBufferAttrChanged
)

// Well-known extension names routed inside the `EXTENSION` handler (§6.2,
// §9 "Dynamic dispatch"). Any other name is logged and discarded.
const (
	ExtensionStreamRestore = "module-stream-restore"
	ExtensionDeviceManager = "module-device-manager"
)

// ProtocolVersion is the highest native protocol version this client
// speaks (§4.6).
const ProtocolVersion uint32 = 35

// shmBit is OR'd into the outbound `AUTH` version field, and found set in
// the inbound reply's version field on versions >= 13 (§4.6).
const shmBit uint32 = 1 << 31

// versionMask strips [shmBit] from a raw wire version field.
const versionMask uint32 = shmBit - 1
