// SPDX-License-Identifier: GPL-3.0-or-later

// Package paconn implements the connection core of a client for a
// PulseAudio-like sound server: endpoint discovery, socket dialing,
// daemon autospawn, desktop-bus presence watching, packet framing and
// dispatch, and the connection state machine that ties them together.
//
// # Core Abstraction
//
// Composable stages share a single interface:
//
//	type Func[A, B any] interface {
//		Call(ctx context.Context, input A) (B, error)
//	}
//
// Each Func represents an atomic operation with exactly one success mode
// and one failure mode. [Compose2] chains two Funcs into a pipeline,
// verified at compile time.
//
// # Available Primitives
//
// Endpoint discovery (§4.1):
//   - [ParseEndpoint], [ParseEndpointList]: parse the PulseAudio server-string
//     syntax ("unix:path", "tcp4:host:port", bare host, etc.)
//   - [BuildEndpointList]: build the ordered fallback candidate list from an
//     explicit server string, [Config], and the process environment
//
// Connection establishment (§4.2):
//   - [ConnectFunc]: dials a single [Endpoint] candidate
//   - [DialCascadeFunc]: tries candidates in order, retrying on a fixed set
//     of errnos (refused, timed out, host unreachable, no such socket path)
//   - [ObserveConnFunc]: observes connections for logging I/O operations
//   - [CancelWatchFunc]: closes connection on context cancellation (for responsive ^C handling)
//
// Daemon autospawn (§4.3):
//   - [Spawner], [OSSpawner]: start a local daemon process on demand
//
// Presence watching (§4.3, §4.6):
//   - [PresenceWatcher], [DBusPresenceWatcher]: observe the daemon's
//     well-known bus name appearing/disappearing
//
// Transport (§4.4):
//   - [PacketStream], [NewLengthPrefixedPacketStream]: frame tag-struct
//     packets and media frames over a [net.Conn]
//   - [Transport]: the policy layer gluing a [PacketStream] to credential
//     and shared-memory negotiation, and to drain/link-died callbacks
//
// Dispatch (§4.5):
//   - [Dispatcher]: routes inbound REPLY/ERROR/TIMEOUT packets back to the
//     tag that sent the originating request, and inbound server-initiated
//     commands to registered command handlers
//
// Connection state machine (§3, §4.6):
//   - [Context]: the central object; owns the [Dispatcher] and [Transport],
//     exposes [Context.Connect], [Context.Disconnect], and the request
//     helpers in operations_requests.go
//
// Composition utilities:
//   - [Compose2]: chain two Funcs into a pipeline
//   - [FuncAdapter]: wrap a function as a Func for ad-hoc custom behavior
//
// # Connection Lifecycle
//
// [Context.Connect] drives candidates from [BuildEndpointList] through
// [DialCascadeFunc], then through authentication and naming as described in
// §4.6, arriving at READY or a terminal FAILED state. [Context.Disconnect]
// tears the connection down from any state and is idempotent.
//
// # Observability
//
// All primitives support structured logging via [SLogger] (compatible with [log/slog]).
//
// By default, logging is disabled. Set the Logger field to a custom [*slog.Logger]
// to enable logging. Error classification is configurable via [ErrClassifier]; by
// default, a no-op classifier is used.
//
// Primitives emit two kinds of structured log events:
//
//   - Span events (*Start/*Done pairs): Record operation lifecycle including
//     timing and success/failure. Used for latency analysis and error tracking.
//
//   - Wire observations: Capture protocol-level events (state transitions,
//     dispatch routing) for debugging.
//
// Connection events share a common set of fields: localAddr, remoteAddr,
// protocol, and t (timestamp); connectStart has no localAddr, since no
// connection exists yet, and spawn and context-level events carry their own
// fields. Completion events (*Done) additionally include t0 (start
// time), err, and errClass. I/O-level events (read, write, deadline changes)
// and reports of dropped or unrecognized inbound data are emitted at
// [slog.LevelDebug]; all other events use [slog.LevelInfo].
//
// Use [NewSpanID] to generate a unique, time-ordered identifier (UUIDv7) for each
// operation, then attach it to the logger with [*slog.Logger.With]. All log entries
// from that operation will share the same spanID, enabling correlation across
// pipeline stages and simplifying log analysis.
//
// # Timeout and Context Philosophy
//
// This package is context-transparent: operations never modify the context they receive.
// The caller controls timeouts externally via [context.WithTimeout], [context.WithDeadline],
// or [signal.NotifyContext]. When the context is done (timeout, cancel, or signal),
// operations fail and the pipeline is interrupted.
//
// Connection lifecycle requires [CancelWatchFunc] to bind the context lifecycle to
// the connection: when the context is done, the connection is closed immediately,
// causing any in-progress I/O to fail. This enables responsive ^C handling via
// [signal.NotifyContext] and ensures that blocking I/O respects the context deadline.
//
// # Design Boundaries
//
// This package intentionally leaves several collaborators external (see the
// package-level interfaces they are expressed through): the tag-struct codec
// ([TagStructCodec]), the packet-stream framing wire format beyond the
// built-in default, the caller's main loop ([MainLoop]), the memory-block
// pool ([MemblockPool]), the property list container ([PropList]), and the
// per-stream playback/record state machines ([PlaybackStream],
// [RecordStream]).
package paconn
