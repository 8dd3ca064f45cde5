// SPDX-License-Identifier: GPL-3.0-or-later

package paconn

import (
	"net"
	"time"
)

// Config holds common configuration for a [Context].
//
// Pass this to [New] or [NewWithPropList] to pre-wire dependencies. All fields have sensible defaults set by
// [NewConfig]; the zero value is not ready to use.
type Config struct {
	// Dialer is used by the socket dialer (§4.2) for every candidate,
	// unix and TCP alike.
	//
	// Set by [NewConfig] to [*net.Dialer].
	Dialer Dialer

	// ErrClassifier classifies transport errors for structured logging.
	//
	// Set by [NewConfig] to [DefaultErrClassifier].
	ErrClassifier ErrClassifier

	// Logger is the [SLogger] used by the context and all of its
	// subsystems.
	//
	// Set by [NewConfig] to [DefaultSLogger].
	Logger SLogger

	// TimeNow returns the current time.
	//
	// Set by [NewConfig] to [time.Now].
	TimeNow func() time.Time

	// Spawner autospawns the daemon binary (§4.3).
	//
	// Set by [NewConfig] to [OSSpawner] with [DefaultSpawnBinary].
	Spawner Spawner

	// PresenceWatcherFactory constructs a [PresenceWatcher] for the
	// well-known daemon bus name when no-fail mode needs one (§4.3, §4.6).
	//
	// Set by [NewConfig] to [NewDBusPresenceWatcher].
	PresenceWatcherFactory func(busName string, logger SLogger) (PresenceWatcher, error)

	// RuntimePathFunc returns the per-user runtime directory (§4.1, §6.4).
	//
	// Set by [NewConfig] to [DefaultRuntimePathFunc].
	RuntimePathFunc func(env Environ) string

	// SystemRuntimePath is the system-wide runtime directory of §4.1
	// bullet 2. Empty disables that candidate.
	//
	// Set by [NewConfig] to "/run/pulse".
	SystemRuntimePath string

	// LegacyRuntimePaths enables the legacy per-user socket probing of
	// §4.1 bullet 1 / §6.4.
	//
	// Set by [NewConfig] to true.
	LegacyRuntimePaths bool

	// AutoConnectDisplay enables the display-derived fallback host of
	// §4.1 bullet 5.
	//
	// Set by [NewConfig] to false.
	AutoConnectDisplay bool

	// EnableAutospawnByDefault is the autospawn permission consulted by
	// §4.3 bullet (b), absent an explicit [FlagNoAutospawn].
	//
	// Set by [NewConfig] to true.
	EnableAutospawnByDefault bool

	// SpawnBinary is the daemon executable path passed to [Spawner.Spawn].
	//
	// Set by [NewConfig] to [DefaultSpawnBinary].
	SpawnBinary string

	// SpawnExtraArgs are extra space-split arguments appended after
	// `--start` (§4.3), capped at 30 entries by the autospawner.
	SpawnExtraArgs []string

	// FDCloseFloor is the floor above which the autospawned child closes
	// inherited file descriptors (§4.3).
	//
	// Set by [NewConfig] to 3.
	FDCloseFloor int

	// ProtocolVersion is the local protocol version offered in `AUTH`
	// (§4.6).
	//
	// Set by [NewConfig] to [ProtocolVersion].
	ProtocolVersion uint32

	// MinProtocolVersion is the lowest server version accepted before
	// failing with [ErrVersion] (§4.6, §8).
	//
	// Set by [NewConfig] to 8.
	MinProtocolVersion uint32

	// DefaultTimeout is the per-tag reply timeout of §4.5/§5.
	//
	// Set by [NewConfig] to 5 seconds.
	DefaultTimeout time.Duration

	// Cookie is the opaque authentication cookie sent with `AUTH` (§4.6).
	// A nil or empty cookie is logged but not fatal.
	Cookie []byte

	// Pool is the memory-block pool consulted for the `do_shm` invariant
	// (§3, §4.6).
	//
	// Set by [NewConfig] to [NewLocalMemblockPool] (shared-memory
	// capable), matching a typical local client.
	Pool MemblockPool

	// NewPacketStream wraps a dialed [net.Conn] into the external
	// [PacketStream] framing layer (§4.4). The core never frames packets
	// itself; it drives whatever [PacketStream] this returns.
	//
	// Set by [NewConfig] to [NewLengthPrefixedPacketStream], a minimal
	// length-prefixed framing suitable for tests and simple deployments.
	NewPacketStream func(conn net.Conn, codec TagStructCodec, logger SLogger) PacketStream

	// Codec builds and parses tag-structs (§3 "Tag-struct").
	//
	// Set by [NewConfig] to [NewDefaultTagStructCodec].
	Codec TagStructCodec
}

// NewConfig creates a [*Config] with sensible defaults, mirroring the
// teacher's [NewConfig] convention of returning a fully-usable zero state.
func NewConfig() *Config {
	cfg := &Config{
		Dialer:                   &net.Dialer{},
		ErrClassifier:            DefaultErrClassifier,
		Logger:                   DefaultSLogger(),
		TimeNow:                  time.Now,
		RuntimePathFunc:          DefaultRuntimePathFunc,
		SystemRuntimePath:        "/run/pulse",
		LegacyRuntimePaths:       true,
		AutoConnectDisplay:       false,
		EnableAutospawnByDefault: true,
		SpawnBinary:              DefaultSpawnBinary,
		FDCloseFloor:             3,
		ProtocolVersion:          ProtocolVersion,
		MinProtocolVersion:       8,
		DefaultTimeout:           5 * time.Second,
		Pool:                     NewLocalMemblockPool(),
		Codec:                    NewDefaultTagStructCodec(),
	}
	cfg.Spawner = NewOSSpawner(cfg.SpawnBinary, cfg.FDCloseFloor)
	cfg.PresenceWatcherFactory = NewDBusPresenceWatcher
	cfg.NewPacketStream = func(conn net.Conn, codec TagStructCodec, logger SLogger) PacketStream {
		return NewLengthPrefixedPacketStream(conn, codec, logger)
	}
	return cfg
}
