//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: https://github.com/ooni/probe-cli/blob/v3.20.1/internal/netxlite/dialer.go
// Adapted from: https://github.com/rbmk-project/rbmk/blob/v0.17.0/pkg/x/netcore/dialer.go
//

package paconn

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"syscall"
	"time"
)

// Dialer abstracts the [*net.Dialer] behavior.
//
// By making [*ConnectFunc] depend on an abstract implementation we
// allow for unit testing and for using alternative dialers.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// NewConnectFunc returns a new [*ConnectFunc] with the configured dialer.
//
// The cfg argument contains the common configuration for connection-core
// operations.
//
// The logger argument is the [SLogger] to use for structured logging.
func NewConnectFunc(cfg *Config, logger SLogger) *ConnectFunc {
	return &ConnectFunc{
		Dialer:        cfg.Dialer,
		ErrClassifier: cfg.ErrClassifier,
		Logger:        logger,
		TimeNow:       cfg.TimeNow,
	}
}

// ConnectFunc dials a single [Endpoint] candidate (§4.2 "Socket dialer").
//
// Returns either a valid [net.Conn] or an error, never both.
//
// All fields are safe to modify after construction but before first use.
// Fields must not be mutated concurrently with calls to [Call].
type ConnectFunc struct {
	// Dialer is the [Dialer] to use.
	//
	// Set by [NewConnectFunc] from [Config.Dialer].
	Dialer Dialer

	// ErrClassifier classifies errors for structured logging.
	//
	// Set by [NewConnectFunc] from [Config.ErrClassifier].
	ErrClassifier ErrClassifier

	// Logger is the [SLogger] to use (configurable for testing or custom logging).
	//
	// Set by [NewConnectFunc] to the user-provided logger.
	Logger SLogger

	// TimeNow is the function to get the current time (configurable for testing).
	//
	// Set by [NewConnectFunc] from [Config.TimeNow].
	TimeNow func() time.Time
}

var _ Func[Endpoint, net.Conn] = &ConnectFunc{}

// Call invokes the [*ConnectFunc] to connect to the given [Endpoint].
func (op *ConnectFunc) Call(ctx context.Context, ep Endpoint) (net.Conn, error) {
	network, address := ep.Network(), ep.Address()
	t0 := op.TimeNow()
	deadline, _ := ctx.Deadline()
	op.logConnectStart(network, address, t0, deadline)
	conn, err := op.Dialer.DialContext(ctx, network, address)
	op.logConnectDone(network, address, t0, deadline, conn, err)
	return conn, err
}

func (op *ConnectFunc) logConnectStart(network, address string, t0 time.Time, deadline time.Time) {
	op.Logger.Info(
		"connectStart",
		slog.Time("deadline", deadline),
		slog.String("protocol", network),
		slog.String("remoteAddr", address),
		slog.Time("t", t0),
	)
}

func (op *ConnectFunc) logConnectDone(
	network, address string, t0 time.Time, deadline time.Time, conn net.Conn, err error) {
	op.Logger.Info(
		"connectDone",
		slog.Time("deadline", deadline),
		slog.Any("err", err),
		slog.String("errClass", op.ErrClassifier.Classify(err)),
		slog.String("localAddr", connLocalAddr(conn)),
		slog.String("protocol", network),
		slog.String("remoteAddr", address),
		slog.Time("t0", t0),
		slog.Time("t", op.TimeNow()),
	)
}

// DialOutcome is the result of a successful [DialCascadeFunc.Call]: the
// established connection together with the [Endpoint] candidate that
// produced it, needed by the caller to decide things the connection alone
// doesn't reveal (e.g. whether the peer is local, §3 `do_shm` invariant).
type DialOutcome struct {
	Conn     net.Conn
	Endpoint Endpoint
}

// DialCascadeFunc dials a list of [Endpoint] candidates in order (§4.1,
// §4.2), trying the next candidate when the previous one fails with a
// retryable errno and giving up otherwise.
type DialCascadeFunc struct {
	// Connect is the single-candidate dialer. Typically [*ConnectFunc]
	// itself, or a [Compose2] pipeline layering [ObserveConnFunc] and
	// [CancelWatchFunc] instrumentation on top of it.
	Connect Func[Endpoint, net.Conn]
}

// NewDialCascadeFunc returns a new [*DialCascadeFunc].
func NewDialCascadeFunc(connect Func[Endpoint, net.Conn]) *DialCascadeFunc {
	return &DialCascadeFunc{Connect: connect}
}

var _ Func[[]Endpoint, DialOutcome] = &DialCascadeFunc{}

// Call dials each candidate in order and returns the first successful
// connection. If every candidate fails, it returns the last error.
func (op *DialCascadeFunc) Call(ctx context.Context, candidates []Endpoint) (DialOutcome, error) {
	if len(candidates) == 0 {
		return DialOutcome{}, errors.New("paconn: no endpoint candidates to dial")
	}
	var lastErr error
	for i, ep := range candidates {
		conn, err := op.Connect.Call(ctx, ep)
		if err == nil {
			return DialOutcome{Conn: conn, Endpoint: ep}, nil
		}
		lastErr = err
		if i == len(candidates)-1 || !isRetryableConnectError(err) {
			break
		}
	}
	return DialOutcome{}, lastErr
}

// isRetryableConnectError reports whether err should cause the cascade to
// try the next candidate rather than give up immediately (§4.2): refused,
// timed out, host unreachable, or no such socket path all indicate the
// candidate itself is unusable, not that the whole cascade should stop.
func isRetryableConnectError(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ETIMEDOUT) ||
		errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.ENOENT)
}
