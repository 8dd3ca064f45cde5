// SPDX-License-Identifier: GPL-3.0-or-later

package paconn

import (
	"context"
	"errors"
	"net"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// NewConnectFunc populates all fields from Config and the provided logger.
func TestNewConnectFunc(t *testing.T) {
	cfg := NewConfig()
	logger := DefaultSLogger()

	fn := NewConnectFunc(cfg, logger)

	require.NotNil(t, fn)
	assert.NotNil(t, fn.Dialer)
	assert.NotNil(t, fn.Logger)
	assert.NotNil(t, fn.TimeNow)
	assert.NotNil(t, fn.ErrClassifier)
}

// Call dials the endpoint and returns a net.Conn or an error.
func TestConnectFunc(t *testing.T) {
	tests := []struct {
		// name describes what this test case verifies.
		name string

		// dialer is the mock dialer to use.
		dialer *funcDialer

		// endpoint is the candidate to dial.
		endpoint Endpoint

		// wantErr indicates whether we expect an error.
		wantErr bool
	}{
		{
			name: "successful unix connect",
			dialer: &funcDialer{
				DialContextFunc: func(ctx context.Context, network, address string) (net.Conn, error) {
					conn := newMinimalConn()
					conn.CloseFunc = func() error { return nil }
					return conn, nil
				},
			},
			endpoint: Endpoint{Kind: EndpointUnix, Path: "/run/user/1000/pulse/native"},
			wantErr:  false,
		},

		{
			name: "dial error",
			dialer: &funcDialer{
				DialContextFunc: func(ctx context.Context, network, address string) (net.Conn, error) {
					return nil, errors.New("connection refused")
				},
			},
			endpoint: Endpoint{Kind: EndpointTCP4, Host: "127.0.0.1", Port: DefaultPort},
			wantErr:  true,
		},

		{
			name: "successful tcp4 connect",
			dialer: &funcDialer{
				DialContextFunc: func(ctx context.Context, network, address string) (net.Conn, error) {
					conn := newMinimalConn()
					conn.CloseFunc = func() error { return nil }
					conn.RemoteAddrFunc = func() net.Addr {
						return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: int(DefaultPort)}
					}
					return conn, nil
				},
			},
			endpoint: Endpoint{Kind: EndpointTCP4, Host: "127.0.0.1", Port: DefaultPort},
			wantErr:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			cfg.Dialer = tt.dialer

			fn := NewConnectFunc(cfg, DefaultSLogger())
			conn, err := fn.Call(context.Background(), tt.endpoint)

			if tt.wantErr {
				require.Error(t, err)
				assert.Nil(t, conn)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, conn)
			conn.Close()
		})
	}
}

// Call transparently passes the caller's context to the dialer.
func TestConnectFuncContextTransparency(t *testing.T) {
	tests := []struct {
		// name describes the scenario.
		name string

		// dialer is the mock dialer to use.
		dialer *funcDialer

		// makeCtx builds the context for the call.
		makeCtx func() (context.Context, context.CancelFunc)
	}{
		{
			name: "pre-expired context",
			dialer: &funcDialer{
				DialContextFunc: func(ctx context.Context, network, address string) (net.Conn, error) {
					if ctx.Err() != nil {
						return nil, ctx.Err()
					}
					return nil, errors.New("should not reach here")
				},
			},
			makeCtx: func() (context.Context, context.CancelFunc) {
				ctx, cancel := context.WithTimeout(context.Background(), 1*time.Nanosecond)
				time.Sleep(10 * time.Millisecond)
				return ctx, cancel
			},
		},

		{
			name: "context expires during dial",
			dialer: &funcDialer{
				DialContextFunc: func(ctx context.Context, network, address string) (net.Conn, error) {
					time.Sleep(10 * time.Millisecond)
					if ctx.Err() != nil {
						return nil, ctx.Err()
					}
					return nil, errors.New("should not reach here")
				},
			},
			makeCtx: func() (context.Context, context.CancelFunc) {
				return context.WithTimeout(context.Background(), 1*time.Nanosecond)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			cfg.Dialer = tt.dialer

			fn := NewConnectFunc(cfg, DefaultSLogger())

			ctx, cancel := tt.makeCtx()
			defer cancel()

			_, err := fn.Call(ctx, Endpoint{Kind: EndpointTCP4, Host: "127.0.0.1", Port: DefaultPort})
			require.Error(t, err)
		})
	}
}

// Call propagates the caller's context deadline to the dialer.
func TestConnectFuncCallerContextDeadline(t *testing.T) {
	cfg := NewConfig()
	dialCalled := false
	expectedTimeout := 5 * time.Second
	cfg.Dialer = &funcDialer{
		DialContextFunc: func(ctx context.Context, network, address string) (net.Conn, error) {
			dialCalled = true
			deadline, ok := ctx.Deadline()
			assert.True(t, ok, "context should have deadline from caller")
			assert.True(t, time.Until(deadline) <= expectedTimeout)
			return nil, errors.New("expected error")
		},
	}

	fn := NewConnectFunc(cfg, DefaultSLogger())

	// Caller controls timeout via context.WithTimeout
	ctx, cancel := context.WithTimeout(context.Background(), expectedTimeout)
	defer cancel()

	_, _ = fn.Call(ctx, Endpoint{Kind: EndpointTCP4, Host: "127.0.0.1", Port: DefaultPort})

	assert.True(t, dialCalled)
}

// Call emits connectStart/connectDone log events.
func TestConnectFuncLogging(t *testing.T) {
	logger, records := newCapturingLogger()

	cfg := NewConfig()
	cfg.Dialer = &funcDialer{
		DialContextFunc: func(ctx context.Context, network, address string) (net.Conn, error) {
			conn := newMinimalConn()
			conn.CloseFunc = func() error { return nil }
			return conn, nil
		},
	}

	fn := NewConnectFunc(cfg, logger)
	conn, err := fn.Call(context.Background(), Endpoint{Kind: EndpointTCP4, Host: "127.0.0.1", Port: DefaultPort})
	require.NoError(t, err)
	conn.Close()

	require.Len(t, *records, 2)
	assert.Equal(t, "connectStart", (*records)[0].Message)
	assert.Equal(t, "connectDone", (*records)[1].Message)
}

// DialCascadeFunc tries candidates in order and stops at the first success.
func TestDialCascadeFunc(t *testing.T) {
	var dialed []string
	dialer := &funcDialer{
		DialContextFunc: func(ctx context.Context, network, address string) (net.Conn, error) {
			dialed = append(dialed, address)
			if address == "127.0.0.2:4713" {
				conn := newMinimalConn()
				conn.CloseFunc = func() error { return nil }
				return conn, nil
			}
			return nil, &net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}
		},
	}

	cfg := NewConfig()
	cfg.Dialer = dialer
	connect := NewConnectFunc(cfg, DefaultSLogger())
	cascade := NewDialCascadeFunc(connect)

	candidates := []Endpoint{
		{Kind: EndpointTCP4, Host: "127.0.0.1", Port: DefaultPort},
		{Kind: EndpointTCP4, Host: "127.0.0.2", Port: DefaultPort},
		{Kind: EndpointTCP4, Host: "127.0.0.3", Port: DefaultPort},
	}

	outcome, err := cascade.Call(context.Background(), candidates)
	require.NoError(t, err)
	require.NotNil(t, outcome.Conn)
	assert.Equal(t, candidates[1], outcome.Endpoint)
	outcome.Conn.Close()

	assert.Equal(t, []string{"127.0.0.1:4713", "127.0.0.2:4713"}, dialed)
}

// DialCascadeFunc gives up after a non-retryable error.
func TestDialCascadeFuncNonRetryable(t *testing.T) {
	var dialed []string
	dialer := &funcDialer{
		DialContextFunc: func(ctx context.Context, network, address string) (net.Conn, error) {
			dialed = append(dialed, address)
			return nil, errors.New("boom")
		},
	}

	cfg := NewConfig()
	cfg.Dialer = dialer
	connect := NewConnectFunc(cfg, DefaultSLogger())
	cascade := NewDialCascadeFunc(connect)

	candidates := []Endpoint{
		{Kind: EndpointTCP4, Host: "127.0.0.1", Port: DefaultPort},
		{Kind: EndpointTCP4, Host: "127.0.0.2", Port: DefaultPort},
	}

	_, err := cascade.Call(context.Background(), candidates)
	require.Error(t, err)
	assert.Equal(t, []string{"127.0.0.1:4713"}, dialed)
}

// DialCascadeFunc rejects an empty candidate list.
func TestDialCascadeFuncEmpty(t *testing.T) {
	cfg := NewConfig()
	connect := NewConnectFunc(cfg, DefaultSLogger())
	cascade := NewDialCascadeFunc(connect)

	_, err := cascade.Call(context.Background(), nil)
	require.Error(t, err)
}
