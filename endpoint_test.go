// SPDX-License-Identifier: GPL-3.0-or-later

package paconn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEndpointUnix(t *testing.T) {
	ep, err := ParseEndpoint("unix:/run/pulse/native")
	require.NoError(t, err)
	assert.Equal(t, Endpoint{Kind: EndpointUnix, Path: "/run/pulse/native"}, ep)
	assert.Equal(t, "unix", ep.Network())
	assert.Equal(t, "/run/pulse/native", ep.Address())
	assert.Equal(t, "unix:/run/pulse/native", ep.String())
}

func TestParseEndpointUnixEmptyPath(t *testing.T) {
	_, err := ParseEndpoint("unix:")
	assert.Error(t, err)
}

func TestParseEndpointTCP4(t *testing.T) {
	ep, err := ParseEndpoint("tcp4:127.0.0.1:4713")
	require.NoError(t, err)
	assert.Equal(t, Endpoint{Kind: EndpointTCP4, Host: "127.0.0.1", Port: 4713}, ep)
	assert.Equal(t, "tcp", ep.Network())
	assert.Equal(t, "127.0.0.1:4713", ep.Address())
}

func TestParseEndpointTCP4DefaultPort(t *testing.T) {
	ep, err := ParseEndpoint("tcp4:127.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, 0, ep.Port)
	assert.Equal(t, "127.0.0.1:4713", ep.Address())
}

func TestParseEndpointTCP6(t *testing.T) {
	ep, err := ParseEndpoint("tcp6:[::1]:4713")
	require.NoError(t, err)
	assert.Equal(t, Endpoint{Kind: EndpointTCP6, Host: "::1", Port: 4713}, ep)
	assert.Equal(t, "tcp6:[::1]:4713", ep.String())
}

func TestParseEndpointTCP6Unterminated(t *testing.T) {
	_, err := ParseEndpoint("tcp6:[::1")
	assert.Error(t, err)
}

func TestParseEndpointBareHost(t *testing.T) {
	ep, err := ParseEndpoint("example.org:4713")
	require.NoError(t, err)
	assert.Equal(t, Endpoint{Kind: EndpointHost, Host: "example.org", Port: 4713}, ep)
}

func TestParseEndpointEmpty(t *testing.T) {
	_, err := ParseEndpoint("")
	assert.Error(t, err)
}

func TestParseEndpointList(t *testing.T) {
	list, err := ParseEndpointList("unix:/run/pulse/native tcp4:127.0.0.1:4713")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, EndpointUnix, list[0].Kind)
	assert.Equal(t, EndpointTCP4, list[1].Kind)
}

func TestParseEndpointListStripsCookieTag(t *testing.T) {
	list, err := ParseEndpointList("{abcd1234}unix:/run/pulse/native")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "/run/pulse/native", list[0].Path)
}

func TestParseEndpointListEmpty(t *testing.T) {
	_, err := ParseEndpointList("   ")
	assert.Error(t, err)
}

func TestStripCookieTag(t *testing.T) {
	assert.Equal(t, "unix:/foo", stripCookieTag("{deadbeef}unix:/foo"))
	assert.Equal(t, "unix:/foo", stripCookieTag("unix:/foo"))
	assert.Equal(t, "{unterminated", stripCookieTag("{unterminated"))
}

func TestBuildEndpointListExplicit(t *testing.T) {
	cfg := NewConfig()
	list, err := BuildEndpointList("unix:/custom/path", cfg, MapEnviron{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "/custom/path", list[0].Path)
}

func TestBuildEndpointListFallbackCascade(t *testing.T) {
	cfg := NewConfig()
	cfg.SystemRuntimePath = "/run/pulse"
	cfg.LegacyRuntimePaths = false
	env := MapEnviron{"XDG_RUNTIME_DIR": "/run/user/1000"}

	list, err := BuildEndpointList("", cfg, env)
	require.NoError(t, err)
	require.NotEmpty(t, list)

	assert.Equal(t, Endpoint{Kind: EndpointUnix, Path: "/run/user/1000/pulse/native"}, list[0])

	var sawSystem, sawTCP4, sawTCP6 bool
	for _, ep := range list {
		if ep.Kind == EndpointUnix && ep.Path == "/run/pulse/native" {
			sawSystem = true
		}
		if ep.Kind == EndpointTCP4 && ep.Host == "127.0.0.1" {
			sawTCP4 = true
		}
		if ep.Kind == EndpointTCP6 && ep.Host == "::1" {
			sawTCP6 = true
		}
	}
	assert.True(t, sawSystem)
	assert.True(t, sawTCP4)
	assert.True(t, sawTCP6)
}

func TestBuildEndpointListNoSystemPath(t *testing.T) {
	cfg := NewConfig()
	cfg.SystemRuntimePath = ""
	cfg.LegacyRuntimePaths = false
	cfg.RuntimePathFunc = func(Environ) string { return "" }

	list, err := BuildEndpointList("", cfg, MapEnviron{})
	require.NoError(t, err)
	for _, ep := range list {
		assert.NotEqual(t, "/run/pulse/native", ep.Path)
	}
}

func TestBuildEndpointListAutoConnectDisplay(t *testing.T) {
	cfg := NewConfig()
	cfg.SystemRuntimePath = ""
	cfg.LegacyRuntimePaths = false
	cfg.RuntimePathFunc = func(Environ) string { return "" }
	cfg.AutoConnectDisplay = true
	env := MapEnviron{"DISPLAY": "myhost:0.0"}

	list, err := BuildEndpointList("", cfg, env)
	require.NoError(t, err)

	var sawDisplayHost bool
	for _, ep := range list {
		if ep.Kind == EndpointHost && ep.Host == "myhost" {
			sawDisplayHost = true
		}
	}
	assert.True(t, sawDisplayHost)
}

func TestRePrependRuntimeSockets(t *testing.T) {
	cfg := NewConfig()
	env := MapEnviron{"XDG_RUNTIME_DIR": "/run/user/1000"}

	existing := []Endpoint{{Kind: EndpointTCP4, Host: "127.0.0.1"}}
	list := RePrependRuntimeSockets(existing, cfg, env)

	require.Len(t, list, 2)
	assert.Equal(t, Endpoint{Kind: EndpointUnix, Path: "/run/user/1000/pulse/native"}, list[0])
	assert.Equal(t, existing[0], list[1])
}
