// SPDX-License-Identifier: GPL-3.0-or-later

package paconn

import (
	"fmt"
	"net"
	"strings"
)

// EndpointKind identifies the transport family of an [Endpoint].
type EndpointKind int

const (
	// EndpointUnix is a `unix:/path` candidate.
	EndpointUnix EndpointKind = iota

	// EndpointTCP4 is a `tcp4:host[:port]` candidate.
	EndpointTCP4

	// EndpointTCP6 is a `tcp6:[host][:port]` candidate.
	EndpointTCP6

	// EndpointHost is a bare `host` candidate, resolved the same way as
	// [EndpointTCP4]/[EndpointTCP6] by the dialer ("tcp" network, letting
	// the resolver pick the family).
	EndpointHost
)

// DefaultPort is the library's native-protocol TCP port (§6.3).
const DefaultPort = 4713

// Endpoint is a single parsed candidate server address (§3 "Endpoint string").
type Endpoint struct {
	Kind EndpointKind
	Path string // valid when Kind == EndpointUnix
	Host string // valid when Kind != EndpointUnix
	Port int    // valid when Kind != EndpointUnix; 0 means DefaultPort
}

// Network returns the dial network ("unix" or "tcp") for e.
func (e Endpoint) Network() string {
	if e.Kind == EndpointUnix {
		return "unix"
	}
	return "tcp"
}

// Address returns the dial address for e, suitable for [Dialer.DialContext].
func (e Endpoint) Address() string {
	if e.Kind == EndpointUnix {
		return e.Path
	}
	port := e.Port
	if port == 0 {
		port = DefaultPort
	}
	return net.JoinHostPort(e.Host, fmt.Sprint(port))
}

// String renders e back into the `kind:value` syntax of §6.3.
func (e Endpoint) String() string {
	switch e.Kind {
	case EndpointUnix:
		return "unix:" + e.Path
	case EndpointTCP4:
		return fmt.Sprintf("tcp4:%s", e.Address())
	case EndpointTCP6:
		return fmt.Sprintf("tcp6:[%s]:%d", e.Host, e.portOrDefault())
	default:
		return e.Host
	}
}

func (e Endpoint) portOrDefault() int {
	if e.Port == 0 {
		return DefaultPort
	}
	return e.Port
}

// ParseEndpoint parses a single candidate in the `unix:/path`, `tcp4:host[:port]`,
// `tcp6:[host][:port]`, or bare `host` syntax of §6.3.
func ParseEndpoint(s string) (Endpoint, error) {
	switch {
	case strings.HasPrefix(s, "unix:"):
		path := strings.TrimPrefix(s, "unix:")
		if path == "" {
			return Endpoint{}, fmt.Errorf("paconn: empty unix socket path in %q", s)
		}
		return Endpoint{Kind: EndpointUnix, Path: path}, nil

	case strings.HasPrefix(s, "tcp4:"):
		host, port, err := splitHostPort(strings.TrimPrefix(s, "tcp4:"), false)
		if err != nil {
			return Endpoint{}, err
		}
		return Endpoint{Kind: EndpointTCP4, Host: host, Port: port}, nil

	case strings.HasPrefix(s, "tcp6:"):
		host, port, err := splitHostPort(strings.TrimPrefix(s, "tcp6:"), true)
		if err != nil {
			return Endpoint{}, err
		}
		return Endpoint{Kind: EndpointTCP6, Host: host, Port: port}, nil

	case s == "":
		return Endpoint{}, fmt.Errorf("paconn: empty server candidate")

	default:
		host, port, err := splitHostPort(s, strings.Contains(s, "["))
		if err != nil {
			return Endpoint{}, err
		}
		return Endpoint{Kind: EndpointHost, Host: host, Port: port}, nil
	}
}

// splitHostPort splits "host:port", "[host]:port", or "host" into its parts.
// If no port is present, port is returned as 0 (meaning [DefaultPort]).
func splitHostPort(s string, bracketed bool) (host string, port int, err error) {
	if s == "" {
		return "", 0, fmt.Errorf("paconn: empty host in endpoint")
	}
	if bracketed && strings.HasPrefix(s, "[") {
		end := strings.Index(s, "]")
		if end < 0 {
			return "", 0, fmt.Errorf("paconn: unterminated bracketed host in %q", s)
		}
		host = s[1:end]
		rest := s[end+1:]
		if rest == "" {
			return host, 0, nil
		}
		rest = strings.TrimPrefix(rest, ":")
		return host, atoiPort(rest), nil
	}
	idx := strings.LastIndex(s, ":")
	if idx < 0 {
		return s, 0, nil
	}
	return s[:idx], atoiPort(s[idx+1:]), nil
}

func atoiPort(s string) int {
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0
		}
		n = n*10 + int(c-'0')
	}
	return n
}

// ParseEndpointList splits a space-separated server string into an ordered
// list of [Endpoint] values, consumed left to right (§3, §4.1).
//
// A leading `{cookie-spec}` tag on the whole string is stripped before
// parsing, since it addresses the cookie, not the candidate list (§3, §6.3).
func ParseEndpointList(s string) ([]Endpoint, error) {
	s = stripCookieTag(s)
	var out []Endpoint
	for _, field := range strings.Fields(s) {
		ep, err := ParseEndpoint(field)
		if err != nil {
			return nil, err
		}
		out = append(out, ep)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("paconn: no server candidates in %q", s)
	}
	return out, nil
}

// stripCookieTag removes a leading `{tag}` prefix from a server string, as
// consumed by [Context.GetServer] when reporting the effective server (§3,
// §6.3). Returns s unchanged if it carries no such prefix.
func stripCookieTag(s string) string {
	if !strings.HasPrefix(s, "{") {
		return s
	}
	end := strings.Index(s, "}")
	if end < 0 {
		return s
	}
	return s[end+1:]
}

// BuildEndpointList assembles the ordered candidate server list described in
// §4.1. When explicit is non-empty, it is parsed verbatim and autospawn must
// be disabled by the caller for that attempt. When explicit is empty, the
// fallback cascade of §4.1 is built from cfg and env.
func BuildEndpointList(explicit string, cfg *Config, env Environ) ([]Endpoint, error) {
	if explicit != "" {
		return ParseEndpointList(explicit)
	}

	var out []Endpoint

	for _, p := range RuntimeSocketPaths(cfg, env) {
		out = append(out, Endpoint{Kind: EndpointUnix, Path: p})
	}

	if cfg.LegacyRuntimePaths {
		for _, p := range LegacyRuntimeSocketPaths(env) {
			out = append(out, Endpoint{Kind: EndpointUnix, Path: p})
		}
	}

	if sp := SystemRuntimeSocketPath(cfg); sp != "" {
		out = append(out, Endpoint{Kind: EndpointUnix, Path: sp})
	}

	out = append(out,
		Endpoint{Kind: EndpointTCP4, Host: "127.0.0.1"},
		Endpoint{Kind: EndpointTCP6, Host: "::1"},
	)

	if cfg.AutoConnectDisplay {
		if host := displayHost(env); host != "" {
			out = append(out, Endpoint{Kind: EndpointHost, Host: host})
		}
	}

	return out, nil
}

// displayHost extracts the host portion of the DISPLAY environment variable
// (§4.1 bullet 5, §6.4), e.g. "host:0.0" -> "host". Returns "" when DISPLAY
// is unset or carries no host portion (a bare ":0" display).
func displayHost(env Environ) string {
	d := env.Getenv("DISPLAY")
	if d == "" {
		return ""
	}
	idx := strings.LastIndex(d, ":")
	if idx <= 0 {
		return ""
	}
	return d[:idx]
}

// RePrependRuntimeSockets re-prepends the per-user runtime socket
// candidates to list, as required after a successful autospawn (§4.1
// "After a successful autospawn").
func RePrependRuntimeSockets(list []Endpoint, cfg *Config, env Environ) []Endpoint {
	var prefix []Endpoint
	for _, p := range RuntimeSocketPaths(cfg, env) {
		prefix = append(prefix, Endpoint{Kind: EndpointUnix, Path: p})
	}
	return append(prefix, list...)
}
