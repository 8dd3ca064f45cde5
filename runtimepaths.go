// SPDX-License-Identifier: GPL-3.0-or-later

package paconn

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
)

// Environ abstracts environment-variable lookups so that [BuildEndpointList]
// and friends can be unit tested without touching the real process
// environment (§6.4).
//
// [OSEnviron] satisfies this interface using the real environment.
type Environ interface {
	Getenv(key string) string
}

// OSEnviron is the [Environ] backed by [os.Getenv].
type OSEnviron struct{}

var _ Environ = OSEnviron{}

// Getenv implements [Environ].
func (OSEnviron) Getenv(key string) string {
	return os.Getenv(key)
}

// MapEnviron is an [Environ] backed by an in-memory map, for tests.
type MapEnviron map[string]string

var _ Environ = MapEnviron(nil)

// Getenv implements [Environ].
func (m MapEnviron) Getenv(key string) string {
	return m[key]
}

// RuntimeSocketPaths returns the per-user runtime socket candidates, highest
// priority first: the current runtime path, as produced by
// [Config.RuntimePathFunc] (§4.1 bullet 1, §6.4 "Per-user runtime socket
// path is derived from the library's runtime-path helper").
func RuntimeSocketPaths(cfg *Config, env Environ) []string {
	dir := cfg.RuntimePathFunc(env)
	if dir == "" {
		return nil
	}
	return []string{filepath.Join(dir, "native")}
}

// LegacyRuntimeSocketPaths returns the two legacy per-user socket paths of
// §4.1 bullet 1 / §6.4, each probed only if its owner uid matches the
// caller's uid. Ownership is checked by [pathOwnedByCaller]; unreadable or
// foreign-owned paths are silently skipped, matching the "probed only if
// owner uid matches" contract (a failed probe is not an error, just a
// lower-priority candidate that never materializes).
func LegacyRuntimeSocketPaths(env Environ) []string {
	var out []string
	u, err := user.Current()
	username := ""
	if err == nil {
		username = u.Username
	}

	tmpPath := fmt.Sprintf("/tmp/pulse-%s/native", username)
	if pathOwnedByCaller(tmpPath) {
		out = append(out, tmpPath)
	}

	home := env.Getenv("HOME")
	if home != "" {
		homePath := filepath.Join(home, ".pulse", "native")
		if pathOwnedByCaller(homePath) {
			out = append(out, homePath)
		}
	}
	return out
}

// pathOwnedByCaller reports whether the directory containing path is
// owned by the calling process's uid; path itself is not stat'd. A
// directory that cannot be stat'd is treated as not owned, so a probe for
// a nonexistent legacy location degrades to "not a candidate" rather than
// an error.
func pathOwnedByCaller(path string) bool {
	info, err := os.Stat(filepath.Dir(path))
	if err != nil {
		return false
	}
	return statOwnerIsCaller(info)
}

// SystemRuntimeSocketPath returns the system-wide runtime socket candidate
// of §4.1 bullet 2, or "" if the configuration does not name one.
func SystemRuntimeSocketPath(cfg *Config) string {
	if cfg.SystemRuntimePath == "" {
		return ""
	}
	return filepath.Join(cfg.SystemRuntimePath, "native")
}

// DefaultRuntimePathFunc is the default [Config.RuntimePathFunc]: the
// `XDG_RUNTIME_DIR`-style per-user runtime directory, with a `/pulse`
// subdirectory, falling back to nothing when unset (the caller is then left
// with only the system-wide and TCP loopback candidates).
func DefaultRuntimePathFunc(env Environ) string {
	dir := env.Getenv("XDG_RUNTIME_DIR")
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "pulse")
}
