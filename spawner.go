// SPDX-License-Identifier: GPL-3.0-or-later

package paconn

import (
	"fmt"
	"log/slog"
	"os/exec"
)

// DefaultSpawnBinary is the daemon executable looked up on $PATH when the
// caller does not override [Config.SpawnBinary] (§4.3).
const DefaultSpawnBinary = "pulseaudio"

// maxSpawnExtraArgs caps the extra arguments appended after `--start`
// (§4.3), guarding against a misconfigured or hostile caller blowing up
// the child's argv.
const maxSpawnExtraArgs = 30

// Spawner is the §4.3 "process autospawn" collaborator: it starts the
// daemon binary as a detached child process and reports whether the
// attempt succeeded. It does not wait for the daemon to become ready to
// serve; that is observed independently via [PresenceWatcher] or a
// subsequent connect retry.
type Spawner interface {
	// Spawn starts binary with args and returns once the attempt has
	// succeeded or failed. [OSSpawner] waits for the direct child to
	// exit and reports failure unless it exits with status 0.
	Spawn(binary string, args []string) error
}

// OSSpawner is the default [Spawner], using [os/exec] to fork and exec the
// daemon binary (§4.3). The child's stdin, stdout and stderr are the null
// device, and it inherits no other descriptor of the calling process:
// [exec.Cmd] passes on only the descriptors listed in ExtraFiles, and
// Spawn lists none.
type OSSpawner struct {
	// Binary is the executable looked up on $PATH.
	Binary string

	// FDCloseFloor records the configured descriptor floor (§4.3). Spawn
	// does not read it.
	FDCloseFloor int

	// Logger is used for structured logging of the spawn attempt.
	Logger SLogger

	// PreFork, AtFork, and PostFork are optional hooks mirroring the
	// original library's `pa_spawn_api` callbacks. All three run in the
	// parent: PreFork and AtFork before the child is started (AtFork
	// last), PostFork right after the start attempt.
	PreFork  func()
	AtFork   func()
	PostFork func()
}

var _ Spawner = &OSSpawner{}

// NewOSSpawner returns an [*OSSpawner] for binary with the given
// FDCloseFloor, matching [Config.Spawner]'s default construction.
func NewOSSpawner(binary string, fdCloseFloor int) *OSSpawner {
	return &OSSpawner{
		Binary:       binary,
		FDCloseFloor: fdCloseFloor,
		Logger:       DefaultSLogger(),
	}
}

// Spawn implements [Spawner]. It resolves binary on $PATH, runs the
// PreFork/AtFork/PostFork hooks around process creation, and starts the
// child detached from the caller's process group so it outlives the
// spawning connection attempt.
func (s *OSSpawner) Spawn(binary string, args []string) error {
	// args is `--start` followed by the extra arguments; the cap applies
	// to the latter.
	if len(args) > maxSpawnExtraArgs+1 {
		args = args[:maxSpawnExtraArgs+1]
	}

	path, err := exec.LookPath(binary)
	if err != nil {
		return fmt.Errorf("paconn: spawn: %w", err)
	}

	if s.PreFork != nil {
		s.PreFork()
	}

	cmd := exec.Command(path, args...)
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.SysProcAttr = daemonSysProcAttr()

	logger := s.Logger
	if logger == nil {
		logger = DefaultSLogger()
	}
	logger.Info("spawnStart", slog.String("binary", path), slog.Any("args", args))

	// AtFork has no equivalent under [os/exec]'s fork+exec API: Go never
	// exposes the child between fork and exec. Callers that need
	// genuine between-fork-and-exec behavior (closing specific fds,
	// changing process groups) must do so via SysProcAttr instead.
	if s.AtFork != nil {
		s.AtFork()
	}

	err = cmd.Start()

	if s.PostFork != nil {
		s.PostFork()
	}

	if err != nil {
		logger.Info("spawnDone", slog.String("binary", path), slog.Any("err", err))
		return fmt.Errorf("paconn: spawn: %w", err)
	}

	logger.Info("spawnDone", slog.String("binary", path), slog.Int("pid", cmd.Process.Pid))

	// §4.3's procedure: the direct child either daemonizes and exits 0,
	// or dies trying. waitForChild retries on EINTR, treats ESRCH (the
	// child already reaped elsewhere) as success, and otherwise requires
	// exit status 0.
	if err := waitForChild(cmd); err != nil {
		logger.Info("spawnWaitFailed", slog.String("binary", path), slog.Any("err", err))
		return fmt.Errorf("paconn: spawn: %w", err)
	}
	return nil
}
