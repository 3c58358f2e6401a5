// Copyright (C) 2025 doomcode
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

package pty

import (
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/creack/pty"
)

// NativeProvider spawns the subprocess attached to a real platform PTY via
// creack/pty. This is the preferred backend; it fails to spawn with a
// "posix_spawnp failed" style error on platforms/sandboxes that forbid it,
// in which case the supervisor falls back to BridgeProvider.
type NativeProvider struct{}

func (NativeProvider) Name() string { return "native" }

func (NativeProvider) Start(cmd *exec.Cmd, size Size) (Session, error) {
	prepareEnv(cmd)

	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = 5 * time.Second

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: size.Rows, Cols: size.Cols})
	if err != nil {
		return nil, &ErrSpawnFailed{Backend: "native", Cause: err}
	}

	return &nativeSession{ptmx: ptmx, cmd: cmd}, nil
}

// prepareEnv sets the environment variables §4.5.2 requires so interactive
// assistants reliably produce color output and recognize a real terminal.
func prepareEnv(cmd *exec.Cmd) {
	env := cmd.Env
	if env == nil {
		env = os.Environ()
	}
	shell := os.Getenv("SHELL")
	if shell == "" {
		shell = "/bin/bash"
	}
	cmd.Env = append(env,
		"TERM=xterm-256color",
		"FORCE_COLOR=1",
		"CI=false",
		"SHELL="+shell,
	)
}

type nativeSession struct {
	ptmx *os.File
	cmd  *exec.Cmd
}

func (s *nativeSession) Read(p []byte) (int, error)  { return s.ptmx.Read(p) }
func (s *nativeSession) Write(p []byte) (int, error) { return s.ptmx.Write(p) }
func (s *nativeSession) Close() error                { return s.ptmx.Close() }
func (s *nativeSession) Pid() int                    { return s.cmd.Process.Pid }

func (s *nativeSession) SetSize(size Size) error {
	return pty.Setsize(s.ptmx, &pty.Winsize{Rows: size.Rows, Cols: size.Cols})
}

func (s *nativeSession) Wait() error {
	return s.cmd.Wait()
}
