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
	"os/exec"
	"syscall"

	"github.com/creack/pty"
	"golang.org/x/sys/unix"
)

// EnterMode controls the slave terminal's input line discipline, set only
// by BridgeProvider (NativeProvider leaves the platform default discipline
// untouched).
type EnterMode int

const (
	EnterModeCR EnterMode = iota
	EnterModeLF
	EnterModeCRLF
)

// BridgeProvider allocates the master/slave PTY pair itself with pty.Open
// and attaches the child to the slave directly, rather than delegating to
// creack/pty's StartWithSize convenience path. Used when NativeProvider
// fails to spawn (the "posix_spawnp failed" case documented in §4.5.2).
// Owning the slave descriptor directly also lets it turn off ICRNL for
// lf/crlf enter modes.
type BridgeProvider struct {
	EnterMode EnterMode
}

func (BridgeProvider) Name() string { return "bridge" }

func (b BridgeProvider) Start(cmd *exec.Cmd, size Size) (Session, error) {
	prepareEnv(cmd)

	master, slave, err := pty.Open()
	if err != nil {
		return nil, &ErrSpawnFailed{Backend: "bridge", Cause: err}
	}
	defer slave.Close()

	if err := pty.Setsize(master, &pty.Winsize{Rows: size.Rows, Cols: size.Cols}); err != nil {
		master.Close()
		return nil, &ErrSpawnFailed{Backend: "bridge", Cause: err}
	}

	if b.EnterMode != EnterModeCR {
		if err := disableICRNL(slave.Fd()); err != nil {
			master.Close()
			return nil, &ErrSpawnFailed{Backend: "bridge", Cause: err}
		}
	}

	cmd.Stdin = slave
	cmd.Stdout = slave
	cmd.Stderr = slave
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid:  true,
		Setctty: true,
		Ctty:    int(slave.Fd()),
	}

	if err := cmd.Start(); err != nil {
		master.Close()
		return nil, &ErrSpawnFailed{Backend: "bridge", Cause: err}
	}

	return &nativeSession{ptmx: master, cmd: cmd}, nil
}

// disableICRNL clears the ICRNL flag on fd's termios, so CR bytes written
// by the supervisor reach the assistant unmodified instead of being
// translated to LF by the line discipline.
func disableICRNL(fd uintptr) error {
	term, err := unix.IoctlGetTermios(int(fd), ioctlGetTermios)
	if err != nil {
		return err
	}
	term.Iflag &^= unix.ICRNL
	return unix.IoctlSetTermios(int(fd), ioctlSetTermios, term)
}
