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

// Package pty abstracts the two ways the supervisor can attach the
// assistant subprocess to a pseudo-terminal: a native platform PTY, or a
// bridge backend, used when the native path fails to spawn, that opens the
// PTY pair in-process and attaches the child to it directly (no helper
// process).
package pty

import (
	"io"
	"os/exec"
)

// Size is a terminal window size in character cells.
type Size struct {
	Rows uint16
	Cols uint16
}

// DefaultSize is the initial window the supervisor requests on spawn.
var DefaultSize = Size{Rows: 40, Cols: 120}

// Session is a running subprocess attached to a pseudo-terminal. Reads and
// writes are byte-accurate: no line buffering is performed above this
// layer.
type Session interface {
	io.Reader
	io.Writer
	io.Closer

	// SetSize resizes the terminal window.
	SetSize(s Size) error

	// Wait blocks until the subprocess exits and returns its error, if any.
	Wait() error

	// Pid reports the subprocess's process id, for diagnostics.
	Pid() int
}

// Provider starts a command attached to a pseudo-terminal.
type Provider interface {
	Start(cmd *exec.Cmd, size Size) (Session, error)
	// Name identifies the backend for logging and metrics ("native" or
	// "bridge").
	Name() string
}

// ErrSpawnFailed wraps a spawn failure that should trigger fallback to the
// next provider in the chain.
type ErrSpawnFailed struct {
	Backend string
	Cause   error
}

func (e *ErrSpawnFailed) Error() string {
	return "pty: " + e.Backend + " backend failed to spawn: " + e.Cause.Error()
}

func (e *ErrSpawnFailed) Unwrap() error { return e.Cause }
