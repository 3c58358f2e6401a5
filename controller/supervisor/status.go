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

// Package supervisor owns the PTY-attached assistant subprocess: its
// lifecycle state machine, input injection discipline, and the scanners
// and patch tracker wired to its output stream.
package supervisor

// Status is the supervisor's lifecycle state, per §4.5.2's transition
// diagram.
type Status string

const (
	StatusIdle          Status = "idle"
	StatusRunning       Status = "running"
	StatusWaitingInput  Status = "waiting_input"
	StatusError         Status = "error"
)

// EnterMode selects how the supervisor terminates an injected line.
type EnterMode string

const (
	EnterCR   EnterMode = "cr"
	EnterLF   EnterMode = "lf"
	EnterCRLF EnterMode = "crlf"
)

// InputStyle selects how a prompt is delivered to the subprocess.
type InputStyle string

const (
	// StyleLineWrite appends the enter suffix once and writes in one shot.
	StyleLineWrite InputStyle = "line_write"
	// StyleTypewrite sends one code point at a time with a force-submit tail.
	StyleTypewrite InputStyle = "typewrite"
)
