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

// Package scanner consumes the assistant subprocess's raw PTY output and
// recognizes structured events inside it: permission prompts and unified
// diffs.
package scanner

import (
	"regexp"

	"github.com/google/uuid"

	"github.com/doomcode/relay/internal/metrics"
)

// Action tags a recognized permission prompt.
const (
	ActionFileRead     = "file_read"
	ActionFileWrite    = "file_write"
	ActionShellCommand = "shell_command"
	ActionOther        = "other"
)

// defaultMaxWindowBytes is the buffer hygiene ceiling from §4.5.3: past
// this, the window is truncated to its tail. Overridable via
// NewPermissionDetectorWithWindow (wired from ControllerConfig.ScanWindowBytes).
const defaultMaxWindowBytes = 10000

// truncatedTailFraction: on truncation, the window keeps this fraction of
// its configured ceiling as the surviving tail.
const truncatedTailFraction = 0.5

// PermissionRequest is one detected approval prompt awaiting an operator
// decision.
type PermissionRequest struct {
	RequestID   string
	Action      string
	Description string
	Details     map[string]string
}

// permissionPattern pairs a regex with the action tag and a detail
// extractor for its capture groups.
type permissionPattern struct {
	re     *regexp.Regexp
	action string
	detail func(match []string) (description string, details map[string]string)
}

// permissionPatterns is fixed and ordered: the first pattern that matches
// wins. Patterns are deliberately loose about surrounding whitespace since
// PTY output often carries ANSI cursor-movement noise around prompt text.
var permissionPatterns = []permissionPattern{
	{
		re:     regexp.MustCompile(`(?i)do you want to (?:write|create) (?:to )?(?:file )?([^\s?]+)\s*\?`),
		action: ActionFileWrite,
		detail: func(m []string) (string, map[string]string) {
			return "Write to file: " + m[1], map[string]string{"path": m[1]}
		},
	},
	{
		re:     regexp.MustCompile(`(?i)(?:allow|grant) read access to ([^\s?]+)\s*\?`),
		action: ActionFileRead,
		detail: func(m []string) (string, map[string]string) {
			return "Read file: " + m[1], map[string]string{"path": m[1]}
		},
	},
	{
		re:     regexp.MustCompile(`(?i)(?:run|execute) (?:the )?command[:\s]+['"]?([^'"\n?]+)['"]?\s*\?`),
		action: ActionShellCommand,
		detail: func(m []string) (string, map[string]string) {
			return "Run command: " + m[1], map[string]string{"command": m[1]}
		},
	},
	{
		re:     regexp.MustCompile(`(?i)(?:proceed|continue|confirm)\s*\?\s*\[y/n\]`),
		action: ActionOther,
		detail: func(m []string) (string, map[string]string) {
			return "Confirm to proceed", nil
		},
	},
}

// PermissionDetector recognizes approval prompts in a rolling output
// window. It is not safe for concurrent use; the supervisor owns one per
// subprocess and feeds it serially.
type PermissionDetector struct {
	window    []byte
	maxWindow int
	tailSize  int
}

// NewPermissionDetector returns a detector with an empty window bounded at
// defaultMaxWindowBytes.
func NewPermissionDetector() *PermissionDetector {
	return NewPermissionDetectorWithWindow(defaultMaxWindowBytes)
}

// NewPermissionDetectorWithWindow returns a detector honoring the
// controller config's scan_window_bytes. A non-positive size falls back to
// defaultMaxWindowBytes.
func NewPermissionDetectorWithWindow(maxWindow int) *PermissionDetector {
	if maxWindow <= 0 {
		maxWindow = defaultMaxWindowBytes
	}
	return &PermissionDetector{maxWindow: maxWindow, tailSize: int(float64(maxWindow) * truncatedTailFraction)}
}

// Feed appends a chunk of subprocess output and reports the first
// recognized prompt, if any. On a match the window is reset, matching
// §4.5.3's "on detection, scanners reset their windows".
func (d *PermissionDetector) Feed(chunk []byte) *PermissionRequest {
	d.window = append(d.window, chunk...)
	if len(d.window) > d.maxWindow {
		d.window = d.window[len(d.window)-d.tailSize:]
	}

	for _, p := range permissionPatterns {
		loc := p.re.FindSubmatch(d.window)
		if loc == nil {
			continue
		}
		match := make([]string, 0, len(loc))
		for _, g := range loc {
			match = append(match, string(g))
		}
		description, details := p.detail(match)
		req := &PermissionRequest{
			RequestID:   uuid.NewString(),
			Action:      p.action,
			Description: description,
			Details:     details,
		}
		d.window = nil
		metrics.ScannerDetections.WithLabelValues("permission_prompt").Inc()
		return req
	}
	return nil
}
