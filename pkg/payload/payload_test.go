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

package payload

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecode_TerminalOutputRoundTrip(t *testing.T) {
	p := &Envelope{Type: TypeTerminalOutput, Stream: "stdout", Data: "hello\n", Sequence: 42}
	raw, err := Encode(p)
	require.NoError(t, err)

	decoded, err := Decode(raw)
	require.NoError(t, err)
	require.Equal(t, TypeTerminalOutput, decoded.Type)
	require.Equal(t, uint64(42), decoded.Sequence)
}

func TestEncode_PermissionRequestOmitsUnrelatedFields(t *testing.T) {
	p := &Envelope{
		Type:        TypePermissionRequest,
		RequestID:   "req-1",
		Action:      "file_write",
		Description: "Write to file: README.md",
		Details:     map[string]string{"path": "README.md"},
	}
	raw, err := Encode(p)
	require.NoError(t, err)

	decoded, err := Decode(raw)
	require.NoError(t, err)
	require.Equal(t, "file_write", decoded.Action)
	require.Equal(t, "README.md", decoded.Details["path"])
	require.Empty(t, decoded.PatchID)
	require.Empty(t, decoded.Stream)
}

func TestEncodeDecode_AgentControlConfigure(t *testing.T) {
	temp := 0.7
	p := &Envelope{
		Type:    TypeAgentControl,
		Command: "configure",
		AgentID: "agent-1",
		Config: &AgentConfig{
			Model:           "claude",
			Temperature:     &temp,
			ToolPermissions: []string{"shell", "file_write"},
		},
	}
	raw, err := Encode(p)
	require.NoError(t, err)

	decoded, err := Decode(raw)
	require.NoError(t, err)
	require.Equal(t, "configure", decoded.Command)
	require.NotNil(t, decoded.Config)
	require.Equal(t, 0.7, *decoded.Config.Temperature)
	require.Equal(t, []string{"shell", "file_write"}, decoded.Config.ToolPermissions)
}
