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

package supervisor

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/doomcode/relay/controller/patch"
	"github.com/doomcode/relay/controller/pty"
	"github.com/doomcode/relay/internal/logger"
	"github.com/doomcode/relay/pkg/payload"
)

func TestHandleAgentControl_Configure(t *testing.T) {
	sup := New(logger.NewDefaultLogger(), pty.NativeProvider{}, patch.NewTracker())

	temp := 0.2
	resp, err := sup.HandleAgentControl(context.Background(), &payload.Envelope{
		Type:    payload.TypeAgentControl,
		Command: CommandConfigure,
		AgentID: "agent-1",
		Config:  &payload.AgentConfig{Model: "claude", Temperature: &temp},
	}, nil)
	require.NoError(t, err)
	require.Equal(t, payload.TypeAgentStatusUpdate, resp.Type)

	applied := sup.LastAppliedConfig()
	require.NotNil(t, applied)
	require.Equal(t, "claude", applied.Model)
	require.Equal(t, 0.2, *applied.Temperature)
}

func TestHandleAgentControl_StartThenStop(t *testing.T) {
	if _, err := exec.LookPath("cat"); err != nil {
		t.Skip("cat not available")
	}

	sup := New(logger.NewDefaultLogger(), pty.NativeProvider{}, patch.NewTracker())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	spawn := func(agentID string) (Config, error) {
		return Config{AgentID: agentID, Binary: "cat", EnterMode: EnterCR}, nil
	}

	resp, err := sup.HandleAgentControl(ctx, &payload.Envelope{
		Type: payload.TypeAgentControl, Command: CommandStart, AgentID: "agent-1",
	}, spawn)
	require.NoError(t, err)
	require.Equal(t, payload.TypeAgentStatusUpdate, resp.Type)
	require.Eventually(t, func() bool { return sup.Status() == StatusRunning }, time.Second, 10*time.Millisecond)

	resp, err = sup.HandleAgentControl(ctx, &payload.Envelope{
		Type: payload.TypeAgentControl, Command: CommandStop, AgentID: "agent-1",
	}, spawn)
	require.NoError(t, err)
	require.Equal(t, string(StatusIdle), resp.Status)
}

func TestHandleAgentControl_UnrecognizedCommand(t *testing.T) {
	sup := New(logger.NewDefaultLogger(), pty.NativeProvider{}, patch.NewTracker())
	_, err := sup.HandleAgentControl(context.Background(), &payload.Envelope{Command: "bogus"}, nil)
	require.Error(t, err)
}
