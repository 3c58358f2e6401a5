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

func TestSupervisor_StartRunsAndEchoesOutput(t *testing.T) {
	if _, err := exec.LookPath("cat"); err != nil {
		t.Skip("cat not available")
	}

	sup := New(logger.NewDefaultLogger(), pty.NativeProvider{}, patch.NewTracker())

	outputs := make(chan *payload.Envelope, 16)
	sup.OnOutput = func(p *payload.Envelope) { outputs <- p }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, sup.Start(ctx, Config{AgentID: "agent-1", Binary: "cat", EnterMode: EnterCR}))
	require.Eventually(t, func() bool { return sup.Status() == StatusRunning }, time.Second, 10*time.Millisecond)

	require.NoError(t, sup.SendPrompt(ctx, "hello"))

	select {
	case out := <-outputs:
		require.Equal(t, payload.TypeTerminalOutput, out.Type)
		require.Contains(t, out.Data, "hello")
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for echoed output")
	}

	require.NoError(t, sup.Stop())
	require.Eventually(t, func() bool { return sup.Status() == StatusIdle }, time.Second, 10*time.Millisecond)
}

func TestSupervisor_RetryRequiresIdleAndPriorPrompt(t *testing.T) {
	sup := New(logger.NewDefaultLogger(), pty.NativeProvider{}, patch.NewTracker())
	err := sup.Retry(context.Background())
	require.Error(t, err)
}

func TestSupervisor_HandlePermissionDecisionRejectsUnknownRequest(t *testing.T) {
	sup := New(logger.NewDefaultLogger(), pty.NativeProvider{}, patch.NewTracker())
	err := sup.HandlePermissionDecision("does-not-exist", "approve")
	require.Error(t, err)
}
