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
	"bufio"
	"os/exec"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNativeProvider_SpawnEchoesInput(t *testing.T) {
	if _, err := exec.LookPath("cat"); err != nil {
		t.Skip("cat not available")
	}

	cmd := exec.Command("cat")
	sess, err := (NativeProvider{}).Start(cmd, DefaultSize)
	require.NoError(t, err)
	defer sess.Close()

	_, err = sess.Write([]byte("hello\n"))
	require.NoError(t, err)

	r := bufio.NewReader(sess)
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	require.True(t, strings.Contains(line, "hello"))

	require.NoError(t, sess.Close())
}

func TestPrepareEnv_SetsRequiredVariables(t *testing.T) {
	cmd := exec.Command("true")
	cmd.Env = []string{"PATH=/usr/bin"}
	prepareEnv(cmd)

	joined := strings.Join(cmd.Env, "\n")
	require.Contains(t, joined, "TERM=xterm-256color")
	require.Contains(t, joined, "FORCE_COLOR=1")
	require.Contains(t, joined, "CI=false")
	require.Contains(t, joined, "SHELL=")
}
