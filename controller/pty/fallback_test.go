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
	"errors"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	name string
	err  error
	sess Session
}

func (s stubProvider) Name() string { return s.name }
func (s stubProvider) Start(cmd *exec.Cmd, size Size) (Session, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.sess, nil
}

type stubSession struct{ Session }

func TestFallbackProvider_FallsBackOnSpawnFailure(t *testing.T) {
	fb := &FallbackProvider{
		Primary:   stubProvider{name: "native", err: &ErrSpawnFailed{Backend: "native", Cause: errors.New("posix_spawnp failed")}},
		Secondary: stubProvider{name: "bridge", sess: stubSession{}},
	}

	sess, err := fb.Start(exec.Command("true"), DefaultSize)
	require.NoError(t, err)
	require.NotNil(t, sess)
	require.Equal(t, "bridge", fb.Name())
}

func TestFallbackProvider_PropagatesNonSpawnError(t *testing.T) {
	fb := &FallbackProvider{
		Primary:   stubProvider{name: "native", err: errors.New("boom")},
		Secondary: stubProvider{name: "bridge", sess: stubSession{}},
	}

	_, err := fb.Start(exec.Command("true"), DefaultSize)
	require.Error(t, err)
	require.Equal(t, "boom", err.Error())
}

func TestFallbackProvider_UsesPrimaryOnSuccess(t *testing.T) {
	fb := &FallbackProvider{
		Primary:   stubProvider{name: "native", sess: stubSession{}},
		Secondary: stubProvider{name: "bridge"},
	}

	sess, err := fb.Start(exec.Command("true"), DefaultSize)
	require.NoError(t, err)
	require.NotNil(t, sess)
	require.Equal(t, "native", fb.Name())
}
