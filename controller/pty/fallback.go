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

import "os/exec"

// FallbackProvider tries Primary first and falls back to Secondary when
// Primary's Start returns an *ErrSpawnFailed, matching §4.5.2's ordered
// "native, then bridge" backend chain.
type FallbackProvider struct {
	Primary   Provider
	Secondary Provider

	lastBackend string
}

// NewDefaultChain returns the standard native-then-bridge chain.
func NewDefaultChain(enterMode EnterMode) *FallbackProvider {
	return &FallbackProvider{
		Primary:   NativeProvider{},
		Secondary: BridgeProvider{EnterMode: enterMode},
	}
}

func (f *FallbackProvider) Name() string {
	if f.lastBackend != "" {
		return f.lastBackend
	}
	return f.Primary.Name()
}

func (f *FallbackProvider) Start(cmd *exec.Cmd, size Size) (Session, error) {
	sess, err := f.Primary.Start(cmd, size)
	if err == nil {
		f.lastBackend = f.Primary.Name()
		return sess, nil
	}
	if _, isSpawnFailure := err.(*ErrSpawnFailed); !isSpawnFailure {
		return nil, err
	}
	sess, err = f.Secondary.Start(cmd, size)
	if err == nil {
		f.lastBackend = f.Secondary.Name()
	}
	return sess, err
}
