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

package pairing

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewPayload_ExpiresAtFiveMinutes(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	p := New("sess-1", [32]byte{1, 2, 3}, "wss://relay.example/ws", now)

	require.False(t, p.Expired(now))
	require.True(t, p.Expired(now.Add(TTL+time.Second)))
}

func TestEncodeDecode_PayloadRoundTrip(t *testing.T) {
	p := New("sess-1", [32]byte{9}, "wss://relay.example/ws", time.Now())
	raw, err := p.Encode()
	require.NoError(t, err)

	decoded, err := Decode(raw)
	require.NoError(t, err)
	require.Equal(t, p.SessionID, decoded.SessionID)
	require.Equal(t, p.PublicKey, decoded.PublicKey)
}

func TestLoadCache_MissingFileReturnsNilNil(t *testing.T) {
	c, err := LoadCache(filepath.Join(t.TempDir(), "does-not-exist.json"))
	require.NoError(t, err)
	require.Nil(t, c)
}

func TestSaveLoadCache_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".doomcode", "session.json")
	c := &SessionCache{SessionID: "sess-1", Role: "controller", RelayURL: "wss://relay.example/ws", SavedAt: 123}

	require.NoError(t, SaveCache(path, c))

	loaded, err := LoadCache(path)
	require.NoError(t, err)
	require.Equal(t, c.SessionID, loaded.SessionID)
	require.Equal(t, c.Role, loaded.Role)
}

func TestSaveCache_OverwritesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, SaveCache(path, &SessionCache{SessionID: "first"}))
	require.NoError(t, SaveCache(path, &SessionCache{SessionID: "second"}))

	loaded, err := LoadCache(path)
	require.NoError(t, err)
	require.Equal(t, "second", loaded.SessionID)
}
