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

package relay

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// pingWait is how long the relay waits for a Pong before treating a probed
// incumbent connection as Gone, per §5's "single roundtrip" liveness rule.
const pingWait = 2 * time.Second

// Conn wraps one duplex websocket connection. gorilla/websocket forbids
// concurrent writers on the same connection, so every outbound frame goes
// through writeMu.
type Conn struct {
	ID string
	ws *websocket.Conn

	writeMu sync.Mutex

	mu        sync.Mutex
	SessionID string
	Role      Role
	Joined    bool

	pongMu sync.Mutex
	pongCh chan struct{}
}

func newConn(id string, ws *websocket.Conn) *Conn {
	c := &Conn{ID: id, ws: ws}
	ws.SetPongHandler(func(string) error {
		c.pongMu.Lock()
		ch := c.pongCh
		c.pongMu.Unlock()
		if ch != nil {
			select {
			case ch <- struct{}{}:
			default:
			}
		}
		return nil
	})
	return c
}

// WriteControl sends a plaintext control frame.
func (c *Conn) WriteControl(frame *ControlFrame) error {
	raw, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, raw)
}

// WriteRaw forwards an already-encoded frame (used to relay envelopes
// between peers without re-marshaling them).
func (c *Conn) WriteRaw(raw []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, raw)
}

// Probe sends a native websocket ping and reports whether a pong arrived
// within one roundtrip. No pong within pingWait means the incumbent is
// Gone and may be evicted.
func (c *Conn) Probe() (alive bool) {
	ch := make(chan struct{}, 1)
	c.pongMu.Lock()
	c.pongCh = ch
	c.pongMu.Unlock()
	defer func() {
		c.pongMu.Lock()
		c.pongCh = nil
		c.pongMu.Unlock()
	}()

	c.writeMu.Lock()
	err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(pingWait))
	c.writeMu.Unlock()
	if err != nil {
		return false
	}

	select {
	case <-ch:
		return true
	case <-time.After(pingWait):
		return false
	}
}

func (c *Conn) setJoined(sessionID string, role Role) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.SessionID = sessionID
	c.Role = role
	c.Joined = true
}

func (c *Conn) snapshot() (sessionID string, role Role, joined bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.SessionID, c.Role, c.Joined
}

func (c *Conn) Close() error {
	return c.ws.Close()
}
