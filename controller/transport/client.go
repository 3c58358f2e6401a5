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

// Package transport is the controller and operator's shared websocket
// client for the relay's duplex connection: it dials, performs
// create/join, and exposes a send/receive API in terms of decrypted
// payload.Envelope values, handling the crypto.Box seal/open and
// envelope.Envelope framing underneath.
package transport

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/doomcode/relay/pkg/crypto"
	"github.com/doomcode/relay/pkg/envelope"
	"github.com/doomcode/relay/pkg/payload"
)

func decodeJSON(raw []byte, v any) error {
	return json.Unmarshal(raw, v)
}

// dialTimeout bounds the initial websocket handshake.
const dialTimeout = 10 * time.Second

// Client is one endpoint's connection to the relay: it owns the websocket,
// the local keypair, and the peer box once the session is joined.
type Client struct {
	conn   *websocket.Conn
	keys   *crypto.Keypair
	role   envelope.Role
	peerBox *crypto.Box

	sessionID string
	writeMu   sync.Mutex
}

// Dial opens a websocket connection to relayURL. The caller must then call
// Create or Join to establish a session before Send/Receive are usable.
func Dial(ctx context.Context, relayURL string) (*Client, error) {
	keys, err := crypto.GenerateKeypair()
	if err != nil {
		return nil, fmt.Errorf("transport: generate keypair: %w", err)
	}

	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, relayURL, nil)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", relayURL, err)
	}

	return &Client{conn: conn, keys: keys}, nil
}

// PublicKeyBase64 returns this client's public key, as carried in a
// pairing payload or join frame.
func (c *Client) PublicKeyBase64() string {
	return base64.StdEncoding.EncodeToString(c.keys.Public[:])
}

// Create asks the relay to mint a new session with this client as
// controller, returning the new session id.
func (c *Client) Create(ctx context.Context) (string, error) {
	c.role = envelope.RoleController
	if err := c.writeControl(&envelope.ControlFrame{
		Action:    envelope.ActionCreate,
		PublicKey: c.PublicKeyBase64(),
	}); err != nil {
		return "", err
	}

	frame, err := c.readControl(ctx)
	if err != nil {
		return "", err
	}
	if frame.Action == envelope.ActionError {
		return "", fmt.Errorf("transport: create rejected: %s", frame.Message)
	}
	c.sessionID = frame.SessionID
	return frame.SessionID, nil
}

// Join joins an existing session as role, precomputing the peer box once
// the relay confirms the peer's public key.
func (c *Client) Join(ctx context.Context, sessionID string, role envelope.Role) error {
	c.role = role
	c.sessionID = sessionID

	if err := c.writeControl(&envelope.ControlFrame{
		Action:    envelope.ActionJoin,
		SessionID: sessionID,
		Role:      role,
		PublicKey: c.PublicKeyBase64(),
	}); err != nil {
		return err
	}

	frame, err := c.readControl(ctx)
	if err != nil {
		return err
	}
	if frame.Action == envelope.ActionError {
		return fmt.Errorf("transport: join rejected: %s", frame.Message)
	}

	peerPub, err := base64.StdEncoding.DecodeString(frame.PeerPublicKey)
	if err != nil || len(peerPub) != crypto.KeySize {
		return fmt.Errorf("transport: malformed peer public key")
	}
	var peerArr [crypto.KeySize]byte
	copy(peerArr[:], peerPub)
	c.peerBox = crypto.NewBox(c.keys.Secret, peerArr)
	return nil
}

// SetPeerPublicKey lets a caller that already knows the peer's key (e.g.
// from a cached session) precompute the box without a fresh join
// round-trip's session_joined frame.
func (c *Client) SetPeerPublicKey(peerPublic [crypto.KeySize]byte) {
	c.peerBox = crypto.NewBox(c.keys.Secret, peerPublic)
}

// Send seals p and writes it as an envelope frame.
func (c *Client) Send(p *payload.Envelope) error {
	if c.peerBox == nil {
		return fmt.Errorf("transport: no peer key established")
	}
	plaintext, err := payload.Encode(p)
	if err != nil {
		return err
	}
	sealed, err := c.peerBox.Seal(plaintext)
	if err != nil {
		return err
	}
	env := envelope.New(c.sessionID, senderFor(c.role), sealed.Nonce[:], sealed.Ciphertext)
	raw, err := envelope.Encode(env)
	if err != nil {
		return err
	}
	return c.writeRaw(raw)
}

// Ack tells the relay it has durably consumed every queued envelope up to
// and including messageID.
func (c *Client) Ack(messageID string) error {
	return c.writeControl(&envelope.ControlFrame{
		Action:        envelope.ActionAck,
		SessionID:     c.sessionID,
		LastMessageID: messageID,
	})
}

// Receive blocks for the next frame and returns either a decrypted payload
// (with the originating envelope's MessageID) or a control frame —
// exactly one of the two return values is non-nil.
func (c *Client) Receive() (*payload.Envelope, *envelope.ControlFrame, string, error) {
	_, raw, err := c.conn.ReadMessage()
	if err != nil {
		return nil, nil, "", err
	}

	kind, err := envelope.Sniff(raw)
	if err != nil {
		return nil, nil, "", fmt.Errorf("transport: sniff: %w", err)
	}

	switch kind {
	case envelope.FrameControl:
		var frame envelope.ControlFrame
		if err := decodeJSON(raw, &frame); err != nil {
			return nil, nil, "", err
		}
		return nil, &frame, "", nil

	case envelope.FrameEnvelope:
		env, err := envelope.Decode(raw)
		if err != nil {
			return nil, nil, "", err
		}
		if c.peerBox == nil {
			return nil, nil, "", fmt.Errorf("transport: received envelope before peer key established")
		}
		nonce, err := env.NonceBytes()
		if err != nil {
			return nil, nil, "", err
		}
		ciphertext, err := env.CiphertextBytes()
		if err != nil {
			return nil, nil, "", err
		}
		var nonceArr [crypto.NonceSize]byte
		copy(nonceArr[:], nonce)
		plaintext, err := c.peerBox.Open(&crypto.Sealed{Nonce: nonceArr, Ciphertext: ciphertext})
		if err != nil {
			return nil, nil, "", err
		}
		p, err := payload.Decode(plaintext)
		if err != nil {
			return nil, nil, "", err
		}
		return p, nil, env.MessageID, nil

	default:
		return nil, nil, "", fmt.Errorf("transport: unrecognized frame shape")
	}
}

// Close closes the underlying websocket.
func (c *Client) Close() error { return c.conn.Close() }

func senderFor(role envelope.Role) envelope.Sender {
	return envelope.Sender(role)
}

func (c *Client) writeControl(frame *envelope.ControlFrame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(frame)
}

func (c *Client) writeRaw(raw []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, raw)
}

func (c *Client) readControl(ctx context.Context) (*envelope.ControlFrame, error) {
	type result struct {
		frame *envelope.ControlFrame
		err   error
	}
	ch := make(chan result, 1)
	go func() {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			ch <- result{err: err}
			return
		}
		var frame envelope.ControlFrame
		if err := decodeJSON(raw, &frame); err != nil {
			ch <- result{err: err}
			return
		}
		ch <- result{frame: &frame}
	}()

	select {
	case r := <-ch:
		return r.frame, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
