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

package envelope

// Control actions sent client → relay.
const (
	ActionCreate      = "create"
	ActionJoin        = "join"
	ActionLeave       = "leave"
	ActionAck         = "ack"
	ActionQueueStatus = "queue_status"
)

// Control actions sent relay → client.
const (
	ActionSessionCreated  = "session_created"
	ActionSessionJoined   = "session_joined"
	ActionPeerConnected   = "peer_connected"
	ActionPeerDisconnected = "peer_disconnected"
	ActionError           = "error"
)

// Relay protocol error codes, carried in an ActionError frame's "code" field.
const (
	ErrCodeSessionNotFound   = "SESSION_NOT_FOUND"
	ErrCodeAlreadyConnected  = "ALREADY_CONNECTED"
	ErrCodeNotJoined         = "NOT_JOINED"
	ErrCodeInternal          = "INTERNAL_ERROR"
)

// Role identifies which slot a connection occupies in a session. It is an
// alias of Sender: the same two values distinguish a join's role and an
// envelope's producer.
type Role = Sender

const (
	RoleController = SenderController
	RoleOperator   = SenderOperator
)

// ControlFrame is the generic plaintext control envelope. Only the fields
// relevant to a given Action are populated; json tags use omitempty so a
// frame serializes compactly regardless of direction.
type ControlFrame struct {
	Action string `json:"action"`

	// create
	PublicKey string `json:"publicKey,omitempty"`

	// join
	SessionID string `json:"sessionId,omitempty"`
	Role      Role   `json:"role,omitempty"`

	// ack
	LastMessageID string `json:"lastMessageId,omitempty"`

	// session_created
	// (reuses SessionID)

	// session_joined
	PeerPublicKey string `json:"peerPublicKey,omitempty"`

	// peer_connected
	PeerType Role `json:"peerType,omitempty"`

	// queue_status
	QueuedMessages  int    `json:"queuedMessages,omitempty"`
	OldestTimestamp *int64 `json:"oldestTimestamp,omitempty"`

	// error
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}
