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

// Package relay holds the relay's persistent state (sessions, connections,
// queued envelopes) and the duplex connection handler built on top of it.
// The store interface is backend-agnostic; memstore and pgstore are its two
// implementations.
package relay

import (
	"context"
	"errors"
	"time"

	"github.com/doomcode/relay/pkg/envelope"
)

// SessionTTL is the absolute lifetime of a session from creation.
const SessionTTL = 24 * time.Hour

// QueueTTL is the absolute lifetime of a queued envelope from enqueue.
const QueueTTL = 24 * time.Hour

var (
	ErrSessionNotFound    = errors.New("relay: session not found")
	ErrSessionExpired     = errors.New("relay: session expired")
	ErrConnectionNotFound = errors.New("relay: connection not found")
	ErrSlotOccupied       = errors.New("relay: slot already occupied")
)

// Role mirrors envelope.Role's values for store bookkeeping without
// importing the control-frame package's wire concerns.
type Role = envelope.Sender

// Slot is one role's occupant within a session.
type Slot struct {
	ConnectionID string
	PublicKey    string // base64
}

// Session is the relay's view of a two-party rendezvous.
type Session struct {
	ID        string
	CreatedAt time.Time
	ExpiresAt time.Time
	Slots     map[Role]*Slot // nil entry or absent key = empty slot

	// LastKeys remembers the most recent public key seen for each role,
	// surviving a slot clear (disconnect). A join whose public key
	// differs from LastKeys[role] is a key rotation: the handler must
	// purge the queue before any replay, since queued ciphertexts were
	// encrypted to the old key.
	LastKeys map[Role]string
}

// Expired reports whether the session's absolute TTL has passed as of now.
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// Connection is the relay's view of one live transport connection.
type Connection struct {
	ID          string
	SessionID   string
	Role        Role
	PublicKey   string // base64
	ConnectedAt time.Time
}

// QueuedEnvelope is an envelope held for later delivery to an absent peer.
type QueuedEnvelope struct {
	Envelope  *envelope.Envelope
	QueuedAt  time.Time
	ExpiresAt time.Time
}

// Store is the relay's persistence contract. Every method is a single
// atomic operation with respect to concurrent callers on the same key.
type Store interface {
	// Connections
	PutConnection(ctx context.Context, c *Connection) error
	GetConnection(ctx context.Context, connectionID string) (*Connection, error)
	DeleteConnection(ctx context.Context, connectionID string) error

	// Sessions
	CreateSession(ctx context.Context, id string) (*Session, error)
	GetSession(ctx context.Context, id string) (*Session, error)

	// SetSessionSlot atomically fills a role's slot iff it is currently
	// empty. ErrSlotOccupied is returned otherwise so the caller can run
	// its liveness-probe-and-evict protocol before retrying.
	SetSessionSlot(ctx context.Context, sessionID string, role Role, connectionID, publicKey string) error

	// ForceSessionSlot atomically fills a role's slot regardless of its
	// current occupant, used after a successful eviction probe.
	ForceSessionSlot(ctx context.Context, sessionID string, role Role, connectionID, publicKey string) error

	// ClearSessionSlot atomically empties a role's slot if it is
	// currently held by connectionID. Clearing a slot already held by a
	// different connection (a stale disconnect racing a new join) is a
	// silent no-op.
	ClearSessionSlot(ctx context.Context, sessionID string, role Role, connectionID string) error

	// Queue
	Enqueue(ctx context.Context, sessionID string, env *envelope.Envelope) error
	ListQueue(ctx context.Context, sessionID string) ([]*QueuedEnvelope, error)
	DeleteQueuedUpTo(ctx context.Context, sessionID, messageID string) error
	PurgeQueue(ctx context.Context, sessionID string) error

	// DeleteExpired sweeps expired sessions and queued envelopes, returning
	// counts of each removed. Safe to call on a timer.
	DeleteExpired(ctx context.Context) (sessions int, envelopes int, err error)

	Close() error
}
