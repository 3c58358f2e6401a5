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

package pgstore

import (
	"context"
	"time"

	"github.com/doomcode/relay/pkg/envelope"
	"github.com/doomcode/relay/pkg/relay"
)

func (s *Store) Enqueue(ctx context.Context, sessionID string, env *envelope.Envelope) error {
	raw, err := envelope.Encode(env)
	if err != nil {
		return err
	}

	now := time.Now()
	_, err = s.pool.Exec(ctx, `
		INSERT INTO relay_queued_envelopes (session_id, message_id, envelope_json, queued_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
	`, sessionID, env.MessageID, raw, now, now.Add(relay.QueueTTL))
	return err
}

func (s *Store) ListQueue(ctx context.Context, sessionID string) ([]*relay.QueuedEnvelope, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT envelope_json, queued_at, expires_at
		FROM relay_queued_envelopes
		WHERE session_id = $1 AND expires_at > NOW()
		ORDER BY queued_at ASC
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*relay.QueuedEnvelope
	for rows.Next() {
		var raw []byte
		var queuedAt, expiresAt time.Time
		if err := rows.Scan(&raw, &queuedAt, &expiresAt); err != nil {
			return nil, err
		}
		env, err := envelope.Decode(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, &relay.QueuedEnvelope{Envelope: env, QueuedAt: queuedAt, ExpiresAt: expiresAt})
	}
	return out, rows.Err()
}

// DeleteQueuedUpTo deletes every envelope for the session ordered at or
// before the one carrying messageID. A missing messageID is a no-op,
// matching the idempotent contract.
func (s *Store) DeleteQueuedUpTo(ctx context.Context, sessionID, messageID string) error {
	var cutoff time.Time
	err := s.pool.QueryRow(ctx, `
		SELECT queued_at FROM relay_queued_envelopes
		WHERE session_id = $1 AND message_id = $2
	`, sessionID, messageID).Scan(&cutoff)
	if err != nil {
		return nil // absent id: silent no-op
	}

	_, err = s.pool.Exec(ctx, `
		DELETE FROM relay_queued_envelopes WHERE session_id = $1 AND queued_at <= $2
	`, sessionID, cutoff)
	return err
}

func (s *Store) PurgeQueue(ctx context.Context, sessionID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM relay_queued_envelopes WHERE session_id = $1`, sessionID)
	return err
}
