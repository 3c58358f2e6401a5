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
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/doomcode/relay/pkg/relay"
)

func (s *Store) CreateSession(ctx context.Context, id string) (*relay.Session, error) {
	now := time.Now()
	expiresAt := now.Add(relay.SessionTTL)

	_, err := s.pool.Exec(ctx, `
		INSERT INTO relay_sessions (id, created_at, expires_at) VALUES ($1, $2, $3)
	`, id, now, expiresAt)
	if err != nil {
		return nil, err
	}

	return &relay.Session{
		ID:        id,
		CreatedAt: now,
		ExpiresAt: expiresAt,
		Slots:     make(map[relay.Role]*relay.Slot),
		LastKeys:  make(map[relay.Role]string),
	}, nil
}

func (s *Store) GetSession(ctx context.Context, id string) (*relay.Session, error) {
	var sess relay.Session
	sess.ID = id
	sess.Slots = make(map[relay.Role]*relay.Slot)

	var lastKeysJSON []byte
	err := s.pool.QueryRow(ctx, `
		SELECT created_at, expires_at, last_keys FROM relay_sessions WHERE id = $1
	`, id).Scan(&sess.CreatedAt, &sess.ExpiresAt, &lastKeysJSON)
	if err == pgx.ErrNoRows {
		return nil, relay.ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	if sess.Expired(time.Now()) {
		return nil, relay.ErrSessionExpired
	}

	sess.LastKeys = make(map[relay.Role]string)
	if len(lastKeysJSON) > 0 {
		var raw map[string]string
		if err := json.Unmarshal(lastKeysJSON, &raw); err != nil {
			return nil, err
		}
		for k, v := range raw {
			sess.LastKeys[relay.Role(k)] = v
		}
	}

	rows, err := s.pool.Query(ctx, `
		SELECT role, connection_id, public_key FROM relay_session_slots WHERE session_id = $1
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var role, connID, pub string
		if err := rows.Scan(&role, &connID, &pub); err != nil {
			return nil, err
		}
		sess.Slots[relay.Role(role)] = &relay.Slot{ConnectionID: connID, PublicKey: pub}
	}

	return &sess, rows.Err()
}

// SetSessionSlot takes a row lock on the session so concurrent joins for
// the same role serialize through Postgres rather than the process.
func (s *Store) SetSessionSlot(ctx context.Context, sessionID string, role relay.Role, connectionID, publicKey string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var expiresAt time.Time
	err = tx.QueryRow(ctx, `SELECT expires_at FROM relay_sessions WHERE id = $1 FOR UPDATE`, sessionID).Scan(&expiresAt)
	if err == pgx.ErrNoRows {
		return relay.ErrSessionNotFound
	}
	if err != nil {
		return err
	}
	if time.Now().After(expiresAt) {
		return relay.ErrSessionExpired
	}

	var occupant string
	err = tx.QueryRow(ctx, `
		SELECT connection_id FROM relay_session_slots WHERE session_id = $1 AND role = $2
	`, sessionID, string(role)).Scan(&occupant)
	if err == nil {
		return relay.ErrSlotOccupied
	}
	if err != pgx.ErrNoRows {
		return err
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO relay_session_slots (session_id, role, connection_id, public_key)
		VALUES ($1, $2, $3, $4)
	`, sessionID, string(role), connectionID, publicKey); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `
		UPDATE relay_sessions SET last_keys = jsonb_set(last_keys, $2, to_jsonb($3::text), true)
		WHERE id = $1
	`, sessionID, []string{string(role)}, publicKey); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (s *Store) ForceSessionSlot(ctx context.Context, sessionID string, role relay.Role, connectionID, publicKey string) error {
	var expiresAt time.Time
	err := s.pool.QueryRow(ctx, `SELECT expires_at FROM relay_sessions WHERE id = $1`, sessionID).Scan(&expiresAt)
	if err == pgx.ErrNoRows {
		return relay.ErrSessionNotFound
	}
	if err != nil {
		return err
	}
	if time.Now().After(expiresAt) {
		return relay.ErrSessionExpired
	}

	if _, err = s.pool.Exec(ctx, `
		INSERT INTO relay_session_slots (session_id, role, connection_id, public_key)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (session_id, role) DO UPDATE SET
			connection_id = EXCLUDED.connection_id,
			public_key = EXCLUDED.public_key
	`, sessionID, string(role), connectionID, publicKey); err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		UPDATE relay_sessions SET last_keys = jsonb_set(last_keys, $2, to_jsonb($3::text), true)
		WHERE id = $1
	`, sessionID, []string{string(role)}, publicKey)
	return err
}

func (s *Store) ClearSessionSlot(ctx context.Context, sessionID string, role relay.Role, connectionID string) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM relay_session_slots
		WHERE session_id = $1 AND role = $2 AND connection_id = $3
	`, sessionID, string(role), connectionID)
	return err
}

func (s *Store) DeleteExpired(ctx context.Context) (int, int, error) {
	now := time.Now()

	envTag, err := s.pool.Exec(ctx, `DELETE FROM relay_queued_envelopes WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, 0, err
	}

	sessTag, err := s.pool.Exec(ctx, `DELETE FROM relay_sessions WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, 0, err
	}

	return int(sessTag.RowsAffected()), int(envTag.RowsAffected()), nil
}
