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

	"github.com/jackc/pgx/v5"

	"github.com/doomcode/relay/pkg/relay"
)

func (s *Store) PutConnection(ctx context.Context, c *relay.Connection) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO relay_connections (id, session_id, role, public_key, connected_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			session_id = EXCLUDED.session_id,
			role = EXCLUDED.role,
			public_key = EXCLUDED.public_key,
			connected_at = EXCLUDED.connected_at
	`, c.ID, c.SessionID, string(c.Role), c.PublicKey, c.ConnectedAt)
	return err
}

func (s *Store) GetConnection(ctx context.Context, connectionID string) (*relay.Connection, error) {
	var c relay.Connection
	var role string
	err := s.pool.QueryRow(ctx, `
		SELECT id, session_id, role, public_key, connected_at
		FROM relay_connections WHERE id = $1
	`, connectionID).Scan(&c.ID, &c.SessionID, &role, &c.PublicKey, &c.ConnectedAt)
	if err == pgx.ErrNoRows {
		return nil, relay.ErrConnectionNotFound
	}
	if err != nil {
		return nil, err
	}
	c.Role = relay.Role(role)
	return &c, nil
}

func (s *Store) DeleteConnection(ctx context.Context, connectionID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM relay_connections WHERE id = $1`, connectionID)
	return err
}
