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

// Package pgstore is a PostgreSQL-backed relay.Store, for relay
// deployments that must survive a process restart without dropping live
// sessions and queued envelopes.
package pgstore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Config holds the PostgreSQL connection parameters.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// Store implements relay.Store against a PostgreSQL database.
type Store struct {
	pool *pgxpool.Pool
}

// schema creates the four tables this store needs if they are absent.
// Applied once at NewStore time; the relay does not ship a separate
// migration tool.
const schema = `
CREATE TABLE IF NOT EXISTS relay_sessions (
	id TEXT PRIMARY KEY,
	created_at TIMESTAMPTZ NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL,
	last_keys JSONB NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS relay_session_slots (
	session_id TEXT NOT NULL REFERENCES relay_sessions(id) ON DELETE CASCADE,
	role TEXT NOT NULL,
	connection_id TEXT NOT NULL,
	public_key TEXT NOT NULL,
	PRIMARY KEY (session_id, role)
);

CREATE TABLE IF NOT EXISTS relay_connections (
	id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	role TEXT NOT NULL,
	public_key TEXT NOT NULL,
	connected_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS relay_queued_envelopes (
	id BIGSERIAL PRIMARY KEY,
	session_id TEXT NOT NULL,
	message_id TEXT NOT NULL,
	envelope_json JSONB NOT NULL,
	queued_at TIMESTAMPTZ NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_relay_queue_session_queued_at
	ON relay_queued_envelopes (session_id, queued_at);
`

// NewStore connects to PostgreSQL, verifies the connection, and ensures the
// schema exists.
func NewStore(ctx context.Context, cfg *Config) (*Store, error) {
	connString := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("pgstore: create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgstore: ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgstore: apply schema: %w", err)
	}

	return &Store{pool: pool}, nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
