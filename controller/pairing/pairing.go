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

// Package pairing builds the pairing payload a controller hands an
// operator out of band (QR code, clipboard, ...) and persists the
// resulting session to a local cache file so a controller restart can
// rejoin without minting a new session.
package pairing

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// TTL is the pairing payload's absolute lifetime, per §5's "Pairing
// payload: 5 min absolute".
const TTL = 5 * time.Minute

// Payload is the JSON structure handed to the operator out of band.
type Payload struct {
	SessionID string `json:"sessionId"`
	PublicKey string `json:"publicKey"`
	RelayURL  string `json:"relayUrl"`
	ExpiresAt int64  `json:"expiresAt"`
}

// New builds a pairing Payload for sessionID, expiring TTL from now.
func New(sessionID string, publicKey [32]byte, relayURL string, now time.Time) *Payload {
	return &Payload{
		SessionID: sessionID,
		PublicKey: base64.StdEncoding.EncodeToString(publicKey[:]),
		RelayURL:  relayURL,
		ExpiresAt: now.Add(TTL).UnixMilli(),
	}
}

// Expired reports whether the payload's absolute lifetime has passed.
func (p *Payload) Expired(now time.Time) bool {
	return now.UnixMilli() >= p.ExpiresAt
}

// Encode renders the payload to its wire JSON string form.
func (p *Payload) Encode() (string, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// Decode parses a pairing payload's wire JSON string form.
func Decode(raw string) (*Payload, error) {
	var p Payload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, fmt.Errorf("pairing: decode payload: %w", err)
	}
	return &p, nil
}

// SessionCache is the on-disk record persisted to .doomcode/session.json
// so a controller restart can rejoin its last session without a fresh
// pairing round-trip. AgentID and Config are part of the record's shape,
// but the controller's save path leaves them empty: agent_control{configure}
// settings are not written here.
type SessionCache struct {
	SessionID string            `json:"sessionId"`
	Role      string            `json:"role"`
	RelayURL  string            `json:"relayUrl"`
	AgentID   string            `json:"agentId,omitempty"`
	Config    map[string]any    `json:"config,omitempty"`
	SavedAt   int64             `json:"savedAt"`
}

// LoadCache reads and parses the session cache at path. A missing file is
// not an error: it reports (nil, nil), since the controller has simply
// never paired yet.
func LoadCache(path string) (*SessionCache, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pairing: read cache: %w", err)
	}
	var c SessionCache
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("pairing: parse cache: %w", err)
	}
	return &c, nil
}

// SaveCache atomically writes c to path: it writes to a temp file in the
// same directory, then renames over the destination, so a crash mid-write
// never leaves a truncated cache file behind.
func SaveCache(path string, c *SessionCache) error {
	raw, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("pairing: marshal cache: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("pairing: create cache dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".session-*.json.tmp")
	if err != nil {
		return fmt.Errorf("pairing: create temp cache file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("pairing: write temp cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("pairing: close temp cache file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("pairing: rename cache file into place: %w", err)
	}
	return nil
}
