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

// Package envelope implements the versioned wire framing shared by the
// relay and both endpoints. Two disjoint frame shapes travel over one
// duplex connection: plaintext control frames (disambiguated by an
// "action" field) and opaque envelope frames (disambiguated by an
// "encryptedPayload" field), which the relay routes without ever decoding.
package envelope

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CurrentVersion is the only envelope wire version this build understands.
const CurrentVersion = 1

// Sender identifies which side of a session produced an envelope.
type Sender string

const (
	SenderController Sender = "controller"
	SenderOperator   Sender = "operator"
)

// Envelope is the outermost wire frame. The relay inspects only these
// fields — never the ciphertext's contents.
type Envelope struct {
	Version    int    `json:"version"`
	SessionID  string `json:"sessionId"`
	MessageID  string `json:"messageId"`
	Timestamp  int64  `json:"timestamp"`
	Sender     Sender `json:"sender"`
	Nonce      string `json:"nonce"`             // base64
	Ciphertext string `json:"encryptedPayload"`   // base64, aliased "ciphertext" in §3
}

// DecodeError reports why raw bytes or a generic map failed to validate as
// an Envelope. It never leaks partial field values beyond their names.
type DecodeError struct {
	Field  string
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("envelope: invalid field %q: %s", e.Field, e.Reason)
}

// New builds an Envelope with a fresh 128-bit messageId and the current
// wire version, ready for transmission.
func New(sessionID string, sender Sender, nonce, ciphertext []byte) *Envelope {
	return &Envelope{
		Version:    CurrentVersion,
		SessionID:  sessionID,
		MessageID:  uuid.NewString(),
		Timestamp:  time.Now().UnixMilli(),
		Sender:     sender,
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(ciphertext),
	}
}

// Validate checks version, required string fields, sender enum membership,
// and the base64 shape of nonce/ciphertext. It does not touch the
// ciphertext's meaning — that is opaque to everyone but the two endpoints.
func (e *Envelope) Validate() error {
	if e.Version != CurrentVersion {
		return &DecodeError{Field: "version", Reason: fmt.Sprintf("unsupported version %d", e.Version)}
	}
	if e.SessionID == "" {
		return &DecodeError{Field: "sessionId", Reason: "must not be empty"}
	}
	if e.MessageID == "" {
		return &DecodeError{Field: "messageId", Reason: "must not be empty"}
	}
	if e.Sender != SenderController && e.Sender != SenderOperator {
		return &DecodeError{Field: "sender", Reason: fmt.Sprintf("must be %q or %q", SenderController, SenderOperator)}
	}
	nonce, err := base64.StdEncoding.DecodeString(e.Nonce)
	if err != nil {
		return &DecodeError{Field: "nonce", Reason: "not valid base64"}
	}
	if len(nonce) != 24 {
		return &DecodeError{Field: "nonce", Reason: "must decode to 24 bytes"}
	}
	if _, err := base64.StdEncoding.DecodeString(e.Ciphertext); err != nil {
		return &DecodeError{Field: "encryptedPayload", Reason: "not valid base64"}
	}
	return nil
}

// NonceBytes decodes the envelope's base64 nonce.
func (e *Envelope) NonceBytes() ([]byte, error) {
	return base64.StdEncoding.DecodeString(e.Nonce)
}

// CiphertextBytes decodes the envelope's base64 ciphertext.
func (e *Envelope) CiphertextBytes() ([]byte, error) {
	return base64.StdEncoding.DecodeString(e.Ciphertext)
}
