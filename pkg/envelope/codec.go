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

import "encoding/json"

// FrameKind distinguishes the two frame shapes sharing the relay's duplex
// transport.
type FrameKind int

const (
	// FrameUnknown is returned when neither an "action" nor an
	// "encryptedPayload" key is present.
	FrameUnknown FrameKind = iota
	FrameControl
	FrameEnvelope
)

// Sniff inspects raw JSON bytes and reports which frame shape they carry,
// without fully decoding either one. Disambiguation is by key presence:
// control frames carry "action", envelope frames carry "encryptedPayload".
func Sniff(raw []byte) (FrameKind, error) {
	var probe struct {
		Action           *string `json:"action"`
		EncryptedPayload *string `json:"encryptedPayload"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return FrameUnknown, err
	}

	switch {
	case probe.Action != nil:
		return FrameControl, nil
	case probe.EncryptedPayload != nil:
		return FrameEnvelope, nil
	default:
		return FrameUnknown, nil
	}
}

// decoders maps a wire version to the function that decodes raw JSON bytes
// into an Envelope for that version. Only version 1 exists today; a future
// version 2 registers here without touching any caller of Decode.
var decoders = map[int]func([]byte) (*Envelope, error){
	1: decodeV1,
}

// versionProbe peeks at the "version" field shared by every envelope wire
// version, so Decode can dispatch before fully unmarshaling.
type versionProbe struct {
	Version int `json:"version"`
}

// Decode parses raw JSON bytes into an Envelope, dispatching on the
// envelope's "version" field, and validates the result.
func Decode(raw []byte) (*Envelope, error) {
	var vp versionProbe
	if err := json.Unmarshal(raw, &vp); err != nil {
		return nil, &DecodeError{Field: "version", Reason: "not valid JSON"}
	}

	decode, ok := decoders[vp.Version]
	if !ok {
		return nil, &DecodeError{Field: "version", Reason: "unsupported version"}
	}

	return decode(raw)
}

func decodeV1(raw []byte) (*Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, &DecodeError{Field: "*", Reason: "malformed envelope JSON"}
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return &e, nil
}

// Encode serializes an Envelope to its wire JSON form.
func Encode(e *Envelope) ([]byte, error) {
	return json.Marshal(e)
}
