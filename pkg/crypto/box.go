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

// Package crypto implements the session's end-to-end authenticated
// encryption: Curve25519 keypairs, a precomputed X25519 shared secret, and
// XSalsa20-Poly1305 seal/open over it (golang.org/x/crypto/nacl/box).
package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"io"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/nacl/box"
)

// KeySize is the length in bytes of both the public and secret halves of a Keypair.
const KeySize = 32

// NonceSize is the length in bytes of the random nonce accompanying every seal.
const NonceSize = 24

// ErrAuthFailure is returned by Open whenever the ciphertext, nonce, or box
// doesn't authenticate. Callers must never branch on the reason a box failed
// to open — tampering, truncation, and cross-session misrouting all collapse
// into this single error kind.
var ErrAuthFailure = errors.New("crypto: message authentication failed")

// Keypair is a Curve25519 keypair. The secret half never leaves the device
// that generated it; the public half travels over the pairing payload and
// the relay join frame.
type Keypair struct {
	Public [KeySize]byte
	Secret [KeySize]byte
}

// GenerateKeypair creates a new Curve25519 keypair sourced from the
// platform CSPRNG.
func GenerateKeypair() (*Keypair, error) {
	pub, sec, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return &Keypair{Public: *pub, Secret: *sec}, nil
}

// Box is a precomputed shared secret between one local Keypair and one
// peer's public key. All subsequent Seal/Open calls for this peer pair reuse
// it instead of repeating the scalar multiplication.
type Box struct {
	shared [KeySize]byte
}

// NewBox precomputes the X25519 shared secret for a peer pair.
func NewBox(mySecret, peerPublic [KeySize]byte) *Box {
	var shared [KeySize]byte
	box.Precompute(&shared, &peerPublic, &mySecret)
	return &Box{shared: shared}
}

// Sealed is a sealed message: a fresh random nonce and its authenticated
// ciphertext.
type Sealed struct {
	Nonce      [NonceSize]byte
	Ciphertext []byte
}

// Seal authenticates and encrypts plaintext under the precomputed shared
// secret with a fresh 24-byte nonce from the platform CSPRNG. No nonce is
// ever reused for a given shared secret.
func (b *Box) Seal(plaintext []byte) (*Sealed, error) {
	var nonce [NonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, err
	}

	ciphertext := box.SealAfterPrecomputation(nil, plaintext, &nonce, &b.shared)
	return &Sealed{Nonce: nonce, Ciphertext: ciphertext}, nil
}

// Open authenticates and decrypts a sealed message. Any tampering,
// truncation, or a box sealed under a different shared secret yields
// ErrAuthFailure; the caller never observes partial plaintext.
func (b *Box) Open(s *Sealed) ([]byte, error) {
	plaintext, ok := box.OpenAfterPrecomputation(nil, s.Ciphertext, &s.Nonce, &b.shared)
	if !ok {
		return nil, ErrAuthFailure
	}
	return plaintext, nil
}

// DeriveSubkeys derives a pair of direction-separated 32-byte keys from the
// box's shared secret via HKDF-SHA256. Wire version 1 does not use this —
// it is a reserved hook for a future version that wants independent
// controller→operator and operator→controller keys without changing the
// Box API surface.
func (b *Box) DeriveSubkeys(info string) (sendKey, recvKey [KeySize]byte, err error) {
	h := hkdf.New(sha256.New, b.shared[:], nil, []byte(info))
	if _, err = io.ReadFull(h, sendKey[:]); err != nil {
		return sendKey, recvKey, err
	}
	if _, err = io.ReadFull(h, recvKey[:]); err != nil {
		return sendKey, recvKey, err
	}
	return sendKey, recvKey, nil
}
