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

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_HasFreshMessageID(t *testing.T) {
	e1 := New("session-1", SenderController, make([]byte, 24), []byte("ct"))
	e2 := New("session-1", SenderController, make([]byte, 24), []byte("ct"))

	assert.NotEqual(t, e1.MessageID, e2.MessageID)
	assert.Equal(t, CurrentVersion, e1.Version)
}

func TestValidate_Valid(t *testing.T) {
	e := New("session-1", SenderOperator, make([]byte, 24), []byte("ct"))
	require.NoError(t, e.Validate())
}

func TestValidate_RejectsBadVersion(t *testing.T) {
	e := New("session-1", SenderOperator, make([]byte, 24), []byte("ct"))
	e.Version = 2

	err := e.Validate()
	require.Error(t, err)
	var decodeErr *DecodeError
	require.ErrorAs(t, err, &decodeErr)
	assert.Equal(t, "version", decodeErr.Field)
}

func TestValidate_RejectsBadSender(t *testing.T) {
	e := New("session-1", SenderOperator, make([]byte, 24), []byte("ct"))
	e.Sender = "eavesdropper"

	err := e.Validate()
	require.Error(t, err)
}

func TestValidate_RejectsShortNonce(t *testing.T) {
	e := New("session-1", SenderOperator, make([]byte, 16), []byte("ct"))
	err := e.Validate()
	require.Error(t, err)
}

func TestValidate_RejectsEmptySessionID(t *testing.T) {
	e := New("", SenderOperator, make([]byte, 24), []byte("ct"))
	err := e.Validate()
	require.Error(t, err)
}
