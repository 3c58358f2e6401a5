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
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestControlFrame_JoinOmitsUnrelatedFields(t *testing.T) {
	f := ControlFrame{
		Action:    ActionJoin,
		SessionID: "s1",
		Role:      RoleOperator,
	}

	raw, err := json.Marshal(f)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))

	assert.Equal(t, "join", m["action"])
	assert.Equal(t, "s1", m["sessionId"])
	assert.Equal(t, "operator", m["role"])
	assert.NotContains(t, m, "code")
	assert.NotContains(t, m, "queuedMessages")
	assert.NotContains(t, m, "peerPublicKey")
}

func TestControlFrame_ErrorRoundTrip(t *testing.T) {
	f := ControlFrame{
		Action:  ActionError,
		Code:    ErrCodeSessionNotFound,
		Message: "no such session",
	}

	raw, err := json.Marshal(f)
	require.NoError(t, err)

	var decoded ControlFrame
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, f, decoded)
}

func TestControlFrame_QueueStatusWithZeroOldestTimestamp(t *testing.T) {
	ts := int64(0)
	f := ControlFrame{
		Action:          ActionQueueStatus,
		QueuedMessages:  3,
		OldestTimestamp: &ts,
	}

	raw, err := json.Marshal(f)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	assert.Contains(t, m, "oldestTimestamp")
	assert.EqualValues(t, 3, m["queuedMessages"])
}

func TestSniff_AgainstControlFrameEncoding(t *testing.T) {
	f := ControlFrame{Action: ActionCreate, PublicKey: "abc123"}
	raw, err := json.Marshal(f)
	require.NoError(t, err)

	kind, err := Sniff(raw)
	require.NoError(t, err)
	assert.Equal(t, FrameControl, kind)
}
