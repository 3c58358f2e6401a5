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

package scanner

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDiffExtractor_EmitsOnFileChangedTail(t *testing.T) {
	e := NewDiffExtractor()

	require.Nil(t, e.Feed("assistant: applying change\n"))
	require.Nil(t, e.Feed("diff --git a/foo.txt b/foo.txt\n--- a/foo.txt\n+++ b/foo.txt\n@@ -1,1 +1,1 @@\n-old\n+new\n"))

	detected := e.Feed("1 file changed, 1 insertion(+), 1 deletion(-)\n")
	require.NotNil(t, detected)
	require.Len(t, detected.Files, 1)
	require.Equal(t, "foo.txt", detected.Files[0].Path)
	require.NotEmpty(t, detected.PatchID)
}

func TestDiffExtractor_IgnoresNonDiffOutput(t *testing.T) {
	e := NewDiffExtractor()
	require.Nil(t, e.Feed("nothing to see here\n"))
	require.Nil(t, e.Feed("still nothing\n"))
}

func TestDiffExtractor_RiskHighOnSensitivePath(t *testing.T) {
	e := NewDiffExtractor()
	e.Feed("diff --git a/.env b/.env\n--- a/.env\n+++ b/.env\n@@ -1,1 +1,1 @@\n-A=1\n+A=2\n")
	detected := e.Feed("1 file changed\n")
	require.NotNil(t, detected)
	require.Equal(t, RiskHigh, detected.EstimatedRisk)
}

func TestDiffExtractor_RiskLowForSmallPlainChange(t *testing.T) {
	e := NewDiffExtractor()
	e.Feed("diff --git a/foo.txt b/foo.txt\n--- a/foo.txt\n+++ b/foo.txt\n@@ -1,1 +1,1 @@\n-old\n+new\n")
	detected := e.Feed("1 file changed\n")
	require.NotNil(t, detected)
	require.Equal(t, RiskLow, detected.EstimatedRisk)
}

func TestDiffExtractor_TruncatesOversizedBuffer(t *testing.T) {
	e := NewDiffExtractor()
	e.Feed("diff --git a/foo.txt b/foo.txt\n--- a/foo.txt\n")
	require.Nil(t, e.Feed(strings.Repeat("+x\n", defaultMaxWindowBytes)))
	require.LessOrEqual(t, e.buffer.Len(), e.tailSize)
}
