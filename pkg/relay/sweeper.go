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

package relay

import (
	"context"
	"time"

	"github.com/doomcode/relay/internal/logger"
)

// RunSweeper periodically evicts expired sessions and queued envelopes.
// The store's own TTL checks make this advisory rather than load-bearing —
// an expired session or envelope is never served even if the sweep hasn't
// reached it yet — but it keeps store size bounded.
func RunSweeper(ctx context.Context, store Store, interval time.Duration, log logger.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sessions, envelopes, err := store.DeleteExpired(ctx)
			if err != nil {
				log.Warn("sweep failed", logger.Error(err))
				continue
			}
			if sessions > 0 || envelopes > 0 {
				log.Info("swept expired state",
					logger.Int("sessionsRemoved", sessions),
					logger.Int("envelopesRemoved", envelopes),
				)
			}
		}
	}
}
