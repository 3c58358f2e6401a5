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

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ConnectionsOpened tracks websocket duplex connections accepted by the relay
	ConnectionsOpened = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connections",
			Name:      "opened_total",
			Help:      "Total number of connections opened",
		},
		[]string{"role"}, // unknown on accept, then controller or operator on create/join
	)

	// ConnectionsClosed tracks connection teardown by reason
	ConnectionsClosed = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connections",
			Name:      "closed_total",
			Help:      "Total number of connections closed",
		},
		[]string{"reason"}, // leave, evicted, error, idle_timeout
	)

	// ConnectionDuration tracks how long a single connection stayed open
	ConnectionDuration = promauto.With(Registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "connections",
			Name:      "duration_seconds",
			Help:      "Connection lifetime in seconds",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 16),
		},
	)

	// KeyRotations counts key rotations per role; the relay handler does not
	// increment it
	KeyRotations = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connections",
			Name:      "key_rotations_total",
			Help:      "Total number of key rotations processed",
		},
		[]string{"role"},
	)

	// IncumbentEvictions tracks slot takeovers from a stale incumbent connection
	IncumbentEvictions = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connections",
			Name:      "incumbent_evictions_total",
			Help:      "Total number of incumbent connections evicted on reconnect",
		},
	)
)
