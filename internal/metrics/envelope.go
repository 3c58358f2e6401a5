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
	// EnvelopesRouted tracks envelopes forwarded directly to a connected peer
	EnvelopesRouted = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "envelopes",
			Name:      "routed_total",
			Help:      "Total number of envelopes routed directly to a peer",
		},
		[]string{"direction"}, // controller_to_operator, operator_to_controller
	)

	// EnvelopesQueued tracks envelopes buffered for an offline peer
	EnvelopesQueued = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "envelopes",
			Name:      "queued_total",
			Help:      "Total number of envelopes queued for an offline peer",
		},
	)

	// EnvelopesDropped tracks envelopes discarded instead of routed or queued
	EnvelopesDropped = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "envelopes",
			Name:      "dropped_total",
			Help:      "Total number of envelopes dropped",
		},
		[]string{"reason"}, // queue_full, ttl_expired, session_unknown, key_rotated, peer_absent, peer_write_failed
	)

	// QueueDepth tracks the number of envelopes held per session at enqueue time
	QueueDepth = promauto.With(Registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "envelopes",
			Name:      "queue_depth",
			Help:      "Queue depth observed when an envelope is queued",
			Buckets:   prometheus.LinearBuckets(0, 4, 16), // 0..60
		},
	)

	// EnvelopeSize tracks the ciphertext size of routed or queued envelopes
	EnvelopeSize = promauto.With(Registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "envelopes",
			Name:      "size_bytes",
			Help:      "Envelope ciphertext size in bytes",
			Buckets:   prometheus.ExponentialBuckets(64, 4, 10), // 64B to 16MB
		},
	)

	// EnvelopeRoutingDuration tracks time spent handling a single envelope frame
	EnvelopeRoutingDuration = promauto.With(Registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "envelopes",
			Name:      "routing_duration_seconds",
			Help:      "Time spent routing or queueing a single envelope",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 12),
		},
	)
)
