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
	// PTYSpawns tracks subprocess starts per backend
	PTYSpawns = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pty",
			Name:      "spawns_total",
			Help:      "Total number of supervised subprocesses started",
		},
		[]string{"backend"}, // native, bridge
	)

	// PTYExits tracks subprocess termination by reason
	PTYExits = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pty",
			Name:      "exits_total",
			Help:      "Total number of supervised subprocess exits",
		},
		[]string{"reason"}, // normal, signal, stop_requested, error
	)

	// PTYBytes tracks raw byte flow between the supervisor and the subprocess
	PTYBytes = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pty",
			Name:      "bytes_total",
			Help:      "Total bytes transferred over the PTY",
		},
		[]string{"direction"}, // read, write
	)

	// ScannerDetections tracks permission-prompt and diff hits found in PTY output
	ScannerDetections = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scanner",
			Name:      "detections_total",
			Help:      "Total number of scanner detections in PTY output",
		},
		[]string{"kind"}, // permission_prompt, diff
	)

	// PatchOperations tracks patch tracker prepare/finalize/undo outcomes
	PatchOperations = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "patches",
			Name:      "operations_total",
			Help:      "Total number of patch tracker operations",
		},
		[]string{"operation", "status"}, // prepare/finalize/undo, success/failure
	)

	// LogEvents tracks emitted log records by level, so a spike in warnings
	// or errors shows up on the same dashboard as the rest of the system
	// without needing a log-scraping sidecar.
	LogEvents = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "log",
			Name:      "events_total",
			Help:      "Total number of log records emitted, by level",
		},
		[]string{"level"},
	)
)
