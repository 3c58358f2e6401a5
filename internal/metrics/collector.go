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
	"sync"
	"time"
)

// Collector aggregates lightweight in-process counters that a `doomcode
// status` subcommand or a supervisor can inspect directly, without scraping
// /metrics. It mirrors a subset of the Prometheus series declared elsewhere
// in this package but carries no labels and never touches the network.
type Collector struct {
	mu sync.RWMutex

	EnvelopesRouted  int64
	EnvelopesQueued  int64
	EnvelopesDropped int64
	PTYBytesRead     int64
	PTYBytesWritten  int64
	ScannerHits      int64

	RoutingTimes []int64 // microseconds

	startTime time.Time

	maxTimingSamples int
}

// NewCollector creates a new in-process collector.
func NewCollector() *Collector {
	return &Collector{
		startTime:        time.Now(),
		maxTimingSamples: 1000, // keep last 1000 samples
	}
}

// RecordRouted records an envelope forwarded directly to a connected peer.
func (c *Collector) RecordRouted(duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.EnvelopesRouted++
	c.recordTiming(duration)
}

// RecordQueued records an envelope buffered for an offline peer.
func (c *Collector) RecordQueued() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.EnvelopesQueued++
}

// RecordDropped records an envelope discarded instead of routed or queued.
func (c *Collector) RecordDropped() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.EnvelopesDropped++
}

// RecordPTYIO records bytes moved across the supervised PTY in one direction.
func (c *Collector) RecordPTYIO(read bool, n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if read {
		c.PTYBytesRead += int64(n)
	} else {
		c.PTYBytesWritten += int64(n)
	}
}

// RecordScannerHit records a permission-prompt or diff detection.
func (c *Collector) RecordScannerHit() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ScannerHits++
}

func (c *Collector) recordTiming(duration time.Duration) {
	microseconds := duration.Microseconds()
	c.RoutingTimes = append(c.RoutingTimes, microseconds)

	if len(c.RoutingTimes) > c.maxTimingSamples {
		c.RoutingTimes = c.RoutingTimes[len(c.RoutingTimes)-c.maxTimingSamples:]
	}
}

// Snapshot is a point-in-time copy of the collector's counters.
type Snapshot struct {
	Timestamp time.Time
	Uptime    time.Duration

	EnvelopesRouted  int64
	EnvelopesQueued  int64
	EnvelopesDropped int64
	PTYBytesRead     int64
	PTYBytesWritten  int64
	ScannerHits      int64

	AvgRoutingTime float64
	P95RoutingTime int64
}

// GetSnapshot returns a snapshot of current counters.
func (c *Collector) GetSnapshot() *Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return &Snapshot{
		Timestamp:        time.Now(),
		Uptime:           time.Since(c.startTime),
		EnvelopesRouted:  c.EnvelopesRouted,
		EnvelopesQueued:  c.EnvelopesQueued,
		EnvelopesDropped: c.EnvelopesDropped,
		PTYBytesRead:     c.PTYBytesRead,
		PTYBytesWritten:  c.PTYBytesWritten,
		ScannerHits:      c.ScannerHits,
		AvgRoutingTime:   calculateAverage(c.RoutingTimes),
		P95RoutingTime:   calculatePercentile(c.RoutingTimes, 95),
	}
}

// Reset zeroes all counters and restarts the uptime clock.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.EnvelopesRouted = 0
	c.EnvelopesQueued = 0
	c.EnvelopesDropped = 0
	c.PTYBytesRead = 0
	c.PTYBytesWritten = 0
	c.ScannerHits = 0
	c.RoutingTimes = nil
	c.startTime = time.Now()
}

// DropRate returns the share of handled envelopes that were dropped, as a percentage.
func (s *Snapshot) DropRate() float64 {
	total := s.EnvelopesRouted + s.EnvelopesQueued + s.EnvelopesDropped
	if total == 0 {
		return 0
	}
	return float64(s.EnvelopesDropped) / float64(total) * 100
}

// Helper functions

func calculateAverage(values []int64) float64 {
	if len(values) == 0 {
		return 0
	}

	var sum int64
	for _, v := range values {
		sum += v
	}
	return float64(sum) / float64(len(values))
}

func calculatePercentile(values []int64, percentile int) int64 {
	if len(values) == 0 {
		return 0
	}

	// Simple implementation - for production, use a proper percentile algorithm
	index := len(values) * percentile / 100
	if index >= len(values) {
		index = len(values) - 1
	}

	// Create a copy and sort (simple bubble sort for small datasets)
	sorted := make([]int64, len(values))
	copy(sorted, values)

	for i := 0; i < len(sorted)-1; i++ {
		for j := 0; j < len(sorted)-i-1; j++ {
			if sorted[j] > sorted[j+1] {
				sorted[j], sorted[j+1] = sorted[j+1], sorted[j]
			}
		}
	}

	return sorted[index]
}

// globalCollector is the process-wide in-process collector instance.
var globalCollector = NewCollector()

// GetGlobalCollector returns the global in-process collector.
func GetGlobalCollector() *Collector {
	return globalCollector
}
