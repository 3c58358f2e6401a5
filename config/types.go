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

package config

import "time"

// Config is the root configuration structure shared by the relay and
// controller binaries. Only the sections relevant to the running binary
// need to be populated; the other is left nil and its defaults ignored.
type Config struct {
	Environment string           `yaml:"environment" json:"environment"`
	Relay       *RelayConfig     `yaml:"relay" json:"relay"`
	Controller  *ControllerConfig `yaml:"controller" json:"controller"`
	Logging     *LoggingConfig   `yaml:"logging" json:"logging"`
	Metrics     *MetricsConfig   `yaml:"metrics" json:"metrics"`
}

// RelayConfig configures the cloud relay process.
type RelayConfig struct {
	ListenAddr      string        `yaml:"listen_addr" json:"listen_addr"`
	SessionTTL      time.Duration `yaml:"session_ttl" json:"session_ttl"`
	QueueTTL        time.Duration `yaml:"queue_ttl" json:"queue_ttl"`
	QueueMaxPerSession int        `yaml:"queue_max_per_session" json:"queue_max_per_session"`
	Store           *StoreConfig  `yaml:"store" json:"store"`
}

// StoreConfig selects and configures the relay's session/queue backing store.
type StoreConfig struct {
	Backend     string `yaml:"backend" json:"backend"` // memory, postgres
	PostgresDSN string `yaml:"postgres_dsn" json:"postgres_dsn"`
}

// ControllerConfig configures the controller-side supervisor process.
type ControllerConfig struct {
	RelayURL         string        `yaml:"relay_url" json:"relay_url"`
	ReconnectBackoff time.Duration `yaml:"reconnect_backoff" json:"reconnect_backoff"`
	ReconnectMaxBackoff time.Duration `yaml:"reconnect_max_backoff" json:"reconnect_max_backoff"`
	PTYBackend       string        `yaml:"pty_backend" json:"pty_backend"` // native, bridge
	CacheFile        string        `yaml:"cache_file" json:"cache_file"`
	PatchHistorySize int           `yaml:"patch_history_size" json:"patch_history_size"`
	PatchMaxRestoreBytes int64     `yaml:"patch_max_restore_bytes" json:"patch_max_restore_bytes"`
	ScanWindowBytes  int           `yaml:"scan_window_bytes" json:"scan_window_bytes"`
}

// LoggingConfig controls the structured logger.
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"` // json, pretty
	Output string `yaml:"output" json:"output"` // stdout, stderr, file path
}

// MetricsConfig controls the Prometheus exposition endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Addr    string `yaml:"addr" json:"addr"`
	Path    string `yaml:"path" json:"path"`
}
