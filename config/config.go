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

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// LoadFromFile loads configuration from a YAML or JSON file, trying YAML first.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		if jsonErr := json.Unmarshal(data, cfg); jsonErr != nil {
			return nil, fmt.Errorf("failed to parse config file (tried YAML and JSON): %w", err)
		}
	}

	setDefaults(cfg)

	return cfg, nil
}

// SaveToFile saves configuration to a file, choosing the format by extension.
func SaveToFile(cfg *Config, path string) error {
	var data []byte
	var err error

	if strings.HasSuffix(path, ".json") {
		data, err = json.MarshalIndent(cfg, "", "  ")
	} else {
		data, err = yaml.Marshal(cfg)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// setDefaults fills in zero-valued fields with the binary's documented defaults.
func setDefaults(cfg *Config) {
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}

	if cfg.Relay != nil {
		if cfg.Relay.ListenAddr == "" {
			cfg.Relay.ListenAddr = ":8443"
		}
		if cfg.Relay.SessionTTL == 0 {
			cfg.Relay.SessionTTL = 30 * time.Minute
		}
		if cfg.Relay.QueueTTL == 0 {
			cfg.Relay.QueueTTL = 5 * time.Minute
		}
		if cfg.Relay.QueueMaxPerSession == 0 {
			cfg.Relay.QueueMaxPerSession = 256
		}
		if cfg.Relay.Store == nil {
			cfg.Relay.Store = &StoreConfig{Backend: "memory"}
		}
		if cfg.Relay.Store.Backend == "" {
			cfg.Relay.Store.Backend = "memory"
		}
	}

	if cfg.Controller != nil {
		if cfg.Controller.ReconnectBackoff == 0 {
			cfg.Controller.ReconnectBackoff = 500 * time.Millisecond
		}
		if cfg.Controller.ReconnectMaxBackoff == 0 {
			cfg.Controller.ReconnectMaxBackoff = 30 * time.Second
		}
		if cfg.Controller.PTYBackend == "" {
			cfg.Controller.PTYBackend = "native"
		}
		if cfg.Controller.CacheFile == "" {
			cfg.Controller.CacheFile = ".doomcode/session.json"
		}
		if cfg.Controller.PatchHistorySize == 0 {
			cfg.Controller.PatchHistorySize = 50
		}
		if cfg.Controller.PatchMaxRestoreBytes == 0 {
			cfg.Controller.PatchMaxRestoreBytes = 1 << 20 // 1 MiB
		}
		if cfg.Controller.ScanWindowBytes == 0 {
			cfg.Controller.ScanWindowBytes = 64 * 1024
		}
	}

	if cfg.Logging != nil {
		if cfg.Logging.Level == "" {
			cfg.Logging.Level = "info"
		}
		if cfg.Logging.Format == "" {
			cfg.Logging.Format = "json"
		}
		if cfg.Logging.Output == "" {
			cfg.Logging.Output = "stdout"
		}
	}

	if cfg.Metrics != nil {
		if cfg.Metrics.Addr == "" {
			cfg.Metrics.Addr = ":9090"
		}
		if cfg.Metrics.Path == "" {
			cfg.Metrics.Path = "/metrics"
		}
	}
}
