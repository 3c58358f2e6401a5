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
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_NoFilesFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(LoaderOptions{
		ConfigDir:   t.TempDir(),
		Environment: "test",
	})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Environment != "test" {
		t.Errorf("Environment = %q, want %q", cfg.Environment, "test")
	}
}

func TestLoad_EnvironmentSpecificFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "staging.yaml")
	if err := os.WriteFile(path, []byte("environment: staging\nrelay:\n  listen_addr: \":7000\"\n"), 0o644); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}

	cfg, err := Load(LoaderOptions{ConfigDir: dir, Environment: "staging"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Relay.ListenAddr != ":7000" {
		t.Errorf("Relay.ListenAddr = %q, want %q", cfg.Relay.ListenAddr, ":7000")
	}
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "development.yaml")
	fixture := "environment: development\nrelay:\n  listen_addr: \":8443\"\ncontroller:\n  relay_url: \"wss://default\"\nlogging:\n  level: info\n"
	if err := os.WriteFile(path, []byte(fixture), 0o644); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}

	os.Setenv("DOOMCODE_RELAY_URL", "wss://override.example.com")
	os.Setenv("DOOMCODE_LOG_LEVEL", "debug")
	defer os.Unsetenv("DOOMCODE_RELAY_URL")
	defer os.Unsetenv("DOOMCODE_LOG_LEVEL")

	cfg, err := Load(LoaderOptions{ConfigDir: dir, Environment: "development"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Controller.RelayURL != "wss://override.example.com" {
		t.Errorf("Controller.RelayURL = %q, want override applied", cfg.Controller.RelayURL)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "debug")
	}
}

func TestMustLoad_FallsBackOnMalformedFile(t *testing.T) {
	// A malformed env-specific file is skipped in favor of the empty-config
	// fallback rather than raising an error; MustLoad must not panic here.
	dir := t.TempDir()
	path := dir + "/broken.yaml"
	if err := os.WriteFile(path, []byte("environment: [this is not valid: yaml"), 0o644); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}

	cfg := MustLoad(LoaderOptions{ConfigDir: dir, Environment: "broken"})
	if cfg.Environment != "broken" {
		t.Errorf("Environment = %q, want %q", cfg.Environment, "broken")
	}
}

func TestLoadForEnvironment(t *testing.T) {
	cfg, err := LoadForEnvironment("production")
	if err != nil {
		t.Fatalf("LoadForEnvironment() error = %v", err)
	}
	if cfg.Environment != "production" {
		t.Errorf("Environment = %q, want %q", cfg.Environment, "production")
	}
}
