// Copyright (C) 2025 InnerShift AI (engineering@innershift.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestDefaultCLIConfig tests that first-run defaults point at a local engine.
func TestDefaultCLIConfig(t *testing.T) {
	cfg := DefaultCLIConfig()

	if cfg.ServerURL != "http://localhost:9180" {
		t.Errorf("ServerURL = %s, want http://localhost:9180", cfg.ServerURL)
	}
	if cfg.Tenant != "local" {
		t.Errorf("Tenant = %s, want local", cfg.Tenant)
	}
	if cfg.APIKey != "" {
		t.Errorf("APIKey = %s, want empty", cfg.APIKey)
	}
	if cfg.TimeoutSeconds != 30 {
		t.Errorf("TimeoutSeconds = %d, want 30", cfg.TimeoutSeconds)
	}
}

// TestConfigTimeout tests the duration conversion and its floor.
func TestConfigTimeout(t *testing.T) {
	tests := []struct {
		name     string
		seconds  int
		expected time.Duration
	}{
		{name: "configured value", seconds: 10, expected: 10 * time.Second},
		{name: "zero falls back", seconds: 0, expected: 30 * time.Second},
		{name: "negative falls back", seconds: -5, expected: 30 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{TimeoutSeconds: tt.seconds}
			if got := cfg.Timeout(); got != tt.expected {
				t.Errorf("Timeout() = %v, want %v", got, tt.expected)
			}
		})
	}
}

// TestLoadConfig_FirstRunCreatesFile tests that a missing config file is
// created with defaults instead of failing.
func TestLoadConfig_FirstRunCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "innershift.yaml")
	t.Setenv("INNERSHIFT_CONFIG", path)

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config file was not created: %v", err)
	}
	if cfg.ServerURL != DefaultCLIConfig().ServerURL {
		t.Errorf("ServerURL = %s, want default", cfg.ServerURL)
	}
}

// TestLoadConfig_ReadsExisting tests that a hand-written config is honored
// and missing keys keep their defaults.
func TestLoadConfig_ReadsExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "innershift.yaml")
	content := "server_url: https://engine.example.com\ntenant: acme\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	t.Setenv("INNERSHIFT_CONFIG", path)

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}

	if cfg.ServerURL != "https://engine.example.com" {
		t.Errorf("ServerURL = %s, want https://engine.example.com", cfg.ServerURL)
	}
	if cfg.Tenant != "acme" {
		t.Errorf("Tenant = %s, want acme", cfg.Tenant)
	}
	// Keys absent from the file keep their defaults.
	if cfg.TimeoutSeconds != 30 {
		t.Errorf("TimeoutSeconds = %d, want default 30", cfg.TimeoutSeconds)
	}
}

// TestLoadConfig_EnvOverrides tests that environment variables win over
// the config file.
func TestLoadConfig_EnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "innershift.yaml")
	content := "server_url: http://file.example.com\ntenant: from-file\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	t.Setenv("INNERSHIFT_CONFIG", path)
	t.Setenv("INNERSHIFT_SERVER_URL", "http://env.example.com")
	t.Setenv("INNERSHIFT_TENANT", "from-env")
	t.Setenv("INNERSHIFT_API_KEY", "sekret")

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}

	if cfg.ServerURL != "http://env.example.com" {
		t.Errorf("ServerURL = %s, want env override", cfg.ServerURL)
	}
	if cfg.Tenant != "from-env" {
		t.Errorf("Tenant = %s, want env override", cfg.Tenant)
	}
	if cfg.APIKey != "sekret" {
		t.Errorf("APIKey = %s, want env override", cfg.APIKey)
	}
}

// TestLoadConfig_BadYAML tests that a corrupt config file is reported,
// not silently replaced.
func TestLoadConfig_BadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "innershift.yaml")
	if err := os.WriteFile(path, []byte("server_url: [unclosed"), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	t.Setenv("INNERSHIFT_CONFIG", path)

	if _, err := loadConfig(); err == nil {
		t.Error("loadConfig() = nil error, want parse failure")
	}
}
