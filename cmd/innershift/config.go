// Copyright (C) 2025 InnerShift AI (engineering@innershift.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// CLI Configuration
// =============================================================================

// Config is the CLI's client-side configuration. It is read from
// ~/.innershift/innershift.yaml on startup and overridden by environment
// variables and flags, in that order.
type Config struct {
	// ServerURL is the engine service's base URL.
	ServerURL string `yaml:"server_url"`

	// APIKey is sent as X-API-Key. Leave empty for an open engine.
	APIKey string `yaml:"api_key,omitempty"`

	// Tenant is sent as X-Tenant-ID and scopes every session operation.
	Tenant string `yaml:"tenant"`

	// TimeoutSeconds bounds each HTTP request.
	TimeoutSeconds int `yaml:"timeout_seconds"`

	// Plain disables colors, spinners, and interactive forms.
	Plain bool `yaml:"plain,omitempty"`
}

// Timeout returns the per-request timeout as a duration.
func (c Config) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// DefaultCLIConfig returns the configuration written on first run.
func DefaultCLIConfig() Config {
	return Config{
		ServerURL:      "http://localhost:9180",
		Tenant:         "local",
		TimeoutSeconds: 30,
	}
}

// =============================================================================
// Loading
// =============================================================================

// configPath returns the CLI config file location, honoring the
// INNERSHIFT_CONFIG override used by tests and containerized setups.
func configPath() (string, error) {
	if p := os.Getenv("INNERSHIFT_CONFIG"); p != "" {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not find the user's home directory: %w", err)
	}
	return filepath.Join(home, ".innershift", "innershift.yaml"), nil
}

// loadConfig reads the config file, creating it with defaults on first run,
// then applies environment overrides.
func loadConfig() (Config, error) {
	path, err := configPath()
	if err != nil {
		return Config{}, err
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		fmt.Printf("First run detected, creating the config at %s\n", path)
		if err := createDefault(path); err != nil {
			return Config{}, err
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read the config file: %w", err)
	}

	cfg := DefaultCLIConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	applyEnvOverrides(&cfg)
	return cfg, nil
}

// applyEnvOverrides lets CI and scripts point the CLI at another engine
// without editing the config file.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("INNERSHIFT_SERVER_URL"); v != "" {
		cfg.ServerURL = v
	}
	if v := os.Getenv("INNERSHIFT_API_KEY"); v != "" {
		cfg.APIKey = v
	}
	if v := os.Getenv("INNERSHIFT_TENANT"); v != "" {
		cfg.Tenant = v
	}
}

func createDefault(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create the config directory: %w", err)
	}
	data, err := yaml.Marshal(DefaultCLIConfig())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
