// Copyright (C) 2025 InnerShift AI (engineering@innershift.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command engine starts the InnerShift protocol engine HTTP server.
//
// This is the main entry point for the containerized engine service. It
// reads configuration from environment variables and starts the server.
//
// # Environment Variables
//
//   - ENGINE_PORT: HTTP server port (default: 9180)
//   - ENGINE_API_KEY: Shared API key; empty runs the engine open (default: empty)
//   - ENGINE_STORE_PATH: Badger session store directory (default: ./data/sessions)
//   - ENGINE_SESSION_TTL: Storage TTL per session record, e.g. 720h (optional)
//   - ENGINE_SCRIPT_OVERRIDES_DIR: Hot-reloaded wording overrides (optional)
//   - ENGINE_AI_TIMEOUT: Per-escalation AI budget, e.g. 5s (optional)
//   - ENGINE_JANITOR_INTERVAL: Sweep cadence for stale sessions (optional)
//   - ENGINE_IDLE_TTL: Idle session cutoff for the janitor (optional)
//   - ENGINE_COMPLETED_TTL: Completed session cutoff for the janitor (optional)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OpenTelemetry collector (default: innershift-otel-collector:4317)
//   - INNERSHIFT_AI_PROVIDER / INNERSHIFT_AI_MODEL: AI clarifier backend (optional)
//
// # Usage
//
//	# Build
//	go build -o engine ./cmd/engine
//
//	# Run
//	./engine
//
//	# Or via container
//	podman-compose up engine
package main

import (
	"log"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/InnerShiftAI/InnerShiftCore/pkg/logging"
	"github.com/InnerShiftAI/InnerShiftCore/services/engine"
)

func main() {
	// Setup structured logging
	logger := logging.New(logging.Config{Service: "engine", JSON: true})
	slog.SetDefault(logger.Slog())

	// Build configuration from environment variables
	cfg := engine.Config{
		Port:               getEnvInt("ENGINE_PORT", 9180),
		APIKey:             os.Getenv("ENGINE_API_KEY"),
		StorePath:          getEnvString("ENGINE_STORE_PATH", "./data/sessions"),
		SessionTTL:         getEnvDuration("ENGINE_SESSION_TTL", 0),
		ScriptOverridesDir: os.Getenv("ENGINE_SCRIPT_OVERRIDES_DIR"),
		AITimeout:          getEnvDuration("ENGINE_AI_TIMEOUT", 0),
		JanitorInterval:    getEnvDuration("ENGINE_JANITOR_INTERVAL", 0),
		IdleTTL:            getEnvDuration("ENGINE_IDLE_TTL", 0),
		CompletedTTL:       getEnvDuration("ENGINE_COMPLETED_TTL", 0),
		OTelEndpoint:       getEnvString("OTEL_EXPORTER_OTLP_ENDPOINT", "innershift-otel-collector:4317"),
		Logger:             logger,
	}

	slog.Info("Starting engine",
		"port", cfg.Port,
		"store_path", cfg.StorePath,
		"overrides_dir", cfg.ScriptOverridesDir,
		"auth", cfg.APIKey != "",
	)

	svc, err := engine.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create engine: %v", err)
	}

	// Run the server (blocks until shutdown)
	if err := svc.Run(); err != nil {
		log.Fatalf("Engine error: %v", err)
	}
}

// getEnvString returns the environment variable value or a default.
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns the environment variable as int or a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns the environment variable as a duration or a
// default. Bad values fall back rather than failing startup.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		slog.Warn("ignoring invalid duration", "var", key, "value", value)
	}
	return defaultValue
}
