// Copyright (C) 2025 InnerShift AI (engineering@innershift.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"encoding/json"
	"errors"
	"io"
	"os"
	"strings"
	"testing"
	"time"
)

// captureStderr collects everything f prints to stderr.
func captureStderr(t *testing.T, f func()) string {
	t.Helper()
	old := os.Stderr
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("failed to create pipe: %v", err)
	}
	os.Stderr = w
	f()
	w.Close()
	os.Stderr = old
	out, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("failed to read pipe: %v", err)
	}
	return string(out)
}

// TestOutputResult_QuietExitCodes tests that quiet mode maps outcomes to
// exit codes without printing.
func TestOutputResult_QuietExitCodes(t *testing.T) {
	tests := []struct {
		name        string
		hasFindings bool
		err         error
		expected    int
	}{
		{name: "success", expected: CLIExitSuccess},
		{name: "findings", hasFindings: true, expected: CLIExitFindings},
		{name: "error", err: errors.New("boom"), expected: CLIExitError},
		{name: "error wins over findings", hasFindings: true, err: errors.New("boom"), expected: CLIExitError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := captureStdout(t, func() {
				code := OutputResult(OutputConfig{Quiet: true}, "test", time.Now(), nil, tt.hasFindings, tt.err)
				if code != tt.expected {
					t.Errorf("exit code = %d, want %d", code, tt.expected)
				}
			})
			if out != "" {
				t.Errorf("quiet mode printed %q, want nothing", out)
			}
		})
	}
}

// TestOutputResult_JSONEnvelope tests the success envelope shape.
func TestOutputResult_JSONEnvelope(t *testing.T) {
	out := captureStdout(t, func() {
		code := OutputResult(OutputConfig{JSON: true}, "session list", time.Now(),
			map[string]int{"count": 2}, false, nil)
		if code != CLIExitSuccess {
			t.Errorf("exit code = %d, want success", code)
		}
	})

	var result CommandResult
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if result.APIVersion != "1.0" {
		t.Errorf("api_version = %s, want 1.0", result.APIVersion)
	}
	if result.Command != "session list" {
		t.Errorf("command = %s, want session list", result.Command)
	}
	if !result.Success {
		t.Error("success = false, want true")
	}
	if result.Error != "" {
		t.Errorf("error = %s, want empty", result.Error)
	}
}

// TestOutputResult_JSONError tests that failures still emit a decodable
// envelope on stdout.
func TestOutputResult_JSONError(t *testing.T) {
	out := captureStdout(t, func() {
		code := OutputResult(OutputConfig{JSON: true}, "health", time.Now(), nil, false,
			errors.New("engine unreachable"))
		if code != CLIExitError {
			t.Errorf("exit code = %d, want error", code)
		}
	})

	var result CommandResult
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if result.Success {
		t.Error("success = true, want false")
	}
	if !strings.Contains(result.Error, "engine unreachable") {
		t.Errorf("error = %q, want the failure message", result.Error)
	}
}

// TestOutputError_TextMode tests that human mode writes to stderr.
func TestOutputError_TextMode(t *testing.T) {
	out := captureStderr(t, func() {
		OutputError(false, "Command failed", errors.New("boom"))
	})
	if !strings.Contains(out, "Command failed") || !strings.Contains(out, "boom") {
		t.Errorf("stderr = %q, want the message and cause", out)
	}
}
