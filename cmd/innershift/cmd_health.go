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
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/InnerShiftAI/InnerShiftCore/pkg/ux"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	healthJSONOutput bool   // Output as JSON
	healthTimeout    string // Per-probe timeout (e.g. "5s")
)

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

// healthCmd probes the engine's health and metrics endpoints.
//
// # Description
//
// Checks the configured engine from the client's side of the network:
// the /health endpoint for liveness and /metrics for the Prometheus
// scrape surface. Probes run concurrently and each reports its latency.
//
// # Examples
//
//	innershift health            # Human-readable report
//	innershift health --json     # JSON output for scripting
//
// # Limitations
//
//   - Reports reachability, not protocol correctness
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check the engine's health and metrics endpoints",
	Long: `Probes the configured engine service from this machine.

Checks run concurrently:
  - GET /health   liveness and service identity
  - GET /metrics  Prometheus scrape surface

Exit codes: 0 healthy, 1 degraded, 2 unreachable.`,
	Run: runHealthCommand,
}

// =============================================================================
// COMMAND INITIALIZATION
// =============================================================================

func init() {
	healthCmd.Flags().BoolVar(&healthJSONOutput, "json", false,
		"Output as JSON for scripting")
	healthCmd.Flags().StringVar(&healthTimeout, "timeout", "5s",
		"Per-probe timeout (e.g. 5s, 30s)")
}

// =============================================================================
// COMMAND IMPLEMENTATION
// =============================================================================

// ProbeResult is one endpoint's outcome.
type ProbeResult struct {
	Name      string `json:"name"`
	Healthy   bool   `json:"healthy"`
	LatencyMs int64  `json:"latency_ms"`
	Detail    string `json:"detail,omitempty"`
	Error     string `json:"error,omitempty"`
}

// HealthReport aggregates the probes for one engine.
type HealthReport struct {
	Server  string        `json:"server"`
	Healthy bool          `json:"healthy"`
	Probes  []ProbeResult `json:"probes"`
}

// runHealthCommand probes the engine and reports the results.
func runHealthCommand(cmd *cobra.Command, args []string) {
	start := time.Now()

	timeout, err := time.ParseDuration(healthTimeout)
	if err != nil {
		OutputError(healthJSONOutput, "Invalid timeout", err)
		os.Exit(CLIExitError)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	report := probeEngine(ctx, NewEngineClient(cliConfig))

	if healthJSONOutput {
		os.Exit(OutputResult(OutputConfig{JSON: true}, "health", start, report, !report.Healthy, nil))
	}

	printHealthReport(report)
	if !report.Healthy {
		os.Exit(CLIExitFindings)
	}
}

// probeEngine runs the endpoint probes concurrently. Probe failures are
// findings, not command errors, so the errgroup members never return
// non-nil; the group exists for the shared context and the join.
func probeEngine(ctx context.Context, client *EngineClient) HealthReport {
	report := HealthReport{Server: client.baseURL}
	results := make([]ProbeResult, 2)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		began := time.Now()
		payload, err := client.Health(gCtx)
		res := ProbeResult{Name: "health", LatencyMs: time.Since(began).Milliseconds()}
		if err != nil {
			res.Error = err.Error()
		} else {
			res.Healthy = true
			if svc, ok := payload["service"].(string); ok {
				res.Detail = svc
			}
		}
		results[0] = res
		return nil
	})

	g.Go(func() error {
		began := time.Now()
		err := client.MetricsUp(gCtx)
		res := ProbeResult{Name: "metrics", LatencyMs: time.Since(began).Milliseconds()}
		if err != nil {
			res.Error = err.Error()
		} else {
			res.Healthy = true
		}
		results[1] = res
		return nil
	})

	// Probes record their own failures.
	_ = g.Wait()

	report.Probes = results
	report.Healthy = true
	for _, p := range results {
		if !p.Healthy {
			report.Healthy = false
		}
	}
	return report
}

// printHealthReport renders the human-readable report.
func printHealthReport(report HealthReport) {
	ux.Title(fmt.Sprintf("Engine health: %s", report.Server))
	for _, p := range report.Probes {
		label := fmt.Sprintf("%s (%dms)", p.Name, p.LatencyMs)
		switch {
		case p.Healthy && p.Detail != "":
			ux.Success(fmt.Sprintf("%s: %s", label, p.Detail))
		case p.Healthy:
			ux.Success(label)
		default:
			ux.Error(fmt.Sprintf("%s: %s", label, p.Error))
		}
	}
}
