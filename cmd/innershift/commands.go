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
	"log"

	"github.com/spf13/cobra"

	"github.com/InnerShiftAI/InnerShiftCore/pkg/ux"
)

// --- Global Command Variables ---
var (
	serverOverride string // CLI override for server_url
	apiKeyOverride string // CLI override for api_key
	tenantOverride string // CLI override for tenant
	plainOutput    bool   // Disable colors, spinners, and forms

	startWorkType     string // Pre-answers the welcome menu (problem/goal/negative_experience)
	sessionJSONOutput bool   // Output as JSON for scripting

	rootCmd = &cobra.Command{
		Use:   "innershift",
		Short: "A cli for running guided transformation sessions against the engine",
		Long: `Innershift is the client for the InnerShift protocol engine. It starts,
				resumes, and inspects guided sessions over the engine's HTTP and
				websocket API.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cfg, err := loadConfig()
			if err != nil {
				log.Fatalf("Error loading the CLI config: %v", err)
			}
			if serverOverride != "" {
				cfg.ServerURL = serverOverride
			}
			if apiKeyOverride != "" {
				cfg.APIKey = apiKeyOverride
			}
			if tenantOverride != "" {
				cfg.Tenant = tenantOverride
			}
			if plainOutput {
				cfg.Plain = true
			}
			cliConfig = cfg

			if cliConfig.Plain {
				ux.SetPlain(true)
			} else {
				ux.InitTerminal()
			}
		},
	}

	// --- Sessions ---
	sessionCmd = &cobra.Command{
		Use:   "session",
		Short: "Manage guided sessions on the engine",
	}
	startSessionCmd = &cobra.Command{
		Use:   "start",
		Short: "Open a new session and print its first prompt",
		Run:   runStartSession, // Defined in cmd_session.go
	}
	runSessionCmd = &cobra.Command{
		Use:   "run [session_id]",
		Short: "Work through a session interactively over the turn stream",
		Args:  cobra.MaximumNArgs(1),
		Run:   runSessionLoop, // Defined in session_runner.go
	}
	advanceSessionCmd = &cobra.Command{
		Use:   "advance [session_id] [input]",
		Short: "Submit one reply and print the next prompt",
		Args:  cobra.ExactArgs(2),
		Run:   runAdvanceSession, // Defined in cmd_session.go
	}
	listSessionsCmd = &cobra.Command{
		Use:   "list",
		Short: "List the tenant's sessions",
		Run:   runListSessions, // Defined in cmd_session.go
	}
	getSessionCmd = &cobra.Command{
		Use:   "get [session_id]",
		Short: "Show one session's state",
		Args:  cobra.ExactArgs(1),
		Run:   runGetSession, // Defined in cmd_session.go
	}
	deleteSessionCmd = &cobra.Command{
		Use:   "delete [session_id]",
		Short: "Delete a specific session",
		Args:  cobra.ExactArgs(1),
		Run:   runDeleteSession, // Defined in cmd_session.go
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the CLI version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("innershift %s\n", cliVersion)
		},
	}
)

// init runs when the Go program starts
func init() {
	rootCmd.PersistentFlags().StringVar(&serverOverride, "server", "",
		"Engine base URL (overrides the config file)")
	rootCmd.PersistentFlags().StringVar(&apiKeyOverride, "api-key", "",
		"Engine API key (overrides the config file)")
	rootCmd.PersistentFlags().StringVar(&tenantOverride, "tenant", "",
		"Tenant ID sent with every request (overrides the config file)")
	rootCmd.PersistentFlags().BoolVar(&plainOutput, "plain", false,
		"Plain output: no colors, spinners, or interactive forms")

	// session commands
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(startSessionCmd)
	startSessionCmd.Flags().StringVar(&startWorkType, "work-type", "",
		"Pre-answer the welcome menu: problem, goal, or negative_experience")
	startSessionCmd.Flags().BoolVar(&sessionJSONOutput, "json", false, "Output as JSON for scripting")

	sessionCmd.AddCommand(runSessionCmd)
	runSessionCmd.Flags().StringVar(&startWorkType, "work-type", "",
		"Pre-answer the welcome menu when opening a new session")

	sessionCmd.AddCommand(advanceSessionCmd)
	advanceSessionCmd.Flags().BoolVar(&sessionJSONOutput, "json", false, "Output as JSON for scripting")

	sessionCmd.AddCommand(listSessionsCmd)
	listSessionsCmd.Flags().BoolVar(&sessionJSONOutput, "json", false, "Output as JSON for scripting")

	sessionCmd.AddCommand(getSessionCmd)
	getSessionCmd.Flags().BoolVar(&sessionJSONOutput, "json", false, "Output as JSON for scripting")

	sessionCmd.AddCommand(deleteSessionCmd)

	// health command, defined in cmd_health.go
	rootCmd.AddCommand(healthCmd)

	rootCmd.AddCommand(versionCmd)
}
