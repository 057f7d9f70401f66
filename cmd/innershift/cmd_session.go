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

	"github.com/InnerShiftAI/InnerShiftCore/pkg/ux"
	"github.com/InnerShiftAI/InnerShiftCore/services/engine/datatypes"
	"github.com/InnerShiftAI/InnerShiftCore/services/protocol"
)

// =============================================================================
// One-Shot Session Commands
// =============================================================================

// runStartSession opens a session and prints its first prompt. With
// --work-type the welcome menu is answered server-side and the first
// prompt is already the matching intake question.
func runStartSession(cmd *cobra.Command, args []string) {
	start := time.Now()
	client := NewEngineClient(cliConfig)

	turn, err := client.StartSession(context.Background(), startWorkType)
	if sessionJSONOutput {
		os.Exit(OutputResult(OutputConfig{JSON: true}, "session start", start, turn, false, err))
	}
	if err != nil {
		ux.Error(err.Error())
		os.Exit(CLIExitError)
	}

	ux.KV("Session", turn.SessionID)
	renderTurn(turn)
	ux.Muted(fmt.Sprintf("Continue with: innershift session run %s", turn.SessionID))
}

// runAdvanceSession submits one reply and prints the next prompt. Useful
// for scripting; interactive work goes through `session run`.
func runAdvanceSession(cmd *cobra.Command, args []string) {
	start := time.Now()
	client := NewEngineClient(cliConfig)

	turn, err := client.Advance(context.Background(), args[0], args[1])
	if sessionJSONOutput {
		os.Exit(OutputResult(OutputConfig{JSON: true}, "session advance", start, turn, false, err))
	}
	if err != nil {
		ux.Error(err.Error())
		os.Exit(CLIExitError)
	}
	renderTurn(turn)
}

// runListSessions prints the tenant's sessions, most recently updated
// first.
func runListSessions(cmd *cobra.Command, args []string) {
	start := time.Now()
	client := NewEngineClient(cliConfig)

	list, err := client.ListSessions(context.Background())
	if sessionJSONOutput {
		os.Exit(OutputResult(OutputConfig{JSON: true}, "session list", start, list, false, err))
	}
	if err != nil {
		ux.Error(err.Error())
		os.Exit(CLIExitError)
	}

	if list.Count == 0 {
		fmt.Println("No sessions found.")
		return
	}

	ux.Title(fmt.Sprintf("Sessions (%d)", list.Count))
	for _, s := range list.Sessions {
		printSessionResource(s)
		fmt.Println()
	}
}

// runGetSession prints one session's state.
func runGetSession(cmd *cobra.Command, args []string) {
	start := time.Now()
	client := NewEngineClient(cliConfig)

	res, err := client.GetSession(context.Background(), args[0])
	if sessionJSONOutput {
		os.Exit(OutputResult(OutputConfig{JSON: true}, "session get", start, res, false, err))
	}
	if err != nil {
		ux.Error(err.Error())
		os.Exit(CLIExitError)
	}
	printSessionResource(*res)
}

// runDeleteSession removes one session.
func runDeleteSession(cmd *cobra.Command, args []string) {
	client := NewEngineClient(cliConfig)

	if err := client.DeleteSession(context.Background(), args[0]); err != nil {
		ux.Error(err.Error())
		os.Exit(CLIExitError)
	}
	ux.Success(fmt.Sprintf("Deleted session %s", args[0]))
}

// =============================================================================
// Rendering
// =============================================================================

// renderTurn shows one turn for the one-shot commands: the prompt plus
// the options a caller would pick from next. The interactive runner uses
// renderPrompt alone and lets the prompter present the input surface.
func renderTurn(turn *protocol.Turn) {
	renderPrompt(turn)
	if !turn.IsTerminal && len(turn.Buttons) > 0 {
		ux.Options(turn.Buttons, turn.Labels)
	}
}

// printSessionResource renders one session read-model as key/value lines.
func printSessionResource(s datatypes.SessionResource) {
	ux.KV("ID", s.SessionID)
	ux.KV("Status", s.Status)
	if s.Method != "" {
		ux.KV("Method", s.Method)
	}
	ux.KV("Step", s.CurrentStepID)
	if s.CycleCount > 0 {
		ux.KV("Cycles", fmt.Sprintf("%d", s.CycleCount))
	}
	if s.ProblemStatement != "" {
		ux.KV("Problem", s.ProblemStatement)
	}
	ux.KV("Updated", time.UnixMilli(s.UpdatedAtMs).Local().Format(time.RFC3339))
}
