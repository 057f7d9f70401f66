// Copyright (C) 2025 InnerShift AI (engineering@innershift.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// This file implements the interactive session loop behind
// `innershift session run`. The loop rides the engine's websocket turn
// stream: the first frame replays the current prompt, each reply is one
// frame out, each new prompt one frame in. Session state lives entirely
// server-side, so dropping the connection at any point loses nothing.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/gorilla/websocket"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/InnerShiftAI/InnerShiftCore/pkg/ux"
	"github.com/InnerShiftAI/InnerShiftCore/services/engine/handlers"
	"github.com/InnerShiftAI/InnerShiftCore/services/protocol"
)

// errAborted signals that the user backed out of the session on purpose
// (ctrl-c in a form, EOF on a pipe). The runner treats it as a clean
// exit, not a failure.
var errAborted = errors.New("session aborted by user")

// =============================================================================
// TurnPrompter Interface
// =============================================================================

// TurnPrompter collects one reply for a rendered turn.
//
// # Description
//
// TurnPrompter abstracts the input surface so the runner works the same
// over interactive forms and piped stdin. The prompt text has already
// been rendered when Ask is called; implementations only present the
// input control the turn expects.
//
// # Outputs
//
// Ask returns the raw reply to submit, or errAborted when the user backs
// out. The engine's gate owns interpretation; prompters never normalize
// beyond trimming whitespace.
type TurnPrompter interface {
	Ask(turn *protocol.Turn) (string, error)
}

// newTurnPrompter picks the input surface for this invocation. Forms need
// a real terminal on stdin; pipes and plain mode fall back to line
// reading.
func newTurnPrompter() TurnPrompter {
	if ux.Plain() || (!isatty.IsTerminal(os.Stdin.Fd()) && !isatty.IsCygwinTerminal(os.Stdin.Fd())) {
		return NewLineReaderPrompter(os.Stdin)
	}
	return &FormPrompter{}
}

// =============================================================================
// FormPrompter Implementation
// =============================================================================

// FormPrompter presents each turn as a small interactive form: a select
// for menus, a confirm for yes/no checks, a text input for everything
// else.
type FormPrompter struct{}

// Ask presents the input control matching the turn's expected shape.
func (p *FormPrompter) Ask(turn *protocol.Turn) (string, error) {
	switch turn.Expect {
	case "button":
		return p.askSelect(turn)
	case "yes_no":
		return p.askConfirm()
	default:
		return p.askInput()
	}
}

func (p *FormPrompter) askSelect(turn *protocol.Turn) (string, error) {
	options := make([]huh.Option[string], 0, len(turn.Buttons))
	for i, b := range turn.Buttons {
		label := b
		if i < len(turn.Labels) && turn.Labels[i] != "" {
			label = turn.Labels[i]
		}
		options = append(options, huh.NewOption(label, b))
	}

	var choice string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Choose one").
				Options(options...).
				Value(&choice),
		),
	)
	if err := form.Run(); err != nil {
		return "", mapFormError(err)
	}
	return choice, nil
}

func (p *FormPrompter) askConfirm() (string, error) {
	var confirmed bool
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("What feels true?").
				Affirmative("Yes").
				Negative("No").
				Value(&confirmed),
		),
	)
	if err := form.Run(); err != nil {
		return "", mapFormError(err)
	}
	if confirmed {
		return "yes", nil
	}
	return "no", nil
}

func (p *FormPrompter) askInput() (string, error) {
	var answer string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Your answer").
				Placeholder("Speak in your own words").
				Validate(requireAnswer).
				Value(&answer),
		),
	)
	if err := form.Run(); err != nil {
		return "", mapFormError(err)
	}
	return strings.TrimSpace(answer), nil
}

// requireAnswer keeps empty replies from making a round trip just to be
// rejected by the engine's empty-input rule.
func requireAnswer(s string) error {
	if strings.TrimSpace(s) == "" {
		return errors.New("an answer is needed to continue")
	}
	return nil
}

func mapFormError(err error) error {
	if errors.Is(err, huh.ErrUserAborted) {
		return errAborted
	}
	return err
}

// =============================================================================
// LineReaderPrompter Implementation
// =============================================================================

// LineReaderPrompter reads replies line by line. It backs plain mode,
// piped stdin, and the runner tests.
type LineReaderPrompter struct {
	in *bufio.Reader
}

// NewLineReaderPrompter wraps r for line-oriented prompting.
func NewLineReaderPrompter(r io.Reader) *LineReaderPrompter {
	return &LineReaderPrompter{in: bufio.NewReader(r)}
}

// Ask prints the turn's options (forms render their own, line mode must
// list them) and reads one non-empty line. EOF maps to errAborted.
func (p *LineReaderPrompter) Ask(turn *protocol.Turn) (string, error) {
	if len(turn.Buttons) > 0 {
		ux.Options(turn.Buttons, turn.Labels)
	}
	for {
		fmt.Print("> ")
		line, err := p.in.ReadString('\n')
		line = strings.TrimSpace(line)
		if err != nil {
			if err == io.EOF && line != "" {
				// Last line of a pipe without a trailing newline.
				return line, nil
			}
			if err == io.EOF {
				return "", errAborted
			}
			return "", fmt.Errorf("read input: %w", err)
		}
		if line != "" {
			return line, nil
		}
	}
}

// =============================================================================
// Session Runner
// =============================================================================

// SessionRunner drives one session over the engine's turn stream.
type SessionRunner struct {
	client   *EngineClient
	prompter TurnPrompter
}

// NewSessionRunner wires a runner from its collaborators.
func NewSessionRunner(client *EngineClient, prompter TurnPrompter) *SessionRunner {
	return &SessionRunner{client: client, prompter: prompter}
}

// runSessionLoop is the cobra entrypoint for `session run`.
func runSessionLoop(cmd *cobra.Command, args []string) {
	client := NewEngineClient(cliConfig)
	runner := NewSessionRunner(client, newTurnPrompter())

	sessionID := ""
	if len(args) > 0 {
		sessionID = args[0]
	}

	if err := runner.Run(context.Background(), sessionID, startWorkType); err != nil {
		ux.Error(err.Error())
		os.Exit(CLIExitError)
	}
}

// Run opens (or resumes) the session and works the turn loop until the
// protocol completes or the user backs out.
//
// # Inputs
//
//   - ctx: Bounds the start request and the stream dial.
//   - sessionID: Existing session to resume, or "" to open a new one.
//   - workType: Optional welcome-menu pre-answer for new sessions.
//
// # Outputs
//
//   - error: Non-nil only on transport or engine failure. Completing the
//     protocol and user abort both return nil.
func (r *SessionRunner) Run(ctx context.Context, sessionID, workType string) error {
	if sessionID == "" {
		turn, err := r.client.StartSession(ctx, workType)
		if err != nil {
			return err
		}
		sessionID = turn.SessionID
		ux.KV("Session", sessionID)
	}

	// The stream's opening frame replays the current prompt, so new and
	// resumed sessions join the loop the same way.
	ws, err := r.client.StreamSession(ctx, sessionID)
	if err != nil {
		return err
	}
	defer ws.Close()

	return r.loop(ws, sessionID)
}

// loop alternates frames: read a turn, collect a reply, send it back.
func (r *SessionRunner) loop(ws *websocket.Conn, sessionID string) error {
	var lastTurn *protocol.Turn
	var spin *ux.Spinner

	stopSpinner := func() {
		if spin != nil {
			spin.Stop()
			spin = nil
		}
	}
	defer stopSpinner()

	for {
		var frame handlers.WSResponse
		if err := ws.ReadJSON(&frame); err != nil {
			stopSpinner()
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return fmt.Errorf("stream closed: %w", err)
		}
		stopSpinner()

		switch frame.Type {
		case "turn":
			lastTurn = frame.Turn
			renderPrompt(lastTurn)
		case "error":
			// Recoverable errors keep the stream open; re-ask against the
			// last prompt. Fatal ones surface on the next read or write.
			ux.Warning(frame.Error)
			if lastTurn == nil {
				return fmt.Errorf("engine: %s", frame.Error)
			}
		default:
			continue
		}

		if lastTurn == nil || lastTurn.IsTerminal {
			return nil
		}

		input, err := r.prompter.Ask(lastTurn)
		if errors.Is(err, errAborted) {
			fmt.Println()
			ux.Muted(fmt.Sprintf("Progress saved. Resume with: innershift session run %s", sessionID))
			return nil
		}
		if err != nil {
			return err
		}

		if err := ws.WriteJSON(handlers.WSRequest{Input: input}); err != nil {
			return fmt.Errorf("send reply: %w", err)
		}

		if !ux.Plain() {
			spin = ux.NewSpinner("Thinking")
			spin.Start()
		}
	}
}

// renderPrompt shows a turn's prompt without its input surface; the
// prompter owns that part.
func renderPrompt(turn *protocol.Turn) {
	if turn == nil {
		return
	}
	if turn.Escalated {
		if turn.UsedAI {
			ux.Muted("(clarifying)")
		} else {
			ux.Muted("(please try again)")
		}
	}

	ux.Prompt(turn.PromptText)

	if turn.IsTerminal {
		ux.Success("Session complete.")
	}
}
