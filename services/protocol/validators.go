// Copyright (C) 2025 InnerShift AI (engineering@innershift.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package protocol

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// ValidatorFunc checks free text for one step. A nil error means the text
// is usable as an answer; a non-nil error carries the reason handed to the
// AI escalation path.
type ValidatorFunc func(text string, c *Context) error

// Validator names referenced by modality scripts. Scripts name validators;
// the implementations stay in Go so wording authors cannot change gate
// behavior by accident.
const (
	validatorSubstantive      = "substantive"
	validatorProblemStatement = "problem_statement"
	validatorGoalStatement    = "goal_statement"
	validatorIdentityWord     = "identity_word"
	validatorYesNoOnly        = "yes_no"
	validatorMenuChoice       = "menu_choice"
)

// validatorByName resolves a script's validator name. Unknown names are a
// script-authoring error surfaced at catalog build time, not at runtime.
func validatorByName(name string) (ValidatorFunc, error) {
	switch name {
	case validatorSubstantive:
		return validateSubstantive, nil
	case validatorProblemStatement:
		return validateProblemStatement, nil
	case validatorGoalStatement:
		return validateGoalStatement, nil
	case validatorIdentityWord:
		return validateIdentityWord, nil
	case validatorYesNoOnly:
		return validateYesNoOnly, nil
	case validatorMenuChoice:
		return validateMenuChoice, nil
	default:
		return nil, fmt.Errorf("%w: unknown validator %q", ErrScriptInvalid, name)
	}
}

// Goal-phrased openings that signal the user stated a desire instead of a
// problem. Checked against the lowercased statement.
var goalMarkers = []string{
	"i want", "i wish", "i would like", "i'd like", "my goal",
	"i hope", "to be able to", "i need to",
}

// Problem-phrased openings that signal the user stated a complaint where a
// desired outcome was asked for.
var problemMarkers = []string{
	"i can't", "i cannot", "i don't", "i hate", "i'm afraid",
	"i am afraid", "i struggle", "it's hard", "i keep",
}

// validateSubstantive is the default free-text validator: the answer must
// contain at least one letter and be more than a stray character. Single
// words are fine: "tight" is a complete answer to a body-sensation step.
func validateSubstantive(text string, _ *Context) error {
	if text == "" {
		return errors.New("the answer is empty")
	}
	if !containsLetter(text) {
		return errors.New("the answer contains no words")
	}
	if len([]rune(text)) < 2 {
		return errors.New("the answer is too short to work with")
	}
	return nil
}

// validateProblemStatement accepts a short problem description and rejects
// goal-phrased statements, which belong in goal intake. The work types run
// different modalities, so the distinction matters before method selection.
func validateProblemStatement(text string, c *Context) error {
	if err := validateSubstantive(text, c); err != nil {
		return err
	}
	if wordCount(text) < 2 {
		return errors.New("the problem needs a few words, not just one")
	}
	lowered := strings.ToLower(text)
	for _, marker := range goalMarkers {
		if strings.HasPrefix(lowered, marker) || strings.Contains(lowered, " "+marker+" ") {
			return fmt.Errorf("this sounds like a goal (%q); it should be stated as a problem", marker)
		}
	}
	return nil
}

// validateGoalStatement accepts a desired outcome and rejects statements
// phrased as complaints.
func validateGoalStatement(text string, c *Context) error {
	if err := validateSubstantive(text, c); err != nil {
		return err
	}
	if wordCount(text) < 2 {
		return errors.New("the goal needs a few words, not just one")
	}
	lowered := strings.ToLower(text)
	for _, marker := range problemMarkers {
		if strings.HasPrefix(lowered, marker) {
			return fmt.Errorf("this sounds like a problem (%q); it should name what is wanted instead", marker)
		}
	}
	return nil
}

// validateIdentityWord accepts the short identity label ("a failure",
// "helpless"). Long sentences mean the user is describing, not naming.
func validateIdentityWord(text string, c *Context) error {
	if err := validateSubstantive(text, c); err != nil {
		return err
	}
	if wordCount(text) > 6 {
		return errors.New("the identity should be a word or short phrase, not a sentence")
	}
	return nil
}

// validateYesNoOnly always fails: steps expecting yes/no never accept free
// text, so anything that reached the validator needs clarification. The
// yes/no tokens themselves were already short-circuited by the gate.
func validateYesNoOnly(string, *Context) error {
	return errors.New("the step needs a yes or no answer")
}

// validateMenuChoice always fails: menu steps accept only their configured
// tokens, which the gate already short-circuited.
func validateMenuChoice(string, *Context) error {
	return errors.New("the step needs one of the offered options")
}

func containsLetter(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}
