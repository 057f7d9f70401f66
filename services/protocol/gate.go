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

import "strings"

// =============================================================================
// Verdicts
// =============================================================================

// InputKind is the Validation Gate's classification of one raw input.
type InputKind int

const (
	// ButtonSelection is a literal menu token configured for the step.
	// Originates from a constrained UI surface; never validated, never
	// escalated.
	ButtonSelection InputKind = iota

	// YesNo is an affirmative or negative token. Same bypass guarantees
	// as ButtonSelection.
	YesNo

	// FreeTextValid is free text that passed the step's validator.
	FreeTextValid

	// FreeTextInvalid is free text that failed the step's validator. The
	// only kind eligible for AI escalation.
	FreeTextInvalid
)

// String returns the kind's wire name, used in logs and metrics labels.
func (k InputKind) String() string {
	switch k {
	case ButtonSelection:
		return "button"
	case YesNo:
		return "yes_no"
	case FreeTextValid:
		return "free_text_valid"
	case FreeTextInvalid:
		return "free_text_invalid"
	default:
		return "unknown"
	}
}

// Verdict is the gate's output for one input at one step.
type Verdict struct {
	Kind InputKind

	// Normalized is the canonical form handed to the transition function:
	// the matched token for buttons, "yes"/"no" for YesNo, the trimmed
	// text otherwise.
	Normalized string

	// Reason carries the validator's failure message for FreeTextInvalid.
	// Included in the escalation request so the AI knows what to clarify.
	Reason string
}

// =============================================================================
// Token Tables
// =============================================================================

// Affirmative/negative tokens accepted as YesNo answers. Matched
// case-insensitively against the trimmed input. Deliberately small: the
// gate classifies constrained UI tokens rather than interpreting language.
// "I suppose so" is free text and takes the validator path.
var (
	affirmativeTokens = map[string]struct{}{
		"yes": {}, "y": {}, "yeah": {}, "yep": {}, "yes.": {},
	}
	negativeTokens = map[string]struct{}{
		"no": {}, "n": {}, "nope": {}, "no.": {},
	}
)

// =============================================================================
// Classification
// =============================================================================

// Classify applies the gate's precedence rules to one raw input at step.
//
// # Description
//
// Precedence is fixed and load-bearing:
//
//  1. Trimmed input equals (case-insensitively) one of the step's
//     configured button tokens → ButtonSelection. Short-circuits every
//     later rule, including content checks.
//  2. Input equals an affirmative/negative token → YesNo, normalized to
//     "yes" or "no". Also short-circuits.
//  3. The step's free-text validator decides FreeTextValid/FreeTextInvalid.
//
// Button and yes/no inputs come from a constrained UI surface. They can
// never be "too short" or "ambiguous", so they must never reach content
// validation or AI escalation; routing them there was the original
// button-click interference defect.
//
// # Inputs
//
//   - raw: the user's input, untrimmed.
//   - step: the active step (button tokens, validator). Must not be nil.
//   - c: session context, passed to step validators that need it.
//
// # Outputs
//
//   - Verdict: kind plus normalized form (and failure reason when invalid).
func Classify(raw string, step *Step, c *Context) Verdict {
	trimmed := strings.TrimSpace(raw)
	lowered := strings.ToLower(trimmed)

	// Rule 1: button tokens, case-insensitive, before everything else.
	for _, token := range step.Buttons() {
		if strings.EqualFold(trimmed, token) {
			return Verdict{Kind: ButtonSelection, Normalized: token}
		}
	}

	// Rule 2: yes/no tokens.
	if _, ok := affirmativeTokens[lowered]; ok {
		return Verdict{Kind: YesNo, Normalized: "yes"}
	}
	if _, ok := negativeTokens[lowered]; ok {
		return Verdict{Kind: YesNo, Normalized: "no"}
	}

	// Rule 3: the step's free-text validator.
	if err := step.ValidateText(trimmed, c); err != nil {
		return Verdict{Kind: FreeTextInvalid, Normalized: trimmed, Reason: err.Error()}
	}
	return Verdict{Kind: FreeTextValid, Normalized: trimmed}
}
