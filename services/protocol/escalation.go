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

// ShouldEscalate decides whether a verdict routes to the AI clarifier
// instead of advancing the state machine.
//
// Only FreeTextInvalid escalates. ButtonSelection and YesNo are refused
// here even though Classify already short-circuits them: the engine's
// advance loop performs the same refusal a third time before any AI call.
// Each layer must refuse independently so that a future change to one of
// them cannot quietly put button clicks back in front of the AI.
func ShouldEscalate(v Verdict) bool {
	switch v.Kind {
	case ButtonSelection, YesNo:
		return false
	case FreeTextInvalid:
		return true
	default:
		return false
	}
}
