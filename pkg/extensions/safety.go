// Copyright (C) 2025 InnerShift AI (engineering@innershift.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package extensions

import "context"

// ScreenResult is a safety filter's verdict on one piece of client input.
type ScreenResult struct {
	// Blocked refuses the input. The engine answers the client with a
	// generic rejection and audits the turn with OutcomeBlocked; the
	// session itself stays where it was.
	Blocked bool

	// Reason says why, for the audit trail. It is never echoed to the
	// client: screening rules are the deployment's business, and an
	// evadable rule is no rule.
	Reason string
}

// SafetyFilter screens client free text before the engine runs a turn.
//
// Hosted deployments use this seam for crisis-keyword escalation and
// abuse screening. The verdict gates a single turn: a block does not
// error the session, and the client may answer again.
//
// A filter error is treated as allow. The engine is fully functional
// with no filter at all, so a broken one degrades to the open source
// behavior instead of taking sessions down; deployments that need
// fail-closed semantics wrap their filter accordingly.
//
// Implementations must be safe for concurrent use.
type SafetyFilter interface {
	// ScreenInput returns the verdict for one client answer.
	ScreenInput(ctx context.Context, text string) (*ScreenResult, error)
}

// NopSafetyFilter accepts everything. This is the open source default.
type NopSafetyFilter struct{}

// ScreenInput allows the input.
func (f *NopSafetyFilter) ScreenInput(_ context.Context, _ string) (*ScreenResult, error) {
	return &ScreenResult{}, nil
}

var _ SafetyFilter = (*NopSafetyFilter)(nil)
