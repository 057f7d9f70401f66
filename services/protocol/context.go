// Copyright (C) 2025 InnerShift AI (engineering@innershift.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package protocol implements the treatment protocol engine: the per-session
// context model, the step catalog with its six modality drivers, the input
// classification gate, the AI escalation policy, and the one-turn advance
// loop that ties them together.
//
// # Description
//
// A session walks a deterministic graph of scripted steps. Each step renders
// a prompt from a fixed substitution source, classifies the user's reply, and
// transitions to the next step. Sub-cycles repeat a block of steps until a
// checking question passes; re-entering a cycle after a failed check renders
// a one-time bridging variant of the entry prompt.
//
// # Concurrency
//
// The engine holds no mutable process-wide state beyond the step catalog,
// which is immutable once built (hot reload swaps whole catalogs
// atomically). A Context is owned exclusively by one turn; the session store
// serializes concurrent turns per session via optimistic versioning.
package protocol

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Enumerations
// =============================================================================

// WorkType is what the user chose to work on at intake.
type WorkType string

const (
	WorkTypeProblem            WorkType = "problem"
	WorkTypeGoal               WorkType = "goal"
	WorkTypeNegativeExperience WorkType = "negative_experience"
)

// Valid reports whether w is one of the defined work types.
func (w WorkType) Valid() bool {
	switch w {
	case WorkTypeProblem, WorkTypeGoal, WorkTypeNegativeExperience:
		return true
	}
	return false
}

// Method identifies which modality driver governs the session after intake.
type Method string

const (
	MethodProblemShifting  Method = "problem_shifting"
	MethodIdentityShifting Method = "identity_shifting"
	MethodBeliefShifting   Method = "belief_shifting"
	MethodBlockageShifting Method = "blockage_shifting"
	MethodRealityShifting  Method = "reality_shifting"
	MethodTraumaShifting   Method = "trauma_shifting"
)

// Valid reports whether m is one of the six modalities.
func (m Method) Valid() bool {
	switch m {
	case MethodProblemShifting, MethodIdentityShifting, MethodBeliefShifting,
		MethodBlockageShifting, MethodRealityShifting, MethodTraumaShifting:
		return true
	}
	return false
}

// Status is the session lifecycle state.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusErrored   Status = "errored"
)

// =============================================================================
// Cycle State
// =============================================================================

// CycleState tracks one cycling sub-protocol: how many laps it has run,
// which checking question it must return to, and whether the one-time
// bridging variant of the entry prompt has been rendered for that return.
//
// The three fields have a coupled lifecycle, so they are only mutated
// through StartCycle / PassCheck / CompleteLap / ConsumeBridge. Keeping the
// mutations in one place is what stops the bridge flag and the return
// target from drifting apart across driver code.
type CycleState struct {
	// Count is the number of completed laps of the current sub-cycle.
	// Non-decreasing until the governing checking question passes.
	Count int `json:"cycleCount"`

	// ReturnToCheckID names the checking question the cycle must route back
	// to once the dissolution completes. Empty when no check has failed.
	ReturnToCheckID string `json:"returnToCheckId,omitempty"`

	// BridgeUsed is true once the bridging variant has rendered for the
	// current ReturnToCheckID assignment.
	BridgeUsed bool `json:"bridgePhraseUsed"`
}

// StartCycle records a failed checking question: the cycle will route back
// to checkID, and the next entry render gets the one-time bridging variant.
// Calling it again (same or different check) re-arms the bridge.
func (s *CycleState) StartCycle(checkID string) {
	s.ReturnToCheckID = checkID
	s.BridgeUsed = false
}

// PassCheck records the governing checking question passing: the return
// target, the bridge flag, and the lap count are all cleared together.
func (s *CycleState) PassCheck() {
	s.ReturnToCheckID = ""
	s.BridgeUsed = false
	s.Count = 0
}

// CompleteLap records the cycle's terminal step routing back to its entry.
func (s *CycleState) CompleteLap() {
	s.Count++
}

// ConsumeBridge reports whether the entry step should render its bridging
// variant now, and marks the bridge used. The return target itself is NOT
// cleared; it must survive further laps so exit routing stays correct.
func (s *CycleState) ConsumeBridge() bool {
	if s.ReturnToCheckID == "" || s.BridgeUsed {
		return false
	}
	s.BridgeUsed = true
	return true
}

// InCycle reports whether a checking question is waiting to be re-asked.
func (s *CycleState) InCycle() bool {
	return s.ReturnToCheckID != ""
}

// =============================================================================
// Context
// =============================================================================

// Context is the per-session state record. It is created at session start
// with ProblemStatement and WorkType unset, populated by the intake steps,
// mutated turn-by-turn by the active modality driver, and persisted
// externally between turns.
//
// The record is closed: modality-specific state lives in the named optional
// fields below rather than in a free-form bag, so two modalities can never
// collide on a key.
type Context struct {
	SessionID string `json:"sessionId"`
	TenantID  string `json:"tenantId"`

	// ProblemStatement is the user's original problem/goal/experience
	// statement. Set exactly once at intake and never overwritten;
	// digging-deeper restatements go to WorkingProblem instead.
	ProblemStatement string `json:"problemStatement,omitempty"`

	WorkType WorkType `json:"workType,omitempty"`
	Method   Method   `json:"selectedMethod,omitempty"`

	// CurrentStepID points into the active modality's step graph, or into
	// the shared intake graph while Method is unset.
	CurrentStepID string `json:"currentStepId"`

	// Responses holds the last textual answer recorded at each step.
	Responses map[string]string `json:"userResponses"`

	// Cycle is the state of the active cycling sub-protocol.
	Cycle CycleState `json:"cycle"`

	// WorkingProblem is the explicitly restated problem produced by
	// digging deeper (or a blockage-shifting lap). Empty until the first
	// restatement; CurrentProblem falls back to ProblemStatement.
	WorkingProblem string `json:"workingProblem,omitempty"`

	// Identity is the felt identity named during Identity or Trauma
	// Shifting ("a failure", "helpless").
	Identity string `json:"identity,omitempty"`

	// Belief is the target belief named during Belief Shifting.
	Belief string `json:"belief,omitempty"`

	// GoalStatement is the desired outcome named for Reality Shifting.
	GoalStatement string `json:"goalStatement,omitempty"`

	// TraumaEvent is the brief worst-moment description from Trauma
	// Shifting intake.
	TraumaEvent string `json:"traumaEvent,omitempty"`

	Status Status `json:"status"`

	// Version supports optimistic concurrency in the session store. It is
	// bumped by the store on every successful save.
	Version uint64 `json:"version"`

	CreatedAtMs int64 `json:"createdAtMs"`
	UpdatedAtMs int64 `json:"updatedAtMs"`
}

// NewContext creates a fresh session context positioned at entryStepID.
func NewContext(tenantID, entryStepID string) *Context {
	now := time.Now().UnixMilli()
	return &Context{
		SessionID:     uuid.NewString(),
		TenantID:      tenantID,
		CurrentStepID: entryStepID,
		Responses:     make(map[string]string),
		Status:        StatusActive,
		CreatedAtMs:   now,
		UpdatedAtMs:   now,
	}
}

// RecordResponse stores answer as the last response at stepID.
func (c *Context) RecordResponse(stepID, answer string) {
	if c.Responses == nil {
		c.Responses = make(map[string]string)
	}
	c.Responses[stepID] = answer
}

// ResponseAt returns the last response recorded at stepID, or "".
func (c *Context) ResponseAt(stepID string) string {
	return c.Responses[stepID]
}

// CurrentProblem returns the problem of record: the digging-deeper
// restatement when one exists, otherwise the original statement.
func (c *Context) CurrentProblem() string {
	if c.WorkingProblem != "" {
		return c.WorkingProblem
	}
	return c.ProblemStatement
}

// SetProblemStatement sets the intake statement. Later calls are ignored;
// the original statement is authoritative for the life of the session.
func (c *Context) SetProblemStatement(s string) {
	if c.ProblemStatement == "" {
		c.ProblemStatement = s
	}
}

// RestateProblem records an explicit digging-deeper restatement.
func (c *Context) RestateProblem(s string) {
	c.WorkingProblem = s
}

// Touch updates the modification timestamp.
func (c *Context) Touch() {
	c.UpdatedAtMs = time.Now().UnixMilli()
}

// Terminal reports whether the session has finished, successfully or not.
func (c *Context) Terminal() bool {
	return c.Status == StatusCompleted || c.Status == StatusErrored
}
