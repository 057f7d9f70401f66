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
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewContext(t *testing.T) {
	c := NewContext("tenant-a", "in_welcome")

	assert.NotEmpty(t, c.SessionID)
	assert.Equal(t, "tenant-a", c.TenantID)
	assert.Equal(t, "in_welcome", c.CurrentStepID)
	assert.Equal(t, StatusActive, c.Status)
	assert.Empty(t, c.ProblemStatement, "the statement is set at intake, not at creation")
	assert.Empty(t, c.WorkType)
	assert.Empty(t, c.Method)
	assert.NotNil(t, c.Responses)
	assert.False(t, c.Terminal())

	other := NewContext("tenant-a", "in_welcome")
	assert.NotEqual(t, c.SessionID, other.SessionID)
}

func TestProblemStatementSetOnce(t *testing.T) {
	c := NewContext("t", "in_welcome")

	c.SetProblemStatement("I feel anxious about meetings")
	c.SetProblemStatement("something else entirely")
	assert.Equal(t, "I feel anxious about meetings", c.ProblemStatement)

	// Digging restatements never touch the original.
	c.RestateProblem("my boss intimidates me")
	assert.Equal(t, "I feel anxious about meetings", c.ProblemStatement)
	assert.Equal(t, "my boss intimidates me", c.CurrentProblem())
}

func TestCurrentProblemFallsBackToOriginal(t *testing.T) {
	c := NewContext("t", "in_welcome")
	c.SetProblemStatement("I feel anxious about meetings")

	assert.Equal(t, "I feel anxious about meetings", c.CurrentProblem())
	c.RestateProblem("the anxiety in my chest")
	assert.Equal(t, "the anxiety in my chest", c.CurrentProblem())
}

func TestRecordAndReadResponses(t *testing.T) {
	c := NewContext("t", "in_welcome")

	c.RecordResponse("ps_body", "tight")
	c.RecordResponse("ps_feel", "pressure")
	c.RecordResponse("ps_body", "looser now")

	assert.Equal(t, "looser now", c.ResponseAt("ps_body"), "a step keeps only its last answer")
	assert.Equal(t, "pressure", c.ResponseAt("ps_feel"))
	assert.Empty(t, c.ResponseAt("ps_need"))
}

func TestCycleStateLifecycle(t *testing.T) {
	var s CycleState

	assert.False(t, s.InCycle())
	assert.False(t, s.ConsumeBridge(), "no bridge without a failed check")

	s.CompleteLap()
	s.CompleteLap()
	assert.Equal(t, 2, s.Count)

	s.StartCycle("id_check_future")
	assert.True(t, s.InCycle())
	assert.Equal(t, "id_check_future", s.ReturnToCheckID)

	// The bridge renders exactly once per assignment.
	assert.True(t, s.ConsumeBridge())
	assert.False(t, s.ConsumeBridge())
	assert.True(t, s.InCycle(), "consuming the bridge must not clear the return target")

	// Re-arming the same check re-arms the bridge.
	s.StartCycle("id_check_future")
	assert.True(t, s.ConsumeBridge())

	s.PassCheck()
	assert.False(t, s.InCycle())
	assert.Zero(t, s.Count, "passing the governing check resets the lap count")
	assert.False(t, s.ConsumeBridge())
}

func TestCycleCountNonDecreasingWithinCycle(t *testing.T) {
	var s CycleState
	s.StartCycle("ps_check_future")

	prev := s.Count
	for range [5]int{} {
		s.CompleteLap()
		require.Greater(t, s.Count, prev)
		prev = s.Count
		// Failing again mid-flight must not roll the count back.
		s.StartCycle("ps_check_future")
		require.Equal(t, prev, s.Count)
	}
}

// A context that survives a store round-trip must behave identically to
// one that never left memory; every flag the drivers consult is covered
// by the serialized form.
func TestContextSerializationFidelity(t *testing.T) {
	c := NewContext("tenant-a", "ps_body")
	c.SetProblemStatement("I feel anxious about meetings")
	c.WorkType = WorkTypeProblem
	c.Method = MethodProblemShifting
	c.RecordResponse("ps_body", "tight")
	c.RecordResponse("ps_feel", "pressure")
	c.Cycle.StartCycle("ps_check_future")
	c.Cycle.CompleteLap()
	c.RestateProblem("the dread on Sunday nights")
	c.Identity = "a fraud"
	c.Version = 7

	data, err := json.Marshal(c)
	require.NoError(t, err)

	var back Context
	require.NoError(t, json.Unmarshal(data, &back))

	assert.Equal(t, *c, back)
	assert.True(t, back.Cycle.InCycle())
	assert.False(t, back.Cycle.BridgeUsed)
	assert.Equal(t, "the dread on Sunday nights", back.CurrentProblem())
}

func TestTerminalStatus(t *testing.T) {
	c := NewContext("t", "in_welcome")
	assert.False(t, c.Terminal())

	c.Status = StatusCompleted
	assert.True(t, c.Terminal())

	c.Status = StatusErrored
	assert.True(t, c.Terminal())
}

func TestEnumValidity(t *testing.T) {
	assert.True(t, WorkTypeProblem.Valid())
	assert.True(t, WorkTypeGoal.Valid())
	assert.True(t, WorkTypeNegativeExperience.Valid())
	assert.False(t, WorkType("revenge").Valid())

	for _, m := range []Method{
		MethodProblemShifting, MethodIdentityShifting, MethodBeliefShifting,
		MethodBlockageShifting, MethodRealityShifting, MethodTraumaShifting,
	} {
		assert.True(t, m.Valid(), m)
	}
	assert.False(t, Method("mind_reading").Valid())
}
