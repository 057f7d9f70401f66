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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/InnerShiftAI/InnerShiftCore/services/protocol/scripts"
)

func TestDefaultCatalogBuilds(t *testing.T) {
	cat, err := DefaultCatalog()
	require.NoError(t, err, "the shipped scripts and transition tables must always zip")

	assert.Equal(t, "in_welcome", cat.EntryStepID())

	for _, m := range []Method{
		MethodProblemShifting, MethodIdentityShifting, MethodBeliefShifting,
		MethodBlockageShifting, MethodRealityShifting, MethodTraumaShifting,
	} {
		c := &Context{Method: m}
		reg, err := cat.Resolve(c)
		require.NoError(t, err, m)
		assert.Equal(t, string(m), reg.Name())
		_, err = reg.Step(reg.EntryID())
		assert.NoError(t, err, m)
	}
}

func TestResolveBeforeMethodSelection(t *testing.T) {
	cat, err := DefaultCatalog()
	require.NoError(t, err)

	c := NewContext("t", cat.EntryStepID())
	reg, err := cat.Resolve(c)
	require.NoError(t, err)
	assert.Equal(t, "intake", reg.Name())
}

func TestUnknownStepAndMethod(t *testing.T) {
	cat, err := DefaultCatalog()
	require.NoError(t, err)

	t.Run("unknown step", func(t *testing.T) {
		_, err := cat.Intake().Step("in_ghost")
		assert.ErrorIs(t, err, ErrUnknownStep)
	})

	t.Run("unknown method", func(t *testing.T) {
		c := &Context{Method: Method("mesmerism")}
		_, err := cat.Resolve(c)
		assert.ErrorIs(t, err, ErrUnknownMethod)
	})

	t.Run("step from the wrong modality", func(t *testing.T) {
		c := &Context{Method: MethodProblemShifting, CurrentStepID: "id_embody"}
		_, err := cat.Current(c)
		assert.ErrorIs(t, err, ErrUnknownStep)
	})
}

// =============================================================================
// Build Drift Detection
// =============================================================================

func demoSet(entry string, steps ...scripts.StepSpec) *scripts.Set {
	return &scripts.Set{Modalities: map[string]*scripts.ModalityScript{
		"demo": {Modality: "demo", Entry: entry, Steps: steps},
	}}
}

func TestBuildRejectsScriptTableDrift(t *testing.T) {
	freeText := scripts.StepSpec{ID: "a", Template: "one", Source: scripts.SourceNone, Expect: scripts.ExpectFreeText}
	terminal := scripts.StepSpec{ID: "z", Template: "bye", Source: scripts.SourceNone, Terminal: true}

	t.Run("step without transition", func(t *testing.T) {
		_, err := buildRegistry(demoSet("a", freeText, terminal), "demo", func(b *registryBuilder) {})
		require.ErrorIs(t, err, ErrScriptInvalid)
		assert.Contains(t, err.Error(), "no transition")
	})

	t.Run("transition for undefined step", func(t *testing.T) {
		_, err := buildRegistry(demoSet("a", freeText, terminal), "demo", func(b *registryBuilder) {
			b.step("a", static("z"))
			b.step("ghost", static("z"))
		})
		require.ErrorIs(t, err, ErrScriptInvalid)
		assert.Contains(t, err.Error(), "undefined step")
	})

	t.Run("terminal step with transition", func(t *testing.T) {
		_, err := buildRegistry(demoSet("a", freeText, terminal), "demo", func(b *registryBuilder) {
			b.step("a", static("z"))
			b.step("z", static("a"))
		})
		require.ErrorIs(t, err, ErrScriptInvalid)
		assert.Contains(t, err.Error(), "terminal")
	})

	t.Run("duplicate registration", func(t *testing.T) {
		_, err := buildRegistry(demoSet("a", freeText, terminal), "demo", func(b *registryBuilder) {
			b.step("a", static("z"))
			b.step("a", static("z"))
		})
		require.ErrorIs(t, err, ErrScriptInvalid)
		assert.Contains(t, err.Error(), "duplicate")
	})

	t.Run("unknown validator name", func(t *testing.T) {
		bad := freeText
		bad.Validator = "vibes"
		_, err := buildRegistry(demoSet("a", bad, terminal), "demo", func(b *registryBuilder) {
			b.step("a", static("z"))
		})
		require.ErrorIs(t, err, ErrScriptInvalid)
		assert.Contains(t, err.Error(), "vibes")
	})

	t.Run("missing script", func(t *testing.T) {
		_, err := buildRegistry(demoSet("a", freeText, terminal), "other", func(b *registryBuilder) {})
		require.ErrorIs(t, err, ErrScriptInvalid)
	})
}

// =============================================================================
// Rendering
// =============================================================================

func problemShiftingStep(t *testing.T, id string) *Step {
	t.Helper()
	cat, err := DefaultCatalog()
	require.NoError(t, err)
	reg, err := cat.Resolve(&Context{Method: MethodProblemShifting})
	require.NoError(t, err)
	step, err := reg.Step(id)
	require.NoError(t, err)
	return step
}

func TestRenderIntroOnFirstVisitOnly(t *testing.T) {
	body := problemShiftingStep(t, psBody)

	c := NewContext("t", psBody)
	c.SetProblemStatement("I feel anxious about meetings")
	c.Method = MethodProblemShifting

	first := body.Render(c)
	assert.Contains(t, first, "close your eyes")
	assert.Contains(t, first, "I feel anxious about meetings")

	// Once the step has an answer on record, later laps use the plain
	// template.
	c.RecordResponse(psBody, "tight")
	c.Cycle.CompleteLap()
	second := body.Render(c)
	assert.NotContains(t, second, "close your eyes")
	assert.Contains(t, second, "I feel anxious about meetings")
}

func TestRenderBridgeVariantOnce(t *testing.T) {
	body := problemShiftingStep(t, psBody)

	c := NewContext("t", psBody)
	c.SetProblemStatement("I feel anxious about meetings")
	c.Method = MethodProblemShifting
	c.RecordResponse(psBody, "tight")
	c.Cycle.StartCycle(psCheckFuture)

	bridged := body.Render(c)
	assert.Contains(t, bridged, "in the future")
	assert.True(t, c.Cycle.BridgeUsed)
	assert.Equal(t, psCheckFuture, c.Cycle.ReturnToCheckID, "rendering must not clear the return target")

	plain := body.Render(c)
	assert.NotContains(t, plain, "in the future")
}

func TestPreviewDoesNotConsumeBridge(t *testing.T) {
	body := problemShiftingStep(t, psBody)

	c := NewContext("t", psBody)
	c.SetProblemStatement("I feel anxious about meetings")
	c.RecordResponse(psBody, "tight")
	c.Cycle.StartCycle(psCheckFuture)

	preview := body.Preview(c)
	assert.Contains(t, preview, "in the future")
	assert.False(t, c.Cycle.BridgeUsed)

	// The real render still gets the one-time variant afterwards.
	assert.Contains(t, body.Render(c), "in the future")
	assert.True(t, c.Cycle.BridgeUsed)
}

func TestRenderBridgeDefaultFallback(t *testing.T) {
	body := problemShiftingStep(t, psBody)

	c := NewContext("t", psBody)
	c.SetProblemStatement("I feel anxious about meetings")
	c.RecordResponse(psBody, "tight")
	// A check with no dedicated bridge wording falls back to "default".
	c.Cycle.StartCycle("ps_check_hypothetical")

	text := body.Render(c)
	assert.Contains(t, text, "again")
	assert.Contains(t, text, "I feel anxious about meetings")
}

func TestRenderSubstitutionSources(t *testing.T) {
	cat, err := DefaultCatalog()
	require.NoError(t, err)

	c := NewContext("t", psBody)
	c.SetProblemStatement("I feel anxious about meetings")
	c.Method = MethodProblemShifting
	c.RecordResponse(psBody, "tight")
	c.RestateProblem("the dread on Sunday nights")

	reg, err := cat.Resolve(c)
	require.NoError(t, err)

	t.Run("problem uses the working restatement", func(t *testing.T) {
		need, err := reg.Step(psNeed)
		require.NoError(t, err)
		assert.Contains(t, need.Render(c), "the dread on Sunday nights")
	})

	t.Run("problem_original ignores the restatement", func(t *testing.T) {
		integrate, err := reg.Step(psIntegrateFeel)
		require.NoError(t, err)
		text := integrate.Render(c)
		assert.Contains(t, text, "I feel anxious about meetings")
		assert.NotContains(t, text, "Sunday nights")
	})

	t.Run("response reads the named step, not the latest answer", func(t *testing.T) {
		c.RecordResponse(psNeed, "space to breathe")
		feel, err := reg.Step(psFeel)
		require.NoError(t, err)
		text := feel.Render(c)
		assert.Contains(t, text, "tight")
		assert.NotContains(t, text, "space to breathe")
	})

	t.Run("identity goal and event sources", func(t *testing.T) {
		ic := NewContext("t", idEmbody)
		ic.Identity = "a fraud"
		ic.GoalStatement = "a calm morning routine"
		ic.TraumaEvent = "the phone call"

		idReg, err := cat.Resolve(&Context{Method: MethodIdentityShifting})
		require.NoError(t, err)
		embody, err := idReg.Step(idEmbody)
		require.NoError(t, err)
		ic.RecordResponse(idEmbody, "heavy") // past the intro variant
		assert.Contains(t, embody.Render(ic), "a fraud")

		rsReg, err := cat.Resolve(&Context{Method: MethodRealityShifting})
		require.NoError(t, err)
		between, err := rsReg.Step(rsBetween)
		require.NoError(t, err)
		assert.Contains(t, between.Render(ic), "a calm morning routine")

		tsReg, err := cat.Resolve(&Context{Method: MethodTraumaShifting})
		require.NoError(t, err)
		identity, err := tsReg.Step(tsIdentity)
		require.NoError(t, err)
		assert.Contains(t, identity.Render(ic), "the phone call")
	})
}

func TestStepDefaultValidators(t *testing.T) {
	cat, err := DefaultCatalog()
	require.NoError(t, err)
	c := NewContext("t", "s")

	reg, err := cat.Resolve(&Context{Method: MethodProblemShifting})
	require.NoError(t, err)

	still, err := reg.Step(psStill)
	require.NoError(t, err)
	assert.Error(t, still.ValidateText("it depends", c), "yes/no steps refuse free text")

	welcome, err := cat.Intake().Step(inWelcome)
	require.NoError(t, err)
	assert.Error(t, welcome.ValidateText("the first one", c), "menu steps refuse free text")

	problem, err := cat.Intake().Step(inProblem)
	require.NoError(t, err)
	assert.Error(t, problem.ValidateText("I want to be braver", c), "intake uses the problem-statement validator")
	assert.NoError(t, problem.ValidateText("I freeze when my manager looks at me", c))
}
