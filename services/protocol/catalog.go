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
	"fmt"
	"sort"
	"strings"

	"github.com/InnerShiftAI/InnerShiftCore/services/protocol/scripts"
)

// =============================================================================
// Step
// =============================================================================

// TransitionFunc routes one normalized answer to the next step id. It may
// mutate the session context (record an identity, arm a cycle) but performs
// no I/O; everything it needs is in the answer and the context.
type TransitionFunc func(answer string, c *Context) (string, error)

// Step is one resolved prompt/response unit: the authored wording plus the
// driver's routing and the step's free-text validator.
type Step struct {
	ID       string
	Spec     *scripts.StepSpec
	Terminal bool

	validate   ValidatorFunc
	transition TransitionFunc
}

// Buttons returns the literal menu tokens configured for the step.
func (s *Step) Buttons() []string {
	return s.Spec.Buttons
}

// Expect returns the step's expected input shape.
func (s *Step) Expect() string {
	return s.Spec.Expect
}

// ValidateText applies the step's free-text validator.
func (s *Step) ValidateText(text string, c *Context) error {
	if s.validate == nil {
		return nil
	}
	return s.validate(text, c)
}

// Transition applies the step's routing rule to a normalized answer.
func (s *Step) Transition(answer string, c *Context) (string, error) {
	if s.transition == nil {
		return "", fmt.Errorf("step %q is terminal and does not transition", s.ID)
	}
	return s.transition(answer, c)
}

// =============================================================================
// Rendering
// =============================================================================

// Render produces the step's prompt for the session's current state,
// consuming the one-time bridge variant if one is due.
//
// Variant precedence:
//
//  1. A pending bridge (a checking question failed and the bridging
//     wording has not rendered yet) picks the bridge variant keyed by the
//     failed check, falling back to the "default" bridge.
//  2. Otherwise, on the step's very first visit, the intro variant.
//  3. Otherwise the plain template.
//
// Only steps that author bridge variants consume the bridge flag. Steps on
// the path between a failed check and the cycle entry (the digging
// restatement, for one) render without touching it, so the bridge is still
// armed when the entry renders.
func (s *Step) Render(c *Context) string {
	return s.render(c, true)
}

// Preview renders the step's prompt without consuming the bridge. Used for
// the escalation path and for re-rendering a completed session's terminal
// prompt, neither of which advances state.
func (s *Step) Preview(c *Context) string {
	return s.render(c, false)
}

func (s *Step) render(c *Context, consume bool) string {
	text := s.Spec.Template

	switch {
	case s.bridgePending(c):
		if v, ok := s.Spec.Bridges[c.Cycle.ReturnToCheckID]; ok {
			text = v
		} else if v, ok := s.Spec.Bridges["default"]; ok {
			text = v
		}
		if consume {
			c.Cycle.ConsumeBridge()
		}
	case s.introPending(c):
		text = s.Spec.Intro
	}

	tok := scripts.Token(s.Spec.Source)
	if tok == "" {
		return text
	}
	return strings.ReplaceAll(text, tok, s.sourceValue(c))
}

// bridgePending reports whether this step owes the one-time bridging
// variant: it authors bridges, a checking question has failed, and the
// bridge for that failure has not rendered yet.
func (s *Step) bridgePending(c *Context) bool {
	return len(s.Spec.Bridges) > 0 && c.Cycle.InCycle() && !c.Cycle.BridgeUsed
}

// introPending reports whether this is the step's very first visit: no
// completed laps, no pending check, and no answer recorded here yet.
func (s *Step) introPending(c *Context) bool {
	return s.Spec.Intro != "" &&
		c.Cycle.Count == 0 &&
		!c.Cycle.InCycle() &&
		c.ResponseAt(s.ID) == ""
}

// sourceValue resolves the step's substitution source against the session.
func (s *Step) sourceValue(c *Context) string {
	switch s.Spec.Source {
	case scripts.SourceProblem:
		return c.CurrentProblem()
	case scripts.SourceProblemOriginal:
		return c.ProblemStatement
	case scripts.SourceResponse:
		return c.ResponseAt(s.Spec.SourceStep)
	case scripts.SourceIdentity:
		return c.Identity
	case scripts.SourceBelief:
		return c.Belief
	case scripts.SourceGoal:
		return c.GoalStatement
	case scripts.SourceEvent:
		return c.TraumaEvent
	}
	return ""
}

// =============================================================================
// Registry
// =============================================================================

// Registry is one modality's immutable step catalog.
type Registry struct {
	name  string
	entry string
	steps map[string]*Step
}

// Name returns the modality name the registry was built from.
func (r *Registry) Name() string { return r.name }

// EntryID returns the modality's entry step id.
func (r *Registry) EntryID() string { return r.entry }

// Step resolves id, or fails with ErrUnknownStep. Callers treat that as
// fatal for the session: the engine never substitutes a different step.
func (r *Registry) Step(id string) (*Step, error) {
	s, ok := r.steps[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q in modality %s", ErrUnknownStep, id, r.name)
	}
	return s, nil
}

// StepIDs returns the registry's step ids in sorted order.
func (r *Registry) StepIDs() []string {
	ids := make([]string, 0, len(r.steps))
	for id := range r.steps {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// =============================================================================
// Catalog
// =============================================================================

// Catalog is the full step catalog: the shared intake graph plus one
// registry per modality. Immutable once built; hot reload builds a fresh
// catalog and swaps the pointer.
type Catalog struct {
	intake     *Registry
	modalities map[Method]*Registry
}

// modalityTables binds each modality to its transition table. A script
// without a table here (or a table without a script) fails catalog build.
var modalityTables = map[Method]transitionTable{
	MethodProblemShifting:  problemShiftingTable,
	MethodIdentityShifting: identityShiftingTable,
	MethodBeliefShifting:   beliefShiftingTable,
	MethodBlockageShifting: blockageShiftingTable,
	MethodRealityShifting:  realityShiftingTable,
	MethodTraumaShifting:   traumaShiftingTable,
}

// BuildCatalog resolves a script set against the modality transition
// tables. Every structural mismatch between wording and routing (a step
// without a transition, a transition for an unknown step, an unknown
// validator name) is caught here, before any session can reach it.
func BuildCatalog(set *scripts.Set) (*Catalog, error) {
	intake, err := buildRegistry(set, "intake", intakeTable)
	if err != nil {
		return nil, err
	}

	cat := &Catalog{
		intake:     intake,
		modalities: make(map[Method]*Registry, len(modalityTables)),
	}
	for method, table := range modalityTables {
		reg, err := buildRegistry(set, string(method), table)
		if err != nil {
			return nil, err
		}
		cat.modalities[method] = reg
	}
	return cat, nil
}

// EntryStepID is where new sessions begin.
func (cat *Catalog) EntryStepID() string {
	return cat.intake.entry
}

// Intake returns the shared pre-method registry.
func (cat *Catalog) Intake() *Registry {
	return cat.intake
}

// Resolve returns the registry governing the session: the intake graph
// until a method is selected, the modality's graph after.
func (cat *Catalog) Resolve(c *Context) (*Registry, error) {
	if c.Method == "" {
		return cat.intake, nil
	}
	reg, ok := cat.modalities[c.Method]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMethod, c.Method)
	}
	return reg, nil
}

// Current resolves the session's current step.
func (cat *Catalog) Current(c *Context) (*Step, error) {
	reg, err := cat.Resolve(c)
	if err != nil {
		return nil, err
	}
	return reg.Step(c.CurrentStepID)
}
