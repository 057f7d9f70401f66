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

	"github.com/InnerShiftAI/InnerShiftCore/services/protocol/scripts"
)

// =============================================================================
// Registry Builder
// =============================================================================

// transitionTable declares one modality's routing by registering a
// transition per step id.
type transitionTable func(b *registryBuilder)

type registryBuilder struct {
	transitions map[string]TransitionFunc
	errs        []error
}

// step registers the transition for one step id.
func (b *registryBuilder) step(id string, fn TransitionFunc) {
	if _, dup := b.transitions[id]; dup {
		b.errs = append(b.errs, fmt.Errorf("%w: duplicate transition for step %q", ErrScriptInvalid, id))
		return
	}
	b.transitions[id] = fn
}

// buildRegistry zips one modality's script with its transition table,
// failing on any drift between the two.
func buildRegistry(set *scripts.Set, modality string, table transitionTable) (*Registry, error) {
	script := set.Modality(modality)
	if script == nil {
		return nil, fmt.Errorf("%w: no script for modality %q", ErrScriptInvalid, modality)
	}

	b := &registryBuilder{transitions: make(map[string]TransitionFunc)}
	table(b)
	if len(b.errs) > 0 {
		return nil, errors.Join(b.errs...)
	}

	reg := &Registry{
		name:  modality,
		entry: script.Entry,
		steps: make(map[string]*Step, len(script.Steps)),
	}
	for i := range script.Steps {
		spec := &script.Steps[i]
		fn, routed := b.transitions[spec.ID]
		switch {
		case spec.Terminal && routed:
			return nil, fmt.Errorf("%w: terminal step %s/%s has a transition", ErrScriptInvalid, modality, spec.ID)
		case !spec.Terminal && !routed:
			return nil, fmt.Errorf("%w: step %s/%s has no transition", ErrScriptInvalid, modality, spec.ID)
		}

		validate, err := stepValidator(spec)
		if err != nil {
			return nil, fmt.Errorf("step %s/%s: %w", modality, spec.ID, err)
		}
		reg.steps[spec.ID] = &Step{
			ID:         spec.ID,
			Spec:       spec,
			Terminal:   spec.Terminal,
			validate:   validate,
			transition: fn,
		}
	}

	for id := range b.transitions {
		if script.Step(id) == nil {
			return nil, fmt.Errorf("%w: transition for undefined step %s/%s", ErrScriptInvalid, modality, id)
		}
	}
	return reg, nil
}

// stepValidator resolves a step's free-text validator: the authored name
// when one is given, otherwise the default for its expected input shape.
func stepValidator(spec *scripts.StepSpec) (ValidatorFunc, error) {
	if spec.Validator != "" {
		return validatorByName(spec.Validator)
	}
	switch spec.Expect {
	case scripts.ExpectYesNo:
		return validateYesNoOnly, nil
	case scripts.ExpectButton:
		return validateMenuChoice, nil
	case scripts.ExpectFreeText:
		return validateSubstantive, nil
	}
	if spec.Terminal {
		return nil, nil
	}
	return nil, fmt.Errorf("%w: step %s has no input shape", ErrScriptInvalid, spec.ID)
}

// =============================================================================
// Shared Sub-Protocol Helpers
// =============================================================================

// static returns a transition that always routes to next.
func static(next string) TransitionFunc {
	return func(string, *Context) (string, error) {
		return next, nil
	}
}

// lapGate is the cycle's closing question ("can you still feel it?"). Yes
// runs another lap back to the entry; no exits to the pending checking
// question, or to firstCheck when no check has failed yet.
func lapGate(entry, firstCheck string) TransitionFunc {
	return func(answer string, c *Context) (string, error) {
		if answer == "yes" {
			c.Cycle.CompleteLap()
			return entry, nil
		}
		return routeCycleExit(c, firstCheck), nil
	}
}

// routeCycleExit picks where a finished dissolution goes: back to the
// checking question that sent the session around again, or to the
// modality's first check on the initial pass.
func routeCycleExit(c *Context, firstCheck string) string {
	if c.Cycle.InCycle() {
		return c.Cycle.ReturnToCheckID
	}
	return firstCheck
}

// check builds a checking question. failAnswer arms the cycle (return
// target plus one-time bridge) and routes to onFail, usually the cycle
// entry or a restatement step on the digging path. The other answer
// passes: cycle state clears and the session moves on to onPass.
func check(checkID, failAnswer, onFail, onPass string) TransitionFunc {
	return func(answer string, c *Context) (string, error) {
		if answer == failAnswer {
			c.Cycle.StartCycle(checkID)
			return onFail, nil
		}
		c.Cycle.PassCheck()
		return onPass, nil
	}
}
