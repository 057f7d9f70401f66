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

// Intake step ids. The graph captures the work type, the statement, and
// (for problem work only) the method choice. Goal and negative-experience
// work route straight to their modality.
const (
	inWelcome = "in_welcome"
	inProblem = "in_problem"
	inGoal    = "in_goal"
	inEvent   = "in_event"
	inMethod  = "in_method"
)

// intakeTable routes the shared intake graph. Menu steps re-ask themselves
// on any answer that is not one of their tokens (a stray yes/no passes the
// gate unescalated, so it lands here and simply re-prompts).
func intakeTable(b *registryBuilder) {
	b.step(inWelcome, func(answer string, c *Context) (string, error) {
		switch answer {
		case "1":
			c.WorkType = WorkTypeProblem
			return inProblem, nil
		case "2":
			c.WorkType = WorkTypeGoal
			return inGoal, nil
		case "3":
			c.WorkType = WorkTypeNegativeExperience
			return inEvent, nil
		}
		return inWelcome, nil
	})

	b.step(inProblem, func(answer string, c *Context) (string, error) {
		c.SetProblemStatement(answer)
		return inMethod, nil
	})

	b.step(inGoal, func(answer string, c *Context) (string, error) {
		c.SetProblemStatement(answer)
		c.GoalStatement = answer
		c.Method = MethodRealityShifting
		return rsDeficit, nil
	})

	b.step(inEvent, func(answer string, c *Context) (string, error) {
		c.SetProblemStatement(answer)
		c.Method = MethodTraumaShifting
		return tsConsent, nil
	})

	b.step(inMethod, func(answer string, c *Context) (string, error) {
		switch answer {
		case "1":
			c.Method = MethodProblemShifting
			return psBody, nil
		case "2":
			c.Method = MethodIdentityShifting
			return idIntake, nil
		case "3":
			c.Method = MethodBeliefShifting
			return blIntake, nil
		case "4":
			c.Method = MethodBlockageShifting
			return bkBody, nil
		}
		return inMethod, nil
	})
}
