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

// Belief Shifting step ids. bl_feel..bl_still is the cycling block.
const (
	blIntake         = "bl_intake"
	blFeel           = "bl_feel"
	blLocate         = "bl_locate"
	blSoften         = "bl_soften"
	blWithout        = "bl_without"
	blWithoutFeel    = "bl_without_feel"
	blStill          = "bl_still"
	blCheckPart      = "bl_check_part"
	blCheckFuture    = "bl_check_future"
	blDigMore        = "bl_dig_more"
	blDigWhat        = "bl_dig_what"
	blIntegrateFeel  = "bl_integrate_feel"
	blIntegrateAware = "bl_integrate_aware"
	blDone           = "bl_done"
)

// beliefShiftingTable routes Belief Shifting. Digging re-derives the
// belief from the restated problem via bl_intake, same shape as Identity
// Shifting: the new belief runs the full check chain, so the restatement
// does not arm a return target.
func beliefShiftingTable(b *registryBuilder) {
	b.step(blIntake, func(answer string, c *Context) (string, error) {
		c.Belief = answer
		return blFeel, nil
	})

	b.step(blFeel, static(blLocate))
	b.step(blLocate, static(blSoften))
	b.step(blSoften, static(blWithout))
	b.step(blWithout, static(blWithoutFeel))
	b.step(blWithoutFeel, static(blStill))

	b.step(blStill, lapGate(blFeel, blCheckPart))
	b.step(blCheckPart, check(blCheckPart, "yes", blFeel, blCheckFuture))
	b.step(blCheckFuture, check(blCheckFuture, "yes", blFeel, blDigMore))

	b.step(blDigMore, func(answer string, c *Context) (string, error) {
		if answer == "yes" {
			return blDigWhat, nil
		}
		return blIntegrateFeel, nil
	})
	b.step(blDigWhat, func(answer string, c *Context) (string, error) {
		c.RestateProblem(answer)
		return blIntake, nil
	})

	b.step(blIntegrateFeel, static(blIntegrateAware))
	b.step(blIntegrateAware, static(blDone))
}
