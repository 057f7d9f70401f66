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

// Reality Shifting step ids. Goal work: rs_deficit..rs_still cycles on the
// felt absence of the goal.
const (
	rsDeficit        = "rs_deficit"
	rsLocate         = "rs_locate"
	rsBetween        = "rs_between"
	rsHave           = "rs_have"
	rsHaveFeel       = "rs_have_feel"
	rsStill          = "rs_still"
	rsCheckDoubt     = "rs_check_doubt"
	rsCheckWhen      = "rs_check_when"
	rsDigMore        = "rs_dig_more"
	rsDigWhat        = "rs_dig_what"
	rsIntegrateFeel  = "rs_integrate_feel"
	rsIntegrateAware = "rs_integrate_aware"
	rsDone           = "rs_done"
)

// realityShiftingTable routes Reality Shifting.
//
// The two checks have opposite polarity: doubt fails on "yes" (doubt
// remains), on-its-way fails on "no" (the goal does not yet feel like it
// is coming). Digging names the next obstacle; the goal itself never
// changes, so the restatement step only records the answer and re-enters
// the cycle.
func realityShiftingTable(b *registryBuilder) {
	b.step(rsDeficit, static(rsLocate))
	b.step(rsLocate, static(rsBetween))
	b.step(rsBetween, static(rsHave))
	b.step(rsHave, static(rsHaveFeel))
	b.step(rsHaveFeel, static(rsStill))

	b.step(rsStill, lapGate(rsDeficit, rsCheckDoubt))
	b.step(rsCheckDoubt, check(rsCheckDoubt, "yes", rsDeficit, rsCheckWhen))
	b.step(rsCheckWhen, check(rsCheckWhen, "no", rsDeficit, rsDigMore))
	b.step(rsDigMore, check(rsDigMore, "yes", rsDigWhat, rsIntegrateFeel))
	b.step(rsDigWhat, static(rsDeficit))

	b.step(rsIntegrateFeel, static(rsIntegrateAware))
	b.step(rsIntegrateAware, static(rsDone))
}
