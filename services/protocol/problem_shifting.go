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

// Problem Shifting step ids. ps_body..ps_still is the cycling block;
// ps_check_future and ps_dig_more are its checking questions.
const (
	psBody           = "ps_body"
	psFeel           = "ps_feel"
	psNeed           = "ps_need"
	psWould          = "ps_would"
	psWouldFeel      = "ps_would_feel"
	psStill          = "ps_still"
	psCheckFuture    = "ps_check_future"
	psDigMore        = "ps_dig_more"
	psDigWhat        = "ps_dig_what"
	psIntegrateFeel  = "ps_integrate_feel"
	psIntegrateAware = "ps_integrate_aware"
	psDone           = "ps_done"
)

// problemShiftingTable routes Problem Shifting.
//
// The dissolution block feels the problem, feels what solving it would be
// like, and asks whether a problem remains. A failed future check re-arms
// the cycle directly; digging deeper re-arms it through the restatement
// step, so the restated problem is on record before the entry renders its
// bridge.
func problemShiftingTable(b *registryBuilder) {
	b.step(psBody, static(psFeel))
	b.step(psFeel, static(psNeed))
	b.step(psNeed, static(psWould))
	b.step(psWould, static(psWouldFeel))
	b.step(psWouldFeel, static(psStill))

	b.step(psStill, lapGate(psBody, psCheckFuture))
	b.step(psCheckFuture, check(psCheckFuture, "yes", psBody, psDigMore))
	b.step(psDigMore, check(psDigMore, "yes", psDigWhat, psIntegrateFeel))
	b.step(psDigWhat, func(answer string, c *Context) (string, error) {
		c.RestateProblem(answer)
		return psBody, nil
	})

	b.step(psIntegrateFeel, static(psIntegrateAware))
	b.step(psIntegrateAware, static(psDone))
}
