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

// Blockage Shifting step ids. bk_body..bk_still is the cycling block; the
// problem is restated every lap at bk_now, so the loop chases whatever the
// problem turns into.
const (
	bkBody           = "bk_body"
	bkRather         = "bk_rather"
	bkRatherFeel     = "bk_rather_feel"
	bkNow            = "bk_now"
	bkStill          = "bk_still"
	bkCheckFuture    = "bk_check_future"
	bkDigMore        = "bk_dig_more"
	bkDigWhat        = "bk_dig_what"
	bkIntegrateFeel  = "bk_integrate_feel"
	bkIntegrateAware = "bk_integrate_aware"
	bkDone           = "bk_done"
)

// blockageShiftingTable routes Blockage Shifting. Unlike the other
// problem modalities the restatement is part of the lap itself: bk_now
// overwrites the working problem before the lap gate asks whether a
// problem remains.
func blockageShiftingTable(b *registryBuilder) {
	b.step(bkBody, static(bkRather))
	b.step(bkRather, static(bkRatherFeel))
	b.step(bkRatherFeel, static(bkNow))
	b.step(bkNow, func(answer string, c *Context) (string, error) {
		c.RestateProblem(answer)
		return bkStill, nil
	})

	b.step(bkStill, lapGate(bkBody, bkCheckFuture))
	b.step(bkCheckFuture, check(bkCheckFuture, "yes", bkBody, bkDigMore))
	b.step(bkDigMore, check(bkDigMore, "yes", bkDigWhat, bkIntegrateFeel))
	b.step(bkDigWhat, func(answer string, c *Context) (string, error) {
		c.RestateProblem(answer)
		return bkBody, nil
	})

	b.step(bkIntegrateFeel, static(bkIntegrateAware))
	b.step(bkIntegrateAware, static(bkDone))
}
