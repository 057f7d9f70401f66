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

// Trauma Shifting step ids. Consent gates everything; the dissolution
// cycle works on the identity the worst moment left behind.
const (
	tsConsent        = "ts_consent"
	tsFeeling        = "ts_feeling"
	tsWorst          = "ts_worst"
	tsIdentity       = "ts_identity"
	tsEmbody         = "ts_embody"
	tsLocate         = "ts_locate"
	tsDissolve       = "ts_dissolve"
	tsBeyond         = "ts_beyond"
	tsRest           = "ts_rest"
	tsStill          = "ts_still"
	tsCheckNow       = "ts_check_now"
	tsCheckFuture    = "ts_check_future"
	tsCheckAgain     = "ts_check_again"
	tsDigMore        = "ts_dig_more"
	tsDigWhat        = "ts_dig_what"
	tsIntegrateFeel  = "ts_integrate_feel"
	tsIntegrateAware = "ts_integrate_aware"
	tsDone           = "ts_done"
)

// traumaShiftingTable routes Trauma Shifting.
//
// Declining consent is not a dead end: the session pivots to feeling-based
// work. The named feeling becomes the working problem and the session
// continues under Problem Shifting, entering its graph fresh.
//
// Digging surfaces another aspect of the experience; that aspect replaces
// the recorded event and the identity is re-derived from it, with the
// check chain starting over for the new identity.
func traumaShiftingTable(b *registryBuilder) {
	b.step(tsConsent, func(answer string, c *Context) (string, error) {
		if answer == "no" {
			return tsFeeling, nil
		}
		return tsWorst, nil
	})
	b.step(tsFeeling, func(answer string, c *Context) (string, error) {
		c.RestateProblem(answer)
		c.Method = MethodProblemShifting
		return psBody, nil
	})

	b.step(tsWorst, func(answer string, c *Context) (string, error) {
		c.TraumaEvent = answer
		return tsIdentity, nil
	})
	b.step(tsIdentity, func(answer string, c *Context) (string, error) {
		c.Identity = answer
		return tsEmbody, nil
	})

	b.step(tsEmbody, static(tsLocate))
	b.step(tsLocate, static(tsDissolve))
	b.step(tsDissolve, static(tsBeyond))
	b.step(tsBeyond, static(tsRest))
	b.step(tsRest, static(tsStill))

	b.step(tsStill, lapGate(tsEmbody, tsCheckNow))
	b.step(tsCheckNow, check(tsCheckNow, "yes", tsEmbody, tsCheckFuture))
	b.step(tsCheckFuture, check(tsCheckFuture, "yes", tsEmbody, tsCheckAgain))
	b.step(tsCheckAgain, check(tsCheckAgain, "yes", tsEmbody, tsDigMore))

	b.step(tsDigMore, func(answer string, c *Context) (string, error) {
		if answer == "yes" {
			return tsDigWhat, nil
		}
		return tsIntegrateFeel, nil
	})
	b.step(tsDigWhat, func(answer string, c *Context) (string, error) {
		c.TraumaEvent = answer
		return tsIdentity, nil
	})

	b.step(tsIntegrateFeel, static(tsIntegrateAware))
	b.step(tsIntegrateAware, static(tsDone))
}
