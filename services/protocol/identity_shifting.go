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

// Identity Shifting step ids. id_embody..id_still is the dissolution
// cycle; the three checks probe now, the future, and any scenario.
const (
	idIntake         = "id_intake"
	idEmbody         = "id_embody"
	idLocate         = "id_locate"
	idDissolve       = "id_dissolve"
	idBeyond         = "id_beyond"
	idRest           = "id_rest"
	idStill          = "id_still"
	idCheckNow       = "id_check_now"
	idCheckFuture    = "id_check_future"
	idCheckScene     = "id_check_scene"
	idDigMore        = "id_dig_more"
	idDigWhat        = "id_dig_what"
	idIntegrateFeel  = "id_integrate_feel"
	idIntegrateAware = "id_integrate_aware"
	idDone           = "id_done"
)

// identityShiftingTable routes Identity Shifting.
//
// Digging deeper does not re-arm the cycle: a new problem yields a new
// identity via id_intake, and the fresh identity must pass the whole check
// chain from id_check_now, so the restatement leaves cycle state cleared
// rather than setting a return target.
func identityShiftingTable(b *registryBuilder) {
	b.step(idIntake, func(answer string, c *Context) (string, error) {
		c.Identity = answer
		return idEmbody, nil
	})

	b.step(idEmbody, static(idLocate))
	b.step(idLocate, static(idDissolve))
	b.step(idDissolve, static(idBeyond))
	b.step(idBeyond, static(idRest))
	b.step(idRest, static(idStill))

	b.step(idStill, lapGate(idEmbody, idCheckNow))
	b.step(idCheckNow, check(idCheckNow, "yes", idEmbody, idCheckFuture))
	b.step(idCheckFuture, check(idCheckFuture, "yes", idEmbody, idCheckScene))
	b.step(idCheckScene, check(idCheckScene, "yes", idEmbody, idDigMore))

	b.step(idDigMore, func(answer string, c *Context) (string, error) {
		if answer == "yes" {
			return idDigWhat, nil
		}
		return idIntegrateFeel, nil
	})
	b.step(idDigWhat, func(answer string, c *Context) (string, error) {
		c.RestateProblem(answer)
		return idIntake, nil
	})

	b.step(idIntegrateFeel, static(idIntegrateAware))
	b.step(idIntegrateAware, static(idDone))
}
