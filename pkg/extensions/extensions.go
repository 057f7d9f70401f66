// Copyright (C) 2025 InnerShift AI (engineering@innershift.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package extensions defines the seams where hosted deployments extend
// the engine.
//
// InnerShiftCore is a complete engine on its own: every seam here ships
// with a no-op default, and a zero ServiceOptions runs every protocol
// flow unchanged. InnerShift Cloud supplies concrete implementations and
// injects them through engine.Config, which is how compliance audit
// trails and clinical safety screening reach a hosted deployment without
// forking the engine.
//
// # Extension Categories
//
//   - audit.go: compliance event logging (AuditLogger)
//   - safety.go: client input screening (SafetyFilter)
//
// # Usage
//
// Open source builds take the defaults:
//
//	cfg := engine.Config{Port: 9180}
//	// cfg.Extensions is zero; engine.New applies the no-ops.
//
// Hosted builds inject implementations:
//
//	cfg.Extensions = extensions.ServiceOptions{
//	    Audit:  cloud.NewComplianceSink(tenancy),
//	    Safety: cloud.NewCrisisScreen(policy),
//	}
//
// # Thread Safety
//
// Implementations of every interface in this package must be safe for
// concurrent use; the engine calls them from parallel request handlers
// and websocket streams.
package extensions

// ServiceOptions groups the extension points a deployment may supply.
//
// All fields are optional. WithDefaults replaces nil fields with the
// package no-ops, so holders of a normalized ServiceOptions never check
// for nil before calling a seam.
type ServiceOptions struct {
	// Audit receives compliance events for the session lifecycle.
	// Default: NopAuditLogger (events are discarded).
	Audit AuditLogger

	// Safety screens client free text before the engine accepts it.
	// Default: NopSafetyFilter (everything is accepted).
	Safety SafetyFilter
}

// DefaultOptions returns the open source configuration: every seam wired
// to its no-op.
func DefaultOptions() ServiceOptions {
	return ServiceOptions{}.WithDefaults()
}

// WithDefaults fills nil seams with the package no-ops and returns the
// result. Provided implementations are kept as-is.
func (o ServiceOptions) WithDefaults() ServiceOptions {
	if o.Audit == nil {
		o.Audit = &NopAuditLogger{}
	}
	if o.Safety == nil {
		o.Safety = &NopSafetyFilter{}
	}
	return o
}
