// Copyright (C) 2025 InnerShift AI (engineering@innershift.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package extensions

import (
	"context"
	"time"
)

// Audit event outcomes.
const (
	// OutcomeSuccess marks an operation that completed normally.
	OutcomeSuccess = "success"

	// OutcomeFailure marks an operation the engine or store refused.
	OutcomeFailure = "failure"

	// OutcomeBlocked marks input the deployment's safety filter rejected.
	OutcomeBlocked = "blocked"
)

// AuditEvent is one compliance-relevant fact about a session.
//
// The engine emits lifecycle and data-access events ("session.start",
// "session.complete", "session.read", "session.delete") plus a
// "session.advance" event with OutcomeBlocked whenever the safety filter
// refuses input. Sinks built for GDPR or HIPAA reporting should treat
// TenantID plus SessionID as the data-subject scope.
//
// Clinical content never rides on an AuditEvent: the problem statement,
// identities and free-text answers stay in the session store. Metadata
// carries operational facts only (work type, modality, cycle counts,
// screening reasons).
type AuditEvent struct {
	// EventType categorizes the event, "category.action" style
	// ("session.start", "session.advance").
	EventType string

	// Timestamp is when the event occurred, UTC. Sinks fill a zero
	// value with time.Now().UTC().
	Timestamp time.Time

	// TenantID scopes the event to the tenant whose data was touched.
	TenantID string

	// SessionID names the session involved, empty for collection-level
	// events such as a listing.
	SessionID string

	// Action is the operation attempted: "create", "update", "read",
	// "delete".
	Action string

	// Outcome is one of the Outcome constants.
	Outcome string

	// Metadata holds event-specific operational detail. Keys in use:
	// "work_type", "method", "cycle_count", "count", "reason".
	Metadata map[string]any
}

// AuditLogger records compliance events emitted by the engine.
//
// Log is called on the request path, so implementations either return
// fast or buffer internally; the engine downgrades a Log error to a
// warning rather than failing the client's turn. Flush drains any
// buffer and is called once at shutdown.
//
// Implementations must be safe for concurrent use.
type AuditLogger interface {
	// Log records one event. A zero Timestamp means "now".
	Log(ctx context.Context, event AuditEvent) error

	// Flush persists any buffered events before shutdown.
	Flush(ctx context.Context) error
}

// NopAuditLogger discards every event. This is the open source default:
// a local single-operator deployment keeps no audit trail beyond its
// structured logs.
type NopAuditLogger struct{}

// Log discards the event.
func (l *NopAuditLogger) Log(_ context.Context, _ AuditEvent) error { return nil }

// Flush has nothing to drain.
func (l *NopAuditLogger) Flush(_ context.Context) error { return nil }

var _ AuditLogger = (*NopAuditLogger)(nil)
