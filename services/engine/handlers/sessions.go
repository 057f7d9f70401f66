// Copyright (C) 2025 InnerShift AI (engineering@innershift.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers provides the HTTP handlers for the engine service.
//
// Handlers are closure factories: each takes its dependencies and returns
// a gin.HandlerFunc, so routes.SetupRoutes can wire them without package
// state. Tenant scope comes from the middleware; handlers never read the
// X-Tenant-ID header themselves.
package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/InnerShiftAI/InnerShiftCore/pkg/extensions"
	"github.com/InnerShiftAI/InnerShiftCore/pkg/validation"
	"github.com/InnerShiftAI/InnerShiftCore/services/engine/datatypes"
	"github.com/InnerShiftAI/InnerShiftCore/services/engine/middleware"
	"github.com/InnerShiftAI/InnerShiftCore/services/engine/observability"
	"github.com/InnerShiftAI/InnerShiftCore/services/protocol"
	"github.com/InnerShiftAI/InnerShiftCore/services/sessionstore"
)

// =============================================================================
// Session Lifecycle
// =============================================================================

// StartSession handles POST /v1/sessions.
//
// # Description
//
// Opens a protocol session for the request's tenant and returns the first
// turn. The body is optional; when it carries a work_type the handler
// answers the welcome menu on the caller's behalf, so the returned turn is
// already the matching intake question.
//
// # Outputs
//
//   - 201 with a TurnResponse on success
//   - 400 on validation failure
//   - 500 when the store refuses the new session
func StartSession(eng *protocol.Engine, ext extensions.ServiceOptions) gin.HandlerFunc {
	ext = ext.WithDefaults()
	return func(c *gin.Context) {
		var req datatypes.StartSessionRequest
		// An absent body is a plain start at the welcome menu.
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			observability.DefaultMetrics.RecordError("start", observability.ErrorCodeValidation)
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
			return
		}
		req.TenantID = middleware.TenantID(c)
		req.EnsureDefaults()
		if err := req.Validate(); err != nil {
			observability.DefaultMetrics.RecordError("start", observability.ErrorCodeValidation)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		began := time.Now()
		turn, err := eng.Start(c.Request.Context(), req.TenantID)
		if err != nil {
			slog.Error("failed to start session", "tenantId", req.TenantID, "error", err)
			writeProtocolError(c, "start", err)
			return
		}

		if req.WorkType != "" {
			turn, err = eng.Advance(c.Request.Context(), req.TenantID, turn.SessionID, welcomeToken(req.WorkType))
			if err != nil {
				slog.Error("failed to pre-answer welcome menu",
					"tenantId", req.TenantID, "workType", req.WorkType, "error", err)
				writeProtocolError(c, "start", err)
				return
			}
		}

		if m := observability.DefaultMetrics; m != nil {
			m.SessionsStartedTotal.Inc()
			m.TurnDurationSeconds.WithLabelValues("start").Observe(time.Since(began).Seconds())
		}
		observability.DefaultMetrics.RecordTurn("start", turn.InputKind, turn.Escalated, turn.UsedAI)

		auditEvent(c.Request.Context(), ext.Audit, extensions.AuditEvent{
			EventType: "session.start",
			TenantID:  req.TenantID,
			SessionID: turn.SessionID,
			Action:    "create",
			Outcome:   extensions.OutcomeSuccess,
			Metadata:  map[string]any{"work_type": req.WorkType},
		})

		c.JSON(http.StatusCreated, datatypes.NewTurnResponse(req.RequestID, turn))
	}
}

// welcomeToken maps a start-request work type onto the welcome menu's
// button tokens.
func welcomeToken(workType string) string {
	switch workType {
	case datatypes.WorkTypeGoal:
		return "2"
	case datatypes.WorkTypeNegativeExperience:
		return "3"
	default:
		return "1"
	}
}

// AdvanceSession handles POST /v1/sessions/:sessionId/advance.
//
// # Description
//
// Runs one protocol turn with the supplied input and returns the next
// turn. Escalated turns come back with 200 like any other: a
// clarification is a normal protocol outcome, not a transport error.
//
// # Outputs
//
//   - 200 with a TurnResponse on success
//   - 400 on validation failure or empty input
//   - 404 when the session does not exist in the tenant's scope
//   - 409 when a concurrent turn won the version race
//   - 410 when the session is errored
//   - 422 when the deployment's safety filter refuses the input
func AdvanceSession(eng *protocol.Engine, ext extensions.ServiceOptions) gin.HandlerFunc {
	ext = ext.WithDefaults()
	return func(c *gin.Context) {
		sessionID := c.Param("sessionId")
		tenantID := middleware.TenantID(c)
		if badSessionID(c, "advance", sessionID) {
			return
		}

		var req datatypes.AdvanceRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			observability.DefaultMetrics.RecordError("advance", observability.ErrorCodeValidation)
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
			return
		}
		req.EnsureDefaults()
		if err := req.Validate(); err != nil {
			observability.DefaultMetrics.RecordError("advance", observability.ErrorCodeValidation)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		if screenInput(c.Request.Context(), ext, tenantID, sessionID, req.Input) {
			observability.DefaultMetrics.RecordError("advance", observability.ErrorCodeBlocked)
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "input cannot be accepted"})
			return
		}

		began := time.Now()
		turn, err := eng.Advance(c.Request.Context(), tenantID, sessionID, req.Input)
		if err != nil {
			writeProtocolError(c, "advance", err)
			return
		}

		recordTurn(turn, time.Since(began))
		if turn.IsTerminal {
			auditEvent(c.Request.Context(), ext.Audit, extensions.AuditEvent{
				EventType: "session.complete",
				TenantID:  tenantID,
				SessionID: sessionID,
				Action:    "update",
				Outcome:   extensions.OutcomeSuccess,
				Metadata:  map[string]any{"method": turn.Method, "cycle_count": turn.CycleCount},
			})
		}
		c.JSON(http.StatusOK, datatypes.NewTurnResponse(req.RequestID, turn))
	}
}

// =============================================================================
// Session Resources
// =============================================================================

// GetSession handles GET /v1/sessions/:sessionId.
func GetSession(store *sessionstore.Store, ext extensions.ServiceOptions) gin.HandlerFunc {
	ext = ext.WithDefaults()
	return func(c *gin.Context) {
		sessionID := c.Param("sessionId")
		tenantID := middleware.TenantID(c)
		if badSessionID(c, "get", sessionID) {
			return
		}

		session, err := store.Load(c.Request.Context(), tenantID, sessionID)
		if err != nil {
			writeProtocolError(c, "get", err)
			return
		}

		// Reads are audited too: the resource carries the problem
		// statement, which is clinical data.
		auditEvent(c.Request.Context(), ext.Audit, extensions.AuditEvent{
			EventType: "session.read",
			TenantID:  tenantID,
			SessionID: sessionID,
			Action:    "read",
			Outcome:   extensions.OutcomeSuccess,
		})
		c.JSON(http.StatusOK, datatypes.NewSessionResource(session))
	}
}

// ListSessions handles GET /v1/sessions. Sessions come back most recently
// updated first, the store's natural order.
func ListSessions(store *sessionstore.Store, ext extensions.ServiceOptions) gin.HandlerFunc {
	ext = ext.WithDefaults()
	return func(c *gin.Context) {
		tenantID := middleware.TenantID(c)

		sessions, err := store.List(c.Request.Context(), tenantID)
		if err != nil {
			slog.Error("failed to list sessions", "tenantId", tenantID, "error", err)
			writeProtocolError(c, "list", err)
			return
		}

		resources := make([]datatypes.SessionResource, 0, len(sessions))
		for _, s := range sessions {
			resources = append(resources, datatypes.NewSessionResource(s))
		}

		auditEvent(c.Request.Context(), ext.Audit, extensions.AuditEvent{
			EventType: "session.list",
			TenantID:  tenantID,
			Action:    "read",
			Outcome:   extensions.OutcomeSuccess,
			Metadata:  map[string]any{"count": len(resources)},
		})
		c.JSON(http.StatusOK, datatypes.ListSessionsResponse{
			Count:    len(resources),
			Sessions: resources,
		})
	}
}

// DeleteSession handles DELETE /v1/sessions/:sessionId.
func DeleteSession(store *sessionstore.Store, ext extensions.ServiceOptions) gin.HandlerFunc {
	ext = ext.WithDefaults()
	return func(c *gin.Context) {
		sessionID := c.Param("sessionId")
		tenantID := middleware.TenantID(c)
		if badSessionID(c, "delete", sessionID) {
			return
		}

		if err := store.Delete(c.Request.Context(), tenantID, sessionID); err != nil {
			writeProtocolError(c, "delete", err)
			return
		}

		slog.Info("session deleted", "tenantId", tenantID, "sessionId", sessionID)
		auditEvent(c.Request.Context(), ext.Audit, extensions.AuditEvent{
			EventType: "session.delete",
			TenantID:  tenantID,
			SessionID: sessionID,
			Action:    "delete",
			Outcome:   extensions.OutcomeSuccess,
		})
		c.JSON(http.StatusOK, gin.H{"status": "deleted", "session_id": sessionID})
	}
}

// =============================================================================
// Shared Helpers
// =============================================================================

// recordTurn feeds the turn metrics, including the terminal-session
// counters when the turn closed the session out.
func recordTurn(turn *protocol.Turn, took time.Duration) {
	m := observability.DefaultMetrics
	if m == nil {
		return
	}
	m.TurnDurationSeconds.WithLabelValues("advance").Observe(took.Seconds())
	m.RecordTurn("advance", turn.InputKind, turn.Escalated, turn.UsedAI)
	if turn.IsTerminal && turn.Method != "" {
		m.SessionsCompletedTotal.WithLabelValues(turn.Method).Inc()
		m.CompletionLaps.WithLabelValues(turn.Method).Observe(float64(turn.CycleCount))
	}
}

// badSessionID rejects ids that cannot have been issued by the engine
// before they reach the store or a log field. The response is
// indistinguishable from a miss, so the id format stays an
// implementation detail.
func badSessionID(c *gin.Context, operation, sessionID string) bool {
	if validation.ValidateSessionID(sessionID) == nil {
		return false
	}
	writeProtocolError(c, operation, sessionstore.ErrNotFound)
	return true
}

// auditEvent records ev on the deployment's audit sink. A sink failure
// must not fail the client's request, so it degrades to a warning.
func auditEvent(ctx context.Context, sink extensions.AuditLogger, ev extensions.AuditEvent) {
	if err := sink.Log(ctx, ev); err != nil {
		slog.Warn("audit sink refused event", "eventType", ev.EventType, "error", err)
	}
}

// screenInput runs the deployment's safety filter over one answer and
// reports whether it blocked. A block is audited here, reason included,
// so callers only shape the client-facing rejection. Filter errors
// degrade to allow: the engine is complete without a filter, and a
// broken one must not strand sessions.
func screenInput(ctx context.Context, ext extensions.ServiceOptions, tenantID, sessionID, input string) bool {
	verdict, err := ext.Safety.ScreenInput(ctx, input)
	if err != nil {
		slog.Warn("safety filter error, input allowed", "sessionId", sessionID, "error", err)
		return false
	}
	if verdict == nil || !verdict.Blocked {
		return false
	}
	auditEvent(ctx, ext.Audit, extensions.AuditEvent{
		EventType: "session.advance",
		TenantID:  tenantID,
		SessionID: sessionID,
		Action:    "update",
		Outcome:   extensions.OutcomeBlocked,
		Metadata:  map[string]any{"reason": verdict.Reason},
	})
	return true
}

// writeProtocolError maps engine and store errors onto HTTP statuses.
//
// The mapping is deliberately coarse on the 5xx side: unknown-step and
// unknown-method failures mean the deployment is broken (script/driver
// mismatch), and the client can do nothing with the details.
func writeProtocolError(c *gin.Context, operation string, err error) {
	m := observability.DefaultMetrics
	switch {
	case errors.Is(err, sessionstore.ErrNotFound):
		m.RecordError(operation, observability.ErrorCodeNotFound)
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
	case errors.Is(err, sessionstore.ErrConflict):
		m.RecordError(operation, observability.ErrorCodeConflict)
		c.JSON(http.StatusConflict, gin.H{
			"error": "session was modified by a concurrent turn, re-fetch and retry",
		})
	case errors.Is(err, protocol.ErrEmptyInput):
		m.RecordError(operation, observability.ErrorCodeEmptyInput)
		c.JSON(http.StatusBadRequest, gin.H{"error": "input is empty"})
	case errors.Is(err, protocol.ErrSessionErrored):
		m.RecordError(operation, observability.ErrorCodeSessionErrored)
		c.JSON(http.StatusGone, gin.H{"error": "session is errored and cannot continue"})
	default:
		m.RecordError(operation, observability.ErrorCodeInternal)
		slog.Error("request failed", "operation", operation, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
