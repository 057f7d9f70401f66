// Copyright (C) 2025 InnerShift AI (engineering@innershift.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/InnerShiftAI/InnerShiftCore/pkg/extensions"
	"github.com/InnerShiftAI/InnerShiftCore/pkg/validation"
	"github.com/InnerShiftAI/InnerShiftCore/services/engine/middleware"
	"github.com/InnerShiftAI/InnerShiftCore/services/engine/observability"
	"github.com/InnerShiftAI/InnerShiftCore/services/protocol"
	"github.com/InnerShiftAI/InnerShiftCore/services/sessionstore"
)

// WSRequest carries one user reply over the stream.
type WSRequest struct {
	Input string `json:"input"`
}

// WSResponse frames stream messages: "turn" carries the next protocol
// turn, "error" a failure. Recoverable errors (empty input, version
// conflict) keep the stream open; anything else closes it.
type WSResponse struct {
	Type  string         `json:"type"`
	Turn  *protocol.Turn `json:"turn,omitempty"`
	Error string         `json:"error,omitempty"`
}

var upgrader = websocket.Upgrader{
	// The API-key middleware has already vetted the request and the
	// clients are apps and the CLI, not browsers.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

func sendJSON(ws *websocket.Conn, v interface{}) error {
	err := ws.WriteJSON(v)
	if err != nil {
		slog.Warn("failed to write websocket JSON", "error", err)
	}
	return err
}

// SessionStream handles GET /v1/sessions/:sessionId/stream.
//
// # Description
//
// Runs the turn loop over a websocket. On connect the current prompt is
// sent immediately (rendered without consuming the bridge variant), so a
// reconnecting client always knows where the session stands. Each client
// frame then runs one Advance; the resulting turn goes back as a "turn"
// frame. After a terminal turn the server closes the stream normally.
func SessionStream(eng *protocol.Engine, ext extensions.ServiceOptions) gin.HandlerFunc {
	ext = ext.WithDefaults()
	return func(c *gin.Context) {
		sessionID := c.Param("sessionId")
		tenantID := middleware.TenantID(c)

		// Reject ids the engine cannot have issued before paying for the
		// upgrade.
		if validation.ValidateSessionID(sessionID) != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}

		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			slog.Error("failed to upgrade the websocket", "sessionId", sessionID, "error", err)
			return
		}
		defer ws.Close()
		slog.Info("websocket client connected", "sessionId", sessionID)

		if m := observability.DefaultMetrics; m != nil {
			m.ActiveStreams.Inc()
			defer m.ActiveStreams.Dec()
		}

		ctx := c.Request.Context()

		turn, err := eng.Resume(ctx, tenantID, sessionID)
		if err != nil {
			msg, _ := streamError(err)
			_ = sendJSON(ws, WSResponse{Type: "error", Error: msg})
			return
		}
		if sendJSON(ws, WSResponse{Type: "turn", Turn: turn}) != nil {
			return
		}

		for {
			var req WSRequest
			if err := ws.ReadJSON(&req); err != nil {
				slog.Info("websocket client disconnected", "sessionId", sessionID, "error", err.Error())
				return
			}

			// A safety block is recoverable like an empty input: the
			// client may answer again on the same stream.
			if screenInput(ctx, ext, tenantID, sessionID, req.Input) {
				observability.DefaultMetrics.RecordError("stream", observability.ErrorCodeBlocked)
				if sendJSON(ws, WSResponse{Type: "error", Error: "input cannot be accepted"}) != nil {
					return
				}
				continue
			}

			began := time.Now()
			turn, err := eng.Advance(ctx, tenantID, sessionID, req.Input)
			if err != nil {
				msg, fatal := streamError(err)
				if sendJSON(ws, WSResponse{Type: "error", Error: msg}) != nil || fatal {
					return
				}
				continue
			}

			recordTurn(turn, time.Since(began))
			if turn.IsTerminal {
				auditEvent(ctx, ext.Audit, extensions.AuditEvent{
					EventType: "session.complete",
					TenantID:  tenantID,
					SessionID: sessionID,
					Action:    "update",
					Outcome:   extensions.OutcomeSuccess,
					Metadata:  map[string]any{"method": turn.Method, "cycle_count": turn.CycleCount},
				})
			}
			if sendJSON(ws, WSResponse{Type: "turn", Turn: turn}) != nil {
				return
			}

			if turn.IsTerminal {
				deadline := time.Now().Add(time.Second)
				_ = ws.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session completed"),
					deadline)
				return
			}
		}
	}
}

// streamError translates an engine error into a client-facing message and
// reports whether the stream should close.
func streamError(err error) (msg string, fatal bool) {
	switch {
	case errors.Is(err, protocol.ErrEmptyInput):
		return "input is empty", false
	case errors.Is(err, sessionstore.ErrConflict):
		return "session was modified by a concurrent turn, resend the input", false
	case errors.Is(err, sessionstore.ErrNotFound):
		return "session not found", true
	case errors.Is(err, protocol.ErrSessionErrored):
		return "session is errored and cannot continue", true
	default:
		slog.Error("stream turn failed", "error", err)
		return "internal error", true
	}
}
