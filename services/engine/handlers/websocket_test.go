// Copyright (C) 2025 InnerShift AI (engineering@innershift.ai)
// Tests for the websocket turn stream

package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/InnerShiftAI/InnerShiftCore/pkg/extensions"
	"github.com/InnerShiftAI/InnerShiftCore/services/engine/middleware"
	"github.com/InnerShiftAI/InnerShiftCore/services/protocol"
	"github.com/InnerShiftAI/InnerShiftCore/services/sessionstore"
)

// =============================================================================
// Test Fixtures
// =============================================================================

// newStreamServer runs the stream route on a real listener so the test
// can dial it with a websocket client.
func newStreamServer(t *testing.T) (*httptest.Server, *protocol.Engine, *sessionstore.Store) {
	return newStreamServerExt(t, extensions.DefaultOptions())
}

// newStreamServerExt is newStreamServer with a deployment's extension
// seams injected.
func newStreamServerExt(t *testing.T, ext extensions.ServiceOptions) (*httptest.Server, *protocol.Engine, *sessionstore.Store) {
	t.Helper()
	eng, store := newTestEngine(t)

	router := gin.New()
	g := router.Group("/v1/sessions")
	g.Use(middleware.TenantRequired())
	g.GET("/:sessionId/stream", SessionStream(eng, ext))

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, eng, store
}

// dialStream opens a websocket to the session's stream endpoint.
func dialStream(t *testing.T, srv *httptest.Server, sessionID, tenant string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/sessions/" + sessionID + "/stream"
	header := http.Header{}
	header.Set(middleware.HeaderTenantID, tenant)

	ws, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err, "websocket dial should succeed")
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func readFrame(t *testing.T, ws *websocket.Conn) WSResponse {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	var frame WSResponse
	require.NoError(t, ws.ReadJSON(&frame))
	return frame
}

// =============================================================================
// SessionStream Tests
// =============================================================================

func TestSessionStream_SendsCurrentTurnOnConnect(t *testing.T) {
	srv, eng, _ := newStreamServer(t)
	turn, err := eng.Start(context.Background(), "acme")
	require.NoError(t, err)

	ws := dialStream(t, srv, turn.SessionID, "acme")

	frame := readFrame(t, ws)
	assert.Equal(t, "turn", frame.Type)
	require.NotNil(t, frame.Turn)
	assert.Equal(t, "in_welcome", frame.Turn.StepID,
		"connecting should replay the current prompt")
}

func TestSessionStream_AdvancesOverTheStream(t *testing.T) {
	srv, eng, _ := newStreamServer(t)
	turn, err := eng.Start(context.Background(), "acme")
	require.NoError(t, err)

	ws := dialStream(t, srv, turn.SessionID, "acme")
	readFrame(t, ws) // the resume frame

	require.NoError(t, ws.WriteJSON(WSRequest{Input: "1"}))

	frame := readFrame(t, ws)
	assert.Equal(t, "turn", frame.Type)
	require.NotNil(t, frame.Turn)
	assert.Equal(t, "in_problem", frame.Turn.StepID)
}

func TestSessionStream_UnknownSessionClosesWithError(t *testing.T) {
	srv, _, _ := newStreamServer(t)

	ws := dialStream(t, srv, "00000000-0000-0000-0000-000000000000", "acme")

	frame := readFrame(t, ws)
	assert.Equal(t, "error", frame.Type)
	assert.Contains(t, frame.Error, "session not found")

	// The server hangs up after a fatal error frame.
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	var next WSResponse
	assert.Error(t, ws.ReadJSON(&next), "stream should be closed")
}

func TestSessionStream_MalformedSessionIDRejectsHandshake(t *testing.T) {
	srv, _, _ := newStreamServer(t)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/sessions/nope/stream"
	header := http.Header{}
	header.Set(middleware.HeaderTenantID, "acme")

	ws, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err, "malformed ids should never upgrade")
	if ws != nil {
		_ = ws.Close()
	}
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSessionStream_EmptyInputIsRecoverable(t *testing.T) {
	srv, eng, _ := newStreamServer(t)
	turn, err := eng.Start(context.Background(), "acme")
	require.NoError(t, err)

	ws := dialStream(t, srv, turn.SessionID, "acme")
	readFrame(t, ws) // the resume frame

	require.NoError(t, ws.WriteJSON(WSRequest{Input: "   "}))
	frame := readFrame(t, ws)
	assert.Equal(t, "error", frame.Type)
	assert.Contains(t, frame.Error, "input is empty")

	// The stream survives; the next reply still runs a turn.
	require.NoError(t, ws.WriteJSON(WSRequest{Input: "1"}))
	frame = readFrame(t, ws)
	assert.Equal(t, "turn", frame.Type)
	require.NotNil(t, frame.Turn)
	assert.Equal(t, "in_problem", frame.Turn.StepID)
}

func TestSessionStream_TerminalTurnClosesStream(t *testing.T) {
	srv, eng, store := newStreamServer(t)
	turn, err := eng.Start(context.Background(), "acme")
	require.NoError(t, err)

	// Park the session on its terminal step.
	c, err := store.Load(context.Background(), "acme", turn.SessionID)
	require.NoError(t, err)
	c.Method = protocol.MethodProblemShifting
	c.CurrentStepID = "ps_done"
	c.Status = protocol.StatusCompleted
	require.NoError(t, store.Save(context.Background(), c))

	ws := dialStream(t, srv, turn.SessionID, "acme")

	frame := readFrame(t, ws)
	require.NotNil(t, frame.Turn)
	assert.True(t, frame.Turn.IsTerminal, "resume should replay the terminal prompt")

	// Any further input re-renders the terminal turn, then the server
	// closes the stream normally.
	require.NoError(t, ws.WriteJSON(WSRequest{Input: "ok"}))
	frame = readFrame(t, ws)
	require.NotNil(t, frame.Turn)
	assert.True(t, frame.Turn.IsTerminal)

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	var next WSResponse
	err = ws.ReadJSON(&next)
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure),
		"server should close with a normal closure, got: %v", err)
}

func TestSessionStream_BlockedInputIsRecoverable(t *testing.T) {
	srv, eng, _ := newStreamServerExt(t, extensions.ServiceOptions{
		Safety: &phraseFilter{phrase: "forbidden"},
	})
	turn, err := eng.Start(context.Background(), "acme")
	require.NoError(t, err)

	ws := dialStream(t, srv, turn.SessionID, "acme")
	readFrame(t, ws) // the resume frame

	require.NoError(t, ws.WriteJSON(WSRequest{Input: "something forbidden"}))
	frame := readFrame(t, ws)
	assert.Equal(t, "error", frame.Type)
	assert.Contains(t, frame.Error, "input cannot be accepted")

	// The stream stays open and the session has not moved.
	require.NoError(t, ws.WriteJSON(WSRequest{Input: "1"}))
	frame = readFrame(t, ws)
	assert.Equal(t, "turn", frame.Type)
	require.NotNil(t, frame.Turn)
	assert.Equal(t, "in_problem", frame.Turn.StepID)
}
