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

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/InnerShiftAI/InnerShiftCore/pkg/logging"
)

// =============================================================================
// Test Doubles
// =============================================================================

var (
	errSessionMissing = errors.New("memstore: session not found")
	errStoreConflict  = errors.New("memstore: version conflict")
)

// memStore keeps contexts as serialized JSON, so every load/save crosses
// the same marshalling boundary a real store would: a flag the drivers
// rely on but the JSON form drops would fail these tests.
type memStore struct {
	mu       sync.Mutex
	sessions map[string]string
	loadErr  error
	saveErr  error
	saves    int
}

func newMemStore() *memStore {
	return &memStore{sessions: make(map[string]string)}
}

func storeKey(tenantID, sessionID string) string {
	return tenantID + "/" + sessionID
}

func (s *memStore) Load(_ context.Context, tenantID, sessionID string) (*Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	raw, ok := s.sessions[storeKey(tenantID, sessionID)]
	if !ok {
		return nil, errSessionMissing
	}
	var c Context
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *memStore) Save(_ context.Context, c *Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	data, err := json.Marshal(c)
	if err != nil {
		return err
	}
	s.sessions[storeKey(c.TenantID, c.SessionID)] = string(data)
	s.saves++
	return nil
}

func (s *memStore) saveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

// mustLoad reads a context back out of the store for assertions.
func (s *memStore) mustLoad(t *testing.T, tenantID, sessionID string) *Context {
	t.Helper()
	c, err := s.Load(context.Background(), tenantID, sessionID)
	require.NoError(t, err)
	return c
}

// recordingClarifier returns a canned result and records every request it
// sees. A positive delay simulates a slow AI collaborator.
type recordingClarifier struct {
	mu    sync.Mutex
	text  string
	err   error
	delay time.Duration
	calls []ClarifyRequest
}

func (r *recordingClarifier) Clarify(ctx context.Context, req ClarifyRequest) (string, error) {
	r.mu.Lock()
	r.calls = append(r.calls, req)
	r.mu.Unlock()
	if r.delay > 0 {
		select {
		case <-time.After(r.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return r.text, r.err
}

func (r *recordingClarifier) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func (r *recordingClarifier) lastCall() ClarifyRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[len(r.calls)-1]
}

// =============================================================================
// Harness
// =============================================================================

const testTenant = "tenant-a"

func newTestEngine(t *testing.T, store *memStore, ai Clarifier) *Engine {
	t.Helper()
	cat, err := DefaultCatalog()
	require.NoError(t, err)
	eng, err := NewEngine(EngineConfig{
		Source:    NewStaticSource(cat),
		Store:     store,
		Clarifier: ai,
		Logger:    logging.New(logging.Config{Quiet: true}),
		AITimeout: 200 * time.Millisecond,
	})
	require.NoError(t, err)
	return eng
}

func mustStart(t *testing.T, eng *Engine) *Turn {
	t.Helper()
	turn, err := eng.Start(context.Background(), testTenant)
	require.NoError(t, err)
	return turn
}

func mustAdvance(t *testing.T, eng *Engine, sessionID, input string) *Turn {
	t.Helper()
	turn, err := eng.Advance(context.Background(), testTenant, sessionID, input)
	require.NoError(t, err, "input=%q", input)
	return turn
}

// =============================================================================
// Lifecycle
// =============================================================================

func TestStartOpensAtIntake(t *testing.T) {
	store := newMemStore()
	eng := newTestEngine(t, store, nil)

	turn := mustStart(t, eng)
	assert.NotEmpty(t, turn.SessionID)
	assert.Equal(t, inWelcome, turn.StepID)
	assert.Contains(t, turn.PromptText, "What would you like to work on")
	assert.Equal(t, []string{"1", "2", "3"}, turn.Buttons)
	assert.False(t, turn.IsTerminal)

	saved := store.mustLoad(t, testTenant, turn.SessionID)
	assert.Equal(t, inWelcome, saved.CurrentStepID)
	assert.Equal(t, StatusActive, saved.Status)
}

func TestAdvancePersistsEachTurn(t *testing.T) {
	store := newMemStore()
	eng := newTestEngine(t, store, nil)

	turn := mustStart(t, eng)
	id := turn.SessionID

	turn = mustAdvance(t, eng, id, "1")
	assert.Equal(t, inProblem, turn.StepID)
	assert.Equal(t, "button", turn.InputKind)

	saved := store.mustLoad(t, testTenant, id)
	assert.Equal(t, WorkTypeProblem, saved.WorkType)
	assert.Equal(t, inProblem, saved.CurrentStepID)
	assert.Equal(t, "1", saved.ResponseAt(inWelcome))
	assert.Equal(t, 2, store.saveCount(), "start plus one advancing turn")
}

func TestAdvanceMissingSession(t *testing.T) {
	eng := newTestEngine(t, newMemStore(), nil)

	_, err := eng.Advance(context.Background(), testTenant, "no-such-session", "yes")
	assert.ErrorIs(t, err, errSessionMissing)
}

func TestAdvanceEmptyInput(t *testing.T) {
	store := newMemStore()
	eng := newTestEngine(t, store, nil)
	id := mustStart(t, eng).SessionID

	for _, raw := range []string{"", "   ", "\n\t"} {
		_, err := eng.Advance(context.Background(), testTenant, id, raw)
		assert.ErrorIs(t, err, ErrEmptyInput, "raw=%q", raw)
	}
	assert.Equal(t, 1, store.saveCount(), "rejected input must not mutate the session")
}

func TestAdvanceErroredSessionRefused(t *testing.T) {
	store := newMemStore()
	eng := newTestEngine(t, store, nil)
	id := mustStart(t, eng).SessionID

	c := store.mustLoad(t, testTenant, id)
	c.Status = StatusErrored
	require.NoError(t, store.Save(context.Background(), c))

	_, err := eng.Advance(context.Background(), testTenant, id, "1")
	assert.ErrorIs(t, err, ErrSessionErrored)
}

func TestResumeRendersWithoutMutating(t *testing.T) {
	store := newMemStore()
	eng := newTestEngine(t, store, nil)

	opening := mustStart(t, eng)
	id := opening.SessionID

	turn, err := eng.Resume(context.Background(), testTenant, id)
	require.NoError(t, err)
	assert.Equal(t, opening.StepID, turn.StepID)
	assert.Equal(t, opening.PromptText, turn.PromptText)
	assert.Empty(t, turn.InputKind)

	mustAdvance(t, eng, id, "1")
	turn, err = eng.Resume(context.Background(), testTenant, id)
	require.NoError(t, err)
	assert.Equal(t, "in_problem", turn.StepID)
	assert.Equal(t, 2, store.saveCount(), "resume must never persist anything")
}

func TestResumeCompletedSessionShowsTerminalTurn(t *testing.T) {
	store := newMemStore()
	eng := newTestEngine(t, store, nil)
	id := mustStart(t, eng).SessionID

	c := store.mustLoad(t, testTenant, id)
	c.Method = MethodProblemShifting
	c.CurrentStepID = psDone
	c.Status = StatusCompleted
	require.NoError(t, store.Save(context.Background(), c))

	turn, err := eng.Resume(context.Background(), testTenant, id)
	require.NoError(t, err)
	assert.True(t, turn.IsTerminal)
	assert.Equal(t, psDone, turn.StepID)
}

func TestResumeErroredSessionRefused(t *testing.T) {
	store := newMemStore()
	eng := newTestEngine(t, store, nil)
	id := mustStart(t, eng).SessionID

	c := store.mustLoad(t, testTenant, id)
	c.Status = StatusErrored
	require.NoError(t, store.Save(context.Background(), c))

	_, err := eng.Resume(context.Background(), testTenant, id)
	assert.ErrorIs(t, err, ErrSessionErrored)
}

func TestUnknownStepAbortsAndMarksErrored(t *testing.T) {
	store := newMemStore()
	eng := newTestEngine(t, store, nil)
	id := mustStart(t, eng).SessionID

	c := store.mustLoad(t, testTenant, id)
	c.Method = MethodProblemShifting
	c.CurrentStepID = "ps_ghost"
	require.NoError(t, store.Save(context.Background(), c))

	_, err := eng.Advance(context.Background(), testTenant, id, "anything at all")
	require.ErrorIs(t, err, ErrUnknownStep)

	saved := store.mustLoad(t, testTenant, id)
	assert.Equal(t, StatusErrored, saved.Status)

	// The session stays dead: no later input revives it.
	_, err = eng.Advance(context.Background(), testTenant, id, "yes")
	assert.ErrorIs(t, err, ErrSessionErrored)
}

func TestUnknownMethodAbortsAndMarksErrored(t *testing.T) {
	store := newMemStore()
	eng := newTestEngine(t, store, nil)
	id := mustStart(t, eng).SessionID

	c := store.mustLoad(t, testTenant, id)
	c.Method = Method("mesmerism")
	require.NoError(t, store.Save(context.Background(), c))

	_, err := eng.Advance(context.Background(), testTenant, id, "anything at all")
	require.ErrorIs(t, err, ErrUnknownMethod)
	assert.Equal(t, StatusErrored, store.mustLoad(t, testTenant, id).Status)
}

func TestSaveConflictPropagatesUntouched(t *testing.T) {
	store := newMemStore()
	eng := newTestEngine(t, store, nil)
	id := mustStart(t, eng).SessionID

	store.saveErr = errStoreConflict
	_, err := eng.Advance(context.Background(), testTenant, id, "1")
	assert.ErrorIs(t, err, errStoreConflict, "the store's own sentinel must survive wrapping")
}

func TestLoadErrorPropagates(t *testing.T) {
	store := newMemStore()
	eng := newTestEngine(t, store, nil)
	id := mustStart(t, eng).SessionID

	bad := errors.New("disk on fire")
	store.loadErr = bad
	_, err := eng.Advance(context.Background(), testTenant, id, "1")
	assert.ErrorIs(t, err, bad)
}

// =============================================================================
// Escalation
// =============================================================================

func TestEscalationServesAIAndLeavesStateUntouched(t *testing.T) {
	store := newMemStore()
	ai := &recordingClarifier{text: "Try naming the problem in a short sentence, like 'I freeze in meetings'."}
	eng := newTestEngine(t, store, ai)

	id := mustStart(t, eng).SessionID
	mustAdvance(t, eng, id, "1")
	savesBefore := store.saveCount()

	turn := mustAdvance(t, eng, id, "x") // fails the problem-statement validator
	assert.True(t, turn.Escalated)
	assert.True(t, turn.UsedAI)
	assert.Equal(t, inProblem, turn.StepID, "an escalated turn stays on the same step")
	assert.Equal(t, ai.text, turn.PromptText)
	assert.Equal(t, savesBefore, store.saveCount(), "escalation must not persist anything")

	req := ai.lastCall()
	assert.Equal(t, inProblem, req.StepID)
	assert.Equal(t, "x", req.UserInput)
	assert.NotEmpty(t, req.Reason)
	assert.Contains(t, req.PromptText, "Tell me in a few words")

	// The session continues normally afterwards.
	turn = mustAdvance(t, eng, id, "I freeze when my manager looks at me")
	assert.False(t, turn.Escalated)
	assert.Equal(t, inMethod, turn.StepID)
}

func TestEscalationRetriesOnceThenFallsBack(t *testing.T) {
	store := newMemStore()
	ai := &recordingClarifier{err: errors.New("rate limited")}
	eng := newTestEngine(t, store, ai)

	id := mustStart(t, eng).SessionID
	mustAdvance(t, eng, id, "1")

	turn := mustAdvance(t, eng, id, "x")
	assert.True(t, turn.Escalated)
	assert.False(t, turn.UsedAI, "after both attempts fail the scripted fallback serves")
	assert.Contains(t, turn.PromptText, "Let's take that again")
	assert.Contains(t, turn.PromptText, "Tell me in a few words", "the fallback re-offers the step's own prompt")
	assert.Equal(t, 2, ai.callCount(), "exactly one retry")
}

func TestEscalationTimeoutFallsBack(t *testing.T) {
	store := newMemStore()
	ai := &recordingClarifier{text: "too late to matter", delay: time.Second}
	eng := newTestEngine(t, store, ai)

	id := mustStart(t, eng).SessionID
	mustAdvance(t, eng, id, "1")

	start := time.Now()
	turn := mustAdvance(t, eng, id, "x")
	assert.True(t, turn.Escalated)
	assert.False(t, turn.UsedAI)
	assert.Equal(t, 2, ai.callCount())
	assert.Less(t, time.Since(start), time.Second, "each attempt is cut off at the configured timeout")
}

func TestEscalationWithClarifierDisabled(t *testing.T) {
	store := newMemStore()
	eng := newTestEngine(t, store, nil)

	id := mustStart(t, eng).SessionID
	mustAdvance(t, eng, id, "1")

	turn := mustAdvance(t, eng, id, "x")
	assert.True(t, turn.Escalated)
	assert.False(t, turn.UsedAI)
	assert.Contains(t, turn.PromptText, "Let's take that again")
}

func TestEscalationEmptyAITextFallsBack(t *testing.T) {
	store := newMemStore()
	ai := &recordingClarifier{text: "   "}
	eng := newTestEngine(t, store, ai)

	id := mustStart(t, eng).SessionID
	mustAdvance(t, eng, id, "1")

	turn := mustAdvance(t, eng, id, "x")
	assert.True(t, turn.Escalated)
	assert.False(t, turn.UsedAI, "whitespace from the AI is not a clarification")
}

func TestButtonInputNeverReachesAI(t *testing.T) {
	store := newMemStore()
	ai := &recordingClarifier{text: "should never be used"}
	eng := newTestEngine(t, store, ai)

	id := mustStart(t, eng).SessionID
	mustAdvance(t, eng, id, "1")
	mustAdvance(t, eng, id, "I freeze when my manager looks at me")

	// "2" at the four-token method menu: far too short for any content
	// rule, but it is a button, so the AI must stay out of it.
	turn := mustAdvance(t, eng, id, "2")
	assert.False(t, turn.Escalated)
	assert.Equal(t, idIntake, turn.StepID)
	assert.Zero(t, ai.callCount())
}

func TestYesNoInputNeverReachesAI(t *testing.T) {
	store := newMemStore()
	ai := &recordingClarifier{text: "should never be used"}
	eng := newTestEngine(t, store, ai)

	id := mustStart(t, eng).SessionID
	mustAdvance(t, eng, id, "3") // negative experience → trauma consent
	mustAdvance(t, eng, id, "the accident last spring")

	turn := mustAdvance(t, eng, id, "YES")
	assert.False(t, turn.Escalated)
	assert.Equal(t, tsWorst, turn.StepID)
	assert.Zero(t, ai.callCount())
}
