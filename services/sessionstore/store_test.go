// Copyright (C) 2025 InnerShift AI (engineering@innershift.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package sessionstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/InnerShiftAI/InnerShiftCore/pkg/logging"
	"github.com/InnerShiftAI/InnerShiftCore/services/protocol"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	cfg := InMemoryConfig()
	cfg.Logger = logging.New(logging.Config{Quiet: true})
	s, err := Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newSession(tenantID string) *protocol.Context {
	c := protocol.NewContext(tenantID, "in_welcome")
	c.WorkType = protocol.WorkTypeProblem
	c.SetProblemStatement("I feel anxious about meetings")
	c.RecordResponse("in_welcome", "1")
	return c
}

func TestOpenRequiresPathForPersistentStore(t *testing.T) {
	_, err := Open(Config{Logger: logging.New(logging.Config{Quiet: true})})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "path is required")
}

func TestSaveAssignsVersionsInOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c := newSession("tenant-a")
	require.Zero(t, c.Version)
	require.NoError(t, s.Save(ctx, c))
	assert.Equal(t, uint64(1), c.Version)

	c.RecordResponse("in_problem", "I feel anxious about meetings")
	c.CurrentStepID = "in_method"
	require.NoError(t, s.Save(ctx, c))
	assert.Equal(t, uint64(2), c.Version)

	loaded, err := s.Load(ctx, c.TenantID, c.SessionID)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), loaded.Version)
	assert.Equal(t, "in_method", loaded.CurrentStepID)
	assert.Equal(t, "I feel anxious about meetings", loaded.ResponseAt("in_problem"))
	assert.Equal(t, protocol.WorkTypeProblem, loaded.WorkType)
}

func TestLoadMissingSession(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Load(ctx, "tenant-a", "no-such-session")
	assert.ErrorIs(t, err, ErrNotFound)

	// A real session under the wrong tenant is just as missing.
	c := newSession("tenant-a")
	require.NoError(t, s.Save(ctx, c))
	_, err = s.Load(ctx, "tenant-b", c.SessionID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSaveStaleVersionConflicts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c := newSession("tenant-a")
	require.NoError(t, s.Save(ctx, c))

	rival, err := s.Load(ctx, c.TenantID, c.SessionID)
	require.NoError(t, err)
	rival.CurrentStepID = "in_problem"
	require.NoError(t, s.Save(ctx, rival))

	// The first copy is now one version behind.
	c.CurrentStepID = "in_goal"
	err = s.Save(ctx, c)
	require.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, uint64(1), c.Version, "a conflicted save leaves the caller's copy untouched")

	// Reloading and replaying succeeds.
	fresh, err := s.Load(ctx, c.TenantID, c.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "in_problem", fresh.CurrentStepID)
	fresh.CurrentStepID = "in_goal"
	require.NoError(t, s.Save(ctx, fresh))
}

func TestSaveFreshContextWithNonzeroVersionConflicts(t *testing.T) {
	s := newTestStore(t)

	c := newSession("tenant-a")
	c.Version = 7 // claims a history the store has never seen
	err := s.Save(context.Background(), c)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestDeleteSession(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c := newSession("tenant-a")
	require.NoError(t, s.Save(ctx, c))

	require.NoError(t, s.Delete(ctx, c.TenantID, c.SessionID))
	_, err := s.Load(ctx, c.TenantID, c.SessionID)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, s.Delete(ctx, c.TenantID, c.SessionID), ErrNotFound)
}

func TestListIsolatesTenantsAndOrdersByRecency(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Now().UnixMilli()
	var ids []string
	for i := 0; i < 3; i++ {
		c := newSession("tenant-a")
		c.UpdatedAtMs = base + int64(i*1000)
		require.NoError(t, s.Save(ctx, c))
		ids = append(ids, c.SessionID)
	}
	other := newSession("tenant-b")
	require.NoError(t, s.Save(ctx, other))

	sessions, err := s.List(ctx, "tenant-a")
	require.NoError(t, err)
	require.Len(t, sessions, 3)
	assert.Equal(t, ids[2], sessions[0].SessionID, "most recently updated first")
	assert.Equal(t, ids[0], sessions[2].SessionID)
	for _, c := range sessions {
		assert.Equal(t, "tenant-a", c.TenantID)
	}

	sessions, err = s.List(ctx, "tenant-b")
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, other.SessionID, sessions[0].SessionID)

	sessions, err = s.List(ctx, "tenant-empty")
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestSweepRemovesStaleAndTerminalSessions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	idle := newSession("tenant-a")
	idle.UpdatedAtMs = now.Add(-2 * time.Hour).UnixMilli()
	require.NoError(t, s.Save(ctx, idle))

	// Completed recently, but already past the shorter terminal retention.
	done := newSession("tenant-b")
	done.Status = protocol.StatusCompleted
	done.UpdatedAtMs = now.Add(-30 * time.Minute).UnixMilli()
	require.NoError(t, s.Save(ctx, done))

	justDone := newSession("tenant-a")
	justDone.Status = protocol.StatusCompleted
	justDone.UpdatedAtMs = now.Add(-5 * time.Minute).UnixMilli()
	require.NoError(t, s.Save(ctx, justDone))

	fresh := newSession("tenant-a")
	fresh.UpdatedAtMs = now.UnixMilli()
	require.NoError(t, s.Save(ctx, fresh))

	removed, err := s.Sweep(ctx, now.Add(-time.Hour), now.Add(-15*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 2, removed, "the sweep crosses tenant boundaries")

	_, err = s.Load(ctx, idle.TenantID, idle.SessionID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Load(ctx, done.TenantID, done.SessionID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Load(ctx, justDone.TenantID, justDone.SessionID)
	assert.NoError(t, err, "terminal sessions inside the retention window stay")
	_, err = s.Load(ctx, fresh.TenantID, fresh.SessionID)
	assert.NoError(t, err)

	removed, err = s.Sweep(ctx, now.Add(-time.Hour), now.Add(-15*time.Minute))
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestClosedStoreRefusesOperations(t *testing.T) {
	cfg := InMemoryConfig()
	cfg.Logger = logging.New(logging.Config{Quiet: true})
	s, err := Open(cfg)
	require.NoError(t, err)

	c := newSession("tenant-a")
	require.NoError(t, s.Save(context.Background(), c))

	require.NoError(t, s.Close())
	require.NoError(t, s.Close(), "closing twice is a no-op")

	ctx := context.Background()
	_, err = s.Load(ctx, c.TenantID, c.SessionID)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, s.Save(ctx, c), ErrClosed)
	assert.ErrorIs(t, s.Delete(ctx, c.TenantID, c.SessionID), ErrClosed)
	_, err = s.List(ctx, c.TenantID)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestPersistentStoreSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	open := func() *Store {
		cfg := DefaultConfig()
		cfg.Path = dir
		cfg.SyncWrites = false
		cfg.GCInterval = 0
		cfg.Logger = logging.New(logging.Config{Quiet: true})
		s, err := Open(cfg)
		require.NoError(t, err)
		return s
	}

	s := open()
	c := newSession("tenant-a")
	require.NoError(t, s.Save(context.Background(), c))
	require.NoError(t, s.Close())

	s = open()
	defer s.Close()
	loaded, err := s.Load(context.Background(), c.TenantID, c.SessionID)
	require.NoError(t, err)
	assert.Equal(t, c.SessionID, loaded.SessionID)
	assert.Equal(t, "I feel anxious about meetings", loaded.ProblemStatement)
}

// The store behind the real engine: a few turns of a session walk through
// Load and Save on every advance.
func TestServesProtocolEngine(t *testing.T) {
	s := newTestStore(t)

	cat, err := protocol.DefaultCatalog()
	require.NoError(t, err)
	eng, err := protocol.NewEngine(protocol.EngineConfig{
		Source: protocol.NewStaticSource(cat),
		Store:  s,
		Logger: logging.New(logging.Config{Quiet: true}),
	})
	require.NoError(t, err)

	ctx := context.Background()
	turn, err := eng.Start(ctx, "tenant-a")
	require.NoError(t, err)

	_, err = eng.Advance(ctx, "tenant-a", turn.SessionID, "1")
	require.NoError(t, err)
	_, err = eng.Advance(ctx, "tenant-a", turn.SessionID, "I feel anxious about meetings")
	require.NoError(t, err)

	c, err := s.Load(ctx, "tenant-a", turn.SessionID)
	require.NoError(t, err)
	assert.Equal(t, protocol.WorkTypeProblem, c.WorkType)
	assert.Equal(t, "I feel anxious about meetings", c.ProblemStatement)
	assert.Equal(t, uint64(3), c.Version, "one save at start, one per advance")
}
