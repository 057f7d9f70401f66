// Copyright (C) 2025 InnerShift AI (engineering@innershift.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package sessionstore persists treatment session state in an embedded
// BadgerDB instance.
//
// Sessions are small JSON records keyed by tenant and session id, read and
// written once per conversational turn, so an embedded store with
// low-latency access (~100µs) fits better than a networked database.
// Concurrent turns against the same session are serialized with optimistic
// versioning: every save checks the stored version against the caller's
// copy and bumps it, so the slower of two racing turns fails with
// ErrConflict instead of silently clobbering the faster one.
//
// License: BadgerDB is Apache 2.0 licensed (github.com/dgraph-io/badger).
// This package follows Apache 2.0 guidelines for attribution and usage.
package sessionstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/InnerShiftAI/InnerShiftCore/pkg/logging"
	"github.com/InnerShiftAI/InnerShiftCore/services/protocol"
)

var tracer = otel.Tracer("innershift.sessionstore")

// =============================================================================
// Errors
// =============================================================================

var (
	// ErrNotFound indicates no session exists for the tenant/session pair.
	ErrNotFound = errors.New("sessionstore: session not found")

	// ErrConflict indicates a save raced another writer: the stored version
	// no longer matches the caller's copy. The caller must reload and
	// replay its turn against fresh state.
	ErrConflict = errors.New("sessionstore: session version conflict")

	// ErrClosed indicates the store has been closed.
	ErrClosed = errors.New("sessionstore: store is closed")
)

// =============================================================================
// Metrics
// =============================================================================

var (
	storeOpsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "innershift_sessionstore_operations_total",
		Help: "Session store operations by type and status",
	}, []string{"operation", "status"})

	storeConflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "innershift_sessionstore_conflicts_total",
		Help: "Optimistic concurrency conflicts on session save",
	})
)

func countOp(operation string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	storeOpsTotal.WithLabelValues(operation, status).Inc()
}

// =============================================================================
// Configuration
// =============================================================================

// Config holds configuration for the session store.
type Config struct {
	// Path is the directory for BadgerDB files.
	// Required unless InMemory is true.
	Path string

	// InMemory enables in-memory mode (no disk persistence).
	// Useful for testing.
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	// Default: true for production, false for testing.
	SyncWrites bool

	// SessionTTL is how long a session record lives after its last save.
	// Records expire at the storage layer once the TTL passes. Zero keeps
	// sessions forever; the sweep API still applies.
	SessionTTL time.Duration

	// GCInterval is how often to run value log garbage collection.
	// Default: 5 minutes. Set to 0 to disable.
	GCInterval time.Duration

	// GCDiscardRatio is the minimum ratio of discardable data before GC.
	// Default: 0.5.
	GCDiscardRatio float64

	// Logger for store operations. If nil, logging.Default() is used and
	// BadgerDB's internal logging is disabled.
	Logger *logging.Logger
}

// DefaultConfig returns production defaults: durable writes, 24-hour
// session retention, five-minute GC.
func DefaultConfig() Config {
	return Config{
		SyncWrites:     true,
		SessionTTL:     24 * time.Hour,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryConfig returns configuration optimized for testing: no disk I/O,
// no GC, no expiry.
func InMemoryConfig() Config {
	return Config{
		InMemory:   true,
		SyncWrites: false,
	}
}

func (c *Config) applyDefaults() {
	if c.Logger == nil {
		c.Logger = logging.Default()
	}
	if c.GCDiscardRatio == 0 {
		c.GCDiscardRatio = 0.5
	}
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// =============================================================================
// Store
// =============================================================================

// Store is a BadgerDB-backed session repository.
//
// Thread Safety: safe for concurrent use. Conflicting writers are resolved
// by optimistic versioning, not locks.
type Store struct {
	db     *badger.DB
	ttl    time.Duration
	log    *logging.Logger
	gc     *gcRunner
	closed atomic.Bool
}

// Store satisfies the engine's persistence port.
var _ protocol.SessionStore = (*Store)(nil)

// Open creates and opens a session store with the given configuration.
//
// # Description
//
//	Opens a BadgerDB database at the configured path, or in memory if
//	InMemory is true. Creates the directory if it doesn't exist and
//	starts the value log GC runner when an interval is configured.
//
// # Inputs
//
//	cfg - Store configuration. Path is required unless InMemory is true.
//
// # Outputs
//
//	*Store - The opened store. Caller must call Close() when done.
//	error - Non-nil if the path is invalid or the database cannot open.
func Open(cfg Config) (*Store, error) {
	cfg.applyDefaults()

	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("sessionstore: path is required for a persistent store")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create store directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites)
	opts = opts.WithNumVersionsToKeep(1)
	opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger.Slog()})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}

	s := &Store{
		db:  db,
		ttl: cfg.SessionTTL,
		log: cfg.Logger,
	}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		s.gc = newGCRunner(db, cfg.GCInterval, cfg.GCDiscardRatio, cfg.Logger)
		s.gc.start()
	}
	return s, nil
}

// Close stops garbage collection and closes the database. Safe to call
// multiple times.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	if s.gc != nil {
		s.gc.stop()
	}
	return s.db.Close()
}

func sessionKey(tenantID, sessionID string) []byte {
	return []byte(fmt.Sprintf("session:%s:%s", tenantID, sessionID))
}

func tenantPrefix(tenantID string) []byte {
	return []byte(fmt.Sprintf("session:%s:", tenantID))
}

// allSessionsPrefix covers every tenant, for maintenance scans.
var allSessionsPrefix = []byte("session:")

// Load reads one session's context.
//
// Returns ErrNotFound if no record exists for the tenant/session pair.
// Tenancy is part of the key, so a valid session id under the wrong tenant
// is indistinguishable from a missing one.
func (s *Store) Load(ctx context.Context, tenantID, sessionID string) (*protocol.Context, error) {
	ctx, span := tracer.Start(ctx, "sessionstore.Load")
	defer span.End()
	span.SetAttributes(
		attribute.String("tenant_id", tenantID),
		attribute.String("session_id", sessionID),
	)

	var c *protocol.Context
	err := s.view(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get(sessionKey(tenantID, sessionID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: %s/%s", ErrNotFound, tenantID, sessionID)
		}
		if err != nil {
			return fmt.Errorf("get session: %w", err)
		}
		return item.Value(func(val []byte) error {
			c = new(protocol.Context)
			if err := json.Unmarshal(val, c); err != nil {
				return fmt.Errorf("decode session %s/%s: %w", tenantID, sessionID, err)
			}
			return nil
		})
	})
	countOp("load", err)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			span.RecordError(err)
			span.SetStatus(codes.Error, "load failed")
		}
		return nil, err
	}
	return c, nil
}

// Save writes one session's context.
//
// # Description
//
//	Persists the context under its tenant/session key. The stored version
//	must match the caller's copy: a fresh context saves only while no
//	record exists, and an existing record saves only from its current
//	version. On success the version is bumped, both in the store and on
//	the caller's copy. The configured session TTL restarts on every save.
//
// # Inputs
//
//	ctx - Context for tracing and cancellation.
//	c - The session context. TenantID and SessionID must be set.
//
// # Outputs
//
//	error - ErrConflict when another writer got there first; ErrClosed
//	after Close. Other errors are storage failures.
func (s *Store) Save(ctx context.Context, c *protocol.Context) error {
	ctx, span := tracer.Start(ctx, "sessionstore.Save")
	defer span.End()

	err := s.save(ctx, c)
	countOp("save", err)
	if err != nil {
		if errors.Is(err, ErrConflict) {
			storeConflictsTotal.Inc()
		} else {
			span.RecordError(err)
			span.SetStatus(codes.Error, "save failed")
		}
		return err
	}
	return nil
}

func (s *Store) save(ctx context.Context, c *protocol.Context) error {
	if c == nil {
		return errors.New("sessionstore: nil context")
	}
	if c.TenantID == "" || c.SessionID == "" {
		return errors.New("sessionstore: context needs tenant and session ids")
	}

	// Marshal the successor version up front; c.Version is only advanced
	// after the commit succeeds so a conflicted caller can reload and
	// retry from unchanged state.
	next := *c
	next.Version = c.Version + 1
	data, err := json.Marshal(&next)
	if err != nil {
		return fmt.Errorf("encode session %s/%s: %w", c.TenantID, c.SessionID, err)
	}

	key := sessionKey(c.TenantID, c.SessionID)
	err = s.update(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
			if c.Version != 0 {
				return fmt.Errorf("%w: session %s/%s vanished under version %d",
					ErrConflict, c.TenantID, c.SessionID, c.Version)
			}
		case err != nil:
			return fmt.Errorf("get session: %w", err)
		default:
			var stored struct {
				Version uint64 `json:"version"`
			}
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &stored)
			}); err != nil {
				return fmt.Errorf("decode stored version: %w", err)
			}
			if stored.Version != c.Version {
				return fmt.Errorf("%w: session %s/%s is at version %d, caller has %d",
					ErrConflict, c.TenantID, c.SessionID, stored.Version, c.Version)
			}
		}

		entry := badger.NewEntry(key, data)
		if s.ttl > 0 {
			entry = entry.WithTTL(s.ttl)
		}
		return txn.SetEntry(entry)
	})
	if err != nil {
		// Badger detects overlapping commits itself; fold its conflict
		// into ours so callers handle one sentinel.
		if errors.Is(err, badger.ErrConflict) {
			return fmt.Errorf("%w: concurrent write on %s/%s", ErrConflict, c.TenantID, c.SessionID)
		}
		return err
	}

	c.Version = next.Version
	return nil
}

// Delete removes one session. Returns ErrNotFound if no record exists.
func (s *Store) Delete(ctx context.Context, tenantID, sessionID string) error {
	ctx, span := tracer.Start(ctx, "sessionstore.Delete")
	defer span.End()
	span.SetAttributes(
		attribute.String("tenant_id", tenantID),
		attribute.String("session_id", sessionID),
	)

	key := sessionKey(tenantID, sessionID)
	err := s.update(ctx, func(txn *badger.Txn) error {
		if _, err := txn.Get(key); errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: %s/%s", ErrNotFound, tenantID, sessionID)
		} else if err != nil {
			return fmt.Errorf("get session: %w", err)
		}
		return txn.Delete(key)
	})
	countOp("delete", err)
	return err
}

// List returns every session belonging to the tenant, most recently
// updated first. Records that fail to decode are skipped with a warning
// rather than failing the whole listing.
func (s *Store) List(ctx context.Context, tenantID string) ([]*protocol.Context, error) {
	ctx, span := tracer.Start(ctx, "sessionstore.List")
	defer span.End()
	span.SetAttributes(attribute.String("tenant_id", tenantID))

	prefix := tenantPrefix(tenantID)
	var sessions []*protocol.Context
	err := s.view(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			if err := item.Value(func(val []byte) error {
				c := new(protocol.Context)
				if err := json.Unmarshal(val, c); err != nil {
					return err
				}
				sessions = append(sessions, c)
				return nil
			}); err != nil {
				s.log.Warn("skipping undecodable session record",
					"key", string(item.Key()), "error", err)
			}
		}
		return nil
	})
	countOp("list", err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list failed")
		return nil, err
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].UpdatedAtMs > sessions[j].UpdatedAtMs
	})
	span.SetAttributes(attribute.Int("session_count", len(sessions)))
	return sessions, nil
}

// Sweep deletes stale sessions across all tenants. A session is stale when
// it has not been updated since idleBefore, or when it is already terminal
// (completed or errored) and has not been updated since completedBefore.
// Terminal sessions usually get the shorter window: the transcript has been
// delivered and the record is only waiting for deletion.
//
// Sweep backs the retention janitor; the storage-layer TTL already expires
// records on its own, so the sweep mainly serves stores configured without
// one. Returns the number of sessions removed.
func (s *Store) Sweep(ctx context.Context, idleBefore, completedBefore time.Time) (int, error) {
	ctx, span := tracer.Start(ctx, "sessionstore.Sweep")
	defer span.End()

	idleMs := idleBefore.UnixMilli()
	completedMs := completedBefore.UnixMilli()
	var stale [][]byte
	err := s.view(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = allSessionsPrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(allSessionsPrefix); it.ValidForPrefix(allSessionsPrefix); it.Next() {
			item := it.Item()
			var probe struct {
				Status      protocol.Status `json:"status"`
				UpdatedAtMs int64           `json:"updatedAtMs"`
			}
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &probe)
			}); err != nil {
				continue // undecodable records are the GC's problem, not the sweep's
			}
			terminal := probe.Status == protocol.StatusCompleted || probe.Status == protocol.StatusErrored
			if probe.UpdatedAtMs < idleMs || (terminal && probe.UpdatedAtMs < completedMs) {
				stale = append(stale, item.KeyCopy(nil))
			}
		}
		return nil
	})
	if err != nil {
		countOp("sweep", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "sweep scan failed")
		return 0, err
	}

	// Delete in bounded batches so one huge backlog cannot blow the
	// transaction size limit.
	const batchSize = 128
	removed := 0
	for len(stale) > 0 {
		batch := stale
		if len(batch) > batchSize {
			batch = batch[:batchSize]
		}
		stale = stale[len(batch):]

		if err := s.update(ctx, func(txn *badger.Txn) error {
			for _, key := range batch {
				if err := txn.Delete(key); err != nil {
					return fmt.Errorf("delete %s: %w", key, err)
				}
			}
			return nil
		}); err != nil {
			countOp("sweep", err)
			span.RecordError(err)
			span.SetStatus(codes.Error, "sweep delete failed")
			return removed, err
		}
		removed += len(batch)
	}

	countOp("sweep", nil)
	span.SetAttributes(attribute.Int("sessions_removed", removed))
	if removed > 0 {
		s.log.Info("swept stale sessions", "removed", removed,
			"idle_before_ms", idleMs, "completed_before_ms", completedMs)
	}
	return removed, nil
}

// view runs fn in a read-only transaction, honoring context cancellation
// and the closed flag.
func (s *Store) view(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}
	return s.db.View(fn)
}

// update runs fn in a read-write transaction, honoring context
// cancellation and the closed flag.
func (s *Store) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}
	return s.db.Update(fn)
}

// =============================================================================
// Value log GC
// =============================================================================

// gcRunner runs periodic value log garbage collection.
type gcRunner struct {
	db       *badger.DB
	interval time.Duration
	ratio    float64
	log      *logging.Logger
	stopCh   chan struct{}
	doneCh   chan struct{}
}

func newGCRunner(db *badger.DB, interval time.Duration, ratio float64, log *logging.Logger) *gcRunner {
	return &gcRunner{
		db:       db,
		interval: interval,
		ratio:    ratio,
		log:      log,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

func (r *gcRunner) start() {
	go r.run()
}

func (r *gcRunner) stop() {
	close(r.stopCh)
	<-r.doneCh
}

func (r *gcRunner) run() {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			// RunValueLogGC returns ErrNoRewrite when nothing needed
			// collecting; that is the common case, not a failure.
			err := r.db.RunValueLogGC(r.ratio)
			switch {
			case err == nil:
				r.log.Debug("badger value log GC completed")
			case !errors.Is(err, badger.ErrNoRewrite):
				r.log.Warn("badger value log GC error", "error", err)
			}
		}
	}
}
