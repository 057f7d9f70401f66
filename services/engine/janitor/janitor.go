// Copyright (C) 2025 InnerShift AI (engineering@innershift.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package janitor removes abandoned and delivered sessions on a schedule.
//
// # Description
//
// A session that stops receiving turns is abandoned, not closed: nothing
// in the protocol ever deletes it. The janitor owns that cleanup. On a
// fixed interval it asks the session store to sweep two classes of
// records:
//
//   - idle sessions: no turn for longer than IdleTTL, whatever their state
//   - terminal sessions: completed or errored longer ago than CompletedTTL
//
// The store's own storage-level TTL is the backstop; the janitor is the
// policy layer with the shorter, state-aware windows.
//
// # Usage
//
//	j := janitor.New(store, logger, janitor.DefaultConfig())
//	if err := j.Start(ctx); err != nil {
//	    return err
//	}
//	defer j.Stop()
//
// # Limitations
//
//   - Run one janitor per store. Concurrent sweeps are safe but pointless.
//   - The janitor does not persist state between restarts; the first sweep
//     after start covers whatever accumulated while the process was down.
package janitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/InnerShiftAI/InnerShiftCore/pkg/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Metrics
// =============================================================================

var (
	sweepsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "innershift_janitor_sweeps_total",
		Help: "Sweep cycles by outcome",
	}, []string{"status"})

	removedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "innershift_janitor_sessions_removed_total",
		Help: "Sessions removed by the janitor",
	})
)

// =============================================================================
// Configuration
// =============================================================================

// Store is the slice of the session store the janitor needs.
type Store interface {
	Sweep(ctx context.Context, idleBefore, completedBefore time.Time) (int, error)
}

// Config controls sweep cadence and retention windows.
type Config struct {
	// Interval between sweep cycles. Default: 1 hour.
	Interval time.Duration

	// IdleTTL is how long a session may go without a turn before it is
	// considered abandoned. Default: 24 hours.
	IdleTTL time.Duration

	// CompletedTTL is how long terminal sessions are kept after their
	// last turn. Default: 1 hour.
	CompletedTTL time.Duration
}

// DefaultConfig returns the production retention windows.
func DefaultConfig() Config {
	return Config{
		Interval:     time.Hour,
		IdleTTL:      24 * time.Hour,
		CompletedTTL: time.Hour,
	}
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = time.Hour
	}
	if c.IdleTTL <= 0 {
		c.IdleTTL = 24 * time.Hour
	}
	if c.CompletedTTL <= 0 {
		c.CompletedTTL = time.Hour
	}
	return c
}

// =============================================================================
// Janitor
// =============================================================================

// Janitor runs the background sweep loop.
type Janitor struct {
	store Store
	log   *logging.Logger
	cfg   Config

	mu      sync.Mutex
	running bool
	done    chan struct{}
}

// New builds a Janitor. The logger may be nil.
func New(store Store, log *logging.Logger, cfg Config) *Janitor {
	if log == nil {
		log = logging.Default()
	}
	return &Janitor{
		store: store,
		log:   log,
		cfg:   cfg.withDefaults(),
		done:  make(chan struct{}),
	}
}

// Start launches the sweep loop. The first sweep runs immediately; after
// that the loop ticks at the configured interval until Stop is called or
// the context is cancelled. Returns an error if already running.
func (j *Janitor) Start(ctx context.Context) error {
	j.mu.Lock()
	if j.running {
		j.mu.Unlock()
		return fmt.Errorf("janitor is already running")
	}
	j.running = true
	j.done = make(chan struct{}) // reset for potential restart
	j.mu.Unlock()

	j.log.Info("session janitor starting",
		"interval", j.cfg.Interval.String(),
		"idle_ttl", j.cfg.IdleTTL.String(),
		"completed_ttl", j.cfg.CompletedTTL.String(),
	)

	go j.runLoop(ctx)
	return nil
}

// Stop signals the loop to exit. Safe to call multiple times; does not
// interrupt a sweep already in progress.
func (j *Janitor) Stop() {
	j.mu.Lock()
	defer j.mu.Unlock()

	if !j.running {
		return
	}
	j.log.Info("session janitor stopping")
	close(j.done)
	j.running = false
}

// RunNow performs one sweep immediately, outside the schedule. Useful for
// operational tooling and tests.
func (j *Janitor) RunNow(ctx context.Context) (int, error) {
	return j.sweep(ctx)
}

// =============================================================================
// Internal
// =============================================================================

func (j *Janitor) runLoop(ctx context.Context) {
	ticker := time.NewTicker(j.cfg.Interval)
	defer ticker.Stop()

	// Cover the downtime backlog before the first tick.
	j.executeSweep(ctx)

	for {
		select {
		case <-ctx.Done():
			j.log.Info("session janitor stopped", "reason", "context cancelled")
			return
		case <-j.done:
			j.log.Info("session janitor stopped", "reason", "stop requested")
			return
		case <-ticker.C:
			j.executeSweep(ctx)
		}
	}
}

// executeSweep wraps sweep so one failed cycle never kills the loop.
func (j *Janitor) executeSweep(ctx context.Context) {
	removed, err := j.sweep(ctx)
	if err != nil {
		j.log.Error("janitor sweep failed", "error", err)
		return
	}
	if removed > 0 {
		j.log.Info("janitor sweep completed", "sessions_removed", removed)
	}
}

func (j *Janitor) sweep(ctx context.Context) (int, error) {
	now := time.Now()
	removed, err := j.store.Sweep(ctx, now.Add(-j.cfg.IdleTTL), now.Add(-j.cfg.CompletedTTL))
	if err != nil {
		sweepsTotal.WithLabelValues("error").Inc()
		return removed, err
	}
	sweepsTotal.WithLabelValues("ok").Inc()
	removedTotal.Add(float64(removed))
	return removed, nil
}
