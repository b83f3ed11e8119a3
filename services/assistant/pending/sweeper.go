// Copyright (C) 2026 Desa Digital Nusantara (dev@desadigital.id)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pending

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Sweeper Metrics
// =============================================================================

var (
	sweptTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "wargabot",
		Subsystem: "pending",
		Name:      "swept_total",
		Help:      "Pending requests removed by the TTL sweeper.",
	})

	sweepCyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wargabot",
		Subsystem: "pending",
		Name:      "sweep_cycles_total",
		Help:      "Sweep cycles run, by outcome.",
	}, []string{"outcome"})
)

// =============================================================================
// Sweeper
// =============================================================================

// SweeperConfig holds configuration for the pending-state sweeper.
//
// # Fields
//
//   - Interval: How often to run sweep cycles. Default: 1 minute.
//   - MaxAge: Age past which a pending request is abandoned. Default: 10 minutes.
type SweeperConfig struct {
	Interval time.Duration
	MaxAge   time.Duration
}

// DefaultSweeperConfig returns production defaults for the sweeper.
func DefaultSweeperConfig() SweeperConfig {
	return SweeperConfig{
		Interval: 1 * time.Minute,
		MaxAge:   10 * time.Minute,
	}
}

// Sweeper periodically removes expired pending requests from a Store.
//
// # Description
//
// Runs a background goroutine on the ticker + done channel pattern. The
// sweeper owns no state beyond its lifecycle flags; all expiry logic lives
// in Store.Sweep so it applies identically to any store implementation.
//
// # Thread Safety
//
// All public methods are thread-safe.
type Sweeper struct {
	store  Store
	config SweeperConfig

	done    chan struct{}
	mu      sync.Mutex
	running bool
}

// NewSweeper creates a sweeper over the given store.
//
// # Inputs
//
//   - store: Pending store to sweep.
//   - config: Interval and max-age settings. Zero values are replaced
//     with defaults.
//
// # Outputs
//
//   - *Sweeper: Ready to Start().
func NewSweeper(store Store, config SweeperConfig) *Sweeper {
	defaults := DefaultSweeperConfig()
	if config.Interval <= 0 {
		config.Interval = defaults.Interval
	}
	if config.MaxAge <= 0 {
		config.MaxAge = defaults.MaxAge
	}
	return &Sweeper{
		store:  store,
		config: config,
		done:   make(chan struct{}),
	}
}

// Start begins the background sweep loop.
//
// # Description
//
// Starts a goroutine that sweeps at the configured interval until Stop()
// is called or the context is cancelled.
//
// # Outputs
//
//   - error: Non-nil if the sweeper is already running.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("sweeper is already running")
	}
	s.running = true
	s.done = make(chan struct{}) // Reset for potential restart
	s.mu.Unlock()

	slog.Info("pending sweeper starting",
		"interval", s.config.Interval.String(),
		"max_age", s.config.MaxAge.String(),
	)

	go s.runLoop(ctx)
	return nil
}

// Stop signals the sweep loop to exit. Safe to call multiple times.
func (s *Sweeper) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	slog.Info("pending sweeper stopping")
	close(s.done)
	s.running = false
	return nil
}

// RunNow performs one sweep cycle immediately.
//
// # Outputs
//
//   - int: Number of pending requests removed.
//   - error: Non-nil if the store sweep fails.
func (s *Sweeper) RunNow(ctx context.Context) (int, error) {
	return s.store.Sweep(ctx, s.config.MaxAge)
}

func (s *Sweeper) runLoop(ctx context.Context) {
	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("pending sweeper stopped (context cancelled)")
			return
		case <-s.done:
			slog.Info("pending sweeper stopped (stop requested)")
			return
		case <-ticker.C:
			s.executeSweep(ctx)
		}
	}
}

func (s *Sweeper) executeSweep(ctx context.Context) {
	removed, err := s.store.Sweep(ctx, s.config.MaxAge)
	if err != nil {
		slog.Error("pending sweep cycle failed", "error", err)
		sweepCyclesTotal.WithLabelValues("error").Inc()
		return
	}

	sweepCyclesTotal.WithLabelValues("ok").Inc()
	if removed > 0 {
		sweptTotal.Add(float64(removed))
		slog.Info("pending sweep cycle completed", "removed", removed)
	} else {
		slog.Debug("pending sweep cycle completed (nothing expired)")
	}
}
