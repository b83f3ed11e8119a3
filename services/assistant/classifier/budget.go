// Copyright (C) 2026 Desa Digital Nusantara (dev@desadigital.id)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package classifier

import (
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// =============================================================================
// Per-User Call Budget
// =============================================================================

// ErrBudgetExceeded is returned when a user has spent their classification
// budget for the current window. The caller answers from rules or canned
// text instead of calling a model.
var ErrBudgetExceeded = errors.New("classification budget exceeded for user")

// BudgetConfig bounds classifier calls per user.
//
// # Fields
//
//   - CallsPerWindow: Model calls allowed per user per window. Default: 20.
//   - Window: Rolling budget window. Default: 10 minutes.
type BudgetConfig struct {
	CallsPerWindow int
	Window         time.Duration
}

// DefaultBudgetConfig returns production defaults for the call budget.
func DefaultBudgetConfig() BudgetConfig {
	return BudgetConfig{
		CallsPerWindow: 20,
		Window:         10 * time.Minute,
	}
}

// Budget tracks per-user classification spend with one token-bucket limiter
// per user. Tokens refill continuously over the window, which approximates
// a rolling reset and avoids the thundering allowance of a hard reset.
//
// A misbehaving multi-turn flow that loops on classification runs dry after
// CallsPerWindow calls instead of burning credentials indefinitely.
type Budget struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	config   BudgetConfig
}

// NewBudget creates a budget tracker. Zero config values get defaults.
func NewBudget(config BudgetConfig) *Budget {
	defaults := DefaultBudgetConfig()
	if config.CallsPerWindow <= 0 {
		config.CallsPerWindow = defaults.CallsPerWindow
	}
	if config.Window <= 0 {
		config.Window = defaults.Window
	}
	return &Budget{
		limiters: make(map[string]*rate.Limiter),
		config:   config,
	}
}

// Spend consumes one unit for the user.
//
// # Outputs
//
//   - error: ErrBudgetExceeded when the user's bucket is empty, nil otherwise.
func (b *Budget) Spend(userID string) error {
	b.mu.Lock()
	limiter, ok := b.limiters[userID]
	if !ok {
		refill := rate.Every(b.config.Window / time.Duration(b.config.CallsPerWindow))
		limiter = rate.NewLimiter(refill, b.config.CallsPerWindow)
		b.limiters[userID] = limiter
	}
	b.mu.Unlock()

	if !limiter.Allow() {
		return ErrBudgetExceeded
	}
	return nil
}

// Remaining reports the user's approximate remaining calls. Users never seen
// have the full budget.
func (b *Budget) Remaining(userID string) int {
	b.mu.Lock()
	limiter, ok := b.limiters[userID]
	b.mu.Unlock()

	if !ok {
		return b.config.CallsPerWindow
	}
	tokens := int(limiter.Tokens())
	if tokens < 0 {
		return 0
	}
	return tokens
}
