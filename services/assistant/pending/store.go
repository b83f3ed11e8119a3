// Copyright (C) 2026 Desa Digital Nusantara (dev@desadigital.id)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package pending tracks per-user multi-turn conversation state.
//
// A pending request is an unfinished flow: the assistant asked the user a
// question (confirm an address, supply a phone number) and is waiting for
// the next message to resolve it. Each user holds at most one pending
// request at a time; setting a new one replaces the old one. Entries that
// outlive the configured TTL are removed by a background sweeper.
package pending

import (
	"context"
	"sync"
	"time"

	"github.com/desadigital/wargabot/services/assistant/datatypes"
)

// =============================================================================
// Store Interface
// =============================================================================

// Store is the pending-request state store.
//
// # Description
//
// Abstracts where pending conversation state lives so the orchestrator can
// be tested against an in-memory store and production can later move to an
// external one without touching call sites.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type Store interface {
	// Get returns the pending request for a user, or nil if none exists.
	Get(ctx context.Context, tenantID, userID string) (*datatypes.PendingRequest, error)

	// Set stores a pending request, replacing any existing one for the
	// same user.
	Set(ctx context.Context, req *datatypes.PendingRequest) error

	// Consume atomically fetches and removes the pending request for a
	// user. Returns nil if none exists.
	Consume(ctx context.Context, tenantID, userID string) (*datatypes.PendingRequest, error)

	// Delete removes the pending request for a user. Deleting a missing
	// entry is not an error.
	Delete(ctx context.Context, tenantID, userID string) error

	// Sweep removes every pending request older than maxAge and returns
	// how many were removed.
	Sweep(ctx context.Context, maxAge time.Duration) (int, error)
}

// =============================================================================
// In-Memory Store
// =============================================================================

// memoryStore is the default Store backed by a map.
//
// # Fields
//
//   - mu: Guards the entries map.
//   - entries: Pending requests keyed by tenant and user.
//   - now: Clock function, replaceable in tests.
type memoryStore struct {
	mu      sync.Mutex
	entries map[storeKey]*datatypes.PendingRequest
	now     func() time.Time
}

type storeKey struct {
	tenantID string
	userID   string
}

// NewMemoryStore creates an empty in-memory pending store.
func NewMemoryStore() Store {
	return &memoryStore{
		entries: make(map[storeKey]*datatypes.PendingRequest),
		now:     time.Now,
	}
}

func (s *memoryStore) Get(_ context.Context, tenantID, userID string) (*datatypes.PendingRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries[storeKey{tenantID, userID}], nil
}

func (s *memoryStore) Set(_ context.Context, req *datatypes.PendingRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if req.CreatedAt.IsZero() {
		req.CreatedAt = s.now()
	}
	s.entries[storeKey{req.TenantId, req.UserId}] = req
	return nil
}

func (s *memoryStore) Consume(_ context.Context, tenantID, userID string) (*datatypes.PendingRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := storeKey{tenantID, userID}
	req := s.entries[key]
	if req != nil {
		delete(s.entries, key)
	}
	return req, nil
}

func (s *memoryStore) Delete(_ context.Context, tenantID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, storeKey{tenantID, userID})
	return nil
}

func (s *memoryStore) Sweep(_ context.Context, maxAge time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-maxAge)
	removed := 0
	for key, req := range s.entries {
		if req.CreatedAt.Before(cutoff) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed, nil
}
