// Copyright (C) 2026 Desa Digital Nusantara (dev@desadigital.id)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package reference reads tenant reference data: contact directory, service
// catalog, complaint taxonomy, and the tenant profile.
//
// The data changes rarely and is read on every message, so every fetch goes
// through a short-TTL in-process cache. The upstream service is read-only
// from this side.
package reference

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/desadigital/wargabot/services/assistant/datatypes"
)

// =============================================================================
// Client Interface
// =============================================================================

// Service is the read surface the orchestrator needs.
type Service interface {
	Contacts(ctx context.Context, tenantID string) ([]datatypes.ContactRecord, error)
	Services(ctx context.Context, tenantID string) ([]datatypes.ServiceRecord, error)
	ComplaintCategories(ctx context.Context, tenantID string) ([]datatypes.ComplaintCategory, error)
	Profile(ctx context.Context, tenantID string) (*datatypes.TenantProfile, error)
}

// =============================================================================
// HTTP Client with TTL Cache
// =============================================================================

// defaultCacheTTL bounds staleness of reference data. Minutes, not hours:
// an operator fixing a wrong phone number should see it live quickly.
const defaultCacheTTL = 5 * time.Minute

// Client fetches reference data over HTTP and caches responses.
//
// # Description
//
// Each endpoint response is cached under a per-tenant key with a TTL.
// Ristretto handles admission and eviction; a cache miss after expiry
// refetches synchronously.
type Client struct {
	baseURL string
	http    *http.Client
	cache   *ristretto.Cache[string, any]
	ttl     time.Duration
}

// NewClient creates a reference-data client for the given service base URL.
//
// # Outputs
//
//   - *Client: Ready to use.
//   - error: Non-nil if the cache cannot be created.
func NewClient(baseURL string, ttl time.Duration) (*Client, error) {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	cache, err := ristretto.NewCache(&ristretto.Config[string, any]{
		NumCounters: 10_000,
		MaxCost:     1 << 24, // 16 MiB of cached reference data is plenty
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create reference cache: %w", err)
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
		cache:   cache,
		ttl:     ttl,
	}, nil
}

// Close releases the cache's background goroutines.
func (c *Client) Close() {
	c.cache.Close()
}

// Contacts returns the tenant's contact directory.
func (c *Client) Contacts(ctx context.Context, tenantID string) ([]datatypes.ContactRecord, error) {
	return fetchCached[[]datatypes.ContactRecord](ctx, c, tenantID, "contacts")
}

// Services returns the tenant's administrative service catalog.
func (c *Client) Services(ctx context.Context, tenantID string) ([]datatypes.ServiceRecord, error) {
	return fetchCached[[]datatypes.ServiceRecord](ctx, c, tenantID, "services")
}

// ComplaintCategories returns the tenant's complaint taxonomy.
func (c *Client) ComplaintCategories(ctx context.Context, tenantID string) ([]datatypes.ComplaintCategory, error) {
	return fetchCached[[]datatypes.ComplaintCategory](ctx, c, tenantID, "complaint-categories")
}

// Profile returns the tenant's office profile.
func (c *Client) Profile(ctx context.Context, tenantID string) (*datatypes.TenantProfile, error) {
	return fetchCached[*datatypes.TenantProfile](ctx, c, tenantID, "profile")
}

// fetchCached serves from cache or fetches and caches one endpoint.
func fetchCached[T any](ctx context.Context, c *Client, tenantID, endpoint string) (T, error) {
	var zero T
	key := tenantID + "/" + endpoint

	if cached, ok := c.cache.Get(key); ok {
		if typed, ok := cached.(T); ok {
			return typed, nil
		}
	}

	url := fmt.Sprintf("%s/v1/tenants/%s/%s", c.baseURL, tenantID, endpoint)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return zero, fmt.Errorf("failed to build reference request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return zero, fmt.Errorf("reference service unreachable: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return zero, fmt.Errorf("failed to read reference response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return zero, fmt.Errorf("reference service returned %d for %s: %s",
			resp.StatusCode, endpoint, string(body))
	}

	var parsed T
	if err := json.Unmarshal(body, &parsed); err != nil {
		return zero, fmt.Errorf("failed to parse %s response: %w", endpoint, err)
	}

	c.cache.SetWithTTL(key, parsed, int64(len(body)), c.ttl)
	return parsed, nil
}
