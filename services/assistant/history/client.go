// Copyright (C) 2026 Desa Digital Nusantara (dev@desadigital.id)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package history reads recent conversation turns for a user.
//
// History lives in an external service; this side only reads it as
// classification and generation context.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/desadigital/wargabot/services/assistant/datatypes"
)

// Service is the read surface the orchestrator needs.
type Service interface {
	RecentTurns(ctx context.Context, tenantID, userID string, limit int) ([]datatypes.Message, error)
}

// Client fetches history over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a history client for the given service base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// RecentTurns returns up to limit most recent turns, oldest first.
//
// # Outputs
//
//   - []datatypes.Message: May be empty for a new user.
//   - error: Non-nil on transport or upstream failure.
func (c *Client) RecentTurns(ctx context.Context, tenantID, userID string, limit int) ([]datatypes.Message, error) {
	url := fmt.Sprintf("%s/v1/tenants/%s/users/%s/turns?limit=%d",
		c.baseURL, tenantID, userID, limit)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build history request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("history service unreachable: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read history response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("history service returned %d: %s", resp.StatusCode, string(body))
	}

	var turns []datatypes.Message
	if err := json.Unmarshal(body, &turns); err != nil {
		return nil, fmt.Errorf("failed to parse history response: %w", err)
	}
	return turns, nil
}
