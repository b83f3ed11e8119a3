// Copyright (C) 2026 Desa Digital Nusantara (dev@desadigital.id)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package routing selects which (credential, model) pair serves each
// generative call. It owns the credential pool state: rotation, cooldowns,
// failure counters, and usage accounting.
//
// Pooled (bring-your-own) credentials are always tried before the system
// fallback; a pair inside its cooldown window never appears in a plan.
package routing

import (
	"errors"
	"time"
)

// =============================================================================
// Credential Types
// =============================================================================

// Tier ranks credentials for plan ordering. Higher sorts earlier; the system
// tier is always appended last regardless of its numeric rank.
type Tier string

const (
	TierFree   Tier = "free"
	TierPaid   Tier = "paid"
	TierSystem Tier = "system"
)

// rank returns the ordering weight inside the pooled portion of a plan.
func (t Tier) rank() int {
	switch t {
	case TierPaid:
		return 2
	case TierFree:
		return 1
	default:
		return 0
	}
}

// ModelUsage accumulates per-(credential,model) accounting for quota and
// billing visibility.
type ModelUsage struct {
	Calls            int64 `json:"calls"`
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
}

// CredentialRecord is the live state of one usable credential.
//
// Records are created at pool load time and mutated on every call outcome.
// They are never deleted during the process lifetime; a record that crosses
// the disable threshold is flagged Disabled instead.
//
// All mutable fields are guarded by the owning Pool's mutex.
type CredentialRecord struct {
	Id      string `json:"id"`
	Name    string `json:"name"`
	Tier    Tier   `json:"tier"`
	APIKey  string `json:"-"`
	BaseURL string `json:"base_url,omitempty"`

	Usage               map[string]*ModelUsage `json:"usage"`
	ConsecutiveFailures int                    `json:"consecutive_failures"`
	CooldownUntil       map[string]time.Time   `json:"cooldown_until"`
	Disabled            bool                   `json:"disabled"`
}

// inCooldown reports whether the (credential, model) pair is excluded at now.
func (c *CredentialRecord) inCooldown(model string, now time.Time) bool {
	until, ok := c.CooldownUntil[model]
	return ok && now.Before(until)
}

// =============================================================================
// Call Plans
// =============================================================================

// PlanEntry is one (credential, model) candidate.
type PlanEntry struct {
	Credential *CredentialRecord
	Model      string
}

// CallPlan is an ordered sequence of candidates for one logical request,
// built fresh from live pool state and discarded when the call completes or
// the list is exhausted.
type CallPlan struct {
	Entries []PlanEntry
}

// Empty reports whether the plan has no candidates at all.
func (p *CallPlan) Empty() bool {
	return p == nil || len(p.Entries) == 0
}

// =============================================================================
// Errors
// =============================================================================

// ErrPlanExhausted is returned when every plan entry failed. It is a
// definitive failure: the orchestrator falls back to a static reply instead
// of surfacing provider errors.
var ErrPlanExhausted = errors.New("call plan exhausted with no successful attempt")

// ErrNoCredentials is returned when the pool has no usable credential for the
// requested models (all disabled or cooling down).
var ErrNoCredentials = errors.New("no usable credential for requested models")
