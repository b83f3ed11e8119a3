// Copyright (C) 2026 Desa Digital Nusantara (dev@desadigital.id)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routing

import (
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// Pool Configuration
// =============================================================================

// PoolConfig tunes cooldown and failure handling. Zero values are replaced by
// DefaultPoolConfig.
type PoolConfig struct {
	// RateLimitCooldown is applied to exactly the rate-limited
	// (credential, model) pair; other models on the same credential are not
	// penalized.
	RateLimitCooldown time.Duration

	// FailureThreshold is the consecutive-failure count at which cooldowns
	// start extending exponentially.
	FailureThreshold int

	// FailureCooldownBase seeds the exponential cooldown extension.
	FailureCooldownBase time.Duration

	// FailureCooldownMax caps the exponential extension.
	FailureCooldownMax time.Duration

	// DisableThreshold is the consecutive-failure count at which the whole
	// credential is flagged Disabled.
	DisableThreshold int
}

// DefaultPoolConfig returns production defaults.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		RateLimitCooldown:   75 * time.Second,
		FailureThreshold:    3,
		FailureCooldownBase: 30 * time.Second,
		FailureCooldownMax:  30 * time.Minute,
		DisableThreshold:    10,
	}
}

func (c PoolConfig) withDefaults() PoolConfig {
	d := DefaultPoolConfig()
	if c.RateLimitCooldown <= 0 {
		c.RateLimitCooldown = d.RateLimitCooldown
	}
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = d.FailureThreshold
	}
	if c.FailureCooldownBase <= 0 {
		c.FailureCooldownBase = d.FailureCooldownBase
	}
	if c.FailureCooldownMax <= 0 {
		c.FailureCooldownMax = d.FailureCooldownMax
	}
	if c.DisableThreshold <= 0 {
		c.DisableThreshold = d.DisableThreshold
	}
	return c
}

// poolFile is the YAML shape of the credential pool file.
type poolFile struct {
	Credentials []struct {
		Id        string `yaml:"id"`
		Name      string `yaml:"name"`
		Tier      string `yaml:"tier"`
		APIKey    string `yaml:"api_key"`
		APIKeyEnv string `yaml:"api_key_env"`
		BaseURL   string `yaml:"base_url"`
	} `yaml:"credentials"`
}

// =============================================================================
// Pool
// =============================================================================

// Pool owns the process-wide credential state. It is one of only two pieces
// of shared mutable state in the core (the other being the per-user maps),
// and every mutation happens under its mutex.
//
// # Thread Safety
//
// All methods are safe for concurrent use.
type Pool struct {
	mu     sync.Mutex
	creds  []*CredentialRecord
	config PoolConfig
	now    func() time.Time

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewPool creates an empty pool with the given configuration.
func NewPool(config PoolConfig) *Pool {
	return &Pool{
		config: config.withDefaults(),
		now:    time.Now,
	}
}

// LoadFile reads the YAML pool file and replaces the credential set.
//
// # Description
//
// Live state (usage counters, cooldowns, failure counts) is preserved for
// credentials whose id survives the reload, so a config touch does not reset
// accounting. Keys may be given inline or via api_key_env indirection.
//
// # Inputs
//
//   - path: YAML file path. Must list at least one credential.
//
// # Outputs
//
//   - error: non-nil on read, parse, or validation failure. On error the
//     previous credential set stays in effect.
func (p *Pool) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading credential pool file: %w", err)
	}
	return p.loadBytes(data)
}

func (p *Pool) loadBytes(data []byte) error {
	var file poolFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parsing credential pool file: %w", err)
	}
	if len(file.Credentials) == 0 {
		return fmt.Errorf("credential pool file lists no credentials")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	prev := make(map[string]*CredentialRecord, len(p.creds))
	for _, c := range p.creds {
		prev[c.Id] = c
	}

	next := make([]*CredentialRecord, 0, len(file.Credentials))
	for _, raw := range file.Credentials {
		if raw.Id == "" {
			return fmt.Errorf("credential entry missing id")
		}
		key := raw.APIKey
		if key == "" && raw.APIKeyEnv != "" {
			key = strings.TrimSpace(os.Getenv(raw.APIKeyEnv))
		}
		if key == "" {
			return fmt.Errorf("credential %q has no api_key and %q is unset", raw.Id, raw.APIKeyEnv)
		}

		tier := Tier(strings.ToLower(raw.Tier))
		switch tier {
		case TierFree, TierPaid, TierSystem:
		default:
			return fmt.Errorf("credential %q has unknown tier %q", raw.Id, raw.Tier)
		}

		rec := &CredentialRecord{
			Id:            raw.Id,
			Name:          raw.Name,
			Tier:          tier,
			APIKey:        key,
			BaseURL:       raw.BaseURL,
			Usage:         map[string]*ModelUsage{},
			CooldownUntil: map[string]time.Time{},
		}
		if old, ok := prev[raw.Id]; ok {
			rec.Usage = old.Usage
			rec.CooldownUntil = old.CooldownUntil
			rec.ConsecutiveFailures = old.ConsecutiveFailures
			// A changed key is the operator correcting the credential, so the
			// disabled flag does not survive it.
			if old.APIKey == key {
				rec.Disabled = old.Disabled
			}
		}
		next = append(next, rec)
	}

	p.creds = next
	slog.Info("Credential pool loaded", "credentials", len(next))
	return nil
}

// Watch hot-reloads the pool file whenever it changes on disk. Call Close to
// stop watching. Reload failures keep the previous pool and log a warning.
func (p *Pool) Watch(path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating pool watcher: %w", err)
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return fmt.Errorf("watching credential pool file: %w", err)
	}

	p.watcher = watcher
	p.done = make(chan struct{})

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if err := p.LoadFile(path); err != nil {
					slog.Warn("Credential pool reload failed, keeping previous pool",
						"path", path, "error", err)
				} else {
					slog.Info("Credential pool reloaded", "path", path)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Warn("Credential pool watcher error", "error", err)
			case <-p.done:
				return
			}
		}
	}()
	return nil
}

// Close stops the file watcher if one is running.
func (p *Pool) Close() {
	if p.done != nil {
		close(p.done)
		p.done = nil
	}
	if p.watcher != nil {
		p.watcher.Close()
		p.watcher = nil
	}
}

// =============================================================================
// Plan Generation
// =============================================================================

// BuildPlan produces a fresh CallPlan for the preferred models.
//
// # Description
//
// One plan entry per usable (credential, model) pair, ordered:
//
//  1. Pooled credentials first, higher tier first, ties broken by fewer
//     consecutive failures; within one credential the preferred model order
//     is kept.
//  2. System credentials appended last as the fallback.
//
// Pairs inside their cooldown window and disabled credentials are excluded.
//
// # Inputs
//
//   - models: preferred model names, best first. Must not be empty.
//
// # Outputs
//
//   - *CallPlan: may be empty when everything is cooling down or disabled.
func (p *Pool) BuildPlan(models []string) *CallPlan {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()

	pooled := make([]*CredentialRecord, 0, len(p.creds))
	system := make([]*CredentialRecord, 0, 1)
	for _, c := range p.creds {
		if c.Disabled {
			continue
		}
		if c.Tier == TierSystem {
			system = append(system, c)
		} else {
			pooled = append(pooled, c)
		}
	}

	sort.SliceStable(pooled, func(i, j int) bool {
		if pooled[i].Tier.rank() != pooled[j].Tier.rank() {
			return pooled[i].Tier.rank() > pooled[j].Tier.rank()
		}
		return pooled[i].ConsecutiveFailures < pooled[j].ConsecutiveFailures
	})

	plan := &CallPlan{}
	appendEntries := func(creds []*CredentialRecord) {
		for _, c := range creds {
			for _, model := range models {
				if c.inCooldown(model, now) {
					continue
				}
				plan.Entries = append(plan.Entries, PlanEntry{Credential: c, Model: model})
			}
		}
	}
	appendEntries(pooled)
	appendEntries(system)
	return plan
}

// =============================================================================
// Outcome Recording
// =============================================================================

// RecordSuccess resets the failure counter and clears any cooldown for the
// pair that just succeeded.
func (p *Pool) RecordSuccess(credentialId, model string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c := p.findLocked(credentialId)
	if c == nil {
		return
	}
	c.ConsecutiveFailures = 0
	delete(c.CooldownUntil, model)
}

// RecordFailure increments the failure counter. Once the counter crosses the
// failure threshold the pair's cooldown extends exponentially; crossing the
// disable threshold flags the whole credential.
func (p *Pool) RecordFailure(credentialId, model string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c := p.findLocked(credentialId)
	if c == nil {
		return
	}
	c.ConsecutiveFailures++

	if over := c.ConsecutiveFailures - p.config.FailureThreshold; over >= 0 {
		cooldown := p.config.FailureCooldownBase
		for i := 0; i < over && cooldown < p.config.FailureCooldownMax; i++ {
			cooldown *= 2
		}
		if cooldown > p.config.FailureCooldownMax {
			cooldown = p.config.FailureCooldownMax
		}
		c.CooldownUntil[model] = p.now().Add(cooldown)
	}

	if c.ConsecutiveFailures >= p.config.DisableThreshold {
		if !c.Disabled {
			slog.Warn("Disabling credential after repeated failures",
				"credential", c.Id, "failures", c.ConsecutiveFailures)
		}
		c.Disabled = true
	}
}

// MarkInvalid disables a credential the provider rejected as unauthorized.
// No plan includes it again until the pool file is corrected and reloaded
// with a different key.
func (p *Pool) MarkInvalid(credentialId string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c := p.findLocked(credentialId)
	if c == nil {
		return
	}
	if !c.Disabled {
		slog.Warn("Disabling credential rejected by provider", "credential", c.Id)
	}
	c.Disabled = true
}

// RecordRateLimit sets an immediate cooldown for exactly the rate-limited
// (credential, model) pair without penalizing other models on the same
// credential and without touching the failure counter.
func (p *Pool) RecordRateLimit(credentialId, model string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c := p.findLocked(credentialId)
	if c == nil {
		return
	}
	c.CooldownUntil[model] = p.now().Add(p.config.RateLimitCooldown)
}

// RecordUsage accumulates token counts for quota/billing visibility.
func (p *Pool) RecordUsage(credentialId, model string, promptTokens, completionTokens int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c := p.findLocked(credentialId)
	if c == nil {
		return
	}
	u, ok := c.Usage[model]
	if !ok {
		u = &ModelUsage{}
		c.Usage[model] = u
	}
	u.Calls++
	u.PromptTokens += int64(promptTokens)
	u.CompletionTokens += int64(completionTokens)
}

func (p *Pool) findLocked(id string) *CredentialRecord {
	for _, c := range p.creds {
		if c.Id == id {
			return c
		}
	}
	return nil
}

// =============================================================================
// Introspection
// =============================================================================

// CredentialSnapshot is a copy-safe view of one credential for the ops
// endpoint. API keys are never included.
type CredentialSnapshot struct {
	Id                  string                `json:"id"`
	Name                string                `json:"name"`
	Tier                Tier                  `json:"tier"`
	Disabled            bool                  `json:"disabled"`
	ConsecutiveFailures int                   `json:"consecutive_failures"`
	CooldownUntil       map[string]time.Time  `json:"cooldown_until,omitempty"`
	Usage               map[string]ModelUsage `json:"usage,omitempty"`
}

// Snapshot returns a deep copy of the pool state.
func (p *Pool) Snapshot() []CredentialSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]CredentialSnapshot, 0, len(p.creds))
	for _, c := range p.creds {
		snap := CredentialSnapshot{
			Id:                  c.Id,
			Name:                c.Name,
			Tier:                c.Tier,
			Disabled:            c.Disabled,
			ConsecutiveFailures: c.ConsecutiveFailures,
			CooldownUntil:       map[string]time.Time{},
			Usage:               map[string]ModelUsage{},
		}
		now := p.now()
		for model, until := range c.CooldownUntil {
			if now.Before(until) {
				snap.CooldownUntil[model] = until
			}
		}
		for model, u := range c.Usage {
			snap.Usage[model] = *u
		}
		out = append(out, snap)
	}
	return out
}
