// Copyright (C) 2026 Desa Digital Nusantara (dev@desadigital.id)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routing

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/desadigital/wargabot/services/assistant/llm"
)

var tracer = otel.Tracer("wargabot.assistant.routing")

// =============================================================================
// Executor
// =============================================================================

// ExecutorConfig tunes plan execution.
type ExecutorConfig struct {
	// AttemptsPerEntry caps retries of one (credential, model) pair for
	// errors classified as transient. Rate limits and invalid credentials
	// never consume extra attempts.
	AttemptsPerEntry int

	// CallTimeout bounds each individual provider call. A timed-out attempt
	// is treated identically to a provider error; the in-flight request is
	// abandoned and any late response discarded.
	CallTimeout time.Duration
}

// DefaultExecutorConfig returns production defaults.
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		AttemptsPerEntry: 2,
		CallTimeout:      45 * time.Second,
	}
}

// Executor walks a CallPlan until one entry succeeds.
//
// # Description
//
// For every attempt the outcome is recorded on the pool:
//
//   - success: failure counter reset, cooldown cleared, usage accumulated.
//   - rate limit: immediate cooldown on exactly that pair, move to the next
//     plan entry.
//   - invalid credential: the credential is disabled in the pool, so every
//     remaining entry for it is skipped in this plan and it stays out of
//     future plans until the pool file is corrected.
//   - model not found: failure recorded, every remaining entry for the same
//     credential is skipped for this plan.
//   - anything else (timeouts included): failure recorded, the pair is
//     retried up to AttemptsPerEntry before moving on.
//
// An exhausted plan yields ErrPlanExhausted so the orchestrator can fall back
// to a static reply; raw provider errors never travel upward.
//
// # Thread Safety
//
// Safe for concurrent use; all mutable state lives in the Pool.
type Executor struct {
	pool    *Pool
	factory llm.Factory
	config  ExecutorConfig
}

// NewExecutor creates an executor over the given pool and client factory.
func NewExecutor(pool *Pool, factory llm.Factory, config ExecutorConfig) *Executor {
	if config.AttemptsPerEntry <= 0 {
		config.AttemptsPerEntry = DefaultExecutorConfig().AttemptsPerEntry
	}
	if config.CallTimeout <= 0 {
		config.CallTimeout = DefaultExecutorConfig().CallTimeout
	}
	return &Executor{pool: pool, factory: factory, config: config}
}

// Generate runs the prompt through a fresh plan for the preferred models.
//
// # Inputs
//
//   - ctx: carries the overall deadline; each attempt additionally gets the
//     per-call timeout.
//   - models: preferred model names, best first.
//   - prompt: the fully rendered prompt.
//   - params: generation parameters passed through to the provider.
//
// # Outputs
//
//   - *llm.Result: the first successful generation.
//   - string: the model name that produced it.
//   - error: ErrNoCredentials, ErrPlanExhausted, or ctx.Err().
func (e *Executor) Generate(ctx context.Context, models []string, prompt string, params llm.GenerationParams) (*llm.Result, string, error) {
	ctx, span := tracer.Start(ctx, "Executor.Generate")
	defer span.End()

	plan := e.pool.BuildPlan(models)
	planSizeHistogram.Observe(float64(len(plan.Entries)))
	span.SetAttributes(attribute.Int("routing.plan_size", len(plan.Entries)))

	if plan.Empty() {
		span.SetStatus(codes.Error, "no usable credentials")
		return nil, "", ErrNoCredentials
	}

	skippedCredentials := map[string]bool{}

	for _, entry := range plan.Entries {
		if skippedCredentials[entry.Credential.Id] {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, "", err
		}

		client := e.factory.ClientFor(entry.Credential.APIKey, entry.Credential.BaseURL)
		tier := string(entry.Credential.Tier)

		for attempt := 1; attempt <= e.config.AttemptsPerEntry; attempt++ {
			callCtx, cancel := context.WithTimeout(ctx, e.config.CallTimeout)
			result, err := client.Generate(callCtx, entry.Model, prompt, params)
			cancel()

			if err == nil {
				e.pool.RecordSuccess(entry.Credential.Id, entry.Model)
				e.pool.RecordUsage(entry.Credential.Id, entry.Model,
					result.Usage.PromptTokens, result.Usage.CompletionTokens)
				attemptsTotal.WithLabelValues(tier, "success").Inc()
				tokensTotal.WithLabelValues("input", entry.Model).Add(float64(result.Usage.PromptTokens))
				tokensTotal.WithLabelValues("output", entry.Model).Add(float64(result.Usage.CompletionTokens))
				span.SetAttributes(
					attribute.String("routing.credential", entry.Credential.Id),
					attribute.String("routing.model", entry.Model),
				)
				return result, entry.Model, nil
			}

			// The caller's deadline is not a provider fault.
			if ctx.Err() != nil {
				return nil, "", ctx.Err()
			}

			switch {
			case llm.IsRateLimitError(err):
				e.pool.RecordRateLimit(entry.Credential.Id, entry.Model)
				attemptsTotal.WithLabelValues(tier, "rate_limit").Inc()
				cooldownsTotal.WithLabelValues("rate_limit").Inc()
				slog.Info("Plan entry rate limited, moving on",
					"credential", entry.Credential.Id, "model", entry.Model)
				attempt = e.config.AttemptsPerEntry // next plan entry

			case llm.IsInvalidCredentialError(err):
				// Unusable until the operator fixes the key; keep it out of
				// future plans too, not just this one.
				e.pool.MarkInvalid(entry.Credential.Id)
				attemptsTotal.WithLabelValues(tier, "invalid_credential").Inc()
				skippedCredentials[entry.Credential.Id] = true
				slog.Warn("Credential rejected by provider, disabled until corrected",
					"credential", entry.Credential.Id, "model", entry.Model, "error", err)
				attempt = e.config.AttemptsPerEntry

			case llm.IsModelNotFoundError(err):
				e.pool.RecordFailure(entry.Credential.Id, entry.Model)
				attemptsTotal.WithLabelValues(tier, "model_not_found").Inc()
				skippedCredentials[entry.Credential.Id] = true
				slog.Warn("Model unavailable on this credential",
					"credential", entry.Credential.Id, "model", entry.Model, "error", err)
				attempt = e.config.AttemptsPerEntry

			default:
				e.pool.RecordFailure(entry.Credential.Id, entry.Model)
				outcome := "error"
				if errors.Is(err, context.DeadlineExceeded) {
					outcome = "timeout"
				}
				attemptsTotal.WithLabelValues(tier, outcome).Inc()
				slog.Debug("Plan attempt failed",
					"credential", entry.Credential.Id, "model", entry.Model,
					"attempt", attempt, "error", err)
			}
		}
	}

	planExhaustedTotal.Inc()
	span.SetStatus(codes.Error, "plan exhausted")
	return nil, "", ErrPlanExhausted
}
