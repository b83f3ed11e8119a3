// Copyright (C) 2026 Desa Digital Nusantara (dev@desadigital.id)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package classifier turns a raw user message into a structured intent.
//
// Classification runs in two tiers. The light pass uses a short prompt with
// a small history window against cheap models. The deep pass includes the
// full retrieval context and reference lists against stronger models. A
// fixed rule decides which pass to start with, a confidence threshold
// decides whether the light result stands, and a per-user budget bounds
// total model spend.
package classifier

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/desadigital/wargabot/services/assistant/datatypes"
	"github.com/desadigital/wargabot/services/assistant/llm"
)

var tracer = otel.Tracer("wargabot.assistant.classifier")

// =============================================================================
// Pass Selection Rules
// =============================================================================

// deepTriggers force the deep pass regardless of message length. These words
// signal a question about procedure, cost, or reasoning that a short prompt
// routinely misclassifies.
var deepTriggers = regexp.MustCompile(
	`(?i)\b(bagaimana|gimana|kenapa|mengapa|berapa|biaya|tarif|syarat|prosedur|cara|persyaratan|ketentuan)\b`)

// deepWordThreshold forces the deep pass for long messages.
const deepWordThreshold = 12

// needsDeepPass applies the fixed pass-selection rule.
func needsDeepPass(message string) bool {
	if deepTriggers.MatchString(message) {
		return true
	}
	return len(strings.Fields(message)) > deepWordThreshold
}

// =============================================================================
// Classifier
// =============================================================================

// Generator runs one prompt through the credential router.
// *routing.Executor satisfies this.
type Generator interface {
	Generate(ctx context.Context, models []string, prompt string, params llm.GenerationParams) (*llm.Result, string, error)
}

// Config holds classifier tuning.
//
// # Fields
//
//   - LightModels: Models tried for the light pass, in order.
//   - DeepModels: Models tried for the deep pass, in order.
//   - ConfidenceThreshold: Minimum light-pass confidence to accept without
//     a deep pass. Default: 0.75.
//   - LightHistoryTurns: History turns included in the light prompt. Default: 2.
type Config struct {
	LightModels         []string
	DeepModels          []string
	ConfidenceThreshold float64
	LightHistoryTurns   int
}

func (c Config) withDefaults() Config {
	if c.ConfidenceThreshold <= 0 {
		c.ConfidenceThreshold = 0.75
	}
	if c.LightHistoryTurns <= 0 {
		c.LightHistoryTurns = 2
	}
	return c
}

// Request carries everything one classification needs.
type Request struct {
	UserId     string
	TenantId   string
	Message    string
	History    []datatypes.Message
	Categories []string // complaint-category taxonomy
	Services   []string // service catalog names

	// RetrievalContext is the grounding text included in deep prompts.
	// May be empty.
	RetrievalContext string
}

// Classifier is the two-tier intent classifier.
type Classifier struct {
	generator Generator
	budget    *Budget
	config    Config
}

// New creates a classifier.
func New(generator Generator, budget *Budget, config Config) *Classifier {
	return &Classifier{
		generator: generator,
		budget:    budget,
		config:    config.withDefaults(),
	}
}

// Classify produces a ClassificationResult for one message.
//
// # Description
//
// Spends one budget unit per model pass. The light result is final when its
// confidence clears the threshold and it does not ask for more context;
// otherwise the deep pass runs and is authoritative, with the light result
// kept as a fallback if the deep call fails outright. A parse failure on
// either pass counts as a failed call, not a low-confidence result.
//
// # Outputs
//
//   - *datatypes.ClassificationResult: Never nil on success. Intent is
//     normalized to the closed vocabulary.
//   - error: ErrBudgetExceeded before any model call once the user's budget
//     is spent; otherwise the underlying router or parse error when no pass
//     produced a usable result.
func (c *Classifier) Classify(ctx context.Context, req Request) (*datatypes.ClassificationResult, error) {
	ctx, span := tracer.Start(ctx, "classifier.classify")
	defer span.End()
	span.SetAttributes(
		attribute.String("classifier.user_id", req.UserId),
		attribute.Int("classifier.message_words", len(strings.Fields(req.Message))),
	)

	if needsDeepPass(req.Message) {
		span.SetAttributes(attribute.String("classifier.path", "deep_forced"))
		result, err := c.runDeep(ctx, req)
		if err != nil {
			return nil, err
		}
		return result, nil
	}

	lightResult, lightErr := c.runLight(ctx, req)
	if lightErr == nil &&
		lightResult.Confidence >= c.config.ConfidenceThreshold &&
		!lightResult.NeedsContext {
		span.SetAttributes(attribute.String("classifier.path", "light"))
		return lightResult, nil
	}
	if errors.Is(lightErr, ErrBudgetExceeded) {
		return nil, lightErr
	}

	deepResult, deepErr := c.runDeep(ctx, req)
	if deepErr == nil {
		span.SetAttributes(attribute.String("classifier.path", "deep"))
		return deepResult, nil
	}

	// Deep failed. A low-confidence light answer still beats no answer.
	if lightErr == nil {
		slog.Warn("deep classification failed, falling back to light result",
			"user_id", req.UserId, "error", deepErr)
		span.SetAttributes(attribute.String("classifier.path", "light_fallback"))
		return lightResult, nil
	}
	return nil, deepErr
}

func (c *Classifier) runLight(ctx context.Context, req Request) (*datatypes.ClassificationResult, error) {
	if err := c.budget.Spend(req.UserId); err != nil {
		return nil, err
	}

	prompt := buildLightPrompt(req, c.config.LightHistoryTurns)
	result, model, err := c.generator.Generate(ctx, c.config.LightModels, prompt, lightParams())
	if err != nil {
		return nil, err
	}

	parsed, err := ParseModelOutput(result.Text)
	if err != nil {
		slog.Warn("light classification parse failure",
			"user_id", req.UserId, "model", model, "error", err)
		return nil, err
	}
	parsed.Intent = datatypes.NormalizeIntent(string(parsed.Intent))
	return parsed, nil
}

func (c *Classifier) runDeep(ctx context.Context, req Request) (*datatypes.ClassificationResult, error) {
	if err := c.budget.Spend(req.UserId); err != nil {
		return nil, err
	}

	prompt := buildDeepPrompt(req)
	result, model, err := c.generator.Generate(ctx, c.config.DeepModels, prompt, deepParams())
	if err != nil {
		return nil, err
	}

	parsed, err := ParseModelOutput(result.Text)
	if err != nil {
		slog.Warn("deep classification parse failure",
			"user_id", req.UserId, "model", model, "error", err)
		return nil, err
	}
	parsed.Intent = datatypes.NormalizeIntent(string(parsed.Intent))
	parsed.DeepPass = true
	return parsed, nil
}

func lightParams() llm.GenerationParams {
	temp := float32(0.0)
	maxTokens := 200
	return llm.GenerationParams{
		Temperature:    &temp,
		MaxTokens:      &maxTokens,
		ResponseFormat: "json",
	}
}

func deepParams() llm.GenerationParams {
	temp := float32(0.0)
	maxTokens := 500
	return llm.GenerationParams{
		Temperature:    &temp,
		MaxTokens:      &maxTokens,
		ResponseFormat: "json",
	}
}
