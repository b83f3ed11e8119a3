// Copyright (C) 2026 Desa Digital Nusantara (dev@desadigital.id)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package assistant composes the routing, classification, grounding, gating,
// and pending-state subsystems into the single per-message entry point.
//
// Handle is the only operation callers use. Every failure path inside it
// terminates in a user-safe Indonesian reply; raw provider errors never
// reach the user.
package assistant

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/desadigital/wargabot/pkg/validation"
	"github.com/desadigital/wargabot/services/assistant/adminsink"
	"github.com/desadigital/wargabot/services/assistant/classifier"
	"github.com/desadigital/wargabot/services/assistant/datatypes"
	"github.com/desadigital/wargabot/services/assistant/gate"
	"github.com/desadigital/wargabot/services/assistant/history"
	"github.com/desadigital/wargabot/services/assistant/llm"
	"github.com/desadigital/wargabot/services/assistant/pending"
	"github.com/desadigital/wargabot/services/assistant/reference"
)

var tracer = otel.Tracer("wargabot.assistant")

// =============================================================================
// Collaborator Interfaces
// =============================================================================

// IntentClassifier produces the structured intent for a message.
// *classifier.Classifier satisfies this.
type IntentClassifier interface {
	Classify(ctx context.Context, req classifier.Request) (*datatypes.ClassificationResult, error)
}

// Retriever produces grounding context for a query.
// *grounding.Retriever satisfies this.
type Retriever interface {
	Retrieve(ctx context.Context, tenantID, query, category string) (*datatypes.RetrievalContext, error)
}

// Generator runs one prompt through the credential router.
// *routing.Executor satisfies this.
type Generator interface {
	Generate(ctx context.Context, models []string, prompt string, params llm.GenerationParams) (*llm.Result, string, error)
}

// =============================================================================
// Orchestrator
// =============================================================================

// Config holds orchestrator tuning.
//
// # Fields
//
//   - GenerationModels: Models tried for answer generation, in order.
//   - HistoryTurns: Turns fetched from the history service when the caller
//     supplies none. Default: 6.
//   - RequireContact: When true, complaint creation asks for the reporter's
//     name and phone before filing. Default: false.
type Config struct {
	GenerationModels []string
	HistoryTurns     int
	RequireContact   bool
}

func (c Config) withDefaults() Config {
	if c.HistoryTurns <= 0 {
		c.HistoryTurns = 6
	}
	return c
}

// Orchestrator is the per-message composition root.
//
// # Thread Safety
//
// Handle is safe for concurrent use. Messages from the same user are
// serialized by a per-user lock so pending state never races; messages from
// different users proceed in parallel.
type Orchestrator struct {
	classifier IntentClassifier
	retriever  Retriever
	generator  Generator
	pendings   pending.Store
	reference  reference.Service
	history    history.Service
	sink       adminsink.Sink
	config     Config

	lockMu sync.Mutex
	locks  map[string]*sync.Mutex

	now func() time.Time
}

// New creates an orchestrator. The history service and sink may be nil; a
// nil sink is replaced with a no-op one.
func New(
	intentClassifier IntentClassifier,
	retriever Retriever,
	generator Generator,
	pendings pending.Store,
	referenceSvc reference.Service,
	historySvc history.Service,
	sink adminsink.Sink,
	config Config,
) *Orchestrator {
	if sink == nil {
		sink = adminsink.NopSink{}
	}
	return &Orchestrator{
		classifier: intentClassifier,
		retriever:  retriever,
		generator:  generator,
		pendings:   pendings,
		reference:  referenceSvc,
		history:    historySvc,
		sink:       sink,
		config:     config.withDefaults(),
		locks:      make(map[string]*sync.Mutex),
		now:        time.Now,
	}
}

// Handle processes one inbound message end to end.
//
// # Description
//
// Serializes on the user, resolves any pending multi-turn state, classifies
// the message, grounds it against village knowledge, generates a reply
// through the credential router, and gates the result. Returns an error only
// for invalid requests; every downstream failure is converted to a user-safe
// reply with Success=false.
func (o *Orchestrator) Handle(ctx context.Context, req *datatypes.HandleRequest) (*datatypes.HandleResult, error) {
	start := o.now()
	req.EnsureDefaults()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "assistant.handle")
	defer span.End()
	span.SetAttributes(
		attribute.String("assistant.request_id", req.Id),
		attribute.String("assistant.tenant_id", req.TenantId),
	)

	unlock := o.lockUser(req.TenantId, req.UserId)
	defer unlock()

	result := o.process(ctx, req)
	result.ProcessingTimeMs = o.now().Sub(start).Milliseconds()

	outcome := "ok"
	if !result.Success {
		outcome = "degraded"
	}
	handledTotal.WithLabelValues(string(result.Intent), outcome).Inc()
	handleDuration.WithLabelValues(string(result.Intent)).Observe(float64(result.ProcessingTimeMs) / 1000)
	span.SetAttributes(
		attribute.String("assistant.intent", string(result.Intent)),
		attribute.Bool("assistant.used_knowledge", result.UsedKnowledge),
	)
	return result, nil
}

func (o *Orchestrator) process(ctx context.Context, req *datatypes.HandleRequest) *datatypes.HandleResult {
	hist := o.loadHistory(ctx, req)

	// A pending multi-turn flow owns the message unless the user clearly
	// switched topics.
	if pend, err := o.pendings.Get(ctx, req.TenantId, req.UserId); err == nil && pend != nil {
		if result, handled := o.resolvePending(ctx, req, pend); handled {
			return result
		}
	}

	cls, preRetrieval, err := o.classify(ctx, req, hist)
	if err != nil {
		if errors.Is(err, classifier.ErrBudgetExceeded) {
			budgetRejectedTotal.Inc()
			return &datatypes.HandleResult{
				ReplyText: replyBudgetExceeded,
				Intent:    datatypes.IntentUnknown,
				Success:   true,
			}
		}
		slog.Error("classification failed", "request_id", req.Id, "error", err)
		return &datatypes.HandleResult{
			ReplyText: replyFallback,
			Intent:    datatypes.IntentUnknown,
			Success:   false,
		}
	}

	if cls.Fields.Emergency {
		cls.Intent = datatypes.IntentEmergency
	}

	switch cls.Intent {
	case datatypes.IntentGreeting:
		return &datatypes.HandleResult{ReplyText: replyGreeting, Intent: cls.Intent, Success: true}
	case datatypes.IntentThanks:
		return &datatypes.HandleResult{ReplyText: replyThanks, Intent: cls.Intent, Success: true}
	case datatypes.IntentEmergency:
		return o.handleEmergency(ctx, req)
	case datatypes.IntentContactInfo:
		return o.handleContactInfo(ctx, req, cls)
	case datatypes.IntentCheckStatus:
		return o.handleCheckStatus(req, cls)
	case datatypes.IntentCancelRequest:
		return o.handleCancelRequest(ctx, req, cls)
	case datatypes.IntentCreateComplaint:
		return o.handleCreateComplaint(ctx, req, cls)
	default:
		return o.handleInformational(ctx, req, cls, hist, preRetrieval)
	}
}

// loadHistory prefers caller-supplied history and falls back to the history
// service. History is context, not a requirement; failures degrade to none.
func (o *Orchestrator) loadHistory(ctx context.Context, req *datatypes.HandleRequest) []datatypes.Message {
	if len(req.History) > 0 {
		return req.History
	}
	if o.history == nil {
		return nil
	}
	turns, err := o.history.RecentTurns(ctx, req.TenantId, req.UserId, o.config.HistoryTurns)
	if err != nil {
		slog.Warn("history fetch failed, continuing without",
			"request_id", req.Id, "error", err)
		return nil
	}
	return turns
}

// classify runs the intent classifier with the tenant's reference lists and
// a pre-classification retrieval pass, all fetched concurrently. The deep
// classification prompt gets the retrieved context; the informational path
// reuses the same retrieval so the knowledge base is not queried twice.
func (o *Orchestrator) classify(ctx context.Context, req *datatypes.HandleRequest, hist []datatypes.Message) (*datatypes.ClassificationResult, *datatypes.RetrievalContext, error) {
	var categories, services []string
	var preRetrieval *datatypes.RetrievalContext

	g, gctx := errgroup.WithContext(ctx)
	if o.reference != nil {
		g.Go(func() error {
			cats, err := o.reference.ComplaintCategories(gctx, req.TenantId)
			if err != nil {
				return err
			}
			for _, c := range cats {
				categories = append(categories, c.Name)
			}
			return nil
		})
		g.Go(func() error {
			svcs, err := o.reference.Services(gctx, req.TenantId)
			if err != nil {
				return err
			}
			for _, s := range svcs {
				services = append(services, s.Name)
			}
			return nil
		})
	}
	if o.retriever != nil {
		g.Go(func() error {
			// No category filter yet; classification has not run. A failed
			// retrieval degrades to an uncontextualized prompt and must not
			// cancel the reference fetches.
			rc, err := o.retriever.Retrieve(gctx, req.TenantId, req.Message, "")
			if err != nil {
				slog.Warn("pre-classification retrieval failed",
					"request_id", req.Id, "error", err)
				return nil
			}
			preRetrieval = rc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		// Reference lists improve prompts but are not required.
		slog.Warn("reference fetch failed, classifying without lists",
			"request_id", req.Id, "error", err)
	}

	retrievalContext := ""
	if preRetrieval != nil {
		retrievalContext = preRetrieval.ContextString
	}

	cls, err := o.classifier.Classify(ctx, classifier.Request{
		UserId:           req.UserId,
		TenantId:         req.TenantId,
		Message:          req.Message,
		History:          hist,
		Categories:       categories,
		Services:         services,
		RetrievalContext: retrievalContext,
	})
	return cls, preRetrieval, err
}

// lockUser returns the unlock function for the user's serialization lock.
func (o *Orchestrator) lockUser(tenantID, userID string) func() {
	key := tenantID + "/" + userID
	o.lockMu.Lock()
	lock, ok := o.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		o.locks[key] = lock
	}
	o.lockMu.Unlock()

	lock.Lock()
	return lock.Unlock
}

// =============================================================================
// Informational Path (grounding + generation + gate)
// =============================================================================

func (o *Orchestrator) handleInformational(ctx context.Context, req *datatypes.HandleRequest, cls *datatypes.ClassificationResult, hist []datatypes.Message, preRetrieval *datatypes.RetrievalContext) *datatypes.HandleResult {
	rc := o.ground(ctx, req, cls, preRetrieval)

	var profile *datatypes.TenantProfile
	if o.reference != nil {
		if p, err := o.reference.Profile(ctx, req.TenantId); err == nil {
			profile = p
		}
	}

	reply, ok := o.generateGated(ctx, req, profile, rc, hist)
	if !ok {
		return &datatypes.HandleResult{
			ReplyText:     replyFallback,
			Intent:        cls.Intent,
			UsedKnowledge: rc.HasKnowledge(),
			Success:       false,
		}
	}
	return &datatypes.HandleResult{
		ReplyText:     reply,
		Intent:        cls.Intent,
		UsedKnowledge: rc.HasKnowledge(),
		Success:       true,
	}
}

// ground produces the knowledge context and reports conflicts and gaps. The
// pre-classification retrieval is reused unless classification extracted a
// category, which narrows the search. A failed retrieval degrades to no
// knowledge; it never fails the message.
func (o *Orchestrator) ground(ctx context.Context, req *datatypes.HandleRequest, cls *datatypes.ClassificationResult, preRetrieval *datatypes.RetrievalContext) *datatypes.RetrievalContext {
	if o.retriever == nil {
		return &datatypes.RetrievalContext{}
	}

	rc := preRetrieval
	if rc == nil || cls.Fields.Category != "" {
		fresh, err := o.retriever.Retrieve(ctx, req.TenantId, req.Message, cls.Fields.Category)
		if err != nil {
			slog.Warn("retrieval failed, generating without grounding",
				"request_id", req.Id, "error", err)
			return &datatypes.RetrievalContext{}
		}
		rc = fresh
	}

	if len(rc.Conflicts) > 0 {
		o.sink.Report(adminsink.Report{
			Kind:      adminsink.ReportConflict,
			TenantId:  req.TenantId,
			Query:     req.Message,
			Conflicts: rc.Conflicts,
		})
	}
	if !rc.HasKnowledge() {
		o.sink.Report(adminsink.Report{
			Kind:     adminsink.ReportKnowledgeGap,
			TenantId: req.TenantId,
			Query:    req.Message,
			Note:     "no knowledge matched this query",
		})
	}
	return rc
}

// generateGated generates an answer and applies the hallucination gate:
// at most one regeneration for factual violations, sanitization for link
// violations, and a false return when nothing usable came out.
func (o *Orchestrator) generateGated(ctx context.Context, req *datatypes.HandleRequest, profile *datatypes.TenantProfile, rc *datatypes.RetrievalContext, hist []datatypes.Message) (string, bool) {
	prompt := buildAnswerPrompt(profile, rc, hist, req.Message, false)
	result, model, err := o.generator.Generate(ctx, o.config.GenerationModels, prompt, answerParams())
	if err != nil {
		slog.Error("generation failed", "request_id", req.Id, "error", err)
		return "", false
	}

	text := strings.TrimSpace(result.Text)
	verdict := gate.NeedsRetry(text, rc.HasKnowledge())
	if verdict.ShouldRetry && !verdict.LinkOnly {
		// One bounded regeneration with stricter instructions, then take
		// whatever came out and sanitize.
		gateRetriesTotal.WithLabelValues("regenerate").Inc()
		slog.Info("hallucination gate forced regeneration",
			"request_id", req.Id, "model", model, "reasons", verdict.Reasons)

		strictPrompt := buildAnswerPrompt(profile, rc, hist, req.Message, true)
		retry, _, retryErr := o.generator.Generate(ctx, o.config.GenerationModels, strictPrompt, answerParams())
		if retryErr == nil {
			text = strings.TrimSpace(retry.Text)
		}
	} else if verdict.LinkOnly {
		gateRetriesTotal.WithLabelValues("sanitize").Inc()
	}

	text = gate.Sanitize(text)
	if text == "" {
		return "", false
	}
	return text, true
}

func answerParams() llm.GenerationParams {
	temp := float32(0.3)
	maxTokens := 400
	return llm.GenerationParams{
		Temperature: &temp,
		MaxTokens:   &maxTokens,
	}
}

// =============================================================================
// Contact / Emergency / Status Paths
// =============================================================================

func (o *Orchestrator) handleEmergency(ctx context.Context, req *datatypes.HandleRequest) *datatypes.HandleResult {
	contacts := o.contactsByCategory(ctx, req.TenantId, "darurat")
	return &datatypes.HandleResult{
		ReplyText: emergencyReply(contacts),
		Contacts:  contacts,
		Intent:    datatypes.IntentEmergency,
		Success:   true,
	}
}

func (o *Orchestrator) handleContactInfo(ctx context.Context, req *datatypes.HandleRequest, cls *datatypes.ClassificationResult) *datatypes.HandleResult {
	contacts := o.contactsByCategory(ctx, req.TenantId, cls.Fields.Category)
	if len(contacts) == 0 {
		return &datatypes.HandleResult{
			ReplyText: replyNoContactsFound,
			Intent:    cls.Intent,
			Success:   true,
		}
	}
	return &datatypes.HandleResult{
		ReplyText: contactsReply(contacts),
		Contacts:  contacts,
		Intent:    cls.Intent,
		Success:   true,
	}
}

// contactsByCategory fetches the directory and filters by category when one
// is given. Category matching is a case-insensitive substring in either
// direction; taxonomy names and model-extracted keywords rarely align
// exactly.
func (o *Orchestrator) contactsByCategory(ctx context.Context, tenantID, category string) []datatypes.ContactRecord {
	if o.reference == nil {
		return nil
	}
	all, err := o.reference.Contacts(ctx, tenantID)
	if err != nil {
		slog.Warn("contact fetch failed", "tenant_id", tenantID, "error", err)
		return nil
	}
	if category == "" {
		return all
	}

	want := strings.ToLower(category)
	var filtered []datatypes.ContactRecord
	for _, c := range all {
		have := strings.ToLower(c.Category)
		if strings.Contains(have, want) || strings.Contains(want, have) {
			filtered = append(filtered, c)
		}
	}
	if len(filtered) == 0 {
		return all
	}
	return filtered
}

func (o *Orchestrator) handleCheckStatus(req *datatypes.HandleRequest, cls *datatypes.ClassificationResult) *datatypes.HandleResult {
	code := cls.Fields.TrackingCode
	if code == "" {
		code = validation.ExtractTrackingCode(req.Message)
	}
	if sanitized, err := validation.SanitizeTrackingCode(code); err == nil {
		code = sanitized
	} else {
		code = ""
	}

	if code == "" {
		return &datatypes.HandleResult{
			ReplyText: replyAskTrackingCode,
			Intent:    cls.Intent,
			Success:   true,
		}
	}
	return &datatypes.HandleResult{
		ReplyText: statusReply(code),
		Intent:    cls.Intent,
		Success:   true,
	}
}
