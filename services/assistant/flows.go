// Copyright (C) 2026 Desa Digital Nusantara (dev@desadigital.id)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/desadigital/wargabot/pkg/validation"
	"github.com/desadigital/wargabot/services/assistant/datatypes"
	"github.com/desadigital/wargabot/services/assistant/gate"
)

// =============================================================================
// Multi-Turn Flow Signals
// =============================================================================

var (
	abandonPattern = regexp.MustCompile(`(?i)\b(batal(kan)?|tidak jadi|gak jadi|ga jadi|nggak jadi|urungkan)\b`)
	yesPattern     = regexp.MustCompile(`(?i)^\s*(ya|iya|yaa+|y|benar|betul|ok(e|ay)?|yes|sip|lanjut(kan)?)\b`)
	noPattern      = regexp.MustCompile(`(?i)^\s*(tidak|tdk|bukan|no|nggak|engga|ga|jangan)\b`)

	// phoneExtract pulls an Indonesian mobile number out of free text.
	phoneExtract = regexp.MustCompile(`(?:\+62|62|0)8\d{2}[\s.-]?\d{3,4}[\s.-]?\d{3,5}`)

	// vagueLocation marks location wording too imprecise to dispatch a
	// field crew to.
	vagueLocation = regexp.MustCompile(`(?i)^\s*(di\s*(sana|situ|sini)|dekat\s*sini|tidak tahu|gak tau)\s*$`)

	topicSwitchPattern = regexp.MustCompile(`(?i)\b(bagaimana|berapa|biaya|syarat|prosedur|cara)\b`)
)

// addressLike reports whether free text plausibly contains a usable address:
// explicit street markers, or enough words to be a described landmark.
func addressLike(text string) bool {
	if vagueLocation.MatchString(text) {
		return false
	}
	if gate.DetectSignals(text).MentionsAddress {
		return true
	}
	return len(strings.Fields(text)) >= 4
}

// intentSwitched detects the clear topic changes that clear a pending flow:
// a tracking code (status check) or a procedure/cost question.
func intentSwitched(message string) bool {
	if validation.ExtractTrackingCode(message) != "" {
		return true
	}
	return topicSwitchPattern.MatchString(message)
}

// =============================================================================
// Complaint Creation
// =============================================================================

func (o *Orchestrator) createComplaint(draft datatypes.ComplaintDraft, attachments []datatypes.Attachment) *datatypes.HandleResult {
	code := validation.NewTrackingCode(o.now())
	slog.Info("complaint filed",
		"tracking_code", code,
		"category", draft.Category,
		"attachments", len(attachments))
	return &datatypes.HandleResult{
		ReplyText: complaintConfirmation(code, draft, len(attachments)),
		Intent:    datatypes.IntentCreateComplaint,
		Success:   true,
	}
}

func (o *Orchestrator) handleCreateComplaint(ctx context.Context, req *datatypes.HandleRequest, cls *datatypes.ClassificationResult) *datatypes.HandleResult {
	draft := datatypes.ComplaintDraft{
		Category:    cls.Fields.Category,
		Description: req.Message,
		Address:     cls.Fields.Address,
		Name:        cls.Fields.Name,
		Phone:       cls.Fields.Phone,
	}

	if draft.Address == "" || !addressLike(draft.Address) {
		ask := replyAskAddress
		if cls.Clarification != "" {
			ask = cls.Clarification
		}
		if err := o.pendings.Set(ctx, &datatypes.PendingRequest{
			UserId:      req.UserId,
			TenantId:    req.TenantId,
			Kind:        datatypes.PendingAddressCollect,
			Attachments: req.Attachments,
			AddressCollect: &datatypes.AddressCollectPayload{
				Draft: draft,
			},
		}); err != nil {
			slog.Error("failed to store pending address request", "request_id", req.Id, "error", err)
		}
		return &datatypes.HandleResult{
			ReplyText: ask,
			Intent:    cls.Intent,
			Success:   true,
		}
	}

	if o.config.RequireContact && (draft.Name == "" || draft.Phone == "") {
		if err := o.pendings.Set(ctx, &datatypes.PendingRequest{
			UserId:      req.UserId,
			TenantId:    req.TenantId,
			Kind:        datatypes.PendingContactCollect,
			Attachments: req.Attachments,
			ContactCollect: &datatypes.ContactCollectPayload{
				Draft:     draft,
				NeedName:  draft.Name == "",
				NeedPhone: draft.Phone == "",
			},
		}); err != nil {
			slog.Error("failed to store pending contact request", "request_id", req.Id, "error", err)
		}
		return &datatypes.HandleResult{
			ReplyText: contactAsk(draft.Name == "", draft.Phone == ""),
			Intent:    cls.Intent,
			Success:   true,
		}
	}

	return o.createComplaint(draft, req.Attachments)
}

func (o *Orchestrator) handleCancelRequest(ctx context.Context, req *datatypes.HandleRequest, cls *datatypes.ClassificationResult) *datatypes.HandleResult {
	code := cls.Fields.TrackingCode
	if code == "" {
		code = validation.ExtractTrackingCode(req.Message)
	}
	sanitized, err := validation.SanitizeTrackingCode(code)
	if err != nil {
		return &datatypes.HandleResult{
			ReplyText: replyAskTrackingCode,
			Intent:    cls.Intent,
			Success:   true,
		}
	}

	if err := o.pendings.Set(ctx, &datatypes.PendingRequest{
		UserId:   req.UserId,
		TenantId: req.TenantId,
		Kind:     datatypes.PendingCancelConfirm,
		CancelConfirm: &datatypes.CancelConfirmPayload{
			TrackingCode: sanitized,
		},
	}); err != nil {
		slog.Error("failed to store pending cancellation", "request_id", req.Id, "error", err)
	}
	return &datatypes.HandleResult{
		ReplyText: cancelConfirmQuestion(sanitized),
		Intent:    cls.Intent,
		Success:   true,
	}
}

// =============================================================================
// Pending Resolution
// =============================================================================

// resolvePending routes a message arriving while a multi-turn flow is open.
//
// Returns handled=false when the message clearly belongs to a different
// intent; in that case the pending state has been cleared and the caller
// proceeds with normal classification.
func (o *Orchestrator) resolvePending(ctx context.Context, req *datatypes.HandleRequest, pend *datatypes.PendingRequest) (*datatypes.HandleResult, bool) {
	if abandonPattern.MatchString(req.Message) {
		_ = o.pendings.Delete(ctx, req.TenantId, req.UserId)
		return &datatypes.HandleResult{
			ReplyText: replyFlowAbandoned,
			Intent:    datatypes.IntentCancelRequest,
			Success:   true,
		}, true
	}

	switch pend.Kind {
	case datatypes.PendingAddressCollect:
		return o.resolveAddressCollect(ctx, req, pend)
	case datatypes.PendingAddressConfirm:
		return o.resolveAddressConfirm(ctx, req, pend)
	case datatypes.PendingContactCollect:
		return o.resolveContactCollect(ctx, req, pend)
	case datatypes.PendingCancelConfirm:
		return o.resolveCancelConfirm(ctx, req, pend)
	default:
		// Unknown kind from an older build. Drop it and move on.
		slog.Warn("dropping pending request of unknown kind", "kind", pend.Kind)
		_ = o.pendings.Delete(ctx, req.TenantId, req.UserId)
		return nil, false
	}
}

func (o *Orchestrator) resolveAddressCollect(ctx context.Context, req *datatypes.HandleRequest, pend *datatypes.PendingRequest) (*datatypes.HandleResult, bool) {
	payload := pend.AddressCollect

	// Explicit street markers always win; the bare word-count heuristic
	// yields to a clear topic switch ("berapa biaya bikin KTP?" is a
	// question, not a landmark description).
	explicit := !vagueLocation.MatchString(req.Message) &&
		gate.DetectSignals(req.Message).MentionsAddress
	if explicit || (!intentSwitched(req.Message) && addressLike(req.Message)) {
		_, _ = o.pendings.Consume(ctx, req.TenantId, req.UserId)
		draft := payload.Draft
		draft.Address = strings.TrimSpace(req.Message)
		attachments := append(pend.Attachments, req.Attachments...)
		return o.createComplaint(draft, attachments), true
	}

	if intentSwitched(req.Message) {
		_ = o.pendings.Delete(ctx, req.TenantId, req.UserId)
		return nil, false
	}

	// Not an address, not a topic switch. Reprompt once, then give up so
	// the user is never stuck in a loop.
	if payload.RepromptSent {
		_ = o.pendings.Delete(ctx, req.TenantId, req.UserId)
		return &datatypes.HandleResult{
			ReplyText: replyFlowAbandoned,
			Intent:    datatypes.IntentCreateComplaint,
			Success:   true,
		}, true
	}
	payload.RepromptSent = true
	pend.Attachments = append(pend.Attachments, req.Attachments...)
	if err := o.pendings.Set(ctx, pend); err != nil {
		slog.Error("failed to update pending request", "request_id", req.Id, "error", err)
	}
	return &datatypes.HandleResult{
		ReplyText: replyAskAddressAgain,
		Intent:    datatypes.IntentCreateComplaint,
		Success:   true,
	}, true
}

func (o *Orchestrator) resolveAddressConfirm(ctx context.Context, req *datatypes.HandleRequest, pend *datatypes.PendingRequest) (*datatypes.HandleResult, bool) {
	payload := pend.AddressConfirm

	if yesPattern.MatchString(req.Message) {
		_, _ = o.pendings.Consume(ctx, req.TenantId, req.UserId)
		draft := payload.Draft
		draft.Address = payload.ProposedAddress
		return o.createComplaint(draft, pend.Attachments), true
	}

	if noPattern.MatchString(req.Message) {
		// The guess was wrong; fall back to collecting the address.
		pend.Kind = datatypes.PendingAddressCollect
		pend.AddressCollect = &datatypes.AddressCollectPayload{Draft: payload.Draft}
		pend.AddressConfirm = nil
		if err := o.pendings.Set(ctx, pend); err != nil {
			slog.Error("failed to update pending request", "request_id", req.Id, "error", err)
		}
		return &datatypes.HandleResult{
			ReplyText: replyAskAddress,
			Intent:    datatypes.IntentCreateComplaint,
			Success:   true,
		}, true
	}

	if intentSwitched(req.Message) {
		_ = o.pendings.Delete(ctx, req.TenantId, req.UserId)
		return nil, false
	}

	return &datatypes.HandleResult{
		ReplyText: fmt.Sprintf("Apakah lokasinya %s? Balas \"ya\" atau \"tidak\".", payload.ProposedAddress),
		Intent:    datatypes.IntentCreateComplaint,
		Success:   true,
	}, true
}

func (o *Orchestrator) resolveContactCollect(ctx context.Context, req *datatypes.HandleRequest, pend *datatypes.PendingRequest) (*datatypes.HandleResult, bool) {
	payload := pend.ContactCollect

	progressed := false
	if payload.NeedPhone {
		if phone := phoneExtract.FindString(req.Message); phone != "" {
			payload.Draft.Phone = strings.TrimSpace(phone)
			payload.NeedPhone = false
			progressed = true
		}
	}
	if payload.NeedName {
		if name := nameFrom(req.Message); name != "" {
			payload.Draft.Name = name
			payload.NeedName = false
			progressed = true
		}
	}

	if !payload.NeedName && !payload.NeedPhone {
		_, _ = o.pendings.Consume(ctx, req.TenantId, req.UserId)
		attachments := append(pend.Attachments, req.Attachments...)
		return o.createComplaint(payload.Draft, attachments), true
	}

	if !progressed {
		if intentSwitched(req.Message) {
			_ = o.pendings.Delete(ctx, req.TenantId, req.UserId)
			return nil, false
		}
		if payload.RepromptSent {
			// File it with what we have rather than losing the report.
			_, _ = o.pendings.Consume(ctx, req.TenantId, req.UserId)
			return o.createComplaint(payload.Draft, pend.Attachments), true
		}
		payload.RepromptSent = true
	}

	pend.Attachments = append(pend.Attachments, req.Attachments...)
	if err := o.pendings.Set(ctx, pend); err != nil {
		slog.Error("failed to update pending request", "request_id", req.Id, "error", err)
	}
	return &datatypes.HandleResult{
		ReplyText: contactAsk(payload.NeedName, payload.NeedPhone),
		Intent:    datatypes.IntentCreateComplaint,
		Success:   true,
	}, true
}

func (o *Orchestrator) resolveCancelConfirm(ctx context.Context, req *datatypes.HandleRequest, pend *datatypes.PendingRequest) (*datatypes.HandleResult, bool) {
	payload := pend.CancelConfirm

	if yesPattern.MatchString(req.Message) {
		_, _ = o.pendings.Consume(ctx, req.TenantId, req.UserId)
		slog.Info("complaint cancelled", "tracking_code", payload.TrackingCode)
		return &datatypes.HandleResult{
			ReplyText: cancelDoneReply(payload.TrackingCode),
			Intent:    datatypes.IntentCancelRequest,
			Success:   true,
		}, true
	}
	if noPattern.MatchString(req.Message) {
		_, _ = o.pendings.Consume(ctx, req.TenantId, req.UserId)
		return &datatypes.HandleResult{
			ReplyText: cancelKeptReply(payload.TrackingCode),
			Intent:    datatypes.IntentCancelRequest,
			Success:   true,
		}, true
	}

	if intentSwitched(req.Message) {
		_ = o.pendings.Delete(ctx, req.TenantId, req.UserId)
		return nil, false
	}

	if payload.RepromptSent {
		_ = o.pendings.Delete(ctx, req.TenantId, req.UserId)
		return &datatypes.HandleResult{
			ReplyText: cancelKeptReply(payload.TrackingCode),
			Intent:    datatypes.IntentCancelRequest,
			Success:   true,
		}, true
	}
	payload.RepromptSent = true
	if err := o.pendings.Set(ctx, pend); err != nil {
		slog.Error("failed to update pending request", "request_id", req.Id, "error", err)
	}
	return &datatypes.HandleResult{
		ReplyText: cancelConfirmQuestion(payload.TrackingCode),
		Intent:    datatypes.IntentCancelRequest,
		Success:   true,
	}, true
}

// nameFrom treats a short all-letters message as the reporter's name,
// stripping the common "nama saya" prefix.
func nameFrom(message string) string {
	cleaned := strings.TrimSpace(message)
	lower := strings.ToLower(cleaned)
	for _, prefix := range []string{"nama saya ", "saya ", "nama "} {
		if strings.HasPrefix(lower, prefix) {
			cleaned = strings.TrimSpace(cleaned[len(prefix):])
			break
		}
	}
	if cleaned == "" || len(strings.Fields(cleaned)) > 4 {
		return ""
	}
	if strings.ContainsAny(cleaned, "0123456789") {
		return ""
	}
	return cleaned
}

func contactAsk(needName, needPhone bool) string {
	switch {
	case needName && needPhone:
		return "Sebelum laporan dikirim, mohon sebutkan nama dan nomor HP Anda."
	case needName:
		return "Mohon sebutkan nama Anda untuk melengkapi laporan."
	default:
		return "Mohon sebutkan nomor HP Anda untuk melengkapi laporan."
	}
}
