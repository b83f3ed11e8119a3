// Copyright (C) 2026 Desa Digital Nusantara (dev@desadigital.id)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes holds the shared request, response, and domain types used
// across the assistant orchestration core.
package datatypes

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Message is a single conversation turn as stored by the history service.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Attachment references an uploaded file (typically a photo attached to a
// complaint). The orchestration core only carries the reference; storage and
// parsing live outside the core.
type Attachment struct {
	ID       string `json:"id"`
	FileName string `json:"file_name"`
	MimeType string `json:"mime_type"`
	URL      string `json:"url"`
}

// HandleRequest is the single entry point payload for the orchestrator.
type HandleRequest struct {
	Id          string       `json:"id"`
	UserId      string       `json:"user_id" binding:"required"`
	TenantId    string       `json:"tenant_id" binding:"required"`
	Message     string       `json:"message" binding:"required"`
	History     []Message    `json:"history,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
	Timestamp   time.Time    `json:"timestamp"`
}

// EnsureDefaults populates the request ID and timestamp if the caller left
// them empty. Returns the request for chaining.
func (r *HandleRequest) EnsureDefaults() *HandleRequest {
	if r.Id == "" {
		r.Id = "req_" + uuid.NewString()
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now()
	}
	return r
}

// Validate checks the request invariants the binding layer cannot express.
func (r *HandleRequest) Validate() error {
	if strings.TrimSpace(r.Message) == "" {
		return fmt.Errorf("message must not be blank")
	}
	if len(r.Message) > MaxMessageLength {
		return fmt.Errorf("message exceeds %d characters", MaxMessageLength)
	}
	return nil
}

// MaxMessageLength bounds inbound message size before any model call.
const MaxMessageLength = 4000

// HandleResult is what the orchestrator returns for one inbound message.
//
// Success=false means every internal path failed and ReplyText carries a
// user-safe fallback; callers never see raw provider errors.
type HandleResult struct {
	ReplyText        string          `json:"reply_text"`
	Contacts         []ContactRecord `json:"contacts,omitempty"`
	Intent           Intent          `json:"intent"`
	UsedKnowledge    bool            `json:"used_knowledge"`
	ProcessingTimeMs int64           `json:"processing_time_ms"`
	Success          bool            `json:"success"`
}

// Intent is the closed vocabulary the classifier maps every message into.
type Intent string

const (
	IntentCreateComplaint Intent = "CREATE_COMPLAINT"
	IntentCheckStatus     Intent = "CHECK_STATUS"
	IntentCancelRequest   Intent = "CANCEL_REQUEST"
	IntentServiceInfo     Intent = "SERVICE_INFO"
	IntentContactInfo     Intent = "CONTACT_INFO"
	IntentGeneralInfo     Intent = "GENERAL_INFO"
	IntentGreeting        Intent = "GREETING"
	IntentThanks          Intent = "THANKS"
	IntentEmergency       Intent = "EMERGENCY"
	IntentUnknown         Intent = "UNKNOWN"
)

// knownIntents is the complete closed vocabulary. Anything outside it coming
// back from a model is normalized to IntentUnknown.
var knownIntents = map[Intent]bool{
	IntentCreateComplaint: true,
	IntentCheckStatus:     true,
	IntentCancelRequest:   true,
	IntentServiceInfo:     true,
	IntentContactInfo:     true,
	IntentGeneralInfo:     true,
	IntentGreeting:        true,
	IntentThanks:          true,
	IntentEmergency:       true,
	IntentUnknown:         true,
}

// IsValid reports whether the intent belongs to the closed vocabulary.
func (i Intent) IsValid() bool {
	return knownIntents[i]
}

// NormalizeIntent maps a raw model-produced tag onto the closed vocabulary,
// folding the legacy names that older prompt revisions emitted.
func NormalizeIntent(raw string) Intent {
	tag := Intent(strings.ToUpper(strings.TrimSpace(raw)))
	switch tag {
	case "CONTACT_REQUEST", "INFO_REQUEST":
		// Old and new spellings collapsed at the boundary so only one shape
		// enters the core.
		return IntentContactInfo
	case "COMPLAINT", "NEW_COMPLAINT":
		return IntentCreateComplaint
	case "STATUS", "TRACK":
		return IntentCheckStatus
	}
	if tag.IsValid() {
		return tag
	}
	return IntentUnknown
}
