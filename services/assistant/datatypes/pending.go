// Copyright (C) 2026 Desa Digital Nusantara (dev@desadigital.id)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import "time"

// =============================================================================
// Pending Multi-Turn State
// =============================================================================

// PendingKind tags the variant of a PendingRequest. Each kind carries only the
// payload relevant to it, so consumers switch on the tag instead of probing
// optional fields.
type PendingKind string

const (
	// PendingAddressConfirm waits for a yes/no on a geocoded address guess.
	PendingAddressConfirm PendingKind = "address_confirm"

	// PendingAddressCollect waits for a usable street address for a complaint.
	PendingAddressCollect PendingKind = "address_collect"

	// PendingContactCollect waits for the reporter's name and phone number.
	PendingContactCollect PendingKind = "contact_collect"

	// PendingCancelConfirm waits for a yes/no before cancelling a tracked
	// request.
	PendingCancelConfirm PendingKind = "cancel_confirm"
)

// ComplaintDraft is the partially built complaint shared by the address and
// contact collection variants.
type ComplaintDraft struct {
	Category    string `json:"category"`
	Description string `json:"description"`
	Address     string `json:"address,omitempty"`
	Name        string `json:"name,omitempty"`
	Phone       string `json:"phone,omitempty"`
}

// AddressConfirmPayload holds the guess presented to the user.
type AddressConfirmPayload struct {
	Draft           ComplaintDraft `json:"draft"`
	ProposedAddress string         `json:"proposed_address"`
	OriginalWording string         `json:"original_wording"`
}

// AddressCollectPayload holds a draft still missing its address.
type AddressCollectPayload struct {
	Draft        ComplaintDraft `json:"draft"`
	RepromptSent bool           `json:"reprompt_sent"`
}

// ContactCollectPayload holds a draft still missing reporter identity.
type ContactCollectPayload struct {
	Draft        ComplaintDraft `json:"draft"`
	NeedName     bool           `json:"need_name"`
	NeedPhone    bool           `json:"need_phone"`
	RepromptSent bool           `json:"reprompt_sent"`
}

// CancelConfirmPayload identifies the request the user asked to cancel.
type CancelConfirmPayload struct {
	TrackingCode string `json:"tracking_code"`
	RepromptSent bool   `json:"reprompt_sent"`
}

// PendingRequest is the per-user multi-turn state. Exactly one of the payload
// pointers matching Kind is set; the rest are nil.
//
// Lifecycle: created when a required field is missing, consumed the moment
// the field arrives or the user abandons the flow, and garbage-collected by
// the sweeper once CreatedAt passes the store timeout.
type PendingRequest struct {
	UserId    string      `json:"user_id"`
	TenantId  string      `json:"tenant_id"`
	Kind      PendingKind `json:"kind"`
	CreatedAt time.Time   `json:"created_at"`

	// Attachments accumulate while the flow is awaiting its field and are
	// attached atomically when the flow resolves.
	Attachments []Attachment `json:"attachments,omitempty"`

	AddressConfirm *AddressConfirmPayload `json:"address_confirm,omitempty"`
	AddressCollect *AddressCollectPayload `json:"address_collect,omitempty"`
	ContactCollect *ContactCollectPayload `json:"contact_collect,omitempty"`
	CancelConfirm  *CancelConfirmPayload  `json:"cancel_confirm,omitempty"`
}

// Age returns how long the pending request has existed.
func (p *PendingRequest) Age(now time.Time) time.Duration {
	return now.Sub(p.CreatedAt)
}
