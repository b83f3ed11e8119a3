// Copyright (C) 2026 Desa Digital Nusantara (dev@desadigital.id)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"encoding/json"
	"fmt"
	"strings"
)

// =============================================================================
// Classification Result
// =============================================================================

// ExtractedFields carries the free-form slots the classifier pulled out of a
// message. Empty strings mean "not mentioned".
type ExtractedFields struct {
	Name         string `json:"name,omitempty"`
	Phone        string `json:"phone,omitempty"`
	Address      string `json:"address,omitempty"`
	TrackingCode string `json:"tracking_code,omitempty"`
	Category     string `json:"category,omitempty"`
	Emergency    bool   `json:"emergency,omitempty"`
}

// ClassificationResult is the structured output of one classifier pass.
//
// # Description
//
// Produced per message, never persisted. Intent is always a member of the
// closed vocabulary; Confidence is clamped to [0,1]. NeedsContext signals that
// the light pass wants the deep pass to run with full retrieval context.
type ClassificationResult struct {
	Intent        Intent          `json:"intent"`
	Confidence    float64         `json:"confidence"`
	Fields        ExtractedFields `json:"fields"`
	Clarification string          `json:"clarification,omitempty"`
	NeedsContext  bool            `json:"needs_context"`

	// DeepPass records whether the authoritative result came from the deep
	// pass. Diagnostic only.
	DeepPass bool `json:"-"`
}

// rawClassification is the wire shape the model is asked to emit: extracted
// slots live in the nested "fields" object. Older prompt revisions emitted
// the same slots flat at the top level, under partly different names; the
// decode step normalizes all of them into ClassificationResult so a single
// canonical shape enters the core.
type rawClassification struct {
	Intent        *string          `json:"intent"`
	Confidence    *float64         `json:"confidence"`
	Fields        *ExtractedFields `json:"fields"`
	Clarification string           `json:"clarification"`
	NeedsContext  bool             `json:"needs_context"`

	// Legacy flat aliases.
	Name         string `json:"name"`
	Phone        string `json:"phone"`
	Address      string `json:"address"`
	TrackingCode string `json:"tracking_code"`
	Category     string `json:"category"`
	Emergency    bool   `json:"emergency"`

	LegacyCode     string `json:"kode_laporan"`
	LegacyCategory string `json:"kategori"`
	LegacyMore     bool   `json:"need_more_context"`
}

// DecodeClassification parses a model response into a ClassificationResult.
//
// # Description
//
// The input must be a JSON object. A missing intent tag or a missing numeric
// confidence is a parse failure so the caller can trigger the same
// retry-next-model behavior as a router-level failure. Confidence values
// outside [0,1] are clamped, not rejected. Legacy field names are folded here
// and nowhere else.
//
// # Outputs
//
//   - *ClassificationResult: the normalized result.
//   - error: non-nil on malformed JSON or missing mandatory fields.
func DecodeClassification(data []byte) (*ClassificationResult, error) {
	var raw rawClassification
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("classification is not valid JSON: %w", err)
	}
	if raw.Intent == nil || strings.TrimSpace(*raw.Intent) == "" {
		return nil, fmt.Errorf("classification missing intent tag")
	}
	if raw.Confidence == nil {
		return nil, fmt.Errorf("classification missing confidence")
	}

	conf := *raw.Confidence
	if conf < 0 {
		conf = 0
	}
	if conf > 1 {
		conf = 1
	}

	fields := ExtractedFields{
		Name:         raw.Name,
		Phone:        raw.Phone,
		Address:      raw.Address,
		TrackingCode: raw.TrackingCode,
		Category:     raw.Category,
		Emergency:    raw.Emergency,
	}
	if raw.Fields != nil {
		// The nested object wins; flat keys only fill slots it left empty.
		if raw.Fields.Name != "" {
			fields.Name = raw.Fields.Name
		}
		if raw.Fields.Phone != "" {
			fields.Phone = raw.Fields.Phone
		}
		if raw.Fields.Address != "" {
			fields.Address = raw.Fields.Address
		}
		if raw.Fields.TrackingCode != "" {
			fields.TrackingCode = raw.Fields.TrackingCode
		}
		if raw.Fields.Category != "" {
			fields.Category = raw.Fields.Category
		}
		fields.Emergency = fields.Emergency || raw.Fields.Emergency
	}
	if fields.TrackingCode == "" {
		fields.TrackingCode = raw.LegacyCode
	}
	if fields.Category == "" {
		fields.Category = raw.LegacyCategory
	}
	fields.Name = strings.TrimSpace(fields.Name)
	fields.Phone = strings.TrimSpace(fields.Phone)
	fields.Address = strings.TrimSpace(fields.Address)
	fields.TrackingCode = strings.TrimSpace(fields.TrackingCode)
	fields.Category = strings.TrimSpace(fields.Category)

	return &ClassificationResult{
		Intent:        NormalizeIntent(*raw.Intent),
		Confidence:    conf,
		Fields:        fields,
		Clarification: strings.TrimSpace(raw.Clarification),
		NeedsContext:  raw.NeedsContext || raw.LegacyMore,
	}, nil
}
