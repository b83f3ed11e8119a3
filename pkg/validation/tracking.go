// Copyright (C) 2026 Desa Digital Nusantara (dev@desadigital.id)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package validation provides input validation utilities for user-provided
// identifiers.
//
// Tracking codes arrive as free text inside chat messages and end up in
// queries and replies, so they are validated and normalized before use.
package validation

import (
	"fmt"
	"math/rand"
	"regexp"
	"strings"
	"time"
)

// trackingPattern matches complaint tracking codes: the LAP- prefix, an
// eight-digit date, and a four-digit sequence, e.g. LAP-20260831-0042.
var trackingPattern = regexp.MustCompile(`^LAP-\d{8}-\d{4}$`)

// looseTrackingPattern finds a tracking code embedded in free text,
// tolerating lowercase and missing hyphens the way users actually type it.
var looseTrackingPattern = regexp.MustCompile(`(?i)\blap[-\s]?(\d{8})[-\s]?(\d{4})\b`)

// ValidateTrackingCode validates a complaint tracking code.
//
// Valid codes:
//   - The literal prefix LAP
//   - An eight-digit date (YYYYMMDD)
//   - A four-digit sequence number
//   - Hyphen-separated, uppercase
//
// Returns an error if the code is invalid.
//
// Example:
//
//	if err := validation.ValidateTrackingCode(code); err != nil {
//	    return nil, fmt.Errorf("invalid tracking code: %w", err)
//	}
func ValidateTrackingCode(code string) error {
	if code == "" {
		return fmt.Errorf("tracking code cannot be empty")
	}
	if !trackingPattern.MatchString(code) {
		return fmt.Errorf("invalid tracking code format: %q (expected LAP-YYYYMMDD-NNNN)", code)
	}
	return nil
}

// SanitizeTrackingCode normalizes and validates a tracking code.
// Returns the canonical uppercase form if valid, or an error.
func SanitizeTrackingCode(code string) (string, error) {
	normalized := strings.ToUpper(strings.TrimSpace(code))
	if m := looseTrackingPattern.FindStringSubmatch(normalized); m != nil {
		normalized = fmt.Sprintf("LAP-%s-%s", m[1], m[2])
	}
	if err := ValidateTrackingCode(normalized); err != nil {
		return "", err
	}
	return normalized, nil
}

// ExtractTrackingCode finds the first tracking code in free text and returns
// it in canonical form. Returns "" when none is present.
func ExtractTrackingCode(text string) string {
	m := looseTrackingPattern.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return fmt.Sprintf("LAP-%s-%s", m[1], m[2])
}

// NewTrackingCode generates a fresh tracking code for today.
//
// The sequence part is random, not monotonic; uniqueness within a day is
// probabilistic and collisions are tolerated downstream by overwrite
// semantics.
func NewTrackingCode(now time.Time) string {
	return fmt.Sprintf("LAP-%s-%04d", now.Format("20060102"), rand.Intn(10000))
}
