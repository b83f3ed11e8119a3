// Copyright (C) 2026 Desa Digital Nusantara (dev@desadigital.id)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"errors"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// =============================================================================
// Provider Error Classification
// =============================================================================

// The provider surfaces failures either as *openai.APIError with a status
// code, or as transport errors whose only signal is the message text. Both
// shapes are classified here so the router can decide between skipping the
// credential, cooling the pair down, or retrying.

// IsRateLimitError reports whether the error is a quota/rate-limit rejection.
func IsRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == http.StatusTooManyRequests {
			return true
		}
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "quota") ||
		strings.Contains(msg, "resource has been exhausted") ||
		strings.Contains(msg, "429")
}

// IsInvalidCredentialError reports whether the error means the credential
// itself is unusable and must not be retried within this plan.
func IsInvalidCredentialError(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == http.StatusUnauthorized ||
			apiErr.HTTPStatusCode == http.StatusForbidden {
			return true
		}
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "api key not valid") ||
		strings.Contains(msg, "invalid api key") ||
		strings.Contains(msg, "invalid authentication") ||
		strings.Contains(msg, "permission denied") ||
		strings.Contains(msg, "unauthorized")
}

// IsModelNotFoundError reports whether the requested model does not exist for
// this credential. Retrying the same pair cannot succeed.
func IsModelNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == http.StatusNotFound {
			return true
		}
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "model not found") ||
		strings.Contains(msg, "does not exist") ||
		strings.Contains(msg, "is not found")
}
