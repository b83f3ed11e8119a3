// Copyright (C) 2026 Desa Digital Nusantara (dev@desadigital.id)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package llm defines the generative-provider boundary for the assistant core.
package llm

import "context"

// GenerationParams tunes one generation call.
type GenerationParams struct {
	Temperature    *float32 `json:"temperature"`
	TopP           *float32 `json:"top_p"`
	MaxTokens      *int     `json:"max_tokens"`
	Stop           []string `json:"stop"`
	ResponseFormat string   `json:"response_format"` // "" or "json"
}

// Usage carries the provider's token accounting for one call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// Result is the outcome of one successful generation.
type Result struct {
	Text  string `json:"text"`
	Usage Usage  `json:"usage"`
}

// Client is the standard interface for any generative backend.
type Client interface {
	Generate(ctx context.Context, model, prompt string, params GenerationParams) (*Result, error)
}

// Factory builds a Client bound to one credential. The router uses it to
// construct a fresh client per (credential, model) plan entry.
type Factory interface {
	ClientFor(apiKey, baseURL string) Client
}
