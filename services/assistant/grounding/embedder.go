// Copyright (C) 2026 Desa Digital Nusantara (dev@desadigital.id)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package grounding retrieves village knowledge for answer generation.
//
// The package embeds the user query, runs vector search over the knowledge
// and document-chunk classes scoped to the requesting tenant, merges and
// re-ranks the hits, assigns a confidence tier, and detects conflicting
// facts between sources. It also handles knowledge ingestion, splitting
// long texts into chunks before upsert.
package grounding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("wargabot.assistant.grounding")

// =============================================================================
// Embedding Provider
// =============================================================================

// Embedder computes a vector embedding for a text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// EmbeddingError wraps failures from the embedding service.
//
// # Fields
//
//   - StatusCode: HTTP status from the service, 0 for transport errors.
//   - Message: Response body or transport error text.
type EmbeddingError struct {
	StatusCode int
	Message    string
}

func (e *EmbeddingError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("embedding service unreachable: %s", e.Message)
	}
	return fmt.Sprintf("embedding service returned %d: %s", e.StatusCode, e.Message)
}

// maxEmbedLength caps the text sent to the embedding service. Longer inputs
// are truncated; the tail adds little to the vector and blows the latency
// budget.
const maxEmbedLength = 2000

type embeddingRequest struct {
	Text string `json:"text"`
}

type embeddingResponse struct {
	Embedding []float32 `json:"embedding"`
}

// HTTPEmbedder calls an external embedding service over HTTP.
//
// # Description
//
// Posts {"text": ...} to the configured URL and expects
// {"embedding": [...]} back. The URL typically comes from the
// EMBEDDING_SERVICE_URL environment variable.
type HTTPEmbedder struct {
	url    string
	client *http.Client
}

// NewHTTPEmbedder creates an embedder for the given service URL.
func NewHTTPEmbedder(url string) *HTTPEmbedder {
	return &HTTPEmbedder{
		url: url,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Embed computes the embedding for one text.
//
// # Outputs
//
//   - []float32: The embedding vector.
//   - error: *EmbeddingError on service failure, wrapped errors otherwise.
func (e *HTTPEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if len(text) > maxEmbedLength {
		text = text[:maxEmbedLength]
	}

	body, err := json.Marshal(embeddingRequest{Text: text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, &EmbeddingError{Message: err.Error()}
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			slog.Warn("failed to close embedding response body", "error", cerr)
		}
	}()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, &EmbeddingError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	var parsed embeddingResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse embedding response: %w", err)
	}
	if len(parsed.Embedding) == 0 {
		return nil, fmt.Errorf("embedding service returned an empty vector")
	}
	return parsed.Embedding, nil
}

// =============================================================================
// Caching Embedder
// =============================================================================

// CachingEmbedder wraps an Embedder with an LRU cache keyed by exact text.
//
// # Description
//
// Repeated queries ("jam buka kantor desa") dominate traffic, so caching
// their vectors removes most embedding-service round trips. Entries are
// evicted LRU; there is no TTL because embeddings of the same text do not
// go stale.
type CachingEmbedder struct {
	inner Embedder
	cache *lru.Cache[string, []float32]
}

// NewCachingEmbedder wraps inner with a cache of the given size.
//
// # Outputs
//
//   - *CachingEmbedder: Caching wrapper.
//   - error: Non-nil if size is not positive.
func NewCachingEmbedder(inner Embedder, size int) (*CachingEmbedder, error) {
	cache, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding cache: %w", err)
	}
	return &CachingEmbedder{inner: inner, cache: cache}, nil
}

func (c *CachingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if vec, ok := c.cache.Get(text); ok {
		return vec, nil
	}
	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Add(text, vec)
	return vec, nil
}
