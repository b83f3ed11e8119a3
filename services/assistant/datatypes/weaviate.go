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

	"github.com/weaviate/weaviate/entities/models"
)

// =============================================================================
// Generic GraphQL Response Parser
// =============================================================================

// ParseGraphQLResponse parses a Weaviate GraphQL response into the target type.
//
// # Description
//
// Encapsulates the marshal/unmarshal round trip required to convert Weaviate's
// dynamic response (map[string]models.JSONObject) into a strongly-typed Go
// struct. The target type T must carry json tags matching the response shape.
//
// # Example
//
//	resp, err := client.GraphQL().Get().WithClassName("VillageKnowledge").Do(ctx)
//	if err != nil { ... }
//	parsed, err := datatypes.ParseGraphQLResponse[KnowledgeQueryResponse](resp)
//
// # Limitations
//
//   - Type mismatches produce zero values, not errors.
func ParseGraphQLResponse[T any](resp *models.GraphQLResponse) (*T, error) {
	if resp == nil {
		return nil, fmt.Errorf("nil GraphQL response")
	}

	respBytes, err := json.Marshal(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal GraphQL response data: %w", err)
	}

	var result T
	if err := json.Unmarshal(respBytes, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal into target type: %w", err)
	}

	return &result, nil
}

// =============================================================================
// Class Names
// =============================================================================

// Weaviate class names used by the grounding layer.
const (
	ClassVillageKnowledge = "VillageKnowledge"
	ClassDocumentChunk    = "DocumentChunk"
)

// =============================================================================
// Query Response Types
// =============================================================================

// KnowledgeQueryResponse is the typed shape of a VillageKnowledge nearVector
// query.
type KnowledgeQueryResponse struct {
	Get struct {
		VillageKnowledge []KnowledgeResult `json:"VillageKnowledge"`
	} `json:"Get"`
}

// KnowledgeResult is a single VillageKnowledge hit.
type KnowledgeResult struct {
	Content       string `json:"content"`
	Source        string `json:"source"`
	Category      string `json:"category"`
	TenantId      string `json:"tenant_id"`
	Authoritative bool   `json:"authoritative"`
	Additional    struct {
		ID        string  `json:"id"`
		Certainty float64 `json:"certainty"`
	} `json:"_additional"`
}

// DocumentChunkQueryResponse is the typed shape of a DocumentChunk nearVector
// query.
type DocumentChunkQueryResponse struct {
	Get struct {
		DocumentChunk []DocumentChunkResult `json:"DocumentChunk"`
	} `json:"Get"`
}

// DocumentChunkResult is a single DocumentChunk hit.
type DocumentChunkResult struct {
	Content    string `json:"content"`
	Source     string `json:"source"`
	Category   string `json:"category"`
	TenantId   string `json:"tenant_id"`
	Additional struct {
		ID        string  `json:"id"`
		Certainty float64 `json:"certainty"`
	} `json:"_additional"`
}

// =============================================================================
// Object Shapes for Upsert
// =============================================================================

// KnowledgeProperties is the property set written when upserting a
// VillageKnowledge object.
type KnowledgeProperties struct {
	Content       string `json:"content"`
	Source        string `json:"source"`
	Category      string `json:"category"`
	TenantId      string `json:"tenant_id"`
	Authoritative bool   `json:"authoritative"`
	IngestedAt    int64  `json:"ingested_at"`
}
