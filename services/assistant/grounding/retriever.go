// Copyright (C) 2026 Desa Digital Nusantara (dev@desadigital.id)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package grounding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/desadigital/wargabot/services/assistant/datatypes"
)

// =============================================================================
// Error Types
// =============================================================================

// RetrievalError wraps failures from the vector store or embedding service.
//
// # Fields
//
//   - Operation: Which step failed ("embed", "query_knowledge", "query_chunks").
//   - Message: Human-readable failure description.
type RetrievalError struct {
	Operation string
	Message   string
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("retrieval failed at %s: %s", e.Operation, e.Message)
}

// IsRetrievalError reports whether err is a *RetrievalError.
func IsRetrievalError(err error) bool {
	var re *RetrievalError
	return errors.As(err, &re)
}

// =============================================================================
// Retriever
// =============================================================================

// GlobalTenant is the tenant id of knowledge shared by every village.
const GlobalTenant = "global"

// RetrieverConfig holds similarity-search tuning knobs.
//
// # Fields
//
//   - TopK: Maximum chunks in the final merged context. Default: 5.
//   - PerClassLimit: Maximum hits requested per Weaviate class. Default: 8.
//   - MinCertainty: Hits below this certainty are dropped. Default: 0.60.
//   - HighThreshold: Top score at or above this yields high confidence when
//     the category filter matched. Default: 0.85.
//   - MediumThreshold: Top score at or above this yields medium confidence. Default: 0.70.
type RetrieverConfig struct {
	TopK            int
	PerClassLimit   int
	MinCertainty    float64
	HighThreshold   float64
	MediumThreshold float64
}

// DefaultRetrieverConfig returns production defaults for retrieval.
func DefaultRetrieverConfig() RetrieverConfig {
	return RetrieverConfig{
		TopK:            5,
		PerClassLimit:   8,
		MinCertainty:    0.60,
		HighThreshold:   0.85,
		MediumThreshold: 0.70,
	}
}

// Retriever runs tenant-scoped vector search over the knowledge classes.
//
// # Description
//
// Queries VillageKnowledge and DocumentChunk in parallel with one query
// embedding, merges the hits by certainty, and assembles the context block
// handed to the generator. Safe for concurrent use; the Weaviate client
// pools connections internally.
type Retriever struct {
	client   *weaviate.Client
	embedder Embedder
	config   RetrieverConfig
}

// NewRetriever creates a retriever over the given Weaviate client.
func NewRetriever(client *weaviate.Client, embedder Embedder, config RetrieverConfig) *Retriever {
	defaults := DefaultRetrieverConfig()
	if config.TopK <= 0 {
		config.TopK = defaults.TopK
	}
	if config.PerClassLimit <= 0 {
		config.PerClassLimit = defaults.PerClassLimit
	}
	if config.MinCertainty <= 0 {
		config.MinCertainty = defaults.MinCertainty
	}
	if config.HighThreshold <= 0 {
		config.HighThreshold = defaults.HighThreshold
	}
	if config.MediumThreshold <= 0 {
		config.MediumThreshold = defaults.MediumThreshold
	}
	return &Retriever{client: client, embedder: embedder, config: config}
}

// Retrieve runs one grounding pass for a user query.
//
// # Description
//
// Embeds the query once, searches both knowledge classes scoped to the
// tenant (plus global entries), and merges the results. When a category is
// given and yields nothing, the search is retried once without the category
// filter; a wrong classifier category must not blank out grounding.
//
// # Inputs
//
//   - ctx: Context for cancellation and tracing.
//   - tenantID: Village whose knowledge to search.
//   - query: User message text.
//   - category: Optional category filter from the classifier. May be "".
//
// # Outputs
//
//   - *datatypes.RetrievalContext: Merged, ranked, tiered context. Never nil
//     on success; an empty result has TotalResults 0 and ContextString "".
//   - error: *RetrievalError on store or embedding failure.
func (r *Retriever) Retrieve(ctx context.Context, tenantID, query, category string) (*datatypes.RetrievalContext, error) {
	ctx, span := tracer.Start(ctx, "grounding.retrieve")
	defer span.End()
	span.SetAttributes(
		attribute.String("grounding.tenant_id", tenantID),
		attribute.String("grounding.category", category),
	)

	vector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, &RetrievalError{Operation: "embed", Message: err.Error()}
	}

	chunks, err := r.search(ctx, tenantID, vector, category)
	if err != nil {
		return nil, err
	}

	categoryUsed := category
	if len(chunks) == 0 && category != "" {
		slog.Debug("category-filtered retrieval empty, retrying unfiltered",
			"tenant_id", tenantID, "category", category)
		chunks, err = r.search(ctx, tenantID, vector, "")
		if err != nil {
			return nil, err
		}
		categoryUsed = ""
	}

	rc := r.assemble(chunks, categoryUsed)
	span.SetAttributes(
		attribute.Int("grounding.total_results", rc.TotalResults),
		attribute.String("grounding.confidence", string(rc.Confidence)),
		attribute.Int("grounding.conflicts", len(rc.Conflicts)),
	)
	return rc, nil
}

// search queries both classes concurrently and merges hits above the
// certainty floor.
func (r *Retriever) search(ctx context.Context, tenantID string, vector []float32, category string) ([]datatypes.RetrievedChunk, error) {
	var knowledgeHits, chunkHits []datatypes.RetrievedChunk

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hits, err := r.queryKnowledge(gctx, tenantID, vector, category)
		if err != nil {
			return err
		}
		knowledgeHits = hits
		return nil
	})
	g.Go(func() error {
		hits, err := r.queryChunks(gctx, tenantID, vector, category)
		if err != nil {
			return err
		}
		chunkHits = hits
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := append(knowledgeHits, chunkHits...)
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Score > merged[j].Score
	})
	if len(merged) > r.config.TopK {
		merged = merged[:r.config.TopK]
	}
	return merged, nil
}

func (r *Retriever) queryKnowledge(ctx context.Context, tenantID string, vector []float32, category string) ([]datatypes.RetrievedChunk, error) {
	fields := []graphql.Field{
		{Name: "content"},
		{Name: "source"},
		{Name: "category"},
		{Name: "tenant_id"},
		{Name: "authoritative"},
		{Name: "_additional", Fields: []graphql.Field{
			{Name: "id"},
			{Name: "certainty"},
		}},
	}

	resp, err := r.client.GraphQL().Get().
		WithClassName(datatypes.ClassVillageKnowledge).
		WithFields(fields...).
		WithWhere(r.scopeFilter(tenantID, category)).
		WithNearVector(r.client.GraphQL().NearVectorArgBuilder().WithVector(vector)).
		WithLimit(r.config.PerClassLimit).
		Do(ctx)
	if err != nil {
		return nil, &RetrievalError{Operation: "query_knowledge", Message: err.Error()}
	}

	parsed, err := datatypes.ParseGraphQLResponse[datatypes.KnowledgeQueryResponse](resp)
	if err != nil {
		return nil, &RetrievalError{Operation: "query_knowledge", Message: err.Error()}
	}

	hits := make([]datatypes.RetrievedChunk, 0, len(parsed.Get.VillageKnowledge))
	for _, hit := range parsed.Get.VillageKnowledge {
		if hit.Additional.Certainty < r.config.MinCertainty {
			continue
		}
		hits = append(hits, datatypes.RetrievedChunk{
			Content:       hit.Content,
			Source:        hit.Source,
			Category:      hit.Category,
			Score:         hit.Additional.Certainty,
			Kind:          datatypes.SourceKnowledge,
			Authoritative: hit.Authoritative,
		})
	}
	return hits, nil
}

func (r *Retriever) queryChunks(ctx context.Context, tenantID string, vector []float32, category string) ([]datatypes.RetrievedChunk, error) {
	fields := []graphql.Field{
		{Name: "content"},
		{Name: "source"},
		{Name: "category"},
		{Name: "tenant_id"},
		{Name: "_additional", Fields: []graphql.Field{
			{Name: "id"},
			{Name: "certainty"},
		}},
	}

	resp, err := r.client.GraphQL().Get().
		WithClassName(datatypes.ClassDocumentChunk).
		WithFields(fields...).
		WithWhere(r.scopeFilter(tenantID, category)).
		WithNearVector(r.client.GraphQL().NearVectorArgBuilder().WithVector(vector)).
		WithLimit(r.config.PerClassLimit).
		Do(ctx)
	if err != nil {
		return nil, &RetrievalError{Operation: "query_chunks", Message: err.Error()}
	}

	parsed, err := datatypes.ParseGraphQLResponse[datatypes.DocumentChunkQueryResponse](resp)
	if err != nil {
		return nil, &RetrievalError{Operation: "query_chunks", Message: err.Error()}
	}

	hits := make([]datatypes.RetrievedChunk, 0, len(parsed.Get.DocumentChunk))
	for _, hit := range parsed.Get.DocumentChunk {
		if hit.Additional.Certainty < r.config.MinCertainty {
			continue
		}
		hits = append(hits, datatypes.RetrievedChunk{
			Content:  hit.Content,
			Source:   hit.Source,
			Category: hit.Category,
			Score:    hit.Additional.Certainty,
			Kind:     datatypes.SourceDocument,
		})
	}
	return hits, nil
}

// scopeFilter limits hits to the tenant's own entries plus global ones,
// optionally narrowed to a category.
func (r *Retriever) scopeFilter(tenantID, category string) *filters.WhereBuilder {
	tenantScope := filters.Where().
		WithOperator(filters.Or).
		WithOperands([]*filters.WhereBuilder{
			filters.Where().
				WithPath([]string{"tenant_id"}).
				WithOperator(filters.Equal).
				WithValueString(tenantID),
			filters.Where().
				WithPath([]string{"tenant_id"}).
				WithOperator(filters.Equal).
				WithValueString(GlobalTenant),
		})

	if category == "" {
		return tenantScope
	}

	return filters.Where().
		WithOperator(filters.And).
		WithOperands([]*filters.WhereBuilder{
			tenantScope,
			filters.Where().
				WithPath([]string{"category"}).
				WithOperator(filters.Equal).
				WithValueString(category),
		})
}

// assemble builds the final RetrievalContext from ranked chunks.
func (r *Retriever) assemble(chunks []datatypes.RetrievedChunk, categoryUsed string) *datatypes.RetrievalContext {
	rc := &datatypes.RetrievalContext{
		Chunks:       chunks,
		TotalResults: len(chunks),
		CategoryUsed: categoryUsed,
		Confidence:   datatypes.ConfidenceLow,
	}
	if len(chunks) == 0 {
		return rc
	}

	// High confidence needs both a strong top score and a confirmed category
	// filter. A high score found only after dropping the filter (or with no
	// category hint at all) is adequate, not confirmed.
	if chunks[0].Score >= r.config.HighThreshold && categoryUsed != "" {
		rc.Confidence = datatypes.ConfidenceHigh
	} else if chunks[0].Score >= r.config.MediumThreshold {
		rc.Confidence = datatypes.ConfidenceMedium
	}

	rc.Conflicts = DetectConflicts(chunks)
	rc.ContextString = renderContext(chunks, rc.Conflicts)
	return rc
}

// maxContextLength bounds the rendered context so prompt size stays
// predictable regardless of chunk sizes.
const maxContextLength = 6000

// renderContext formats chunks into the text block given to the generator.
// Chunks on the losing side of an auto-resolved conflict are left out of the
// rendered text but stay in the chunk list for logging. Rendering stops at
// the chunk that would push the block past maxContextLength; chunks are
// already ranked, so the tail is the least relevant.
func renderContext(chunks []datatypes.RetrievedChunk, conflicts []datatypes.KnowledgeConflict) string {
	suppressed := make(map[string]bool)
	for _, c := range conflicts {
		if c.AutoResolved {
			suppressed[c.SourceB] = true
		}
	}

	var sb strings.Builder
	n := 0
	for _, chunk := range chunks {
		if suppressed[chunk.Source] {
			continue
		}
		if n > 0 && sb.Len()+len(chunk.Content) > maxContextLength {
			break
		}
		n++
		fmt.Fprintf(&sb, "[Sumber %d: %s]\n%s\n\n", n, chunk.Source, chunk.Content)
	}
	return strings.TrimSpace(sb.String())
}
