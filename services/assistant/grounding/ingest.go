// Copyright (C) 2026 Desa Digital Nusantara (dev@desadigital.id)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package grounding

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/tmc/langchaingo/textsplitter"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate/entities/models"

	"github.com/desadigital/wargabot/services/assistant/datatypes"
)

// =============================================================================
// Knowledge Ingestion
// =============================================================================

// Chunking parameters for long knowledge texts.
const (
	chunkSize    = 800
	chunkOverlap = 100

	// shortEntryLimit is the length under which an entry is stored whole
	// as a VillageKnowledge object instead of being split into chunks.
	shortEntryLimit = 1200
)

// UpsertRequest describes one knowledge entry to ingest.
//
// # Fields
//
//   - TenantId: Owning village, or "global" for shared knowledge.
//   - Source: Human-readable source label ("perdes_12_2025.pdf", "profil_desa").
//   - Category: Knowledge category for filtered retrieval. May be "".
//   - Content: Full entry text.
//   - Authoritative: Marks the entry as the tenant's official word; it wins
//     conflicts against non-authoritative entries.
type UpsertRequest struct {
	TenantId      string `json:"tenant_id" binding:"required"`
	Source        string `json:"source" binding:"required"`
	Category      string `json:"category"`
	Content       string `json:"content" binding:"required"`
	Authoritative bool   `json:"authoritative"`
}

// UpsertResult summarizes one ingestion.
type UpsertResult struct {
	ObjectsWritten int    `json:"objects_written"`
	Class          string `json:"class"`
}

// Ingestor writes and deletes knowledge entries in Weaviate.
//
// # Description
//
// Short entries become single VillageKnowledge objects. Long entries are
// split with a recursive character splitter and stored as DocumentChunk
// objects, one vector per chunk. Object IDs are derived from a content
// hash so re-ingesting the same text overwrites instead of duplicating.
type Ingestor struct {
	client   *weaviate.Client
	embedder Embedder
}

// NewIngestor creates an ingestor over the given Weaviate client.
func NewIngestor(client *weaviate.Client, embedder Embedder) *Ingestor {
	return &Ingestor{client: client, embedder: embedder}
}

// Upsert ingests one knowledge entry.
//
// # Outputs
//
//   - *UpsertResult: Count of objects written and the class used.
//   - error: Non-nil if embedding or the batch write fails.
func (in *Ingestor) Upsert(ctx context.Context, req UpsertRequest) (*UpsertResult, error) {
	ctx, span := tracer.Start(ctx, "grounding.upsert")
	defer span.End()

	if len(req.Content) <= shortEntryLimit {
		return in.upsertKnowledge(ctx, req)
	}
	return in.upsertChunks(ctx, req)
}

func (in *Ingestor) upsertKnowledge(ctx context.Context, req UpsertRequest) (*UpsertResult, error) {
	vector, err := in.embedder.Embed(ctx, req.Content)
	if err != nil {
		return nil, fmt.Errorf("failed to embed knowledge entry: %w", err)
	}

	obj := &models.Object{
		Class:  datatypes.ClassVillageKnowledge,
		ID:     contentID(req.TenantId, req.Source, req.Content),
		Vector: vector,
		Properties: map[string]interface{}{
			"content":       req.Content,
			"source":        req.Source,
			"category":      req.Category,
			"tenant_id":     req.TenantId,
			"authoritative": req.Authoritative,
			"ingested_at":   time.Now().UnixMilli(),
		},
	}

	written, err := in.batchWrite(ctx, []*models.Object{obj})
	if err != nil {
		return nil, err
	}
	slog.Info("knowledge entry upserted",
		"tenant_id", req.TenantId, "source", req.Source, "objects", written)
	return &UpsertResult{ObjectsWritten: written, Class: datatypes.ClassVillageKnowledge}, nil
}

func (in *Ingestor) upsertChunks(ctx context.Context, req UpsertRequest) (*UpsertResult, error) {
	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(chunkSize),
		textsplitter.WithChunkOverlap(chunkOverlap),
	)
	chunks, err := splitter.SplitText(req.Content)
	if err != nil {
		return nil, fmt.Errorf("failed to split content: %w", err)
	}
	if len(chunks) == 0 {
		slog.Warn("no chunks produced after splitting", "source", req.Source)
		return &UpsertResult{Class: datatypes.ClassDocumentChunk}, nil
	}

	objects := make([]*models.Object, 0, len(chunks))
	for i, chunk := range chunks {
		vector, err := in.embedder.Embed(ctx, chunk)
		if err != nil {
			return nil, fmt.Errorf("failed to embed chunk %d: %w", i+1, err)
		}
		chunkSource := fmt.Sprintf("%s_part_%d", req.Source, i+1)
		objects = append(objects, &models.Object{
			Class:  datatypes.ClassDocumentChunk,
			ID:     contentID(req.TenantId, chunkSource, chunk),
			Vector: vector,
			Properties: map[string]interface{}{
				"content":       chunk,
				"source":        chunkSource,
				"parent_source": req.Source,
				"category":      req.Category,
				"tenant_id":     req.TenantId,
				"ingested_at":   time.Now().UnixMilli(),
			},
		})
	}

	written, err := in.batchWrite(ctx, objects)
	if err != nil {
		return nil, err
	}
	slog.Info("document ingested",
		"tenant_id", req.TenantId, "source", req.Source,
		"chunks", len(chunks), "objects_written", written)
	return &UpsertResult{ObjectsWritten: written, Class: datatypes.ClassDocumentChunk}, nil
}

func (in *Ingestor) batchWrite(ctx context.Context, objects []*models.Object) (int, error) {
	resp, err := in.client.Batch().ObjectsBatcher().
		WithObjects(objects...).
		Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to write objects to the vector store: %w", err)
	}

	written := 0
	for _, item := range resp {
		if item.Result != nil && item.Result.Status != nil && *item.Result.Status == "SUCCESS" {
			written++
			continue
		}
		if item.Result != nil && item.Result.Errors != nil {
			for _, errItem := range item.Result.Errors.Error {
				slog.Warn("vector store rejected batch item", "error", errItem.Message)
			}
		}
	}
	return written, nil
}

// DeleteBySource removes every object a tenant ingested under a source label,
// across both knowledge classes.
//
// # Outputs
//
//   - error: Non-nil if either class delete fails.
func (in *Ingestor) DeleteBySource(ctx context.Context, tenantID, source string) error {
	ctx, span := tracer.Start(ctx, "grounding.delete_by_source")
	defer span.End()

	tenantFilter := filters.Where().
		WithPath([]string{"tenant_id"}).
		WithOperator(filters.Equal).
		WithValueString(tenantID)

	// Chunks carry the original label in parent_source, knowledge entries
	// in source.
	knowledgeFilter := filters.Where().
		WithOperator(filters.And).
		WithOperands([]*filters.WhereBuilder{
			tenantFilter,
			filters.Where().
				WithPath([]string{"source"}).
				WithOperator(filters.Equal).
				WithValueString(source),
		})
	chunkFilter := filters.Where().
		WithOperator(filters.And).
		WithOperands([]*filters.WhereBuilder{
			tenantFilter,
			filters.Where().
				WithPath([]string{"parent_source"}).
				WithOperator(filters.Equal).
				WithValueString(source),
		})

	if _, err := in.client.Batch().ObjectsBatchDeleter().
		WithClassName(datatypes.ClassVillageKnowledge).
		WithOutput("minimal").
		WithWhere(knowledgeFilter).
		Do(ctx); err != nil {
		return fmt.Errorf("failed to delete knowledge entries: %w", err)
	}

	if _, err := in.client.Batch().ObjectsBatchDeleter().
		WithClassName(datatypes.ClassDocumentChunk).
		WithOutput("minimal").
		WithWhere(chunkFilter).
		Do(ctx); err != nil {
		return fmt.Errorf("failed to delete document chunks: %w", err)
	}

	slog.Info("knowledge deleted", "tenant_id", tenantID, "source", source)
	return nil
}

// contentID derives a stable object ID from tenant, source and content so
// identical re-ingestion overwrites in place.
func contentID(tenantID, source, content string) strfmt.UUID {
	hash := sha256.Sum256([]byte(tenantID + "\x00" + source + "\x00" + content))
	id, _ := uuid.FromBytes(hash[:16])
	return strfmt.UUID(id.String())
}
