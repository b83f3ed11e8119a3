// Copyright (C) 2026 Desa Digital Nusantara (dev@desadigital.id)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/desadigital/wargabot/services/assistant/grounding"
)

// KnowledgeStore is the ingestion surface the knowledge endpoints need.
// *grounding.Ingestor satisfies this.
type KnowledgeStore interface {
	Upsert(ctx context.Context, req grounding.UpsertRequest) (*grounding.UpsertResult, error)
	DeleteBySource(ctx context.Context, tenantID, source string) error
}

// CreateKnowledge ingests one knowledge entry for a tenant.
//
// POST /v1/knowledge
func CreateKnowledge(store KnowledgeStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "CreateKnowledge")
		defer span.End()

		var request grounding.UpsertRequest
		if err := c.BindJSON(&request); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Error("Failed to bind knowledge request JSON", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
		span.SetAttributes(
			attribute.String("tenant_id", request.TenantId),
			attribute.String("source", request.Source),
		)

		result, err := store.Upsert(ctx, request)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Error("Knowledge ingestion failed",
				"tenant_id", request.TenantId, "source", request.Source, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to ingest knowledge entry"})
			return
		}

		slog.Info("Knowledge entry ingested",
			"tenant_id", request.TenantId, "source", request.Source,
			"objects", result.ObjectsWritten, "class", result.Class)
		c.JSON(http.StatusOK, result)
	}
}

// DeleteKnowledge removes every object ingested under a source label.
//
// DELETE /v1/knowledge?tenant_id=...&source=...
func DeleteKnowledge(store KnowledgeStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "DeleteKnowledge")
		defer span.End()

		tenantID := c.Query("tenant_id")
		source := c.Query("source")
		if tenantID == "" || source == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "tenant_id and source query parameters are required"})
			return
		}
		span.SetAttributes(
			attribute.String("tenant_id", tenantID),
			attribute.String("source", source),
		)

		if err := store.DeleteBySource(ctx, tenantID, source); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Error("Knowledge deletion failed",
				"tenant_id", tenantID, "source", source, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete knowledge entries"})
			return
		}

		slog.Info("Knowledge entries deleted", "tenant_id", tenantID, "source", source)
		c.JSON(http.StatusOK, gin.H{"status": "deleted", "tenant_id": tenantID, "source": source})
	}
}
