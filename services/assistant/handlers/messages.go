// Copyright (C) 2026 Desa Digital Nusantara (dev@desadigital.id)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package handlers contains the gin HTTP handlers for the assistant service.
package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/desadigital/wargabot/services/assistant/datatypes"
)

var tracer = otel.Tracer("wargabot.assistant.handlers")

// MessageHandler is the orchestrator surface the message endpoint needs.
// *assistant.Orchestrator satisfies this.
type MessageHandler interface {
	Handle(ctx context.Context, req *datatypes.HandleRequest) (*datatypes.HandleResult, error)
}

// HandleMessage processes one inbound resident message.
//
// POST /v1/messages
func HandleMessage(orchestrator MessageHandler) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "HandleMessage")
		defer span.End()

		var request datatypes.HandleRequest
		if err := c.BindJSON(&request); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Error("Failed to bind message request JSON", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
		span.SetAttributes(
			attribute.String("tenant_id", request.TenantId),
			attribute.Int("message_length", len(request.Message)),
		)

		result, err := orchestrator.Handle(ctx, &request)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Warn("Rejected message request", "request_id", request.Id, "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		span.SetAttributes(attribute.String("intent", string(result.Intent)))
		c.JSON(http.StatusOK, result)
	}
}
