// Copyright (C) 2026 Desa Digital Nusantara (dev@desadigital.id)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/desadigital/wargabot/services/assistant/handlers"
	"github.com/desadigital/wargabot/services/assistant/routing"
)

func SetupRoutes(router *gin.Engine, orchestrator handlers.MessageHandler,
	knowledge handlers.KnowledgeStore, pool *routing.Pool) {

	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API version 1 group
	v1 := router.Group("/v1")
	{
		v1.POST("/messages", handlers.HandleMessage(orchestrator))
		if knowledge != nil {
			v1.POST("/knowledge", handlers.CreateKnowledge(knowledge))
			v1.DELETE("/knowledge", handlers.DeleteKnowledge(knowledge))
		}
		if pool != nil {
			v1.GET("/credentials", handlers.ListCredentials(pool))
		}
	}
}
