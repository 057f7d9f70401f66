// Copyright (C) 2025 InnerShift AI (engineering@innershift.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/InnerShiftAI/InnerShiftCore/pkg/extensions"
	"github.com/InnerShiftAI/InnerShiftCore/services/engine/handlers"
	"github.com/InnerShiftAI/InnerShiftCore/services/engine/middleware"
	"github.com/InnerShiftAI/InnerShiftCore/services/protocol"
	"github.com/InnerShiftAI/InnerShiftCore/services/sessionstore"
)

// SetupRoutes registers every route of the engine service. Health and
// metrics stay outside the API-key gate so probes and the Prometheus
// scraper need no credentials.
func SetupRoutes(router *gin.Engine, eng *protocol.Engine, store *sessionstore.Store, apiKey string,
	ext extensions.ServiceOptions) {

	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API version 1 group
	v1 := router.Group("/v1")
	v1.Use(middleware.APIKeyAuth(apiKey))
	{
		sessions := v1.Group("/sessions")
		sessions.Use(middleware.TenantRequired())
		{
			sessions.POST("", handlers.StartSession(eng, ext))
			sessions.GET("", handlers.ListSessions(store, ext))
			sessions.POST("/:sessionId/advance", handlers.AdvanceSession(eng, ext))
			sessions.GET("/:sessionId", handlers.GetSession(store, ext))
			sessions.DELETE("/:sessionId", handlers.DeleteSession(store, ext))
			sessions.GET("/:sessionId/stream", handlers.SessionStream(eng, ext))
		}
	}
}
