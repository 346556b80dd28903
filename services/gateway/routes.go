// Copyright (C) 2025 Estuda AI (eng@estuda.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package gateway

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers all gateway routes with the router.
//
// Description:
//
//	Registers the /v1/gateway/* endpoints with the given Gin router group.
//	Everything except the health probes sits behind identity resolution:
//	classification is platform-internal, and chat and quota status are
//	per-user by definition.
//
// Inputs:
//
//	rg - Gin router group (typically /v1)
//	handlers - The handlers instance
//
// Endpoints:
//
//	POST /v1/gateway/classify - Classify a message to a module and intent
//	POST /v1/gateway/chat - Admission-wrapped chat call
//	GET  /v1/gateway/quota - Current month's quota status for the caller
//	GET  /v1/gateway/health - Health check
//	GET  /v1/gateway/ready - Readiness check (probes the quota store)
//
// Example:
//
//	handlers := gateway.NewHandlers(engine, quotaSvc, recorder, ai, logger)
//
//	v1 := router.Group("/v1")
//	gateway.RegisterRoutes(v1, handlers)
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	gw := rg.Group("/gateway")
	{
		// Health checks are unauthenticated for the orchestrator's probes.
		gw.GET("/health", handlers.HandleHealth)
		gw.GET("/ready", handlers.HandleReady)

		authed := gw.Group("", RequireIdentity())
		{
			authed.POST("/classify", handlers.HandleClassify)
			authed.POST("/chat", handlers.HandleChat)
			authed.GET("/quota", handlers.HandleQuotaStatus)
		}
	}
}
