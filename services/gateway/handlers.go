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
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/EstudaAI/EstudaGateway/services/gateway/classifier"
	"github.com/EstudaAI/EstudaGateway/services/gateway/quota"
)

// defaultChatModel is the model assumed for the pre-call cost estimate. The
// actual model is whatever the downstream handler picks; reconciliation uses
// its reported figures, so this only has to be in the right ballpark.
const defaultChatModel = "gpt-4o"

// gatewayTracer traces the admit-then-invoke request path.
var gatewayTracer = otel.Tracer("estuda.gateway.http")

// Handlers holds the HTTP handlers for the gateway endpoints.
//
// Thread Safety: Safe for concurrent use; all fields are set at construction
// and never mutated.
type Handlers struct {
	engine   *classifier.Engine
	quota    *quota.Service
	recorder *quota.Recorder
	ai       AIHandler
	logger   *slog.Logger
}

// NewHandlers creates the gateway handlers.
//
// Inputs:
//   - engine: Classification engine. Must not be nil.
//   - svc: Quota admission service. Must not be nil.
//   - recorder: Async usage recorder. Must not be nil.
//   - ai: Downstream AI handler invoked for admitted chat requests. Must not
//     be nil.
//   - logger: Logger. May be nil.
func NewHandlers(engine *classifier.Engine, svc *quota.Service, recorder *quota.Recorder, ai AIHandler, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		engine:   engine,
		quota:    svc,
		recorder: recorder,
		ai:       ai,
		logger:   logger,
	}
}

// getOrCreateRequestID returns the inbound X-Request-ID, minting one when
// the caller did not send any, and echoes it on the response.
func getOrCreateRequestID(c *gin.Context) string {
	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.New().String()
	}
	c.Header("X-Request-ID", requestID)
	return requestID
}

// HandleClassify handles POST /v1/gateway/classify.
//
// Description:
//
//	Pure classification: no quota check, no downstream call. Used by
//	platform services that want the routing decision without admission.
//
// Response:
//
//	200 OK: ClassificationResult
//	400 Bad Request: Missing text field
func (h *Handlers) HandleClassify(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := h.logger.With("request_id", requestID, "handler", "HandleClassify")

	var req ClassifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "text field is required",
			Code:  "MISSING_PARAMETER",
		})
		return
	}

	result := h.engine.Decide(c.Request.Context(), req.Text, req.Context)

	logger.Info("classified",
		slog.String("module", result.ModuleID),
		slog.String("intent", result.Intent),
		slog.Float64("confidence", result.Confidence),
		slog.String("trace_id", result.TraceID),
	)
	c.JSON(http.StatusOK, result)
}

// HandleChat handles POST /v1/gateway/chat.
//
// Description:
//
//	The full admission path: classify, estimate, check quota, invoke the
//	downstream AI handler, and reconcile actual usage asynchronously.
//	Classification failures and quota-store failures both degrade to
//	letting the request through; only missing auth (handled by middleware)
//	and an exhausted budget stop a request before the downstream call.
//
// Response:
//
//	200 OK: ChatResponse
//	400 Bad Request: Missing message field
//	429 Too Many Requests: QuotaDeniedResponse with violated dimensions
//	502 Bad Gateway: Downstream handler failure
func (h *Handlers) HandleChat(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := h.logger.With("request_id", requestID, "handler", "HandleChat")

	identity, ok := identityFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error: "authentication required",
			Code:  "UNAUTHORIZED",
		})
		return
	}

	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "message field is required",
			Code:  "MISSING_PARAMETER",
		})
		return
	}

	ctx, span := gatewayTracer.Start(c.Request.Context(), "gateway.chat")
	defer span.End()

	// Routing decision. Never fails; the engine falls back internally.
	result := h.engine.Decide(ctx, req.Message, req.Context)
	span.SetAttributes(
		attribute.String("gateway.module", result.ModuleID),
		attribute.String("gateway.intent", result.Intent),
	)

	// Admission. A quota-store outage fails open, visibly.
	estTokens := EstimateTokens(req.Message, req.Context)
	estCost := quota.EstimateCostUSD(defaultChatModel, estTokens-responseAllowanceTokens, responseAllowanceTokens)

	decision, err := h.quota.CheckQuota(ctx, identity.UserID, identity.Role, estTokens, estCost)
	switch {
	case err != nil:
		quota.RecordFailedOpen()
		logger.Warn("quota check failed open",
			slog.String("user_id", identity.UserID),
			slog.String("error", SafeLogString(err.Error())),
		)
	case !decision.Allowed:
		span.SetAttributes(attribute.Bool("gateway.quota_denied", true))
		c.JSON(http.StatusTooManyRequests, newQuotaDeniedResponse(decision))
		return
	}

	// Downstream call.
	aiResult, aiErr := h.invokeDownstream(ctx, AIRequest{
		UserID:         identity.UserID,
		ConversationID: req.ConversationID,
		Module:         result.ModuleID,
		Intent:         result.Intent,
		Message:        req.Message,
		Context:        req.Context,
	})

	h.submitUsage(identity.UserID, result.ModuleID, c.FullPath(), aiResult, aiErr == nil)

	if aiErr != nil {
		span.RecordError(aiErr)
		span.SetStatus(codes.Error, "downstream failure")
		logger.Error("downstream handler failed",
			slog.String("module", result.ModuleID),
			slog.String("error", SafeLogString(aiErr.Error())),
		)
		c.JSON(http.StatusBadGateway, ErrorResponse{
			Error: aiErr.Error(),
			Code:  "DOWNSTREAM_FAILURE",
		})
		return
	}

	resp := ChatResponse{
		Reply:    aiResult.Reply,
		Module:   result.ModuleID,
		Intent:   result.Intent,
		Provider: aiResult.Provider,
		Model:    aiResult.Model,
		TraceID:  result.TraceID,
	}
	c.JSON(http.StatusOK, resp)
}

// invokeDownstream runs the AI handler inside its own span.
func (h *Handlers) invokeDownstream(ctx context.Context, req AIRequest) (*AIResult, error) {
	ctx, span := gatewayTracer.Start(ctx, "gateway.downstream")
	defer span.End()
	span.SetAttributes(attribute.String("gateway.module", req.Module))

	result, err := h.ai.Handle(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "downstream error")
	}
	return result, err
}

// submitUsage queues the usage row for async reconciliation. A nil result
// from a failed call may still carry partial figures; a nil result with no
// figures is logged as a zero-token failed row so the attempt is auditable.
func (h *Handlers) submitUsage(userID, module, endpoint string, result *AIResult, success bool) {
	entry := &quota.UsageLogEntry{
		UserID:      userID,
		Module:      module,
		APIEndpoint: endpoint,
		Success:     success,
	}
	if result != nil {
		entry.Provider = result.Provider
		entry.Model = result.Model
		entry.PromptTokens = result.PromptTokens
		entry.CompletionTokens = result.CompletionTokens
		entry.CostUSD = result.CostUSD
		if entry.CostUSD == 0 && (result.PromptTokens > 0 || result.CompletionTokens > 0) {
			entry.CostUSD = quota.EstimateCostUSD(result.Model, result.PromptTokens, result.CompletionTokens)
		}
	}
	h.recorder.Submit(entry)
}

// HandleQuotaStatus handles GET /v1/gateway/quota.
//
// Response:
//
//	200 OK: QuotaStatusResponse
//	503 Service Unavailable: Quota store unreachable
func (h *Handlers) HandleQuotaStatus(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := h.logger.With("request_id", requestID, "handler", "HandleQuotaStatus")

	identity, ok := identityFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error: "authentication required",
			Code:  "UNAUTHORIZED",
		})
		return
	}

	rec, err := h.quota.CurrentRecord(c.Request.Context(), identity.UserID, identity.Role)
	if err != nil {
		logger.Warn("quota status unavailable", slog.String("error", SafeLogString(err.Error())))
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error: "quota store unavailable",
			Code:  "STORE_UNAVAILABLE",
		})
		return
	}

	remaining := int64(-1)
	if rec.TokenLimit > 0 {
		remaining = rec.TokenLimit - rec.TokenUsed
	}
	c.JSON(http.StatusOK, QuotaStatusResponse{
		UserID:          rec.UserID,
		Month:           rec.Month,
		Role:            rec.Role,
		TokenLimit:      rec.TokenLimit,
		TokenUsed:       rec.TokenUsed,
		RemainingTokens: remaining,
		CostLimitUSD:    rec.CostLimitUSD,
		CostUsedUSD:     rec.CostUsedUSD,
		Active:          rec.IsActive,
	})
}

// HandleHealth handles GET /v1/gateway/health. Liveness only.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// HandleReady handles GET /v1/gateway/ready.
//
// Description:
//
//	Readiness probes the quota store with a throwaway lookup. A not-found
//	answer proves the store is reachable; only an infrastructure error
//	makes the probe fail.
func (h *Handlers) HandleReady(c *gin.Context) {
	if err := h.quota.ProbeStore(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
