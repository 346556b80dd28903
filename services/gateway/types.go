// Copyright (C) 2025 Estuda AI (eng@estuda.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package gateway is the request admission layer in front of every
// AI-backed endpoint: it classifies the inbound message to a module,
// checks the user's token and cost budgets, invokes the downstream AI
// handler, and reconciles actual usage afterward.
package gateway

import (
	"context"

	"github.com/EstudaAI/EstudaGateway/services/gateway/quota"
)

// =============================================================================
// Request / Response DTOs
// =============================================================================

// ClassifyRequest is the body of POST /v1/gateway/classify.
type ClassifyRequest struct {
	// Text is the student message to classify. Required.
	Text string `json:"text" binding:"required"`

	// Context is optional prior conversation text. It sharpens intent
	// detection but never changes which fields are required.
	Context string `json:"context"`
}

// ChatRequest is the body of POST /v1/gateway/chat.
type ChatRequest struct {
	// Message is the student message. Required.
	Message string `json:"message" binding:"required"`

	// ConversationID threads multi-turn conversations. Optional.
	ConversationID string `json:"conversationId"`

	// Context is optional prior conversation text used for classification.
	Context string `json:"context"`
}

// ChatResponse is the success body of POST /v1/gateway/chat.
type ChatResponse struct {
	// Reply is the downstream model's answer, passed through unchanged.
	Reply string `json:"reply"`

	// Module is the classified module that handled the message.
	Module string `json:"module"`

	// Intent is the classified intent.
	Intent string `json:"intent"`

	// Provider and Model identify what actually served the call.
	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`

	// TraceID correlates the response with classification logs.
	TraceID string `json:"trace_id"`
}

// QuotaStatusResponse is the body of GET /v1/gateway/quota.
type QuotaStatusResponse struct {
	UserID          string  `json:"user_id"`
	Month           string  `json:"month"`
	Role            string  `json:"role"`
	TokenLimit      int64   `json:"token_limit"`
	TokenUsed       int64   `json:"token_used"`
	RemainingTokens int64   `json:"remainingTokens"`
	CostLimitUSD    float64 `json:"cost_limit_usd"`
	CostUsedUSD     float64 `json:"cost_used_usd"`
	Active          bool    `json:"active"`
}

// ErrorResponse is the generic error body.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// QuotaDeniedResponse is the 429 body returned on quota denial. It carries
// every violated dimension, not just the first one found.
type QuotaDeniedResponse struct {
	Error               string `json:"error"`
	Message             string `json:"message"`
	RemainingTokens     int64  `json:"remainingTokens"`
	QuotaExceeded       bool   `json:"quotaExceeded"`
	DailyLimitExceeded  bool   `json:"dailyLimitExceeded"`
	HourlyLimitExceeded bool   `json:"hourlyLimitExceeded"`
	CostLimitExceeded   bool   `json:"costLimitExceeded"`
}

// newQuotaDeniedResponse builds the 429 body from an admission decision.
func newQuotaDeniedResponse(d quota.Decision) QuotaDeniedResponse {
	return QuotaDeniedResponse{
		Error:               "quota_exceeded",
		Message:             d.Message,
		RemainingTokens:     d.RemainingTokens,
		QuotaExceeded:       d.QuotaExceeded,
		DailyLimitExceeded:  d.DailyLimitExceeded,
		HourlyLimitExceeded: d.HourlyLimitExceeded,
		CostLimitExceeded:   d.CostLimitExceeded,
	}
}

// =============================================================================
// Downstream AI Handler
// =============================================================================

// AIRequest is what the gateway hands to the downstream AI handler after a
// request has been classified and admitted.
type AIRequest struct {
	UserID         string
	ConversationID string
	Module         string
	Intent         string
	Message        string
	Context        string
}

// AIResult is the downstream handler's report back to the gateway. The token
// and cost figures are the actual ones the provider billed, which the
// gateway reconciles against the admission-time estimate.
type AIResult struct {
	Reply            string
	Provider         string
	Model            string
	PromptTokens     int64
	CompletionTokens int64
	CostUSD          float64
}

// AIHandler is the opaque downstream AI call the gateway admits requests to.
//
// Description:
//
//	Implementations are expected to report actual provider/model/token/cost
//	figures in AIResult so usage can be reconciled. On failure they may
//	return a partial AIResult alongside the error when the provider
//	reported partial token consumption; the gateway logs those figures
//	with success=false without charging quota.
//
// Thread Safety: Implementations must be safe for concurrent use.
type AIHandler interface {
	Handle(ctx context.Context, req AIRequest) (*AIResult, error)
}

// AIHandlerFunc adapts a function to the AIHandler interface.
type AIHandlerFunc func(ctx context.Context, req AIRequest) (*AIResult, error)

// Handle calls f.
func (f AIHandlerFunc) Handle(ctx context.Context, req AIRequest) (*AIResult, error) {
	return f(ctx, req)
}
