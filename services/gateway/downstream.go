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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// defaultDownstreamTimeout bounds one AI call end to end.
const defaultDownstreamTimeout = 120 * time.Second

// downstreamRequest is the wire shape posted to the AI service.
type downstreamRequest struct {
	UserID         string `json:"user_id"`
	ConversationID string `json:"conversation_id,omitempty"`
	Module         string `json:"module"`
	Intent         string `json:"intent"`
	Message        string `json:"message"`
	Context        string `json:"context,omitempty"`
}

// downstreamResponse is the wire shape the AI service reports back,
// including the actual usage figures the gateway reconciles from.
type downstreamResponse struct {
	Reply            string  `json:"reply"`
	Provider         string  `json:"provider"`
	Model            string  `json:"model"`
	PromptTokens     int64   `json:"prompt_tokens"`
	CompletionTokens int64   `json:"completion_tokens"`
	CostUSD          float64 `json:"cost_usd"`
}

// HTTPAIHandler forwards admitted requests to the platform's AI service
// over HTTP.
//
// Description:
//
//	The AI service owns prompts, provider selection, and the actual model
//	calls; the gateway only admits and accounts. The service reports
//	actual token and cost figures in its response body, which become the
//	reconciliation source.
//
// Thread Safety: Safe for concurrent use.
type HTTPAIHandler struct {
	baseURL string
	client  *http.Client
}

// NewHTTPAIHandler creates a downstream handler posting to baseURL.
//
// Inputs:
//   - baseURL: AI service base URL, e.g. "http://ai-service:8090". The
//     handler posts to baseURL + "/v1/ai/chat".
//   - client: HTTP client. Pass nil for a default with a 120s timeout.
func NewHTTPAIHandler(baseURL string, client *http.Client) *HTTPAIHandler {
	if client == nil {
		client = &http.Client{Timeout: defaultDownstreamTimeout}
	}
	return &HTTPAIHandler{baseURL: baseURL, client: client}
}

// Handle posts the request and decodes the usage-bearing response.
//
// Outputs:
//   - *AIResult: The reply with actual usage figures. Nil on transport
//     failure; non-nil with partial figures when the service returned a
//     usage-bearing error body.
//   - error: Non-nil on transport failure or non-200 status.
func (h *HTTPAIHandler) Handle(ctx context.Context, req AIRequest) (*AIResult, error) {
	body, err := json.Marshal(downstreamRequest{
		UserID:         req.UserID,
		ConversationID: req.ConversationID,
		Module:         req.Module,
		Intent:         req.Intent,
		Message:        req.Message,
		Context:        req.Context,
	})
	if err != nil {
		return nil, fmt.Errorf("downstream: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+"/v1/ai/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("downstream: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("downstream: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var wire downstreamResponse
	decodeErr := json.NewDecoder(resp.Body).Decode(&wire)

	if resp.StatusCode != http.StatusOK {
		// Error bodies may still carry partial usage figures; surface them
		// so the gateway can log the attempt with success=false.
		var partial *AIResult
		if decodeErr == nil && (wire.PromptTokens > 0 || wire.CompletionTokens > 0) {
			partial = &AIResult{
				Provider:         wire.Provider,
				Model:            wire.Model,
				PromptTokens:     wire.PromptTokens,
				CompletionTokens: wire.CompletionTokens,
				CostUSD:          wire.CostUSD,
			}
		}
		return partial, fmt.Errorf("downstream: status %d", resp.StatusCode)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("downstream: decode response: %w", decodeErr)
	}

	return &AIResult{
		Reply:            wire.Reply,
		Provider:         wire.Provider,
		Model:            wire.Model,
		PromptTokens:     wire.PromptTokens,
		CompletionTokens: wire.CompletionTokens,
		CostUSD:          wire.CostUSD,
	}, nil
}
