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
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPAIHandlerSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/ai/chat" {
			t.Errorf("path = %q, want /v1/ai/chat", r.URL.Path)
		}
		var req downstreamRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Module != "enem" {
			t.Errorf("module = %q, want enem", req.Module)
		}
		_ = json.NewEncoder(w).Encode(downstreamResponse{
			Reply:            "aqui está a questão",
			Provider:         "anthropic",
			Model:            "claude-haiku-4-5-20251001",
			PromptTokens:     150,
			CompletionTokens: 90,
			CostUSD:          0.0006,
		})
	}))
	defer srv.Close()

	h := NewHTTPAIHandler(srv.URL, srv.Client())
	result, err := h.Handle(context.Background(), AIRequest{
		UserID: "user-1", Module: "enem", Intent: "fetch-questions", Message: "quero uma questão",
	})
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if result.Reply != "aqui está a questão" {
		t.Errorf("Reply = %q", result.Reply)
	}
	if result.PromptTokens != 150 || result.CompletionTokens != 90 {
		t.Errorf("usage = %d/%d, want 150/90", result.PromptTokens, result.CompletionTokens)
	}
}

func TestHTTPAIHandlerErrorWithPartialUsage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_ = json.NewEncoder(w).Encode(downstreamResponse{
			Provider:     "openai",
			Model:        "gpt-4o-mini",
			PromptTokens: 150,
		})
	}))
	defer srv.Close()

	h := NewHTTPAIHandler(srv.URL, srv.Client())
	result, err := h.Handle(context.Background(), AIRequest{UserID: "user-1", Message: "oi"})
	if err == nil {
		t.Fatal("Handle() = nil error, want failure")
	}
	if result == nil {
		t.Fatal("partial usage figures were dropped")
	}
	if result.PromptTokens != 150 {
		t.Errorf("PromptTokens = %d, want partial figure 150", result.PromptTokens)
	}
}

func TestHTTPAIHandlerErrorWithoutUsage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	h := NewHTTPAIHandler(srv.URL, srv.Client())
	result, err := h.Handle(context.Background(), AIRequest{UserID: "user-1", Message: "oi"})
	if err == nil {
		t.Fatal("Handle() = nil error, want failure")
	}
	if result != nil {
		t.Errorf("result = %+v, want nil without usage figures", result)
	}
}

func TestHTTPAIHandlerRespectsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	h := NewHTTPAIHandler(srv.URL, srv.Client())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := h.Handle(ctx, AIRequest{UserID: "user-1", Message: "oi"}); err == nil {
		t.Fatal("Handle() = nil error with canceled context")
	}
}
