// Copyright (C) 2025 Estuda AI (eng@estuda.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command gateway starts the Estuda request admission gateway.
//
// The gateway sits in front of every AI-backed endpoint and provides:
//   - Multi-signal intent classification (keyword rules + intent voting)
//   - Per-user token and cost budgets (monthly, rolling daily, rolling hourly)
//   - Append-only usage accounting reconciled from actual provider figures
//
// Usage:
//
//	go run ./cmd/gateway
//	go run ./cmd/gateway -port 9090 -debug
//
// Environment:
//
//	GATEWAY_DATA_DIR        BadgerDB directory for quota records
//	                        (default ~/.estuda/gateway/quota; falls back to
//	                        an in-memory store when unavailable)
//	GATEWAY_DOWNSTREAM_URL  Base URL of the AI service admitted calls are
//	                        forwarded to (required for /chat)
//	GATEWAY_CATALOG_FILE    Module catalog JSON (default: embedded catalog)
//	GATEWAY_ROLE_LIMITS_FILE  Role-limit YAML (default: embedded table)
//	GATEWAY_TRACE_STDOUT    Set to "true" to export spans to stdout
//	GATEWAY_FX_BRL          USD→BRL rate for billing displays (default 5.0)
//
// Example requests:
//
//	# Health check
//	curl http://localhost:8080/v1/gateway/health
//
//	# Classify a message
//	curl -X POST http://localhost:8080/v1/gateway/classify \
//	  -H "Content-Type: application/json" \
//	  -H "X-User-ID: user-1" -H "X-User-Role: student" \
//	  -d '{"text": "quero ver uma questão de matemática"}'
//
//	# Quota status
//	curl http://localhost:8080/v1/gateway/quota \
//	  -H "X-User-ID: user-1" -H "X-User-Role: student"
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/EstudaAI/EstudaGateway/services/gateway"
	"github.com/EstudaAI/EstudaGateway/services/gateway/catalog"
	"github.com/EstudaAI/EstudaGateway/services/gateway/classifier"
	"github.com/EstudaAI/EstudaGateway/services/gateway/quota"
	badgerstore "github.com/EstudaAI/EstudaGateway/services/gateway/storage/badger"
)

func main() {
	port := flag.Int("port", 8080, "Port to listen on")
	debug := flag.Bool("debug", false, "Enable debug mode")
	flag.Parse()

	if *debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	// W3C TraceContext propagation so trace ids flow in from the ingress and
	// out to the AI service.
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	shutdownTracing := setupTracing()

	cat, err := loadCatalog()
	if err != nil {
		slog.Error("Failed to load module catalog", slog.String("error", err.Error()))
		os.Exit(1)
	}
	limits, err := loadRoleLimits()
	if err != nil {
		slog.Error("Failed to load role limits", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Quota store: BadgerDB, degrading to in-memory so a storage problem
	// never takes admission down with it. Degraded mode loses counters on
	// restart; the warning makes that visible.
	store, quotaDB := openQuotaStore()

	engine := classifier.NewEngine(cat, slog.Default())
	quotaSvc := quota.NewService(store, limits, slog.Default())
	recorder := quota.NewRecorder(quotaSvc, slog.Default())

	downstreamURL := os.Getenv("GATEWAY_DOWNSTREAM_URL")
	var ai gateway.AIHandler = gateway.NewHTTPAIHandler(downstreamURL, nil)
	if downstreamURL == "" {
		slog.Warn("GATEWAY_DOWNSTREAM_URL not set, /chat will fail downstream")
	}

	handlers := gateway.NewHandlers(engine, quotaSvc, recorder, ai, slog.Default())

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("estuda-gateway"))
	if *debug {
		router.Use(gin.Logger())
	}
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")
	gateway.RegisterRoutes(v1, handlers)

	printBanner(*port, cat.Len(), quotaDB != nil)

	// Graceful shutdown: drain pending usage rows, then close the store.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		slog.Info("Shutting down Estuda gateway")
		recorder.Wait()
		if quotaDB != nil {
			if err := quotaDB.Close(); err != nil {
				slog.Warn("Failed to close quota BadgerDB", slog.String("error", err.Error()))
			}
		}
		shutdownTracing()
		os.Exit(0)
	}()

	addr := fmt.Sprintf(":%d", *port)
	slog.Info("Starting Estuda gateway", slog.String("address", addr))
	if err := router.Run(addr); err != nil {
		slog.Error("Failed to start server", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// setupTracing installs a stdout span exporter when GATEWAY_TRACE_STDOUT is
// set. Returns a shutdown function; a no-op one when tracing is off.
func setupTracing() func() {
	if !strings.EqualFold(os.Getenv("GATEWAY_TRACE_STDOUT"), "true") {
		return func() {}
	}
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		slog.Warn("Failed to create stdout trace exporter", slog.String("error", err.Error()))
		return func() {}
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(tp)
	return func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			slog.Warn("Tracer provider shutdown failed", slog.String("error", err.Error()))
		}
	}
}

// loadCatalog reads GATEWAY_CATALOG_FILE, falling back to the embedded
// catalog.
func loadCatalog() (*catalog.Catalog, error) {
	if path := os.Getenv("GATEWAY_CATALOG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read catalog %s: %w", path, err)
		}
		slog.Info("Loaded module catalog", slog.String("path", path))
		return catalog.Load(data)
	}
	return catalog.Default()
}

// loadRoleLimits reads GATEWAY_ROLE_LIMITS_FILE, falling back to the
// embedded table.
func loadRoleLimits() (*quota.RoleLimitTable, error) {
	if path := os.Getenv("GATEWAY_ROLE_LIMITS_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read role limits %s: %w", path, err)
		}
		slog.Info("Loaded role limits", slog.String("path", path))
		return quota.LoadRoleLimits(data)
	}
	return quota.DefaultRoleLimits()
}

// openQuotaStore opens the BadgerDB quota store, degrading to the in-memory
// store when the directory is unavailable. Returns the store and the DB
// handle (nil in degraded mode) for shutdown.
func openQuotaStore() (quota.Store, *badgerstore.DB) {
	dataDir := os.Getenv("GATEWAY_DATA_DIR")
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			dataDir = filepath.Join(home, ".estuda", "gateway", "quota")
		}
	}
	if dataDir == "" {
		slog.Warn("No quota data directory available, using in-memory store")
		return quota.NewMemoryStore(), nil
	}

	cfg := badgerstore.DefaultConfig()
	cfg.Path = dataDir
	db, err := badgerstore.OpenDB(cfg)
	if err != nil {
		slog.Warn("Quota BadgerDB unavailable, using in-memory store",
			slog.String("path", dataDir),
			slog.String("error", err.Error()),
		)
		return quota.NewMemoryStore(), nil
	}
	slog.Info("Quota BadgerDB opened", slog.String("path", dataDir))
	return quota.NewBadgerStore(db, slog.Default()), db
}

// printBanner prints startup information.
func printBanner(port, modules int, persistent bool) {
	storeKind := "in-memory (degraded)"
	if persistent {
		storeKind = "badger"
	}
	fmt.Printf(`
╔══════════════════════════════════════════════╗
║             Estuda AI Gateway                ║
╚══════════════════════════════════════════════╝

  Address:      http://localhost:%d
  Modules:      %d
  Quota store:  %s

  POST /v1/gateway/classify
  POST /v1/gateway/chat
  GET  /v1/gateway/quota
  GET  /v1/gateway/health
  GET  /metrics

`, port, modules, storeKind)
}
