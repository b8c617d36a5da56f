// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/AleutianAI/tidewater/services/chat/config"
	"github.com/AleutianAI/tidewater/services/chat/generation"
	"github.com/AleutianAI/tidewater/services/chat/middleware"
	"github.com/AleutianAI/tidewater/services/chat/observability"
	"github.com/AleutianAI/tidewater/services/chat/routes"
	"github.com/AleutianAI/tidewater/services/chat/store"
	"github.com/AleutianAI/tidewater/services/llm"
)

const serviceName = "tidewater-chat"

// initTracer configures the OTLP trace exporter. It returns a cleanup
// function that flushes and shuts down the tracer provider. When no
// collector endpoint is configured, tracing stays on the default no-op
// provider and the cleanup is a no-op.
func initTracer(ctx context.Context, endpoint string) (func(context.Context) error, error) {
	if endpoint == "" {
		slog.Info("OTEL_EXPORTER_OTLP_ENDPOINT not set, tracing disabled")
		return func(context.Context) error { return nil }, nil
	}

	conn, err := grpc.NewClient(endpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}

	exporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String(serviceName)))
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(sdktrace.NewBatchSpanProcessor(exporter)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	slog.Info("Tracing initialized", "endpoint", endpoint)
	return tp.Shutdown, nil
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	cleanup, err := initTracer(context.Background(), cfg.OTLPEndpoint)
	if err != nil {
		slog.Error("Failed to initialize tracing", "error", err)
		os.Exit(1)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := cleanup(ctx); err != nil {
			slog.Warn("Tracer shutdown failed", "error", err)
		}
	}()

	observability.InitMetrics()

	db, err := store.OpenDB(store.DefaultConfig(cfg.DataDir))
	if err != nil {
		slog.Error("Failed to open database", "error", err, "path", cfg.DataDir)
		os.Exit(1)
	}
	defer func() {
		if err := db.Close(); err != nil {
			slog.Warn("Database close failed", "error", err)
		}
	}()

	selector := llm.NewSelector(llm.SelectorConfig{
		DefaultProvider: cfg.DefaultProvider,
		OpenAIModel:     cfg.OpenAIModel,
		OllamaModel:     cfg.OllamaModel,
	},
		llm.NewOpenAIClient(cfg.OpenAIAPIKey),
		llm.NewOllamaClient(cfg.OllamaBaseURL, cfg.OllamaTimeout),
	)

	orch := generation.NewOrchestrator(db, selector)
	tokens := middleware.NewTokenService(cfg.SecretKey, cfg.AccessTokenTTL)

	router := gin.Default()
	router.Use(otelgin.Middleware(serviceName))
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	routes.SetupRoutes(router, db, orch, tokens)

	slog.Info("Starting chat service", "port", cfg.Port,
		"default_provider", cfg.DefaultProvider)
	if err := router.Run(":" + cfg.Port); err != nil {
		slog.Error("Server exited", "error", err)
		os.Exit(1)
	}
}
