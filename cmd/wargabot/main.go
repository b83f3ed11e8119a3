// Copyright (C) 2026 Desa Digital Nusantara (dev@desadigital.id)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"log"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/desadigital/wargabot/pkg/logging"
	"github.com/desadigital/wargabot/services/assistant"
	"github.com/desadigital/wargabot/services/assistant/adminsink"
	"github.com/desadigital/wargabot/services/assistant/classifier"
	"github.com/desadigital/wargabot/services/assistant/datatypes"
	"github.com/desadigital/wargabot/services/assistant/grounding"
	"github.com/desadigital/wargabot/services/assistant/handlers"
	"github.com/desadigital/wargabot/services/assistant/history"
	"github.com/desadigital/wargabot/services/assistant/llm"
	"github.com/desadigital/wargabot/services/assistant/pending"
	"github.com/desadigital/wargabot/services/assistant/reference"
	"github.com/desadigital/wargabot/services/assistant/routes"
	"github.com/desadigital/wargabot/services/assistant/routing"

	// --- OpenTelemetry imports ---
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
)

const defaultSystemPrompt = "Anda adalah asisten layanan pemerintahan desa. " +
	"Jawab selalu dalam Bahasa Indonesia yang sopan dan singkat."

func initTracer() (func(context.Context), error) {
	ctx := context.Background()

	otelEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otelEndpoint == "" {
		otelEndpoint = "wargabot-otel-collector:4317"
	}
	conn, err := grpc.NewClient(otelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("assistant-service")))
	if err != nil {
		return nil, err
	}
	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.
		TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}, nil
}

// modelList parses a comma-separated model list from the environment.
func modelList(envVar string, fallback []string) []string {
	raw := os.Getenv(envVar)
	if raw == "" {
		return fallback
	}
	var models []string
	for _, m := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(m); trimmed != "" {
			models = append(models, trimmed)
		}
	}
	if len(models) == 0 {
		return fallback
	}
	return models
}

func newWeaviateClient() *weaviate.Client {
	weaviateURL := os.Getenv("WEAVIATE_SERVICE_URL")
	// Trim quotes and whitespace in case the container runtime passes them
	// literally.
	weaviateURL = strings.Trim(weaviateURL, "\"' ")

	if weaviateURL == "" || !strings.Contains(weaviateURL, "http") {
		slog.Info("WEAVIATE_SERVICE_URL not set or empty. Running without retrieval grounding.")
		return nil
	}

	parsedURL, err := url.Parse(weaviateURL)
	if err != nil || parsedURL.Scheme == "" || parsedURL.Host == "" {
		slog.Warn("WEAVIATE_SERVICE_URL is invalid. Running without retrieval grounding.",
			"url", weaviateURL, "error", err)
		return nil
	}

	client, err := weaviate.NewClient(weaviate.Config{
		Host:   parsedURL.Host,
		Scheme: parsedURL.Scheme,
	})
	if err != nil {
		slog.Error("Failed to create Weaviate client", "error", err)
		return nil
	}
	datatypes.EnsureWeaviateSchema(client)
	return client
}

func main() {
	port := os.Getenv("ASSISTANT_PORT")
	if port == "" {
		port = "12310"
	}

	logger := logging.New(logging.Config{
		Level:   logging.ParseLevel(os.Getenv("LOG_LEVEL")),
		LogDir:  os.Getenv("LOG_DIR"),
		Service: "assistant",
	})
	defer logger.Close()
	slog.SetDefault(logger.Slog())

	ctx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()

	// --- Init the tracer ---
	cleanup, err := initTracer()
	if err != nil {
		log.Fatalf("failed to setup the OTLP tracer: %v", err)
	}
	defer cleanup(context.Background())

	// --- Credential pool and router ---
	pool := routing.NewPool(routing.DefaultPoolConfig())
	credentialsFile := os.Getenv("CREDENTIALS_FILE")
	if credentialsFile == "" {
		credentialsFile = "/etc/wargabot/credentials.yaml"
	}
	if err := pool.LoadFile(credentialsFile); err != nil {
		log.Fatalf("Failed to load credential pool from %s: %v", credentialsFile, err)
	}
	if err := pool.Watch(credentialsFile); err != nil {
		slog.Warn("Credential file watch unavailable, edits require a restart", "error", err)
	}
	defer pool.Close()

	factory := &llm.OpenAIFactory{SystemPrompt: defaultSystemPrompt}
	executor := routing.NewExecutor(pool, factory, routing.DefaultExecutorConfig())

	// --- Intent classifier ---
	budget := classifier.NewBudget(classifier.DefaultBudgetConfig())
	intentClassifier := classifier.New(executor, budget, classifier.Config{
		LightModels: modelList("LIGHT_MODELS", []string{"gpt-4o-mini"}),
		DeepModels:  modelList("DEEP_MODELS", []string{"gpt-4o"}),
	})

	// --- Retrieval grounding ---
	var (
		retriever assistant.Retriever
		knowledge handlers.KnowledgeStore
	)
	if weaviateClient := newWeaviateClient(); weaviateClient != nil {
		embeddingURL := os.Getenv("EMBEDDING_SERVICE_URL")
		if embeddingURL == "" {
			log.Fatalf("EMBEDDING_SERVICE_URL must be set when Weaviate is configured")
		}
		embedder, err := grounding.NewCachingEmbedder(grounding.NewHTTPEmbedder(embeddingURL), 4096)
		if err != nil {
			log.Fatalf("Failed to create embedding cache: %v", err)
		}
		retriever = grounding.NewRetriever(weaviateClient, embedder, grounding.DefaultRetrieverConfig())
		knowledge = grounding.NewIngestor(weaviateClient, embedder)
	}

	// --- Tenant reference data and conversation history ---
	var referenceSvc reference.Service
	if refURL := os.Getenv("REFERENCE_SERVICE_URL"); refURL != "" {
		refClient, err := reference.NewClient(refURL, 0)
		if err != nil {
			log.Fatalf("Failed to create reference client: %v", err)
		}
		defer refClient.Close()
		referenceSvc = refClient
	} else {
		slog.Warn("REFERENCE_SERVICE_URL not set, contact and service lookups disabled")
	}

	var historySvc history.Service
	if histURL := os.Getenv("HISTORY_SERVICE_URL"); histURL != "" {
		historySvc = history.NewClient(histURL)
	}

	// --- Admin report sink ---
	var sink adminsink.Sink
	if sinkURL := os.Getenv("ADMIN_SINK_URL"); sinkURL != "" {
		httpSink := adminsink.NewHTTPSink(sinkURL, 0)
		if err := httpSink.Start(ctx); err != nil {
			log.Fatalf("Failed to start admin sink: %v", err)
		}
		defer httpSink.Stop()
		sink = httpSink
	}

	// --- Pending multi-turn state ---
	pendings := pending.NewMemoryStore()
	sweeper := pending.NewSweeper(pendings, pending.DefaultSweeperConfig())
	if err := sweeper.Start(ctx); err != nil {
		log.Fatalf("Failed to start pending sweeper: %v", err)
	}
	defer sweeper.Stop()

	orchestrator := assistant.New(
		intentClassifier,
		retriever,
		executor,
		pendings,
		referenceSvc,
		historySvc,
		sink,
		assistant.Config{
			GenerationModels: modelList("GENERATION_MODELS", []string{"gpt-4o-mini"}),
			RequireContact:   os.Getenv("REQUIRE_CONTACT") == "true",
		},
	)

	router := gin.Default()
	router.Use(otelgin.Middleware("assistant-service"))

	routes.SetupRoutes(router, orchestrator, knowledge, pool)

	slog.Info("Starting the assistant server", "port", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
