// Copyright (C) 2025 InnerShift AI (engineering@innershift.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package engine provides the HTTP service around the protocol engine.
//
// This package contains the main service type that coordinates all
// components: the protocol engine, the badger session store, the AI
// clarifier, script hot-reload, the retention janitor, and observability
// infrastructure.
//
// # Usage
//
//	cfg := engine.Config{Port: 9180, StorePath: "/var/lib/innershift/sessions"}
//	svc, err := engine.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	log.Fatal(svc.Run())
//
// The AI clarifier configures itself from the environment
// (INNERSHIFT_AI_PROVIDER et al.); a service without one still runs every
// protocol flow, escalations just use the scripted fallback wording.
package engine

import (
	"context"
	"fmt"
	"time"

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

	"github.com/InnerShiftAI/InnerShiftCore/pkg/extensions"
	"github.com/InnerShiftAI/InnerShiftCore/pkg/logging"
	"github.com/InnerShiftAI/InnerShiftCore/services/aiassist"
	"github.com/InnerShiftAI/InnerShiftCore/services/engine/janitor"
	"github.com/InnerShiftAI/InnerShiftCore/services/engine/observability"
	"github.com/InnerShiftAI/InnerShiftCore/services/engine/routes"
	"github.com/InnerShiftAI/InnerShiftCore/services/protocol"
	"github.com/InnerShiftAI/InnerShiftCore/services/protocol/scripts"
	"github.com/InnerShiftAI/InnerShiftCore/services/sessionstore"
)

// =============================================================================
// Interface Definition
// =============================================================================

// Service defines the contract for the engine service.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use. Run() blocks and should
// only be called once per instance.
type Service interface {
	// Run starts the HTTP server and blocks until shutdown or error.
	// Cleanup of all owned resources happens on return.
	Run() error

	// Router returns the underlying Gin engine for integration testing.
	// Callers must not modify the router.
	Router() *gin.Engine
}

// =============================================================================
// Configuration
// =============================================================================

// Config holds engine service configuration options.
//
// All fields are optional; New() applies defaults for zero values. A zero
// Config yields a service persisting to ./data/sessions with the embedded
// scripts, no API key (open mode), and no AI clarifier unless the
// environment provides one.
type Config struct {
	// Port is the HTTP server port. Default: 9180
	Port int

	// GinMode sets the Gin framework mode ("debug", "release", "test").
	// Empty keeps the GIN_MODE environment default.
	GinMode string

	// OTelEndpoint is the OpenTelemetry collector endpoint.
	// Default: "innershift-otel-collector:4317"
	OTelEndpoint string

	// EnableMetrics enables Prometheus metrics. Default: true
	EnableMetrics bool

	// APIKey guards the /v1 API. Empty runs the service in open mode.
	APIKey string

	// StorePath is the badger directory for session records.
	// Default: "./data/sessions"
	StorePath string

	// StoreInMemory runs the session store without a disk footprint.
	// Meant for tests and scratch instances; implies no janitor.
	StoreInMemory bool

	// SessionTTL is the storage-level record TTL backstop.
	// Zero keeps the store default (24h).
	SessionTTL time.Duration

	// ScriptOverridesDir, when set, is watched for modality script
	// overrides; edits apply between turns without a restart.
	ScriptOverridesDir string

	// AITimeout bounds each clarifier attempt. Zero keeps the protocol
	// default (5s).
	AITimeout time.Duration

	// JanitorInterval is how often the retention janitor sweeps.
	// Default: 1 hour.
	JanitorInterval time.Duration

	// IdleTTL is the janitor's abandoned-session window. Default: 24h.
	IdleTTL time.Duration

	// CompletedTTL is the janitor's terminal-session window. Default: 1h.
	CompletedTTL time.Duration

	// Extensions holds the deployment's audit and safety seams. The
	// zero value runs the no-op defaults.
	Extensions extensions.ServiceOptions

	// Logger receives service logs. Default: logging.Default().
	Logger *logging.Logger
}

// =============================================================================
// Implementation
// =============================================================================

// service implements Service for production use.
//
// # Thread Safety
//
// Thread-safe after construction. All fields are read-only after New()
// returns.
type service struct {
	config        Config
	log           *logging.Logger
	router        *gin.Engine
	store         *sessionstore.Store
	watcher       *protocol.WatchingSource // nil when running embedded scripts only
	engine        *protocol.Engine
	janitor       *janitor.Janitor
	tracerCleanup func(context.Context)
}

// =============================================================================
// Constructor
// =============================================================================

// New creates a new engine Service with the given configuration.
//
// # Description
//
// New initializes all components in dependency order:
//  1. Applies default configuration for missing values
//  2. Initializes OpenTelemetry tracing
//  3. Initializes Prometheus metrics
//  4. Opens the badger session store (fatal on failure)
//  5. Builds the script catalog, watching the overrides dir if configured
//  6. Builds the AI clarifier from the environment (optional)
//  7. Starts the retention janitor (persistent stores only)
//  8. Sets up HTTP routes
//
// Optional components degrade instead of failing: a broken overrides
// watcher falls back to the embedded scripts, a missing AI key falls back
// to scripted clarifications.
//
// # Outputs
//
//   - Service: Ready-to-run engine service
//   - error: Non-nil if a required component failed to initialize
func New(cfg Config) (Service, error) {
	s := &service{
		config: applyConfigDefaults(cfg),
	}
	s.log = s.config.Logger

	if s.config.GinMode != "" {
		gin.SetMode(s.config.GinMode)
	}

	// Initialize OpenTelemetry tracer
	cleanup, err := s.initTracer()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}
	s.tracerCleanup = cleanup

	// Initialize Prometheus metrics
	if s.config.EnableMetrics {
		observability.InitMetrics()
		s.log.Info("initialized Prometheus metrics")
	}

	// Open the session store (required)
	if err := s.initStore(); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}

	// Build the step catalog (required), with optional hot reload
	source, err := s.initSource()
	if err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to build step catalog: %w", err)
	}

	// Build the AI clarifier (optional)
	clarifier, err := aiassist.NewFromEnv(s.log)
	if err != nil {
		s.log.Warn("AI clarifier unavailable, escalations use the scripted fallback",
			"error", err)
		clarifier = nil
	}

	s.engine, err = protocol.NewEngine(protocol.EngineConfig{
		Source:    source,
		Store:     s.store,
		Clarifier: clarifier,
		Logger:    s.log,
		AITimeout: s.config.AITimeout,
	})
	if err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to build protocol engine: %w", err)
	}

	// Start the retention janitor (persistent stores only; in-memory
	// stores vanish with the process anyway)
	if !s.config.StoreInMemory {
		s.janitor = janitor.New(s.store, s.log, janitor.Config{
			Interval:     s.config.JanitorInterval,
			IdleTTL:      s.config.IdleTTL,
			CompletedTTL: s.config.CompletedTTL,
		})
		if err := s.janitor.Start(context.Background()); err != nil {
			s.log.Warn("janitor start failed, sessions rely on the storage TTL",
				"error", err)
			s.janitor = nil
		}
	}

	// Setup HTTP router
	s.initRouter()

	return s, nil
}

// =============================================================================
// Service Interface Methods
// =============================================================================

// Run starts the HTTP server and blocks until shutdown or error.
func (s *service) Run() error {
	defer s.cleanup()

	addr := fmt.Sprintf(":%d", s.config.Port)
	s.log.Info("starting engine server", "port", s.config.Port)

	return s.router.Run(addr)
}

// Router returns the underlying Gin engine for testing.
func (s *service) Router() *gin.Engine {
	return s.router
}

// =============================================================================
// Private Initialization Methods
// =============================================================================

// applyConfigDefaults fills in missing configuration values.
func applyConfigDefaults(cfg Config) Config {
	if cfg.Port == 0 {
		cfg.Port = 9180
	}
	if cfg.OTelEndpoint == "" {
		cfg.OTelEndpoint = "innershift-otel-collector:4317"
	}
	// Metrics stay on unless a build disables them explicitly via the
	// observability package; the flag exists for embedding scenarios.
	cfg.EnableMetrics = true

	if cfg.StorePath == "" {
		cfg.StorePath = "./data/sessions"
	}
	cfg.Extensions = cfg.Extensions.WithDefaults()
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return cfg
}

// initTracer initializes OpenTelemetry distributed tracing.
//
// Uses an insecure gRPC connection, appropriate for collectors on the
// service mesh. The connection is lazy: an unreachable collector costs
// dropped spans, not a failed start.
func (s *service) initTracer() (func(context.Context), error) {
	ctx := context.Background()

	conn, err := grpc.NewClient(s.config.OTelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection: %w", err)
	}

	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("engine-service")))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))

	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	cleanup := func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			s.log.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}

	return cleanup, nil
}

// initStore opens the badger session store.
func (s *service) initStore() error {
	var storeCfg sessionstore.Config
	if s.config.StoreInMemory {
		storeCfg = sessionstore.InMemoryConfig()
	} else {
		storeCfg = sessionstore.DefaultConfig()
		storeCfg.Path = s.config.StorePath
	}
	if s.config.SessionTTL > 0 {
		storeCfg.SessionTTL = s.config.SessionTTL
	}
	storeCfg.Logger = s.log

	store, err := sessionstore.Open(storeCfg)
	if err != nil {
		return err
	}
	s.store = store
	s.log.Info("session store opened",
		"path", s.config.StorePath, "in_memory", s.config.StoreInMemory)
	return nil
}

// initSource builds the catalog source: the embedded scripts, overlaid
// with the overrides directory when one is configured.
func (s *service) initSource() (protocol.CatalogSource, error) {
	base, err := scripts.LoadEmbedded()
	if err != nil {
		return nil, err
	}

	if s.config.ScriptOverridesDir == "" {
		cat, err := protocol.BuildCatalog(base)
		if err != nil {
			return nil, err
		}
		return protocol.NewStaticSource(cat), nil
	}

	watcher, err := protocol.NewWatchingSource(base, s.config.ScriptOverridesDir, s.log)
	if err != nil {
		// A broken overrides dir must not take the service down; the
		// embedded wording is always valid.
		s.log.Warn("script override watcher failed, using embedded scripts",
			"dir", s.config.ScriptOverridesDir, "error", err)
		cat, err := protocol.BuildCatalog(base)
		if err != nil {
			return nil, err
		}
		return protocol.NewStaticSource(cat), nil
	}
	s.watcher = watcher
	s.log.Info("watching script overrides", "dir", s.config.ScriptOverridesDir)
	return watcher, nil
}

// initRouter sets up the Gin HTTP router with all routes.
func (s *service) initRouter() {
	s.router = gin.Default()
	s.router.Use(otelgin.Middleware("engine-service"))

	routes.SetupRoutes(s.router, s.engine, s.store, s.config.APIKey, s.config.Extensions)
}

// cleanup releases all resources held by the service.
//
// Called when Run() exits or on initialization failure, so every step
// tolerates the later components being nil.
func (s *service) cleanup() {
	if s.janitor != nil {
		s.janitor.Stop()
	}

	if s.watcher != nil {
		if err := s.watcher.Close(); err != nil {
			s.log.Warn("script watcher close error", "error", err)
		}
	}

	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.log.Warn("session store close error", "error", err)
		}
	}

	if s.config.Extensions.Audit != nil {
		if err := s.config.Extensions.Audit.Flush(context.Background()); err != nil {
			s.log.Warn("audit sink flush error", "error", err)
		}
	}

	if s.tracerCleanup != nil {
		s.tracerCleanup(context.Background())
	}
}

// Compile-time interface compliance check
var _ Service = (*service)(nil)
