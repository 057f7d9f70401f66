// Copyright (C) 2025 InnerShift AI (engineering@innershift.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package aiassist provides the AI clarification backends for the protocol
// engine.
//
// The engine escalates exactly one case: invalid free text at a free-text
// step. The backends here restate the current scripted question in simpler
// words; they never answer it, never advise, and never move the session.
// The system prompt pins that down, and the engine's scripted fallback
// covers every backend failure, so a misbehaving or unreachable provider
// can slow a turn but never derail one.
package aiassist

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/awnumar/memguard"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/InnerShiftAI/InnerShiftCore/pkg/logging"
	"github.com/InnerShiftAI/InnerShiftCore/services/protocol"
)

var tracer = otel.Tracer("innershift.aiassist")

// Supported providers.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

var (
	// ErrNoAPIKey indicates no API key was found for the provider.
	ErrNoAPIKey = errors.New("aiassist: api key is missing")

	// ErrUnknownProvider indicates an unrecognized provider name.
	ErrUnknownProvider = errors.New("aiassist: unknown provider")
)

var clarifyRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "innershift_aiassist_requests_total",
	Help: "Clarification requests by provider and status",
}, []string{"provider", "status"})

// clarifySystemPrompt keeps the model inside the protocol. The engine only
// sends invalid free text, so the model's whole job is restating the
// current question; everything else is forbidden outright.
const clarifySystemPrompt = `You are the clarification assistant inside a scripted treatment session. The session is a fixed sequence of short questions, and the user's last reply could not be used as an answer to the current question.

Restate the current question in one or two short, warm sentences so the user understands what is being asked. Speak directly to the user.

Rules:
- Never answer the question for the user.
- Never give advice, interpretations, or reassurance beyond the question itself.
- Never introduce new questions, topics, or exercises.
- Keep the question's exact meaning; simplify only the wording.`

// clarifyUserMessage renders one escalation as the model's user turn.
func clarifyUserMessage(req protocol.ClarifyRequest) string {
	return fmt.Sprintf(
		"Current question:\n%s\n\nThe user replied:\n%s\n\nWhy the reply could not be used:\n%s\n\nRestate the current question more clearly.",
		req.PromptText, req.UserInput, req.Reason,
	)
}

// =============================================================================
// Configuration
// =============================================================================

// Config selects and tunes a clarification backend.
type Config struct {
	// Provider is "openai", "anthropic", or empty to disable AI
	// clarification entirely (the engine then always uses its scripted
	// fallback).
	Provider string

	// Model overrides the provider's default model.
	Model string

	// APIKey is the provider credential. It is sealed into locked memory
	// during construction.
	APIKey string

	// BaseURL overrides the provider endpoint, for tests and gateways.
	BaseURL string

	// MaxTokens caps the clarification length. Default: 256; a
	// clarification is two short sentences, not an essay.
	MaxTokens int

	// RequestsPerSecond throttles outbound calls across all sessions.
	// Default: 5. Burst defaults to the ceiling of the rate.
	RequestsPerSecond float64
	Burst             int

	// HTTPTimeout bounds a single provider round trip. The engine applies
	// its own per-attempt deadline as well. Default: 30s.
	HTTPTimeout time.Duration

	// Logger for backend events. If nil, logging.Default() is used.
	Logger *logging.Logger
}

func (c *Config) applyDefaults() {
	if c.MaxTokens <= 0 {
		c.MaxTokens = 256
	}
	if c.RequestsPerSecond <= 0 {
		c.RequestsPerSecond = 5
	}
	if c.Burst <= 0 {
		c.Burst = int(c.RequestsPerSecond)
		if c.Burst < 1 {
			c.Burst = 1
		}
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = logging.Default()
	}
}

// New builds the configured clarification backend.
//
// # Description
//
//	Seals the API key into a memguard enclave, wires the shared rate
//	limiter, and returns the provider client. An empty Provider returns
//	(nil, nil): AI clarification disabled, scripted fallback only.
//
// # Inputs
//
//	cfg - Backend selection and tuning. APIKey is required for any
//	non-empty provider.
//
// # Outputs
//
//	protocol.Clarifier - The backend, or nil when disabled.
//	error - Non-nil for an unknown provider or a missing key.
func New(cfg Config) (protocol.Clarifier, error) {
	if cfg.Provider == "" {
		return nil, nil
	}
	cfg.applyDefaults()

	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("%w: provider %s", ErrNoAPIKey, cfg.Provider)
	}
	// NewEnclave wipes the byte slice it is handed; the string copy in
	// cfg is gone once cfg goes out of scope.
	key := memguard.NewEnclave([]byte(strings.TrimSpace(cfg.APIKey)))

	switch cfg.Provider {
	case ProviderOpenAI:
		return newOpenAIClarifier(cfg, key), nil
	case ProviderAnthropic:
		return newAnthropicClarifier(cfg, key), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}
}

// NewFromEnv builds a backend from INNERSHIFT_AI_* environment variables,
// falling back to container secret files for the key. An unset provider
// disables AI clarification.
func NewFromEnv(log *logging.Logger) (protocol.Clarifier, error) {
	provider := os.Getenv("INNERSHIFT_AI_PROVIDER")
	if provider == "" {
		return nil, nil
	}

	var key string
	switch provider {
	case ProviderOpenAI:
		key = readSecret("OPENAI_API_KEY", "/run/secrets/openai_api_key", log)
	case ProviderAnthropic:
		key = readSecret("ANTHROPIC_API_KEY", "/run/secrets/anthropic_api_key", log)
	}

	return New(Config{
		Provider: provider,
		Model:    os.Getenv("INNERSHIFT_AI_MODEL"),
		APIKey:   key,
		Logger:   log,
	})
}

// readSecret reads a credential from the environment, then from a mounted
// secret file.
func readSecret(envName, secretPath string, log *logging.Logger) string {
	if v := os.Getenv(envName); v != "" {
		return v
	}
	if content, err := os.ReadFile(secretPath); err == nil {
		if log != nil {
			log.Info("read credential from mounted secret", "path", secretPath)
		}
		return strings.TrimSpace(string(content))
	}
	return ""
}

// =============================================================================
// Shared plumbing
// =============================================================================

// clarifyCall wraps one provider round trip with the rate limiter, the
// span, and the request counter. fn does the provider-specific work.
func clarifyCall(
	ctx context.Context,
	provider string,
	limiter *rate.Limiter,
	req protocol.ClarifyRequest,
	fn func(ctx context.Context) (string, error),
) (string, error) {
	ctx, span := tracer.Start(ctx, "aiassist.Clarify",
		trace.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("step_id", req.StepID),
			attribute.String("method", string(req.Method)),
		),
	)
	defer span.End()

	// Wait honors the engine's per-attempt deadline, so a saturated
	// limiter turns into a timeout and the scripted fallback, never a
	// stuck turn.
	if err := limiter.Wait(ctx); err != nil {
		clarifyRequestsTotal.WithLabelValues(provider, "throttled").Inc()
		span.SetStatus(codes.Error, "rate limited")
		return "", fmt.Errorf("clarification throttled: %w", err)
	}

	text, err := fn(ctx)
	if err != nil {
		clarifyRequestsTotal.WithLabelValues(provider, "error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "provider call failed")
		return "", err
	}

	clarifyRequestsTotal.WithLabelValues(provider, "ok").Inc()
	return strings.TrimSpace(text), nil
}
