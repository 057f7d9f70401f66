// Copyright (C) 2025 InnerShift AI (engineering@innershift.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package protocol

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/InnerShiftAI/InnerShiftCore/pkg/logging"
)

var tracer = otel.Tracer("innershift.protocol")

// =============================================================================
// Collaborator Contracts
// =============================================================================

// SessionStore persists session contexts between turns. Save must fail on
// concurrent modification; the engine propagates that failure to the
// caller untouched so clients can retry the whole turn.
type SessionStore interface {
	Load(ctx context.Context, tenantID, sessionID string) (*Context, error)
	Save(ctx context.Context, c *Context) error
}

// ClarifyRequest carries everything the AI collaborator may use to help
// the user re-answer the current step. The prompt is rendered with Preview,
// so building the request never consumes the bridge variant.
type ClarifyRequest struct {
	TenantID   string
	SessionID  string
	Method     Method
	StepID     string
	PromptText string
	UserInput  string
	Reason     string
}

// Clarifier is the external AI collaborator. Only invalid free text ever
// reaches it; the gate and the escalation policy both refuse everything
// else before a request is built.
type Clarifier interface {
	Clarify(ctx context.Context, req ClarifyRequest) (string, error)
}

// =============================================================================
// Turn
// =============================================================================

// Turn is the outcome of one engine call: the prompt to show and the input
// surface the client should offer next.
type Turn struct {
	SessionID  string   `json:"sessionId"`
	StepID     string   `json:"stepId"`
	Method     string   `json:"method,omitempty"`
	PromptText string   `json:"promptText"`
	Expect     string   `json:"expect,omitempty"`
	Buttons    []string `json:"buttons,omitempty"`
	Labels     []string `json:"labels,omitempty"`

	// InputKind is the gate's classification of the input that produced
	// this turn ("" for the opening turn).
	InputKind string `json:"inputKind,omitempty"`

	// Escalated is true when the prompt is a clarification rather than the
	// next step; UsedAI distinguishes the AI collaborator's wording from
	// the scripted fallback.
	Escalated bool `json:"escalated"`
	UsedAI    bool `json:"usedAi"`

	IsTerminal bool `json:"isTerminal"`
	CycleCount int  `json:"cycleCount"`
}

// =============================================================================
// Engine
// =============================================================================

// EngineConfig wires the engine's collaborators.
type EngineConfig struct {
	// Source supplies the step catalog; hot reload swaps catalogs behind
	// this interface between turns.
	Source CatalogSource

	// Store persists contexts between turns.
	Store SessionStore

	// Clarifier handles escalated turns. Nil disables the AI collaborator;
	// escalations then use the scripted fallback only.
	Clarifier Clarifier

	Logger *logging.Logger

	// AITimeout bounds each clarifier attempt. Defaults to 5s.
	AITimeout time.Duration
}

func applyEngineDefaults(cfg EngineConfig) EngineConfig {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.AITimeout <= 0 {
		cfg.AITimeout = 5 * time.Second
	}
	return cfg
}

// Engine runs protocol turns. It holds no per-session state: everything a
// turn needs is loaded from the store and written back before the turn
// returns, so one engine serves all sessions concurrently.
type Engine struct {
	source    CatalogSource
	store     SessionStore
	ai        Clarifier
	log       *logging.Logger
	aiTimeout time.Duration
}

// NewEngine validates cfg and builds an Engine.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	cfg = applyEngineDefaults(cfg)
	if cfg.Source == nil {
		return nil, fmt.Errorf("protocol: engine config needs a catalog source")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("protocol: engine config needs a session store")
	}
	return &Engine{
		source:    cfg.Source,
		store:     cfg.Store,
		ai:        cfg.Clarifier,
		log:       cfg.Logger,
		aiTimeout: cfg.AITimeout,
	}, nil
}

// Start creates a session for tenantID, persists it, and renders the
// opening prompt.
func (e *Engine) Start(ctx context.Context, tenantID string) (*Turn, error) {
	ctx, span := tracer.Start(ctx, "Protocol.Start")
	defer span.End()

	cat := e.source.Catalog()
	c := NewContext(tenantID, cat.EntryStepID())
	entry, err := cat.Current(c)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	prompt := entry.Render(c)
	if err := e.store.Save(ctx, c); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("save new session: %w", err)
	}

	span.SetAttributes(attribute.String("session.id", c.SessionID))
	e.log.Info("session started", "sessionId", c.SessionID, "tenantId", tenantID, "stepId", c.CurrentStepID)
	return e.turn(c, entry, prompt, "", false, false), nil
}

// Resume re-renders the session's current prompt without advancing it.
// Clients reconnecting mid-session call this to learn what to show; the
// prompt is rendered with Preview so resuming never consumes a pending
// bridge variant, and nothing is saved.
func (e *Engine) Resume(ctx context.Context, tenantID, sessionID string) (*Turn, error) {
	ctx, span := tracer.Start(ctx, "Protocol.Resume")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", sessionID))

	c, err := e.store.Load(ctx, tenantID, sessionID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}

	if c.Status == StatusErrored {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrSessionErrored)
	}

	step, err := e.source.Catalog().Current(c)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return e.turn(c, step, step.Preview(c), "", false, false), nil
}

// Advance runs one turn against the session: load, classify, escalate or
// transition, render, save.
//
// # Description
//
// The turn either escalates or advances, never both. An escalated turn
// leaves the context untouched: the session stays on the same step and
// nothing is saved. An advancing turn records the normalized answer,
// applies the step's transition, renders the next prompt (consuming a
// pending bridge variant), and persists the context; a save conflict from
// a concurrent turn is returned to the caller untouched.
//
// A transition that lands on an unknown step aborts the turn: the session
// is marked errored and the error returned. The engine never substitutes
// a plausible step for an unknown one.
//
// # Inputs
//
//   - tenantID, sessionID: the session to advance; loads fail for a
//     session outside the tenant's scope.
//   - rawInput: the user's reply, untrimmed.
//
// # Outputs
//
//   - Turn: the next prompt plus input-surface hints, or the clarification.
//   - error: store failures, ErrSessionErrored, ErrEmptyInput, or a fatal
//     routing failure wrapping ErrUnknownStep/ErrUnknownMethod.
func (e *Engine) Advance(ctx context.Context, tenantID, sessionID, rawInput string) (*Turn, error) {
	ctx, span := tracer.Start(ctx, "Protocol.Advance")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", sessionID))

	c, err := e.store.Load(ctx, tenantID, sessionID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}

	if c.Status == StatusErrored {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrSessionErrored)
	}

	cat := e.source.Catalog()

	// Completed sessions re-render their terminal prompt; nothing mutates,
	// so repeated calls are idempotent.
	if c.Status == StatusCompleted {
		step, err := cat.Current(c)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		return e.turn(c, step, step.Preview(c), "", false, false), nil
	}

	if strings.TrimSpace(rawInput) == "" {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrEmptyInput)
	}

	step, err := cat.Current(c)
	if err != nil {
		return nil, e.fatal(ctx, span, c, err)
	}

	verdict := Classify(rawInput, step, c)
	span.SetAttributes(
		attribute.String("step.id", step.ID),
		attribute.String("input.kind", verdict.Kind.String()),
	)

	// The kind check repeats what ShouldEscalate already guarantees. Both
	// conditions must hold before an AI request is built, so a regression
	// in either the gate or the policy still cannot put a button click or
	// a yes/no in front of the AI.
	if verdict.Kind == FreeTextInvalid && ShouldEscalate(verdict) {
		text, usedAI := e.clarify(ctx, ClarifyRequest{
			TenantID:   c.TenantID,
			SessionID:  c.SessionID,
			Method:     c.Method,
			StepID:     step.ID,
			PromptText: step.Preview(c),
			UserInput:  verdict.Normalized,
			Reason:     verdict.Reason,
		})
		span.SetAttributes(attribute.Bool("escalated", true), attribute.Bool("ai.used", usedAI))
		e.log.Info("turn escalated", "sessionId", c.SessionID, "stepId", step.ID, "usedAi", usedAI)
		return e.turn(c, step, text, verdict.Kind.String(), true, usedAI), nil
	}

	c.RecordResponse(step.ID, verdict.Normalized)
	nextID, err := step.Transition(verdict.Normalized, c)
	if err != nil {
		return nil, e.fatal(ctx, span, c, err)
	}

	// Re-resolve the registry: the transition may have selected, or
	// switched, the session's method.
	reg, err := cat.Resolve(c)
	if err != nil {
		return nil, e.fatal(ctx, span, c, err)
	}
	next, err := reg.Step(nextID)
	if err != nil {
		return nil, e.fatal(ctx, span, c, err)
	}

	c.CurrentStepID = next.ID
	if next.Terminal {
		c.Status = StatusCompleted
	}

	// Render before save: rendering may consume the one-time bridge, and
	// that consumption must be part of the persisted state.
	prompt := next.Render(c)
	c.Touch()

	if err := e.store.Save(ctx, c); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("save session %s: %w", sessionID, err)
	}

	e.log.Info("turn advanced",
		"sessionId", c.SessionID,
		"from", step.ID,
		"to", next.ID,
		"kind", verdict.Kind.String(),
		"cycleCount", c.Cycle.Count,
	)
	return e.turn(c, next, prompt, verdict.Kind.String(), false, false), nil
}

// turn assembles the caller-facing result for the step the session now
// shows.
func (e *Engine) turn(c *Context, step *Step, prompt, kind string, escalated, usedAI bool) *Turn {
	return &Turn{
		SessionID:  c.SessionID,
		StepID:     step.ID,
		Method:     string(c.Method),
		PromptText: prompt,
		Expect:     step.Spec.Expect,
		Buttons:    step.Spec.Buttons,
		Labels:     step.Spec.Labels,
		InputKind:  kind,
		Escalated:  escalated,
		UsedAI:     usedAI,
		IsTerminal: step.Terminal,
		CycleCount: c.Cycle.Count,
	}
}

// fatal aborts the turn: the session is marked errored and the mark is
// persisted best-effort. Advancing a session whose position the catalog
// cannot resolve would show the user a prompt the protocol never chose.
func (e *Engine) fatal(ctx context.Context, span trace.Span, c *Context, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, "turn aborted")

	c.Status = StatusErrored
	c.Touch()
	if saveErr := e.store.Save(ctx, c); saveErr != nil {
		e.log.Error("failed to persist errored session", "sessionId", c.SessionID, "error", saveErr)
	}

	e.log.Error("turn aborted", "sessionId", c.SessionID, "stepId", c.CurrentStepID, "error", err)
	return err
}

// =============================================================================
// Clarification
// =============================================================================

// clarify runs the escalation path: the AI collaborator with a hard
// per-attempt timeout and a single retry, then the scripted fallback. The
// caller never sees an error from this path; an escalated turn always
// produces usable text.
func (e *Engine) clarify(ctx context.Context, req ClarifyRequest) (text string, usedAI bool) {
	if e.ai == nil {
		return fallbackClarification(req), false
	}
	for attempt := 1; attempt <= 2; attempt++ {
		cctx, cancel := context.WithTimeout(ctx, e.aiTimeout)
		text, err := e.ai.Clarify(cctx, req)
		cancel()
		if err == nil && strings.TrimSpace(text) != "" {
			return text, true
		}
		e.log.Warn("clarifier attempt failed",
			"sessionId", req.SessionID,
			"stepId", req.StepID,
			"attempt", attempt,
			"error", err,
		)
	}
	return fallbackClarification(req), false
}

// fallbackClarification is the deterministic clarification used when the
// AI collaborator is disabled, times out twice, or returns nothing.
func fallbackClarification(req ClarifyRequest) string {
	return "Let's take that again, in a few simple words. " + req.PromptText
}
