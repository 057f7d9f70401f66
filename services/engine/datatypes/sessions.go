// Copyright (C) 2025 InnerShift AI (engineering@innershift.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes provides request and response types for the engine
// service's session endpoints.
//
// Requests validate with go-playground/validator tags plus two custom
// validators: "maxbytes" bounds free-text input size and "tenantid"
// constrains tenant identifiers to a key-safe charset (tenant ids become
// storage key segments and metrics would choke on arbitrary strings).
package datatypes

import (
	"regexp"
	"time"

	"github.com/InnerShiftAI/InnerShiftCore/services/protocol"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// =============================================================================
// Limits
// =============================================================================

const (
	// MaxInputBytes is the maximum size of a single turn's input. Protocol
	// answers are short phrases; anything near this limit is a paste
	// accident or an abuse attempt, not a usable reply.
	MaxInputBytes = 4 * 1024 // 4KB

	// MaxTenantIDLength bounds tenant identifiers. Tenant ids are embedded
	// in storage keys, so the limit also caps key size.
	MaxTenantIDLength = 64
)

// =============================================================================
// Shared Validator Instance
// =============================================================================

// sessionValidate is the validator instance for session datatypes.
// Initialized in init() with custom validators.
var sessionValidate *validator.Validate

// tenantIDPattern matches lowercase alphanumerics with interior dashes.
var tenantIDPattern = regexp.MustCompile(`^[a-z0-9](?:[a-z0-9-]*[a-z0-9])?$`)

func init() {
	sessionValidate = validator.New()

	_ = sessionValidate.RegisterValidation("maxbytes", validateMaxBytes)
	_ = sessionValidate.RegisterValidation("tenantid", validateTenantID)
}

// validateMaxBytes checks byte length, not rune count, so multi-byte
// payloads cannot slip past the limit.
func validateMaxBytes(fl validator.FieldLevel) bool {
	return len(fl.Field().String()) <= MaxInputBytes
}

func validateTenantID(fl validator.FieldLevel) bool {
	id := fl.Field().String()
	return len(id) <= MaxTenantIDLength && tenantIDPattern.MatchString(id)
}

// =============================================================================
// Work Types
// =============================================================================

// Work types accepted by StartSessionRequest. When present, the service
// answers the welcome menu on the caller's behalf so the first prompt is
// already the matching intake question.
const (
	WorkTypeProblem            = "problem"
	WorkTypeGoal               = "goal"
	WorkTypeNegativeExperience = "negative_experience"
)

// =============================================================================
// Request Types
// =============================================================================

// StartSessionRequest is the body for POST /v1/sessions.
//
// # Description
//
// Opens a protocol session for the tenant identified by the X-Tenant-ID
// header. The body is optional: an empty body starts at the welcome menu.
// Every request carries an ID and timestamp for audit trails; both are
// generated server-side when absent.
//
// # Fields
//
//   - RequestID: Optional. Client-supplied UUID v4 for tracing correlation.
//   - Timestamp: Optional. Unix milliseconds (UTC) when the client built
//     the request.
//   - TenantID: Taken from the X-Tenant-ID header, never the body, so a
//     request cannot address one tenant and bill another.
//   - WorkType: Optional. Pre-answers the welcome menu ("problem", "goal",
//     "negative_experience"). Empty means the caller picks interactively.
//
// # Validation
//
//   - RequestID: UUID v4 when present
//   - TenantID: required, lowercase alphanumeric plus interior dashes,
//     max 64 bytes
//   - WorkType: one of the three menu choices when present
type StartSessionRequest struct {
	RequestID string `json:"request_id" validate:"omitempty,uuid4"`
	Timestamp int64  `json:"timestamp" validate:"omitempty,gt=0"`
	TenantID  string `json:"-" validate:"required,tenantid"`
	WorkType  string `json:"work_type" validate:"omitempty,oneof=problem goal negative_experience"`
}

// Validate validates the request fields, including the header-sourced
// TenantID. Call after binding and after TenantID is populated.
func (r *StartSessionRequest) Validate() error {
	return sessionValidate.Struct(r)
}

// EnsureDefaults populates RequestID and Timestamp when the client
// omitted them.
func (r *StartSessionRequest) EnsureDefaults() {
	if r.RequestID == "" {
		r.RequestID = uuid.NewString()
	}
	if r.Timestamp == 0 {
		r.Timestamp = time.Now().UnixMilli()
	}
}

// AdvanceRequest is the body for POST /v1/sessions/:sessionId/advance.
//
// # Description
//
// Carries one user reply. The protocol gate decides what the reply means;
// this type only enforces transport-level bounds.
//
// # Validation
//
//   - Input: required, max 4KB. Whitespace-only input passes here and is
//     rejected by the engine, which owns the empty-input rule.
type AdvanceRequest struct {
	RequestID string `json:"request_id" validate:"omitempty,uuid4"`
	Timestamp int64  `json:"timestamp" validate:"omitempty,gt=0"`
	Input     string `json:"input" validate:"required,maxbytes"`
}

// Validate validates the AdvanceRequest fields.
func (r *AdvanceRequest) Validate() error {
	return sessionValidate.Struct(r)
}

// EnsureDefaults populates RequestID and Timestamp when the client
// omitted them.
func (r *AdvanceRequest) EnsureDefaults() {
	if r.RequestID == "" {
		r.RequestID = uuid.NewString()
	}
	if r.Timestamp == 0 {
		r.Timestamp = time.Now().UnixMilli()
	}
}

// =============================================================================
// Response Types
// =============================================================================

// TurnResponse wraps one protocol turn for the HTTP surface.
//
// The envelope fields are service-level (snake_case, audit ids); the
// embedded turn keeps the protocol's own serialization, which matches the
// session records in the store.
type TurnResponse struct {
	ResponseID string         `json:"response_id"`
	RequestID  string         `json:"request_id,omitempty"`
	Timestamp  int64          `json:"timestamp"`
	Turn       *protocol.Turn `json:"turn"`
}

// NewTurnResponse builds a TurnResponse with a fresh ResponseID and the
// current timestamp, echoing the request ID for correlation.
func NewTurnResponse(requestID string, turn *protocol.Turn) *TurnResponse {
	return &TurnResponse{
		ResponseID: uuid.NewString(),
		RequestID:  requestID,
		Timestamp:  time.Now().UnixMilli(),
		Turn:       turn,
	}
}

// SessionResource is the read-model for GET /v1/sessions endpoints.
//
// It carries progress metadata plus the captured problem statement.
// Individual step answers stay out of the API: the store keeps them for
// substitution rendering, not for replay.
type SessionResource struct {
	SessionID        string `json:"session_id"`
	TenantID         string `json:"tenant_id"`
	Status           string `json:"status"`
	WorkType         string `json:"work_type,omitempty"`
	Method           string `json:"method,omitempty"`
	CurrentStepID    string `json:"current_step_id"`
	CycleCount       int    `json:"cycle_count"`
	ProblemStatement string `json:"problem_statement,omitempty"`
	CreatedAtMs      int64  `json:"created_at_ms"`
	UpdatedAtMs      int64  `json:"updated_at_ms"`
	Version          uint64 `json:"version"`
}

// NewSessionResource projects a protocol context onto the API read-model.
func NewSessionResource(c *protocol.Context) SessionResource {
	return SessionResource{
		SessionID:        c.SessionID,
		TenantID:         c.TenantID,
		Status:           string(c.Status),
		WorkType:         string(c.WorkType),
		Method:           string(c.Method),
		CurrentStepID:    c.CurrentStepID,
		CycleCount:       c.Cycle.Count,
		ProblemStatement: c.ProblemStatement,
		CreatedAtMs:      c.CreatedAtMs,
		UpdatedAtMs:      c.UpdatedAtMs,
		Version:          c.Version,
	}
}

// ListSessionsResponse is the body for GET /v1/sessions.
type ListSessionsResponse struct {
	Count    int               `json:"count"`
	Sessions []SessionResource `json:"sessions"`
}
