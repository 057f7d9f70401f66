// Copyright (C) 2025 InnerShift AI (engineering@innershift.ai)
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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/InnerShiftAI/InnerShiftCore/services/engine/datatypes"
	"github.com/InnerShiftAI/InnerShiftCore/services/engine/middleware"
	"github.com/InnerShiftAI/InnerShiftCore/services/protocol"
)

// =============================================================================
// Engine API Client
// =============================================================================

// EngineClient talks to the engine service's HTTP and websocket API.
//
// # Thread Safety
//
// Safe for concurrent use; the underlying http.Client handles pooling.
type EngineClient struct {
	baseURL string
	apiKey  string
	tenant  string
	http    *http.Client
}

// NewEngineClient builds a client from the CLI configuration.
func NewEngineClient(cfg Config) *EngineClient {
	return &EngineClient{
		baseURL: strings.TrimRight(cfg.ServerURL, "/"),
		apiKey:  cfg.APIKey,
		tenant:  cfg.Tenant,
		http: &http.Client{
			Timeout: cfg.Timeout(),
		},
	}
}

// apiError is the engine's error envelope.
type apiError struct {
	Error string `json:"error"`
}

// do runs one request against the engine API, decoding the response into
// out when it is non-nil.
func (c *EngineClient) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		buf := &bytes.Buffer{}
		if err := json.NewEncoder(buf).Encode(body); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reqBody = buf
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.setAuthHeaders(req.Header)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("engine unreachable at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("engine: %s (HTTP %d)", apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("engine: HTTP %d", resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func (c *EngineClient) setAuthHeaders(h http.Header) {
	if c.apiKey != "" {
		h.Set(middleware.HeaderAPIKey, c.apiKey)
	}
	h.Set(middleware.HeaderTenantID, c.tenant)
}

// =============================================================================
// Session Operations
// =============================================================================

// StartSession opens a new session. workType may be empty for the plain
// welcome menu.
func (c *EngineClient) StartSession(ctx context.Context, workType string) (*protocol.Turn, error) {
	req := datatypes.StartSessionRequest{WorkType: workType}
	var resp datatypes.TurnResponse
	if err := c.do(ctx, http.MethodPost, "/v1/sessions", req, &resp); err != nil {
		return nil, err
	}
	if resp.Turn == nil {
		return nil, fmt.Errorf("engine returned no turn")
	}
	return resp.Turn, nil
}

// Advance submits one reply and returns the next turn.
func (c *EngineClient) Advance(ctx context.Context, sessionID, input string) (*protocol.Turn, error) {
	req := datatypes.AdvanceRequest{Input: input}
	var resp datatypes.TurnResponse
	path := "/v1/sessions/" + url.PathEscape(sessionID) + "/advance"
	if err := c.do(ctx, http.MethodPost, path, req, &resp); err != nil {
		return nil, err
	}
	if resp.Turn == nil {
		return nil, fmt.Errorf("engine returned no turn")
	}
	return resp.Turn, nil
}

// GetSession fetches one session's read-model.
func (c *EngineClient) GetSession(ctx context.Context, sessionID string) (*datatypes.SessionResource, error) {
	var res datatypes.SessionResource
	path := "/v1/sessions/" + url.PathEscape(sessionID)
	if err := c.do(ctx, http.MethodGet, path, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// ListSessions fetches the tenant's sessions, most recently updated first.
func (c *EngineClient) ListSessions(ctx context.Context) (*datatypes.ListSessionsResponse, error) {
	var res datatypes.ListSessionsResponse
	if err := c.do(ctx, http.MethodGet, "/v1/sessions", nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// DeleteSession removes one session.
func (c *EngineClient) DeleteSession(ctx context.Context, sessionID string) error {
	path := "/v1/sessions/" + url.PathEscape(sessionID)
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// =============================================================================
// Service Probes
// =============================================================================

// Health fetches the engine's health payload.
func (c *EngineClient) Health(ctx context.Context) (map[string]any, error) {
	var res map[string]any
	if err := c.do(ctx, http.MethodGet, "/health", nil, &res); err != nil {
		return nil, err
	}
	return res, nil
}

// MetricsUp verifies the Prometheus scrape endpoint responds.
func (c *EngineClient) MetricsUp(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/metrics", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("metrics unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("metrics endpoint returned HTTP %d", resp.StatusCode)
	}
	return nil
}

// =============================================================================
// Turn Stream
// =============================================================================

// StreamSession opens the websocket turn stream for a session. The first
// frame replays the current prompt, so this also serves as resume.
func (c *EngineClient) StreamSession(ctx context.Context, sessionID string) (*websocket.Conn, error) {
	wsURL, err := c.streamURL(sessionID)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	c.setAuthHeaders(header)

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	ws, resp, err := dialer.DialContext(ctx, wsURL, header)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			var apiErr apiError
			if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
				return nil, fmt.Errorf("engine: %s (HTTP %d)", apiErr.Error, resp.StatusCode)
			}
		}
		return nil, fmt.Errorf("stream connect failed: %w", err)
	}
	return ws, nil
}

// streamURL converts the configured base URL into the session's ws:// or
// wss:// stream endpoint.
func (c *EngineClient) streamURL(sessionID string) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("bad server URL %q: %w", c.baseURL, err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported server URL scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/v1/sessions/" + url.PathEscape(sessionID) + "/stream"
	return u.String(), nil
}
