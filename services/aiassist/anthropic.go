// Copyright (C) 2025 InnerShift AI (engineering@innershift.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package aiassist

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/awnumar/memguard"
	"golang.org/x/time/rate"

	"github.com/InnerShiftAI/InnerShiftCore/pkg/logging"
	"github.com/InnerShiftAI/InnerShiftCore/services/protocol"
)

const (
	anthropicAPIVersion   = "2023-06-01"
	anthropicBaseURL      = "https://api.anthropic.com/v1/messages"
	defaultAnthropicModel = "claude-3-5-haiku-20241022"
)

type anthropicRequest struct {
	Model     string             `json:"model"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
	MaxTokens int                `json:"max_tokens"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []anthropicContent `json:"content"`
	Error   *anthropicError    `json:"error,omitempty"`
}

type anthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

var _ protocol.Clarifier = (*anthropicClarifier)(nil)

type anthropicClarifier struct {
	key        *memguard.Enclave
	model      string
	baseURL    string
	maxTokens  int
	httpClient *http.Client
	limiter    *rate.Limiter
	log        *logging.Logger
}

func newAnthropicClarifier(cfg Config, key *memguard.Enclave) *anthropicClarifier {
	model := cfg.Model
	if model == "" {
		model = defaultAnthropicModel
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = anthropicBaseURL
	}
	return &anthropicClarifier{
		key:        key,
		model:      model,
		baseURL:    baseURL,
		maxTokens:  cfg.MaxTokens,
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		log:        cfg.Logger,
	}
}

// Clarify restates the current scripted question via the Anthropic
// messages API.
func (c *anthropicClarifier) Clarify(ctx context.Context, req protocol.ClarifyRequest) (string, error) {
	return clarifyCall(ctx, ProviderAnthropic, c.limiter, req, func(ctx context.Context) (string, error) {
		payload := anthropicRequest{
			Model:  c.model,
			System: clarifySystemPrompt,
			Messages: []anthropicMessage{
				{Role: "user", Content: clarifyUserMessage(req)},
			},
			MaxTokens: c.maxTokens,
		}
		body, err := json.Marshal(payload)
		if err != nil {
			return "", fmt.Errorf("marshal request: %w", err)
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
		if err != nil {
			return "", fmt.Errorf("create request: %w", err)
		}

		buf, err := c.key.Open()
		if err != nil {
			return "", fmt.Errorf("open api key: %w", err)
		}
		defer buf.Destroy()
		httpReq.Header.Set("x-api-key", buf.String())
		httpReq.Header.Set("anthropic-version", anthropicAPIVersion)
		httpReq.Header.Set("content-type", "application/json")

		start := time.Now()
		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			return "", fmt.Errorf("http request: %w", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return "", fmt.Errorf("read response: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return "", fmt.Errorf("anthropic API returned status %d: %s", resp.StatusCode, respBody)
		}

		var apiResp anthropicResponse
		if err := json.Unmarshal(respBody, &apiResp); err != nil {
			return "", fmt.Errorf("parse response: %w", err)
		}
		if apiResp.Error != nil {
			return "", fmt.Errorf("anthropic API error: %s - %s", apiResp.Error.Type, apiResp.Error.Message)
		}

		var text string
		for _, block := range apiResp.Content {
			if block.Type == "text" {
				text += block.Text
			}
		}
		if text == "" {
			return "", errors.New("anthropic returned no text content")
		}

		c.log.Debug("Anthropic clarification served",
			"model", c.model,
			"step_id", req.StepID,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return text, nil
	})
}
