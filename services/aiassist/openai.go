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
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/awnumar/memguard"
	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/InnerShiftAI/InnerShiftCore/pkg/logging"
	"github.com/InnerShiftAI/InnerShiftCore/services/protocol"
)

const defaultOpenAIModel = "gpt-4o-mini"

var _ protocol.Clarifier = (*openAIClarifier)(nil)

type openAIClarifier struct {
	key        *memguard.Enclave
	model      string
	baseURL    string
	maxTokens  int
	httpClient *http.Client
	limiter    *rate.Limiter
	log        *logging.Logger
}

func newOpenAIClarifier(cfg Config, key *memguard.Enclave) *openAIClarifier {
	model := cfg.Model
	if model == "" {
		model = defaultOpenAIModel
	}
	return &openAIClarifier{
		key:        key,
		model:      model,
		baseURL:    cfg.BaseURL,
		maxTokens:  cfg.MaxTokens,
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		log:        cfg.Logger,
	}
}

// Clarify restates the current scripted question via the OpenAI chat API.
func (c *openAIClarifier) Clarify(ctx context.Context, req protocol.ClarifyRequest) (string, error) {
	return clarifyCall(ctx, ProviderOpenAI, c.limiter, req, func(ctx context.Context) (string, error) {
		buf, err := c.key.Open()
		if err != nil {
			return "", fmt.Errorf("open api key: %w", err)
		}
		defer buf.Destroy()

		// The SDK client is a thin struct around the shared HTTP client,
		// so building it per call keeps the key out of long-lived state
		// without losing connection pooling.
		conf := openai.DefaultConfig(buf.String())
		conf.HTTPClient = c.httpClient
		if c.baseURL != "" {
			conf.BaseURL = c.baseURL
		}
		client := openai.NewClientWithConfig(conf)

		start := time.Now()
		resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:               c.model,
			MaxCompletionTokens: c.maxTokens,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: clarifySystemPrompt},
				{Role: openai.ChatMessageRoleUser, Content: clarifyUserMessage(req)},
			},
		})
		if err != nil {
			c.log.Warn("OpenAI clarification failed", "model", c.model, "error", err)
			return "", fmt.Errorf("openai chat completion: %w", err)
		}
		if len(resp.Choices) == 0 {
			return "", errors.New("openai returned no choices")
		}

		c.log.Debug("OpenAI clarification served",
			"model", c.model,
			"step_id", req.StepID,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return resp.Choices[0].Message.Content, nil
	})
}
