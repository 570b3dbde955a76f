// Package advisor consults an OpenAI-compatible LLM endpoint for
// trading decisions. The default target is DeepSeek's chat API.
package advisor

import (
	"context"
	"fmt"
	"time"

	"github.com/cryptooracle/oraclebot/config"
	"github.com/cryptooracle/oraclebot/core"
	"github.com/jpillora/backoff"
	"github.com/sashabaranov/go-openai"
)

const (
	requestTimeout = 30 * time.Second
	maxRetries     = 2
	temperature    = 0.1
)

// Client calls the chat-completion endpoint and normalizes the answer
// into a core.Decision
type Client struct {
	api   *openai.Client
	model string
	log   core.Logger
}

// NewClient builds an advisor client from the model configuration
func NewClient(cfg config.ModelConfig, log core.Logger) *Client {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &Client{
		api:   openai.NewClientWithConfig(clientCfg),
		model: cfg.Model,
		log:   log,
	}
}

// Decide implements core.Advisor. The call is bounded by a 30 second
// timeout and retried up to two times on transient failures. A nil
// error with a HOLD decision is never fabricated: callers treat an
// error as "skip analysis this tick".
func (c *Client) Decide(ctx context.Context, req core.AdvisorRequest) (core.Decision, error) {
	system, user := BuildPrompt(req)

	b := &backoff.Backoff{Min: time.Second, Max: 10 * time.Second, Factor: 2}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, requestTimeout)
		resp, err := c.api.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
			Model:       c.model,
			Temperature: temperature,
			ResponseFormat: &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONObject,
			},
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: system},
				{Role: openai.ChatMessageRoleUser, Content: user},
			},
		})
		cancel()

		if err == nil {
			if len(resp.Choices) == 0 {
				return core.Decision{}, fmt.Errorf("advisor returned no choices")
			}
			decision, perr := ParseDecision(resp.Choices[0].Message.Content, req.DefaultAmount)
			if perr != nil {
				return core.Decision{}, perr
			}
			return decision, nil
		}

		lastErr = err
		c.log.Warnf("advisor call failed (attempt %d/%d): %v", attempt+1, maxRetries+1, err)
		select {
		case <-ctx.Done():
			return core.Decision{}, ctx.Err()
		case <-time.After(b.Duration()):
		}
	}
	return core.Decision{}, fmt.Errorf("advisor unavailable: %w", lastErr)
}
