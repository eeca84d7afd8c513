// Package openai adapts the OpenAI Chat Completions API to the explain.Explainer
// interface. Calls are rate limited and timeout bound; any failure surfaces as
// an error so the orchestrator can fall back to the composed reply.
package openai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"golang.org/x/time/rate"

	"github.com/shelfwise/shelfwise/core"
	"github.com/shelfwise/shelfwise/explain"
)

// Options configure the OpenAI explainer adapter.
type Options struct {
	Model       string
	Temperature float64
	MaxTokens   int64
	Timeout     time.Duration
	// RequestsPerSecond caps outbound calls; explainer traffic should never
	// starve tool execution.
	RequestsPerSecond float64
}

// Explainer wraps the OpenAI client behind explain.Explainer.
type Explainer struct {
	client  *openai.Client
	limiter *rate.Limiter
	opts    Options
}

// New creates an explainer using the default client (API key from the
// environment).
func New(optFns ...func(o *Options)) *Explainer {
	client := openai.NewClient()
	return NewFromClient(&client, optFns...)
}

// NewFromClient creates an explainer from an existing client.
func NewFromClient(client *openai.Client, optFns ...func(o *Options)) *Explainer {
	opts := Options{
		Model:             openai.ChatModelGPT4oMini,
		Temperature:       0.4,
		MaxTokens:         512,
		Timeout:           8 * time.Second,
		RequestsPerSecond: 2,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Explainer{
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1),
		opts:    opts,
	}
}

// Explain rewrites the composed draft. Timeouts and empty completions are
// reported as dependency failures.
func (e *Explainer) Explain(ctx context.Context, b explain.Bundle, composed string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()

	if err := e.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("openai explainer rate limit: %w", core.ErrDependencyUnavailable)
	}

	resp, err := e.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: e.opts.Model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(explain.SystemPrompt),
			openai.UserMessage(explain.UserPrompt(b, composed)),
		},
		Temperature:         openai.Float(e.opts.Temperature),
		MaxCompletionTokens: openai.Int(e.opts.MaxTokens),
	})
	if err != nil {
		return "", fmt.Errorf("openai explainer: %v: %w", err, core.ErrDependencyUnavailable)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai explainer returned no choices: %w", core.ErrDependencyUnavailable)
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("openai explainer returned empty text: %w", core.ErrDependencyUnavailable)
	}
	return text, nil
}
