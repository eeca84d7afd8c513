// Package anthropic adapts the Anthropic Messages API to the
// explain.Explainer interface.
package anthropic

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"golang.org/x/time/rate"

	"github.com/shelfwise/shelfwise/core"
	"github.com/shelfwise/shelfwise/explain"
)

// Options configure the Anthropic explainer adapter.
type Options struct {
	Model             anthropic.Model
	Temperature       float64
	MaxTokens         int64
	Timeout           time.Duration
	RequestsPerSecond float64
	APIKey            string
}

// Explainer wraps the Anthropic client behind explain.Explainer.
type Explainer struct {
	client  *anthropic.Client
	limiter *rate.Limiter
	opts    Options
}

// New creates an explainer using the official client; the API key falls back
// to the environment when not set in options.
func New(optFns ...func(o *Options)) *Explainer {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	client := anthropic.NewClient(clientOpts...)
	return &Explainer{
		client:  &client,
		limiter: rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1),
		opts:    opts,
	}
}

// NewFromClient creates an explainer from an existing client.
func NewFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Explainer {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Explainer{
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1),
		opts:    opts,
	}
}

func defaultOptions() Options {
	return Options{
		Model:             anthropic.ModelClaude3_5Sonnet20241022,
		Temperature:       0.4,
		MaxTokens:         512,
		Timeout:           8 * time.Second,
		RequestsPerSecond: 2,
	}
}

// Explain rewrites the composed draft. Timeouts and empty completions are
// reported as dependency failures.
func (e *Explainer) Explain(ctx context.Context, b explain.Bundle, composed string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()

	if err := e.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("anthropic explainer rate limit: %w", core.ErrDependencyUnavailable)
	}

	resp, err := e.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       e.opts.Model,
		MaxTokens:   e.opts.MaxTokens,
		Temperature: anthropic.Float(e.opts.Temperature),
		System: []anthropic.TextBlockParam{
			{Text: explain.SystemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(explain.UserPrompt(b, composed))),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic explainer: %v: %w", err, core.ErrDependencyUnavailable)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", fmt.Errorf("anthropic explainer returned empty text: %w", core.ErrDependencyUnavailable)
	}
	return text, nil
}
