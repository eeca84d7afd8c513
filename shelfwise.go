// Package shelfwise provides a high-level façade over the concierge
// orchestrator and its supporting services (snapshots, state, sessions and
// logging) enabling rapid construction of a library assistant. Most
// applications interact with this package by:
//  1. Creating a Shelfwise via New() with a snapshot provider (optionally
//     overriding the default in-memory services)
//  2. Asking concierge questions (Ask) or invoking capability tools directly
//     through the embedded registry
//
// The façade delegates orchestration to agent.Orchestrator while keeping
// setup ergonomics concise. All defaults are safe for local development and
// testing; production deployments typically supply a file-backed state store
// and a structured logger.
package shelfwise

import (
	"context"
	"time"

	"github.com/shelfwise/shelfwise/agent"
	"github.com/shelfwise/shelfwise/core"
	"github.com/shelfwise/shelfwise/explain"
	"github.com/shelfwise/shelfwise/logging"
	"github.com/shelfwise/shelfwise/session"
	"github.com/shelfwise/shelfwise/state"
	"github.com/shelfwise/shelfwise/tool"
)

// Options configures the Shelfwise instance.
type Options struct {
	// Store holds durable concierge state: holds, onboarding profiles,
	// feedback and the observability log. Defaults to an in-memory store.
	Store state.Store

	// SessionStore keeps conversation transcripts keyed by session id.
	// Defaults to an in-memory store.
	SessionStore core.SessionStore

	// ExplainerProvider labels explainer log lines ("openai", "anthropic").
	ExplainerProvider string

	// Explainer optionally rewrites composed replies. Nil disables the
	// rewrite; replies are then fully deterministic.
	Explainer explain.Explainer

	// HoldRetention is the window after which an unfulfilled hold expires.
	HoldRetention time.Duration

	// FeedbackWeight scales how strongly ratings shift recommendation order.
	FeedbackWeight float64

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// Shelfwise is the high-level façade aggregating the orchestrator and its
// services.
type Shelfwise struct {
	opts         Options
	orchestrator *agent.Orchestrator
	registry     *tool.Registry
	snapshots    core.SnapshotProvider
}

// New creates a Shelfwise instance over a snapshot provider with optional
// overrides. Any unset service is initialized with an in-memory
// implementation.
func New(snapshots core.SnapshotProvider, optFns ...func(o *Options)) *Shelfwise {
	opts := Options{
		Store:          state.NewInMemoryStore(),
		SessionStore:   session.NewInMemoryStore(),
		HoldRetention:  tool.DefaultHoldRetention,
		FeedbackWeight: 1.0,
		Logger:         logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	orchOpts := []func(o *agent.Options){
		agent.WithLogger(opts.Logger),
		agent.WithHoldRetention(opts.HoldRetention),
		agent.WithFeedbackWeight(opts.FeedbackWeight),
	}
	if opts.Explainer != nil {
		orchOpts = append(orchOpts, agent.WithExplainer(opts.ExplainerProvider, opts.Explainer))
	}
	orch := agent.New(snapshots, opts.Store, opts.SessionStore, orchOpts...)

	return &Shelfwise{
		opts:         opts,
		orchestrator: orch,
		registry:     tool.DefaultRegistry(opts.Logger),
		snapshots:    snapshots,
	}
}

// Ask runs one concierge turn: routing, tool execution, recommendation and
// reply composition.
func (s *Shelfwise) Ask(ctx context.Context, req agent.Request) (*agent.Response, error) {
	return s.orchestrator.Handle(ctx, req)
}

// Invoke calls a single capability tool by name against a fresh snapshot,
// bypassing the concierge pipeline. Useful for direct API surfaces and tests.
func (s *Shelfwise) Invoke(ctx context.Context, name string, args map[string]any) (*tool.Result, error) {
	snap, err := s.snapshots.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return s.registry.Invoke(ctx, name, &tool.Invocation{
		Snapshot:      snap,
		Store:         s.opts.Store,
		Now:           time.Now(),
		Args:          args,
		HoldRetention: s.opts.HoldRetention,
	})
}

// Tools lists the registered capability tool names in registration order.
func (s *Shelfwise) Tools() []string { return s.registry.Names() }
