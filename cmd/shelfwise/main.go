// Command shelfwise runs the library concierge service.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/spf13/cobra"

	"github.com/shelfwise/shelfwise/agent"
	"github.com/shelfwise/shelfwise/config"
	"github.com/shelfwise/shelfwise/explain"
	explainanthropic "github.com/shelfwise/shelfwise/explain/anthropic"
	explainopenai "github.com/shelfwise/shelfwise/explain/openai"
	"github.com/shelfwise/shelfwise/logging"
	"github.com/shelfwise/shelfwise/server"
	"github.com/shelfwise/shelfwise/session"
	"github.com/shelfwise/shelfwise/snapshot"
	"github.com/shelfwise/shelfwise/state"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "shelfwise",
		Short:         "School library concierge and recommendation engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to configuration file")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP service",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), configPath)
		},
	}
	root.AddCommand(serve)
	return root
}

func runServe(parent context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := logging.New(&logging.Config{
		Level:  logging.ParseLevel(cfg.Log.Level),
		Format: cfg.Log.Format,
		Output: os.Stderr,
	})

	loader, err := snapshot.NewLoader(cfg.DataDir, logger)
	if err != nil {
		return fmt.Errorf("load snapshot data: %w", err)
	}
	store, err := state.OpenFileStore(cfg.StatePath)
	if err != nil {
		return fmt.Errorf("open state store: %w", err)
	}

	orchOpts := []func(o *agent.Options){
		agent.WithLogger(logger),
		agent.WithHoldRetention(cfg.HoldRetention()),
		agent.WithFeedbackWeight(cfg.Recommend.FeedbackWeight),
	}
	if explainer := newExplainer(cfg); explainer != nil {
		orchOpts = append(orchOpts, agent.WithExplainer(cfg.Explainer.Provider, explainer))
	}
	orch := agent.New(loader, store, session.NewInMemoryStore(), orchOpts...)

	srv := server.New(loader, store, orch,
		server.WithLogger(logger),
		server.WithHoldRetention(cfg.HoldRetention()),
		server.WithFeedbackWeight(cfg.Recommend.FeedbackWeight),
		server.WithDefaultTopK(cfg.Recommend.TopK),
	)

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()
	return srv.ListenAndServe(ctx, cfg.Listen)
}

// newExplainer builds the configured reply rewriter, or nil when disabled.
// API keys come from the provider SDK's environment variables.
func newExplainer(cfg config.Config) explain.Explainer {
	switch cfg.Explainer.Provider {
	case "openai":
		return explainopenai.New(func(o *explainopenai.Options) {
			if cfg.Explainer.Model != "" {
				o.Model = cfg.Explainer.Model
			}
			o.Timeout = cfg.ExplainerTimeout()
		})
	case "anthropic":
		return explainanthropic.New(func(o *explainanthropic.Options) {
			if cfg.Explainer.Model != "" {
				o.Model = anthropicsdk.Model(cfg.Explainer.Model)
			}
			o.Timeout = cfg.ExplainerTimeout()
		})
	default:
		return nil
	}
}
