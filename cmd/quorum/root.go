package main

import (
	"fmt"
	"os"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/spf13/cobra"

	"github.com/quorumhq/quorum/internal/config"
	"github.com/quorumhq/quorum/internal/orchestrator"
	"github.com/quorumhq/quorum/internal/provider"
	"github.com/quorumhq/quorum/internal/state"
)

var (
	flagWorkspace string
	flagModel     string
	flagAgents    []string
	flagBedrock   bool
	flagDebug     bool
)

var rootCmd = &cobra.Command{
	Use:   "quorum",
	Short: "Multi-agent collaboration engine",
	Long: `Quorum decomposes a goal into tasks, dispatches them to capability-matched
agents, executes the task graph in parallel, and synthesizes the results into
a single traced, verifiable decision.

Core capabilities:
- Breaks goals into dependency-ordered subtasks
- Matches each task to the best-suited agent
- Runs independent tasks concurrently with retries and timeouts
- Aggregates results and makes a confidence-scored decision
- Records every run as a trace, with a feedback loop for verifying
  decisions against real outcomes`,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagWorkspace, "workspace", "", "Workspace directory for traces and feedback")
	rootCmd.PersistentFlags().StringVar(&flagModel, "model", "", "Claude model to use")
	rootCmd.PersistentFlags().StringSliceVar(&flagAgents, "agents", nil, "Restrict dispatch to these agent IDs")
	rootCmd.PersistentFlags().BoolVar(&flagBedrock, "bedrock", false, "Use AWS Bedrock instead of the direct API")
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Write a debug log to the workspace")

	rootCmd.AddCommand(collaborateCmd)
	rootCmd.AddCommand(deliberateCmd)
	rootCmd.AddCommand(tracesCmd)
	rootCmd.AddCommand(feedbackCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig loads the configuration and applies flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if flagWorkspace != "" {
		cfg.Workspace = flagWorkspace
	}
	if flagModel != "" {
		cfg.Anthropic.Model = flagModel
	}
	if flagBedrock {
		cfg.Anthropic.UseBedrock = true
	}
	if cfg.Orchestrator == nil {
		cfg.Orchestrator = orchestrator.DefaultOptions()
	}
	return cfg, nil
}

// buildOrchestrator wires the full pipeline from configuration.
func buildOrchestrator(cfg *config.Config, extraOpts ...orchestrator.Option) (*orchestrator.Orchestrator, error) {
	client, err := provider.NewAnthropicClient(provider.AnthropicConfig{
		Model:         anthropic.Model(cfg.Anthropic.Model),
		APIKey:        cfg.Anthropic.APIKey,
		UseAWSBedrock: cfg.Anthropic.UseBedrock,
		AWSRegion:     cfg.Anthropic.AWSRegion,
		AWSProfile:    cfg.Anthropic.AWSProfile,
	})
	if err != nil {
		return nil, fmt.Errorf("create API client: %w", err)
	}

	specs := config.DefaultAgents()
	if cfg.AgentsFile != "" {
		loaded, err := config.LoadAgents(cfg.AgentsFile)
		if err != nil {
			return nil, err
		}
		specs = loaded
	}
	registry := config.BuildRegistry(specs, flagAgents)

	opts := []orchestrator.Option{
		orchestrator.WithOptions(cfg.Orchestrator),
	}
	if flagDebug {
		opts = append(opts, orchestrator.WithLogger(orchestrator.NewDebugLoggerForWorkspace(cfg.Workspace)))
	}
	if db, err := state.OpenGlobal(); err == nil {
		if err := db.Migrate(); err == nil {
			opts = append(opts, orchestrator.WithHistory(db))
		}
	}
	opts = append(opts, extraOpts...)

	return orchestrator.New(orchestrator.RequiredConfig{
		Client:    client,
		Registry:  registry,
		Workspace: cfg.Workspace,
	}, opts...)
}
