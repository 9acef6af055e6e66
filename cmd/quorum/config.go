package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/quorumhq/quorum/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the resolved configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		bold := color.New(color.Bold)
		fmt.Printf("%s %s\n", bold.Sprint("Config file:"), config.GetUserConfigPath())
		fmt.Printf("%s %s\n", bold.Sprint("Workspace:"), cfg.Workspace)

		key, _ := config.GetAPIKey(cfg)
		fmt.Printf("%s %s (from %s)\n", bold.Sprint("API key:"),
			config.MaskAPIKey(key), config.GetAPIKeySource(cfg))

		model := cfg.Anthropic.Model
		if model == "" {
			model = "(provider default)"
		}
		fmt.Printf("%s %s\n", bold.Sprint("Model:"), model)
		if cfg.Anthropic.UseBedrock {
			fmt.Printf("%s bedrock region=%s profile=%s\n", bold.Sprint("Backend:"),
				cfg.Anthropic.AWSRegion, cfg.Anthropic.AWSProfile)
		} else {
			fmt.Printf("%s direct API\n", bold.Sprint("Backend:"))
		}

		o := cfg.Orchestrator
		fmt.Printf("\n%s\n", bold.Sprint("Orchestrator:"))
		fmt.Printf("  max_concurrent_tasks: %d\n", o.MaxConcurrentTasks)
		fmt.Printf("  task_timeout_seconds: %d\n", o.TaskTimeoutSeconds)
		fmt.Printf("  total_timeout_seconds: %d\n", o.TotalTimeoutSeconds)
		fmt.Printf("  max_retries: %d\n", o.MaxRetries)
		fmt.Printf("  retry_delay_seconds: %g\n", o.RetryDelaySeconds)
		fmt.Printf("  dispatch_strategy: %s\n", o.DispatchStrategy)
		fmt.Printf("  required_task_failure_mode: %s\n", o.RequiredTaskFailureMode)
		fmt.Printf("  trace_enabled: %t\n", o.TraceEnabled)
		fmt.Printf("  feedback_enabled: %t (reminder after %d days)\n",
			o.FeedbackEnabled, o.FeedbackReminderDays)
		return nil
	},
}
