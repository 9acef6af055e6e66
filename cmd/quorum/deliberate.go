package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/quorumhq/quorum/internal/deliberate"
	"github.com/quorumhq/quorum/internal/orchestrator"
	"github.com/quorumhq/quorum/pkg/models"
)

var (
	delibRounds     int
	delibNoFeedback bool
	delibTimeout    int
)

var deliberateCmd = &cobra.Command{
	Use:   "deliberate <goal>",
	Short: "Deliberate a goal over multiple structured rounds",
	Long: `Deliberate plans a sequence of discussion topics for the goal, works
through them round by round (each building on the conclusions so far), then
produces a final report with a decision, action items and risks.`,
	Args: cobra.ExactArgs(1),
	RunE: runDeliberate,
}

func init() {
	deliberateCmd.Flags().IntVar(&delibRounds, "rounds", 0, "Maximum rounds (0 uses the default)")
	deliberateCmd.Flags().BoolVar(&delibNoFeedback, "no-feedback", false, "Skip recording the decision for verification")
	deliberateCmd.Flags().IntVar(&delibTimeout, "timeout", 0, "Total timeout in seconds (0 uses the default)")
}

func runDeliberate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	orch, err := buildOrchestrator(cfg, orchestrator.WithDeliberationProgress(printDeliberationEvent))
	if err != nil {
		return err
	}

	request := models.NewDeliberationRequest(args[0])
	if delibRounds > 0 {
		request.MaxRounds = delibRounds
	}
	if delibNoFeedback {
		request.FeedbackEnabled = false
	}
	if delibTimeout > 0 {
		request.TimeoutSeconds = delibTimeout
	}

	fmt.Printf("%s %s\n\n", color.CyanString("Goal:"), request.Goal)

	result, delibTrace, err := orch.Deliberate(cmd.Context(), request)
	if err != nil {
		return err
	}

	printDeliberationResult(result)
	if delibTrace != nil {
		fmt.Printf("\n%s %s\n", color.New(color.Faint).Sprint("Trace:"),
			color.New(color.Faint).Sprintf("quorum traces show %s", delibTrace.TraceID))
	}
	return nil
}

// printDeliberationEvent streams deliberation progress to the terminal.
func printDeliberationEvent(eventType string, payload map[string]any) error {
	switch eventType {
	case "topics_generated":
		if topics, ok := payload["topics"].([]map[string]any); ok {
			fmt.Printf("%s planned %d topics\n", color.CyanString("▸"), len(topics))
		}
	case "round_start":
		title := any("")
		if topic, ok := payload["topic"].(map[string]any); ok {
			title = topic["title"]
		}
		fmt.Printf("%s round %v/%v: %v\n", color.CyanString("▸"),
			payload["round_number"], payload["total_rounds"], title)
	case "round_complete":
		fmt.Printf("  %s %v\n", color.GreenString("✓"), payload["conclusion"])
	case "generating_report":
		fmt.Printf("%s generating final report\n", color.CyanString("▸"))
	case "deliberation_error":
		fmt.Printf("%s %v\n", color.RedString("✗"), payload["error"])
	}
	return nil
}

func printDeliberationResult(result *models.DeliberationResult) {
	fmt.Println()
	decisionColor := color.GreenString
	if result.FinalDecision == "error" || result.FinalDecision == "inconclusive" {
		decisionColor = color.YellowString
	}
	fmt.Printf("%s %s\n", color.New(color.Bold).Sprint("Decision:"), decisionColor(result.FinalDecision))
	fmt.Printf("%s %.2f\n", color.New(color.Bold).Sprint("Confidence:"), result.OverallConfidence)
	fmt.Printf("%s %d\n", color.New(color.Bold).Sprint("Rounds:"), result.TotalRounds)

	if result.ExecutiveSummary != "" {
		fmt.Printf("\n%s\n%s\n", color.New(color.Bold).Sprint("Summary:"), result.ExecutiveSummary)
	}

	if len(result.ActionItems) > 0 {
		fmt.Printf("\n%s\n", color.New(color.Bold).Sprint("Action items:"))
		for _, item := range result.ActionItems {
			fmt.Printf("  - [%v] %v\n", item["priority"], item["action"])
		}
	}

	if len(result.Risks) > 0 {
		fmt.Printf("\n%s\n", color.New(color.Bold).Sprint("Risks:"))
		for _, risk := range result.Risks {
			fmt.Printf("  - %v (severity %v): %v\n", risk["risk"], risk["severity"], risk["mitigation"])
		}
	}

	if len(result.Recommendations) > 0 {
		fmt.Printf("\n%s\n", color.New(color.Bold).Sprint("Recommendations:"))
		for _, rec := range result.Recommendations {
			fmt.Printf("  - %s\n", rec)
		}
	}

	if result.FeedbackID != "" {
		fmt.Printf("\n%s %s\n", color.New(color.Faint).Sprint("Verify later with:"),
			color.New(color.Faint).Sprintf("quorum feedback verify %s --outcome <what-happened> --correct", result.FeedbackID))
	}
}

var _ deliberate.ProgressFunc = printDeliberationEvent
