package main

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/quorumhq/quorum/internal/signal"
	"github.com/quorumhq/quorum/pkg/models"
)

var (
	collabTimeout    int
	collabNoFeedback bool
	collabContinue   bool
	collabContext    []string
)

var collaborateCmd = &cobra.Command{
	Use:   "collaborate <goal>",
	Short: "Run the full collaboration pipeline on a goal",
	Args:  cobra.ExactArgs(1),
	RunE:  runCollaborate,
}

func init() {
	collaborateCmd.Flags().IntVar(&collabTimeout, "timeout", 0, "Total timeout in seconds (0 uses the configured default)")
	collaborateCmd.Flags().BoolVar(&collabNoFeedback, "no-feedback", false, "Skip recording the decision for verification")
	collaborateCmd.Flags().BoolVar(&collabContinue, "continue-on-failure", false, "Keep going when tasks fail instead of aborting")
	collaborateCmd.Flags().StringArrayVar(&collabContext, "context", nil, "Context entries as key=value (repeatable)")
}

func runCollaborate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if collabContinue {
		cfg.Orchestrator.RequiredTaskFailureMode = "continue_with_warning"
	}

	orch, err := buildOrchestrator(cfg, progressPrinterOption())
	if err != nil {
		return err
	}

	request := models.NewCollaborationRequest(args[0])
	if collabTimeout > 0 {
		request.TimeoutSeconds = collabTimeout
	}
	if collabNoFeedback {
		request.FeedbackEnabled = false
	}
	if ctx := parseContextFlags(collabContext); len(ctx) > 0 {
		request.Context = ctx
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// A "cancel" file in the workspace signals directory stops the run.
	if signals, err := signal.NewManager(cfg.Workspace); err == nil {
		signals.Clear()
		stop := signals.Poll(500*time.Millisecond, cancel)
		defer stop()
		defer signals.Close()
	}

	fmt.Printf("%s %s\n\n", color.CyanString("Goal:"), request.Goal)

	result, runTrace, err := orch.Collaborate(ctx, request)
	if err != nil {
		if result != nil {
			printResult(result)
		}
		return err
	}

	printResult(result)
	if runTrace != nil {
		fmt.Printf("\n%s %s\n", color.New(color.Faint).Sprint("Trace:"),
			color.New(color.Faint).Sprintf("quorum traces show %s", runTrace.TraceID))
	}
	return nil
}

func printResult(result *models.CollaborationResult) {
	fmt.Println()
	decisionColor := color.GreenString
	switch result.Decision {
	case "aborted", "error":
		decisionColor = color.RedString
	case "inconclusive":
		decisionColor = color.YellowString
	}

	fmt.Printf("%s %s\n", color.New(color.Bold).Sprint("Decision:"), decisionColor(result.Decision))
	fmt.Printf("%s %.2f\n", color.New(color.Bold).Sprint("Confidence:"), result.Confidence)
	if result.Reasoning != "" {
		fmt.Printf("\n%s\n%s\n", color.New(color.Bold).Sprint("Reasoning:"), result.Reasoning)
	}

	if len(result.Factors) > 0 {
		fmt.Printf("\n%s\n", color.New(color.Bold).Sprint("Factors:"))
		for _, f := range result.Factors {
			fmt.Printf("  - %s: %s (weight %.1f, confidence %.2f)\n", f.Name, f.Value, f.Weight, f.Confidence)
		}
	}

	if len(result.TaskResults) > 0 {
		fmt.Printf("\n%s\n", color.New(color.Bold).Sprint("Tasks:"))
		ids := make([]string, 0, len(result.TaskResults))
		for id := range result.TaskResults {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			r := result.TaskResults[id]
			marker := color.GreenString("✓")
			detail := ""
			if r.Status != models.TaskStatusCompleted {
				marker = color.RedString("✗")
				detail = " — " + r.Error
			}
			fmt.Printf("  %s %s [%s]%s\n", marker, id, r.Status, detail)
		}
	}

	if result.FeedbackID != "" {
		fmt.Printf("\n%s %s\n", color.New(color.Faint).Sprint("Verify later with:"),
			color.New(color.Faint).Sprintf("quorum feedback verify %s --outcome <what-happened> --correct", result.FeedbackID))
	}
}

// parseContextFlags turns key=value pairs into a context map.
func parseContextFlags(entries []string) map[string]any {
	if len(entries) == 0 {
		return nil
	}
	ctx := make(map[string]any, len(entries))
	for _, entry := range entries {
		key, value, found := strings.Cut(entry, "=")
		if !found {
			ctx[entry] = true
			continue
		}
		ctx[key] = value
	}
	return ctx
}
