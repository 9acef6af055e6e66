package main

import (
	"fmt"

	"github.com/fatih/color"

	"github.com/quorumhq/quorum/internal/orchestrator"
	"github.com/quorumhq/quorum/pkg/models"
)

// progressPrinterOption streams pipeline progress to the terminal.
func progressPrinterOption() orchestrator.Option {
	return orchestrator.WithProgressListener(func(e *models.ProgressEvent) error {
		switch e.Type {
		case "phase_started":
			fmt.Printf("%s %s\n", color.CyanString("▸"), e.Message)
		case "task_started":
			fmt.Printf("  %s %s → %s\n", color.New(color.Faint).Sprint("·"), e.TaskID, e.AgentID)
		case "task_completed":
			fmt.Printf("  %s %s\n", color.GreenString("✓"), e.TaskID)
		case "task_failed":
			fmt.Printf("  %s %s — %s\n", color.RedString("✗"), e.TaskID, e.Message)
		case "decision_made":
			fmt.Printf("%s %s\n", color.CyanString("▸"), e.Message)
		}
		return nil
	})
}
