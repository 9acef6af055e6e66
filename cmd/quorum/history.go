package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/quorumhq/quorum/internal/state"
)

var (
	historyKind  string
	historyLimit int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List past runs from the local run-history database",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := state.OpenGlobal()
		if err != nil {
			return fmt.Errorf("open run history: %w", err)
		}
		defer db.Close()
		if err := db.Migrate(); err != nil {
			return fmt.Errorf("migrate run history: %w", err)
		}

		runs, err := db.ListRuns(historyKind, historyLimit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Println("No runs recorded.")
			return nil
		}

		for _, r := range runs {
			statusColor := color.GreenString
			if r.Status != "completed" {
				statusColor = color.RedString
			}
			decision := ""
			if r.Decision != "" {
				decision = fmt.Sprintf(" → %s (%.2f)", r.Decision, r.Confidence)
			}
			fmt.Printf("%s  [%s] %s %s%s\n",
				color.CyanString(r.TraceID), r.Kind,
				r.StartedAt.Local().Format("2006-01-02 15:04"),
				statusColor(r.Status), decision)
			if r.TaskCount > 0 {
				fmt.Printf("    %s — %d tasks, %d failed, %d tokens\n",
					r.Goal, r.TaskCount, r.FailedTasks, r.TotalTokens)
			} else {
				fmt.Printf("    %s\n", r.Goal)
			}
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().StringVar(&historyKind, "kind", "", "Filter by run kind (collaborate or deliberate)")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum runs to show")
}
