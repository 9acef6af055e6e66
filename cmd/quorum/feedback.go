package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/quorumhq/quorum/internal/feedback"
	"github.com/quorumhq/quorum/pkg/models"
)

var (
	verifyOutcome   string
	verifyCorrect   bool
	verifyIncorrect bool
	verifyNotes     string
	statsType       string
	statsWindow     int
)

var feedbackCmd = &cobra.Command{
	Use:   "feedback",
	Short: "Verify past decisions and track accuracy",
}

var feedbackPendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List decisions awaiting verification",
	RunE: func(cmd *cobra.Command, args []string) error {
		loop, err := feedbackLoop()
		if err != nil {
			return err
		}
		records, err := loop.PendingVerifications()
		if err != nil {
			return err
		}
		printFeedbackRecords(records, "No decisions awaiting verification.")
		return nil
	},
}

var feedbackOverdueCmd = &cobra.Command{
	Use:   "overdue",
	Short: "List unverified decisions past their reminder date",
	RunE: func(cmd *cobra.Command, args []string) error {
		loop, err := feedbackLoop()
		if err != nil {
			return err
		}
		records, err := loop.OverdueVerifications()
		if err != nil {
			return err
		}
		printFeedbackRecords(records, "Nothing overdue.")
		return nil
	},
}

var feedbackVerifyCmd = &cobra.Command{
	Use:   "verify <feedback-id>",
	Short: "Record what actually happened for a decision",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if verifyCorrect == verifyIncorrect {
			return fmt.Errorf("pass exactly one of --correct or --incorrect")
		}

		loop, err := feedbackLoop()
		if err != nil {
			return err
		}
		record, err := loop.Verify(args[0], verifyOutcome, verifyCorrect, verifyNotes)
		if err != nil {
			return err
		}
		if record == nil {
			return fmt.Errorf("feedback record %s not found", args[0])
		}

		marker := color.GreenString("correct")
		if !verifyCorrect {
			marker = color.RedString("incorrect")
		}
		fmt.Printf("Verified %s: %q was %s\n", record.FeedbackID, record.Decision, marker)
		return nil
	},
}

var feedbackStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show decision accuracy over a lookback window",
	RunE: func(cmd *cobra.Command, args []string) error {
		loop, err := feedbackLoop()
		if err != nil {
			return err
		}
		stats, err := loop.AccuracyStats(statsType, statsWindow)
		if err != nil {
			return err
		}

		fmt.Printf("%s %d recorded, %d verified in the last %d days\n",
			color.New(color.Bold).Sprint("Decisions:"),
			stats.TotalDecisions, stats.VerifiedDecisions, stats.WindowDays)
		if stats.VerifiedDecisions == 0 {
			fmt.Println("No verified decisions yet — accuracy unavailable.")
			return nil
		}
		fmt.Printf("%s %.0f%% (%d/%d correct)\n",
			color.New(color.Bold).Sprint("Accuracy:"),
			stats.Accuracy*100, stats.CorrectDecisions, stats.VerifiedDecisions)

		if len(stats.ByDecisionType) > 0 {
			labels := make([]string, 0, len(stats.ByDecisionType))
			for label := range stats.ByDecisionType {
				labels = append(labels, label)
			}
			sort.Strings(labels)
			fmt.Println("\nBy decision type:")
			for _, label := range labels {
				s := stats.ByDecisionType[label]
				fmt.Printf("  %-14s %.0f%% (%d/%d)\n", label, s.Accuracy*100, s.Correct, s.Verified)
			}
		}
		return nil
	},
}

func init() {
	feedbackVerifyCmd.Flags().StringVar(&verifyOutcome, "outcome", "", "What actually happened")
	feedbackVerifyCmd.Flags().BoolVar(&verifyCorrect, "correct", false, "The decision matched the outcome")
	feedbackVerifyCmd.Flags().BoolVar(&verifyIncorrect, "incorrect", false, "The decision did not match the outcome")
	feedbackVerifyCmd.Flags().StringVar(&verifyNotes, "notes", "", "Free-form verification notes")
	feedbackVerifyCmd.MarkFlagRequired("outcome")

	feedbackStatsCmd.Flags().StringVar(&statsType, "type", "", "Filter to one decision label")
	feedbackStatsCmd.Flags().IntVar(&statsWindow, "days", 30, "Lookback window in days")

	feedbackCmd.AddCommand(feedbackPendingCmd)
	feedbackCmd.AddCommand(feedbackOverdueCmd)
	feedbackCmd.AddCommand(feedbackVerifyCmd)
	feedbackCmd.AddCommand(feedbackStatsCmd)
}

// feedbackLoop opens the workspace feedback store without requiring an
// API key.
func feedbackLoop() (*feedback.Loop, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return feedback.NewLoop(cfg.Workspace, cfg.Orchestrator.FeedbackReminderDays, nil)
}

func printFeedbackRecords(records []*models.FeedbackRecord, emptyMessage string) {
	if len(records) == 0 {
		fmt.Println(emptyMessage)
		return
	}
	for _, r := range records {
		due := ""
		if r.ReminderAt != nil {
			due = " (due " + r.ReminderAt.Format("2006-01-02") + ")"
			if r.ReminderAt.Before(time.Now()) {
				due = color.YellowString(due)
			}
		}
		fmt.Printf("%s  %s → %s (%.2f)%s\n",
			color.CyanString(r.FeedbackID), r.Goal, r.Decision, r.Confidence, due)
	}
}
