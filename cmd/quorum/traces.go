package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/quorumhq/quorum/internal/trace"
)

var (
	tracesLimit  int
	tracesOffset int
)

var tracesCmd = &cobra.Command{
	Use:   "traces",
	Short: "Inspect past collaboration traces",
}

var tracesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent traces, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		traces, err := traceManager()
		if err != nil {
			return err
		}
		printTraceSummaries(traces.List(tracesLimit, tracesOffset))
		return nil
	},
}

var tracesSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search traces by goal text",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		traces, err := traceManager()
		if err != nil {
			return err
		}
		printTraceSummaries(traces.Search(args[0], tracesLimit))
		return nil
	},
}

var tracesShowCmd = &cobra.Command{
	Use:   "show <trace-id>",
	Short: "Print one trace as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		traces, err := traceManager()
		if err != nil {
			return err
		}
		loaded, err := traces.Load(args[0])
		if err != nil {
			return err
		}
		if loaded == nil {
			// Fall back to deliberation traces.
			delib, err := traces.LoadDeliberation(args[0])
			if err != nil {
				return err
			}
			if delib == nil {
				return fmt.Errorf("trace %s not found", args[0])
			}
			return printJSON(delib)
		}
		return printJSON(loaded)
	},
}

func init() {
	tracesCmd.PersistentFlags().IntVar(&tracesLimit, "limit", 20, "Maximum traces to show")
	tracesListCmd.Flags().IntVar(&tracesOffset, "offset", 0, "Traces to skip")
	tracesCmd.AddCommand(tracesListCmd)
	tracesCmd.AddCommand(tracesSearchCmd)
	tracesCmd.AddCommand(tracesShowCmd)
}

// traceManager opens the workspace trace store for read-only queries,
// without requiring an API key.
func traceManager() (*trace.Manager, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return trace.NewManager(cfg.Workspace, nil)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printTraceSummaries(summaries []map[string]any) {
	if len(summaries) == 0 {
		fmt.Println("No traces found.")
		return
	}
	for _, s := range summaries {
		decision := ""
		if d, ok := s["decision"]; ok {
			decision = fmt.Sprintf(" → %v (%.2f)", d, s["confidence"])
		}
		fmt.Printf("%s  %v%s\n", color.CyanString("%v", s["trace_id"]), s["goal"], color.GreenString("%s", decision))
		fmt.Printf("    tasks %v/%v completed, %v failed, %v tokens, %vms\n",
			s["completed_tasks"], s["task_count"], s["failed_tasks"], s["total_tokens"], s["duration_ms"])
	}
}
