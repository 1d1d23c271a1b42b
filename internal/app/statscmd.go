package app

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rybkagreen/pagetune/internal/config"
	"github.com/rybkagreen/pagetune/internal/output"
	"github.com/rybkagreen/pagetune/internal/store"
)

var statsFlagRuns int

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show accumulated optimization statistics",
	Long: `Stats reads the local database and prints the most recent statistics
snapshot together with the latest optimization runs.`,
	RunE: runStats,
}

func init() {
	statsCmd.Flags().IntVar(&statsFlagRuns, "runs", 10, "Number of recent runs to list")

	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	db, err := store.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	ctx := cmd.Context()
	summary, err := db.LatestStats(ctx)
	if err != nil {
		return err
	}
	runs, err := db.RecentRuns(ctx, statsFlagRuns)
	if err != nil {
		return err
	}

	if flagJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"summary": summary,
			"runs":    runs,
		})
	}

	if summary != nil {
		fmt.Println(output.Section("Statistics"))
		fmt.Printf(" %-26s %d\n", "Optimizations performed", summary.OptimizationsPerformed)
		fmt.Printf(" %-26s %d\n", "Suggestions generated", summary.SuggestionsGenerated)
		fmt.Printf(" %-26s %d\n", "Suggestions accepted", summary.SuggestionsAccepted)
		fmt.Printf(" %-26s %d\n", "Fixes applied", summary.FixesApplied)
		fmt.Printf(" %-26s %.1f ms\n", "Average processing time", summary.AverageProcessingMs)
		fmt.Printf(" %-26s %.1f\n", "Average score gain", summary.AverageScoreGain)
	} else {
		fmt.Println("no statistics recorded yet")
	}

	if len(runs) > 0 {
		fmt.Println(output.Section(fmt.Sprintf("Recent runs (%d)", len(runs))))
		tbl := output.NewTable("SESSION", "STATE", "SCORE", "CYCLES", "FINISHED")
		for _, r := range runs {
			tbl.AddRow(
				r.SessionID,
				r.State,
				fmt.Sprintf("%d → %d", r.InitialScore, r.FinalScore),
				fmt.Sprintf("%d", r.Cycles),
				r.FinishedAt.Format("2006-01-02 15:04"),
			)
		}
		fmt.Print(tbl.Render())
	}
	return nil
}
