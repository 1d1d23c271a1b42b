package app

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rybkagreen/pagetune/internal/config"
	"github.com/rybkagreen/pagetune/internal/orchestrator"
	"github.com/rybkagreen/pagetune/internal/output"
)

var (
	optimizeFlagKeywords []string
	optimizeFlagOut      string
	optimizeFlagNoAI     bool
)

var optimizeCmd = &cobra.Command{
	Use:   "optimize <file|->",
	Short: "Run the full optimization loop on a page",
	Long: `Optimize analyzes a page, applies automatic repairs, re-analyzes, and
escalates persistently low scores to the AI suggestion provider, cycling
until the score threshold is met or the cycle budget runs out.

The rewritten page is printed to stdout, or written to --out. The
suggestion provider is used only when the configured API key environment
variable is set.`,
	Args: cobra.ExactArgs(1),
	RunE: runOptimize,
}

func init() {
	optimizeCmd.Flags().StringSliceVar(&optimizeFlagKeywords, "keyword", nil, "Target keyword to check for (can be repeated)")
	optimizeCmd.Flags().StringVar(&optimizeFlagOut, "out", "", "Write the optimized page to this file instead of stdout")
	optimizeCmd.Flags().BoolVar(&optimizeFlagNoAI, "no-ai", false, "Skip the AI suggestion provider even when configured")

	rootCmd.AddCommand(optimizeCmd)
}

func runOptimize(cmd *cobra.Command, args []string) error {
	html, err := readInput(args[0])
	if err != nil {
		return err
	}

	cfg, err := config.Load(flagConfig)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if optimizeFlagNoAI {
		cfg.Provider.APIKeyEnv = ""
	}

	svc, err := buildServices(cfg, true)
	if err != nil {
		return err
	}
	defer svc.close()

	sess, err := svc.orch.Create(orchestrator.StartRequest{
		Caller:   "cli",
		HTML:     html,
		Keywords: optimizeFlagKeywords,
	})
	if err != nil {
		return err
	}
	if err := svc.orch.Run(cmd.Context(), sess); err != nil {
		return err
	}

	snap := sess.Snapshot()

	if optimizeFlagOut != "" {
		if err := os.WriteFile(optimizeFlagOut, []byte(sess.HTML()), 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", optimizeFlagOut, err)
		}
	}

	if flagJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	}

	if report := sess.FinalAnalysis(); report != nil {
		fmt.Println(output.RenderReport(report))
	}
	initial := 0
	final := 0
	if snap.InitialScore != nil {
		initial = *snap.InitialScore
	}
	if snap.FinalScore != nil {
		final = *snap.FinalScore
	}
	fmt.Println(output.Section("Result"))
	fmt.Println(output.RenderImprovement(initial, final, snap.CyclesPerformed))

	if optimizeFlagOut == "" {
		fmt.Println(output.Section("Optimized page"))
		fmt.Println(sess.HTML())
	}
	return nil
}
