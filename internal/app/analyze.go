package app

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rybkagreen/pagetune/internal/analyzer"
	"github.com/rybkagreen/pagetune/internal/output"
)

var analyzeFlagKeywords []string

var analyzeCmd = &cobra.Command{
	Use:   "analyze <file|->",
	Short: "Score a page and list its issues",
	Long: `Analyze parses an HTML page, runs the structural, social-metadata and
performance analyzers in parallel, and prints the composite 0-100 score
with every detected issue, worst first. Use "-" to read from stdin.`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringSliceVar(&analyzeFlagKeywords, "keyword", nil, "Target keyword to check for (can be repeated)")

	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	html, err := readInput(args[0])
	if err != nil {
		return err
	}

	engine := analyzer.NewEngine(analyzer.Options{TargetKeywords: analyzeFlagKeywords})
	report := engine.Analyze(html)

	if flagJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	fmt.Println(output.RenderReport(report))
	return nil
}
