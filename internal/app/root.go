// Package app contains the Cobra command tree for pagetune.
package app

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/rybkagreen/pagetune/internal/output"
)

var appVersion = "dev"

// SetVersion sets the application version (called from main with ldflags value).
func SetVersion(v string) {
	appVersion = v
	rootCmd.Version = v
}

var (
	flagNoColor bool
	flagJSON    bool
	flagVerbose bool
	flagConfig  string
)

var rootCmd = &cobra.Command{
	Use:   "pagetune",
	Short: "Real-time SEO scoring and optimization for HTML pages",
	Long: `pagetune analyzes HTML pages for structural SEO, social metadata and
performance problems, scores them 0-100, and runs an optimization loop
that applies automatic repairs and, when a page keeps scoring low,
escalates to an AI suggestion provider.

Run 'pagetune analyze page.html' for a one-shot report, or
'pagetune optimize page.html' to repair the page in place.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println("pagetune", appVersion)
		fmt.Println()
		fmt.Println("Use a subcommand:")
		fmt.Println("  analyze   Score a page and list its issues")
		fmt.Println("  optimize  Run the full optimization loop on a page")
		fmt.Println("  serve     Serve the optimization API over stdio JSON-RPC")
		fmt.Println("  config    Show or change optimization settings")
		fmt.Println("  stats     Show accumulated optimization statistics")
		return nil
	},
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if flagNoColor || !isatty.IsTerminal(os.Stdout.Fd()) {
			output.SetNoColor(true)
		}
		level := slog.LevelWarn
		if flagVerbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	},
}

// Execute is the entry point called from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Config file path (default: ~/.config/pagetune/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&flagNoColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "Output as JSON")
	rootCmd.PersistentFlags().BoolVar(&flagVerbose, "verbose", false, "Enable verbose output")
}
