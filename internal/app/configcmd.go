package app

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rybkagreen/pagetune/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or change optimization settings",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE:  runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key>=<value> ...",
	Short: "Change optimization settings and write them back",
	Long: `Set updates one or more optimization settings and persists them to the
config file. Keys match the optimization section of the config file:

  min_score_threshold=80
  critical_issues_auto_fix=false
  optimization_cycles_limit=5
  ai_suggestions_threshold=50
  analysis_debounce_ms=250

Values are validated before anything is written; an invalid value leaves
the file untouched.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runConfigSet,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(cfg)
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	patch := make(map[string]any, len(args))
	for _, arg := range args {
		key, raw, ok := strings.Cut(arg, "=")
		if !ok {
			return fmt.Errorf("expected key=value, got %q", arg)
		}
		patch[key] = parseValue(raw)
	}

	if err := cfg.Optimization.ApplyPatch(patch); err != nil {
		return err
	}

	path, err := config.Save(cfg, flagConfig)
	if err != nil {
		return fmt.Errorf("saving config: %w", err)
	}
	fmt.Println("wrote", path)
	return nil
}

// parseValue interprets a CLI value string as bool, int or string, in
// that order, matching what viper would read from YAML.
func parseValue(raw string) any {
	if b, err := strconv.ParseBool(raw); err == nil {
		return b
	}
	if n, err := strconv.Atoi(raw); err == nil {
		return n
	}
	return raw
}
