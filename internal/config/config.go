package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config is the top-level pagetune configuration.
type Config struct {
	Optimization Optimization `mapstructure:"optimization"`
	Sessions     Sessions     `mapstructure:"sessions"`
	Provider     Provider     `mapstructure:"provider"`
	DBPath       string       `mapstructure:"db_path"`
}

// Optimization holds the thresholds that drive the optimization loop.
// New sessions copy these values at creation; later changes never affect
// sessions already running.
type Optimization struct {
	// MinScoreThreshold is the composite score at which optimization stops.
	MinScoreThreshold int `mapstructure:"min_score_threshold" json:"min_score_threshold"`

	// CriticalIssuesAutoFix extends auto-fixing to warning-level issues
	// when true; when false only critical issues are fixed automatically.
	CriticalIssuesAutoFix bool `mapstructure:"critical_issues_auto_fix" json:"critical_issues_auto_fix"`

	// OptimizationCyclesLimit caps fix/suggest cycles per session.
	OptimizationCyclesLimit int `mapstructure:"optimization_cycles_limit" json:"optimization_cycles_limit"`

	// AISuggestionsThreshold is the score below which a cycle escalates
	// to the suggestion provider after its fix pass.
	AISuggestionsThreshold int `mapstructure:"ai_suggestions_threshold" json:"ai_suggestions_threshold"`

	// AnalysisDebounceMs coalesces rapid repeated start requests from
	// the same caller.
	AnalysisDebounceMs int `mapstructure:"analysis_debounce_ms" json:"analysis_debounce_ms"`
}

// Sessions holds session registry limits.
type Sessions struct {
	// MaxPerCaller caps concurrent live sessions per caller.
	MaxPerCaller int `mapstructure:"max_per_caller"`

	// TTLMinutes is how long an untouched session survives before the
	// reaper removes it.
	TTLMinutes int `mapstructure:"ttl_minutes"`
}

// Provider holds suggestion provider settings.
type Provider struct {
	// URL overrides the provider endpoint; empty uses the built-in default.
	URL string `mapstructure:"url"`

	// APIKeyEnv names the environment variable holding the API key.
	APIKeyEnv string `mapstructure:"api_key_env"`

	// Model selects the provider model; empty uses the provider default.
	Model string `mapstructure:"model"`

	// TimeoutSeconds is the hard per-call timeout.
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// APIKey resolves the provider API key from the configured environment
// variable.
func (p Provider) APIKey() string {
	if p.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(p.APIKeyEnv)
}

// expandPath replaces a leading ~ with the user's home directory.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

// Load reads configuration from the given path (or the default location)
// and returns a Config with all defaults applied. A missing config file
// is not an error.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	v.SetDefault("optimization.min_score_threshold", DefaultOptimization.MinScoreThreshold)
	v.SetDefault("optimization.critical_issues_auto_fix", DefaultOptimization.CriticalIssuesAutoFix)
	v.SetDefault("optimization.optimization_cycles_limit", DefaultOptimization.OptimizationCyclesLimit)
	v.SetDefault("optimization.ai_suggestions_threshold", DefaultOptimization.AISuggestionsThreshold)
	v.SetDefault("optimization.analysis_debounce_ms", DefaultOptimization.AnalysisDebounceMs)
	v.SetDefault("sessions.max_per_caller", DefaultSessions.MaxPerCaller)
	v.SetDefault("sessions.ttl_minutes", DefaultSessions.TTLMinutes)
	v.SetDefault("provider.api_key_env", DefaultProvider.APIKeyEnv)
	v.SetDefault("provider.timeout_seconds", DefaultProvider.TimeoutSeconds)
	v.SetDefault("db_path", filepath.Join(DefaultConfigDir, DefaultDBName))

	if cfgFile != "" {
		v.SetConfigFile(expandPath(cfgFile))
	} else {
		v.AddConfigPath(expandPath(DefaultConfigDir))
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			if !os.IsNotExist(err) {
				return nil, err
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	cfg.DBPath = expandPath(cfg.DBPath)

	if err := cfg.Optimization.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes the configuration back to the given path, or the default
// location when empty. It returns the path written.
func Save(cfg *Config, cfgFile string) (string, error) {
	path := expandPath(cfgFile)
	if path == "" {
		path = filepath.Join(expandPath(DefaultConfigDir), "config.yaml")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}

	v := viper.New()
	v.Set("optimization.min_score_threshold", cfg.Optimization.MinScoreThreshold)
	v.Set("optimization.critical_issues_auto_fix", cfg.Optimization.CriticalIssuesAutoFix)
	v.Set("optimization.optimization_cycles_limit", cfg.Optimization.OptimizationCyclesLimit)
	v.Set("optimization.ai_suggestions_threshold", cfg.Optimization.AISuggestionsThreshold)
	v.Set("optimization.analysis_debounce_ms", cfg.Optimization.AnalysisDebounceMs)
	v.Set("sessions.max_per_caller", cfg.Sessions.MaxPerCaller)
	v.Set("sessions.ttl_minutes", cfg.Sessions.TTLMinutes)
	v.Set("provider.url", cfg.Provider.URL)
	v.Set("provider.api_key_env", cfg.Provider.APIKeyEnv)
	v.Set("provider.model", cfg.Provider.Model)
	v.Set("provider.timeout_seconds", cfg.Provider.TimeoutSeconds)
	v.Set("db_path", cfg.DBPath)

	if err := v.WriteConfigAs(path); err != nil {
		return "", err
	}
	return path, nil
}

// Validate rejects out-of-range optimization values.
func (o Optimization) Validate() error {
	if o.MinScoreThreshold < 0 || o.MinScoreThreshold > 100 {
		return fmt.Errorf("min_score_threshold %d outside 0-100", o.MinScoreThreshold)
	}
	if o.AISuggestionsThreshold < 0 || o.AISuggestionsThreshold > 100 {
		return fmt.Errorf("ai_suggestions_threshold %d outside 0-100", o.AISuggestionsThreshold)
	}
	if o.OptimizationCyclesLimit <= 0 {
		return fmt.Errorf("optimization_cycles_limit must be positive, got %d", o.OptimizationCyclesLimit)
	}
	if o.AnalysisDebounceMs < 0 {
		return fmt.Errorf("analysis_debounce_ms must not be negative, got %d", o.AnalysisDebounceMs)
	}
	return nil
}

// ApplyPatch applies a partial update to the optimization settings.
// Unknown fields and out-of-range values are rejected; on error the
// receiver is unchanged.
func (o *Optimization) ApplyPatch(patch map[string]any) error {
	next := *o
	for field, raw := range patch {
		switch field {
		case "min_score_threshold":
			v, err := intValue(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", field, err)
			}
			next.MinScoreThreshold = v
		case "critical_issues_auto_fix":
			v, ok := raw.(bool)
			if !ok {
				return fmt.Errorf("%s: expected bool, got %T", field, raw)
			}
			next.CriticalIssuesAutoFix = v
		case "optimization_cycles_limit":
			v, err := intValue(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", field, err)
			}
			next.OptimizationCyclesLimit = v
		case "ai_suggestions_threshold":
			v, err := intValue(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", field, err)
			}
			next.AISuggestionsThreshold = v
		case "analysis_debounce_ms":
			v, err := intValue(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", field, err)
			}
			next.AnalysisDebounceMs = v
		default:
			return fmt.Errorf("unknown config field %q", field)
		}
	}
	if err := next.Validate(); err != nil {
		return err
	}
	*o = next
	return nil
}

// intValue converts JSON-decoded numbers (float64) and native ints.
func intValue(raw any) (int, error) {
	switch v := raw.(type) {
	case int:
		return v, nil
	case float64:
		if v != float64(int(v)) {
			return 0, fmt.Errorf("expected integer, got %v", v)
		}
		return int(v), nil
	default:
		return 0, fmt.Errorf("expected number, got %T", raw)
	}
}
