// Package config provides configuration loading and defaults for pagetune.
package config

import "time"

// DefaultConfigDir is the default location for pagetune configuration.
const DefaultConfigDir = "~/.config/pagetune"

// DefaultDBName is the filename for the SQLite database.
const DefaultDBName = "pagetune.db"

// DefaultOptimization holds the default optimization thresholds copied
// into every new session.
var DefaultOptimization = Optimization{
	MinScoreThreshold:       75,
	CriticalIssuesAutoFix:   true,
	OptimizationCyclesLimit: 3,
	AISuggestionsThreshold:  60,
	AnalysisDebounceMs:      500,
}

// DefaultSessions holds the default registry limits.
var DefaultSessions = Sessions{
	MaxPerCaller: 4,
	TTLMinutes:   30,
}

// DefaultProvider holds the default suggestion provider settings.
var DefaultProvider = Provider{
	APIKeyEnv:      "PAGETUNE_API_KEY",
	TimeoutSeconds: 45,
}

// DefaultReaperInterval is how often the registry sweeps expired sessions.
const DefaultReaperInterval = time.Minute
