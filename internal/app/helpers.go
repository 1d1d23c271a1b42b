package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/rybkagreen/pagetune/internal/bus"
	"github.com/rybkagreen/pagetune/internal/config"
	"github.com/rybkagreen/pagetune/internal/orchestrator"
	"github.com/rybkagreen/pagetune/internal/session"
	"github.com/rybkagreen/pagetune/internal/stats"
	"github.com/rybkagreen/pagetune/internal/store"
	"github.com/rybkagreen/pagetune/internal/suggest"
)

// readInput reads a page from a file path, or from stdin when the path
// is "-".
func readInput(path string) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	return string(data), nil
}

// services bundles the shared components behind the optimize and serve
// commands.
type services struct {
	cfg       *config.Config
	events    *bus.Bus
	registry  *session.Registry
	collector *stats.Collector
	orch      *orchestrator.Orchestrator
	db        *store.DB
}

// buildServices wires the orchestrator stack from configuration. The
// suggestion gateway is attached only when an API key is available;
// withStore controls whether runs are persisted.
func buildServices(cfg *config.Config, withStore bool) (*services, error) {
	events := bus.New()
	collector := stats.NewCollector()
	registry := session.NewRegistry(
		cfg.Sessions.MaxPerCaller,
		time.Duration(cfg.Sessions.TTLMinutes)*time.Minute,
		session.WithOnReap(func(s *session.Session) {
			events.Forget(s.ID)
		}),
	)

	opts := []orchestrator.Option{orchestrator.WithLogger(slog.Default())}

	if key := cfg.Provider.APIKey(); key != "" {
		provider := suggest.NewHTTPProvider(key, cfg.Provider.Model,
			time.Duration(cfg.Provider.TimeoutSeconds)*time.Second)
		if cfg.Provider.URL != "" {
			provider.URL = cfg.Provider.URL
		}
		gateway := suggest.NewGateway(provider, 0, slog.Default())
		opts = append(opts, orchestrator.WithSuggester(gateway))
	}

	svc := &services{
		cfg:       cfg,
		events:    events,
		registry:  registry,
		collector: collector,
	}

	if withStore && cfg.DBPath != "" {
		db, err := store.Open(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("opening database: %w", err)
		}
		svc.db = db
		opts = append(opts, orchestrator.WithPersister(db))
	}

	svc.orch = orchestrator.New(registry, events, collector, cfg.Optimization, opts...)
	return svc, nil
}

// close releases everything buildServices opened, saving a final stats
// snapshot when any run happened.
func (s *services) close() {
	s.orch.Stop()
	s.events.Close()
	if s.db != nil {
		if sum := s.collector.Summary(); sum.OptimizationsPerformed > 0 {
			if err := s.db.SaveStats(context.Background(), sum); err != nil {
				slog.Warn("saving stats snapshot failed", "error", err)
			}
		}
		_ = s.db.Close()
	}
}
