package app

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/rybkagreen/pagetune/internal/config"
	"github.com/rybkagreen/pagetune/internal/rpc"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the optimization API over stdio JSON-RPC",
	Long: `Serve speaks line-delimited JSON-RPC 2.0 on stdin/stdout. Clients can
start, watch, and cancel optimization sessions, stream progress events,
and read or change configuration without restarting.

Methods: optimize/start, optimize/status, optimize/cancel, sessions/list,
config/get, config/set, stats/get, events/subscribe, events/unsubscribe.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	svc, err := buildServices(cfg, true)
	if err != nil {
		return err
	}
	defer svc.close()

	ctx := cmd.Context()
	go svc.registry.RunReaper(ctx, config.DefaultReaperInterval)

	slog.Info("pagetune server listening on stdio", "version", appVersion)
	srv := rpc.NewServer(svc.orch, cfg, svc.collector, svc.events, slog.Default())
	return srv.Run(ctx, os.Stdin, os.Stdout)
}
