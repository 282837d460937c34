// The agent probes sites on behalf of a remote server: it pulls due
// batches over the API, runs the checks from wherever it is deployed,
// and pushes the results back. Run several agents against one server to
// measure reachability from more than one vantage point.
package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/imertz/greek-sites-monitor/internal/client"
	"github.com/imertz/greek-sites-monitor/internal/config"
	"github.com/imertz/greek-sites-monitor/internal/logging"
	"github.com/imertz/greek-sites-monitor/internal/monitor"
	"github.com/imertz/greek-sites-monitor/internal/probe"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.ServerURL == "" {
		return fmt.Errorf("SERVER_URL is required")
	}
	if cfg.APIKey == "" {
		return fmt.Errorf("API_KEY is required")
	}

	logger, err := logging.NewLogger(cfg.LogDir)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// API calls get a little headroom beyond a single probe timeout
	api := client.New(cfg.ServerURL, cfg.APIKey, cfg.CheckTimeout+5*time.Second)
	prober := probe.New(cfg.CheckTimeout, cfg.TLSVerify)

	logger.Info("agent_started",
		zap.String("server", cfg.ServerURL),
		zap.Duration("poll_interval", cfg.PollInterval),
	)
	monitor.NewCycle(logger, api, prober, cfg.PollInterval, cfg.CheckTimeout).Run(ctx)

	logger.Info("agent_stopped")
	return nil
}
