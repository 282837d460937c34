package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/imertz/greek-sites-monitor/internal/config"
	"github.com/imertz/greek-sites-monitor/internal/domain"
	"github.com/imertz/greek-sites-monitor/internal/httpapi"
	"github.com/imertz/greek-sites-monitor/internal/logging"
	"github.com/imertz/greek-sites-monitor/internal/monitor"
	"github.com/imertz/greek-sites-monitor/internal/notify"
	"github.com/imertz/greek-sites-monitor/internal/probe"
	"github.com/imertz/greek-sites-monitor/internal/snapshot"
	"github.com/imertz/greek-sites-monitor/internal/store"
	"github.com/imertz/greek-sites-monitor/internal/store/memory"
	"github.com/imertz/greek-sites-monitor/internal/store/postgres"
	"github.com/imertz/greek-sites-monitor/internal/store/sqlite"
)

// backend is the full set of ports every adapter implements.
type backend interface {
	store.SiteStore
	store.ResultStore
	store.PrincipalStore
	store.AlertStore
}

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

	logger, err := logging.NewLogger(cfg.LogDir)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	st, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer closeStore()
	logger.Info("store_ready", zap.String("driver", cfg.DatabaseDriver))

	if err := bootstrapPrincipal(ctx, logger, st, cfg.MonitorUser); err != nil {
		return err
	}
	if cfg.SeedSites {
		if err := seedSites(ctx, logger, st, cfg.MonitorUser); err != nil {
			return err
		}
	}

	writer := snapshot.NewWriter(cfg.SnapshotPath)

	api := httpapi.NewServer(logger, st, st, st)
	api.Snapshot = writer
	api.BatchSize = cfg.BatchSize
	api.RateLimitPerMin = cfg.RateLimitPerMin
	api.AllowRemoteAdmin = cfg.AllowRemoteAdmin

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api_listen", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	source := &monitor.LocalSource{
		Sites:     st,
		Results:   st,
		Snapshot:  writer,
		Principal: cfg.MonitorUser,
		BatchSize: cfg.BatchSize,
	}
	prober := probe.New(cfg.CheckTimeout, cfg.TLSVerify)
	cycle := monitor.NewCycle(logger, source, prober, cfg.PollInterval, cfg.CheckTimeout)
	go cycle.Run(ctx)

	if slack := notify.NewSlack(cfg.SlackWebhook); slack != nil {
		alerter := monitor.NewAlerter(logger, st, st, slack, monitor.AlerterConfig{
			AlertOnRecovery: cfg.AlertOnRecovery,
			Cooldown:        cfg.AlertCooldown,
			PollInterval:    cfg.PollInterval,
		})
		go func() {
			if err := alerter.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("alerter_stopped", zap.Error(err))
			}
		}()
	}

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting_down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

func openStore(ctx context.Context, cfg *config.Config) (backend, func(), error) {
	policy := store.Policy{
		BatchSize:   cfg.BatchSize,
		DownRecheck: cfg.DownRecheck,
		UpRecheck:   cfg.UpRecheck,
	}
	switch cfg.DatabaseDriver {
	case config.DriverSQLite:
		s, err := sqlite.New(ctx, cfg.DatabaseURL, policy)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	case config.DriverPostgres:
		s, err := postgres.New(ctx, cfg.DatabaseURL, policy)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case config.DriverMemory:
		return memory.New(policy), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown database driver %q", cfg.DatabaseDriver)
	}
}

// bootstrapPrincipal makes sure the built-in monitor identity exists. The
// key is printed exactly once, on first creation; after that it lives
// only in the database.
func bootstrapPrincipal(ctx context.Context, logger *zap.Logger, st backend, username string) error {
	p, err := st.CreatePrincipal(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			logger.Info("principal_exists", zap.String("username", username))
			return nil
		}
		return fmt.Errorf("bootstrap principal: %w", err)
	}
	logger.Info("principal_created",
		zap.String("username", p.Username),
		zap.String("api_key", p.APIKey),
	)
	return nil
}

func seedSites(ctx context.Context, logger *zap.Logger, st backend, addedBy string) error {
	seeds := domain.DefaultSites()
	sites := make([]domain.Site, 0, len(seeds))
	now := time.Now().UTC()
	for _, seed := range seeds {
		maxRedirects := seed.MaxRedirects
		if maxRedirects <= 0 {
			maxRedirects = domain.DefaultMaxRedirects
		}
		sites = append(sites, domain.Site{
			Name:         seed.Name,
			URL:          seed.URL,
			Category:     domain.CategoryOf(seed.Name),
			Active:       true,
			MaxRedirects: maxRedirects,
			CreatedAt:    now,
		})
	}
	added, err := st.AddSites(ctx, sites, addedBy)
	if err != nil {
		return fmt.Errorf("seed sites: %w", err)
	}
	logger.Info("sites_seeded",
		zap.Int("known", len(sites)-len(added)),
		zap.Int("added", len(added)),
	)
	return nil
}
