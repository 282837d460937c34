package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":3000" {
		t.Errorf("addr: want :3000, got %q", cfg.Addr)
	}
	if cfg.DatabaseDriver != DriverSQLite || cfg.DatabaseURL != "monitor.db" {
		t.Errorf("database: got %q %q", cfg.DatabaseDriver, cfg.DatabaseURL)
	}
	if cfg.PollInterval != time.Minute || cfg.BatchSize != 5 {
		t.Errorf("scheduling: got %v batch=%d", cfg.PollInterval, cfg.BatchSize)
	}
	if cfg.DownRecheck != time.Minute || cfg.UpRecheck != 5*time.Minute {
		t.Errorf("recheck: got %v %v", cfg.DownRecheck, cfg.UpRecheck)
	}
	if cfg.CheckTimeout != 10*time.Second {
		t.Errorf("probe timeout: got %v", cfg.CheckTimeout)
	}
	if cfg.TLSVerify {
		t.Error("tls verification should default off")
	}
	if cfg.MonitorUser != "monitor" || cfg.SnapshotPath != "status.json" || cfg.LogDir != "logs" {
		t.Errorf("outputs: got %q %q %q", cfg.MonitorUser, cfg.SnapshotPath, cfg.LogDir)
	}
	if cfg.AlertCooldown != 15*time.Minute || !cfg.AlertOnRecovery {
		t.Errorf("alerting: got %v recovery=%v", cfg.AlertCooldown, cfg.AlertOnRecovery)
	}
	if cfg.RateLimitPerMin != 240 || cfg.AllowRemoteAdmin {
		t.Errorf("api: got %d remote_admin=%v", cfg.RateLimitPerMin, cfg.AllowRemoteAdmin)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("ADDR", "127.0.0.1:9090")
	t.Setenv("DATABASE_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "postgres://mon:secret@db:5432/monitor")
	t.Setenv("POLL_INTERVAL", "2m")
	t.Setenv("BATCH_SIZE", "10")
	t.Setenv("TLS_VERIFY", "true")
	t.Setenv("SEED_SITES", "true")
	t.Setenv("SLACK_WEBHOOK", "https://hooks.slack.com/services/T0/B0/x")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != "127.0.0.1:9090" {
		t.Errorf("addr: got %q", cfg.Addr)
	}
	if cfg.DatabaseDriver != DriverPostgres {
		t.Errorf("driver: got %q", cfg.DatabaseDriver)
	}
	if cfg.PollInterval != 2*time.Minute {
		t.Errorf("poll interval: got %v", cfg.PollInterval)
	}
	if cfg.BatchSize != 10 {
		t.Errorf("batch size: got %d", cfg.BatchSize)
	}
	if !cfg.TLSVerify || !cfg.SeedSites {
		t.Errorf("bools not applied: tls=%v seed=%v", cfg.TLSVerify, cfg.SeedSites)
	}
	if cfg.SlackWebhook == "" {
		t.Error("slack webhook not applied")
	}
}

func TestLoad_RejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"ADDR":            "no-port-here",
		"DATABASE_DRIVER": "oracle",
		"BATCH_SIZE":      "0",
		"POLL_INTERVAL":   "10ms",
		"SERVER_URL":      "not a url",
	}
	for key, val := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, val)
			if _, err := Load(); err == nil {
				t.Fatalf("%s=%q should not validate", key, val)
			}
		})
	}
}
