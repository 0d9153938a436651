package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, "telegram:\n  token: test-token\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Telegram.Token != "test-token" {
		t.Errorf("token = %q", cfg.Telegram.Token)
	}
	if got := cfg.Followup.DiscoveryInterval(); got != time.Hour {
		t.Errorf("discovery interval = %v, want 1h", got)
	}
	if got := cfg.Followup.DispatchInterval(); got != 5*time.Minute {
		t.Errorf("dispatch interval = %v, want 5m", got)
	}
	if cfg.Followup.OnlyStartAgeHours != 24 || cfg.Followup.ClickedPaymentAgeHours != 2 {
		t.Errorf("followup ages = %d/%d, want 24/2",
			cfg.Followup.OnlyStartAgeHours, cfg.Followup.ClickedPaymentAgeHours)
	}
	if got := cfg.Broadcast.SendDelay(); got != 50*time.Millisecond {
		t.Errorf("send delay = %v, want 50ms", got)
	}
	if cfg.Reports.Hour != 20 {
		t.Errorf("report hour = %d, want 20", cfg.Reports.Hour)
	}
	if cfg.Payment.Amount != 499 {
		t.Errorf("payment amount = %d, want 499", cfg.Payment.Amount)
	}
}

func TestLoad_Overrides(t *testing.T) {
	path := writeConfig(t, `
telegram:
  token: t
  admin_channel_id: -100123
followup:
  discovery_interval_minutes: 30
  only_start_age_hours: 48
broadcast:
  send_delay_millis: 100
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Telegram.AdminChannelID != -100123 {
		t.Errorf("admin channel = %d", cfg.Telegram.AdminChannelID)
	}
	if got := cfg.Followup.DiscoveryInterval(); got != 30*time.Minute {
		t.Errorf("discovery interval = %v, want 30m", got)
	}
	if cfg.Followup.OnlyStartAgeHours != 48 {
		t.Errorf("only_start age = %d, want 48", cfg.Followup.OnlyStartAgeHours)
	}
	if got := cfg.Broadcast.SendDelay(); got != 100*time.Millisecond {
		t.Errorf("send delay = %v, want 100ms", got)
	}
}

func TestLoadFromEnv_EnvWins(t *testing.T) {
	path := writeConfig(t, "telegram:\n  token: from-file\n")
	t.Setenv("BOT_TOKEN", "from-env")
	t.Setenv("DATABASE_URL", "postgres://env/db")

	cfg, err := LoadFromEnv(path)
	if err != nil {
		t.Fatalf("LoadFromEnv() error: %v", err)
	}
	if cfg.Telegram.Token != "from-env" {
		t.Errorf("token = %q, want env override", cfg.Telegram.Token)
	}
	if cfg.Database.URL != "postgres://env/db" {
		t.Errorf("db url = %q, want env override", cfg.Database.URL)
	}
}
