package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "tok")
	t.Setenv("DATABASE_URL", "postgres://localhost/test")
	t.Setenv("REDIS_URL", "localhost:6379")

	cfg := Load()

	if cfg.HTTPPort != 8080 {
		t.Errorf("HTTPPort = %d, want 8080", cfg.HTTPPort)
	}
	if cfg.DataDir != "data" {
		t.Errorf("DataDir = %q, want data", cfg.DataDir)
	}
	if len(cfg.Symbols) != 5 || cfg.Symbols[0] != "BTCUSDT" {
		t.Errorf("unexpected default symbols: %v", cfg.Symbols)
	}
	if !cfg.StopWinsTies {
		t.Error("StopWinsTies should default to true")
	}
	if got := cfg.Tolerance(); got != 0.005 {
		t.Errorf("Tolerance() = %g, want 0.005", got)
	}
	if got := cfg.Cooldowns()["4h"]; got != 4*time.Hour {
		t.Errorf("4h cooldown = %v, want 4h", got)
	}
	if got := cfg.Retention(); got != 30*24*time.Hour {
		t.Errorf("Retention() = %v, want 720h", got)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SYMBOLS", "btcusdt, ethusdt,btcusdt,")
	t.Setenv("PRICE_TOLERANCE_PCT", "1.0")
	t.Setenv("STOP_WINS_TIES", "false")
	t.Setenv("COOLDOWN_1H_MINS", "90")
	t.Setenv("HTTP_PORT", "9090")

	cfg := Load()

	want := []string{"BTCUSDT", "ETHUSDT"}
	if len(cfg.Symbols) != len(want) {
		t.Fatalf("Symbols = %v, want %v", cfg.Symbols, want)
	}
	for i := range want {
		if cfg.Symbols[i] != want[i] {
			t.Errorf("Symbols[%d] = %q, want %q", i, cfg.Symbols[i], want[i])
		}
	}
	if got := cfg.Tolerance(); got != 0.01 {
		t.Errorf("Tolerance() = %g, want 0.01", got)
	}
	if cfg.StopWinsTies {
		t.Error("StopWinsTies should be false")
	}
	if got := cfg.Cooldowns()["1h"]; got != 90*time.Minute {
		t.Errorf("1h cooldown = %v, want 90m", got)
	}
	if cfg.HTTPPort != 9090 {
		t.Errorf("HTTPPort = %d, want 9090", cfg.HTTPPort)
	}
}

func TestLoadInvalidNumbersFallBack(t *testing.T) {
	t.Setenv("HTTP_PORT", "notaport")
	t.Setenv("PRICE_TOLERANCE_PCT", "-3")

	cfg := Load()

	if cfg.HTTPPort != 8080 {
		t.Errorf("HTTPPort = %d, want fallback 8080", cfg.HTTPPort)
	}
	if cfg.TolerancePct != 0.5 {
		t.Errorf("TolerancePct = %g, want fallback 0.5", cfg.TolerancePct)
	}
}
