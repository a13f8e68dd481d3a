package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("DB_PASSWORD", "secret")
	t.Setenv("PAYMENT_CURRENCY", "inr")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.Port != "3001" {
		t.Fatalf("expected default port 3001, got %s", cfg.Port)
	}
	if cfg.Payment.Currency != "INR" {
		t.Fatalf("currency should be upper-cased, got %s", cfg.Payment.Currency)
	}
	if cfg.HoldTTL != 30*time.Minute {
		t.Fatalf("unexpected hold ttl %s", cfg.HoldTTL)
	}
	if !strings.HasPrefix(cfg.Database.DSN, "root:secret@tcp(localhost:3306)/lawfirm") {
		t.Fatalf("unexpected mysql dsn %s", cfg.Database.DSN)
	}
	if cfg.Location().String() != "Asia/Kolkata" {
		t.Fatalf("unexpected location %s", cfg.Location())
	}
}

func TestLoadConfigPostgresDSN(t *testing.T) {
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("DB_PORT", "5432")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if !strings.Contains(cfg.Database.DSN, "port=5432") || !strings.Contains(cfg.Database.DSN, "dbname=lawfirm") {
		t.Fatalf("unexpected postgres dsn %s", cfg.Database.DSN)
	}
}

func TestLoadConfigRejectsBadTimezone(t *testing.T) {
	t.Setenv("TIMEZONE", "Mars/Olympus")

	if _, err := LoadConfig(); err == nil {
		t.Fatalf("expected error for unknown timezone")
	}
}
