package config

import (
	"strings"
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Setenv("STRIPE_SECRET_KEY", "sk_test_123")
	t.Setenv("STRIPE_WEBHOOK_SECRET", "whsec_123")
	t.Setenv("AUTH_JWT_SECRET", "jwt-secret")
	t.Setenv("OPENAI_API_KEY", "sk-openai")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want %q", cfg.Port, "8080")
	}
	if cfg.StoreDriver != "sqlite" {
		t.Errorf("StoreDriver = %q, want %q", cfg.StoreDriver, "sqlite")
	}
	if cfg.Generator != "openai" {
		t.Errorf("Generator = %q, want %q", cfg.Generator, "openai")
	}
	if cfg.RateLimitWindow != time.Minute {
		t.Errorf("RateLimitWindow = %v, want 1m", cfg.RateLimitWindow)
	}
}

func TestLoadMissingSecrets(t *testing.T) {
	t.Setenv("STRIPE_SECRET_KEY", "")
	t.Setenv("STRIPE_WEBHOOK_SECRET", "")
	t.Setenv("AUTH_JWT_SECRET", "")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("GENERATOR", "openai")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, key := range []string{"STRIPE_SECRET_KEY", "STRIPE_WEBHOOK_SECRET", "AUTH_JWT_SECRET", "OPENAI_API_KEY"} {
		if !strings.Contains(err.Error(), key) {
			t.Errorf("error %q does not mention %s", err, key)
		}
	}
}

func TestLoadStaticGeneratorNeedsNoOpenAIKey(t *testing.T) {
	setRequired(t)
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("GENERATOR", "static")

	if _, err := Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	setRequired(t)
	t.Setenv("STORE_DRIVER", "postgres")

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "STORE_DRIVER") {
		t.Fatalf("Load() error = %v, want STORE_DRIVER error", err)
	}
}

func TestStripePrices(t *testing.T) {
	got := stripePrices([]string{
		"STRIPE_PRICE_PRO=price_pro",
		"STRIPE_PRICE_PRO_ANNUAL=price_pro_y",
		"STRIPE_PRICE_STARTER=",
		"STRIPE_PRICE_=price_none",
		"HOME=/root",
	})
	want := map[string]string{"pro": "price_pro", "pro_annual": "price_pro_y"}
	if len(got) != len(want) {
		t.Fatalf("stripePrices() = %v, want %v", got, want)
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("stripePrices()[%q] = %q, want %q", k, got[k], v)
		}
	}
}

func TestReadSkipsValidation(t *testing.T) {
	t.Setenv("STRIPE_SECRET_KEY", "")
	t.Setenv("AUTH_JWT_SECRET", "")
	t.Setenv("BACKUP_S3_BUCKET", "ledger-backups")
	t.Setenv("BACKUP_PASSPHRASE", "pass")

	cfg := Read()
	if cfg.Backup.Bucket != "ledger-backups" {
		t.Errorf("Backup.Bucket = %q, want %q", cfg.Backup.Bucket, "ledger-backups")
	}
	if cfg.Backup.Prefix != "prospector" {
		t.Errorf("Backup.Prefix = %q, want %q", cfg.Backup.Prefix, "prospector")
	}
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() should still report the missing secrets")
	}
}
