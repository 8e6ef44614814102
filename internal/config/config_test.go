package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ENV", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("RESEND_LIMIT", "")
	t.Setenv("INVENTORY_BACKEND", "")
	t.Setenv("BOT_ENABLED", "")
	t.Setenv("MESSAGE_PAUSE", "")
	t.Setenv("USE_MEMORY_QUEUE", "")
	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port, got %s", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Fatalf("expected default env, got %s", cfg.Env)
	}
	if cfg.ResendLimit != 2 {
		t.Fatalf("expected default resend limit 2, got %d", cfg.ResendLimit)
	}
	if cfg.InventoryBackend != "postgres" {
		t.Fatalf("expected default inventory backend postgres, got %s", cfg.InventoryBackend)
	}
	if !cfg.BotEnabledAtBoot {
		t.Fatalf("expected bot enabled by default")
	}
	if cfg.MessagePause != 500*time.Millisecond {
		t.Fatalf("expected default message pause, got %s", cfg.MessagePause)
	}
	if !cfg.UseMemoryQueue {
		t.Fatalf("expected memory queue by default")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ENV", "production")
	t.Setenv("RESEND_LIMIT", "3")
	t.Setenv("INVENTORY_BACKEND", "sheets")
	t.Setenv("SHEETS_SCRIPT_URL", "https://script.example.com/exec")
	t.Setenv("STATE_TTL", "48h")
	t.Setenv("BOT_ENABLED", "false")
	t.Setenv("USE_MEMORY_QUEUE", "false")
	t.Setenv("DATABASE_URL", "postgres://user@host/db")
	cfg := Load()
	if cfg.Port != "9090" {
		t.Fatalf("expected override port, got %s", cfg.Port)
	}
	if cfg.ResendLimit != 3 {
		t.Fatalf("expected resend limit override, got %d", cfg.ResendLimit)
	}
	if cfg.InventoryBackend != "sheets" {
		t.Fatalf("expected sheets backend, got %s", cfg.InventoryBackend)
	}
	if cfg.SheetsScriptURL != "https://script.example.com/exec" {
		t.Fatalf("expected script url override, got %s", cfg.SheetsScriptURL)
	}
	if cfg.StateTTL != 48*time.Hour {
		t.Fatalf("expected state ttl override, got %s", cfg.StateTTL)
	}
	if cfg.BotEnabledAtBoot {
		t.Fatalf("expected bot disabled at boot")
	}
	if cfg.UseMemoryQueue {
		t.Fatalf("expected SQS queue mode")
	}
	if cfg.DatabaseURL != "postgres://user@host/db" {
		t.Fatalf("expected db override, got %s", cfg.DatabaseURL)
	}
}

func TestInvalidNumbersFallBack(t *testing.T) {
	t.Setenv("RESEND_LIMIT", "many")
	t.Setenv("STATE_TTL", "soon")
	cfg := Load()
	if cfg.ResendLimit != 2 {
		t.Fatalf("expected fallback resend limit, got %d", cfg.ResendLimit)
	}
	if cfg.StateTTL != 24*time.Hour {
		t.Fatalf("expected fallback state ttl, got %s", cfg.StateTTL)
	}
}
