package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("WORKERS", "")
	t.Setenv("POLL_INITIAL_DELAY", "")
	cfg := Load()
	if cfg.Workers != 6 {
		t.Fatalf("expected 6 workers, got %d", cfg.Workers)
	}
	if cfg.PollMaxAttempts != 5 || cfg.PollInitialDelay != time.Second {
		t.Fatalf("unexpected poll defaults: attempts=%d delay=%s", cfg.PollMaxAttempts, cfg.PollInitialDelay)
	}
	if cfg.AthenaWorkGroup != "poweruser" {
		t.Fatalf("unexpected workgroup %q", cfg.AthenaWorkGroup)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("WORKERS", "3")
	t.Setenv("POLL_INITIAL_DELAY", "250ms")
	t.Setenv("CANCEL_ON_TIMEOUT", "true")
	t.Setenv("POLL_MAX_ATTEMPTS", "not-a-number")
	cfg := Load()
	if cfg.Workers != 3 {
		t.Fatalf("expected 3 workers, got %d", cfg.Workers)
	}
	if cfg.PollInitialDelay != 250*time.Millisecond {
		t.Fatalf("expected 250ms, got %s", cfg.PollInitialDelay)
	}
	if !cfg.CancelOnTimeout {
		t.Fatalf("expected cancel on timeout")
	}
	if cfg.PollMaxAttempts != 5 {
		t.Fatalf("invalid int should fall back to default, got %d", cfg.PollMaxAttempts)
	}
}
