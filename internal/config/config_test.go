package config

import (
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("GATEKEEP_TELEGRAM_TOKEN", "tg-token")
	t.Setenv("GATEKEEP_MP_ACCESS_TOKEN", "mp-token")
	t.Setenv("GATEKEEP_GROUP_ID", "-100123456")
}

func TestLoad(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.GroupID != -100123456 {
		t.Errorf("group id = %d, want -100123456", cfg.GroupID)
	}
	if cfg.PollInterval != 10*time.Second {
		t.Errorf("poll interval = %s, want 10s default", cfg.PollInterval)
	}
	if cfg.WatchCeiling != 30*time.Minute {
		t.Errorf("watch ceiling = %s, want 30m default", cfg.WatchCeiling)
	}
}

func TestLoadMissingGroupID(t *testing.T) {
	t.Setenv("GATEKEEP_TELEGRAM_TOKEN", "tg-token")
	t.Setenv("GATEKEEP_MP_ACCESS_TOKEN", "mp-token")
	t.Setenv("GATEKEEP_GROUP_ID", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing group id")
	}
}

func TestLoadMissingTokens(t *testing.T) {
	t.Setenv("GATEKEEP_TELEGRAM_TOKEN", "")
	t.Setenv("GATEKEEP_MP_ACCESS_TOKEN", "")
	t.Setenv("GATEKEEP_GROUP_ID", "-100123456")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing tokens")
	}
}

func TestLoadBadGroupID(t *testing.T) {
	setRequired(t)
	t.Setenv("GATEKEEP_GROUP_ID", "not-a-number")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for malformed group id")
	}
}

func TestLoadPollTuning(t *testing.T) {
	setRequired(t)
	t.Setenv("GATEKEEP_POLL_INTERVAL", "5s")
	t.Setenv("GATEKEEP_WATCH_CEILING", "10m")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.PollInterval != 5*time.Second {
		t.Errorf("poll interval = %s, want 5s", cfg.PollInterval)
	}
	if cfg.WatchCeiling != 10*time.Minute {
		t.Errorf("watch ceiling = %s, want 10m", cfg.WatchCeiling)
	}
}
