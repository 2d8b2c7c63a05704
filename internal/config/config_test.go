package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.QueueMinInterval != 100*time.Millisecond {
		t.Fatalf("QueueMinInterval = %s", cfg.QueueMinInterval)
	}
	if cfg.QueueRequestTimeout != 30*time.Second {
		t.Fatalf("QueueRequestTimeout = %s", cfg.QueueRequestTimeout)
	}
	if cfg.QueueMaxRetries != 3 || cfg.QueueRetryDelay != time.Second || cfg.QueueBackoffMultiplier != 2 {
		t.Fatalf("unexpected retry defaults: %+v", cfg)
	}
	if cfg.QueueDrainDelay != 50*time.Millisecond {
		t.Fatalf("QueueDrainDelay = %s", cfg.QueueDrainDelay)
	}
	if cfg.StorageType != "bbolt" {
		t.Fatalf("StorageType = %q", cfg.StorageType)
	}
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("API_KEY", " secret ")
	t.Setenv("API_BASE_URL", "https://news.example.com/v1/")
	t.Setenv("QUEUE_MAX_RETRIES", "5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.APIKey != "secret" {
		t.Fatalf("APIKey = %q", cfg.APIKey)
	}
	if cfg.APIBaseURL != "https://news.example.com/v1" {
		t.Fatalf("APIBaseURL = %q", cfg.APIBaseURL)
	}
	if cfg.QueueMaxRetries != 5 {
		t.Fatalf("QueueMaxRetries = %d", cfg.QueueMaxRetries)
	}
}

func TestLoadRejectsInvalidPageSize(t *testing.T) {
	t.Setenv("PAGE_SIZE", "0")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for zero page_size")
	}
}
