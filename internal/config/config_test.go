package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	for _, key := range []string{"STORE_BACKEND", "QUEUE_BACKEND", "RETENTION_MINUTES", "WORKER_CONCURRENCY", "GIN_MODE"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.StoreBackend != StoreMemory {
		t.Fatalf("StoreBackend = %q, want %q", cfg.StoreBackend, StoreMemory)
	}
	if cfg.QueueBackend != QueuePool {
		t.Fatalf("QueueBackend = %q, want %q", cfg.QueueBackend, QueuePool)
	}
	if cfg.Retention() != time.Hour {
		t.Fatalf("Retention = %s, want 1h", cfg.Retention())
	}
	if cfg.WorkerConcurrency != 4 {
		t.Fatalf("WorkerConcurrency = %d, want 4", cfg.WorkerConcurrency)
	}
	if cfg.RecentLimit != 10 {
		t.Fatalf("RecentLimit = %d, want 10", cfg.RecentLimit)
	}
	if cfg.FetchTimeout() != 0 {
		t.Fatalf("FetchTimeout = %s, want disabled", cfg.FetchTimeout())
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("STORE_BACKEND", "SQLite")
	t.Setenv("SQLITE_PATH", "/tmp/jobs.db")
	t.Setenv("RETENTION_MINUTES", "15")
	t.Setenv("DELIVERY_CLEANUP_DELAY_SECONDS", "0")
	t.Setenv("WORKER_CONCURRENCY", "not-a-number")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.StoreBackend != StoreSQLite {
		t.Fatalf("StoreBackend = %q, want sqlite", cfg.StoreBackend)
	}
	if cfg.Retention() != 15*time.Minute {
		t.Fatalf("Retention = %s, want 15m", cfg.Retention())
	}
	if cfg.DeliveryCleanupDelay() != 0 {
		t.Fatalf("DeliveryCleanupDelay = %s, want 0", cfg.DeliveryCleanupDelay())
	}
	if cfg.WorkerConcurrency != 4 {
		t.Fatalf("invalid integer should fall back to default, got %d", cfg.WorkerConcurrency)
	}
}

func TestValidate(t *testing.T) {
	base := Config{
		StoreBackend:      StoreMemory,
		QueueBackend:      QueuePool,
		DownloadDir:       "downloads",
		YtDlpPath:         "yt-dlp",
		WorkerConcurrency: 2,
		QueueCapacity:     10,
		GinMode:           "debug",
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(c *Config) {}},
		{name: "unknown store", mutate: func(c *Config) { c.StoreBackend = "mongo" }, wantErr: true},
		{name: "unknown queue", mutate: func(c *Config) { c.QueueBackend = "kafka" }, wantErr: true},
		{name: "asynq without redis store", mutate: func(c *Config) { c.QueueBackend = QueueAsynq; c.QueueRedisURL = "redis://x" }, wantErr: true},
		{name: "asynq with redis store", mutate: func(c *Config) {
			c.QueueBackend = QueueAsynq
			c.QueueRedisURL = "redis://x"
			c.StoreBackend = StoreRedis
			c.RedisURL = "redis://x"
		}},
		{name: "zero workers", mutate: func(c *Config) { c.WorkerConcurrency = 0 }, wantErr: true},
		{name: "release without secret", mutate: func(c *Config) { c.GinMode = "release" }, wantErr: true},
		{name: "release with secret", mutate: func(c *Config) { c.GinMode = "release"; c.SessionSecret = "s3cret" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Fatal("expected validation error")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}
