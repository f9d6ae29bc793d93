package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	redis "github.com/redis/go-redis/v9"

	"github.com/yourusername/media-forge/internal/config"
	"github.com/yourusername/media-forge/internal/fetch"
	"github.com/yourusername/media-forge/internal/jobs"
	"github.com/yourusername/media-forge/internal/storage"
)

// setupJobs は設定に従ってストア・ディスパッチャー・取得サービスを組み立てます。
func setupJobs(cfg *config.Config, logger *log.Logger) (*jobs.Manager, error) {
	files, err := storage.NewLocal(cfg.DownloadDir)
	if err != nil {
		return nil, err
	}

	store, err := newStore(cfg)
	if err != nil {
		return nil, err
	}

	dispatcher, err := newDispatcher(cfg, logger)
	if err != nil {
		store.Close()
		return nil, err
	}

	fetcher := fetch.NewYtDlp(cfg.YtDlpPath, cfg.ProgressInterval(), cfg.FetchRetries, logger)
	manager, err := jobs.NewManager(store, dispatcher, fetcher, files, logger, jobs.Options{
		FetchTimeout: cfg.FetchTimeout(),
		ReleaseDelay: cfg.DeliveryCleanupDelay(),
		RecentLimit:  cfg.RecentLimit,
	})
	if err != nil {
		store.Close()
		return nil, err
	}
	return manager, nil
}

func newStore(cfg *config.Config) (jobs.Store, error) {
	switch cfg.StoreBackend {
	case config.StoreSQLite:
		if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create sqlite dir: %w", err)
		}
		return jobs.NewSQLiteStore(cfg.SQLitePath)
	case config.StoreRedis:
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		return jobs.NewRedisStore(redis.NewClient(opt), cfg.JobRecordTTL()), nil
	default:
		return jobs.NewMemoryStore(), nil
	}
}

func newDispatcher(cfg *config.Config, logger *log.Logger) (jobs.Dispatcher, error) {
	if cfg.QueueBackend == config.QueueAsynq {
		return jobs.NewAsynqQueue(cfg.QueueRedisURL, cfg.WorkerConcurrency, cfg.FetchTimeout(), logger)
	}
	return jobs.NewPool(cfg.WorkerConcurrency, cfg.QueueCapacity, logger), nil
}
